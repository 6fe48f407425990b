package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/tillpoint/controlplane/internal/config"
	"github.com/tillpoint/controlplane/internal/metrics"
	"github.com/tillpoint/controlplane/internal/models"
)

// Claims is the JWT payload. RegisteredClaims.ID carries the session id.
type Claims struct {
	AccountID uint        `json:"aid"`
	Email     string      `json:"email"`
	Role      models.Role `json:"role"`
	jwt.RegisteredClaims
}

// LoginInput is what the console posts to /auth/login.
type LoginInput struct {
	Email     string
	Password  string
	Code      string
	IPAddress string
	UserAgent string
}

// dummyPasswordHash is compared against when the email is unknown so that
// case costs one bcrypt run like a wrong password does.
var dummyPasswordHash = sync.OnceValue(func() []byte {
	hash, err := bcrypt.GenerateFromPassword([]byte("no-such-account"), bcrypt.DefaultCost)
	if err != nil {
		panic(err)
	}
	return hash
})

func burnPasswordCheck(password string) {
	_ = bcrypt.CompareHashAndPassword(dummyPasswordHash(), []byte(password))
}

// AuthService signs admins in and out. Every attempt lands in the audit
// trail; failed attempts feed the suspicious-origin detector.
type AuthService struct {
	db       *gorm.DB
	secret   []byte
	audit    *AuditService
	mfa      *MFAService
	sessions *SessionStore
	now      func() time.Time

	// unknownAccount runs when no account matches the email.
	unknownAccount func(password string)
}

func NewAuthService(db *gorm.DB, cfg config.Config, audit *AuditService, mfa *MFAService, sessions *SessionStore) *AuthService {
	return &AuthService{
		db:             db,
		secret:         []byte(cfg.JWTSecret),
		audit:          audit,
		mfa:            mfa,
		sessions:       sessions,
		now:            time.Now,
		unknownAccount: burnPasswordCheck,
	}
}

// Login checks credentials, and the TOTP code when MFA is enabled, then opens
// a session and returns a signed token for it.
func (s *AuthService) Login(ctx context.Context, in LoginInput) (string, *models.AdminAccount, error) {
	email := normalizeEmail(in.Email)
	failed := func(acct *models.AdminAccount, reason string) {
		metrics.IncLoginFailure()
		entry := AuditEntry{
			ActorEmail:   email,
			Action:       models.AuditActionLoginFailed,
			ResourceType: models.ResourceSession,
			IPAddress:    in.IPAddress,
			UserAgent:    in.UserAgent,
		}
		if acct != nil {
			id := acct.ID
			entry.ActorID = &id
			entry.ResourceID = idString(acct.ID)
		}
		s.audit.Record(ctx, entry.WithDetails(map[string]string{"reason": reason}))
	}

	var acct models.AdminAccount
	if err := s.db.WithContext(ctx).Where("email = ?", email).First(&acct).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			s.unknownAccount(in.Password)
			failed(nil, "unknown account")
			return "", nil, ErrInvalidCredentials
		}
		return "", nil, err
	}
	if !acct.CheckPassword(in.Password) {
		failed(&acct, "bad password")
		return "", nil, ErrInvalidCredentials
	}
	if !acct.Active {
		failed(&acct, "account disabled")
		return "", nil, ErrInvalidCredentials
	}
	if acct.MFARequired() {
		if in.Code == "" {
			return "", nil, ErrMFARequired
		}
		if !s.mfa.ValidateCode(acct.MFASecret, in.Code) {
			failed(&acct, "bad mfa code")
			return "", nil, ErrInvalidCredentials
		}
	}

	sess, err := s.sessions.Create(acct.ID, acct.Role, in.IPAddress, in.UserAgent)
	if err != nil {
		return "", nil, err
	}
	token, err := s.sign(&acct, sess)
	if err != nil {
		s.sessions.Revoke(sess.ID)
		return "", nil, err
	}

	now := s.now()
	if err := s.db.WithContext(ctx).Model(&acct).Update("last_login", now).Error; err != nil {
		return "", nil, err
	}
	acct.LastLogin = &now

	actor := Actor{ID: &acct.ID, Email: acct.Email, IPAddress: in.IPAddress, UserAgent: in.UserAgent}
	s.audit.Record(ctx, actor.Entry(models.AuditActionLogin, models.ResourceSession, sess.ID))
	return token, &acct, nil
}

func (s *AuthService) sign(acct *models.AdminAccount, sess Session) (string, error) {
	claims := Claims{
		AccountID: acct.ID,
		Email:     acct.Email,
		Role:      acct.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        sess.ID,
			Subject:   acct.UUID,
			IssuedAt:  jwt.NewNumericDate(sess.CreatedAt),
			ExpiresAt: jwt.NewNumericDate(sess.ExpiresAt),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

// ValidateToken verifies the signature and expiry and that the session is
// still open. The role in the returned claims is the one current at login;
// role changes revoke sessions so it cannot go stale.
func (s *AuthService) ValidateToken(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil || !token.Valid {
		return nil, ErrSessionInvalid
	}
	sess, ok := s.sessions.Get(claims.ID)
	if !ok || sess.AccountID != claims.AccountID {
		return nil, ErrSessionInvalid
	}
	return claims, nil
}

// Logout closes the session and records it.
func (s *AuthService) Logout(ctx context.Context, sessionID string, actor Actor) {
	s.sessions.Revoke(sessionID)
	s.audit.Record(ctx, actor.Entry(models.AuditActionLogout, models.ResourceSession, sessionID))
}
