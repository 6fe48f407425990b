package services

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	"gorm.io/gorm"

	"github.com/tillpoint/controlplane/internal/metrics"
	"github.com/tillpoint/controlplane/internal/models"
)

var totpOpts = totp.ValidateOpts{
	Period:    30,
	Skew:      1,
	Digits:    otp.DigitsSix,
	Algorithm: otp.AlgorithmSHA1,
}

// MFASetup is returned by BeginSetup for the authenticator app.
type MFASetup struct {
	Secret string `json:"secret"`
	URI    string `json:"otpauth_url"`
}

// accountLocks hands out one mutex per account id so transitions on the same
// account are serialized while different accounts never contend. An entry
// lives only while someone holds or waits for it.
type accountLocks struct {
	mu    sync.Mutex
	locks map[uint]*accountLock
}

type accountLock struct {
	mu   sync.Mutex
	refs int
}

func (l *accountLocks) lock(id uint) func() {
	l.mu.Lock()
	if l.locks == nil {
		l.locks = make(map[uint]*accountLock)
	}
	e, ok := l.locks[id]
	if !ok {
		e = &accountLock{}
		l.locks[id] = e
	}
	e.refs++
	l.mu.Unlock()

	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		l.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(l.locks, id)
		}
		l.mu.Unlock()
	}
}

func (l *accountLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}

// MFAService drives the per-account enrollment machine
// disabled -> pending -> enabled -> disabled.
type MFAService struct {
	db     *gorm.DB
	audit  *AuditService
	issuer string
	now    func() time.Time
	locks  accountLocks
}

// NewMFAService returns an MFAService labelling enrollments with issuer.
func NewMFAService(db *gorm.DB, audit *AuditService, issuer string) *MFAService {
	return &MFAService{db: db, audit: audit, issuer: issuer, now: time.Now}
}

func (s *MFAService) load(ctx context.Context, accountID uint) (*models.AdminAccount, error) {
	var acct models.AdminAccount
	if err := s.db.WithContext(ctx).First(&acct, accountID).Error; err != nil {
		return nil, dbError(err, "account")
	}
	return &acct, nil
}

// BeginSetup generates a fresh secret for the account and moves it to
// pending. Re-running it while pending replaces the secret.
func (s *MFAService) BeginSetup(ctx context.Context, accountID uint, actor Actor) (*MFASetup, error) {
	unlock := s.locks.lock(accountID)
	defer unlock()

	acct, err := s.load(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if acct.MFAState == models.MFAStateEnabled {
		return nil, conflictf("MFA is already enabled; disable it before enrolling again")
	}

	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      s.issuer,
		AccountName: acct.Email,
		Period:      totpOpts.Period,
		Digits:      totpOpts.Digits,
		Algorithm:   totpOpts.Algorithm,
	})
	if err != nil {
		return nil, err
	}

	if err := s.db.WithContext(ctx).Model(acct).Updates(map[string]interface{}{
		"mfa_state":  models.MFAStatePending,
		"mfa_secret": key.Secret(),
	}).Error; err != nil {
		return nil, err
	}
	metrics.IncMFATransition(string(models.MFAStatePending))

	s.audit.Record(ctx, actor.Entry(models.AuditActionMFASetup, models.ResourceAdminAccount, idString(accountID)))
	return &MFASetup{Secret: key.Secret(), URI: key.URL()}, nil
}

// Verify proves possession of the pending secret and enables MFA. A wrong
// code leaves the account pending.
func (s *MFAService) Verify(ctx context.Context, accountID uint, code string, actor Actor) error {
	if !wellFormedCode(code) {
		return validationf("MFA code must be 6 digits")
	}

	unlock := s.locks.lock(accountID)
	defer unlock()

	acct, err := s.load(ctx, accountID)
	if err != nil {
		return err
	}
	if acct.MFAState != models.MFAStatePending {
		return conflictf("MFA not in pending state")
	}
	if !s.ValidateCode(acct.MFASecret, code) {
		return validationf("invalid MFA code")
	}

	if err := s.db.WithContext(ctx).Model(acct).Update("mfa_state", models.MFAStateEnabled).Error; err != nil {
		return err
	}
	metrics.IncMFATransition(string(models.MFAStateEnabled))

	s.audit.Record(ctx, actor.Entry(models.AuditActionMFAEnabled, models.ResourceAdminAccount, idString(accountID)))
	return nil
}

// Disable clears the secret and returns the account to disabled.
func (s *MFAService) Disable(ctx context.Context, accountID uint, actor Actor) error {
	unlock := s.locks.lock(accountID)
	defer unlock()

	acct, err := s.load(ctx, accountID)
	if err != nil {
		return err
	}
	if acct.MFAState == models.MFAStateDisabled || acct.MFAState == "" {
		return conflictf("MFA is not enabled or pending")
	}

	if err := s.db.WithContext(ctx).Model(acct).Updates(map[string]interface{}{
		"mfa_state":  models.MFAStateDisabled,
		"mfa_secret": "",
	}).Error; err != nil {
		return err
	}
	metrics.IncMFATransition(string(models.MFAStateDisabled))

	s.audit.Record(ctx, actor.Entry(models.AuditActionMFADisabled, models.ResourceAdminAccount, idString(accountID)))
	return nil
}

// ValidateCode checks a TOTP code against secret at the current time.
func (s *MFAService) ValidateCode(secret, code string) bool {
	if secret == "" || !wellFormedCode(code) {
		return false
	}
	ok, err := totp.ValidateCustom(code, secret, s.now().UTC(), totpOpts)
	return err == nil && ok
}

func wellFormedCode(code string) bool {
	if len(code) != 6 {
		return false
	}
	for _, r := range code {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func idString(id uint) string {
	return strconv.FormatUint(uint64(id), 10)
}
