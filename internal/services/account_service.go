package services

import (
	"context"
	"errors"
	"net/mail"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tillpoint/controlplane/internal/models"
)

const minPasswordLength = 8

// CreateAccountInput is the payload for a new admin account.
type CreateAccountInput struct {
	Email    string
	Name     string
	Password string
	Role     models.Role
}

// UpdateAccountInput changes selected fields; nil means unchanged.
type UpdateAccountInput struct {
	Name   *string
	Role   *models.Role
	Active *bool
}

// AccountChange describes what UpdateAccount actually changed.
type AccountChange struct {
	NameChanged   bool
	RoleChanged   bool
	ActiveChanged bool
	PreviousRole  models.Role
}

// Any reports whether the update touched anything.
func (c AccountChange) Any() bool {
	return c.NameChanged || c.RoleChanged || c.ActiveChanged
}

// AccountService reads and writes admin accounts.
type AccountService struct {
	db       *gorm.DB
	sessions *SessionStore
}

// NewAccountService returns a service over db. sessions may be nil, in which
// case disabling an account does not sign it out.
func NewAccountService(db *gorm.DB, sessions *SessionStore) *AccountService {
	return &AccountService{db: db, sessions: sessions}
}

func (s *AccountService) Get(ctx context.Context, id uint) (*models.AdminAccount, error) {
	var a models.AdminAccount
	if err := s.db.WithContext(ctx).First(&a, id).Error; err != nil {
		return nil, dbError(err, "account")
	}
	return &a, nil
}

func (s *AccountService) GetByEmail(ctx context.Context, email string) (*models.AdminAccount, error) {
	var a models.AdminAccount
	if err := s.db.WithContext(ctx).Where("email = ?", normalizeEmail(email)).First(&a).Error; err != nil {
		return nil, dbError(err, "account")
	}
	return &a, nil
}

func (s *AccountService) List(ctx context.Context) ([]models.AdminAccount, error) {
	accounts := []models.AdminAccount{}
	if err := s.db.WithContext(ctx).Order("id asc").Find(&accounts).Error; err != nil {
		return nil, err
	}
	return accounts, nil
}

// Create validates and stores a new active account with MFA disabled.
func (s *AccountService) Create(ctx context.Context, in CreateAccountInput) (*models.AdminAccount, error) {
	email := normalizeEmail(in.Email)
	if _, err := mail.ParseAddress(email); err != nil || email == "" {
		return nil, validationf("a valid email is required")
	}
	if len(in.Password) < minPasswordLength {
		return nil, validationf("password must be at least %d characters", minPasswordLength)
	}
	if in.Role == "" {
		in.Role = models.RoleSupport
	}
	if !in.Role.Valid() {
		return nil, validationf("unknown role %q", in.Role)
	}

	var count int64
	if err := s.db.WithContext(ctx).Model(&models.AdminAccount{}).Where("email = ?", email).Count(&count).Error; err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, conflictf("an account with this email already exists")
	}

	acct := &models.AdminAccount{
		UUID:     uuid.NewString(),
		Email:    email,
		Name:     strings.TrimSpace(in.Name),
		Role:     in.Role,
		Active:   true,
		MFAState: models.MFAStateDisabled,
	}
	if err := acct.SetPassword(in.Password); err != nil {
		return nil, err
	}
	if err := s.db.WithContext(ctx).Create(acct).Error; err != nil {
		return nil, err
	}
	return acct, nil
}

// Update applies in to the account. Deactivating an account or changing its
// role revokes its sessions so the change takes effect immediately.
func (s *AccountService) Update(ctx context.Context, id uint, in UpdateAccountInput) (*models.AdminAccount, AccountChange, error) {
	var change AccountChange
	if in.Role != nil && !in.Role.Valid() {
		return nil, change, validationf("unknown role %q", *in.Role)
	}

	acct, err := s.Get(ctx, id)
	if err != nil {
		return nil, change, err
	}
	change.PreviousRole = acct.Role

	updates := map[string]interface{}{}
	if in.Name != nil && strings.TrimSpace(*in.Name) != acct.Name {
		updates["name"] = strings.TrimSpace(*in.Name)
		change.NameChanged = true
	}
	if in.Role != nil && *in.Role != acct.Role {
		updates["role"] = *in.Role
		change.RoleChanged = true
	}
	if in.Active != nil && *in.Active != acct.Active {
		updates["active"] = *in.Active
		change.ActiveChanged = true
	}
	if len(updates) == 0 {
		return acct, change, nil
	}
	if err := s.db.WithContext(ctx).Model(acct).Updates(updates).Error; err != nil {
		return nil, change, err
	}
	if change.NameChanged {
		acct.Name = strings.TrimSpace(*in.Name)
	}
	if change.RoleChanged {
		acct.Role = *in.Role
	}
	if change.ActiveChanged {
		acct.Active = *in.Active
	}
	if s.sessions != nil && (change.RoleChanged || (change.ActiveChanged && !acct.Active)) {
		s.sessions.RevokeAccount(id)
	}
	return acct, change, nil
}

// Delete removes the account and signs it out everywhere.
func (s *AccountService) Delete(ctx context.Context, id uint) error {
	res := s.db.WithContext(ctx).Delete(&models.AdminAccount{}, id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return notFoundf("account not found")
	}
	if s.sessions != nil {
		s.sessions.RevokeAccount(id)
	}
	return nil
}

// ChangePassword verifies the current password before storing the new one.
func (s *AccountService) ChangePassword(ctx context.Context, id uint, current, next string) error {
	if len(next) < minPasswordLength {
		return validationf("password must be at least %d characters", minPasswordLength)
	}
	acct, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if !acct.CheckPassword(current) {
		return ErrInvalidCredentials
	}
	if err := acct.SetPassword(next); err != nil {
		return err
	}
	return s.db.WithContext(ctx).Model(acct).Update("password_hash", acct.PasswordHash).Error
}

// IsNotFound reports whether err means the record does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, gorm.ErrRecordNotFound)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
