package models

import (
	"time"

	"golang.org/x/crypto/bcrypt"
)

// Role is the closed set of control-plane roles. The permission set for each
// role lives in the permissions package.
type Role string

const (
	// RoleSuperAdmin has every permission.
	RoleSuperAdmin Role = "super_admin"
	// RoleOperations manages tenants, licenses and alerts.
	RoleOperations Role = "operations"
	// RoleSupport is read-only and the fallback for unknown roles.
	RoleSupport Role = "support"
)

// Roles lists every defined role, most privileged first.
func Roles() []Role {
	return []Role{RoleSuperAdmin, RoleOperations, RoleSupport}
}

// Valid reports whether r is one of the defined roles.
func (r Role) Valid() bool {
	switch r {
	case RoleSuperAdmin, RoleOperations, RoleSupport:
		return true
	}
	return false
}

// MFAState is the enrollment state of an account's second factor.
type MFAState string

const (
	MFAStateDisabled MFAState = "disabled"
	MFAStatePending  MFAState = "pending"
	MFAStateEnabled  MFAState = "enabled"
)

// AdminAccount is a vendor staff member allowed into the control plane.
//
// MFASecret is empty whenever MFAState is disabled.
type AdminAccount struct {
	ID           uint       `json:"id" gorm:"primaryKey"`
	UUID         string     `json:"uuid" gorm:"uniqueIndex"`
	Email        string     `json:"email" gorm:"uniqueIndex"`
	Name         string     `json:"name"`
	PasswordHash string     `json:"-"`
	Role         Role       `json:"role" gorm:"default:'support'"`
	Active       bool       `json:"active"`
	MFAState     MFAState   `json:"mfa_state" gorm:"default:'disabled'"`
	MFASecret    string     `json:"-"`
	LastLogin    *time.Time `json:"last_login,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// SetPassword hashes and sets the account's password.
func (a *AdminAccount) SetPassword(password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	a.PasswordHash = string(hash)
	return nil
}

// CheckPassword compares the provided password with the stored hash.
func (a *AdminAccount) CheckPassword(password string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(a.PasswordHash), []byte(password))
	return err == nil
}

// MFARequired reports whether logins must present a one-time code.
func (a *AdminAccount) MFARequired() bool {
	return a.MFAState == MFAStateEnabled
}
