package models

import (
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"
)

// ErrAuditImmutable is returned by the model hooks when something tries to
// rewrite or remove an audit row.
var ErrAuditImmutable = errors.New("audit log entries are append-only")

// AuditAction is the closed vocabulary of audited verbs.
type AuditAction string

const (
	AuditActionCreate           AuditAction = "CREATE"
	AuditActionUpdate           AuditAction = "UPDATE"
	AuditActionDelete           AuditAction = "DELETE"
	AuditActionLogin            AuditAction = "LOGIN"
	AuditActionLoginFailed      AuditAction = "LOGIN_FAILED"
	AuditActionLogout           AuditAction = "LOGOUT"
	AuditActionMFASetup         AuditAction = "MFA_SETUP"
	AuditActionMFAEnabled       AuditAction = "MFA_ENABLED"
	AuditActionMFADisabled      AuditAction = "MFA_DISABLED"
	AuditActionPasswordChange   AuditAction = "PASSWORD_CHANGE"
	AuditActionPermissionChange AuditAction = "PERMISSION_CHANGE"
	AuditActionBulkCreate       AuditAction = "BULK_CREATE"
	AuditActionBulkUpdate       AuditAction = "BULK_UPDATE"
	AuditActionBulkDelete       AuditAction = "BULK_DELETE"
	AuditActionExportData       AuditAction = "EXPORT_DATA"
	AuditActionGenerateReport   AuditAction = "GENERATE_REPORT"
)

var knownAuditActions = map[AuditAction]struct{}{
	AuditActionCreate:           {},
	AuditActionUpdate:           {},
	AuditActionDelete:           {},
	AuditActionLogin:            {},
	AuditActionLoginFailed:      {},
	AuditActionLogout:           {},
	AuditActionMFASetup:         {},
	AuditActionMFAEnabled:       {},
	AuditActionMFADisabled:      {},
	AuditActionPasswordChange:   {},
	AuditActionPermissionChange: {},
	AuditActionBulkCreate:       {},
	AuditActionBulkUpdate:       {},
	AuditActionBulkDelete:       {},
	AuditActionExportData:       {},
	AuditActionGenerateReport:   {},
}

// securityActions is the allow-list that defines a security event.
var securityActions = []AuditAction{
	AuditActionLogin,
	AuditActionLoginFailed,
	AuditActionLogout,
	AuditActionMFASetup,
	AuditActionMFAEnabled,
	AuditActionMFADisabled,
	AuditActionPasswordChange,
	AuditActionPermissionChange,
}

// ParseAuditAction normalizes s and reports whether it is a known verb.
func ParseAuditAction(s string) (AuditAction, bool) {
	a := AuditAction(strings.ToUpper(strings.TrimSpace(s)))
	return a, a.Valid()
}

// Valid reports whether a belongs to the known vocabulary.
func (a AuditAction) Valid() bool {
	_, ok := knownAuditActions[a]
	return ok
}

// IsSecurityEvent reports whether a is on the security allow-list.
func (a AuditAction) IsSecurityEvent() bool {
	for _, s := range securityActions {
		if s == a {
			return true
		}
	}
	return false
}

// SecurityActions returns a copy of the security-event allow-list.
func SecurityActions() []AuditAction {
	out := make([]AuditAction, len(securityActions))
	copy(out, securityActions)
	return out
}

// Known resource types. The column itself is an open string.
const (
	ResourceTenant       = "tenant"
	ResourceLicense      = "license"
	ResourceAdminAccount = "admin_user"
	ResourceAlert        = "alert"
	ResourceSession      = "session"
)

// AuditLog is one immutable record of an administrative action.
type AuditLog struct {
	ID           uint        `json:"id" gorm:"primaryKey"`
	UUID         string      `json:"uuid" gorm:"uniqueIndex"`
	ActorID      *uint       `json:"actor_id,omitempty" gorm:"index"`
	ActorEmail   string      `json:"actor_email,omitempty"`
	Action       AuditAction `json:"action" gorm:"index;not null"`
	ResourceType string      `json:"resource_type" gorm:"index;not null"`
	ResourceID   string      `json:"resource_id,omitempty" gorm:"index"`
	Details      string      `json:"details,omitempty" gorm:"type:text"`
	Reason       string      `json:"reason,omitempty"`
	IPAddress    string      `json:"ip_address,omitempty" gorm:"index"`
	UserAgent    string      `json:"user_agent,omitempty"`
	CreatedAt    time.Time   `json:"created_at" gorm:"index"`
}

// BeforeUpdate keeps the trail append-only.
func (a *AuditLog) BeforeUpdate(tx *gorm.DB) error {
	return ErrAuditImmutable
}

// BeforeDelete keeps the trail append-only.
func (a *AuditLog) BeforeDelete(tx *gorm.DB) error {
	return ErrAuditImmutable
}
