package models

import (
	"time"
)

// Tenant is a POS customer. Only the fields the control plane's security
// tooling reads are modelled here.
type Tenant struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	UUID      string    `json:"uuid" gorm:"uniqueIndex"`
	Name      string    `json:"name"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type LicenseStatus string

const (
	LicenseStatusActive    LicenseStatus = "active"
	LicenseStatusSuspended LicenseStatus = "suspended"
	LicenseStatusExpired   LicenseStatus = "expired"
)

// License grants a tenant use of the POS until ExpiresAt.
type License struct {
	ID        uint          `json:"id" gorm:"primaryKey"`
	UUID      string        `json:"uuid" gorm:"uniqueIndex"`
	TenantID  uint          `json:"tenant_id" gorm:"index"`
	Tenant    Tenant        `json:"tenant,omitempty" gorm:"constraint:OnDelete:CASCADE"`
	Plan      string        `json:"plan"`
	Status    LicenseStatus `json:"status" gorm:"index"`
	ExpiresAt time.Time     `json:"expires_at" gorm:"index"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}
