package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type AlertSeverity string

const (
	AlertSeverityInfo     AlertSeverity = "info"
	AlertSeverityWarning  AlertSeverity = "warning"
	AlertSeverityError    AlertSeverity = "error"
	AlertSeverityCritical AlertSeverity = "critical"
)

// Rank orders severities so thresholds can be compared. Unknown values rank 0.
func (s AlertSeverity) Rank() int {
	switch s {
	case AlertSeverityInfo:
		return 1
	case AlertSeverityWarning:
		return 2
	case AlertSeverityError:
		return 3
	case AlertSeverityCritical:
		return 4
	}
	return 0
}

func (s AlertSeverity) Valid() bool { return s.Rank() > 0 }

type AlertStatus string

const (
	AlertStatusActive   AlertStatus = "active"
	AlertStatusResolved AlertStatus = "resolved"
)

func (s AlertStatus) Valid() bool {
	return s == AlertStatusActive || s == AlertStatusResolved
}

// AlertTypeLicenseExpiring is raised by the periodic license scan.
const AlertTypeLicenseExpiring = "license_expiring"

// Alert is an operator-facing notification. Unlike audit entries alerts are
// mutable and can be deleted.
type Alert struct {
	ID         string        `json:"id" gorm:"primaryKey"`
	Type       string        `json:"type" gorm:"index:idx_alert_resource_type"`
	Severity   AlertSeverity `json:"severity"`
	Message    string        `json:"message"`
	ResourceID string        `json:"resource_id,omitempty" gorm:"index:idx_alert_resource_type"`
	Status     AlertStatus   `json:"status" gorm:"index"`
	CreatedAt  time.Time     `json:"created_at"`
	UpdatedAt  time.Time     `json:"updated_at"`
}

func (a *Alert) BeforeCreate(tx *gorm.DB) (err error) {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	return
}
