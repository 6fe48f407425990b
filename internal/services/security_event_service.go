package services

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tillpoint/controlplane/internal/models"
)

const (
	DefaultSuspiciousWindow    = 24 * time.Hour
	DefaultSuspiciousThreshold = 5
)

// SuspiciousOrigin is a client origin with too many failed logins.
type SuspiciousOrigin struct {
	Origin       string `json:"origin"`
	FailureCount int64  `json:"failure_count"`
}

// SecurityEventService is a read-only view over the audit trail: security
// events are the subset of entries on the security allow-list, and the
// detector aggregates failed logins by origin.
type SecurityEventService struct {
	db        *gorm.DB
	audit     *AuditService
	now       func() time.Time
	window    time.Duration
	threshold int
}

// NewSecurityEventService returns a service reading db through audit.
// Non-positive window or negative threshold fall back to 24h and 5.
func NewSecurityEventService(db *gorm.DB, audit *AuditService, window time.Duration, threshold int) *SecurityEventService {
	if window <= 0 {
		window = DefaultSuspiciousWindow
	}
	if threshold < 0 {
		threshold = DefaultSuspiciousThreshold
	}
	return &SecurityEventService{db: db, audit: audit, now: time.Now, window: window, threshold: threshold}
}

// ListSecurityEvents is Query restricted to the security allow-list. An action
// filter outside the allow-list matches nothing.
func (s *SecurityEventService) ListSecurityEvents(ctx context.Context, f AuditFilter) (*AuditPage, error) {
	if f.Action != "" && !f.Action.IsSecurityEvent() {
		page, limit := normalizePage(f.Page, f.Limit)
		return &AuditPage{Items: []models.AuditLog{}, Page: page, Limit: limit}, nil
	}
	return s.audit.query(ctx, f, models.SecurityActions())
}

// Defaults returns the configured detector window and threshold.
func (s *SecurityEventService) Defaults() (time.Duration, int) {
	return s.window, s.threshold
}

// DetectRecent runs the detector over the configured window ending now.
func (s *SecurityEventService) DetectRecent(ctx context.Context) ([]SuspiciousOrigin, error) {
	return s.DetectSuspiciousOrigins(ctx, s.now(), s.window, s.threshold)
}

// DetectSuspiciousOrigins counts LOGIN_FAILED entries created within
// [windowEnd-windowSize, windowEnd], grouped by client origin, and returns the
// origins whose count is strictly greater than threshold, busiest first.
//
// The read is a single statement so it sees one snapshot; entries written
// concurrently may or may not be counted.
func (s *SecurityEventService) DetectSuspiciousOrigins(ctx context.Context, windowEnd time.Time, windowSize time.Duration, threshold int) ([]SuspiciousOrigin, error) {
	if windowSize <= 0 {
		return nil, validationf("window size must be positive")
	}
	if threshold < 0 {
		return nil, validationf("threshold must not be negative")
	}
	end := windowEnd.UTC()
	start := end.Add(-windowSize)

	out := []SuspiciousOrigin{}
	err := s.db.WithContext(ctx).Model(&models.AuditLog{}).
		Select("ip_address AS origin, COUNT(*) AS failure_count").
		Where("action = ?", models.AuditActionLoginFailed).
		Where("created_at >= ? AND created_at <= ?", start, end).
		Group("ip_address").
		Having("COUNT(*) > ?", threshold).
		Order("failure_count DESC").Order("origin ASC").
		Scan(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}
