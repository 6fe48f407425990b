package services

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/tillpoint/controlplane/internal/logger"
	"github.com/tillpoint/controlplane/internal/metrics"
	"github.com/tillpoint/controlplane/internal/models"
)

// DefaultExpiryHorizon is how far ahead ScanLicenseExpiry looks by default.
const DefaultExpiryHorizon = 7 * 24 * time.Hour

// CreateAlertInput is the payload of a manual alert.
type CreateAlertInput struct {
	Type       string
	Severity   models.AlertSeverity
	Message    string
	ResourceID string
}

// AlertService owns the alert collection. Mutations are serialized so the
// (resource id, type) dedup rule of the license scan holds; List only takes
// the read lock.
type AlertService struct {
	mu       sync.RWMutex
	store    AlertStore
	licenses LicenseSource
	notifier AlertNotifier
	now      func() time.Time
}

// NewAlertService wires the store and the licensing source. notifier may be nil.
func NewAlertService(store AlertStore, licenses LicenseSource, notifier AlertNotifier) *AlertService {
	return &AlertService{store: store, licenses: licenses, notifier: notifier, now: time.Now}
}

// CreateAlert always creates a new active alert; manual alerts are not
// deduplicated.
func (s *AlertService) CreateAlert(ctx context.Context, in CreateAlertInput) (*models.Alert, error) {
	in.Type = strings.TrimSpace(in.Type)
	in.Message = strings.TrimSpace(in.Message)
	if in.Type == "" {
		return nil, validationf("alert type is required")
	}
	if in.Message == "" {
		return nil, validationf("alert message is required")
	}
	if !in.Severity.Valid() {
		return nil, validationf("severity must be one of info, warning, error, critical")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	a, err := s.insertLocked(ctx, in)
	if err != nil {
		return nil, err
	}
	s.notify(*a)
	return a, nil
}

func (s *AlertService) insertLocked(ctx context.Context, in CreateAlertInput) (*models.Alert, error) {
	now := s.now().UTC()
	a := &models.Alert{
		Type:       in.Type,
		Severity:   in.Severity,
		Message:    in.Message,
		ResourceID: strings.TrimSpace(in.ResourceID),
		Status:     models.AlertStatusActive,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.store.Insert(ctx, a); err != nil {
		return nil, err
	}
	metrics.IncAlertCreated(a.Type)
	return a, nil
}

// ScanLicenseExpiry raises a license_expiring alert for every active license
// expiring within [now, now+horizon] that has no alert of that type yet. The
// licensing source is read before the collection lock is taken.
func (s *AlertService) ScanLicenseExpiry(ctx context.Context, now time.Time, horizon time.Duration) ([]models.Alert, error) {
	if s.licenses == nil {
		return nil, fmt.Errorf("%w: no licensing source configured", ErrDependencyUnavailable)
	}
	if horizon <= 0 {
		horizon = DefaultExpiryHorizon
	}
	expiring, err := s.licenses.ExpiringBetween(ctx, now, now.Add(horizon))
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	created := []models.Alert{}
	// Alerts inserted before a failure are kept, so they are sent too; the
	// dedup rule would stop later scans from raising them again.
	defer func() {
		for _, a := range created {
			s.notify(a)
		}
	}()
	for _, lic := range expiring {
		if err := ctx.Err(); err != nil {
			return created, err
		}
		exists, err := s.store.Exists(ctx, lic.LicenseID, models.AlertTypeLicenseExpiring)
		if err != nil {
			return created, err
		}
		if exists {
			continue
		}
		a, err := s.insertLocked(ctx, CreateAlertInput{
			Type:       models.AlertTypeLicenseExpiring,
			Severity:   expirySeverity(now, lic.ExpiresAt),
			Message:    fmt.Sprintf("License for tenant %s expires on %s", lic.TenantName, lic.ExpiresAt.UTC().Format("2006-01-02 15:04 MST")),
			ResourceID: lic.LicenseID,
		})
		if err != nil {
			return created, err
		}
		created = append(created, *a)
	}
	return created, nil
}

// expirySeverity escalates to critical inside the last day.
func expirySeverity(now, expiresAt time.Time) models.AlertSeverity {
	if expiresAt.Sub(now) <= 24*time.Hour {
		return models.AlertSeverityCritical
	}
	return models.AlertSeverityWarning
}

// UpdateStatus applies an operator acknowledgment. active -> resolved is the
// only legal transition.
func (s *AlertService) UpdateStatus(ctx context.Context, id string, status models.AlertStatus) (*models.Alert, error) {
	if !status.Valid() {
		return nil, validationf("status must be active or resolved")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	a, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if a.Status != models.AlertStatusActive || status != models.AlertStatusResolved {
		return nil, conflictf("alert cannot move from %s to %s", a.Status, status)
	}
	a.Status = status
	a.UpdatedAt = s.now().UTC()
	if err := s.store.Update(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

// Delete removes the alert regardless of its status.
func (s *AlertService) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.Delete(ctx, id)
}

// Get returns one alert.
func (s *AlertService) Get(ctx context.Context, id string) (*models.Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.store.Get(ctx, id)
}

// List returns alerts matching f, most recently created first.
func (s *AlertService) List(ctx context.Context, f AlertFilter) ([]models.Alert, error) {
	if f.Status != "" && !f.Status.Valid() {
		return nil, validationf("status must be active or resolved")
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.store.List(ctx, f)
}

func (s *AlertService) notify(a models.Alert) {
	if s.notifier == nil {
		return
	}
	go func() {
		defer func() {
			if r := recover(); r != nil {
				logger.WithFields(logrus.Fields{"alert_id": a.ID}).Errorf("alert notifier panicked: %v", r)
			}
		}()
		s.notifier.Notify(a)
	}()
}
