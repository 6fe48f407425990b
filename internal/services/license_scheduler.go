package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/tillpoint/controlplane/internal/logger"
	"github.com/tillpoint/controlplane/internal/metrics"
)

// LicenseExpiryScheduler runs ScanLicenseExpiry on a fixed period, separate
// from request handling. Each run is bounded by timeout; a failed or
// timed-out run is logged and the next tick tries again.
type LicenseExpiryScheduler struct {
	Cron    *cron.Cron
	alerts  *AlertService
	timeout time.Duration
	horizon time.Duration
	now     func() time.Time
}

// NewLicenseExpiryScheduler registers the scan at "@every interval".
func NewLicenseExpiryScheduler(alerts *AlertService, interval, timeout, horizon time.Duration) (*LicenseExpiryScheduler, error) {
	if interval <= 0 || timeout <= 0 {
		return nil, fmt.Errorf("license scan interval and timeout must be positive")
	}
	cronLog := cron.PrintfLogger(logger.WithFields(logrus.Fields{"component": "license_scan"}))
	s := &LicenseExpiryScheduler{
		Cron: cron.New(cron.WithChain(
			cron.Recover(cronLog),
			cron.SkipIfStillRunning(cronLog),
		)),
		alerts:  alerts,
		timeout: timeout,
		horizon: horizon,
		now:     time.Now,
	}
	if _, err := s.Cron.AddFunc("@every "+interval.String(), func() {
		_ = s.RunOnce(context.Background())
	}); err != nil {
		return nil, fmt.Errorf("schedule license scan: %w", err)
	}
	return s, nil
}

// Start begins ticking in the background.
func (s *LicenseExpiryScheduler) Start() {
	s.Cron.Start()
}

// Stop halts the schedule and returns a context that is done once any
// in-flight run has finished.
func (s *LicenseExpiryScheduler) Stop() context.Context {
	return s.Cron.Stop()
}

// RunOnce performs a single bounded scan. Errors are logged and returned for
// callers that care; the cron job ignores them.
func (s *LicenseExpiryScheduler) RunOnce(parent context.Context) error {
	ctx, cancel := context.WithTimeout(parent, s.timeout)
	defer cancel()

	start := s.now()
	created, err := s.alerts.ScanLicenseExpiry(ctx, start, s.horizon)
	entry := logger.WithFields(logrus.Fields{
		"component": "license_scan",
		"created":   len(created),
		"duration":  time.Since(start).String(),
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			metrics.IncLicenseScan("timeout")
			entry.WithError(err).Warn("license expiry scan timed out; retrying next tick")
			return err
		}
		metrics.IncLicenseScan("failed")
		entry.WithError(err).Error("license expiry scan failed; retrying next tick")
		return err
	}
	metrics.IncLicenseScan("ok")
	entry.Info("license expiry scan finished")
	return nil
}
