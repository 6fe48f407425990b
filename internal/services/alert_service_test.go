package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tillpoint/controlplane/internal/models"
)

type fakeLicenseSource struct {
	mu       sync.Mutex
	licenses []ExpiringLicense
	err      error
	block    bool
	calls    int
}

func (f *fakeLicenseSource) ExpiringBetween(ctx context.Context, from, to time.Time) ([]ExpiringLicense, error) {
	f.mu.Lock()
	f.calls++
	block, err := f.block, f.err
	f.mu.Unlock()
	if block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if err != nil {
		return nil, err
	}
	out := []ExpiringLicense{}
	for _, l := range f.licenses {
		if !l.ExpiresAt.Before(from) && !l.ExpiresAt.After(to) {
			out = append(out, l)
		}
	}
	return out, nil
}

type recordingNotifier struct {
	got chan models.Alert
}

func (r *recordingNotifier) Notify(a models.Alert) { r.got <- a }

type alertStoreCase struct {
	name  string
	store func(t *testing.T) AlertStore
}

func alertStores() []alertStoreCase {
	return []alertStoreCase{
		{"memory", func(t *testing.T) AlertStore { return NewMemoryAlertStore() }},
		{"gorm", func(t *testing.T) AlertStore { return NewGormAlertStore(openServiceDB(t)) }},
	}
}

func TestAlertService_CreateValidates(t *testing.T) {
	for _, tc := range alertStores() {
		t.Run(tc.name, func(t *testing.T) {
			svc := NewAlertService(tc.store(t), nil, nil)
			ctx := context.Background()

			_, err := svc.CreateAlert(ctx, CreateAlertInput{Severity: models.AlertSeverityInfo, Message: "m"})
			assert.ErrorIs(t, err, ErrValidation)
			_, err = svc.CreateAlert(ctx, CreateAlertInput{Type: "x", Severity: models.AlertSeverityInfo, Message: "  "})
			assert.ErrorIs(t, err, ErrValidation)
			_, err = svc.CreateAlert(ctx, CreateAlertInput{Type: "x", Severity: "fatal", Message: "m"})
			assert.ErrorIs(t, err, ErrValidation)

			list, err := svc.List(ctx, AlertFilter{})
			require.NoError(t, err)
			assert.Empty(t, list)
		})
	}
}

func TestAlertService_ManualAlertsAreNotDeduplicated(t *testing.T) {
	for _, tc := range alertStores() {
		t.Run(tc.name, func(t *testing.T) {
			svc := NewAlertService(tc.store(t), nil, nil)
			svc.now = fixedClock(t0, time.Second)
			ctx := context.Background()
			in := CreateAlertInput{Type: "suspicious_origin", Severity: models.AlertSeverityWarning, Message: "many failures", ResourceID: "203.0.113.1"}

			a1, err := svc.CreateAlert(ctx, in)
			require.NoError(t, err)
			a2, err := svc.CreateAlert(ctx, in)
			require.NoError(t, err)
			assert.NotEqual(t, a1.ID, a2.ID)
			assert.Equal(t, models.AlertStatusActive, a1.Status)

			list, err := svc.List(ctx, AlertFilter{})
			require.NoError(t, err)
			require.Len(t, list, 2)
			assert.Equal(t, a2.ID, list[0].ID)
		})
	}
}

func TestAlertService_ScanDeduplicates(t *testing.T) {
	for _, tc := range alertStores() {
		t.Run(tc.name, func(t *testing.T) {
			src := &fakeLicenseSource{licenses: []ExpiringLicense{
				{LicenseID: "1", TenantName: "Acme", ExpiresAt: t0.Add(3 * 24 * time.Hour)},
				{LicenseID: "2", TenantName: "Globex", ExpiresAt: t0.Add(12 * time.Hour)},
				{LicenseID: "3", TenantName: "Later", ExpiresAt: t0.Add(30 * 24 * time.Hour)},
			}}
			svc := NewAlertService(tc.store(t), src, nil)
			ctx := context.Background()

			created, err := svc.ScanLicenseExpiry(ctx, t0, 7*24*time.Hour)
			require.NoError(t, err)
			require.Len(t, created, 2)
			byResource := map[string]models.Alert{}
			for _, a := range created {
				byResource[a.ResourceID] = a
			}
			assert.Equal(t, models.AlertSeverityWarning, byResource["1"].Severity)
			assert.Equal(t, models.AlertSeverityCritical, byResource["2"].Severity)
			assert.Equal(t, models.AlertTypeLicenseExpiring, byResource["1"].Type)
			assert.Contains(t, byResource["1"].Message, "Acme")

			again, err := svc.ScanLicenseExpiry(ctx, t0.Add(time.Hour), 7*24*time.Hour)
			require.NoError(t, err)
			assert.Empty(t, again)

			list, err := svc.List(ctx, AlertFilter{Type: models.AlertTypeLicenseExpiring})
			require.NoError(t, err)
			assert.Len(t, list, 2)
		})
	}
}

func TestAlertService_ScanSkipsResolvedDuplicates(t *testing.T) {
	src := &fakeLicenseSource{licenses: []ExpiringLicense{
		{LicenseID: "7", TenantName: "Acme", ExpiresAt: t0.Add(48 * time.Hour)},
	}}
	svc := NewAlertService(NewMemoryAlertStore(), src, nil)
	ctx := context.Background()

	created, err := svc.ScanLicenseExpiry(ctx, t0, 0)
	require.NoError(t, err)
	require.Len(t, created, 1)
	_, err = svc.UpdateStatus(ctx, created[0].ID, models.AlertStatusResolved)
	require.NoError(t, err)

	created, err = svc.ScanLicenseExpiry(ctx, t0, 0)
	require.NoError(t, err)
	assert.Empty(t, created)
}

func TestAlertService_ConcurrentScansCreateOneAlert(t *testing.T) {
	src := &fakeLicenseSource{licenses: []ExpiringLicense{
		{LicenseID: "1", TenantName: "Acme", ExpiresAt: t0.Add(time.Hour)},
	}}
	svc := NewAlertService(NewGormAlertStore(openServiceDB(t)), src, nil)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.ScanLicenseExpiry(context.Background(), t0, time.Hour)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	list, err := svc.List(context.Background(), AlertFilter{})
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestAlertService_ScanSourceFailure(t *testing.T) {
	src := &fakeLicenseSource{err: errors.New("connection refused")}
	svc := NewAlertService(NewMemoryAlertStore(), src, nil)
	_, err := svc.ScanLicenseExpiry(context.Background(), t0, time.Hour)
	assert.Error(t, err)

	svc = NewAlertService(NewMemoryAlertStore(), nil, nil)
	_, err = svc.ScanLicenseExpiry(context.Background(), t0, time.Hour)
	assert.ErrorIs(t, err, ErrDependencyUnavailable)
}

func TestAlertService_StatusTransitions(t *testing.T) {
	for _, tc := range alertStores() {
		t.Run(tc.name, func(t *testing.T) {
			svc := NewAlertService(tc.store(t), nil, nil)
			ctx := context.Background()
			a, err := svc.CreateAlert(ctx, CreateAlertInput{Type: "manual", Severity: models.AlertSeverityError, Message: "disk"})
			require.NoError(t, err)

			_, err = svc.UpdateStatus(ctx, a.ID, models.AlertStatusActive)
			assert.ErrorIs(t, err, ErrStateConflict)
			_, err = svc.UpdateStatus(ctx, a.ID, "archived")
			assert.ErrorIs(t, err, ErrValidation)
			_, err = svc.UpdateStatus(ctx, "missing", models.AlertStatusResolved)
			assert.ErrorIs(t, err, ErrNotFound)

			resolved, err := svc.UpdateStatus(ctx, a.ID, models.AlertStatusResolved)
			require.NoError(t, err)
			assert.Equal(t, models.AlertStatusResolved, resolved.Status)

			_, err = svc.UpdateStatus(ctx, a.ID, models.AlertStatusResolved)
			assert.ErrorIs(t, err, ErrStateConflict)
			_, err = svc.UpdateStatus(ctx, a.ID, models.AlertStatusActive)
			assert.ErrorIs(t, err, ErrStateConflict)

			got, err := svc.Get(ctx, a.ID)
			require.NoError(t, err)
			assert.Equal(t, models.AlertStatusResolved, got.Status)

			active, err := svc.List(ctx, AlertFilter{Status: models.AlertStatusActive})
			require.NoError(t, err)
			assert.Empty(t, active)
			_, err = svc.List(ctx, AlertFilter{Status: "bogus"})
			assert.ErrorIs(t, err, ErrValidation)
		})
	}
}

func TestAlertService_Delete(t *testing.T) {
	for _, tc := range alertStores() {
		t.Run(tc.name, func(t *testing.T) {
			svc := NewAlertService(tc.store(t), nil, nil)
			ctx := context.Background()
			a, err := svc.CreateAlert(ctx, CreateAlertInput{Type: "manual", Severity: models.AlertSeverityInfo, Message: "m"})
			require.NoError(t, err)

			require.NoError(t, svc.Delete(ctx, a.ID))
			assert.ErrorIs(t, svc.Delete(ctx, a.ID), ErrNotFound)
			_, err = svc.Get(ctx, a.ID)
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestAlertService_NotifiesNewAlerts(t *testing.T) {
	n := &recordingNotifier{got: make(chan models.Alert, 4)}
	src := &fakeLicenseSource{licenses: []ExpiringLicense{
		{LicenseID: "5", TenantName: "Acme", ExpiresAt: t0.Add(time.Hour)},
	}}
	svc := NewAlertService(NewMemoryAlertStore(), src, n)

	created, err := svc.ScanLicenseExpiry(context.Background(), t0, time.Hour)
	require.NoError(t, err)
	require.Len(t, created, 1)

	select {
	case a := <-n.got:
		assert.Equal(t, created[0].ID, a.ID)
	case <-time.After(2 * time.Second):
		t.Fatal("notifier was not called")
	}
}

// cancelAfterInsert cancels the scan context once the first alert is stored.
type cancelAfterInsert struct {
	AlertStore
	cancel context.CancelFunc
	once   sync.Once
}

func (s *cancelAfterInsert) Insert(ctx context.Context, a *models.Alert) error {
	err := s.AlertStore.Insert(ctx, a)
	s.once.Do(s.cancel)
	return err
}

func TestAlertService_InterruptedScanStillNotifies(t *testing.T) {
	n := &recordingNotifier{got: make(chan models.Alert, 4)}
	src := &fakeLicenseSource{licenses: []ExpiringLicense{
		{LicenseID: "1", TenantName: "Acme", ExpiresAt: t0.Add(time.Hour)},
		{LicenseID: "2", TenantName: "Globex", ExpiresAt: t0.Add(2 * time.Hour)},
	}}
	ctx, cancel := context.WithCancel(context.Background())
	store := &cancelAfterInsert{AlertStore: NewMemoryAlertStore(), cancel: cancel}
	svc := NewAlertService(store, src, n)

	created, err := svc.ScanLicenseExpiry(ctx, t0, 24*time.Hour)
	assert.ErrorIs(t, err, context.Canceled)
	require.Len(t, created, 1)

	again, err := svc.ScanLicenseExpiry(context.Background(), t0, 24*time.Hour)
	require.NoError(t, err)
	require.Len(t, again, 1)
	assert.NotEqual(t, created[0].ResourceID, again[0].ResourceID)

	notified := map[string]bool{}
	for i := 0; i < 2; i++ {
		select {
		case a := <-n.got:
			notified[a.ResourceID] = true
		case <-time.After(2 * time.Second):
			t.Fatalf("only %d notifications delivered", i)
		}
	}
	assert.True(t, notified["1"])
	assert.True(t, notified["2"])
}

type panickingNotifier struct{ done chan struct{} }

func (p *panickingNotifier) Notify(models.Alert) {
	defer close(p.done)
	panic("boom")
}

func TestAlertService_NotifierPanicIsContained(t *testing.T) {
	n := &panickingNotifier{done: make(chan struct{})}
	svc := NewAlertService(NewMemoryAlertStore(), nil, n)
	_, err := svc.CreateAlert(context.Background(), CreateAlertInput{Type: "manual", Severity: models.AlertSeverityInfo, Message: "m"})
	require.NoError(t, err)

	select {
	case <-n.done:
	case <-time.After(2 * time.Second):
		t.Fatal("notifier was not called")
	}
}

func TestExpirySeverity(t *testing.T) {
	assert.Equal(t, models.AlertSeverityCritical, expirySeverity(t0, t0.Add(24*time.Hour)))
	assert.Equal(t, models.AlertSeverityWarning, expirySeverity(t0, t0.Add(25*time.Hour)))
}

func TestGormLicenseSource_ExpiringBetween(t *testing.T) {
	db := openServiceDB(t)
	acme := models.Tenant{UUID: "t-1", Name: "Acme", Active: true}
	require.NoError(t, db.Create(&acme).Error)
	lics := []models.License{
		{UUID: "l-1", TenantID: acme.ID, Plan: "pro", Status: models.LicenseStatusActive, ExpiresAt: t0.Add(2 * 24 * time.Hour)},
		{UUID: "l-2", TenantID: acme.ID, Plan: "pro", Status: models.LicenseStatusSuspended, ExpiresAt: t0.Add(24 * time.Hour)},
		{UUID: "l-3", TenantID: acme.ID, Plan: "pro", Status: models.LicenseStatusActive, ExpiresAt: t0.Add(30 * 24 * time.Hour)},
		{UUID: "l-4", TenantID: acme.ID, Plan: "pro", Status: models.LicenseStatusActive, ExpiresAt: t0.Add(time.Hour)},
	}
	for i := range lics {
		require.NoError(t, db.Create(&lics[i]).Error)
	}

	src := NewGormLicenseSource(db)
	got, err := src.ExpiringBetween(context.Background(), t0, t0.Add(7*24*time.Hour))
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, idString(lics[3].ID), got[0].LicenseID)
	assert.Equal(t, idString(lics[0].ID), got[1].LicenseID)
	assert.Equal(t, "Acme", got[0].TenantName)

	require.NoError(t, db.Migrator().DropTable(&models.License{}))
	_, err = src.ExpiringBetween(context.Background(), t0, t0.Add(time.Hour))
	assert.ErrorIs(t, err, ErrDependencyUnavailable)
}
