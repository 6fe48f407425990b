package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tillpoint/controlplane/internal/models"
)

func failLogin(t *testing.T, audit *AuditService, ip string, at time.Time) {
	t.Helper()
	audit.now = func() time.Time { return at }
	require.NoError(t, audit.Append(context.Background(), AuditEntry{
		ActorEmail:   "someone@example.com",
		Action:       models.AuditActionLoginFailed,
		ResourceType: models.ResourceSession,
		IPAddress:    ip,
	}))
}

func TestSecurityEvents_OnlySecurityActions(t *testing.T) {
	db := openServiceDB(t)
	audit := NewAuditService(db)
	audit.now = fixedClock(t0, time.Minute)
	svc := NewSecurityEventService(db, audit, 0, -1)
	ctx := context.Background()

	for _, a := range []models.AuditAction{
		models.AuditActionLogin,
		models.AuditActionCreate,
		models.AuditActionMFAEnabled,
		models.AuditActionDelete,
		models.AuditActionPermissionChange,
	} {
		require.NoError(t, audit.Append(ctx, AuditEntry{ActorID: uintPtr(1), Action: a, ResourceType: "admin_user"}))
	}

	page, err := svc.ListSecurityEvents(ctx, AuditFilter{})
	require.NoError(t, err)
	assert.Equal(t, int64(3), page.Total)
	for _, item := range page.Items {
		assert.True(t, item.Action.IsSecurityEvent(), item.Action)
	}
	assert.Equal(t, models.AuditActionPermissionChange, page.Items[0].Action)

	page, err = svc.ListSecurityEvents(ctx, AuditFilter{Action: models.AuditActionCreate})
	require.NoError(t, err)
	assert.Empty(t, page.Items)
	assert.Zero(t, page.Total)

	page, err = svc.ListSecurityEvents(ctx, AuditFilter{Action: models.AuditActionLogin})
	require.NoError(t, err)
	assert.Equal(t, int64(1), page.Total)

	window, threshold := svc.Defaults()
	assert.Equal(t, DefaultSuspiciousWindow, window)
	assert.Equal(t, DefaultSuspiciousThreshold, threshold)
}

func TestDetectSuspiciousOrigins_StrictlyAboveThreshold(t *testing.T) {
	db := openServiceDB(t)
	audit := NewAuditService(db)
	svc := NewSecurityEventService(db, audit, time.Hour, 5)

	for i := 0; i < 6; i++ {
		failLogin(t, audit, "203.0.113.1", t0.Add(-time.Duration(i)*time.Minute))
	}
	for i := 0; i < 5; i++ {
		failLogin(t, audit, "203.0.113.2", t0.Add(-time.Duration(i)*time.Minute))
	}

	got, err := svc.DetectSuspiciousOrigins(context.Background(), t0, time.Hour, 5)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "203.0.113.1", got[0].Origin)
	assert.Equal(t, int64(6), got[0].FailureCount)
}

func TestDetectSuspiciousOrigins_WindowBounds(t *testing.T) {
	db := openServiceDB(t)
	audit := NewAuditService(db)
	svc := NewSecurityEventService(db, audit, time.Hour, 2)

	// three inside the window, two before it, one after its end
	failLogin(t, audit, "198.51.100.4", t0.Add(-time.Hour))
	failLogin(t, audit, "198.51.100.4", t0.Add(-30*time.Minute))
	failLogin(t, audit, "198.51.100.4", t0)
	failLogin(t, audit, "198.51.100.4", t0.Add(-2*time.Hour))
	failLogin(t, audit, "198.51.100.4", t0.Add(-61*time.Minute))
	failLogin(t, audit, "198.51.100.4", t0.Add(time.Minute))

	got, err := svc.DetectSuspiciousOrigins(context.Background(), t0, time.Hour, 2)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, int64(3), got[0].FailureCount)

	got, err = svc.DetectSuspiciousOrigins(context.Background(), t0, time.Hour, 3)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestDetectSuspiciousOrigins_IgnoresOtherActionsAndSorts(t *testing.T) {
	db := openServiceDB(t)
	audit := NewAuditService(db)
	svc := NewSecurityEventService(db, audit, time.Hour, 0)
	ctx := context.Background()

	failLogin(t, audit, "10.0.0.1", t0)
	failLogin(t, audit, "10.0.0.2", t0)
	failLogin(t, audit, "10.0.0.2", t0)
	failLogin(t, audit, "", t0)
	audit.now = func() time.Time { return t0 }
	require.NoError(t, audit.Append(ctx, AuditEntry{ActorID: uintPtr(1), Action: models.AuditActionLogin, ResourceType: models.ResourceSession, IPAddress: "10.0.0.3"}))

	got, err := svc.DetectSuspiciousOrigins(ctx, t0, time.Hour, 0)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, SuspiciousOrigin{Origin: "10.0.0.2", FailureCount: 2}, got[0])
	assert.Equal(t, "", got[1].Origin)
	assert.Equal(t, "10.0.0.1", got[2].Origin)
}

func TestDetectSuspiciousOrigins_RejectsBadArguments(t *testing.T) {
	db := openServiceDB(t)
	svc := NewSecurityEventService(db, NewAuditService(db), time.Hour, 5)

	_, err := svc.DetectSuspiciousOrigins(context.Background(), t0, 0, 5)
	assert.ErrorIs(t, err, ErrValidation)
	_, err = svc.DetectSuspiciousOrigins(context.Background(), t0, time.Hour, -1)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestDetectRecent_UsesConfiguredWindow(t *testing.T) {
	db := openServiceDB(t)
	audit := NewAuditService(db)
	svc := NewSecurityEventService(db, audit, 10*time.Minute, 1)
	svc.now = func() time.Time { return t0 }

	failLogin(t, audit, "192.0.2.50", t0.Add(-5*time.Minute))
	failLogin(t, audit, "192.0.2.50", t0.Add(-6*time.Minute))
	failLogin(t, audit, "192.0.2.60", t0.Add(-20*time.Minute))
	failLogin(t, audit, "192.0.2.60", t0.Add(-21*time.Minute))

	got, err := svc.DetectRecent(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "192.0.2.50", got[0].Origin)
}
