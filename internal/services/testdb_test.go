package services

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/tillpoint/controlplane/internal/models"
)

// openServiceDB returns a migrated in-memory database private to the test.
func openServiceDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_busy_timeout=5000", name)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.AdminAccount{},
		&models.AuditLog{},
		&models.Alert{},
		&models.Tenant{},
		&models.License{},
	))
	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}

// fixedClock returns a clock that advances by step on every call.
func fixedClock(start time.Time, step time.Duration) func() time.Time {
	cur := start.Add(-step)
	return func() time.Time {
		cur = cur.Add(step)
		return cur
	}
}

func createAccount(t *testing.T, db *gorm.DB, email string, role models.Role) *models.AdminAccount {
	t.Helper()
	svc := NewAccountService(db, nil)
	acct, err := svc.Create(context.Background(), CreateAccountInput{
		Email:    email,
		Name:     "Test " + string(role),
		Password: "password123",
		Role:     role,
	})
	require.NoError(t, err)
	return acct
}

func actorFor(a *models.AdminAccount) Actor {
	id := a.ID
	return Actor{ID: &id, Email: a.Email, IPAddress: "198.51.100.7", UserAgent: "go-test"}
}
