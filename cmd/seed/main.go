package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/tillpoint/controlplane/internal/config"
	"github.com/tillpoint/controlplane/internal/database"
	"github.com/tillpoint/controlplane/internal/logger"
	"github.com/tillpoint/controlplane/internal/models"
	"github.com/tillpoint/controlplane/internal/services"
)

type demoTenant struct {
	name      string
	plan      string
	status    models.LicenseStatus
	expiresIn time.Duration
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	logger.Init(cfg.Debug, os.Stdout)
	log := logger.Log()

	db, err := database.Connect(cfg.DatabasePath)
	if err != nil {
		log.WithError(err).Fatal("connect database")
	}
	if err := database.Migrate(db); err != nil {
		log.WithError(err).Fatal("migrate database")
	}
	fmt.Println("✓ Database migrated successfully")

	// Seed tenants, one license each. Expiry dates are spread so a scan
	// right after seeding raises both warning and critical alerts.
	tenants := []demoTenant{
		{"Corner Cafe", "basic", models.LicenseStatusActive, 12 * time.Hour},
		{"Harbor Books", "pro", models.LicenseStatusActive, 5 * 24 * time.Hour},
		{"Mill Street Bakery", "pro", models.LicenseStatusActive, 90 * 24 * time.Hour},
		{"Northside Grocers", "enterprise", models.LicenseStatusSuspended, 3 * 24 * time.Hour},
		{"Quayside Deli", "basic", models.LicenseStatusExpired, -48 * time.Hour},
	}
	now := time.Now().UTC()
	for _, dt := range tenants {
		tenant := models.Tenant{UUID: uuid.NewString(), Name: dt.name, Active: dt.status != models.LicenseStatusExpired}
		result := db.Where("name = ?", dt.name).FirstOrCreate(&tenant)
		if result.Error != nil {
			log.WithError(result.Error).Errorf("Failed to seed tenant %s", dt.name)
			continue
		}
		if result.RowsAffected == 0 {
			fmt.Printf("  Tenant already exists: %s\n", dt.name)
			continue
		}
		license := models.License{
			UUID:      uuid.NewString(),
			TenantID:  tenant.ID,
			Plan:      dt.plan,
			Status:    dt.status,
			ExpiresAt: now.Add(dt.expiresIn),
		}
		if err := db.Create(&license).Error; err != nil {
			log.WithError(err).Errorf("Failed to seed license for %s", dt.name)
			continue
		}
		fmt.Printf("✓ Created tenant: %s (%s, %s, expires %s)\n", dt.name, dt.plan, dt.status, license.ExpiresAt.Format(time.RFC3339))
	}

	// Seed one account per role. The password comes from the environment so
	// demo credentials never live in the repository.
	password := os.Getenv("CP_SEED_PASSWORD")
	if password == "" {
		fmt.Println("  CP_SEED_PASSWORD not set, skipping demo accounts")
	} else {
		accounts := services.NewAccountService(db, nil)
		for _, role := range models.Roles() {
			email := fmt.Sprintf("%s@demo.tillpoint.local", role)
			_, err := accounts.Create(context.Background(), services.CreateAccountInput{
				Email:    email,
				Name:     "Demo " + string(role),
				Password: password,
				Role:     role,
			})
			switch {
			case err == nil:
				fmt.Printf("✓ Created account: %s\n", email)
			case errors.Is(err, services.ErrStateConflict):
				fmt.Printf("  Account already exists: %s\n", email)
			default:
				log.WithError(err).Errorf("Failed to seed account %s", email)
			}
		}
	}

	fmt.Println("\n✓ Database seeding completed successfully!")
}
