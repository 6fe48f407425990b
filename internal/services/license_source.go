package services

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/tillpoint/controlplane/internal/models"
)

// ExpiringLicense is one active license about to lapse.
type ExpiringLicense struct {
	LicenseID  string
	TenantName string
	ExpiresAt  time.Time
}

// LicenseSource answers which active licenses expire in a date range.
type LicenseSource interface {
	ExpiringBetween(ctx context.Context, from, to time.Time) ([]ExpiringLicense, error)
}

// GormLicenseSource reads the licenses and tenants tables.
type GormLicenseSource struct {
	db *gorm.DB
}

func NewGormLicenseSource(db *gorm.DB) *GormLicenseSource {
	return &GormLicenseSource{db: db}
}

type expiringRow struct {
	ID         uint
	TenantName string
	ExpiresAt  time.Time
}

// ExpiringBetween returns active licenses with expires_at in [from, to],
// soonest first. Any storage error is reported as ErrDependencyUnavailable.
func (s *GormLicenseSource) ExpiringBetween(ctx context.Context, from, to time.Time) ([]ExpiringLicense, error) {
	var rows []expiringRow
	err := s.db.WithContext(ctx).Model(&models.License{}).
		Select("licenses.id AS id, tenants.name AS tenant_name, licenses.expires_at AS expires_at").
		Joins("JOIN tenants ON tenants.id = licenses.tenant_id").
		Where("licenses.status = ?", models.LicenseStatusActive).
		Where("licenses.expires_at >= ? AND licenses.expires_at <= ?", from.UTC(), to.UTC()).
		Order("licenses.expires_at asc").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("%w: query expiring licenses: %v", ErrDependencyUnavailable, err)
	}

	out := make([]ExpiringLicense, 0, len(rows))
	for _, r := range rows {
		out = append(out, ExpiringLicense{
			LicenseID:  idString(r.ID),
			TenantName: r.TenantName,
			ExpiresAt:  r.ExpiresAt,
		})
	}
	return out, nil
}
