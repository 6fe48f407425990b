package services

import (
	"context"

	"gorm.io/gorm"

	"github.com/tillpoint/controlplane/internal/models"
)

// TenantService is the thin tenant and license pass-through the console
// needs next to its security tooling.
type TenantService struct {
	db *gorm.DB
}

func NewTenantService(db *gorm.DB) *TenantService {
	return &TenantService{db: db}
}

func (s *TenantService) List(ctx context.Context) ([]models.Tenant, error) {
	tenants := []models.Tenant{}
	if err := s.db.WithContext(ctx).Order("name asc").Find(&tenants).Error; err != nil {
		return nil, err
	}
	return tenants, nil
}

// Delete removes the tenant and its licenses in one transaction and returns
// the deleted tenant.
func (s *TenantService) Delete(ctx context.Context, id uint) (*models.Tenant, error) {
	var tenant models.Tenant
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&tenant, id).Error; err != nil {
			return dbError(err, "tenant")
		}
		if err := tx.Where("tenant_id = ?", id).Delete(&models.License{}).Error; err != nil {
			return err
		}
		return tx.Delete(&tenant).Error
	})
	if err != nil {
		return nil, err
	}
	return &tenant, nil
}

// ListLicenses returns licenses with their tenant, optionally by status.
func (s *TenantService) ListLicenses(ctx context.Context, status models.LicenseStatus) ([]models.License, error) {
	q := s.db.WithContext(ctx).Preload("Tenant").Order("expires_at asc")
	if status != "" {
		q = q.Where("status = ?", status)
	}
	licenses := []models.License{}
	if err := q.Find(&licenses).Error; err != nil {
		return nil, err
	}
	return licenses, nil
}
