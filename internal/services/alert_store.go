package services

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tillpoint/controlplane/internal/models"
)

// AlertFilter narrows List. Zero values mean "any".
type AlertFilter struct {
	Status models.AlertStatus
	Type   string
}

// AlertStore persists the alert collection. Implementations must return
// ErrNotFound (wrapped) for unknown ids and list newest first.
type AlertStore interface {
	Insert(ctx context.Context, a *models.Alert) error
	Get(ctx context.Context, id string) (*models.Alert, error)
	Update(ctx context.Context, a *models.Alert) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, f AlertFilter) ([]models.Alert, error)
	Exists(ctx context.Context, resourceID, alertType string) (bool, error)
}

// GormAlertStore keeps alerts in the alerts table.
type GormAlertStore struct {
	db *gorm.DB
}

func NewGormAlertStore(db *gorm.DB) *GormAlertStore {
	return &GormAlertStore{db: db}
}

func (s *GormAlertStore) Insert(ctx context.Context, a *models.Alert) error {
	return s.db.WithContext(ctx).Create(a).Error
}

func (s *GormAlertStore) Get(ctx context.Context, id string) (*models.Alert, error) {
	var a models.Alert
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&a).Error; err != nil {
		return nil, dbError(err, "alert")
	}
	return &a, nil
}

func (s *GormAlertStore) Update(ctx context.Context, a *models.Alert) error {
	res := s.db.WithContext(ctx).Model(&models.Alert{}).Where("id = ?", a.ID).
		Updates(map[string]interface{}{"status": a.Status, "updated_at": a.UpdatedAt})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return notFoundf("alert not found")
	}
	return nil
}

func (s *GormAlertStore) Delete(ctx context.Context, id string) error {
	res := s.db.WithContext(ctx).Where("id = ?", id).Delete(&models.Alert{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return notFoundf("alert not found")
	}
	return nil
}

func (s *GormAlertStore) List(ctx context.Context, f AlertFilter) ([]models.Alert, error) {
	q := s.db.WithContext(ctx).Order("created_at desc").Order("rowid desc")
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.Type != "" {
		q = q.Where("type = ?", f.Type)
	}
	alerts := []models.Alert{}
	if err := q.Find(&alerts).Error; err != nil {
		return nil, err
	}
	return alerts, nil
}

func (s *GormAlertStore) Exists(ctx context.Context, resourceID, alertType string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.Alert{}).
		Where("resource_id = ? AND type = ?", resourceID, alertType).
		Count(&count).Error
	return count > 0, err
}

// MemoryAlertStore is a process-local alert collection.
type MemoryAlertStore struct {
	mu     sync.RWMutex
	alerts map[string]memoryAlert
	seq    uint64
}

type memoryAlert struct {
	alert models.Alert
	seq   uint64
}

func NewMemoryAlertStore() *MemoryAlertStore {
	return &MemoryAlertStore{alerts: make(map[string]memoryAlert)}
}

func (s *MemoryAlertStore) Insert(_ context.Context, a *models.Alert) error {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.alerts[a.ID]; dup {
		return conflictf("alert %s already exists", a.ID)
	}
	s.seq++
	s.alerts[a.ID] = memoryAlert{alert: *a, seq: s.seq}
	return nil
}

func (s *MemoryAlertStore) Get(_ context.Context, id string) (*models.Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.alerts[id]
	if !ok {
		return nil, notFoundf("alert not found")
	}
	a := m.alert
	return &a, nil
}

func (s *MemoryAlertStore) Update(_ context.Context, a *models.Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.alerts[a.ID]
	if !ok {
		return notFoundf("alert not found")
	}
	m.alert.Status = a.Status
	m.alert.UpdatedAt = a.UpdatedAt
	s.alerts[a.ID] = m
	return nil
}

func (s *MemoryAlertStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.alerts[id]; !ok {
		return notFoundf("alert not found")
	}
	delete(s.alerts, id)
	return nil
}

func (s *MemoryAlertStore) List(_ context.Context, f AlertFilter) ([]models.Alert, error) {
	s.mu.RLock()
	matched := make([]memoryAlert, 0, len(s.alerts))
	for _, m := range s.alerts {
		if f.Status != "" && m.alert.Status != f.Status {
			continue
		}
		if f.Type != "" && m.alert.Type != f.Type {
			continue
		}
		matched = append(matched, m)
	}
	s.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].alert.CreatedAt.Equal(matched[j].alert.CreatedAt) {
			return matched[i].alert.CreatedAt.After(matched[j].alert.CreatedAt)
		}
		return matched[i].seq > matched[j].seq
	})
	out := make([]models.Alert, len(matched))
	for i, m := range matched {
		out[i] = m.alert
	}
	return out, nil
}

func (s *MemoryAlertStore) Exists(_ context.Context, resourceID, alertType string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, m := range s.alerts {
		if m.alert.ResourceID == resourceID && m.alert.Type == alertType {
			return true, nil
		}
	}
	return false, nil
}
