package services

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/tillpoint/controlplane/internal/logger"
	"github.com/tillpoint/controlplane/internal/metrics"
	"github.com/tillpoint/controlplane/internal/models"
	"github.com/tillpoint/controlplane/internal/util"
)

const (
	defaultPageLimit   = 20
	maxPageLimit       = 100
	maxUserAgentLength = 512
)

// Actor identifies who performed an action and from where.
type Actor struct {
	ID        *uint
	Email     string
	IPAddress string
	UserAgent string
}

// Entry builds an audit entry attributed to the actor.
func (a Actor) Entry(action models.AuditAction, resourceType, resourceID string) AuditEntry {
	return AuditEntry{
		ActorID:      a.ID,
		ActorEmail:   a.Email,
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		IPAddress:    a.IPAddress,
		UserAgent:    a.UserAgent,
	}
}

// AuditEntry is the input to Append.
type AuditEntry struct {
	ActorID      *uint
	ActorEmail   string
	Action       models.AuditAction
	ResourceType string
	ResourceID   string
	Details      string
	Reason       string
	IPAddress    string
	UserAgent    string
}

// WithDetails returns a copy of e carrying v encoded as JSON.
func (e AuditEntry) WithDetails(v interface{}) AuditEntry {
	if v == nil {
		return e
	}
	b, err := json.Marshal(v)
	if err != nil {
		e.Details = util.SanitizeForLog(err.Error())
		return e
	}
	e.Details = string(b)
	return e
}

// WithReason returns a copy of e with a human-entered reason.
func (e AuditEntry) WithReason(reason string) AuditEntry {
	e.Reason = strings.TrimSpace(reason)
	return e
}

// AuditFilter narrows a trail query. Zero values mean "any".
type AuditFilter struct {
	ActorID      *uint
	Action       models.AuditAction
	ResourceType string
	ResourceID   string
	From         *time.Time
	To           *time.Time
	Page         int
	Limit        int
}

// AuditPage is one page of a trail query, newest entry first.
type AuditPage struct {
	Items []models.AuditLog `json:"items"`
	Total int64             `json:"total"`
	Page  int               `json:"page"`
	Limit int               `json:"limit"`
}

// AuditService appends to and reads the append-only audit trail.
type AuditService struct {
	db  *gorm.DB
	now func() time.Time
}

// NewAuditService returns an AuditService writing to db.
func NewAuditService(db *gorm.DB) *AuditService {
	return &AuditService{db: db, now: time.Now}
}

// Append validates and writes one entry. The entry is stamped with a fresh
// UUID and the current UTC time.
func (s *AuditService) Append(ctx context.Context, e AuditEntry) error {
	if !e.Action.Valid() {
		return validationf("unknown audit action %q", e.Action)
	}
	if strings.TrimSpace(e.ResourceType) == "" {
		return validationf("audit resource type is required")
	}
	if e.ActorID == nil && e.Action != models.AuditActionLoginFailed {
		return validationf("audit actor is required for %s", e.Action)
	}

	row := models.AuditLog{
		UUID:         uuid.NewString(),
		ActorID:      e.ActorID,
		ActorEmail:   e.ActorEmail,
		Action:       e.Action,
		ResourceType: e.ResourceType,
		ResourceID:   e.ResourceID,
		Details:      e.Details,
		Reason:       e.Reason,
		IPAddress:    e.IPAddress,
		UserAgent:    util.Truncate(e.UserAgent, maxUserAgentLength),
		CreatedAt:    s.now().UTC(),
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return err
	}
	metrics.IncAuditAppend(string(e.Action))
	return nil
}

// Record appends e and swallows any failure. The business effect that
// triggered the entry has already committed, so a lost entry is only logged.
// The write is detached from ctx cancellation so a client hanging up after
// the effect still leaves a trail.
func (s *AuditService) Record(ctx context.Context, e AuditEntry) {
	if err := s.Append(context.WithoutCancel(ctx), e); err != nil {
		metrics.IncAuditAppendFailure()
		fields := logrus.Fields{
			"action":        e.Action,
			"resource_type": util.SanitizeForLog(e.ResourceType),
			"resource_id":   util.SanitizeForLog(e.ResourceID),
		}
		if e.ActorID != nil {
			fields["actor_id"] = *e.ActorID
		}
		logger.WithFields(fields).WithError(err).Error("failed to write audit entry")
	}
}

// Query returns a page of entries matching f, newest first. Entries with equal
// timestamps come back in reverse insertion order.
func (s *AuditService) Query(ctx context.Context, f AuditFilter) (*AuditPage, error) {
	return s.query(ctx, f, nil)
}

// query runs f, additionally restricted to the given actions when restrict is
// non-nil.
func (s *AuditService) query(ctx context.Context, f AuditFilter, restrict []models.AuditAction) (*AuditPage, error) {
	if f.From != nil && f.To != nil && f.From.After(*f.To) {
		return nil, validationf("time range start is after its end")
	}
	page, limit := normalizePage(f.Page, f.Limit)

	q := s.db.WithContext(ctx).Model(&models.AuditLog{})
	if f.ActorID != nil {
		q = q.Where("actor_id = ?", *f.ActorID)
	}
	if f.Action != "" {
		q = q.Where("action = ?", f.Action)
	}
	if restrict != nil {
		q = q.Where("action IN ?", restrict)
	}
	if f.ResourceType != "" {
		q = q.Where("resource_type = ?", f.ResourceType)
	}
	if f.ResourceID != "" {
		q = q.Where("resource_id = ?", f.ResourceID)
	}
	if f.From != nil {
		q = q.Where("created_at >= ?", f.From.UTC())
	}
	if f.To != nil {
		q = q.Where("created_at <= ?", f.To.UTC())
	}

	q = q.Session(&gorm.Session{})
	result := &AuditPage{Items: []models.AuditLog{}, Page: page, Limit: limit}
	if err := q.Count(&result.Total).Error; err != nil {
		return nil, err
	}
	if err := q.Order("created_at desc").Order("id desc").
		Offset((page - 1) * limit).Limit(limit).
		Find(&result.Items).Error; err != nil {
		return nil, err
	}
	return result, nil
}

func normalizePage(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = defaultPageLimit
	}
	if limit > maxPageLimit {
		limit = maxPageLimit
	}
	return page, limit
}
