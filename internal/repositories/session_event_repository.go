package repositories

import (
	"context"
	"math"

	"github.com/samber/oops"
	"gorm.io/gorm"

	"github.com/anonto42/vidtube/backend/internal/models"
)

// SessionEventRepository defines the interface for the session audit trail
type SessionEventRepository interface {
	RecordSessionEvent(ctx context.Context, event *models.SessionEvent) error
	ListByIdentity(ctx context.Context, identityID string, page, limit int) ([]models.SessionEvent, int64, error)
}

type postgresSessionEventRepository struct {
	db *gorm.DB
}

// NewPostgresSessionEventRepository creates the PostgreSQL-backed audit trail
func NewPostgresSessionEventRepository(db *gorm.DB) SessionEventRepository {
	return &postgresSessionEventRepository{db: db}
}

func (r *postgresSessionEventRepository) RecordSessionEvent(ctx context.Context, event *models.SessionEvent) error {
	if err := r.db.WithContext(ctx).Create(event).Error; err != nil {
		return oops.In("repository").Code("STORE_FAILURE").
			With("op", "session_events.insert").
			With("type", string(event.Type)).
			Wrap(err)
	}
	return nil
}

func (r *postgresSessionEventRepository) ListByIdentity(ctx context.Context, identityID string, page, limit int) ([]models.SessionEvent, int64, error) {
	var events []models.SessionEvent
	var total int64

	q := r.db.WithContext(ctx).Model(&models.SessionEvent{}).Where("identity_id = ?", identityID)
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, oops.In("repository").With("op", "session_events.count").Wrap(err)
	}

	if page < 1 {
		page = 1
	}
	if limit < 1 || page-1 > math.MaxInt/limit {
		return []models.SessionEvent{}, total, nil
	}
	offset := (page - 1) * limit
	err := r.db.WithContext(ctx).Where("identity_id = ?", identityID).
		Order("created_at DESC").
		Offset(offset).Limit(limit).
		Find(&events).Error
	if err != nil {
		return nil, 0, oops.In("repository").With("op", "session_events.list").Wrap(err)
	}
	return events, total, nil
}
