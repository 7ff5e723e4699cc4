package repositories

import (
	"context"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gorm.io/gorm"

	"example.com/venuehub/services/events/internal/models"
)

// AuditRepository provides access to the append-only audit collection.
// Entries are inserted, never updated or deleted.
type AuditRepository struct {
	db         *gorm.DB
	readOnlyDB *gorm.DB
}

// NewAuditRepository creates a new audit repository
func NewAuditRepository(db *gorm.DB, readOnlyDB *gorm.DB) *AuditRepository {
	return &AuditRepository{
		db:         db,
		readOnlyDB: readOnlyDB,
	}
}

// Record inserts one audit entry.
func (r *AuditRepository) Record(ctx context.Context, entry *models.AuditEntry) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if err := r.db.WithContext(ctx).Create(entry).Error; err != nil {
		return errors.Wrap(err, "failed to record audit entry")
	}
	return nil
}

// ListByEvent returns an event's audit trail, newest first.
func (r *AuditRepository) ListByEvent(ctx context.Context, eventID string, limit, offset int) ([]models.AuditEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	var entries []models.AuditEntry
	err := r.readOnlyDB.WithContext(ctx).
		Where("event_id = ?", eventID).
		Order("timestamp DESC").
		Offset(offset).
		Limit(limit).
		Find(&entries).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to list audit entries")
	}
	return entries, nil
}
