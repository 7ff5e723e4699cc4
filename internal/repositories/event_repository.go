package repositories

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"example.com/venuehub/services/events/internal/models"
)

// EventRepository provides access to event records. All status-affecting
// writes go through ConditionalUpdate so that concurrent mutations are
// serialized by the version token instead of read-modify-write races.
type EventRepository struct {
	db         *gorm.DB // Write database
	readOnlyDB *gorm.DB // Read-only database
}

// NewEventRepository creates a new event repository
func NewEventRepository(db *gorm.DB, readOnlyDB *gorm.DB) *EventRepository {
	return &EventRepository{
		db:         db,
		readOnlyDB: readOnlyDB,
	}
}

// ConditionalUpdateOptions controls the optimistic-concurrency guard.
type ConditionalUpdateOptions struct {
	// ExpectedVersion, when set, makes the write conditional on the stored
	// version. A nil value skips version checking (back-compat escape hatch);
	// the guard still bumps the version and logs the unguarded write.
	ExpectedVersion *int64

	// ExpectedStatus, when set, additionally requires the stored status to
	// match at write time.
	ExpectedStatus *models.EventStatus

	// ModifiedBy, when non-empty, is written to last_modified_by.
	ModifiedBy string

	// SnapshotFields lists dotted JSON paths to read from the current record
	// when the update loses a version race, for UI diffing.
	SnapshotFields []string

	// Action names the operation for logging.
	Action string
}

// ConditionalUpdate atomically applies updates to the record identified by
// eventID, but only if the stored (version, status) still matches the caller's
// expectation. The match and the write are a single filter-matched UPDATE, not
// a read-then-write. On success the version is bumped exactly once and
// last_modified_date_time is refreshed; the post-update record is returned.
//
// On no-match it distinguishes a missing record (ErrNotFound) from a record
// whose version or status moved (*VersionConflictError carrying the current
// state).
func (r *EventRepository) ConditionalUpdate(
	ctx context.Context,
	eventID string,
	updates map[string]interface{},
	opts ConditionalUpdateOptions,
) (*models.EventRecord, error) {
	merged := make(map[string]interface{}, len(updates)+3)
	for k, v := range updates {
		merged[k] = v
	}

	// The guard owns the version column. Caller-supplied increment expressions
	// on other columns pass through untouched; a caller-supplied version value
	// is replaced by the guard's own increment.
	merged["version"] = gorm.Expr("version + 1")
	merged["last_modified_date_time"] = time.Now().UTC()
	if opts.ModifiedBy != "" {
		merged["last_modified_by"] = opts.ModifiedBy
	}

	tx := r.db.WithContext(ctx).
		Model(&models.EventRecord{}).
		Where("event_id = ?", eventID)

	if opts.ExpectedVersion != nil {
		tx = tx.Where("version = ?", *opts.ExpectedVersion)
	} else {
		log.Warn().
			Str("event_id", eventID).
			Str("action", opts.Action).
			Msg("Unguarded conditional update: no expected version supplied")
	}
	if opts.ExpectedStatus != nil {
		tx = tx.Where("status = ?", *opts.ExpectedStatus)
	}

	result := tx.Updates(merged)
	if result.Error != nil {
		return nil, errors.Wrap(result.Error, "failed to apply conditional update")
	}

	if result.RowsAffected == 0 {
		return nil, r.classifyNoMatch(ctx, eventID, opts)
	}

	var updated models.EventRecord
	if err := r.db.WithContext(ctx).Where("event_id = ?", eventID).First(&updated).Error; err != nil {
		return nil, errors.Wrap(err, "failed to reload record after conditional update")
	}
	return &updated, nil
}

// classifyNoMatch decides whether a zero-row update means the record is gone
// or that somebody else won the race, and in the latter case captures the
// winning state.
func (r *EventRepository) classifyNoMatch(ctx context.Context, eventID string, opts ConditionalUpdateOptions) error {
	var current models.EventRecord
	err := r.db.WithContext(ctx).Where("event_id = ?", eventID).First(&current).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return errors.Wrapf(ErrNotFound, "event %s", eventID)
		}
		return errors.Wrap(err, "failed to inspect record after conditional update miss")
	}

	conflict := &VersionConflictError{
		EventID:        eventID,
		CurrentVersion: current.Version,
		CurrentStatus:  current.Status,
	}
	if len(opts.SnapshotFields) > 0 {
		conflict.Snapshot = snapshotFields(&current, opts.SnapshotFields)
	}
	return conflict
}

// snapshotFields resolves dotted paths against the JSON rendering of the
// record. Missing paths are tolerated and simply omitted.
func snapshotFields(rec *models.EventRecord, paths []string) map[string]interface{} {
	raw, err := json.Marshal(rec)
	if err != nil {
		log.Error().Err(err).Str("event_id", rec.EventID).Msg("Failed to marshal record for conflict snapshot")
		return nil
	}
	var doc map[string]interface{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil
	}

	out := make(map[string]interface{}, len(paths))
	for _, path := range paths {
		if value, ok := resolvePath(doc, path); ok {
			out[path] = value
		}
	}
	return out
}

// resolvePath walks a dotted path through nested JSON objects.
func resolvePath(doc map[string]interface{}, path string) (interface{}, bool) {
	parts := strings.Split(path, ".")
	var current interface{} = doc
	for _, part := range parts {
		obj, ok := current.(map[string]interface{})
		if !ok {
			return nil, false
		}
		current, ok = obj[part]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

// Create inserts a new event record.
func (r *EventRepository) Create(ctx context.Context, record *models.EventRecord) error {
	if err := r.db.WithContext(ctx).Create(record).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return errors.Wrapf(ErrDuplicateKey, "event %s", record.EventID)
		}
		return errors.Wrap(err, "failed to create event record")
	}
	return nil
}

// GetByEventID gets an event record by its external-facing identifier.
func (r *EventRepository) GetByEventID(ctx context.Context, eventID string) (*models.EventRecord, error) {
	var record models.EventRecord
	// Use read-only DB for reads
	err := r.readOnlyDB.WithContext(ctx).Where("event_id = ?", eventID).First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.Wrapf(ErrNotFound, "event %s", eventID)
		}
		return nil, errors.Wrap(err, "failed to get event record")
	}
	return &record, nil
}

// ListOptions filters and pages event listings.
type ListOptions struct {
	Status         *models.EventStatus
	IncludeDeleted bool
	CreatedBy      string
	Limit          int
	Offset         int
}

// List returns event records sorted by creation time, newest first.
func (r *EventRepository) List(ctx context.Context, opts ListOptions) ([]models.EventRecord, error) {
	tx := r.readOnlyDB.WithContext(ctx).Model(&models.EventRecord{})

	if opts.Status != nil {
		tx = tx.Where("status = ?", *opts.Status)
	} else if !opts.IncludeDeleted {
		tx = tx.Where("is_deleted = ?", false)
	}
	if opts.CreatedBy != "" {
		tx = tx.Where("created_by = ?", opts.CreatedBy)
	}
	if opts.Limit <= 0 {
		opts.Limit = 50
	}

	var records []models.EventRecord
	err := tx.Order("created_at DESC").
		Offset(opts.Offset).
		Limit(opts.Limit).
		Find(&records).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to list event records")
	}
	return records, nil
}

// FindSyncPending returns records whose last externally-relevant change did
// not reach the calendar service, for the worker's retry pass. This includes
// records whose very first push failed and so carry no sync metadata yet.
func (r *EventRepository) FindSyncPending(ctx context.Context, limit int) ([]models.EventRecord, error) {
	var records []models.EventRecord
	err := r.readOnlyDB.WithContext(ctx).
		Where("graph_synced = ? AND is_deleted = ?", false, false).
		Order("updated_at ASC").
		Limit(limit).
		Find(&records).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to find sync-pending records")
	}
	return records, nil
}
