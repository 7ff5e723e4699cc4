package services

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"example.com/venuehub/services/events/config"
	"example.com/venuehub/services/events/internal/cache"
	"example.com/venuehub/services/events/internal/calendar"
	"example.com/venuehub/services/events/internal/metrics"
	"example.com/venuehub/services/events/internal/models"
	"example.com/venuehub/services/events/internal/notify"
	"example.com/venuehub/services/events/internal/permissions"
	"example.com/venuehub/services/events/internal/repositories"
	"example.com/venuehub/services/events/internal/search"
	"example.com/venuehub/services/events/internal/tracing"
)

// defaultSnapshotFields are the dotted paths captured from the winning record
// when a guarded write loses a version race, so the caller can render a
// "someone else changed this" diff.
var defaultSnapshotFields = []string{
	"status", "version", "title", "startTime", "endTime", "lastModifiedBy",
}

// EventStore is the event-record persistence contract consumed by the service.
type EventStore interface {
	Create(ctx context.Context, record *models.EventRecord) error
	GetByEventID(ctx context.Context, eventID string) (*models.EventRecord, error)
	List(ctx context.Context, opts repositories.ListOptions) ([]models.EventRecord, error)
	ConditionalUpdate(ctx context.Context, eventID string, updates map[string]interface{}, opts repositories.ConditionalUpdateOptions) (*models.EventRecord, error)
	FindSyncPending(ctx context.Context, limit int) ([]models.EventRecord, error)
}

// AuditStore is the append-only audit collection contract.
type AuditStore interface {
	Record(ctx context.Context, entry *models.AuditEntry) error
	ListByEvent(ctx context.Context, eventID string, limit, offset int) ([]models.AuditEntry, error)
}

// snapshotCache is the read-through cache contract for event snapshots.
type snapshotCache interface {
	Get(ctx context.Context, key string, value interface{}) error
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	Delete(ctx context.Context, key string) error
	Enabled() bool
}

// auditIndexer mirrors audit entries and record snapshots into the search
// backend, best-effort.
type auditIndexer interface {
	IndexAuditEntry(ctx context.Context, entry *models.AuditEntry) error
	IndexEvent(ctx context.Context, record *models.EventRecord) error
}

// EventService owns the event lifecycle: it enforces legal transitions,
// delegates every status-affecting write to the conditional-update guard, and
// runs the best-effort follow-ups (audit, search indexing, calendar sync,
// notifications) after the primary write commits.
type EventService struct {
	db         *gorm.DB
	readOnlyDB *gorm.DB

	events EventStore
	audit  AuditStore
	cache  snapshotCache
	search auditIndexer

	calendar calendar.Client
	notifier notify.Dispatcher
	oracle   permissions.Oracle
	metrics  *metrics.Metrics
	tracer   tracing.Tracer

	allowSelfApproval bool
	cacheTTL          time.Duration
}

// NewEventService creates a new event lifecycle service
func NewEventService(
	db *gorm.DB,
	readOnlyDB *gorm.DB,
	redisCache *cache.RedisCache,
	elasticClient *search.ElasticClient,
	calendarClient calendar.Client,
	notifier notify.Dispatcher,
	oracle permissions.Oracle,
	metricsCollector *metrics.Metrics,
	tracer tracing.Tracer,
	workflowCfg config.WorkflowConfig,
	cacheTTL time.Duration,
) *EventService {
	return &EventService{
		db:                db,
		readOnlyDB:        readOnlyDB,
		events:            repositories.NewEventRepository(db, readOnlyDB),
		audit:             repositories.NewAuditRepository(db, readOnlyDB),
		cache:             redisCache,
		search:            elasticClient,
		calendar:          calendarClient,
		notifier:          notifier,
		oracle:            oracle,
		metrics:           metricsCollector,
		tracer:            tracer,
		allowSelfApproval: workflowCfg.AllowSelfApproval,
		cacheTTL:          cacheTTL,
	}
}

// CreateEventInput carries the payload for a new draft event.
type CreateEventInput struct {
	EventID       string
	Title         string
	Description   string
	StartTime     *time.Time
	EndTime       *time.Time
	Locations     []string
	Categories    []string
	Capacity      int
	CalendarOwner string
	CalendarID    string
}

// Create inserts a new event record in draft with a single-entry status
// history.
func (s *EventService) Create(ctx context.Context, actor models.Actor, input CreateEventInput) (*models.EventRecord, error) {
	txn := s.startTxn("create-event")
	defer s.endTxn(txn)

	if strings.TrimSpace(input.Title) == "" {
		return nil, &ValidationError{Field: "title", Reason: "title is required"}
	}

	eventID := input.EventID
	if eventID == "" {
		eventID = uuid.NewString()
	}

	record := &models.EventRecord{
		ID:             uuid.New(),
		EventID:        eventID,
		Status:         models.StatusDraft,
		Version:        1,
		StatusHistory:  models.StatusHistory{}.Append(models.StatusDraft, actor, "Created"),
		GraphSynced:    true,
		Title:          input.Title,
		Description:    input.Description,
		StartTime:      input.StartTime,
		EndTime:        input.EndTime,
		Locations:      models.StringList(input.Locations),
		Categories:     models.StringList(input.Categories),
		Capacity:       input.Capacity,
		CalendarOwner:  input.CalendarOwner,
		CalendarID:     input.CalendarID,
		CreatedBy:      actor.ID,
		CreatedByEmail: actor.Email,
	}

	if err := s.events.Create(ctx, record); err != nil {
		s.recordTxnError(txn, err)
		return nil, err
	}

	log.Info().
		Str("event_id", record.EventID).
		Str("actor", actor.ID).
		Msg("Event record created")
	s.countAction(models.ActionCreate)
	s.recordAudit(ctx, record.EventID, models.ActionCreate, actor, nil, record, nil, nil)

	return record, nil
}

// Get returns an event record by its external identifier, read through the
// snapshot cache.
func (s *EventService) Get(ctx context.Context, eventID string) (*models.EventRecord, error) {
	if s.cache != nil && s.cache.Enabled() {
		var cached models.EventRecord
		if err := s.cache.Get(ctx, cache.EventCacheKey(eventID), &cached); err == nil {
			return &cached, nil
		}
	}

	record, err := s.events.GetByEventID(ctx, eventID)
	if err != nil {
		return nil, err
	}

	if s.cache != nil && s.cache.Enabled() {
		if err := s.cache.Set(ctx, cache.EventCacheKey(eventID), record, s.cacheTTL); err != nil {
			log.Warn().Err(err).Str("event_id", eventID).Msg("Failed to cache event snapshot")
		}
	}
	return record, nil
}

// List returns event records matching the options.
func (s *EventService) List(ctx context.Context, opts repositories.ListOptions) ([]models.EventRecord, error) {
	return s.events.List(ctx, opts)
}

// AuditTrail returns the audit entries recorded for an event, newest first.
func (s *EventService) AuditTrail(ctx context.Context, eventID string, limit, offset int) ([]models.AuditEntry, error) {
	return s.audit.ListByEvent(ctx, eventID, limit, offset)
}

// invalidate drops the cached snapshot after a successful write.
func (s *EventService) invalidate(ctx context.Context, eventID string) {
	if s.cache == nil || !s.cache.Enabled() {
		return
	}
	if err := s.cache.Delete(ctx, cache.EventCacheKey(eventID)); err != nil {
		log.Warn().Err(err).Str("event_id", eventID).Msg("Failed to invalidate event cache")
	}
}

func (s *EventService) countAction(action models.AuditAction) {
	if s.metrics != nil {
		s.metrics.IncrementCounter("workflow_" + string(action))
	}
}

func (s *EventService) countConflict() {
	if s.metrics != nil {
		s.metrics.IncrementCounter("version_conflicts")
	}
}
