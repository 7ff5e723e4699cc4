package services

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"example.com/venuehub/services/events/internal/calendar"
	"example.com/venuehub/services/events/internal/models"
	"example.com/venuehub/services/events/internal/repositories"
)

// shouldSync gates external pushes for updates: the record must have been
// synced before (external id present), at least one changed field must be
// externally relevant, and there must be a way to authenticate the call (a
// calendar owner for the app-only path or a delegated token from the caller).
// A record failing the gate is skipped silently; that is not an error.
func (s *EventService) shouldSync(record *models.EventRecord, changes models.ChangeSet, actor models.Actor) bool {
	if record.ExternalSync == nil || record.ExternalSync.ExternalID == "" {
		return false
	}
	if !changes.HasSyncableField() {
		return false
	}
	return record.CalendarOwner != "" || actor.DelegatedToken != ""
}

// syncCreate pushes a freshly published record to the external calendar and
// merges the returned correlation fields back under the guard, scoped to sync
// metadata only. Failure never touches the committed publish; the record is
// marked graphSynced=false and left for the worker to retry on the next
// update.
func (s *EventService) syncCreate(ctx context.Context, record *models.EventRecord, actor models.Actor) *models.EventRecord {
	if record.CalendarOwner == "" && actor.DelegatedToken == "" {
		return record
	}
	if record.ExternalSync != nil && record.ExternalSync.ExternalID != "" {
		// Already mirrored once; treat as an update of every syncable field.
		return s.syncUpdate(ctx, record, fullChangeSet(record), actor)
	}

	result, err := s.calendar.CreateEvent(ctx, syncOwner(record, actor), record.CalendarID, eventData(record))
	if err != nil {
		return s.markSyncFailed(ctx, record, err)
	}

	sync := models.ExternalSync{
		ExternalID:       result.ID,
		CorrelationID:    result.ChangeKey,
		WebLink:          result.WebLink,
		CalendarOwner:    record.CalendarOwner,
		CalendarID:       record.CalendarID,
		LastSyncedAt:     time.Now().UTC(),
		LastSyncedFields: fieldNames(fullChangeSet(record).Fields()),
	}
	return s.mergeSyncResult(ctx, record, sync)
}

// syncUpdate pushes changed fields of an already-mirrored record.
func (s *EventService) syncUpdate(ctx context.Context, record *models.EventRecord, changes models.ChangeSet, actor models.Actor) *models.EventRecord {
	if !s.shouldSync(record, changes, actor) {
		return record
	}

	result, err := s.calendar.UpdateEvent(ctx, syncOwner(record, actor), record.CalendarID, record.ExternalSync.ExternalID, eventData(record))
	if err != nil {
		return s.markSyncFailed(ctx, record, err)
	}

	sync := *record.ExternalSync
	if result.ID != "" {
		sync.ExternalID = result.ID
	}
	sync.CorrelationID = result.ChangeKey
	if result.WebLink != "" {
		sync.WebLink = result.WebLink
	}
	sync.LastSyncedAt = time.Now().UTC()
	sync.LastSyncedFields = fieldNames(changes.Fields())
	return s.mergeSyncResult(ctx, record, sync)
}

// RetrySyncPending is the worker entry point: it re-attempts the external push
// for records whose last sync failed.
func (s *EventService) RetrySyncPending(ctx context.Context, batch int) error {
	records, err := s.events.FindSyncPending(ctx, batch)
	if err != nil {
		return err
	}
	for i := range records {
		record := &records[i]
		if record.CalendarOwner == "" {
			// Delegated-token syncs cannot be retried offline.
			continue
		}
		log.Info().Str("event_id", record.EventID).Msg("Retrying external calendar sync")
		if record.ExternalSync == nil || record.ExternalSync.ExternalID == "" {
			// The first push never landed; this is still a create.
			s.syncCreate(ctx, record, models.Actor{ID: "sync-worker"})
		} else {
			s.syncUpdate(ctx, record, fullChangeSet(record), models.Actor{ID: "sync-worker"})
		}
	}
	return nil
}

// mergeSyncResult writes the sync metadata back in a second guarded update.
// The scope is sync fields only; domain fields are never touched here.
func (s *EventService) mergeSyncResult(ctx context.Context, record *models.EventRecord, sync models.ExternalSync) *models.EventRecord {
	expected := record.Version
	updated, err := s.events.ConditionalUpdate(ctx, record.EventID, map[string]interface{}{
		"external_sync": sync,
		"graph_synced":  true,
	}, repositories.ConditionalUpdateOptions{
		ExpectedVersion: &expected,
		Action:          "sync-merge",
	})
	if err != nil {
		// The push itself succeeded; losing the metadata merge is tolerable
		// and will be reconciled on the next sync.
		log.Warn().Err(err).Str("event_id", record.EventID).Msg("Failed to merge sync metadata back into record")
		return record
	}
	s.invalidate(ctx, record.EventID)
	return updated
}

// markSyncFailed records the soft failure: the primary write stands, the
// record is flagged for retry, and the caller sees graphSynced=false.
func (s *EventService) markSyncFailed(ctx context.Context, record *models.EventRecord, cause error) *models.EventRecord {
	log.Warn().Err(cause).Str("event_id", record.EventID).Msg("External calendar sync failed")
	s.countSyncFailure()

	expected := record.Version
	updated, err := s.events.ConditionalUpdate(ctx, record.EventID, map[string]interface{}{
		"graph_synced": false,
	}, repositories.ConditionalUpdateOptions{
		ExpectedVersion: &expected,
		Action:          "sync-flag",
	})
	if err != nil {
		log.Warn().Err(err).Str("event_id", record.EventID).Msg("Failed to flag record for sync retry")
		record.GraphSynced = false
		return record
	}
	s.invalidate(ctx, record.EventID)
	return updated
}

// syncOwner resolves the calendar a push targets: the configured owner for the
// app-only path, or the acting user's own calendar on the delegated-token path.
func syncOwner(record *models.EventRecord, actor models.Actor) string {
	if record.CalendarOwner != "" {
		return record.CalendarOwner
	}
	return actor.Email
}

func (s *EventService) countSyncFailure() {
	if s.metrics != nil {
		s.metrics.IncrementCounter("sync_failures")
	}
}

// eventData projects the record onto the external calendar payload.
func eventData(record *models.EventRecord) calendar.EventData {
	return calendar.EventData{
		Subject:    record.Title,
		Body:       record.Description,
		Start:      record.StartTime,
		End:        record.EndTime,
		Locations:  record.Locations,
		Categories: record.Categories,
	}
}

// fullChangeSet renders the record's current syncable fields as a change set,
// for create-style pushes and worker retries.
func fullChangeSet(record *models.EventRecord) models.ChangeSet {
	title := record.Title
	description := record.Description
	locations := record.Locations
	categories := record.Categories
	cs := models.ChangeSet{
		Title:       &title,
		Description: &description,
		Locations:   &locations,
		Categories:  &categories,
	}
	if record.StartTime != nil {
		t := *record.StartTime
		cs.StartTime = &t
	}
	if record.EndTime != nil {
		t := *record.EndTime
		cs.EndTime = &t
	}
	return cs
}

func fieldNames(fields []models.Field) []string {
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		out = append(out, string(f))
	}
	return out
}
