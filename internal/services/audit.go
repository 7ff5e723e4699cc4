package services

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"example.com/venuehub/services/events/internal/models"
)

// recordAudit writes one audit entry for a mutating action and mirrors it into
// the search backend. Both are best-effort: a failed audit write is logged and
// counted but never fails the already-committed business action.
func (s *EventService) recordAudit(
	ctx context.Context,
	eventID string,
	action models.AuditAction,
	actor models.Actor,
	previous *models.EventRecord,
	current *models.EventRecord,
	changes interface{},
	metadata map[string]interface{},
) {
	entry := &models.AuditEntry{
		ID:               uuid.New(),
		EventID:          eventID,
		Action:           action,
		PerformedBy:      actor.ID,
		PerformedByEmail: actor.Email,
		Timestamp:        time.Now().UTC(),
		PreviousState:    marshalState(previous),
		NewState:         marshalState(current),
		Changes:          marshalJSON(changes),
		Metadata:         marshalJSON(metadata),
	}

	if err := s.audit.Record(ctx, entry); err != nil {
		log.Error().Err(err).
			Str("event_id", eventID).
			Str("action", string(action)).
			Msg("Failed to write audit entry")
		if s.metrics != nil {
			s.metrics.IncrementCounter("audit_failures")
		}
		return
	}

	if s.search != nil {
		if err := s.search.IndexAuditEntry(ctx, entry); err != nil {
			log.Warn().Err(err).
				Str("event_id", eventID).
				Msg("Failed to index audit entry")
		}
		if current != nil {
			if err := s.search.IndexEvent(ctx, current); err != nil {
				log.Warn().Err(err).
					Str("event_id", eventID).
					Msg("Failed to index event snapshot")
			}
		}
	}
}

func marshalState(record *models.EventRecord) json.RawMessage {
	if record == nil {
		return nil
	}
	return marshalJSON(record)
}

func marshalJSON(value interface{}) json.RawMessage {
	if value == nil {
		return nil
	}
	raw, err := json.Marshal(value)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to marshal audit payload")
		return nil
	}
	return raw
}
