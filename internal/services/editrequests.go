package services

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"example.com/venuehub/services/events/internal/models"
	"example.com/venuehub/services/events/internal/permissions"
)

// RequestEdit attaches a proposed-change envelope to a published event. Only
// the record's owner may request an edit, only one envelope may be pending at
// a time, and both the changes and the reason are mandatory.
func (s *EventService) RequestEdit(ctx context.Context, eventID string, actor models.Actor, changes models.ChangeSet, reason string, expectedVersion int64) (*models.EventRecord, error) {
	txn := s.startTxn("request-edit")
	defer s.endTxn(txn)

	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, &ValidationError{Field: "reason", Reason: "an edit reason is required"}
	}
	if changes.IsEmpty() {
		return nil, &ValidationError{Field: "requestedChanges", Reason: "at least one change is required"}
	}

	record, err := s.events.GetByEventID(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if record.Status != models.StatusPublished {
		return nil, &InvalidTransitionError{Action: "request-edit", From: record.Status}
	}
	if record.PendingEditRequest != nil {
		return nil, &ValidationError{Field: "pendingEditRequest", Reason: "an edit request is already pending"}
	}
	if !s.oracle.Owns(actor, record) {
		return nil, &PermissionDeniedError{Actor: actor.ID, Action: "request an edit"}
	}

	envelope := models.EditRequest{
		RequestedAt:      time.Now().UTC(),
		RequestedBy:      actor.ID,
		RequestedByEmail: actor.Email,
		RequestedChanges: changes,
		Reason:           reason,
		Status:           models.EditRequestPending,
	}

	updated, err := s.applyTransition(ctx, record, actor, models.ActionRequestEdit, expectedVersion, models.StatusPublished, map[string]interface{}{
		"pending_edit_request": envelope,
	})
	if err != nil {
		s.recordTxnError(txn, err)
		return nil, err
	}

	s.recordAudit(ctx, eventID, models.ActionRequestEdit, actor, record, updated, changes, map[string]interface{}{"reason": reason})
	return updated, nil
}

// ApproveEdit applies a pending edit request to a published event. The
// requester's proposed changes are merged with the approver's overrides
// (approver wins per field), the merged result is written under the guard with
// the envelope cleared in the same atomic update, and key-field changes are
// synced externally and notified.
func (s *EventService) ApproveEdit(ctx context.Context, eventID string, actor models.Actor, overrides models.ChangeSet, expectedVersion int64) (*models.EventRecord, error) {
	txn := s.startTxn("approve-edit")
	defer s.endTxn(txn)

	if !s.oracle.HasCapability(actor, permissions.CapabilityApprove) {
		return nil, &PermissionDeniedError{Actor: actor.ID, Action: "approve an edit"}
	}

	record, err := s.events.GetByEventID(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if record.Status != models.StatusPublished {
		return nil, &InvalidTransitionError{Action: "approve-edit", From: record.Status}
	}
	if record.PendingEditRequest == nil {
		return nil, &InvalidTransitionError{Action: "approve-edit", From: record.Status}
	}

	merged := record.PendingEditRequest.RequestedChanges.Merge(overrides)
	diff := models.KeyFieldDiff(record, merged)
	noop := merged.NoOpAgainst(record)

	updates := merged.Updates()
	updates["pending_edit_request"] = nil

	updated, err := s.applyTransition(ctx, record, actor, models.ActionApproveEdit, expectedVersion, models.StatusPublished, updates)
	if err != nil {
		s.recordTxnError(txn, err)
		return nil, err
	}

	// The envelope is gone from the record; keep its approved terminal form in
	// the audit trail.
	approved := *record.PendingEditRequest
	approved.Status = models.EditRequestApproved
	s.recordAudit(ctx, eventID, models.ActionApproveEdit, actor, record, updated, merged, map[string]interface{}{
		"editRequest": approved,
		"overrides":   overrides,
	})

	if !noop {
		updated = s.syncUpdate(ctx, updated, merged, actor)
		s.notifyKeyFieldChanges(ctx, updated, diff)
	}
	return updated, nil
}

// RejectEdit discards a pending edit request without touching the published
// fields. A reason is mandatory.
func (s *EventService) RejectEdit(ctx context.Context, eventID string, actor models.Actor, reason string, expectedVersion int64) (*models.EventRecord, error) {
	txn := s.startTxn("reject-edit")
	defer s.endTxn(txn)

	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, &ValidationError{Field: "reason", Reason: "a rejection reason is required"}
	}
	if !s.oracle.HasCapability(actor, permissions.CapabilityReject) {
		return nil, &PermissionDeniedError{Actor: actor.ID, Action: "reject an edit"}
	}

	record, err := s.events.GetByEventID(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if record.Status != models.StatusPublished || record.PendingEditRequest == nil {
		return nil, &InvalidTransitionError{Action: "reject-edit", From: record.Status}
	}

	updated, err := s.applyTransition(ctx, record, actor, models.ActionRejectEdit, expectedVersion, models.StatusPublished, map[string]interface{}{
		"pending_edit_request": nil,
	})
	if err != nil {
		s.recordTxnError(txn, err)
		return nil, err
	}

	rejected := *record.PendingEditRequest
	rejected.Status = models.EditRequestRejected
	s.recordAudit(ctx, eventID, models.ActionRejectEdit, actor, record, updated, nil, map[string]interface{}{
		"editRequest": rejected,
		"reason":      reason,
	})
	return updated, nil
}

// notifyKeyFieldChanges dispatches a change notification when key fields
// actually changed. An empty diff means no notification at all.
func (s *EventService) notifyKeyFieldChanges(ctx context.Context, record *models.EventRecord, diff []models.FieldDiff) {
	if len(diff) == 0 || s.notifier == nil {
		return
	}
	recipient := record.CreatedByEmail
	if recipient == "" {
		return
	}
	if err := s.notifier.SendChangeNotification(ctx, recipient, record.Title, diff); err != nil {
		log.Warn().Err(err).Str("event_id", record.EventID).Msg("Failed to dispatch change notification")
		if s.metrics != nil {
			s.metrics.IncrementCounter("notification_failures")
		}
	}
}
