package services

import (
	"context"
	"strings"

	"github.com/rs/zerolog/log"

	"example.com/venuehub/services/events/internal/models"
	"example.com/venuehub/services/events/internal/permissions"
	"example.com/venuehub/services/events/internal/repositories"
)

// Submit moves a draft event into review.
func (s *EventService) Submit(ctx context.Context, eventID string, actor models.Actor, expectedVersion int64) (*models.EventRecord, error) {
	txn := s.startTxn("submit-event")
	defer s.endTxn(txn)

	record, err := s.events.GetByEventID(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if record.Status != models.StatusDraft {
		return nil, &InvalidTransitionError{Action: "submit", From: record.Status}
	}
	if err := requireSchedulable(record); err != nil {
		return nil, err
	}

	history := record.StatusHistory.Append(models.StatusPending, actor, "Submitted for review")
	updated, err := s.applyTransition(ctx, record, actor, models.ActionSubmit, expectedVersion, models.StatusDraft, map[string]interface{}{
		"status":         models.StatusPending,
		"is_deleted":     false,
		"status_history": history,
	})
	if err != nil {
		s.recordTxnError(txn, err)
		return nil, err
	}

	s.recordAudit(ctx, eventID, models.ActionSubmit, actor, record, updated, nil, nil)
	return updated, nil
}

// Approve publishes a pending event. The approver needs the approve
// capability, and may not approve their own submission unless the workflow
// policy explicitly allows it. On success the record is pushed to the external
// calendar; a sync failure leaves the publish committed with graphSynced
// false.
func (s *EventService) Approve(ctx context.Context, eventID string, actor models.Actor, expectedVersion int64) (*models.EventRecord, error) {
	txn := s.startTxn("approve-event")
	defer s.endTxn(txn)

	if !s.oracle.HasCapability(actor, permissions.CapabilityApprove) {
		return nil, &PermissionDeniedError{Actor: actor.ID, Action: "approve"}
	}

	record, err := s.events.GetByEventID(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if record.Status != models.StatusPending {
		return nil, &InvalidTransitionError{Action: "approve", From: record.Status}
	}
	if record.CreatedBy == actor.ID && !s.allowSelfApproval {
		return nil, &PermissionDeniedError{Actor: actor.ID, Action: "approve own event"}
	}

	history := record.StatusHistory.Append(models.StatusPublished, actor, "Approved and published")
	updated, err := s.applyTransition(ctx, record, actor, models.ActionApprove, expectedVersion, models.StatusPending, map[string]interface{}{
		"status":         models.StatusPublished,
		"is_deleted":     false,
		"status_history": history,
	})
	if err != nil {
		s.recordTxnError(txn, err)
		return nil, err
	}

	s.recordAudit(ctx, eventID, models.ActionApprove, actor, record, updated, nil, nil)

	// Best-effort external create. Never rolls back the publish.
	updated = s.syncCreate(ctx, updated, actor)
	return updated, nil
}

// Reject declines a pending event with a mandatory reason.
func (s *EventService) Reject(ctx context.Context, eventID string, actor models.Actor, reason string, expectedVersion int64) (*models.EventRecord, error) {
	txn := s.startTxn("reject-event")
	defer s.endTxn(txn)

	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, &ValidationError{Field: "reason", Reason: "a rejection reason is required"}
	}
	if !s.oracle.HasCapability(actor, permissions.CapabilityReject) {
		return nil, &PermissionDeniedError{Actor: actor.ID, Action: "reject"}
	}

	record, err := s.events.GetByEventID(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if record.Status != models.StatusPending {
		return nil, &InvalidTransitionError{Action: "reject", From: record.Status}
	}

	history := record.StatusHistory.Append(models.StatusRejected, actor, reason)
	updated, err := s.applyTransition(ctx, record, actor, models.ActionReject, expectedVersion, models.StatusPending, map[string]interface{}{
		"status":         models.StatusRejected,
		"is_deleted":     false,
		"status_history": history,
	})
	if err != nil {
		s.recordTxnError(txn, err)
		return nil, err
	}

	s.recordAudit(ctx, eventID, models.ActionReject, actor, record, updated, nil, map[string]interface{}{"reason": reason})
	return updated, nil
}

// Delete logically deletes a record from any non-deleted state. Deleting an
// already-deleted record succeeds without mutating anything.
func (s *EventService) Delete(ctx context.Context, eventID string, actor models.Actor, reason string, expectedVersion int64) (*models.EventRecord, error) {
	txn := s.startTxn("delete-event")
	defer s.endTxn(txn)

	record, err := s.events.GetByEventID(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if record.Deleted() {
		// Idempotent: no duplicate history entry, no version bump.
		return record, nil
	}

	if strings.TrimSpace(reason) == "" {
		reason = "Deleted"
	}
	previous := record.Status
	history := record.StatusHistory.Append(models.StatusDeleted, actor, reason)
	updated, err := s.applyTransition(ctx, record, actor, models.ActionDelete, expectedVersion, previous, map[string]interface{}{
		"status":          models.StatusDeleted,
		"is_deleted":      true,
		"previous_status": previous,
		"status_history":  history,
	})
	if err != nil {
		s.recordTxnError(txn, err)
		return nil, err
	}

	s.recordAudit(ctx, eventID, models.ActionDelete, actor, record, updated, nil, map[string]interface{}{"previousStatus": previous})

	// Best-effort removal from the external calendar; the local delete stands
	// regardless. The delegated token serves here the same way it does for
	// create and update pushes.
	if record.ExternalSync != nil && record.ExternalSync.ExternalID != "" &&
		(record.CalendarOwner != "" || actor.DelegatedToken != "") {
		if err := s.calendar.DeleteEvent(ctx, syncOwner(record, actor), record.CalendarID, record.ExternalSync.ExternalID); err != nil {
			log.Warn().Err(err).Str("event_id", eventID).Msg("Failed to delete external calendar event")
			s.countSyncFailure()
		}
	}
	return updated, nil
}

// Restore brings a deleted record back to the status it held before deletion,
// derived from the status history (previousStatus is only a hint). A record
// with no usable history restores to draft.
func (s *EventService) Restore(ctx context.Context, eventID string, actor models.Actor, expectedVersion int64) (*models.EventRecord, error) {
	txn := s.startTxn("restore-event")
	defer s.endTxn(txn)

	if !s.oracle.HasCapability(actor, permissions.CapabilityRestore) {
		return nil, &PermissionDeniedError{Actor: actor.ID, Action: "restore"}
	}

	record, err := s.events.GetByEventID(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if !record.Deleted() {
		return nil, &InvalidTransitionError{Action: "restore", From: record.Status}
	}

	target := record.StatusHistory.RestoreTarget()
	history := record.StatusHistory.Append(target, actor, "Restored from deletion")
	updated, err := s.applyTransition(ctx, record, actor, models.ActionRestore, expectedVersion, models.StatusDeleted, map[string]interface{}{
		"status":          target,
		"is_deleted":      false,
		"previous_status": nil,
		"status_history":  history,
	})
	if err != nil {
		s.recordTxnError(txn, err)
		return nil, err
	}

	s.recordAudit(ctx, eventID, models.ActionRestore, actor, record, updated, nil, map[string]interface{}{"restoredTo": target})
	return updated, nil
}

// Update is the direct-edit path: a guard-protected field update outside the
// edit-request workflow. Key-field changes trigger a notification; a change
// set that resolves to the record's current values skips notification and
// external sync but still writes the generic update audit entry.
func (s *EventService) Update(ctx context.Context, eventID string, actor models.Actor, changes models.ChangeSet, expectedVersion int64) (*models.EventRecord, error) {
	txn := s.startTxn("update-event")
	defer s.endTxn(txn)

	if changes.IsEmpty() {
		return nil, &ValidationError{Field: "changes", Reason: "no fields to update"}
	}

	record, err := s.events.GetByEventID(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if record.Deleted() {
		return nil, &InvalidTransitionError{Action: "update", From: record.Status}
	}

	noop := changes.NoOpAgainst(record)
	diff := models.KeyFieldDiff(record, changes)

	updated, err := s.applyTransition(ctx, record, actor, models.ActionUpdate, expectedVersion, record.Status, changes.Updates())
	if err != nil {
		s.recordTxnError(txn, err)
		return nil, err
	}

	s.recordAudit(ctx, eventID, models.ActionUpdate, actor, record, updated, changes, nil)

	if !noop {
		updated = s.syncUpdate(ctx, updated, changes, actor)
		s.notifyKeyFieldChanges(ctx, updated, diff)
	}
	return updated, nil
}

// applyTransition runs the guarded write shared by every lifecycle operation:
// the caller's updates, the expected (version, status) pair, and cache
// invalidation on success. Conflicts are counted and returned untouched so the
// caller can surface the winning state.
func (s *EventService) applyTransition(
	ctx context.Context,
	record *models.EventRecord,
	actor models.Actor,
	action models.AuditAction,
	expectedVersion int64,
	expectedStatus models.EventStatus,
	updates map[string]interface{},
) (*models.EventRecord, error) {
	opts := repositories.ConditionalUpdateOptions{
		ExpectedStatus: &expectedStatus,
		ModifiedBy:     actor.ID,
		SnapshotFields: defaultSnapshotFields,
		Action:         string(action),
	}
	if expectedVersion > 0 {
		opts.ExpectedVersion = &expectedVersion
	}

	updated, err := s.events.ConditionalUpdate(ctx, record.EventID, updates, opts)
	if err != nil {
		if _, ok := repositories.IsVersionConflict(err); ok {
			s.countConflict()
			log.Info().
				Str("event_id", record.EventID).
				Str("action", string(action)).
				Int64("expected_version", expectedVersion).
				Msg("Conditional update lost a version race")
		}
		return nil, err
	}

	log.Info().
		Str("event_id", updated.EventID).
		Str("action", string(action)).
		Str("status", string(updated.Status)).
		Int64("version", updated.Version).
		Str("actor", actor.ID).
		Msg("Event transition applied")

	s.countAction(action)
	s.invalidate(ctx, record.EventID)
	return updated, nil
}

// requireSchedulable checks the fields a record must carry before entering
// review.
func requireSchedulable(record *models.EventRecord) error {
	if strings.TrimSpace(record.Title) == "" {
		return &ValidationError{Field: "title", Reason: "title is required"}
	}
	if record.StartTime == nil || record.EndTime == nil {
		return &ValidationError{Field: "startTime", Reason: "start and end times are required"}
	}
	if !record.EndTime.After(*record.StartTime) {
		return &ValidationError{Field: "endTime", Reason: "end time must be after start time"}
	}
	return nil
}
