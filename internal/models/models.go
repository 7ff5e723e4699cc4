package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gorm.io/gorm"
)

// EventStatus is the authoritative workflow state of an event record.
type EventStatus string

// Workflow states
const (
	StatusDraft     EventStatus = "draft"
	StatusPending   EventStatus = "pending"
	StatusPublished EventStatus = "published"
	StatusRejected  EventStatus = "rejected"
	StatusDeleted   EventStatus = "deleted"
)

// KnownStatuses lists every legal workflow state.
var KnownStatuses = []EventStatus{
	StatusDraft, StatusPending, StatusPublished, StatusRejected, StatusDeleted,
}

// Actor identifies who is performing a workflow action.
type Actor struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
	// DelegatedToken is an optional calendar access token supplied by the
	// caller's auth layer. When present, external sync may proceed even for
	// records without a configured calendar owner.
	DelegatedToken string `json:"-"`
}

// StatusHistoryEntry records a single status transition.
// Entries are immutable once appended.
type StatusHistoryEntry struct {
	Status         EventStatus `json:"status"`
	ChangedAt      time.Time   `json:"changedAt"`
	ChangedBy      string      `json:"changedBy"`
	ChangedByEmail string      `json:"changedByEmail,omitempty"`
	Reason         string      `json:"reason,omitempty"`
}

// StatusHistory is the append-only ledger of status transitions, stored as a
// jsonb column on the event record. It is the source of truth for "what state
// was this in before it was deleted".
type StatusHistory []StatusHistoryEntry

// Append returns a new history with one entry added. The receiver is never
// mutated; past entries must not be reordered or rewritten.
func (h StatusHistory) Append(status EventStatus, actor Actor, reason string) StatusHistory {
	out := make(StatusHistory, len(h), len(h)+1)
	copy(out, h)
	return append(out, StatusHistoryEntry{
		Status:         status,
		ChangedAt:      time.Now().UTC(),
		ChangedBy:      actor.ID,
		ChangedByEmail: actor.Email,
		Reason:         reason,
	})
}

// RestoreTarget derives the status a deleted record should return to. It scans
// backward from the entry before the most recent deleted entry and returns the
// first non-deleted status found. An empty history, or one containing nothing
// but deletions, yields draft.
func (h StatusHistory) RestoreTarget() EventStatus {
	start := len(h) - 1
	for i := len(h) - 1; i >= 0; i-- {
		if h[i].Status == StatusDeleted {
			start = i - 1
			break
		}
	}
	for i := start; i >= 0; i-- {
		if h[i].Status != StatusDeleted {
			return h[i].Status
		}
	}
	return StatusDraft
}

// Value implements driver.Valuer for jsonb storage.
func (h StatusHistory) Value() (driver.Value, error) {
	return json.Marshal(h)
}

// Scan implements sql.Scanner for jsonb storage.
func (h *StatusHistory) Scan(value interface{}) error {
	return scanJSON(value, h)
}

// EditRequestStatus tracks the lifecycle of a pending edit request envelope.
type EditRequestStatus string

// Edit request states
const (
	EditRequestPending  EditRequestStatus = "pending"
	EditRequestApproved EditRequestStatus = "approved"
	EditRequestRejected EditRequestStatus = "rejected"
)

// EditRequest is the single proposed-change envelope that may be attached to a
// published event. At most one exists per record.
type EditRequest struct {
	RequestedAt      time.Time         `json:"requestedAt"`
	RequestedBy      string            `json:"requestedBy"`
	RequestedByEmail string            `json:"requestedByEmail,omitempty"`
	RequestedChanges ChangeSet         `json:"requestedChanges"`
	Reason           string            `json:"reason"`
	Status           EditRequestStatus `json:"status"`
}

// Value implements driver.Valuer for jsonb storage.
func (e EditRequest) Value() (driver.Value, error) {
	return json.Marshal(e)
}

// Scan implements sql.Scanner for jsonb storage.
func (e *EditRequest) Scan(value interface{}) error {
	return scanJSON(value, e)
}

// ExternalSync carries the correlation metadata of a record that has been
// pushed to the external calendar service at least once.
type ExternalSync struct {
	ExternalID       string    `json:"externalId"`
	CorrelationID    string    `json:"externalCorrelationId,omitempty"`
	WebLink          string    `json:"webLink,omitempty"`
	CalendarOwner    string    `json:"calendarOwner,omitempty"`
	CalendarID       string    `json:"calendarId,omitempty"`
	LastSyncedAt     time.Time `json:"lastSyncedAt,omitempty"`
	LastSyncedFields []string  `json:"lastSyncedFields,omitempty"`
}

// Value implements driver.Valuer for jsonb storage.
func (s ExternalSync) Value() (driver.Value, error) {
	return json.Marshal(s)
}

// Scan implements sql.Scanner for jsonb storage.
func (s *ExternalSync) Scan(value interface{}) error {
	return scanJSON(value, s)
}

// StringList is a jsonb-backed string slice (locations, categories).
type StringList []string

// Value implements driver.Valuer for jsonb storage.
func (l StringList) Value() (driver.Value, error) {
	if l == nil {
		return json.Marshal([]string{})
	}
	return json.Marshal(l)
}

// Scan implements sql.Scanner for jsonb storage.
func (l *StringList) Scan(value interface{}) error {
	return scanJSON(value, l)
}

// EventRecord is the aggregate root: a reservable-event request moving through
// the approval workflow. Status-affecting fields are only ever written through
// the lifecycle service and the conditional-update guard, never directly.
type EventRecord struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`

	// EventID is the stable external-facing identifier.
	EventID string `gorm:"not null;uniqueIndex" json:"eventId"`

	Status EventStatus `gorm:"not null;index" json:"status"`

	// Version is the optimistic-concurrency token, bumped exactly once per
	// successful mutation.
	Version int64 `gorm:"not null;default:1" json:"version"`

	// PreviousStatus is a fast-path hint written at delete time. StatusHistory
	// is authoritative for restores.
	PreviousStatus *EventStatus `json:"previousStatus,omitempty"`

	// IsDeleted is denormalized for query convenience and must always equal
	// (Status == deleted). It is written together with Status inside the same
	// guard update.
	IsDeleted bool `gorm:"not null;default:false;index" json:"isDeleted"`

	StatusHistory      StatusHistory `gorm:"type:jsonb" json:"statusHistory"`
	PendingEditRequest *EditRequest  `gorm:"type:jsonb" json:"pendingEditRequest,omitempty"`
	ExternalSync       *ExternalSync `gorm:"type:jsonb" json:"externalSync,omitempty"`

	// GraphSynced reports whether the last externally-relevant change reached
	// the calendar service. False values are retried by the worker.
	GraphSynced bool `gorm:"not null;default:true" json:"graphSynced"`

	// Domain payload. The workflow core diffs and merges these fields but does
	// not interpret them.
	Title       string     `gorm:"not null" json:"title"`
	Description string     `json:"description"`
	StartTime   *time.Time `json:"startTime,omitempty"`
	EndTime     *time.Time `json:"endTime,omitempty"`
	Locations   StringList `gorm:"type:jsonb" json:"locations"`
	Categories  StringList `gorm:"type:jsonb" json:"categories"`
	Capacity    int        `gorm:"not null;default:0" json:"capacity"`

	// CalendarOwner and CalendarID name the external calendar this record is
	// mirrored to (app-only auth path). Empty values skip sync silently.
	CalendarOwner string `json:"calendarOwner,omitempty"`
	CalendarID    string `json:"calendarId,omitempty"`

	CreatedBy            string     `gorm:"not null;index" json:"createdBy"`
	CreatedByEmail       string     `json:"createdByEmail,omitempty"`
	LastModifiedBy       string     `json:"lastModifiedBy,omitempty"`
	LastModifiedDateTime *time.Time `json:"lastModifiedDateTime,omitempty"`
}

// Deleted reports whether the record is logically deleted, derived from the
// status rather than the denormalized boolean.
func (e *EventRecord) Deleted() bool {
	return e.Status == StatusDeleted
}

// AuditAction names a mutating workflow action.
type AuditAction string

// Audit actions, one per mutating operation.
const (
	ActionCreate      AuditAction = "create"
	ActionSubmit      AuditAction = "submit"
	ActionApprove     AuditAction = "approve"
	ActionReject      AuditAction = "reject"
	ActionDelete      AuditAction = "delete"
	ActionRestore     AuditAction = "restore"
	ActionUpdate      AuditAction = "update"
	ActionRequestEdit AuditAction = "request-edit"
	ActionApproveEdit AuditAction = "approve-edit"
	ActionRejectEdit  AuditAction = "reject-edit"
)

// AuditEntry is one immutable row per mutating action, kept in a separate
// append-only collection. It serves compliance review; restore logic reads the
// status history instead.
type AuditEntry struct {
	ID               uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	EventID          string          `gorm:"not null;index" json:"eventId"`
	Action           AuditAction     `gorm:"not null;index" json:"action"`
	PerformedBy      string          `gorm:"not null" json:"performedBy"`
	PerformedByEmail string          `json:"performedByEmail,omitempty"`
	Timestamp        time.Time       `gorm:"not null;index" json:"timestamp"`
	PreviousState    json.RawMessage `gorm:"type:jsonb" json:"previousState,omitempty"`
	NewState         json.RawMessage `gorm:"type:jsonb" json:"newState,omitempty"`
	Changes          json.RawMessage `gorm:"type:jsonb" json:"changes,omitempty"`
	Metadata         json.RawMessage `gorm:"type:jsonb" json:"metadata,omitempty"`
}

// SetupModels configures GORM models and runs migrations
func SetupModels(db *gorm.DB) error {
	err := db.AutoMigrate(
		&EventRecord{},
		&AuditEntry{},
	)
	if err != nil {
		return errors.Wrap(err, "failed to run auto migrations")
	}
	return nil
}

func scanJSON(value interface{}, dest interface{}) error {
	if value == nil {
		return nil
	}
	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, dest)
	case string:
		return json.Unmarshal([]byte(v), dest)
	default:
		return errors.Errorf("unsupported jsonb source type %T", value)
	}
}
