package repositories

import (
	"fmt"

	"github.com/pkg/errors"

	"example.com/venuehub/services/events/internal/models"
)

// Common repository errors
var (
	ErrNotFound     = errors.New("event record not found")
	ErrCreateFailed = errors.New("failed to create record")
	ErrDuplicateKey = errors.New("duplicate event id")
)

// VersionConflictError is returned when a conditional update matched a record
// by id but the stored version or status no longer equals what the caller
// expected. It carries enough of the winning state for the caller to render a
// "someone else changed this" diff without another round trip.
type VersionConflictError struct {
	EventID        string
	CurrentVersion int64
	CurrentStatus  models.EventStatus

	// Snapshot maps the requested dotted paths to their values on the current
	// (winning) record. Paths that do not resolve are simply absent.
	Snapshot map[string]interface{}
}

// Error implements the error interface.
func (e *VersionConflictError) Error() string {
	return fmt.Sprintf("version conflict on event %s: current version %d, current status %s",
		e.EventID, e.CurrentVersion, e.CurrentStatus)
}

// IsVersionConflict reports whether err is (or wraps) a version conflict and
// returns it if so.
func IsVersionConflict(err error) (*VersionConflictError, bool) {
	var vc *VersionConflictError
	if errors.As(err, &vc) {
		return vc, true
	}
	return nil, false
}
