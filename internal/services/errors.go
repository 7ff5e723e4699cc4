package services

import (
	"fmt"

	"example.com/venuehub/services/events/internal/models"
)

// InvalidTransitionError is returned when an action is not legal from the
// record's current status. It is raised before any write is attempted.
type InvalidTransitionError struct {
	Action string
	From   models.EventStatus
}

// Error implements the error interface.
func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("cannot %s an event in status %s", e.Action, e.From)
}

// ValidationError is returned when a required input is missing or empty.
type ValidationError struct {
	Field  string
	Reason string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// PermissionDeniedError is returned when the permission oracle refuses the
// actor the capability or ownership an action requires.
type PermissionDeniedError struct {
	Actor  string
	Action string
}

// Error implements the error interface.
func (e *PermissionDeniedError) Error() string {
	return fmt.Sprintf("actor %s is not permitted to %s", e.Actor, e.Action)
}
