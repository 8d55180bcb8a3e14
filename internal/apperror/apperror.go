// Package apperror defines the typed errors returned by the core services.
// Callers match them with errors.As; none of them is fatal to the process.
package apperror

import (
	"errors"
	"fmt"
)

// NotFoundError reports an entity id that could not be resolved.
type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

// ForbiddenError reports a failed role or ownership check.
type ForbiddenError struct {
	Action string
	Reason string
}

func (e *ForbiddenError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("forbidden: %s", e.Action)
	}
	return fmt.Sprintf("forbidden: %s: %s", e.Action, e.Reason)
}

// InvalidStateError reports an operation that is not legal in the current status.
type InvalidStateError struct {
	Entity string
	ID     string
	Status string
	Action string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("cannot %s %s %s in status %s", e.Action, e.Entity, e.ID, e.Status)
}

// ConflictError reports a lost optimistic-concurrency race. The caller may
// reload the entity and retry.
type ConflictError struct {
	Entity string
	ID     string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s %s was modified concurrently", e.Entity, e.ID)
}

type DuplicateRatingError struct {
	RatedBy string
	TaskID  string
}

func (e *DuplicateRatingError) Error() string {
	return fmt.Sprintf("user %s already rated task %s", e.RatedBy, e.TaskID)
}

// AlreadyAssignedError reports a take by a user removed from the task earlier.
type AlreadyAssignedError struct {
	UserID string
	TaskID string
}

func (e *AlreadyAssignedError) Error() string {
	return fmt.Sprintf("user %s was previously assigned to task %s and cannot take it again", e.UserID, e.TaskID)
}

type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Is* helpers keep call sites short where only the kind matters.

func IsNotFound(err error) bool {
	var target *NotFoundError
	return errors.As(err, &target)
}

func IsForbidden(err error) bool {
	var target *ForbiddenError
	return errors.As(err, &target)
}

func IsInvalidState(err error) bool {
	var target *InvalidStateError
	return errors.As(err, &target)
}

func IsConflict(err error) bool {
	var target *ConflictError
	return errors.As(err, &target)
}

func IsDuplicateRating(err error) bool {
	var target *DuplicateRatingError
	return errors.As(err, &target)
}

func IsAlreadyAssigned(err error) bool {
	var target *AlreadyAssignedError
	return errors.As(err, &target)
}

func IsValidation(err error) bool {
	var target *ValidationError
	return errors.As(err, &target)
}
