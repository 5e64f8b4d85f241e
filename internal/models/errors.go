package models

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound = errors.New("not found")
)

// ValidationError is rejected user input. Shown inline next to the
// offending field; never fatal.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// AuthError covers bad credentials, blocked accounts and duplicate
// registrations. Message is already user-facing.
type AuthError struct {
	Message string
}

func (e *AuthError) Error() string {
	return e.Message
}

// NotFoundError is a missing record addressed by the user: a bad join
// code, a deleted user, an unknown ticket.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.ID)
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// CapacityError is a join attempt against a full room.
type CapacityError struct {
	Code     string
	Capacity int
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("room %s is full (%d members)", e.Code, e.Capacity)
}

// BackendError is an unexpected failure from either backing store.
// Primary-store backend errors abort the operation; mirror failures
// are logged and swallowed before they ever become one of these.
type BackendError struct {
	Op  string
	Err error
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *BackendError) Unwrap() error {
	return e.Err
}
