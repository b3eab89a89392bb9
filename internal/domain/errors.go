package domain

import (
	"errors"
	"fmt"
)

// Error categories. Handlers map these to transport status codes.
var (
	ErrValidation   = errors.New("validation failed")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrUnavailable  = errors.New("unavailable")
)

var (
	// ErrHouseNotFound is returned when a house id does not resolve.
	ErrHouseNotFound = &Error{Kind: ErrNotFound, Msg: "House not found"}
	// ErrHouseExists is returned when the external house id is already taken.
	ErrHouseExists = &Error{Kind: ErrConflict, Msg: "House ID already exists"}
	// ErrUnknownHouse indicates an assignment referenced a house that does not exist.
	ErrUnknownHouse = &Error{Kind: ErrValidation, Msg: "One or more houses do not exist"}
	// ErrQuestionSetNotFound indicates the question set could not be loaded.
	ErrQuestionSetNotFound = &Error{Kind: ErrNotFound, Msg: "Question set not found"}
	// ErrAssignmentNotFound covers both missing assignments and assignments of another house.
	ErrAssignmentNotFound = &Error{Kind: ErrNotFound, Msg: "Survey not found or not assigned to you"}
	// ErrAssignmentNotPending is returned for any transition out of a terminal status.
	ErrAssignmentNotPending = &Error{Kind: ErrConflict, Msg: "Survey already completed or dismissed"}
	// ErrNotDismissable is returned when the question set forbids dismissal.
	ErrNotDismissable = &Error{Kind: ErrConflict, Msg: "This survey cannot be dismissed"}
	// ErrInvalidCredentials is returned by login for unknown ids and wrong passwords alike.
	ErrInvalidCredentials = &Error{Kind: ErrUnauthorized, Msg: "Invalid house ID or password"}
	// ErrSubscriptionGone signals that a push endpoint is permanently invalid.
	ErrSubscriptionGone = &Error{Kind: ErrNotFound, Msg: "push subscription gone"}
)

// Error carries a caller-facing message and the category it belongs to.
type Error struct {
	Kind error
	Msg  string
}

func (e *Error) Error() string { return e.Msg }

func (e *Error) Unwrap() error { return e.Kind }

// Invalidf builds a validation error whose message is shown to the caller verbatim.
func Invalidf(format string, args ...any) error {
	return &Error{Kind: ErrValidation, Msg: fmt.Sprintf(format, args...)}
}

// Conflictf builds a conflict error whose message is shown to the caller verbatim.
func Conflictf(format string, args ...any) error {
	return &Error{Kind: ErrConflict, Msg: fmt.Sprintf(format, args...)}
}

// Message returns the caller-facing text of err when it is a domain error.
func Message(err error) (string, bool) {
	var de *Error
	if errors.As(err, &de) {
		return de.Msg, true
	}
	return "", false
}
