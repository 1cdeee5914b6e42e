package admission

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors matched with errors.Is. Every *Error unwraps to exactly one.
var (
	ErrInvalidInput      = errors.New("invalid input")
	ErrCapacityExceeded  = errors.New("capacity exceeded")
	ErrRateLimitExceeded = errors.New("rate limit exceeded")
	ErrStillBlocked      = errors.New("identifier is blocked")
)

// Error is returned for every denied admission check. BlockedUntil is set
// for rate limit and still-blocked denials so callers can compute a retry time.
type Error struct {
	Reason       Reason
	Identifier   string
	Message      string
	BlockedUntil time.Time
	err          error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.err
}

// Error constructors for each denial reason

func NewInvalidInputError(message string) *Error {
	return &Error{
		Reason:  ReasonInvalidInput,
		Message: fmt.Sprintf("invalid input: %s", message),
		err:     ErrInvalidInput,
	}
}

func NewCapacityExceededError(identifier string, capacity int) *Error {
	return &Error{
		Reason:     ReasonCapacityExceeded,
		Identifier: identifier,
		Message:    fmt.Sprintf("admission table is full (%d identifiers), cannot track %s", capacity, identifier),
		err:        ErrCapacityExceeded,
	}
}

func NewRateLimitExceededError(identifier string, blockedUntil time.Time) *Error {
	return &Error{
		Reason:       ReasonRateLimitExceeded,
		Identifier:   identifier,
		Message:      fmt.Sprintf("limit exceeded for identifier: %s", identifier),
		BlockedUntil: blockedUntil,
		err:          ErrRateLimitExceeded,
	}
}

func NewStillBlockedError(identifier string, blockedUntil time.Time) *Error {
	return &Error{
		Reason:       ReasonStillBlocked,
		Identifier:   identifier,
		Message:      fmt.Sprintf("identifier %s is blocked until %s", identifier, blockedUntil.UTC().Format(time.RFC3339)),
		BlockedUntil: blockedUntil,
		err:          ErrStillBlocked,
	}
}

// ReasonOf returns the denial reason carried by err, ReasonAllowed for a nil
// error, and an empty Reason for errors that did not come from this package.
func ReasonOf(err error) Reason {
	if err == nil {
		return ReasonAllowed
	}
	var admErr *Error
	if errors.As(err, &admErr) {
		return admErr.Reason
	}
	return ""
}
