package domain

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNotFound indicates that no record exists for the requested id.
var ErrNotFound = errors.New("person not found")

// ValidationError reports required fields that were missing or empty. It is
// terminal: callers surface it to the client and never retry.
type ValidationError struct {
	Missing []string
}

func (e *ValidationError) Error() string {
	return "missing required fields: " + strings.Join(e.Missing, ", ")
}

// UnavailableError wraps a transient dependency failure. The caller's
// scheduler owns the retry; nothing below it retries internally.
type UnavailableError struct {
	Dependency string
	Err        error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("%s unavailable: %v", e.Dependency, e.Err)
}

func (e *UnavailableError) Unwrap() error { return e.Err }
