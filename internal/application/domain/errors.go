// Package domain defines admission applications, their audited transitions, and the
// policy that decides which transitions are allowed.
package domain

import (
	"github.com/allisson/admissions/internal/errors"
)

// Application-specific error definitions.
var (
	// ErrInvalidTransition indicates the policy denies the requested transition.
	ErrInvalidTransition = errors.Wrap(errors.ErrInvalidInput, "invalid transition")

	// ErrApplicationNotFound indicates the application does not exist.
	ErrApplicationNotFound = errors.Wrap(errors.ErrNotFound, "application not found")

	// ErrConcurrentModification indicates another writer changed the application first.
	ErrConcurrentModification = errors.Wrap(errors.ErrConflict, "concurrent modification")

	// ErrIdempotencyKeyConflict indicates another transition already used the idempotency key.
	ErrIdempotencyKeyConflict = errors.Wrap(errors.ErrConflict, "idempotency key conflict")

	// ErrTransitionLogNotFound indicates no transition log matched the lookup.
	ErrTransitionLogNotFound = errors.Wrap(errors.ErrNotFound, "transition log not found")

	// ErrInvalidPolicy indicates a policy file could not be parsed or references unknown values.
	ErrInvalidPolicy = errors.Wrap(errors.ErrInvalidInput, "invalid transition policy")
)
