// Package validation provides custom validation rules for the application.
package validation

import (
	"regexp"
	"strings"

	validation "github.com/jellydator/validation"

	applicationDomain "github.com/allisson/admissions/internal/application/domain"
	apperrors "github.com/allisson/admissions/internal/errors"
	outboxDomain "github.com/allisson/admissions/internal/outbox/domain"
)

// idempotencyKeyRegex allows printable ASCII without whitespace
var idempotencyKeyRegex = regexp.MustCompile(`^[\x21-\x7E]+$`)

// WrapValidationError wraps validation errors as domain ErrInvalidInput
func WrapValidationError(err error) error {
	if err == nil {
		return nil
	}
	return apperrors.Wrap(apperrors.ErrInvalidInput, err.Error())
}

// NoWhitespace validates that string doesn't contain leading/trailing whitespace
var NoWhitespace = validation.NewStringRuleWithError(
	func(s string) bool {
		return s == strings.TrimSpace(s)
	},
	validation.NewError("validation_no_whitespace", "must not contain leading or trailing whitespace"),
)

// NotBlank validates that a string is not empty after trimming whitespace
var NotBlank = validation.NewStringRuleWithError(
	func(s string) bool {
		return strings.TrimSpace(s) != ""
	},
	validation.NewError("validation_not_blank", "must not be blank"),
)

// IdempotencyKey validates client supplied idempotency keys.
var IdempotencyKey = validation.NewStringRuleWithError(
	func(s string) bool {
		return len(s) <= 255 && idempotencyKeyRegex.MatchString(s)
	},
	validation.NewError("validation_idempotency_key", "must be 1 to 255 printable characters without spaces"),
)

// Status validates an application status name.
var Status = validation.NewStringRuleWithError(
	func(s string) bool {
		return applicationDomain.Status(s).Valid()
	},
	validation.NewError("validation_status", "must be a known application status"),
)

// ReasonCode validates a transition reason code.
var ReasonCode = validation.NewStringRuleWithError(
	func(s string) bool {
		return applicationDomain.ReasonCode(s).Valid()
	},
	validation.NewError("validation_reason_code", "must be a known reason code"),
)

// Role validates an actor role.
var Role = validation.NewStringRuleWithError(
	func(s string) bool {
		return applicationDomain.Role(s).Valid()
	},
	validation.NewError("validation_role", "must be a known actor role"),
)

// EventState validates an outbox event state filter.
var EventState = validation.NewStringRuleWithError(
	func(s string) bool {
		_, err := outboxDomain.ParseEventState(s)
		return err == nil
	},
	validation.NewError("validation_event_state", "must be one of pending, leased, processed, failed"),
)
