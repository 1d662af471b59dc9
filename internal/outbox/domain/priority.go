package domain

import (
	"fmt"
	"strings"

	apperrors "github.com/allisson/admissions/internal/errors"
)

// Priority orders delivery. Higher values are leased first.
type Priority int

const (
	PriorityLow Priority = iota
	PriorityNormal
	PriorityHigh
	PriorityCritical
)

// String returns the upper-case name of the priority.
func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "LOW"
	case PriorityNormal:
		return "NORMAL"
	case PriorityHigh:
		return "HIGH"
	case PriorityCritical:
		return "CRITICAL"
	default:
		return fmt.Sprintf("Priority(%d)", int(p))
	}
}

// Valid reports whether p is one of the defined priorities.
func (p Priority) Valid() bool {
	return p >= PriorityLow && p <= PriorityCritical
}

// ParsePriority converts a case-insensitive name into a Priority.
func ParsePriority(s string) (Priority, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "LOW":
		return PriorityLow, nil
	case "NORMAL", "":
		return PriorityNormal, nil
	case "HIGH":
		return PriorityHigh, nil
	case "CRITICAL":
		return PriorityCritical, nil
	default:
		return PriorityNormal, apperrors.Wrapf(apperrors.ErrInvalidInput, "unknown priority %q", s)
	}
}

// NonCriticalPriorities lists every priority below CRITICAL, highest first.
func NonCriticalPriorities() []Priority {
	return []Priority{PriorityHigh, PriorityNormal, PriorityLow}
}
