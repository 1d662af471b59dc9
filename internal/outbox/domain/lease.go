package domain

import "sort"

// RetryFilter narrows a lease to events by their retry history.
type RetryFilter int

const (
	// RetriesAny matches every eligible event.
	RetriesAny RetryFilter = iota
	// RetriesFresh matches events that were never attempted.
	RetriesFresh
	// RetriesOnly matches events that already failed at least once.
	RetriesOnly
)

// LeaseFilter selects which eligible events a lease may return.
type LeaseFilter struct {
	// Priorities restricts the lease to these priorities. Empty means all.
	Priorities []Priority
	Retries    RetryFilter
}

// EventState is the delivery state of an event as seen by operators.
type EventState string

const (
	EventStatePending   EventState = "pending"
	EventStateLeased    EventState = "leased"
	EventStateProcessed EventState = "processed"
	EventStateFailed    EventState = "failed"
)

// ParseEventState validates a state filter. An empty string means all states.
func ParseEventState(s string) (EventState, error) {
	switch EventState(s) {
	case "", EventStatePending, EventStateLeased, EventStateProcessed, EventStateFailed:
		return EventState(s), nil
	default:
		return "", ErrInvalidEventState
	}
}

// SortForDispatch orders events by priority descending, then by creation time ascending.
func SortForDispatch(events []*OutboxEvent) {
	sort.SliceStable(events, func(i, j int) bool {
		if events[i].Priority != events[j].Priority {
			return events[i].Priority > events[j].Priority
		}
		return events[i].CreatedAt.Before(events[j].CreatedAt)
	})
}
