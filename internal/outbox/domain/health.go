package domain

import "time"

// OutboxStats are point-in-time counts over the outbox table.
type OutboxStats struct {
	Pending          int64
	Leased           int64
	TerminallyFailed int64
	StaleLeases      int64
	CriticalPending  int64
}

// HealthThresholds are the ceilings used to judge a snapshot.
type HealthThresholds struct {
	MaxLeased int64
	MaxFailed int64
}

// HealthSnapshot is the evaluated health of the outbox.
type HealthSnapshot struct {
	OutboxStats
	Healthy bool
	// Reasons lists every failed health condition.
	Reasons []string
	// Reclaimed is the number of stale leases released as a corrective action.
	Reclaimed int64
	Paused    bool
	CheckedAt time.Time
}

// Evaluate builds a snapshot from stats. Healthy requires no stale leases, no pending
// critical events, and leased and failed counts below their ceilings.
func Evaluate(stats OutboxStats, thresholds HealthThresholds, now time.Time) *HealthSnapshot {
	snapshot := &HealthSnapshot{OutboxStats: stats, CheckedAt: now}

	if stats.StaleLeases > 0 {
		snapshot.Reasons = append(snapshot.Reasons, "stale leases present")
	}
	if stats.CriticalPending > 0 {
		snapshot.Reasons = append(snapshot.Reasons, "critical events pending")
	}
	if stats.Leased >= thresholds.MaxLeased {
		snapshot.Reasons = append(snapshot.Reasons, "leased events at or above ceiling")
	}
	if stats.TerminallyFailed >= thresholds.MaxFailed {
		snapshot.Reasons = append(snapshot.Reasons, "terminally failed events at or above ceiling")
	}

	snapshot.Healthy = len(snapshot.Reasons) == 0
	return snapshot
}

// PurgeResult reports how many terminal rows a purge removed.
type PurgeResult struct {
	Processed int64
	Failed    int64
}

// DispatchResult summarizes one dispatch pass.
type DispatchResult struct {
	Leased            int
	Published         int
	Failed            int
	// Released counts events handed back unpublished because their lease was about to go stale.
	Released          int
	StateUpdateFailed int
}

// Add accumulates other into r.
func (r *DispatchResult) Add(other DispatchResult) {
	r.Leased += other.Leased
	r.Published += other.Published
	r.Failed += other.Failed
	r.Released += other.Released
	r.StateUpdateFailed += other.StateUpdateFailed
}

// DeliveryFailure is what MarkFailed persists about a failed attempt.
type DeliveryFailure struct {
	Kind    string
	Message string
}
