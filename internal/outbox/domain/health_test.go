package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestEvaluate(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	thresholds := HealthThresholds{MaxLeased: 10, MaxFailed: 5}

	tests := []struct {
		name            string
		stats           OutboxStats
		expectedHealthy bool
		expectedReasons []string
	}{
		{
			name:            "empty outbox is healthy",
			stats:           OutboxStats{},
			expectedHealthy: true,
		},
		{
			name:            "below ceilings is healthy",
			stats:           OutboxStats{Pending: 100, Leased: 9, TerminallyFailed: 4},
			expectedHealthy: true,
		},
		{
			name:            "stale leases",
			stats:           OutboxStats{StaleLeases: 1},
			expectedReasons: []string{"stale leases present"},
		},
		{
			name:            "critical pending",
			stats:           OutboxStats{CriticalPending: 2},
			expectedReasons: []string{"critical events pending"},
		},
		{
			name:            "leased at ceiling",
			stats:           OutboxStats{Leased: 10},
			expectedReasons: []string{"leased events at or above ceiling"},
		},
		{
			name:            "failed at ceiling",
			stats:           OutboxStats{TerminallyFailed: 5},
			expectedReasons: []string{"terminally failed events at or above ceiling"},
		},
		{
			name: "every condition",
			stats: OutboxStats{
				Leased:           20,
				TerminallyFailed: 20,
				StaleLeases:      3,
				CriticalPending:  1,
			},
			expectedReasons: []string{
				"stale leases present",
				"critical events pending",
				"leased events at or above ceiling",
				"terminally failed events at or above ceiling",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snapshot := Evaluate(tt.stats, thresholds, now)

			assert.Equal(t, tt.expectedHealthy, snapshot.Healthy)
			assert.Equal(t, tt.expectedReasons, snapshot.Reasons)
			assert.Equal(t, tt.stats, snapshot.OutboxStats)
			assert.Equal(t, now, snapshot.CheckedAt)
			assert.Zero(t, snapshot.Reclaimed)
		})
	}
}

func TestDispatchResult_Add(t *testing.T) {
	r := DispatchResult{Leased: 1, Published: 1}
	r.Add(DispatchResult{Leased: 3, Published: 1, Failed: 1, Released: 1, StateUpdateFailed: 1})

	assert.Equal(t, DispatchResult{Leased: 4, Published: 2, Failed: 1, Released: 1, StateUpdateFailed: 1}, r)
}
