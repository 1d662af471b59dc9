package usecase

import (
	"context"
	"log/slog"
	"time"

	apperrors "github.com/allisson/admissions/internal/errors"
	"github.com/allisson/admissions/internal/metrics"
	"github.com/allisson/admissions/internal/outbox/domain"
)

// HealthMonitor evaluates outbox health and releases stale leases when it is unhealthy.
// It never changes priorities and never retries terminally failed events.
type HealthMonitor struct {
	repo        OutboxEventRepository
	thresholds  domain.HealthThresholds
	maxLeaseAge time.Duration
	paused      func() bool
	metrics     metrics.OutboxMetrics
	logger      *slog.Logger
	now         func() time.Time
}

// NewHealthMonitor creates a HealthMonitor. paused reports the dispatcher pause flag and may be nil.
func NewHealthMonitor(
	config Config,
	repo OutboxEventRepository,
	paused func() bool,
	outboxMetrics metrics.OutboxMetrics,
	logger *slog.Logger,
) *HealthMonitor {
	if outboxMetrics == nil {
		outboxMetrics = metrics.NewNoOpOutboxMetrics()
	}
	if paused == nil {
		paused = func() bool { return false }
	}
	return &HealthMonitor{
		repo:        repo,
		thresholds:  domain.HealthThresholds{MaxLeased: config.MaxLeased, MaxFailed: config.MaxFailed},
		maxLeaseAge: config.MaxLeaseAge,
		paused:      paused,
		metrics:     outboxMetrics,
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Check evaluates health, reclaims stale leases when unhealthy, and records the gauges.
func (h *HealthMonitor) Check(ctx context.Context) (*domain.HealthSnapshot, error) {
	snapshot, err := h.Snapshot(ctx)
	if err != nil {
		return nil, err
	}

	if !snapshot.Healthy {
		reclaimed, err := h.repo.ReclaimStaleLeases(ctx, h.maxLeaseAge, snapshot.CheckedAt)
		if err != nil {
			if h.logger != nil {
				h.logger.Error("failed to reclaim stale leases", slog.Any("error", err))
			}
		} else {
			snapshot.Reclaimed = reclaimed
		}

		if h.logger != nil {
			h.logger.Warn("outbox unhealthy",
				slog.Any("reasons", snapshot.Reasons),
				slog.Int64("pending", snapshot.Pending),
				slog.Int64("leased", snapshot.Leased),
				slog.Int64("terminally_failed", snapshot.TerminallyFailed),
				slog.Int64("stale_leases", snapshot.StaleLeases),
				slog.Int64("critical_pending", snapshot.CriticalPending),
				slog.Int64("reclaimed", snapshot.Reclaimed),
			)
		}
	}

	h.metrics.RecordHealth(ctx, metrics.OutboxSnapshot{
		Pending:          snapshot.Pending,
		Leased:           snapshot.Leased,
		TerminallyFailed: snapshot.TerminallyFailed,
		StaleLeases:      snapshot.StaleLeases,
		CriticalPending:  snapshot.CriticalPending,
		Reclaimed:        snapshot.Reclaimed,
		Healthy:          snapshot.Healthy,
	})

	return snapshot, nil
}

// Snapshot evaluates health without any corrective action.
func (h *HealthMonitor) Snapshot(ctx context.Context) (*domain.HealthSnapshot, error) {
	now := h.now()

	stats, err := h.repo.Stats(ctx, now.Add(-h.maxLeaseAge))
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to read outbox stats")
	}

	snapshot := domain.Evaluate(stats, h.thresholds, now)
	snapshot.Paused = h.paused()
	return snapshot, nil
}
