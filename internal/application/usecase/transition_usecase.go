package usecase

import (
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/allisson/admissions/internal/application/domain"
	"github.com/allisson/admissions/internal/database"
	apperrors "github.com/allisson/admissions/internal/errors"
)

// transitionUseCase is the state transition engine.
type transitionUseCase struct {
	config    Config
	txManager database.TxManager
	appRepo   ApplicationRepository
	logRepo   TransitionLogRepository
	outbox    OutboxWriter
	policy    *domain.Policy
	logger    *slog.Logger
	now       func() time.Time
}

// NewTransitionUseCase creates the transition engine. A nil policy uses DefaultPolicy.
func NewTransitionUseCase(
	config Config,
	txManager database.TxManager,
	appRepo ApplicationRepository,
	logRepo TransitionLogRepository,
	outbox OutboxWriter,
	policy *domain.Policy,
	logger *slog.Logger,
) TransitionUseCase {
	if config.MaxAttempts < 1 {
		config.MaxAttempts = 1
	}
	if policy == nil {
		policy = domain.DefaultPolicy()
	}
	return &transitionUseCase{
		config:    config,
		txManager: txManager,
		appRepo:   appRepo,
		logRepo:   logRepo,
		outbox:    outbox,
		policy:    policy,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Transition runs the transition, retrying from scratch when a concurrent writer wins.
func (t *transitionUseCase) Transition(
	ctx context.Context,
	input *domain.TransitionInput,
) (*domain.Application, error) {
	if strings.TrimSpace(input.ActorID) == "" {
		return nil, apperrors.Wrap(apperrors.ErrInvalidInput, "actor id is required")
	}
	if input.IdempotencyKey != nil && *input.IdempotencyKey == "" {
		normalized := *input
		normalized.IdempotencyKey = nil
		input = &normalized
	}

	for attempt := 1; ; attempt++ {
		app, err := t.attempt(ctx, input)
		if err == nil {
			return app, nil
		}
		if !isRetryable(err) {
			return nil, err
		}
		if attempt >= t.config.MaxAttempts {
			if t.logger != nil {
				t.logger.Warn("transition retries exhausted",
					slog.String("application_id", input.ApplicationID.String()),
					slog.String("target_status", string(input.TargetStatus)),
					slog.Int("attempts", attempt),
					slog.Any("error", err),
				)
			}
			return nil, apperrors.Wrapf(
				domain.ErrConcurrentModification,
				"application %s still contended after %d attempts",
				input.ApplicationID,
				attempt,
			)
		}

		if t.logger != nil {
			t.logger.Debug("transition lost a race, retrying",
				slog.String("application_id", input.ApplicationID.String()),
				slog.Int("attempt", attempt),
				slog.Any("error", err),
			)
		}
		if err := t.wait(ctx); err != nil {
			return nil, err
		}
	}
}

func (t *transitionUseCase) attempt(
	ctx context.Context,
	input *domain.TransitionInput,
) (*domain.Application, error) {
	if input.IdempotencyKey != nil {
		existing, err := t.logRepo.GetByIdempotencyKey(ctx, *input.IdempotencyKey)
		switch {
		case err == nil:
			if existing.ApplicationID != input.ApplicationID {
				return nil, apperrors.Wrapf(
					apperrors.ErrConflict,
					"idempotency key %q belongs to another application",
					*input.IdempotencyKey,
				)
			}
			return t.appRepo.Get(ctx, input.ApplicationID)
		case !errors.Is(err, domain.ErrTransitionLogNotFound):
			return nil, err
		}
	}

	app, err := t.appRepo.Get(ctx, input.ApplicationID)
	if err != nil {
		return nil, err
	}

	if !t.policy.Allows(app.Status, input.TargetStatus, input.ReasonCode, input.ActorRole) {
		return nil, apperrors.Wrapf(
			domain.ErrInvalidTransition,
			"%s -> %s with reason %s is not allowed for role %s",
			app.Status,
			input.TargetStatus,
			input.ReasonCode,
			input.ActorRole,
		)
	}

	now := t.now()
	log := domain.NewTransitionLog(app, input, now)

	err = t.txManager.WithTx(ctx, func(txCtx context.Context) error {
		if err := t.appRepo.UpdateStatus(txCtx, app.ID, input.TargetStatus, app.Version, now); err != nil {
			return err
		}
		if err := t.logRepo.Create(txCtx, log); err != nil {
			return err
		}

		stateChanged, err := t.outbox.Append(txCtx, newStateChangedEvent(app, log, input.CorrelationID))
		if err != nil {
			return err
		}

		causationID := stateChanged.ID.String()
		for _, factory := range FollowUpsFor(input.TargetStatus) {
			followUp := factory(app, log, t.config)
			followUp.Event.CorrelationID = input.CorrelationID
			followUp.Event.CausationID = &causationID

			if followUp.NotBefore.IsZero() {
				_, err = t.outbox.Append(txCtx, followUp.Event)
			} else {
				_, err = t.outbox.AppendScheduled(txCtx, followUp.Event, followUp.NotBefore)
			}
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	app.Status = input.TargetStatus
	app.Version++
	app.UpdatedAt = now

	if t.logger != nil {
		t.logger.Info("application transitioned",
			slog.String("application_id", app.ID.String()),
			slog.String("from_status", string(log.FromStatus)),
			slog.String("to_status", string(log.ToStatus)),
			slog.String("reason_code", string(log.ReasonCode)),
			slog.String("actor_role", string(log.ActorRole)),
			slog.Int64("version", app.Version),
		)
	}

	return app, nil
}

// wait sleeps a random duration up to RetryDelay or until ctx is done.
func (t *transitionUseCase) wait(ctx context.Context) error {
	if t.config.RetryDelay <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(rand.N(t.config.RetryDelay + 1))
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func isRetryable(err error) bool {
	return errors.Is(err, domain.ErrConcurrentModification) || errors.Is(err, domain.ErrIdempotencyKeyConflict)
}
