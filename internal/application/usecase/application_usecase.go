package usecase

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/allisson/admissions/internal/application/domain"
	"github.com/allisson/admissions/internal/database"
	apperrors "github.com/allisson/admissions/internal/errors"
)

// applicationUseCase implements UseCase.
type applicationUseCase struct {
	txManager database.TxManager
	appRepo   ApplicationRepository
	logRepo   TransitionLogRepository
	outbox    OutboxWriter
	engine    TransitionUseCase
	policy    *domain.Policy
	logger    *slog.Logger
	now       func() time.Time
}

// NewApplicationUseCase creates the application facade. Transitions are delegated to engine.
func NewApplicationUseCase(
	txManager database.TxManager,
	appRepo ApplicationRepository,
	logRepo TransitionLogRepository,
	outbox OutboxWriter,
	engine TransitionUseCase,
	policy *domain.Policy,
	logger *slog.Logger,
) UseCase {
	if policy == nil {
		policy = domain.DefaultPolicy()
	}
	return &applicationUseCase{
		txManager: txManager,
		appRepo:   appRepo,
		logRepo:   logRepo,
		outbox:    outbox,
		engine:    engine,
		policy:    policy,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Create stores a DRAFT application and its ApplicationCreated event atomically.
func (a *applicationUseCase) Create(
	ctx context.Context,
	input *domain.CreateApplicationInput,
) (*domain.Application, error) {
	input.ApplicantName = strings.TrimSpace(input.ApplicantName)
	if input.ApplicantName == "" {
		return nil, apperrors.Wrap(apperrors.ErrInvalidInput, "applicant name is required")
	}

	app := domain.NewApplication(input.ApplicantName, a.now())

	err := a.txManager.WithTx(ctx, func(txCtx context.Context) error {
		if err := a.appRepo.Create(txCtx, app); err != nil {
			return err
		}
		_, err := a.outbox.Append(txCtx, newApplicationCreatedEvent(app, input))
		return err
	})
	if err != nil {
		return nil, err
	}

	if a.logger != nil {
		a.logger.Info("application created", slog.String("application_id", app.ID.String()))
	}

	return app, nil
}

func (a *applicationUseCase) Get(ctx context.Context, id uuid.UUID) (*domain.Application, error) {
	return a.appRepo.Get(ctx, id)
}

func (a *applicationUseCase) Transition(
	ctx context.Context,
	input *domain.TransitionInput,
) (*domain.Application, error) {
	return a.engine.Transition(ctx, input)
}

// ListTransitions returns ErrApplicationNotFound for unknown applications rather than an empty history.
func (a *applicationUseCase) ListTransitions(
	ctx context.Context,
	id uuid.UUID,
	offset, limit int,
) ([]*domain.TransitionLog, error) {
	if _, err := a.appRepo.Get(ctx, id); err != nil {
		return nil, err
	}
	return a.logRepo.ListByApplication(ctx, id, offset, limit)
}

func (a *applicationUseCase) Rules() []domain.Rule {
	return a.policy.Rules()
}
