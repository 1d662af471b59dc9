package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"

	"github.com/allisson/admissions/internal/app"
	"github.com/allisson/admissions/internal/config"
	outboxUseCase "github.com/allisson/admissions/internal/outbox/usecase"
)

// shutdownTimeout bounds the graceful shutdown of the servers.
const shutdownTimeout = 30 * time.Second

// service is a long running server that can be stopped gracefully.
type service interface {
	Start(ctx context.Context) error
	Shutdown(ctx context.Context) error
}

// RunServer starts the API server, the metrics server, and the outbox scheduler.
// Blocks until receiving SIGINT/SIGTERM or until one of them fails, then stops the
// servers gracefully.
func RunServer(ctx context.Context, version string) error {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	// Set Gin mode based on log level
	gin.SetMode(cfg.GetGinMode())

	container := app.NewContainer(cfg)

	logger := container.Logger()
	logger.Info("starting server", slog.String("version", version))

	defer closeContainer(container, logger)

	// Get HTTP server from container (this initializes all dependencies)
	server, err := container.HTTPServer()
	if err != nil {
		return fmt.Errorf("failed to initialize HTTP server: %w", err)
	}

	metricsServer, err := container.MetricsServer()
	if err != nil {
		return fmt.Errorf("failed to initialize metrics server: %w", err)
	}

	scheduler, err := container.OutboxScheduler()
	if err != nil {
		return fmt.Errorf("failed to initialize outbox scheduler: %w", err)
	}

	services := []service{server}
	if metricsServer != nil {
		services = append(services, metricsServer)
	}

	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	return serve(ctx, logger, services, scheduler)
}

// RunWorker runs the outbox scheduler without the API, for deployments that scale
// delivery separately from request handling.
func RunWorker(ctx context.Context, version string) error {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	container := app.NewContainer(cfg)

	logger := container.Logger()
	logger.Info("starting worker", slog.String("version", version))

	defer closeContainer(container, logger)

	scheduler, err := container.OutboxScheduler()
	if err != nil {
		return fmt.Errorf("failed to initialize outbox scheduler: %w", err)
	}

	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	return serve(ctx, logger, nil, scheduler)
}

// serve runs services and scheduler until ctx is done or one of them fails.
func serve(
	ctx context.Context,
	logger *slog.Logger,
	services []service,
	scheduler *outboxUseCase.Scheduler,
) error {
	g, gctx := errgroup.WithContext(ctx)

	for _, svc := range services {
		g.Go(func() error {
			return svc.Start(gctx)
		})
	}

	if scheduler != nil {
		g.Go(func() error {
			return scheduler.Run(gctx)
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		if ctx.Err() != nil {
			logger.Info("shutdown signal received")
		} else {
			logger.Error("service failed, initiating shutdown")
		}

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer shutdownCancel()

		var shutdownErrors []error
		for _, svc := range services {
			if err := svc.Shutdown(shutdownCtx); err != nil {
				shutdownErrors = append(shutdownErrors, err)
			}
		}
		return errors.Join(shutdownErrors...)
	})

	return g.Wait()
}
