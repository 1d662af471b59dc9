package http

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/allisson/admissions/internal/metrics"
	"github.com/allisson/admissions/internal/outbox/domain"
)

// OutboxHealthReporter evaluates outbox health without corrective action.
type OutboxHealthReporter interface {
	Snapshot(ctx context.Context) (*domain.HealthSnapshot, error)
}

// MetricsServer serves the Prometheus scrape endpoint and a read-only outbox health
// route on a port separate from the public API.
type MetricsServer struct {
	server *http.Server
	logger *slog.Logger
}

// NewMetricsServer creates a MetricsServer. /metrics is mounted when metricsProvider is set
// and /healthz/outbox when outboxHealth is set.
func NewMetricsServer(
	host string,
	port int,
	logger *slog.Logger,
	metricsProvider *metrics.Provider,
	outboxHealth OutboxHealthReporter,
) *MetricsServer {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(CustomLoggerMiddleware(logger))

	if metricsProvider != nil {
		router.GET("/metrics", gin.WrapH(metricsProvider.Handler()))
	}
	if outboxHealth != nil {
		router.GET("/healthz/outbox", outboxHealthHandler(outboxHealth, logger))
	}

	return &MetricsServer{
		server: &http.Server{
			Addr:         fmt.Sprintf("%s:%d", host, port),
			Handler:      router,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		logger: logger,
	}
}

// outboxHealthHandler answers 200 when the outbox is healthy and 503 otherwise, so an
// orchestrator can alert on a stuck dispatcher without scraping metrics.
func outboxHealthHandler(reporter OutboxHealthReporter, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		snapshot, err := reporter.Snapshot(c.Request.Context())
		if err != nil {
			logger.Error("outbox health check failed", slog.Any("error", err))
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unknown"})
			return
		}

		status, code := "healthy", http.StatusOK
		if !snapshot.Healthy {
			status, code = "unhealthy", http.StatusServiceUnavailable
		}
		reasons := snapshot.Reasons
		if reasons == nil {
			reasons = []string{}
		}
		c.JSON(code, gin.H{
			"status":     status,
			"reasons":    reasons,
			"paused":     snapshot.Paused,
			"checked_at": snapshot.CheckedAt,
		})
	}
}

// GetHandler returns the http.Handler for testing purposes.
func (s *MetricsServer) GetHandler() http.Handler {
	return s.server.Handler
}

// Start runs the server until Shutdown is called.
func (s *MetricsServer) Start(ctx context.Context) error {
	s.logger.Info("starting metrics server", slog.String("addr", s.server.Addr))

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start metrics server: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the metrics HTTP server.
func (s *MetricsServer) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down metrics server")
	return s.server.Shutdown(ctx)
}
