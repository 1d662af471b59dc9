package http

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	applicationHTTP "github.com/allisson/admissions/internal/application/http"
)

const requestIDHeader = "X-Request-Id"

// corsAllowHeaders are the request headers the admissions portal sends on writes.
// Idempotency-Key lets a browser retry a transition without recording it twice.
var corsAllowHeaders = []string{
	"Content-Type",
	applicationHTTP.IdempotencyKeyHeader,
	requestIDHeader,
}

// corsExposeHeaders are the response headers browser clients may read.
var corsExposeHeaders = []string{
	requestIDHeader,
	"Retry-After",
}

// createCORSMiddleware creates a CORS middleware for browser clients such as the admissions
// portal. Returns nil if CORS is disabled or no valid origins are configured.
func createCORSMiddleware(enabled bool, allowOriginsStr string, logger *slog.Logger) gin.HandlerFunc {
	if !enabled {
		return nil
	}

	if allowOriginsStr == "" {
		logger.Warn("CORS enabled but no origins configured - CORS will not be applied")
		return nil
	}

	origins := parseOrigins(allowOriginsStr)
	if len(origins) == 0 {
		logger.Warn("CORS enabled but no valid origins found")
		return nil
	}

	logger.Info("CORS enabled",
		slog.Int("origin_count", len(origins)),
		slog.Any("origins", origins))

	// The API is stateless and carries no cookies, so credentials stay disabled.
	return cors.New(cors.Config{
		AllowOrigins:  origins,
		AllowMethods:  []string{http.MethodGet, http.MethodPost},
		AllowHeaders:  corsAllowHeaders,
		ExposeHeaders: corsExposeHeaders,
		MaxAge:        12 * time.Hour,
	})
}

// parseOrigins splits a comma-separated origin list. Entries are trimmed and a trailing
// slash is dropped, since browsers send Origin without one. Duplicates are removed.
func parseOrigins(originsStr string) []string {
	if originsStr == "" {
		return nil
	}

	parts := strings.Split(originsStr, ",")
	origins := make([]string, 0, len(parts))
	seen := make(map[string]struct{}, len(parts))

	for _, part := range parts {
		origin := strings.TrimRight(strings.TrimSpace(part), "/")
		if origin == "" {
			continue
		}
		if _, ok := seen[origin]; ok {
			continue
		}
		seen[origin] = struct{}{}
		origins = append(origins, origin)
	}

	return origins
}
