package http

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const portalOrigin = "https://portal.admissions.example.edu"

func newCORSRouter(t *testing.T, enabled bool, origins string) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	router := gin.New()
	if middleware := createCORSMiddleware(enabled, origins, slog.Default()); middleware != nil {
		router.Use(middleware)
	}
	router.GET("/v1/applications/:id", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"id": c.Param("id")})
	})
	router.POST("/v1/applications/:id/transitions", func(c *gin.Context) {
		c.JSON(http.StatusCreated, gin.H{"id": c.Param("id")})
	})
	return router
}

func TestCreateCORSMiddleware(t *testing.T) {
	tests := []struct {
		name    string
		enabled bool
		origins string
		wantNil bool
	}{
		{name: "disabled", enabled: false, origins: portalOrigin, wantNil: true},
		{name: "enabled without origins", enabled: true, origins: "", wantNil: true},
		{name: "only separators", enabled: true, origins: " , ,", wantNil: true},
		{name: "single origin", enabled: true, origins: portalOrigin},
		{name: "several origins", enabled: true, origins: portalOrigin + ", https://staff.admissions.example.edu"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			middleware := createCORSMiddleware(tt.enabled, tt.origins, slog.Default())
			if tt.wantNil {
				assert.Nil(t, middleware)
			} else {
				assert.NotNil(t, middleware)
			}
		})
	}
}

func TestParseOrigins(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{name: "empty", input: "", want: nil},
		{
			name:  "trims whitespace",
			input: " https://portal.admissions.example.edu , https://staff.admissions.example.edu ",
			want:  []string{"https://portal.admissions.example.edu", "https://staff.admissions.example.edu"},
		},
		{
			name:  "drops trailing slash",
			input: "https://portal.admissions.example.edu/",
			want:  []string{"https://portal.admissions.example.edu"},
		},
		{
			name:  "removes duplicates",
			input: "https://portal.admissions.example.edu,https://portal.admissions.example.edu/",
			want:  []string{"https://portal.admissions.example.edu"},
		},
		{name: "skips blanks", input: ",,", want: []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, parseOrigins(tt.input))
		})
	}
}

func TestCORS_SimpleRequest(t *testing.T) {
	t.Run("AllowedOrigin", func(t *testing.T) {
		router := newCORSRouter(t, true, portalOrigin+"/")

		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/v1/applications/app-1", nil)
		req.Header.Set("Origin", portalOrigin)
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, portalOrigin, w.Header().Get("Access-Control-Allow-Origin"))
		assert.Contains(t, w.Header().Get("Access-Control-Expose-Headers"), "X-Request-Id")
		assert.Contains(t, w.Header().Get("Access-Control-Expose-Headers"), "Retry-After")
		assert.Empty(t, w.Header().Get("Access-Control-Allow-Credentials"))
	})

	t.Run("UnknownOriginRejected", func(t *testing.T) {
		router := newCORSRouter(t, true, portalOrigin)

		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/v1/applications/app-1", nil)
		req.Header.Set("Origin", "https://elsewhere.example.com")
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusForbidden, w.Code)
		assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("Disabled", func(t *testing.T) {
		router := newCORSRouter(t, false, portalOrigin)

		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/v1/applications/app-1", nil)
		req.Header.Set("Origin", portalOrigin)
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
	})
}

func TestCORS_TransitionPreflight(t *testing.T) {
	router := newCORSRouter(t, true, portalOrigin)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodOptions, "/v1/applications/app-1/transitions", nil)
	req.Header.Set("Origin", portalOrigin)
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	req.Header.Set("Access-Control-Request-Headers", "Content-Type, Idempotency-Key")
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, portalOrigin, w.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Methods"), http.MethodPost)
	assert.NotContains(t, w.Header().Get("Access-Control-Allow-Methods"), http.MethodDelete)
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Headers"), "Idempotency-Key")
	assert.NotContains(t, w.Header().Get("Access-Control-Allow-Headers"), "Authorization")
}
