package metrics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scrape(t *testing.T, provider *Provider) string {
	t.Helper()
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	provider.Handler().ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	return w.Body.String()
}

func TestNewProvider(t *testing.T) {
	tests := []struct {
		name        string
		namespace   string
		wantService string
	}{
		{name: "Configured namespace", namespace: "admissions_staging", wantService: "admissions_staging"},
		{name: "Empty namespace falls back", namespace: "", wantService: DefaultNamespace},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider, err := NewProvider(tt.namespace)
			require.NoError(t, err)
			require.NotNil(t, provider.meterProvider)
			require.NotNil(t, provider.exporter)
			require.NotNil(t, provider.registry)

			om, err := NewOutboxMetrics(provider.MeterProvider(), tt.wantService)
			require.NoError(t, err)
			om.RecordDispatch(context.Background(), "published", "NORMAL", "")

			assert.Contains(t, scrape(t, provider), `service_name="`+tt.wantService+`"`)
		})
	}
}

func TestProvider_ServesAdmissionsAndOutboxMetrics(t *testing.T) {
	provider, err := NewProvider(DefaultNamespace)
	require.NoError(t, err)
	defer func() {
		assert.NoError(t, provider.Shutdown(context.Background()))
	}()

	business, err := NewBusinessMetrics(provider.MeterProvider(), DefaultNamespace)
	require.NoError(t, err)
	outbox, err := NewOutboxMetrics(provider.MeterProvider(), DefaultNamespace)
	require.NoError(t, err)

	ctx := context.Background()
	business.RecordOperation(ctx, "applications", "transition", "success")
	outbox.RecordDispatch(ctx, "released", "NORMAL", "")

	output := scrape(t, provider)
	assertBizMetricLine(t, output, `admissions_operations_total`,
		`domain="applications".*operation="transition".*status="success"`, `1`)
	assertBizMetricLine(t, output, `admissions_outbox_dispatch_total`, `outcome="released"`, `1`)
}

func TestProvider_RegistriesAreIsolated(t *testing.T) {
	first, err := NewProvider(DefaultNamespace)
	require.NoError(t, err)
	second, err := NewProvider(DefaultNamespace)
	require.NoError(t, err)

	om, err := NewOutboxMetrics(first.MeterProvider(), DefaultNamespace)
	require.NoError(t, err)
	om.RecordDispatch(context.Background(), "published", "CRITICAL", "")

	assert.Contains(t, scrape(t, first), "admissions_outbox_dispatch_total")
	assert.NotContains(t, scrape(t, second), "admissions_outbox_dispatch_total")
}

func TestProvider_Shutdown(t *testing.T) {
	t.Run("Success_ShutdownProvider", func(t *testing.T) {
		provider, err := NewProvider(DefaultNamespace)
		require.NoError(t, err)

		assert.NoError(t, provider.Shutdown(context.Background()))
	})

	t.Run("Success_ShutdownNilProvider", func(t *testing.T) {
		provider := &Provider{meterProvider: nil}

		assert.NoError(t, provider.Shutdown(context.Background()))
	})
}
