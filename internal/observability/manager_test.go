package observability

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx/fxtest"
	"go.uber.org/zap"

	"github.com/Additional-Code/bistro/internal/config"
)

func TestManagerServesPrometheusMetrics(t *testing.T) {
	cfg := config.Config{}
	cfg.Observability.ServiceName = "bistro-test"
	cfg.Observability.EnableMetrics = true
	cfg.Observability.MetricsExporter = "prometheus"

	lc := fxtest.NewLifecycle(t)
	mgr, err := NewManager(lc, cfg, zap.NewNop())
	require.NoError(t, err)
	lc.RequireStart()
	defer lc.RequireStop()

	assert.False(t, mgr.TracingEnabled())
	require.True(t, mgr.MetricsEnabled())

	rec := httptest.NewRecorder()
	mgr.MetricsHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestManagerNoneExporters(t *testing.T) {
	cfg := config.Config{}
	cfg.Observability.EnableTracing = true
	cfg.Observability.TraceExporter = "none"
	cfg.Observability.EnableMetrics = true
	cfg.Observability.MetricsExporter = "none"

	mgr, err := NewManager(fxtest.NewLifecycle(t), cfg, zap.NewNop())
	require.NoError(t, err)
	assert.False(t, mgr.TracingEnabled())
	assert.False(t, mgr.MetricsEnabled())
	assert.Nil(t, mgr.MetricsHandler())
}

func TestSampler(t *testing.T) {
	assert.Contains(t, sampler(1).Description(), "AlwaysOnSampler")
	assert.Contains(t, sampler(0).Description(), "AlwaysOffSampler")
	assert.Contains(t, sampler(0.25).Description(), "TraceIDRatioBased{0.25}")
}
