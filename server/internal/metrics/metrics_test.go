package metrics

import (
	"io"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandlerExposesMetrics(t *testing.T) {
	m := New()
	m.Runs.WithLabelValues("success").Inc()
	m.Value.Set(42)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `croncounter_runs_total{outcome="success"} 1`)
	assert.Contains(t, string(body), "croncounter_value 42")
}

func TestInstancesAreIndependent(t *testing.T) {
	a, b := New(), New()
	a.PingFailures.Inc()

	assert.Equal(t, float64(1), testutil.ToFloat64(a.PingFailures))
	assert.Equal(t, float64(0), testutil.ToFloat64(b.PingFailures))
}
