package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounters(t *testing.T) {
	m := New()
	m.ScanOutcome(OutcomeSuccess)
	m.ScanOutcome(OutcomeSuccess)
	m.ScanOutcome(OutcomeFailure)
	m.PersistFailed()
	m.SetInFlight(true)
	m.SetHistoryItems(7)
	m.ObserveProvider(1500 * time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.ScansTotal.WithLabelValues(OutcomeSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ScansTotal.WithLabelValues(OutcomeFailure)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PersistFailures))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.InFlight))
	assert.Equal(t, 7.0, testutil.ToFloat64(m.HistoryItems))

	m.SetInFlight(false)
	assert.Equal(t, 0.0, testutil.ToFloat64(m.InFlight))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ScanOutcome(OutcomeRejected)
		m.ObserveProvider(time.Second)
		m.SetInFlight(true)
		m.PersistFailed()
		m.SetHistoryItems(3)
	})
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := New()
	m.ScanOutcome(OutcomeSuccess)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `sentinel_scans_total{outcome="success"} 1`)
}
