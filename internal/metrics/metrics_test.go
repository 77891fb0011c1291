package metrics_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mentionscan/internal/metrics"
)

func TestHelpersRecord(t *testing.T) {
	m := metrics.New(nil)

	m.Dispatched("sent")
	m.Dispatched("sent")
	m.RunFinished("complete")
	m.LLMCall("claude", "ok", 300*time.Millisecond)

	assert.InDelta(t, 2, testutil.ToFloat64(m.ScansDispatched.WithLabelValues("sent")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.ScanRunsFinished.WithLabelValues("complete")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.LLMCalls.WithLabelValues("claude", "ok")), 0)
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *metrics.Metrics
	assert.NotPanics(t, func() {
		m.Dispatched("sent")
		m.Crawled(3)
		m.Enriched("failed")
	})
}

func TestHandlerExposesCollectors(t *testing.T) {
	m := metrics.New(nil)
	m.Crawled(5)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "mentionscan_crawler_pages_count 1")
}
