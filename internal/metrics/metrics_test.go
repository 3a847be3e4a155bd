package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecordSync(t *testing.T) {
	m := New()
	m.RecordSync("COMPLETED", 2, 1, 0, 0.5)
	m.RecordSync("FAILED", 0, 0, 0, 0.1)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.SyncRunsTotal.WithLabelValues("COMPLETED")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SyncRunsTotal.WithLabelValues("FAILED")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.SyncTicketsTotal.WithLabelValues("new")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SyncTicketsTotal.WithLabelValues("updated")))
}

func TestRecordAnalysis(t *testing.T) {
	m := New()
	m.RecordAnalysis("keywords", false)
	m.RecordAnalysis("keywords", true)
	m.RecordAnalysis("keywords", true)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.AnalysisTotal.WithLabelValues("keywords", "ok")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.AnalysisTotal.WithLabelValues("keywords", "fallback")))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordSync("COMPLETED", 1, 1, 1, 1)
		m.RecordAnalysis("summary", true)
		m.RecordUpstream("openai", "ok")
		m.ObserveHTTP("GET", "/healthz", "200", 0.01)
	})
}

func TestHandler_ExposesMetrics(t *testing.T) {
	m := New()
	m.RecordUpstream("jira", "ok")

	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "impactlens_upstream_calls_total")
}
