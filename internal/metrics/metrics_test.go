// internal/metrics/metrics_test.go
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

func TestCountersAndHandler(t *testing.T) {
	m := New()
	m.VoteApplied("up")
	m.VoteApplied("up")
	m.PieceRequest("ok")
	m.CasesClosed(2)
	m.CasesClosed(0)
	m.ObserveHTTP("GET", "/v1/health", 200, 5*time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.votes.WithLabelValues("up")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.pieceRequests.WithLabelValues("ok")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.casesClosed))

	w := httptest.NewRecorder()
	m.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "freshshare_votes_total")
	assert.Contains(t, w.Body.String(), "freshshare_http_request_duration_seconds")
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.VoteApplied("down")
		m.Recalculated()
		m.PieceRequest("error")
		m.CasesClosed(1)
		m.VersionConflict("group")
		m.ObserveHTTP("POST", "/x", 500, time.Second)
	})
	assert.Nil(t, m.Registry())
}
