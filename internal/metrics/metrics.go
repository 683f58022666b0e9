// internal/metrics/metrics.go
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "freshshare"

// Metrics owns its own registry so tests can build as many as they like.
// All methods are safe on a nil receiver.
type Metrics struct {
	registry         *prometheus.Registry
	votes            *prometheus.CounterVec
	recalculations   prometheus.Counter
	pieceRequests    *prometheus.CounterVec
	casesClosed      prometheus.Counter
	versionConflicts *prometheus.CounterVec
	httpDuration     *prometheus.HistogramVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		votes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "votes_total",
			Help:      "Votes applied to ranked products.",
		}, []string{"vote"}),
		recalculations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rank_recalculations_total",
			Help:      "Rank recalculations that changed a group.",
		}),
		pieceRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "piece_requests_total",
			Help:      "Piece reservation requests by outcome.",
		}, []string{"status"}),
		casesClosed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cases_closed_total",
			Help:      "Cases that filled up and closed.",
		}),
		versionConflicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "version_conflicts_total",
			Help:      "Optimistic save attempts that lost a race.",
		}, []string{"aggregate"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.votes,
		m.recalculations,
		m.pieceRequests,
		m.casesClosed,
		m.versionConflicts,
		m.httpDuration,
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) VoteApplied(vote string) {
	if m != nil {
		m.votes.WithLabelValues(vote).Inc()
	}
}

func (m *Metrics) Recalculated() {
	if m != nil {
		m.recalculations.Inc()
	}
}

func (m *Metrics) PieceRequest(status string) {
	if m != nil {
		m.pieceRequests.WithLabelValues(status).Inc()
	}
}

func (m *Metrics) CasesClosed(n int) {
	if m != nil && n > 0 {
		m.casesClosed.Add(float64(n))
	}
}

func (m *Metrics) VersionConflict(aggregate string) {
	if m != nil {
		m.versionConflicts.WithLabelValues(aggregate).Inc()
	}
}

func (m *Metrics) ObserveHTTP(method, route string, status int, elapsed time.Duration) {
	if m != nil {
		m.httpDuration.WithLabelValues(method, route, strconv.Itoa(status)).Observe(elapsed.Seconds())
	}
}
