// Package metrics exposes import and HTTP counters in Prometheus format.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/korhy/cookbook/internal/core"
)

// Metrics implements core.Observer and records HTTP request metrics.
type Metrics struct {
	rowsTotal        *prometheus.CounterVec
	batchesTotal     *prometheus.CounterVec
	batchRows        *prometheus.HistogramVec
	commitSeconds    *prometheus.HistogramVec
	stageSeconds     *prometheus.HistogramVec
	lastStageSuccess *prometheus.GaugeVec

	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
}

// New registers every collector with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		rowsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "cookbook_import_rows_total",
			Help: "Rows seen by the importer, by stage and outcome",
		}, []string{"stage", "outcome"}),

		batchesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "cookbook_import_batches_total",
			Help: "Batches committed to the store",
		}, []string{"stage"}),

		batchRows: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "cookbook_import_batch_rows",
			Help:    "Rows per committed batch",
			Buckets: prometheus.ExponentialBuckets(1, 4, 8),
		}, []string{"stage"}),

		commitSeconds: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "cookbook_import_commit_seconds",
			Help:    "Batch commit latency in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"stage"}),

		stageSeconds: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "cookbook_import_stage_seconds",
			Help:    "Stage wall time in seconds",
			Buckets: prometheus.ExponentialBuckets(0.01, 4, 10),
		}, []string{"stage"}),

		lastStageSuccess: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "cookbook_import_last_stage_success_timestamp_seconds",
			Help: "Unix time of the last stage that finished without row errors",
		}, []string{"stage"}),

		httpRequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "cookbook_http_requests_total",
			Help: "HTTP requests by route, method and status",
		}, []string{"route", "method", "status"}),

		httpRequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "cookbook_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "method"}),
	}
}

func (m *Metrics) RowProcessed(stage core.Stage) {
	m.rowsTotal.WithLabelValues(string(stage), "processed").Inc()
}

func (m *Metrics) RowSkipped(stage core.Stage) {
	m.rowsTotal.WithLabelValues(string(stage), "skipped").Inc()
}

func (m *Metrics) RowFailed(stage core.Stage) {
	m.rowsTotal.WithLabelValues(string(stage), "error").Inc()
}

func (m *Metrics) RowRejected(stage core.Stage) {
	m.rowsTotal.WithLabelValues(string(stage), "rejected").Inc()
}

func (m *Metrics) BatchCommitted(stage core.Stage, rows int, seconds float64) {
	s := string(stage)
	m.batchesTotal.WithLabelValues(s).Inc()
	m.batchRows.WithLabelValues(s).Observe(float64(rows))
	m.commitSeconds.WithLabelValues(s).Observe(seconds)
}

func (m *Metrics) StageFinished(r *core.StageResult) {
	s := string(r.Stage)
	m.stageSeconds.WithLabelValues(s).Observe(r.Duration.Seconds())
	if r.Errors == 0 && r.Rejected == 0 && !r.DryRun {
		end := r.EndTime
		if end.IsZero() {
			end = time.Now()
		}
		m.lastStageSuccess.WithLabelValues(s).Set(float64(end.Unix()))
	}
}

// ObserveRequest records one served HTTP request. route is the matched
// pattern, not the raw path, to keep label cardinality bounded.
func (m *Metrics) ObserveRequest(route, method string, status int, d time.Duration) {
	if route == "" {
		route = "unmatched"
	}
	m.httpRequestsTotal.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	m.httpRequestDuration.WithLabelValues(route, method).Observe(d.Seconds())
}

var _ core.Observer = (*Metrics)(nil)
