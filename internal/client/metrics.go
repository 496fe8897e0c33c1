package client

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics tracks decode-loop behavior. A nil *Metrics is valid and
// records nothing, so the loop never branches on observability config.
type Metrics struct {
	snapshots      prometheus.Counter
	decodeFailures prometheus.Counter
	skippedVars    prometheus.Counter
	tornReads      prometheus.Counter
	varsDeclared   prometheus.Gauge
	decodeSeconds  prometheus.Histogram
}

// NewMetrics registers the loop's collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		snapshots: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "simtap_snapshots_total",
			Help: "Snapshots decoded successfully.",
		}),
		decodeFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "simtap_decode_failures_total",
			Help: "Snapshots aborted by a decode or IO failure.",
		}),
		skippedVars: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "simtap_skipped_vars_total",
			Help: "Variable descriptors skipped for unknown type codes.",
		}),
		tornReads: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "simtap_torn_reads_total",
			Help: "Snapshots discarded by the post-read tick re-check.",
		}),
		varsDeclared: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "simtap_vars_declared",
			Help: "Variables decoded from the most recent snapshot.",
		}),
		decodeSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "simtap_decode_seconds",
			Help:    "Wall time of one snapshot decode pass.",
			Buckets: prometheus.ExponentialBuckets(0.00001, 2, 12),
		}),
	}
	reg.MustRegister(m.snapshots, m.decodeFailures, m.skippedVars, m.tornReads, m.varsDeclared, m.decodeSeconds)
	return m
}

func (m *Metrics) snapshot(vars int, took time.Duration) {
	if m == nil {
		return
	}
	m.snapshots.Inc()
	m.varsDeclared.Set(float64(vars))
	m.decodeSeconds.Observe(took.Seconds())
}

func (m *Metrics) decodeFailure() {
	if m == nil {
		return
	}
	m.decodeFailures.Inc()
}

func (m *Metrics) skippedVar() {
	if m == nil {
		return
	}
	m.skippedVars.Inc()
}

func (m *Metrics) tornRead() {
	if m == nil {
		return
	}
	m.tornReads.Inc()
}
