// Package metrics exports per-run counters on a private prometheus registry.
//
// A run is a short-lived batch process, so there is no scrape endpoint: the
// registry is written once, at the end of the run, in the node-exporter
// textfile format.
package metrics

import (
	"fmt"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "sraship"

// Side labels.
const (
	Side1 = "read1"
	Side2 = "read2"
)

// Run holds the metrics of one run.
type Run struct {
	reg *prometheus.Registry

	pairs    prometheus.Counter
	batches  *prometheus.CounterVec
	bytes    *prometheus.CounterVec
	state    prometheus.Gauge
	duration prometheus.Gauge

	started time.Time
}

// New registers the run metrics for pipeline on a fresh registry.
func New(pipeline string) *Run {
	labels := prometheus.Labels{"pipeline": pipeline}
	r := &Run{
		reg: prometheus.NewRegistry(),
		pairs: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "pairs_total",
			Help:        "Read pairs written to the pipes.",
			ConstLabels: labels,
		}),
		batches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "batches_total",
			Help:        "Batches flushed, by whether the flush was final.",
			ConstLabels: labels,
		}, []string{"final"}),
		bytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "bytes_written_total",
			Help:        "Bytes written per read side.",
			ConstLabels: labels,
		}, []string{"side"}),
		state: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        "run_state",
			Help:        "Current lifecycle state of the run.",
			ConstLabels: labels,
		}),
		duration: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        "run_duration_seconds",
			Help:        "Wall time of the run.",
			ConstLabels: labels,
		}),
		started: time.Now(),
	}
	r.reg.MustRegister(r.pairs, r.batches, r.bytes, r.state, r.duration)
	return r
}

// OnFlush counts a flushed batch of pairs.
func (r *Run) OnFlush(pairs int, final bool) {
	r.pairs.Add(float64(pairs))
	r.batches.WithLabelValues(strconv.FormatBool(final)).Inc()
}

// AddBytes records bytes written on one side.
func (r *Run) AddBytes(side string, n int64) {
	if n > 0 {
		r.bytes.WithLabelValues(side).Add(float64(n))
	}
}

// SetState records the lifecycle state.
func (r *Run) SetState(state int) {
	r.state.Set(float64(state))
}

// Finish records the elapsed run time.
func (r *Run) Finish() {
	r.duration.Set(time.Since(r.started).Seconds())
}

// Registry returns the underlying registry.
func (r *Run) Registry() *prometheus.Registry {
	return r.reg
}

// WriteTextfile writes all metrics to path, replacing it atomically.
func (r *Run) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, r.reg); err != nil {
		return fmt.Errorf("write metrics: %w", err)
	}
	return nil
}
