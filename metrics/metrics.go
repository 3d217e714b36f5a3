// Package metrics wires a persistq.Queue's StartTimer/Rejected capability
// interface to Prometheus collectors, plus a ringsample.Buffer of recent
// latencies for cheap, lock-free percentile sampling without walking a
// Prometheus histogram.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/accurit/persistq"
	"github.com/accurit/persistq/ringsample"
)

// defaultSampleCapacity bounds the in-memory latency sample window kept
// alongside the Prometheus histograms.
const defaultSampleCapacity = 256

// Recorder implements persistq.MetricsRecorder. Construct one with
// NewRecorder and pass it to a queue via persistq.WithMetrics.
type Recorder struct {
	duration *prometheus.HistogramVec
	rejected *prometheus.CounterVec

	enqueueSamples *ringsample.Buffer[time.Duration]
	dequeueSamples *ringsample.Buffer[time.Duration]

	now func() time.Time
}

// Option configures a Recorder at construction time.
type Option func(*Recorder)

// WithClock overrides the time source Recorder uses to measure operation
// durations. Intended for tests driving deterministic latencies;
// production callers should not need this.
func WithClock(now func() time.Time) Option {
	return func(r *Recorder) { r.now = now }
}

// NewRecorder registers its collectors with reg (typically
// prometheus.DefaultRegisterer, or a per-test registry) under the
// "persistq" namespace.
func NewRecorder(reg prometheus.Registerer, opts ...Option) *Recorder {
	factory := promauto.With(reg)

	r := &Recorder{
		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "persistq",
			Name:      "operation_duration_seconds",
			Help:      "Time spent inside a persistq.Queue enqueue or dequeue call.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op"}),
		rejected: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "persistq",
			Name:      "rejected_total",
			Help:      "Number of non-blocking or timed-out enqueue/dequeue attempts that found no room or no data.",
		}, []string{"op"}),
		enqueueSamples: ringsample.New[time.Duration](defaultSampleCapacity),
		dequeueSamples: ringsample.New[time.Duration](defaultSampleCapacity),
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// StartTimer implements persistq.MetricsRecorder.
func (r *Recorder) StartTimer(op persistq.Op) persistq.Timer {
	return &token{r: r, op: op, start: r.now()}
}

// Rejected implements persistq.MetricsRecorder.
func (r *Recorder) Rejected(op persistq.Op) {
	r.rejected.WithLabelValues(string(op)).Inc()
}

// RecentLatencies returns a best-effort, oldest-to-newest snapshot of the
// most recent operation latencies for op.
func (r *Recorder) RecentLatencies(op persistq.Op) []time.Duration {
	switch op {
	case persistq.OpEnqueue:
		return r.enqueueSamples.Snapshot()
	case persistq.OpDequeue:
		return r.dequeueSamples.Snapshot()
	default:
		return nil
	}
}

// WorstRecentLatency returns the slowest sample currently held in op's
// window, and false if no samples have been recorded yet.
func (r *Recorder) WorstRecentLatency(op persistq.Op) (time.Duration, bool) {
	switch op {
	case persistq.OpEnqueue:
		return ringsample.Max(r.enqueueSamples)
	case persistq.OpDequeue:
		return ringsample.Max(r.dequeueSamples)
	default:
		return 0, false
	}
}

// token is the persistq.Timer returned by StartTimer.
type token struct {
	r     *Recorder
	op    persistq.Op
	start time.Time
}

func (t *token) Stop() {
	d := t.r.now().Sub(t.start)
	t.r.duration.WithLabelValues(string(t.op)).Observe(d.Seconds())
	switch t.op {
	case persistq.OpEnqueue:
		t.r.enqueueSamples.Add(d)
	case persistq.OpDequeue:
		t.r.dequeueSamples.Add(d)
	}
}
