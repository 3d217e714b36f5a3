package persistq

import (
	"github.com/go-kit/log"
)

// Timer is the capability a MetricsRecorder hands back from StartTimer; it
// is the explicit "start_timer/stop" interface this package uses instead
// of runtime-generated proxies for latency recording.
type Timer interface {
	Stop()
}

// Op names the operation a Timer or rejection counter is being recorded
// for.
type Op string

const (
	OpEnqueue Op = "enqueue"
	OpDequeue Op = "dequeue"
)

// MetricsRecorder is the small capability a Queue consumes to observe its
// own latency and rejection behavior. metrics.Recorder implements this;
// nothing in this package imports the metrics package, so a Queue never
// forces that dependency onto a caller who doesn't want it.
type MetricsRecorder interface {
	StartTimer(op Op) Timer
	Rejected(op Op)
}

// Option configures a Queue at construction time.
type Option[T any] func(*queueConfig[T])

type queueConfig[T any] struct {
	logger        log.Logger
	metrics       MetricsRecorder
	dontCloseFile bool
}

func defaultConfig[T any]() *queueConfig[T] {
	return &queueConfig[T]{
		logger: log.NewNopLogger(),
	}
}

// WithLogger injects a structured logger (github.com/go-kit/log). The
// default is a no-op logger. The only line the queue logs is a warning
// when Flush swallows a mapping error; corruption and header mismatches
// are returned as errors and are not logged.
func WithLogger[T any](logger log.Logger) Option[T] {
	return func(c *queueConfig[T]) { c.logger = logger }
}

// WithMetrics attaches a MetricsRecorder (typically a *metrics.Recorder).
// Omitted, the queue records nothing and pays no overhead for timers.
func WithMetrics[T any](m MetricsRecorder) Option[T] {
	return func(c *queueConfig[T]) { c.metrics = m }
}

// WithoutClosingFile prevents Close from closing the underlying *os.File,
// for callers that manage the file's lifecycle independently.
func WithoutClosingFile[T any]() Option[T] {
	return func(c *queueConfig[T]) { c.dontCloseFile = true }
}
