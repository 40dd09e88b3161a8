// Package metrics exposes pipeline progress as Prometheus metrics on a
// private registry, optionally served over HTTP for the life of a run.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"chatbatch/internal/workitem"
)

const namespace = "chatbatch"

// Recorder implements pipeline.Observer.
type Recorder struct {
	registry *prometheus.Registry

	attempts        *prometheus.CounterVec
	attemptDuration *prometheus.HistogramVec
	requeues        *prometheus.CounterVec
	completed       prometheus.Gauge
	total           prometheus.Gauge
	abandoned       prometheus.Counter
	checkpoints     *prometheus.CounterVec
	checkpointItems prometheus.Gauge
}

// NewRecorder registers the run metrics on a fresh registry.
func NewRecorder() *Recorder {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Recorder{
		registry: reg,
		attempts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "attempts_total",
			Help:      "Dispatch and verification attempts by stage and outcome.",
		}, []string{"stage", "outcome"}),
		attemptDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "attempt_duration_seconds",
			Help:      "Time spent in one dispatch call or verification.",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		}, []string{"stage"}),
		requeues: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requeues_total",
			Help:      "Items sent back to the input queue.",
		}, []string{"stage", "reason"}),
		completed: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "completed_items",
			Help:      "Value of the shared completion counter.",
		}),
		total: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "total_items",
			Help:      "Number of items submitted for this run.",
		}),
		abandoned: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "abandoned_items_total",
			Help:      "Items dropped after reaching the attempt cap.",
		}),
		checkpoints: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checkpoints_total",
			Help:      "Checkpoint writes by result.",
		}, []string{"result"}),
		checkpointItems: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "checkpoint_items",
			Help:      "Items in the most recent successful checkpoint.",
		}),
	}
}

// Registry returns the registry backing the recorder.
func (r *Recorder) Registry() *prometheus.Registry { return r.registry }

// SetTotal records the number of submitted items.
func (r *Recorder) SetTotal(total int) { r.total.Set(float64(total)) }

func (r *Recorder) AttemptFinished(stage string, err error, elapsed time.Duration) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	r.attempts.WithLabelValues(stage, outcome).Inc()
	r.attemptDuration.WithLabelValues(stage).Observe(elapsed.Seconds())
}

func (r *Recorder) Requeued(stage, reason string) {
	r.requeues.WithLabelValues(stage, reason).Inc()
}

func (r *Recorder) Accepted(completed, total int) {
	r.completed.Set(float64(completed))
	r.total.Set(float64(total))
}

func (r *Recorder) Abandoned(workitem.Item) { r.abandoned.Inc() }

func (r *Recorder) Checkpointed(items int, err error) {
	if err != nil {
		r.checkpoints.WithLabelValues("error").Inc()
		return
	}
	r.checkpoints.WithLabelValues("ok").Inc()
	r.checkpointItems.Set(float64(items))
}
