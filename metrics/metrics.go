// Package metrics exports field encryption counters to Prometheus
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// DefaultNamespace prefixes every metric unless another namespace is configured
const DefaultNamespace = "field_encryption"

// Metrics implements interfaces.HookRecorder and interfaces.BatchRecorder
type Metrics struct {
	toggles         *prometheus.CounterVec
	hookInvocations *prometheus.CounterVec
	rewrites        *prometheus.CounterVec
	castFailures    *prometheus.CounterVec
	batchDocuments  *prometheus.CounterVec
	batchDuration   *prometheus.HistogramVec
}

// New registers the field encryption metrics with reg. A nil reg uses the default
// registerer.
func New(namespace string, reg prometheus.Registerer) (*Metrics, error) {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Metrics{}
	err := register(reg, func(f promauto.Factory) {
		m.toggles = f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "toggles_total",
				Help:      "Values flipped by the toggle transform",
			},
			[]string{"model", "direction"}, // "encrypt", "decrypt"
		)
		m.hookInvocations = f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "hook_invocations_total",
				Help:      "Field hook invocations; save and read counts of a path should match",
			},
			[]string{"model", "path", "phase"},
		)
		m.rewrites = f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rewrites_total",
				Help:      "Query and update condition rewrites",
			},
			[]string{"model", "status"},
		)
		m.castFailures = f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cast_failures_total",
				Help:      "Date-cipher values that could not be cast to a date",
			},
			[]string{"model"},
		)
		m.batchDocuments = f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "batch_documents_total",
				Help:      "Documents visited by batch encryption",
			},
			[]string{"model", "result"}, // "unchanged", "changed", "failed"
		)
		m.batchDuration = f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "batch_duration_seconds",
				Help:      "Duration of batch encryption runs in seconds",
				Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
			},
			[]string{"model"},
		)
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}

// register converts the registration panic of promauto into an error
func register(reg prometheus.Registerer, fn func(promauto.Factory)) (err error) {
	defer func() {
		if r := recover(); r != nil {
			if e, ok := r.(error); ok {
				err = e
				return
			}
			panic(r)
		}
	}()
	fn(promauto.With(reg))
	return nil
}

func (m *Metrics) RecordHook(model, path, phase string) {
	m.hookInvocations.WithLabelValues(model, path, phase).Inc()
}

func (m *Metrics) RecordToggle(model, direction string) {
	m.toggles.WithLabelValues(model, direction).Inc()
}

func (m *Metrics) RecordRewrite(model string, err error) {
	status := "success"
	if err != nil {
		status = "failed"
	}
	m.rewrites.WithLabelValues(model, status).Inc()
}

func (m *Metrics) RecordCastFailure(model string) {
	m.castFailures.WithLabelValues(model).Inc()
}

func (m *Metrics) RecordBatch(model string, processed, changed, failed int, elapsed time.Duration) {
	unchanged := processed - changed - failed
	if unchanged < 0 {
		unchanged = 0
	}
	m.batchDocuments.WithLabelValues(model, "unchanged").Add(float64(unchanged))
	m.batchDocuments.WithLabelValues(model, "changed").Add(float64(changed))
	m.batchDocuments.WithLabelValues(model, "failed").Add(float64(failed))
	m.batchDuration.WithLabelValues(model).Observe(elapsed.Seconds())
}
