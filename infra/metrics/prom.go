package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	coremetrics "github.com/kilianp07/zonedispatch/core/metrics"
)

// PromSink records routing events in Prometheus metrics.
type PromSink struct {
	assignments *prometheus.CounterVec
	scores      *prometheus.HistogramVec
	acks        *prometheus.HistogramVec
	completions *prometheus.HistogramVec
	zones       *prometheus.CounterVec
}

// NewPromSink registers routing metrics on the default Prometheus registerer.
// The HTTP endpoint is served separately, see Serve.
func NewPromSink() (coremetrics.MetricsSink, error) {
	return NewPromSinkWithRegistry(prometheus.DefaultRegisterer)
}

// NewPromSinkWithRegistry registers metrics on the provided registerer.
// A nil registerer defaults to the global Prometheus registerer.
func NewPromSinkWithRegistry(reg prometheus.Registerer) (*PromSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PromSink{
		assignments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "task_assignments_total",
			Help: "Routing outcomes by task type and result",
		}, []string{"task_type", "priority", "assigned"}),
		scores: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "task_assignment_score",
			Help:    "Score of the selected candidate",
			Buckets: prometheus.LinearBuckets(0, 10, 11),
		}, []string{"task_type"}),
		acks: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "task_ack_latency_seconds",
			Help:    "Time between assignment and worker response",
			Buckets: prometheus.ExponentialBuckets(5, 2, 8),
		}, []string{"action"}),
		completions: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "task_completion_seconds",
			Help:    "Time between task creation and completion",
			Buckets: prometheus.ExponentialBuckets(60, 2, 8),
		}, []string{"task_type"}),
		zones: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "worker_zone_changes_total",
			Help: "Applied worker zone fixes by source",
		}, []string{"source"}),
	}
	var err error
	if s.assignments, err = register(reg, s.assignments); err != nil {
		return nil, err
	}
	if s.scores, err = register(reg, s.scores); err != nil {
		return nil, err
	}
	if s.acks, err = register(reg, s.acks); err != nil {
		return nil, err
	}
	if s.completions, err = register(reg, s.completions); err != nil {
		return nil, err
	}
	if s.zones, err = register(reg, s.zones); err != nil {
		return nil, err
	}
	return s, nil
}

// register returns the already registered collector when c was registered
// before, so several sinks can share one registry.
func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

// RecordAssignment counts the outcome and observes the winning score.
func (s *PromSink) RecordAssignment(r coremetrics.AssignmentResult) error {
	s.assignments.WithLabelValues(r.TaskType.String(), r.Priority.String(), strconv.FormatBool(r.Assigned)).Inc()
	if r.Assigned {
		s.scores.WithLabelValues(r.TaskType.String()).Observe(r.Score)
	}
	return nil
}

// RecordAck observes the response latency.
func (s *PromSink) RecordAck(r coremetrics.AckRecord) error {
	s.acks.WithLabelValues(r.Action).Observe(r.Latency.Seconds())
	return nil
}

// RecordCompletion observes the task duration.
func (s *PromSink) RecordCompletion(r coremetrics.CompletionRecord) error {
	s.completions.WithLabelValues(r.TaskType.String()).Observe(r.Duration.Seconds())
	return nil
}

// RecordZoneUpdate counts applied zone fixes.
func (s *PromSink) RecordZoneUpdate(r coremetrics.ZoneUpdateRecord) error {
	s.zones.WithLabelValues(string(r.Source)).Inc()
	return nil
}
