package metrics

import (
	"errors"
	"fmt"

	"github.com/kilianp07/zonedispatch/core/factory"
)

var sinkRegistry = factory.NewRegistry[MetricsSink]()

// RegisterMetricsSink adds a metrics sink factory identified by name.
func RegisterMetricsSink(name string, f factory.Factory[MetricsSink]) error {
	return sinkRegistry.Register(name, f)
}

// NewMetricsSink builds every configured sink. No sink means NopSink and
// several are fanned out through a MultiSink. Sinks built before a failure
// are closed when they support it.
func NewMetricsSink(cfgs []factory.ModuleConfig) (MetricsSink, error) {
	var sinks []MetricsSink
	for i, c := range cfgs {
		s, err := sinkRegistry.Create(c)
		if err != nil {
			return nil, errors.Join(fmt.Errorf("metrics sink %d (%s): %w", i, c.Type, err), closeSinks(sinks))
		}
		sinks = append(sinks, s)
	}
	switch len(sinks) {
	case 0:
		return NopSink{}, nil
	case 1:
		return sinks[0], nil
	}
	return NewMultiSink(sinks...), nil
}

func closeSinks(sinks []MetricsSink) error {
	var errs []error
	for _, s := range sinks {
		errs = append(errs, Close(s))
	}
	return errors.Join(errs...)
}

// SinkTypes lists the registered sink types.
func SinkTypes() []string { return sinkRegistry.Types() }
