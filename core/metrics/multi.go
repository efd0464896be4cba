package metrics

import "errors"

// MultiSink fans records out to multiple sinks.
type MultiSink struct {
	Sinks []MetricsSink
}

// NewMultiSink creates a MultiSink with the provided sinks.
func NewMultiSink(sinks ...MetricsSink) *MultiSink {
	return &MultiSink{Sinks: sinks}
}

// RecordAssignment forwards the result to all sinks, returning the first
// error encountered.
func (m *MultiSink) RecordAssignment(res AssignmentResult) error {
	for _, s := range m.Sinks {
		if err := s.RecordAssignment(res); err != nil {
			return err
		}
	}
	return nil
}

// RecordAck forwards ack records to sinks that support them.
func (m *MultiSink) RecordAck(rec AckRecord) error {
	for _, s := range m.Sinks {
		if r, ok := s.(AckRecorder); ok {
			if err := r.RecordAck(rec); err != nil {
				return err
			}
		}
	}
	return nil
}

// RecordCompletion forwards completion records.
func (m *MultiSink) RecordCompletion(rec CompletionRecord) error {
	for _, s := range m.Sinks {
		if r, ok := s.(CompletionRecorder); ok {
			if err := r.RecordCompletion(rec); err != nil {
				return err
			}
		}
	}
	return nil
}

// RecordZoneUpdate forwards zone updates.
func (m *MultiSink) RecordZoneUpdate(rec ZoneUpdateRecord) error {
	for _, s := range m.Sinks {
		if r, ok := s.(ZoneUpdateRecorder); ok {
			if err := r.RecordZoneUpdate(rec); err != nil {
				return err
			}
		}
	}
	return nil
}

// Close closes every sink that holds resources.
func (m *MultiSink) Close() error {
	var errs []error
	for _, s := range m.Sinks {
		errs = append(errs, Close(s))
	}
	return errors.Join(errs...)
}

// Close releases s when it implements either Close() error or Close().
func Close(s MetricsSink) error {
	switch c := s.(type) {
	case interface{ Close() error }:
		return c.Close()
	case interface{ Close() }:
		c.Close()
	}
	return nil
}
