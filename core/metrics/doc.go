// Package metrics defines the sinks that observe routing outcomes. A sink
// must record assignments and may implement the optional recorders for
// acks, completions and worker zone updates. Several sinks are combined
// with NewMultiSink, which the factory helpers do automatically when more
// than one sink is configured.
package metrics
