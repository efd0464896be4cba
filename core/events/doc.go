// Package events defines the dispatch related events emitted on the event bus.
//
// Available event types:
//   - TaskEvent: task created, assigned, completed or rerouted
//   - EscalationEvent: no eligible worker for a task
//   - AckEvent: worker response to an assignment
//   - ZoneUpdateEvent: a worker's zone changed
//   - DeviceEvent: heartbeat or offline transition
package events
