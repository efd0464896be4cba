// Package eventbus fans dispatch events out to in-process subscribers.
package eventbus

// Event represents an arbitrary event passed on the bus.
type Event interface{}

// EventBus implements a simple publish/subscribe event bus.
type EventBus interface {
	Publish(Event)
	Subscribe() <-chan Event
	Unsubscribe(<-chan Event)
	Close()
}

// Bus is the untyped bus used by the router and the tracker.
type Bus = TypedBus[Event]

// New creates a new Bus.
func New(opts ...Option) *Bus { return NewTyped[Event](opts...) }

var _ EventBus = (*Bus)(nil)
