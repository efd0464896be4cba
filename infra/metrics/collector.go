package metrics

import (
	"context"
	"time"

	"github.com/kilianp07/zonedispatch/core/events"
	coremetrics "github.com/kilianp07/zonedispatch/core/metrics"
	"github.com/kilianp07/zonedispatch/internal/eventbus"
)

// StartEventCollector subscribes to the event bus and forwards acks,
// completions and zone updates to the recorders sink implements. It stops
// when the context is canceled or the bus is closed.
func StartEventCollector(ctx context.Context, bus eventbus.EventBus, sink coremetrics.MetricsSink) {
	if bus == nil || sink == nil {
		return
	}
	sub := bus.Subscribe()
	go func() {
		defer bus.Unsubscribe(sub)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-sub:
				if !ok {
					return
				}
				collect(ev, sink)
			}
		}
	}()
}

func collect(ev eventbus.Event, sink coremetrics.MetricsSink) {
	switch e := ev.(type) {
	case events.AckEvent:
		if r, ok := sink.(coremetrics.AckRecorder); ok && e.Err == nil {
			_ = r.RecordAck(coremetrics.AckRecord{
				TaskID:   e.TaskID,
				WorkerID: e.WorkerID,
				Action:   e.Action,
				Latency:  e.Latency,
				Time:     time.Now(),
			})
		}
	case events.TaskEvent:
		if e.Action != events.TaskCompleted {
			return
		}
		if r, ok := sink.(coremetrics.CompletionRecorder); ok {
			_ = r.RecordCompletion(coremetrics.CompletionRecord{
				TaskID:   e.Task.ID,
				WorkerID: e.WorkerID,
				TaskType: e.Task.Type,
				Zone:     e.Task.Zone,
				Duration: e.At.Sub(e.Task.CreatedAt),
				Time:     e.At,
			})
		}
	case events.ZoneUpdateEvent:
		if r, ok := sink.(coremetrics.ZoneUpdateRecorder); ok {
			_ = r.RecordZoneUpdate(coremetrics.ZoneUpdateRecord{
				WorkerID:   e.WorkerID,
				Zone:       e.To,
				Source:     e.Source,
				Confidence: e.Confidence,
				Time:       e.At,
			})
		}
	}
}
