package mqtt

import (
	"context"
	"fmt"
	"testing"
	"time"

	coremon "github.com/kilianp07/zonedispatch/core/monitoring"
	coremqtt "github.com/kilianp07/zonedispatch/core/mqtt"
)

type recordMonitor struct {
	err  error
	tags map[string]string
}

func (r *recordMonitor) CaptureException(err error, tags map[string]string) {
	r.err = err
	r.tags = tags
}
func (r *recordMonitor) Recover()            {}
func (r *recordMonitor) Flush(time.Duration) {}

func TestSendAssignmentErrorCaptured(t *testing.T) {
	mc := &mockClient{publishErrs: []error{fmt.Errorf("net fail"), fmt.Errorf("net fail")}}
	withMock(t, mc)
	mon := &recordMonitor{}
	coremon.Init(mon)
	defer coremon.Init(coremon.NopMonitor{})
	cli, err := NewPahoClient(Config{Broker: "tcp://localhost:1883", ClientID: "id", MaxRetries: 1, BackoffMS: 1})
	if err != nil {
		t.Fatalf("client: %v", err)
	}
	_, err = cli.SendAssignment(context.Background(), coremqtt.AssignmentNotice{TaskID: "t1", WorkerID: "ana"})
	if err == nil {
		t.Fatalf("expected error")
	}
	if mon.err == nil {
		t.Fatalf("error not captured")
	}
	if mon.tags["worker_id"] != "ana" || mon.tags["module"] != "mqtt" || mon.tags["task_id"] != "t1" {
		t.Fatalf("tags not set: %v", mon.tags)
	}
}

func TestHandlerErrorCaptured(t *testing.T) {
	mc := &mockClient{}
	withMock(t, mc)
	mon := &recordMonitor{}
	coremon.Init(mon)
	defer coremon.Init(coremon.NopMonitor{})
	cli, err := NewPahoClient(Config{Broker: "tcp://localhost:1883", ClientID: "id"})
	if err != nil {
		t.Fatalf("client: %v", err)
	}
	cli.Handle(&recordHandler{err: errHandler})
	cli.onMessage(KindHeartbeat)(nil, mockMessage{topic: "worker/ben/heartbeat", p: []byte(`{}`)})
	if mon.err != errHandler {
		t.Fatalf("expected handler error, got %v", mon.err)
	}
	if mon.tags["kind"] != KindHeartbeat || mon.tags["worker_id"] != "ben" {
		t.Fatalf("tags not set: %v", mon.tags)
	}
}
