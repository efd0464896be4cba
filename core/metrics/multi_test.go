package metrics

import (
	"errors"
	"testing"
)

var errTest = errors.New("close failed")

type recordSink struct {
	count int
}

func (r *recordSink) RecordAssignment(AssignmentResult) error {
	r.count++
	return nil
}

func (r *recordSink) RecordAck(AckRecord) error {
	r.count++
	return nil
}

// assignOnly does not implement the optional recorders.
type assignOnly struct{ count int }

func (a *assignOnly) RecordAssignment(AssignmentResult) error {
	a.count++
	return nil
}

func TestMultiSink(t *testing.T) {
	s1 := &recordSink{}
	s2 := &assignOnly{}
	m := NewMultiSink(s1, s2)
	if err := m.RecordAssignment(AssignmentResult{TaskID: "t1"}); err != nil {
		t.Fatalf("record assignment: %v", err)
	}
	if err := m.RecordAck(AckRecord{TaskID: "t1"}); err != nil {
		t.Fatalf("record ack: %v", err)
	}
	if err := m.RecordZoneUpdate(ZoneUpdateRecord{}); err != nil {
		t.Fatalf("record zone update: %v", err)
	}
	if s1.count != 2 || s2.count != 1 {
		t.Fatalf("records not forwarded: %d %d", s1.count, s2.count)
	}
}

// closer mimics a sink whose Close reports an error.
type closer struct {
	assignOnly
	closed bool
	err    error
}

func (c *closer) Close() error {
	c.closed = true
	return c.err
}

// flusher mimics a sink whose Close returns nothing, like a client that
// flushes pending writes.
type flusher struct {
	assignOnly
	closed bool
}

func (f *flusher) Close() { f.closed = true }

func TestMultiSinkClose(t *testing.T) {
	c := &closer{}
	f := &flusher{}
	inner := NewMultiSink(f)
	m := NewMultiSink(c, &recordSink{}, inner)
	if err := Close(m); err != nil {
		t.Fatalf("close: %v", err)
	}
	if !c.closed || !f.closed {
		t.Fatalf("sinks not closed: %v %v", c.closed, f.closed)
	}

	c.err = errTest
	if err := Close(m); !errors.Is(err, errTest) {
		t.Fatalf("close error not reported: %v", err)
	}
	if err := Close(NopSink{}); err != nil {
		t.Fatalf("nop close: %v", err)
	}
}
