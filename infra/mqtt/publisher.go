package mqtt

import (
	"context"
	"fmt"
	"sync"

	coremqtt "github.com/kilianp07/zonedispatch/core/mqtt"
)

// Client mirrors the core mqtt.Client interface.
type Client = coremqtt.Client

// MockPublisher is a simple publisher used in tests and dry runs.
type MockPublisher struct {
	Assignments map[string][]coremqtt.AssignmentNotice
	Escalations []coremqtt.EscalationNotice
	FailIDs     map[string]bool
	mu          sync.Mutex
	seq         int
}

// NewMockPublisher creates a new MockPublisher.
func NewMockPublisher() *MockPublisher {
	return &MockPublisher{
		Assignments: make(map[string][]coremqtt.AssignmentNotice),
		FailIDs:     make(map[string]bool),
	}
}

// SendAssignment records the notice or fails when the worker is listed in
// FailIDs.
func (m *MockPublisher) SendAssignment(_ context.Context, n coremqtt.AssignmentNotice) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailIDs[n.WorkerID] {
		return "", fmt.Errorf("publish failed")
	}
	m.Assignments[n.WorkerID] = append(m.Assignments[n.WorkerID], n)
	m.seq++
	return fmt.Sprintf("msg-%d", m.seq), nil
}

// SendEscalation records the notice.
func (m *MockPublisher) SendEscalation(_ context.Context, n coremqtt.EscalationNotice) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Escalations = append(m.Escalations, n)
	return nil
}

// Sent returns the notices sent to workerID.
func (m *MockPublisher) Sent(workerID string) []coremqtt.AssignmentNotice {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]coremqtt.AssignmentNotice(nil), m.Assignments[workerID]...)
}

var _ Client = (*MockPublisher)(nil)
