package telemetry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/zonedispatch/core/dispatch"
	"github.com/kilianp07/zonedispatch/core/model"
	coremqtt "github.com/kilianp07/zonedispatch/core/mqtt"
	"github.com/kilianp07/zonedispatch/core/positioning"
	"github.com/kilianp07/zonedispatch/core/tracking"
	"github.com/kilianp07/zonedispatch/infra/store/memory"
)

type ackCall struct {
	task, worker string
	action       dispatch.AckAction
}

type mockAcks struct {
	calls []ackCall
	err   error
}

func (m *mockAcks) Acknowledge(_ context.Context, taskID, workerID string, action dispatch.AckAction) (dispatch.AckResult, error) {
	m.calls = append(m.calls, ackCall{taskID, workerID, action})
	return dispatch.AckResult{Acknowledged: action != dispatch.AckBusy}, m.err
}

type mockLocator struct {
	// scanFix makes UpdateFromScan report an applied zone fix.
	scanFix bool
	scans   []string
	aps     []string
	beats   []time.Time
	offline []string
}

func (m *mockLocator) UpdateFromScan(_ context.Context, workerID string, _ []positioning.Measurement, _ time.Time) (tracking.ScanResult, error) {
	m.scans = append(m.scans, workerID)
	if m.scanFix {
		return tracking.ScanResult{Updated: true}, nil
	}
	return tracking.ScanResult{Reason: tracking.SkipUnknownAPs}, nil
}

func (m *mockLocator) UpdateFromConnectedAP(_ context.Context, _ string, bssid string, _ time.Time) (tracking.ScanResult, error) {
	m.aps = append(m.aps, bssid)
	return tracking.ScanResult{Updated: true}, nil
}

func (m *mockLocator) Heartbeat(_ context.Context, _ string, at time.Time) error {
	m.beats = append(m.beats, at)
	return nil
}

func (m *mockLocator) MarkOffline(_ context.Context, workerID string) error {
	m.offline = append(m.offline, workerID)
	return nil
}

func newTestManager(t *testing.T, cfg Config, roster Roster) (*Manager, *mockAcks, *mockLocator) {
	t.Helper()
	acks, loc := &mockAcks{}, &mockLocator{}
	mgr, err := NewManager(cfg, acks, loc, roster, prometheus.NewRegistry())
	require.NoError(t, err)
	return mgr, acks, loc
}

func TestHandleAck(t *testing.T) {
	mgr, acks, _ := newTestManager(t, Config{}, nil)
	ctx := context.Background()

	require.NoError(t, mgr.HandleAck(ctx, coremqtt.AckMessage{TaskID: "t1", WorkerID: "ana", Action: "on_my_way"}))
	require.Len(t, acks.calls, 1)
	assert.Equal(t, ackCall{"t1", "ana", dispatch.AckOnMyWay}, acks.calls[0])

	err := mgr.HandleAck(ctx, coremqtt.AckMessage{TaskID: "t1", WorkerID: "ana", Action: "later"})
	assert.ErrorIs(t, err, dispatch.ErrUnknownAction)
	assert.Len(t, acks.calls, 1)

	acks.err = dispatch.ErrInvalidAssignment
	err = mgr.HandleAck(ctx, coremqtt.AckMessage{TaskID: "t2", WorkerID: "ben", Action: "seen"})
	assert.True(t, errors.Is(err, dispatch.ErrInvalidAssignment))

	assert.Equal(t, 1.0, testutil.ToFloat64(mgr.messages.WithLabelValues("ack", "ok")))
	assert.Equal(t, 2.0, testutil.ToFloat64(mgr.messages.WithLabelValues("ack", "error")))
}

func TestHandleScan(t *testing.T) {
	mgr, _, loc := newTestManager(t, Config{}, nil)
	ctx := context.Background()

	err := mgr.HandleScan(ctx, coremqtt.ScanMessage{
		WorkerID:     "ana",
		Measurements: []positioning.Measurement{{BSSID: "aa", RSSI: -60}},
		ConnectedAP:  "aa",
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"ana"}, loc.scans)
	assert.Equal(t, []string{"aa"}, loc.aps)

	require.NoError(t, mgr.HandleScan(ctx, coremqtt.ScanMessage{WorkerID: "ana", ConnectedAP: "bb"}))
	assert.Len(t, loc.scans, 1, "no measurements, no scan update")
	assert.Equal(t, []string{"aa", "bb"}, loc.aps)

	assert.Error(t, mgr.HandleScan(ctx, coremqtt.ScanMessage{}))
}

func TestHandleScanKeepsScanFix(t *testing.T) {
	mgr, _, loc := newTestManager(t, Config{}, nil)
	loc.scanFix = true

	err := mgr.HandleScan(context.Background(), coremqtt.ScanMessage{
		WorkerID:     "ana",
		Measurements: []positioning.Measurement{{BSSID: "aa", RSSI: -55}},
		ConnectedAP:  "bb",
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"ana"}, loc.scans)
	assert.Empty(t, loc.aps, "associated AP must not override the scan estimate")
}

func TestHandleHeartbeatDefaultsTimestamp(t *testing.T) {
	mgr, _, loc := newTestManager(t, Config{}, nil)
	now := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	mgr.Now = func() time.Time { return now }

	require.NoError(t, mgr.HandleHeartbeat(context.Background(), coremqtt.HeartbeatMessage{WorkerID: "ana"}))
	sent := now.Add(-time.Second)
	require.NoError(t, mgr.HandleHeartbeat(context.Background(), coremqtt.HeartbeatMessage{WorkerID: "ana", Timestamp: sent}))
	assert.Equal(t, []time.Time{now, sent}, loc.beats)
	assert.Error(t, mgr.HandleHeartbeat(context.Background(), coremqtt.HeartbeatMessage{}))
}

func TestSweepStale(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	now := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	seed := map[string]struct {
		online bool
		seen   time.Duration
	}{
		"fresh":   {true, 30 * time.Second},
		"silent":  {true, 10 * time.Minute},
		"offline": {false, time.Hour},
	}
	for id, s := range seed {
		require.NoError(t, st.PutWorker(ctx, model.Worker{ID: id, Name: id}))
		_, err := st.UpdateState(ctx, id, func(ws *model.WorkerState) error {
			ws.DeviceOnline = s.online
			ws.LastHeartbeat = now.Add(-s.seen)
			return nil
		})
		require.NoError(t, err)
	}

	mgr, _, loc := newTestManager(t, Config{OfflineAfterSeconds: 300}, st)
	mgr.Now = func() time.Time { return now }
	n, err := mgr.SweepStale(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []string{"silent"}, loc.offline)
	assert.Equal(t, 1.0, testutil.ToFloat64(mgr.stale))

	disabled, _, _ := newTestManager(t, Config{}, st)
	n, err = disabled.SweepStale(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestConfigInterval(t *testing.T) {
	assert.Equal(t, 30, Config{}.Interval())
	assert.Equal(t, 5, Config{SweepIntervalSeconds: 5}.Interval())
}

func TestNewManagerRequiresDependencies(t *testing.T) {
	_, err := NewManager(Config{}, nil, &mockLocator{}, nil, nil)
	assert.Error(t, err)
}
