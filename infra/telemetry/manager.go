// Package telemetry ingests device messages (acks, WiFi scans and
// heartbeats) and flags devices that stopped reporting.
package telemetry

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kilianp07/zonedispatch/core/dispatch"
	"github.com/kilianp07/zonedispatch/core/model"
	coremqtt "github.com/kilianp07/zonedispatch/core/mqtt"
	"github.com/kilianp07/zonedispatch/core/positioning"
	"github.com/kilianp07/zonedispatch/core/store"
	"github.com/kilianp07/zonedispatch/core/tracking"
	"github.com/kilianp07/zonedispatch/infra/logger"
)

// Config holds configuration for device ingestion.
type Config struct {
	// OfflineAfterSeconds marks a device offline once its last heartbeat is
	// that old. Zero disables the liveness sweep.
	OfflineAfterSeconds  int `json:"offline_after_seconds"`
	SweepIntervalSeconds int `json:"sweep_interval_seconds"`
}

// Interval returns the sweep period in seconds.
func (c Config) Interval() int {
	if c.SweepIntervalSeconds <= 0 {
		return 30
	}
	return c.SweepIntervalSeconds
}

// Acknowledger applies worker responses.
type Acknowledger interface {
	Acknowledge(ctx context.Context, taskID, workerID string, action dispatch.AckAction) (dispatch.AckResult, error)
}

// Locator updates worker positions and device liveness.
type Locator interface {
	UpdateFromScan(ctx context.Context, workerID string, ms []positioning.Measurement, at time.Time) (tracking.ScanResult, error)
	UpdateFromConnectedAP(ctx context.Context, workerID, bssid string, at time.Time) (tracking.ScanResult, error)
	Heartbeat(ctx context.Context, workerID string, at time.Time) error
	MarkOffline(ctx context.Context, workerID string) error
}

// Roster lists workers and their live state.
type Roster interface {
	ListWorkers(ctx context.Context, f store.WorkerFilter) ([]model.Worker, error)
	GetState(ctx context.Context, workerID string) (model.WorkerState, error)
}

// Manager implements core/mqtt.Handler on top of the router and the tracker.
type Manager struct {
	cfg     Config
	acks    Acknowledger
	locator Locator
	roster  Roster
	log     logger.Logger
	Now     func() time.Time

	messages    *prometheus.CounterVec
	handleTime  prometheus.Histogram
	lastMessage prometheus.Gauge
	stale       prometheus.Counter
}

// NewManager builds a Manager. Its collectors are registered on reg when
// not nil.
func NewManager(cfg Config, acks Acknowledger, locator Locator, roster Roster, reg prometheus.Registerer) (*Manager, error) {
	if acks == nil || locator == nil {
		return nil, fmt.Errorf("telemetry: nil acknowledger or locator")
	}
	m := &Manager{
		cfg:     cfg,
		acks:    acks,
		locator: locator,
		roster:  roster,
		log:     logger.New("telemetry"),
		Now:     time.Now,
	}
	m.messages = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "device_messages_total",
		Help: "Device messages handled by kind and outcome",
	}, []string{"kind", "outcome"})
	m.handleTime = prometheus.NewHistogram(prometheus.HistogramOpts{Name: "device_message_handle_seconds", Help: "Time spent handling one device message", Buckets: prometheus.DefBuckets})
	m.lastMessage = prometheus.NewGauge(prometheus.GaugeOpts{Name: "device_last_message_timestamp_seconds", Help: "Unix timestamp of the last device message"})
	m.stale = prometheus.NewCounter(prometheus.CounterOpts{Name: "device_offline_marked_total", Help: "Devices marked offline after missing heartbeats"})
	if reg != nil {
		for _, c := range []prometheus.Collector{m.messages, m.handleTime, m.lastMessage, m.stale} {
			if err := reg.Register(c); err != nil {
				return nil, fmt.Errorf("telemetry: register metrics: %w", err)
			}
		}
	}
	return m, nil
}

func (m *Manager) observe(kind string, start time.Time, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.messages.WithLabelValues(kind, outcome).Inc()
	m.handleTime.Observe(time.Since(start).Seconds())
	m.lastMessage.SetToCurrentTime()
}

func (m *Manager) at(ts time.Time) time.Time {
	if ts.IsZero() {
		return m.Now()
	}
	return ts
}

// HandleAck forwards a worker response to the router.
func (m *Manager) HandleAck(ctx context.Context, msg coremqtt.AckMessage) (err error) {
	defer func(start time.Time) { m.observe("ack", start, err) }(time.Now())
	action, err := dispatch.ParseAckAction(msg.Action)
	if err != nil {
		return err
	}
	res, err := m.acks.Acknowledge(ctx, msg.TaskID, msg.WorkerID, action)
	if err != nil {
		return err
	}
	if res.Rerouted && res.Route != nil && !res.Route.Assigned {
		m.log.Warnf("task %s declined by %s and escalated", msg.TaskID, msg.WorkerID)
	}
	return nil
}

// HandleScan updates the worker zone from the scan. The access point the
// device is associated with is only used when the scan gave no fix, so it
// never overrides a fingerprint estimate taken at the same instant.
func (m *Manager) HandleScan(ctx context.Context, msg coremqtt.ScanMessage) (err error) {
	defer func(start time.Time) { m.observe("scan", start, err) }(time.Now())
	if msg.WorkerID == "" {
		return fmt.Errorf("telemetry: scan without worker id")
	}
	at := m.at(msg.Timestamp)
	if len(msg.Measurements) > 0 {
		res, err := m.locator.UpdateFromScan(ctx, msg.WorkerID, msg.Measurements, at)
		if err != nil {
			return err
		}
		if res.Updated {
			return nil
		}
		m.log.Debugf("scan of %s left zone unchanged: %s", msg.WorkerID, res.Reason)
	}
	if msg.ConnectedAP != "" {
		if _, err := m.locator.UpdateFromConnectedAP(ctx, msg.WorkerID, msg.ConnectedAP, at); err != nil {
			return err
		}
	}
	return nil
}

// HandleHeartbeat refreshes the device liveness.
func (m *Manager) HandleHeartbeat(ctx context.Context, msg coremqtt.HeartbeatMessage) (err error) {
	defer func(start time.Time) { m.observe("heartbeat", start, err) }(time.Now())
	if msg.WorkerID == "" {
		return fmt.Errorf("telemetry: heartbeat without worker id")
	}
	return m.locator.Heartbeat(ctx, msg.WorkerID, m.at(msg.Timestamp))
}

// Start runs the liveness sweep until ctx is done.
func (m *Manager) Start(ctx context.Context) {
	if m.cfg.OfflineAfterSeconds <= 0 || m.roster == nil {
		return
	}
	ticker := time.NewTicker(time.Duration(m.cfg.Interval()) * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if _, err := m.SweepStale(ctx); err != nil {
				m.log.Errorf("liveness sweep: %v", err)
			}
		case <-ctx.Done():
			return
		}
	}
}

// SweepStale marks offline every online device silent for longer than
// OfflineAfterSeconds and returns how many were marked.
func (m *Manager) SweepStale(ctx context.Context) (int, error) {
	if m.cfg.OfflineAfterSeconds <= 0 || m.roster == nil {
		return 0, nil
	}
	workers, err := m.roster.ListWorkers(ctx, store.WorkerFilter{})
	if err != nil {
		return 0, err
	}
	cutoff := m.Now().Add(-time.Duration(m.cfg.OfflineAfterSeconds) * time.Second)
	var n int
	for _, w := range workers {
		st, err := m.roster.GetState(ctx, w.ID)
		if err != nil {
			continue
		}
		if !st.DeviceOnline || !st.LastHeartbeat.Before(cutoff) {
			continue
		}
		if err := m.locator.MarkOffline(ctx, w.ID); err != nil {
			return n, err
		}
		m.stale.Inc()
		n++
	}
	return n, nil
}

var _ coremqtt.Handler = (*Manager)(nil)
