package tracking

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/kilianp07/zonedispatch/core/dispatch/logging"
	"github.com/kilianp07/zonedispatch/core/events"
	"github.com/kilianp07/zonedispatch/core/logger"
	"github.com/kilianp07/zonedispatch/core/model"
	"github.com/kilianp07/zonedispatch/core/positioning"
	"github.com/kilianp07/zonedispatch/internal/eventbus"
)

// Skip reasons reported in ScanResult.
const (
	SkipNoSignal   = "no usable signal"
	SkipUnknownAPs = "unknown APs"
)

// StateStore is the subset of store.WorkerStore the tracker needs.
type StateStore interface {
	UpdateState(ctx context.Context, workerID string, fn func(*model.WorkerState) error) (model.WorkerState, error)
}

// Config controls zone tracking.
type Config struct {
	TaskTruthWindowSeconds int     `json:"task_truth_window_seconds"`
	ConnectedAPBoost       float64 `json:"connected_ap_boost"`
	MinScanRSSI            int     `json:"min_scan_rssi"`
	VoteTopN               int     `json:"vote_top_n"`
}

// SetDefaults fills zero values.
func (c *Config) SetDefaults() {
	if c.TaskTruthWindowSeconds == 0 {
		c.TaskTruthWindowSeconds = int(DefaultTaskTruthWindow / time.Second)
	}
	if c.ConnectedAPBoost == 0 {
		c.ConnectedAPBoost = 0.15
	}
	if c.MinScanRSSI == 0 {
		c.MinScanRSSI = -90
	}
	if c.VoteTopN == 0 {
		c.VoteTopN = 4
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.TaskTruthWindowSeconds < 0 {
		return fmt.Errorf("tracking: task_truth_window_seconds must be >= 0")
	}
	if c.ConnectedAPBoost < 0 || c.ConnectedAPBoost > 1 {
		return fmt.Errorf("tracking: connected_ap_boost must be within [0,1]")
	}
	if c.VoteTopN < 1 {
		return fmt.Errorf("tracking: vote_top_n must be >= 1")
	}
	return nil
}

func (c Config) window() time.Duration {
	return time.Duration(c.TaskTruthWindowSeconds) * time.Second
}

// ScanResult reports what a scan did to the worker's zone.
type ScanResult struct {
	Updated    bool                          `json:"updated"`
	Zone       model.ZoneID                  `json:"zone,omitempty"`
	Confidence float64                       `json:"confidence,omitempty"`
	Source     model.ZoneSource              `json:"source,omitempty"`
	Position   *positioning.PositionEstimate `json:"position,omitempty"`
	Reason     string                        `json:"reason,omitempty"`
}

// Tracker turns device observations into worker zone updates. Updates of
// one worker are serialised by the store's UpdateState and ordered by
// observation time.
type Tracker struct {
	states StateStore
	engine *positioning.Engine
	aps    *positioning.APZoneMapper
	cfg    Config
	logger logger.Logger
	bus    eventbus.EventBus
	log    logging.LogStore
	Now    func() time.Time
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option { return func(t *Tracker) { t.logger = logger.OrNop(l) } }

// WithBus publishes zone and device events on b.
func WithBus(b eventbus.EventBus) Option { return func(t *Tracker) { t.bus = b } }

// WithLogStore appends zone updates and syncs to s.
func WithLogStore(s logging.LogStore) Option { return func(t *Tracker) { t.log = s } }

// NewTracker creates a tracker. engine and aps may be nil, disabling the
// matching estimation path.
func NewTracker(states StateStore, engine *positioning.Engine, aps *positioning.APZoneMapper, cfg Config, opts ...Option) (*Tracker, error) {
	if states == nil {
		return nil, fmt.Errorf("tracking: nil state store")
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	t := &Tracker{
		states: states,
		engine: engine,
		aps:    aps,
		cfg:    cfg,
		logger: logger.NopLogger{},
		Now:    time.Now,
	}
	for _, o := range opts {
		o(t)
	}
	return t, nil
}

// estimate picks a zone fix from a scan. The radio map wins when it has
// points, then the strongest mapped AP, then a vote among the strongest APs.
func (t *Tracker) estimate(ms []positioning.Measurement, at time.Time) (ZoneFix, *positioning.PositionEstimate, string) {
	usable := make([]positioning.Measurement, 0, len(ms))
	for _, m := range ms {
		if m.RSSI > t.cfg.MinScanRSSI {
			usable = append(usable, m)
		}
	}
	if len(usable) == 0 {
		return ZoneFix{}, nil, SkipNoSignal
	}
	sort.SliceStable(usable, func(i, j int) bool { return usable[i].RSSI > usable[j].RSSI })

	if t.engine != nil && t.engine.Map().Len() > 0 {
		if pos := t.engine.Hybrid(usable).Position; pos != nil && pos.Zone != "" {
			return ZoneFix{
				Zone:        pos.Zone,
				Confidence:  pos.Confidence,
				Source:      model.SourceWiFiWKNN,
				At:          at,
				HasPosition: true,
				X:           pos.X,
				Y:           pos.Y,
			}, pos, ""
		}
	}
	if t.aps == nil {
		return ZoneFix{}, nil, SkipUnknownAPs
	}
	if z, ok := t.aps.ZoneForAP(usable[0].BSSID); ok {
		return ZoneFix{Zone: z, Confidence: RSSIConfidence(usable[0].RSSI), Source: model.SourceWiFiRSSI, At: at}, nil, ""
	}
	top := usable[:min(len(usable), t.cfg.VoteTopN)]
	votes := t.aps.Estimate(top)
	if len(votes) == 0 {
		return ZoneFix{}, nil, SkipUnknownAPs
	}
	return ZoneFix{Zone: votes[0].Zone, Confidence: VoteConfidence(votes[0].Probability), Source: model.SourceWiFiWKNN, At: at}, nil, ""
}

// UpdateFromScan estimates the zone of a worker from a WiFi scan taken at
// at. The heartbeat is refreshed even when no zone can be estimated.
func (t *Tracker) UpdateFromScan(ctx context.Context, workerID string, ms []positioning.Measurement, at time.Time) (ScanResult, error) {
	fix, pos, reason := t.estimate(ms, at)
	var (
		res  = ScanResult{Reason: reason, Position: pos}
		prev model.WorkerState
	)
	st, err := t.states.UpdateState(ctx, workerID, func(s *model.WorkerState) error {
		prev = *s
		touch(s, at)
		if reason != "" {
			return nil
		}
		res.Updated, res.Reason = ApplyZoneFix(s, fix, t.cfg.window())
		return nil
	})
	if err != nil {
		return ScanResult{}, fmt.Errorf("tracking: scan update for %s: %w", workerID, err)
	}
	if !prev.DeviceOnline {
		t.publish(events.DeviceEvent{WorkerID: workerID, Online: true, At: at})
	}
	if !res.Updated {
		t.logger.Debugw("zone update skipped", map[string]any{"worker_id": workerID, "reason": res.Reason, "measurements": len(ms)})
		return res, nil
	}
	res.Zone, res.Confidence, res.Source = st.CurrentZone, st.ZoneConfidence, st.ZoneSource
	t.zoneUpdated(ctx, workerID, prev.CurrentZone, st, map[string]any{"measurements": len(ms)})
	return res, nil
}

// UpdateFromConnectedAP moves the worker to the zone of the access point
// its device is associated with and nudges the confidence up.
func (t *Tracker) UpdateFromConnectedAP(ctx context.Context, workerID, bssid string, at time.Time) (ScanResult, error) {
	if t.aps == nil {
		return ScanResult{Reason: "unknown AP"}, nil
	}
	zone, ok := t.aps.ZoneForAP(bssid)
	if !ok {
		return ScanResult{Reason: "unknown AP"}, nil
	}
	var (
		res  ScanResult
		prev model.WorkerState
	)
	st, err := t.states.UpdateState(ctx, workerID, func(s *model.WorkerState) error {
		prev = *s
		fix := ZoneFix{
			Zone:       zone,
			Confidence: min(1, s.ZoneConfidence+t.cfg.ConnectedAPBoost),
			Source:     model.SourceWiFi,
			At:         at,
		}
		if res.Updated, res.Reason = ApplyZoneFix(s, fix, t.cfg.window()); res.Updated {
			s.ConnectedAP = bssid
		}
		return nil
	})
	if err != nil {
		return ScanResult{}, fmt.Errorf("tracking: connected AP update for %s: %w", workerID, err)
	}
	if !res.Updated {
		return res, nil
	}
	res.Zone, res.Confidence, res.Source = st.CurrentZone, st.ZoneConfidence, st.ZoneSource
	t.zoneUpdated(ctx, workerID, prev.CurrentZone, st, map[string]any{"ap": bssid})
	return res, nil
}

// Heartbeat marks the device online.
func (t *Tracker) Heartbeat(ctx context.Context, workerID string, at time.Time) error {
	var wasOnline bool
	_, err := t.states.UpdateState(ctx, workerID, func(s *model.WorkerState) error {
		wasOnline = s.DeviceOnline
		touch(s, at)
		return nil
	})
	if err != nil {
		return fmt.Errorf("tracking: heartbeat for %s: %w", workerID, err)
	}
	if !wasOnline {
		t.publish(events.DeviceEvent{WorkerID: workerID, Online: true, At: at})
	}
	t.append(ctx, logging.LogRecord{
		Timestamp: at,
		Event:     logging.EventWorkerSync,
		WorkerID:  workerID,
	})
	return nil
}

// MarkOffline flags the device as offline, which makes the worker
// ineligible for new tasks.
func (t *Tracker) MarkOffline(ctx context.Context, workerID string) error {
	var wasOnline bool
	_, err := t.states.UpdateState(ctx, workerID, func(s *model.WorkerState) error {
		wasOnline = s.DeviceOnline
		s.DeviceOnline = false
		return nil
	})
	if err != nil {
		return fmt.Errorf("tracking: mark %s offline: %w", workerID, err)
	}
	if wasOnline {
		t.logger.Infof("worker %s went offline", workerID)
		t.publish(events.DeviceEvent{WorkerID: workerID, Online: false, At: t.Now()})
	}
	return nil
}

func touch(s *model.WorkerState, at time.Time) {
	s.DeviceOnline = true
	if at.After(s.LastHeartbeat) {
		s.LastHeartbeat = at
	}
}

func (t *Tracker) zoneUpdated(ctx context.Context, workerID string, from model.ZoneID, st model.WorkerState, data map[string]any) {
	t.logger.Debugf("worker %s now in %s (%s, %.2f)", workerID, st.CurrentZone, st.ZoneSource, st.ZoneConfidence)
	zoneUpdates.WithLabelValues(string(st.ZoneSource)).Inc()
	t.publish(events.ZoneUpdateEvent{
		WorkerID:   workerID,
		From:       from,
		To:         st.CurrentZone,
		Confidence: st.ZoneConfidence,
		Source:     st.ZoneSource,
		At:         st.ZoneUpdatedAt,
	})
	data["source"] = string(st.ZoneSource)
	data["confidence"] = st.ZoneConfidence
	t.append(ctx, logging.LogRecord{
		Timestamp: st.ZoneUpdatedAt,
		Event:     logging.EventWorkerZoneUpdate,
		WorkerID:  workerID,
		Zone:      st.CurrentZone,
		Data:      data,
	})
}

func (t *Tracker) publish(ev eventbus.Event) {
	if t.bus != nil {
		t.bus.Publish(ev)
	}
}

func (t *Tracker) append(ctx context.Context, rec logging.LogRecord) {
	if t.log == nil {
		return
	}
	if err := t.log.Append(ctx, rec); err != nil {
		t.logger.Errorf("dispatch log append failed: %v", err)
	}
}
