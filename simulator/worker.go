package main

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/kilianp07/zonedispatch/core/model"
	coremqtt "github.com/kilianp07/zonedispatch/core/mqtt"
	"github.com/kilianp07/zonedispatch/core/positioning"
)

// SimulatedWorker is a handset that reports heartbeats and WiFi scans and
// answers the assignments it receives.
type SimulatedWorker struct {
	ID          string
	Role        model.Role
	Zone        model.ZoneID
	Broker      string
	TopicPrefix string
	Strategy    AckStrategy
	Interval    time.Duration
	MoveRate    float64
	Zones       []model.ZoneID
	APs         []positioning.SimulatedAP
	Positioning positioning.Config

	mu     sync.Mutex
	rng    *rand.Rand
	client paho.Client
	tasks  chan string
	Now    func() time.Time
}

func (w *SimulatedWorker) topic(kind string) string {
	return fmt.Sprintf("%s/%s/%s", w.TopicPrefix, w.ID, kind)
}

func (w *SimulatedWorker) now() time.Time {
	if w.Now != nil {
		return w.Now()
	}
	return time.Now()
}

// Run connects to the broker and reports until ctx is done.
func (w *SimulatedWorker) Run(ctx context.Context) error {
	cli, err := mqttClientFactory(w.Broker, "sim-"+w.ID)
	if err != nil {
		return err
	}
	w.client = cli
	w.tasks = make(chan string, 16)
	defer cli.Disconnect(250)

	if token := cli.Subscribe(w.topic("assignment"), 1, w.onAssignment); token.Wait() && token.Error() != nil {
		return token.Error()
	}
	go w.answer(ctx)

	ticker := time.NewTicker(w.Interval)
	defer ticker.Stop()
	w.tick()
	for {
		select {
		case <-ticker.C:
			w.tick()
		case <-ctx.Done():
			return nil
		}
	}
}

func (w *SimulatedWorker) onAssignment(_ paho.Client, msg paho.Message) {
	var n coremqtt.AssignmentNotice
	if err := json.Unmarshal(msg.Payload(), &n); err != nil {
		log.Warnf("%s: decode assignment: %v", w.ID, err)
		return
	}
	log.Infof("%s got task %s (%s in %s)", w.ID, n.TaskID, n.Type, n.Zone)
	select {
	case w.tasks <- n.TaskID:
	default:
		log.Warnf("%s: answer queue full, dropping task %s", w.ID, n.TaskID)
	}
}

func (w *SimulatedWorker) answer(ctx context.Context) {
	for {
		select {
		case id := <-w.tasks:
			w.Strategy.Ack(ctx, w.client, w.TopicPrefix, w.ID, id)
		case <-ctx.Done():
			return
		}
	}
}

// tick possibly moves the worker, then publishes a heartbeat and a scan
// taken from the current zone.
func (w *SimulatedWorker) tick() {
	now := w.now()
	zone, scan := w.step()
	publishJSON(w.client, w.topic("heartbeat"), coremqtt.HeartbeatMessage{WorkerID: w.ID, Timestamp: now})
	if len(scan) == 0 {
		return
	}
	publishJSON(w.client, w.topic("scan"), coremqtt.ScanMessage{
		WorkerID:     w.ID,
		Measurements: scan,
		ConnectedAP:  strongest(scan),
		Timestamp:    now,
	})
	log.Debugw("scan sent", map[string]any{"worker": w.ID, "zone": zone, "readings": len(scan)})
}

func (w *SimulatedWorker) step() (model.ZoneID, []positioning.Measurement) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.rng == nil {
		w.rng = rand.New(rand.NewPCG(uint64(len(w.ID)), 7))
	}
	if len(w.Zones) > 1 && w.MoveRate > 0 && w.rng.Float64() < w.MoveRate {
		w.Zone = w.Zones[w.rng.IntN(len(w.Zones))]
	}
	return w.Zone, positioning.Simulate(w.rng, w.Zone, w.APs, w.Positioning)
}

func strongest(ms []positioning.Measurement) string {
	best := ms[0]
	for _, m := range ms[1:] {
		if m.RSSI > best.RSSI {
			best = m
		}
	}
	return best.BSSID
}
