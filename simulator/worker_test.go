package main

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/zonedispatch/core/model"
	coremqtt "github.com/kilianp07/zonedispatch/core/mqtt"
	"github.com/kilianp07/zonedispatch/core/positioning"
)

type stubToken struct{ err error }

func (t *stubToken) Wait() bool                     { return true }
func (t *stubToken) WaitTimeout(time.Duration) bool { return true }
func (t *stubToken) Done() <-chan struct{}          { ch := make(chan struct{}); close(ch); return ch }
func (t *stubToken) Error() error                   { return t.err }

type published struct {
	topic   string
	payload []byte
}

type stubClient struct {
	mu           sync.Mutex
	subs         map[string]paho.MessageHandler
	pubs         []published
	disconnected int
}

func newStubClient() *stubClient { return &stubClient{subs: map[string]paho.MessageHandler{}} }

func (c *stubClient) IsConnected() bool      { return c.disconnected == 0 }
func (c *stubClient) IsConnectionOpen() bool { return c.disconnected == 0 }
func (c *stubClient) Connect() paho.Token    { return &stubToken{} }
func (c *stubClient) Disconnect(uint)        { c.mu.Lock(); c.disconnected++; c.mu.Unlock() }
func (c *stubClient) Publish(topic string, _ byte, _ bool, payload interface{}) paho.Token {
	c.mu.Lock()
	c.pubs = append(c.pubs, published{topic, payload.([]byte)})
	c.mu.Unlock()
	return &stubToken{}
}
func (c *stubClient) Subscribe(topic string, _ byte, cb paho.MessageHandler) paho.Token {
	c.mu.Lock()
	c.subs[topic] = cb
	c.mu.Unlock()
	return &stubToken{}
}
func (c *stubClient) SubscribeMultiple(map[string]byte, paho.MessageHandler) paho.Token {
	return &stubToken{}
}
func (c *stubClient) Unsubscribe(...string) paho.Token        { return &stubToken{} }
func (c *stubClient) AddRoute(string, paho.MessageHandler)    {}
func (c *stubClient) OptionsReader() paho.ClientOptionsReader { return paho.ClientOptionsReader{} }

func (c *stubClient) topics() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.pubs))
	for i, p := range c.pubs {
		out[i] = p.topic
	}
	return out
}

func (c *stubClient) last(topic string) []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := len(c.pubs) - 1; i >= 0; i-- {
		if c.pubs[i].topic == topic {
			return c.pubs[i].payload
		}
	}
	return nil
}

type stubMessage struct {
	paho.Message
	payload []byte
}

func (m stubMessage) Payload() []byte { return m.payload }

var testAPs = []positioning.SimulatedAP{
	{BSSID: "aa", Zone: "A", BaseRSSI: -45},
	{BSSID: "bb", Zone: "B", BaseRSSI: -45},
}

func TestWorkerTickPublishesHeartbeatAndScan(t *testing.T) {
	sc := newStubClient()
	now := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	w := GenerateWorkers(RosterConfig{Size: 1, Zones: []model.ZoneID{"A"}, Seed: 1})[0]
	w.TopicPrefix = "worker"
	w.APs = testAPs
	w.client = sc
	w.Now = func() time.Time { return now }

	w.tick()
	assert.Equal(t, []string{"worker/w001/heartbeat", "worker/w001/scan"}, sc.topics())

	var scan coremqtt.ScanMessage
	require.NoError(t, json.Unmarshal(sc.last("worker/w001/scan"), &scan))
	assert.Equal(t, "w001", scan.WorkerID)
	assert.Equal(t, "aa", scan.ConnectedAP)
	assert.True(t, scan.Timestamp.Equal(now))
	assert.Len(t, scan.Measurements, 2)
}

func TestWorkerAnswersAssignment(t *testing.T) {
	sc := newStubClient()
	mqttClientFactory = func(string, string) (paho.Client, error) { return sc, nil }
	defer func() { mqttClientFactory = realMQTTClient }()

	w := &SimulatedWorker{
		ID:          "ana",
		Zone:        "A",
		TopicPrefix: "worker",
		Strategy:    AutoAck{},
		Interval:    time.Hour,
		APs:         testAPs,
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	require.Eventually(t, func() bool {
		sc.mu.Lock()
		defer sc.mu.Unlock()
		return sc.subs["worker/ana/assignment"] != nil
	}, time.Second, 10*time.Millisecond)

	notice, _ := json.Marshal(coremqtt.AssignmentNotice{TaskID: "t1", WorkerID: "ana"})
	sc.mu.Lock()
	cb := sc.subs["worker/ana/assignment"]
	sc.mu.Unlock()
	cb(sc, stubMessage{payload: notice})

	require.Eventually(t, func() bool { return sc.last("worker/ana/ack") != nil }, time.Second, 10*time.Millisecond)
	var ack coremqtt.AckMessage
	require.NoError(t, json.Unmarshal(sc.last("worker/ana/ack"), &ack))
	assert.Equal(t, coremqtt.AckMessage{TaskID: "t1", WorkerID: "ana", Action: "on_my_way"}, ack)

	cancel()
	require.NoError(t, <-done)
	assert.Equal(t, 1, sc.disconnected)
}

func TestRandomAck(t *testing.T) {
	sc := newStubClient()
	NewRandomAck(0, 1, 0, 1).Ack(context.Background(), sc, "worker", "ana", "t1")
	assert.Empty(t, sc.topics(), "dropped")

	NewRandomAck(0, 0, 1, 1).Ack(context.Background(), sc, "worker", "ana", "t2")
	var ack coremqtt.AckMessage
	require.NoError(t, json.Unmarshal(sc.last("worker/ana/ack"), &ack))
	assert.Equal(t, "busy", ack.Action)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	NewRandomAck(time.Minute, 0, 0, 1).Ack(ctx, sc, "worker", "ana", "t3")
	assert.Len(t, sc.topics(), 1)
}

func TestGenerateWorkers(t *testing.T) {
	zones := []model.ZoneID{"A", "B"}
	ws := GenerateWorkers(RosterConfig{Size: 4, Roles: []model.Role{model.RoleHousekeeping, model.RoleMaintenance}, Zones: zones, Seed: 3})
	require.Len(t, ws, 4)
	assert.Equal(t, "w001", ws[0].ID)
	assert.Equal(t, "w004", ws[3].ID)
	assert.Equal(t, model.RoleMaintenance, ws[1].Role)
	assert.Equal(t, model.RoleHousekeeping, ws[2].Role)
	for _, w := range ws {
		assert.Contains(t, zones, w.Zone)
	}
	assert.Nil(t, GenerateWorkers(RosterConfig{Size: 3}))
}

func TestParseRoles(t *testing.T) {
	roles, err := ParseRoles("housekeeping, maintenance")
	require.NoError(t, err)
	assert.Equal(t, []model.Role{model.RoleHousekeeping, model.RoleMaintenance}, roles)

	roles, err = ParseRoles("")
	require.NoError(t, err)
	assert.Equal(t, []model.Role{model.RoleHousekeeping}, roles)

	_, err = ParseRoles("chef")
	assert.Error(t, err)
}

func TestSurveyAPs(t *testing.T) {
	aps, zones := SurveyAPs(&positioning.Survey{AccessPoints: []positioning.SurveyAP{
		{BSSID: "aa", Zone: "A", RSSI: -40},
		{BSSID: "ab", Zone: "A", RSSI: -50},
		{BSSID: "bb", Zone: "B", RSSI: -42},
	}})
	assert.Len(t, aps, 3)
	assert.Equal(t, -50.0, aps[1].BaseRSSI)
	assert.Equal(t, []model.ZoneID{"A", "B"}, zones)
}

func TestConfigValidate(t *testing.T) {
	cfg := Config{Broker: "tcp://localhost:1883", Survey: "s.yaml", Workers: 2, Interval: time.Second}
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "worker", cfg.TopicPrefix)

	bad := cfg
	bad.BusyRate = 1.5
	assert.Error(t, bad.Validate())
	bad = cfg
	bad.Workers = 0
	assert.Error(t, bad.Validate())
	bad = cfg
	bad.Survey = ""
	assert.Error(t, bad.Validate())
}
