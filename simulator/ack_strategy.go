package main

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	coremqtt "github.com/kilianp07/zonedispatch/core/mqtt"
	"github.com/kilianp07/zonedispatch/infra/logger"
)

var log = logger.New("simulator")

// AckStrategy defines how a worker answers an assignment.
type AckStrategy interface {
	Ack(ctx context.Context, cli paho.Client, prefix, workerID, taskID string)
}

// AutoAck answers "on_my_way" after an optional fixed delay.
type AutoAck struct {
	Delay time.Duration
}

// Ack implements AckStrategy.
func (a AutoAck) Ack(ctx context.Context, cli paho.Client, prefix, workerID, taskID string) {
	if !wait(ctx, a.Delay) {
		return
	}
	publishAck(cli, prefix, coremqtt.AckMessage{TaskID: taskID, WorkerID: workerID, Action: "on_my_way"})
}

// RandomAck ignores assignments with DropRate and declines them with
// BusyRate. The remaining ones are accepted after Delay.
type RandomAck struct {
	Delay    time.Duration
	DropRate float64
	BusyRate float64

	mu  sync.Mutex
	rng *rand.Rand
}

// NewRandomAck seeds a RandomAck.
func NewRandomAck(delay time.Duration, drop, busy float64, seed uint64) *RandomAck {
	return &RandomAck{Delay: delay, DropRate: drop, BusyRate: busy, rng: rand.New(rand.NewPCG(seed, seed^0x5eed))}
}

func (r *RandomAck) roll() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rng.Float64()
}

// Ack implements AckStrategy.
func (r *RandomAck) Ack(ctx context.Context, cli paho.Client, prefix, workerID, taskID string) {
	if r.DropRate > 0 && r.roll() < r.DropRate {
		log.Debugf("%s ignores task %s", workerID, taskID)
		return
	}
	action := "on_my_way"
	if r.BusyRate > 0 && r.roll() < r.BusyRate {
		action = "busy"
	}
	if !wait(ctx, r.Delay) {
		return
	}
	publishAck(cli, prefix, coremqtt.AckMessage{TaskID: taskID, WorkerID: workerID, Action: action})
}

func wait(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	select {
	case <-time.After(d):
		return true
	case <-ctx.Done():
		return false
	}
}

func publishAck(cli paho.Client, prefix string, m coremqtt.AckMessage) {
	publishJSON(cli, fmt.Sprintf("%s/%s/ack", prefix, m.WorkerID), m)
}

func publishJSON(cli paho.Client, topic string, v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		log.Errorf("marshal %s: %v", topic, err)
		return
	}
	token := cli.Publish(topic, 1, false, payload)
	if !token.WaitTimeout(5 * time.Second) {
		log.Warnf("publish timeout on %s", topic)
		return
	}
	if err := token.Error(); err != nil {
		log.Errorf("publish %s: %v", topic, err)
	}
}
