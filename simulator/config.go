package main

import (
	"fmt"
	"time"
)

// Config holds parameters for the simulator.
type Config struct {
	Broker      string
	TopicPrefix string
	Workers     int
	Roles       string
	Survey      string
	Interval    time.Duration
	AckLatency  time.Duration
	DropRate    float64
	BusyRate    float64
	// MoveRate is the probability per interval that a worker walks to
	// another zone.
	MoveRate float64
	Seed     uint64
}

// Validate checks the simulator parameters.
func (c *Config) Validate() error {
	if c.Broker == "" {
		return fmt.Errorf("broker is required")
	}
	if c.Survey == "" {
		return fmt.Errorf("survey is required")
	}
	if c.Workers <= 0 {
		return fmt.Errorf("workers must be positive")
	}
	if c.Interval <= 0 {
		return fmt.Errorf("interval must be positive")
	}
	for name, r := range map[string]float64{"drop-rate": c.DropRate, "busy-rate": c.BusyRate, "move-rate": c.MoveRate} {
		if r < 0 || r > 1 {
			return fmt.Errorf("%s must be within [0,1]", name)
		}
	}
	if c.TopicPrefix == "" {
		c.TopicPrefix = "worker"
	}
	return nil
}
