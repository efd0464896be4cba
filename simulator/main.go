package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/kilianp07/zonedispatch/core/positioning"
)

func main() {
	cfg := parseFlags()
	if err := (&cfg).Validate(); err != nil {
		log.Errorf("invalid config: %v", err)
		os.Exit(2)
	}
	survey, err := positioning.LoadSurvey(cfg.Survey)
	if err != nil {
		log.Errorf("survey: %v", err)
		os.Exit(1)
	}
	roles, err := ParseRoles(cfg.Roles)
	if err != nil {
		log.Errorf("roles: %v", err)
		os.Exit(2)
	}
	aps, zones := SurveyAPs(survey)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	strat := NewRandomAck(cfg.AckLatency, cfg.DropRate, cfg.BusyRate, cfg.Seed)
	workers := GenerateWorkers(RosterConfig{Size: cfg.Workers, Roles: roles, Zones: zones, Seed: cfg.Seed})
	log.Infof("simulating %d workers over %d zones", len(workers), len(zones))
	runWorkers(ctx, workers, cfg, strat, aps)
}

func parseFlags() Config {
	var cfg Config
	flag.StringVar(&cfg.Broker, "broker", "tcp://localhost:1883", "MQTT broker URL")
	flag.StringVar(&cfg.TopicPrefix, "topic-prefix", "worker", "MQTT topic prefix")
	flag.IntVar(&cfg.Workers, "workers", 5, "number of simulated workers")
	flag.StringVar(&cfg.Roles, "roles", "housekeeping,maintenance,room_service", "comma separated roles, assigned in turn")
	flag.StringVar(&cfg.Survey, "survey", "", "site survey file (YAML or JSON)")
	flag.DurationVar(&cfg.Interval, "interval", 15*time.Second, "heartbeat and scan interval")
	flag.DurationVar(&cfg.AckLatency, "ack-latency", 3*time.Second, "delay before answering an assignment")
	flag.Float64Var(&cfg.DropRate, "drop-rate", 0, "probability of ignoring an assignment")
	flag.Float64Var(&cfg.BusyRate, "busy-rate", 0.1, "probability of answering busy")
	flag.Float64Var(&cfg.MoveRate, "move-rate", 0.2, "probability of changing zone per interval")
	flag.Uint64Var(&cfg.Seed, "seed", uint64(time.Now().UnixNano()), "random seed")
	flag.Parse()
	return cfg
}

func runWorkers(ctx context.Context, workers []*SimulatedWorker, cfg Config, strat AckStrategy, aps []positioning.SimulatedAP) {
	var wg sync.WaitGroup
	for _, w := range workers {
		w.Broker = cfg.Broker
		w.TopicPrefix = cfg.TopicPrefix
		w.Strategy = strat
		w.Interval = cfg.Interval
		w.MoveRate = cfg.MoveRate
		w.APs = aps
		wg.Add(1)
		go func(w *SimulatedWorker) {
			defer wg.Done()
			if err := w.Run(ctx); err != nil {
				log.Errorf("%s: %v", w.ID, err)
			}
		}(w)
	}
	wg.Wait()
}
