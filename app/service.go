package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	apidispatch "github.com/kilianp07/zonedispatch/api/dispatch"
	"github.com/kilianp07/zonedispatch/app/plugins"
	"github.com/kilianp07/zonedispatch/config"
	"github.com/kilianp07/zonedispatch/core/dispatch"
	"github.com/kilianp07/zonedispatch/core/dispatch/logging"
	coremetrics "github.com/kilianp07/zonedispatch/core/metrics"
	"github.com/kilianp07/zonedispatch/core/model"
	coremon "github.com/kilianp07/zonedispatch/core/monitoring"
	"github.com/kilianp07/zonedispatch/core/positioning"
	"github.com/kilianp07/zonedispatch/core/store"
	"github.com/kilianp07/zonedispatch/core/tracking"
	"github.com/kilianp07/zonedispatch/core/zonegraph"
	"github.com/kilianp07/zonedispatch/infra/logger"
	"github.com/kilianp07/zonedispatch/infra/metrics"
	"github.com/kilianp07/zonedispatch/infra/monitoring"
	"github.com/kilianp07/zonedispatch/infra/mqtt"
	"github.com/kilianp07/zonedispatch/infra/telemetry"
	"github.com/kilianp07/zonedispatch/internal/eventbus"
)

// Service wires the router, the tracker and their transports.
type Service struct {
	Router  *dispatch.Router
	Tracker *tracking.Tracker
	Graph   *zonegraph.Graph
	Store   store.Store
	Engine  *positioning.Engine
	Ingest  *telemetry.Manager

	cfg      *config.Config
	bus      *eventbus.Bus
	sink     coremetrics.MetricsSink
	logStore logging.LogStore
	paho     *mqtt.PahoClient
	log      logger.Logger
}

// Option customises the Service.
type Option func(*serviceOptions)

type serviceOptions struct {
	publisher mqtt.Client
	registry  prometheus.Registerer
}

// WithPublisher replaces the MQTT client, e.g. with a MockPublisher.
func WithPublisher(p mqtt.Client) Option { return func(o *serviceOptions) { o.publisher = p } }

// WithRegisterer registers the ingest collectors on reg instead of the
// default registerer.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *serviceOptions) { o.registry = reg }
}

// New creates a Service from the configuration. Without an MQTT broker the
// notices are kept in a MockPublisher.
func New(cfg *config.Config, opts ...Option) (*Service, error) {
	o := serviceOptions{registry: prometheus.DefaultRegisterer}
	for _, opt := range opts {
		opt(&o)
	}
	logg := logger.New("service")
	s := &Service{cfg: cfg, log: logg}

	mon, err := monitoring.NewSentryMonitor(cfg.Sentry)
	if err != nil {
		return nil, fmt.Errorf("sentry: %w", err)
	}
	coremon.Init(mon)

	s.Graph, err = cfg.Topology.Graph()
	if err != nil {
		return nil, fmt.Errorf("topology: %w", err)
	}
	s.Store, err = plugins.OpenStore(cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("store: %w", err)
	}
	s.logStore, err = logging.Open(cfg.Logging)
	if err != nil {
		_ = s.Store.Close()
		return nil, fmt.Errorf("dispatch log: %w", err)
	}
	s.sink, err = coremetrics.NewMetricsSink(cfg.Metrics.Sinks)
	if err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("metrics sink: %w", err)
	}

	radio := positioning.NewRadioMap()
	aps := positioning.NewAPZoneMapper(cfg.Positioning)
	if cfg.Positioning.Survey != "" {
		survey, err := positioning.LoadSurvey(cfg.Positioning.Survey)
		if err != nil {
			_ = s.Close()
			return nil, err
		}
		survey.Apply(radio, aps)
		logg.Infof("survey loaded: %d reference points, %d access points", radio.Len(), aps.Len())
	}
	s.Engine = positioning.NewEngine(radio, cfg.Positioning)

	publisher := o.publisher
	if publisher == nil {
		if cfg.MQTT.Broker == "" {
			logg.Warnf("no MQTT broker configured, notices are not delivered")
			publisher = mqtt.NewMockPublisher()
		} else {
			s.paho, err = mqtt.NewPahoClient(cfg.MQTT)
			if err != nil {
				_ = s.Close()
				return nil, fmt.Errorf("mqtt client: %w", err)
			}
			publisher = s.paho
		}
	}

	s.bus = eventbus.New()
	s.Router, err = dispatch.NewRouter(s.Store, s.Graph, cfg.Dispatch, publisher, s.sink, s.bus, logger.New("router"))
	if err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("router: %w", err)
	}
	s.Router.SetLogStore(s.logStore)
	s.Tracker, err = tracking.NewTracker(s.Store, s.Engine, aps, cfg.Tracking,
		tracking.WithLogger(logger.New("tracker")),
		tracking.WithBus(s.bus),
		tracking.WithLogStore(s.logStore),
	)
	if err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("tracker: %w", err)
	}
	s.Ingest, err = telemetry.NewManager(cfg.Ingest, s.Router, s.Tracker, s.Store, o.registry)
	if err != nil {
		_ = s.Close()
		return nil, err
	}
	if s.paho != nil {
		s.paho.Handle(s.Ingest)
	}
	if err := s.seedRoster(context.Background()); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

// seedRoster upserts the configured workers. Existing state is kept, only
// workers without a zone get the configured one.
func (s *Service) seedRoster(ctx context.Context) error {
	for _, e := range s.cfg.Roster {
		w, err := e.Worker()
		if err != nil {
			return err
		}
		if cur, err := s.Store.GetWorker(ctx, w.ID); err == nil {
			w.Reliability = cur.Reliability
		} else if !errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("roster %s: %w", w.ID, err)
		}
		if err := s.Store.PutWorker(ctx, w); err != nil {
			return fmt.Errorf("roster %s: %w", w.ID, err)
		}
		if e.Zone == "" && !e.DeviceOnline {
			continue
		}
		if e.Zone != "" && !s.Graph.Has(e.Zone) {
			s.log.Warnf("roster %s starts in unknown zone %s", w.ID, e.Zone)
		}
		if _, err := s.Store.UpdateState(ctx, w.ID, func(st *model.WorkerState) error {
			if e.Zone != "" && !st.HasZone() {
				st.CurrentZone = e.Zone
				st.ZoneConfidence = 0.5
			}
			if e.DeviceOnline {
				st.DeviceOnline = true
				st.LastHeartbeat = time.Now()
			}
			return nil
		}); err != nil {
			return fmt.Errorf("roster %s state: %w", w.ID, err)
		}
	}
	if n := len(s.cfg.Roster); n > 0 {
		s.log.Infof("roster seeded with %d workers", n)
	}
	return nil
}

// Run starts the background loops and blocks until the context is
// cancelled.
func (s *Service) Run(ctx context.Context) error {
	metrics.StartEventCollector(ctx, s.bus, s.sink)
	coremon.Go("ack_sweeper", func() { s.Router.RunAckSweeper(ctx, s.sweepInterval()) })
	coremon.Go("liveness_sweeper", func() { s.Ingest.Start(ctx) })
	if addr := s.cfg.Metrics.PrometheusPort; addr != "" {
		routes := s.routes()
		coremon.Go("prom_server", func() {
			if err := metrics.StartPromServer(ctx, addr, prometheus.DefaultGatherer, routes...); err != nil {
				s.log.Errorf("prom server: %v", err)
				coremon.CaptureException(err, map[string]string{"module": "metrics"})
			}
		})
	}
	s.log.Infof("dispatch service running with %d zones", len(s.Graph.Zones()))
	<-ctx.Done()
	return nil
}

// routes exposes the dispatch log next to /metrics when one is kept.
func (s *Service) routes() []metrics.Route {
	if s.logStore == nil {
		return nil
	}
	token := s.cfg.API.Token
	return []metrics.Route{
		{Pattern: "/api/dispatch/logs", Handler: apidispatch.NewLogHandler(s.logStore, token)},
		{Pattern: "/api/dispatch/zones", Handler: apidispatch.NewZoneStatsHandler(s.logStore, s.cfg.Topology.Zones, token)},
	}
}

// sweepInterval checks pending acks four times per timeout, at most every
// five seconds.
func (s *Service) sweepInterval() time.Duration {
	d := time.Duration(s.cfg.Dispatch.AckTimeoutSeconds) * time.Second / 4
	if d <= 0 || d > 5*time.Second {
		return 5 * time.Second
	}
	return d
}

// Close releases resources held by the service.
func (s *Service) Close() error {
	if s.paho != nil {
		s.paho.Disconnect()
	}
	if s.bus != nil {
		s.bus.Close()
	}
	var errs []error
	if s.Router != nil {
		errs = append(errs, s.Router.Close())
	} else if s.logStore != nil {
		errs = append(errs, s.logStore.Close())
	}
	if s.Store != nil {
		errs = append(errs, s.Store.Close())
	}
	if s.sink != nil {
		errs = append(errs, coremetrics.Close(s.sink))
	}
	coremon.Flush(2 * time.Second)
	return errors.Join(errs...)
}
