package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/kilianp07/zonedispatch/core/dispatch"
	"github.com/kilianp07/zonedispatch/core/dispatch/logging"
	"github.com/kilianp07/zonedispatch/core/factory"
	"github.com/kilianp07/zonedispatch/core/metrics"
	"github.com/kilianp07/zonedispatch/core/positioning"
	"github.com/kilianp07/zonedispatch/core/tracking"
	"github.com/kilianp07/zonedispatch/infra/mqtt"
	"github.com/kilianp07/zonedispatch/infra/telemetry"
)

type Config struct {
	Dispatch    dispatch.Config      `json:"dispatch"`
	Positioning positioning.Config   `json:"positioning"`
	Tracking    tracking.Config      `json:"tracking"`
	Topology    TopologyConfig       `json:"topology"`
	Roster      []RosterEntry        `json:"roster"`
	Store       factory.ModuleConfig `json:"store"`
	Logging     logging.Config       `json:"logging"`
	Metrics     metrics.Config       `json:"metrics"`
	MQTT        mqtt.Config          `json:"mqtt"`
	Ingest      telemetry.Config     `json:"ingest"`
	Sentry      SentryConfig         `json:"sentry"`
	API         APIConfig            `json:"api"`
}

// Load reads the configuration file at path, applies K_ prefixed
// environment overrides (K_MQTT__BROKER sets mqtt.broker), fills defaults
// and validates every section.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	ext := strings.ToLower(filepath.Ext(path))
	var parser koanf.Parser
	switch ext {
	case ".yaml", ".yml":
		parser = yaml.Parser()
	case ".json":
		parser = json.Parser()
	default:
		return nil, fmt.Errorf("unsupported config format: %s", ext)
	}
	if err := k.Load(file.Provider(path), parser); err != nil {
		return nil, err
	}
	// K_MQTT__BROKER becomes mqtt.broker; the provider splits on ".".
	if err := k.Load(env.Provider("K_", ".", func(s string) string {
		s = strings.TrimPrefix(strings.ToLower(s), "k_")
		return strings.ReplaceAll(s, "__", ".")
	}), nil); err != nil {
		return nil, err
	}
	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, err
	}
	if err := cfg.Prepare(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Prepare fills defaults and validates every section.
func (c *Config) Prepare() error {
	c.Dispatch.SetDefaults()
	c.Positioning.SetDefaults()
	c.Tracking.SetDefaults()
	c.Logging.SetDefaults()
	c.MQTT.SetDefaults()

	if err := c.Dispatch.Validate(); err != nil {
		return err
	}
	if err := c.Positioning.Validate(); err != nil {
		return err
	}
	if err := c.Tracking.Validate(); err != nil {
		return err
	}
	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging: %w", err)
	}
	if err := c.Topology.Validate(); err != nil {
		return err
	}
	return validateRoster(c.Roster)
}
