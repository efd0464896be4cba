package metrics_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	metrics "github.com/kilianp07/zonedispatch/core/metrics"
	_ "github.com/kilianp07/zonedispatch/infra/metrics"
)

func TestSinkConfigFromYAML(t *testing.T) {
	data := `sinks:
  - type: nop
  - type: nop
`
	var cfg metrics.Config
	require.NoError(t, yaml.Unmarshal([]byte(data), &cfg))
	s, err := metrics.NewMetricsSink(cfg.Sinks)
	require.NoError(t, err)
	assert.IsType(t, &metrics.MultiSink{}, s)
}

func TestSinkConfigUnknownType(t *testing.T) {
	var cfg metrics.Config
	require.NoError(t, json.Unmarshal([]byte(`{"sinks":[{"type":"nop"},{"type":"statsd"}]}`), &cfg))
	_, err := metrics.NewMetricsSink(cfg.Sinks)
	assert.ErrorContains(t, err, "metrics sink 1 (statsd)")
}
