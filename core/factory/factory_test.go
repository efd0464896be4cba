package factory

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sink struct {
	URL     string
	Timeout time.Duration
}

type sinkConf struct {
	URL     string        `json:"url"`
	Timeout time.Duration `json:"timeout"`
	Retries int           `json:"retries"`
}

func TestRegistryCreate(t *testing.T) {
	reg := NewRegistry[*sink]()
	require.NoError(t, reg.Register("influx", func(conf map[string]any) (*sink, error) {
		var c sinkConf
		if err := Decode(conf, &c); err != nil {
			return nil, err
		}
		return &sink{URL: c.URL, Timeout: c.Timeout}, nil
	}))
	inst, err := reg.Create(ModuleConfig{Type: "influx", Conf: map[string]any{"url": "http://influx:8086", "timeout": "2s"}})
	require.NoError(t, err)
	assert.Equal(t, "http://influx:8086", inst.URL)
	assert.Equal(t, 2*time.Second, inst.Timeout)
}

func TestRegistryErrors(t *testing.T) {
	reg := NewRegistry[int]()
	require.NoError(t, reg.Register("nop", func(map[string]any) (int, error) { return 1, nil }))
	require.NoError(t, reg.Register("broken", func(map[string]any) (int, error) { return 0, errors.New("boom") }))
	assert.Error(t, reg.Register("nop", nil))
	assert.Error(t, reg.Register("nop", func(map[string]any) (int, error) { return 2, nil }))

	_, err := reg.Create(ModuleConfig{Type: "influx"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken, nop")

	_, err = reg.Create(ModuleConfig{Type: "broken"})
	assert.EqualError(t, err, "broken: boom")
	assert.Equal(t, []string{"broken", "nop"}, reg.Types())
}

func TestDecodeWeakTypes(t *testing.T) {
	var c sinkConf
	require.NoError(t, Decode(map[string]any{"retries": "3"}, &c))
	assert.Equal(t, 3, c.Retries)
}
