package plugins

import (
	"fmt"

	"github.com/kilianp07/zonedispatch/core/factory"
	"github.com/kilianp07/zonedispatch/core/store"
	"github.com/kilianp07/zonedispatch/infra/store/memory"
	"github.com/kilianp07/zonedispatch/infra/store/sqlite"
)

func init() {
	RegisterStore("memory", func(string, map[string]any) (store.Store, error) {
		return memory.New(), nil
	})
	RegisterStore("sqlite", func(name string, conf map[string]any) (store.Store, error) {
		var c struct {
			Path string `json:"path"`
		}
		if err := factory.Decode(conf, &c); err != nil {
			return nil, err
		}
		if c.Path == "" {
			return nil, fmt.Errorf("%s store: path is required", name)
		}
		return sqlite.New(c.Path)
	})
}
