// Package plugins maps configured backend names to their constructors.
package plugins

import (
	"fmt"
	"sort"

	"github.com/kilianp07/zonedispatch/core/factory"
	"github.com/kilianp07/zonedispatch/core/store"
)

// StoreFactory builds a store backend from raw config.
type StoreFactory func(name string, conf map[string]any) (store.Store, error)

var Stores = map[string]StoreFactory{}

func RegisterStore(name string, f StoreFactory) { Stores[name] = f }

// OpenStore instantiates the configured store backend. An empty type
// selects the in-memory store.
func OpenStore(cfg factory.ModuleConfig) (store.Store, error) {
	name := cfg.Type
	if name == "" {
		name = "memory"
	}
	f, ok := Stores[name]
	if !ok {
		names := make([]string, 0, len(Stores))
		for n := range Stores {
			names = append(names, n)
		}
		sort.Strings(names)
		return nil, fmt.Errorf("unknown store backend %q (known: %v)", name, names)
	}
	return f(name, cfg.Conf)
}
