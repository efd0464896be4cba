package memory

import (
	"testing"

	"github.com/kilianp07/zonedispatch/core/store"
	"github.com/kilianp07/zonedispatch/infra/store/storetest"
)

func TestMemoryStore(t *testing.T) {
	storetest.Run(t, func(*testing.T) store.Store { return New() })
}
