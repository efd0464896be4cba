// Package monitoring reports errors and panics to the configured backend.
package monitoring

import (
	"fmt"
	"sync"
	"time"
)

// Monitor defines methods used for error reporting.
type Monitor interface {
	CaptureException(err error, tags map[string]string)
	Recover()
	Flush(timeout time.Duration)
}

type NopMonitor struct{}

func (NopMonitor) CaptureException(error, map[string]string) {}
func (NopMonitor) Recover()                                  {}
func (NopMonitor) Flush(time.Duration)                       {}

var (
	mu      sync.RWMutex
	current Monitor = NopMonitor{}
)

// Init sets the global monitor implementation. A nil monitor is ignored.
func Init(m Monitor) {
	if m == nil {
		return
	}
	mu.Lock()
	current = m
	mu.Unlock()
}

func get() Monitor {
	mu.RLock()
	defer mu.RUnlock()
	return current
}

// CaptureException records the error with optional tags.
func CaptureException(err error, tags map[string]string) {
	if err == nil {
		return
	}
	get().CaptureException(err, tags)
}

// Recover captures panics in goroutines. It must be deferred directly.
func Recover() {
	get().Recover()
}

// Flush flushes buffered events.
func Flush(d time.Duration) {
	get().Flush(d)
}

// Go runs fn in a goroutine. A panic is reported with the component tag
// and swallowed so a background loop cannot take the service down.
func Go(component string, fn func()) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				CaptureException(fmt.Errorf("panic in %s: %v", component, r), map[string]string{"component": component})
			}
		}()
		fn()
	}()
}
