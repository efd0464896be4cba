package monitoring

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/getsentry/sentry-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/zonedispatch/config"
	coremon "github.com/kilianp07/zonedispatch/core/monitoring"
)

func TestNewSentryMonitorWithoutDSN(t *testing.T) {
	m, err := NewSentryMonitor(config.SentryConfig{})
	require.NoError(t, err)
	assert.IsType(t, coremon.NopMonitor{}, m)
}

func TestNewSentryMonitorRejectsBadDSN(t *testing.T) {
	_, err := NewSentryMonitor(config.SentryConfig{DSN: "not a dsn"})
	assert.Error(t, err)
}

func TestDropCancelled(t *testing.T) {
	ev := &sentry.Event{}
	assert.Nil(t, dropCancelled(ev, &sentry.EventHint{OriginalException: fmt.Errorf("publish: %w", context.Canceled)}))
	assert.Same(t, ev, dropCancelled(ev, &sentry.EventHint{OriginalException: errors.New("broker down")}))
	assert.Same(t, ev, dropCancelled(ev, nil))
}
