package monitoring

import (
	"context"
	"errors"
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/kilianp07/zonedispatch/config"
	coremon "github.com/kilianp07/zonedispatch/core/monitoring"
)

// NewSentryMonitor initializes Sentry using the provided configuration and
// returns a Monitor implementation. Without a DSN it returns a NopMonitor.
func NewSentryMonitor(cfg config.SentryConfig) (coremon.Monitor, error) {
	if cfg.DSN == "" {
		return coremon.NopMonitor{}, nil
	}
	err := sentry.Init(sentry.ClientOptions{
		Dsn:              cfg.DSN,
		Environment:      cfg.Environment,
		TracesSampleRate: cfg.TracesSampleRate,
		Release:          cfg.Release,
		ServerName:       cfg.Site,
		AttachStacktrace: true,
		BeforeSend:       dropCancelled,
	})
	if err != nil {
		return nil, err
	}
	return &sentryMonitor{site: cfg.Site}, nil
}

// dropCancelled discards events caused by shutdown.
func dropCancelled(ev *sentry.Event, hint *sentry.EventHint) *sentry.Event {
	if hint != nil && hint.OriginalException != nil {
		if errors.Is(hint.OriginalException, context.Canceled) {
			return nil
		}
	}
	return ev
}

type sentryMonitor struct {
	site string
}

func (s *sentryMonitor) CaptureException(err error, tags map[string]string) {
	if err == nil {
		return
	}
	sentry.WithScope(func(scope *sentry.Scope) {
		if s.site != "" {
			scope.SetTag("site", s.site)
		}
		for k, v := range tags {
			scope.SetTag(k, v)
		}
		if id, ok := tags["worker_id"]; ok {
			scope.SetUser(sentry.User{ID: id})
		}
		sentry.CaptureException(err)
	})
}

func (s *sentryMonitor) Recover() {
	if r := recover(); r != nil {
		sentry.CurrentHub().Recover(r)
		sentry.Flush(2 * time.Second)
		panic(r)
	}
}

func (s *sentryMonitor) Flush(timeout time.Duration) { sentry.Flush(timeout) }
