// Package telemetry reports run failures to Sentry.
package telemetry

import (
	"fmt"
	"strings"
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/nhle/lms-monitor/internal/model"
)

const flushTimeout = 5 * time.Second

// Reporter sends errors to Sentry. A nil or disabled Reporter does nothing.
type Reporter struct {
	hub     *sentry.Hub
	secrets []string
}

// NewReporter returns a disabled Reporter when cfg.DSN is empty. Secrets
// are scrubbed from every event before it leaves the process.
func NewReporter(cfg model.SentryConfig, release string, secrets ...string) (*Reporter, error) {
	return newReporter(cfg, release, nil, secrets)
}

func newReporter(cfg model.SentryConfig, release string, transport sentry.Transport, secrets []string) (*Reporter, error) {
	r := &Reporter{}
	for _, s := range secrets {
		if s != "" {
			r.secrets = append(r.secrets, s)
		}
	}
	if cfg.DSN == "" {
		return r, nil
	}

	client, err := sentry.NewClient(sentry.ClientOptions{
		Dsn:              cfg.DSN,
		Environment:      cfg.Environment,
		SampleRate:       cfg.SampleRate,
		Release:          release,
		AttachStacktrace: true,
		ServerName:       "",
		Transport:        transport,
		BeforeSend: func(event *sentry.Event, _ *sentry.EventHint) *sentry.Event {
			return r.scrub(event)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("sentry initialization failed: %w", err)
	}

	r.hub = sentry.NewHub(client, sentry.NewScope())
	r.hub.Scope().SetTag("component", "monitor")
	return r, nil
}

// Enabled reports whether events are sent anywhere.
func (r *Reporter) Enabled() bool {
	return r != nil && r.hub != nil
}

// CaptureError reports err.
func (r *Reporter) CaptureError(err error) {
	if !r.Enabled() || err == nil {
		return
	}
	r.hub.CaptureException(err)
}

// Flush waits for queued events to be delivered.
func (r *Reporter) Flush() {
	if !r.Enabled() {
		return
	}
	r.hub.Flush(flushTimeout)
}

func (r *Reporter) redact(s string) string {
	for _, secret := range r.secrets {
		s = strings.ReplaceAll(s, secret, "[REDACTED]")
	}
	return s
}

func (r *Reporter) scrub(event *sentry.Event) *sentry.Event {
	event.Message = r.redact(event.Message)
	for i := range event.Exception {
		event.Exception[i].Value = r.redact(event.Exception[i].Value)
	}
	event.ServerName = ""
	return event
}
