// Package app builds the dependency graph shared by the CLI commands.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/nhle/lms-monitor/internal/credential"
	"github.com/nhle/lms-monitor/internal/dedup"
	"github.com/nhle/lms-monitor/internal/examdetect"
	"github.com/nhle/lms-monitor/internal/model"
	"github.com/nhle/lms-monitor/internal/monitor"
	"github.com/nhle/lms-monitor/internal/notify"
	"github.com/nhle/lms-monitor/internal/observability"
	"github.com/nhle/lms-monitor/internal/runlock"
	"github.com/nhle/lms-monitor/internal/session"
	"github.com/nhle/lms-monitor/internal/source/sakai"
	"github.com/nhle/lms-monitor/internal/store"
	"github.com/nhle/lms-monitor/internal/telemetry"
)

// Version is stamped at build time with -ldflags "-X ...app.Version=...".
var Version = "dev"

// SecretSource fills empty secret fields, keyed by credential name.
type SecretSource interface {
	Fill(targets map[string]*string) error
}

// LoadConfig reads the config file and fills secrets left empty by the
// file and environment from secrets, which may be nil.
func LoadConfig(path string, secrets SecretSource) (*model.Config, error) {
	cfg, err := model.LoadConfig(path)
	if err != nil {
		return nil, err
	}
	if secrets == nil {
		return cfg, nil
	}

	err = secrets.Fill(map[string]*string{
		credential.KeyPortalPassword:  &cfg.Portal.Password,
		credential.KeyTelegramToken:   &cfg.Notify.Telegram.Token,
		credential.KeyResendAPIKey:    &cfg.Notify.Resend.APIKey,
		credential.KeyMailboxPassword: &cfg.Notify.Mailbox.Password,
		credential.KeyWhatsAppToken:   &cfg.Notify.WhatsApp.Token,
	})
	if err != nil {
		return nil, fmt.Errorf("resolving secrets: %w", err)
	}
	return cfg, nil
}

// secretValues lists the resolved secrets so they can be scrubbed from
// error reports.
func secretValues(cfg *model.Config) []string {
	return []string{
		cfg.Portal.Password,
		cfg.Notify.Telegram.Token,
		cfg.Notify.Resend.APIKey,
		cfg.Notify.Mailbox.Password,
		cfg.Notify.WhatsApp.Token,
		cfg.Store.DynamoDB.SecretAccessKey,
	}
}

// App owns the long-lived resources of one CLI invocation.
type App struct {
	Config   *model.Config
	Logger   *slog.Logger
	Store    store.Store
	Dedup    *dedup.Store
	Metrics  *observability.Metrics
	Reporter *telemetry.Reporter

	closers []func() error
}

// New opens the dedup store. Portal and channel resources are only built
// by NewMonitor, so store maintenance commands work without them.
func New(ctx context.Context, cfg *model.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}

	backend, err := store.Open(ctx, cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}

	a := &App{
		Config: cfg,
		Logger: logger,
		Store:  backend,
		Dedup:  dedup.New(backend, logger, dedup.WithCache(cfg.Store.CacheTTL)),
	}
	a.addCloser(backend.Close)
	return a, nil
}

func (a *App) addCloser(fn func() error) {
	a.closers = append(a.closers, fn)
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// Session builds the portal session manager.
func (a *App) Session() *session.Manager {
	return session.NewManager(a.Config.Portal, a.Logger)
}

// Notifier builds the configured delivery channel.
func (a *App) Notifier(ctx context.Context) (notify.Notifier, error) {
	n, err := notify.New(ctx, a.Config.Notify)
	if err != nil {
		return nil, fmt.Errorf("building notifier: %w", err)
	}
	return n, nil
}

func (a *App) locker(ctx context.Context) (runlock.Locker, error) {
	lc := a.Config.Lock
	if lc.RedisURL == "" {
		return runlock.Noop{}, nil
	}
	l, err := runlock.NewRedis(ctx, lc.RedisURL, lc.Key, lc.TTL)
	if err != nil {
		return nil, err
	}
	a.addCloser(l.Close)
	return l, nil
}

// NewMonitor validates the config and wires a Monitor with metrics, error
// reporting, locking and retention. extra options are applied last.
func (a *App) NewMonitor(ctx context.Context, extra ...monitor.Option) (*monitor.Monitor, error) {
	cfg := a.Config
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	notifier, err := a.Notifier(ctx)
	if err != nil {
		return nil, err
	}

	locker, err := a.locker(ctx)
	if err != nil {
		return nil, err
	}

	if a.Metrics == nil {
		if a.Metrics, err = observability.NewMetrics(); err != nil {
			return nil, err
		}
	}

	if a.Reporter == nil {
		a.Reporter, err = telemetry.NewReporter(cfg.Sentry, Version, secretValues(cfg)...)
		if err != nil {
			return nil, err
		}
		reporter := a.Reporter
		a.addCloser(func() error {
			reporter.Flush()
			return nil
		})
	}

	loc := cfg.Portal.Location()
	opts := []monitor.Option{
		monitor.WithSummary(cfg.Notify.Summary),
		monitor.WithRecorder(a.Metrics),
		monitor.WithErrorReporter(a.Reporter),
		monitor.WithLocker(locker),
		monitor.WithRetention(cfg.Store.Retention),
	}
	opts = append(opts, extra...)

	return monitor.New(
		a.Session(),
		sakai.NewAdapter(cfg.Courses, loc, a.Logger),
		examdetect.New(loc),
		a.Dedup,
		notifier,
		a.Logger,
		opts...,
	), nil
}
