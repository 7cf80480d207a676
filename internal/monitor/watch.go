package monitor

import (
	"context"
	"errors"
	"time"

	"github.com/nhle/lms-monitor/internal/runlock"
)

const releaseTimeout = 10 * time.Second

type watchConfig struct {
	locker    runlock.Locker
	retention time.Duration
}

func defaultWatchConfig() watchConfig {
	return watchConfig{locker: runlock.Noop{}}
}

// WithLocker guards each run with l so overlapping schedules skip
// instead of sharing a session.
func WithLocker(l runlock.Locker) Option {
	return func(m *Monitor) {
		if l != nil {
			m.watch.locker = l
		}
	}
}

// WithRetention prunes dedup records older than age after each run.
// Zero disables pruning.
func WithRetention(age time.Duration) Option {
	return func(m *Monitor) { m.watch.retention = age }
}

// RunLocked performs one run under the run lock. It returns
// runlock.ErrLocked without running when another run holds the lock.
func (m *Monitor) RunLocked(ctx context.Context) (Stats, error) {
	release, err := m.watch.locker.Acquire(ctx)
	if err != nil {
		if errors.Is(err, runlock.ErrLocked) {
			m.recorder.RunSkipped()
		}
		return Stats{}, err
	}
	defer func() {
		relCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
		defer cancel()
		if err := release(relCtx); err != nil {
			m.logger.Warn("failed to release run lock", "error", err)
		}
	}()

	stats, err := m.Run(ctx)
	if m.watch.retention > 0 && ctx.Err() == nil {
		if _, pruneErr := m.dedup.ClearOlderThan(ctx, m.watch.retention); pruneErr != nil {
			m.logger.Warn("retention pruning failed", "error", pruneErr)
		}
	}
	return stats, err
}

// Watch runs immediately and then every interval until ctx is done. Run
// failures are logged and never stop the loop.
func (m *Monitor) Watch(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return errors.New("watch interval must be positive")
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	m.logger.Info("watching portal", "interval", interval)
	for {
		if _, err := m.RunLocked(ctx); errors.Is(err, runlock.ErrLocked) {
			m.logger.Info("skipping run, another run holds the lock")
		} else if err != nil && ctx.Err() == nil {
			m.logger.Warn("run failed, will retry on next tick", "error", err)
		}

		select {
		case <-ctx.Done():
			m.logger.Info("watch stopped")
			return nil
		case <-ticker.C:
		}
	}
}
