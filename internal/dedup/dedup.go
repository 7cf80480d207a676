// Package dedup decides whether an item still needs to be notified.
//
// Lookups fail open: when the backing store cannot be read, the item is
// treated as not yet sent. A duplicate message is preferred over silently
// dropping an update.
package dedup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/nhle/lms-monitor/internal/fingerprint"
	"github.com/nhle/lms-monitor/internal/model"
	"github.com/nhle/lms-monitor/internal/store"
)

// Option configures a Store.
type Option func(*Store)

// WithCache keeps successfully read or written fingerprints in memory for
// ttl. A cache hit never stands in for a failed store read.
func WithCache(ttl time.Duration) Option {
	return func(s *Store) {
		if ttl > 0 {
			s.cache = cache.New(ttl, 0)
		}
	}
}

// WithClock overrides the time source used for sent_at and pruning.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// Store gates notifications on the persisted sent-notification records.
type Store struct {
	backend store.Store
	cache   *cache.Cache
	logger  *slog.Logger
	now     func() time.Time
}

// New wraps backend.
func New(backend store.Store, logger *slog.Logger, opts ...Option) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{
		backend: backend,
		logger:  logger.With("component", "dedup"),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) storedFingerprint(ctx context.Context, key string) (string, bool, error) {
	if s.cache != nil {
		if fp, ok := s.cache.Get(key); ok {
			return fp.(string), true, nil
		}
	}

	rec, err := s.backend.GetSent(ctx, key)
	if errors.Is(err, store.ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	if s.cache != nil {
		s.cache.SetDefault(key, rec.ContentFingerprint)
	}
	return rec.ContentFingerprint, true, nil
}

// HasBeenSent reports whether item was already notified with its current
// content. Store errors are logged and answered with false.
func (s *Store) HasBeenSent(ctx context.Context, item model.Item) bool {
	key := fingerprint.IdentityKey(item)

	stored, found, err := s.storedFingerprint(ctx, key)
	if err != nil {
		s.logger.Warn("dedup lookup failed, treating item as new", "key", key, "error", err)
		return false
	}
	if !found {
		return false
	}

	if stored != fingerprint.ContentFingerprint(item) {
		s.logger.Info("content updated", "key", key, "title", item.Title())
		return false
	}
	return true
}

// MarkAsSent records item as delivered, replacing any previous record for
// its identity key. It returns whether the write succeeded.
func (s *Store) MarkAsSent(ctx context.Context, item model.Item) bool {
	key := fingerprint.IdentityKey(item)
	fp := fingerprint.ContentFingerprint(item)

	rec := model.SentNotification{
		Kind:               item.Kind,
		IdentityKey:        key,
		ContentFingerprint: fp,
		Title:              item.Title(),
		SentAt:             s.now().UTC(),
	}
	if code := item.CourseCode(); code != "" {
		rec.CourseCode = &code
	}

	if err := s.backend.UpsertSent(ctx, rec); err != nil {
		s.logger.Error("failed to record sent notification", "key", key, "error", err)
		if s.cache != nil {
			s.cache.Delete(key)
		}
		return false
	}

	if s.cache != nil {
		s.cache.SetDefault(key, fp)
	}
	return true
}

// ClearOlderThan deletes records sent more than age ago.
func (s *Store) ClearOlderThan(ctx context.Context, age time.Duration) (int64, error) {
	cutoff := s.now().Add(-age)
	n, err := s.backend.DeleteSentBefore(ctx, cutoff)
	if s.cache != nil {
		s.cache.Flush()
	}
	if err != nil {
		return n, fmt.Errorf("clearing records older than %s: %w", age, err)
	}
	if n > 0 {
		s.logger.Info("cleared old sent notifications", "count", n, "older_than", age)
	}
	return n, nil
}

// SentCount counts stored records, optionally of one kind.
func (s *Store) SentCount(ctx context.Context, kind *model.Kind) (int, error) {
	n, err := s.backend.CountSent(ctx, kind)
	if err != nil {
		return 0, fmt.Errorf("counting sent notifications: %w", err)
	}
	return n, nil
}
