// Package store persists the record of which items have been notified.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nhle/lms-monitor/internal/model"
)

// ErrNotFound is returned when no record exists for an identity key.
var ErrNotFound = errors.New("sent notification not found")

// SentFilter controls listing of sent-notification records.
type SentFilter struct {
	Kind  *model.Kind // nil lists every kind
	Limit int         // 0 means no limit
}

// Store defines the persistence interface for sent-notification records.
// Records are keyed by identity key; UpsertSent replaces any existing
// record for the same key.
type Store interface {
	GetSent(ctx context.Context, identityKey string) (*model.SentNotification, error)
	UpsertSent(ctx context.Context, rec model.SentNotification) error
	DeleteSentBefore(ctx context.Context, cutoff time.Time) (int64, error)
	CountSent(ctx context.Context, kind *model.Kind) (int, error)
	ListSent(ctx context.Context, filter SentFilter) ([]model.SentNotification, error)

	// Ping checks that the backend is reachable.
	Ping(ctx context.Context) error
	Close() error
}

// Open creates the store selected by cfg.Driver.
func Open(ctx context.Context, cfg model.StoreConfig) (Store, error) {
	switch cfg.Driver {
	case "", "sqlite":
		s, err := NewSQLiteStore(cfg.Path)
		if err != nil {
			return nil, err
		}
		return s, nil
	case "postgres":
		s, err := NewPostgresStore(ctx, cfg.DSN)
		if err != nil {
			return nil, err
		}
		return s, nil
	case "dynamodb":
		s, err := NewDynamoStore(ctx, cfg.DynamoDB)
		if err != nil {
			return nil, err
		}
		if err := s.EnsureTable(ctx); err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}
