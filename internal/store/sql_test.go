package store_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/lms-monitor/internal/model"
	"github.com/nhle/lms-monitor/internal/store"
)

func newMemoryStore(t *testing.T) store.Store {
	t.Helper()
	s, err := store.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLiteStore(t *testing.T) {
	runStoreContract(t, newMemoryStore)
}

func TestSQLiteStore_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "sent.db")
	ctx := context.Background()

	s, err := store.NewSQLiteStore(path)
	require.NoError(t, err)
	require.NoError(t, s.UpsertSent(ctx, sent(model.KindAnnouncement, "1", "abc", time.Now().UTC())))
	require.NoError(t, s.Close())

	// Reopening must not re-run migrations destructively.
	s, err = store.NewSQLiteStore(path)
	require.NoError(t, err)
	defer s.Close()

	got, err := s.GetSent(ctx, "announcement:1")
	require.NoError(t, err)
	assert.Equal(t, "abc", got.ContentFingerprint)
}

func TestOpen_UnknownDriver(t *testing.T) {
	_, err := store.Open(context.Background(), model.StoreConfig{Driver: "mongo"})
	assert.ErrorContains(t, err, `unknown store driver "mongo"`)
}

func TestOpen_SQLite(t *testing.T) {
	s, err := store.Open(context.Background(), model.StoreConfig{
		Driver: "sqlite",
		Path:   filepath.Join(t.TempDir(), "sent.db"),
	})
	require.NoError(t, err)
	defer s.Close()
	assert.NoError(t, s.Ping(context.Background()))
}
