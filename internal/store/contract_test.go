package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/lms-monitor/internal/model"
	"github.com/nhle/lms-monitor/internal/store"
)

func ptr[T any](v T) *T { return &v }

func sent(kind model.Kind, id, fp string, at time.Time) model.SentNotification {
	return model.SentNotification{
		Kind:               kind,
		IdentityKey:        string(kind) + ":" + id,
		ContentFingerprint: fp,
		CourseCode:         ptr("UGRC 150"),
		Title:              "title " + id,
		SentAt:             at,
	}
}

// runStoreContract exercises behaviour every Store backend must share.
func runStoreContract(t *testing.T, newStore func(t *testing.T) store.Store) {
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("get missing returns ErrNotFound", func(t *testing.T) {
		s := newStore(t)
		_, err := s.GetSent(context.Background(), "announcement:nope")
		assert.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("upsert then get", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		rec := sent(model.KindAnnouncement, "1", "aaaa", base)
		require.NoError(t, s.UpsertSent(ctx, rec))

		got, err := s.GetSent(ctx, rec.IdentityKey)
		require.NoError(t, err)
		assert.Equal(t, model.KindAnnouncement, got.Kind)
		assert.Equal(t, "aaaa", got.ContentFingerprint)
		require.NotNil(t, got.CourseCode)
		assert.Equal(t, "UGRC 150", *got.CourseCode)
		assert.Equal(t, "title 1", got.Title)
		assert.True(t, got.SentAt.Equal(base), "sent_at %v", got.SentAt)
	})

	t.Run("upsert replaces existing record", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		require.NoError(t, s.UpsertSent(ctx, sent(model.KindAssignment, "7", "old", base)))
		require.NoError(t, s.UpsertSent(ctx, sent(model.KindAssignment, "7", "new", base.Add(time.Hour))))

		got, err := s.GetSent(ctx, "assignment:7")
		require.NoError(t, err)
		assert.Equal(t, "new", got.ContentFingerprint)
		assert.True(t, got.SentAt.Equal(base.Add(time.Hour)))

		n, err := s.CountSent(ctx, nil)
		require.NoError(t, err)
		assert.Equal(t, 1, n)
	})

	t.Run("nil course code round trips", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		rec := sent(model.KindExam, "ann-3", "ffff", base)
		rec.CourseCode = nil
		require.NoError(t, s.UpsertSent(ctx, rec))

		got, err := s.GetSent(ctx, rec.IdentityKey)
		require.NoError(t, err)
		assert.Nil(t, got.CourseCode)
	})

	t.Run("count by kind", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		require.NoError(t, s.UpsertSent(ctx, sent(model.KindAnnouncement, "1", "a", base)))
		require.NoError(t, s.UpsertSent(ctx, sent(model.KindAnnouncement, "2", "b", base)))
		require.NoError(t, s.UpsertSent(ctx, sent(model.KindExam, "ann-1", "c", base)))

		n, err := s.CountSent(ctx, nil)
		require.NoError(t, err)
		assert.Equal(t, 3, n)

		n, err = s.CountSent(ctx, ptr(model.KindAnnouncement))
		require.NoError(t, err)
		assert.Equal(t, 2, n)

		n, err = s.CountSent(ctx, ptr(model.KindAssignment))
		require.NoError(t, err)
		assert.Equal(t, 0, n)
	})

	t.Run("delete before cutoff", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		require.NoError(t, s.UpsertSent(ctx, sent(model.KindAnnouncement, "old", "a", base.AddDate(0, 0, -40))))
		require.NoError(t, s.UpsertSent(ctx, sent(model.KindAnnouncement, "new", "b", base)))

		n, err := s.DeleteSentBefore(ctx, base.AddDate(0, 0, -30))
		require.NoError(t, err)
		assert.EqualValues(t, 1, n)

		_, err = s.GetSent(ctx, "announcement:old")
		assert.ErrorIs(t, err, store.ErrNotFound)
		_, err = s.GetSent(ctx, "announcement:new")
		assert.NoError(t, err)
	})

	t.Run("list newest first with limit", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		for i, id := range []string{"a", "b", "c"} {
			rec := sent(model.KindAssignment, id, id, base.Add(time.Duration(i)*time.Minute))
			require.NoError(t, s.UpsertSent(ctx, rec))
		}
		require.NoError(t, s.UpsertSent(ctx, sent(model.KindExam, "x", "x", base.Add(time.Hour))))

		all, err := s.ListSent(ctx, store.SentFilter{})
		require.NoError(t, err)
		require.Len(t, all, 4)
		assert.Equal(t, "exam:x", all[0].IdentityKey)

		recs, err := s.ListSent(ctx, store.SentFilter{Kind: ptr(model.KindAssignment), Limit: 2})
		require.NoError(t, err)
		require.Len(t, recs, 2)
		assert.Equal(t, "assignment:c", recs[0].IdentityKey)
		assert.Equal(t, "assignment:b", recs[1].IdentityKey)
	})

	t.Run("ping", func(t *testing.T) {
		s := newStore(t)
		assert.NoError(t, s.Ping(context.Background()))
	})
}
