package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"

	"github.com/nhle/lms-monitor/internal/model"
)

const sentTable = "sent_notifications"

var sentColumns = []string{
	"id", "notification_type", "identity_key", "content_fingerprint",
	"course_code", "title", "sent_at",
}

// upsertSuffix relies on the unique constraint on identity_key, so
// concurrent upserts for one key never produce two rows.
const upsertSuffix = `ON CONFLICT (identity_key) DO UPDATE SET
	notification_type = excluded.notification_type,
	content_fingerprint = excluded.content_fingerprint,
	course_code = excluded.course_code,
	title = excluded.title,
	sent_at = excluded.sent_at`

// SQLStore implements Store on a SQL database through sqlx. The SQLite
// and PostgreSQL constructors differ only in driver, placeholders and
// migrations.
type SQLStore struct {
	db *sqlx.DB
	sb sq.StatementBuilderType
}

func newSQLStore(db *sqlx.DB, placeholders sq.PlaceholderFormat) *SQLStore {
	return &SQLStore{
		db: db,
		sb: sq.StatementBuilder.PlaceholderFormat(placeholders),
	}
}

// Close closes the underlying database connection.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

// Ping checks the database connection.
func (s *SQLStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("pinging database: %w", err)
	}
	return nil
}

// runMigrations reads the current schema version and applies any
// outstanding migrations in order, each in its own transaction.
func (s *SQLStore) runMigrations(ctx context.Context, migrations []migration) error {
	if _, err := s.db.ExecContext(ctx, schemaVersionTable); err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	currentVersion := 0
	err := s.db.GetContext(ctx, &currentVersion, "SELECT COALESCE(MAX(version), 0) FROM schema_version")
	if err != nil {
		return fmt.Errorf("reading schema version: %w", err)
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}
		if err := s.applyMigration(ctx, m); err != nil {
			return fmt.Errorf("applying migration v%d: %w", m.version, err)
		}
	}

	return nil
}

func (s *SQLStore) applyMigration(ctx context.Context, m migration) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, m.sql); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, tx.Rebind("INSERT INTO schema_version (version) VALUES (?)"), m.version); err != nil {
		return fmt.Errorf("recording version: %w", err)
	}
	return tx.Commit()
}

// GetSent returns the record for identityKey, or ErrNotFound.
func (s *SQLStore) GetSent(ctx context.Context, identityKey string) (*model.SentNotification, error) {
	query, args, err := s.sb.Select(sentColumns...).
		From(sentTable).
		Where(sq.Eq{"identity_key": identityKey}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building query: %w", err)
	}

	var rec model.SentNotification
	if err := s.db.GetContext(ctx, &rec, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("getting sent notification %s: %w", identityKey, err)
	}
	return &rec, nil
}

// UpsertSent inserts rec or replaces the record with the same identity key.
func (s *SQLStore) UpsertSent(ctx context.Context, rec model.SentNotification) error {
	query, args, err := s.sb.Insert(sentTable).
		Columns("notification_type", "identity_key", "content_fingerprint", "course_code", "title", "sent_at").
		Values(string(rec.Kind), rec.IdentityKey, rec.ContentFingerprint, rec.CourseCode, rec.Title, rec.SentAt.UTC()).
		Suffix(upsertSuffix).
		ToSql()
	if err != nil {
		return fmt.Errorf("building upsert: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("upserting sent notification %s: %w", rec.IdentityKey, err)
	}
	return nil
}

// DeleteSentBefore removes records sent before cutoff and returns how many
// were removed.
func (s *SQLStore) DeleteSentBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	query, args, err := s.sb.Delete(sentTable).
		Where(sq.Lt{"sent_at": cutoff.UTC()}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("building delete: %w", err)
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("deleting sent notifications before %s: %w", cutoff.Format(time.RFC3339), err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("reading deleted row count: %w", err)
	}
	return n, nil
}

// CountSent counts records, optionally of one kind.
func (s *SQLStore) CountSent(ctx context.Context, kind *model.Kind) (int, error) {
	qb := s.sb.Select("COUNT(*)").From(sentTable)
	if kind != nil {
		qb = qb.Where(sq.Eq{"notification_type": string(*kind)})
	}
	query, args, err := qb.ToSql()
	if err != nil {
		return 0, fmt.Errorf("building count: %w", err)
	}

	var n int
	if err := s.db.GetContext(ctx, &n, query, args...); err != nil {
		return 0, fmt.Errorf("counting sent notifications: %w", err)
	}
	return n, nil
}

// ListSent returns records newest first.
func (s *SQLStore) ListSent(ctx context.Context, filter SentFilter) ([]model.SentNotification, error) {
	qb := s.sb.Select(sentColumns...).From(sentTable).OrderBy("sent_at DESC", "id DESC")
	if filter.Kind != nil {
		qb = qb.Where(sq.Eq{"notification_type": string(*filter.Kind)})
	}
	if filter.Limit > 0 {
		qb = qb.Limit(uint64(filter.Limit))
	}
	query, args, err := qb.ToSql()
	if err != nil {
		return nil, fmt.Errorf("building list: %w", err)
	}

	var recs []model.SentNotification
	if err := s.db.SelectContext(ctx, &recs, query, args...); err != nil {
		return nil, fmt.Errorf("listing sent notifications: %w", err)
	}
	return recs, nil
}
