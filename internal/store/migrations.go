package store

// migration holds a single schema migration with its target version and SQL.
type migration struct {
	version int
	sql     string
}

// schemaVersionTable is created before any migration runs.
const schemaVersionTable = `CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER NOT NULL
)`

// sqliteMigrations is the ordered list of SQLite schema migrations.
// Each migration's version must be sequential starting from 1.
var sqliteMigrations = []migration{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS sent_notifications (
	id                  INTEGER PRIMARY KEY AUTOINCREMENT,
	notification_type   TEXT NOT NULL,
	identity_key        TEXT NOT NULL UNIQUE,
	content_fingerprint TEXT NOT NULL,
	course_code         TEXT,
	title               TEXT NOT NULL DEFAULT '',
	sent_at             DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_sent_notifications_type ON sent_notifications(notification_type);
CREATE INDEX IF NOT EXISTS idx_sent_notifications_sent_at ON sent_notifications(sent_at);
`,
	},
}

// postgresMigrations mirrors sqliteMigrations for PostgreSQL.
var postgresMigrations = []migration{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS sent_notifications (
	id                  BIGSERIAL PRIMARY KEY,
	notification_type   TEXT NOT NULL,
	identity_key        TEXT NOT NULL UNIQUE,
	content_fingerprint TEXT NOT NULL,
	course_code         TEXT,
	title               TEXT NOT NULL DEFAULT '',
	sent_at             TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_sent_notifications_type ON sent_notifications(notification_type);
CREATE INDEX IF NOT EXISTS idx_sent_notifications_sent_at ON sent_notifications(sent_at);
`,
	},
}
