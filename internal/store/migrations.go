package store

// migration holds a single schema migration with its target version and SQL.
type migration struct {
	version int
	sql     string
}

// migrations is the ordered list of schema migrations.
// Each migration's version must be sequential starting from 1.
var migrations = []migration{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS triggers (
	id           TEXT PRIMARY KEY,
	incident_id  TEXT NOT NULL DEFAULT '',
	severity     REAL NOT NULL DEFAULT 0,
	source       TEXT NOT NULL,
	created_at   DATETIME NOT NULL,
	received_at  DATETIME NOT NULL,
	is_new       INTEGER NOT NULL DEFAULT 1 CHECK(is_new IN (0, 1)),
	acknowledged INTEGER NOT NULL DEFAULT 0 CHECK(acknowledged IN (0, 1)),
	consumed     INTEGER NOT NULL DEFAULT 0 CHECK(consumed IN (0, 1)),
	consumed_at  DATETIME,
	ack_status   TEXT NOT NULL DEFAULT 'none'
		CHECK(ack_status IN ('none', 'pending', 'acknowledged', 'failed', 'skipped')),
	ack_error    TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS notifications (
	id          TEXT PRIMARY KEY,
	trigger_id  TEXT NOT NULL,
	incident_id TEXT NOT NULL DEFAULT '',
	tier        TEXT NOT NULL DEFAULT 'none',
	message     TEXT NOT NULL,
	read        INTEGER NOT NULL DEFAULT 0,
	created_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_triggers_consumed ON triggers(consumed);
CREATE INDEX IF NOT EXISTS idx_notifications_read ON notifications(read);
CREATE INDEX IF NOT EXISTS idx_notifications_created ON notifications(created_at);

INSERT INTO schema_version (version) VALUES (1);
`,
	},
	{
		version: 2,
		sql: `
CREATE INDEX IF NOT EXISTS idx_triggers_incident_id
	ON triggers(incident_id);

CREATE INDEX IF NOT EXISTS idx_notifications_trigger_id
	ON notifications(trigger_id);

INSERT INTO schema_version (version) VALUES (2);
`,
	},
}
