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

CREATE TABLE IF NOT EXISTS messages (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	fingerprint TEXT NOT NULL UNIQUE,
	account     TEXT NOT NULL,
	sender      TEXT NOT NULL,
	subject     TEXT NOT NULL,
	preview     TEXT NOT NULL DEFAULT '',
	received_at DATETIME NOT NULL,
	created_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS destinations (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	chat_id     INTEGER NOT NULL UNIQUE,
	title       TEXT NOT NULL DEFAULT '',
	active      INTEGER NOT NULL DEFAULT 1 CHECK(active IN (0, 1)),
	filter_json TEXT,
	added_by    INTEGER NOT NULL DEFAULT 0,
	created_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS deliveries (
	id             INTEGER PRIMARY KEY AUTOINCREMENT,
	message_id     INTEGER NOT NULL REFERENCES messages(id),
	destination_id INTEGER NOT NULL REFERENCES destinations(id),
	delivery_id    INTEGER NOT NULL,
	state          TEXT NOT NULL DEFAULT 'pending' CHECK(state IN ('pending', 'handled')),
	handled_by     INTEGER,
	handled_at     DATETIME,
	created_at     DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	UNIQUE(message_id, destination_id)
);

CREATE INDEX IF NOT EXISTS idx_messages_fingerprint ON messages(fingerprint);
CREATE INDEX IF NOT EXISTS idx_destinations_chat_id ON destinations(chat_id);
CREATE INDEX IF NOT EXISTS idx_deliveries_message ON deliveries(message_id);
CREATE INDEX IF NOT EXISTS idx_deliveries_destination ON deliveries(destination_id);
CREATE INDEX IF NOT EXISTS idx_deliveries_delivery_id ON deliveries(delivery_id);
CREATE INDEX IF NOT EXISTS idx_deliveries_state ON deliveries(state);

INSERT INTO schema_version (version) VALUES (1);
`,
	},
}
