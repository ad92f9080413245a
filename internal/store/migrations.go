package store

// migration represents a single schema migration.
type migration struct {
	Version int
	Name    string
	SQL     string
}

// migrations is the ordered list of all schema migrations.
var migrations = []migration{
	{
		Version: 1,
		Name:    "create channels and conversations",
		SQL: `
			CREATE TABLE channels (
				id              TEXT PRIMARY KEY,
				tenant_id       TEXT NOT NULL DEFAULT '',
				agent_id        TEXT NOT NULL,
				type            TEXT NOT NULL,
				webhook_secret  TEXT NOT NULL DEFAULT '',
				status          TEXT NOT NULL,
				credentials     TEXT,
				metadata        TEXT,
				created_at      TEXT NOT NULL,
				updated_at      TEXT NOT NULL
			);

			CREATE INDEX idx_channels_agent_type ON channels (agent_id, type);
			CREATE INDEX idx_channels_tenant ON channels (tenant_id);

			CREATE TABLE conversations (
				seq             INTEGER PRIMARY KEY AUTOINCREMENT,
				id              TEXT NOT NULL UNIQUE,
				tenant_id       TEXT NOT NULL DEFAULT '',
				agent_id        TEXT NOT NULL,
				channel         TEXT NOT NULL,
				customer_phone  TEXT NOT NULL,
				customer_name   TEXT NOT NULL DEFAULT '',
				messages        TEXT NOT NULL DEFAULT '[]',
				status          TEXT NOT NULL,
				version         INTEGER NOT NULL DEFAULT 1,
				created_at      TEXT NOT NULL,
				updated_at      TEXT NOT NULL
			);

			CREATE INDEX idx_conversations_identity ON conversations (agent_id, customer_phone, status);
			CREATE INDEX idx_conversations_tenant ON conversations (tenant_id, agent_id);
		`,
	},
}
