package audit

const schemaVersion = 1

const eventSchema = `
CREATE TABLE version (
	version INTEGER NOT NULL
);

CREATE TABLE events (
	id INTEGER PRIMARY KEY AUTOINCREMENT NOT NULL,
	recorded_at INTEGER NOT NULL,
	kind VARCHAR NOT NULL,
	app_id VARCHAR,
	side VARCHAR,
	nameplate VARCHAR,
	mailbox_id VARCHAR,
	detail VARCHAR
);
CREATE INDEX idx_events_recorded_at ON events (recorded_at);
CREATE INDEX idx_events_app ON events (app_id);
`
