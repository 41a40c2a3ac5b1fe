package postgres

// schema is the DDL for the mirror tables. Applied idempotently at startup.
//
// Natural keys are the vendor IDs. Parts and features use a composite key with
// their element because the vendor scopes those IDs to the part studio.
const schema = `
CREATE TABLE IF NOT EXISTS documents (
	document_id TEXT PRIMARY KEY,
	name        TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	owner_id    TEXT NOT NULL DEFAULT '',
	owner_name  TEXT NOT NULL DEFAULT '',
	public      BOOLEAN NOT NULL DEFAULT FALSE,
	revision    TEXT NOT NULL,
	payload     JSONB NOT NULL DEFAULT '{}',
	created_at  TIMESTAMPTZ NOT NULL,
	updated_at  TIMESTAMPTZ NOT NULL,
	synced_at   TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS workspaces (
	workspace_id TEXT PRIMARY KEY,
	document_id  TEXT NOT NULL REFERENCES documents(document_id) ON DELETE CASCADE,
	name         TEXT NOT NULL,
	description  TEXT NOT NULL DEFAULT '',
	is_main      BOOLEAN NOT NULL DEFAULT FALSE,
	revision     TEXT NOT NULL,
	payload      JSONB NOT NULL DEFAULT '{}',
	created_at   TIMESTAMPTZ NOT NULL,
	updated_at   TIMESTAMPTZ NOT NULL,
	synced_at    TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_workspaces_document ON workspaces(document_id);

CREATE TABLE IF NOT EXISTS elements (
	element_id   TEXT PRIMARY KEY,
	workspace_id TEXT NOT NULL REFERENCES workspaces(workspace_id) ON DELETE CASCADE,
	document_id  TEXT NOT NULL,
	name         TEXT NOT NULL,
	element_type TEXT NOT NULL DEFAULT '',
	data_type    TEXT NOT NULL DEFAULT '',
	thumbnail_id TEXT NOT NULL DEFAULT '',
	revision     TEXT NOT NULL,
	payload      JSONB NOT NULL DEFAULT '{}',
	created_at   TIMESTAMPTZ NOT NULL,
	updated_at   TIMESTAMPTZ NOT NULL,
	synced_at    TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_elements_workspace ON elements(workspace_id);

CREATE TABLE IF NOT EXISTS parts (
	part_id     TEXT NOT NULL,
	element_id  TEXT NOT NULL REFERENCES elements(element_id) ON DELETE CASCADE,
	name        TEXT NOT NULL,
	state       TEXT NOT NULL DEFAULT '',
	body_type   TEXT NOT NULL DEFAULT '',
	material_properties JSONB,
	mass_properties     JSONB,
	appearance          JSONB,
	revision    TEXT NOT NULL,
	payload     JSONB NOT NULL DEFAULT '{}',
	created_at  TIMESTAMPTZ NOT NULL,
	updated_at  TIMESTAMPTZ NOT NULL,
	synced_at   TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (element_id, part_id)
);

CREATE TABLE IF NOT EXISTS features (
	feature_id   TEXT NOT NULL,
	element_id   TEXT NOT NULL REFERENCES elements(element_id) ON DELETE CASCADE,
	name         TEXT NOT NULL,
	feature_type TEXT NOT NULL DEFAULT '',
	suppressed   BOOLEAN NOT NULL DEFAULT FALSE,
	parameters   JSONB,
	revision     TEXT NOT NULL,
	payload      JSONB NOT NULL DEFAULT '{}',
	created_at   TIMESTAMPTZ NOT NULL,
	updated_at   TIMESTAMPTZ NOT NULL,
	synced_at    TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (element_id, feature_id)
);

CREATE TABLE IF NOT EXISTS sync_runs (
	id           UUID PRIMARY KEY,
	scope        TEXT NOT NULL,
	status       TEXT NOT NULL,
	created      INTEGER NOT NULL DEFAULT 0,
	updated      INTEGER NOT NULL DEFAULT 0,
	unchanged    INTEGER NOT NULL DEFAULT 0,
	failed       INTEGER NOT NULL DEFAULT 0,
	message      TEXT NOT NULL DEFAULT '',
	started_at   TIMESTAMPTZ NOT NULL,
	completed_at TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS sync_log_entries (
	id          UUID PRIMARY KEY,
	run_id      UUID NOT NULL REFERENCES sync_runs(id) ON DELETE CASCADE,
	entity_type TEXT NOT NULL,
	entity_key  TEXT NOT NULL,
	action      TEXT NOT NULL,
	detail      TEXT NOT NULL DEFAULT '',
	created_at  TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_sync_log_entries_run ON sync_log_entries(run_id, created_at);
`
