package store

import (
	"context"
	"fmt"
)

// schema creates every table the collector writes and the engine reads.
// Statements are idempotent so Migrate can run on every start.
const schema = `
CREATE TABLE IF NOT EXISTS boards (
	id            BIGINT PRIMARY KEY,
	name          TEXT NOT NULL DEFAULT '',
	type          TEXT NOT NULL DEFAULT '',
	location_key  TEXT NOT NULL DEFAULT '',
	location_name TEXT NOT NULL DEFAULT '',
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS sprints (
	id            BIGINT PRIMARY KEY,
	name          TEXT NOT NULL DEFAULT '',
	board_id      BIGINT NOT NULL DEFAULT 0,
	board_name    TEXT NOT NULL DEFAULT '',
	state         TEXT NOT NULL DEFAULT '',
	start_date    TIMESTAMPTZ,
	end_date      TIMESTAMPTZ,
	complete_date TIMESTAMPTZ,
	goal          TEXT NOT NULL DEFAULT '',
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS sprints_state_idx ON sprints (state);

CREATE TABLE IF NOT EXISTS issues (
	key          TEXT PRIMARY KEY,
	project      TEXT NOT NULL,
	summary      TEXT NOT NULL DEFAULT '',
	issue_type   TEXT NOT NULL DEFAULT '',
	status       TEXT NOT NULL DEFAULT '',
	priority     TEXT NOT NULL DEFAULT '',
	assignee     TEXT NOT NULL DEFAULT '',
	reporter     TEXT NOT NULL DEFAULT '',
	created      TIMESTAMPTZ NOT NULL,
	updated      TIMESTAMPTZ NOT NULL,
	resolved     TIMESTAMPTZ,
	resolution   TEXT NOT NULL DEFAULT '',
	labels       TEXT[] NOT NULL DEFAULT '{}',
	components   TEXT[] NOT NULL DEFAULT '{}',
	story_points DOUBLE PRECISION,
	sprint_ids   BIGINT[] NOT NULL DEFAULT '{}'
);
CREATE INDEX IF NOT EXISTS issues_project_idx ON issues (project);
CREATE INDEX IF NOT EXISTS issues_created_idx ON issues (created DESC);

CREATE TABLE IF NOT EXISTS issue_changelog (
	issue_key  TEXT NOT NULL REFERENCES issues (key) ON DELETE CASCADE,
	created    TIMESTAMPTZ NOT NULL,
	author     TEXT NOT NULL DEFAULT '',
	field      TEXT NOT NULL,
	from_value TEXT NOT NULL DEFAULT '',
	to_value   TEXT NOT NULL DEFAULT '',
	UNIQUE (issue_key, created, field, from_value, to_value)
);
CREATE INDEX IF NOT EXISTS issue_changelog_key_idx ON issue_changelog (issue_key, created);

CREATE TABLE IF NOT EXISTS sprint_reports (
	sprint_id           BIGINT NOT NULL,
	project             TEXT NOT NULL,
	board_id            BIGINT NOT NULL DEFAULT 0,
	sprint_name         TEXT NOT NULL DEFAULT '',
	completed_count     INTEGER NOT NULL DEFAULT 0,
	not_completed_count INTEGER NOT NULL DEFAULT 0,
	punted_count        INTEGER NOT NULL DEFAULT 0,
	synced_at           TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (sprint_id, project)
);

CREATE TABLE IF NOT EXISTS sync_runs (
	id             BIGSERIAL PRIMARY KEY,
	sync_type      TEXT NOT NULL,
	started_at     TIMESTAMPTZ NOT NULL,
	completed_at   TIMESTAMPTZ,
	status         TEXT NOT NULL,
	projects       TEXT[] NOT NULL DEFAULT '{}',
	issues_synced  INTEGER NOT NULL DEFAULT 0,
	sprints_synced INTEGER NOT NULL DEFAULT 0,
	error_message  TEXT NOT NULL DEFAULT ''
);
`

// Migrate creates the schema if it does not exist yet.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	s.log.Debug("schema migrated")
	return nil
}
