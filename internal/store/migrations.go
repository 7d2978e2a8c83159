package store

import (
	"fmt"
)

func (s *Store) migrate() error {
	if err := s.migrateV1(); err != nil {
		return err
	}
	return s.migrateV2()
}

func (s *Store) migrateV1() error {
	schema := `
	CREATE TABLE IF NOT EXISTS agents (
		id            TEXT PRIMARY KEY,
		name          TEXT NOT NULL DEFAULT '',
		enabled       INTEGER NOT NULL DEFAULT 1,
		handoff_rules TEXT NOT NULL DEFAULT '[]',
		model         TEXT NOT NULL DEFAULT '',
		color         TEXT NOT NULL DEFAULT '',
		icon          TEXT NOT NULL DEFAULT '',
		skills        TEXT NOT NULL DEFAULT '[]',
		soul          TEXT NOT NULL DEFAULT '',
		system_prompt TEXT NOT NULL DEFAULT '',
		position      INTEGER NOT NULL,
		created_at    INTEGER NOT NULL,
		updated_at    INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_agents_position ON agents(position);

	CREATE TABLE IF NOT EXISTS routing_rules (
		id         TEXT PRIMARY KEY,
		name       TEXT NOT NULL DEFAULT '',
		enabled    INTEGER NOT NULL DEFAULT 1,
		priority   INTEGER NOT NULL DEFAULT 0 CHECK (priority >= 0),
		channels   TEXT NOT NULL DEFAULT '[]',
		keywords   TEXT NOT NULL DEFAULT '[]',
		sender     TEXT NOT NULL DEFAULT '',
		agent      TEXT NOT NULL,
		model      TEXT NOT NULL DEFAULT '',
		spawn_new  INTEGER NOT NULL DEFAULT 0,
		position   INTEGER NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_rules_position ON routing_rules(position);

	CREATE TABLE IF NOT EXISTS meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	INSERT OR IGNORE INTO meta(key, value) VALUES ('schema_version', '1');
	`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to execute migration v1: %w", err)
	}

	return nil
}

func (s *Store) migrateV2() error {
	var version string
	err := s.db.QueryRow(`SELECT value FROM meta WHERE key = 'schema_version'`).Scan(&version)
	if err != nil || version >= "2" {
		return nil // already at v2+
	}

	schema := `
	CREATE TABLE IF NOT EXISTS tasks (
		id                TEXT PRIMARY KEY,
		title             TEXT NOT NULL,
		description       TEXT NOT NULL DEFAULT '',
		status            TEXT NOT NULL DEFAULT 'todo',
		agent_id          TEXT NOT NULL DEFAULT '',
		assigned_by       TEXT NOT NULL DEFAULT '',
		assignment_score  INTEGER NOT NULL DEFAULT 0,
		assignment_reason TEXT NOT NULL DEFAULT '',
		source            TEXT NOT NULL DEFAULT '',
		created_at        INTEGER NOT NULL,
		updated_at        INTEGER NOT NULL,
		completed_at      INTEGER
	);

	CREATE INDEX IF NOT EXISTS idx_tasks_status ON tasks(status);
	CREATE INDEX IF NOT EXISTS idx_tasks_agent ON tasks(agent_id);
	CREATE INDEX IF NOT EXISTS idx_tasks_created ON tasks(created_at);

	CREATE TABLE IF NOT EXISTS cron_jobs (
		id            TEXT PRIMARY KEY,
		name          TEXT NOT NULL,
		schedule      TEXT NOT NULL,
		message       TEXT NOT NULL,
		channel       TEXT NOT NULL DEFAULT '',
		enabled       INTEGER NOT NULL DEFAULT 1,
		run_count     INTEGER NOT NULL DEFAULT 0,
		last_run_at   INTEGER,
		last_agent_id TEXT NOT NULL DEFAULT '',
		last_error    TEXT NOT NULL DEFAULT '',
		created_at    INTEGER NOT NULL,
		updated_at    INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS routing_log (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		classifier TEXT NOT NULL,
		source     TEXT NOT NULL DEFAULT '',
		channel    TEXT NOT NULL DEFAULT '',
		sender     TEXT NOT NULL DEFAULT '',
		text       TEXT NOT NULL,
		agent_id   TEXT NOT NULL,
		rule_id    TEXT NOT NULL DEFAULT '',
		fallback   INTEGER NOT NULL DEFAULT 0,
		score      INTEGER NOT NULL DEFAULT 0,
		reasoning  TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_routing_log_created ON routing_log(created_at);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to execute migration v2: %w", err)
	}

	if _, err := s.db.Exec(`INSERT OR REPLACE INTO meta(key, value) VALUES ('schema_version', '2')`); err != nil {
		return fmt.Errorf("failed to update schema version: %w", err)
	}

	return nil
}
