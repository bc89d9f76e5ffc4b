// Package store provides SQLite-backed persistence for the remediation engine.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"
)

// schemaV1 defines the initial database schema.
const schemaV1 = `
CREATE TABLE IF NOT EXISTS intents (
	id                 TEXT PRIMARY KEY,
	title              TEXT NOT NULL,
	goal_metric        TEXT NOT NULL,
	goal_target_delta  REAL NOT NULL,
	time_horizon_days  INTEGER NOT NULL DEFAULT 14,
	authority_mode     TEXT NOT NULL DEFAULT 'RecommendOnly',
	blast_radius_json  TEXT NOT NULL DEFAULT '[]',
	constraints_json   TEXT NOT NULL DEFAULT '{}',
	status             TEXT NOT NULL DEFAULT 'Draft',
	owner_user_id      TEXT NOT NULL DEFAULT '',
	source_alert_id    TEXT NOT NULL DEFAULT '',
	state_version      INTEGER NOT NULL DEFAULT 1,
	last_event_seq     INTEGER NOT NULL DEFAULT 0,
	created_at_unix    INTEGER NOT NULL,
	updated_at_unix    INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_intents_status ON intents(status);

CREATE TABLE IF NOT EXISTS diagnoses (
	id                TEXT PRIMARY KEY,
	intent_id         TEXT NOT NULL,
	hypotheses_json   TEXT NOT NULL DEFAULT '[]',
	segments_json     TEXT NOT NULL DEFAULT '[]',
	questions_json    TEXT NOT NULL DEFAULT '[]',
	generated_at_unix INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_diagnoses_intent ON diagnoses(intent_id, generated_at_unix);

CREATE TABLE IF NOT EXISTS fix_plans (
	id                   TEXT PRIMARY KEY,
	intent_id            TEXT NOT NULL,
	name                 TEXT NOT NULL,
	type                 TEXT NOT NULL,
	expected_min_pct     REAL NOT NULL DEFAULT 0.0,
	expected_max_pct     REAL NOT NULL DEFAULT 0.0,
	risk_score           INTEGER NOT NULL DEFAULT 0,
	cost_score           INTEGER NOT NULL DEFAULT 0,
	guardrails_json      TEXT NOT NULL DEFAULT '[]',
	execution_steps_json TEXT NOT NULL DEFAULT '[]',
	rollback_steps_json  TEXT NOT NULL DEFAULT '[]',
	status               TEXT NOT NULL DEFAULT 'Proposed',
	state_version        INTEGER NOT NULL DEFAULT 1,
	created_at_unix      INTEGER NOT NULL,
	updated_at_unix      INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_fix_plans_intent ON fix_plans(intent_id, status);

CREATE TABLE IF NOT EXISTS runs (
	id              TEXT PRIMARY KEY,
	fix_plan_id     TEXT NOT NULL,
	mode            TEXT NOT NULL,
	traffic_percent REAL NOT NULL DEFAULT 0.0,
	status          TEXT NOT NULL DEFAULT 'Queued',
	pass_streak     INTEGER NOT NULL DEFAULT 0,
	result_json     TEXT NOT NULL DEFAULT '{}',
	start_at_unix   INTEGER NOT NULL DEFAULT 0,
	end_at_unix     INTEGER NOT NULL DEFAULT 0,
	created_at_unix INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_runs_plan ON runs(fix_plan_id, status);
CREATE UNIQUE INDEX IF NOT EXISTS idx_runs_one_active
	ON runs(fix_plan_id) WHERE status IN ('Queued', 'Running');

CREATE TABLE IF NOT EXISTS timeline_events (
	id              TEXT PRIMARY KEY,
	intent_id       TEXT NOT NULL,
	seq_no          INTEGER NOT NULL,
	event_type      TEXT NOT NULL,
	actor           TEXT NOT NULL DEFAULT 'System',
	details_json    TEXT NOT NULL DEFAULT '{}',
	created_at_unix INTEGER NOT NULL,
	UNIQUE(intent_id, seq_no)
);
CREATE INDEX IF NOT EXISTS idx_events_intent_seq ON timeline_events(intent_id, seq_no);

CREATE TABLE IF NOT EXISTS run_observations (
	id                INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id            TEXT NOT NULL,
	verdict           TEXT NOT NULL,
	breached_json     TEXT NOT NULL DEFAULT '[]',
	snapshot_json     TEXT NOT NULL DEFAULT '{}',
	observed_at_unix  INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_observations_run ON run_observations(run_id);

CREATE TABLE IF NOT EXISTS alerts (
	id               TEXT PRIMARY KEY,
	type             TEXT NOT NULL,
	metric_name      TEXT NOT NULL,
	severity         TEXT NOT NULL DEFAULT 'Medium',
	baseline_window  TEXT NOT NULL DEFAULT '',
	current_value    REAL NOT NULL DEFAULT 0.0,
	baseline_value   REAL NOT NULL DEFAULT 0.0,
	delta            REAL NOT NULL DEFAULT 0.0,
	suspected_change TEXT NOT NULL DEFAULT '',
	status           TEXT NOT NULL DEFAULT 'Open',
	detected_at_unix INTEGER NOT NULL,
	created_at_unix  INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_alerts_status ON alerts(status, detected_at_unix);
`

// NewDB opens a SQLite database at the given path with recommended pragmas
// and runs the V1 schema migration.
func NewDB(path string) (*sql.DB, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(ON)&_pragma=busy_timeout(5000)", path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Limit connections to 1 for SQLite (WAL allows concurrent reads but single writer).
	db.SetMaxOpenConns(1)

	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate schema: %w", err)
	}

	return db, nil
}

func migrate(db *sql.DB) error {
	_, err := db.ExecContext(context.Background(), schemaV1)
	return err
}

// isUniqueViolation reports whether err is a SQLite unique constraint failure.
// The modernc driver does not export a stable sentinel for this, so we match
// the constraint message.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
