package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/observeo/remedy-engine/internal/domain"
)

// Observation is one recorded guardrail evaluation against a running run.
type Observation struct {
	ID             int64
	RunID          string
	Verdict        domain.Verdict
	BreachedKeys   []string
	Snapshot       domain.MetricSnapshot
	ObservedAtUnix int64
}

// ObservationRepo handles persistence for guardrail evaluation records.
type ObservationRepo struct{}

// RecordTx appends an evaluation record within an existing transaction.
func (r *ObservationRepo) RecordTx(ctx context.Context, tx *sql.Tx, obs Observation) error {
	breached, err := json.Marshal(obs.BreachedKeys)
	if err != nil {
		return fmt.Errorf("marshal breached keys: %w", err)
	}
	snapshot, err := json.Marshal(obs.Snapshot)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	const q = `INSERT INTO run_observations (run_id, verdict, breached_json, snapshot_json, observed_at_unix)
VALUES (?, ?, ?, ?, ?)`
	_, err = tx.ExecContext(ctx, q, obs.RunID, string(obs.Verdict), string(breached), string(snapshot), obs.ObservedAtUnix)
	if err != nil {
		return fmt.Errorf("record observation: %w", err)
	}
	return nil
}

// ListByRun returns a run's evaluation records in observation order.
func (r *ObservationRepo) ListByRun(ctx context.Context, db *sql.DB, runID string) ([]Observation, error) {
	const q = `SELECT id, run_id, verdict, breached_json, snapshot_json, observed_at_unix
FROM run_observations
WHERE run_id = ?
ORDER BY id ASC`

	rows, err := db.QueryContext(ctx, q, runID)
	if err != nil {
		return nil, fmt.Errorf("list observations: %w", err)
	}
	defer rows.Close()

	var observations []Observation
	for rows.Next() {
		var obs Observation
		var verdict, breachedJSON, snapshotJSON string
		if err := rows.Scan(&obs.ID, &obs.RunID, &verdict, &breachedJSON, &snapshotJSON, &obs.ObservedAtUnix); err != nil {
			return nil, fmt.Errorf("scan observation: %w", err)
		}
		obs.Verdict = domain.Verdict(verdict)
		if err := json.Unmarshal([]byte(breachedJSON), &obs.BreachedKeys); err != nil {
			return nil, fmt.Errorf("unmarshal breached keys: %w", err)
		}
		if err := json.Unmarshal([]byte(snapshotJSON), &obs.Snapshot); err != nil {
			return nil, fmt.Errorf("unmarshal snapshot: %w", err)
		}
		observations = append(observations, obs)
	}
	return observations, rows.Err()
}
