package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/observeo/remedy-engine/internal/domain"
)

// IntentRepo handles persistence for Intent records.
type IntentRepo struct{}

const intentColumns = `id, title, goal_metric, goal_target_delta, time_horizon_days, authority_mode,
blast_radius_json, constraints_json, status, owner_user_id, source_alert_id,
state_version, last_event_seq, created_at_unix, updated_at_unix`

// CreateTx inserts a new intent within an existing transaction.
func (r *IntentRepo) CreateTx(ctx context.Context, tx *sql.Tx, in domain.Intent) error {
	radius, err := json.Marshal(in.BlastRadius)
	if err != nil {
		return fmt.Errorf("marshal blast_radius: %w", err)
	}
	constraints, err := json.Marshal(in.Constraints)
	if err != nil {
		return fmt.Errorf("marshal constraints: %w", err)
	}

	const q = `INSERT INTO intents (` + intentColumns + `)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err = tx.ExecContext(ctx, q,
		in.ID,
		in.Title,
		in.GoalMetric,
		in.GoalTargetDelta,
		in.TimeHorizonDays,
		string(in.Authority),
		string(radius),
		string(constraints),
		string(in.Status),
		in.OwnerUserID,
		in.SourceAlertID,
		in.StateVersion,
		in.LastEventSeq,
		in.CreatedAtUnix,
		in.UpdatedAtUnix,
	)
	if err != nil {
		return fmt.Errorf("create intent: %w", err)
	}
	return nil
}

// UpdateStateTx updates an intent's mutable fields within a transaction using
// optimistic locking. The update only succeeds if state_version matches.
func (r *IntentRepo) UpdateStateTx(ctx context.Context, tx *sql.Tx, in domain.Intent) error {
	const q = `UPDATE intents SET
		status = ?,
		state_version = state_version + 1,
		last_event_seq = ?,
		updated_at_unix = ?
	WHERE id = ? AND state_version = ?`

	res, err := tx.ExecContext(ctx, q,
		string(in.Status),
		in.LastEventSeq,
		in.UpdatedAtUnix,
		in.ID,
		in.StateVersion,
	)
	if err != nil {
		return fmt.Errorf("update intent state: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("check rows affected: %w", err)
	}
	if n == 0 {
		return domain.ErrOptimisticLock
	}
	return nil
}

// GetByID retrieves an intent by its ID.
func (r *IntentRepo) GetByID(ctx context.Context, db *sql.DB, id string) (*domain.Intent, error) {
	const q = `SELECT ` + intentColumns + ` FROM intents WHERE id = ?`
	return scanIntent(db.QueryRowContext(ctx, q, id))
}

// HasActiveBySourceAlert reports whether a non-terminal intent already
// exists for the given source alert.
func (r *IntentRepo) HasActiveBySourceAlert(ctx context.Context, db *sql.DB, alertID string) (bool, error) {
	const q = `SELECT COUNT(*) FROM intents
WHERE source_alert_id = ? AND status NOT IN ('Completed', 'RolledBack')`

	var n int
	if err := db.QueryRowContext(ctx, q, alertID).Scan(&n); err != nil {
		return false, fmt.Errorf("count intents by source alert: %w", err)
	}
	return n > 0, nil
}

// List returns all intents ordered by creation time, newest first.
func (r *IntentRepo) List(ctx context.Context, db *sql.DB) ([]domain.Intent, error) {
	const q = `SELECT ` + intentColumns + ` FROM intents ORDER BY created_at_unix DESC`

	rows, err := db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("list intents: %w", err)
	}
	defer rows.Close()

	var intents []domain.Intent
	for rows.Next() {
		in, err := scanIntentRow(rows)
		if err != nil {
			return nil, err
		}
		intents = append(intents, *in)
	}
	return intents, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanIntent(row *sql.Row) (*domain.Intent, error) {
	in, err := scanIntentRow(row)
	if err == sql.ErrNoRows {
		return nil, domain.ErrIntentNotFound
	}
	return in, err
}

func scanIntentRow(row rowScanner) (*domain.Intent, error) {
	var in domain.Intent
	var authority, status, radiusJSON, constraintsJSON string
	err := row.Scan(&in.ID, &in.Title, &in.GoalMetric, &in.GoalTargetDelta, &in.TimeHorizonDays,
		&authority, &radiusJSON, &constraintsJSON, &status, &in.OwnerUserID, &in.SourceAlertID,
		&in.StateVersion, &in.LastEventSeq, &in.CreatedAtUnix, &in.UpdatedAtUnix)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("scan intent: %w", err)
	}
	in.Authority = domain.AuthorityMode(authority)
	in.Status = domain.IntentStatus(status)
	if err := json.Unmarshal([]byte(radiusJSON), &in.BlastRadius); err != nil {
		return nil, fmt.Errorf("unmarshal blast_radius: %w", err)
	}
	if err := json.Unmarshal([]byte(constraintsJSON), &in.Constraints); err != nil {
		return nil, fmt.Errorf("unmarshal constraints: %w", err)
	}
	return &in, nil
}
