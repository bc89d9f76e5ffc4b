package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/observeo/remedy-engine/internal/domain"
)

// RunRepo handles persistence for Run records.
type RunRepo struct{}

const runColumns = `id, fix_plan_id, mode, traffic_percent, status, pass_streak,
result_json, start_at_unix, end_at_unix, created_at_unix`

// CreateTx inserts a run within an existing transaction. The partial unique
// index on runs(fix_plan_id) rejects a second non-terminal run for the same
// plan; that violation surfaces as ErrActiveRunExists.
func (r *RunRepo) CreateTx(ctx context.Context, tx *sql.Tx, run domain.Run) error {
	result, err := json.Marshal(run.Result)
	if err != nil {
		return fmt.Errorf("marshal result summary: %w", err)
	}

	const q = `INSERT INTO runs (` + runColumns + `)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err = tx.ExecContext(ctx, q,
		run.ID,
		run.PlanID,
		string(run.Mode),
		run.TrafficPercent,
		string(run.Status),
		run.PassStreak,
		string(result),
		run.StartAtUnix,
		run.EndAtUnix,
		run.CreatedAtUnix,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrActiveRunExists
		}
		return fmt.Errorf("create run: %w", err)
	}
	return nil
}

// UpdateTx updates a run's mutable fields within a transaction. The update is
// guarded on the run still being non-terminal; zero affected rows means a
// concurrent writer already finalized it.
func (r *RunRepo) UpdateTx(ctx context.Context, tx *sql.Tx, run domain.Run) error {
	result, err := json.Marshal(run.Result)
	if err != nil {
		return fmt.Errorf("marshal result summary: %w", err)
	}

	const q = `UPDATE runs SET
		status = ?,
		traffic_percent = ?,
		pass_streak = ?,
		result_json = ?,
		start_at_unix = ?,
		end_at_unix = ?
	WHERE id = ? AND status IN ('Queued', 'Running')`

	res, err := tx.ExecContext(ctx, q,
		string(run.Status),
		run.TrafficPercent,
		run.PassStreak,
		string(result),
		run.StartAtUnix,
		run.EndAtUnix,
		run.ID,
	)
	if err != nil {
		return fmt.Errorf("update run: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("check rows affected: %w", err)
	}
	if n == 0 {
		return domain.ErrRunTerminal
	}
	return nil
}

// GetByID retrieves a run by its ID.
func (r *RunRepo) GetByID(ctx context.Context, db *sql.DB, id string) (*domain.Run, error) {
	const q = `SELECT ` + runColumns + ` FROM runs WHERE id = ?`

	run, err := scanRunRow(db.QueryRowContext(ctx, q, id))
	if err == sql.ErrNoRows {
		return nil, domain.ErrRunNotFound
	}
	return run, err
}

// GetActiveByPlan returns the plan's single non-terminal run, or nil when the
// plan has no active run.
func (r *RunRepo) GetActiveByPlan(ctx context.Context, db *sql.DB, planID string) (*domain.Run, error) {
	const q = `SELECT ` + runColumns + ` FROM runs
WHERE fix_plan_id = ? AND status IN ('Queued', 'Running')
LIMIT 1`

	run, err := scanRunRow(db.QueryRowContext(ctx, q, planID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return run, err
}

// ListByPlan returns all runs for a plan, newest first.
func (r *RunRepo) ListByPlan(ctx context.Context, db *sql.DB, planID string) ([]domain.Run, error) {
	const q = `SELECT ` + runColumns + ` FROM runs
WHERE fix_plan_id = ?
ORDER BY created_at_unix DESC, id DESC`
	return r.queryRuns(ctx, db, q, planID)
}

// ListByIntent returns all runs across an intent's plans, newest first.
func (r *RunRepo) ListByIntent(ctx context.Context, db *sql.DB, intentID string) ([]domain.Run, error) {
	const q = `SELECT r.id, r.fix_plan_id, r.mode, r.traffic_percent, r.status, r.pass_streak,
r.result_json, r.start_at_unix, r.end_at_unix, r.created_at_unix
FROM runs r
JOIN fix_plans p ON p.id = r.fix_plan_id
WHERE p.intent_id = ?
ORDER BY r.created_at_unix DESC, r.id DESC`
	return r.queryRuns(ctx, db, q, intentID)
}

// ListRunning returns every run currently in the Running state, across all
// plans. The run monitor drives guardrail evaluation off this set.
func (r *RunRepo) ListRunning(ctx context.Context, db *sql.DB) ([]domain.Run, error) {
	const q = `SELECT ` + runColumns + ` FROM runs
WHERE status = 'Running'
ORDER BY created_at_unix ASC, id ASC`
	return r.queryRuns(ctx, db, q)
}

func (r *RunRepo) queryRuns(ctx context.Context, db *sql.DB, q string, args ...any) ([]domain.Run, error) {
	rows, err := db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []domain.Run
	for rows.Next() {
		run, err := scanRunRow(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

func scanRunRow(row rowScanner) (*domain.Run, error) {
	var run domain.Run
	var mode, status, resultJSON string
	err := row.Scan(&run.ID, &run.PlanID, &mode, &run.TrafficPercent, &status,
		&run.PassStreak, &resultJSON, &run.StartAtUnix, &run.EndAtUnix, &run.CreatedAtUnix)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("scan run: %w", err)
	}
	run.Mode = domain.RunMode(mode)
	run.Status = domain.RunStatus(status)
	if err := json.Unmarshal([]byte(resultJSON), &run.Result); err != nil {
		return nil, fmt.Errorf("unmarshal result summary: %w", err)
	}
	return &run, nil
}
