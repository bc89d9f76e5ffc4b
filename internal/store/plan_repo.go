package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/observeo/remedy-engine/internal/domain"
)

// PlanRepo handles persistence for FixPlan records.
type PlanRepo struct{}

const planColumns = `id, intent_id, name, type, expected_min_pct, expected_max_pct,
risk_score, cost_score, guardrails_json, execution_steps_json, rollback_steps_json,
status, state_version, created_at_unix, updated_at_unix`

// CreateTx inserts a fix plan within an existing transaction.
func (r *PlanRepo) CreateTx(ctx context.Context, tx *sql.Tx, p domain.FixPlan) error {
	guardrails, err := json.Marshal(p.Guardrails)
	if err != nil {
		return fmt.Errorf("marshal guardrails: %w", err)
	}
	execSteps, err := json.Marshal(p.ExecutionSteps)
	if err != nil {
		return fmt.Errorf("marshal execution_steps: %w", err)
	}
	rollbackSteps, err := json.Marshal(p.RollbackSteps)
	if err != nil {
		return fmt.Errorf("marshal rollback_steps: %w", err)
	}

	const q = `INSERT INTO fix_plans (` + planColumns + `)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err = tx.ExecContext(ctx, q,
		p.ID,
		p.IntentID,
		p.Name,
		string(p.Type),
		p.ExpectedImpact.MinPct,
		p.ExpectedImpact.MaxPct,
		p.RiskScore,
		p.CostScore,
		string(guardrails),
		string(execSteps),
		string(rollbackSteps),
		string(p.Status),
		p.StateVersion,
		p.CreatedAtUnix,
		p.UpdatedAtUnix,
	)
	if err != nil {
		return fmt.Errorf("create fix plan: %w", err)
	}
	return nil
}

// UpdateStatusTx transitions a plan's status within a transaction using
// optimistic locking on state_version.
func (r *PlanRepo) UpdateStatusTx(ctx context.Context, tx *sql.Tx, p domain.FixPlan) error {
	const q = `UPDATE fix_plans SET
		status = ?,
		state_version = state_version + 1,
		updated_at_unix = ?
	WHERE id = ? AND state_version = ?`

	res, err := tx.ExecContext(ctx, q, string(p.Status), p.UpdatedAtUnix, p.ID, p.StateVersion)
	if err != nil {
		return fmt.Errorf("update plan status: %w", err)
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

// GetByID retrieves a plan by its ID.
func (r *PlanRepo) GetByID(ctx context.Context, db *sql.DB, id string) (*domain.FixPlan, error) {
	const q = `SELECT ` + planColumns + ` FROM fix_plans WHERE id = ?`

	p, err := scanPlanRow(db.QueryRowContext(ctx, q, id))
	if err == sql.ErrNoRows {
		return nil, domain.ErrPlanNotFound
	}
	return p, err
}

// ListByIntent returns all plans for an intent ordered by ascending risk
// score, which is also the order plans are offered for simulation/canary.
func (r *PlanRepo) ListByIntent(ctx context.Context, db *sql.DB, intentID string) ([]domain.FixPlan, error) {
	const q = `SELECT ` + planColumns + ` FROM fix_plans
WHERE intent_id = ?
ORDER BY risk_score ASC, id ASC`
	return r.queryPlans(ctx, db, q, intentID)
}

// ListByIntentStatus returns an intent's plans filtered by status, ordered by
// ascending risk score.
func (r *PlanRepo) ListByIntentStatus(ctx context.Context, db *sql.DB, intentID string, status domain.PlanStatus) ([]domain.FixPlan, error) {
	const q = `SELECT ` + planColumns + ` FROM fix_plans
WHERE intent_id = ? AND status = ?
ORDER BY risk_score ASC, id ASC`
	return r.queryPlans(ctx, db, q, intentID, string(status))
}

// ListActiveByIntent returns an intent's plans in any non-terminal state.
func (r *PlanRepo) ListActiveByIntent(ctx context.Context, db *sql.DB, intentID string) ([]domain.FixPlan, error) {
	const q = `SELECT ` + planColumns + ` FROM fix_plans
WHERE intent_id = ? AND status NOT IN ('Rejected', 'Completed', 'RolledBack')
ORDER BY risk_score ASC, id ASC`
	return r.queryPlans(ctx, db, q, intentID)
}

func (r *PlanRepo) queryPlans(ctx context.Context, db *sql.DB, q string, args ...any) ([]domain.FixPlan, error) {
	rows, err := db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list plans: %w", err)
	}
	defer rows.Close()

	var plans []domain.FixPlan
	for rows.Next() {
		p, err := scanPlanRow(rows)
		if err != nil {
			return nil, err
		}
		plans = append(plans, *p)
	}
	return plans, rows.Err()
}

func scanPlanRow(row rowScanner) (*domain.FixPlan, error) {
	var p domain.FixPlan
	var planType, status, guardrailsJSON, execJSON, rollbackJSON string
	err := row.Scan(&p.ID, &p.IntentID, &p.Name, &planType,
		&p.ExpectedImpact.MinPct, &p.ExpectedImpact.MaxPct,
		&p.RiskScore, &p.CostScore, &guardrailsJSON, &execJSON, &rollbackJSON,
		&status, &p.StateVersion, &p.CreatedAtUnix, &p.UpdatedAtUnix)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("scan plan: %w", err)
	}
	p.Type = domain.PlanType(planType)
	p.Status = domain.PlanStatus(status)
	if err := json.Unmarshal([]byte(guardrailsJSON), &p.Guardrails); err != nil {
		return nil, fmt.Errorf("unmarshal guardrails: %w", err)
	}
	if err := json.Unmarshal([]byte(execJSON), &p.ExecutionSteps); err != nil {
		return nil, fmt.Errorf("unmarshal execution_steps: %w", err)
	}
	if err := json.Unmarshal([]byte(rollbackJSON), &p.RollbackSteps); err != nil {
		return nil, fmt.Errorf("unmarshal rollback_steps: %w", err)
	}
	return &p, nil
}
