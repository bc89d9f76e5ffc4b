package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/observeo/remedy-engine/internal/domain"
)

// AlertRepo handles persistence for detected metric regressions.
type AlertRepo struct{}

const alertColumns = `id, type, metric_name, severity, baseline_window, current_value,
baseline_value, delta, suspected_change, status, detected_at_unix, created_at_unix`

// Create inserts an alert.
func (r *AlertRepo) Create(ctx context.Context, db *sql.DB, a domain.Alert) error {
	const q = `INSERT INTO alerts (` + alertColumns + `)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := db.ExecContext(ctx, q,
		a.ID,
		string(a.Type),
		a.MetricName,
		string(a.Severity),
		a.BaselineWindow,
		a.CurrentValue,
		a.BaselineValue,
		a.Delta,
		a.SuspectedChange,
		string(a.Status),
		a.DetectedAtUnix,
		a.CreatedAtUnix,
	)
	if err != nil {
		return fmt.Errorf("create alert: %w", err)
	}
	return nil
}

// GetByID retrieves an alert by its ID.
func (r *AlertRepo) GetByID(ctx context.Context, db *sql.DB, id string) (*domain.Alert, error) {
	const q = `SELECT ` + alertColumns + ` FROM alerts WHERE id = ?`

	a, err := scanAlertRow(db.QueryRowContext(ctx, q, id))
	if err == sql.ErrNoRows {
		return nil, domain.ErrAlertNotFound
	}
	return a, err
}

// UpdateStatus moves an alert through its triage states.
func (r *AlertRepo) UpdateStatus(ctx context.Context, db *sql.DB, id string, status domain.AlertStatus) error {
	const q = `UPDATE alerts SET status = ? WHERE id = ?`

	res, err := db.ExecContext(ctx, q, string(status), id)
	if err != nil {
		return fmt.Errorf("update alert status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("check rows affected: %w", err)
	}
	if n == 0 {
		return domain.ErrAlertNotFound
	}
	return nil
}

// List returns alerts newest first, optionally filtered by status. An empty
// status returns all alerts.
func (r *AlertRepo) List(ctx context.Context, db *sql.DB, status domain.AlertStatus) ([]domain.Alert, error) {
	q := `SELECT ` + alertColumns + ` FROM alerts ORDER BY detected_at_unix DESC, id DESC`
	args := []any{}
	if status != "" {
		q = `SELECT ` + alertColumns + ` FROM alerts WHERE status = ? ORDER BY detected_at_unix DESC, id DESC`
		args = append(args, string(status))
	}

	rows, err := db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list alerts: %w", err)
	}
	defer rows.Close()

	var alerts []domain.Alert
	for rows.Next() {
		a, err := scanAlertRow(rows)
		if err != nil {
			return nil, err
		}
		alerts = append(alerts, *a)
	}
	return alerts, rows.Err()
}

func scanAlertRow(row rowScanner) (*domain.Alert, error) {
	var a domain.Alert
	var alertType, severity, status string
	err := row.Scan(&a.ID, &alertType, &a.MetricName, &severity, &a.BaselineWindow,
		&a.CurrentValue, &a.BaselineValue, &a.Delta, &a.SuspectedChange,
		&status, &a.DetectedAtUnix, &a.CreatedAtUnix)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("scan alert: %w", err)
	}
	a.Type = domain.AlertType(alertType)
	a.Severity = domain.AlertSeverity(severity)
	a.Status = domain.AlertStatus(status)
	return &a, nil
}
