package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/observeo/remedy-engine/internal/domain"
)

// DiagnosisRepo handles persistence for Diagnosis records.
// Diagnoses are insert-only; an intent accumulates them over time and reads
// return the most recent.
type DiagnosisRepo struct{}

// CreateTx inserts a diagnosis within an existing transaction.
func (r *DiagnosisRepo) CreateTx(ctx context.Context, tx *sql.Tx, d domain.Diagnosis) error {
	hypotheses, err := json.Marshal(d.Hypotheses)
	if err != nil {
		return fmt.Errorf("marshal hypotheses: %w", err)
	}
	segments, err := json.Marshal(d.SegmentsImpacted)
	if err != nil {
		return fmt.Errorf("marshal segments: %w", err)
	}
	questions, err := json.Marshal(d.NextQuestions)
	if err != nil {
		return fmt.Errorf("marshal questions: %w", err)
	}

	const q = `INSERT INTO diagnoses (id, intent_id, hypotheses_json, segments_json, questions_json, generated_at_unix)
VALUES (?, ?, ?, ?, ?, ?)`
	_, err = tx.ExecContext(ctx, q,
		d.ID,
		d.IntentID,
		string(hypotheses),
		string(segments),
		string(questions),
		d.GeneratedAtUnix,
	)
	if err != nil {
		return fmt.Errorf("create diagnosis: %w", err)
	}
	return nil
}

// GetLatest returns the most recent diagnosis for an intent.
// Returns nil if the intent has no diagnosis.
func (r *DiagnosisRepo) GetLatest(ctx context.Context, db *sql.DB, intentID string) (*domain.Diagnosis, error) {
	const q = `SELECT id, intent_id, hypotheses_json, segments_json, questions_json, generated_at_unix
FROM diagnoses
WHERE intent_id = ?
ORDER BY generated_at_unix DESC, id DESC
LIMIT 1`

	row := db.QueryRowContext(ctx, q, intentID)

	var d domain.Diagnosis
	var hypothesesJSON, segmentsJSON, questionsJSON string
	err := row.Scan(&d.ID, &d.IntentID, &hypothesesJSON, &segmentsJSON, &questionsJSON, &d.GeneratedAtUnix)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get latest diagnosis: %w", err)
	}

	if err := json.Unmarshal([]byte(hypothesesJSON), &d.Hypotheses); err != nil {
		return nil, fmt.Errorf("unmarshal hypotheses: %w", err)
	}
	if err := json.Unmarshal([]byte(segmentsJSON), &d.SegmentsImpacted); err != nil {
		return nil, fmt.Errorf("unmarshal segments: %w", err)
	}
	if err := json.Unmarshal([]byte(questionsJSON), &d.NextQuestions); err != nil {
		return nil, fmt.Errorf("unmarshal questions: %w", err)
	}
	return &d, nil
}
