package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/observeo/remedy-engine/internal/domain"
)

// EventRepo handles persistence for timeline events.
type EventRepo struct{}

const eventColumns = `id, intent_id, seq_no, event_type, actor, details_json, created_at_unix`

// AppendTx inserts a timeline event within an existing transaction. The
// caller assigns seq_no from the intent's last_event_seq inside the same
// transaction; UNIQUE(intent_id, seq_no) makes a racing append fail rather
// than silently fork the sequence.
func (r *EventRepo) AppendTx(ctx context.Context, tx *sql.Tx, ev domain.TimelineEvent) error {
	details, err := json.Marshal(ev.Details)
	if err != nil {
		return fmt.Errorf("marshal event details: %w", err)
	}

	const q = `INSERT INTO timeline_events (` + eventColumns + `)
VALUES (?, ?, ?, ?, ?, ?, ?)`
	_, err = tx.ExecContext(ctx, q,
		ev.ID,
		ev.IntentID,
		ev.SeqNo,
		string(ev.Type),
		ev.Actor,
		string(details),
		ev.CreatedAtUnix,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrOptimisticLock
		}
		return fmt.Errorf("append timeline event: %w", err)
	}
	return nil
}

// ListByIntent returns an intent's events with seq_no greater than sinceSeq,
// in sequence order. Pass sinceSeq 0 for the full timeline.
func (r *EventRepo) ListByIntent(ctx context.Context, db *sql.DB, intentID string, sinceSeq int64) ([]domain.TimelineEvent, error) {
	const q = `SELECT ` + eventColumns + ` FROM timeline_events
WHERE intent_id = ? AND seq_no > ?
ORDER BY seq_no ASC`
	return r.queryEvents(ctx, db, q, intentID, sinceSeq)
}

// ListRecent returns the most recent events across all intents, newest first.
func (r *EventRepo) ListRecent(ctx context.Context, db *sql.DB, limit int) ([]domain.TimelineEvent, error) {
	const q = `SELECT ` + eventColumns + ` FROM timeline_events
ORDER BY created_at_unix DESC, seq_no DESC
LIMIT ?`
	return r.queryEvents(ctx, db, q, limit)
}

func (r *EventRepo) queryEvents(ctx context.Context, db *sql.DB, q string, args ...any) ([]domain.TimelineEvent, error) {
	rows, err := db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list timeline events: %w", err)
	}
	defer rows.Close()

	var events []domain.TimelineEvent
	for rows.Next() {
		var ev domain.TimelineEvent
		var eventType, detailsJSON string
		if err := rows.Scan(&ev.ID, &ev.IntentID, &ev.SeqNo, &eventType,
			&ev.Actor, &detailsJSON, &ev.CreatedAtUnix); err != nil {
			return nil, fmt.Errorf("scan timeline event: %w", err)
		}
		ev.Type = domain.EventType(eventType)
		if err := json.Unmarshal([]byte(detailsJSON), &ev.Details); err != nil {
			return nil, fmt.Errorf("unmarshal event details: %w", err)
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}
