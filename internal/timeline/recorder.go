// Package timeline maintains the per-intent ordered audit log. Every state
// mutation appends exactly one event inside the same transaction as the
// state change, so the log and the state never disagree.
package timeline

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/observeo/remedy-engine/internal/domain"
	"github.com/observeo/remedy-engine/internal/metrics"
	"github.com/observeo/remedy-engine/internal/store"
)

// Publisher delivers committed timeline events to subscribers. Delivery is
// at-least-once and best-effort; persistence never waits on it.
type Publisher interface {
	Publish(ctx context.Context, ev domain.TimelineEvent) error
}

// Recorder appends timeline events and fans them out after commit.
type Recorder struct {
	events    *store.EventRepo
	publisher Publisher
	logger    *zap.Logger
	now       func() time.Time
}

// NewRecorder builds a Recorder. publisher may be nil to disable fan-out.
func NewRecorder(publisher Publisher, logger *zap.Logger) *Recorder {
	return &Recorder{
		events:    &store.EventRepo{},
		publisher: publisher,
		logger:    logger,
		now:       time.Now,
	}
}

// AppendTx assigns the intent's next sequence number, bumps
// intent.LastEventSeq in place, and writes the event row in tx. The caller
// must persist the intent's new LastEventSeq in the same transaction and
// hand the returned event to PublishCommitted once the transaction commits.
func (r *Recorder) AppendTx(ctx context.Context, tx *sql.Tx, intent *domain.Intent, evType domain.EventType, actor string, details domain.EventDetails) (domain.TimelineEvent, error) {
	intent.LastEventSeq++
	ev := domain.TimelineEvent{
		ID:            uuid.NewString(),
		IntentID:      intent.ID,
		SeqNo:         intent.LastEventSeq,
		Type:          evType,
		Actor:         actor,
		Details:       details,
		CreatedAtUnix: r.now().Unix(),
	}
	if err := r.events.AppendTx(ctx, tx, ev); err != nil {
		return domain.TimelineEvent{}, err
	}
	return ev, nil
}

// PublishCommitted fans out events that are already durable. Publish failures
// are logged and dropped; subscribers reconcile via the since_seq listing.
func (r *Recorder) PublishCommitted(ctx context.Context, events ...domain.TimelineEvent) {
	for _, ev := range events {
		metrics.IncTimelineEvent(string(ev.Type))
	}
	if r.publisher == nil {
		return
	}
	for _, ev := range events {
		if err := r.publisher.Publish(ctx, ev); err != nil {
			r.logger.Warn("timeline publish failed",
				zap.String("intent_id", ev.IntentID),
				zap.Int64("seq_no", ev.SeqNo),
				zap.String("event_type", string(ev.Type)),
				zap.Error(err))
		}
	}
}

// ListByIntent returns an intent's events after sinceSeq, in order.
func (r *Recorder) ListByIntent(ctx context.Context, db *sql.DB, intentID string, sinceSeq int64) ([]domain.TimelineEvent, error) {
	return r.events.ListByIntent(ctx, db, intentID, sinceSeq)
}

// ListRecent returns the newest events across intents.
func (r *Recorder) ListRecent(ctx context.Context, db *sql.DB, limit int) ([]domain.TimelineEvent, error) {
	return r.events.ListRecent(ctx, db, limit)
}
