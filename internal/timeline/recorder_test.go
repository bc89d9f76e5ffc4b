package timeline

import (
	"context"
	"path/filepath"
	"testing"

	"go.uber.org/zap"

	"github.com/observeo/remedy-engine/internal/domain"
	"github.com/observeo/remedy-engine/internal/store"
)

type capturePublisher struct {
	published []domain.TimelineEvent
	err       error
}

func (p *capturePublisher) Publish(_ context.Context, ev domain.TimelineEvent) error {
	if p.err != nil {
		return p.err
	}
	p.published = append(p.published, ev)
	return nil
}

func TestRecorder_AppendAssignsSequence(t *testing.T) {
	db, err := store.NewDB(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewDB: %v", err)
	}
	defer db.Close()

	ctx := context.Background()
	rec := NewRecorder(nil, zap.NewNop())
	intent := &domain.Intent{ID: "intent-001", LastEventSeq: 0}

	var appended []domain.TimelineEvent
	for i := 0; i < 3; i++ {
		tx, err := db.Begin()
		if err != nil {
			t.Fatalf("begin tx: %v", err)
		}
		ev, err := rec.AppendTx(ctx, tx, intent, domain.EventRolloutStepChanged, domain.ActorSystem, domain.EventDetails{TrafficPercent: float64(i)})
		if err != nil {
			t.Fatalf("AppendTx: %v", err)
		}
		if err := tx.Commit(); err != nil {
			t.Fatalf("commit: %v", err)
		}
		appended = append(appended, ev)
	}

	if intent.LastEventSeq != 3 {
		t.Errorf("LastEventSeq = %d, want 3", intent.LastEventSeq)
	}
	for i, ev := range appended {
		if ev.SeqNo != int64(i+1) {
			t.Errorf("appended[%d].SeqNo = %d, want %d", i, ev.SeqNo, i+1)
		}
	}

	events, err := rec.ListByIntent(ctx, db, "intent-001", 0)
	if err != nil {
		t.Fatalf("ListByIntent: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("len(events) = %d, want 3", len(events))
	}
}

func TestRecorder_PublishCommitted(t *testing.T) {
	pub := &capturePublisher{}
	rec := NewRecorder(pub, zap.NewNop())

	events := []domain.TimelineEvent{
		{ID: "ev-1", IntentID: "intent-001", SeqNo: 1, Type: domain.EventIntentCreated},
		{ID: "ev-2", IntentID: "intent-001", SeqNo: 2, Type: domain.EventDiagnosisGenerated},
	}
	rec.PublishCommitted(context.Background(), events...)

	if len(pub.published) != 2 {
		t.Fatalf("published = %d events, want 2", len(pub.published))
	}
	if pub.published[0].SeqNo != 1 || pub.published[1].SeqNo != 2 {
		t.Errorf("published out of order: %+v", pub.published)
	}
}

func TestRecorder_NilPublisherIsNoop(t *testing.T) {
	rec := NewRecorder(nil, zap.NewNop())
	// Must not panic.
	rec.PublishCommitted(context.Background(), domain.TimelineEvent{ID: "ev-1"})
}
