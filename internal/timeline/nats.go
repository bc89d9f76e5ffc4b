package timeline

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"

	"github.com/observeo/remedy-engine/internal/domain"
)

// subjectPrefix is the NATS subject root for timeline fan-out. Each intent
// gets its own subject so subscribers can filter server-side.
const subjectPrefix = "timeline.events"

// NATSPublisher publishes committed timeline events to NATS.
type NATSPublisher struct {
	conn *nats.Conn
}

// NewNATSPublisher connects to the given NATS URL. The connection retries in
// the background, so a broker that is down at startup does not block the
// engine.
func NewNATSPublisher(url string) (*NATSPublisher, error) {
	conn, err := nats.Connect(url,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &NATSPublisher{conn: conn}, nil
}

// Publish sends one event to timeline.events.<intent_id>.
func (p *NATSPublisher) Publish(_ context.Context, ev domain.TimelineEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	subject := fmt.Sprintf("%s.%s", subjectPrefix, ev.IntentID)
	if err := p.conn.Publish(subject, payload); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	return nil
}

// Close drains the connection.
func (p *NATSPublisher) Close() {
	if p.conn != nil {
		p.conn.Drain()
	}
}
