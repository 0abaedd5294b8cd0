package events

import (
	"context"
	"encoding/json"
	"fmt"
	"github.com/nats-io/nats.go"
)

// NatsPublisher publishes every event on "<prefix>.<type>", e.g.
// snapgram.like.toggled.
type NatsPublisher struct {
	conn   *nats.Conn
	prefix string
}

func NewNatsPublisher(url, prefix string) (*NatsPublisher, error) {
	conn, err := nats.Connect(url, nats.Name("snapgram"), nats.MaxReconnects(-1))
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	return &NatsPublisher{conn: conn, prefix: prefix}, nil
}

func (p *NatsPublisher) Subject(eventType Type) string {
	return p.prefix + "." + string(eventType)
}

func (p *NatsPublisher) Publish(ctx context.Context, event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := p.conn.Publish(p.Subject(event.Type), data); err != nil {
		return fmt.Errorf("nats publish: %w", err)
	}
	return nil
}

func (p *NatsPublisher) Close() {
	if err := p.conn.Drain(); err != nil {
		p.conn.Close()
	}
}
