package bus

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/nats-io/nats.go"
)

// Bus wraps a NATS connection used to announce deploy outcomes.
type Bus struct {
	conn *nats.Conn
}

// New creates a Bus connected to the provided NATS endpoint.
func New(url string, opts ...nats.Option) (*Bus, error) {
	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, err
	}
	return &Bus{conn: nc}, nil
}

// Close drains and shuts down the underlying NATS connection.
func (b *Bus) Close() {
	if b == nil || b.conn == nil {
		return
	}
	if err := b.conn.Drain(); err != nil {
		b.conn.Close()
	}
}

// Publish encodes v as JSON, publishes it to subj and waits for the server to
// acknowledge the flush so the message is not lost when the CLI exits.
func (b *Bus) Publish(ctx context.Context, subj string, v any) error {
	if b == nil || b.conn == nil {
		return errors.New("nil bus")
	}
	if subj == "" {
		return errors.New("subject is required")
	}

	data, err := json.Marshal(v)
	if err != nil {
		return err
	}

	if err := b.conn.Publish(subj, data); err != nil {
		return err
	}
	return b.conn.FlushWithContext(ctx)
}
