package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/nats-io/nats.go"
)

// ErrNATSURLRequired is returned when no server address is configured
var ErrNATSURLRequired = errors.New("events: nats url is required")

// msgConn is the subset of *nats.Conn the publisher needs
type msgConn interface {
	PublishMsg(m *nats.Msg) error
	Drain() error
	Close()
}

// NATSPublisher publishes events as JSON to <prefix>.<type> subjects
type NATSPublisher struct {
	conn   msgConn
	prefix string
}

// NewNATSPublisher connects to url and returns a publisher using prefix for subjects
func NewNATSPublisher(url, prefix string, opts ...nats.Option) (*NATSPublisher, error) {
	if url == "" {
		return nil, ErrNATSURLRequired
	}
	conn, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("events: nats connect: %w", err)
	}
	return newNATSPublisher(conn, prefix), nil
}

func newNATSPublisher(conn msgConn, prefix string) *NATSPublisher {
	return &NATSPublisher{conn: conn, prefix: strings.TrimSuffix(prefix, ".")}
}

// Subject returns the subject an event type is published on
func (p *NATSPublisher) Subject(t Type) string {
	if p.prefix == "" {
		return string(t)
	}
	return p.prefix + "." + strings.TrimPrefix(string(t), "otp.")
}

// Publish encodes evt and hands it to the connection's outbound buffer
func (p *NATSPublisher) Publish(ctx context.Context, evt Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	body, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("events: encode %s: %w", evt.Type, err)
	}

	msg := nats.NewMsg(p.Subject(evt.Type))
	msg.Data = body
	msg.Header.Set("Content-Type", "application/json")
	msg.Header.Set("Bell-Event-Type", string(evt.Type))

	if err := p.conn.PublishMsg(msg); err != nil {
		return fmt.Errorf("events: nats publish: %w", err)
	}
	return nil
}

// Close flushes pending events and closes the connection
func (p *NATSPublisher) Close() error {
	err := p.conn.Drain()
	p.conn.Close()
	return err
}
