// Package mq carries account lifecycle events to external
// collaborators (mailers, audit sinks) over a pluggable broker.
// The identity core only publishes; subscribing is for consumers
// deployed alongside it.
package mq

import (
	"context"
	"encoding/json"
	"time"
)

// Channels carrying account lifecycle events.
const (
	ChannelUserValidated   = "user.validated"
	ChannelPasswordChanged = "user.password_changed"
	ChannelUserDeleted     = "user.deleted"
)

// UserEvent is the payload published on the lifecycle channels.
type UserEvent struct {
	Username   string    `json:"username"`
	ID         string    `json:"id,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Marshal encodes the event for publishing, stamping OccurredAt if the
// caller left it zero.
func (e UserEvent) Marshal() ([]byte, error) {
	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now()
	}
	return json.Marshal(e)
}

// Message is a delivered payload, broker-agnostic.
type Message struct {
	ID         string
	Data       []byte
	Attributes map[string]string
}

// Handler processes a delivered message. A non-nil error nacks the
// message for redelivery.
type Handler func(ctx context.Context, msg Message) error

// Backend is the broker-specific half: RabbitMQ and Pub/Sub implement
// it.
type Backend interface {
	Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error)
	Subscribe(ctx context.Context, channel string, handler Handler) error
	Close() error
}

// MQ fronts a Backend with a stable API for the rest of the service.
type MQ struct {
	backend Backend
}

// New constructs an MQ over the provided backend.
func New(backend Backend) *MQ {
	return &MQ{backend: backend}
}

// Publish sends a message on the named channel and returns the
// broker-assigned message id.
func (m *MQ) Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error) {
	return m.backend.Publish(ctx, channel, data, attrs)
}

// Subscribe consumes messages from the named channel until ctx is done
// or the backend fails.
func (m *MQ) Subscribe(ctx context.Context, channel string, handler Handler) error {
	return m.backend.Subscribe(ctx, channel, handler)
}

// Close closes the underlying backend.
func (m *MQ) Close() error {
	return m.backend.Close()
}
