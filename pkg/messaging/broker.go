package messaging

import (
	"context"
)

// Broker defines the interface for message brokers. Publish is keyed by
// channel so downstream consumers can partition and trace by request;
// acknowledgement is synchronous to the call.
type Broker interface {
	Publish(ctx context.Context, channel string, message interface{}) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	Close() error
}

type Message struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}
