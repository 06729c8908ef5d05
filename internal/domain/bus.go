package domain

import "context"

// EventBus defines the event boundary: ingestion of transactions for async
// scoring, decision/alert publication, and cache-invalidation broadcasts.
// Supports Go channels or NATS. All methods take a tenantID for strict
// multi-tenancy isolation.
type EventBus interface {
	Publish(ctx context.Context, tenantID, topic string, payload []byte) error
	Subscribe(ctx context.Context, tenantID, topic string, handler MessageHandler) (Subscription, error)
	Ping(ctx context.Context) error
	Close() error
}

// MessageHandler processes incoming messages.
type MessageHandler func(ctx context.Context, msg *Message) error

// Message is an event envelope.
type Message struct {
	ID        string            `json:"id"`
	TenantID  string            `json:"tenantId"`
	Topic     string            `json:"topic"`
	Payload   []byte            `json:"payload"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	Timestamp int64             `json:"timestamp"`
}

// Subscription is an active subscription.
type Subscription interface {
	Unsubscribe() error
	Topic() string
}

// EventBusConfig holds configuration for event bus initialization.
type EventBusConfig struct {
	// Type is "channel" or "nats".
	Type string

	// Channel settings
	ChannelBufferSize int

	// NATS settings
	NATSUrl           string
	NATSToken         string
	NATSMaxReconnects int
	NATSReconnectWait int // seconds
}

// Standard topic names for the scoring pipeline.
const (
	TopicTransactionIngested = "kite.transaction.ingested"
	TopicDecision            = "kite.decision"
	TopicAlert               = "kite.alert"
	TopicConfigInvalidate    = "kite.config.invalidate"
)
