package bus

import (
	"fmt"

	"github.com/openrisk-labs/kite/internal/domain"
)

// New creates an event bus based on configuration. "channel" is the
// in-process bus for single-node deployments; "nats" is the clustered bus.
func New(cfg domain.EventBusConfig) (domain.EventBus, error) {
	switch cfg.Type {
	case "channel":
		return NewChannelBus(cfg.ChannelBufferSize), nil

	case "nats":
		return NewNATSBus(cfg)

	default:
		return nil, fmt.Errorf("unsupported event bus type: %s", cfg.Type)
	}
}
