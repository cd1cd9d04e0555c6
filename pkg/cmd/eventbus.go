package cmd

import (
	"fmt"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"

	"github.com/strandkit/strand/pkg/eventbus"
)

// NewEventBus selects an event bus transport. "kafka" needs a broker
// list; "gochannel" keeps events in-process.
func NewEventBus(provider, kafkaBrokers string, logger *slog.Logger) (*eventbus.Bus, error) {
	switch provider {
	case "kafka":
		return eventbus.NewKafkaBus(watermill.NewSlogLogger(logger), kafkaBrokers, "strand")
	case "gochannel", "":
		return eventbus.NewGoChannelBus(watermill.NewSlogLogger(logger)), nil
	default:
		return nil, fmt.Errorf("unsupported event bus provider %q", provider)
	}
}
