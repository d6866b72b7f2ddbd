package cmd

import (
	"fmt"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/pipecd-crm/wfm/pkg/channels/gochannel"
	"github.com/pipecd-crm/wfm/pkg/channels/kafka"
	"github.com/pipecd-crm/wfm/pkg/eventbus"
)

// NewEventBus builds the event bus for provider. "none" or an empty provider returns nil.
// kafkaBrokers is a comma separated list and only used by the kafka provider.
//
//nolint:ireturn // The bus implementation is selected at runtime
func NewEventBus(provider, kafkaBrokers string, logger *slog.Logger) (eventbus.EventBus, error) {
	switch provider {
	case "", "none":
		return nil, nil
	case "gochannel":
		channel := gochannel.CreateChannel(watermill.NewSlogLogger(logger))

		return eventbus.NewWatermillEventBus(channel, channel), nil
	case "kafka":
		pub, sub, err := kafka.CreateChannel(watermill.NewSlogLogger(logger), kafka.ParseBrokers(kafkaBrokers), "wfm")
		if err != nil {
			return nil, fmt.Errorf("failed to create Kafka pub/sub: %w", err)
		}

		return eventbus.NewWatermillEventBus(pub, sub), nil
	default:
		return nil, fmt.Errorf("unsupported event bus provider: %s", provider)
	}
}
