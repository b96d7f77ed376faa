// Package transport defines how the live feed reaches a message broker. Each
// driver lives in its own sub-package and registers a Builder with the
// registry; the feed only sees Watermill publishers and subscribers.
package transport

import (
	"context"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
)

// Transport pairs the subscriber records are read from with the publisher
// used for control requests.
type Transport struct {
	Publisher  message.Publisher
	Subscriber message.Subscriber
}

// Close closes both halves, returning the first error.
func (t Transport) Close() error {
	var first error
	if t.Subscriber != nil {
		first = t.Subscriber.Close()
	}
	if t.Publisher != nil {
		if err := t.Publisher.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Builder creates a transport from config.
type Builder func(ctx context.Context, cfg Config, logger watermill.LoggerAdapter) (Transport, error)

// Config exposes the settings drivers read. Drivers only call the getters
// relevant to them.
type Config interface {
	// GetDriver returns the registered driver name.
	GetDriver() string
	// GetAllowUnordered opts in to drivers without ordered delivery.
	GetAllowUnordered() bool

	// Kafka
	GetKafkaBrokers() []string
	GetKafkaConsumerGroup() string

	// RabbitMQ
	GetRabbitMQURL() string

	// NATS
	GetNATSURL() string

	// Redis
	GetRedisAddr() string
	GetRedisPassword() string

	// HTTP
	GetHTTPServerAddress() string
	GetHTTPPublisherURL() string

	// Replay
	GetReplayFile() string

	// AWS
	GetAWSRegion() string
	GetAWSAccountID() string
	GetAWSAccessKeyID() string
	GetAWSSecretAccessKey() string
	GetAWSEndpoint() string
}

// CapabilitiesProvider is implemented by subscribers that report their own
// capabilities.
type CapabilitiesProvider interface {
	Capabilities() Capabilities
}

// Starter is implemented by subscribers that only begin receiving once every
// topic has been subscribed. The feed calls Start after its subscriptions.
type Starter interface {
	Start()
}
