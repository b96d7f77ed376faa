package transport

// Capabilities describes the delivery guarantees of a driver. The feed uses
// them to warn when records may arrive out of order or be lost.
type Capabilities struct {
	Name string

	// SupportsOrdering means records on one topic arrive in publish order.
	SupportsOrdering bool
	// SupportsAck means the broker waits for an ack before moving on.
	SupportsAck bool
	// SupportsNack means a nacked record is redelivered.
	SupportsNack bool
	// SupportsReplay means a subscriber can start from the beginning of the
	// retained stream instead of only seeing new records.
	SupportsReplay bool
	// SupportsTracing means message metadata survives the broker, so trace
	// context can travel with records.
	SupportsTracing bool
	// Durable means records survive a broker restart.
	Durable bool

	// MaxMessageSize in bytes; 0 means unlimited or unknown.
	MaxMessageSize int64
}

// SupportsReliableDelivery reports at-least-once delivery (ack and nack).
func (c Capabilities) SupportsReliableDelivery() bool {
	return c.SupportsAck && c.SupportsNack
}

// Fits reports whether a payload of size bytes can be carried.
func (c Capabilities) Fits(size int) bool {
	return c.MaxMessageSize == 0 || int64(size) <= c.MaxMessageSize
}

var (
	ChannelCapabilities = Capabilities{
		Name:             "channel",
		SupportsOrdering: true,
		SupportsAck:      true,
		SupportsNack:     true,
		SupportsTracing:  true,
	}

	KafkaCapabilities = Capabilities{
		Name:             "kafka",
		SupportsOrdering: true,
		SupportsAck:      true,
		SupportsNack:     true,
		SupportsReplay:   true,
		SupportsTracing:  true,
		Durable:          true,
		MaxMessageSize:   1 << 20,
	}

	RabbitMQCapabilities = Capabilities{
		Name:             "rabbitmq",
		SupportsOrdering: true,
		SupportsAck:      true,
		SupportsNack:     true,
		SupportsTracing:  true,
		Durable:          true,
		MaxMessageSize:   128 << 20,
	}

	NATSCapabilities = Capabilities{
		Name:            "nats",
		SupportsAck:     true,
		SupportsNack:    true,
		SupportsTracing: true,
		MaxMessageSize:  1 << 20,
	}

	AWSCapabilities = Capabilities{
		Name:            "aws",
		SupportsAck:     true,
		SupportsNack:    true,
		SupportsTracing: true,
		Durable:         true,
		MaxMessageSize:  256 << 10,
	}

	HTTPCapabilities = Capabilities{
		Name:             "http",
		SupportsOrdering: true,
		SupportsAck:      true,
		SupportsTracing:  true,
	}

	RedisCapabilities = Capabilities{
		Name:             "redis",
		SupportsOrdering: true,
		SupportsTracing:  true,
		MaxMessageSize:   512 << 20,
	}

	ReplayCapabilities = Capabilities{
		Name:             "replay",
		SupportsOrdering: true,
		SupportsAck:      true,
		SupportsNack:     true,
		SupportsReplay:   true,
		SupportsTracing:  true,
		Durable:          true,
	}
)

var builtinCapabilities = map[string]Capabilities{
	"channel":  ChannelCapabilities,
	"kafka":    KafkaCapabilities,
	"rabbitmq": RabbitMQCapabilities,
	"nats":     NATSCapabilities,
	"aws":      AWSCapabilities,
	"http":     HTTPCapabilities,
	"redis":    RedisCapabilities,
	"replay":   ReplayCapabilities,
}

// GetCapabilities returns the built-in capabilities of a driver name.
func GetCapabilities(name string) Capabilities {
	if caps, ok := builtinCapabilities[name]; ok {
		return caps
	}
	return Capabilities{Name: name}
}
