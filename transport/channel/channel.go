// Package channel is the in-process transport. Every session built on it
// shares one Go channel bus, so a gateway publishing in the same process (a
// test, an example or an embedded simulator) reaches every subscriber.
package channel

import (
	"context"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"

	"github.com/drblury/livebridge/transport"
)

// TransportName is the name used to register this transport.
const TransportName = "channel"

// BusConfig configures the shared bus when it is first created. Publishing
// waits for the subscriber's ack, which keeps records in publish order.
var BusConfig = gochannel.Config{
	OutputChannelBuffer:            1024,
	BlockPublishUntilSubscriberAck: true,
}

var (
	busMu sync.Mutex
	bus   *gochannel.GoChannel
)

// Bus returns the process-wide bus, creating it on first use.
func Bus(logger watermill.LoggerAdapter) *gochannel.GoChannel {
	busMu.Lock()
	defer busMu.Unlock()
	if bus == nil {
		if logger == nil {
			logger = watermill.NopLogger{}
		}
		bus = gochannel.NewGoChannel(BusConfig, logger)
	}
	return bus
}

// ResetBus closes the shared bus. The next Bus call creates a fresh one.
func ResetBus() error {
	busMu.Lock()
	defer busMu.Unlock()
	if bus == nil {
		return nil
	}
	err := bus.Close()
	bus = nil
	return err
}

// Factory allows overriding the pub/sub pair for testing.
var Factory = func(logger watermill.LoggerAdapter) (message.Publisher, message.Subscriber) {
	b := Bus(logger)
	return sharedPublisher{b}, sharedSubscriber{b}
}

func init() {
	Register()
}

// Register adds the channel driver to the default registry.
func Register() {
	transport.RegisterWithCapabilities(TransportName, Build, transport.ChannelCapabilities)
}

// Build returns a transport on the shared bus.
func Build(ctx context.Context, cfg transport.Config, logger watermill.LoggerAdapter) (transport.Transport, error) {
	pub, sub := Factory(logger)
	return transport.Transport{
		Publisher:  pub,
		Subscriber: sub,
	}, nil
}

// Capabilities returns the capabilities of this transport.
func Capabilities() transport.Capabilities {
	return transport.ChannelCapabilities
}

// sharedPublisher and sharedSubscriber leave the bus open on Close; a
// subscription ends when its context is cancelled.
type sharedPublisher struct{ bus *gochannel.GoChannel }

func (p sharedPublisher) Publish(topic string, messages ...*message.Message) error {
	return p.bus.Publish(topic, messages...)
}

func (sharedPublisher) Close() error { return nil }

type sharedSubscriber struct{ bus *gochannel.GoChannel }

func (s sharedSubscriber) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	return s.bus.Subscribe(ctx, topic)
}

func (sharedSubscriber) Close() error { return nil }
