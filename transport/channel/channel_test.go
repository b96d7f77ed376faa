package channel

import (
	"context"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drblury/livebridge/transport"
	"github.com/drblury/livebridge/transport/transporttest"
)

func TestRegister(t *testing.T) {
	original := transport.DefaultRegistry
	t.Cleanup(func() { transport.DefaultRegistry = original })
	transport.DefaultRegistry = transport.NewRegistry()

	Register()

	assert.True(t, transport.DefaultRegistry.Has(TransportName))
	caps := transport.DefaultRegistry.GetCapabilities(TransportName)
	assert.True(t, caps.SupportsOrdering)
	assert.Equal(t, transport.ChannelCapabilities, Capabilities())
}

func TestBuildSharesBus(t *testing.T) {
	t.Cleanup(func() { _ = ResetBus() })
	cfg := &transporttest.Config{Driver: TransportName}

	gateway, err := Build(context.Background(), cfg, watermill.NopLogger{})
	require.NoError(t, err)
	session, err := Build(context.Background(), cfg, watermill.NopLogger{})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	msgs, err := session.Subscriber.Subscribe(ctx, "GLBX.MDP3.records")
	require.NoError(t, err)

	// publishing blocks until the subscriber acks
	published := publishAsync(gateway, "GLBX.MDP3.records", message.NewMessage("1", []byte("rec")))

	select {
	case msg := <-msgs:
		assert.Equal(t, "rec", string(msg.Payload))
		msg.Ack()
	case <-time.After(2 * time.Second):
		t.Fatal("message not delivered across transports")
	}
	require.NoError(t, <-published)

	// Closing one transport leaves the bus usable for the other.
	require.NoError(t, gateway.Close())
	published = publishAsync(gateway, "GLBX.MDP3.records", message.NewMessage("2", []byte("again")))
	select {
	case msg := <-msgs:
		assert.Equal(t, "again", string(msg.Payload))
		msg.Ack()
	case <-time.After(2 * time.Second):
		t.Fatal("bus closed by transport Close")
	}
	require.NoError(t, <-published)
}

func publishAsync(tr transport.Transport, topic string, msg *message.Message) <-chan error {
	errc := make(chan error, 1)
	go func() { errc <- tr.Publisher.Publish(topic, msg) }()
	return errc
}

func TestFactoryOverride(t *testing.T) {
	original := Factory
	t.Cleanup(func() { Factory = original })

	pub, sub := &stubPublisher{}, &stubSubscriber{}
	Factory = func(watermill.LoggerAdapter) (message.Publisher, message.Subscriber) {
		return pub, sub
	}

	tr, err := Build(context.Background(), &transporttest.Config{}, nil)
	require.NoError(t, err)
	assert.Same(t, pub, tr.Publisher)
	assert.Same(t, sub, tr.Subscriber)
}

type stubPublisher struct{}

func (*stubPublisher) Publish(string, ...*message.Message) error { return nil }
func (*stubPublisher) Close() error                              { return nil }

type stubSubscriber struct{}

func (*stubSubscriber) Subscribe(context.Context, string) (<-chan *message.Message, error) {
	return make(chan *message.Message), nil
}
func (*stubSubscriber) Close() error { return nil }
