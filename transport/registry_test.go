package transport_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drblury/livebridge/transport"
	"github.com/drblury/livebridge/transport/transporttest"
)

type mockPublisher struct{ closed bool }

func (m *mockPublisher) Publish(topic string, messages ...*message.Message) error { return nil }
func (m *mockPublisher) Close() error                                             { m.closed = true; return nil }

type mockSubscriber struct {
	closed bool
	err    error
}

func (m *mockSubscriber) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	ch := make(chan *message.Message)
	close(ch)
	return ch, nil
}

func (m *mockSubscriber) Close() error { m.closed = true; return m.err }

func mockBuilder(ctx context.Context, cfg transport.Config, logger watermill.LoggerAdapter) (transport.Transport, error) {
	return transport.Transport{Publisher: &mockPublisher{}, Subscriber: &mockSubscriber{}}, nil
}

func TestRegistry_Register(t *testing.T) {
	reg := transport.NewRegistry()
	reg.Register("mock", mockBuilder)

	assert.True(t, reg.Has("mock"))
	assert.False(t, reg.Has("other"))
}

func TestRegistry_Capabilities(t *testing.T) {
	reg := transport.NewRegistry()
	caps := transport.Capabilities{Name: "mock", SupportsOrdering: true, SupportsAck: true}
	reg.RegisterWithCapabilities("mock", mockBuilder, caps)

	assert.Equal(t, caps, reg.GetCapabilities("mock"))
	assert.Equal(t, transport.Capabilities{Name: "unknown"}, reg.GetCapabilities("unknown"))
}

func TestRegistry_Build(t *testing.T) {
	reg := transport.NewRegistry()
	reg.Register("mock", mockBuilder)

	tr, err := reg.Build(context.Background(), &transporttest.Config{Driver: "mock"}, nil)
	require.NoError(t, err)
	assert.NotNil(t, tr.Publisher)
	assert.NotNil(t, tr.Subscriber)
}

func TestRegistry_BuildErrors(t *testing.T) {
	reg := transport.NewRegistry()
	reg.Register("b", mockBuilder)
	reg.Register("a", mockBuilder)

	_, err := reg.Build(context.Background(), nil, nil)
	assert.EqualError(t, err, "config is required")

	_, err = reg.Build(context.Background(), &transporttest.Config{Driver: "nope"}, nil)
	assert.EqualError(t, err, `unknown transport: "nope" (registered: [a b])`)

	boom := errors.New("boom")
	reg.Register("failing", func(context.Context, transport.Config, watermill.LoggerAdapter) (transport.Transport, error) {
		return transport.Transport{}, boom
	})
	_, err = reg.Build(context.Background(), &transporttest.Config{Driver: "failing"}, nil)
	assert.ErrorIs(t, err, boom)
}

func TestRegistry_BuildRefusesUnorderedDrivers(t *testing.T) {
	reg := transport.NewRegistry()
	reg.RegisterWithCapabilities("fanout", mockBuilder, transport.Capabilities{Name: "fanout", SupportsAck: true})
	reg.RegisterWithCapabilities("ordered", mockBuilder, transport.Capabilities{Name: "ordered", SupportsOrdering: true})
	reg.Register("undeclared", mockBuilder)

	_, err := reg.Build(context.Background(), &transporttest.Config{Driver: "fanout"}, nil)
	assert.ErrorIs(t, err, transport.ErrUnordered)
	assert.Contains(t, err.Error(), "allow_unordered")

	tr, caps, err := reg.Dial(context.Background(), &transporttest.Config{Driver: "fanout", AllowUnordered: true}, nil)
	require.NoError(t, err)
	assert.NotNil(t, tr.Subscriber)
	assert.Equal(t, "fanout", caps.Name)

	_, caps, err = reg.Dial(context.Background(), &transporttest.Config{Driver: "ordered"}, nil)
	require.NoError(t, err)
	assert.True(t, caps.SupportsOrdering)

	_, caps, err = reg.Dial(context.Background(), &transporttest.Config{Driver: "undeclared"}, nil)
	require.NoError(t, err)
	assert.Equal(t, transport.Capabilities{Name: "undeclared"}, caps)

	_, _, err = reg.Dial(context.Background(), &transporttest.Config{Driver: "missing"}, nil)
	assert.ErrorIs(t, err, transport.ErrUnknownDriver)
}

func TestDefaultRegistryGatesNATS(t *testing.T) {
	original := transport.DefaultRegistry
	t.Cleanup(func() { transport.DefaultRegistry = original })
	transport.DefaultRegistry = transport.NewRegistry()
	transport.RegisterWithCapabilities("nats", mockBuilder, transport.NATSCapabilities)

	_, err := transport.Build(context.Background(), &transporttest.Config{Driver: "nats"}, nil)
	assert.ErrorIs(t, err, transport.ErrUnordered)
	_, _, err = transport.Dial(context.Background(), &transporttest.Config{Driver: "nats", AllowUnordered: true}, nil)
	assert.NoError(t, err)
}

func TestRegistry_ConcurrentAccess(t *testing.T) {
	reg := transport.NewRegistry()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			reg.Register("mock", mockBuilder)
		}()
		go func() {
			defer wg.Done()
			_ = reg.Names()
			_ = reg.Has("mock")
		}()
	}
	wg.Wait()
	assert.Equal(t, []string{"mock"}, reg.Names())
}

func TestTransportClose(t *testing.T) {
	pub := &mockPublisher{}
	sub := &mockSubscriber{err: errors.New("sub close")}
	err := transport.Transport{Publisher: pub, Subscriber: sub}.Close()
	assert.EqualError(t, err, "sub close")
	assert.True(t, pub.closed)
	assert.True(t, sub.closed)

	assert.NoError(t, transport.Transport{}.Close())
}

func TestPredefinedCapabilities(t *testing.T) {
	for _, name := range []string{"channel", "kafka", "rabbitmq", "nats", "aws", "http", "redis", "replay"} {
		caps := transport.GetCapabilities(name)
		assert.Equal(t, name, caps.Name)
	}
	assert.True(t, transport.KafkaCapabilities.SupportsReplay)
	assert.False(t, transport.NATSCapabilities.SupportsOrdering)
	assert.True(t, transport.RabbitMQCapabilities.SupportsReliableDelivery())
	assert.False(t, transport.RedisCapabilities.SupportsReliableDelivery())
	assert.Equal(t, transport.Capabilities{Name: "custom"}, transport.GetCapabilities("custom"))
}

func TestCapabilitiesFits(t *testing.T) {
	assert.True(t, transport.ChannelCapabilities.Fits(1<<30))
	assert.True(t, transport.AWSCapabilities.Fits(256<<10))
	assert.False(t, transport.AWSCapabilities.Fits(256<<10+1))
}

type providerStub struct{}

func (providerStub) Capabilities() transport.Capabilities { return transport.ChannelCapabilities }

func TestCapabilitiesProvider(t *testing.T) {
	var p transport.CapabilitiesProvider = providerStub{}
	assert.Equal(t, "channel", p.Capabilities().Name)
}

var _ transport.Config = (*transporttest.Config)(nil)
