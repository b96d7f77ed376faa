package nats

import (
	"context"
	"errors"
	"testing"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drblury/livebridge/transport"
	"github.com/drblury/livebridge/transport/transporttest"
)

func overrideFactories(t *testing.T) {
	t.Helper()
	pub, sub := PublisherFactory, SubscriberFactory
	t.Cleanup(func() {
		PublisherFactory = pub
		SubscriberFactory = sub
	})
}

func TestRegister(t *testing.T) {
	original := transport.DefaultRegistry
	t.Cleanup(func() { transport.DefaultRegistry = original })
	transport.DefaultRegistry = transport.NewRegistry()

	assert.False(t, transport.DefaultRegistry.Has(TransportName))
	Register()
	assert.True(t, transport.DefaultRegistry.Has(TransportName))
	assert.Equal(t, transport.NATSCapabilities, Capabilities())
}

func TestBuild(t *testing.T) {
	overrideFactories(t)

	mockPub := &transporttest.Publisher{}
	mockSub := &transporttest.Subscriber{}
	PublisherFactory = func(cfg nats.PublisherConfig, logger watermill.LoggerAdapter) (message.Publisher, error) {
		assert.Equal(t, "nats://localhost:4222", cfg.URL)
		assert.True(t, cfg.JetStream.Disabled)
		assert.Len(t, cfg.NatsOptions, len(ConnectionOptions))
		return mockPub, nil
	}
	SubscriberFactory = func(cfg nats.SubscriberConfig, logger watermill.LoggerAdapter) (message.Subscriber, error) {
		assert.Equal(t, "nats://localhost:4222", cfg.URL)
		assert.True(t, cfg.JetStream.Disabled)
		assert.NotNil(t, cfg.Unmarshaler)
		return mockSub, nil
	}

	tr, err := Build(context.Background(), &transporttest.Config{NATSURL: "nats://localhost:4222"}, watermill.NopLogger{})
	require.NoError(t, err)
	assert.Same(t, mockPub, tr.Publisher)
	assert.Same(t, mockSub, tr.Subscriber)
}

func TestBuildErrors(t *testing.T) {
	overrideFactories(t)
	mockPub := &transporttest.Publisher{}
	PublisherFactory = func(nats.PublisherConfig, watermill.LoggerAdapter) (message.Publisher, error) {
		return mockPub, nil
	}
	SubscriberFactory = func(nats.SubscriberConfig, watermill.LoggerAdapter) (message.Subscriber, error) {
		return nil, errors.New("no servers available")
	}

	_, err := Build(context.Background(), &transporttest.Config{}, watermill.NopLogger{})
	assert.ErrorContains(t, err, "no servers available")
	assert.True(t, mockPub.Closed)

	PublisherFactory = func(nats.PublisherConfig, watermill.LoggerAdapter) (message.Publisher, error) {
		return nil, errors.New("publisher error")
	}
	_, err = Build(context.Background(), &transporttest.Config{}, watermill.NopLogger{})
	assert.ErrorContains(t, err, "publisher error")
}
