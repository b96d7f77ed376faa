package http

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/ThreeDotsLabs/watermill"
	watermillhttp "github.com/ThreeDotsLabs/watermill-http/v2/pkg/http"
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

type serverSubscriber struct {
	transporttest.Subscriber
	started chan struct{}
}

func (s *serverSubscriber) StartHTTPServer() error {
	close(s.started)
	return nil
}

func TestRegister(t *testing.T) {
	original := transport.DefaultRegistry
	t.Cleanup(func() { transport.DefaultRegistry = original })
	transport.DefaultRegistry = transport.NewRegistry()

	Register()

	caps := transport.DefaultRegistry.GetCapabilities(TransportName)
	assert.Equal(t, "http", caps.Name)
	assert.False(t, caps.Durable)
	assert.Equal(t, transport.HTTPCapabilities, Capabilities())
}

func TestBuildMarshalsToPublisherURL(t *testing.T) {
	overrideFactories(t)

	var marshal watermillhttp.MarshalMessageFunc
	PublisherFactory = func(config watermillhttp.PublisherConfig, logger watermill.LoggerAdapter) (message.Publisher, error) {
		marshal = config.MarshalMessageFunc
		return &transporttest.Publisher{}, nil
	}
	SubscriberFactory = func(addr string, config watermillhttp.SubscriberConfig, logger watermill.LoggerAdapter) (message.Subscriber, error) {
		assert.Equal(t, ":8080", addr)
		return &transporttest.Subscriber{}, nil
	}

	cfg := &transporttest.Config{HTTPServerAddress: ":8080", HTTPPublisherURL: "http://gateway:9000"}
	_, err := Build(context.Background(), cfg, watermill.NopLogger{})
	require.NoError(t, err)
	require.NotNil(t, marshal)

	req, err := marshal("GLBX.MDP3.control", message.NewMessage("1", []byte(`{"action":"subscribe"}`)))
	require.NoError(t, err)
	assert.Equal(t, "http://gateway:9000/GLBX.MDP3.control", req.URL.String())
	body, err := io.ReadAll(req.Body)
	require.NoError(t, err)
	assert.JSONEq(t, `{"action":"subscribe"}`, string(body))
}

func TestSubscriberRoutesAndStartsOnce(t *testing.T) {
	overrideFactories(t)

	inner := &serverSubscriber{started: make(chan struct{})}
	PublisherFactory = func(watermillhttp.PublisherConfig, watermill.LoggerAdapter) (message.Publisher, error) {
		return &transporttest.Publisher{}, nil
	}
	SubscriberFactory = func(string, watermillhttp.SubscriberConfig, watermill.LoggerAdapter) (message.Subscriber, error) {
		return inner, nil
	}

	tr, err := Build(context.Background(), &transporttest.Config{}, watermill.NopLogger{})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	_, err = tr.Subscriber.Subscribe(ctx, "GLBX.MDP3.records")
	require.NoError(t, err)
	assert.Equal(t, []string{"/GLBX.MDP3.records"}, inner.Topics)

	starter, ok := tr.Subscriber.(transport.Starter)
	require.True(t, ok)
	starter.Start()
	starter.Start()
	<-inner.started
}

func TestBuildErrors(t *testing.T) {
	t.Run("publisher", func(t *testing.T) {
		overrideFactories(t)
		PublisherFactory = func(watermillhttp.PublisherConfig, watermill.LoggerAdapter) (message.Publisher, error) {
			return nil, errors.New("publisher error")
		}
		_, err := Build(context.Background(), &transporttest.Config{}, watermill.NopLogger{})
		assert.ErrorContains(t, err, "publisher error")
	})

	t.Run("subscriber closes publisher", func(t *testing.T) {
		overrideFactories(t)
		mockPub := &transporttest.Publisher{}
		PublisherFactory = func(watermillhttp.PublisherConfig, watermill.LoggerAdapter) (message.Publisher, error) {
			return mockPub, nil
		}
		SubscriberFactory = func(string, watermillhttp.SubscriberConfig, watermill.LoggerAdapter) (message.Subscriber, error) {
			return nil, errors.New("subscriber error")
		}
		_, err := Build(context.Background(), &transporttest.Config{}, watermill.NopLogger{})
		assert.ErrorContains(t, err, "subscriber error")
		assert.True(t, mockPub.Closed)
	})
}
