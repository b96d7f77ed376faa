package session

import (
	"context"
	"time"

	"github.com/drblury/livebridge/internal/runtime/feed"
	"github.com/drblury/livebridge/internal/runtime/logging"
	"github.com/drblury/livebridge/transport"
)

// Client is the live client a session drives. *feed.Client implements it.
type Client interface {
	Subscribe(ctx context.Context, sub feed.Subscription) error
	Start(ctx context.Context, handler feed.Handler) error
	Stop()
	Done() <-chan struct{}
	Streaming() bool
	Connected() bool
	Close(timeout time.Duration) error
}

// ClientFactory builds a session's client the first time it is needed.
type ClientFactory func(ctx context.Context, opts feed.Options) (Client, error)

// TransportClientFactory dials the transport selected by cfg for each client.
func TransportClientFactory(cfg transport.Config, logger logging.ServiceLogger) ClientFactory {
	return func(ctx context.Context, opts feed.Options) (Client, error) {
		return feed.Dial(ctx, cfg, opts, logger)
	}
}
