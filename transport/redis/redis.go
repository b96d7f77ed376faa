// Package redis carries records over Redis pub/sub channels. Pub/sub does not
// retain messages, so a session only sees records published after it
// subscribed and a nack cannot ask the server for redelivery.
package redis

import (
	"context"
	"errors"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/redis/go-redis/v9"

	"github.com/drblury/livebridge/internal/runtime/jsoncodec"
	"github.com/drblury/livebridge/transport"
)

// TransportName is the name used to register this transport.
const TransportName = "redis"

// DefaultAddr is used when no address is configured.
const DefaultAddr = "localhost:6379"

// ErrClosed is returned after the transport has been closed.
var ErrClosed = errors.New("redis: transport closed")

// ClientFactory allows overriding the client creation for testing.
var ClientFactory = func(opts *redis.Options) *redis.Client {
	return redis.NewClient(opts)
}

// envelope is the wire form of a watermill message on a channel.
type envelope struct {
	UUID     string            `json:"uuid"`
	Metadata map[string]string `json:"metadata,omitempty"`
	Payload  []byte            `json:"payload"`
}

// Register adds the Redis driver to the default registry.
func Register() {
	transport.RegisterWithCapabilities(TransportName, Build, transport.RedisCapabilities)
}

// Build connects to cfg.GetRedisAddr() and returns a transport whose halves
// share one client.
func Build(ctx context.Context, cfg transport.Config, logger watermill.LoggerAdapter) (transport.Transport, error) {
	addr := cfg.GetRedisAddr()
	if addr == "" {
		addr = DefaultAddr
	}

	client := ClientFactory(&redis.Options{
		Addr:     addr,
		Password: cfg.GetRedisPassword(),
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return transport.Transport{}, err
	}
	logger.Info("Connected to Redis", watermill.LogFields{"addr": addr})

	conn := &connection{client: client}
	return transport.Transport{
		Publisher:  &Publisher{conn: conn},
		Subscriber: &Subscriber{conn: conn, logger: logger, closing: make(chan struct{})},
	}, nil
}

// Capabilities returns the capabilities of this transport.
func Capabilities() transport.Capabilities {
	return transport.RedisCapabilities
}

// connection closes the shared client once both halves are closed.
type connection struct {
	mu     sync.Mutex
	client *redis.Client
	users  int
	closed bool
}

func (c *connection) release() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.users++
	if c.users < 2 || c.closed {
		return nil
	}
	c.closed = true
	return c.client.Close()
}

// Publisher publishes envelopes with PUBLISH.
type Publisher struct {
	conn   *connection
	mu     sync.RWMutex
	closed bool
}

func (p *Publisher) Publish(topic string, messages ...*message.Message) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrClosed
	}

	for _, msg := range messages {
		data, err := jsoncodec.Marshal(envelope{UUID: msg.UUID, Metadata: msg.Metadata, Payload: msg.Payload})
		if err != nil {
			return err
		}
		ctx := msg.Context()
		if err := p.conn.client.Publish(ctx, topic, data).Err(); err != nil {
			return err
		}
	}
	return nil
}

func (p *Publisher) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()
	return p.conn.release()
}

// Subscriber turns channel messages into watermill messages, one at a time.
type Subscriber struct {
	conn   *connection
	logger watermill.LoggerAdapter

	mu      sync.Mutex
	closed  bool
	closing chan struct{}
	wg      sync.WaitGroup
}

// Subscribe returns once Redis has confirmed the subscription.
func (s *Subscriber) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrClosed
	}
	ps := s.conn.client.Subscribe(ctx, topic)
	s.wg.Add(1)
	s.mu.Unlock()

	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		s.wg.Done()
		return nil, err
	}

	out := make(chan *message.Message)
	go func() {
		defer s.wg.Done()
		defer close(out)
		defer ps.Close()
		s.consume(ctx, ps.Channel(), out)
	}()
	return out, nil
}

func (s *Subscriber) consume(ctx context.Context, in <-chan *redis.Message, out chan<- *message.Message) {
	for {
		var raw *redis.Message
		select {
		case <-ctx.Done():
			return
		case <-s.closing:
			return
		case m, ok := <-in:
			if !ok {
				return
			}
			raw = m
		}

		var env envelope
		if err := jsoncodec.Unmarshal([]byte(raw.Payload), &env); err != nil {
			s.logger.Error("Dropping malformed Redis message", err, watermill.LogFields{"channel": raw.Channel})
			continue
		}

		msg := message.NewMessage(env.UUID, env.Payload)
		for k, v := range env.Metadata {
			msg.Metadata.Set(k, v)
		}
		msg.SetContext(ctx)

		select {
		case out <- msg:
		case <-ctx.Done():
			return
		case <-s.closing:
			return
		}

		select {
		case <-msg.Acked():
		case <-msg.Nacked():
			s.logger.Debug("Nack on Redis pub/sub drops the message", watermill.LogFields{"uuid": msg.UUID})
		case <-ctx.Done():
			return
		case <-s.closing:
			return
		}
	}
}

// Close stops every consumer, which unsubscribes its channel, and waits for
// them to exit.
func (s *Subscriber) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.closing)
	s.mu.Unlock()

	s.wg.Wait()
	return s.conn.release()
}

func (s *Subscriber) Capabilities() transport.Capabilities {
	return transport.RedisCapabilities
}
