// Package replay feeds a session from a JSON-lines capture file. Every
// published message is appended to the file; subscribers read the file from
// the start and keep following it, so a capture written by "livebridge tap"
// can be replayed through the same session code as a live broker.
package replay

import (
	"bufio"
	"context"
	"errors"
	"io"
	"os"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/drblury/livebridge/internal/runtime/jsoncodec"
	"github.com/drblury/livebridge/transport"
)

// TransportName is the name used to register this transport.
const TransportName = "replay"

// DefaultFilePath is used when no replay file is configured.
const DefaultFilePath = "livebridge-capture.jsonl"

// PollInterval is how long a subscriber waits at the end of the file before
// looking for appended entries.
var PollInterval = 50 * time.Millisecond

// ErrClosed is returned by operations on a closed publisher or subscriber.
var ErrClosed = errors.New("replay: closed")

// Entry is one line of a capture file.
type Entry struct {
	UUID        string            `json:"uuid"`
	Topic       string            `json:"topic"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	Payload     []byte            `json:"payload"`
	PublishedAt time.Time         `json:"published_at"`
}

// Register adds the replay driver to the default registry.
func Register() {
	transport.RegisterWithCapabilities(TransportName, Build, transport.ReplayCapabilities)
}

// Build creates a transport reading and writing cfg.GetReplayFile().
func Build(ctx context.Context, cfg transport.Config, logger watermill.LoggerAdapter) (transport.Transport, error) {
	path := cfg.GetReplayFile()
	if path == "" {
		path = DefaultFilePath
	}

	pub, err := NewPublisher(path)
	if err != nil {
		return transport.Transport{}, err
	}
	return transport.Transport{
		Publisher:  pub,
		Subscriber: NewSubscriber(path, logger),
	}, nil
}

// Capabilities returns the capabilities of this transport.
func Capabilities() transport.Capabilities {
	return transport.ReplayCapabilities
}

// Publisher appends messages to a capture file.
type Publisher struct {
	mu     sync.Mutex
	file   *os.File
	w      *bufio.Writer
	closed bool
}

// NewPublisher opens path for appending, creating it if needed.
func NewPublisher(path string) (*Publisher, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, err
	}
	return &Publisher{file: f, w: bufio.NewWriter(f)}, nil
}

// Publish writes one line per message and flushes before returning, so a
// following subscriber sees complete lines only.
func (p *Publisher) Publish(topic string, messages ...*message.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}

	for _, msg := range messages {
		entry := Entry{
			UUID:        msg.UUID,
			Topic:       topic,
			Metadata:    msg.Metadata,
			Payload:     msg.Payload,
			PublishedAt: time.Now().UTC(),
		}
		if err := jsoncodec.Encode(p.w, entry); err != nil {
			return err
		}
	}
	return p.w.Flush()
}

func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	flushErr := p.w.Flush()
	return errors.Join(flushErr, p.file.Close())
}

// Subscriber follows a capture file.
type Subscriber struct {
	path   string
	logger watermill.LoggerAdapter

	closing   chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// NewSubscriber creates a subscriber over path. A nil logger is replaced by
// a no-op logger.
func NewSubscriber(path string, logger watermill.LoggerAdapter) *Subscriber {
	if logger == nil {
		logger = watermill.NopLogger{}
	}
	return &Subscriber{path: path, logger: logger, closing: make(chan struct{})}
}

// Subscribe delivers every entry for topic, starting at the beginning of
// the file. Each message must be acked or nacked before the next one is
// sent; a nacked message is redelivered.
func (s *Subscriber) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	select {
	case <-s.closing:
		return nil, ErrClosed
	default:
	}

	f, err := os.OpenFile(s.path, os.O_RDONLY|os.O_CREATE, 0o600)
	if err != nil {
		return nil, err
	}

	out := make(chan *message.Message)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer close(out)
		defer f.Close()
		s.follow(ctx, f, topic, out)
	}()
	return out, nil
}

func (s *Subscriber) follow(ctx context.Context, f *os.File, topic string, out chan<- *message.Message) {
	reader := bufio.NewReader(f)
	var partial []byte

	for {
		line, err := reader.ReadBytes('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			s.logger.Error("Failed to read capture file", err, watermill.LogFields{"path": s.path})
			return
		}
		if errors.Is(err, io.EOF) {
			// keep an unterminated tail until the writer finishes the line
			partial = append(partial, line...)
			if !s.wait(ctx) {
				return
			}
			continue
		}
		if len(partial) > 0 {
			line = append(partial, line...)
			partial = nil
		}

		var entry Entry
		if err := jsoncodec.Unmarshal(line, &entry); err != nil {
			s.logger.Error("Skipping malformed capture entry", err, watermill.LogFields{"path": s.path})
			continue
		}
		if entry.Topic != topic {
			continue
		}
		if !s.deliver(ctx, out, entry) {
			return
		}
	}
}

func (s *Subscriber) wait(ctx context.Context) bool {
	timer := time.NewTimer(PollInterval)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	case <-s.closing:
		return false
	}
}

func (s *Subscriber) deliver(ctx context.Context, out chan<- *message.Message, entry Entry) bool {
	for {
		msg := message.NewMessage(entry.UUID, entry.Payload)
		for k, v := range entry.Metadata {
			msg.Metadata.Set(k, v)
		}
		msg.SetContext(ctx)

		select {
		case out <- msg:
		case <-ctx.Done():
			return false
		case <-s.closing:
			return false
		}

		select {
		case <-msg.Acked():
			return true
		case <-msg.Nacked():
			s.logger.Debug("Redelivering nacked entry", watermill.LogFields{"uuid": entry.UUID})
		case <-ctx.Done():
			return false
		case <-s.closing:
			return false
		}
	}
}

// Close stops every subscription and waits for their goroutines.
func (s *Subscriber) Close() error {
	s.closeOnce.Do(func() { close(s.closing) })
	s.wg.Wait()
	return nil
}
