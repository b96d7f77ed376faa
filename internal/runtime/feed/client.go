// Package feed is the live market-data client wrapped by sessions. It sends
// subscription requests over a transport's publisher and reads records and
// gateway errors from its subscriber, handing each one to a Handler on a
// single goroutine.
package feed

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/drblury/livebridge/internal/runtime/dbn"
	lberrors "github.com/drblury/livebridge/internal/runtime/errors"
	"github.com/drblury/livebridge/internal/runtime/logging"
	"github.com/drblury/livebridge/internal/runtime/metadata"
	"github.com/drblury/livebridge/transport"
)

// DefaultHeartbeatInterval applies when Options.HeartbeatInterval is zero.
const DefaultHeartbeatInterval = 30 * time.Second

// Options configure a client.
type Options struct {
	Credential        string
	Dataset           string
	SendTsOut         bool
	UpgradePolicy     dbn.UpgradePolicy
	HeartbeatInterval time.Duration
	SessionID         string
}

// EventKind tells what an Event carries.
type EventKind int

const (
	EventRecord EventKind = iota
	EventMetadata
	EventError
)

// Event is handed to a Handler. Record is only valid during the call.
type Event struct {
	Kind     EventKind
	RType    dbn.RType
	Record   []byte
	Metadata metadata.Metadata
	Err      error
}

// Handler receives events on the feed goroutine. Returning false stops the
// feed.
type Handler func(Event) bool

// GatewayError is an error message published by the upstream gateway.
type GatewayError struct {
	Dataset string
	Message string
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("gateway error on %s: %s", e.Dataset, e.Message)
}

type incoming struct {
	dataset string
	msg     *message.Message
	isError bool
}

// Client streams one session's records.
type Client struct {
	opts   Options
	tr     transport.Transport
	caps   transport.Capabilities
	logger logging.ServiceLogger

	mu       sync.Mutex
	subs     []Subscription
	attached map[string]bool
	runCtx   context.Context
	cancel   context.CancelFunc
	in       chan incoming
	done     chan struct{}
	readers  sync.WaitGroup
	started  bool
	closed   bool
}

// New wraps an already built transport.
func New(tr transport.Transport, caps transport.Capabilities, opts Options, logger logging.ServiceLogger) *Client {
	if logger == nil {
		logger = logging.Nop()
	}
	if opts.HeartbeatInterval == 0 {
		opts.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if provider, ok := tr.Subscriber.(transport.CapabilitiesProvider); ok {
		caps = provider.Capabilities()
	}
	if !caps.SupportsOrdering {
		logger.Info("Transport does not guarantee record order", logging.LogFields{"transport": caps.Name})
	}
	return &Client{
		opts:     opts,
		tr:       tr,
		caps:     caps,
		logger:   logger.With(logging.LogFields{"session_id": opts.SessionID}),
		attached: make(map[string]bool),
	}
}

// Dial builds the transport selected by cfg and wraps it.
func Dial(ctx context.Context, cfg transport.Config, opts Options, logger logging.ServiceLogger) (*Client, error) {
	if logger == nil {
		logger = logging.Nop()
	}
	tr, caps, err := transport.Dial(ctx, cfg, logging.NewWatermillAdapter(logger))
	if err != nil {
		return nil, fmt.Errorf("build %s transport: %w", cfg.GetDriver(), err)
	}
	return New(tr, caps, opts, logger), nil
}

// Capabilities returns the capabilities of the underlying transport.
func (c *Client) Capabilities() transport.Capabilities {
	return c.caps
}

// Subscribe sends a subscription request. Once the client is streaming, a
// dataset not seen before is attached to the running feed.
func (c *Client) Subscribe(ctx context.Context, sub Subscription) error {
	if err := sub.Validate(); err != nil {
		return err
	}
	payload, err := EncodeSubscribe(c.opts.SessionID, c.opts, sub)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return lberrors.ErrFeedClosed
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.Metadata.Set(HeaderSessionID, c.opts.SessionID)
	msg.Metadata.Set(HeaderCredential, c.opts.Credential)
	msg.SetContext(ctx)
	if err := c.tr.Publisher.Publish(ControlTopic(sub.Dataset), msg); err != nil {
		return fmt.Errorf("publish subscription for %s: %w", sub.Dataset, err)
	}

	if c.started && c.runCtx.Err() == nil && !c.attached[sub.Dataset] {
		if err := c.attachLocked(sub.Dataset); err != nil {
			return err
		}
	}
	c.subs = append(c.subs, sub.Clone())
	c.logger.Debug("Subscribed", logging.LogFields{
		"dataset": sub.Dataset,
		"schema":  sub.Schema.String(),
		"symbols": len(sub.Symbols),
	})
	return nil
}

// Subscriptions returns a copy of the requests sent so far.
func (c *Client) Subscriptions() []Subscription {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Subscription, len(c.subs))
	for i, s := range c.subs {
		out[i] = s.Clone()
	}
	return out
}

// Start launches the feed goroutine and returns. The first event is always
// the session metadata.
func (c *Client) Start(ctx context.Context, handler Handler) error {
	if handler == nil {
		return lberrors.InvalidArgument("handler", "cannot be nil")
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	switch {
	case c.closed:
		return lberrors.ErrFeedClosed
	case c.started:
		return lberrors.ErrAlreadyStarted
	case len(c.subs) == 0:
		return lberrors.ErrNoSubscriptions
	}

	c.runCtx, c.cancel = context.WithCancel(context.WithoutCancel(ctx))
	c.in = make(chan incoming)
	for _, sub := range c.subs {
		if c.attached[sub.Dataset] {
			continue
		}
		if err := c.attachLocked(sub.Dataset); err != nil {
			c.cancel()
			c.readers.Wait()
			c.attached = make(map[string]bool)
			return err
		}
	}
	if starter, ok := c.tr.Subscriber.(transport.Starter); ok {
		starter.Start()
	}

	c.started = true
	c.done = make(chan struct{})
	go c.run(c.runCtx, c.cancel, c.in, c.done, c.metadataLocked(), handler)
	c.logger.Info("Feed started", logging.LogFields{"transport": c.caps.Name, "datasets": len(c.attached)})
	return nil
}

func (c *Client) attachLocked(dataset string) error {
	records, err := c.tr.Subscriber.Subscribe(c.runCtx, RecordsTopic(dataset))
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", RecordsTopic(dataset), err)
	}
	gatewayErrors, err := c.tr.Subscriber.Subscribe(c.runCtx, ErrorsTopic(dataset))
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", ErrorsTopic(dataset), err)
	}
	c.attached[dataset] = true
	c.readers.Add(2)
	go c.forward(c.runCtx, dataset, records, false)
	go c.forward(c.runCtx, dataset, gatewayErrors, true)
	return nil
}

func (c *Client) forward(ctx context.Context, dataset string, msgs <-chan *message.Message, isError bool) {
	defer c.readers.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-msgs:
			if !ok {
				return
			}
			select {
			case c.in <- incoming{dataset: dataset, msg: msg, isError: isError}:
			case <-ctx.Done():
				msg.Nack()
				return
			}
		}
	}
}

func (c *Client) run(ctx context.Context, cancel context.CancelFunc, in <-chan incoming, done chan struct{}, md metadata.Metadata, handler Handler) {
	defer func() {
		c.mu.Lock()
		cancel()
		c.mu.Unlock()
		c.readers.Wait()
		close(done)
		c.logger.Info("Feed stopped", nil)
	}()

	if !handler(Event{Kind: EventMetadata, Metadata: md}) {
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case item := <-in:
			if !c.handle(item, handler) {
				return
			}
		}
	}
}

func (c *Client) handle(item incoming, handler Handler) bool {
	defer item.msg.Ack()

	if item.isError {
		return handler(Event{
			Kind: EventError,
			Err:  &GatewayError{Dataset: item.dataset, Message: string(item.msg.Payload)},
		})
	}

	hdr, err := dbn.ParseHeader(item.msg.Payload)
	if err != nil {
		c.logger.Error("Dropping malformed record", err, logging.LogFields{"uuid": item.msg.UUID})
		return true
	}
	rtype := hdr.RType
	if tagged, ok := HeadersOf(item.msg).RType(); ok && tagged != rtype {
		c.logger.Debug("Record rtype header disagrees with payload", logging.LogFields{
			"header":  int(tagged),
			"payload": int(rtype),
		})
	}
	return handler(Event{Kind: EventRecord, RType: rtype, Record: item.msg.Payload[:hdr.Size()]})
}

// Stop cancels the feed without waiting.
func (c *Client) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		c.cancel()
	}
}

// Done is closed once the feed goroutine and its readers have exited. It is
// already closed for a client that never started.
func (c *Client) Done() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.done == nil {
		closed := make(chan struct{})
		close(closed)
		return closed
	}
	return c.done
}

// Streaming reports whether the feed goroutine is running.
func (c *Client) Streaming() bool {
	c.mu.Lock()
	done := c.done
	c.mu.Unlock()
	if done == nil {
		return false
	}
	select {
	case <-done:
		return false
	default:
		return true
	}
}

// Connected reports whether the transport is open.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.closed
}

// Close stops the feed, waits up to timeout for it to exit and closes the
// transport. A zero timeout waits indefinitely.
func (c *Client) Close(timeout time.Duration) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	if c.cancel != nil {
		c.cancel()
	}
	done := c.done
	c.mu.Unlock()

	var waitErr error
	if done != nil {
		if timeout <= 0 {
			<-done
		} else {
			timer := time.NewTimer(timeout)
			defer timer.Stop()
			select {
			case <-done:
			case <-timer.C:
				waitErr = errors.New("feed did not stop before close timeout")
			}
		}
	}
	return errors.Join(waitErr, c.tr.Close())
}

func (c *Client) metadataLocked() metadata.Metadata {
	first := c.subs[0]
	md := metadata.Metadata{
		Version:  metadata.Version,
		Dataset:  first.Dataset,
		STypeOut: dbn.STypeInstrumentID,
		TsOut:    c.opts.SendTsOut,
	}

	sameSchema, sameSType := true, true
	seen := make(map[string]bool)
	var start *uint64
	for _, sub := range c.subs {
		sameSchema = sameSchema && sub.Schema == first.Schema
		sameSType = sameSType && sub.STypeIn == first.STypeIn
		for _, s := range sub.Symbols {
			if !seen[s] {
				seen[s] = true
				md.Symbols = append(md.Symbols, s)
			}
		}
		if sub.Start != nil && (start == nil || *sub.Start < *start) {
			v := *sub.Start
			start = &v
		}
	}
	if sameSchema {
		schema := first.Schema
		md.Schema = &schema
	}
	if sameSType {
		stype := first.STypeIn
		md.STypeIn = &stype
	}
	if start != nil {
		md.Start = *start
	} else {
		md.Start = uint64(time.Now().UnixNano())
	}
	sort.Strings(md.Symbols)
	return md
}
