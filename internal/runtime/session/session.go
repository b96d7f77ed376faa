// Package session implements the session state machine behind the flat
// boundary: lazy exactly-once client construction, tracked subscriptions,
// bounded stop and destroy, and the callback dispatcher that isolates
// caller code from the feed goroutine.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/drblury/livebridge/internal/runtime/dbn"
	lberrors "github.com/drblury/livebridge/internal/runtime/errors"
	"github.com/drblury/livebridge/internal/runtime/feed"
	"github.com/drblury/livebridge/internal/runtime/ids"
	"github.com/drblury/livebridge/internal/runtime/logging"
	"github.com/drblury/livebridge/internal/runtime/validate"
)

const (
	DefaultStopTimeout    = 10 * time.Second
	DefaultDestroyTimeout = 5 * time.Second
	DefaultDispatchBuffer = 256
)

// State is the lifecycle position of a session.
type State int32

const (
	StateCreated State = iota
	StateConfigured
	StateStarted
	StateStopped
	StateDestroyed
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateConfigured:
		return "configured"
	case StateStarted:
		return "started"
	case StateStopped:
		return "stopped"
	case StateDestroyed:
		return "destroyed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// ConnectionState is reported by ConnectionState. The value 1 is reserved.
type ConnectionState int32

const (
	Disconnected ConnectionState = 0
	Connected    ConnectionState = 2
	Streaming    ConnectionState = 3
)

// Options configure a session.
type Options struct {
	Credential        string
	Dataset           string
	SendTsOut         bool
	UpgradePolicy     dbn.UpgradePolicy
	HeartbeatInterval time.Duration

	StopTimeout    time.Duration
	DestroyTimeout time.Duration
	DispatchBuffer int

	// NewClient builds the live client. Required.
	NewClient ClientFactory
	// Logger receives session logs, filtered by the session's level. When
	// nil, logs go to stderr.
	Logger  logging.ServiceLogger
	Metrics *Metrics
}

func (o Options) withDefaults() Options {
	if o.StopTimeout <= 0 {
		o.StopTimeout = DefaultStopTimeout
	}
	if o.DestroyTimeout <= 0 {
		o.DestroyTimeout = DefaultDestroyTimeout
	}
	if o.DispatchBuffer <= 0 {
		o.DispatchBuffer = DefaultDispatchBuffer
	}
	if o.HeartbeatInterval <= 0 {
		o.HeartbeatInterval = feed.DefaultHeartbeatInterval
	}
	return o
}

// SubscribeRequest is one subscription. STypeIn defaults to raw_symbol and
// Dataset to the session's default dataset.
type SubscribeRequest struct {
	Dataset  string
	Schema   string
	STypeIn  string
	Symbols  []string
	Start    *int64
	Snapshot bool
}

type clientHolder struct {
	client Client
}

// core is the part of a session shared by the threaded and blocking
// variants.
type core struct {
	id      string
	opts    Options
	level   *slog.LevelVar
	logger  logging.ServiceLogger
	metrics *Metrics

	state   atomic.Int32
	running atomic.Bool

	clientGate sync.Mutex
	client     atomic.Pointer[clientHolder]

	mu   sync.Mutex
	subs []feed.Subscription

	lifecycle
}

func newCore(opts Options) (*core, error) {
	if opts.Credential == "" {
		return nil, lberrors.ErrCredentialRequired
	}
	if opts.NewClient == nil {
		return nil, lberrors.InvalidArgument("client factory", "cannot be nil")
	}
	if opts.UpgradePolicy > dbn.UpgradeToV3 {
		return nil, lberrors.InvalidArgument("upgrade_policy", "must be 0 or 1")
	}

	opts = opts.withDefaults()
	c := &core{
		id:      ids.SessionID(),
		opts:    opts,
		level:   new(slog.LevelVar),
		metrics: opts.Metrics,
	}
	c.level.Set(logging.LevelInfo.Slog())
	base := opts.Logger
	if base == nil {
		base = logging.NewStderrLogger(c.level)
	}
	c.logger = logging.Filter(base, c.level).With(logging.LogFields{"session_id": c.id})
	return c, nil
}

// ID returns the session id.
func (c *core) ID() string { return c.id }

// State returns the lifecycle state.
func (c *core) State() State { return State(c.state.Load()) }

// Running reports the running flag.
func (c *core) Running() bool { return c.running.Load() }

func (c *core) destroyed() bool { return c.State() == StateDestroyed }

func (c *core) feedOptions() feed.Options {
	return feed.Options{
		Credential:        c.opts.Credential,
		Dataset:           c.opts.Dataset,
		SendTsOut:         c.opts.SendTsOut,
		UpgradePolicy:     c.opts.UpgradePolicy,
		HeartbeatInterval: c.opts.HeartbeatInterval,
		SessionID:         c.id,
	}
}

func (c *core) currentClient() Client {
	if h := c.client.Load(); h != nil {
		return h.client
	}
	return nil
}

// EnsureClientCreated builds the client exactly once, however many
// goroutines race to it. A failed construction may be retried.
func (c *core) EnsureClientCreated(ctx context.Context) (Client, error) {
	client, _, err := c.ensureClient(ctx)
	return client, err
}

// ensureClient reports whether this call built the client. A client built
// after Reconnect is sent every tracked subscription before it is published.
func (c *core) ensureClient(ctx context.Context) (Client, bool, error) {
	if client := c.currentClient(); client != nil {
		return client, false, nil
	}

	c.clientGate.Lock()
	defer c.clientGate.Unlock()
	if client := c.currentClient(); client != nil {
		return client, false, nil
	}
	if c.destroyed() {
		return nil, false, lberrors.ErrSessionDestroyed
	}

	client, err := c.opts.NewClient(ctx, c.feedOptions())
	if err != nil {
		c.logger.Error("Failed to create live client", err, nil)
		return nil, false, err
	}
	for _, sub := range c.Subscriptions() {
		if err := client.Subscribe(ctx, sub); err != nil {
			_ = client.Close(c.opts.DestroyTimeout)
			return nil, false, fmt.Errorf("replay subscription %s: %w", sub.Dataset, err)
		}
	}
	c.client.Store(&clientHolder{client: client})
	c.logger.Debug("Live client created", nil)
	return client, true, nil
}

// Subscribe validates req, sends it and tracks it for Resubscribe.
func (c *core) Subscribe(ctx context.Context, req SubscribeRequest) (err error) {
	if req.Dataset == "" {
		req.Dataset = c.opts.Dataset
	}
	ctx, span := c.startSpan(ctx, "session.Subscribe",
		attribute.String("dataset", req.Dataset),
		attribute.String("schema", req.Schema),
		attribute.Int("symbols", len(req.Symbols)),
	)
	defer func() { endSpan(span, err) }()

	if c.destroyed() {
		return lberrors.ErrSessionDestroyed
	}
	sub, err := buildSubscription(req)
	if err != nil {
		return err
	}

	client, err := c.EnsureClientCreated(ctx)
	if err != nil {
		return err
	}
	if err := client.Subscribe(ctx, sub); err != nil {
		return err
	}

	c.mu.Lock()
	c.subs = append(c.subs, sub.Clone())
	c.mu.Unlock()
	c.state.CompareAndSwap(int32(StateCreated), int32(StateConfigured))
	return nil
}

// SubscribeWithReplay subscribes from the start of the replay window.
func (c *core) SubscribeWithReplay(ctx context.Context, dataset, schema string, symbols []string) error {
	start := int64(0)
	return c.Subscribe(ctx, SubscribeRequest{Dataset: dataset, Schema: schema, Symbols: symbols, Start: &start})
}

// SubscribeWithSnapshot subscribes and asks for an initial snapshot.
func (c *core) SubscribeWithSnapshot(ctx context.Context, dataset, schema string, symbols []string) error {
	return c.Subscribe(ctx, SubscribeRequest{Dataset: dataset, Schema: schema, Symbols: symbols, Snapshot: true})
}

func buildSubscription(req SubscribeRequest) (feed.Subscription, error) {
	if err := validate.NonEmpty("dataset", req.Dataset); err != nil {
		return feed.Subscription{}, err
	}
	schema, err := validate.Schema(req.Schema)
	if err != nil {
		return feed.Subscription{}, err
	}
	stype := dbn.STypeRawSymbol
	if req.STypeIn != "" {
		if stype, err = dbn.ParseSType(req.STypeIn); err != nil {
			return feed.Subscription{}, lberrors.InvalidArgument("stype_in", "%q is not a known symbology type", req.STypeIn)
		}
	}
	if err := validate.Symbols(req.Symbols); err != nil {
		return feed.Subscription{}, err
	}

	sub := feed.Subscription{
		Dataset:  req.Dataset,
		Schema:   schema,
		STypeIn:  stype,
		Symbols:  append([]string(nil), req.Symbols...),
		Snapshot: req.Snapshot,
	}
	if req.Start != nil {
		if err := validate.Timestamp("start", *req.Start); err != nil {
			return feed.Subscription{}, err
		}
		start := uint64(*req.Start)
		sub.Start = &start
	}
	if err := sub.Validate(); err != nil {
		return feed.Subscription{}, err
	}
	return sub, nil
}

// Subscriptions returns a copy of the tracked subscriptions.
func (c *core) Subscriptions() []feed.Subscription {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]feed.Subscription, len(c.subs))
	for i, s := range c.subs {
		out[i] = s.Clone()
	}
	return out
}

// Resubscribe sends every tracked subscription to the current client,
// creating it if needed.
func (c *core) Resubscribe(ctx context.Context) error {
	if c.destroyed() {
		return lberrors.ErrSessionDestroyed
	}
	subs := c.Subscriptions()
	if len(subs) == 0 {
		return lberrors.ErrNoSubscriptions
	}
	client, created, err := c.ensureClient(ctx)
	if err != nil {
		return err
	}
	if created {
		return nil
	}
	for _, sub := range subs {
		if err := client.Subscribe(ctx, sub); err != nil {
			return fmt.Errorf("resubscribe %s: %w", sub.Dataset, err)
		}
	}
	return nil
}

// ConnectionState reports whether a client exists and whether it streams.
func (c *core) ConnectionState() ConnectionState {
	client := c.currentClient()
	switch {
	case client == nil || !client.Connected():
		return Disconnected
	case c.running.Load() && client.Streaming():
		return Streaming
	default:
		return Connected
	}
}

// SetLogLevel changes the session's log level: 0 debug to 3 error.
func (c *core) SetLogLevel(level int32) error {
	lv, err := logging.ParseLevel(level)
	if err != nil {
		return lberrors.InvalidArgument("level", "must be between 0 and 3, got %d", level)
	}
	c.level.Set(lv.Slog())
	return nil
}

// LogLevel returns the current log level.
func (c *core) LogLevel() logging.Level {
	switch l := c.level.Level(); {
	case l <= slog.LevelDebug:
		return logging.LevelDebug
	case l <= slog.LevelInfo:
		return logging.LevelInfo
	case l <= slog.LevelWarn:
		return logging.LevelWarning
	default:
		return logging.LevelError
	}
}

// discardClient closes and forgets the client. The next use creates a new
// one.
func (c *core) discardClient(timeout time.Duration) {
	c.clientGate.Lock()
	holder := c.client.Swap(nil)
	c.clientGate.Unlock()
	if holder == nil {
		return
	}
	if err := holder.client.Close(timeout); err != nil {
		c.logger.Error("Failed to close live client", err, nil)
	}
}

// waitFor blocks until every channel is closed or timeout passes.
func waitFor(timeout time.Duration, chans ...<-chan struct{}) bool {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for _, ch := range chans {
		if ch == nil {
			continue
		}
		select {
		case <-ch:
		case <-timer.C:
			return false
		}
	}
	return true
}
