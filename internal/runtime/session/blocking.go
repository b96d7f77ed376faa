package session

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/drblury/livebridge/internal/runtime/dbn"
	lberrors "github.com/drblury/livebridge/internal/runtime/errors"
	"github.com/drblury/livebridge/internal/runtime/feed"
	"github.com/drblury/livebridge/internal/runtime/logging"
	"github.com/drblury/livebridge/internal/runtime/metadata"
)

// Record is a record owned by the caller.
type Record struct {
	RType dbn.RType
	Data  []byte
}

// BlockingSession hands records to the caller through NextRecord instead of
// callbacks.
type BlockingSession struct {
	*core

	queueMu sync.Mutex
	queue   chan feed.Event

	destroyOnce sync.Once
}

// NewBlocking creates a blocking session in the Created state.
func NewBlocking(opts Options) (*BlockingSession, error) {
	c, err := newCore(opts)
	if err != nil {
		return nil, err
	}
	return &BlockingSession{core: c}, nil
}

// Start launches the feed and waits for the session metadata, which it
// returns as JSON.
func (b *BlockingSession) Start(ctx context.Context) (payload []byte, err error) {
	ctx, span := b.startSpan(ctx, "session.Start", attribute.String("mode", "blocking"))
	defer func() { endSpan(span, err) }()

	b.startMu.Lock()
	defer b.startMu.Unlock()

	switch b.State() {
	case StateDestroyed:
		return nil, lberrors.ErrSessionDestroyed
	case StateStarted, StateStopped:
		return nil, lberrors.ErrAlreadyStarted
	}
	if len(b.Subscriptions()) == 0 {
		return nil, lberrors.ErrNoSubscriptions
	}

	client, err := b.EnsureClientCreated(ctx)
	if err != nil {
		return nil, err
	}

	queue := make(chan feed.Event, b.opts.DispatchBuffer)
	run := newRunState(false)
	b.queueMu.Lock()
	b.queue = queue
	b.queueMu.Unlock()
	b.run.Store(run)
	b.running.Store(true)

	produce := func(ev feed.Event) bool {
		if !b.running.Load() {
			return false
		}
		if ev.Kind == feed.EventRecord {
			ev.Record = append([]byte(nil), ev.Record...)
		}
		select {
		case queue <- ev:
			return true
		case <-run.quit:
			return false
		}
	}
	if err := client.Start(ctx, produce); err != nil {
		b.running.Store(false)
		b.run.Store(nil)
		return nil, err
	}
	b.state.Store(int32(StateStarted))
	b.metrics.sessionStarted("blocking")

	var md metadata.Metadata
	select {
	case ev := <-queue:
		md = ev.Metadata
	case <-client.Done():
		return nil, lberrors.ErrFeedClosed
	case <-time.After(b.opts.StopTimeout):
		b.signalStop("start_timeout")
		return nil, lberrors.ErrTimeout
	}
	payload, err = metadata.Marshal(md)
	if err != nil {
		return nil, err
	}
	b.logger.Info("Blocking session started", logging.LogFields{"subscriptions": len(b.Subscriptions())})
	return payload, nil
}

// NextRecord waits up to timeout for the next record. A negative timeout
// waits forever and zero only polls. It returns ErrTimeout when nothing
// arrived and ErrFeedClosed once the stream has ended. Gateway errors are
// returned as errors.
func (b *BlockingSession) NextRecord(timeout time.Duration) (Record, error) {
	b.queueMu.Lock()
	queue := b.queue
	b.queueMu.Unlock()
	if queue == nil {
		return Record{}, lberrors.ErrNotStarted
	}
	client := b.currentClient()
	if client == nil {
		return Record{}, lberrors.ErrFeedClosed
	}
	feedDone := client.Done()

	var expired <-chan time.Time
	if timeout >= 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	for {
		var ev feed.Event
		select {
		case ev = <-queue:
		default:
			select {
			case ev = <-queue:
			case <-feedDone:
				select {
				case ev = <-queue:
				default:
					return Record{}, lberrors.ErrFeedClosed
				}
			case <-expired:
				return Record{}, lberrors.ErrTimeout
			}
		}

		switch ev.Kind {
		case feed.EventRecord:
			b.metrics.recordDispatched(ev.RType, 0)
			return Record{RType: ev.RType, Data: ev.Record}, nil
		case feed.EventError:
			return Record{}, ev.Err
		}
	}
}

// Stop signals the feed to stop and returns at once.
func (b *BlockingSession) Stop() {
	b.signalStop("stop")
}

// Destroy stops the session and closes its client. Safe to call repeatedly.
func (b *BlockingSession) Destroy() {
	b.destroyOnce.Do(func() {
		b.startMu.Lock()
		defer b.startMu.Unlock()

		b.signalStop("destroy")
		if !b.waitStopped(b.opts.DestroyTimeout) {
			b.logger.Info("Feed still running at destroy", nil)
		}
		b.retire()
	})
}
