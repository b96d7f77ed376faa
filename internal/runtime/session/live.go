package session

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel/attribute"

	lberrors "github.com/drblury/livebridge/internal/runtime/errors"
	"github.com/drblury/livebridge/internal/runtime/logging"
)

// LiveSession delivers records to callbacks from a dedicated dispatcher
// goroutine.
type LiveSession struct {
	*core

	callbackMu sync.Mutex
	callbacks  Callbacks

	destroyOnce sync.Once
}

// New creates a session in the Created state. No connection is made until
// the first Subscribe.
func New(opts Options) (*LiveSession, error) {
	c, err := newCore(opts)
	if err != nil {
		return nil, err
	}
	return &LiveSession{core: c}, nil
}

// Start installs the callbacks and launches the feed and the dispatcher. It
// returns once both run.
func (s *LiveSession) Start(ctx context.Context, cb Callbacks) (err error) {
	if cb.Record == nil {
		return lberrors.ErrRecordCallbackRequired
	}
	ctx, span := s.startSpan(ctx, "session.Start", attribute.String("mode", "threaded"))
	defer func() { endSpan(span, err) }()

	s.startMu.Lock()
	defer s.startMu.Unlock()

	switch s.State() {
	case StateDestroyed:
		return lberrors.ErrSessionDestroyed
	case StateStarted, StateStopped:
		return lberrors.ErrAlreadyStarted
	}
	if len(s.Subscriptions()) == 0 {
		return lberrors.ErrNoSubscriptions
	}

	client, err := s.EnsureClientCreated(ctx)
	if err != nil {
		return err
	}

	s.callbackMu.Lock()
	s.callbacks = cb
	s.callbackMu.Unlock()

	d := newDispatcher(s, s.opts.DispatchBuffer)
	s.run.Store(d.runState)
	s.running.Store(true)
	if err := client.Start(ctx, d.produce); err != nil {
		s.running.Store(false)
		s.run.Store(nil)
		s.callbackMu.Lock()
		s.callbacks = Callbacks{}
		s.callbackMu.Unlock()
		return err
	}
	s.state.Store(int32(StateStarted))
	go d.run(client.Done())

	s.metrics.sessionStarted("threaded")
	s.logger.Info("Session started", logging.LogFields{"subscriptions": len(s.Subscriptions())})
	return nil
}

// Stop signals the feed and the dispatcher to stop and returns at once.
func (s *LiveSession) Stop() {
	s.signalStop("stop")
}

// Destroy stops the session, waits up to DestroyTimeout for its goroutines,
// releases the callbacks and closes the client. It does not wait for a
// callback that outlives the timeout. Safe to call repeatedly.
func (s *LiveSession) Destroy() {
	s.destroyOnce.Do(func() {
		_, span := s.startSpan(context.Background(), "session.Destroy")
		defer span.End()

		s.startMu.Lock()
		defer s.startMu.Unlock()
		s.signalStop("destroy")
		if s.waitStopped(s.opts.DestroyTimeout) {
			s.callbackMu.Lock()
			s.callbacks = Callbacks{}
			s.callbackMu.Unlock()
		} else if s.callbackMu.TryLock() {
			s.callbacks = Callbacks{}
			s.callbackMu.Unlock()
		} else {
			// A callback is still running. The dispatcher sees the cleared
			// running flag once it returns and calls no further user code.
			s.logger.Info("Callback still running at destroy; leaving it to finish", logging.LogFields{
				"timeout": s.opts.DestroyTimeout.String(),
			})
		}

		s.retire()
		s.logger.Debug("Session destroyed", nil)
	})
}
