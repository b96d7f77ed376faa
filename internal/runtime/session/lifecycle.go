package session

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	lberrors "github.com/drblury/livebridge/internal/runtime/errors"
	"github.com/drblury/livebridge/internal/runtime/logging"
)

// runState belongs to one Start. quit releases a producer blocked on a full
// queue; done, when set, closes once the consumer has exited.
type runState struct {
	quit chan struct{}
	once sync.Once
	done chan struct{}
}

func newRunState(withConsumer bool) *runState {
	r := &runState{quit: make(chan struct{})}
	if withConsumer {
		r.done = make(chan struct{})
	}
	return r
}

func (r *runState) signal() {
	r.once.Do(func() { close(r.quit) })
}

type lifecycle struct {
	run     atomic.Pointer[runState]
	startMu sync.Mutex
}

// signalStop clears the running flag and cancels the feed without waiting.
func (c *core) signalStop(reason string) {
	c.running.Store(false)
	if r := c.run.Load(); r != nil {
		r.signal()
	}
	if client := c.currentClient(); client != nil {
		client.Stop()
	}
	if c.state.CompareAndSwap(int32(StateStarted), int32(StateStopped)) {
		c.metrics.sessionStopped(reason)
		c.logger.Debug("Session stopped", nil)
	}
}

// waitStopped waits for the consumer and the feed goroutine.
func (c *core) waitStopped(timeout time.Duration) bool {
	var consumer <-chan struct{}
	if r := c.run.Load(); r != nil && r.done != nil {
		consumer = r.done
	}
	var feedDone <-chan struct{}
	if client := c.currentClient(); client != nil {
		feedDone = client.Done()
	}
	return waitFor(timeout, consumer, feedDone)
}

// StopAndWait signals stop and waits up to timeout, or the configured stop
// timeout when timeout is not positive. It reports whether everything
// exited in time.
func (c *core) StopAndWait(timeout time.Duration) bool {
	if timeout <= 0 {
		timeout = c.opts.StopTimeout
	}
	c.signalStop("stop")
	return c.waitStopped(timeout)
}

// retire marks the session destroyed and closes its client. No client can
// be built afterwards.
func (c *core) retire() {
	c.clientGate.Lock()
	holder := c.client.Swap(nil)
	c.state.Store(int32(StateDestroyed))
	c.clientGate.Unlock()
	if holder == nil {
		return
	}
	if err := holder.client.Close(c.opts.DestroyTimeout); err != nil {
		c.logger.Error("Failed to close live client", err, nil)
	}
}

// rewind returns a stopped session to the state it had before Start.
func (c *core) rewind() {
	c.running.Store(false)
	c.run.Store(nil)
	c.mu.Lock()
	hasSubs := len(c.subs) > 0
	c.mu.Unlock()
	if hasSubs {
		c.state.Store(int32(StateConfigured))
	} else {
		c.state.Store(int32(StateCreated))
	}
}

// Reconnect stops the session and discards its client. Subscriptions are
// kept and sent again to the next client.
func (c *core) Reconnect(ctx context.Context) (err error) {
	_, span := c.startSpan(ctx, "session.Reconnect")
	defer func() { endSpan(span, err) }()

	c.startMu.Lock()
	defer c.startMu.Unlock()
	if c.destroyed() {
		return lberrors.ErrSessionDestroyed
	}

	if !c.StopAndWait(c.opts.StopTimeout) {
		c.logger.Info("Session goroutines still running at reconnect", nil)
	}
	c.discardClient(c.opts.StopTimeout)
	c.rewind()
	c.logger.Info("Session reset for reconnect", logging.LogFields{"state": c.State().String()})
	return nil
}
