package session

import (
	"sync"
	"time"

	"github.com/drblury/livebridge/internal/runtime/dbn"
	lberrors "github.com/drblury/livebridge/internal/runtime/errors"
	"github.com/drblury/livebridge/internal/runtime/feed"
	"github.com/drblury/livebridge/internal/runtime/logging"
	"github.com/drblury/livebridge/internal/runtime/metadata"
)

// RecordCallback receives one record. rec is borrowed: it is reused once the
// callback returns.
type RecordCallback func(rec []byte, rtype dbn.RType, ctx uintptr) error

// ErrorCallback receives failures that happen after Start returned.
type ErrorCallback func(message string, code int32, ctx uintptr)

// MetadataCallback receives the session metadata as JSON, at most once per
// start.
type MetadataCallback func(payload []byte, ctx uintptr) error

// Callbacks are installed by Start. Record is required.
type Callbacks struct {
	Record   RecordCallback
	Error    ErrorCallback
	Metadata MetadataCallback
	Context  uintptr
}

var recordPool = sync.Pool{
	New: func() any {
		b := make([]byte, 0, 512)
		return &b
	},
}

type dispatchEvent struct {
	kind  feed.EventKind
	rtype dbn.RType
	buf   *[]byte
	md    metadata.Metadata
	err   error
}

func (e dispatchEvent) release() {
	if e.buf != nil {
		recordPool.Put(e.buf)
	}
}

// dispatcher moves events from the feed goroutine to one consumer goroutine
// over a bounded channel. The consumer is the only goroutine that calls
// caller code.
type dispatcher struct {
	s      *LiveSession
	events chan dispatchEvent
	*runState

	metadataSent bool
}

func newDispatcher(s *LiveSession, buffer int) *dispatcher {
	return &dispatcher{
		s:        s,
		events:   make(chan dispatchEvent, buffer),
		runState: newRunState(true),
	}
}

// produce runs on the feed goroutine.
func (d *dispatcher) produce(ev feed.Event) bool {
	if !d.s.running.Load() {
		return false
	}

	e := dispatchEvent{kind: ev.Kind, rtype: ev.RType, md: ev.Metadata, err: ev.Err}
	if ev.Kind == feed.EventRecord {
		buf := recordPool.Get().(*[]byte)
		*buf = append((*buf)[:0], ev.Record...)
		e.buf = buf
	}

	select {
	case d.events <- e:
		return true
	case <-d.quit:
		e.release()
		return false
	}
}

func (d *dispatcher) run(feedDone <-chan struct{}) {
	defer close(d.done)
	defer d.drain()

	for {
		select {
		case e := <-d.events:
			if !d.dispatch(e) {
				return
			}
		case <-d.quit:
			return
		case <-feedDone:
			// deliver what the feed queued before it exited
			for {
				select {
				case e := <-d.events:
					if !d.dispatch(e) {
						return
					}
				default:
					return
				}
			}
		}
	}
}

func (d *dispatcher) drain() {
	for {
		select {
		case e := <-d.events:
			e.release()
		default:
			return
		}
	}
}

// dispatch returns false once the session must stop.
func (d *dispatcher) dispatch(e dispatchEvent) bool {
	defer e.release()
	s := d.s
	if !s.running.Load() {
		s.signalStop("stop")
		return false
	}

	s.callbackMu.Lock()
	defer s.callbackMu.Unlock()
	cb := s.callbacks

	switch e.kind {
	case feed.EventRecord:
		started := time.Now()
		err := invokeRecord(cb, *e.buf, e.rtype)
		if err != nil {
			d.fail(cb, err)
			return false
		}
		s.metrics.recordDispatched(e.rtype, time.Since(started))

	case feed.EventMetadata:
		if d.metadataSent {
			return true
		}
		d.metadataSent = true
		if cb.Metadata == nil {
			return true
		}
		started := time.Now()
		if err := invokeMetadata(cb, e.md); err != nil {
			d.report(cb, err)
			return true
		}
		s.metrics.metadataDelivered(time.Since(started))

	case feed.EventError:
		d.report(cb, &lberrors.CallbackError{Code: lberrors.CodeClientError, Err: e.err})
	}
	return true
}

// fail reports a record callback failure and stops the session. Called with
// the callback lock held.
func (d *dispatcher) fail(cb Callbacks, err error) {
	d.s.running.Store(false)
	d.report(cb, err)
	d.s.logger.Error("Record callback failed; session stopped", err, nil)
	d.s.signalStop("callback_failure")
}

func (d *dispatcher) report(cb Callbacks, err error) {
	code := lberrors.CodeClientError
	if cbErr, ok := err.(*lberrors.CallbackError); ok {
		code = cbErr.Code
	}
	d.s.metrics.callbackFailed(code)
	if cb.Error == nil {
		d.s.logger.Error("Unreported session error", err, logging.LogFields{"code": code})
		return
	}
	defer func() {
		if r := recover(); r != nil {
			d.s.logger.Error("Error callback panicked", lberrors.FromPanic(r), logging.LogFields{"code": code})
		}
	}()
	cb.Error(err.Error(), code, cb.Context)
}

func invokeRecord(cb Callbacks, rec []byte, rtype dbn.RType) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &lberrors.CallbackError{Code: lberrors.CodeRecordCallbackPanicked, Err: lberrors.FromPanic(r)}
		}
	}()
	if cbErr := cb.Record(rec, rtype, cb.Context); cbErr != nil {
		return &lberrors.CallbackError{Code: lberrors.CodeRecordCallbackFailed, Err: cbErr}
	}
	return nil
}

func invokeMetadata(cb Callbacks, md metadata.Metadata) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &lberrors.CallbackError{Code: lberrors.CodeMetadataCallbackPanicked, Err: lberrors.FromPanic(r)}
		}
	}()
	payload, err := metadata.Marshal(md)
	if err != nil {
		return &lberrors.CallbackError{Code: lberrors.CodeMetadataCallbackFailed, Err: err}
	}
	if cbErr := cb.Metadata(payload, cb.Context); cbErr != nil {
		return &lberrors.CallbackError{Code: lberrors.CodeMetadataCallbackFailed, Err: cbErr}
	}
	return nil
}
