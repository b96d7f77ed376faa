package abi

import (
	"context"
	"time"

	lberrors "github.com/drblury/livebridge/internal/runtime/errors"
	"github.com/drblury/livebridge/internal/runtime/handle"
	"github.com/drblury/livebridge/internal/runtime/session"
)

// LiveCreate creates a threaded session. It returns 0 and fills errBuf on
// failure.
func LiveCreate(credential string, errBuf []byte) uint64 {
	return LiveCreateEx(credential, "", false, 0, 0, errBuf)
}

// LiveCreateEx creates a threaded session with a default dataset. When a
// dataset is given the client is built right away. A heartbeat of 0 uses the
// default.
func LiveCreateEx(credential, dataset string, sendTsOut bool, upgradePolicy, heartbeatSecs int32, errBuf []byte) uint64 {
	return create(errBuf, handle.KindLive, func() (any, error) {
		opts, err := env().sessionOptions(credential, dataset, sendTsOut, upgradePolicy, heartbeatSecs)
		if err != nil {
			return nil, err
		}
		s, err := session.New(opts)
		if err != nil {
			return nil, err
		}
		if dataset != "" {
			if _, err := s.EnsureClientCreated(context.Background()); err != nil {
				s.Destroy()
				return nil, err
			}
		}
		return s, nil
	})
}

func live(h uint64) (*session.LiveSession, error) {
	return resolve[*session.LiveSession](h, handle.KindLive)
}

// LiveSubscribe subscribes to symbols on dataset. An empty dataset uses the
// session default.
func LiveSubscribe(h uint64, dataset, schema string, symbols []string, errBuf []byte) int32 {
	return liveSubscribe(h, session.SubscribeRequest{Dataset: dataset, Schema: schema, Symbols: symbols}, errBuf)
}

// LiveSubscribeFrom subscribes with a start time in nanoseconds since the
// epoch.
func LiveSubscribeFrom(h uint64, dataset, schema string, symbols []string, startNs int64, errBuf []byte) int32 {
	return liveSubscribe(h, session.SubscribeRequest{Dataset: dataset, Schema: schema, Symbols: symbols, Start: &startNs}, errBuf)
}

// LiveSubscribeWithReplay replays from the start of the available window.
func LiveSubscribeWithReplay(h uint64, dataset, schema string, symbols []string, errBuf []byte) int32 {
	start := int64(0)
	return liveSubscribe(h, session.SubscribeRequest{Dataset: dataset, Schema: schema, Symbols: symbols, Start: &start}, errBuf)
}

// LiveSubscribeWithSnapshot requests an initial snapshot.
func LiveSubscribeWithSnapshot(h uint64, dataset, schema string, symbols []string, errBuf []byte) int32 {
	return liveSubscribe(h, session.SubscribeRequest{Dataset: dataset, Schema: schema, Symbols: symbols, Snapshot: true}, errBuf)
}

func liveSubscribe(h uint64, req session.SubscribeRequest, errBuf []byte) int32 {
	return call(errBuf, func() error {
		s, err := live(h)
		if err != nil {
			return err
		}
		return s.Subscribe(context.Background(), req)
	})
}

// LiveStart installs the record and error callbacks and starts streaming.
// Once a session has started, further calls return StatusAlreadyStarted.
func LiveStart(h uint64, record RecordCallback, onError ErrorCallback, userData uintptr, errBuf []byte) int32 {
	return LiveStartEx(h, nil, record, onError, userData, errBuf)
}

// LiveStartEx is LiveStart with a metadata callback, fired once before the
// first record.
func LiveStartEx(h uint64, onMetadata MetadataCallback, record RecordCallback, onError ErrorCallback, userData uintptr, errBuf []byte) int32 {
	return call(errBuf, func() error {
		s, err := live(h)
		if err != nil {
			return err
		}
		return s.Start(context.Background(), session.Callbacks{
			Record:   record,
			Error:    onError,
			Metadata: onMetadata,
			Context:  userData,
		})
	})
}

// LiveStop signals the session to stop and returns at once.
func LiveStop(h uint64) {
	quiet(func() {
		if s, err := live(h); err == nil {
			s.Stop()
		}
	})
}

// LiveStopAndWait stops the session and waits up to timeoutMs (10 s when
// not positive). It returns 0 once stopped and 1 when work is still running.
func LiveStopAndWait(h uint64, timeoutMs int32, errBuf []byte) int32 {
	return call(errBuf, func() error {
		s, err := live(h)
		if err != nil {
			return err
		}
		if !s.StopAndWait(time.Duration(timeoutMs) * time.Millisecond) {
			return lberrors.ErrTimeout
		}
		return nil
	})
}

// LiveDestroy unregisters the handle and destroys the session. Later calls
// with the same handle fail validation.
func LiveDestroy(h uint64) {
	quiet(func() {
		s, err := take[*session.LiveSession](h, handle.KindLive)
		if err != nil {
			return
		}
		s.Destroy()
	})
}

// LiveReconnect stops the session and discards its client; subscriptions are
// replayed to the next one.
func LiveReconnect(h uint64, errBuf []byte) int32 {
	return call(errBuf, func() error {
		s, err := live(h)
		if err != nil {
			return err
		}
		return s.Reconnect(context.Background())
	})
}

// LiveResubscribe sends every tracked subscription again.
func LiveResubscribe(h uint64, errBuf []byte) int32 {
	return call(errBuf, func() error {
		s, err := live(h)
		if err != nil {
			return err
		}
		return s.Resubscribe(context.Background())
	})
}

// LiveConnectionState returns 0 disconnected, 2 connected or 3 streaming,
// and -1 for an invalid handle.
func LiveConnectionState(h uint64) (state int32) {
	state = StatusError
	quiet(func() {
		if s, err := live(h); err == nil {
			state = int32(s.ConnectionState())
		}
	})
	return state
}

// LiveSetLogLevel sets the session log level: 0 debug, 1 info, 2 warning,
// 3 error.
func LiveSetLogLevel(h uint64, level int32, errBuf []byte) int32 {
	return call(errBuf, func() error {
		s, err := live(h)
		if err != nil {
			return err
		}
		return s.SetLogLevel(level)
	})
}
