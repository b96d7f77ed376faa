package abi

import (
	"context"
	"fmt"
	"time"

	lberrors "github.com/drblury/livebridge/internal/runtime/errors"
	"github.com/drblury/livebridge/internal/runtime/handle"
	"github.com/drblury/livebridge/internal/runtime/session"
)

// LiveBlockingCreateEx creates a pull session. It returns 0 and fills errBuf
// on failure.
func LiveBlockingCreateEx(credential, dataset string, sendTsOut bool, upgradePolicy, heartbeatSecs int32, errBuf []byte) uint64 {
	return create(errBuf, handle.KindLiveBlocking, func() (any, error) {
		opts, err := env().sessionOptions(credential, dataset, sendTsOut, upgradePolicy, heartbeatSecs)
		if err != nil {
			return nil, err
		}
		return session.NewBlocking(opts)
	})
}

func blocking(h uint64) (*session.BlockingSession, error) {
	return resolve[*session.BlockingSession](h, handle.KindLiveBlocking)
}

// LiveBlockingSubscribe subscribes a pull session.
func LiveBlockingSubscribe(h uint64, dataset, schema string, symbols []string, errBuf []byte) int32 {
	return blockingSubscribe(h, session.SubscribeRequest{Dataset: dataset, Schema: schema, Symbols: symbols}, errBuf)
}

// LiveBlockingSubscribeWithReplay replays from the start of the available
// window.
func LiveBlockingSubscribeWithReplay(h uint64, dataset, schema string, symbols []string, errBuf []byte) int32 {
	start := int64(0)
	return blockingSubscribe(h, session.SubscribeRequest{Dataset: dataset, Schema: schema, Symbols: symbols, Start: &start}, errBuf)
}

// LiveBlockingSubscribeWithSnapshot requests an initial snapshot.
func LiveBlockingSubscribeWithSnapshot(h uint64, dataset, schema string, symbols []string, errBuf []byte) int32 {
	return blockingSubscribe(h, session.SubscribeRequest{Dataset: dataset, Schema: schema, Symbols: symbols, Snapshot: true}, errBuf)
}

func blockingSubscribe(h uint64, req session.SubscribeRequest, errBuf []byte) int32 {
	return call(errBuf, func() error {
		b, err := blocking(h)
		if err != nil {
			return err
		}
		return b.Subscribe(context.Background(), req)
	})
}

// LiveBlockingStart starts the session and writes the metadata JSON into
// metadataBuf, NUL-terminated. outLen receives the JSON length. A nil
// metadataBuf skips the copy.
func LiveBlockingStart(h uint64, metadataBuf []byte, outLen *int, errBuf []byte) int32 {
	return call(errBuf, func() error {
		b, err := blocking(h)
		if err != nil {
			return err
		}
		payload, err := b.Start(context.Background())
		if err != nil {
			return err
		}
		if outLen != nil {
			*outLen = len(payload)
		}
		if metadataBuf == nil {
			return nil
		}
		if !writeCString(metadataBuf, string(payload)) {
			return fmt.Errorf("metadata needs %d bytes: %w", len(payload)+1, lberrors.ErrBufferTooSmall)
		}
		return nil
	})
}

// LiveBlockingNextRecord copies the next record into recordBuf. A negative
// timeoutMs waits forever. It returns 1 on timeout, 2 once the stream has
// ended, -2 for nil outputs and -3 when recordBuf is too small.
func LiveBlockingNextRecord(h uint64, recordBuf []byte, outLen *int, outRType *uint8, timeoutMs int32, errBuf []byte) int32 {
	if recordBuf == nil || outLen == nil || outRType == nil {
		WriteError(errBuf, "Output parameters cannot be null")
		return StatusNotFound
	}
	return call(errBuf, func() error {
		b, err := blocking(h)
		if err != nil {
			return err
		}
		timeout := time.Duration(-1)
		if timeoutMs >= 0 {
			timeout = time.Duration(timeoutMs) * time.Millisecond
		}
		rec, err := b.NextRecord(timeout)
		if err != nil {
			return err
		}
		if len(rec.Data) > len(recordBuf) {
			return fmt.Errorf("record needs %d bytes: %w", len(rec.Data), lberrors.ErrBufferTooSmall)
		}
		*outLen = copy(recordBuf, rec.Data)
		*outRType = uint8(rec.RType)
		return nil
	})
}

// LiveBlockingReconnect stops the session and discards its client.
func LiveBlockingReconnect(h uint64, errBuf []byte) int32 {
	return call(errBuf, func() error {
		b, err := blocking(h)
		if err != nil {
			return err
		}
		return b.Reconnect(context.Background())
	})
}

// LiveBlockingResubscribe sends every tracked subscription again.
func LiveBlockingResubscribe(h uint64, errBuf []byte) int32 {
	return call(errBuf, func() error {
		b, err := blocking(h)
		if err != nil {
			return err
		}
		return b.Resubscribe(context.Background())
	})
}

// LiveBlockingStop signals the session to stop.
func LiveBlockingStop(h uint64) {
	quiet(func() {
		if b, err := blocking(h); err == nil {
			b.Stop()
		}
	})
}

// LiveBlockingDestroy unregisters the handle and destroys the session.
func LiveBlockingDestroy(h uint64) {
	quiet(func() {
		b, err := take[*session.BlockingSession](h, handle.KindLiveBlocking)
		if err != nil {
			return
		}
		b.Destroy()
	})
}
