package abi

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drblury/livebridge/internal/runtime/dbn"
	lberrors "github.com/drblury/livebridge/internal/runtime/errors"
	"github.com/drblury/livebridge/internal/runtime/feed"
	"github.com/drblury/livebridge/internal/runtime/handle"
	"github.com/drblury/livebridge/internal/runtime/session"
	"github.com/drblury/livebridge/transport"
	"github.com/drblury/livebridge/transport/transporttest"
)

// testEnv points the boundary at a private registry and an in-memory bus.
func testEnv(t *testing.T) *gochannel.GoChannel {
	t.Helper()
	bus := gochannel.NewGoChannel(gochannel.Config{
		OutputChannelBuffer:            16,
		BlockPublishUntilSubscriberAck: true,
	}, watermill.NopLogger{})
	restore := Configure(Env{
		Registry: handle.NewRegistry(),
		NewClient: func(_ context.Context, opts feed.Options) (session.Client, error) {
			tr := transport.Transport{Publisher: &transporttest.Publisher{}, Subscriber: nopCloser{bus}}
			return feed.New(tr, transport.ChannelCapabilities, opts, nil), nil
		},
		StopTimeout:    2 * time.Second,
		DestroyTimeout: 2 * time.Second,
	})
	t.Cleanup(func() {
		restore()
		_ = bus.Close()
	})
	return bus
}

// nopCloser keeps the shared bus open when one session's client closes.
type nopCloser struct{ *gochannel.GoChannel }

func (nopCloser) Close() error { return nil }

func publishRecords(bus *gochannel.GoChannel, dataset string, rtypes ...dbn.RType) {
	go func() {
		for i, rt := range rtypes {
			payload := dbn.NewRecord(rt, 1, uint32(i+1), 1_700_000_000_000_000_000, make([]byte, 40))
			_ = bus.Publish(feed.RecordsTopic(dataset), message.NewMessage(watermill.NewUUID(), payload))
		}
	}()
}

func cstring(buf []byte) string {
	if i := bytes.IndexByte(buf, 0); i >= 0 {
		return string(buf[:i])
	}
	return string(buf)
}

func TestWriteError(t *testing.T) {
	assert.False(t, WriteError(nil, "boom"))
	assert.False(t, WriteError([]byte{}, "boom"))

	small := make([]byte, 8)
	assert.False(t, WriteError(small, "a long failure message"))
	assert.Equal(t, "a long ", cstring(small))
	assert.Equal(t, byte(0), small[7])

	buf := make([]byte, 64)
	assert.True(t, WriteError(buf, "boom"))
	assert.Equal(t, "boom", cstring(buf))

	huge := make([]byte, MaxErrorBuffer+100)
	assert.True(t, WriteError(huge, strings.Repeat("x", MaxErrorBuffer*2)))
	assert.Equal(t, byte(0), huge[MaxErrorBuffer-1])
	assert.Equal(t, MaxErrorBuffer-1, len(cstring(huge)))
}

func TestStatusOf(t *testing.T) {
	tests := []struct {
		err  error
		want int32
	}{
		{nil, StatusOK},
		{handle.NotRegistered, StatusError},
		{lberrors.ErrTimeout, StatusTimeout},
		{lberrors.ErrFeedClosed, StatusEndOfData},
		{lberrors.InvalidArgument("schema", "unknown"), StatusInvalid},
		{lberrors.ErrBufferTooSmall, StatusInvalid},
		{lberrors.ErrRecordCallbackRequired, StatusInvalid},
		{lberrors.ErrClientNotInitialized, StatusNotFound},
		{lberrors.ErrAlreadyStarted, StatusAlreadyStarted},
		{fmt.Errorf("start: %w", lberrors.ErrAlreadyStarted), StatusAlreadyStarted},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusOf(tt.err), "%v", tt.err)
	}
}

func TestCallRecoversPanics(t *testing.T) {
	buf := make([]byte, 64)
	status := call(buf, func() error { panic("exploded") })
	assert.Equal(t, StatusError, status)
	assert.Equal(t, "panic: exploded", cstring(buf))
}

func TestHandleValidation(t *testing.T) {
	testEnv(t)
	buf := make([]byte, 256)

	assert.Zero(t, LiveCreate("", buf))
	assert.Contains(t, cstring(buf), "credential is required")

	h := LiveCreate("db-test-key", buf)
	require.NotZero(t, h)
	assert.Equal(t, 1, HandleCount())
	assert.Equal(t, int32(0), LiveConnectionState(h))

	tests := []struct {
		name string
		h    uint64
		want string
	}{
		{name: "null", h: 0, want: "Handle is NULL"},
		{name: "foreign", h: 0x1234, want: "Invalid handle magic number"},
		{name: "wrong kind", h: PitCreate(nil), want: "Handle type mismatch"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errBuf := make([]byte, 256)
			assert.Equal(t, StatusError, LiveSubscribe(tt.h, "GLBX.MDP3", "trades", []string{"ESM4"}, errBuf))
			assert.Contains(t, cstring(errBuf), tt.want)
		})
	}

	LiveDestroy(h)
	LiveDestroy(h)
	errBuf := make([]byte, 256)
	assert.Equal(t, StatusError, LiveSubscribe(h, "GLBX.MDP3", "trades", []string{"ESM4"}, errBuf))
	assert.Contains(t, cstring(errBuf), "Handle not registered")
	assert.Equal(t, StatusError, LiveConnectionState(h))
	assert.Equal(t, 1, HandleCount(), "only the PIT map is left")
}

func TestConcurrentDestroy(t *testing.T) {
	testEnv(t)
	h := LiveCreate("db-test-key", nil)
	require.NotZero(t, h)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			LiveDestroy(h)
		}()
	}
	wg.Wait()
	assert.Zero(t, HandleCount())
}

func TestConcurrentLiveStartHasOneWinner(t *testing.T) {
	testEnv(t)
	buf := make([]byte, 256)
	h := LiveCreate("db-test-key", buf)
	require.NotZero(t, h, cstring(buf))
	defer LiveDestroy(h)
	require.Equal(t, StatusOK, LiveSubscribe(h, "GLBX.MDP3", "trades", []string{"ESM4"}, buf), cstring(buf))

	record := func([]byte, dbn.RType, uintptr) error { return nil }

	const workers = 8
	statuses := make([]int32, workers)
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			statuses[i] = LiveStart(h, record, nil, 0, make([]byte, 256))
		}(i)
	}
	close(start)
	wg.Wait()

	counts := map[int32]int{}
	for _, st := range statuses {
		counts[st]++
	}
	assert.Equal(t, map[int32]int{StatusOK: 1, StatusAlreadyStarted: workers - 1}, counts)
	assert.Equal(t, int32(3), LiveConnectionState(h))
}

func TestLiveSubscribeReportsInvalidArguments(t *testing.T) {
	testEnv(t)
	h := LiveCreate("db-test-key", nil)
	defer LiveDestroy(h)

	buf := make([]byte, 256)
	assert.Equal(t, StatusInvalid, LiveSubscribe(h, "GLBX.MDP3", "quotes", []string{"ESM4"}, buf))
	assert.Contains(t, cstring(buf), "schema")
	assert.Equal(t, StatusInvalid, LiveSubscribeFrom(h, "GLBX.MDP3", "trades", []string{"ESM4"}, dbn.MaxTimestamp+1, buf))
	assert.Equal(t, StatusInvalid, LiveSetLogLevel(h, 9, buf))
	assert.Equal(t, StatusOK, LiveSetLogLevel(h, 0, buf))
	assert.Equal(t, StatusInvalid, LiveStart(h, nil, nil, 0, buf))

	assert.Zero(t, LiveCreateEx("db-test-key", "", false, 5, 0, buf))
	assert.Contains(t, cstring(buf), "upgrade_policy")
}

func TestLiveEndToEnd(t *testing.T) {
	bus := testEnv(t)
	buf := make([]byte, 256)

	h := LiveCreateEx("db-test-key", "GLBX.MDP3", true, 1, 15, buf)
	require.NotZero(t, h, cstring(buf))
	assert.Equal(t, int32(2), LiveConnectionState(h), "a default dataset builds the client at once")
	require.Equal(t, StatusOK, LiveSubscribe(h, "", "trades", []string{"ESM4"}, buf), cstring(buf))

	var (
		mu       sync.Mutex
		lengths  []int
		rtypes   []dbn.RType
		errs     []int32
		metadata int
		seen     = make(chan struct{}, 8)
	)
	record := func(rec []byte, rtype dbn.RType, userData uintptr) error {
		assert.Equal(t, uintptr(7), userData)
		mu.Lock()
		lengths = append(lengths, len(rec))
		rtypes = append(rtypes, rtype)
		mu.Unlock()
		seen <- struct{}{}
		return nil
	}
	onError := func(_ string, code int32, _ uintptr) {
		mu.Lock()
		errs = append(errs, code)
		mu.Unlock()
	}
	onMetadata := func(payload []byte, _ uintptr) error {
		mu.Lock()
		metadata++
		mu.Unlock()
		assert.Contains(t, string(payload), `"dataset":"GLBX.MDP3"`)
		return nil
	}

	require.Equal(t, StatusOK, LiveStartEx(h, onMetadata, record, onError, 7, buf), cstring(buf))
	assert.Equal(t, StatusAlreadyStarted, LiveStartEx(h, onMetadata, record, onError, 7, buf))
	assert.Contains(t, cstring(buf), "already started")
	assert.Equal(t, int32(3), LiveConnectionState(h))

	publishRecords(bus, "GLBX.MDP3", dbn.RTypeMbp0, dbn.RTypeMbp0, dbn.RTypeStatus)
	for i := 0; i < 3; i++ {
		select {
		case <-seen:
		case <-time.After(2 * time.Second):
			t.Fatalf("record %d not delivered", i)
		}
	}

	LiveStop(h)
	assert.Equal(t, StatusOK, LiveStopAndWait(h, 1000, buf))
	LiveDestroy(h)

	mu.Lock()
	assert.Equal(t, []int{56, 56, 56}, lengths)
	assert.Equal(t, []dbn.RType{dbn.RTypeMbp0, dbn.RTypeMbp0, dbn.RTypeStatus}, rtypes)
	assert.Empty(t, errs)
	assert.Equal(t, 1, metadata)
	mu.Unlock()

	assert.Equal(t, StatusError, LiveResubscribe(h, buf))
	assert.Contains(t, cstring(buf), "Handle not registered")
	assert.Zero(t, HandleCount())
}

func TestLiveReconnectAndResubscribe(t *testing.T) {
	testEnv(t)
	buf := make([]byte, 256)
	h := LiveCreate("db-test-key", buf)
	defer LiveDestroy(h)

	assert.Equal(t, StatusError, LiveResubscribe(h, buf))
	assert.Contains(t, cstring(buf), "no subscriptions")

	require.Equal(t, StatusOK, LiveSubscribe(h, "GLBX.MDP3", "trades", []string{"ESM4"}, buf))
	require.Equal(t, StatusOK, LiveResubscribe(h, buf))
	require.Equal(t, StatusOK, LiveReconnect(h, buf))
	assert.Equal(t, int32(0), LiveConnectionState(h))
}

func TestBlockingEndToEnd(t *testing.T) {
	bus := testEnv(t)
	buf := make([]byte, 256)

	h := LiveBlockingCreateEx("db-test-key", "GLBX.MDP3", false, 0, 0, buf)
	require.NotZero(t, h, cstring(buf))
	defer LiveBlockingDestroy(h)
	require.Equal(t, StatusOK, LiveBlockingSubscribe(h, "", "mbp-1", []string{"ESM4"}, buf), cstring(buf))

	tooSmall := make([]byte, 4)
	var mdLen int
	assert.Equal(t, StatusInvalid, LiveBlockingStart(h, tooSmall, &mdLen, buf))
	assert.Positive(t, mdLen)

	// the session did start; reset it before trying again
	require.Equal(t, StatusOK, LiveBlockingReconnect(h, buf), cstring(buf))
	mdBuf := make([]byte, 4096)
	require.Equal(t, StatusOK, LiveBlockingStart(h, mdBuf, &mdLen, buf), cstring(buf))
	assert.Contains(t, cstring(mdBuf), `"dataset":"GLBX.MDP3"`)

	recBuf := make([]byte, 256)
	var n int
	var rtype uint8
	assert.Equal(t, StatusNotFound, LiveBlockingNextRecord(h, nil, &n, &rtype, 0, buf))
	assert.Equal(t, StatusTimeout, LiveBlockingNextRecord(h, recBuf, &n, &rtype, 0, buf))

	publishRecords(bus, "GLBX.MDP3", dbn.RTypeMbp1, dbn.RTypeMbp1)
	require.Equal(t, StatusOK, LiveBlockingNextRecord(h, recBuf, &n, &rtype, 2000, buf), cstring(buf))
	assert.Equal(t, 56, n)
	assert.Equal(t, uint8(dbn.RTypeMbp1), rtype)
	assert.Equal(t, StatusInvalid, LiveBlockingNextRecord(h, make([]byte, 8), &n, &rtype, 2000, buf))
	assert.Contains(t, cstring(buf), "buffer too small")

	LiveBlockingStop(h)
	assert.Equal(t, StatusEndOfData, LiveBlockingNextRecord(h, recBuf, &n, &rtype, 2000, buf))
}
