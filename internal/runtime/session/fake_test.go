package session

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/drblury/livebridge/internal/runtime/dbn"
	lberrors "github.com/drblury/livebridge/internal/runtime/errors"
	"github.com/drblury/livebridge/internal/runtime/feed"
	"github.com/drblury/livebridge/internal/runtime/logging"
	"github.com/drblury/livebridge/internal/runtime/metadata"
)

// fakeClient emits the metadata event and then whatever the test pushes.
type fakeClient struct {
	mu       sync.Mutex
	subs     []feed.Subscription
	started  bool
	closed   bool
	done     chan struct{}
	stop     chan struct{}
	stopOnce sync.Once

	events chan feed.Event
	md     metadata.Metadata
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		stop:   make(chan struct{}),
		events: make(chan feed.Event, 64),
		md:     metadata.Metadata{Version: metadata.Version, Dataset: "GLBX.MDP3", Symbols: []string{"ESM4"}},
	}
}

func (f *fakeClient) Subscribe(_ context.Context, sub feed.Subscription) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return lberrors.ErrFeedClosed
	}
	f.subs = append(f.subs, sub.Clone())
	return nil
}

func (f *fakeClient) Start(_ context.Context, handler feed.Handler) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch {
	case f.closed:
		return lberrors.ErrFeedClosed
	case f.started:
		return lberrors.ErrAlreadyStarted
	}
	f.started = true
	f.done = make(chan struct{})
	go func(done chan struct{}) {
		defer close(done)
		if !handler(feed.Event{Kind: feed.EventMetadata, Metadata: f.md}) {
			return
		}
		for {
			select {
			case <-f.stop:
				return
			case ev := <-f.events:
				if !handler(ev) {
					return
				}
			}
		}
	}(f.done)
	return nil
}

func (f *fakeClient) Stop() {
	f.stopOnce.Do(func() { close(f.stop) })
}

func (f *fakeClient) Done() <-chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.done == nil {
		closed := make(chan struct{})
		close(closed)
		return closed
	}
	return f.done
}

func (f *fakeClient) Streaming() bool {
	select {
	case <-f.Done():
		return false
	default:
		return true
	}
}

func (f *fakeClient) Connected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return !f.closed
}

func (f *fakeClient) Close(timeout time.Duration) error {
	f.Stop()
	select {
	case <-f.Done():
	case <-time.After(timeout):
	}
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}

func (f *fakeClient) Subscriptions() []feed.Subscription {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]feed.Subscription(nil), f.subs...)
}

func (f *fakeClient) pushRecord(rtype dbn.RType, iid uint32) {
	f.events <- feed.Event{
		Kind:   feed.EventRecord,
		RType:  rtype,
		Record: dbn.NewRecord(rtype, 1, iid, 1_700_000_000_000_000_000, make([]byte, 40)),
	}
}

// fakeFactory hands out fresh fake clients and remembers them.
type fakeFactory struct {
	mu      sync.Mutex
	clients []*fakeClient
	calls   atomic.Int32
	fail    error
}

func (ff *fakeFactory) build(_ context.Context, _ feed.Options) (Client, error) {
	ff.calls.Add(1)
	ff.mu.Lock()
	defer ff.mu.Unlock()
	if ff.fail != nil {
		return nil, ff.fail
	}
	c := newFakeClient()
	ff.clients = append(ff.clients, c)
	return c, nil
}

func (ff *fakeFactory) last() *fakeClient {
	ff.mu.Lock()
	defer ff.mu.Unlock()
	if len(ff.clients) == 0 {
		return nil
	}
	return ff.clients[len(ff.clients)-1]
}

func testOptions(ff *fakeFactory) Options {
	return Options{
		Credential:     "db-test-key",
		Dataset:        "GLBX.MDP3",
		NewClient:      ff.build,
		Logger:         logging.Nop(),
		StopTimeout:    2 * time.Second,
		DestroyTimeout: 2 * time.Second,
	}
}

func newSubscribedSession(t *testing.T) (*LiveSession, *fakeFactory) {
	t.Helper()
	ff := &fakeFactory{}
	s, err := New(testOptions(ff))
	require.NoError(t, err)
	t.Cleanup(s.Destroy)
	require.NoError(t, s.Subscribe(context.Background(), SubscribeRequest{Schema: "trades", Symbols: []string{"ESM4"}}))
	return s, ff
}

// sink records callback invocations.
type sink struct {
	mu       sync.Mutex
	records  [][]byte
	rtypes   []dbn.RType
	errors   []int32
	messages []string
	metadata [][]byte
	notify   chan struct{}
}

func newSink() *sink {
	return &sink{notify: make(chan struct{}, 256)}
}

func (s *sink) record(rec []byte, rtype dbn.RType, _ uintptr) error {
	s.mu.Lock()
	s.records = append(s.records, append([]byte(nil), rec...))
	s.rtypes = append(s.rtypes, rtype)
	s.mu.Unlock()
	s.notify <- struct{}{}
	return nil
}

func (s *sink) onError(msg string, code int32, _ uintptr) {
	s.mu.Lock()
	s.errors = append(s.errors, code)
	s.messages = append(s.messages, msg)
	s.mu.Unlock()
	s.notify <- struct{}{}
}

func (s *sink) meta(payload []byte, _ uintptr) error {
	s.mu.Lock()
	s.metadata = append(s.metadata, append([]byte(nil), payload...))
	s.mu.Unlock()
	s.notify <- struct{}{}
	return nil
}

func (s *sink) callbacks() Callbacks {
	return Callbacks{Record: s.record, Error: s.onError, Metadata: s.meta, Context: 42}
}

// waitUntil polls cond until it holds or two seconds pass.
func (s *sink) waitUntil(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		s.mu.Lock()
		ok := cond()
		s.mu.Unlock()
		if ok {
			return
		}
		select {
		case <-s.notify:
		case <-time.After(10 * time.Millisecond):
		case <-deadline:
			t.Fatal("timed out waiting for callbacks")
		}
	}
}
