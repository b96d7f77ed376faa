package replay

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drblury/livebridge/transport"
	"github.com/drblury/livebridge/transport/transporttest"
)

func receive(t *testing.T, ch <-chan *message.Message) *message.Message {
	t.Helper()
	select {
	case msg, ok := <-ch:
		require.True(t, ok, "channel closed")
		return msg
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for message")
		return nil
	}
}

func TestRegister(t *testing.T) {
	original := transport.DefaultRegistry
	t.Cleanup(func() { transport.DefaultRegistry = original })
	transport.DefaultRegistry = transport.NewRegistry()

	Register()

	assert.True(t, transport.DefaultRegistry.Has(TransportName))
	assert.True(t, transport.DefaultRegistry.GetCapabilities(TransportName).SupportsReplay)
	assert.Equal(t, transport.ReplayCapabilities, Capabilities())
}

func TestReplayFiltersByTopicInOrder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "capture.jsonl")
	tr, err := Build(context.Background(), &transporttest.Config{ReplayFile: path}, watermill.NopLogger{})
	require.NoError(t, err)
	defer tr.Close()

	first := message.NewMessage("1", []byte{0x01})
	first.Metadata.Set("rtype", "160")
	require.NoError(t, tr.Publisher.Publish("GLBX.MDP3.records", first))
	require.NoError(t, tr.Publisher.Publish("GLBX.MDP3.control", message.NewMessage("c", []byte("{}"))))
	require.NoError(t, tr.Publisher.Publish("GLBX.MDP3.records", message.NewMessage("2", []byte{0x02})))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	msgs, err := tr.Subscriber.Subscribe(ctx, "GLBX.MDP3.records")
	require.NoError(t, err)

	msg := receive(t, msgs)
	assert.Equal(t, "1", msg.UUID)
	assert.Equal(t, []byte{0x01}, []byte(msg.Payload))
	assert.Equal(t, "160", msg.Metadata.Get("rtype"))
	msg.Ack()

	msg = receive(t, msgs)
	assert.Equal(t, "2", msg.UUID)
	msg.Ack()
}

func TestReplayFollowsAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "capture.jsonl")
	pub, err := NewPublisher(path)
	require.NoError(t, err)
	defer pub.Close()
	sub := NewSubscriber(path, nil)
	defer sub.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	msgs, err := sub.Subscribe(ctx, "records")
	require.NoError(t, err)

	require.NoError(t, pub.Publish("records", message.NewMessage("late", []byte("x"))))
	msg := receive(t, msgs)
	assert.Equal(t, "late", msg.UUID)
	msg.Ack()
}

func TestReplayRedeliversNacked(t *testing.T) {
	path := filepath.Join(t.TempDir(), "capture.jsonl")
	pub, err := NewPublisher(path)
	require.NoError(t, err)
	require.NoError(t, pub.Publish("records", message.NewMessage("only", nil)))
	require.NoError(t, pub.Close())

	sub := NewSubscriber(path, nil)
	defer sub.Close()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	msgs, err := sub.Subscribe(ctx, "records")
	require.NoError(t, err)

	msg := receive(t, msgs)
	msg.Nack()
	again := receive(t, msgs)
	assert.Equal(t, "only", again.UUID)
	again.Ack()
}

func TestReplaySkipsMalformedLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "capture.jsonl")
	require.NoError(t, os.WriteFile(path, []byte("not json\n"), 0o600))

	pub, err := NewPublisher(path)
	require.NoError(t, err)
	require.NoError(t, pub.Publish("records", message.NewMessage("ok", nil)))
	require.NoError(t, pub.Close())

	sub := NewSubscriber(path, nil)
	defer sub.Close()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	msgs, err := sub.Subscribe(ctx, "records")
	require.NoError(t, err)

	msg := receive(t, msgs)
	assert.Equal(t, "ok", msg.UUID)
	msg.Ack()
}

func TestCloseStopsSubscriptions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "capture.jsonl")
	sub := NewSubscriber(path, nil)
	msgs, err := sub.Subscribe(context.Background(), "records")
	require.NoError(t, err)

	require.NoError(t, sub.Close())
	_, ok := <-msgs
	assert.False(t, ok)

	_, err = sub.Subscribe(context.Background(), "records")
	assert.ErrorIs(t, err, ErrClosed)
}

func TestPublishAfterClose(t *testing.T) {
	pub, err := NewPublisher(filepath.Join(t.TempDir(), "capture.jsonl"))
	require.NoError(t, err)
	require.NoError(t, pub.Close())
	require.NoError(t, pub.Close())
	assert.ErrorIs(t, pub.Publish("records", message.NewMessage("1", nil)), ErrClosed)
}
