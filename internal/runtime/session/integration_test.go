package session

import (
	"context"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drblury/livebridge/internal/runtime/dbn"
	"github.com/drblury/livebridge/internal/runtime/feed"
	"github.com/drblury/livebridge/internal/runtime/logging"
	"github.com/drblury/livebridge/transport"
	"github.com/drblury/livebridge/transport/transporttest"
)

func TestSessionOverChannelTransport(t *testing.T) {
	bus := gochannel.NewGoChannel(gochannel.Config{
		OutputChannelBuffer:            16,
		BlockPublishUntilSubscriberAck: true,
	}, watermill.NopLogger{})
	control := &transporttest.Publisher{}

	registry := prometheus.NewRegistry()
	metrics := NewMetrics("test", registry, func() int { return 1 })
	require.NoError(t, metrics.Register())
	require.NoError(t, metrics.Register())

	s, err := New(Options{
		Credential: "db-test-key",
		Dataset:    "GLBX.MDP3",
		Logger:     logging.Nop(),
		Metrics:    metrics,
		NewClient: func(_ context.Context, opts feed.Options) (Client, error) {
			tr := transport.Transport{Publisher: control, Subscriber: bus}
			return feed.New(tr, transport.ChannelCapabilities, opts, nil), nil
		},
	})
	require.NoError(t, err)
	defer s.Destroy()

	ctx := context.Background()
	require.NoError(t, s.Subscribe(ctx, SubscribeRequest{Schema: "mbp-1", Symbols: []string{"ESM4"}}))
	require.Len(t, control.Published(feed.ControlTopic("GLBX.MDP3")), 1)

	out := newSink()
	require.NoError(t, s.Start(ctx, out.callbacks()))

	rtypes := []dbn.RType{dbn.RTypeMbp1, dbn.RTypeMbp1, dbn.RTypeStatus}
	go func() {
		for i, rt := range rtypes {
			payload := dbn.NewRecord(rt, 1, uint32(i), 1_700_000_000_000_000_000, make([]byte, 64))
			_ = bus.Publish(feed.RecordsTopic("GLBX.MDP3"), message.NewMessage(watermill.NewUUID(), payload))
		}
	}()

	out.waitUntil(t, func() bool { return len(out.records) == 3 })
	assert.True(t, s.StopAndWait(2*time.Second))

	out.mu.Lock()
	assert.Equal(t, rtypes, out.rtypes)
	for _, rec := range out.records {
		assert.Len(t, rec, dbn.HeaderSize+64)
	}
	assert.Empty(t, out.errors)
	assert.Len(t, out.metadata, 1)
	out.mu.Unlock()

	families, err := registry.Gather()
	require.NoError(t, err)
	assert.Equal(t, 3.0, counterSum(families, "test_session_records_dispatched_total"))
	assert.Equal(t, 1.0, counterSum(families, "test_session_started_total"))
	assert.Equal(t, 1.0, gaugeValue(families, "test_handles_live"))
}

func counterSum(families []*dto.MetricFamily, name string) float64 {
	var sum float64
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			sum += m.GetCounter().GetValue()
		}
	}
	return sum
}

func gaugeValue(families []*dto.MetricFamily, name string) float64 {
	for _, mf := range families {
		if mf.GetName() == name && len(mf.GetMetric()) > 0 {
			return mf.GetMetric()[0].GetGauge().GetValue()
		}
	}
	return 0
}
