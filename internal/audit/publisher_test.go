package audit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"checkin/pkg/requestcontext"
)

type failingSink struct{}

func (failingSink) Write(context.Context, Event) error { return errors.New("broker down") }

func runPublisher(t *testing.T, p *Publisher) (stop func()) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = p.Run(ctx)
	}()
	return func() {
		cancel()
		<-done
	}
}

func TestNewPublisherRequiresSink(t *testing.T) {
	_, err := NewPublisher(nil)
	require.Error(t, err)
}

func TestPublisherStampsRequestMetadata(t *testing.T) {
	sink := NewMemorySink()
	pub, err := NewPublisher(sink)
	require.NoError(t, err)
	stop := runPublisher(t, pub)

	at := time.Date(2026, 2, 15, 8, 30, 0, 0, time.UTC)
	ctx := requestcontext.WithRequestID(context.Background(), "req-1")
	ctx = requestcontext.WithTime(ctx, at)
	ctx = requestcontext.WithClientMetadata(ctx, "10.0.0.7",
		"Mozilla/5.0 (Linux; Android 13) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Mobile Safari/537.36")

	require.NoError(t, pub.Emit(ctx, Event{Action: ActionCheckInRecorded, CandidateID: "c-1", PaperID: "paper1"}))
	stop()

	events := sink.Events()
	require.Len(t, events, 1)
	got := events[0]
	assert.NotEmpty(t, got.ID)
	assert.Equal(t, at, got.At)
	assert.Equal(t, "req-1", got.RequestID)
	assert.Equal(t, "10.0.0.7", got.ClientIP)
	assert.Equal(t, "Chrome on Android", got.Device)
	assert.Equal(t, ActionCheckInRecorded, got.Action)
}

func TestPublisherDropsWhenQueueFull(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	pub, err := NewPublisher(NewMemorySink(), WithBuffer(1), WithMetrics(m))
	require.NoError(t, err)

	// Run is not started, so the second event cannot be queued.
	require.NoError(t, pub.Emit(context.Background(), Event{Action: ActionGateChanged}))
	err = pub.Emit(context.Background(), Event{Action: ActionGateChanged})
	require.ErrorIs(t, err, ErrQueueFull)
	assert.Equal(t, float64(1), promtestutil.ToFloat64(m.Dropped))
}

func TestPublisherDrainsOnShutdown(t *testing.T) {
	sink := NewMemorySink()
	pub, err := NewPublisher(sink, WithBuffer(16))
	require.NoError(t, err)

	for range 10 {
		require.NoError(t, pub.Emit(context.Background(), Event{Action: ActionCheckInRecorded}))
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, pub.Run(ctx))

	assert.Len(t, sink.Events(), 10)
}

func TestPublisherCountsSinkFailures(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	pub, err := NewPublisher(failingSink{}, WithMetrics(m))
	require.NoError(t, err)

	require.NoError(t, pub.Emit(context.Background(), Event{Action: ActionCheckInRemoved}))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, pub.Run(ctx))

	assert.Equal(t, float64(1), promtestutil.ToFloat64(m.SinkFailures))
	assert.Equal(t, float64(0), promtestutil.ToFloat64(m.Published))
}
