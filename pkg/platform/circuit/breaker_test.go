package circuit

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// step is one observation fed to the breaker: 'f' failure, 's' success.
type step struct {
	event    byte
	fallback bool
	opened   bool
	closed   bool
}

func replay(t *testing.T, b *Breaker, steps []step) {
	t.Helper()
	for i, st := range steps {
		switch st.event {
		case 'f':
			useFallback, change := b.RecordFailure()
			require.Equal(t, st.fallback, useFallback, "step %d fallback", i)
			require.Equal(t, st.opened, change.Opened, "step %d opened", i)
		case 's':
			usePrimary, change := b.RecordSuccess()
			require.Equal(t, !st.fallback, usePrimary, "step %d primary", i)
			require.Equal(t, st.closed, change.Closed, "step %d closed", i)
		default:
			t.Fatalf("unknown event %q", st.event)
		}
	}
}

func TestBreakerTransitions(t *testing.T) {
	cases := []struct {
		name     string
		opts     []Option
		steps    []step
		wantOpen bool
	}{
		{
			name: "gate store trips after three consecutive errors",
			opts: []Option{WithFailureThreshold(3)},
			steps: []step{
				{event: 'f'},
				{event: 'f'},
				{event: 'f', fallback: true, opened: true},
				{event: 'f', fallback: true},
			},
			wantOpen: true,
		},
		{
			name: "an intervening success restarts the failure streak",
			opts: []Option{WithFailureThreshold(3)},
			steps: []step{
				{event: 'f'},
				{event: 'f'},
				{event: 's'},
				{event: 'f'},
				{event: 'f'},
			},
			wantOpen: false,
		},
		{
			name: "recovery needs the configured success streak",
			opts: []Option{WithFailureThreshold(1), WithSuccessThreshold(2)},
			steps: []step{
				{event: 'f', fallback: true, opened: true},
				{event: 's', fallback: true},
				{event: 's', closed: true},
			},
			wantOpen: false,
		},
		{
			name: "a failure while open restarts the success streak",
			opts: []Option{WithFailureThreshold(1), WithSuccessThreshold(2)},
			steps: []step{
				{event: 'f', fallback: true, opened: true},
				{event: 's', fallback: true},
				{event: 'f', fallback: true},
				{event: 's', fallback: true},
			},
			wantOpen: true,
		},
		{
			name: "non-positive thresholds keep the defaults",
			opts: []Option{WithFailureThreshold(0), WithSuccessThreshold(-1)},
			steps: []step{
				{event: 'f'},
				{event: 'f'},
				{event: 'f'},
				{event: 'f'},
				{event: 'f', fallback: true, opened: true},
			},
			wantOpen: true,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			b := New("gate", tc.opts...)
			replay(t, b, tc.steps)
			assert.Equal(t, tc.wantOpen, b.IsOpen())
		})
	}
}

func TestBreakerStateAndReset(t *testing.T) {
	b := New("gate", WithFailureThreshold(1))
	assert.Equal(t, "gate", b.Name())
	assert.Equal(t, "closed", b.State().String())

	b.RecordFailure()
	assert.Equal(t, StateOpen, b.State())
	assert.Equal(t, "open", b.State().String())

	b.Reset()
	assert.Equal(t, StateClosed, b.State())
	useFallback, _ := b.RecordFailure()
	assert.True(t, useFallback, "counters restart from zero after reset")
}
