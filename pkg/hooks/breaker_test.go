package hooks

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	offset atomic.Int64
	t0     time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t0: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	return c.t0.Add(time.Duration(c.offset.Load()))
}

func (c *fakeClock) Advance(d time.Duration) {
	c.offset.Add(int64(d))
}

func TestBreaker_OpensAfterThresholdWithinWindow(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	cb := NewCircuitBreaker(WithClock(clock.Now))

	require.True(t, cb.Allow())
	cb.RecordFailure()
	cb.RecordFailure()
	require.Equal(t, "closed", cb.State())
	cb.RecordFailure()
	require.Equal(t, "open", cb.State())
	require.False(t, cb.Allow())
}

func TestBreaker_WindowExpiryForgetsOldFailures(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	cb := NewCircuitBreaker(WithClock(clock.Now))

	cb.RecordFailure()
	cb.RecordFailure()
	clock.Advance(61 * time.Second)
	cb.RecordFailure()
	require.Equal(t, "closed", cb.State())
	require.True(t, cb.Allow())
}

func TestBreaker_HalfOpenProbeAfterCooldown(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	cb := NewCircuitBreaker(WithClock(clock.Now))

	cb.RecordFailure()
	cb.RecordFailure()
	cb.RecordFailure()
	require.False(t, cb.Allow())

	clock.Advance(5 * time.Minute)
	require.True(t, cb.Allow())
	require.Equal(t, "half-open", cb.State())

	cb.RecordSuccess()
	require.Equal(t, "closed", cb.State())
	require.True(t, cb.Allow())
}

func TestBreaker_FailedProbeReopensImmediately(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	cb := NewCircuitBreaker(WithClock(clock.Now))

	cb.RecordFailure()
	cb.RecordFailure()
	cb.RecordFailure()
	clock.Advance(5 * time.Minute)
	require.True(t, cb.Allow())

	cb.RecordFailure()
	require.Equal(t, "open", cb.State())
	require.False(t, cb.Allow())
}

func TestDispatcher_BreakerShortCircuitsFailingHandler(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	var invocations atomic.Int64

	d := New(WithBreakerOptions(WithClock(clock.Now)))
	d.Register(EventChatParams, NewHandler("flaky", func(ctx context.Context, event Event, input, output any) (any, error) {
		invocations.Add(1)
		return nil, context.DeadlineExceeded
	}))
	var survivorRuns atomic.Int64
	d.Register(EventChatParams, NewHandler("survivor", func(ctx context.Context, event Event, input, output any) (any, error) {
		survivorRuns.Add(1)
		return nil, nil
	}))

	for i := 0; i < 5; i++ {
		_, err := d.Trigger(context.Background(), EventChatParams, nil, nil)
		require.NoError(t, err)
	}

	// tripped after three failures, the remaining two dispatches skipped it
	require.EqualValues(t, 3, invocations.Load())
	// the healthy handler keeps running on the same event
	require.EqualValues(t, 5, survivorRuns.Load())
}
