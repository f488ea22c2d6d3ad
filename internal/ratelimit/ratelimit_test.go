package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock advances only when the limiter sleeps.
type fakeClock struct {
	now    time.Time
	sleeps []time.Duration
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.sleeps = append(c.sleeps, d)
	c.now = c.now.Add(d)
	return nil
}

func newFake(perSecond, perMinute int) (*Limiter, *fakeClock) {
	clock := &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	return New("test", perSecond, perMinute).WithClock(clock.Now, clock.Sleep), clock
}

func TestWait_UnderLimitDoesNotSleep(t *testing.T) {
	l, clock := newFake(3, 100)

	for i := 0; i < 3; i++ {
		require.NoError(t, l.Wait(context.Background()))
	}
	assert.Empty(t, clock.sleeps)
}

func TestWait_ExtraCallWaitsForSecondWindow(t *testing.T) {
	l, clock := newFake(2, 100)
	start := clock.now

	require.NoError(t, l.Wait(context.Background()))
	clock.now = clock.now.Add(300 * time.Millisecond)
	require.NoError(t, l.Wait(context.Background()))

	// Third call must wait for the first timestamp to leave the window
	require.NoError(t, l.Wait(context.Background()))

	require.Len(t, clock.sleeps, 1)
	assert.Equal(t, 700*time.Millisecond, clock.sleeps[0])
	assert.Equal(t, start.Add(time.Second), clock.now)
}

func TestWait_BackToBackCallsDelayedByFullWindow(t *testing.T) {
	l, clock := newFake(2, 100)
	start := clock.now

	for i := 0; i < 3; i++ {
		require.NoError(t, l.Wait(context.Background()))
	}

	assert.GreaterOrEqual(t, clock.now.Sub(start), time.Second)
}

func TestWait_MinuteCeiling(t *testing.T) {
	l, clock := newFake(0, 3)
	start := clock.now

	for i := 0; i < 3; i++ {
		require.NoError(t, l.Wait(context.Background()))
		clock.now = clock.now.Add(10 * time.Second)
	}

	require.NoError(t, l.Wait(context.Background()))

	require.Len(t, clock.sleeps, 1)
	assert.Equal(t, 30*time.Second, clock.sleeps[0])
	assert.Equal(t, start.Add(time.Minute), clock.now)
}

func TestWait_LongerWindowWins(t *testing.T) {
	l, clock := newFake(1, 2)

	require.NoError(t, l.Wait(context.Background()))
	clock.now = clock.now.Add(2 * time.Second)
	require.NoError(t, l.Wait(context.Background()))

	// Both windows are full; the minute window expires later.
	require.NoError(t, l.Wait(context.Background()))

	require.Len(t, clock.sleeps, 1)
	assert.Equal(t, 58*time.Second, clock.sleeps[0])
}

func TestWait_ContextCancelled(t *testing.T) {
	l, _ := newFake(1, 100)
	ctx, cancel := context.WithCancel(context.Background())

	require.NoError(t, l.Wait(ctx))
	cancel()

	err := l.Wait(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestWait_RealClock(t *testing.T) {
	l := New("real", 2, 100)
	start := time.Now()

	for i := 0; i < 3; i++ {
		require.NoError(t, l.Wait(context.Background()))
	}

	assert.GreaterOrEqual(t, time.Since(start), 900*time.Millisecond)
}

func TestSleep_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, Sleep(ctx, time.Hour), context.Canceled)
}
