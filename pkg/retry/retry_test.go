package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// instantTimer records every requested delay and fires immediately.
type instantTimer struct {
	delays []time.Duration
	c      chan time.Time
}

func newInstantTimer() *instantTimer {
	return &instantTimer{c: make(chan time.Time, 1)}
}

func (t *instantTimer) Start(d time.Duration) {
	t.delays = append(t.delays, d)
	t.c <- time.Now()
}

func (t *instantTimer) Stop() {}

func (t *instantTimer) C() <-chan time.Time { return t.c }

var errQuota = errors.New("429 resource exhausted")

func TestDoSucceedsAfterTransientFailures(t *testing.T) {
	timer := newInstantTimer()
	calls := 0
	got, err := Do(context.Background(), 3, func(context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", Transient(errQuota)
		}
		return "ok", nil
	}, WithTimer(timer))

	require.NoError(t, err)
	require.Equal(t, "ok", got)
	require.Equal(t, 3, calls)
	require.Equal(t, []time.Duration{1000 * time.Millisecond, 2000 * time.Millisecond}, timer.delays)
}

func TestDoExhaustsTransientFailures(t *testing.T) {
	timer := newInstantTimer()
	calls := 0
	_, err := Do(context.Background(), 3, func(context.Context) (int, error) {
		calls++
		return 0, Transient(errQuota)
	}, WithTimer(timer))

	require.ErrorIs(t, err, ErrQuotaExceeded)
	require.ErrorIs(t, err, errQuota)
	require.Equal(t, 3, calls)
	require.Len(t, timer.delays, 2)
}

func TestDoPermanentFailureAbortsImmediately(t *testing.T) {
	timer := newInstantTimer()
	boom := errors.New("invalid api key")
	calls := 0
	_, err := Do(context.Background(), 3, func(context.Context) (int, error) {
		calls++
		return 0, Permanent(boom)
	}, WithTimer(timer))

	require.ErrorIs(t, err, boom)
	require.NotErrorIs(t, err, ErrQuotaExceeded)
	require.Equal(t, 1, calls)
	require.Empty(t, timer.delays)
}

// TestDoUntaggedErrorIsPermanent verifies that errors without a
// classification are never retried.
func TestDoUntaggedErrorIsPermanent(t *testing.T) {
	timer := newInstantTimer()
	calls := 0
	_, err := Do(context.Background(), 5, func(context.Context) (int, error) {
		calls++
		return 0, errors.New("quota exceeded")
	}, WithTimer(timer))

	require.Error(t, err)
	require.NotErrorIs(t, err, ErrQuotaExceeded)
	require.Equal(t, 1, calls)
}

// TestDoDelayCap walks a long schedule and checks the exponential sequence
// is capped at the maximum delay.
func TestDoDelayCap(t *testing.T) {
	timer := newInstantTimer()
	var notified []int
	_, err := Do(context.Background(), 7, func(context.Context) (int, error) {
		return 0, Transient(errQuota)
	}, WithTimer(timer), WithNotify(func(_ error, attempt int, _ time.Duration) {
		notified = append(notified, attempt)
	}))

	require.ErrorIs(t, err, ErrQuotaExceeded)
	require.Equal(t, []time.Duration{
		1 * time.Second, 2 * time.Second, 4 * time.Second,
		8 * time.Second, 10 * time.Second, 10 * time.Second,
	}, timer.delays)
	require.Equal(t, []int{1, 2, 3, 4, 5, 6}, notified)
}

func TestDoSingleAttempt(t *testing.T) {
	timer := newInstantTimer()
	_, err := Do(context.Background(), 1, func(context.Context) (int, error) {
		return 0, Transient(errQuota)
	}, WithTimer(timer))

	require.ErrorIs(t, err, ErrQuotaExceeded)
	require.Empty(t, timer.delays)
}

// TestDoContextCanceled ensures a cancelled context interrupts the wait
// between attempts.
func TestDoContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	_, err := Do(ctx, 3, func(context.Context) (int, error) {
		calls++
		cancel()
		return 0, Transient(errQuota)
	}, WithDelays(time.Hour, time.Hour))

	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, 1, calls)
}

// TestDoRealTimer runs the default timer with tiny delays to make sure the
// schedule works without a substitute.
func TestDoRealTimer(t *testing.T) {
	calls := 0
	start := time.Now()
	got, err := Do(context.Background(), 3, func(context.Context) (int, error) {
		calls++
		if calls < 3 {
			return 0, Transient(errQuota)
		}
		return 7, nil
	}, WithDelays(5*time.Millisecond, 10*time.Millisecond))

	require.NoError(t, err)
	require.Equal(t, 7, got)
	require.GreaterOrEqual(t, time.Since(start), 15*time.Millisecond)
}

func TestClassification(t *testing.T) {
	require.Nil(t, Transient(nil))
	require.Nil(t, Permanent(nil))
	require.True(t, IsTransient(Transient(errQuota)))
	require.False(t, IsTransient(Permanent(errQuota)))
	require.False(t, IsTransient(errQuota))
	require.Equal(t, "transient", ClassTransient.String())
}
