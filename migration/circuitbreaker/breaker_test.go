package circuitbreaker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskmesh/lib-migration/migration/log"
)

var errBackendDown = errors.New("backend down")

func testBreaker(t *testing.T, config Config) *Breaker {
	t.Helper()

	breaker, err := NewBreaker("unified_queue", config, &log.NoneLogger{})
	require.NoError(t, err)

	return breaker
}

// fakeClock lets tests drive the recovery timeout without sleeping.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Unix(1700000000, 0)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.now = c.now.Add(d)
}

func failingPrimary(_ context.Context) (any, error) {
	return nil, errBackendDown
}

func succeedingPrimary(_ context.Context) (any, error) {
	return "ok", nil
}

func TestBreaker_InitialStateClosed(t *testing.T) {
	breaker := testBreaker(t, DefaultConfig())

	assert.Equal(t, StateClosed, breaker.State())
}

func TestBreaker_InvalidConfig(t *testing.T) {
	_, err := NewBreaker("b", Config{}, &log.NoneLogger{})
	assert.ErrorIs(t, err, ErrInvalidFailureThreshold)

	_, err = NewBreaker("b", Config{FailureThreshold: 1}, &log.NoneLogger{})
	assert.ErrorIs(t, err, ErrInvalidRecoveryTimeout)

	_, err = NewBreaker("b", Config{FailureThreshold: 1, RecoveryTimeout: time.Second}, &log.NoneLogger{})
	assert.ErrorIs(t, err, ErrInvalidSuccessThreshold)
}

func TestBreaker_TripsExactlyAtThreshold(t *testing.T) {
	breaker := testBreaker(t, Config{FailureThreshold: 3, RecoveryTimeout: time.Minute, SuccessThreshold: 1})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := breaker.Call(ctx, failingPrimary, nil)
		require.ErrorIs(t, err, errBackendDown)
		assert.Equal(t, StateClosed, breaker.State(), "must not trip before the threshold")
	}

	_, err := breaker.Call(ctx, failingPrimary, nil)
	require.ErrorIs(t, err, errBackendDown)
	assert.Equal(t, StateOpen, breaker.State(), "must trip exactly on the Nth consecutive failure")
}

func TestBreaker_SuccessResetsFailureCount(t *testing.T) {
	breaker := testBreaker(t, Config{FailureThreshold: 3, RecoveryTimeout: time.Minute, SuccessThreshold: 1})
	ctx := context.Background()

	_, _ = breaker.Call(ctx, failingPrimary, nil)
	_, _ = breaker.Call(ctx, failingPrimary, nil)

	_, err := breaker.Call(ctx, succeedingPrimary, nil)
	require.NoError(t, err)

	// The counter restarted, so two more failures are not enough.
	_, _ = breaker.Call(ctx, failingPrimary, nil)
	_, _ = breaker.Call(ctx, failingPrimary, nil)
	assert.Equal(t, StateClosed, breaker.State())

	_, _ = breaker.Call(ctx, failingPrimary, nil)
	assert.Equal(t, StateOpen, breaker.State())
}

func TestBreaker_OpenShortCircuitsToFallback(t *testing.T) {
	breaker := testBreaker(t, Config{FailureThreshold: 2, RecoveryTimeout: time.Minute, SuccessThreshold: 1})
	ctx := context.Background()

	_, _ = breaker.Call(ctx, failingPrimary, nil)
	_, _ = breaker.Call(ctx, failingPrimary, nil)
	require.Equal(t, StateOpen, breaker.State())

	primaryInvoked := false
	primary := func(_ context.Context) (any, error) {
		primaryInvoked = true
		return "primary", nil
	}
	fallback := func(_ context.Context) (any, error) {
		return "fallback", nil
	}

	result, info, err := breaker.CallWithInfo(ctx, primary, fallback)

	require.NoError(t, err)
	assert.Equal(t, "fallback", result)
	assert.False(t, primaryInvoked, "open breaker must never invoke primary before the recovery timeout")
	assert.False(t, info.PrimaryAttempted)
	assert.True(t, info.FallbackUsed)
}

func TestBreaker_OpenWithoutFallback(t *testing.T) {
	breaker := testBreaker(t, Config{FailureThreshold: 1, RecoveryTimeout: time.Minute, SuccessThreshold: 1})
	ctx := context.Background()

	_, _ = breaker.Call(ctx, failingPrimary, nil)
	require.Equal(t, StateOpen, breaker.State())

	_, err := breaker.Call(ctx, failingPrimary, nil)
	assert.ErrorIs(t, err, ErrCircuitOpen)
}

func TestBreaker_FallbackOnPrimaryFailure(t *testing.T) {
	breaker := testBreaker(t, DefaultConfig())

	result, info, err := breaker.CallWithInfo(context.Background(), failingPrimary, func(_ context.Context) (any, error) {
		return "fallback", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "fallback", result)
	assert.True(t, info.PrimaryAttempted)
	assert.True(t, info.FallbackUsed)
	assert.ErrorIs(t, info.PrimaryErr, errBackendDown)
}

func TestBreaker_RecoveryTimeoutAllowsProbe(t *testing.T) {
	clock := newFakeClock()
	breaker := testBreaker(t, Config{FailureThreshold: 1, RecoveryTimeout: time.Second, SuccessThreshold: 2})
	breaker.now = clock.Now

	ctx := context.Background()

	_, _ = breaker.Call(ctx, failingPrimary, nil)
	require.Equal(t, StateOpen, breaker.State())

	// Just short of the timeout: still short-circuiting.
	clock.Advance(900 * time.Millisecond)

	primaryInvoked := false
	_, _ = breaker.Call(ctx, func(_ context.Context) (any, error) {
		primaryInvoked = true
		return "ok", nil
	}, func(_ context.Context) (any, error) { return "fb", nil })
	assert.False(t, primaryInvoked)

	// Past the timeout: the next call probes the primary again.
	clock.Advance(200 * time.Millisecond)

	_, err := breaker.Call(ctx, func(_ context.Context) (any, error) {
		primaryInvoked = true
		return "ok", nil
	}, nil)
	require.NoError(t, err)
	assert.True(t, primaryInvoked)
	assert.Equal(t, StateHalfOpen, breaker.State())
}

func TestBreaker_ClosesAfterSuccessThreshold(t *testing.T) {
	clock := newFakeClock()
	breaker := testBreaker(t, Config{FailureThreshold: 1, RecoveryTimeout: time.Second, SuccessThreshold: 2})
	breaker.now = clock.Now

	ctx := context.Background()

	_, _ = breaker.Call(ctx, failingPrimary, nil)
	clock.Advance(2 * time.Second)

	_, err := breaker.Call(ctx, succeedingPrimary, nil)
	require.NoError(t, err)
	require.Equal(t, StateHalfOpen, breaker.State())

	_, err = breaker.Call(ctx, succeedingPrimary, nil)
	require.NoError(t, err)

	assert.Equal(t, StateClosed, breaker.State())
	assert.Zero(t, breaker.failureCount)
	assert.Zero(t, breaker.successCount)
}

func TestBreaker_FailedProbeReopens(t *testing.T) {
	clock := newFakeClock()
	breaker := testBreaker(t, Config{FailureThreshold: 1, RecoveryTimeout: time.Second, SuccessThreshold: 2})
	breaker.now = clock.Now

	ctx := context.Background()

	_, _ = breaker.Call(ctx, failingPrimary, nil)
	clock.Advance(2 * time.Second)

	_, err := breaker.Call(ctx, failingPrimary, nil)
	require.ErrorIs(t, err, errBackendDown)
	require.Equal(t, StateOpen, breaker.State())

	// openedAt restarted: without advancing the clock the breaker still
	// short-circuits.
	primaryInvoked := false
	_, _ = breaker.Call(ctx, func(_ context.Context) (any, error) {
		primaryInvoked = true
		return nil, errBackendDown
	}, func(_ context.Context) (any, error) { return "fb", nil })
	assert.False(t, primaryInvoked)
}

func TestBreaker_HalfOpenSingleFlight(t *testing.T) {
	const concurrentCallers = 8

	breaker := testBreaker(t, Config{FailureThreshold: 1, RecoveryTimeout: 30 * time.Millisecond, SuccessThreshold: 2})
	ctx := context.Background()

	_, _ = breaker.Call(ctx, failingPrimary, nil)
	require.Equal(t, StateOpen, breaker.State())

	time.Sleep(50 * time.Millisecond)

	var primaryCalls atomic.Int32

	probeStarted := make(chan struct{}, 1)
	release := make(chan struct{})

	primary := func(_ context.Context) (any, error) {
		primaryCalls.Add(1)
		probeStarted <- struct{}{}
		<-release

		return "primary", nil
	}
	fallback := func(_ context.Context) (any, error) {
		return "fallback", nil
	}

	results := make(chan string, concurrentCallers)

	for i := 0; i < concurrentCallers; i++ {
		go func() {
			result, err := breaker.Call(ctx, primary, fallback)
			if err != nil {
				results <- "error: " + err.Error()
				return
			}
			results <- result.(string)
		}()
	}

	<-probeStarted

	// While the single probe is in flight, every other caller is served by
	// the fallback without touching the primary.
	for i := 0; i < concurrentCallers-1; i++ {
		assert.Equal(t, "fallback", <-results)
	}

	close(release)
	assert.Equal(t, "primary", <-results)
	assert.Equal(t, int32(1), primaryCalls.Load(), "exactly one caller may probe")
}

func TestBreaker_FailurePredicateExcludesCancellation(t *testing.T) {
	breaker := testBreaker(t, Config{
		FailureThreshold: 1,
		RecoveryTimeout:  time.Minute,
		SuccessThreshold: 1,
		FailurePredicate: func(err error) bool {
			return !errors.Is(err, context.Canceled)
		},
	})
	ctx := context.Background()

	// Cancellations do not count toward the threshold.
	for i := 0; i < 5; i++ {
		_, err := breaker.Call(ctx, func(_ context.Context) (any, error) {
			return nil, context.Canceled
		}, nil)
		require.ErrorIs(t, err, context.Canceled)
	}

	assert.Equal(t, StateClosed, breaker.State())

	// A matching error still trips.
	_, _ = breaker.Call(ctx, failingPrimary, nil)
	assert.Equal(t, StateOpen, breaker.State())
}

func TestBreaker_TimeoutCountsAsFailureByDefault(t *testing.T) {
	breaker := testBreaker(t, Config{FailureThreshold: 1, RecoveryTimeout: time.Minute, SuccessThreshold: 1})

	_, err := breaker.Call(context.Background(), func(_ context.Context) (any, error) {
		return nil, context.DeadlineExceeded
	}, nil)

	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, StateOpen, breaker.State())
}

func TestBreaker_Metrics(t *testing.T) {
	clock := newFakeClock()
	breaker := testBreaker(t, Config{FailureThreshold: 2, RecoveryTimeout: time.Minute, SuccessThreshold: 1})
	breaker.now = clock.Now

	ctx := context.Background()

	timedPrimary := func(result any, err error) CallFunc {
		return func(_ context.Context) (any, error) {
			clock.Advance(10 * time.Millisecond)
			return result, err
		}
	}

	_, _ = breaker.Call(ctx, timedPrimary("ok", nil), nil)
	_, _ = breaker.Call(ctx, timedPrimary(nil, errBackendDown), nil)
	_, _ = breaker.Call(ctx, timedPrimary(nil, errBackendDown), nil)

	// Breaker is now open; this call short-circuits.
	_, _ = breaker.Call(ctx, timedPrimary("ok", nil), func(_ context.Context) (any, error) { return "fb", nil })

	m := breaker.Metrics()
	assert.Equal(t, uint64(4), m.TotalCalls)
	assert.Equal(t, uint64(1), m.SuccessfulCalls)
	assert.Equal(t, uint64(2), m.FailedCalls)
	assert.Equal(t, uint64(1), m.CircuitOpenCount)
	assert.Equal(t, 10*time.Millisecond, m.AverageResponseTime)
}

func TestBreaker_Reset(t *testing.T) {
	breaker := testBreaker(t, Config{FailureThreshold: 1, RecoveryTimeout: time.Hour, SuccessThreshold: 3})
	ctx := context.Background()

	_, _ = breaker.Call(ctx, failingPrimary, nil)
	require.Equal(t, StateOpen, breaker.State())

	breaker.Reset()

	assert.Equal(t, StateClosed, breaker.State())

	result, err := breaker.Call(ctx, succeedingPrimary, nil)
	require.NoError(t, err)
	assert.Equal(t, "ok", result)
}

func TestBreaker_LegalTransitionGraph(t *testing.T) {
	clock := newFakeClock()
	breaker := testBreaker(t, Config{FailureThreshold: 1, RecoveryTimeout: time.Second, SuccessThreshold: 1})
	breaker.now = clock.Now

	type edge struct{ from, to State }

	var edges []edge

	breaker.onStateChange = func(_ string, from, to State) {
		edges = append(edges, edge{from, to})
	}

	ctx := context.Background()

	_, _ = breaker.Call(ctx, failingPrimary, nil) // closed -> open
	clock.Advance(2 * time.Second)
	_, _ = breaker.Call(ctx, failingPrimary, nil) // open -> half-open -> open
	clock.Advance(2 * time.Second)
	_, _ = breaker.Call(ctx, succeedingPrimary, nil) // open -> half-open -> closed

	assert.Equal(t, []edge{
		{StateClosed, StateOpen},
		{StateOpen, StateHalfOpen},
		{StateHalfOpen, StateOpen},
		{StateOpen, StateHalfOpen},
		{StateHalfOpen, StateClosed},
	}, edges)
}
