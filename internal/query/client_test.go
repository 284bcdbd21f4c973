package query

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/btp2/btpmon/internal/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const waitFor = 2 * time.Second

func noDelay(int) time.Duration { return 0 }

func newTestClient(t *testing.T, opts Options) *Client {
	t.Helper()
	if opts.RetryDelay == nil {
		opts.RetryDelay = noDelay
	}
	c := New(opts)
	t.Cleanup(c.Close)
	return c
}

// fakeClock is a manually advanced clock for staleness tests.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

// counter returns a fetcher that counts calls and returns the call number.
func counter(calls *atomic.Int32) Fetcher {
	return func(context.Context) (any, error) {
		return int(calls.Add(1)), nil
	}
}

// recorder collects listener notifications.
type recorder struct {
	mu     sync.Mutex
	states []State
}

func (r *recorder) listen(st State) {
	r.mu.Lock()
	r.states = append(r.states, st)
	r.mu.Unlock()
}

func (r *recorder) snapshot() []State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]State(nil), r.states...)
}

func (r *recorder) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.states)
}

func (r *recorder) last() (State, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.states) == 0 {
		return State{}, false
	}
	return r.states[len(r.states)-1], true
}

func (r *recorder) settled() bool {
	st, ok := r.last()
	return ok && st.Status != StatusPending && !st.Fetching
}

func TestNew_Defaults(t *testing.T) {
	c := New(Options{Retry: -2})
	defer c.Close()

	assert.Equal(t, 0, c.Options().Retry)
	assert.NotNil(t, c.Options().RetryDelay)
	assert.NotNil(t, c.log)
}

func TestQuery_DeduplicatesConcurrentRequests(t *testing.T) {
	c := newTestClient(t, Options{StaleTime: time.Minute})

	var calls atomic.Int32
	release := make(chan struct{})
	fetch := func(context.Context) (any, error) {
		calls.Add(1)
		<-release
		return "ok", nil
	}

	for i := 0; i < 10; i++ {
		st := c.Query("/foo/status", fetch)
		assert.True(t, st.Fetching)
		assert.Equal(t, StatusPending, st.Status)
	}

	var wg sync.WaitGroup
	results := make([]any, 8)
	errs := make([]error, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = c.Fetch(context.Background(), "/foo/status", fetch)
		}(i)
	}

	require.Eventually(t, func() bool { return calls.Load() == 1 }, waitFor, 5*time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	for i := range results {
		require.NoError(t, errs[i])
		assert.Equal(t, "ok", results[i])
	}
}

func TestQuery_DifferentKeysFetchIndependently(t *testing.T) {
	c := newTestClient(t, Options{StaleTime: time.Minute})

	var calls atomic.Int32
	fetch := counter(&calls)

	_, err := c.Fetch(context.Background(), "/foo/status", fetch)
	require.NoError(t, err)
	_, err = c.Fetch(context.Background(), "/foo/events?limit=50", fetch)
	require.NoError(t, err)

	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, []Key{"/foo/events?limit=50", "/foo/status"}, c.Keys())
}

func TestQuery_FreshDataServedFromCache(t *testing.T) {
	c := newTestClient(t, Options{StaleTime: time.Minute})
	clock := newFakeClock()
	c.now = clock.Now

	var calls atomic.Int32
	fetch := counter(&calls)

	data, err := c.Fetch(context.Background(), "k", fetch)
	require.NoError(t, err)
	assert.Equal(t, 1, data)

	clock.Advance(30 * time.Second)

	st := c.Query("k", fetch)
	assert.Equal(t, StatusSuccess, st.Status)
	assert.Equal(t, 1, st.Data)
	assert.False(t, st.Fetching)

	data, err = c.Fetch(context.Background(), "k", fetch)
	require.NoError(t, err)
	assert.Equal(t, 1, data)

	assert.Equal(t, int32(1), calls.Load())
}

func TestQuery_StaleTriggersExactlyOneRefresh(t *testing.T) {
	c := newTestClient(t, Options{StaleTime: time.Minute})
	clock := newFakeClock()
	c.now = clock.Now

	var calls atomic.Int32
	release := make(chan struct{})
	fetch := func(context.Context) (any, error) {
		n := calls.Add(1)
		if n > 1 {
			<-release
		}
		return int(n), nil
	}

	_, err := c.Fetch(context.Background(), "k", fetch)
	require.NoError(t, err)

	clock.Advance(time.Minute + time.Second)

	// Stale data is still returned while the refresh runs.
	for i := 0; i < 5; i++ {
		st := c.Query("k", fetch)
		assert.Equal(t, 1, st.Data)
		assert.True(t, st.Fetching)
	}
	close(release)

	require.Eventually(t, func() bool {
		st, _ := c.State("k")
		return !st.Fetching && st.Data == 2
	}, waitFor, 5*time.Millisecond)

	st := c.Query("k", fetch)
	assert.Equal(t, 2, st.Data)
	assert.False(t, st.Fetching)
	assert.Equal(t, int32(2), calls.Load())
}

func TestQuery_ZeroStaleTimeAlwaysRefetches(t *testing.T) {
	c := newTestClient(t, Options{})

	var calls atomic.Int32
	fetch := counter(&calls)

	for i := 1; i <= 3; i++ {
		data, err := c.Fetch(context.Background(), "k", fetch)
		require.NoError(t, err)
		assert.Equal(t, i, data)
	}
	assert.Equal(t, int32(3), calls.Load())
}

func TestFetch_RetryAttempts(t *testing.T) {
	tests := []struct {
		name     string
		retry    int
		attempts int32
	}{
		{name: "no retry", retry: 0, attempts: 1},
		{name: "one retry", retry: 1, attempts: 2},
		{name: "two retries", retry: 2, attempts: 3},
		{name: "five retries", retry: 5, attempts: 6},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, Options{Retry: tt.retry})

			var calls atomic.Int32
			boom := errors.New("boom")
			fetch := func(context.Context) (any, error) {
				calls.Add(1)
				return nil, boom
			}

			_, err := c.Fetch(context.Background(), "k", fetch)
			require.ErrorIs(t, err, boom)
			assert.Equal(t, tt.attempts, calls.Load())

			st, ok := c.State("k")
			require.True(t, ok)
			assert.Equal(t, StatusError, st.Status)
			assert.Equal(t, int(tt.attempts), st.FailureCount)
			assert.False(t, st.Fetching)
			assert.False(t, st.ErrorAt.IsZero())
		})
	}
}

func TestFetch_PerQueryRetryOverride(t *testing.T) {
	c := newTestClient(t, Options{Retry: 5})

	var calls atomic.Int32
	fetch := func(context.Context) (any, error) {
		calls.Add(1)
		return nil, errors.New("down")
	}

	_, err := c.Fetch(context.Background(), "k", fetch, WithRetry(1))
	require.Error(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestFetch_RetrySucceedsAfterFailures(t *testing.T) {
	c := newTestClient(t, Options{Retry: 3})

	var calls atomic.Int32
	fetch := func(context.Context) (any, error) {
		if calls.Add(1) < 3 {
			return nil, errors.New("flaky")
		}
		return "ok", nil
	}

	data, err := c.Fetch(context.Background(), "k", fetch)
	require.NoError(t, err)
	assert.Equal(t, "ok", data)
	assert.Equal(t, int32(3), calls.Load())

	st, _ := c.State("k")
	assert.Equal(t, StatusSuccess, st.Status)
	assert.Equal(t, 0, st.FailureCount)
	assert.NoError(t, st.Err)
}

func TestFetch_RetryDelayIsUsed(t *testing.T) {
	var (
		mu     sync.Mutex
		delays []int
	)
	c := newTestClient(t, Options{
		Retry: 2,
		RetryDelay: func(attempt int) time.Duration {
			mu.Lock()
			delays = append(delays, attempt)
			mu.Unlock()
			return time.Millisecond
		},
	})

	_, err := c.Fetch(context.Background(), "k", func(context.Context) (any, error) {
		return nil, errors.New("down")
	})
	require.Error(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int{0, 1}, delays)
}

func TestFetch_ErrorKeepsPreviousData(t *testing.T) {
	c := newTestClient(t, Options{})

	_, err := c.Fetch(context.Background(), "k", func(context.Context) (any, error) {
		return "good", nil
	})
	require.NoError(t, err)

	_, err = c.Fetch(context.Background(), "k", func(context.Context) (any, error) {
		return nil, errors.New("backend down")
	})
	require.Error(t, err)

	st, _ := c.State("k")
	assert.Equal(t, StatusError, st.Status)
	assert.Equal(t, "good", st.Data)
	assert.True(t, st.HasData())
	assert.EqualError(t, st.Err, "backend down")
}

func TestFetch_PanicBecomesError(t *testing.T) {
	c := newTestClient(t, Options{})

	_, err := c.Fetch(context.Background(), "k", func(context.Context) (any, error) {
		panic("bad fetcher")
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad fetcher")

	st, _ := c.State("k")
	assert.Equal(t, StatusError, st.Status)
}

func TestFetch_NilFetcher(t *testing.T) {
	c := newTestClient(t, Options{})

	_, err := c.Fetch(context.Background(), "k", nil)
	assert.Error(t, err)
}

func TestFetch_ContextCancelled(t *testing.T) {
	c := newTestClient(t, Options{})

	started := make(chan struct{})
	fetch := func(ctx context.Context) (any, error) {
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	}

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := c.Fetch(ctx, "k", fetch)
		errCh <- err
	}()

	<-started
	cancel()

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(waitFor):
		t.Fatal("Fetch did not return after cancel")
	}

	// The shared fetch keeps running until the client closes.
	st, _ := c.State("k")
	assert.True(t, st.Fetching)
}

func TestFetch_TimeoutPerAttempt(t *testing.T) {
	c := newTestClient(t, Options{FetchTimeout: 10 * time.Millisecond})

	_, err := c.Fetch(context.Background(), "k", func(ctx context.Context) (any, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestWatch_DeliversTransitionsInOrder(t *testing.T) {
	c := newTestClient(t, Options{})

	rec := &recorder{}
	sub := c.Watch("k", func(context.Context) (any, error) { return "ok", nil }, rec.listen)
	defer sub.Unsubscribe()

	require.Eventually(t, rec.settled, waitFor, 5*time.Millisecond)

	states := rec.snapshot()
	require.Len(t, states, 3)

	assert.Equal(t, StatusPending, states[0].Status)
	assert.False(t, states[0].Fetching)

	assert.Equal(t, StatusPending, states[1].Status)
	assert.True(t, states[1].Fetching)

	assert.Equal(t, StatusSuccess, states[2].Status)
	assert.Equal(t, "ok", states[2].Data)
	assert.False(t, states[2].Fetching)
}

func TestWatch_SharesCachedData(t *testing.T) {
	c := newTestClient(t, Options{StaleTime: time.Minute})

	var calls atomic.Int32
	fetch := counter(&calls)

	first := &recorder{}
	sub1 := c.Watch("k", fetch, first.listen)
	defer sub1.Unsubscribe()
	require.Eventually(t, first.settled, waitFor, 5*time.Millisecond)

	second := &recorder{}
	sub2 := c.Watch("k", fetch, second.listen)
	defer sub2.Unsubscribe()
	require.Eventually(t, second.settled, waitFor, 5*time.Millisecond)

	st, _ := second.last()
	assert.Equal(t, 1, st.Data)
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, 2, c.Observers("k"))
}

func TestWatch_NoCallbackAfterUnsubscribe(t *testing.T) {
	c := newTestClient(t, Options{})

	var calls atomic.Int32
	fetch := counter(&calls)

	rec := &recorder{}
	sub := c.Watch("k", fetch, rec.listen)
	require.Eventually(t, rec.settled, waitFor, 5*time.Millisecond)

	sub.Unsubscribe()
	assert.False(t, sub.Active())
	assert.Equal(t, 0, c.Observers("k"))
	seen := rec.len()

	// Further activity on the key must not reach the released listener.
	_, err := c.Fetch(context.Background(), "k", fetch)
	require.NoError(t, err)
	c.SetData("k", "manual")
	c.Invalidate("k")

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, seen, rec.len())

	// Unsubscribe is idempotent.
	sub.Unsubscribe()
}

func TestWatch_UnsubscribeDuringFetch(t *testing.T) {
	c := newTestClient(t, Options{StaleTime: time.Minute})

	release := make(chan struct{})
	fetch := func(context.Context) (any, error) {
		<-release
		return "late", nil
	}

	rec := &recorder{}
	sub := c.Watch("k", fetch, rec.listen)
	require.Eventually(t, func() bool {
		st, ok := rec.last()
		return ok && st.Fetching
	}, waitFor, 5*time.Millisecond)

	sub.Unsubscribe()
	seen := rec.len()
	close(release)

	// The fetch still lands in the cache for later consumers.
	require.Eventually(t, func() bool {
		st, _ := c.State("k")
		return st.Status == StatusSuccess
	}, waitFor, 5*time.Millisecond)

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, seen, rec.len())

	st := c.Query("k", fetch)
	assert.Equal(t, "late", st.Data)
}

func TestWatch_UnsubscribeFromListener(t *testing.T) {
	c := newTestClient(t, Options{})

	done := make(chan struct{})
	var sub *Subscription
	var once sync.Once
	ready := make(chan struct{})

	sub = c.Watch("k", func(context.Context) (any, error) { return 1, nil }, func(st State) {
		<-ready
		if st.Status == StatusSuccess {
			sub.Unsubscribe()
			once.Do(func() { close(done) })
		}
	})
	close(ready)

	select {
	case <-done:
	case <-time.After(waitFor):
		t.Fatal("listener never saw success")
	}
	assert.False(t, sub.Active())
}

func TestWatch_RefetchInterval(t *testing.T) {
	c := newTestClient(t, Options{StaleTime: time.Hour})

	var calls atomic.Int32
	fetch := counter(&calls)

	rec := &recorder{}
	sub := c.Watch("k", fetch, rec.listen, WithRefetchInterval(10*time.Millisecond))

	require.Eventually(t, func() bool { return calls.Load() >= 3 }, waitFor, 5*time.Millisecond)

	sub.Unsubscribe()
	stopped := calls.Load()
	time.Sleep(60 * time.Millisecond)

	// At most one tick may have been in flight when polling stopped.
	assert.LessOrEqual(t, calls.Load(), stopped+1)
}

func TestWatch_ClientDefaultRefetchInterval(t *testing.T) {
	c := newTestClient(t, Options{StaleTime: time.Hour, RefetchInterval: 10 * time.Millisecond})

	var calls atomic.Int32
	sub := c.Watch("k", counter(&calls), func(State) {})
	defer sub.Unsubscribe()

	require.Eventually(t, func() bool { return calls.Load() >= 2 }, waitFor, 5*time.Millisecond)
}

func TestSubscribe_DoesNotFetch(t *testing.T) {
	c := newTestClient(t, Options{})

	rec := &recorder{}
	sub := c.Subscribe("k", rec.listen)
	defer sub.Unsubscribe()

	c.SetData("k", "pushed")

	require.Eventually(t, func() bool { return rec.len() == 1 }, waitFor, 5*time.Millisecond)
	st, _ := rec.last()
	assert.Equal(t, StatusSuccess, st.Status)
	assert.Equal(t, "pushed", st.Data)
}

func TestInvalidate(t *testing.T) {
	t.Run("refetches observed key", func(t *testing.T) {
		c := newTestClient(t, Options{StaleTime: time.Hour})

		var calls atomic.Int32
		rec := &recorder{}
		sub := c.Watch("k", counter(&calls), rec.listen)
		defer sub.Unsubscribe()
		require.Eventually(t, rec.settled, waitFor, 5*time.Millisecond)

		c.Invalidate("k")
		require.Eventually(t, func() bool {
			st, ok := rec.last()
			return ok && st.Data == 2 && !st.Fetching
		}, waitFor, 5*time.Millisecond)
	})

	t.Run("unobserved key refetches on next query", func(t *testing.T) {
		c := newTestClient(t, Options{StaleTime: time.Hour})

		var calls atomic.Int32
		fetch := counter(&calls)
		_, err := c.Fetch(context.Background(), "k", fetch)
		require.NoError(t, err)

		c.Invalidate("k")
		assert.Equal(t, int32(1), calls.Load())

		data, err := c.Fetch(context.Background(), "k", fetch)
		require.NoError(t, err)
		assert.Equal(t, 2, data)
	})

	t.Run("unknown key is ignored", func(t *testing.T) {
		c := newTestClient(t, Options{})
		c.Invalidate("missing")
		_, ok := c.State("missing")
		assert.False(t, ok)
	})
}

func TestInvalidateAll(t *testing.T) {
	c := newTestClient(t, Options{StaleTime: time.Hour})

	var calls atomic.Int32
	fetch := counter(&calls)
	for _, k := range []Key{"a", "b"} {
		_, err := c.Fetch(context.Background(), k, fetch)
		require.NoError(t, err)
	}

	c.InvalidateAll()

	for _, k := range []Key{"a", "b"} {
		st := c.Query(k, fetch)
		assert.True(t, st.Fetching, "key %s should refetch", k)
	}
}

func TestState_Unknown(t *testing.T) {
	c := newTestClient(t, Options{})

	st, ok := c.State("nope")
	assert.False(t, ok)
	assert.Equal(t, Key("nope"), st.Key)
	assert.Equal(t, StatusPending, st.Status)
}

func TestClose(t *testing.T) {
	c := New(Options{RetryDelay: noDelay})

	rec := &recorder{}
	sub := c.Watch("k", func(ctx context.Context) (any, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}, rec.listen, WithRefetchInterval(5*time.Millisecond))

	done := make(chan struct{})
	go func() {
		c.Close()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(waitFor):
		t.Fatal("Close did not return")
	}

	assert.False(t, sub.Active())

	var calls atomic.Int32
	st := c.Query("other", counter(&calls))
	assert.False(t, st.Fetching)

	_, err := c.Fetch(context.Background(), "other", counter(&calls))
	assert.ErrorIs(t, err, ErrClosed)
	assert.Equal(t, int32(0), calls.Load())

	late := c.Subscribe("k", func(State) {})
	assert.False(t, late.Active())

	// Idempotent.
	c.Close()
}

func TestClient_LogsRetries(t *testing.T) {
	buf := logger.NewBufferLogger()
	c := newTestClient(t, Options{Retry: 1, Logger: buf})

	_, err := c.Fetch(context.Background(), "/foo/events", func(context.Context) (any, error) {
		return nil, errors.New("500")
	})
	require.Error(t, err)

	assert.True(t, buf.HasLevel("warn"))
	assert.True(t, buf.HasLevel("error"))

	var text []string
	for _, m := range buf.Messages {
		text = append(text, m.Level+": "+m.Message)
	}
	joined := strings.Join(text, "\n")
	assert.Contains(t, joined, "warn: fetch /foo/events failed (attempt 1/2)")
	assert.Contains(t, joined, "error: fetch /foo/events failed after 2 attempt(s)")
}

func TestExponentialBackoff(t *testing.T) {
	tests := []struct {
		name     string
		base     time.Duration
		maxDelay time.Duration
		attempt  int
		want     time.Duration
	}{
		{name: "first retry", base: time.Second, maxDelay: 30 * time.Second, attempt: 0, want: time.Second},
		{name: "doubles", base: time.Second, maxDelay: 30 * time.Second, attempt: 1, want: 2 * time.Second},
		{name: "doubles again", base: time.Second, maxDelay: 30 * time.Second, attempt: 3, want: 8 * time.Second},
		{name: "capped", base: time.Second, maxDelay: 30 * time.Second, attempt: 10, want: 30 * time.Second},
		{name: "no cap", base: time.Millisecond, maxDelay: 0, attempt: 4, want: 16 * time.Millisecond},
		{name: "zero base", base: 0, maxDelay: time.Second, attempt: 2, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExponentialBackoff(tt.base, tt.maxDelay)(tt.attempt))
		})
	}
}

func TestStatus_String(t *testing.T) {
	assert.Equal(t, "pending", StatusPending.String())
	assert.Equal(t, "success", StatusSuccess.String())
	assert.Equal(t, "error", StatusError.String())
	assert.Equal(t, "unknown", Status(42).String())
}

func TestDataAs(t *testing.T) {
	st := State{Data: 42}

	n, ok := DataAs[int](st)
	assert.True(t, ok)
	assert.Equal(t, 42, n)

	_, ok = DataAs[string](st)
	assert.False(t, ok)
}
