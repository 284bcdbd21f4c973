package query

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/btp2/btpmon/internal/logger"
	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
)

// ErrClosed is returned by Fetch after Close.
var ErrClosed = errors.New("query client is closed")

// Client is the shared cache and fetch coordinator. Create one per process
// with New and pass it by reference; Close it when the application exits.
type Client struct {
	opts Options
	log  logger.Logger
	now  func() time.Time

	mu      sync.Mutex
	entries map[Key]*entry
	closed  bool

	group  singleflight.Group
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// entry is the cache slot for one key. All fields are guarded by Client.mu.
type entry struct {
	state    State
	fetcher  Fetcher
	settings settings
	invalid  bool

	// gen is the last claimed fetch generation, settled the last one that
	// finished. A claim happens only while no fetch is in flight, so at most
	// one generation is ever outstanding.
	gen     uint64
	settled uint64

	subs map[uuid.UUID]*Subscription
}

// New creates a Client.
func New(opts Options) *Client {
	if opts.Retry < 0 {
		opts.Retry = 0
	}
	if opts.RetryDelay == nil {
		opts.RetryDelay = ExponentialBackoff(time.Second, 30*time.Second)
	}
	log := opts.Logger
	if log == nil {
		log = logger.Noop()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		opts:    opts,
		log:     log,
		now:     time.Now,
		entries: make(map[Key]*entry),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Options returns the client-wide options.
func (c *Client) Options() Options {
	return c.opts
}

// Query registers interest in key and returns its current state without
// blocking. A background fetch starts when the key has no fresh data and no
// fetch is already in flight; otherwise callers share the existing one.
func (c *Client) Query(key Key, fetch Fetcher, opts ...Option) State {
	s := c.resolve(opts)

	c.mu.Lock()
	e := c.entryLocked(key)
	e.fetcher, e.settings = fetch, s
	gen, start := c.maybeClaimLocked(e, fetch)
	st := e.state
	c.mu.Unlock()

	if start {
		go c.execute(key, gen, fetch, s)
	}
	return st
}

// Fetch returns data for key, blocking until a fetch settles or ctx ends.
// Fresh cached data is returned without fetching. An in-flight fetch for the
// key is joined rather than duplicated.
func (c *Client) Fetch(ctx context.Context, key Key, fetch Fetcher, opts ...Option) (any, error) {
	if fetch == nil {
		return nil, fmt.Errorf("query %s: nil fetcher", key)
	}
	s := c.resolve(opts)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	e := c.entryLocked(key)
	e.fetcher, e.settings = fetch, s
	if e.state.Status == StatusSuccess && !c.isStaleLocked(e) {
		data := e.state.Data
		c.mu.Unlock()
		return data, nil
	}
	gen, start := c.maybeClaimLocked(e, fetch)
	if !start {
		gen = e.gen
	}
	c.mu.Unlock()

	if start {
		go c.execute(key, gen, fetch, s)
	}

	for {
		ch := c.group.DoChan(string(key), c.callFn(key, gen, fetch, s))
		select {
		case <-ch:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		if st, ok := c.settledState(key, gen); ok {
			return settledResult(st)
		}
	}
}

// Subscribe registers fn for state changes on key. It does not fetch.
func (c *Client) Subscribe(key Key, fn Listener) *Subscription {
	sub := newSubscription(c, key, fn)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		sub.Unsubscribe()
		return sub
	}
	c.entryLocked(key).subs[sub.id] = sub
	c.mu.Unlock()

	return sub
}

// Watch subscribes fn to key, delivers the current state, queries the key,
// and, when a refetch interval applies, polls it until the subscription is
// released.
func (c *Client) Watch(key Key, fetch Fetcher, fn Listener, opts ...Option) *Subscription {
	s := c.resolve(opts)
	sub := newSubscription(c, key, fn)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		sub.Unsubscribe()
		return sub
	}

	if s.refetchInterval > 0 && fetch != nil {
		pollCtx, cancel := context.WithCancel(c.ctx)
		sub.stopPoll = cancel
		c.wg.Add(1)
		go c.poll(pollCtx, key, fetch, s)
	}

	e := c.entryLocked(key)
	e.subs[sub.id] = sub
	e.fetcher, e.settings = fetch, s
	sub.enqueue(e.state)
	gen, start := c.maybeClaimLocked(e, fetch)
	c.mu.Unlock()

	if start {
		go c.execute(key, gen, fetch, s)
	}
	return sub
}

// Invalidate marks key stale. If anyone is observing it, a refetch starts.
func (c *Client) Invalidate(key Key) {
	c.mu.Lock()
	e, ok := c.entries[key]
	if !ok {
		c.mu.Unlock()
		return
	}
	e.invalid = true
	var (
		gen   uint64
		start bool
	)
	if len(e.subs) > 0 {
		gen, start = c.maybeClaimLocked(e, e.fetcher)
	}
	fetch, s := e.fetcher, e.settings
	c.mu.Unlock()

	if start {
		go c.execute(key, gen, fetch, s)
	}
}

// InvalidateAll marks every key stale and refetches the observed ones.
func (c *Client) InvalidateAll() {
	for _, key := range c.Keys() {
		c.Invalidate(key)
	}
}

// SetData stores data for key as a successful result and notifies listeners.
func (c *Client) SetData(key Key, data any) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e := c.entryLocked(key)
	e.invalid = false
	e.state.Status = StatusSuccess
	e.state.Data = data
	e.state.Err = nil
	e.state.UpdatedAt = c.now()
	e.state.FailureCount = 0
	c.publishLocked(e)
}

// State returns the cached state for key.
func (c *Client) State(key Key) (State, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return State{Key: key}, false
	}
	return e.state, true
}

// Observers returns how many active subscriptions key has.
func (c *Client) Observers(key Key) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		return len(e.subs)
	}
	return 0
}

// Keys returns every cached key in sorted order.
func (c *Client) Keys() []Key {
	c.mu.Lock()
	keys := make([]Key, 0, len(c.entries))
	for k := range c.entries {
		keys = append(keys, k)
	}
	c.mu.Unlock()

	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

// Close cancels in-flight fetches, releases all subscriptions, and waits for
// background work to finish. The cache stays readable.
func (c *Client) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	var subs []*Subscription
	for _, e := range c.entries {
		for _, s := range e.subs {
			subs = append(subs, s)
		}
	}
	c.mu.Unlock()

	c.cancel()
	for _, s := range subs {
		s.Unsubscribe()
	}
	c.wg.Wait()
}

func (c *Client) resolve(opts []Option) settings {
	s := settings{
		retry:           c.opts.Retry,
		staleTime:       c.opts.StaleTime,
		refetchInterval: c.opts.RefetchInterval,
	}
	for _, opt := range opts {
		opt(&s)
	}
	return s
}

func (c *Client) entryLocked(key Key) *entry {
	e, ok := c.entries[key]
	if !ok {
		e = &entry{
			state: State{Key: key},
			subs:  make(map[uuid.UUID]*Subscription),
		}
		c.entries[key] = e
	}
	return e
}

func (c *Client) isStaleLocked(e *entry) bool {
	if e.invalid || !e.state.HasData() {
		return true
	}
	return c.now().Sub(e.state.UpdatedAt) >= e.settings.staleTime
}

// maybeClaimLocked claims a new fetch generation when the entry is stale and
// idle. The caller must start execute for the returned generation.
func (c *Client) maybeClaimLocked(e *entry, fetch Fetcher) (uint64, bool) {
	if c.closed || fetch == nil || e.state.Fetching || !c.isStaleLocked(e) {
		return 0, false
	}
	return c.claimLocked(e), true
}

func (c *Client) claimLocked(e *entry) uint64 {
	e.gen++
	e.state.Fetching = true
	c.wg.Add(1)
	c.publishLocked(e)
	return e.gen
}

// publishLocked queues the entry's state for every listener.
func (c *Client) publishLocked(e *entry) {
	for _, s := range e.subs {
		s.enqueue(e.state)
	}
}

func (c *Client) removeSubscription(s *Subscription) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[s.key]; ok {
		delete(e.subs, s.id)
	}
}

// execute runs the claimed generation through the singleflight group.
func (c *Client) execute(key Key, gen uint64, fetch Fetcher, s settings) {
	defer c.wg.Done()

	for {
		_, _, _ = c.group.Do(string(key), c.callFn(key, gen, fetch, s))
		// Do may have joined a call from the previous generation that was
		// still unwinding; go again until ours has settled.
		if _, ok := c.settledState(key, gen); ok {
			return
		}
	}
}

func (c *Client) callFn(key Key, gen uint64, fetch Fetcher, s settings) func() (any, error) {
	return func() (any, error) {
		if st, ok := c.settledState(key, gen); ok {
			return settledResult(st)
		}
		return c.run(key, gen, fetch, s)
	}
}

func (c *Client) settledState(key Key, gen uint64) (State, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e := c.entryLocked(key)
	return e.state, e.settled >= gen
}

func settledResult(st State) (any, error) {
	if st.Status == StatusError {
		return nil, st.Err
	}
	return st.Data, nil
}

// run performs the attempts for one generation and settles it.
func (c *Client) run(key Key, gen uint64, fetch Fetcher, s settings) (any, error) {
	for attempt := 0; ; attempt++ {
		c.log.Debug("fetch %s (attempt %d/%d)", key, attempt+1, s.retry+1)

		data, err := c.attempt(fetch)
		if err == nil {
			c.settle(key, gen, data, nil, 0)
			return data, nil
		}

		if attempt >= s.retry || c.ctx.Err() != nil {
			c.log.Error("fetch %s failed after %d attempt(s): %v", key, attempt+1, err)
			c.settle(key, gen, nil, err, attempt+1)
			return nil, err
		}

		delay := c.opts.RetryDelay(attempt)
		c.log.Warn("fetch %s failed (attempt %d/%d), retrying in %s: %v", key, attempt+1, s.retry+1, delay, err)
		if !c.wait(delay) {
			c.settle(key, gen, nil, err, attempt+1)
			return nil, err
		}
	}
}

// attempt calls fetch once, turning a panic into an error so a broken
// fetcher degrades its own key instead of the whole dashboard.
func (c *Client) attempt(fetch Fetcher) (data any, err error) {
	ctx := c.ctx
	if c.opts.FetchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opts.FetchTimeout)
		defer cancel()
	}

	defer func() {
		if r := recover(); r != nil {
			data, err = nil, fmt.Errorf("fetcher panicked: %v", r)
		}
	}()
	return fetch(ctx)
}

func (c *Client) wait(d time.Duration) bool {
	if d <= 0 {
		return c.ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-c.ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// settle records the outcome of a generation. On failure the previous data
// is kept so consumers can show last-known-good values with the error.
func (c *Client) settle(key Key, gen uint64, data any, err error, failures int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e := c.entryLocked(key)
	e.settled = gen
	e.state.Fetching = false

	if err == nil {
		e.invalid = false
		e.state.Status = StatusSuccess
		e.state.Data = data
		e.state.Err = nil
		e.state.UpdatedAt = c.now()
		e.state.FailureCount = 0
	} else {
		e.state.Status = StatusError
		e.state.Err = err
		e.state.ErrorAt = c.now()
		e.state.FailureCount += failures
	}

	c.publishLocked(e)
}

// poll refetches key every refetch interval until ctx ends.
func (c *Client) poll(ctx context.Context, key Key, fetch Fetcher, s settings) {
	defer c.wg.Done()

	t := time.NewTicker(s.refetchInterval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			c.refetch(key, fetch, s)
		}
	}
}

// refetch starts a fetch regardless of staleness unless one is in flight.
func (c *Client) refetch(key Key, fetch Fetcher, s settings) {
	c.mu.Lock()
	e := c.entryLocked(key)
	if c.closed || e.state.Fetching {
		c.mu.Unlock()
		return
	}
	gen := c.claimLocked(e)
	c.mu.Unlock()

	go c.execute(key, gen, fetch, s)
}
