package monitor

import (
	"context"
	"net/http"
	"net/http/httptest"
	"regexp"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/require"

	"github.com/btp2/btpmon/internal/api"
	"github.com/btp2/btpmon/internal/config"
	"github.com/btp2/btpmon/internal/notify"
	"github.com/btp2/btpmon/internal/query"
	"github.com/btp2/btpmon/internal/ui"
)

const waitFor = 2 * time.Second

var ansiRE = regexp.MustCompile(`\x1b\[[0-9;]*m`)

func stripANSI(s string) string {
	return ansiRE.ReplaceAllString(s, "")
}

// backend is a fake relay backend with per-path hit counters.
type backend struct {
	srv  *httptest.Server
	mu   sync.Mutex
	hits map[string]*atomic.Int32
}

func newBackend(t *testing.T, routes map[string]http.HandlerFunc) *backend {
	t.Helper()
	b := &backend{hits: make(map[string]*atomic.Int32)}
	for path := range routes {
		b.hits[path] = &atomic.Int32{}
	}

	b.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h, ok := routes[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		b.mu.Lock()
		b.hits[r.URL.Path].Add(1)
		b.mu.Unlock()
		h(w, r)
	}))
	t.Cleanup(b.srv.Close)
	return b
}

func (b *backend) Hits(path string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if c, ok := b.hits[path]; ok {
		return int(c.Load())
	}
	return 0
}

func jsonHandler(status int, body string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}
}

// testMount wires a MountContext to the backend with the given retry count.
// Messages sent by listeners are collected on the returned channel.
func testMount(t *testing.T, b *backend, retry int) (MountContext, chan tea.Msg) {
	t.Helper()
	return testMountOpts(t, b, query.Options{Retry: retry})
}

func testMountOpts(t *testing.T, b *backend, opts query.Options) (MountContext, chan tea.Msg) {
	t.Helper()

	opts.RetryDelay = func(int) time.Duration { return 0 }
	client := query.New(opts)
	t.Cleanup(client.Close)

	ep := config.MustEndpoint("/foo", b.srv.URL)
	msgs := make(chan tea.Msg, 64)

	return MountContext{
		Endpoint: ep,
		Client:   client,
		API:      api.NewClient(ep, api.WithHTTPClient(b.srv.Client())),
		Views:    config.ViewsConfig{EventsLimit: 50},
		Theme:    DefaultTheme(),
		Send:     func(msg tea.Msg) { msgs <- msg },
	}, msgs
}

// heldSubscription stands in for a live subscription in views driven by hand.
// It must not be unsubscribed.
func heldSubscription() *query.Subscription {
	return &query.Subscription{}
}

// pumpUntil applies StateMsgs from msgs to v until done reports true.
// It returns every status the view observed, in order.
func pumpUntil(t *testing.T, v View, msgs <-chan tea.Msg, done func(query.State) bool) []query.State {
	t.Helper()

	var seen []query.State
	deadline := time.After(waitFor)
	for {
		select {
		case msg := <-msgs:
			sm, ok := msg.(StateMsg)
			if !ok || sm.View != v.Name() {
				continue
			}
			v.Update(sm)
			seen = append(seen, sm.State)
			if done(sm.State) {
				return seen
			}
		case <-deadline:
			t.Fatalf("view %s did not settle; saw %d states", v.Name(), len(seen))
			return seen
		}
	}
}

func settled(st query.State) bool {
	return st.Status != query.StatusPending && !st.Fetching
}

func testRenderContext(width int) RenderContext {
	return RenderContext{
		Width:   width,
		Height:  40,
		Now:     time.Now(),
		Spinner: ui.NewLoadingSpinner(),
		Theme:   DefaultTheme(),
	}
}

// fakeNotifier records Notify calls.
type fakeNotifier struct {
	mu    sync.Mutex
	calls [][]notify.LinkChange
	err   error
}

func (f *fakeNotifier) Notify(_ context.Context, changes []notify.LinkChange, _ *api.StatusReport) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, changes)
	return f.err
}

func (f *fakeNotifier) Calls() [][]notify.LinkChange {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]notify.LinkChange(nil), f.calls...)
}

// nextMsg reads one message from the model's update bus.
func nextMsg(t *testing.T, m *Model) tea.Msg {
	t.Helper()
	ch := make(chan tea.Msg, 1)
	go func() { ch <- m.bus.wait()() }()
	select {
	case msg := <-ch:
		return msg
	case <-time.After(waitFor):
		t.Fatal("no message on update bus")
		return nil
	}
}

func requireEventually(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	require.Eventually(t, cond, waitFor, 5*time.Millisecond, msg)
}
