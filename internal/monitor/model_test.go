package monitor

import (
	"net/http"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/btp2/btpmon/internal/api"
	"github.com/btp2/btpmon/internal/query"
)

func newDashboard(t *testing.T, b *backend) *Model {
	t.Helper()
	// A long stale time keeps the second status watcher from refetching
	// data the first one just loaded.
	mc, _ := testMountOpts(t, b, query.Options{StaleTime: time.Minute})
	mc.Send = nil

	m := NewModel(mc, NewHeaderView(), NewStatusView(), NewEventsView())
	m.Mount()
	t.Cleanup(m.Unmount)
	return m
}

func dashboardBackend(t *testing.T) *backend {
	return newBackend(t, map[string]http.HandlerFunc{
		"/foo/info":   jsonHandler(http.StatusOK, `{"name":"btp2-relay","version":"v1.3.0"}`),
		"/foo/status": jsonHandler(http.StatusOK, statusTwoLinks),
		"/foo/events": jsonHandler(http.StatusOK, `{"events":[]}`),
	})
}

// pumpModel feeds bus messages into the model until every view has settled.
func pumpModel(t *testing.T, m *Model) {
	t.Helper()
	deadline := time.Now().Add(waitFor)
	for time.Now().Before(deadline) {
		m.Update(nextMsg(t, m))

		status, _ := m.Lookup(StatusViewName)
		events, _ := m.Lookup(EventsViewName)
		header, _ := m.Lookup(HeaderViewName)
		if settled(status.(*StatusView).State()) &&
			settled(events.(*EventsView).State()) &&
			settled(header.(*HeaderView).Info()) {
			return
		}
	}
	t.Fatal("dashboard did not settle")
}

func TestModel_RoutesStateToViews(t *testing.T) {
	m := newDashboard(t, dashboardBackend(t))
	pumpModel(t, m)

	out := stripANSI(m.View())
	assert.Contains(t, out, "btp2-relay v1.3.0")
	assert.Contains(t, out, "Link Status")
	assert.Contains(t, out, "ICON <-> BSC")
	assert.Contains(t, out, "No events recorded")
	assert.Contains(t, out, "q quit | r refresh")
}

func TestModel_SharedStatusKeyFetchedOnce(t *testing.T) {
	b := dashboardBackend(t)
	m := newDashboard(t, b)
	pumpModel(t, m)

	assert.Equal(t, 1, b.Hits("/foo/status"), "header and status view share one fetch")
	assert.Equal(t, 1, b.Hits("/foo/info"))
	assert.Equal(t, 1, b.Hits("/foo/events"))
}

func TestModel_BusMsgRearmsWait(t *testing.T) {
	m := newDashboard(t, dashboardBackend(t))

	_, cmd := m.Update(nextMsg(t, m))
	assert.NotNil(t, cmd, "a bus message always returns the next wait")
}

func TestModel_UnknownViewIgnored(t *testing.T) {
	m := NewModel(MountContext{Theme: DefaultTheme()})
	_, cmd := m.Update(StateMsg{View: "nope", State: query.State{}})
	assert.Nil(t, cmd)
}

func TestModel_Keys(t *testing.T) {
	tests := []struct {
		name     string
		keys     []tea.KeyMsg
		wantHelp bool
		wantQuit bool
	}{
		{
			name:     "help toggles on",
			keys:     []tea.KeyMsg{{Type: tea.KeyRunes, Runes: []rune("?")}},
			wantHelp: true,
		},
		{
			name: "help toggles off",
			keys: []tea.KeyMsg{
				{Type: tea.KeyRunes, Runes: []rune("?")},
				{Type: tea.KeyRunes, Runes: []rune("?")},
			},
		},
		{
			name: "esc closes help",
			keys: []tea.KeyMsg{
				{Type: tea.KeyRunes, Runes: []rune("?")},
				{Type: tea.KeyEsc},
			},
		},
		{
			name:     "q quits",
			keys:     []tea.KeyMsg{{Type: tea.KeyRunes, Runes: []rune("q")}},
			wantQuit: true,
		},
		{
			name:     "ctrl+c quits",
			keys:     []tea.KeyMsg{{Type: tea.KeyCtrlC}},
			wantQuit: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewModel(MountContext{Theme: DefaultTheme()})

			var cmd tea.Cmd
			for _, k := range tt.keys {
				_, cmd = m.Update(k)
			}

			assert.Equal(t, tt.wantHelp, m.showHelp)
			assert.Equal(t, tt.wantQuit, m.quitting)
			if tt.wantQuit {
				require.NotNil(t, cmd)
				assert.IsType(t, tea.QuitMsg{}, cmd())
				assert.Empty(t, m.View())
			}
		})
	}
}

func TestModel_HelpOverlay(t *testing.T) {
	m := NewModel(MountContext{Theme: DefaultTheme()})
	m.Update(tea.WindowSizeMsg{Width: 100, Height: 30})
	m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("?")})

	out := stripANSI(m.View())
	assert.Contains(t, out, "Keyboard Shortcuts")
	assert.Contains(t, out, "Refetch every view")
}

func TestModel_RefreshRefetches(t *testing.T) {
	b := dashboardBackend(t)
	m := newDashboard(t, b)
	pumpModel(t, m)
	require.Equal(t, 1, b.Hits("/foo/events"))

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("r")})
	assert.Nil(t, cmd)

	requireEventually(t, func() bool {
		return b.Hits("/foo/events") == 2 && b.Hits("/foo/status") == 2 && b.Hits("/foo/info") == 2
	}, "every key refetched once")
}

func TestModel_WindowSizePropagates(t *testing.T) {
	m := newDashboard(t, dashboardBackend(t))
	m.Update(tea.WindowSizeMsg{Width: 170, Height: 50})

	assert.Equal(t, LayoutWide, m.LayoutMode())
	ev, ok := m.Lookup(EventsViewName)
	require.True(t, ok)
	assert.Equal(t, 166, ev.(*EventsView).viewport.Width)
}

func TestModel_UnmountClosesBus(t *testing.T) {
	m := NewModel(MountContext{Theme: DefaultTheme()})
	m.Mount()
	m.Unmount()
	m.Unmount()

	assert.Nil(t, m.bus.wait()())

	done := make(chan struct{})
	go func() {
		m.bus.Send(StateMsg{})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(waitFor):
		t.Fatal("Send blocked after close")
	}
}

func TestLayoutFor(t *testing.T) {
	tests := []struct {
		width int
		want  LayoutMode
	}{
		{0, LayoutMinimal},
		{79, LayoutMinimal},
		{80, LayoutCompact},
		{120, LayoutStandard},
		{200, LayoutWide},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, layoutFor(tt.width), "width %d", tt.width)
	}
}

func TestFormatAgo(t *testing.T) {
	assert.Equal(t, "just now", formatAgo(300*time.Millisecond))
	assert.Equal(t, "42s", formatAgo(42*time.Second))
	assert.Equal(t, "3m", formatAgo(3*time.Minute+10*time.Second))
	assert.Equal(t, "2h", formatAgo(2*time.Hour))
}

func TestHistory(t *testing.T) {
	h := NewHistory(3)
	report := func(pending ...int) *api.StatusReport {
		r := &api.StatusReport{Status: "ok"}
		for _, p := range pending {
			r.Links = append(r.Links, api.Link{Src: "a", Dst: "b", State: api.LinkGood, PendingCount: p})
		}
		return r
	}

	for _, p := range []int{1, 2, 3, 4} {
		h.Push(report(p))
	}

	assert.Equal(t, 3, h.Count("a->b"))
	assert.Equal(t, []float64{2, 3, 4}, h.Pending("a->b", 10))
	assert.Equal(t, []float64{4}, h.Pending("a->b", 1))
	assert.Nil(t, h.Pending("missing", 3))

	h.Push(&api.StatusReport{Status: "ok", Links: []api.Link{{Src: "c", Dst: "d", State: api.LinkGood}}})
	assert.Equal(t, 2, h.Len())

	h.Retain(report())
	assert.Equal(t, 0, h.Len())

	h.Push(report(1))
	h.ClearAll()
	assert.Equal(t, 0, h.Count("a->b"))
}

func TestSectionContentLine_Truncates(t *testing.T) {
	line := stripANSI(SectionContentLine("0123456789abcdef", 12))
	assert.Equal(t, "│ 01234567 │", line)
}
