package monitor

import (
	"fmt"
	"strings"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/btp2/btpmon/internal/api"
	"github.com/btp2/btpmon/internal/config"
	"github.com/btp2/btpmon/internal/logger"
	"github.com/btp2/btpmon/internal/notify"
	"github.com/btp2/btpmon/internal/query"
	"github.com/btp2/btpmon/internal/ui"
)

// View is one independently mounted piece of the dashboard. Views read the
// backend only through the shared query client in their MountContext.
type View interface {
	// Name identifies the view when routing StateMsg.
	Name() string
	// Mount subscribes the view's keys. A view is mounted at most once.
	Mount(mc MountContext)
	// Unmount releases every subscription. No StateMsg for the view is sent afterwards.
	Unmount()
	// Update applies a message on the UI goroutine.
	Update(msg tea.Msg) tea.Cmd
	// Render draws the view for the current frame.
	Render(rc RenderContext) string
	// Refresh marks the view's keys stale so they are fetched again.
	Refresh()
}

// MountContext is what the shell hands every view: the endpoint, the
// shared client and the theme.
type MountContext struct {
	Endpoint config.Endpoint
	Client   *query.Client
	API      *api.Client
	Views    config.ViewsConfig
	Theme    Theme
	Notifier notify.Notifier
	Log      logger.Logger

	// Send delivers a message to the running program. Listener callbacks
	// use it instead of touching view state directly.
	Send func(tea.Msg)
}

func (mc MountContext) logger() logger.Logger {
	if mc.Log == nil {
		return logger.Noop()
	}
	return mc.Log
}

// listener returns a query listener that forwards states to the named view.
func (mc MountContext) listener(view string) query.Listener {
	return func(st query.State) {
		if mc.Send != nil {
			mc.Send(StateMsg{View: view, State: st})
		}
	}
}

// RenderContext carries the per-frame inputs of Render.
type RenderContext struct {
	Width   int
	Height  int
	Now     time.Time
	Spinner ui.LoadingSpinner
	Theme   Theme
}

// StateMsg carries a query state change to the view that subscribed to it.
type StateMsg struct {
	View  string
	State query.State
}

// busMsg wraps a message that arrived through the update bus.
type busMsg struct {
	msg tea.Msg
}

// updateBus moves messages from query listeners onto the Bubble Tea loop.
// The model keeps exactly one wait command outstanding.
type updateBus struct {
	ch   chan tea.Msg
	done chan struct{}
	once sync.Once
}

func newUpdateBus(size int) *updateBus {
	return &updateBus{
		ch:   make(chan tea.Msg, size),
		done: make(chan struct{}),
	}
}

// Send blocks until the message is queued or the bus is closed.
func (b *updateBus) Send(msg tea.Msg) {
	select {
	case b.ch <- msg:
	case <-b.done:
	}
}

func (b *updateBus) Close() {
	b.once.Do(func() { close(b.done) })
}

func (b *updateBus) wait() tea.Cmd {
	return func() tea.Msg {
		select {
		case msg := <-b.ch:
			return busMsg{msg: msg}
		case <-b.done:
			return nil
		}
	}
}

// renderDegraded draws the pending and error-without-data states that every
// view shares. It returns false when the state has data to show.
func renderDegraded(rc RenderContext, st query.State, what string) (string, bool) {
	switch {
	case st.HasData():
		return "", false
	case st.Status == query.StatusError:
		msg := fmt.Sprintf("%s Couldn't load %s: %s", ui.SymbolFail, what, api.Summary(st.Err))
		if st.Fetching {
			msg += "\n" + rc.Spinner.View("Retrying")
		}
		return rc.Theme.Critical.Render(msg), true
	default:
		return rc.Spinner.View("Loading " + what), true
	}
}

// staleLine is shown above data that is kept after a failed refresh.
func staleLine(rc RenderContext, st query.State) string {
	if st.Status != query.StatusError || !st.HasData() {
		return ""
	}
	return rc.Theme.Warning.Render(fmt.Sprintf("%s showing data from %s ago: %s",
		ui.SymbolWarning, formatAgo(rc.Now.Sub(st.UpdatedAt)), api.Summary(st.Err)))
}

// formatAgo renders an elapsed duration as "just now", "5s", "3m" or "2h".
func formatAgo(d time.Duration) string {
	switch {
	case d < time.Second:
		return "just now"
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	default:
		return fmt.Sprintf("%dh", int(d.Hours()))
	}
}

// renderDashboard renders the complete dashboard view.
func (m *Model) renderDashboard() string {
	rc := m.renderContext()

	var sections []string
	for _, v := range m.views {
		if out := v.Render(rc); out != "" {
			sections = append(sections, out)
		}
	}

	var b strings.Builder
	b.WriteString(strings.Join(sections, "\n\n"))
	if m.ShowFooter() {
		b.WriteString("\n")
		b.WriteString(m.renderFooter())
	}
	return b.String()
}

// renderFooter renders the keyboard help footer.
func (m *Model) renderFooter() string {
	hints := []string{
		"q quit",
		"r refresh",
		"↑↓ scroll events",
		"? help",
	}
	return m.theme.Footer.Render(strings.Join(hints, " | "))
}

// layoutCards arranges cards in rows that fit width.
func layoutCards(cards []string, cardWidth, width int) string {
	if len(cards) == 0 {
		return ""
	}

	cardsPerRow := 1
	if width > 0 {
		// Card margin and border.
		cardsPerRow = width / (cardWidth + 3)
		if cardsPerRow < 1 {
			cardsPerRow = 1
		}
	}

	var rows []string
	for i := 0; i < len(cards); i += cardsPerRow {
		end := i + cardsPerRow
		if end > len(cards) {
			end = len(cards)
		}
		rows = append(rows, lipgloss.JoinHorizontal(lipgloss.Top, cards[i:end]...))
	}
	return lipgloss.JoinVertical(lipgloss.Left, rows...)
}

// cardWidth picks the card width for the terminal width.
func cardWidth(width int) int {
	switch {
	case width == 0:
		return 40
	case width >= BreakpointCompact:
		return 38
	default:
		w := width - 4
		if w < 20 {
			w = 20
		}
		return w
	}
}
