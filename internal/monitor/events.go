package monitor

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/btp2/btpmon/internal/api"
	"github.com/btp2/btpmon/internal/query"
	"github.com/btp2/btpmon/internal/ui"
)

// EventsViewName routes StateMsg to the event viewer.
const EventsViewName = "events"

// Viewport height bounds for the event log.
const (
	minEventRows     = 5
	defaultEventRows = 10
)

// EventsView shows the recent link state transitions, newest first, in a
// scrollable viewport.
type EventsView struct {
	mc       MountContext
	key      query.Key
	limit    int
	sub      *query.Subscription
	state    query.State
	log      *api.EventLog
	viewport viewport.Model
	width    int
}

// NewEventsView creates an unmounted event viewer.
func NewEventsView() *EventsView {
	return &EventsView{
		viewport: viewport.New(76, defaultEventRows),
	}
}

func (v *EventsView) Name() string { return EventsViewName }

// Mount watches the events key at the events interval.
func (v *EventsView) Mount(mc MountContext) {
	if v.sub != nil {
		return
	}
	v.mc = mc
	v.limit = mc.Views.EventsLimit
	v.key = mc.API.EventsKey(v.limit)
	v.state = query.State{Key: v.key}
	v.sub = mc.Client.Watch(v.key, mc.API.EventsFetcher(v.limit), mc.listener(EventsViewName),
		query.WithRefetchInterval(mc.Views.EventsInterval))
}

func (v *EventsView) Unmount() {
	if v.sub == nil {
		return
	}
	v.sub.Unsubscribe()
	v.sub = nil
}

func (v *EventsView) Refresh() {
	if v.sub == nil {
		return
	}
	v.mc.Client.Invalidate(v.key)
}

// State returns the last state delivered to the view.
func (v *EventsView) State() query.State {
	return v.state
}

func (v *EventsView) Update(msg tea.Msg) tea.Cmd {
	switch msg := msg.(type) {
	case StateMsg:
		if v.sub == nil || msg.State.Key != v.key {
			return nil
		}
		v.state = msg.State
		if log, ok := query.DataAs[*api.EventLog](msg.State); ok && log != v.log {
			v.log = log
			v.viewport.SetContent(v.content())
		}

	case tea.WindowSizeMsg:
		v.width = msg.Width
		v.viewport.Width = max(msg.Width-4, 10)
		v.viewport.Height = max(msg.Height/3, minEventRows)
		if v.log != nil {
			v.viewport.SetContent(v.content())
		}

	case tea.KeyMsg:
		var cmd tea.Cmd
		v.viewport, cmd = v.viewport.Update(msg)
		return cmd
	}
	return nil
}

// content renders the event lines for the viewport.
func (v *EventsView) content() string {
	t := v.mc.Theme
	events := v.log.Newest()
	if len(events) == 0 {
		return t.Muted.Render("No events recorded")
	}

	lines := make([]string, 0, len(events))
	for _, e := range events {
		lines = append(lines, formatEvent(t, e))
	}
	return strings.Join(lines, "\n")
}

// formatEvent renders "2006-01-02 15:04:05  ICON -> BSC  GOOD → BAD  pending=2 delay=5s".
func formatEvent(t Theme, e api.Event) string {
	l := e.Link()

	transition := stateStyle(t, e.After).Render(e.After.Label())
	if e.Before != "" {
		transition = stateStyle(t, e.Before).Render(e.Before.Label()) + " " + ui.SymbolForward + " " + transition
	}

	line := fmt.Sprintf("%s  %s  %s",
		t.Muted.Render(e.Time.Local().Format("2006-01-02 15:04:05")),
		t.Value.Render(l.SrcLabel()+" -> "+l.DstLabel()),
		transition)
	if e.PendingCount > 0 {
		l.PendingDuration = e.PendingDuration
		line += t.Label.Render(fmt.Sprintf("  pending=%d delay=%s", e.PendingCount, l.Delay().Truncate(time.Second)))
	}
	return line
}

func (v *EventsView) Render(rc RenderContext) string {
	width := rc.Width
	if width == 0 {
		width = 80
	}

	value := v.state.Status.String()
	if v.log != nil {
		value = fmt.Sprintf("%d events", len(v.log.Events))
	}

	lines := []string{SectionHeader("Events", value, width)}
	if degraded, ok := renderDegraded(rc, v.state, "events"); ok {
		for _, l := range strings.Split(degraded, "\n") {
			lines = append(lines, SectionContentLine(l, width))
		}
	} else {
		if stale := staleLine(rc, v.state); stale != "" {
			lines = append(lines, SectionContentLine(stale, width))
		}
		for _, l := range strings.Split(v.viewport.View(), "\n") {
			lines = append(lines, SectionContentLine(l, width))
		}
	}
	lines = append(lines, SectionFooter(width))
	return strings.Join(lines, "\n")
}
