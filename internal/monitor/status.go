package monitor

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/btp2/btpmon/internal/api"
	"github.com/btp2/btpmon/internal/notify"
	"github.com/btp2/btpmon/internal/query"
	"github.com/btp2/btpmon/internal/ui"
)

// StatusViewName routes StateMsg to the status monitor.
const StatusViewName = "status"

// notifyTimeout bounds one round of notifier calls.
const notifyTimeout = 15 * time.Second

// pendingThresholds color the pending sparkline by message count.
var pendingThresholds = ui.Thresholds{Warning: 5, Critical: 20}

// notifyResultMsg reports the outcome of a notifier round.
type notifyResultMsg struct {
	changes int
	err     error
}

// StatusView polls the relay status and renders one card per connected pair.
// Successive reports are diffed and state changes go to the notifier.
type StatusView struct {
	mc      MountContext
	key     query.Key
	sub     *query.Subscription
	state   query.State
	report  *api.StatusReport
	history *History

	lastChanges []notify.LinkChange
	notifyErr   error
	now         func() time.Time
}

// NewStatusView creates an unmounted status monitor.
func NewStatusView() *StatusView {
	return &StatusView{
		history: NewHistory(DefaultHistorySize),
		now:     time.Now,
	}
}

func (v *StatusView) Name() string { return StatusViewName }

// Mount watches the status key at the status interval.
func (v *StatusView) Mount(mc MountContext) {
	if v.sub != nil {
		return
	}
	v.mc = mc
	v.key = mc.API.StatusKey()
	v.state = query.State{Key: v.key}
	v.sub = mc.Client.Watch(v.key, mc.API.StatusFetcher(), mc.listener(StatusViewName),
		query.WithRefetchInterval(mc.Views.StatusInterval))
}

func (v *StatusView) Unmount() {
	if v.sub == nil {
		return
	}
	v.sub.Unsubscribe()
	v.sub = nil
}

func (v *StatusView) Refresh() {
	if v.sub == nil {
		return
	}
	v.mc.Client.Invalidate(v.key)
}

// State returns the last state delivered to the view.
func (v *StatusView) State() query.State {
	return v.state
}

// History returns the pending-count history.
func (v *StatusView) History() *History {
	return v.history
}

// LastChanges returns the link changes found in the most recent report.
func (v *StatusView) LastChanges() []notify.LinkChange {
	return v.lastChanges
}

func (v *StatusView) Update(msg tea.Msg) tea.Cmd {
	switch msg := msg.(type) {
	case StateMsg:
		if v.sub == nil || msg.State.Key != v.key {
			return nil
		}
		v.state = msg.State
		report, ok := query.DataAs[*api.StatusReport](msg.State)
		if !ok || report == v.report {
			return nil
		}
		return v.accept(report)

	case notifyResultMsg:
		v.notifyErr = msg.err
		if msg.err != nil {
			v.mc.logger().Warn("notify %d link changes: %v", msg.changes, msg.err)
		}
	}
	return nil
}

// accept records a new report and returns the notifier command, if any.
func (v *StatusView) accept(report *api.StatusReport) tea.Cmd {
	prev := v.report
	v.report = report
	v.history.Retain(report)
	v.history.Push(report)

	changes := notify.Diff(prev, report, v.now())
	if len(changes) == 0 {
		return nil
	}
	v.lastChanges = changes
	for _, c := range changes {
		v.mc.logger().Info("link %s", c)
	}

	n := v.mc.Notifier
	if n == nil {
		return nil
	}
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
		defer cancel()
		return notifyResultMsg{changes: len(changes), err: n.Notify(ctx, changes, report)}
	}
}

func (v *StatusView) Render(rc RenderContext) string {
	t := rc.Theme
	width := rc.Width
	if width == 0 {
		width = 80
	}

	value := v.state.Status.String()
	if report, ok := query.DataAs[*api.StatusReport](v.state); ok {
		value = report.Status
	}

	lines := []string{SectionHeader("Link Status", value, width)}
	body := v.renderBody(rc)
	for _, l := range strings.Split(body, "\n") {
		lines = append(lines, SectionContentLine(l, width))
	}
	lines = append(lines, SectionFooter(width))

	out := strings.Join(lines, "\n")
	if cards := v.renderCards(rc); cards != "" {
		out += "\n" + cards
	}
	if v.notifyErr != nil {
		out += "\n" + t.Warning.Render(fmt.Sprintf("%s notification failed: %v", ui.SymbolWarning, v.notifyErr))
	}
	return out
}

func (v *StatusView) renderBody(rc RenderContext) string {
	if degraded, ok := renderDegraded(rc, v.state, "link status"); ok {
		return degraded
	}

	t := rc.Theme
	report, _ := query.DataAs[*api.StatusReport](v.state)

	var lines []string
	if stale := staleLine(rc, v.state); stale != "" {
		lines = append(lines, stale)
	}

	summary := fmt.Sprintf("%s %s", t.Label.Render("backend status:"), t.Value.Render(report.Status))
	if !report.UpdatedAt.IsZero() {
		summary += t.Muted.Render(" (reported " + report.UpdatedAt.Local().Format("15:04:05") + ")")
	}
	lines = append(lines, summary)

	switch bad := len(report.BadLinks()); {
	case len(report.Links) == 0:
		lines = append(lines, t.Muted.Render("No links reported"))
	case bad == 0:
		lines = append(lines, t.Healthy.Render(fmt.Sprintf("%s all %d links good", ui.SymbolSuccess, len(report.Links))))
	default:
		lines = append(lines, t.Critical.Render(fmt.Sprintf("%s %d of %d links bad", ui.SymbolFail, bad, len(report.Links))))
	}

	for _, c := range v.lastChanges {
		lines = append(lines, t.Muted.Render(c.At.Local().Format("15:04:05")+" ")+stateStyle(t, c.After).Render(c.String()))
	}
	return strings.Join(lines, "\n")
}

func (v *StatusView) renderCards(rc RenderContext) string {
	report, ok := query.DataAs[*api.StatusReport](v.state)
	if !ok || len(report.Links) == 0 {
		return ""
	}

	w := cardWidth(rc.Width)
	var cards []string
	for _, p := range report.Pairs() {
		cards = append(cards, v.renderCard(rc, p, w))
	}
	return layoutCards(cards, w, rc.Width)
}

func (v *StatusView) renderCard(rc RenderContext, p api.Pair, width int) string {
	t := rc.Theme

	lines := []string{t.Value.Bold(true).Render(p.Name())}
	lines = append(lines, v.directionLines(rc, ui.SymbolForward, p.Forward, width)...)
	if p.Backward != nil {
		lines = append(lines, v.directionLines(rc, ui.SymbolBackward, p.Backward, width)...)
	}

	style := t.Card
	if p.Bad() {
		style = t.Card.BorderForeground(ColorCritical)
	}
	return style.Width(width).Render(strings.Join(lines, "\n"))
}

func (v *StatusView) directionLines(rc RenderContext, arrow string, l *api.Link, width int) []string {
	t := rc.Theme

	head := fmt.Sprintf("%s %s %s",
		t.Label.Render(arrow),
		stateStyle(t, l.State).Render(l.State.Label()),
		t.Muted.Render(fmt.Sprintf("tx %d rx %d", l.TxSeq, l.RxSeq)))

	detail := fmt.Sprintf("  %s %s",
		t.Label.Render("pending"),
		t.Value.Render(fmt.Sprintf("%d", l.PendingCount)))
	if l.PendingCount > 0 {
		detail += t.Label.Render(" delay ") + t.Value.Render(l.Delay().Truncate(time.Second).String())
	}

	out := []string{head, detail}
	if layoutFor(rc.Width) != LayoutMinimal {
		graphWidth := width - 6
		if data := v.history.Pending(l.ID(), graphWidth); len(data) > 1 {
			out = append(out, "  "+ui.RenderSparkline(data, graphWidth, pendingThresholds))
		}
	}
	return out
}

func stateStyle(t Theme, s api.LinkState) lipgloss.Style {
	if s == api.LinkBad {
		return t.Critical
	}
	return t.Healthy
}
