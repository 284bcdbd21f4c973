package monitor

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/btp2/btpmon/internal/api"
	"github.com/btp2/btpmon/internal/query"
	"github.com/btp2/btpmon/internal/ui"
)

// HeaderViewName routes StateMsg to the header.
const HeaderViewName = "header"

// HeaderView shows the backend identity and a one-line summary of link health.
// It shares the status key with StatusView, so it never causes an extra fetch.
type HeaderView struct {
	mc        MountContext
	infoKey   query.Key
	statusKey query.Key
	info      query.State
	status    query.State
	subs      []*query.Subscription
}

// NewHeaderView creates an unmounted header.
func NewHeaderView() *HeaderView {
	return &HeaderView{}
}

func (v *HeaderView) Name() string { return HeaderViewName }

// Mount watches the info key at the header interval and observes status.
func (v *HeaderView) Mount(mc MountContext) {
	if v.subs != nil {
		return
	}
	v.mc = mc
	v.infoKey = mc.API.InfoKey()
	v.statusKey = mc.API.StatusKey()
	v.info = query.State{Key: v.infoKey}
	v.status = query.State{Key: v.statusKey}

	listen := mc.listener(HeaderViewName)
	v.subs = []*query.Subscription{
		mc.Client.Watch(v.infoKey, mc.API.InfoFetcher(), listen,
			query.WithRefetchInterval(mc.Views.HeaderInterval)),
		mc.Client.Watch(v.statusKey, mc.API.StatusFetcher(), listen),
	}
}

func (v *HeaderView) Unmount() {
	for _, s := range v.subs {
		s.Unsubscribe()
	}
	v.subs = nil
}

func (v *HeaderView) Update(msg tea.Msg) tea.Cmd {
	sm, ok := msg.(StateMsg)
	if !ok || v.subs == nil {
		return nil
	}
	switch sm.State.Key {
	case v.infoKey:
		v.info = sm.State
	case v.statusKey:
		v.status = sm.State
	}
	return nil
}

func (v *HeaderView) Refresh() {
	if v.subs == nil {
		return
	}
	v.mc.Client.Invalidate(v.infoKey)
}

// Info returns the last info state seen by the header.
func (v *HeaderView) Info() query.State {
	return v.info
}

func (v *HeaderView) Render(rc RenderContext) string {
	t := rc.Theme

	title := t.Title.Render("btpmon")
	if info, ok := query.DataAs[*api.Info](v.info); ok && info.Name != "" {
		title += " " + t.Value.Render(info.Name)
		if info.Version != "" {
			title += " " + t.Muted.Render(info.Version)
		}
	}

	parts := []string{title, t.Label.Render(v.mc.Endpoint.String())}
	parts = append(parts, v.statusSummary(rc)...)

	line := rc.Theme.Header.Render(strings.Join(parts, t.Muted.Render(" | ")))
	if v.info.Status == query.StatusError && !v.info.HasData() {
		line += "\n" + t.Warning.Render(fmt.Sprintf("%s backend info unavailable: %s", ui.SymbolWarning, api.Summary(v.info.Err)))
	}
	return line
}

func (v *HeaderView) statusSummary(rc RenderContext) []string {
	t := rc.Theme
	report, ok := query.DataAs[*api.StatusReport](v.status)
	if !ok {
		if v.status.Status == query.StatusError {
			return []string{t.Critical.Render(ui.SymbolFail + " unreachable")}
		}
		return []string{rc.Spinner.Frame() + t.Label.Render(" connecting")}
	}

	bad := len(report.BadLinks())
	health := t.Healthy.Render(fmt.Sprintf("%s %d links", ui.SymbolComplete, len(report.Links)))
	if bad > 0 {
		health = t.Critical.Render(fmt.Sprintf("%s %d/%d bad", ui.SymbolFail, bad, len(report.Links)))
	}

	updated := "last update " + formatAgo(rc.Now.Sub(v.status.UpdatedAt))
	if updated != "last update just now" {
		updated += " ago"
	}

	out := []string{health, t.Label.Render(updated)}
	if v.status.Fetching {
		out = append(out, rc.Spinner.Frame())
	}
	return out
}
