package monitor

import (
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/btp2/btpmon/internal/ui"
)

// LayoutMode represents the responsive layout mode based on terminal size.
type LayoutMode int

const (
	// LayoutMinimal is for terminals < 80 columns: one card per row, no sparklines.
	LayoutMinimal LayoutMode = iota
	// LayoutCompact is for terminals 80-120 columns.
	LayoutCompact
	// LayoutStandard is for terminals 120-160 columns.
	LayoutStandard
	// LayoutWide is for terminals 160+ columns.
	LayoutWide
)

// Width breakpoints for layout modes
const (
	BreakpointCompact  = 80
	BreakpointStandard = 120
	BreakpointWide     = 160
)

// HeightMinimal is the smallest height that still shows the footer.
const HeightMinimal = 24

// busSize bounds how many listener messages queue before senders block.
const busSize = 64

// Model is the Bubble Tea model for the dashboard. It owns the views and
// the bus their query listeners send on.
type Model struct {
	views    []View
	mc       MountContext
	bus      *updateBus
	spinner  ui.LoadingSpinner
	theme    Theme
	width    int
	height   int
	showHelp bool
	quitting bool
	mounted  bool
	now      func() time.Time
}

// NewModel creates a dashboard over views. mc.Send is replaced by the
// model's update bus unless the caller already set one.
func NewModel(mc MountContext, views ...View) *Model {
	bus := newUpdateBus(busSize)
	if mc.Send == nil {
		mc.Send = bus.Send
	}
	return &Model{
		views:   views,
		mc:      mc,
		bus:     bus,
		spinner: ui.NewLoadingSpinner(),
		theme:   mc.Theme,
		now:     time.Now,
	}
}

// Mount mounts every view. Calling it again is a no-op.
func (m *Model) Mount() {
	if m.mounted {
		return
	}
	m.mounted = true
	for _, v := range m.views {
		m.mc.logger().Debug("mounting view %s", v.Name())
		v.Mount(m.mc)
	}
}

// Unmount releases every view's subscriptions and closes the bus.
func (m *Model) Unmount() {
	if !m.mounted {
		return
	}
	m.mounted = false
	for _, v := range m.views {
		v.Unmount()
	}
	m.bus.Close()
}

// Views returns the mounted views in render order.
func (m *Model) Views() []View {
	return m.views
}

// Lookup finds a view by name.
func (m *Model) Lookup(name string) (View, bool) {
	for _, v := range m.views {
		if v.Name() == name {
			return v, true
		}
	}
	return nil, false
}

// Init starts the spinner and the bus reader.
func (m *Model) Init() tea.Cmd {
	return tea.Batch(
		m.spinner.Tick(),
		m.bus.wait(),
	)
}

// Update handles messages and updates the model state.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case busMsg:
		_, cmd := m.Update(msg.msg)
		return m, tea.Batch(cmd, m.bus.wait())

	case tea.KeyMsg:
		if handled, cmd := m.HandleKeyMsg(msg); handled {
			return m, cmd
		}
		return m, m.broadcast(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, m.broadcast(msg)

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case StateMsg:
		if v, ok := m.Lookup(msg.View); ok {
			return m, v.Update(msg)
		}
		return m, nil
	}

	return m, m.broadcast(msg)
}

// broadcast forwards msg to every view.
func (m *Model) broadcast(msg tea.Msg) tea.Cmd {
	var cmds []tea.Cmd
	for _, v := range m.views {
		if cmd := v.Update(msg); cmd != nil {
			cmds = append(cmds, cmd)
		}
	}
	return tea.Batch(cmds...)
}

// View renders the dashboard.
func (m *Model) View() string {
	if m.quitting {
		return ""
	}
	if m.showHelp {
		return m.renderHelpOverlay()
	}
	return m.renderDashboard()
}

// Refresh marks every view's data stale.
func (m *Model) Refresh() {
	for _, v := range m.views {
		v.Refresh()
	}
}

func (m *Model) renderContext() RenderContext {
	return RenderContext{
		Width:   m.width,
		Height:  m.height,
		Now:     m.now(),
		Spinner: m.spinner,
		Theme:   m.theme,
	}
}

// LayoutMode returns the current layout mode based on terminal width.
func (m *Model) LayoutMode() LayoutMode {
	return layoutFor(m.width)
}

func layoutFor(width int) LayoutMode {
	switch {
	case width >= BreakpointWide:
		return LayoutWide
	case width >= BreakpointStandard:
		return LayoutStandard
	case width >= BreakpointCompact:
		return LayoutCompact
	default:
		return LayoutMinimal
	}
}

// ShowFooter returns true if the terminal is tall enough to show the footer.
func (m *Model) ShowFooter() bool {
	return m.height == 0 || m.height >= HeightMinimal
}
