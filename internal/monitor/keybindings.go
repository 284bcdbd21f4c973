package monitor

import tea "github.com/charmbracelet/bubbletea"

// Key bindings as constants for consistency.
const (
	KeyQuit       = "q"
	KeyQuitAlt    = "ctrl+c"
	KeyRefresh    = "r"
	KeyToggleHelp = "?"
	KeyCollapse   = "esc"
)

// HandleKeyMsg processes dashboard-level keys. Returns true if the key was
// handled; unhandled keys are forwarded to the views (event scrolling).
func (m *Model) HandleKeyMsg(msg tea.KeyMsg) (bool, tea.Cmd) {
	key := msg.String()

	// Help toggle takes priority
	if key == KeyToggleHelp {
		m.showHelp = !m.showHelp
		return true, nil
	}

	if m.showHelp && key == KeyCollapse {
		m.showHelp = false
		return true, nil
	}

	switch key {
	case KeyQuit, KeyQuitAlt:
		m.quitting = true
		return true, tea.Quit

	case KeyRefresh:
		m.Refresh()
		return true, nil
	}

	// While help is open nothing scrolls underneath it.
	return m.showHelp, nil
}
