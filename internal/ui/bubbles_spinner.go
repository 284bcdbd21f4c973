package ui

import (
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// SpinnerFrames is the braille scan animation shared by the CLI spinner and
// the dashboard.
var SpinnerFrames = spinner.Spinner{
	Frames: []string{"⣾", "⣽", "⣻", "⢿", "⡿", "⣟", "⣯", "⣷"},
	FPS:    time.Second / 12,
}

// LoadingSpinner is an embeddable Bubble Tea spinner. One instance drives the
// loading indicator of every dashboard view so they animate in step.
type LoadingSpinner struct {
	spinner spinner.Model
}

// NewLoadingSpinner creates a spinner using SpinnerFrames.
func NewLoadingSpinner() LoadingSpinner {
	sp := spinner.New()
	sp.Spinner = SpinnerFrames
	sp.Style = lipgloss.NewStyle().Foreground(ColorNeonCyan)
	return LoadingSpinner{spinner: sp}
}

// Tick starts the animation.
func (s LoadingSpinner) Tick() tea.Cmd {
	return s.spinner.Tick
}

// Update advances the animation on spinner ticks and ignores everything else.
func (s LoadingSpinner) Update(msg tea.Msg) (LoadingSpinner, tea.Cmd) {
	tick, ok := msg.(spinner.TickMsg)
	if !ok {
		return s, nil
	}
	var cmd tea.Cmd
	s.spinner, cmd = s.spinner.Update(tick)
	return s, cmd
}

// Frame returns the current styled frame.
func (s LoadingSpinner) Frame() string {
	return s.spinner.View()
}

// View returns "<frame> label...".
func (s LoadingSpinner) View(label string) string {
	return s.Frame() + " " + label + "..."
}
