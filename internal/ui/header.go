package ui

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// HeaderInfo contains information to display in the header.
type HeaderInfo struct {
	Title   string // Defaults to "btpmon"
	Version string // e.g. "v0.4.0"
	Tagline string // Optional, e.g. the backend name
	Detail  string // Optional, e.g. the endpoint
}

// HeaderWidth is the default width of the header divider
const HeaderWidth = 50

// RenderHeader renders the title line, optional tagline and detail, and a divider.
func RenderHeader(info HeaderInfo) string {
	titleStyle := lipgloss.NewStyle().
		Foreground(ColorNeonPink).
		Bold(true)

	versionStyle := lipgloss.NewStyle().
		Foreground(ColorNeonCyan)

	dividerStyle := lipgloss.NewStyle().
		Foreground(ColorGlassBorder)

	title := info.Title
	if title == "" {
		title = "btpmon"
	}

	var output strings.Builder

	output.WriteString(titleStyle.Render(title))
	if info.Version != "" {
		output.WriteString(" ")
		output.WriteString(versionStyle.Render(info.Version))
	}
	output.WriteString("\n")

	if info.Tagline != "" {
		output.WriteString(lipgloss.NewStyle().Foreground(ColorSecondary).Render(info.Tagline))
		output.WriteString("\n")
	}

	if info.Detail != "" {
		output.WriteString(MutedStyle().Render(info.Detail))
		output.WriteString("\n")
	}

	output.WriteString(dividerStyle.Render(strings.Repeat("━", HeaderWidth)))
	output.WriteString("\n")

	return output.String()
}

// FprintHeader writes the styled header to w.
func FprintHeader(w io.Writer, info HeaderInfo) {
	fmt.Fprint(w, RenderHeader(info))
}
