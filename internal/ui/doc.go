// Package ui provides the terminal building blocks shared by the btpmon CLI
// and dashboard.
//
// # Components
//
//	Spinner        - animated status line for one-shot commands (status, events)
//	LoadingSpinner - Bubble Tea spinner driving the dashboard loading states
//	Sparkline      - block-character history graphs
//	RenderHeader   - branded title block for text reports (doctor)
//	NewTable       - Bubbles table with the CLI styling
//
// # Colors
//
// Semantic colors are ANSI codes so CLI output follows the terminal palette.
// The neon accents are hex colors used by headers and the dashboard.
// ApplyColorMode maps output.color ("auto", "always", "never") onto the
// lipgloss color profile; "auto" still honors NO_COLOR.
package ui
