// Package monitor implements the btpmon dashboard: three independent views
// over one backend endpoint, all reading through a shared query client.
//
// # Architecture
//
// The package uses the Bubble Tea framework, which follows The Elm Architecture
// (Model-Update-View pattern):
//
//   - Model: Holds the views, terminal size, spinner and help overlay state
//   - Update: Routes keystrokes, resizes and query state changes to views
//   - View: Renders every view in order, then the footer
//
// # Views
//
//	HeaderView  - backend name/version and a link health summary
//	StatusView  - one card per connected network pair, pending sparklines
//	EventsView  - scrollable log of link state transitions, newest first
//
// Each view is mounted with a MountContext, builds its own query keys from
// the endpoint, and subscribes with query.Client.Watch. Views never call the
// backend directly.
//
// # Message Flow
//
// Query listeners run on the client's delivery goroutines, so they never
// touch view state. Instead they send a StateMsg on the model's update bus:
//
//  1. The query client settles a fetch and notifies the subscription
//  2. The listener sends StateMsg{View, State} on the bus
//  3. The model's wait command receives it and Update routes it by view name
//  4. The view stores the state; View() re-renders
//
// # Degraded States
//
// A key with no data renders a spinner while pending and an error line once
// retries are exhausted. A key that has data keeps showing it after a failed
// refresh, with a warning line naming the error and the data's age.
//
// # Keyboard Shortcuts
//
//	q, Ctrl+C   - Quit
//	r           - Refetch every view
//	j/k, ↑/↓    - Scroll the event log
//	?           - Toggle help overlay
package monitor
