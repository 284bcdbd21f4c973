// Package cli implements the btpmon command-line interface.
//
// Each Cobra command is a thin wrapper that collects flags and calls a
// command function taking explicit options and writers, so the commands can
// be tested without the global flag state.
//
// # Command Structure
//
//	btpmon monitor      - Live dashboard (header, link status, events)
//	btpmon status       - One-shot pending table, exit 2 when a link is BAD
//	btpmon events       - One-shot event list, newest first
//	btpmon init         - Create .btpmon.yaml
//	btpmon doctor       - Check config, backend and notification setup
//	btpmon version      - Print version information
//	btpmon completion   - Generate shell completion scripts
//
// # Configuration
//
// Every command loads config through loadConfig, which applies the
// persistent --endpoint and --base-url flags and any command overrides
// before validating. The monitor command never logs to the terminal it
// renders into; use --debug-log to capture diagnostics.
//
// # Machine Output
//
// status, events and doctor accept --json. Output is wrapped in JSONEnvelope and
// errors are mapped to stable codes by ErrorToJSON.
package cli
