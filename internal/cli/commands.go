package cli

import (
	"github.com/spf13/cobra"
)

// Command-specific flags
var (
	monitorOpts        = MonitorOptions{Retry: -1}
	statusJSON         bool
	eventsOpts         EventsOptions
	initOpts           InitOptions
	initForce          bool
	initNonInteractive bool
	doctorJSON         bool
)

// monitorCmd starts the TUI dashboard
var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Live dashboard of relay links and events",
	Long: `Open an interactive dashboard for the monitor backend.

The header shows the backend and a link summary, the status view shows one
card per connected pair of networks, and the event viewer lists recent link
state changes. Each view polls the backend at its own interval.

Keyboard shortcuts:
  q / Ctrl+C  Quit
  r           Refetch every view
  up/down     Scroll the event list
  ?           Show help

Examples:
  btpmon monitor
  btpmon monitor --interval 10s --events-interval 5s
  btpmon monitor --slack-hook https://hooks.slack.com/... --slack-channel '#btp'`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return monitorCommand(cmd.Context(), currentGlobals(), monitorOpts)
	},
}

// statusCmd prints link status once
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show pending messages per connected link",
	Long: `Query the backend once and print a table of connected networks with
the number of pending messages in each direction.

Exits with code 2 when any link is BAD.

Examples:
  btpmon status
  btpmon status --json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		machineMode = statusJSON
		return statusCommand(cmd.Context(), currentGlobals(), StatusOptions{JSON: statusJSON},
			cmd.OutOrStdout(), cmd.ErrOrStderr())
	},
}

// eventsCmd prints recent events once
var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "List recent link state changes",
	Long: `Query the backend once and print the newest events, newest first.

Examples:
  btpmon events
  btpmon events --limit 200
  btpmon events --json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		machineMode = eventsOpts.JSON
		return eventsCommand(cmd.Context(), currentGlobals(), eventsOpts,
			cmd.OutOrStdout(), cmd.ErrOrStderr())
	},
}

// initCmd creates a new .btpmon.yaml configuration
var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create .btpmon.yaml configuration",
	Long: `Create a .btpmon.yaml file in the current directory.

Prompts for the backend URL, the endpoint and optional notification targets,
then checks that the backend answers before saving.

Examples:
  btpmon init
  btpmon init --base-url http://relay:8100 --endpoint /foo --non-interactive
  btpmon init --force`,
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := initOpts
		opts.BaseURL = baseURLFlag
		opts.Endpoint = endpointFlag
		opts.Overwrite = initForce
		opts.NonInteractive = initNonInteractive
		opts.Out = cmd.OutOrStdout()
		return Init(opts)
	},
}

// doctorCmd diagnoses config and backend problems
var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check config, backend and notification setup",
	Long: `Run diagnostic checks and print a report.

CONFIG checks which file is used and that it is valid. BACKEND requests
info, status and events from the endpoint. NOTIFY checks the Slack and
change log settings without posting anything.

Exits with code 1 when any check fails.

Examples:
  btpmon doctor
  btpmon doctor --base-url http://relay:8100
  btpmon doctor --json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		machineMode = doctorJSON
		return doctorCommand(cmd.Context(), currentGlobals(), DoctorOptions{JSON: doctorJSON}, cmd.OutOrStdout())
	},
}

// completionCmd generates shell completion scripts
var completionCmd = &cobra.Command{
	Use:   "completion [bash|zsh|fish|powershell]",
	Short: "Generate shell completion script",
	Long: `Generate shell completion scripts for btpmon.

Examples:
  # Bash
  btpmon completion bash > /etc/bash_completion.d/btpmon

  # Zsh
  btpmon completion zsh > "${fpath[1]}/_btpmon"

  # Fish
  btpmon completion fish > ~/.config/fish/completions/btpmon.fish`,
	ValidArgs: []string{"bash", "zsh", "fish", "powershell"},
	Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		switch args[0] {
		case "bash":
			return rootCmd.GenBashCompletion(out)
		case "zsh":
			return rootCmd.GenZshCompletion(out)
		case "fish":
			return rootCmd.GenFishCompletion(out, true)
		case "powershell":
			return rootCmd.GenPowerShellCompletionWithDesc(out)
		}
		return nil
	},
}

func init() {
	// monitor command flags
	monitorCmd.Flags().StringVar(&monitorOpts.Interval, "interval", "", "status refresh interval (e.g., 10s, 1m)")
	monitorCmd.Flags().StringVar(&monitorOpts.EventsInterval, "events-interval", "", "event list refresh interval")
	monitorCmd.Flags().StringVar(&monitorOpts.StaleTime, "stale-time", "", "how long fetched data counts as fresh (e.g., 0s, 5s)")
	monitorCmd.Flags().IntVar(&monitorOpts.Retry, "retry", -1, "extra attempts after a failed fetch (default from config)")
	monitorCmd.Flags().StringVar(&monitorOpts.SlackHook, "slack-hook", "", "post link state changes to this Slack webhook")
	monitorCmd.Flags().StringVar(&monitorOpts.SlackChannel, "slack-channel", "", "Slack channel for --slack-hook")
	monitorCmd.Flags().StringVar(&monitorOpts.LogFile, "log-file", "", "append link state changes to this file")

	// status command flags
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "output JSON")

	// events command flags
	eventsCmd.Flags().IntVar(&eventsOpts.Limit, "limit", 0, "number of events to fetch (default from config)")
	eventsCmd.Flags().BoolVar(&eventsOpts.JSON, "json", false, "output JSON")

	// init command flags
	initCmd.Flags().BoolVarP(&initForce, "force", "f", false, "overwrite existing config")
	initCmd.Flags().BoolVar(&initNonInteractive, "non-interactive", false, "skip prompts and use defaults")
	initCmd.Flags().StringVar(&initOpts.SlackHook, "slack-hook", "", "Slack webhook for link state changes")
	initCmd.Flags().StringVar(&initOpts.SlackChannel, "slack-channel", "", "Slack channel for --slack-hook")
	initCmd.Flags().StringVar(&initOpts.LogFile, "log-file", "", "append link state changes to this file")

	// doctor command flags
	doctorCmd.Flags().BoolVar(&doctorJSON, "json", false, "output JSON")

	// Register all commands
	rootCmd.AddCommand(monitorCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(eventsCmd)
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(doctorCmd)
	rootCmd.AddCommand(completionCmd)
}
