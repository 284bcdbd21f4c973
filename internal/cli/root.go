package cli

import (
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/btp2/btpmon/internal/config"
	"github.com/btp2/btpmon/internal/errors"
	"github.com/btp2/btpmon/internal/logger"
	"github.com/btp2/btpmon/internal/ui"
)

// Persistent flags shared by every command.
var (
	cfgFile      string
	endpointFlag string
	baseURLFlag  string
	debugLogFlag string
)

// rootCmd is the base command when btpmon is called without subcommands.
var rootCmd = &cobra.Command{
	Use:   "btpmon",
	Short: "Terminal dashboard for a BTP2 relay",
	Long: `btpmon watches a BTP2 relay backend and shows its link status,
pending messages and recent events.

Run 'btpmon monitor' for the live dashboard, or 'btpmon status' and
'btpmon events' for one-shot output suitable for scripts.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.SuggestionsMinimumDistance = 2
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: .btpmon.yaml, then ~/.config/btpmon/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&endpointFlag, "endpoint", "", "backend endpoint path or URL (e.g., /foo)")
	rootCmd.PersistentFlags().StringVar(&baseURLFlag, "base-url", "", "base URL a relative endpoint is resolved against")
	rootCmd.PersistentFlags().StringVar(&debugLogFlag, "debug-log", "", "write debug logs to this file")
}

// Execute runs the root command and exits with the right code.
func Execute() {
	err := rootCmd.Execute()
	if err == nil {
		return
	}
	os.Exit(reportError(os.Stdout, os.Stderr, err))
}

// reportError prints a failed command's error and returns the exit code.
// Cobra's unknown command errors already carry their suggestions.
func reportError(stdout, stderr io.Writer, err error) int {
	// Commands that already explained themselves only set the exit code.
	if code, ok := errors.GetExitCode(err); ok {
		return code
	}

	if MachineMode() {
		_ = WriteJSONFromError(stdout, err)
		return 1
	}

	if isUnknownCommandError(err) {
		fmt.Fprintln(stderr, strings.TrimRight(err.Error(), "\n"))
		fmt.Fprintln(stderr, "\nRun 'btpmon --help' for usage.")
		return 1
	}

	var btpErr *errors.Error
	if stderrors.As(err, &btpErr) {
		fmt.Fprint(stderr, ui.ErrorStyle().Render(btpErr.Error()))
		fmt.Fprintln(stderr)
	} else {
		fmt.Fprintln(stderr, ui.ErrorStyle().Render(ui.SymbolFail+" "+err.Error()))
	}
	return 1
}

// isUnknownCommandError reports whether cobra rejected the command line itself.
func isUnknownCommandError(err error) bool {
	msg := err.Error()
	return strings.HasPrefix(msg, "unknown command") || strings.HasPrefix(msg, "unknown flag")
}

// globalOptions are the persistent flag values.
type globalOptions struct {
	ConfigFile string
	Endpoint   string
	BaseURL    string
	DebugLog   string
}

func currentGlobals() globalOptions {
	return globalOptions{
		ConfigFile: cfgFile,
		Endpoint:   endpointFlag,
		BaseURL:    baseURLFlag,
		DebugLog:   debugLogFlag,
	}
}

// loadConfig finds and loads the config, applies flag overrides, validates
// the result and sets the color mode. Command-specific overrides run before
// validation.
func loadConfig(g globalOptions, overrides ...func(*config.Config) error) (*config.Config, error) {
	cfg, err := config.LoadOrDefault(g.ConfigFile)
	if err != nil {
		return nil, err
	}

	if g.Endpoint != "" {
		cfg.Endpoint = strings.TrimSpace(g.Endpoint)
	}
	if g.BaseURL != "" {
		cfg.BaseURL = strings.TrimSpace(g.BaseURL)
	}
	for _, override := range overrides {
		if err := override(cfg); err != nil {
			return nil, err
		}
	}

	if err := config.Validate(cfg); err != nil {
		return nil, err
	}

	if err := ui.ApplyColorMode(cfg.Output.Color); err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrConfig,
			"Invalid output color mode",
			"Use auto, always or never")
	}
	return cfg, nil
}

// openDebugLog returns a logger writing to the --debug-log file, or fallback
// when the flag is empty. The returned close func is never nil.
func openDebugLog(path string, fallback logger.Logger) (logger.Logger, func(), error) {
	if path == "" {
		return fallback, func() {}, nil
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, nil, errors.WrapWithCode(err, errors.ErrConfig,
			fmt.Sprintf("Couldn't open debug log %s", path),
			"Check the directory exists and is writable")
	}
	return logger.NewWriterLogger(f, "", true), func() { _ = f.Close() }, nil
}
