package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/huh"
	"gopkg.in/yaml.v3"

	"github.com/btp2/btpmon/internal/api"
	"github.com/btp2/btpmon/internal/config"
	"github.com/btp2/btpmon/internal/errors"
	"github.com/btp2/btpmon/internal/ui"
)

// probeTimeout bounds the backend check before the config is written.
const probeTimeout = 5 * time.Second

// InitOptions holds options for the init command.
type InitOptions struct {
	BaseURL        string // Pre-specified backend base URL
	Endpoint       string // Pre-specified endpoint path
	SlackHook      string // Optional Slack webhook
	SlackChannel   string // Channel for the webhook
	LogFile        string // Optional change log file
	Overwrite      bool   // Overwrite existing config without asking
	NonInteractive bool   // Skip prompts, use defaults
	Dir            string // Directory to write into; defaults to "."
	Out            io.Writer
}

// initDefaults holds values read from the environment.
type initDefaults struct {
	BaseURL        string
	Endpoint       string
	NonInteractive bool
}

// getInitDefaults reads init defaults from BTPMON_* variables. CI implies
// non-interactive mode.
func getInitDefaults() initDefaults {
	d := initDefaults{
		BaseURL:  os.Getenv("BTPMON_BASE_URL"),
		Endpoint: os.Getenv("BTPMON_ENDPOINT"),
	}
	switch strings.ToLower(os.Getenv("BTPMON_NON_INTERACTIVE")) {
	case "1", "true", "yes":
		d.NonInteractive = true
	}
	if os.Getenv("CI") != "" {
		d.NonInteractive = true
	}
	return d
}

// mergeInitDefaults fills unset options from the environment and finally
// from the built-in defaults.
func mergeInitDefaults(opts InitOptions, d initDefaults) InitOptions {
	if opts.BaseURL == "" {
		opts.BaseURL = d.BaseURL
	}
	if opts.Endpoint == "" {
		opts.Endpoint = d.Endpoint
	}
	if d.NonInteractive {
		opts.NonInteractive = true
	}
	if opts.NonInteractive {
		if opts.BaseURL == "" {
			opts.BaseURL = config.DefaultBaseURL
		}
		if opts.Endpoint == "" {
			opts.Endpoint = config.DefaultEndpoint
		}
	}
	if opts.Dir == "" {
		opts.Dir = "."
	}
	if opts.Out == nil {
		opts.Out = os.Stdout
	}
	return opts
}

// Init creates a new .btpmon.yaml configuration file.
func Init(opts InitOptions) error {
	opts = mergeInitDefaults(opts, getInitDefaults())
	out := opts.Out
	configPath := filepath.Join(opts.Dir, config.ConfigFileName)

	// Check for existing config
	if _, err := os.Stat(configPath); err == nil && !opts.Overwrite {
		if opts.NonInteractive {
			return errors.New(errors.ErrConfig,
				fmt.Sprintf("Config file already exists: %s", configPath),
				"Use --force to overwrite")
		}

		var overwrite bool
		form := huh.NewForm(
			huh.NewGroup(
				huh.NewConfirm().
					Title(fmt.Sprintf("Config file '%s' already exists. Overwrite?", config.ConfigFileName)).
					Value(&overwrite),
			),
		)
		if err := form.Run(); err != nil {
			return errors.WrapWithCode(err, errors.ErrConfig,
				"Failed to get user input",
				"Try running with --force to overwrite")
		}
		if !overwrite {
			fmt.Fprintln(out, "Cancelled.")
			return nil
		}
	}

	if !opts.NonInteractive {
		if err := promptInit(&opts); err != nil {
			return err
		}
	}

	cfg := buildInitConfig(opts)
	if err := config.Validate(cfg); err != nil {
		return err
	}

	if err := probeBackend(cfg, out, opts.NonInteractive); err != nil {
		return err
	}

	if err := writeConfig(configPath, cfg); err != nil {
		return err
	}

	fmt.Fprintf(out, "%s Created %s\n\n", ui.SymbolSuccess, configPath)
	fmt.Fprintln(out, "Next steps:")
	fmt.Fprintln(out, "  btpmon status   - Check link status once")
	fmt.Fprintln(out, "  btpmon monitor  - Open the live dashboard")
	return nil
}

// promptInit asks for the values not given on the command line.
func promptInit(opts *InitOptions) error {
	if opts.BaseURL == "" {
		opts.BaseURL = config.DefaultBaseURL
	}
	if opts.Endpoint == "" {
		opts.Endpoint = config.DefaultEndpoint
	}

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Backend base URL").
				Description("Where the monitor backend listens").
				Placeholder(config.DefaultBaseURL).
				Value(&opts.BaseURL).
				Validate(func(s string) error {
					if strings.TrimSpace(s) == "" {
						return fmt.Errorf("base URL is required")
					}
					if _, err := config.NewEndpoint(config.DefaultEndpoint, s); err != nil {
						return fmt.Errorf("must be an http(s) URL")
					}
					return nil
				}),
			huh.NewInput().
				Title("Endpoint").
				Description("Path prefix of the monitor API, e.g. /foo").
				Placeholder(config.DefaultEndpoint).
				Value(&opts.Endpoint),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("Slack webhook (optional)").
				Description("Link state changes are posted here").
				Placeholder("https://hooks.slack.com/services/... (leave empty to skip)").
				Value(&opts.SlackHook),
			huh.NewInput().
				Title("Slack channel").
				Placeholder("#btp-alerts").
				Value(&opts.SlackChannel),
			huh.NewInput().
				Title("Change log file (optional)").
				Description("Link state changes are appended to this file").
				Placeholder("btp-changes.log").
				Value(&opts.LogFile),
		),
	)

	if err := form.Run(); err != nil {
		return errors.WrapWithCode(err, errors.ErrConfig,
			"Failed to get user input",
			"Check terminal compatibility or use --non-interactive flag")
	}
	return nil
}

// buildInitConfig starts from the defaults and applies the collected answers.
func buildInitConfig(opts InitOptions) *config.Config {
	cfg := config.DefaultConfig()
	cfg.BaseURL = strings.TrimSpace(opts.BaseURL)
	cfg.Endpoint = strings.TrimSpace(opts.Endpoint)
	cfg.Notify.SlackHook = strings.TrimSpace(opts.SlackHook)
	cfg.Notify.SlackChannel = strings.TrimSpace(opts.SlackChannel)
	cfg.Notify.LogFile = strings.TrimSpace(opts.LogFile)
	return cfg
}

// probeBackend checks that the backend answers /info. An unreachable backend
// is only a warning in non-interactive mode; interactively the user decides.
func probeBackend(cfg *config.Config, out io.Writer, nonInteractive bool) error {
	ep, err := config.NewEndpoint(cfg.Endpoint, cfg.BaseURL)
	if err != nil {
		return err
	}

	fmt.Fprintln(out)
	spinner := ui.NewSpinner(out, "Checking "+ep.URL(api.PathInfo))
	spinner.Start()

	ctx, cancel := context.WithTimeout(context.Background(), probeTimeout)
	defer cancel()

	info, err := api.NewClient(ep).Info(ctx)
	if err == nil {
		spinner.Success()
		if info.Name != "" {
			fmt.Fprintf(out, "  found %s %s\n", info.Name, info.Version)
		}
		fmt.Fprintln(out)
		return nil
	}
	spinner.Fail()

	if nonInteractive {
		ui.FprintWarning(out, fmt.Sprintf("Backend not reachable (%s), saving config anyway", api.Summary(err)))
		return nil
	}

	fmt.Fprintf(out, "\n%s Backend check failed: %s\n\n", ui.SymbolFail, api.Summary(err))
	var saveAnyway bool
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title("Save config anyway? (You can start the backend later)").
				Value(&saveAnyway),
		),
	)
	if formErr := form.Run(); formErr != nil || !saveAnyway {
		return errors.WrapWithCode(err, errors.ErrFetch,
			fmt.Sprintf("Backend at %s is not reachable", ep.URL("")),
			"Start the monitor backend or fix base_url, then run 'btpmon init' again")
	}
	return nil
}

// writeConfig marshals cfg with a short header comment.
func writeConfig(path string, cfg *config.Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return errors.WrapWithCode(err, errors.ErrConfig,
			"Failed to generate config",
			"This shouldn't happen - please report this bug")
	}

	header := `# btpmon configuration
# Run 'btpmon monitor' to open the dashboard
# Environment overrides: BTPMON_<SECTION>_<KEY>, e.g. BTPMON_QUERY_RETRY=5

`
	if err := os.WriteFile(path, []byte(header+string(data)), 0644); err != nil {
		return errors.WrapWithCode(err, errors.ErrConfig,
			fmt.Sprintf("Failed to write config file: %s", path),
			"Check directory permissions")
	}
	return nil
}
