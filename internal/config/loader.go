package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/btp2/btpmon/internal/errors"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	// ConfigFileName is the default config file name.
	ConfigFileName = ".btpmon.yaml"
	// GlobalConfigDir is the directory for global config.
	GlobalConfigDir = ".config/btpmon"
	// GlobalConfigFile is the global config file name.
	GlobalConfigFile = "config.yaml"
	// EnvPrefix prefixes environment overrides, e.g. BTPMON_ENDPOINT.
	EnvPrefix = "BTPMON"
)

// legacyEnv maps config keys to the plain variable names older monitor
// deployments export.
var legacyEnv = map[string]string{
	"notify.slack_hook":    "SLACK_HOOK",
	"notify.slack_channel": "SLACK_CHANNEL",
	"notify.log_file":      "LOG_FILE",
}

// RefreshIntervalEnv is the legacy status poll cadence, in whole seconds.
const RefreshIntervalEnv = "REFRESH_INTERVAL"

// Load reads config from the specified path. An empty path loads defaults
// plus environment overrides only.
func Load(path string) (*Config, error) {
	loadDotEnv(path)

	v := viper.New()
	setDefaults(v)
	bindEnv(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			if os.IsNotExist(err) {
				return nil, errors.WrapWithCode(err, errors.ErrConfig,
					"Config file not found",
					"Run 'btpmon init' to create a config file, or specify one with --config")
			}
			return nil, errors.WrapWithCode(err, errors.ErrConfig,
				"Failed to read config file",
				"Check the file exists and is valid YAML")
		}
	}

	if err := applyRefreshInterval(v); err != nil {
		return nil, err
	}

	return parseConfig(v, path)
}

// Find locates the config file using the search order:
// 1. Explicit path (from --config flag)
// 2. .btpmon.yaml in current directory
// 3. .btpmon.yaml in parent directories (stops at git root or home)
// 4. ~/.config/btpmon/config.yaml (global defaults)
//
// Returns the path to the config file, or empty string if not found.
func Find(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			if os.IsNotExist(err) {
				return "", errors.WrapWithCode(err, errors.ErrConfig,
					"Specified config file not found: "+explicit,
					"Check the path is correct")
			}
			return "", errors.WrapWithCode(err, errors.ErrConfig,
				"Cannot access config file: "+explicit,
				"Check file permissions")
		}
		return explicit, nil
	}

	cwd, err := os.Getwd()
	if err != nil {
		return "", errors.WrapWithCode(err, errors.ErrConfig,
			"Cannot determine current directory",
			"Check directory permissions")
	}

	localConfig := filepath.Join(cwd, ConfigFileName)
	if _, err := os.Stat(localConfig); err == nil {
		return localConfig, nil
	}

	home, _ := os.UserHomeDir()
	dir := cwd
	for {
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		if home != "" && parent == home {
			break
		}
		dir = parent

		configPath := filepath.Join(dir, ConfigFileName)
		if _, err := os.Stat(configPath); err == nil {
			return configPath, nil
		}

		// Stop at git root
		if _, err := os.Stat(filepath.Join(dir, ".git")); err == nil {
			break
		}
	}

	if home != "" {
		globalConfig := filepath.Join(home, GlobalConfigDir, GlobalConfigFile)
		if _, err := os.Stat(globalConfig); err == nil {
			return globalConfig, nil
		}
	}

	return "", nil
}

// LoadOrDefault finds and loads the config, falling back to defaults
// (still honoring environment overrides) when no file exists.
func LoadOrDefault(explicit string) (*Config, error) {
	path, err := Find(explicit)
	if err != nil {
		return nil, err
	}
	return Load(path)
}

// parseConfig converts viper config to our Config struct with defaults merged in.
func parseConfig(v *viper.Viper, path string) (*Config, error) {
	cfg := DefaultConfig()

	if err := v.Unmarshal(cfg); err != nil {
		where := "your environment"
		if path != "" {
			where = path
		}
		return nil, errors.WrapWithCode(err, errors.ErrConfig,
			"Invalid config format",
			"Check the YAML syntax and duration values in "+where)
	}

	cfg.Endpoint = strings.TrimSpace(cfg.Endpoint)
	cfg.BaseURL = strings.TrimSpace(cfg.BaseURL)

	return cfg, nil
}

// setDefaults registers every key so AutomaticEnv can see it during Unmarshal.
func setDefaults(v *viper.Viper) {
	d := DefaultConfig()

	v.SetDefault("version", d.Version)
	v.SetDefault("endpoint", d.Endpoint)
	v.SetDefault("base_url", d.BaseURL)
	v.SetDefault("query.retry", d.Query.Retry)
	v.SetDefault("query.stale_time", d.Query.StaleTime.String())
	v.SetDefault("query.refetch_interval", d.Query.RefetchInterval.String())
	v.SetDefault("query.retry_delay", d.Query.RetryDelay.String())
	v.SetDefault("query.max_retry_delay", d.Query.MaxRetryDelay.String())
	v.SetDefault("query.fetch_timeout", d.Query.FetchTimeout.String())
	v.SetDefault("views.header_interval", d.Views.HeaderInterval.String())
	v.SetDefault("views.status_interval", d.Views.StatusInterval.String())
	v.SetDefault("views.events_interval", d.Views.EventsInterval.String())
	v.SetDefault("views.events_limit", d.Views.EventsLimit)
	v.SetDefault("notify.slack_hook", "")
	v.SetDefault("notify.slack_channel", "")
	v.SetDefault("notify.log_file", "")
	v.SetDefault("output.color", d.Output.Color)
}

// bindEnv maps BTPMON_<SECTION>_<KEY> onto config keys.
func bindEnv(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for key, legacy := range legacyEnv {
		envName := EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		_ = v.BindEnv(key, envName, legacy)
	}
}

// applyRefreshInterval maps REFRESH_INTERVAL onto views.status_interval.
// It accepts whole seconds or a Go duration. BTPMON_VIEWS_STATUS_INTERVAL wins.
func applyRefreshInterval(v *viper.Viper) error {
	raw := strings.TrimSpace(os.Getenv(RefreshIntervalEnv))
	if raw == "" || os.Getenv(EnvPrefix+"_VIEWS_STATUS_INTERVAL") != "" {
		return nil
	}

	d, err := time.ParseDuration(raw)
	if secs, convErr := strconv.Atoi(raw); convErr == nil {
		d, err = time.Duration(secs)*time.Second, nil
	}
	if err != nil || d <= 0 {
		return errors.New(errors.ErrConfig,
			RefreshIntervalEnv+" must be a positive number of seconds, got "+strconv.Quote(raw),
			"Set it to e.g. 30, or use BTPMON_VIEWS_STATUS_INTERVAL=30s")
	}
	v.Set("views.status_interval", d)
	return nil
}

// loadDotEnv loads .env from the working directory and from next to the
// config file. Existing environment variables win; missing files are ignored.
func loadDotEnv(configPath string) {
	_ = godotenv.Load()
	if configPath != "" {
		_ = godotenv.Load(filepath.Join(filepath.Dir(configPath), ".env"))
	}
}
