package config

import "time"

// CurrentConfigVersion is the schema version for the config file.
// Increment when making breaking changes to the config structure.
const CurrentConfigVersion = 1

// Defaults used when neither the config file nor the environment set a value.
const (
	// DefaultEndpoint is the backend path prefix the dashboard views fetch from.
	DefaultEndpoint = "/foo"
	// DefaultBaseURL is where a relative endpoint is resolved against.
	DefaultBaseURL = "http://localhost:8100"
)

// Config represents the complete .btpmon.yaml configuration file.
type Config struct {
	Version  int          `yaml:"version" mapstructure:"version"`
	Endpoint string       `yaml:"endpoint" mapstructure:"endpoint"`
	BaseURL  string       `yaml:"base_url" mapstructure:"base_url"`
	Query    QueryConfig  `yaml:"query" mapstructure:"query"`
	Views    ViewsConfig  `yaml:"views" mapstructure:"views"`
	Notify   NotifyConfig `yaml:"notify" mapstructure:"notify"`
	Output   OutputConfig `yaml:"output" mapstructure:"output"`
}

// QueryConfig holds the options of the shared query client.
type QueryConfig struct {
	// Retry is the number of extra attempts after a failed fetch.
	Retry int `yaml:"retry" mapstructure:"retry"`

	// StaleTime is how long fetched data counts as fresh.
	StaleTime time.Duration `yaml:"stale_time" mapstructure:"stale_time"`

	// RefetchInterval polls every observed key at this period. Zero disables it;
	// views still poll at their own cadence.
	RefetchInterval time.Duration `yaml:"refetch_interval" mapstructure:"refetch_interval"`

	// RetryDelay is the first backoff delay; it doubles per attempt up to MaxRetryDelay.
	RetryDelay    time.Duration `yaml:"retry_delay" mapstructure:"retry_delay"`
	MaxRetryDelay time.Duration `yaml:"max_retry_delay" mapstructure:"max_retry_delay"`

	// FetchTimeout bounds a single HTTP attempt.
	FetchTimeout time.Duration `yaml:"fetch_timeout" mapstructure:"fetch_timeout"`
}

// ViewsConfig controls the polling cadence of each dashboard view.
type ViewsConfig struct {
	HeaderInterval time.Duration `yaml:"header_interval" mapstructure:"header_interval"`
	StatusInterval time.Duration `yaml:"status_interval" mapstructure:"status_interval"`
	EventsInterval time.Duration `yaml:"events_interval" mapstructure:"events_interval"`
	EventsLimit    int           `yaml:"events_limit" mapstructure:"events_limit"`
}

// NotifyConfig configures where link state changes are reported.
type NotifyConfig struct {
	SlackHook    string `yaml:"slack_hook" mapstructure:"slack_hook"`
	SlackChannel string `yaml:"slack_channel" mapstructure:"slack_channel"`
	LogFile      string `yaml:"log_file" mapstructure:"log_file"`
}

// OutputConfig controls terminal output formatting.
type OutputConfig struct {
	// Color mode: "auto", "always", or "never".
	Color string `yaml:"color" mapstructure:"color"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Version:  CurrentConfigVersion,
		Endpoint: DefaultEndpoint,
		BaseURL:  DefaultBaseURL,
		Query: QueryConfig{
			Retry:         3,
			RetryDelay:    time.Second,
			MaxRetryDelay: 30 * time.Second,
			FetchTimeout:  10 * time.Second,
		},
		Views: ViewsConfig{
			HeaderInterval: 60 * time.Second,
			StatusInterval: 30 * time.Second,
			EventsInterval: 10 * time.Second,
			EventsLimit:    50,
		},
		Output: OutputConfig{
			Color: "auto",
		},
	}
}
