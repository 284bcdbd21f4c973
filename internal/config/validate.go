package config

import (
	"fmt"
	"time"

	"github.com/btp2/btpmon/internal/errors"
)

// MinInterval is the shortest polling period accepted for any view or the
// client-wide refetch interval, to avoid hammering the backend.
const MinInterval = 500 * time.Millisecond

// MaxEventsLimit caps how many events the event viewer requests per poll.
const MaxEventsLimit = 1000

// Validate checks the config for errors and returns structured error messages.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New(errors.ErrConfig,
			"Config is nil",
			"This is unexpected - try reloading the configuration.")
	}

	if cfg.Version > CurrentConfigVersion {
		return errors.New(errors.ErrConfig,
			fmt.Sprintf("This config is from the future (version %d, but btpmon only knows up to %d)", cfg.Version, CurrentConfigVersion),
			"Upgrade btpmon to a newer release.")
	}

	if _, err := NewEndpoint(cfg.Endpoint, cfg.BaseURL); err != nil {
		return err
	}

	if err := validateQuery(cfg.Query); err != nil {
		return errors.WrapWithCode(err, errors.ErrConfig, err.Error(), "Check the 'query' section in your .btpmon.yaml.")
	}

	if err := validateViews(cfg.Views); err != nil {
		return errors.WrapWithCode(err, errors.ErrConfig, err.Error(), "Check the 'views' section in your .btpmon.yaml.")
	}

	if err := validateNotify(cfg.Notify); err != nil {
		return errors.WrapWithCode(err, errors.ErrConfig, err.Error(), "Check the 'notify' section in your .btpmon.yaml.")
	}

	if err := validateOutput(cfg.Output); err != nil {
		return errors.WrapWithCode(err, errors.ErrConfig, err.Error(), "Check the 'output' section in your .btpmon.yaml.")
	}

	return nil
}

func validateQuery(q QueryConfig) error {
	if q.Retry < 0 {
		return fmt.Errorf("query.retry can't be negative (got %d)", q.Retry)
	}
	durations := []struct {
		name  string
		value time.Duration
	}{
		{"query.stale_time", q.StaleTime},
		{"query.refetch_interval", q.RefetchInterval},
		{"query.retry_delay", q.RetryDelay},
		{"query.max_retry_delay", q.MaxRetryDelay},
		{"query.fetch_timeout", q.FetchTimeout},
	}
	for _, d := range durations {
		if d.value < 0 {
			return fmt.Errorf("%s can't be negative (got %s)", d.name, d.value)
		}
	}
	if q.RefetchInterval > 0 && q.RefetchInterval < MinInterval {
		return fmt.Errorf("query.refetch_interval %s is too short (minimum %s)", q.RefetchInterval, MinInterval)
	}
	if q.MaxRetryDelay > 0 && q.RetryDelay > q.MaxRetryDelay {
		return fmt.Errorf("query.retry_delay %s is longer than query.max_retry_delay %s", q.RetryDelay, q.MaxRetryDelay)
	}
	return nil
}

func validateViews(v ViewsConfig) error {
	intervals := []struct {
		name  string
		value time.Duration
	}{
		{"views.header_interval", v.HeaderInterval},
		{"views.status_interval", v.StatusInterval},
		{"views.events_interval", v.EventsInterval},
	}
	for _, i := range intervals {
		if i.value < MinInterval {
			return fmt.Errorf("%s %s is too short (minimum %s)", i.name, i.value, MinInterval)
		}
	}
	if v.EventsLimit < 1 || v.EventsLimit > MaxEventsLimit {
		return fmt.Errorf("views.events_limit must be between 1 and %d (got %d)", MaxEventsLimit, v.EventsLimit)
	}
	return nil
}

func validateNotify(n NotifyConfig) error {
	if n.SlackHook != "" {
		if _, err := parseHTTPURL(n.SlackHook); err != nil {
			return fmt.Errorf("notify.slack_hook is not a valid URL: %v", err)
		}
		if n.SlackChannel == "" {
			return fmt.Errorf("notify.slack_channel is required when notify.slack_hook is set")
		}
	}
	return nil
}

func validateOutput(o OutputConfig) error {
	switch o.Color {
	case "auto", "always", "never":
		return nil
	default:
		return fmt.Errorf("output.color must be auto, always, or never (got %q)", o.Color)
	}
}
