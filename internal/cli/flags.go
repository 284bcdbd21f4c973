package cli

import (
	"fmt"
	"time"

	"github.com/btp2/btpmon/internal/config"
	"github.com/btp2/btpmon/internal/errors"
)

// ParseInterval parses a duration flag such as --interval.
// Returns zero duration if the flag is empty. Non-zero values below min are rejected.
func ParseInterval(name, flag string, min time.Duration) (time.Duration, error) {
	if flag == "" {
		return 0, nil
	}

	d, err := time.ParseDuration(flag)
	if err != nil {
		return 0, errors.WrapWithCode(err, errors.ErrConfig,
			fmt.Sprintf("'%s' doesn't look like a valid --%s", flag, name),
			"Try something like 5s, 30s, or 1m.")
	}
	if d < 0 {
		return 0, errors.New(errors.ErrConfig,
			fmt.Sprintf("--%s can't be negative (got %s)", name, flag),
			"Use 0 to keep the configured value.")
	}
	if d > 0 && d < min {
		return 0, errors.New(errors.ErrConfig,
			fmt.Sprintf("--%s is too short (%s)", name, d),
			fmt.Sprintf("Minimum is %s to avoid overwhelming the backend.", min))
	}
	return d, nil
}

// MonitorOptions holds the monitor command flags. Empty strings and a
// negative Retry keep the configured values.
type MonitorOptions struct {
	Interval       string
	EventsInterval string
	StaleTime      string
	Retry          int
	SlackHook      string
	SlackChannel   string
	LogFile        string
}

// Apply overrides cfg with the flags that were set.
func (o MonitorOptions) Apply(cfg *config.Config) error {
	interval, err := ParseInterval("interval", o.Interval, config.MinInterval)
	if err != nil {
		return err
	}
	if interval > 0 {
		cfg.Views.StatusInterval = interval
	}

	eventsInterval, err := ParseInterval("events-interval", o.EventsInterval, config.MinInterval)
	if err != nil {
		return err
	}
	if eventsInterval > 0 {
		cfg.Views.EventsInterval = eventsInterval
	}

	// Any non-negative stale time is valid, including 0s to always refetch.
	if o.StaleTime != "" {
		stale, err := ParseInterval("stale-time", o.StaleTime, 0)
		if err != nil {
			return err
		}
		cfg.Query.StaleTime = stale
	}

	if o.Retry >= 0 {
		cfg.Query.Retry = o.Retry
	}

	if o.SlackHook != "" {
		cfg.Notify.SlackHook = o.SlackHook
	}
	if o.SlackChannel != "" {
		cfg.Notify.SlackChannel = o.SlackChannel
	}
	if o.LogFile != "" {
		cfg.Notify.LogFile = o.LogFile
	}
	return nil
}
