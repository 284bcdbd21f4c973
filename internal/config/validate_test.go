package config

import (
	"testing"
	"time"

	"github.com/btp2/btpmon/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name        string
		mutate      func(cfg *Config)
		wantErr     bool
		errContains string
	}{
		{
			name:   "defaults are valid",
			mutate: func(cfg *Config) {},
		},
		{
			name:        "future version",
			mutate:      func(cfg *Config) { cfg.Version = CurrentConfigVersion + 1 },
			wantErr:     true,
			errContains: "from the future",
		},
		{
			name:        "bad base url",
			mutate:      func(cfg *Config) { cfg.BaseURL = "localhost:8100" },
			wantErr:     true,
			errContains: "not a valid http(s) URL",
		},
		{
			name:        "negative retry",
			mutate:      func(cfg *Config) { cfg.Query.Retry = -1 },
			wantErr:     true,
			errContains: "query.retry can't be negative",
		},
		{
			name:   "zero retry allowed",
			mutate: func(cfg *Config) { cfg.Query.Retry = 0 },
		},
		{
			name:        "negative stale time",
			mutate:      func(cfg *Config) { cfg.Query.StaleTime = -time.Second },
			wantErr:     true,
			errContains: "query.stale_time can't be negative",
		},
		{
			name:        "refetch interval too short",
			mutate:      func(cfg *Config) { cfg.Query.RefetchInterval = 100 * time.Millisecond },
			wantErr:     true,
			errContains: "too short",
		},
		{
			name: "retry delay above max",
			mutate: func(cfg *Config) {
				cfg.Query.RetryDelay = time.Minute
				cfg.Query.MaxRetryDelay = time.Second
			},
			wantErr:     true,
			errContains: "longer than query.max_retry_delay",
		},
		{
			name:        "status interval too short",
			mutate:      func(cfg *Config) { cfg.Views.StatusInterval = 10 * time.Millisecond },
			wantErr:     true,
			errContains: "views.status_interval",
		},
		{
			name:        "events limit zero",
			mutate:      func(cfg *Config) { cfg.Views.EventsLimit = 0 },
			wantErr:     true,
			errContains: "views.events_limit",
		},
		{
			name:        "events limit too large",
			mutate:      func(cfg *Config) { cfg.Views.EventsLimit = MaxEventsLimit + 1 },
			wantErr:     true,
			errContains: "views.events_limit",
		},
		{
			name:        "slack hook without channel",
			mutate:      func(cfg *Config) { cfg.Notify.SlackHook = "https://hooks.slack.com/services/x" },
			wantErr:     true,
			errContains: "slack_channel is required",
		},
		{
			name: "slack hook with channel",
			mutate: func(cfg *Config) {
				cfg.Notify.SlackHook = "https://hooks.slack.com/services/x"
				cfg.Notify.SlackChannel = "#alerts"
			},
		},
		{
			name:        "bad color mode",
			mutate:      func(cfg *Config) { cfg.Output.Color = "rainbow" },
			wantErr:     true,
			errContains: "output.color",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)

			err := Validate(cfg)
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, errors.IsCode(err, errors.ErrConfig))
			assert.Contains(t, err.Error(), tt.errContains)
		})
	}
}

func TestValidate_Nil(t *testing.T) {
	err := Validate(nil)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrConfig))
}
