package doctor

import (
	"context"
	stderrors "errors"
	"fmt"

	"github.com/btp2/btpmon/internal/config"
	"github.com/btp2/btpmon/internal/errors"
)

// ConfigLoader loads and validates the effective config, flag overrides included.
type ConfigLoader func() (*config.Config, error)

// NewConfigChecks returns the CONFIG checks. explicit is the --config value.
func NewConfigChecks(explicit string, load ConfigLoader) (*ConfigFileCheck, *ConfigSchemaCheck) {
	return &ConfigFileCheck{Explicit: explicit}, &ConfigSchemaCheck{Load: load}
}

// ConfigFileCheck reports which config file btpmon would use.
type ConfigFileCheck struct {
	Explicit string
}

func (c *ConfigFileCheck) Name() string     { return "config_file" }
func (c *ConfigFileCheck) Category() string { return CategoryConfig }

func (c *ConfigFileCheck) Run(_ context.Context) CheckResult {
	path, err := config.Find(c.Explicit)
	if err != nil {
		return CheckResult{
			Name:       c.Name(),
			Status:     StatusFail,
			Message:    messageOf(err),
			Suggestion: suggestionOf(err, "Check the --config path"),
		}
	}
	if path == "" {
		return CheckResult{
			Name:       c.Name(),
			Status:     StatusWarn,
			Message:    "No config file found, using defaults",
			Suggestion: "Run 'btpmon init' to create " + config.ConfigFileName,
		}
	}
	return CheckResult{
		Name:    c.Name(),
		Status:  StatusPass,
		Message: "Config file: " + path,
	}
}

// ConfigSchemaCheck loads the config and validates it. On success the loaded
// config is available from Config for the checks that depend on it.
type ConfigSchemaCheck struct {
	Load ConfigLoader

	cfg *config.Config
}

func (c *ConfigSchemaCheck) Name() string     { return "config_schema" }
func (c *ConfigSchemaCheck) Category() string { return CategoryConfig }

// Config returns the config loaded by the last passing Run, or nil.
func (c *ConfigSchemaCheck) Config() *config.Config {
	return c.cfg
}

func (c *ConfigSchemaCheck) Run(_ context.Context) CheckResult {
	c.cfg = nil

	cfg, err := c.Load()
	if err != nil {
		return CheckResult{
			Name:       c.Name(),
			Status:     StatusFail,
			Message:    messageOf(err),
			Suggestion: suggestionOf(err, "Fix the config file, or recreate it with 'btpmon init --force'"),
		}
	}

	ep, err := config.NewEndpoint(cfg.Endpoint, cfg.BaseURL)
	if err != nil {
		return CheckResult{
			Name:       c.Name(),
			Status:     StatusFail,
			Message:    messageOf(err),
			Suggestion: suggestionOf(err, "Check endpoint and base_url"),
		}
	}

	c.cfg = cfg
	return CheckResult{
		Name:    c.Name(),
		Status:  StatusPass,
		Message: fmt.Sprintf("Config valid, endpoint %s", ep.URL("")),
	}
}

// messageOf returns the headline of a structured error, or the error text.
func messageOf(err error) string {
	var structured *errors.Error
	if stderrors.As(err, &structured) {
		return structured.Message
	}
	return err.Error()
}

// suggestionOf returns the suggestion carried by err, or fallback.
func suggestionOf(err error, fallback string) string {
	var structured *errors.Error
	if stderrors.As(err, &structured) && structured.Suggestion != "" {
		return structured.Suggestion
	}
	return fallback
}
