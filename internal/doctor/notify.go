package doctor

import (
	"context"
	"net/url"

	"github.com/btp2/btpmon/internal/config"
	"github.com/btp2/btpmon/internal/notify"
)

// NewNotifyChecks returns the NOTIFY checks for cfg.
func NewNotifyChecks(cfg config.NotifyConfig) []Check {
	return []Check{
		&SlackCheck{Hook: cfg.SlackHook, Channel: cfg.SlackChannel},
		&LogFileCheck{Path: cfg.LogFile},
	}
}

// SlackCheck reports whether link changes go to Slack. Nothing is posted.
type SlackCheck struct {
	Hook    string
	Channel string
}

func (c *SlackCheck) Name() string     { return "notify_slack" }
func (c *SlackCheck) Category() string { return CategoryNotify }

func (c *SlackCheck) Run(_ context.Context) CheckResult {
	if c.Hook == "" {
		return CheckResult{Name: c.Name(), Status: StatusPass, Message: "Slack notifications off"}
	}
	if c.Channel == "" {
		return CheckResult{
			Name:       c.Name(),
			Status:     StatusFail,
			Message:    "Slack hook set without a channel",
			Suggestion: "Set notify.slack_channel (or SLACK_CHANNEL)",
		}
	}
	u, err := url.Parse(c.Hook)
	if err != nil || u.Host == "" {
		return CheckResult{
			Name:       c.Name(),
			Status:     StatusFail,
			Message:    "Slack hook is not a valid URL",
			Suggestion: "Copy the webhook URL from the Slack app settings",
		}
	}
	return CheckResult{
		Name:    c.Name(),
		Status:  StatusPass,
		Message: "Posting link changes to " + c.Channel + " via " + u.Host,
	}
}

// LogFileCheck opens the change log for appending, the way the monitor does.
type LogFileCheck struct {
	Path string
}

func (c *LogFileCheck) Name() string     { return "notify_log_file" }
func (c *LogFileCheck) Category() string { return CategoryNotify }

func (c *LogFileCheck) Run(_ context.Context) CheckResult {
	if c.Path == "" {
		return CheckResult{Name: c.Name(), Status: StatusPass, Message: "Change log off"}
	}
	lf, err := notify.NewLogFileNotifier(c.Path)
	if err != nil {
		return CheckResult{
			Name:       c.Name(),
			Status:     StatusFail,
			Message:    "Can't write change log: " + err.Error(),
			Suggestion: "Check the directory exists and notify.log_file (or --log-file) is writable",
		}
	}
	_ = lf.Close()
	return CheckResult{
		Name:    c.Name(),
		Status:  StatusPass,
		Message: "Appending link changes to " + lf.Path(),
	}
}
