// Package notify reports link state changes to Slack and to a log file.
package notify

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/btp2/btpmon/internal/api"
	"github.com/btp2/btpmon/internal/config"
	"github.com/btp2/btpmon/internal/errors"
	"github.com/btp2/btpmon/internal/logger"
)

// LinkChange is one direction of a link switching state.
type LinkChange struct {
	Link   api.Link
	Before api.LinkState
	After  api.LinkState
	At     time.Time
}

// String renders the change as "ICON -> BSC : BAD".
func (c LinkChange) String() string {
	return fmt.Sprintf("%s -> %s : %s", c.Link.SrcLabel(), c.Link.DstLabel(), c.After.Label())
}

// Notifier receives the changes found in a new status report together with
// the report itself.
type Notifier interface {
	Notify(ctx context.Context, changes []LinkChange, report *api.StatusReport) error
}

// Diff returns the link directions whose state differs between prev and next.
// A nil prev is the baseline and yields no changes. Links first seen in the
// bad state are reported; new good links are not.
func Diff(prev, next *api.StatusReport, at time.Time) []LinkChange {
	if prev == nil || next == nil {
		return nil
	}

	before := make(map[string]api.LinkState, len(prev.Links))
	for _, l := range prev.Links {
		before[l.ID()] = l.State
	}

	var changes []LinkChange
	for _, l := range next.Links {
		was, known := before[l.ID()]
		switch {
		case known && was != l.State:
		case !known && l.State == api.LinkBad:
		default:
			continue
		}
		changes = append(changes, LinkChange{Link: l, Before: was, After: l.State, At: at})
	}
	return changes
}

// Multi fans a notification out to several notifiers and joins their errors.
type Multi []Notifier

// Notify calls every notifier, even after one fails.
func (m Multi) Notify(ctx context.Context, changes []LinkChange, report *api.StatusReport) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, changes, report); err != nil {
			errs = append(errs, err)
		}
	}
	return stderrors.Join(errs...)
}

// Close closes every notifier that holds resources.
func (m Multi) Close() error {
	var errs []error
	for _, n := range m {
		if c, ok := n.(io.Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return stderrors.Join(errs...)
}

// FromConfig builds the notifiers enabled in cfg. It returns a nil Multi when
// nothing is configured.
func FromConfig(cfg config.NotifyConfig, httpClient *http.Client, log logger.Logger) (Multi, error) {
	if log == nil {
		log = logger.Noop()
	}
	var m Multi

	if cfg.SlackHook != "" && cfg.SlackChannel != "" {
		m = append(m, NewSlackNotifier(cfg.SlackHook, cfg.SlackChannel, WithHTTPClient(httpClient)))
		log.Debug("slack notifications enabled for %s", cfg.SlackChannel)
	}

	if cfg.LogFile != "" {
		lf, err := NewLogFileNotifier(cfg.LogFile)
		if err != nil {
			_ = m.Close()
			return nil, errors.WrapWithCode(err, errors.ErrNotify,
				fmt.Sprintf("Couldn't open log file %s", cfg.LogFile),
				"Check the path in notify.log_file (or --log-file) is writable")
		}
		m = append(m, lf)
		log.Debug("logging link changes to %s", cfg.LogFile)
	}

	return m, nil
}

// formatDelay renders a pending duration the way the Slack and log lines show it.
func formatDelay(d time.Duration) string {
	return d.Truncate(time.Second).String()
}
