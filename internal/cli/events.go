package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/btp2/btpmon/internal/api"
	"github.com/btp2/btpmon/internal/config"
	"github.com/btp2/btpmon/internal/errors"
	"github.com/btp2/btpmon/internal/logger"
	"github.com/btp2/btpmon/internal/ui"
)

// EventsOptions holds the events command flags.
type EventsOptions struct {
	Limit int
	JSON  bool
}

// EventsOutput is the --json payload of 'btpmon events'.
type EventsOutput struct {
	Endpoint string      `json:"endpoint"`
	Limit    int         `json:"limit"`
	Events   []api.Event `json:"events"`
}

// eventsCommand prints the newest events once, newest first.
func eventsCommand(ctx context.Context, g globalOptions, opts EventsOptions, out, errOut io.Writer) error {
	cfg, err := loadConfig(g)
	if err != nil {
		return err
	}

	limit := opts.Limit
	if limit == 0 {
		limit = cfg.Views.EventsLimit
	}
	if limit < 1 || limit > config.MaxEventsLimit {
		return errors.New(errors.ErrConfig,
			fmt.Sprintf("--limit must be between 1 and %d (got %d)", config.MaxEventsLimit, limit),
			"Pick a smaller number of events")
	}

	log, closeLog, err := openDebugLog(g.DebugLog, logger.NewEnvLogger("[events]"))
	if err != nil {
		return err
	}
	defer closeLog()

	session, err := newBackendSession(cfg, log)
	if err != nil {
		return err
	}
	defer session.Close()

	data, err := session.fetch(ctx, session.api.EventsKey(limit), session.api.EventsFetcher(limit),
		"Loading events from "+session.endpoint.URL(api.PathEvents), errOut, opts.JSON)
	if err != nil {
		return errors.WrapWithCode(err, errors.ErrFetch,
			"Couldn't load events",
			"Is the monitor backend running? Check base_url or pass --base-url")
	}
	events := data.(*api.EventLog).Newest()

	if opts.JSON {
		return WriteJSONSuccess(out, EventsOutput{
			Endpoint: session.endpoint.String(),
			Limit:    limit,
			Events:   events,
		})
	}

	if len(events) == 0 {
		fmt.Fprintln(out, ui.MutedStyle().Render("No events recorded"))
		return nil
	}
	for _, e := range events {
		fmt.Fprintln(out, formatEventLine(e))
	}
	return nil
}

// eventLinkWidth aligns the transition column for typical network names.
const eventLinkWidth = 24

// formatEventLine renders "2006-01-02 15:04:05  ICON -> BSC  GOOD → BAD  pending=2 delay=5s".
func formatEventLine(e api.Event) string {
	l := e.Link()

	transition := stateLabel(e.After)
	if e.Before != "" {
		transition = stateLabel(e.Before) + " " + ui.SymbolForward + " " + transition
	}

	line := fmt.Sprintf("%s  %s  %s",
		ui.MutedStyle().Render(e.Time.Local().Format("2006-01-02 15:04:05")),
		ui.PadRight(l.SrcLabel()+" -> "+l.DstLabel(), eventLinkWidth),
		transition)
	if e.PendingCount > 0 {
		l.PendingDuration = e.PendingDuration
		line += fmt.Sprintf("  pending=%d delay=%s", e.PendingCount, l.Delay().Truncate(time.Second))
	}
	return line
}

func stateLabel(s api.LinkState) string {
	if s == api.LinkBad {
		return ui.ErrorStyle().Render(s.Label())
	}
	return ui.SuccessStyle().Render(s.Label())
}
