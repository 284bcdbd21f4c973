package cli

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/btp2/btpmon/internal/api"
	"github.com/btp2/btpmon/internal/app"
	"github.com/btp2/btpmon/internal/config"
	"github.com/btp2/btpmon/internal/errors"
	"github.com/btp2/btpmon/internal/logger"
	"github.com/btp2/btpmon/internal/query"
	"github.com/btp2/btpmon/internal/ui"
)

// ExitLinkBad is the exit code of 'btpmon status' when any link is BAD.
const ExitLinkBad = 2

// StatusOptions holds the status command flags.
type StatusOptions struct {
	JSON bool
}

// StatusOutput is the --json payload of 'btpmon status'.
type StatusOutput struct {
	Endpoint string       `json:"endpoint"`
	Status   string       `json:"status"`
	Healthy  bool         `json:"healthy"`
	Pairs    []PairStatus `json:"pairs"`
	BadLinks []api.Link   `json:"bad_links,omitempty"`
}

// PairStatus is one connected pair of networks with the pending message
// count of each direction.
type PairStatus struct {
	Network   string `json:"network"`
	Src       string `json:"src"`
	Dst       string `json:"dst"`
	FwPending int64  `json:"fw_pending"`
	BwPending int64  `json:"bw_pending"`
	Bad       bool   `json:"bad"`
}

// backendSession is a query client plus API client for one-shot commands.
type backendSession struct {
	endpoint config.Endpoint
	query    *query.Client
	api      *api.Client
}

func newBackendSession(cfg *config.Config, log logger.Logger) (*backendSession, error) {
	ep, err := config.NewEndpoint(cfg.Endpoint, cfg.BaseURL)
	if err != nil {
		return nil, err
	}
	return &backendSession{
		endpoint: ep,
		query:    query.New(app.QueryOptions(cfg.Query, log)),
		api:      api.NewClient(ep, api.WithLogger(log), api.WithUserAgent("btpmon/"+GetVersion())),
	}, nil
}

func (s *backendSession) Close() {
	s.query.Close()
}

// fetch runs one query through the shared client with a spinner on errOut.
// The spinner is skipped in JSON mode.
func (s *backendSession) fetch(ctx context.Context, key query.Key, fetcher query.Fetcher, label string, errOut io.Writer, quiet bool) (any, error) {
	if quiet {
		return s.query.Fetch(ctx, key, fetcher)
	}

	spinner := ui.NewSpinner(errOut, label)
	spinner.Start()
	data, err := s.query.Fetch(ctx, key, fetcher)
	if err != nil {
		spinner.Fail()
		return nil, err
	}
	spinner.Success()
	return data, nil
}

// statusCommand prints the relay status once.
func statusCommand(ctx context.Context, g globalOptions, opts StatusOptions, out, errOut io.Writer) error {
	cfg, err := loadConfig(g)
	if err != nil {
		return err
	}

	log, closeLog, err := openDebugLog(g.DebugLog, logger.NewEnvLogger("[status]"))
	if err != nil {
		return err
	}
	defer closeLog()

	session, err := newBackendSession(cfg, log)
	if err != nil {
		return err
	}
	defer session.Close()

	data, err := session.fetch(ctx, session.api.StatusKey(), session.api.StatusFetcher(),
		"Querying "+session.endpoint.URL(api.PathStatus), errOut, opts.JSON)
	if err != nil {
		return errors.WrapWithCode(err, errors.ErrFetch,
			"Couldn't get the relay status",
			"Is the monitor backend running? Check base_url or pass --base-url")
	}
	report := data.(*api.StatusReport)
	result := buildStatusOutput(session.endpoint, report)

	if opts.JSON {
		if err := WriteJSONSuccess(out, result); err != nil {
			return err
		}
	} else {
		renderStatus(out, result)
	}

	if !result.Healthy {
		return errors.NewExitError(ExitLinkBad)
	}
	return nil
}

// buildStatusOutput keeps only pairs reported in both directions. Pending is
// tx_seq minus rx_seq of each direction.
func buildStatusOutput(ep config.Endpoint, report *api.StatusReport) StatusOutput {
	result := StatusOutput{
		Endpoint: ep.String(),
		Status:   report.Status,
		Healthy:  report.Healthy(),
		Pairs:    []PairStatus{},
		BadLinks: report.BadLinks(),
	}

	for _, p := range report.Pairs() {
		if p.Backward == nil {
			continue
		}
		result.Pairs = append(result.Pairs, PairStatus{
			Network:   p.Forward.SrcLabel() + " -> " + p.Forward.DstLabel(),
			Src:       p.Forward.Src,
			Dst:       p.Forward.Dst,
			FwPending: p.Forward.TxSeq - p.Forward.RxSeq,
			BwPending: p.Backward.TxSeq - p.Backward.RxSeq,
			Bad:       p.Bad(),
		})
	}
	return result
}

func renderStatus(w io.Writer, result StatusOutput) {
	fmt.Fprintf(w, "%s %s  backend status: %s\n\n", ui.SymbolComplete, result.Endpoint, result.Status)

	if len(result.Pairs) == 0 {
		fmt.Fprintln(w, ui.MutedStyle().Render("No connected links reported"))
	} else {
		columns := []ui.TableColumn{
			{Title: "Network", Width: 44},
			{Title: "FW Pending", Width: 10},
			{Title: "BW Pending", Width: 10},
		}
		rows := make([][]string, 0, len(result.Pairs))
		for _, p := range result.Pairs {
			rows = append(rows, []string{
				p.Network,
				fmt.Sprintf("%10d", p.FwPending),
				fmt.Sprintf("%10d", p.BwPending),
			})
		}
		fmt.Fprintln(w, ui.RenderSimpleTable(columns, rows))
	}

	fmt.Fprintln(w)
	if result.Healthy {
		fmt.Fprintln(w, ui.SuccessStyle().Render(ui.SymbolSuccess+" all links good"))
		return
	}

	names := make([]string, 0, len(result.BadLinks))
	for _, l := range result.BadLinks {
		names = append(names, l.SrcLabel()+" -> "+l.DstLabel())
	}
	fmt.Fprintln(w, ui.ErrorStyle().Render(fmt.Sprintf("%s %d bad: %s",
		ui.SymbolFail, len(result.BadLinks), strings.Join(names, ", "))))
}
