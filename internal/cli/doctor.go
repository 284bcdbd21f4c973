package cli

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/btp2/btpmon/internal/api"
	"github.com/btp2/btpmon/internal/config"
	"github.com/btp2/btpmon/internal/doctor"
	"github.com/btp2/btpmon/internal/errors"
	"github.com/btp2/btpmon/internal/logger"
	"github.com/btp2/btpmon/internal/ui"
)

// DoctorOptions holds the doctor command flags.
type DoctorOptions struct {
	JSON bool
}

// DoctorOutput represents the JSON output for doctor command.
type DoctorOutput struct {
	Categories []CategoryOutput `json:"categories"`
	Summary    SummaryOutput    `json:"summary"`
}

// CategoryOutput represents a category of check results.
type CategoryOutput struct {
	Name    string               `json:"name"`
	Results []doctor.CheckResult `json:"results"`
}

// SummaryOutput summarizes the check results.
type SummaryOutput struct {
	Pass     int  `json:"pass"`
	Warn     int  `json:"warn"`
	Fail     int  `json:"fail"`
	AllClear bool `json:"all_clear"`
}

// doctorCommand runs the diagnostics and reports them. Backend and notify
// checks only run once the config loads. Any failed check exits 1.
func doctorCommand(ctx context.Context, g globalOptions, opts DoctorOptions, out io.Writer) error {
	fileCheck, schemaCheck := doctor.NewConfigChecks(g.ConfigFile, func() (*config.Config, error) {
		return loadConfig(g)
	})
	checks := []doctor.Check{fileCheck, schemaCheck}
	results := doctor.RunAll(ctx, checks)
	header := ui.HeaderInfo{Title: "btpmon doctor", Version: GetVersion(), Tagline: "Diagnostic report"}

	if cfg := schemaCheck.Config(); cfg != nil {
		log, closeLog, err := openDebugLog(g.DebugLog, logger.Noop())
		if err != nil {
			return err
		}
		defer closeLog()

		ep, err := config.NewEndpoint(cfg.Endpoint, cfg.BaseURL)
		if err != nil {
			return err
		}
		header.Detail = ep.URL("")
		client := api.NewClient(ep, api.WithLogger(log), api.WithUserAgent("btpmon/"+GetVersion()))

		more := append(doctor.NewBackendChecks(client, cfg.Views.EventsLimit), doctor.NewNotifyChecks(cfg.Notify)...)
		checks = append(checks, more...)
		results = append(results, doctor.RunAllParallel(ctx, more)...)
	}

	var err error
	if opts.JSON {
		err = WriteJSONSuccess(out, buildDoctorOutput(checks, results))
	} else {
		renderDoctor(out, header, checks, results)
	}
	if err != nil {
		return err
	}

	if doctor.HasFailures(results) {
		return errors.NewExitError(1)
	}
	return nil
}

// buildDoctorOutput groups results by category in report order.
func buildDoctorOutput(checks []doctor.Check, results []doctor.CheckResult) DoctorOutput {
	output := DoctorOutput{Categories: []CategoryOutput{}}
	for _, cat := range doctor.CategoryOrder {
		var catResults []doctor.CheckResult
		for i, check := range checks {
			if check.Category() == cat {
				catResults = append(catResults, results[i])
			}
		}
		if len(catResults) > 0 {
			output.Categories = append(output.Categories, CategoryOutput{Name: cat, Results: catResults})
		}
	}

	counts := doctor.CountByStatus(results)
	output.Summary = SummaryOutput{
		Pass:     counts[doctor.StatusPass],
		Warn:     counts[doctor.StatusWarn],
		Fail:     counts[doctor.StatusFail],
		AllClear: !doctor.HasIssues(results),
	}
	return output
}

// renderDoctor writes the human-readable report.
func renderDoctor(w io.Writer, header ui.HeaderInfo, checks []doctor.Check, results []doctor.CheckResult) {
	headerStyle := lipgloss.NewStyle().Bold(true)

	fmt.Fprintln(w)
	ui.FprintHeader(w, header)
	fmt.Fprintln(w)

	for _, category := range buildDoctorOutput(checks, results).Categories {
		fmt.Fprintln(w, headerStyle.Render(category.Name))
		for _, result := range category.Results {
			renderCheckResult(w, result)
		}
		fmt.Fprintln(w)
	}

	fmt.Fprintln(w, strings.Repeat("━", 60))
	fmt.Fprintln(w)

	if doctor.HasIssues(results) {
		fmt.Fprintf(w, "%s %s\n", ui.ErrorStyle().Render(ui.SymbolFail), doctor.Summary(results))
	} else {
		fmt.Fprintf(w, "%s %s\n", ui.SuccessStyle().Render(ui.SymbolSuccess), doctor.Summary(results))
	}
	fmt.Fprintln(w)
}

// renderCheckResult renders a single check result with its suggestion.
func renderCheckResult(w io.Writer, result doctor.CheckResult) {
	symbol, style := ui.SymbolComplete, ui.SuccessStyle()
	switch result.Status {
	case doctor.StatusWarn:
		style = ui.WarningStyle()
	case doctor.StatusFail:
		symbol, style = ui.SymbolFail, ui.ErrorStyle()
	}

	fmt.Fprintf(w, "  %s %s\n", style.Render(symbol), result.Message)

	if result.Suggestion != "" && result.Status != doctor.StatusPass {
		for _, line := range strings.Split(result.Suggestion, "\n") {
			fmt.Fprintf(w, "    %s\n", ui.MutedStyle().Render(line))
		}
	}
}
