package doctor

import (
	"context"
	"fmt"
	"time"

	"github.com/btp2/btpmon/internal/api"
	"github.com/btp2/btpmon/internal/errors"
)

// DefaultProbeTimeout bounds each backend request.
const DefaultProbeTimeout = 5 * time.Second

// probeFunc fetches one resource and describes it. warn marks a reachable
// resource that still needs attention.
type probeFunc func(ctx context.Context) (msg string, warn string, err error)

// BackendCheck requests one backend resource and reports latency and content.
type BackendCheck struct {
	Resource string
	URL      string
	Timeout  time.Duration

	probe probeFunc
}

// NewBackendChecks returns a check per resource the dashboard views fetch.
func NewBackendChecks(client *api.Client, eventsLimit int) []Check {
	ep := client.Endpoint()
	return []Check{
		&BackendCheck{
			Resource: api.PathInfo,
			URL:      ep.URL(api.PathInfo),
			probe: func(ctx context.Context) (string, string, error) {
				info, err := client.Info(ctx)
				if err != nil {
					return "", "", err
				}
				return fmt.Sprintf("%s %s, %d network%s", info.Name, info.Version, len(info.Networks), pluralize(len(info.Networks))), "", nil
			},
		},
		&BackendCheck{
			Resource: api.PathStatus,
			URL:      ep.URL(api.PathStatus),
			probe: func(ctx context.Context) (string, string, error) {
				report, err := client.Status(ctx)
				if err != nil {
					return "", "", err
				}
				msg := fmt.Sprintf("%s, %d link%s", report.Status, len(report.Links), pluralize(len(report.Links)))
				if bad := len(report.BadLinks()); bad > 0 {
					return msg, fmt.Sprintf("%d of %d links bad", bad, len(report.Links)), nil
				}
				return msg, "", nil
			},
		},
		&BackendCheck{
			Resource: api.PathEvents,
			URL:      ep.URL(api.PathEvents),
			probe: func(ctx context.Context) (string, string, error) {
				log, err := client.Events(ctx, eventsLimit)
				if err != nil {
					return "", "", err
				}
				return fmt.Sprintf("%d event%s", len(log.Events), pluralize(len(log.Events))), "", nil
			},
		},
	}
}

func (c *BackendCheck) Name() string     { return "backend_" + c.Resource }
func (c *BackendCheck) Category() string { return CategoryBackend }

func (c *BackendCheck) Run(ctx context.Context) CheckResult {
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = DefaultProbeTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	msg, warn, err := c.probe(ctx)
	latency := time.Since(start)

	if err != nil {
		return CheckResult{
			Name:       c.Name(),
			Status:     StatusFail,
			Message:    fmt.Sprintf("%s: %s", c.Resource, api.Summary(err)),
			Suggestion: backendSuggestion(err, c.URL),
		}
	}

	result := CheckResult{
		Name:    c.Name(),
		Status:  StatusPass,
		Message: fmt.Sprintf("%s: %s (%s)", c.Resource, msg, FormatLatency(latency)),
	}
	if warn != "" {
		result.Status = StatusWarn
		result.Message = fmt.Sprintf("%s: %s", c.Resource, warn)
		result.Suggestion = "Run 'btpmon status' for the affected links"
	}
	return result
}

func backendSuggestion(err error, url string) string {
	if code, ok := api.StatusCodeOf(err); ok {
		if code == 404 {
			return fmt.Sprintf("%s doesn't exist. Check the endpoint setting", url)
		}
		return fmt.Sprintf("The backend answered %d. Check its logs", code)
	}
	if errors.IsCode(err, errors.ErrDecode) {
		return "The backend response doesn't match what btpmon expects. Check the backend version"
	}
	return suggestionOf(err, "Check the backend is running at "+url)
}

// FormatLatency renders a probe duration for reports.
func FormatLatency(d time.Duration) string {
	if d < time.Millisecond {
		return "<1ms"
	}
	return fmt.Sprintf("%dms", d.Milliseconds())
}
