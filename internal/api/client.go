// Package api is the boundary to the monitor backend: request keys, HTTP
// fetchers and the typed, validated response schemas the views consume.
package api

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/btp2/btpmon/internal/config"
	"github.com/btp2/btpmon/internal/errors"
	"github.com/btp2/btpmon/internal/logger"
	"github.com/btp2/btpmon/internal/query"
)

// Backend sub-paths under the endpoint.
const (
	PathInfo   = "info"
	PathStatus = "status"
	PathEvents = "events"
)

// maxErrorBody caps how much of a failed response is kept for the error message.
const maxErrorBody = 512

// validator is implemented by every response schema.
type validator interface {
	Validate() error
}

// Client fetches backend resources for one endpoint.
type Client struct {
	endpoint  config.Endpoint
	http      *http.Client
	log       logger.Logger
	userAgent string
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient sets the HTTP client, e.g. one pointed at an httptest server.
func WithHTTPClient(h *http.Client) ClientOption {
	return func(c *Client) {
		if h != nil {
			c.http = h
		}
	}
}

// WithLogger sets the logger for request diagnostics.
func WithLogger(l logger.Logger) ClientOption {
	return func(c *Client) {
		if l != nil {
			c.log = l
		}
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) ClientOption {
	return func(c *Client) {
		c.userAgent = ua
	}
}

// NewClient creates a Client for ep.
func NewClient(ep config.Endpoint, opts ...ClientOption) *Client {
	c := &Client{
		endpoint:  ep,
		http:      http.DefaultClient,
		log:       logger.Noop(),
		userAgent: "btpmon",
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Endpoint returns the endpoint this client talks to.
func (c *Client) Endpoint() config.Endpoint {
	return c.endpoint
}

// InfoKey is the query key for the backend description.
func (c *Client) InfoKey() query.Key {
	return query.Key(c.endpoint.Key(PathInfo))
}

// StatusKey is the query key for the relay status report.
func (c *Client) StatusKey() query.Key {
	return query.Key(c.endpoint.Key(PathStatus))
}

// EventsKey is the query key for the newest limit events.
func (c *Client) EventsKey(limit int) query.Key {
	return query.Key(c.endpoint.Key(eventsPath(limit)))
}

func eventsPath(limit int) string {
	if limit <= 0 {
		return PathEvents
	}
	return fmt.Sprintf("%s?limit=%d", PathEvents, limit)
}

// Info fetches the backend description.
func (c *Client) Info(ctx context.Context) (*Info, error) {
	var out Info
	if err := c.get(ctx, PathInfo, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Status fetches the relay status report.
func (c *Client) Status(ctx context.Context) (*StatusReport, error) {
	var out StatusReport
	if err := c.get(ctx, PathStatus, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Events fetches the newest limit events. limit <= 0 lets the backend decide.
func (c *Client) Events(ctx context.Context, limit int) (*EventLog, error) {
	var out EventLog
	if err := c.get(ctx, eventsPath(limit), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// InfoFetcher adapts Info to a query.Fetcher.
func (c *Client) InfoFetcher() query.Fetcher {
	return func(ctx context.Context) (any, error) {
		return c.Info(ctx)
	}
}

// StatusFetcher adapts Status to a query.Fetcher.
func (c *Client) StatusFetcher() query.Fetcher {
	return func(ctx context.Context) (any, error) {
		return c.Status(ctx)
	}
}

// EventsFetcher adapts Events to a query.Fetcher.
func (c *Client) EventsFetcher(limit int) query.Fetcher {
	return func(ctx context.Context) (any, error) {
		return c.Events(ctx, limit)
	}
}

// get requests sub, decodes the JSON body into out and validates it.
func (c *Client) get(ctx context.Context, sub string, out validator) error {
	url := c.endpoint.URL(sub)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return errors.WrapWithCode(err, errors.ErrFetch,
			fmt.Sprintf("Couldn't build request for %s", url),
			"Check the endpoint and base_url settings")
	}
	req.Header.Set("Accept", "application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	c.log.Debug("GET %s", url)
	resp, err := c.http.Do(req)
	if err != nil {
		return errors.WrapWithCode(err, errors.ErrFetch,
			fmt.Sprintf("Couldn't reach %s", url),
			"Is the monitor backend running? Check base_url or pass --endpoint")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		c.log.Debug("GET %s -> %d", url, resp.StatusCode)
		return &HTTPError{
			StatusCode: resp.StatusCode,
			URL:        url,
			Body:       strings.TrimSpace(string(body)),
		}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.WrapWithCode(err, errors.ErrDecode,
			fmt.Sprintf("Couldn't decode response from %s", url),
			"The backend returned something that isn't the expected JSON")
	}
	if err := out.Validate(); err != nil {
		return errors.WrapWithCode(err, errors.ErrDecode,
			fmt.Sprintf("Invalid response from %s", url),
			"The backend version may not match this btpmon build")
	}
	return nil
}

// Summary returns a one-line description of err suitable for a status line.
func Summary(err error) string {
	if err == nil {
		return ""
	}
	if code, ok := StatusCodeOf(err); ok {
		return fmt.Sprintf("HTTP %d %s", code, http.StatusText(code))
	}
	var structured *errors.Error
	if stderrors.As(err, &structured) {
		if structured.Cause != nil {
			return structured.Message + ": " + structured.Cause.Error()
		}
		return structured.Message
	}
	return err.Error()
}
