package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/btp2/btpmon/internal/errors"
)

// Endpoint identifies the monitor backend. It is resolved once at startup and
// handed to every view by value; there is no way to change it afterwards.
type Endpoint struct {
	raw  string
	base string
}

// NewEndpoint resolves raw against baseURL. An empty raw falls back to
// DefaultEndpoint. raw may be a path prefix ("/foo") or an absolute http(s)
// URL, in which case baseURL is ignored.
func NewEndpoint(raw, baseURL string) (Endpoint, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		raw = DefaultEndpoint
	}

	if isAbsoluteURL(raw) {
		if _, err := parseHTTPURL(raw); err != nil {
			return Endpoint{}, errors.WrapWithCode(err, errors.ErrConfig,
				fmt.Sprintf("Endpoint '%s' is not a valid URL", raw),
				"Use a path like /foo or a full URL like http://localhost:8100/foo")
		}
		return Endpoint{raw: strings.TrimRight(raw, "/")}, nil
	}

	raw = strings.TrimRight(raw, "/")
	if raw == "" {
		raw = "/"
	}

	if !strings.HasPrefix(raw, "/") {
		raw = "/" + raw
	}

	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if _, err := parseHTTPURL(baseURL); err != nil {
		return Endpoint{}, errors.WrapWithCode(err, errors.ErrConfig,
			fmt.Sprintf("Base URL '%s' is not a valid http(s) URL", baseURL),
			"Set base_url (or --base-url) to something like http://localhost:8100")
	}

	return Endpoint{raw: raw, base: strings.TrimRight(baseURL, "/")}, nil
}

// MustEndpoint is NewEndpoint for values known to be valid, e.g. in tests.
func MustEndpoint(raw, baseURL string) Endpoint {
	ep, err := NewEndpoint(raw, baseURL)
	if err != nil {
		panic(err)
	}
	return ep
}

// String returns the configured endpoint as given (path prefix or URL).
func (e Endpoint) String() string {
	if e.raw == "" {
		return DefaultEndpoint
	}
	return e.raw
}

// IsZero reports whether e was never resolved.
func (e Endpoint) IsZero() bool {
	return e.raw == ""
}

// Key returns the request key for a sub-path, e.g. Key("status") == "/foo/status".
func (e Endpoint) Key(sub string) string {
	return joinPath(e.String(), sub)
}

// URL returns the absolute URL to request for a sub-path.
func (e Endpoint) URL(sub string) string {
	return e.base + e.Key(sub)
}

// Base returns the base URL a relative endpoint resolves against.
// Empty when the endpoint is itself absolute.
func (e Endpoint) Base() string {
	return e.base
}

func joinPath(prefix, sub string) string {
	sub = strings.TrimLeft(sub, "/")
	if sub == "" {
		return prefix
	}
	if strings.HasSuffix(prefix, "/") {
		return prefix + sub
	}
	return prefix + "/" + sub
}

func isAbsoluteURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

func parseHTTPURL(s string) (*url.URL, error) {
	u, err := url.Parse(s)
	if err != nil {
		return nil, err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("missing host")
	}
	return u, nil
}
