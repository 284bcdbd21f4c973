// Package app is the application shell: it owns the process-wide query
// client and attaches the dashboard views to the host terminal.
package app

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"sync"

	tea "github.com/charmbracelet/bubbletea"
	"golang.org/x/term"

	"github.com/btp2/btpmon/internal/api"
	"github.com/btp2/btpmon/internal/config"
	"github.com/btp2/btpmon/internal/errors"
	"github.com/btp2/btpmon/internal/logger"
	"github.com/btp2/btpmon/internal/monitor"
	"github.com/btp2/btpmon/internal/notify"
	"github.com/btp2/btpmon/internal/query"
)

// MountPoint is the terminal the shell renders into, normally os.Stdout.
type MountPoint interface {
	io.Writer
	Fd() uintptr
}

// isTerminal is swapped out in tests.
var isTerminal = func(fd uintptr) bool {
	return term.IsTerminal(int(fd))
}

// State is the shell lifecycle state.
type State int

const (
	Unmounted State = iota
	Mounted
	Closed
)

func (s State) String() string {
	switch s {
	case Unmounted:
		return "unmounted"
	case Mounted:
		return "mounted"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}

// Shell builds the query client and the dashboard exactly once.
type Shell struct {
	cfg        *config.Config
	log        logger.Logger
	httpClient *http.Client
	notifier   notify.Notifier
	input      io.Reader
	theme      monitor.Theme

	mu       sync.Mutex
	state    State
	mount    MountPoint
	endpoint config.Endpoint
	client   *query.Client
	api      *api.Client
	model    *monitor.Model
	closers  []io.Closer
}

// Option configures a Shell.
type Option func(*Shell)

// WithLogger sets the logger used by the shell, the query client and the views.
func WithLogger(l logger.Logger) Option {
	return func(s *Shell) {
		if l != nil {
			s.log = l
		}
	}
}

// WithHTTPClient sets the HTTP client for backend and Slack requests.
func WithHTTPClient(h *http.Client) Option {
	return func(s *Shell) {
		if h != nil {
			s.httpClient = h
		}
	}
}

// WithNotifier replaces the notifiers built from the config.
func WithNotifier(n notify.Notifier) Option {
	return func(s *Shell) {
		s.notifier = n
	}
}

// WithInput sets where key presses are read from. Defaults to stdin.
func WithInput(r io.Reader) Option {
	return func(s *Shell) {
		s.input = r
	}
}

// WithTheme overrides the dashboard theme.
func WithTheme(t monitor.Theme) Option {
	return func(s *Shell) {
		s.theme = t
	}
}

// NewShell creates an unmounted shell for cfg.
func NewShell(cfg *config.Config, opts ...Option) *Shell {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	s := &Shell{
		cfg:        cfg,
		log:        logger.Noop(),
		httpClient: http.DefaultClient,
		theme:      monitor.DefaultTheme(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// QueryOptions converts the query section of the config into client options.
func QueryOptions(cfg config.QueryConfig, log logger.Logger) query.Options {
	return query.Options{
		Retry:           cfg.Retry,
		StaleTime:       cfg.StaleTime,
		RefetchInterval: cfg.RefetchInterval,
		RetryDelay:      query.ExponentialBackoff(cfg.RetryDelay, cfg.MaxRetryDelay),
		FetchTimeout:    cfg.FetchTimeout,
		Logger:          log,
	}
}

// Mount attaches the shell to mp. It creates the query client, wires the
// three views to the endpoint and subscribes them. A missing or
// non-terminal mount point is fatal.
func (s *Shell) Mount(mp MountPoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != Unmounted {
		return errors.New(errors.ErrMount,
			fmt.Sprintf("Shell is already %s", s.state),
			"Create a new shell for each dashboard")
	}

	if err := checkMountPoint(mp); err != nil {
		return err
	}

	ep, err := config.NewEndpoint(s.cfg.Endpoint, s.cfg.BaseURL)
	if err != nil {
		return err
	}

	notifier := s.notifier
	if notifier == nil {
		multi, err := notify.FromConfig(s.cfg.Notify, s.httpClient, s.log)
		if err != nil {
			return err
		}
		if len(multi) > 0 {
			notifier = multi
			s.closers = append(s.closers, multi)
		}
	}

	s.endpoint = ep
	s.client = query.New(QueryOptions(s.cfg.Query, s.log))
	s.api = api.NewClient(ep, api.WithHTTPClient(s.httpClient), api.WithLogger(s.log))

	s.model = monitor.NewModel(monitor.MountContext{
		Endpoint: ep,
		Client:   s.client,
		API:      s.api,
		Views:    s.cfg.Views,
		Theme:    s.theme,
		Notifier: notifier,
		Log:      s.log,
	}, monitor.NewHeaderView(), monitor.NewStatusView(), monitor.NewEventsView())
	s.model.Mount()

	s.mount = mp
	s.state = Mounted
	s.log.Info("mounted dashboard for %s", ep)
	return nil
}

func checkMountPoint(mp MountPoint) error {
	if mp == nil {
		return errors.New(errors.ErrMount,
			"No mount point to render into",
			"Run 'btpmon monitor' from an interactive terminal")
	}
	if f, ok := mp.(*os.File); ok && f == nil {
		return errors.New(errors.ErrMount,
			"No mount point to render into",
			"Run 'btpmon monitor' from an interactive terminal")
	}
	if !isTerminal(mp.Fd()) {
		return errors.New(errors.ErrMount,
			"Output is not a terminal",
			"The dashboard needs a TTY. For scripts use 'btpmon status' or 'btpmon events'")
	}
	return nil
}

// Run drives the dashboard until the user quits or ctx ends, then
// unmounts. Cancelling ctx is a clean exit.
func (s *Shell) Run(ctx context.Context) error {
	s.mu.Lock()
	if s.state != Mounted {
		s.mu.Unlock()
		return errors.New(errors.ErrMount,
			"Shell is not mounted",
			"Call Mount before Run")
	}
	opts := []tea.ProgramOption{
		tea.WithAltScreen(),
		tea.WithContext(ctx),
		tea.WithOutput(s.mount),
	}
	if s.input != nil {
		opts = append(opts, tea.WithInput(s.input))
	}
	p := tea.NewProgram(s.model, opts...)
	s.mu.Unlock()

	_, err := p.Run()
	s.Unmount()

	if err != nil && ctx.Err() != nil {
		return nil
	}
	return err
}

// Unmount releases the views, stops the query client and closes the
// notifiers. Safe to call more than once.
func (s *Shell) Unmount() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != Mounted {
		return
	}
	s.model.Unmount()
	s.client.Close()
	for _, c := range s.closers {
		if err := c.Close(); err != nil {
			s.log.Warn("close notifier: %v", err)
		}
	}
	s.state = Closed
	s.log.Info("dashboard unmounted")
}

// State returns the lifecycle state.
func (s *Shell) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Client returns the shared query client, nil before Mount.
func (s *Shell) Client() *query.Client {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.client
}

// Model returns the dashboard model, nil before Mount.
func (s *Shell) Model() *monitor.Model {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.model
}

// Endpoint returns the resolved endpoint, zero before Mount.
func (s *Shell) Endpoint() config.Endpoint {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.endpoint
}
