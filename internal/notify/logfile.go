package notify

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/btp2/btpmon/internal/api"
	"github.com/btp2/btpmon/internal/errors"
)

// LogFileNotifier appends one line per change to a file.
type LogFileNotifier struct {
	mu   sync.Mutex
	path string
	f    *os.File
}

// NewLogFileNotifier opens path for appending, creating it if needed.
func NewLogFileNotifier(path string) (*LogFileNotifier, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	return &LogFileNotifier{path: path, f: f}, nil
}

// Path returns the file being written.
func (l *LogFileNotifier) Path() string {
	return l.path
}

// Notify writes "<time> <src> -> <dst> : <STATE> pending=<n> delay=<d>" per change.
func (l *LogFileNotifier) Notify(_ context.Context, changes []LinkChange, _ *api.StatusReport) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.f == nil {
		return errors.New(errors.ErrNotify, "Log file is closed", "")
	}

	for _, c := range changes {
		at := c.At
		if at.IsZero() {
			at = time.Now()
		}
		line := fmt.Sprintf("%s %s pending=%d delay=%s\n",
			at.UTC().Format(time.RFC3339), c, c.Link.PendingCount, formatDelay(c.Link.Delay()))
		if _, err := l.f.WriteString(line); err != nil {
			return errors.WrapWithCode(err, errors.ErrNotify,
				fmt.Sprintf("Couldn't write to %s", l.path), "")
		}
	}
	return nil
}

// Close closes the file.
func (l *LogFileNotifier) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.f == nil {
		return nil
	}
	err := l.f.Close()
	l.f = nil
	return err
}
