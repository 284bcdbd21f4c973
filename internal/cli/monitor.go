package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/btp2/btpmon/internal/app"
	"github.com/btp2/btpmon/internal/logger"
)

// monitorCommand mounts the dashboard on stdout and runs it until the user
// quits or the process is interrupted.
func monitorCommand(ctx context.Context, g globalOptions, opts MonitorOptions) error {
	cfg, err := loadConfig(g, opts.Apply)
	if err != nil {
		return err
	}

	// The dashboard owns the terminal, so logs only go to --debug-log.
	log, closeLog, err := openDebugLog(g.DebugLog, logger.Noop())
	if err != nil {
		return err
	}
	defer closeLog()

	shell := app.NewShell(cfg, app.WithLogger(log))
	if err := shell.Mount(os.Stdout); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	return shell.Run(ctx)
}
