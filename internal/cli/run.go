package cli

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/tally/internal/debounce"
	"github.com/roach88/tally/internal/model"
	"github.com/roach88/tally/internal/observer"
	"github.com/roach88/tally/internal/recurrence"
	"github.com/roach88/tally/internal/syncer"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	RecurEvery time.Duration
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the sync and recurrence engines until interrupted",
		Long: `Run tally in the background. Local changes are uploaded as a full
snapshot once they settle for the debounce period; snapshots pushed by the
user's other devices are applied locally. Recurring transactions are
expanded at start and again every --recur-every.

On SIGINT/SIGTERM a pending upload is flushed before exit.

Example:
  tally run --user alice
  TALLY_REMOTE_KIND=dir TALLY_REMOTE_DIR=~/Sync/tally tally run`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemon(cmd, opts)
		},
	}

	cmd.Flags().DurationVar(&opts.RecurEvery, "recur-every", time.Hour, "how often to re-run recurrence")
	return cmd
}

func runDaemon(cmd *cobra.Command, opts *RunOptions) error {
	cfg := opts.Config
	logger := opts.Logger

	ctx, stop := signal.NotifyContext(commandContext(cmd.Context()), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := openApp(opts.RootOptions)
	if err != nil {
		return err
	}
	defer a.Close()

	var sched *debounce.Scheduler
	var eng *syncer.Engine
	if a.remote != nil {
		if err := cfg.RequireUser(); err != nil {
			return WrapExitError(ExitCommandError, "invalid configuration", err)
		}
		eng = syncer.New(a.store, a.remote, syncer.Config{
			UserID:        cfg.UserID,
			DeviceID:      cfg.DeviceID,
			UploadTimeout: cfg.UploadTimeout,
		}, syncer.WithLogger(logger))

		sched = debounce.New(cfg.Debounce, eng.FlushLogged, debounce.WithLogger(logger))
		obs, err := observer.Watch(a.bus, model.ObservedTables, sched.Notify)
		if err != nil {
			sched.Stop()
			return WrapExitError(ExitFailure, "failed to observe tables", err)
		}
		defer func() {
			obs.Close()
			if sched.Drain() {
				logger.Info("flushed pending changes before exit")
			}
		}()
	} else {
		logger.Info("remote disabled, running local only")
	}

	rec := recurrence.New(a.store,
		recurrence.WithClock(opts.now),
		recurrence.WithLogger(logger),
		recurrence.WithMaxPerSource(cfg.Recurrence.MaxPerSource))

	g, gctx := errgroup.WithContext(ctx)

	if eng != nil {
		g.Go(func() error {
			return eng.Listen(gctx, a.remote)
		})
	}

	g.Go(func() error {
		return recurLoop(gctx, rec, opts.RecurEvery, logger)
	})

	logger.Info("tally running",
		slog.String("db", cfg.DBPath),
		slog.String("user", cfg.UserID),
		slog.String("remote", cfg.Remote.Kind))

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return WrapExitError(ExitFailure, "engine stopped", err)
	}
	logger.Info("shutting down")
	return nil
}

// recurLoop runs recurrence now and then every interval until ctx is done.
// A failed run is logged; the next tick retries from the stored cursor.
func recurLoop(ctx context.Context, rec *recurrence.Engine, every time.Duration, logger *slog.Logger) error {
	runOnce := func() {
		if _, err := rec.Process(ctx, model.Date{}); err != nil && ctx.Err() == nil {
			logger.Error("recurrence run failed", slog.String("error", err.Error()))
		}
	}

	runOnce()
	if every <= 0 {
		<-ctx.Done()
		return nil
	}

	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			runOnce()
		}
	}
}
