package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/openchw/sentry/internal/config"
	"github.com/openchw/sentry/internal/schedule"
	"github.com/openchw/sentry/internal/store"
)

// ScheduleOptions holds flags for the schedule command.
type ScheduleOptions struct {
	*RootOptions
	Database string
	Once     bool
}

// NewScheduleCommand creates the schedule command.
func NewScheduleCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ScheduleOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "schedule <settings-dir>",
		Short: "Run the periodic jobs without the feed consumer",
		Long: `Run the scheduler loop on its own.

Useful when the feed consumer runs elsewhere, or with --once to fire a
single cycle immediately (ignoring the five-minute grid) and exit.

Example:
  sentry schedule --db ./sentry.db ./settings
  sentry schedule --db ./sentry.db ./settings --once`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSchedule(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	cmd.Flags().BoolVar(&opts.Once, "once", false, "fire one cycle immediately and exit")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

func runSchedule(opts *ScheduleOptions, settingsDir string, cmd *cobra.Command) error {
	logLevel := slog.LevelInfo
	if opts.Verbose {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	})))

	settings, err := config.Load(settingsDir)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load settings", err)
	}

	st, err := store.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			slog.Error("error closing database", "error", closeErr)
		}
	}()

	jobs := []schedule.Job{
		schedule.DueTasks(st, time.Now),
	}
	sched := schedule.New(jobs, settings.ScheduleMorningHours, settings.ScheduleEveningHours)

	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	if opts.Once {
		if err := sched.RunCycle(ctx); err != nil {
			return WrapExitError(ExitFailure, "cycle failed", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Cycle complete.")
		return nil
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			slog.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	fmt.Fprintln(cmd.OutOrStdout(), "Scheduler started. Press Ctrl-C to stop.")
	if err := sched.Start(ctx); err != nil &&
		!errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		return WrapExitError(ExitFailure, "scheduler error", err)
	}

	slog.Info("scheduler stopped gracefully")
	return nil
}
