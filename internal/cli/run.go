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
	"github.com/openchw/sentry/internal/transition"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Database string
	Since    int64
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <settings-dir>",
		Short: "Start the transition pipeline",
		Long: `Start the document transition pipeline.

Loads CUE settings from the given directory, opens the SQLite document
store (creating it if it doesn't exist), and starts two loops: the feed
consumer applying transitions to every change, and the scheduler firing
periodic jobs on five-minute boundaries.

Example:
  sentry run --db ./sentry.db ./settings
  sentry run --db /tmp/test.db ./settings --since 40 --verbose`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPipeline(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	cmd.Flags().Int64Var(&opts.Since, "since", 0, "feed sequence to resume from")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

func runPipeline(opts *RunOptions, settingsDir string, cmd *cobra.Command) error {
	logLevel := slog.LevelInfo
	if opts.Verbose {
		logLevel = slog.LevelDebug
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	})
	slog.SetDefault(slog.New(handler))

	slog.Info("loading settings", "dir", settingsDir)
	settings, err := config.Load(settingsDir)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load settings", err)
	}

	slog.Info("opening database", "path", opts.Database)
	st, err := store.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			slog.Error("error closing database", "error", closeErr)
		}
	}()

	registry, err := buildRegistry(st, settings)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to build transitions", err)
	}
	slog.Info("transitions ready", "count", registry.Len())

	consumer := transition.NewConsumer(st, transition.NewRunner(st, registry), opts.Since)

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

	slog.Info("pipeline starting", "db", opts.Database, "since", opts.Since)
	fmt.Fprintln(cmd.OutOrStdout(), "Pipeline started. Consuming changes...")
	fmt.Fprintln(cmd.OutOrStdout(), "Press Ctrl-C to stop.")

	errCh := make(chan error, 2)
	go func() { errCh <- consumer.Run(ctx) }()
	go func() { errCh <- sched.Start(ctx) }()

	// Both loops exit with the context error on shutdown; anything else is
	// a real failure and stops the process.
	for i := 0; i < 2; i++ {
		err := <-errCh
		if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			cancel()
			<-errCh
			return WrapExitError(ExitFailure, "pipeline error", err)
		}
		cancel()
	}

	slog.Info("pipeline stopped gracefully")
	return nil
}

// buildRegistry assembles the configured transitions, in pipeline order.
func buildRegistry(st store.Store, settings *config.Settings) (*transition.Registry, error) {
	var transitions []transition.Transition

	if settings.Muting != nil {
		muting, err := transition.NewMuting(st, settings)
		if err != nil {
			return nil, err
		}
		transitions = append(transitions, muting)
	}

	return transition.NewRegistry(transitions...), nil
}
