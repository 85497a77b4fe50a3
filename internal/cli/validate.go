package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/openchw/sentry/internal/config"
	"github.com/openchw/sentry/internal/transition"
)

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid         bool   `json:"valid"`
	MutingEnabled bool   `json:"muting_enabled"`
	Error         string `json:"error,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <settings-dir>",
		Short: "Validate pipeline settings without starting anything",
		Long: `Validate CUE settings without starting the pipeline.

Checks the settings decode, the sendable window is well-formed, and every
enabled transition accepts its configuration block. Misconfiguration is a
deploy problem; this catches it before the process starts consuming changes.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, settingsDir string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	settings, err := config.Load(settingsDir)
	if err != nil {
		return outputValidateError(formatter, err)
	}

	formatter.VerboseLog("Settings loaded from %s", settingsDir)
	formatter.VerboseLog("Sendable window: %02d:00-%02d:59",
		settings.ScheduleMorningHours, settings.ScheduleEveningHours)

	mutingEnabled := settings.Muting != nil
	if mutingEnabled {
		// Transition construction is the configuration check: anything it
		// rejects at startup it rejects here.
		if _, err := transition.NewMuting(nil, settings); err != nil {
			return outputValidateError(formatter, err)
		}
		formatter.VerboseLog("Muting transition: %d mute form(s), %d unmute form(s)",
			len(settings.Muting.MuteForms), len(settings.Muting.UnmuteForms))
	}

	if formatter.Format == "json" {
		return formatter.Success(ValidationResult{Valid: true, MutingEnabled: mutingEnabled})
	}
	fmt.Fprintln(formatter.Writer, "✓ Settings valid")
	return nil
}

func outputValidateError(formatter *OutputFormatter, err error) error {
	_ = formatter.Error("config", err.Error(), nil)
	return WrapExitError(ExitFailure, "settings invalid", err)
}
