package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/openlift/openlift/internal/publish"
	"github.com/openlift/openlift/internal/record"
)

// NewRecordCommand creates the record command group.
func NewRecordCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "record",
		Short: "Validate and publish completed workout records",
	}

	cmd.AddCommand(newRecordValidateCommand(rootOpts))
	cmd.AddCommand(newRecordPublishCommand(rootOpts))

	return cmd
}

// loadWorkout reads a CompletedWorkout from a JSON file.
func loadWorkout(path string) (record.CompletedWorkout, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return record.CompletedWorkout{}, err
	}
	var w record.CompletedWorkout
	if err := json.Unmarshal(data, &w); err != nil {
		return record.CompletedWorkout{}, fmt.Errorf("parse %s: %w", path, err)
	}
	return w, nil
}

// RecordValidation is the JSON payload of record validate.
type RecordValidation struct {
	Valid      bool     `json:"valid"`
	Violations []string `json:"violations,omitempty"`
}

func newRecordValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <workout.json>",
		Short: "Check a workout file against the record rules",
		Long: `Check a completed-workout JSON file without publishing.

All violations are reported in one pass, not just the first.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRecordValidate(rootOpts, args[0], cmd)
		},
	}
	return cmd
}

func runRecordValidate(opts *RootOptions, path string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	w, err := loadWorkout(path)
	if err != nil {
		_ = formatter.Fail(err.Error(), nil)
		return NewExitError(ExitCommandError, err.Error())
	}

	result := record.Validate(w)
	if result.Valid() {
		if formatter.Format == "json" {
			return formatter.Success(RecordValidation{Valid: true})
		}
		fmt.Fprintln(formatter.Writer, "workout is valid")
		return nil
	}

	if formatter.Format == "json" {
		if err := formatter.Success(RecordValidation{Valid: false, Violations: result.Violations}); err != nil {
			return err
		}
	} else {
		fmt.Fprintln(formatter.Writer, "workout is invalid:")
		for _, v := range result.Violations {
			fmt.Fprintf(formatter.Writer, "  - %s\n", v)
		}
	}
	return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d violation(s)", len(result.Violations)))
}

// PublishReport is the JSON payload of record publish.
type PublishReport struct {
	EventID string `json:"event_id"`
	Queued  bool   `json:"queued"`
}

func newRecordPublishCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		dryRun     bool
		optimistic bool
	)

	cmd := &cobra.Command{
		Use:   "publish <workout.json>",
		Short: "Generate and publish a workout record event",
		Long: `Validate a completed-workout JSON file, build its kind-1301 event,
sign it with the configured key, and publish to the configured relays.

A publish that no relay acknowledges within the timeout is still a
success: the signed event sits in the durable outbox and ships on the
next sync. Use --dry-run to print the unsigned event instead of
publishing.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRecordPublish(rootOpts, args[0], dryRun, optimistic, cmd)
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "print the generated event without signing or publishing")
	cmd.Flags().BoolVar(&optimistic, "optimistic", false, "return immediately instead of waiting for a relay ack")

	return cmd
}

func runRecordPublish(opts *RootOptions, path string, dryRun, optimistic bool, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	w, err := loadWorkout(path)
	if err != nil {
		_ = formatter.Fail(err.Error(), nil)
		return NewExitError(ExitCommandError, err.Error())
	}

	app, err := openApp(opts)
	if err != nil {
		_ = formatter.Fail(err.Error(), nil)
		return err
	}
	defer app.Close()

	if app.Signer == nil {
		msg := "no secret key configured; publishing requires a signer"
		_ = formatter.Fail(msg, nil)
		return NewExitError(ExitCommandError, msg)
	}

	ev, err := app.Generator.Generate(w, app.Signer.PubKey())
	if err != nil {
		_ = formatter.Fail(err.Error(), nil)
		return NewExitError(ExitFailure, err.Error())
	}

	if dryRun {
		if formatter.Format == "json" {
			return formatter.Success(ev)
		}
		out, err := json.MarshalIndent(ev, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(formatter.Writer, string(out))
		return nil
	}

	mode := publish.ModeConfirmed
	if optimistic {
		mode = publish.ModeOptimistic
	}
	result := app.Publisher.Publish(cmd.Context(), ev, publish.Options{
		Mode:    mode,
		Timeout: app.Config.PublishTimeout(),
	})
	if !result.Success {
		_ = formatter.Fail(result.Err.Error(), nil)
		return NewExitError(ExitFailure, result.Err.Error())
	}

	if formatter.Format == "json" {
		return formatter.Success(PublishReport{EventID: result.EventID, Queued: result.Queued})
	}
	if result.Queued {
		fmt.Fprintf(formatter.Writer, "queued %s (no relay ack yet; run sync to retry)\n", result.EventID)
	} else {
		fmt.Fprintf(formatter.Writer, "published %s\n", result.EventID)
	}
	return nil
}
