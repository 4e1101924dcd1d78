package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// SyncReport is the JSON payload of the sync command.
type SyncReport struct {
	Delivered int `json:"delivered"`
	Remaining int `json:"remaining"`
}

// NewSyncCommand creates the sync command.
func NewSyncCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Deliver queued events to the configured relays",
		Long: `Attempt delivery of every unacknowledged event in the outbox.

Events stay queued until some relay acknowledges them, so sync is safe
to run repeatedly; it only ever retries, never duplicates.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSync(rootOpts, cmd)
		},
	}
	return cmd
}

func runSync(opts *RootOptions, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	app, err := openApp(opts)
	if err != nil {
		_ = formatter.Fail(err.Error(), nil)
		return err
	}
	defer app.Close()

	delivered, err := app.Pool.Flush(cmd.Context())
	if err != nil {
		_ = formatter.Fail(err.Error(), nil)
		return NewExitError(ExitCommandError, err.Error())
	}
	remaining, err := app.Store.OutboxDepth(cmd.Context())
	if err != nil {
		_ = formatter.Fail(err.Error(), nil)
		return NewExitError(ExitCommandError, err.Error())
	}

	if formatter.Format == "json" {
		return formatter.Success(SyncReport{Delivered: delivered, Remaining: remaining})
	}
	fmt.Fprintf(formatter.Writer, "delivered %d event(s), %d still queued\n", delivered, remaining)
	return nil
}
