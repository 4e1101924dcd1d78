package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/openlift/openlift/internal/nip101e"
	"github.com/openlift/openlift/internal/resolve"
)

// ResolveResult is the JSON payload of the resolve command.
type ResolveResult struct {
	Templates  []nip101e.WorkoutTemplate `json:"templates,omitempty"`
	Exercises  []nip101e.Exercise        `json:"exercises,omitempty"`
	Unresolved []nip101e.Ref             `json:"unresolved,omitempty"`
}

// NewResolveCommand creates the resolve command.
func NewResolveCommand(rootOpts *RootOptions) *cobra.Command {
	var offline bool

	cmd := &cobra.Command{
		Use:   "resolve <ref>...",
		Short: "Resolve addressable refs to exercises and templates",
		Long: `Resolve one or more "kind:pubkey:d-tag" references.

Collections expand one level; templates pull in their exercise
dependencies. Lookups are cache-first: the local event store answers
before any relay is contacted, and refs the network cannot satisfy are
reported as unresolved rather than failing the command.`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runResolve(rootOpts, args, offline, cmd)
		},
	}

	cmd.Flags().BoolVar(&offline, "offline", false, "resolve from the local cache only")

	return cmd
}

func runResolve(opts *RootOptions, args []string, offline bool, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	refs := make([]nip101e.Ref, 0, len(args))
	for _, arg := range args {
		ref, err := nip101e.ParseRef(arg)
		if err != nil {
			_ = formatter.Fail(err.Error(), nil)
			return NewExitError(ExitCommandError, err.Error())
		}
		refs = append(refs, ref)
	}

	app, err := openApp(opts)
	if err != nil {
		_ = formatter.Fail(err.Error(), nil)
		return err
	}
	defer app.Close()

	var set resolve.ResolvedSet
	if offline {
		set = app.Engine.ResolveOffline(cmd.Context(), refs)
	} else {
		set, err = app.Engine.Resolve(cmd.Context(), refs)
		if err != nil {
			_ = formatter.Fail(err.Error(), nil)
			return NewExitError(ExitCommandError, err.Error())
		}
	}

	formatter.VerboseLog("resolved %d template(s), %d exercise(s), %d unresolved",
		len(set.Templates), len(set.Exercises), len(set.Unresolved))

	if formatter.Format == "json" {
		if err := formatter.Success(ResolveResult(set)); err != nil {
			return err
		}
	} else {
		printResolvedSet(formatter, set)
	}

	if len(set.Unresolved) > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d ref(s) unresolved", len(set.Unresolved)))
	}
	return nil
}

func printResolvedSet(formatter *OutputFormatter, set resolve.ResolvedSet) {
	w := formatter.Writer
	for _, t := range set.Templates {
		fmt.Fprintf(w, "template  %s  %q (%s, %d sets)\n", t.Ref().String(), t.Name, t.Type, len(t.Sets))
	}
	for _, ex := range set.Exercises {
		fmt.Fprintf(w, "exercise  %s  %q (%s)\n", ex.Ref().String(), ex.Name, ex.Equipment)
	}
	for _, ref := range set.Unresolved {
		fmt.Fprintf(w, "unresolved  %s\n", ref.String())
	}
}
