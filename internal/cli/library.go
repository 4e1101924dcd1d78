package cli

import (
	"fmt"

	"github.com/nbd-wtf/go-nostr"
	"github.com/spf13/cobra"

	"github.com/openlift/openlift/internal/nip101e"
)

// LibraryEntry is one row of the library listing.
type LibraryEntry struct {
	Kind  string `json:"kind"` // "exercise" | "template"
	Ref   string `json:"ref"`
	Name  string `json:"name"`
	Extra string `json:"extra,omitempty"`
}

// NewLibraryCommand creates the library command.
func NewLibraryCommand(rootOpts *RootOptions) *cobra.Command {
	var author string

	cmd := &cobra.Command{
		Use:   "library",
		Short: "List cached exercises and workout templates",
		Long: `List every exercise and workout template in the local event cache.

The listing never touches the network; run resolve first to pull
entities from relays into the cache.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLibrary(rootOpts, author, cmd)
		},
	}

	cmd.Flags().StringVar(&author, "author", "", "limit to one author pubkey (64-hex)")

	return cmd
}

func runLibrary(opts *RootOptions, author string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	if author != "" && !nip101e.IsHexPubkey(author) {
		msg := "author must be 64 lowercase hex chars"
		_ = formatter.Fail(msg, nil)
		return NewExitError(ExitCommandError, msg)
	}

	app, err := openApp(opts)
	if err != nil {
		_ = formatter.Fail(err.Error(), nil)
		return err
	}
	defer app.Close()

	filter := nostr.Filter{Kinds: []int{nip101e.KindExercise, nip101e.KindWorkoutTemplate}}
	if author != "" {
		filter.Authors = []string{author}
	}

	events, err := app.Store.QueryEvents(cmd.Context(), filter)
	if err != nil {
		_ = formatter.Fail(err.Error(), nil)
		return NewExitError(ExitCommandError, err.Error())
	}

	var entries []LibraryEntry
	for _, ev := range events {
		switch ev.Kind {
		case nip101e.KindExercise:
			ex, err := app.Parser.Exercise(ev)
			if err != nil {
				formatter.VerboseLog("skipping malformed exercise %s: %v", ev.ID, err)
				continue
			}
			entries = append(entries, LibraryEntry{
				Kind:  "exercise",
				Ref:   ex.Ref().String(),
				Name:  ex.Name,
				Extra: ex.Equipment,
			})
		case nip101e.KindWorkoutTemplate:
			t, err := app.Parser.Template(ev)
			if err != nil {
				formatter.VerboseLog("skipping malformed template %s: %v", ev.ID, err)
				continue
			}
			entries = append(entries, LibraryEntry{
				Kind:  "template",
				Ref:   t.Ref().String(),
				Name:  t.Name,
				Extra: fmt.Sprintf("%s, %d sets", t.Type, len(t.Sets)),
			})
		}
	}

	if formatter.Format == "json" {
		return formatter.Success(entries)
	}

	if len(entries) == 0 {
		fmt.Fprintln(formatter.Writer, "library is empty")
		return nil
	}
	for _, e := range entries {
		fmt.Fprintf(formatter.Writer, "%-9s %s  %q", e.Kind, e.Ref, e.Name)
		if e.Extra != "" {
			fmt.Fprintf(formatter.Writer, " (%s)", e.Extra)
		}
		fmt.Fprintln(formatter.Writer)
	}
	return nil
}
