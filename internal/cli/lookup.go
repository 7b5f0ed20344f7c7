package cli

import (
	"context"
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/roach88/portalql/internal/lookup"
)

// LookupTypes are the lookup document types the create command accepts.
var LookupTypes = []string{lookup.DonorIDs, lookup.GeneIDs, lookup.MutationIDs, lookup.FileIDs}

// LookupCreateOptions holds flags for lookup create.
type LookupCreateOptions struct {
	*RootOptions
	Type      string
	ID        string
	Transient bool
	Repo      string
}

// NewLookupCommand creates the lookup command group.
func NewLookupCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lookup",
		Short: "Manage terms-lookup documents",
		Long: `Manage the side index of id lists that filters reference as ES:<id>.

The provision subcommand creates the index; create and show write and
read single documents.`,
	}
	cmd.AddCommand(newLookupProvisionCommand(rootOpts))
	cmd.AddCommand(newLookupCreateCommand(rootOpts))
	cmd.AddCommand(newLookupShowCommand(rootOpts))
	return cmd
}

func newLookupProvisionCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "provision",
		Short: "Create the lookup index if it does not exist",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := formatter(rootOpts, cmd)
			o, err := connectApp(rootOpts, cmd)
			if err != nil {
				return f.Fail("connect to search engine", err)
			}
			if err := o.lookups.Provision(commandContext(cmd)); err != nil {
				return f.Fail("provision failed", err)
			}
			index := o.lookups.Coordinates().Index
			return f.Result(map[string]string{"index": index}, func(w io.Writer) {
				fmt.Fprintf(w, "✓ Lookup index %s ready\n", index)
			})
		},
	}
}

func newLookupCreateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &LookupCreateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "create <member>...",
		Short: "Write a lookup document",
		Long: `Write a lookup document holding the given member ids.

Without --id a fresh time-ordered id is generated. The printed id can be
used in filters as 'ES:<id>'.

Examples:
  portalql lookup create --type donor-ids DO1 DO2 DO3
  portalql lookup create --type file-ids --repo TCGA --transient FI1 FI2`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f := formatter(rootOpts, cmd)
			if !slices.Contains(LookupTypes, opts.Type) {
				return f.Fail("invalid flags",
					fmt.Errorf("--type must be one of %s", strings.Join(LookupTypes, ", ")))
			}
			id := opts.ID
			if id == "" {
				id = uuid.Must(uuid.NewV7()).String()
			}
			if err := lookup.ValidateID(id); err != nil {
				return f.Fail("invalid flags", err)
			}

			o, err := connectApp(rootOpts, cmd)
			if err != nil {
				return f.Fail("connect to search engine", err)
			}
			attrs := lookup.Attrs{Transient: opts.Transient, Repo: opts.Repo}
			if err := o.lookups.Create(commandContext(cmd), opts.Type, id, args, attrs); err != nil {
				return f.Fail("create failed", err)
			}
			return f.Result(map[string]any{
				"id":      id,
				"type":    opts.Type,
				"members": len(args),
			}, func(w io.Writer) {
				fmt.Fprintf(w, "✓ Created %s lookup %s with %d member(s)\n", opts.Type, id, len(args))
			})
		},
	}

	cmd.Flags().StringVar(&opts.Type, "type", lookup.DonorIDs, "lookup document type")
	cmd.Flags().StringVar(&opts.ID, "id", "", "document id (UUID, generated when empty)")
	cmd.Flags().BoolVar(&opts.Transient, "transient", false, "mark the document transient")
	cmd.Flags().StringVar(&opts.Repo, "repo", "", "owning repository of a file set")

	return cmd
}

func newLookupShowCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Print a lookup document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f := formatter(rootOpts, cmd)
			if err := lookup.ValidateID(args[0]); err != nil {
				return f.Fail("invalid id", err)
			}
			o, err := connectApp(rootOpts, cmd)
			if err != nil {
				return f.Fail("connect to search engine", err)
			}
			doc, err := o.lookups.Get(commandContext(cmd), args[0])
			if err != nil {
				return f.Fail("lookup failed", err)
			}
			view := map[string]any{
				"id":        doc.ID,
				"type":      doc.Type,
				"values":    doc.Values,
				"transient": doc.Transient,
			}
			if doc.Repo != "" {
				view["repo"] = doc.Repo
			}
			return f.Result(view, func(w io.Writer) {
				fmt.Fprintf(w, "%s (%s, %d member(s))\n", doc.ID, doc.Type, len(doc.Values))
				if doc.Transient {
					fmt.Fprintln(w, "  transient")
				}
				if doc.Repo != "" {
					fmt.Fprintf(w, "  repo: %s\n", doc.Repo)
				}
				for _, v := range doc.Values {
					fmt.Fprintf(w, "  %s\n", v)
				}
			})
		},
	}
}

// connectApp loads the config and connects to the search engine.
func connectApp(opts *RootOptions, cmd *cobra.Command) (*online, error) {
	a, err := loadApp(opts, cmd.ErrOrStderr())
	if err != nil {
		return nil, err
	}
	return a.connect()
}

// commandContext returns the command's context, or Background when the
// command was executed without one.
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
