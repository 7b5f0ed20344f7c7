package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/portalql/internal/meta"
	"github.com/roach88/portalql/internal/sets"
)

// SetView is an entity set as printed.
type SetView struct {
	ID          string          `json:"id"`
	EntityType  meta.EntityType `json:"entity_type"`
	LookupType  string          `json:"lookup_type"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Filter      string          `json:"filter"`
	Limit       int             `json:"limit"`
	State       string          `json:"state"`
	Count       int64           `json:"count"`
	Transient   bool            `json:"transient,omitempty"`
}

func viewSet(s *sets.Set) SetView {
	return SetView{
		ID:          s.ID,
		EntityType:  s.EntityType,
		LookupType:  s.LookupType,
		Name:        s.Name,
		Description: s.Description,
		Filter:      s.Definition.Filter,
		Limit:       s.Definition.Limit,
		State:       string(s.State),
		Count:       s.Count,
		Transient:   s.Transient,
	}
}

// SetsMaterializeOptions holds flags for sets materialize.
type SetsMaterializeOptions struct {
	*RootOptions
	Name        string
	Description string
	Limit       int
	Transient   bool
}

// NewSetsCommand creates the sets command group.
func NewSetsCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sets",
		Short: "Materialize and manage entity sets",
		Long: `Materialize the ids matching a PQL filter into a lookup document and keep
a local registry of the sets created.

A materialized set is referenced from filters as 'ES:<id>'.`,
	}
	cmd.AddCommand(newSetsMaterializeCommand(rootOpts))
	cmd.AddCommand(newSetsListCommand(rootOpts))
	cmd.AddCommand(newSetsShowCommand(rootOpts))
	cmd.AddCommand(newSetsDeleteCommand(rootOpts))
	return cmd
}

// withSets runs fn with an entity set manager and closes its store.
func withSets(rootOpts *RootOptions, cmd *cobra.Command, fn func(m *sets.Manager) error) error {
	f := formatter(rootOpts, cmd)
	o, err := connectApp(rootOpts, cmd)
	if err != nil {
		return f.Fail("connect to search engine", err)
	}
	mgr, st, err := o.sets(commandContext(cmd))
	if err != nil {
		return f.Fail("open entity sets", err)
	}
	defer st.Close()
	return fn(mgr)
}

func newSetsMaterializeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SetsMaterializeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "materialize <entity> <pql>",
		Short: "Materialize the ids matching a filter",
		Long: `Run the filter of a PQL statement, collect the matching ids up to the
limit and store them as a lookup document.

Examples:
  portalql sets materialize donor "eq(gender,'male')" --name "Male donors"
  portalql sets materialize gene "in(type,'protein_coding')" --name coding --limit 500`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			f := formatter(rootOpts, cmd)
			typ, err := meta.ParseEntityType(args[0])
			if err != nil {
				return f.Fail("materialize failed", err)
			}
			return withSets(rootOpts, cmd, func(m *sets.Manager) error {
				set, err := m.Materialize(commandContext(cmd), sets.Request{
					EntityType:  typ,
					Name:        opts.Name,
					Description: opts.Description,
					Filter:      args[1],
					Limit:       opts.Limit,
					Transient:   opts.Transient,
				})
				if err != nil {
					return f.Fail("materialize failed", err)
				}
				view := viewSet(set)
				return f.Result(view, func(w io.Writer) {
					fmt.Fprintf(w, "✓ Materialized %d %s id(s) as ES:%s\n", view.Count, view.EntityType, view.ID)
				})
			})
		},
	}

	cmd.Flags().StringVar(&opts.Name, "name", "", "set name (required)")
	cmd.Flags().StringVar(&opts.Description, "description", "", "set description")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, fmt.Sprintf("member cap (0 uses %d)", sets.DefaultLimit))
	cmd.Flags().BoolVar(&opts.Transient, "transient", false, "mark the set transient")

	return cmd
}

func newSetsListCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list [entity]",
		Short: "List materialized entity sets",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f := formatter(rootOpts, cmd)
			var typ meta.EntityType
			if len(args) == 1 {
				var err error
				if typ, err = meta.ParseEntityType(args[0]); err != nil {
					return f.Fail("list failed", err)
				}
			}
			return withSets(rootOpts, cmd, func(m *sets.Manager) error {
				list, err := m.List(commandContext(cmd), typ)
				if err != nil {
					return f.Fail("list failed", err)
				}
				views := make([]SetView, len(list))
				for i, s := range list {
					views[i] = viewSet(s)
				}
				return f.Result(views, func(w io.Writer) {
					if len(views) == 0 {
						fmt.Fprintln(w, "No entity sets")
						return
					}
					for _, v := range views {
						fmt.Fprintf(w, "%s  %-20s %-9s %8d  %s\n", v.ID, v.EntityType, v.State, v.Count, v.Name)
					}
				})
			})
		},
	}
}

func newSetsShowCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Print one entity set",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f := formatter(rootOpts, cmd)
			return withSets(rootOpts, cmd, func(m *sets.Manager) error {
				set, err := m.Get(commandContext(cmd), args[0])
				if err != nil {
					return f.Fail("show failed", err)
				}
				v := viewSet(set)
				return f.Result(v, func(w io.Writer) {
					fmt.Fprintf(w, "%s %q\n", v.ID, v.Name)
					if v.Description != "" {
						fmt.Fprintf(w, "  %s\n", v.Description)
					}
					fmt.Fprintf(w, "  entity: %s (%s)\n", v.EntityType, v.LookupType)
					fmt.Fprintf(w, "  filter: %s\n", v.Filter)
					fmt.Fprintf(w, "  limit:  %d\n", v.Limit)
					fmt.Fprintf(w, "  state:  %s, %d member(s)\n", v.State, v.Count)
					if v.Transient {
						fmt.Fprintln(w, "  transient")
					}
				})
			})
		},
	}
}

func newSetsDeleteCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Remove an entity set from the registry",
		Long: `Remove an entity set from the registry and mark its lookup document
transient so it can be reclaimed.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f := formatter(rootOpts, cmd)
			return withSets(rootOpts, cmd, func(m *sets.Manager) error {
				if err := m.Delete(commandContext(cmd), args[0]); err != nil {
					return f.Fail("delete failed", err)
				}
				return f.Result(map[string]string{"id": args[0]}, func(w io.Writer) {
					fmt.Fprintf(w, "✓ Deleted entity set %s\n", args[0])
				})
			})
		},
	}
}
