package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/portalql/internal/meta"
)

// ModelSummary describes one entity type.
type ModelSummary struct {
	Type       meta.EntityType `json:"type"`
	Prefix     string          `json:"prefix"`
	LookupType string          `json:"lookup_type,omitempty"`
	Facets     []string        `json:"facets"`
	Projection []string        `json:"projection"`
	Nested     []string        `json:"nested,omitempty"`
	Fields     []FieldSummary  `json:"fields,omitempty"`
}

// FieldSummary describes one aliased field.
type FieldSummary struct {
	Path         string   `json:"path"`
	Kind         string   `json:"kind"`
	Aliases      []string `json:"aliases"`
	Identifiable bool     `json:"identifiable,omitempty"`
}

// NewModelsCommand creates the models command.
func NewModelsCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "models [entity]",
		Short: "List entity types and their fields",
		Long: `List the entity types known to the type model registry.

With an entity type, also list its aliased fields, nested paths and the
facets it enables.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f := formatter(rootOpts, cmd)
			reg, err := meta.Default()
			if err != nil {
				return f.Fail("load type models", err)
			}

			if len(args) == 0 {
				var out []ModelSummary
				for _, t := range reg.Types() {
					out = append(out, summarize(reg.MustModel(t), false))
				}
				return f.Result(out, func(w io.Writer) {
					for _, m := range out {
						fmt.Fprintf(w, "%-20s facets: %s\n", m.Type, strings.Join(m.Facets, ", "))
					}
				})
			}

			typ, err := meta.ParseEntityType(args[0])
			if err != nil {
				return f.Fail("unknown entity", err)
			}
			model, err := reg.Model(typ)
			if err != nil {
				return f.Fail("unknown entity", err)
			}
			summary := summarize(model, true)
			return f.Result(summary, func(w io.Writer) { writeModel(w, summary) })
		},
	}
}

func summarize(m *meta.TypeModel, detailed bool) ModelSummary {
	s := ModelSummary{
		Type:       m.Type(),
		Prefix:     m.Prefix(),
		LookupType: m.LookupType(),
		Facets:     m.Facets(),
		Projection: m.DefaultProjection(),
	}
	if !detailed {
		return s
	}
	nested := map[string]bool{}
	var walk func(fields []*meta.Field)
	walk = func(fields []*meta.Field) {
		for _, fd := range fields {
			if fd.Nested && !nested[fd.Path] {
				nested[fd.Path] = true
				s.Nested = append(s.Nested, fd.Path)
			}
			if len(fd.Aliases) > 0 {
				kind := string(fd.Kind)
				if fd.Kind == meta.KindArray {
					kind = "array<" + string(fd.Elem) + ">"
				}
				s.Fields = append(s.Fields, FieldSummary{
					Path:         fd.Path,
					Kind:         kind,
					Aliases:      fd.Aliases,
					Identifiable: fd.Identifiable,
				})
			}
			walk(fd.Children)
		}
	}
	walk(m.Fields())
	return s
}

func writeModel(w io.Writer, s ModelSummary) {
	fmt.Fprintf(w, "%s (prefix %s)\n", s.Type, s.Prefix)
	if s.LookupType != "" {
		fmt.Fprintf(w, "  entity sets: %s\n", s.LookupType)
	}
	fmt.Fprintf(w, "  facets:     %s\n", strings.Join(s.Facets, ", "))
	fmt.Fprintf(w, "  projection: %s\n", strings.Join(s.Projection, ", "))
	if len(s.Nested) > 0 {
		fmt.Fprintf(w, "  nested:     %s\n", strings.Join(s.Nested, ", "))
	}
	fmt.Fprintln(w, "  fields:")
	for _, fd := range s.Fields {
		marker := ""
		if fd.Identifiable {
			marker = " (id)"
		}
		fmt.Fprintf(w, "    %-40s %-16s %s%s\n", strings.Join(fd.Aliases, ", "), fd.Kind, fd.Path, marker)
	}
}
