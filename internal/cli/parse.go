package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/portalql/internal/pql"
)

// ParsedStatement is the JSON view of a parsed statement.
type ParsedStatement struct {
	PQL    string          `json:"pql"`
	Count  bool            `json:"count,omitempty"`
	Select *pql.Projection `json:"select,omitempty"`
	Facets *pql.Projection `json:"facets,omitempty"`
	Filter string          `json:"filter,omitempty"`
	Sort   []pql.SortField `json:"sort,omitempty"`
	Limit  *pql.Limit      `json:"limit,omitempty"`
}

// NewParseCommand creates the parse command.
func NewParseCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "parse <pql>",
		Short: "Parse a PQL statement and print it in canonical form",
		Long: `Parse a PQL statement without compiling it.

The statement is printed back in canonical form: clauses in a fixed order,
no whitespace, single-quoted strings. No type model is consulted, so
unknown fields are not reported here.

Examples:
  portalql parse "eq(gender,'male'),facets(*)"
  portalql parse --format json "select(id),sort(-ageAtDiagnosis),limit(0,5)"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f := formatter(rootOpts, cmd)
			stmt, err := pql.Parse(args[0])
			if err != nil {
				return f.Fail("parse failed", err)
			}
			parsed := describeStatement(stmt)
			return f.Result(parsed, func(w io.Writer) {
				fmt.Fprintln(w, parsed.PQL)
				if rootOpts.Verbose {
					writeClauses(w, parsed)
				}
			})
		},
	}
}

func describeStatement(stmt *pql.Statement) ParsedStatement {
	p := ParsedStatement{
		PQL:   pql.Render(stmt),
		Count: stmt.Count,
		Sort:  stmt.Sort,
		Limit: stmt.Limit,
	}
	if !stmt.Select.IsEmpty() {
		p.Select = &stmt.Select
	}
	if !stmt.Facets.IsEmpty() {
		p.Facets = &stmt.Facets
	}
	if stmt.Filter != nil {
		p.Filter = pql.RenderFilter(stmt.Filter)
	}
	return p
}

func writeClauses(w io.Writer, p ParsedStatement) {
	projection := func(pr *pql.Projection) string {
		if pr.All {
			return "*"
		}
		return strings.Join(pr.Fields, ", ")
	}
	if p.Count {
		fmt.Fprintln(w, "  count:  yes")
	}
	if p.Select != nil {
		fmt.Fprintf(w, "  select: %s\n", projection(p.Select))
	}
	if p.Facets != nil {
		fmt.Fprintf(w, "  facets: %s\n", projection(p.Facets))
	}
	if p.Filter != "" {
		fmt.Fprintf(w, "  filter: %s\n", p.Filter)
	}
	for _, s := range p.Sort {
		fmt.Fprintf(w, "  sort:   %s %s\n", s.Field, s.Order)
	}
	if p.Limit != nil {
		fmt.Fprintf(w, "  limit:  from %d size %d\n", p.Limit.From, p.Limit.Size)
	}
}
