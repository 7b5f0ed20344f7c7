package cli

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/portalql/internal/engine"
	"github.com/roach88/portalql/internal/esquery"
	"github.com/roach88/portalql/internal/facet"
	"github.com/roach88/portalql/internal/meta"
	"github.com/roach88/portalql/internal/pql"
	"github.com/roach88/portalql/internal/search"
)

// SearchOptions holds flags for the search command.
type SearchOptions struct {
	*RootOptions
	PostFilter bool
	Count      bool
}

// SearchResult is the outcome of one statement.
type SearchResult struct {
	PQL    string                     `json:"pql"`
	Total  int64                      `json:"total"`
	Hits   []HitView                  `json:"hits,omitempty"`
	Facets map[string]facet.TermFacet `json:"facets,omitempty"`
}

// HitView is one hit as printed.
type HitView struct {
	ID     string           `json:"id"`
	Fields map[string][]any `json:"fields,omitempty"`
}

// NewSearchCommand creates the search command.
func NewSearchCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SearchOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "search <entity> <pql>...",
		Short: "Run PQL statements against the search engine",
		Long: `Compile PQL statements for an entity type and run them.

Several statements are sent in one multi-search round trip. Statements
starting with count() or run with --count only report totals. Facets are
normalized to term lists with phenotype facets filled to their full value
set.

Examples:
  portalql search donor "select(id,gender),eq(gender,'male'),limit(0,5)"
  portalql search donor "count(),eq(gender,'male')" "count(),eq(gender,'female')"
  portalql search file "facets(*),eq(fileFormat,'BAM')" --post-filter`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSearch(commandContext(cmd), opts, args[0], args[1:], cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.PostFilter, "post-filter", false, "move filters to post_filter for faceted search")
	cmd.Flags().BoolVar(&opts.Count, "count", false, "only report totals")

	return cmd
}

func runSearch(ctx context.Context, opts *SearchOptions, entity string, texts []string, cmd *cobra.Command) error {
	f := formatter(opts.RootOptions, cmd)

	a, err := loadApp(opts.RootOptions, cmd.ErrOrStderr())
	if err != nil {
		return f.Fail("load configuration", err)
	}
	typ, err := meta.ParseEntityType(entity)
	if err != nil {
		return f.Fail("search failed", err)
	}
	model := a.registry.MustModel(typ)
	e := a.withOptions(engine.Options{PostFilter: opts.PostFilter})

	stmts := make([]*pql.Statement, len(texts))
	reqs := make([]*esquery.Request, len(texts))
	for i, text := range texts {
		stmt, err := pql.Parse(text)
		if err != nil {
			return f.Fail(fmt.Sprintf("statement %d", i+1), err)
		}
		req, err := e.Compile(typ, stmt)
		if err != nil {
			return f.Fail(fmt.Sprintf("statement %d", i+1), err)
		}
		stmts[i], reqs[i] = stmt, req
	}

	o, err := a.connect()
	if err != nil {
		return f.Fail("connect to search engine", err)
	}
	index := a.cfg.IndexFor(typ)
	f.VerboseLog("Running %d statement(s) on %s", len(reqs), index)

	results := make([]SearchResult, len(reqs))
	counting := opts.Count
	if !counting {
		counting = true
		for _, stmt := range stmts {
			counting = counting && stmt.Count
		}
	}

	switch {
	case counting && len(reqs) == 1:
		total, err := o.search.Count(ctx, index, reqs[0])
		if err != nil {
			return f.Fail("search failed", err)
		}
		results[0] = SearchResult{PQL: pql.Render(stmts[0]), Total: total}
	default:
		var responses []*search.Response
		if len(reqs) == 1 {
			res, err := o.search.Search(ctx, index, reqs[0])
			if err != nil {
				return f.Fail("search failed", err)
			}
			responses = []*search.Response{res}
		} else {
			responses, err = o.search.MultiSearch(ctx, index, reqs)
			if err != nil {
				return f.Fail("search failed", err)
			}
		}
		norm := o.normalizer()
		for i, res := range responses {
			r := SearchResult{PQL: pql.Render(stmts[i]), Total: res.Total}
			if !counting {
				for _, h := range res.Hits {
					r.Hits = append(r.Hits, HitView{ID: h.ID, Fields: h.Fields})
				}
				aliases := facet.Aliases(stmts[i].Facets, model)
				if len(aliases) > 0 {
					r.Facets, err = norm.Normalize(ctx, res.Aggregations, model, aliases)
					if err != nil {
						return f.Fail("normalize facets", err)
					}
				}
			}
			results[i] = r
		}
	}

	return f.Result(results, func(w io.Writer) {
		for i, r := range results {
			if i > 0 {
				fmt.Fprintln(w)
			}
			writeSearchResult(w, r)
		}
	})
}

func writeSearchResult(w io.Writer, r SearchResult) {
	fmt.Fprintf(w, "%s\n  total: %d\n", r.PQL, r.Total)
	for _, h := range r.Hits {
		fmt.Fprintf(w, "  %s", h.ID)
		keys := make([]string, 0, len(h.Fields))
		for k := range h.Fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(w, " %s=%v", k, h.Fields[k])
		}
		fmt.Fprintln(w)
	}
	names := make([]string, 0, len(r.Facets))
	for name := range r.Facets {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		tf := r.Facets[name]
		terms := make([]string, len(tf.Terms))
		for i, t := range tf.Terms {
			terms[i] = fmt.Sprintf("%s=%d", t.Term, t.Count)
		}
		fmt.Fprintf(w, "  facet %s (missing %d): %s\n", name, tf.Missing, strings.Join(terms, " "))
	}
}
