package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/portalql/internal/engine"
	"github.com/roach88/portalql/internal/esquery"
	"github.com/roach88/portalql/internal/meta"
)

// CompileOptions holds flags for the compile command.
type CompileOptions struct {
	*RootOptions
	Output     string // output file path
	PostFilter bool
	MaxTerms   int
}

// NewCompileCommand creates the compile command.
func NewCompileCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CompileOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "compile <entity> <pql>",
		Short: "Compile a PQL statement to a search request",
		Long: `Compile a PQL statement for an entity type and print the search request
body as canonical JSON. Nothing is sent to the search engine.

Entity types accept short names (donor, gene, mutation, file, ...).

Examples:
  portalql compile donor "eq(gender,'male'),facets(gender)"
  portalql compile file "facets(*),eq(fileFormat,'BAM')" --post-filter
  portalql compile gene "eq(id,'ES:0b1d4a62-6c77-4d33-9a5b-1f0b2b6f1a10')" -o body.json`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompile(opts, args[0], args[1], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "write the request body to a file")
	cmd.Flags().BoolVar(&opts.PostFilter, "post-filter", false, "move filters to post_filter for faceted search")
	cmd.Flags().IntVar(&opts.MaxTerms, "max-terms", 0, "bucket cap per facet (0 uses the configured value)")

	return cmd
}

func runCompile(opts *CompileOptions, entity, text string, cmd *cobra.Command) error {
	f := formatter(opts.RootOptions, cmd)
	if opts.MaxTerms < 0 {
		return f.Fail("invalid flags", fmt.Errorf("--max-terms must not be negative"))
	}

	a, err := loadApp(opts.RootOptions, cmd.ErrOrStderr())
	if err != nil {
		return f.Fail("load configuration", err)
	}
	typ, err := meta.ParseEntityType(entity)
	if err != nil {
		return f.Fail("compile failed", err)
	}

	e := a.withOptions(engine.Options{PostFilter: opts.PostFilter, MaxTermCount: opts.MaxTerms})
	req, err := e.CompileText(typ, text)
	if err != nil {
		return f.Fail("compile failed", err)
	}
	body, err := esquery.MarshalIndent(req)
	if err != nil {
		return f.Fail("encode request", err)
	}
	f.VerboseLog("Compiled %s statement for index %s", typ, a.cfg.IndexFor(typ))

	if opts.Output != "" {
		if err := os.WriteFile(opts.Output, append(body, '\n'), 0o644); err != nil {
			return f.Fail("write output file", err)
		}
	}

	return f.Result(map[string]any{
		"entity": typ,
		"index":  a.cfg.IndexFor(typ),
		"body":   json.RawMessage(body),
	}, func(w io.Writer) {
		if opts.Output != "" {
			fmt.Fprintf(w, "✓ Request written to %s\n", opts.Output)
			return
		}
		fmt.Fprintln(w, string(body))
	})
}
