package engine

import (
	"github.com/roach88/portalql/internal/esquery"
	"github.com/roach88/portalql/internal/lookup"
	"github.com/roach88/portalql/internal/meta"
	"github.com/roach88/portalql/internal/pql"
	"github.com/roach88/portalql/internal/qerr"
)

const (
	// DefaultMaxTermCount caps the buckets returned per facet.
	DefaultMaxTermCount = 1024

	// DefaultSize is the page size when the statement has no limit.
	DefaultSize = 10
)

// Options tune compilation. The zero value is usable.
type Options struct {
	// PostFilter moves the filter to post_filter and wraps each facet in a
	// filter aggregation that excludes the facet's own field.
	PostFilter bool

	// MaxTermCount caps the buckets of every terms aggregation.
	// Zero means DefaultMaxTermCount.
	MaxTermCount int
}

func (o Options) maxTermCount() int {
	if o.MaxTermCount > 0 {
		return o.MaxTermCount
	}
	return DefaultMaxTermCount
}

// compiler carries the per-call inputs. It is discarded after one Compile.
type compiler struct {
	model  *meta.TypeModel
	opts   Options
	coords lookup.Coordinates
}

// Compile translates stmt into a search request for documents of model.
//
// Compile is pure: the same inputs always yield a structurally identical
// request. Errors are UNKNOWN_FIELD or INVALID_QUERY from the qerr package.
func Compile(stmt *pql.Statement, model *meta.TypeModel, opts Options) (*esquery.Request, error) {
	if stmt == nil {
		return nil, qerr.Invalid("", "nil statement")
	}
	if model == nil {
		return nil, qerr.Internal("compile without a type model")
	}

	c, err := newCompiler(model, opts)
	if err != nil {
		return nil, err
	}
	return c.request(stmt)
}

func newCompiler(model *meta.TypeModel, opts Options) (*compiler, error) {
	index, err := model.InternalField(meta.InternalLookupIndex)
	if err != nil {
		return nil, err
	}
	path, err := model.InternalField(meta.InternalLookupPath)
	if err != nil {
		return nil, err
	}
	return &compiler{
		model:  model,
		opts:   opts,
		coords: lookup.Coordinates{Index: index, Path: path},
	}, nil
}

func (c *compiler) request(stmt *pql.Statement) (*esquery.Request, error) {
	req := &esquery.Request{Size: DefaultSize}

	filters, err := c.topLevel(stmt.Filter)
	if err != nil {
		return nil, err
	}
	var filter esquery.Query
	if len(filters) > 0 {
		filter = &esquery.BoolQuery{Filter: filters}
	}

	if stmt.Count {
		req.Query = filter
		req.Size = 0
		req.TrackTotalHits = true
		return req, nil
	}

	if c.opts.PostFilter {
		req.PostFilter = filter
	} else {
		req.Query = filter
	}

	if req.Fields, req.SourceIncludes, err = c.projection(stmt.Select); err != nil {
		return nil, err
	}
	if req.Aggs, err = c.facets(stmt.Facets, stmt.Filter); err != nil {
		return nil, err
	}
	if req.Sort, err = c.sort(stmt.Sort); err != nil {
		return nil, err
	}
	if stmt.Limit != nil {
		req.From = stmt.Limit.From
		req.Size = stmt.Limit.Size
	}
	return req, nil
}

// topLevel compiles the statement filter. A top-level conjunction yields
// one filter clause per child so the request stays flat.
func (c *compiler) topLevel(f pql.Filter) ([]esquery.Query, error) {
	if f == nil {
		return nil, nil
	}
	children := []pql.Filter{f}
	if and, ok := f.(*pql.And); ok {
		children = and.Filters
	}

	clauses := make([]esquery.Query, 0, len(children))
	for _, child := range children {
		q, err := c.filter(child, "")
		if err != nil {
			return nil, err
		}
		clauses = append(clauses, q)
	}
	return clauses, nil
}

func (c *compiler) sort(fields []pql.SortField) ([]esquery.Sort, error) {
	if len(fields) == 0 {
		return nil, nil
	}
	sorts := make([]esquery.Sort, 0, len(fields))
	for _, sf := range fields {
		path, err := c.model.Resolve(sf.Field)
		if err != nil {
			return nil, err
		}
		if meta.SyntheticOf(sf.Field).IsExpansion() {
			return nil, qerr.Invalid(sf.Field, "cannot sort on %s", sf.Field)
		}

		order := esquery.Asc
		if sf.Order == pql.Desc {
			order = esquery.Desc
		}
		s := esquery.Sort{Field: path, Order: order}
		if path != meta.ScoreAlias {
			s.Nested = c.model.NestedPaths(path)
		}
		sorts = append(sorts, s)
	}
	return sorts, nil
}
