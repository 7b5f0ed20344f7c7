package engine

import (
	"strings"

	"github.com/roach88/portalql/internal/esquery"
	"github.com/roach88/portalql/internal/meta"
	"github.com/roach88/portalql/internal/pql"
	"github.com/roach88/portalql/internal/qerr"
)

// MissingSuffix names the missing aggregation paired with a facet's terms
// aggregation: facet gender has siblings gender and gender_missing.
const MissingSuffix = "_missing"

// Names of the repository file aggregations compiled outside the facet loop.
const (
	RepoNamesAgg   = "repositoryNamesFiltered"
	RepoSizesAgg   = "repositorySizes"
	RepoFileSize   = "fileSize"
	DonorCountAgg  = "donorCount"
	DonorCountSize = 100000
)

// MissingAggName returns the name of alias's missing aggregation.
func MissingAggName(alias string) string {
	return alias + MissingSuffix
}

// FacetAliases returns the aliases a facets clause asks for.
func FacetAliases(p pql.Projection, model *meta.TypeModel) []string {
	if p.All {
		return model.Facets()
	}
	return append([]string(nil), p.Fields...)
}

func (c *compiler) facets(p pql.Projection, filter pql.Filter) (esquery.Aggs, error) {
	if p.IsEmpty() {
		return nil, nil
	}

	aggs := esquery.Aggs{}
	for _, alias := range FacetAliases(p, c.model) {
		pair, err := c.facetPair(alias, filter)
		if err != nil {
			return nil, err
		}
		if !c.opts.PostFilter {
			for name, agg := range pair.Aggs {
				aggs[name] = agg
			}
			continue
		}

		selfRemoving, err := c.filterAggQuery(c.without(filter, pair.path))
		if err != nil {
			return nil, err
		}
		aggs[alias] = &esquery.FilterAgg{Filter: selfRemoving, Aggs: pair.Aggs}
	}

	if c.model.Type() == meta.RepositoryFile {
		if err := c.repositoryAggs(aggs, filter); err != nil {
			return nil, err
		}
	}
	return aggs, nil
}

// facetAggs is one facet's aggregations before filter wrapping.
type facetAggs struct {
	esquery.Aggs
	path string
}

// facetPair builds the terms and missing pair for alias, inside nested
// aggregations when the field is nested.
func (c *compiler) facetPair(alias string, filter pql.Filter) (facetAggs, error) {
	if s := meta.SyntheticOf(alias); s.IsExpansion() || s == meta.SyntheticScore {
		return facetAggs{}, qerr.Invalid(alias, "%s cannot be used as a facet", alias)
	}
	f, err := c.model.FieldByAlias(alias)
	if err != nil {
		return facetAggs{}, err
	}
	if f.IsComposite() {
		return facetAggs{}, qerr.Invalid(alias, "%s is not a leaf field and cannot be used as a facet", alias)
	}

	terms := &esquery.TermsAgg{Field: f.Path, Size: c.opts.maxTermCount()}
	pair := esquery.Aggs{
		alias:                 terms,
		MissingAggName(alias): &esquery.MissingAgg{Field: f.Path},
	}
	if !c.model.IsNested(f.Path) {
		return facetAggs{Aggs: pair, path: f.Path}, nil
	}

	if c.model.CountsParents(alias) {
		terms.Aggs = esquery.Aggs{alias: &esquery.ReverseNestedAgg{}}
	}
	nested, err := c.nestedFacet(alias, f.Path, pair, c.without(filter, f.Path))
	if err != nil {
		return facetAggs{}, err
	}
	return facetAggs{Aggs: esquery.Aggs{alias: nested}, path: f.Path}, nil
}

// nestedFacet encloses pair in one nested aggregation per nested level of
// path, outermost first. A root document passes the filter when any of its
// nested documents matches, so the clauses living at a level are applied
// again inside that level. Levels without clauses of their own are
// skipped, except the innermost which holds the pair.
func (c *compiler) nestedFacet(alias, path string, pair esquery.Aggs, filter pql.Filter) (esquery.Aggregation, error) {
	levels := c.model.NestedPaths(path)
	if len(levels) == 0 {
		return nil, qerr.Invalid(path, "%s is not a nested field of the %s model", path, c.model.Type())
	}

	var agg esquery.Aggregation
	inner := pair
	for i := len(levels) - 1; i >= 0; i-- {
		q, err := c.levelFilter(filter, levels[i])
		if err != nil {
			return nil, err
		}
		if q == nil && i < len(levels)-1 {
			continue
		}
		if q != nil {
			inner = esquery.Aggs{alias: &esquery.FilterAgg{Filter: q, Aggs: inner}}
		}
		agg = &esquery.NestedAgg{Path: levels[i], Aggs: inner}
		inner = esquery.Aggs{alias: agg}
	}
	return agg, nil
}

// levelFilter compiles the clauses of f that apply inside the nested
// documents at level. Nil means no clause is nested exactly at level.
func (c *compiler) levelFilter(f pql.Filter, level string) (esquery.Query, error) {
	kept, own, _ := c.atLevel(f, level)
	if kept == nil || !own {
		return nil, nil
	}
	var clauses []esquery.Query
	for _, child := range conjuncts(kept) {
		q, err := c.filter(child, level)
		if err != nil {
			return nil, err
		}
		clauses = append(clauses, q)
	}
	return &esquery.BoolQuery{Filter: clauses}, nil
}

// atLevel trims f to the clauses nested at or below level, unwrapping
// nested(level) scopes. Conjunctions may lose children; a disjunction or
// negation survives only whole. own reports a clause nested exactly at
// level and whole that nothing was trimmed.
func (c *compiler) atLevel(f pql.Filter, level string) (kept pql.Filter, own, whole bool) {
	switch n := f.(type) {
	case nil:
		return nil, false, false
	case *pql.And:
		kids, own, whole := c.atLevelAll(n.Filters, level)
		if len(kids) == 0 {
			return nil, false, false
		}
		return &pql.And{Filters: kids}, own, whole
	case *pql.Or:
		kids, own, whole := c.atLevelAll(n.Filters, level)
		if !whole {
			return nil, false, false
		}
		return &pql.Or{Filters: kids}, own, true
	case *pql.Not:
		kid, own, whole := c.atLevel(n.Filter, level)
		if kid == nil || !whole {
			return nil, false, false
		}
		return &pql.Not{Filter: kid}, own, true
	case *pql.Nested:
		path, err := c.nestedScope(n.Path)
		switch {
		case err != nil || !within(path, level):
			return nil, false, false
		case path == level:
			return &pql.And{Filters: n.Filters}, true, true
		default:
			return n, false, true
		}
	default:
		alias := pql.FieldOf(f)
		if s := meta.SyntheticOf(alias); s == meta.SyntheticGeneLocation || s == meta.SyntheticMutationLocation {
			return nil, false, false
		}
		t, err := c.resolveTarget(alias)
		if err != nil || len(t.paths) == 0 {
			return nil, false, false
		}
		for _, p := range t.paths {
			if !within(p, level) {
				return nil, false, false
			}
		}
		innermost, _ := c.model.NestedPath(t.paths[0])
		return f, innermost == level, true
	}
}

func (c *compiler) atLevelAll(fs []pql.Filter, level string) (kids []pql.Filter, own, whole bool) {
	whole = true
	for _, f := range fs {
		kid, kidOwn, kidWhole := c.atLevel(f, level)
		if kid != nil {
			kids = append(kids, kid)
		}
		own = own || kidOwn
		whole = whole && kid != nil && kidWhole
	}
	return kids, own, whole
}

// within reports whether path is level or lies below it.
func within(path, level string) bool {
	return path == level || strings.HasPrefix(path, level+".")
}

// conjuncts flattens nested conjunctions into their children.
func conjuncts(f pql.Filter) []pql.Filter {
	and, ok := f.(*pql.And)
	if !ok {
		return []pql.Filter{f}
	}
	var out []pql.Filter
	for _, kid := range and.Filters {
		out = append(out, conjuncts(kid)...)
	}
	return out
}

// filterAggQuery compiles f for use inside a filter aggregation. A nil
// filter yields nil, which renders as match_all.
func (c *compiler) filterAggQuery(f pql.Filter) (esquery.Query, error) {
	clauses, err := c.topLevel(f)
	if err != nil || len(clauses) == 0 {
		return nil, err
	}
	return &esquery.BoolQuery{Filter: clauses}, nil
}

// without returns f minus every leaf testing path. Combinators left with
// no children disappear, and nil means nothing remains.
func (c *compiler) without(f pql.Filter, path string) pql.Filter {
	switch n := f.(type) {
	case nil:
		return nil
	case *pql.And:
		if kids := c.withoutAll(n.Filters, path); len(kids) > 0 {
			return &pql.And{Filters: kids}
		}
		return nil
	case *pql.Or:
		if kids := c.withoutAll(n.Filters, path); len(kids) > 0 {
			return &pql.Or{Filters: kids}
		}
		return nil
	case *pql.Nested:
		if kids := c.withoutAll(n.Filters, path); len(kids) > 0 {
			return &pql.Nested{Path: n.Path, Filters: kids}
		}
		return nil
	case *pql.Not:
		if kid := c.without(n.Filter, path); kid != nil {
			return &pql.Not{Filter: kid}
		}
		return nil
	default:
		if c.tests(f, path) {
			return nil
		}
		return f
	}
}

func (c *compiler) withoutAll(fs []pql.Filter, path string) []pql.Filter {
	var kids []pql.Filter
	for _, f := range fs {
		if kid := c.without(f, path); kid != nil {
			kids = append(kids, kid)
		}
	}
	return kids
}

// tests reports whether the leaf f tests the field at path.
func (c *compiler) tests(f pql.Filter, path string) bool {
	alias := pql.FieldOf(f)
	if s := meta.SyntheticOf(alias); s == meta.SyntheticGeneLocation || s == meta.SyntheticMutationLocation {
		return false
	}
	t, err := c.resolveTarget(alias)
	if err != nil {
		return false
	}
	for _, p := range t.paths {
		if p == path {
			return true
		}
	}
	return false
}

// repositoryAggs adds the repository file aggregations used for download
// manifests. They see the whole filter, including clauses on their own
// fields.
func (c *compiler) repositoryAggs(aggs esquery.Aggs, filter pql.Filter) error {
	var full esquery.Query
	if c.opts.PostFilter {
		var err error
		if full, err = c.filterAggQuery(filter); err != nil {
			return err
		}
	}

	repoName, err := c.model.Resolve("repoName")
	if err != nil {
		return err
	}
	fileSize, err := c.model.Resolve("fileSize")
	if err != nil {
		return err
	}
	donorID, err := c.model.Resolve("donorId")
	if err != nil {
		return err
	}
	copies, err := c.model.NestedPath(repoName)
	if err != nil {
		return err
	}
	donors, err := c.model.NestedPath(donorID)
	if err != nil {
		return err
	}

	size := c.opts.maxTermCount()
	aggs[RepoNamesAgg] = &esquery.FilterAgg{Filter: full, Aggs: esquery.Aggs{
		RepoNamesAgg: &esquery.NestedAgg{Path: copies, Aggs: esquery.Aggs{
			RepoNamesAgg:                 &esquery.TermsAgg{Field: repoName, Size: size},
			MissingAggName(RepoNamesAgg): &esquery.MissingAgg{Field: repoName},
		}},
	}}
	aggs[RepoSizesAgg] = &esquery.FilterAgg{Filter: full, Aggs: esquery.Aggs{
		RepoSizesAgg: &esquery.NestedAgg{Path: copies, Aggs: esquery.Aggs{
			RepoSizesAgg: &esquery.TermsAgg{Field: repoName, Size: size, Aggs: esquery.Aggs{
				RepoFileSize: &esquery.SumAgg{Field: fileSize},
			}},
		}},
	}}
	aggs[DonorCountAgg] = &esquery.FilterAgg{Filter: full, Aggs: esquery.Aggs{
		DonorCountAgg: &esquery.NestedAgg{Path: donors, Aggs: esquery.Aggs{
			DonorCountAgg: &esquery.TermsAgg{Field: donorID, Size: DonorCountSize},
		}},
	}}
	return nil
}
