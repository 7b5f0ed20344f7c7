package facet

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/rs/zerolog"

	"github.com/roach88/portalql/internal/engine"
	"github.com/roach88/portalql/internal/esquery"
	"github.com/roach88/portalql/internal/logger"
	"github.com/roach88/portalql/internal/meta"
	"github.com/roach88/portalql/internal/metrics"
	"github.com/roach88/portalql/internal/pql"
)

// Phenotype facets always report their full domain.
var Phenotypes = []string{"gender", "vitalStatus", "ageAtDiagnosisGroup"}

// IsPhenotype reports whether alias is a phenotype facet.
func IsPhenotype(alias string) bool {
	return slices.Contains(Phenotypes, alias)
}

// Baseline maps each phenotype alias to every term it takes over the whole
// index.
type Baseline map[string][]string

// BaselineSource computes the baseline for a model.
type BaselineSource interface {
	Baseline(ctx context.Context, model *meta.TypeModel) (Baseline, error)
}

// BaselineFunc adapts a function to BaselineSource.
type BaselineFunc func(ctx context.Context, model *meta.TypeModel) (Baseline, error)

// Baseline calls f.
func (f BaselineFunc) Baseline(ctx context.Context, model *meta.TypeModel) (Baseline, error) {
	return f(ctx, model)
}

// Aggregations is the raw aggregation part of a response.
type Aggregations = map[string]json.RawMessage

// SearchBaseline computes baselines with an unfiltered facet query.
type SearchBaseline struct {
	engine *engine.Engine
	search func(ctx context.Context, typ meta.EntityType, req *esquery.Request) (Aggregations, error)
}

// NewSearchBaseline creates a source that compiles baseline queries with e
// and runs them through search.
func NewSearchBaseline(e *engine.Engine, search func(ctx context.Context, typ meta.EntityType, req *esquery.Request) (Aggregations, error)) *SearchBaseline {
	return &SearchBaseline{engine: e, search: search}
}

// Baseline runs a match-all query faceting on the model's phenotypes.
func (s *SearchBaseline) Baseline(ctx context.Context, model *meta.TypeModel) (Baseline, error) {
	var aliases []string
	for _, alias := range Phenotypes {
		if model.IsFacet(alias) {
			aliases = append(aliases, alias)
		}
	}
	if len(aliases) == 0 {
		return Baseline{}, nil
	}

	stmt := &pql.Statement{}
	if err := stmt.SetFacets(pql.Projection{Fields: aliases}); err != nil {
		return nil, err
	}
	if err := stmt.SetLimit(0, 0); err != nil {
		return nil, err
	}
	req, err := s.engine.Compile(model.Type(), stmt)
	if err != nil {
		return nil, fmt.Errorf("compile baseline query: %w", err)
	}
	raw, err := s.search(ctx, model.Type(), req)
	if err != nil {
		return nil, fmt.Errorf("run baseline query for %s: %w", model.Type(), err)
	}
	facets, err := Normalize(raw, aliases)
	if err != nil {
		return nil, err
	}

	b := make(Baseline, len(facets))
	for alias, f := range facets {
		terms := make([]string, len(f.Terms))
		for i, t := range f.Terms {
			terms[i] = t.Term
		}
		b[alias] = terms
	}
	return b, nil
}

// BaselineCache memoizes baselines per entity type with a bounded size and
// lifetime.
//
// Thread-safety: BaselineCache is safe for concurrent use. Two callers
// missing at once may both compute the baseline; the last write wins.
type BaselineCache struct {
	lru     *expirable.LRU[meta.EntityType, Baseline]
	metrics *metrics.Metrics
}

// NewBaselineCache creates a cache holding at most size baselines for ttl
// each.
func NewBaselineCache(size int, ttl time.Duration, m *metrics.Metrics) *BaselineCache {
	return &BaselineCache{
		lru:     expirable.NewLRU[meta.EntityType, Baseline](size, nil, ttl),
		metrics: m,
	}
}

// Get returns the cached baseline for model, computing it with source on a
// miss. Failures are not cached.
func (c *BaselineCache) Get(ctx context.Context, model *meta.TypeModel, source BaselineSource) (Baseline, error) {
	if b, ok := c.lru.Get(model.Type()); ok {
		c.metrics.ObserveBaseline(true)
		return b, nil
	}
	c.metrics.ObserveBaseline(false)

	b, err := source.Baseline(ctx, model)
	if err != nil {
		return nil, err
	}
	c.lru.Add(model.Type(), b)
	return b, nil
}

// Purge drops every cached baseline.
func (c *BaselineCache) Purge() {
	c.lru.Purge()
}

// Normalizer normalizes facets and fills phenotype facets from baselines.
type Normalizer struct {
	source BaselineSource
	cache  *BaselineCache
	log    zerolog.Logger
}

// Option configures a Normalizer.
type Option func(*Normalizer)

// WithCache sets the baseline cache.
func WithCache(c *BaselineCache) Option {
	return func(n *Normalizer) { n.cache = c }
}

// WithLogger sets the logger.
func WithLogger(l *logger.Logger) Option {
	return func(n *Normalizer) { n.log = l.Component("facet") }
}

// Default cache bounds.
const (
	DefaultBaselineTTL  = 10 * time.Minute
	DefaultBaselineSize = 16
)

// NewNormalizer creates a Normalizer over source. A nil source disables
// baseline filling.
func NewNormalizer(source BaselineSource, opts ...Option) *Normalizer {
	n := &Normalizer{source: source, log: zerolog.Nop()}
	for _, opt := range opts {
		opt(n)
	}
	if n.cache == nil {
		n.cache = NewBaselineCache(DefaultBaselineSize, DefaultBaselineTTL, nil)
	}
	return n
}

// Normalize converts raw into facets for aliases and pads phenotype facets
// with zero-count entries for baseline terms the result lacks.
func (n *Normalizer) Normalize(ctx context.Context, raw Aggregations, model *meta.TypeModel, aliases []string) (map[string]TermFacet, error) {
	facets, err := Normalize(raw, aliases)
	if err != nil {
		return nil, err
	}
	if n.source == nil || !slices.ContainsFunc(aliases, IsPhenotype) {
		return facets, nil
	}

	base, err := n.cache.Get(ctx, model, n.source)
	if err != nil {
		return nil, fmt.Errorf("load phenotype baseline: %w", err)
	}
	for alias, f := range facets {
		if terms, ok := base[alias]; ok && IsPhenotype(alias) {
			facets[alias] = Fill(f, terms)
		}
	}
	n.log.Debug().Str("entity", string(model.Type())).Msg("phenotype facets filled from baseline")
	return facets, nil
}

// Fill appends a zero-count term for every baseline term absent from f.
func Fill(f TermFacet, baseline []string) TermFacet {
	have := make(map[string]bool, len(f.Terms))
	for _, t := range f.Terms {
		have[t.Term] = true
	}
	terms := slices.Clone(f.Terms)
	for _, term := range baseline {
		if !have[term] {
			terms = append(terms, Term{Term: term})
			have[term] = true
		}
	}
	f.Terms = terms
	return f
}
