package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/roach88/portalql/internal/config"
	"github.com/roach88/portalql/internal/engine"
	"github.com/roach88/portalql/internal/esclient"
	"github.com/roach88/portalql/internal/esquery"
	"github.com/roach88/portalql/internal/facet"
	"github.com/roach88/portalql/internal/logger"
	"github.com/roach88/portalql/internal/lookup"
	"github.com/roach88/portalql/internal/meta"
	"github.com/roach88/portalql/internal/metrics"
	"github.com/roach88/portalql/internal/search"
	"github.com/roach88/portalql/internal/sets"
	"github.com/roach88/portalql/internal/store"
)

// app is the wiring shared by commands that talk to the search engine.
// Commands that only compile use the registry and engine and never
// connect.
type app struct {
	cfg      config.Config
	log      *logger.Logger
	metrics  *metrics.Metrics
	registry *meta.Registry
	engine   *engine.Engine
}

// loadApp reads the config and builds the offline parts of the wiring.
// Logs go to errOut; --verbose lowers the level to debug.
func loadApp(opts *RootOptions, errOut io.Writer) (*app, error) {
	cfg, err := config.Load(opts.Config)
	if err != nil {
		return nil, err
	}
	logCfg := cfg.Logger()
	logCfg.Output = errOut
	if opts.Verbose {
		logCfg.Level = "debug"
	}
	log := logger.New(logCfg)

	reg, err := meta.Default()
	if err != nil {
		return nil, err
	}
	m := metrics.New(prometheus.NewRegistry())
	e := engine.New(reg,
		engine.WithLogger(log.Component("engine")),
		engine.WithMetrics(m),
		engine.WithOptions(engine.Options{MaxTermCount: cfg.Facets.MaxTermCount}),
	)
	return &app{cfg: cfg, log: log, metrics: m, registry: reg, engine: e}, nil
}

// withOptions returns an engine sharing the app's wiring with different
// compile options.
func (a *app) withOptions(opts engine.Options) *engine.Engine {
	if opts.MaxTermCount == 0 {
		opts.MaxTermCount = a.cfg.Facets.MaxTermCount
	}
	return engine.New(a.registry,
		engine.WithLogger(a.log.Component("engine")),
		engine.WithMetrics(a.metrics),
		engine.WithOptions(opts),
	)
}

// online holds the clients of a connected command.
type online struct {
	*app
	search  *search.Executor
	lookups *lookup.Client
}

func (a *app) connect() (*online, error) {
	es, err := esclient.New(a.cfg.Client())
	if err != nil {
		return nil, err
	}
	return &online{
		app:    a,
		search: search.New(es, search.WithLogger(a.log), search.WithMetrics(a.metrics)),
		lookups: lookup.New(es,
			lookup.WithCoordinates(a.cfg.Coordinates()),
			lookup.WithLogger(a.log),
			lookup.WithMetrics(a.metrics),
		),
	}, nil
}

// normalizer builds a facet normalizer whose phenotype baselines come from
// match-all facet searches on the configured indices.
func (o *online) normalizer() *facet.Normalizer {
	source := facet.NewSearchBaseline(o.engine,
		func(ctx context.Context, typ meta.EntityType, req *esquery.Request) (facet.Aggregations, error) {
			res, err := o.search.Search(ctx, o.cfg.IndexFor(typ), req)
			if err != nil {
				return nil, err
			}
			return res.Aggregations, nil
		})
	cache := facet.NewBaselineCache(o.cfg.Facets.BaselineCacheSize, o.cfg.Facets.BaselineTTL, o.metrics)
	return facet.NewNormalizer(source, facet.WithCache(cache), facet.WithLogger(o.log))
}

// sets opens the entity set registry. The caller closes the store.
func (o *online) sets(ctx context.Context) (*sets.Manager, *store.Store, error) {
	st, err := store.Open(o.cfg.Store.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("open entity set store: %w", err)
	}
	mgr, err := sets.New(ctx, o.engine, o.search, o.lookups, st,
		sets.WithIndex(o.cfg.IndexFor),
		sets.WithHarvestOptions(o.cfg.Harvest()),
		sets.WithLogger(o.log),
		sets.WithMetrics(o.metrics),
	)
	if err != nil {
		st.Close()
		return nil, nil, err
	}
	return mgr, st, nil
}
