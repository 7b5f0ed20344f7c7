package engine

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/roach88/portalql/internal/esquery"
	"github.com/roach88/portalql/internal/meta"
	"github.com/roach88/portalql/internal/metrics"
	"github.com/roach88/portalql/internal/pql"
)

// Engine compiles statements against the models of a registry.
//
// Thread-safety: an Engine is immutable after New and safe for concurrent
// use.
type Engine struct {
	registry *meta.Registry
	opts     Options
	log      zerolog.Logger
	metrics  *metrics.Metrics
}

// Option configures an Engine.
type Option func(*Engine)

// WithOptions sets the compile options used for every statement.
func WithOptions(opts Options) Option {
	return func(e *Engine) {
		e.opts = opts
	}
}

// WithLogger sets the logger. The default discards output.
func WithLogger(log zerolog.Logger) Option {
	return func(e *Engine) {
		e.log = log
	}
}

// WithMetrics records compile counts and durations.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// New creates an Engine over registry.
func New(registry *meta.Registry, opts ...Option) *Engine {
	e := &Engine{
		registry: registry,
		log:      zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Registry returns the engine's type model registry.
func (e *Engine) Registry() *meta.Registry {
	return e.registry
}

// Options returns the engine's compile options.
func (e *Engine) Options() Options {
	return e.opts
}

// Compile compiles stmt for entity type typ.
func (e *Engine) Compile(typ meta.EntityType, stmt *pql.Statement) (*esquery.Request, error) {
	start := time.Now()
	req, err := e.compile(typ, stmt)
	e.metrics.ObserveCompile(string(typ), time.Since(start), err)

	if err != nil {
		e.log.Debug().
			Str("entity", string(typ)).
			Err(err).
			Msg("compile failed")
		return nil, err
	}
	return req, nil
}

func (e *Engine) compile(typ meta.EntityType, stmt *pql.Statement) (*esquery.Request, error) {
	model, err := e.registry.Model(typ)
	if err != nil {
		return nil, err
	}
	return Compile(stmt, model, e.opts)
}

// CompileText parses and compiles PQL text for entity type typ.
func (e *Engine) CompileText(typ meta.EntityType, text string) (*esquery.Request, error) {
	stmt, err := pql.Parse(text)
	if err != nil {
		e.metrics.ObserveCompile(string(typ), 0, err)
		return nil, err
	}
	return e.Compile(typ, stmt)
}
