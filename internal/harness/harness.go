package harness

import (
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/roach88/portalql/internal/engine"
	"github.com/roach88/portalql/internal/esquery"
	"github.com/roach88/portalql/internal/meta"
	"github.com/roach88/portalql/internal/pql"
	"github.com/roach88/portalql/internal/qerr"
)

// Harness compiles scenarios against one registry.
//
// Thread-safety: Harness is immutable and safe for concurrent use.
type Harness struct {
	registry *meta.Registry
	log      zerolog.Logger
}

// Option configures a Harness.
type Option func(*Harness)

// WithLogger sets the logger. The default discards output.
func WithLogger(log zerolog.Logger) Option {
	return func(h *Harness) { h.log = log }
}

// New creates a Harness over registry.
func New(registry *meta.Registry, opts ...Option) *Harness {
	h := &Harness{registry: registry, log: zerolog.Nop()}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Run compiles every step of scenario and evaluates its expectations.
// A returned error means the scenario could not run at all; failed
// expectations are reported in the result.
func (h *Harness) Run(scenario *Scenario) (*Result, error) {
	typ, err := meta.ParseEntityType(scenario.Entity)
	if err != nil {
		return nil, err
	}
	e := engine.New(h.registry,
		engine.WithLogger(h.log),
		engine.WithOptions(engine.Options{
			PostFilter:   scenario.Options.PostFilter,
			MaxTermCount: scenario.Options.MaxTermCount,
		}),
	)

	result := NewResult()
	for i, step := range scenario.Steps {
		sr, stmt, err := compileStep(e, typ, step.PQL)
		if err != nil {
			return nil, fmt.Errorf("step %d: %w", i, err)
		}
		result.Steps = append(result.Steps, sr)

		for _, msg := range evaluate(i, step, sr, stmt) {
			result.AddError(msg)
		}
	}

	h.log.Debug().
		Str("scenario", scenario.Name).
		Int("steps", len(result.Steps)).
		Bool("pass", result.Pass).
		Msg("scenario run")
	return result, nil
}

// compileStep parses and compiles text. Query errors become part of the
// step result. Only failures to encode the compiled body are returned.
func compileStep(e *engine.Engine, typ meta.EntityType, text string) (StepResult, *pql.Statement, error) {
	sr := StepResult{PQL: text}

	stmt, err := pql.Parse(text)
	if err != nil {
		sr.Error, sr.Message = string(qerr.CodeOf(err)), err.Error()
		return sr, nil, nil
	}
	req, err := e.Compile(typ, stmt)
	if err != nil {
		sr.Error, sr.Message = string(qerr.CodeOf(err)), err.Error()
		return sr, stmt, nil
	}

	data, err := esquery.Marshal(req)
	if err != nil {
		return sr, stmt, fmt.Errorf("encode compiled request: %w", err)
	}
	if err := json.Unmarshal(data, &sr.Body); err != nil {
		return sr, stmt, fmt.Errorf("decode compiled request: %w", err)
	}
	return sr, stmt, nil
}
