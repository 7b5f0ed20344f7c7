package sets

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/roach88/portalql/internal/engine"
	"github.com/roach88/portalql/internal/logger"
	"github.com/roach88/portalql/internal/lookup"
	"github.com/roach88/portalql/internal/meta"
	"github.com/roach88/portalql/internal/metrics"
	"github.com/roach88/portalql/internal/pql"
	"github.com/roach88/portalql/internal/qerr"
	"github.com/roach88/portalql/internal/search"
	"github.com/roach88/portalql/internal/store"
)

// DefaultLimit caps the members of a set when the request names no limit.
const DefaultLimit = 20000

// idAlias is the alias every materializable model gives its own id.
const idAlias = "id"

// Request describes a set to materialize.
type Request struct {
	EntityType  meta.EntityType
	Name        string
	Description string

	// Filter is PQL text. Only its filter clauses are used.
	Filter string

	// Limit caps the number of members. Zero means DefaultLimit.
	Limit int

	Transient bool
}

// Definition is what a set was built from, stored with the set.
type Definition struct {
	Filter string `json:"filter"`
	Limit  int    `json:"limit"`
}

// Set is a materialized entity set.
type Set struct {
	ID          string
	EntityType  meta.EntityType
	LookupType  string
	Name        string
	Description string
	Definition  Definition
	State       store.State
	Count       int64
	Transient   bool
}

// IndexFunc names the index holding documents of an entity type.
type IndexFunc func(meta.EntityType) string

// Manager materializes entity sets and keeps their registry.
//
// Thread-safety: Manager is safe for concurrent use. Its collaborators
// carry their own synchronization.
type Manager struct {
	engine  *engine.Engine
	search  *search.Executor
	lookups *lookup.Client
	store   *store.Store

	ids     IDGenerator
	clock   *Clock
	index   IndexFunc
	log     zerolog.Logger
	metrics *metrics.Metrics
	harvest search.HarvestOptions
}

// Option configures a Manager.
type Option func(*Manager)

// WithIDGenerator sets the id generator. The default is UUIDv7Generator.
func WithIDGenerator(g IDGenerator) Option {
	return func(m *Manager) { m.ids = g }
}

// WithClock sets the logical clock.
func WithClock(c *Clock) Option {
	return func(m *Manager) { m.clock = c }
}

// WithIndex sets how entity types map to index names. The default uses the
// entity type name.
func WithIndex(f IndexFunc) Option {
	return func(m *Manager) { m.index = f }
}

// WithHarvestOptions sets the scroll keep-alive and batch size used to
// collect members. Limit and Field are set per request.
func WithHarvestOptions(o search.HarvestOptions) Option {
	return func(m *Manager) { m.harvest = o }
}

// WithLogger sets the logger.
func WithLogger(l *logger.Logger) Option {
	return func(m *Manager) { m.log = l.Component("sets") }
}

// WithMetrics records materializations.
func WithMetrics(mt *metrics.Metrics) Option {
	return func(m *Manager) { m.metrics = mt }
}

// New creates a Manager. When no clock is given, the clock resumes from
// the highest seq in st.
func New(ctx context.Context, e *engine.Engine, x *search.Executor, l *lookup.Client, st *store.Store, opts ...Option) (*Manager, error) {
	m := &Manager{
		engine:  e,
		search:  x,
		lookups: l,
		store:   st,
		ids:     UUIDv7Generator{},
		index:   func(t meta.EntityType) string { return string(t) },
		log:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.clock == nil {
		last, err := st.GetLastSeq(ctx)
		if err != nil {
			return nil, err
		}
		m.clock = NewClockAt(last)
	}
	return m, nil
}

// Materialize runs req's filter, writes the matching ids to a new lookup
// document and records the set. The set is recorded as PENDING before any
// engine call and moves to FINISHED or ERROR afterwards.
func (m *Manager) Materialize(ctx context.Context, req Request) (*Set, error) {
	set, err := m.materialize(ctx, req)
	m.metrics.ObserveEntitySet(string(req.EntityType), err)
	return set, err
}

func (m *Manager) materialize(ctx context.Context, req Request) (*Set, error) {
	model, err := m.engine.Registry().Model(req.EntityType)
	if err != nil {
		return nil, err
	}
	if model.LookupType() == "" {
		return nil, qerr.Invalid("", "%s sets cannot be materialized", req.EntityType)
	}
	idPath, err := model.Resolve(idAlias)
	if err != nil {
		return nil, qerr.Invalid("", "%s sets cannot be materialized: %v", req.EntityType, err)
	}
	if strings.TrimSpace(req.Name) == "" {
		return nil, qerr.Invalid("name", "set name must not be empty")
	}
	if req.Limit < 0 {
		return nil, qerr.Invalid("limit", "set limit must not be negative, got %d", req.Limit)
	}
	limit := req.Limit
	if limit == 0 {
		limit = DefaultLimit
	}

	stmt := &pql.Statement{}
	if strings.TrimSpace(req.Filter) != "" {
		parsed, err := pql.Parse(req.Filter)
		if err != nil {
			return nil, err
		}
		stmt.SetFilter(parsed.Filter)
	}
	compiled, err := m.engine.Compile(req.EntityType, stmt)
	if err != nil {
		return nil, err
	}

	var filterText string
	if stmt.Filter != nil {
		filterText = pql.RenderFilter(stmt.Filter)
	}
	set := &Set{
		ID:          m.ids.Generate(),
		EntityType:  req.EntityType,
		LookupType:  model.LookupType(),
		Name:        req.Name,
		Description: req.Description,
		Definition:  Definition{Filter: filterText, Limit: limit},
		State:       store.StatePending,
		Transient:   req.Transient,
	}
	if err := lookup.ValidateID(set.ID); err != nil {
		return nil, qerr.WrapInternal(err, "generated set id %q", set.ID)
	}
	def, err := json.Marshal(set.Definition)
	if err != nil {
		return nil, fmt.Errorf("encode set definition: %w", err)
	}
	if err := m.store.WriteEntitySet(ctx, store.EntitySet{
		ID:          set.ID,
		EntityType:  string(set.EntityType),
		LookupType:  set.LookupType,
		Name:        set.Name,
		Description: set.Description,
		Definition:  def,
		State:       set.State,
		Transient:   set.Transient,
		Seq:         m.clock.Next(),
	}); err != nil {
		return nil, err
	}

	log := m.log.With().Str("set", set.ID).Str("entity", string(set.EntityType)).Logger()
	log.Info().Str("filter", set.Definition.Filter).Int("limit", limit).Msg("materializing entity set")

	opts := m.harvest
	opts.Limit = limit
	opts.Field = idPath
	members, err := m.search.Harvest(ctx, m.index(req.EntityType), compiled, opts)
	if err == nil {
		err = m.lookups.Create(ctx, set.LookupType, set.ID, members, lookup.Attrs{Transient: set.Transient})
	}
	if err != nil {
		log.Error().Err(err).Msg("entity set materialization failed")
		if serr := m.store.UpdateState(context.WithoutCancel(ctx), set.ID, store.StateError, 0); serr != nil {
			log.Error().Err(serr).Msg("failed to record entity set error state")
		}
		return nil, err
	}

	set.State = store.StateFinished
	set.Count = int64(len(members))
	if err := m.store.UpdateState(ctx, set.ID, set.State, set.Count); err != nil {
		return nil, err
	}
	log.Info().Int64("count", set.Count).Msg("entity set materialized")
	return set, nil
}

// Get returns a set by id. An unknown id is an INVALID_QUERY error.
func (m *Manager) Get(ctx context.Context, id string) (*Set, error) {
	if err := lookup.ValidateID(id); err != nil {
		return nil, err
	}
	rec, err := m.store.GetEntitySet(ctx, id)
	if err != nil {
		if store.IsNotFound(err) {
			return nil, qerr.Invalid("", "entity set %s does not exist", id)
		}
		return nil, err
	}
	return fromRecord(rec)
}

// List returns the sets of entity type t, or every set when t is empty, in
// creation order.
func (m *Manager) List(ctx context.Context, t meta.EntityType) ([]*Set, error) {
	recs, err := m.store.ListEntitySets(ctx, string(t))
	if err != nil {
		return nil, err
	}
	out := make([]*Set, 0, len(recs))
	for _, rec := range recs {
		set, err := fromRecord(rec)
		if err != nil {
			return nil, err
		}
		out = append(out, set)
	}
	return out, nil
}

// MarkTransient flags a set and its lookup document as transient, making
// both eligible for cleanup.
func (m *Manager) MarkTransient(ctx context.Context, id string, transient bool) error {
	if _, err := m.Get(ctx, id); err != nil {
		return err
	}
	if err := m.lookups.MarkTransient(ctx, id, transient); err != nil {
		return err
	}
	return m.store.SetTransient(ctx, id, transient)
}

// Delete removes a set from the registry. Lookup documents are never
// deleted while a query might still reference them, so the document is
// only marked transient.
func (m *Manager) Delete(ctx context.Context, id string) error {
	set, err := m.Get(ctx, id)
	if err != nil {
		return err
	}
	if set.State == store.StateFinished {
		if err := m.lookups.MarkTransient(ctx, id, true); err != nil {
			return err
		}
	}
	if err := m.store.DeleteEntitySet(ctx, id); err != nil {
		return err
	}
	m.log.Info().Str("set", id).Msg("entity set deleted")
	return nil
}

// Filter returns a filter selecting the members of set, for statements on
// the set's entity type.
func Filter(set *Set) pql.Filter {
	return &pql.Eq{Field: idAlias, Value: engine.EntitySetPrefix + set.ID}
}

func fromRecord(rec store.EntitySet) (*Set, error) {
	var def Definition
	if err := json.Unmarshal(rec.Definition, &def); err != nil {
		return nil, fmt.Errorf("decode definition of set %s: %w", rec.ID, err)
	}
	return &Set{
		ID:          rec.ID,
		EntityType:  meta.EntityType(rec.EntityType),
		LookupType:  rec.LookupType,
		Name:        rec.Name,
		Description: rec.Description,
		Definition:  def,
		State:       rec.State,
		Count:       rec.Count,
		Transient:   rec.Transient,
	}, nil
}
