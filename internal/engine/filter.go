package engine

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/roach88/portalql/internal/esquery"
	"github.com/roach88/portalql/internal/lookup"
	"github.com/roach88/portalql/internal/meta"
	"github.com/roach88/portalql/internal/pql"
	"github.com/roach88/portalql/internal/qerr"
)

// EntitySetPrefix marks a filter value that names a stored entity set
// rather than a literal id, as in eq(donor.id, 'ES:<uuid>').
const EntitySetPrefix = "ES:"

// target is what a leaf filter tests: one or more internal paths that all
// live in the same nested documents. Several paths mean any may match.
type target struct {
	alias string
	paths []string
	field *meta.Field
}

// filter compiles f. scope is the nested path of the enclosing nested()
// node, or "" at the document root.
func (c *compiler) filter(f pql.Filter, scope string) (esquery.Query, error) {
	switch n := f.(type) {
	case *pql.And:
		qs, err := c.filters(n.Filters, scope)
		if err != nil {
			return nil, err
		}
		return esquery.And(qs...), nil
	case *pql.Or:
		qs, err := c.filters(n.Filters, scope)
		if err != nil {
			return nil, err
		}
		return esquery.Or(qs...), nil
	case *pql.Not:
		q, err := c.filter(n.Filter, scope)
		if err != nil {
			return nil, err
		}
		return esquery.Not(q), nil
	case *pql.Nested:
		return c.nested(n, scope)
	case *pql.Eq, *pql.Ne, *pql.In, *pql.Range, *pql.Exists, *pql.Missing, *pql.Lookup:
		return c.leaf(f, scope)
	case nil:
		return nil, qerr.Invalid("", "empty filter")
	default:
		return nil, qerr.Internal("unsupported filter node %T", f)
	}
}

func (c *compiler) filters(fs []pql.Filter, scope string) ([]esquery.Query, error) {
	if len(fs) == 0 {
		return nil, qerr.Invalid("", "empty filter list")
	}
	qs := make([]esquery.Query, 0, len(fs))
	for _, f := range fs {
		q, err := c.filter(f, scope)
		if err != nil {
			return nil, err
		}
		qs = append(qs, q)
	}
	return qs, nil
}

// nested compiles an explicit nested scope. Its children share one nested
// document, so they are compiled against the new scope and wrapped once.
func (c *compiler) nested(n *pql.Nested, scope string) (esquery.Query, error) {
	path, err := c.nestedScope(n.Path)
	if err != nil {
		return nil, err
	}
	if err := c.checkScope(path, scope); err != nil {
		return nil, err
	}
	if path == scope {
		return nil, qerr.Invalid(n.Path, "nested(%s) repeats the enclosing nested scope", n.Path)
	}

	qs, err := c.filters(n.Filters, path)
	if err != nil {
		return nil, err
	}
	return esquery.Nest(esquery.And(qs...), c.wrappers(path, scope)...), nil
}

// nestedScope accepts an internal path or an alias naming a nested field.
func (c *compiler) nestedScope(name string) (string, error) {
	path := name
	f, ok := c.model.Field(path)
	if !ok {
		resolved, err := c.model.Resolve(name)
		if err != nil {
			return "", err
		}
		path = resolved
		f, ok = c.model.Field(path)
	}
	if !ok || !f.Nested {
		return "", qerr.Invalid(name, "%s is not a nested field of the %s model", name, c.model.Type())
	}
	return path, nil
}

// checkScope fails unless path lies inside the nested scope.
func (c *compiler) checkScope(path, scope string) error {
	if scope == "" || path == scope || strings.HasPrefix(path, scope+".") {
		return nil
	}
	return qerr.Invalid(path, "%s is outside the enclosing nested scope %s", path, scope)
}

// wrappers returns the nested ancestors of path deeper than scope,
// outermost first.
func (c *compiler) wrappers(path, scope string) []string {
	var paths []string
	for _, p := range c.model.NestedPaths(path) {
		if scope != "" && (p == scope || strings.HasPrefix(scope, p+".")) {
			continue
		}
		paths = append(paths, p)
	}
	return paths
}

// wrap nests q for the target's nested ancestors below scope.
func (c *compiler) wrap(q esquery.Query, t target, scope string) (esquery.Query, error) {
	path := t.paths[0]
	if err := c.checkScope(path, scope); err != nil {
		return nil, err
	}
	return esquery.Nest(q, c.wrappers(path, scope)...), nil
}

// resolveTarget maps a leaf's alias to the paths it tests. has* shortcuts
// follow their redirect and GO term and gene set aliases expand into the
// annotation arrays they stand for.
func (c *compiler) resolveTarget(alias string) (target, error) {
	s := meta.SyntheticOf(alias)
	if redirect, ok := s.Redirect(); ok {
		if _, err := c.model.Resolve(alias); err != nil {
			return target{}, err
		}
		t, err := c.resolveTarget(redirect)
		if err != nil {
			return target{}, err
		}
		t.alias = alias
		return t, nil
	}

	switch s {
	case meta.SyntheticScore:
		return target{}, qerr.Invalid(alias, "cannot filter on %s", alias)
	case meta.SyntheticGoTermID, meta.SyntheticGeneSetID:
		return c.geneSetTarget(alias, s)
	}

	path, err := c.model.Resolve(alias)
	if err != nil {
		return target{}, err
	}
	f, ok := c.model.Field(path)
	if !ok {
		return target{}, qerr.UnknownField(alias, string(c.model.Type()))
	}
	if path == meta.ScoreAlias {
		return target{}, qerr.Invalid(alias, "cannot filter on %s", alias)
	}
	return target{alias: alias, paths: []string{path}, field: f}, nil
}

func (c *compiler) leaf(f pql.Filter, scope string) (esquery.Query, error) {
	alias := pql.FieldOf(f)
	if s := meta.SyntheticOf(alias); s == meta.SyntheticGeneLocation || s == meta.SyntheticMutationLocation {
		return c.location(f, s, scope)
	}

	t, err := c.resolveTarget(alias)
	if err != nil {
		return nil, err
	}

	var q esquery.Query
	switch n := f.(type) {
	case *pql.Eq:
		q, err = c.membership(t, []pql.Value{n.Value}, false)
	case *pql.In:
		if len(n.Values) == 0 {
			return nil, qerr.Invalid(alias, "in(%s) needs at least one value", alias)
		}
		q, err = c.membership(t, n.Values, true)
	case *pql.Ne:
		if q, err = c.membership(t, []pql.Value{n.Value}, false); err == nil {
			if q, err = c.wrap(q, t, scope); err == nil {
				return esquery.Not(q), nil
			}
		}
		return nil, err
	case *pql.Range:
		q, err = c.rangeQuery(t, n)
	case *pql.Exists:
		q = c.exists(t)
	case *pql.Missing:
		q = c.missing(t)
	case *pql.Lookup:
		q, err = c.lookupQuery(t, n.LookupType, n.ID)
	}
	if err != nil {
		return nil, err
	}
	return c.wrap(q, t, scope)
}

// membership compiles eq and in. The missing marker becomes an
// absent-or-null clause, ES:<uuid> values become terms lookups, and the
// remaining values one term or terms query per path. The clauses are OR'd
// in that order.
func (c *compiler) membership(t target, values []pql.Value, multi bool) (esquery.Query, error) {
	var (
		missing bool
		plain   []any
		lookups []esquery.Query
	)
	for _, v := range values {
		if s, ok := v.(string); ok {
			if s == pql.MissingMarker {
				missing = true
				continue
			}
			if id, ok := strings.CutPrefix(s, EntitySetPrefix); ok {
				q, err := c.lookupQuery(t, "", id)
				if err != nil {
					return nil, err
				}
				lookups = append(lookups, q)
				continue
			}
		}
		cv, err := c.coerce(t, v)
		if err != nil {
			return nil, err
		}
		plain = append(plain, cv)
	}

	var clauses []esquery.Query
	if missing {
		clauses = append(clauses, c.missing(t))
	}
	if len(plain) > 0 {
		perPath := make([]esquery.Query, 0, len(t.paths))
		for _, p := range t.paths {
			if len(plain) == 1 && !multi {
				perPath = append(perPath, &esquery.TermQuery{Field: p, Value: plain[0]})
			} else {
				perPath = append(perPath, &esquery.TermsQuery{Field: p, Values: plain})
			}
		}
		clauses = append(clauses, esquery.Or(perPath...))
	}
	clauses = append(clauses, lookups...)
	return esquery.Or(clauses...), nil
}

// lookupQuery references a stored entity set. An empty lookupType takes
// the field's own lookup type.
func (c *compiler) lookupQuery(t target, lookupType, id string) (esquery.Query, error) {
	if len(t.paths) != 1 || !c.model.IsIdentifiable(t.paths[0]) {
		return nil, qerr.Invalid(t.alias, "%s does not accept entity set references", t.alias)
	}
	if err := lookup.ValidateID(id); err != nil {
		return nil, err
	}
	if lookupType == "" {
		lookupType = t.field.LookupType
	}
	return c.coords.Reference(t.paths[0], lookupType, id).Query(), nil
}

func (c *compiler) exists(t target) esquery.Query {
	qs := make([]esquery.Query, 0, len(t.paths))
	for _, p := range t.paths {
		qs = append(qs, &esquery.ExistsQuery{Field: p})
	}
	return esquery.Or(qs...)
}

func (c *compiler) missing(t target) esquery.Query {
	if len(t.paths) == 1 {
		return &esquery.MissingQuery{Field: t.paths[0]}
	}
	return esquery.Not(c.exists(t))
}

func (c *compiler) rangeQuery(t target, r *pql.Range) (esquery.Query, error) {
	if len(t.paths) != 1 || !t.field.IsComparable() {
		return nil, qerr.Invalid(t.alias, "range operator %s needs a numeric field, %s is not", r.Op, t.alias)
	}
	v, err := c.coerce(t, r.Value)
	if err != nil {
		return nil, err
	}

	q := &esquery.RangeQuery{Field: t.paths[0]}
	switch r.Op {
	case pql.OpGt:
		q.Gt = v
	case pql.OpGe:
		q.Gte = v
	case pql.OpLt:
		q.Lt = v
	case pql.OpLe:
		q.Lte = v
	default:
		return nil, qerr.Invalid(t.alias, "unknown range operator %q", r.Op)
	}
	return q, nil
}

// coerce converts v to the field's kind. Numeric fields accept numbers and
// numeric strings; other kinds take the value as is.
func (c *compiler) coerce(t target, v pql.Value) (any, error) {
	if !t.field.IsNumeric() {
		switch v := v.(type) {
		case string, int64, float64, bool:
			return v, nil
		case int:
			return int64(v), nil
		default:
			return nil, qerr.Invalid(t.alias, "unsupported value %v of type %T", v, v)
		}
	}

	switch v := v.(type) {
	case int64, float64:
		return v, nil
	case int:
		return int64(v), nil
	case string:
		if i, err := strconv.ParseInt(v, 10, 64); err == nil {
			return i, nil
		}
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f, nil
		}
	}
	return nil, qerr.Invalid(t.alias, "%s is numeric, %s is not a number", t.alias, describe(v))
}

func describe(v pql.Value) string {
	if s, ok := v.(string); ok {
		return strconv.Quote(s)
	}
	return fmt.Sprint(v)
}
