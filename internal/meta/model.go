package meta

import (
	"fmt"
	"sort"
	"strings"

	"github.com/roach88/portalql/internal/qerr"
)

// Default values of the internal lookup coordinates.
const (
	DefaultLookupIndex = "terms-lookup"
	DefaultLookupPath  = "values"
)

// lookupTypeByPrefix maps an identifiable alias prefix (gene in gene.id) to
// the lookup document type holding sets of that entity's ids.
var lookupTypeByPrefix = map[string]string{
	"donor":    "donor-ids",
	"gene":     "gene-ids",
	"mutation": "mutation-ids",
	"file":     "file-ids",
}

// TypeModel is the schema of one entity type.
//
// Construct with ParseModel or obtain from a Registry. A TypeModel is
// immutable and safe for concurrent reads.
type TypeModel struct {
	typ        EntityType
	prefix     string
	lookupType string

	fields   []*Field
	byAlias  map[string]string
	byPath   map[string]*Field
	internal map[string]string

	facets     []string
	projection []string
	include    []string
	parents    []string
}

// Type returns the entity type the model describes.
func (m *TypeModel) Type() EntityType {
	return m.typ
}

// Prefix returns the entity's alias namespace (donor, gene, ...).
func (m *TypeModel) Prefix() string {
	return m.prefix
}

// LookupType returns the lookup document type for sets of this entity.
func (m *TypeModel) LookupType() string {
	return m.lookupType
}

// Fields returns the root fields in declaration order.
func (m *TypeModel) Fields() []*Field {
	return append([]*Field(nil), m.fields...)
}

// Facets returns the aliases enabled as facets.
func (m *TypeModel) Facets() []string {
	return append([]string(nil), m.facets...)
}

// DefaultProjection returns the aliases of a "select all" projection.
func (m *TypeModel) DefaultProjection() []string {
	return append([]string(nil), m.projection...)
}

// IncludeFields returns internal paths fetched from the document body
// rather than as indexed values.
func (m *TypeModel) IncludeFields() []string {
	return append([]string(nil), m.include...)
}

// CountsParents reports whether the nested facet alias counts root
// documents (files) rather than nested elements (file copies).
func (m *TypeModel) CountsParents(alias string) bool {
	for _, a := range m.parents {
		if a == alias {
			return true
		}
	}
	return false
}

// IsFacet reports whether alias is enabled as a facet.
func (m *TypeModel) IsFacet(alias string) bool {
	for _, f := range m.facets {
		if f == alias {
			return true
		}
	}
	return false
}

// Resolve maps a public alias to its internal path.
//
// Synthetic aliases are checked first: _score resolves to itself, has*
// shortcuts resolve through the alias they stand for, and expansion aliases
// resolve to themselves when the model defines the fields they expand into.
// Any other undefined alias fails with an UNKNOWN_FIELD error.
func (m *TypeModel) Resolve(alias string) (string, error) {
	switch s := SyntheticOf(alias); {
	case s == SyntheticScore:
		return ScoreAlias, nil
	case s == NotSynthetic:
	default:
		if target, ok := s.Redirect(); ok {
			path, err := m.Resolve(target)
			if err != nil {
				return "", qerr.UnknownField(alias, string(m.typ))
			}
			return path, nil
		}
		if !m.supports(s) {
			return "", qerr.UnknownField(alias, string(m.typ))
		}
		return alias, nil
	}

	path, ok := m.byAlias[alias]
	if !ok {
		return "", qerr.UnknownField(alias, string(m.typ))
	}
	return path, nil
}

// supports reports whether the fields an expansion alias needs are defined.
func (m *TypeModel) supports(s Synthetic) bool {
	switch s {
	case SyntheticGoTermID:
		return m.hasInternals(GoTermInternals...)
	case SyntheticGeneSetID:
		return m.hasInternals(GoTermInternals...) &&
			m.hasAliases(GenePathwayIDAlias, GeneCuratedSetIDAlias)
	case SyntheticGeneLocation, SyntheticMutationLocation:
		chromosome, start, end, _ := s.LocationAliases()
		return m.hasAliases(chromosome, start, end)
	}
	return false
}

func (m *TypeModel) hasInternals(names ...string) bool {
	for _, n := range names {
		if _, ok := m.internal[n]; !ok {
			return false
		}
	}
	return true
}

func (m *TypeModel) hasAliases(aliases ...string) bool {
	for _, a := range aliases {
		if _, ok := m.byAlias[a]; !ok {
			return false
		}
	}
	return true
}

// Field returns the field at an internal path.
func (m *TypeModel) Field(path string) (*Field, bool) {
	f, ok := m.byPath[path]
	return f, ok
}

// FieldByAlias resolves alias and returns its field.
// Synthetic aliases without a backing field fail with UNKNOWN_FIELD.
func (m *TypeModel) FieldByAlias(alias string) (*Field, error) {
	path, err := m.Resolve(alias)
	if err != nil {
		return nil, err
	}
	f, ok := m.byPath[path]
	if !ok {
		return nil, qerr.UnknownField(alias, string(m.typ))
	}
	return f, nil
}

// AliasesOf returns the sorted aliases that resolve to an internal path.
func (m *TypeModel) AliasesOf(path string) []string {
	var aliases []string
	for a, p := range m.byAlias {
		if p == path {
			aliases = append(aliases, a)
		}
	}
	sort.Strings(aliases)
	return aliases
}

// InternalField returns the path or value behind an internal alias such as
// lookup.index or go_term.cellular_component.
func (m *TypeModel) InternalField(name string) (string, error) {
	v, ok := m.internal[name]
	if !ok {
		return "", qerr.UnknownField(name, string(m.typ))
	}
	return v, nil
}

// fullPath maps an alias to its path and passes internal paths through.
func (m *TypeModel) fullPath(field string) string {
	if p, ok := m.byAlias[field]; ok {
		return p
	}
	return field
}

// IsNested reports whether the field at path (or alias) lies in a nested
// subtree, including the case where the field itself is nested.
func (m *TypeModel) IsNested(path string) bool {
	for _, p := range splitPath(m.fullPath(path)) {
		if f, ok := m.byPath[p]; ok && f.Nested {
			return true
		}
	}
	return false
}

// NestedPath returns the innermost nested ancestor of path (possibly path
// itself). Fails with INVALID_QUERY if path is not nested at all.
func (m *TypeModel) NestedPath(path string) (string, error) {
	for _, p := range splitPath(m.fullPath(path)) {
		if f, ok := m.byPath[p]; ok && f.Nested {
			return p, nil
		}
	}
	return "", qerr.Invalid(path, "%s is not a nested field of the %s model", path, m.typ)
}

// NestedPaths returns every nested ancestor of path (possibly including path
// itself), outermost first. Prefixes absent from the model are skipped.
func (m *TypeModel) NestedPaths(path string) []string {
	prefixes := splitPath(m.fullPath(path))
	var result []string
	for i := len(prefixes) - 1; i >= 0; i-- {
		if f, ok := m.byPath[prefixes[i]]; ok && f.Nested {
			result = append(result, prefixes[i])
		}
	}
	return result
}

// ParentNestedPath returns the innermost nested ancestor strictly above
// path, or path itself when there is none.
func (m *TypeModel) ParentNestedPath(path string) string {
	for _, p := range splitPath(path) {
		if p == path {
			continue
		}
		if f, ok := m.byPath[p]; ok && f.Nested {
			return p
		}
	}
	return path
}

// IsIdentifiable reports whether the field at path is identifiable.
func (m *TypeModel) IsIdentifiable(path string) bool {
	f, ok := m.byPath[m.fullPath(path)]
	return ok && f.Identifiable
}

// String lists every path with its kind and nesting, sorted by path.
func (m *TypeModel) String() string {
	paths := make([]string, 0, len(m.byPath))
	for p := range m.byPath {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	var b strings.Builder
	for _, p := range paths {
		f := m.byPath[p]
		fmt.Fprintf(&b, "Path: %s, Kind: %s, Nested: %t\n", p, f.Kind, f.Nested)
	}
	return b.String()
}

// splitPath returns the prefixes of a dotted path, longest first:
// a.b.c yields a.b.c, a.b, a.
func splitPath(path string) []string {
	if path == "" {
		return nil
	}
	parts := strings.Split(path, ".")
	result := make([]string, len(parts))
	for i := range parts {
		result[len(parts)-1-i] = strings.Join(parts[:i+1], ".")
	}
	return result
}
