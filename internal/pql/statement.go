package pql

import (
	"github.com/roach88/portalql/internal/qerr"
)

// SortOrder is the direction of a sort field.
type SortOrder string

const (
	Asc  SortOrder = "asc"
	Desc SortOrder = "desc"
)

// SortField is one (alias, direction) pair of a sort clause.
type SortField struct {
	Field string
	Order SortOrder
}

// Limit is the pagination window of a statement.
type Limit struct {
	From int
	Size int
}

// Projection is a select or facets clause: either every field of the model
// or an explicit alias list.
type Projection struct {
	All    bool
	Fields []string
}

// IsEmpty reports whether the projection requests nothing.
func (p Projection) IsEmpty() bool {
	return !p.All && len(p.Fields) == 0
}

// Statement is a parsed PQL statement.
//
// Statements are plain values and may be rewritten after parsing, e.g. to
// force a count-only execution or to narrow the projection. A count
// statement has no select, facets, sort or limit clause.
type Statement struct {
	Count  bool
	Select Projection
	Facets Projection
	Filter Filter
	Sort   []SortField
	Limit  *Limit
}

// SetCount turns the statement into a count statement, dropping the clauses
// a count cannot carry.
func (s *Statement) SetCount() {
	s.Count = true
	s.Select = Projection{}
	s.Facets = Projection{}
	s.Sort = nil
	s.Limit = nil
}

// SetSelect replaces the select clause.
func (s *Statement) SetSelect(p Projection) error {
	if s.Count && !p.IsEmpty() {
		return qerr.Invalid("", "count statements cannot select fields")
	}
	s.Select = p
	return nil
}

// AddSelect appends aliases to an explicit select clause. Selecting every
// field already covers them.
func (s *Statement) AddSelect(fields ...string) error {
	if s.Count {
		return qerr.Invalid("", "count statements cannot select fields")
	}
	if s.Select.All {
		return nil
	}
	for _, f := range fields {
		if !contains(s.Select.Fields, f) {
			s.Select.Fields = append(s.Select.Fields, f)
		}
	}
	return nil
}

// SetFacets replaces the facets clause.
func (s *Statement) SetFacets(p Projection) error {
	if s.Count && !p.IsEmpty() {
		return qerr.Invalid("", "count statements cannot request facets")
	}
	s.Facets = p
	return nil
}

// SetSort replaces the sort clause.
func (s *Statement) SetSort(fields ...SortField) error {
	if s.Count && len(fields) > 0 {
		return qerr.Invalid("", "count statements cannot be sorted")
	}
	for _, f := range fields {
		if f.Order != Asc && f.Order != Desc {
			return qerr.Invalid(f.Field, "invalid sort order %q", f.Order)
		}
	}
	s.Sort = fields
	return nil
}

// SetLimit replaces the limit clause.
func (s *Statement) SetLimit(from, size int) error {
	if s.Count {
		return qerr.Invalid("", "count statements cannot be limited")
	}
	if from < 0 || size < 0 {
		return qerr.Invalid("", "limit(%d,%d) must not be negative", from, size)
	}
	s.Limit = &Limit{From: from, Size: size}
	return nil
}

// SetFilter replaces the filter expression.
func (s *Statement) SetFilter(f Filter) {
	s.Filter = f
}

// AddFilter conjoins f with the existing filter expression.
func (s *Statement) AddFilter(f Filter) {
	if f == nil {
		return
	}
	switch cur := s.Filter.(type) {
	case nil:
		s.Filter = f
	case *And:
		s.Filter = &And{Filters: append(append([]Filter(nil), cur.Filters...), f)}
	default:
		s.Filter = &And{Filters: []Filter{cur, f}}
	}
}

// Clone returns a deep copy of the statement's clauses. Filter nodes are
// shared, since they are never mutated in place.
func (s *Statement) Clone() *Statement {
	c := *s
	c.Select.Fields = append([]string(nil), s.Select.Fields...)
	c.Facets.Fields = append([]string(nil), s.Facets.Fields...)
	c.Sort = append([]SortField(nil), s.Sort...)
	if s.Limit != nil {
		l := *s.Limit
		c.Limit = &l
	}
	return &c
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
