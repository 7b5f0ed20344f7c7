package pql

import (
	"fmt"
	"strconv"
	"strings"
)

// Render produces canonical PQL text for s.
//
// Clauses are written in a fixed order (count, select, facets, filter,
// sort, limit) without whitespace, and strings are single-quoted. Parsing
// the result yields a statement structurally equal to s.
func Render(s *Statement) string {
	var parts []string
	if s.Count {
		parts = append(parts, "count()")
	}
	if !s.Select.IsEmpty() {
		parts = append(parts, renderProjection("select", s.Select))
	}
	if !s.Facets.IsEmpty() {
		parts = append(parts, renderProjection("facets", s.Facets))
	}
	if s.Filter != nil {
		// A top-level and() is written as the implicit conjunction.
		if and, ok := s.Filter.(*And); ok {
			for _, f := range and.Filters {
				parts = append(parts, RenderFilter(f))
			}
		} else {
			parts = append(parts, RenderFilter(s.Filter))
		}
	}
	if len(s.Sort) > 0 {
		fields := make([]string, len(s.Sort))
		for i, f := range s.Sort {
			sign := "+"
			if f.Order == Desc {
				sign = "-"
			}
			fields[i] = sign + f.Field
		}
		parts = append(parts, "sort("+strings.Join(fields, ",")+")")
	}
	if s.Limit != nil {
		parts = append(parts, fmt.Sprintf("limit(%d,%d)", s.Limit.From, s.Limit.Size))
	}
	return strings.Join(parts, ",")
}

func renderProjection(name string, p Projection) string {
	if p.All {
		return name + "(*)"
	}
	return name + "(" + strings.Join(p.Fields, ",") + ")"
}

// RenderFilter produces canonical PQL text for a single filter.
func RenderFilter(f Filter) string {
	switch n := f.(type) {
	case *Eq:
		return call("eq", n.Field, renderValue(n.Value))
	case *Ne:
		return call("ne", n.Field, renderValue(n.Value))
	case *Range:
		return call(string(n.Op), n.Field, renderValue(n.Value))
	case *In:
		args := []string{n.Field}
		for _, v := range n.Values {
			args = append(args, renderValue(v))
		}
		return call("in", args...)
	case *Exists:
		return call("exists", n.Field)
	case *Missing:
		return call("missing", n.Field)
	case *And:
		return call("and", renderFilters(n.Filters)...)
	case *Or:
		return call("or", renderFilters(n.Filters)...)
	case *Not:
		return call("not", RenderFilter(n.Filter))
	case *Nested:
		return call("nested", append([]string{n.Path}, renderFilters(n.Filters)...)...)
	case *Lookup:
		return call("lookup", n.Field, quote(n.LookupType), quote(n.ID))
	default:
		return fmt.Sprintf("<unknown %T>", f)
	}
}

func renderFilters(fs []Filter) []string {
	out := make([]string, len(fs))
	for i, f := range fs {
		out[i] = RenderFilter(f)
	}
	return out
}

func call(name string, args ...string) string {
	return name + "(" + strings.Join(args, ",") + ")"
}

func renderValue(v Value) string {
	switch x := v.(type) {
	case string:
		return quote(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case int:
		return strconv.Itoa(x)
	case float64:
		s := strconv.FormatFloat(x, 'g', -1, 64)
		if !strings.ContainsAny(s, ".eEn") {
			s += ".0"
		}
		return s
	case bool:
		return quote(strconv.FormatBool(x))
	default:
		return quote(fmt.Sprint(x))
	}
}

func quote(s string) string {
	var b strings.Builder
	b.WriteByte('\'')
	for i := 0; i < len(s); i++ {
		if s[i] == '\'' || s[i] == '\\' {
			b.WriteByte('\\')
		}
		b.WriteByte(s[i])
	}
	b.WriteByte('\'')
	return b.String()
}
