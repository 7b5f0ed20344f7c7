package pql

// Filter is a node of a PQL filter expression tree.
//
// This is a sealed interface - only types in this package implement it.
type Filter interface {
	filterNode() // Marker method - seals interface to this package
}

// Value is a literal in a filter: string, int64 or float64.
type Value any

// MissingMarker is the reserved value standing for "absent or null" in an
// in() or eq() value list.
const MissingMarker = "_missing"

// Eq matches documents whose field equals Value.
type Eq struct {
	Field string
	Value Value
}

// Ne matches documents whose field does not equal Value.
type Ne struct {
	Field string
	Value Value
}

// RangeOp is a comparison operator.
type RangeOp string

const (
	OpGt RangeOp = "gt"
	OpGe RangeOp = "ge"
	OpLt RangeOp = "lt"
	OpLe RangeOp = "le"
)

// Range matches documents whose field compares to Value with Op.
// Gt/Lt are exclusive bounds, Ge/Le inclusive.
type Range struct {
	Field string
	Op    RangeOp
	Value Value
}

// In matches documents whose field equals any of Values.
type In struct {
	Field  string
	Values []Value
}

// Exists matches documents that have a value for the field.
type Exists struct {
	Field string
}

// Missing matches documents that have no value for the field.
type Missing struct {
	Field string
}

// And matches documents matching every child.
type And struct {
	Filters []Filter
}

// Or matches documents matching at least one child.
type Or struct {
	Filters []Filter
}

// Not matches documents not matching its child.
type Not struct {
	Filter Filter
}

// Nested scopes its children to one nested document at Path, so that
// several conditions must hold for the same array element.
type Nested struct {
	Path    string
	Filters []Filter
}

// Lookup matches documents whose field value is a member of a precomputed
// set stored in the terms-lookup side index.
type Lookup struct {
	Field      string
	LookupType string
	ID         string
}

func (*Eq) filterNode()      {}
func (*Ne) filterNode()      {}
func (*Range) filterNode()   {}
func (*In) filterNode()      {}
func (*Exists) filterNode()  {}
func (*Missing) filterNode() {}
func (*And) filterNode()     {}
func (*Or) filterNode()      {}
func (*Not) filterNode()     {}
func (*Nested) filterNode()  {}
func (*Lookup) filterNode()  {}

// Walk visits f and its descendants depth-first, parents before children.
// Returning false from fn skips the node's children.
func Walk(f Filter, fn func(Filter) bool) {
	if f == nil || !fn(f) {
		return
	}
	switch n := f.(type) {
	case *And:
		for _, c := range n.Filters {
			Walk(c, fn)
		}
	case *Or:
		for _, c := range n.Filters {
			Walk(c, fn)
		}
	case *Not:
		Walk(n.Filter, fn)
	case *Nested:
		for _, c := range n.Filters {
			Walk(c, fn)
		}
	}
}

// FieldOf returns the field a leaf filter tests, or "" for combinators.
func FieldOf(f Filter) string {
	switch n := f.(type) {
	case *Eq:
		return n.Field
	case *Ne:
		return n.Field
	case *Range:
		return n.Field
	case *In:
		return n.Field
	case *Exists:
		return n.Field
	case *Missing:
		return n.Field
	case *Lookup:
		return n.Field
	default:
		return ""
	}
}

// Fields returns every field referenced by leaves of f, in visit order,
// without duplicates.
func Fields(f Filter) []string {
	var fields []string
	seen := make(map[string]bool)
	Walk(f, func(n Filter) bool {
		if name := FieldOf(n); name != "" && !seen[name] {
			seen[name] = true
			fields = append(fields, name)
		}
		return true
	})
	return fields
}
