package esquery

// Aggregation is a node of an aggregation tree.
//
// This is a sealed interface - only types in this package implement it.
type Aggregation interface {
	Source() map[string]any
	aggNode() // Marker method - seals interface to this package
}

// Aggs names the sub-aggregations of a bucket aggregation.
type Aggs map[string]Aggregation

// TermsAgg groups documents by the values of Field.
type TermsAgg struct {
	Field string
	Size  int
	Aggs  Aggs
}

// MissingAgg counts documents without a value for Field.
type MissingAgg struct {
	Field string
}

// NestedAgg moves aggregation into the nested documents at Path.
type NestedAgg struct {
	Path string
	Aggs Aggs
}

// ReverseNestedAgg moves aggregation back to the root document (or to Path
// when set) from inside a nested aggregation.
type ReverseNestedAgg struct {
	Path string
}

// FilterAgg restricts its sub-aggregations to documents matching Filter.
type FilterAgg struct {
	Filter Query
	Aggs   Aggs
}

// GlobalAgg aggregates over every document regardless of the query.
type GlobalAgg struct {
	Aggs Aggs
}

// SumAgg sums a numeric field.
type SumAgg struct {
	Field string
}

func (*TermsAgg) aggNode()         {}
func (*MissingAgg) aggNode()       {}
func (*NestedAgg) aggNode()        {}
func (*ReverseNestedAgg) aggNode() {}
func (*FilterAgg) aggNode()        {}
func (*GlobalAgg) aggNode()        {}
func (*SumAgg) aggNode()           {}

// Source renders sub-aggregations keyed by name.
func (a Aggs) Source() map[string]any {
	out := make(map[string]any, len(a))
	for name, agg := range a {
		out[name] = agg.Source()
	}
	return out
}

func withSubs(body map[string]any, subs Aggs) map[string]any {
	if len(subs) > 0 {
		body["aggs"] = subs.Source()
	}
	return body
}

func (a *TermsAgg) Source() map[string]any {
	terms := map[string]any{"field": a.Field}
	if a.Size > 0 {
		terms["size"] = a.Size
	}
	return withSubs(map[string]any{"terms": terms}, a.Aggs)
}

func (a *MissingAgg) Source() map[string]any {
	return map[string]any{"missing": map[string]any{"field": a.Field}}
}

func (a *NestedAgg) Source() map[string]any {
	return withSubs(map[string]any{"nested": map[string]any{"path": a.Path}}, a.Aggs)
}

func (a *ReverseNestedAgg) Source() map[string]any {
	body := map[string]any{}
	if a.Path != "" {
		body["path"] = a.Path
	}
	return map[string]any{"reverse_nested": body}
}

func (a *FilterAgg) Source() map[string]any {
	var filter Query = &MatchAllQuery{}
	if a.Filter != nil {
		filter = a.Filter
	}
	return withSubs(map[string]any{"filter": filter.Source()}, a.Aggs)
}

func (a *GlobalAgg) Source() map[string]any {
	return withSubs(map[string]any{"global": map[string]any{}}, a.Aggs)
}

func (a *SumAgg) Source() map[string]any {
	return map[string]any{"sum": map[string]any{"field": a.Field}}
}
