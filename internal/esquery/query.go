package esquery

// Query is a node of a search engine query tree.
//
// This is a sealed interface - only types in this package implement it.
type Query interface {
	Source() map[string]any
	queryNode() // Marker method - seals interface to this package
}

// BoolQuery combines clauses. Filter and MustNot clauses do not score.
type BoolQuery struct {
	Must    []Query
	Should  []Query
	Filter  []Query
	MustNot []Query
}

// TermQuery matches an exact value.
type TermQuery struct {
	Field string
	Value any
}

// TermsQuery matches any of several exact values.
type TermsQuery struct {
	Field  string
	Values []any
}

// TermsLookupQuery matches values stored in a side document. The member
// values never appear in the request.
//
// Type is the lookup document type. It is kept for callers that need to
// know which entity the set holds but is not sent, since terms lookups are
// typeless on current search engines.
type TermsLookupQuery struct {
	Field string
	Index string
	Type  string
	ID    string
	Path  string
}

// RangeQuery bounds a numeric field. Nil bounds are omitted.
type RangeQuery struct {
	Field string
	Gt    any
	Gte   any
	Lt    any
	Lte   any
}

// ExistsQuery matches documents with a non-null value for the field.
type ExistsQuery struct {
	Field string
}

// MissingQuery matches documents without a value for the field. It renders
// as a negated exists query.
type MissingQuery struct {
	Field string
}

// NestedQuery runs Query against the nested documents at Path.
type NestedQuery struct {
	Path  string
	Query Query
}

// MatchAllQuery matches every document.
type MatchAllQuery struct{}

func (*BoolQuery) queryNode()        {}
func (*TermQuery) queryNode()        {}
func (*TermsQuery) queryNode()       {}
func (*TermsLookupQuery) queryNode() {}
func (*RangeQuery) queryNode()       {}
func (*ExistsQuery) queryNode()      {}
func (*MissingQuery) queryNode()     {}
func (*NestedQuery) queryNode()      {}
func (*MatchAllQuery) queryNode()    {}

// Source renders the bool query. Empty clause lists are omitted.
func (q *BoolQuery) Source() map[string]any {
	body := map[string]any{}
	addClauses(body, "must", q.Must)
	addClauses(body, "should", q.Should)
	addClauses(body, "filter", q.Filter)
	addClauses(body, "must_not", q.MustNot)
	return map[string]any{"bool": body}
}

func addClauses(body map[string]any, key string, qs []Query) {
	if len(qs) == 0 {
		return
	}
	list := make([]any, len(qs))
	for i, q := range qs {
		list[i] = q.Source()
	}
	body[key] = list
}

func (q *TermQuery) Source() map[string]any {
	return map[string]any{"term": map[string]any{q.Field: q.Value}}
}

func (q *TermsQuery) Source() map[string]any {
	return map[string]any{"terms": map[string]any{q.Field: append([]any{}, q.Values...)}}
}

func (q *TermsLookupQuery) Source() map[string]any {
	return map[string]any{"terms": map[string]any{q.Field: map[string]any{
		"index": q.Index,
		"id":    q.ID,
		"path":  q.Path,
	}}}
}

func (q *RangeQuery) Source() map[string]any {
	bounds := map[string]any{}
	if q.Gt != nil {
		bounds["gt"] = q.Gt
	}
	if q.Gte != nil {
		bounds["gte"] = q.Gte
	}
	if q.Lt != nil {
		bounds["lt"] = q.Lt
	}
	if q.Lte != nil {
		bounds["lte"] = q.Lte
	}
	return map[string]any{"range": map[string]any{q.Field: bounds}}
}

func (q *ExistsQuery) Source() map[string]any {
	return map[string]any{"exists": map[string]any{"field": q.Field}}
}

func (q *MissingQuery) Source() map[string]any {
	return map[string]any{"bool": map[string]any{
		"must_not": []any{(&ExistsQuery{Field: q.Field}).Source()},
	}}
}

func (q *NestedQuery) Source() map[string]any {
	return map[string]any{"nested": map[string]any{
		"path":  q.Path,
		"query": q.Query.Source(),
	}}
}

func (*MatchAllQuery) Source() map[string]any {
	return map[string]any{"match_all": map[string]any{}}
}

// And returns the conjunction of qs, collapsing the single-clause case.
func And(qs ...Query) Query {
	if len(qs) == 1 {
		return qs[0]
	}
	return &BoolQuery{Must: qs}
}

// Or returns the disjunction of qs, collapsing the single-clause case.
func Or(qs ...Query) Query {
	if len(qs) == 1 {
		return qs[0]
	}
	return &BoolQuery{Should: qs}
}

// Not negates q.
func Not(q Query) Query {
	return &BoolQuery{MustNot: []Query{q}}
}

// Nest wraps q in nested queries for each path, outermost first, so that
// paths[0] becomes the outermost wrapper.
func Nest(q Query, paths ...string) Query {
	for i := len(paths) - 1; i >= 0; i-- {
		q = &NestedQuery{Path: paths[i], Query: q}
	}
	return q
}
