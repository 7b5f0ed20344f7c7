package esquery

// SortOrder is asc or desc.
type SortOrder string

const (
	Asc  SortOrder = "asc"
	Desc SortOrder = "desc"
)

// Sort orders hits by a field. Nested lists the nested ancestors of a field
// living in nested documents, outermost first.
type Sort struct {
	Field  string
	Order  SortOrder
	Nested []string
}

// Source renders the sort entry. Each nested level holds the next one.
func (s Sort) Source() map[string]any {
	body := map[string]any{"order": string(s.Order)}
	var nested map[string]any
	for i := len(s.Nested) - 1; i >= 0; i-- {
		level := map[string]any{"path": s.Nested[i]}
		if nested != nil {
			level["nested"] = nested
		}
		nested = level
	}
	if nested != nil {
		body["nested"] = nested
	}
	return map[string]any{s.Field: body}
}

// Request is a complete search request body.
type Request struct {
	// Query selects and scores documents. Nil means match all.
	Query Query

	// PostFilter narrows hits after aggregations have been computed.
	PostFilter Query

	// Aggs are the named top-level aggregations.
	Aggs Aggs

	Sort []Sort
	From int
	Size int

	// Fields are indexed values returned per hit.
	Fields []string

	// SourceIncludes are paths fetched from the stored document body. When
	// empty the body is not fetched at all.
	SourceIncludes []string

	// TrackTotalHits requests an exact total hit count.
	TrackTotalHits bool
}

// Source renders the request body.
func (r *Request) Source() map[string]any {
	var query Query = &MatchAllQuery{}
	if r.Query != nil {
		query = r.Query
	}
	body := map[string]any{
		"query": query.Source(),
		"size":  r.Size,
	}
	if r.From > 0 {
		body["from"] = r.From
	}
	if r.PostFilter != nil {
		body["post_filter"] = r.PostFilter.Source()
	}
	if len(r.Aggs) > 0 {
		body["aggs"] = r.Aggs.Source()
	}
	if len(r.Sort) > 0 {
		sorts := make([]any, len(r.Sort))
		for i, s := range r.Sort {
			sorts[i] = s.Source()
		}
		body["sort"] = sorts
	}
	if len(r.Fields) > 0 {
		body["fields"] = stringList(r.Fields)
	}
	if len(r.SourceIncludes) > 0 {
		body["_source"] = map[string]any{"includes": stringList(r.SourceIncludes)}
	} else {
		body["_source"] = false
	}
	if r.TrackTotalHits {
		body["track_total_hits"] = true
	}
	return body
}

// MarshalJSON encodes the request as canonical JSON.
func (r *Request) MarshalJSON() ([]byte, error) {
	return Marshal(r.Source())
}

func stringList(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}
