package search

import (
	"encoding/json"
	"fmt"
	"io"
)

// Response is a decoded search response.
type Response struct {
	// Total is the number of matching documents. It may be a lower bound
	// unless the request asked for exact totals.
	Total int64

	Hits []Hit

	// Aggregations holds each top-level aggregation result undecoded; the
	// facet normalizer knows their shapes.
	Aggregations map[string]json.RawMessage

	scrollID string
}

// Hit is one matching document.
type Hit struct {
	ID     string
	Score  float64
	Fields map[string][]any
	Source json.RawMessage
}

// Values returns the hit's values for field as strings. The id pseudo
// field "_id" yields the document id.
func (h Hit) Values(field string) []string {
	if field == "" || field == "_id" {
		return []string{h.ID}
	}
	raw := h.Fields[field]
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		switch val := v.(type) {
		case string:
			out = append(out, val)
		case nil:
		default:
			out = append(out, fmt.Sprint(val))
		}
	}
	return out
}

type rawResponse struct {
	ScrollID string `json:"_scroll_id"`
	Hits     struct {
		Total *struct {
			Value int64 `json:"value"`
		} `json:"total"`
		Hits []rawHit `json:"hits"`
	} `json:"hits"`
	Aggregations map[string]json.RawMessage `json:"aggregations"`
}

type rawHit struct {
	ID     string           `json:"_id"`
	Score  *float64         `json:"_score"`
	Fields map[string][]any `json:"fields"`
	Source json.RawMessage  `json:"_source"`
}

func (r *rawResponse) response() *Response {
	resp := &Response{
		Aggregations: r.Aggregations,
		Hits:         make([]Hit, len(r.Hits.Hits)),
		scrollID:     r.ScrollID,
	}
	if r.Hits.Total != nil {
		resp.Total = r.Hits.Total.Value
	}
	for i, h := range r.Hits.Hits {
		hit := Hit{ID: h.ID, Fields: h.Fields, Source: h.Source}
		if h.Score != nil {
			hit.Score = *h.Score
		}
		resp.Hits[i] = hit
	}
	return resp
}

func decodeResponse(body io.Reader) (*Response, error) {
	var raw rawResponse
	if err := json.NewDecoder(body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}
	return raw.response(), nil
}
