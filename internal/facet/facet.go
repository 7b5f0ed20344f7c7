package facet

import (
	"encoding/json"

	"github.com/roach88/portalql/internal/engine"
	"github.com/roach88/portalql/internal/meta"
	"github.com/roach88/portalql/internal/pql"
	"github.com/roach88/portalql/internal/qerr"
)

// TypeTerms is the only facet type.
const TypeTerms = "terms"

// maxDepth bounds the wrapper layers Normalize unwraps.
const maxDepth = 8

// Term is one facet value and its count.
type Term struct {
	Term  string `json:"term"`
	Count int64  `json:"count"`
}

// TermFacet is a normalized facet.
type TermFacet struct {
	Type    string `json:"type"`
	Total   int64  `json:"total"`
	Missing int64  `json:"missing"`
	Other   int64  `json:"other"`
	Terms   []Term `json:"terms"`
}

// Aliases returns the facet names a compiled request for p produces,
// including the repository aggregations of repository file requests.
func Aliases(p pql.Projection, model *meta.TypeModel) []string {
	if p.IsEmpty() {
		return nil
	}
	aliases := engine.FacetAliases(p, model)
	if model.Type() == meta.RepositoryFile {
		aliases = append(aliases, engine.RepoNamesAgg, engine.RepoSizesAgg, engine.DonorCountAgg)
	}
	return aliases
}

// Normalize converts the raw aggregations of a response into facets keyed
// by alias. Every alias must be present in raw; a missing one means the
// request and the model disagree and is an INTERNAL error.
func Normalize(raw map[string]json.RawMessage, aliases []string) (map[string]TermFacet, error) {
	out := make(map[string]TermFacet, len(aliases))
	for _, alias := range aliases {
		f, err := normalize(raw, alias)
		if err != nil {
			return nil, err
		}
		out[alias] = f
	}
	return out, nil
}

type node map[string]json.RawMessage

type bucket struct {
	Key         json.RawMessage `json:"key"`
	KeyAsString *string         `json:"key_as_string"`
	DocCount    int64           `json:"doc_count"`
}

func (b bucket) term() string {
	if b.KeyAsString != nil {
		return *b.KeyAsString
	}
	var s string
	if json.Unmarshal(b.Key, &s) == nil {
		return s
	}
	return string(b.Key)
}

type terms struct {
	Buckets  []json.RawMessage `json:"buckets"`
	SumOther int64             `json:"sum_other_doc_count"`
}

type count struct {
	DocCount int64 `json:"doc_count"`
}

type sum struct {
	Value float64 `json:"value"`
}

func normalize(raw map[string]json.RawMessage, alias string) (TermFacet, error) {
	level := node(raw)
	for depth := 0; depth < maxDepth; depth++ {
		data, ok := level[alias]
		if !ok {
			return TermFacet{}, qerr.Internal("aggregation %s missing from response", alias)
		}
		var n node
		if err := json.Unmarshal(data, &n); err != nil {
			return TermFacet{}, qerr.WrapInternal(err, "decode aggregation %s", alias)
		}
		if _, ok := n["buckets"]; ok {
			return termFacet(level, data, alias)
		}
		level = n
	}
	return TermFacet{}, qerr.Internal("aggregation %s nested deeper than %d layers", alias, maxDepth)
}

// termFacet builds the facet for alias from its terms node and the level
// holding it, where the missing sibling lives.
func termFacet(level node, data json.RawMessage, alias string) (TermFacet, error) {
	var t terms
	if err := json.Unmarshal(data, &t); err != nil {
		return TermFacet{}, qerr.WrapInternal(err, "decode terms aggregation %s", alias)
	}

	f := TermFacet{Type: TypeTerms, Other: t.SumOther, Terms: make([]Term, 0, len(t.Buckets))}
	if alias == engine.DonorCountAgg {
		f.Total = int64(len(t.Buckets))
		return f, nil
	}

	for i, rawBucket := range t.Buckets {
		term, n, err := bucketCount(rawBucket, alias)
		if err != nil {
			return TermFacet{}, qerr.WrapInternal(err, "decode bucket %d of %s", i, alias)
		}
		f.Terms = append(f.Terms, Term{Term: term, Count: n})
		f.Total += n
	}

	if alias == engine.RepoSizesAgg {
		return f, nil
	}
	missing, ok := level[engine.MissingAggName(alias)]
	if !ok {
		return TermFacet{}, qerr.Internal("aggregation %s missing from response", engine.MissingAggName(alias))
	}
	var c count
	if err := json.Unmarshal(missing, &c); err != nil {
		return TermFacet{}, qerr.WrapInternal(err, "decode missing aggregation of %s", alias)
	}
	f.Missing = c.DocCount
	return f, nil
}

// bucketCount returns a bucket's term and its count. Repository size
// buckets count summed bytes, and buckets carrying a reverse nested
// sub-aggregation named after the facet count parent documents.
func bucketCount(data json.RawMessage, alias string) (string, int64, error) {
	var b bucket
	if err := json.Unmarshal(data, &b); err != nil {
		return "", 0, err
	}
	var subs node
	if err := json.Unmarshal(data, &subs); err != nil {
		return "", 0, err
	}

	if alias == engine.RepoSizesAgg {
		var s sum
		if raw, ok := subs[engine.RepoFileSize]; ok {
			if err := json.Unmarshal(raw, &s); err != nil {
				return "", 0, err
			}
		}
		return b.term(), int64(s.Value), nil
	}
	if raw, ok := subs[alias]; ok {
		var c count
		if err := json.Unmarshal(raw, &c); err != nil {
			return "", 0, err
		}
		return b.term(), c.DocCount, nil
	}
	return b.term(), b.DocCount, nil
}
