package engine

import (
	"strconv"
	"strings"

	"github.com/roach88/portalql/internal/esquery"
	"github.com/roach88/portalql/internal/meta"
	"github.com/roach88/portalql/internal/pql"
	"github.com/roach88/portalql/internal/qerr"
)

// geneSetTarget expands gene.goTermId into the three GO ontology arrays,
// and gene.geneSetId into those plus the pathway and curated set arrays.
func (c *compiler) geneSetTarget(alias string, s meta.Synthetic) (target, error) {
	if _, err := c.model.Resolve(alias); err != nil {
		return target{}, err
	}

	var paths []string
	for _, name := range meta.GoTermInternals {
		p, err := c.model.InternalField(name)
		if err != nil {
			return target{}, err
		}
		paths = append(paths, p)
	}
	if s == meta.SyntheticGeneSetID {
		for _, a := range []string{meta.GenePathwayIDAlias, meta.GeneCuratedSetIDAlias} {
			p, err := c.model.Resolve(a)
			if err != nil {
				return target{}, err
			}
			paths = append(paths, p)
		}
	}

	f, ok := c.model.Field(paths[0])
	if !ok {
		return target{}, qerr.Internal("%s model: GO term path %s has no field", c.model.Type(), paths[0])
	}
	return target{alias: alias, paths: paths, field: f}, nil
}

// location compiles eq, ne and in on a location alias. Each value is a
// chromosome region; the regions are OR'd and the result wrapped once.
func (c *compiler) location(f pql.Filter, s meta.Synthetic, scope string) (esquery.Query, error) {
	alias := pql.FieldOf(f)
	if _, err := c.model.Resolve(alias); err != nil {
		return nil, err
	}

	var (
		values []pql.Value
		negate bool
	)
	switch n := f.(type) {
	case *pql.Eq:
		values = []pql.Value{n.Value}
	case *pql.Ne:
		values, negate = []pql.Value{n.Value}, true
	case *pql.In:
		values = n.Values
	default:
		return nil, qerr.Invalid(alias, "%s only supports eq, ne and in", alias)
	}
	if len(values) == 0 {
		return nil, qerr.Invalid(alias, "in(%s) needs at least one value", alias)
	}

	chromAlias, startAlias, endAlias, _ := s.LocationAliases()
	chrom, err := c.model.Resolve(chromAlias)
	if err != nil {
		return nil, err
	}
	start, err := c.model.Resolve(startAlias)
	if err != nil {
		return nil, err
	}
	end, err := c.model.Resolve(endAlias)
	if err != nil {
		return nil, err
	}

	regions := make([]esquery.Query, 0, len(values))
	for _, v := range values {
		text, ok := v.(string)
		if !ok {
			return nil, qerr.Invalid(alias, "location %v is not a string", v)
		}
		loc, err := ParseLocation(text)
		if err != nil {
			return nil, qerr.Invalid(alias, "%s", err.Error())
		}
		regions = append(regions, loc.query(chrom, start, end))
	}

	t := target{alias: alias, paths: []string{chrom}}
	q, err := c.wrap(esquery.Or(regions...), t, scope)
	if err != nil {
		return nil, err
	}
	if negate {
		return esquery.Not(q), nil
	}
	return q, nil
}

// Location is a chromosome region. Start and End are zero when absent.
type Location struct {
	Chromosome string
	Start      int64
	End        int64
}

// ParseLocation parses [chr]<name>[:start[-end]]. Separators inside the
// numbers (1,000,000) are ignored.
func ParseLocation(s string) (Location, error) {
	input := s
	s = strings.TrimSpace(s)
	if len(s) >= 3 && strings.EqualFold(s[:3], "chr") {
		s = s[3:]
	}

	name, span, hasSpan := strings.Cut(s, ":")
	if name == "" {
		return Location{}, &LocationError{Input: input, Reason: "missing chromosome name"}
	}
	loc := Location{Chromosome: name}
	if !hasSpan {
		return loc, nil
	}

	first, second, hasEnd := strings.Cut(span, "-")
	var err error
	if loc.Start, err = parsePosition(first); err != nil {
		return Location{}, &LocationError{Input: input, Reason: "bad start position"}
	}
	if !hasEnd {
		return loc, nil
	}
	if loc.End, err = parsePosition(second); err != nil {
		return Location{}, &LocationError{Input: input, Reason: "bad end position"}
	}
	if loc.End < loc.Start {
		return Location{}, &LocationError{Input: input, Reason: "end before start"}
	}
	return loc, nil
}

func parsePosition(s string) (int64, error) {
	n, err := strconv.ParseInt(strings.ReplaceAll(strings.TrimSpace(s), ",", ""), 10, 64)
	if err == nil && n <= 0 {
		return 0, strconv.ErrRange
	}
	return n, err
}

// LocationError reports a malformed location.
type LocationError struct {
	Input  string
	Reason string
}

func (e *LocationError) Error() string {
	return "invalid location " + strconv.Quote(e.Input) + ": " + e.Reason
}

// query matches features on the chromosome. A region matches features that
// lie entirely inside it; a single position matches features covering it.
func (l Location) query(chrom, start, end string) esquery.Query {
	clauses := []esquery.Query{&esquery.TermQuery{Field: chrom, Value: l.Chromosome}}
	switch {
	case l.End > 0:
		clauses = append(clauses,
			&esquery.RangeQuery{Field: start, Gte: l.Start},
			&esquery.RangeQuery{Field: end, Lte: l.End})
	case l.Start > 0:
		clauses = append(clauses,
			&esquery.RangeQuery{Field: start, Lte: l.Start},
			&esquery.RangeQuery{Field: end, Gte: l.Start})
	}
	return &esquery.BoolQuery{Must: clauses}
}
