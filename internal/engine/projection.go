package engine

import (
	"github.com/roach88/portalql/internal/meta"
	"github.com/roach88/portalql/internal/pql"
	"github.com/roach88/portalql/internal/qerr"
)

// projection splits the selected aliases into indexed fields and source
// includes. Composite fields and the model's include list are fetched from
// the document body; everything else is returned as indexed values.
func (c *compiler) projection(p pql.Projection) (fields, includes []string, err error) {
	if p.IsEmpty() {
		return nil, nil, nil
	}
	aliases := p.Fields
	if p.All {
		aliases = c.model.DefaultProjection()
	}

	include := make(map[string]bool)
	for _, path := range c.model.IncludeFields() {
		include[path] = true
	}
	seen := make(map[string]bool)
	add := func(path string) {
		if seen[path] {
			return
		}
		seen[path] = true
		if f, ok := c.model.Field(path); include[path] || (ok && f.IsComposite()) {
			includes = append(includes, path)
			return
		}
		fields = append(fields, path)
	}

	for _, alias := range aliases {
		s := meta.SyntheticOf(alias)
		switch {
		case s == meta.SyntheticScore:
			// Scores come back with every hit.
			continue
		case s == meta.SyntheticGeneLocation || s == meta.SyntheticMutationLocation:
			if _, err := c.model.Resolve(alias); err != nil {
				return nil, nil, err
			}
			chrom, start, end, _ := s.LocationAliases()
			for _, a := range []string{chrom, start, end} {
				path, err := c.model.Resolve(a)
				if err != nil {
					return nil, nil, err
				}
				add(path)
			}
			continue
		case s.IsExpansion():
			return nil, nil, qerr.Invalid(alias, "%s cannot be selected", alias)
		}

		path, err := c.model.Resolve(alias)
		if err != nil {
			return nil, nil, err
		}
		if path == meta.ScoreAlias {
			continue
		}
		add(path)
	}
	return fields, includes, nil
}
