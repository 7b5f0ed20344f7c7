package meta

// Synthetic identifies an alias that does not name a stored field.
//
// Synthetic aliases are resolved before the model's generic alias map so the
// special cases stay in one place and can be matched exhaustively.
type Synthetic int

const (
	// NotSynthetic marks an ordinary alias.
	NotSynthetic Synthetic = iota

	// SyntheticScore is the relevance score. It is sortable but not indexed.
	SyntheticScore

	// SyntheticHasPathway, SyntheticHasGoTerm, SyntheticHasCuratedSet and
	// SyntheticHasCompound are shortcuts for the gene annotation arrays.
	SyntheticHasPathway
	SyntheticHasGoTerm
	SyntheticHasCuratedSet
	SyntheticHasCompound

	// SyntheticGoTermID matches a GO term in any of the three ontologies.
	SyntheticGoTermID

	// SyntheticGeneSetID matches a GO term, pathway or curated set id.
	SyntheticGeneSetID

	// SyntheticGeneLocation and SyntheticMutationLocation match chromosome
	// coordinates written as chr:start-end.
	SyntheticGeneLocation
	SyntheticMutationLocation
)

// Well-known synthetic alias names.
const (
	ScoreAlias            = "_score"
	HasPathwayAlias       = "hasPathway"
	HasGoTermAlias        = "hasGoTerm"
	HasCuratedSetAlias    = "hasCuratedSet"
	HasCompoundAlias      = "hasCompound"
	GeneGoTermIDAlias     = "gene.goTermId"
	GeneSetIDAlias        = "gene.geneSetId"
	GeneLocationAlias     = "gene.location"
	MutationLocationAlias = "mutation.location"

	GenePathwayIDAlias    = "gene.pathwayId"
	GeneCuratedSetIDAlias = "gene.curatedSetId"
	GeneCompoundIDAlias   = "gene.compoundId"
)

// Internal alias names shared by every model.
const (
	InternalLookupIndex = "lookup.index"
	InternalLookupPath  = "lookup.path"
	InternalLookupType  = "lookup.type"

	InternalBiologicalProcess = "go_term.biological_process"
	InternalCellularComponent = "go_term.cellular_component"
	InternalMolecularFunction = "go_term.molecular_function"
)

var syntheticByAlias = map[string]Synthetic{
	ScoreAlias:            SyntheticScore,
	HasPathwayAlias:       SyntheticHasPathway,
	HasGoTermAlias:        SyntheticHasGoTerm,
	HasCuratedSetAlias:    SyntheticHasCuratedSet,
	HasCompoundAlias:      SyntheticHasCompound,
	GeneGoTermIDAlias:     SyntheticGoTermID,
	GeneSetIDAlias:        SyntheticGeneSetID,
	GeneLocationAlias:     SyntheticGeneLocation,
	MutationLocationAlias: SyntheticMutationLocation,
}

// SyntheticOf returns the synthetic kind of alias, or NotSynthetic.
func SyntheticOf(alias string) Synthetic {
	return syntheticByAlias[alias]
}

// String returns the alias the synthetic kind is spelled as.
func (s Synthetic) String() string {
	switch s {
	case SyntheticScore:
		return ScoreAlias
	case SyntheticHasPathway:
		return HasPathwayAlias
	case SyntheticHasGoTerm:
		return HasGoTermAlias
	case SyntheticHasCuratedSet:
		return HasCuratedSetAlias
	case SyntheticHasCompound:
		return HasCompoundAlias
	case SyntheticGoTermID:
		return GeneGoTermIDAlias
	case SyntheticGeneSetID:
		return GeneSetIDAlias
	case SyntheticGeneLocation:
		return GeneLocationAlias
	case SyntheticMutationLocation:
		return MutationLocationAlias
	default:
		return ""
	}
}

// Redirect returns the ordinary alias a has* shortcut stands for.
// GO term shortcuts redirect to the synthetic GO term alias.
func (s Synthetic) Redirect() (string, bool) {
	switch s {
	case SyntheticHasPathway:
		return GenePathwayIDAlias, true
	case SyntheticHasCuratedSet:
		return GeneCuratedSetIDAlias, true
	case SyntheticHasCompound:
		return GeneCompoundIDAlias, true
	case SyntheticHasGoTerm:
		return GeneGoTermIDAlias, true
	default:
		return "", false
	}
}

// IsExpansion reports whether the engine rewrites filters on the alias into
// a disjunction or range over several real fields.
func (s Synthetic) IsExpansion() bool {
	switch s {
	case SyntheticGoTermID, SyntheticGeneSetID, SyntheticGeneLocation, SyntheticMutationLocation:
		return true
	}
	return false
}

// LocationAliases returns the chromosome, start and end aliases backing a
// location alias.
func (s Synthetic) LocationAliases() (chromosome, start, end string, ok bool) {
	switch s {
	case SyntheticGeneLocation:
		return "gene.chromosome", "gene.start", "gene.end", true
	case SyntheticMutationLocation:
		return "mutation.chromosome", "mutation.start", "mutation.end", true
	}
	return "", "", "", false
}

// GoTermInternals lists the internal aliases of the three GO ontologies.
var GoTermInternals = []string{
	InternalCellularComponent,
	InternalBiologicalProcess,
	InternalMolecularFunction,
}
