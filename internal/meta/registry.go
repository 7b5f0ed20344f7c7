package meta

import (
	"fmt"
	"sort"
	"sync"

	"github.com/roach88/portalql/internal/qerr"
)

// EntityType names a search index document type.
type EntityType string

const (
	DonorCentric       EntityType = "donor-centric"
	GeneCentric        EntityType = "gene-centric"
	MutationCentric    EntityType = "mutation-centric"
	ObservationCentric EntityType = "observation-centric"
	Project            EntityType = "project"
	RepositoryFile     EntityType = "repository-file"
	GeneSet            EntityType = "gene-set"
	Drug               EntityType = "drug"
)

// shortNames are the entity names clients commonly use.
var shortNames = map[string]EntityType{
	"donor":       DonorCentric,
	"donors":      DonorCentric,
	"gene":        GeneCentric,
	"genes":       GeneCentric,
	"mutation":    MutationCentric,
	"mutations":   MutationCentric,
	"observation": ObservationCentric,
	"file":        RepositoryFile,
	"files":       RepositoryFile,
	"geneset":     GeneSet,
	"compound":    Drug,
}

// ParseEntityType accepts a full entity type name or a short alias.
func ParseEntityType(s string) (EntityType, error) {
	if t, ok := shortNames[s]; ok {
		return t, nil
	}
	switch t := EntityType(s); t {
	case DonorCentric, GeneCentric, MutationCentric, ObservationCentric,
		Project, RepositoryFile, GeneSet, Drug:
		return t, nil
	}
	return "", qerr.Invalid("", "unknown entity type %q", s)
}

// Registry holds one TypeModel per entity type.
type Registry struct {
	models map[EntityType]*TypeModel
}

// NewRegistry builds a registry from the embedded model tables.
func NewRegistry() (*Registry, error) {
	models, err := loadEmbedded()
	if err != nil {
		return nil, fmt.Errorf("load type models: %w", err)
	}
	return NewRegistryFrom(models...)
}

// NewRegistryFrom builds a registry from already parsed models.
func NewRegistryFrom(models ...*TypeModel) (*Registry, error) {
	r := &Registry{models: make(map[EntityType]*TypeModel, len(models))}
	for _, m := range models {
		if _, dup := r.models[m.typ]; dup {
			return nil, fmt.Errorf("duplicate type model %q", m.typ)
		}
		r.models[m.typ] = m
	}
	return r, nil
}

var (
	defaultOnce     sync.Once
	defaultRegistry *Registry
	defaultErr      error
)

// Default returns the process-wide registry of embedded models, built once.
func Default() (*Registry, error) {
	defaultOnce.Do(func() {
		defaultRegistry, defaultErr = NewRegistry()
	})
	return defaultRegistry, defaultErr
}

// Model returns the type model for an entity type.
func (r *Registry) Model(t EntityType) (*TypeModel, error) {
	m, ok := r.models[t]
	if !ok {
		return nil, qerr.Invalid("", "no type model for entity type %q", t)
	}
	return m, nil
}

// MustModel returns the type model for t or panics.
func (r *Registry) MustModel(t EntityType) *TypeModel {
	m, err := r.Model(t)
	if err != nil {
		panic(err)
	}
	return m
}

// Types returns the registered entity types, sorted.
func (r *Registry) Types() []EntityType {
	types := make([]EntityType, 0, len(r.models))
	for t := range r.models {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}
