package meta

import (
	"embed"
	"fmt"
	"io/fs"
	"path"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"
)

//go:embed schema.cue models/*.cue
var modelFS embed.FS

// LoadError reports a malformed model table.
type LoadError struct {
	Model   string
	Field   string
	Message string
	Pos     token.Pos
}

func (e *LoadError) Error() string {
	where := e.Model
	if e.Pos.IsValid() {
		where = fmt.Sprintf("%s:%d:%d", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column())
	}
	if e.Field != "" {
		return fmt.Sprintf("%s: %s: %s", where, e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", where, e.Message)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(model string, err error) error {
	if err == nil {
		return nil
	}
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}
	first := errs[0]
	le := &LoadError{Model: model, Field: "cue", Message: first.Error()}
	if positions := errors.Positions(first); len(positions) > 0 {
		le.Pos = positions[0]
	}
	return le
}

// loadEmbedded compiles every embedded model table.
func loadEmbedded() ([]*TypeModel, error) {
	ctx := cuecontext.New()
	schema, err := compileSchema(ctx)
	if err != nil {
		return nil, err
	}

	entries, err := fs.ReadDir(modelFS, "models")
	if err != nil {
		return nil, fmt.Errorf("read embedded models: %w", err)
	}

	models := make([]*TypeModel, 0, len(entries))
	for _, e := range entries {
		name := path.Join("models", e.Name())
		src, err := modelFS.ReadFile(name)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", name, err)
		}
		m, err := parseModel(ctx, schema, name, src)
		if err != nil {
			return nil, err
		}
		models = append(models, m)
	}
	return models, nil
}

// ParseModel compiles a single CUE model table. The filename is used in
// error positions only.
func ParseModel(filename string, src []byte) (*TypeModel, error) {
	ctx := cuecontext.New()
	schema, err := compileSchema(ctx)
	if err != nil {
		return nil, err
	}
	return parseModel(ctx, schema, filename, src)
}

func compileSchema(ctx *cue.Context) (cue.Value, error) {
	src, err := modelFS.ReadFile("schema.cue")
	if err != nil {
		return cue.Value{}, fmt.Errorf("read schema: %w", err)
	}
	v := ctx.CompileBytes(src, cue.Filename("schema.cue"))
	if err := v.Err(); err != nil {
		return cue.Value{}, formatCUEError("schema", err)
	}
	return v.LookupPath(cue.ParsePath("#Model")), nil
}

func parseModel(ctx *cue.Context, schema cue.Value, filename string, src []byte) (*TypeModel, error) {
	v := ctx.CompileBytes(src, cue.Filename(filename))
	if err := v.Err(); err != nil {
		return nil, formatCUEError(filename, err)
	}

	v = schema.Unify(v)
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return nil, formatCUEError(filename, err)
	}

	var spec modelSpec
	if err := v.Decode(&spec); err != nil {
		return nil, formatCUEError(filename, err)
	}

	fields, err := parseFields(filename, v.LookupPath(cue.ParsePath("fields")))
	if err != nil {
		return nil, err
	}
	return build(filename, spec, fields)
}

// modelSpec is the flat part of a model table. Field trees are walked
// separately so every node keeps its source position.
type modelSpec struct {
	Type       string            `json:"type"`
	Prefix     string            `json:"prefix"`
	LookupType string            `json:"lookupType"`
	Facets     []string          `json:"facets"`
	Projection []string          `json:"projection"`
	Include    []string          `json:"include"`
	Parents    []string          `json:"parentCounted"`
	Internal   map[string]string `json:"internal"`
}

type fieldSpec struct {
	Name         string
	Kind         Kind
	Elem         Kind
	Aliases      []string
	Nested       bool
	Identifiable bool
	Lookup       string
	Fields       []fieldSpec
	Pos          token.Pos
}

// parseFields walks a CUE list of field structs recursively.
func parseFields(model string, v cue.Value) ([]fieldSpec, error) {
	if !v.Exists() {
		return nil, nil
	}
	iter, err := v.List()
	if err != nil {
		return nil, formatCUEError(model, err)
	}

	var specs []fieldSpec
	for iter.Next() {
		fv := iter.Value()
		spec := fieldSpec{Pos: fv.Pos()}

		if spec.Name, err = fv.LookupPath(cue.ParsePath("name")).String(); err != nil {
			return nil, formatCUEError(model, err)
		}
		kind, err := fv.LookupPath(cue.ParsePath("kind")).String()
		if err != nil {
			return nil, formatCUEError(model, err)
		}
		spec.Kind = Kind(kind)

		if ev := fv.LookupPath(cue.ParsePath("elem")); ev.Exists() {
			elem, err := ev.String()
			if err != nil {
				return nil, formatCUEError(model, err)
			}
			spec.Elem = Kind(elem)
		}
		if av := fv.LookupPath(cue.ParsePath("aliases")); av.Exists() {
			if err := av.Decode(&spec.Aliases); err != nil {
				return nil, formatCUEError(model, err)
			}
		}
		if nv := fv.LookupPath(cue.ParsePath("nested")); nv.Exists() {
			if spec.Nested, err = nv.Bool(); err != nil {
				return nil, formatCUEError(model, err)
			}
		}
		if iv := fv.LookupPath(cue.ParsePath("identifiable")); iv.Exists() {
			if spec.Identifiable, err = iv.Bool(); err != nil {
				return nil, formatCUEError(model, err)
			}
		}
		if lv := fv.LookupPath(cue.ParsePath("lookup")); lv.Exists() {
			if spec.Lookup, err = lv.String(); err != nil {
				return nil, formatCUEError(model, err)
			}
		}

		if spec.Fields, err = parseFields(model, fv.LookupPath(cue.ParsePath("fields"))); err != nil {
			return nil, err
		}
		specs = append(specs, spec)
	}
	return specs, nil
}

// build flattens the field tree into the alias and path maps.
func build(filename string, spec modelSpec, specs []fieldSpec) (*TypeModel, error) {
	m := &TypeModel{
		typ:        EntityType(spec.Type),
		prefix:     spec.Prefix,
		lookupType: spec.LookupType,
		byAlias:    make(map[string]string),
		byPath:     make(map[string]*Field),
		internal: map[string]string{
			InternalLookupIndex: DefaultLookupIndex,
			InternalLookupPath:  DefaultLookupPath,
		},
		facets:     spec.Facets,
		projection: spec.Projection,
		include:    spec.Include,
		parents:    spec.Parents,
	}
	if spec.LookupType != "" {
		m.internal[InternalLookupType] = spec.LookupType
	}
	for k, v := range spec.Internal {
		m.internal[k] = v
	}

	fields, err := m.walk(filename, "", specs)
	if err != nil {
		return nil, err
	}
	m.fields = fields

	for _, alias := range m.facets {
		if _, err := m.Resolve(alias); err != nil {
			return nil, &LoadError{Model: filename, Field: alias, Message: "facet alias does not resolve"}
		}
	}
	for _, alias := range m.parents {
		if !m.IsFacet(alias) || !m.IsNested(alias) {
			return nil, &LoadError{Model: filename, Field: alias, Message: "parent counted facet must be a nested facet"}
		}
	}
	for _, alias := range m.projection {
		if _, err := m.Resolve(alias); err != nil {
			return nil, &LoadError{Model: filename, Field: alias, Message: "projection alias does not resolve"}
		}
	}
	return m, nil
}

func (m *TypeModel) walk(filename, parent string, specs []fieldSpec) ([]*Field, error) {
	fields := make([]*Field, 0, len(specs))
	for _, s := range specs {
		p := s.Name
		if parent != "" {
			p = parent + "." + s.Name
		}
		if !s.Kind.valid() {
			return nil, &LoadError{Model: filename, Field: p, Message: fmt.Sprintf("invalid kind %q", s.Kind), Pos: s.Pos}
		}
		if _, dup := m.byPath[p]; dup {
			return nil, &LoadError{Model: filename, Field: p, Message: "duplicate path", Pos: s.Pos}
		}

		f := &Field{
			Name:         s.Name,
			Path:         p,
			Kind:         s.Kind,
			Elem:         s.Elem,
			Aliases:      s.Aliases,
			Nested:       s.Nested,
			Identifiable: s.Identifiable,
		}
		if f.Kind == KindArray && f.Elem == "" {
			f.Elem = KindObject
		}
		if f.Nested && !f.IsComposite() {
			return nil, &LoadError{Model: filename, Field: p, Message: "only objects and arrays of objects can be nested", Pos: s.Pos}
		}
		if f.Identifiable {
			f.LookupType = m.identifiableLookupType(s)
		}
		m.byPath[p] = f

		for _, alias := range s.Aliases {
			if SyntheticOf(alias) != NotSynthetic {
				return nil, &LoadError{Model: filename, Field: p, Message: fmt.Sprintf("alias %q is reserved", alias), Pos: s.Pos}
			}
			if prev, dup := m.byAlias[alias]; dup {
				return nil, &LoadError{Model: filename, Field: p, Message: fmt.Sprintf("alias %q already maps to %s", alias, prev), Pos: s.Pos}
			}
			m.byAlias[alias] = p
		}

		children, err := m.walk(filename, p, s.Fields)
		if err != nil {
			return nil, err
		}
		f.Children = children
		fields = append(fields, f)
	}
	return fields, nil
}

// identifiableLookupType picks the lookup type for an identifiable field:
// an explicit lookup attribute wins, the bare "id" alias uses the model's
// own type, and a prefixed alias such as gene.id uses that entity's type.
func (m *TypeModel) identifiableLookupType(s fieldSpec) string {
	if s.Lookup != "" {
		return s.Lookup
	}
	for _, alias := range s.Aliases {
		if alias == "id" {
			return m.lookupType
		}
	}
	for _, alias := range s.Aliases {
		prefix, _, ok := strings.Cut(alias, ".")
		if !ok {
			continue
		}
		if t, ok := lookupTypeByPrefix[prefix]; ok {
			return t
		}
	}
	return m.lookupType
}
