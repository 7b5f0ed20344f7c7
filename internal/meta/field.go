package meta

// Kind is the primitive or composite kind of a field.
type Kind string

const (
	KindString  Kind = "string"
	KindLong    Kind = "long"
	KindDouble  Kind = "double"
	KindBoolean Kind = "boolean"
	KindObject  Kind = "object"
	KindArray   Kind = "array"
)

func (k Kind) valid() bool {
	switch k {
	case KindString, KindLong, KindDouble, KindBoolean, KindObject, KindArray:
		return true
	}
	return false
}

// Field describes one node of a type model's field tree.
type Field struct {
	// Name is the local name of the field within its parent.
	Name string

	// Path is the dot-separated internal path from the document root.
	Path string

	// Kind is the field kind. Arrays carry their element kind in Elem.
	Kind Kind

	// Elem is the element kind of an array field.
	Elem Kind

	// Aliases are the public names resolving to Path.
	Aliases []string

	// Nested marks a subtree indexed as independent nested documents.
	Nested bool

	// Identifiable marks primary-key-like fields that accept entity set
	// references as values.
	Identifiable bool

	// LookupType names the terms-lookup document type holding sets of this
	// field's values. Only set on identifiable fields.
	LookupType string

	// Children are the child fields of object and array-of-object fields.
	Children []*Field
}

// IsComposite reports whether the field is an object or an array of objects.
func (f *Field) IsComposite() bool {
	return f.Kind == KindObject || (f.Kind == KindArray && f.Elem == KindObject)
}

// IsNumeric reports whether the field (or its array elements) are numbers.
func (f *Field) IsNumeric() bool {
	k := f.Kind
	if k == KindArray {
		k = f.Elem
	}
	return k == KindLong || k == KindDouble
}

// IsComparable reports whether range operators apply to the field.
func (f *Field) IsComparable() bool {
	return f.IsNumeric()
}
