// Package meta holds the per-entity type models that drive query compilation.
//
// A TypeModel describes one search index document shape: every field's
// internal (search-engine-native) path, its public aliases, its kind, and
// whether the search engine stores the subtree as nested documents. Models are
// declared as data in embedded CUE tables (models/*.cue), validated against
// schema.cue, and flattened by a single recursive walk into two maps:
//
//	alias -> internal path
//	internal path -> *Field
//
// NESTING:
//
// For an internal path a.b.c the candidate ancestors are a.b.c, a.b and a.
// NestedPath returns the first nested one scanning from the full path toward
// the root. NestedPaths returns all of them outermost first, which is the
// order in which compiled nested queries must wrap a leaf.
//
// SYNTHETIC ALIASES:
//
// A closed set of aliases does not name a stored field (_score, the has*
// shortcuts, GO term and gene set membership, chromosome locations). They are
// checked before the generic alias map; see Synthetic.
//
// Models are immutable after construction and safe for concurrent use.
package meta
