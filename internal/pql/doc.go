// Package pql provides the abstract syntax tree and parser for PQL, the
// compact textual query language of the portal.
//
// A PQL statement is a comma-separated list of function-call clauses:
//
//	select(id,gender),eq(gender,"male"),in(state,"live","deceased"),
//	facets(gender),sort(-ageAtDiagnosis),limit(0,10)
//
// Filter clauses at the top level are combined under an implicit and().
//
// The parser performs no schema-aware resolution. Field names are kept as
// written so the same statement can be compiled against different type
// models; alias resolution belongs to the engine package.
//
// SEALED INTERFACES:
//
// Filter is a sealed interface using the marker method pattern. Only types
// in this package implement it, so compilers can switch exhaustively:
//
//	switch f := filter.(type) {
//	case *Eq:
//	case *In:
//	...
//	}
//
// Render produces canonical PQL text for a statement. Parse(Render(s)) is
// structurally equal to s.
package pql
