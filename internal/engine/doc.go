// Package engine compiles PQL statements into search engine requests.
//
// Compilation is a pure function of a statement and a type model. It does
// no I/O and holds no state, so a single Engine may be shared by every
// request goroutine.
//
// COMPILATION ORDER:
//
//  1. Every alias in select, facets, sort and the filter tree is resolved
//     against the type model. The first unknown alias aborts compilation
//     with an UNKNOWN_FIELD error.
//  2. The filter tree is compiled bottom-up. A leaf on a nested field is
//     wrapped in one nested query per nested ancestor, outermost first.
//     Inside nested(path, ...) only ancestors deeper than path are added.
//  3. Values of the form ES:<uuid> on identifiable fields become terms
//     lookups against the side index. Member ids never appear inline.
//  4. The reserved _missing value splits a value list into an
//     absent-or-null clause OR'd with the remaining terms. The disjunction
//     is wrapped once, not per branch.
//  5. Facets become a terms and missing aggregation pair per alias, inside
//     a nested aggregation when the field is nested.
//  6. Sort, projection and pagination are translated directly.
//
// FILTER PLACEMENT:
//
// By default filters go to query.bool.filter and facets count the filtered
// set. With Options.PostFilter the filter moves to post_filter and every
// facet aggregation is wrapped in a filter aggregation carrying the filter
// minus the facet's own field, so a facet still lists the values a user
// could add to the current selection.
package engine
