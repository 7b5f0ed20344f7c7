// Package facet turns raw aggregation results into term facets.
//
// The engine compiles every facet alias into a terms aggregation and a
// sibling missing aggregation, possibly inside nested and filter layers.
// Normalize walks those layers by alias until it reaches the terms node,
// so it needs no knowledge of how the request was built beyond the alias
// names.
//
// PHENOTYPE BASELINES
//
// A few categorical facets (gender, vital status, age group) must always
// list their full domain, even when a filter leaves no document for some
// value. Their domain comes from an unfiltered facet query, the baseline,
// which a BaselineCache keeps per entity type for a bounded time. Terms in
// the baseline but absent from a result are appended with a zero count.
//
// REPOSITORY AGGREGATIONS
//
// Repository file requests carry three extra aggregations. Repository
// sizes report summed file sizes per repository instead of document
// counts, and the donor count reports the number of distinct donors.
package facet
