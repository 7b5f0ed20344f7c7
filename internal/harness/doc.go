// Package harness runs query conformance scenarios.
//
// A scenario names an entity type and a list of PQL statements. Each
// statement is compiled against the type model registry and the compiled
// request body is checked against the step's expectations. The harness
// never talks to a search engine, so scenarios pin down exactly what the
// compiler sends.
//
// # Scenario Format
//
// Scenarios are YAML files:
//
//	name: donor_filters
//	description: "Donor filters land in the filter context"
//	entity: donor-centric
//	options:
//	  post_filter: false
//	  max_term_count: 0
//	steps:
//	  - pql: "eq(gender,'male')"
//	    expect:
//	      render: "eq(gender,'male')"
//	      contains:
//	        - path: /query/bool/filter/0
//	          value: {term: {donor_sex: male}}
//	      absent:
//	        - /post_filter
//	  - pql: "eq(shoeSize,1)"
//	    expect:
//	      error: UNKNOWN_FIELD
//
// Paths are JSON pointers into the compiled body. A contains value is a
// subset match: objects may carry extra keys, arrays must match element
// by element.
//
// # Golden Files
//
// RunWithGolden snapshots the query of every step, or its error code, to
// testdata/golden/<scenario>.golden. Run with -update to regenerate.
package harness
