// Package esquery provides a small typed model of the search engine request
// DSL: boolean and nested queries, terms lookups, aggregations and the
// request envelope.
//
// Query and Aggregation are sealed interfaces using the marker method
// pattern, so the engine's output is always one of the shapes defined
// here. Every node renders itself with Source, and Marshal serializes a
// request as canonical JSON (sorted keys, NFC strings, no HTML escaping)
// so that compiled requests can be compared byte for byte in tests.
package esquery
