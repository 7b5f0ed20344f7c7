// Package sets materializes entity sets.
//
// An entity set is the result of a filter frozen into a terms-lookup
// document. Materializing one compiles the filter, harvests the matching
// ids with a scroll cursor (up to a cap), writes them to a lookup document
// and records the set in the store. Later queries select the members with
// an ES:<id> value on the entity's id field, which the engine compiles into
// a terms lookup, so the request never carries the ids themselves.
//
// Ordering of the registry comes from a logical Clock resumed from the
// store on startup. Set ids come from an IDGenerator; production uses
// UUIDv7 so ids sort by creation time.
//
// Lookup documents are never deleted. Deleting a set removes its registry
// row and marks the document transient for out-of-band cleanup.
package sets
