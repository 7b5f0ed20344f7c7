// Package search executes compiled requests against the search engine.
//
// The compiler packages never perform I/O. Everything that touches the
// network goes through an Executor, which owns three round-trip shapes.
//
// SINGLE AND BATCHED
//
// Search sends one request body. MultiSearch sends N bodies in one
// round trip and requires exactly N response items back. A short or long
// response is an INTERNAL error and nothing is returned, not even the
// items that did succeed.
//
// HARVESTING
//
// Harvest walks a result set with a scroll cursor and collects one value
// per hit (the document id, or the values of a chosen field). It stops when
// the engine has no more hits or when the caller's limit is reached. The
// limit is an early exit and is not reported as an error. The cursor is
// always released before Harvest returns.
//
// Transient failures such as timeouts are returned to the caller as they
// are. The executor does not retry.
package search
