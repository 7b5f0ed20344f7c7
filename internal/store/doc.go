// Package store provides SQLite-backed storage for the entity set registry.
//
// Each row describes one materialized entity set: its entity type, the
// lookup type of its terms-lookup document, a caller-supplied name, the
// definition it was built from (stored as canonical JSON) and its
// materialization state and size.
//
// # Invariants
//
// Identity: rows are keyed by the set id, which is also the id of the
// lookup document. Inserting an existing id is a no-op.
//
// Ordering: listings use ORDER BY seq ASC, id ASC COLLATE BINARY. seq is a
// logical clock owned by the caller, never a timestamp, so listings are
// identical across runs with the same inputs.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
