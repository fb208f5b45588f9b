// Package store provides SQLite-backed durable storage for dirsync.
//
// The store holds:
//   - Items and their ordered, repeatable metadata
//   - Collections and relationship types seeded from the sync profile
//   - Relationships: the typed graph linking CV entities, clones and
//     Directorio shadow copies
//   - Workflow items with compare-and-set state transitions
//   - Dedup decisions
//   - The content-addressed event log and the provenance audit trail
//
// # Critical Patterns
//
// Logical time: every row is stamped with seq from a single logical clock,
// never wall time. Reads order by seq ASC with a binary id tie-break.
//
// Idempotency: events are content-addressed (item, kind, version) and
// inserted with ON CONFLICT DO NOTHING, so redelivery is detectable.
// Workflow transitions only apply if the stored state still matches.
//
// Referential integrity: an item referenced by a relationship cannot be
// deleted; callers unlink first.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
//
// The pool holds a single connection. Result sets are fully drained before
// the next query is issued.
package store
