// Package store provides SQLite-backed storage for slugged entities and their
// identifier history.
//
// Two tables:
//   - owners: one row per entity, with its live identifier in slug
//   - slug_history: every (name, sequence) an entity has used
//
// # Ordering
//
// History queries are ordered by sequence descending, then id descending, so
// the first row of a conflict query is the highest sequence in use. id is
// AUTOINCREMENT and never reused: the greatest id of an owner is its current
// record even after other records were reclaimed.
//
// # Uniqueness
//
// (name, owner_type, sequence, scope) is unique with NULL scopes compared as
// equal. Violations are reported wrapped in history.ErrDuplicate.
//
// # Locking
//
// SQLite has no row locks. Every transaction starts with BEGIN IMMEDIATE and
// the pool holds a single connection, so a transaction owns the write lock
// from its first statement and LockRecords needs no extra clause.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
