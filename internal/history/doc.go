// Package history keeps the identifier history of slugged entities consistent.
//
// Every identifier an owner has ever used is stored as a Record holding the
// name, the sequence number, the owner's root type and primary key. The Engine
// provides the four operations built on that table:
//
//   - ResolveSequence: picks the sequence number for a candidate name so the
//     composed identifier is free at the time of computation.
//   - Synchronize: after an owner is saved, makes its most recent record match
//     its live identifier, reclaiming an existing record with the same
//     (name, sequence) when there is one.
//   - FindOwner / OwnerExists: resolve an inbound identifier through the raw
//     key, the live identifier, the history table and a final raw key fallback.
//
// # Invariants
//
//   - (name, owner_type, sequence, scope) is unique across all records.
//   - The current record of an owner is its record with the greatest ID.
//     Ordering never relies on insertion order or timestamps.
//   - Records are never updated; they are created, or deleted on reclaim and
//     when the owner is destroyed.
//   - OwnerType is always the root of the owner's type hierarchy, resolved once
//     by TypeRegistry at configuration time.
//
// # Concurrency
//
// The Engine holds no mutable state and is safe for concurrent use. Synchronize
// must run inside the transaction that saves the owner; the Records it is given
// must be bound to that transaction. Two saves that resolve the same sequence
// concurrently are not serialized by the engine: the loser fails with a
// CodeUniqueViolation error from the store and the caller decides whether to
// retry.
package history
