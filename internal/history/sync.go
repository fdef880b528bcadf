package history

import (
	"context"
	"fmt"
	"log/slog"
)

// Owner is the post-save view of an owning entity.
type Owner struct {
	Key   int64
	Type  string
	Slug  string
	Scope string
}

// SyncOutcome describes what Synchronize did.
type SyncOutcome string

const (
	// SyncSkipped: the owner has no identifier.
	SyncSkipped SyncOutcome = "skipped"
	// SyncUnchanged: the current record already matches.
	SyncUnchanged SyncOutcome = "unchanged"
	// SyncCreated: a new record was inserted.
	SyncCreated SyncOutcome = "created"
	// SyncReclaimed: an existing record with the same identifier was deleted
	// and a new one inserted for the owner.
	SyncReclaimed SyncOutcome = "reclaimed"
)

// SyncResult reports the effect of Synchronize.
type SyncResult struct {
	Outcome SyncOutcome

	// Record is the owner's current record after the call. Zero when skipped.
	Record Record

	// Reclaimed lists the records deleted to free the identifier.
	Reclaimed []Record
}

// Synchronize makes the owner's current record match its live identifier.
//
// recs must be bound to the transaction that saved the owner. Calling it twice
// without an identifier change is a no-op. When the identifier differs from
// the current record, any record holding the same (name, sequence) under the
// owner's root type and scope is locked and deleted, whoever owns it, and a new
// record is inserted for the owner.
//
// A unique violation at insert means another transaction won a race the lock
// could not cover; it is returned as *Error with CodeUniqueViolation.
func (e *Engine) Synchronize(ctx context.Context, recs Records, o Owner) (SyncResult, error) {
	if o.Slug == "" {
		e.metrics.sync(ctx, SyncSkipped)
		return SyncResult{Outcome: SyncSkipped}, nil
	}

	root, err := e.types.Root(o.Type)
	if err != nil {
		return SyncResult{}, err
	}

	current, ok, err := recs.LatestForOwner(ctx, root, o.Key)
	if err != nil {
		return SyncResult{}, fmt.Errorf("synchronize history: latest record: %w", err)
	}
	if ok && current.Identifier(e.cfg.Separator) == o.Slug {
		e.metrics.sync(ctx, SyncUnchanged)
		return SyncResult{Outcome: SyncUnchanged, Record: current}, nil
	}

	name, seq := e.Parse(o.Slug)
	scope := e.scope(o.Scope)

	matches, err := recs.LockRecords(ctx, Criteria{
		Name:      name,
		Sequence:  seq,
		OwnerType: root,
		Scope:     scope,
	})
	if err != nil {
		return SyncResult{}, fmt.Errorf("synchronize history: lock matching records: %w", err)
	}

	for _, m := range matches {
		if err := recs.DeleteRecord(ctx, m.ID); err != nil {
			return SyncResult{}, fmt.Errorf("synchronize history: reclaim record %d: %w", m.ID, err)
		}
		slog.Info("identifier reclaimed",
			"identifier", o.Slug,
			"owner_type", root,
			"from_owner", m.OwnerID,
			"to_owner", o.Key,
		)
	}

	rec, err := recs.InsertRecord(ctx, Record{
		Name:      name,
		Sequence:  seq,
		OwnerType: root,
		OwnerID:   o.Key,
		Scope:     scope,
		CreatedAt: e.now().UTC(),
	})
	if err != nil {
		if IsUniqueViolation(err) {
			return SyncResult{}, &Error{
				Code:    CodeUniqueViolation,
				Message: fmt.Sprintf("identifier %q was claimed concurrently", o.Slug),
				Err:     err,
			}
		}
		return SyncResult{}, fmt.Errorf("synchronize history: insert record: %w", err)
	}

	outcome := SyncCreated
	if len(matches) > 0 {
		outcome = SyncReclaimed
	}
	e.metrics.sync(ctx, outcome)

	return SyncResult{Outcome: outcome, Record: rec, Reclaimed: matches}, nil
}

// History returns every record of the owner, oldest first.
func (e *Engine) History(ctx context.Context, recs Records, ownerType string, key int64) ([]Record, error) {
	root, err := e.types.Root(ownerType)
	if err != nil {
		return nil, err
	}
	rows, err := recs.OwnerRecords(ctx, root, key)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	return rows, nil
}

// Forget deletes every record of a destroyed owner. Call it in the
// transaction that deletes the owner.
func (e *Engine) Forget(ctx context.Context, recs Records, ownerType string, key int64) (int64, error) {
	root, err := e.types.Root(ownerType)
	if err != nil {
		return 0, err
	}
	n, err := recs.DeleteOwnerRecords(ctx, root, key)
	if err != nil {
		return 0, fmt.Errorf("forget owner history: %w", err)
	}
	return n, nil
}
