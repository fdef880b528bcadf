package history

import (
	"context"
	"fmt"
	"log/slog"
)

// SequenceRequest describes a candidate name to place.
type SequenceRequest struct {
	// Name is the normalized candidate, without any sequence suffix.
	Name string

	// OwnerType may be a concrete subtype; it is mapped to its root.
	OwnerType string

	// Scope is the owner's partition value. Ignored unless Config.Scoped.
	Scope string

	// ExcludeOwner is the requesting owner's key. Nil for owners not yet
	// persisted. An owner never conflicts with its own history.
	ExcludeOwner *int64
}

// ResolveSequence returns the sequence number to use for req.Name. Names
// rejected by ValidName fail with ErrInvalidName.
//
// Conflicts are the current identifiers of other owners with the same root
// type and scope. Identifiers an owner has moved away from are not conflicts;
// Synchronize reclaims them. If no other owner currently holds the bare name,
// the result is 1. Otherwise it is one more than the highest sequence
// currently held under that name.
//
// The answer is only valid at the moment of computation; a concurrent save may
// claim it first, which surfaces as a unique violation at insert time.
func (e *Engine) ResolveSequence(ctx context.Context, recs Records, req SequenceRequest) (int, error) {
	root, err := e.types.Root(req.OwnerType)
	if err != nil {
		return 0, err
	}
	if !e.ValidName(req.Name) {
		return 0, fmt.Errorf("resolve sequence: %w: %q", ErrInvalidName, req.Name)
	}

	base := Criteria{
		Name:         req.Name,
		OwnerType:    root,
		Scope:        e.scope(req.Scope),
		ExcludeOwner: req.ExcludeOwner,
		CurrentOnly:  true,
	}

	direct := base
	direct.Sequence = 1
	direct.Limit = 1
	rows, err := recs.FindRecords(ctx, direct)
	if err != nil {
		return 0, fmt.Errorf("resolve sequence: direct conflict check: %w", err)
	}
	if len(rows) == 0 {
		return 1, nil
	}
	e.metrics.collision(ctx)

	full := base
	full.Limit = 1
	rows, err = recs.FindRecords(ctx, full)
	if err != nil {
		return 0, fmt.Errorf("resolve sequence: full conflict check: %w", err)
	}
	if len(rows) == 0 {
		return 1, nil
	}

	next := rows[0].Sequence + 1
	slog.Debug("sequence conflict",
		"name", req.Name,
		"owner_type", root,
		"highest", rows[0].Sequence,
		"next", next,
	)
	return next, nil
}

// Candidate resolves the sequence for req and returns the composed identifier.
func (e *Engine) Candidate(ctx context.Context, recs Records, req SequenceRequest) (string, error) {
	seq, err := e.ResolveSequence(ctx, recs, req)
	if err != nil {
		return "", err
	}
	return e.Compose(req.Name, seq), nil
}
