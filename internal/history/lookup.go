package history

import (
	"context"
	"fmt"
	"log/slog"
)

// LookupRequest is an inbound identifier to resolve.
type LookupRequest struct {
	// Type is the owner type being looked up; lookups span its root type.
	Type string

	// Scope is the partition value. Ignored unless Config.Scoped.
	Scope string

	// ID is the inbound identifier: a raw key, a current or a past identifier.
	ID string
}

type tier string

const (
	tierKey      tier = "key"
	tierLive     tier = "live"
	tierHistory  tier = "history"
	tierFallback tier = "fallback"
	tierMiss     tier = "miss"
)

// FindOwner resolves req.ID to the owner's primary key.
//
// Tiers, in order:
//  1. an id shaped like a raw key is looked up by key only;
//  2. the owners' live identifier;
//  3. the history record for the parsed (name, sequence), if its owner
//     still exists;
//  4. the id parsed as a raw key, for legacy identifiers.
//
// Returns ErrNotFound when no tier matches. An empty id never matches.
func (e *Engine) FindOwner(ctx context.Context, st Store, req LookupRequest) (int64, error) {
	key, t, err := e.find(ctx, st, req)
	if err != nil {
		return 0, err
	}
	e.metrics.lookup(ctx, t)
	if t == tierMiss {
		return 0, ErrNotFound
	}
	return key, nil
}

func (e *Engine) find(ctx context.Context, st Store, req LookupRequest) (int64, tier, error) {
	root, err := e.types.Root(req.Type)
	if err != nil {
		return 0, "", err
	}
	if req.ID == "" {
		return 0, tierMiss, nil
	}

	if e.isRawKey(req.ID) {
		key, _ := e.parseKey(req.ID)
		found, err := st.KeyExists(ctx, root, key)
		if err != nil {
			return 0, "", fmt.Errorf("find owner by key: %w", err)
		}
		if !found {
			return 0, tierMiss, nil
		}
		return key, tierKey, nil
	}

	scope := e.scope(req.Scope)

	key, found, err := st.KeyBySlug(ctx, root, scope, req.ID)
	if err != nil {
		return 0, "", fmt.Errorf("find owner by identifier: %w", err)
	}
	if found {
		return key, tierLive, nil
	}

	name, seq := e.Parse(req.ID)
	rows, err := st.FindRecords(ctx, Criteria{
		Name:      name,
		Sequence:  seq,
		OwnerType: root,
		Scope:     scope,
		Limit:     1,
	})
	if err != nil {
		return 0, "", fmt.Errorf("find owner by history: %w", err)
	}
	if len(rows) > 0 {
		owner := rows[0].OwnerID
		found, err := st.KeyExists(ctx, root, owner)
		if err != nil {
			return 0, "", fmt.Errorf("find owner by history: %w", err)
		}
		if found {
			return owner, tierHistory, nil
		}
		slog.Warn("history record references missing owner",
			"record_id", rows[0].ID,
			"owner_type", root,
			"owner_id", owner,
		)
	}

	if key, ok := e.parseKey(req.ID); ok {
		found, err := st.KeyExists(ctx, root, key)
		if err != nil {
			return 0, "", fmt.Errorf("find owner by fallback key: %w", err)
		}
		if found {
			return key, tierFallback, nil
		}
	}

	return 0, tierMiss, nil
}

// OwnerExists reports whether FindOwner would succeed for req. When st
// implements OwnerProber, the history tier is answered by a single existence
// probe instead of fetching the record and its owner.
func (e *Engine) OwnerExists(ctx context.Context, st Store, req LookupRequest) (bool, error) {
	prober, ok := st.(OwnerProber)
	if !ok {
		_, t, err := e.find(ctx, st, req)
		if err != nil {
			return false, err
		}
		e.metrics.lookup(ctx, t)
		return t != tierMiss, nil
	}

	t, err := e.probe(ctx, st, prober, req)
	if err != nil {
		return false, err
	}
	e.metrics.lookup(ctx, t)
	return t != tierMiss, nil
}

func (e *Engine) probe(ctx context.Context, st Store, prober OwnerProber, req LookupRequest) (tier, error) {
	root, err := e.types.Root(req.Type)
	if err != nil {
		return "", err
	}
	if req.ID == "" {
		return tierMiss, nil
	}

	if e.isRawKey(req.ID) {
		key, _ := e.parseKey(req.ID)
		found, err := st.KeyExists(ctx, root, key)
		if err != nil {
			return "", fmt.Errorf("probe owner by key: %w", err)
		}
		if found {
			return tierKey, nil
		}
		return tierMiss, nil
	}

	scope := e.scope(req.Scope)

	_, found, err := st.KeyBySlug(ctx, root, scope, req.ID)
	if err != nil {
		return "", fmt.Errorf("probe owner by identifier: %w", err)
	}
	if found {
		return tierLive, nil
	}

	name, seq := e.Parse(req.ID)
	found, err = prober.HistoryOwnerExists(ctx, Criteria{
		Name:      name,
		Sequence:  seq,
		OwnerType: root,
		Scope:     scope,
	})
	if err != nil {
		return "", fmt.Errorf("probe owner by history: %w", err)
	}
	if found {
		return tierHistory, nil
	}

	if key, ok := e.parseKey(req.ID); ok {
		found, err := st.KeyExists(ctx, root, key)
		if err != nil {
			return "", fmt.Errorf("probe owner by fallback key: %w", err)
		}
		if found {
			return tierFallback, nil
		}
	}

	return tierMiss, nil
}
