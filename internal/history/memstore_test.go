package history

import (
	"context"
	"fmt"
	"sort"
)

// memStore is an in-memory Store used to test the engine without a database.
type memStore struct {
	records []Record
	nextID  int64
	owners  map[int64]memOwner

	locks     []Criteria
	insertErr error
}

type memOwner struct {
	root  string
	scope *string
	slug  string
}

func newMemStore() *memStore {
	return &memStore{owners: map[int64]memOwner{}}
}

func (m *memStore) addOwner(key int64, root string, scope *string, slug string) {
	m.owners[key] = memOwner{root: root, scope: scope, slug: slug}
}

func sameScope(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func (m *memStore) isCurrent(r Record) bool {
	latest, ok, _ := m.LatestForOwner(context.Background(), r.OwnerType, r.OwnerID)
	return ok && latest.ID == r.ID
}

func (m *memStore) matches(r Record, c Criteria) bool {
	if r.Name != c.Name {
		return false
	}
	if c.OwnerType != "" && r.OwnerType != c.OwnerType {
		return false
	}
	if !sameScope(r.Scope, c.Scope) {
		return false
	}
	if c.Sequence > 0 && r.Sequence != c.Sequence {
		return false
	}
	if c.ExcludeOwner != nil && r.OwnerID == *c.ExcludeOwner {
		return false
	}
	if c.CurrentOnly && !m.isCurrent(r) {
		return false
	}
	return true
}

func (m *memStore) FindRecords(_ context.Context, c Criteria) ([]Record, error) {
	var out []Record
	for _, r := range m.records {
		if m.matches(r, c) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Sequence != out[j].Sequence {
			return out[i].Sequence > out[j].Sequence
		}
		return out[i].ID > out[j].ID
	})
	if c.Limit > 0 && len(out) > c.Limit {
		out = out[:c.Limit]
	}
	return out, nil
}

func (m *memStore) LockRecords(ctx context.Context, c Criteria) ([]Record, error) {
	m.locks = append(m.locks, c)
	return m.FindRecords(ctx, c)
}

func (m *memStore) LatestForOwner(_ context.Context, ownerType string, ownerID int64) (Record, bool, error) {
	var latest Record
	found := false
	for _, r := range m.records {
		if r.OwnerType == ownerType && r.OwnerID == ownerID && (!found || r.ID > latest.ID) {
			latest = r
			found = true
		}
	}
	return latest, found, nil
}

func (m *memStore) OwnerRecords(_ context.Context, ownerType string, ownerID int64) ([]Record, error) {
	var out []Record
	for _, r := range m.records {
		if r.OwnerType == ownerType && r.OwnerID == ownerID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memStore) InsertRecord(_ context.Context, r Record) (Record, error) {
	if m.insertErr != nil {
		return Record{}, m.insertErr
	}
	for _, existing := range m.records {
		if existing.Name == r.Name && existing.OwnerType == r.OwnerType &&
			existing.Sequence == r.Sequence && sameScope(existing.Scope, r.Scope) {
			return Record{}, fmt.Errorf("insert record: %w", ErrDuplicate)
		}
	}
	m.nextID++
	r.ID = m.nextID
	m.records = append(m.records, r)
	return r, nil
}

func (m *memStore) DeleteRecord(_ context.Context, id int64) error {
	for i, r := range m.records {
		if r.ID == id {
			m.records = append(m.records[:i], m.records[i+1:]...)
			return nil
		}
	}
	return nil
}

func (m *memStore) DeleteOwnerRecords(_ context.Context, ownerType string, ownerID int64) (int64, error) {
	kept := m.records[:0]
	var n int64
	for _, r := range m.records {
		if r.OwnerType == ownerType && r.OwnerID == ownerID {
			n++
			continue
		}
		kept = append(kept, r)
	}
	m.records = kept
	return n, nil
}

func (m *memStore) KeyBySlug(_ context.Context, rootType string, scope *string, identifier string) (int64, bool, error) {
	for key, o := range m.owners {
		if o.root == rootType && o.slug == identifier && sameScope(o.scope, scope) {
			return key, true, nil
		}
	}
	return 0, false, nil
}

func (m *memStore) KeyExists(_ context.Context, rootType string, key int64) (bool, error) {
	o, ok := m.owners[key]
	return ok && o.root == rootType, nil
}

// probingStore adds the OwnerProber fast path and counts its use.
type probingStore struct {
	*memStore
	probes int
}

func (p *probingStore) HistoryOwnerExists(ctx context.Context, c Criteria) (bool, error) {
	p.probes++
	rows, err := p.FindRecords(ctx, c)
	if err != nil {
		return false, err
	}
	for _, r := range rows {
		if ok, _ := p.KeyExists(ctx, c.OwnerType, r.OwnerID); ok {
			return true, nil
		}
	}
	return false, nil
}
