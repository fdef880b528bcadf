package history

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

var fixedNow = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

func testRegistry(t *testing.T) *TypeRegistry {
	t.Helper()
	reg, err := NewTypeRegistry(
		TypeDecl{Name: "Content"},
		TypeDecl{Name: "Article", Base: "Content"},
		TypeDecl{Name: "Video", Base: "Content"},
		TypeDecl{Name: "Page"},
	)
	require.NoError(t, err)
	return reg
}

func newTestEngine(t *testing.T, cfg Config, opts ...Option) *Engine {
	t.Helper()
	opts = append([]Option{WithClock(func() time.Time { return fixedNow })}, opts...)
	e, err := New(cfg, testRegistry(t), opts...)
	require.NoError(t, err)
	return e
}

func strPtr(s string) *string { return &s }

func keyPtr(k int64) *int64 { return &k }

// seed inserts a record for owner and marks the owner's live slug.
func seed(t *testing.T, m *memStore, e *Engine, key int64, typ, id string) {
	t.Helper()
	root, err := e.RootType(typ)
	require.NoError(t, err)
	m.addOwner(key, root, nil, id)
	_, err = e.Synchronize(context.Background(), m, Owner{Key: key, Type: typ, Slug: id})
	require.NoError(t, err)
}

func TestNew_RejectsScopedConflicts(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ScopedConflicts = true

	_, err := New(cfg, testRegistry(t))
	require.Error(t, err)
	assert.True(t, IsConfigurationError(err))
}

func TestNew_RejectsEmptySeparator(t *testing.T) {
	_, err := New(Config{}, testRegistry(t))
	require.Error(t, err)
	assert.True(t, IsConfigurationError(err))
}

func TestNew_RejectsSeparatorsInsideNames(t *testing.T) {
	for _, sep := range []string{"-", "x", "2", "-x-"} {
		_, err := New(Config{Separator: sep}, testRegistry(t))
		require.Error(t, err, sep)
		assert.True(t, IsConfigurationError(err), sep)
	}
	for _, sep := range []string{"--", "~", "_", "-_-"} {
		_, err := New(Config{Separator: sep}, testRegistry(t))
		assert.NoError(t, err, sep)
	}
}

func TestNew_RequiresRegistry(t *testing.T) {
	_, err := New(DefaultConfig(), nil)
	assert.True(t, IsConfigurationError(err))
}

func TestTypeRegistry_Roots(t *testing.T) {
	reg := testRegistry(t)

	for typ, want := range map[string]string{
		"Content": "Content",
		"Article": "Content",
		"Video":   "Content",
		"Page":    "Page",
	} {
		got, err := reg.Root(typ)
		require.NoError(t, err)
		assert.Equal(t, want, got, typ)
	}

	_, err := reg.Root("Comment")
	assert.True(t, IsUnknownType(err))
	assert.Equal(t, []string{"Article", "Content", "Page", "Video"}, reg.Types())
}

func TestTypeRegistry_DeepHierarchy(t *testing.T) {
	reg, err := NewTypeRegistry(
		TypeDecl{Name: "Post", Base: "Article"},
		TypeDecl{Name: "Article", Base: "Content"},
		TypeDecl{Name: "Content"},
	)
	require.NoError(t, err)

	root, err := reg.Root("Post")
	require.NoError(t, err)
	assert.Equal(t, "Content", root)
}

func TestTypeRegistry_Errors(t *testing.T) {
	tests := map[string][]TypeDecl{
		"unknown base": {{Name: "Article", Base: "Content"}},
		"cycle":        {{Name: "A", Base: "B"}, {Name: "B", Base: "A"}},
		"self cycle":   {{Name: "A", Base: "A"}},
		"conflict":     {{Name: "A"}, {Name: "A", Base: "B"}, {Name: "B"}},
		"empty name":   {{Name: ""}},
	}

	for name, decls := range tests {
		_, err := NewTypeRegistry(decls...)
		assert.True(t, IsConfigurationError(err), name)
	}

	_, err := NewTypeRegistry(TypeDecl{Name: "A"}, TypeDecl{Name: "A"})
	assert.NoError(t, err, "agreeing duplicate declarations are allowed")
}

func TestResolveSequence_FreeName(t *testing.T) {
	e := newTestEngine(t, DefaultConfig())
	m := newMemStore()

	seq, err := e.ResolveSequence(context.Background(), m, SequenceRequest{Name: "hello", OwnerType: "Article"})
	require.NoError(t, err)
	assert.Equal(t, 1, seq)
}

func TestResolveSequence_Conflicts(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, DefaultConfig())
	m := newMemStore()

	seed(t, m, e, 1, "Article", "hello")
	seq, err := e.ResolveSequence(ctx, m, SequenceRequest{Name: "hello", OwnerType: "Article"})
	require.NoError(t, err)
	assert.Equal(t, 2, seq)

	seed(t, m, e, 2, "Article", "hello--2")
	seed(t, m, e, 3, "Article", "hello--5")
	seq, err = e.ResolveSequence(ctx, m, SequenceRequest{Name: "hello", OwnerType: "Article"})
	require.NoError(t, err)
	assert.Equal(t, 6, seq, "next after the highest held sequence")
}

func TestResolveSequence_NoDirectConflictMeansOne(t *testing.T) {
	e := newTestEngine(t, DefaultConfig())
	m := newMemStore()

	// Only a suffixed identifier is held; the bare name is free.
	seed(t, m, e, 1, "Article", "hello--3")

	seq, err := e.ResolveSequence(context.Background(), m, SequenceRequest{Name: "hello", OwnerType: "Article"})
	require.NoError(t, err)
	assert.Equal(t, 1, seq)
}

func TestResolveSequence_ExcludesRequestingOwner(t *testing.T) {
	e := newTestEngine(t, DefaultConfig())
	m := newMemStore()
	seed(t, m, e, 1, "Article", "hello")

	seq, err := e.ResolveSequence(context.Background(), m, SequenceRequest{
		Name:         "hello",
		OwnerType:    "Article",
		ExcludeOwner: keyPtr(1),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, seq)
}

func TestResolveSequence_IgnoresVacatedIdentifiers(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, DefaultConfig())
	m := newMemStore()

	seed(t, m, e, 1, "Article", "hello!")
	m.addOwner(1, "Content", nil, "goodbye")
	_, err := e.Synchronize(ctx, m, Owner{Key: 1, Type: "Article", Slug: "goodbye"})
	require.NoError(t, err)

	seq, err := e.ResolveSequence(ctx, m, SequenceRequest{Name: "hello!", OwnerType: "Article"})
	require.NoError(t, err)
	assert.Equal(t, 1, seq)
}

func TestResolveSequence_PoolsSubtypes(t *testing.T) {
	e := newTestEngine(t, DefaultConfig())
	m := newMemStore()
	seed(t, m, e, 1, "Article", "hello")

	seq, err := e.ResolveSequence(context.Background(), m, SequenceRequest{Name: "hello", OwnerType: "Video"})
	require.NoError(t, err)
	assert.Equal(t, 2, seq)

	seq, err = e.ResolveSequence(context.Background(), m, SequenceRequest{Name: "hello", OwnerType: "Page"})
	require.NoError(t, err)
	assert.Equal(t, 1, seq, "different root types do not conflict")
}

func TestResolveSequence_Scoped(t *testing.T) {
	ctx := context.Background()
	cfg := DefaultConfig()
	cfg.Scoped = true
	e := newTestEngine(t, cfg)
	m := newMemStore()

	m.addOwner(1, "Content", strPtr("blog-a"), "hello")
	_, err := e.Synchronize(ctx, m, Owner{Key: 1, Type: "Article", Slug: "hello", Scope: "blog-a"})
	require.NoError(t, err)

	seq, err := e.ResolveSequence(ctx, m, SequenceRequest{Name: "hello", OwnerType: "Article", Scope: "blog-b"})
	require.NoError(t, err)
	assert.Equal(t, 1, seq)

	seq, err = e.ResolveSequence(ctx, m, SequenceRequest{Name: "hello", OwnerType: "Article", Scope: "blog-a"})
	require.NoError(t, err)
	assert.Equal(t, 2, seq)
}

func TestResolveSequence_UnknownType(t *testing.T) {
	e := newTestEngine(t, DefaultConfig())
	_, err := e.ResolveSequence(context.Background(), newMemStore(), SequenceRequest{Name: "x", OwnerType: "Nope"})
	assert.True(t, IsUnknownType(err))
}

func TestResolveSequence_RejectsInvalidNames(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, DefaultConfig())
	m := newMemStore()
	seed(t, m, e, 1, "Article", "hello")

	for _, name := range []string{"", "2024", "hello--2"} {
		_, err := e.ResolveSequence(ctx, m, SequenceRequest{Name: name, OwnerType: "Article"})
		assert.ErrorIs(t, err, ErrInvalidName, "%q", name)
	}
}

func TestValidName(t *testing.T) {
	e := newTestEngine(t, DefaultConfig())
	for name, want := range map[string]bool{
		"hello":     true,
		"hello--1":  true,
		"2024-plan": true,
		"+42":       true,
		"":          false,
		"2024":      false,
		"hello--2":  false,
	} {
		assert.Equal(t, want, e.ValidName(name), "%q", name)
	}

	custom := newTestEngine(t, DefaultConfig(), WithKeyFormat(func(string) bool { return false }, parseKey))
	assert.True(t, custom.ValidName("2024"))
}

func TestCandidate(t *testing.T) {
	e := newTestEngine(t, DefaultConfig())
	m := newMemStore()
	seed(t, m, e, 1, "Article", "hello")

	id, err := e.Candidate(context.Background(), m, SequenceRequest{Name: "hello", OwnerType: "Article"})
	require.NoError(t, err)
	assert.Equal(t, "hello--2", id)
}

func TestSynchronize_SkipsEmptyIdentifier(t *testing.T) {
	e := newTestEngine(t, DefaultConfig())
	m := newMemStore()

	res, err := e.Synchronize(context.Background(), m, Owner{Key: 1, Type: "Article"})
	require.NoError(t, err)
	assert.Equal(t, SyncSkipped, res.Outcome)
	assert.Empty(t, m.records)
}

func TestSynchronize_CreatesAndIsIdempotent(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, DefaultConfig())
	m := newMemStore()
	o := Owner{Key: 7, Type: "Video", Slug: "hello--3"}

	res, err := e.Synchronize(ctx, m, o)
	require.NoError(t, err)
	assert.Equal(t, SyncCreated, res.Outcome)
	assert.Equal(t, Record{
		ID:        1,
		Name:      "hello",
		Sequence:  3,
		OwnerType: "Content",
		OwnerID:   7,
		CreatedAt: fixedNow,
	}, res.Record)

	res, err = e.Synchronize(ctx, m, o)
	require.NoError(t, err)
	assert.Equal(t, SyncUnchanged, res.Outcome)
	assert.Len(t, m.records, 1)
}

func TestSynchronize_GrowsOnePerDistinctIdentifier(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, DefaultConfig())
	m := newMemStore()

	for _, id := range []string{"a", "b", "c", "d"} {
		_, err := e.Synchronize(ctx, m, Owner{Key: 1, Type: "Article", Slug: id})
		require.NoError(t, err)
	}

	rows, err := e.History(ctx, m, "Article", 1)
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, "d", rows[3].Identifier("--"))
}

func TestSynchronize_ReclaimsFromAnotherOwner(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, DefaultConfig())
	m := newMemStore()

	_, err := e.Synchronize(ctx, m, Owner{Key: 1, Type: "Article", Slug: "hello"})
	require.NoError(t, err)
	_, err = e.Synchronize(ctx, m, Owner{Key: 1, Type: "Article", Slug: "goodbye"})
	require.NoError(t, err)

	res, err := e.Synchronize(ctx, m, Owner{Key: 2, Type: "Video", Slug: "hello"})
	require.NoError(t, err)
	assert.Equal(t, SyncReclaimed, res.Outcome)
	require.Len(t, res.Reclaimed, 1)
	assert.Equal(t, int64(1), res.Reclaimed[0].OwnerID)

	require.Len(t, m.locks, 3)
	assert.Equal(t, Criteria{Name: "hello", Sequence: 1, OwnerType: "Content"}, m.locks[2])

	holders, err := m.FindRecords(ctx, Criteria{Name: "hello", OwnerType: "Content"})
	require.NoError(t, err)
	require.Len(t, holders, 1)
	assert.Equal(t, int64(2), holders[0].OwnerID)
}

func TestSynchronize_Reversion(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, DefaultConfig())
	m := newMemStore()

	for _, id := range []string{"x", "y", "x"} {
		_, err := e.Synchronize(ctx, m, Owner{Key: 1, Type: "Article", Slug: id})
		require.NoError(t, err)
	}

	rows, err := e.History(ctx, m, "Article", 1)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "y", rows[0].Identifier("--"))
	assert.Equal(t, "x", rows[1].Identifier("--"), "reverted identifier is current again")
}

func TestSynchronize_UniqueViolation(t *testing.T) {
	e := newTestEngine(t, DefaultConfig())
	m := newMemStore()
	m.insertErr = errors.Join(ErrDuplicate, errors.New("UNIQUE constraint failed"))

	_, err := e.Synchronize(context.Background(), m, Owner{Key: 1, Type: "Article", Slug: "hello"})
	require.Error(t, err)
	assert.True(t, IsUniqueViolation(err))

	var he *Error
	require.True(t, errors.As(err, &he))
	assert.Equal(t, CodeUniqueViolation, he.Code)
}

func TestSynchronize_StoreErrorPropagates(t *testing.T) {
	e := newTestEngine(t, DefaultConfig())
	m := newMemStore()
	boom := errors.New("disk full")
	m.insertErr = boom

	_, err := e.Synchronize(context.Background(), m, Owner{Key: 1, Type: "Article", Slug: "hello"})
	assert.ErrorIs(t, err, boom)
	assert.False(t, IsUniqueViolation(err))
}

func TestForget(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, DefaultConfig())
	m := newMemStore()
	for _, id := range []string{"a", "b"} {
		_, err := e.Synchronize(ctx, m, Owner{Key: 1, Type: "Article", Slug: id})
		require.NoError(t, err)
	}
	_, err := e.Synchronize(ctx, m, Owner{Key: 2, Type: "Article", Slug: "c"})
	require.NoError(t, err)

	n, err := e.Forget(ctx, m, "Video", 1)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.Len(t, m.records, 1)
}

func TestFindOwner_Tiers(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, DefaultConfig())
	m := newMemStore()

	seed(t, m, e, 1, "Article", "old-title")
	m.addOwner(1, "Content", nil, "new-title")
	_, err := e.Synchronize(ctx, m, Owner{Key: 1, Type: "Article", Slug: "new-title"})
	require.NoError(t, err)
	m.addOwner(42, "Content", nil, "")

	tests := []struct {
		id   string
		want int64
	}{
		{"1", 1},
		{"new-title", 1},
		{"old-title", 1},
		{"+42", 42},
		{"42", 42},
	}
	for _, tt := range tests {
		key, err := e.FindOwner(ctx, m, LookupRequest{Type: "Video", ID: tt.id})
		require.NoError(t, err, tt.id)
		assert.Equal(t, tt.want, key, tt.id)
	}

	_, err = e.FindOwner(ctx, m, LookupRequest{Type: "Article", ID: "missing"})
	assert.True(t, IsNotFound(err))

	_, err = e.FindOwner(ctx, m, LookupRequest{Type: "Page", ID: "new-title"})
	assert.True(t, IsNotFound(err), "lookups do not cross root types")
}

func TestFindOwner_RawKeyDoesNotFallThrough(t *testing.T) {
	e := newTestEngine(t, DefaultConfig())
	m := newMemStore()
	seed(t, m, e, 1, "Article", "2024")

	_, err := e.FindOwner(context.Background(), m, LookupRequest{Type: "Article", ID: "2024"})
	assert.True(t, IsNotFound(err))
}

func TestFindOwner_CustomKeyFormat(t *testing.T) {
	e := newTestEngine(t, DefaultConfig(), WithKeyFormat(
		func(string) bool { return false },
		parseKey,
	))
	m := newMemStore()
	seed(t, m, e, 1, "Article", "2024")

	key, err := e.FindOwner(context.Background(), m, LookupRequest{Type: "Article", ID: "2024"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), key)
}

func TestFindOwner_MissingOwnerFallsThrough(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, DefaultConfig())
	m := newMemStore()

	_, err := e.Synchronize(ctx, m, Owner{Key: 9, Type: "Article", Slug: "orphan"})
	require.NoError(t, err)

	_, err = e.FindOwner(ctx, m, LookupRequest{Type: "Article", ID: "orphan"})
	assert.True(t, IsNotFound(err))
}

func TestFindOwner_Scoped(t *testing.T) {
	ctx := context.Background()
	cfg := DefaultConfig()
	cfg.Scoped = true
	e := newTestEngine(t, cfg)
	m := newMemStore()

	m.addOwner(1, "Content", strPtr("a"), "hello")
	_, err := e.Synchronize(ctx, m, Owner{Key: 1, Type: "Article", Slug: "hello", Scope: "a"})
	require.NoError(t, err)

	key, err := e.FindOwner(ctx, m, LookupRequest{Type: "Article", Scope: "a", ID: "hello"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), key)

	_, err = e.FindOwner(ctx, m, LookupRequest{Type: "Article", Scope: "b", ID: "hello"})
	assert.True(t, IsNotFound(err))
}

func TestOwnerExists(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, DefaultConfig())
	m := newMemStore()
	seed(t, m, e, 1, "Article", "before")
	m.addOwner(1, "Content", nil, "after")
	_, err := e.Synchronize(ctx, m, Owner{Key: 1, Type: "Article", Slug: "after"})
	require.NoError(t, err)

	p := &probingStore{memStore: m}
	for _, st := range []Store{m, p} {
		for id, want := range map[string]bool{"1": true, "after": true, "before": true, "nope": false, "5": false} {
			got, err := e.OwnerExists(ctx, st, LookupRequest{Type: "Article", ID: id})
			require.NoError(t, err)
			assert.Equal(t, want, got, id)
		}
	}
	assert.Equal(t, 2, p.probes, "history tier answered by the probe")
}

func TestLookup_EmptyIdentifierMisses(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, DefaultConfig())
	m := newMemStore()
	seed(t, m, e, 1, "Article", "hello")
	m.addOwner(2, "Content", nil, "")

	_, err := e.FindOwner(ctx, m, LookupRequest{Type: "Article", ID: ""})
	assert.True(t, IsNotFound(err))

	p := &probingStore{memStore: m}
	for _, st := range []Store{m, p} {
		ok, err := e.OwnerExists(ctx, st, LookupRequest{Type: "Article", ID: ""})
		require.NoError(t, err)
		assert.False(t, ok)
	}
	assert.Zero(t, p.probes)

	_, err = e.FindOwner(ctx, m, LookupRequest{Type: "Nope", ID: ""})
	assert.True(t, IsUnknownType(err))
}

func TestMetrics(t *testing.T) {
	ctx := context.Background()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	e := newTestEngine(t, DefaultConfig(), WithMeterProvider(mp))
	m := newMemStore()

	seed(t, m, e, 1, "Article", "hello")
	_, err := e.Synchronize(ctx, m, Owner{Key: 1, Type: "Article", Slug: "hello"})
	require.NoError(t, err)
	_, err = e.ResolveSequence(ctx, m, SequenceRequest{Name: "hello", OwnerType: "Article"})
	require.NoError(t, err)
	_, err = e.FindOwner(ctx, m, LookupRequest{Type: "Article", ID: "hello"})
	require.NoError(t, err)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))

	assert.Equal(t, int64(1), counterValue(rm, "slughist.history.sync", "outcome", "created"))
	assert.Equal(t, int64(1), counterValue(rm, "slughist.history.sync", "outcome", "unchanged"))
	assert.Equal(t, int64(1), counterValue(rm, "slughist.lookup", "tier", "live"))
	assert.Equal(t, int64(1), counterValue(rm, "slughist.sequence.collisions", "", ""))
}

func counterValue(rm metricdata.ResourceMetrics, name, attrKey, attrValue string) int64 {
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				return -1
			}
			for _, dp := range sum.DataPoints {
				if attrKey == "" {
					return dp.Value
				}
				if v, ok := dp.Attributes.Value(attribute.Key(attrKey)); ok && v.AsString() == attrValue {
					return dp.Value
				}
			}
		}
	}
	return 0
}
