package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/urbanautomaton/friendly-id-ancient-history/internal/catalog"
	"github.com/urbanautomaton/friendly-id-ancient-history/internal/history"
)

var testTime = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

// createTestStore creates a new file-backed store in a temp dir for testing.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestEntity inserts an entity with the given live slug.
func createTestEntity(t *testing.T, s *Store, typ, root, scope, slug string) int64 {
	t.Helper()
	key, err := s.InsertEntity(context.Background(), catalog.Entity{
		Type:      typ,
		RootType:  root,
		Scope:     scope,
		Title:     slug,
		Slug:      slug,
		CreatedAt: testTime,
		UpdatedAt: testTime,
	})
	if err != nil {
		t.Fatalf("InsertEntity() failed: %v", err)
	}
	return key
}

// createTestRecord inserts a history record.
func createTestRecord(t *testing.T, s *Store, name string, seq int, ownerType string, owner int64, scope *string) history.Record {
	t.Helper()
	r, err := s.InsertRecord(context.Background(), history.Record{
		Name:      name,
		Sequence:  seq,
		OwnerType: ownerType,
		OwnerID:   owner,
		Scope:     scope,
		CreatedAt: testTime,
	})
	if err != nil {
		t.Fatalf("InsertRecord() failed: %v", err)
	}
	return r
}

func strPtr(s string) *string { return &s }
