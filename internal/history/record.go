package history

import (
	"context"
	"time"

	"github.com/urbanautomaton/friendly-id-ancient-history/internal/slug"
)

// Record is one (name, sequence) pair ever owned by an entity.
type Record struct {
	ID        int64
	Name      string
	Sequence  int
	OwnerType string
	OwnerID   int64
	// Scope is nil for unscoped records.
	Scope     *string
	CreatedAt time.Time
}

// Identifier returns the composed identifier of r.
func (r Record) Identifier(sep string) string {
	return slug.Compose(r.Name, r.Sequence, sep)
}

// Criteria selects records. Name always matches exactly, so an empty Name
// selects nothing. Other zero values mean "any" except Scope, where nil
// matches unscoped records only.
type Criteria struct {
	Name      string
	OwnerType string
	Scope     *string

	// Sequence restricts to one sequence number when > 0.
	Sequence int

	// ExcludeOwner drops records of this owner when non-nil.
	ExcludeOwner *int64

	// CurrentOnly keeps only the record with the greatest ID of each owner.
	CurrentOnly bool

	// Limit caps the number of rows when > 0.
	Limit int
}

// Records is the persistence port for history records.
//
// FindRecords and LockRecords return rows ordered by sequence descending, then
// ID descending. LockRecords must take a row lock (or run under a transaction
// that excludes concurrent writers) on every row it returns.
//
// InsertRecord must wrap unique constraint failures with ErrDuplicate.
type Records interface {
	FindRecords(ctx context.Context, c Criteria) ([]Record, error)
	LockRecords(ctx context.Context, c Criteria) ([]Record, error)
	LatestForOwner(ctx context.Context, ownerType string, ownerID int64) (Record, bool, error)
	OwnerRecords(ctx context.Context, ownerType string, ownerID int64) ([]Record, error)
	InsertRecord(ctx context.Context, r Record) (Record, error)
	DeleteRecord(ctx context.Context, id int64) error
	DeleteOwnerRecords(ctx context.Context, ownerType string, ownerID int64) (int64, error)
}

// Owners resolves owning entities by live identifier and by primary key.
// Both lookups are restricted to entities whose root type is rootType.
type Owners interface {
	KeyBySlug(ctx context.Context, rootType string, scope *string, identifier string) (int64, bool, error)
	KeyExists(ctx context.Context, rootType string, key int64) (bool, error)
}

// Store combines both ports. Lookups need both.
type Store interface {
	Records
	Owners
}

// OwnerProber is implemented by stores that can check "a history record
// matching c exists and its owner exists" in one query.
type OwnerProber interface {
	HistoryOwnerExists(ctx context.Context, c Criteria) (bool, error)
}
