package catalog

import (
	"context"
	"time"

	"github.com/urbanautomaton/friendly-id-ancient-history/internal/history"
)

// Entity is a slugged owner row.
type Entity struct {
	Key      int64
	Type     string
	RootType string
	Scope    string
	Title    string
	// Slug is the live composed identifier; empty when none was generated.
	Slug      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Tx is a backend transaction. Every method runs inside it, including the
// history.Store methods the engine uses.
type Tx interface {
	history.Store

	InsertEntity(ctx context.Context, e Entity) (int64, error)
	UpdateEntity(ctx context.Context, e Entity) error
	DeleteEntity(ctx context.Context, key int64) error
	Entity(ctx context.Context, key int64) (Entity, error)
}

// Backend is a database holding entities and their history.
//
// InTx runs fn in one transaction: committed when fn returns nil, rolled back
// otherwise. Entity returns history.ErrNotFound (wrapped) for unknown keys.
type Backend interface {
	history.Store

	Entity(ctx context.Context, key int64) (Entity, error)
	InTx(ctx context.Context, fn func(Tx) error) error
}
