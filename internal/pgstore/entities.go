package pgstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/urbanautomaton/friendly-id-ancient-history/internal/catalog"
	"github.com/urbanautomaton/friendly-id-ancient-history/internal/history"
)

// KeyBySlug finds the owner whose live identifier is identifier. A nil scope
// matches owners in any scope.
func (q *queries) KeyBySlug(ctx context.Context, rootType string, scope *string, identifier string) (int64, bool, error) {
	query := `SELECT id FROM owners WHERE root_type = $1 AND slug = $2`
	args := []any{rootType, identifier}
	if scope != nil {
		query += ` AND COALESCE(scope, '') = $3`
		args = append(args, *scope)
	}
	query += ` ORDER BY id ASC LIMIT 1`

	var key int64
	err := q.db.QueryRow(ctx, query, args...).Scan(&key)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("query owner by slug: %w", err)
	}
	return key, true, nil
}

// KeyExists reports whether an owner with the key and root type exists.
func (q *queries) KeyExists(ctx context.Context, rootType string, key int64) (bool, error) {
	var exists bool
	err := q.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM owners WHERE id = $1 AND root_type = $2)`,
		key, rootType,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("query owner key: %w", err)
	}
	return exists, nil
}

// InsertEntity stores e and returns its assigned key.
func (q *queries) InsertEntity(ctx context.Context, e catalog.Entity) (int64, error) {
	var key int64
	err := q.db.QueryRow(ctx, `
		INSERT INTO owners (type, root_type, scope, title, slug, created_at, updated_at)
		VALUES ($1, $2, NULLIF($3, ''), $4, NULLIF($5, ''), $6, $7)
		RETURNING id
	`, e.Type, e.RootType, e.Scope, e.Title, e.Slug, e.CreatedAt, e.UpdatedAt).Scan(&key)
	if err != nil {
		return 0, classify("insert entity", err)
	}
	return key, nil
}

// UpdateEntity overwrites the mutable columns of e.
func (q *queries) UpdateEntity(ctx context.Context, e catalog.Entity) error {
	tag, err := q.db.Exec(ctx, `
		UPDATE owners SET title = $1, slug = NULLIF($2, ''), updated_at = $3
		WHERE id = $4
	`, e.Title, e.Slug, e.UpdatedAt, e.Key)
	if err != nil {
		return classify("update entity", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update entity %d: %w", e.Key, history.ErrNotFound)
	}
	return nil
}

// DeleteEntity removes the entity row. Its history is not touched.
func (q *queries) DeleteEntity(ctx context.Context, key int64) error {
	tag, err := q.db.Exec(ctx, `DELETE FROM owners WHERE id = $1`, key)
	if err != nil {
		return fmt.Errorf("delete entity: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("delete entity %d: %w", key, history.ErrNotFound)
	}
	return nil
}

// Entity returns the entity with the key, or history.ErrNotFound.
func (q *queries) Entity(ctx context.Context, key int64) (catalog.Entity, error) {
	var e catalog.Entity
	err := q.db.QueryRow(ctx, `
		SELECT id, type, root_type, COALESCE(scope, ''), title, COALESCE(slug, ''), created_at, updated_at
		FROM owners
		WHERE id = $1
	`, key).Scan(&e.Key, &e.Type, &e.RootType, &e.Scope, &e.Title, &e.Slug, &e.CreatedAt, &e.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return catalog.Entity{}, fmt.Errorf("entity %d: %w", key, history.ErrNotFound)
	}
	if err != nil {
		return catalog.Entity{}, fmt.Errorf("query entity: %w", err)
	}
	e.CreatedAt = e.CreatedAt.UTC()
	e.UpdatedAt = e.UpdatedAt.UTC()
	return e, nil
}
