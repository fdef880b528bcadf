package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/urbanautomaton/friendly-id-ancient-history/internal/catalog"
	"github.com/urbanautomaton/friendly-id-ancient-history/internal/history"
)

// KeyBySlug finds the owner whose live identifier is identifier. A nil scope
// matches owners in any scope.
func (q *queries) KeyBySlug(ctx context.Context, rootType string, scope *string, identifier string) (int64, bool, error) {
	query := `SELECT id FROM owners WHERE root_type = ? AND slug = ?`
	args := []any{rootType, identifier}
	if scope != nil {
		query += ` AND COALESCE(scope, '') = ?`
		args = append(args, *scope)
	}
	query += ` ORDER BY id ASC LIMIT 1`

	var key int64
	err := q.q.QueryRowContext(ctx, query, args...).Scan(&key)
	if errors.Is(err, sql.ErrNoRows) {
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
	err := q.q.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM owners WHERE id = ? AND root_type = ?)`,
		key, rootType,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("query owner key: %w", err)
	}
	return exists, nil
}

// InsertEntity stores e and returns its assigned key.
func (q *queries) InsertEntity(ctx context.Context, e catalog.Entity) (int64, error) {
	res, err := q.q.ExecContext(ctx, `
		INSERT INTO owners (type, root_type, scope, title, slug, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, e.Type, e.RootType, nullIfEmpty(e.Scope), e.Title, nullIfEmpty(e.Slug),
		formatTime(e.CreatedAt), formatTime(e.UpdatedAt))
	if err != nil {
		return 0, classify("insert entity", err)
	}
	key, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("entity key: %w", err)
	}
	return key, nil
}

// UpdateEntity overwrites the mutable columns of e.
func (q *queries) UpdateEntity(ctx context.Context, e catalog.Entity) error {
	res, err := q.q.ExecContext(ctx, `
		UPDATE owners SET title = ?, slug = ?, updated_at = ?
		WHERE id = ?
	`, e.Title, nullIfEmpty(e.Slug), formatTime(e.UpdatedAt), e.Key)
	if err != nil {
		return classify("update entity", err)
	}
	return requireRow(res, "update entity", e.Key)
}

// DeleteEntity removes the entity row. Its history is not touched.
func (q *queries) DeleteEntity(ctx context.Context, key int64) error {
	res, err := q.q.ExecContext(ctx, `DELETE FROM owners WHERE id = ?`, key)
	if err != nil {
		return fmt.Errorf("delete entity: %w", err)
	}
	return requireRow(res, "delete entity", key)
}

// Entity returns the entity with the key, or history.ErrNotFound.
func (q *queries) Entity(ctx context.Context, key int64) (catalog.Entity, error) {
	var (
		e                catalog.Entity
		scope, slug      sql.NullString
		created, updated string
	)
	err := q.q.QueryRowContext(ctx, `
		SELECT id, type, root_type, scope, title, slug, created_at, updated_at
		FROM owners
		WHERE id = ?
	`, key).Scan(&e.Key, &e.Type, &e.RootType, &scope, &e.Title, &slug, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return catalog.Entity{}, fmt.Errorf("entity %d: %w", key, history.ErrNotFound)
	}
	if err != nil {
		return catalog.Entity{}, fmt.Errorf("query entity: %w", err)
	}

	e.Scope = scope.String
	e.Slug = slug.String
	if e.CreatedAt, err = parseTime(created); err != nil {
		return catalog.Entity{}, fmt.Errorf("entity %d: %w", key, err)
	}
	if e.UpdatedAt, err = parseTime(updated); err != nil {
		return catalog.Entity{}, fmt.Errorf("entity %d: %w", key, err)
	}
	return e, nil
}

func requireRow(res sql.Result, op string, key int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n == 0 {
		return fmt.Errorf("%s %d: %w", op, key, history.ErrNotFound)
	}
	return nil
}
