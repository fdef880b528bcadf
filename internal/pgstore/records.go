package pgstore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/urbanautomaton/friendly-id-ancient-history/internal/history"
)

const recordColumns = `h.id, h.name, h.sequence, h.owner_type, h.owner_id, h.scope, h.created_at`

// whereCriteria renders c over slug_history aliased h with $n placeholders.
func whereCriteria(c history.Criteria) (string, []any) {
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	conds := []string{"h.name = " + arg(c.Name)}
	if c.OwnerType != "" {
		conds = append(conds, "h.owner_type = "+arg(c.OwnerType))
	}
	if c.Scope == nil {
		conds = append(conds, "h.scope IS NULL")
	} else {
		conds = append(conds, "h.scope = "+arg(*c.Scope))
	}
	if c.Sequence > 0 {
		conds = append(conds, "h.sequence = "+arg(c.Sequence))
	}
	if c.ExcludeOwner != nil {
		conds = append(conds, "h.owner_id <> "+arg(*c.ExcludeOwner))
	}
	if c.CurrentOnly {
		conds = append(conds, `h.id = (
			SELECT MAX(c.id) FROM slug_history c
			WHERE c.owner_type = h.owner_type AND c.owner_id = h.owner_id)`)
	}

	return "WHERE " + strings.Join(conds, " AND "), args
}

func (q *queries) selectRecords(ctx context.Context, c history.Criteria, suffix string) ([]history.Record, error) {
	where, args := whereCriteria(c)
	query := `SELECT ` + recordColumns + ` FROM slug_history h ` + where + `
		ORDER BY h.sequence DESC, h.id DESC`
	if c.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", c.Limit)
	}
	query += suffix

	rows, err := q.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return collectRecords(rows)
}

// FindRecords returns records matching c, highest sequence first.
func (q *queries) FindRecords(ctx context.Context, c history.Criteria) ([]history.Record, error) {
	rows, err := q.selectRecords(ctx, c, "")
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	return rows, nil
}

// LockRecords is FindRecords holding FOR UPDATE locks on the returned rows
// until the transaction ends.
func (q *queries) LockRecords(ctx context.Context, c history.Criteria) ([]history.Record, error) {
	rows, err := q.selectRecords(ctx, c, " FOR UPDATE OF h")
	if err != nil {
		return nil, fmt.Errorf("lock history: %w", err)
	}
	return rows, nil
}

// LatestForOwner returns the owner's most recently inserted record.
func (q *queries) LatestForOwner(ctx context.Context, ownerType string, ownerID int64) (history.Record, bool, error) {
	row := q.db.QueryRow(ctx, `
		SELECT `+recordColumns+`
		FROM slug_history h
		WHERE h.owner_type = $1 AND h.owner_id = $2
		ORDER BY h.id DESC
		LIMIT 1
	`, ownerType, ownerID)

	r, err := scanRecord(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return history.Record{}, false, nil
	}
	if err != nil {
		return history.Record{}, false, fmt.Errorf("latest history record: %w", err)
	}
	return r, true, nil
}

// OwnerRecords returns the owner's records in insertion order.
func (q *queries) OwnerRecords(ctx context.Context, ownerType string, ownerID int64) ([]history.Record, error) {
	rows, err := q.db.Query(ctx, `
		SELECT `+recordColumns+`
		FROM slug_history h
		WHERE h.owner_type = $1 AND h.owner_id = $2
		ORDER BY h.id ASC
	`, ownerType, ownerID)
	if err != nil {
		return nil, fmt.Errorf("query owner history: %w", err)
	}
	return collectRecords(rows)
}

// InsertRecord stores r and returns it with its assigned ID.
func (q *queries) InsertRecord(ctx context.Context, r history.Record) (history.Record, error) {
	err := q.db.QueryRow(ctx, `
		INSERT INTO slug_history (name, owner_id, sequence, owner_type, scope, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`, r.Name, r.OwnerID, r.Sequence, r.OwnerType, r.Scope, r.CreatedAt).Scan(&r.ID)
	if err != nil {
		return history.Record{}, classify("insert history record", err)
	}
	return r, nil
}

// DeleteRecord removes one record.
func (q *queries) DeleteRecord(ctx context.Context, id int64) error {
	if _, err := q.db.Exec(ctx, `DELETE FROM slug_history WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete history record: %w", err)
	}
	return nil
}

// DeleteOwnerRecords removes every record of the owner.
func (q *queries) DeleteOwnerRecords(ctx context.Context, ownerType string, ownerID int64) (int64, error) {
	tag, err := q.db.Exec(ctx,
		`DELETE FROM slug_history WHERE owner_type = $1 AND owner_id = $2`, ownerType, ownerID)
	if err != nil {
		return 0, fmt.Errorf("delete owner history: %w", err)
	}
	return tag.RowsAffected(), nil
}

// HistoryOwnerExists reports whether a record matching c exists whose owner
// row is still present.
func (q *queries) HistoryOwnerExists(ctx context.Context, c history.Criteria) (bool, error) {
	where, args := whereCriteria(c)
	var exists bool
	err := q.db.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM slug_history h
			JOIN owners o ON o.id = h.owner_id AND o.root_type = h.owner_type
			`+where+`
		)`, args...).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("probe history owner: %w", err)
	}
	return exists, nil
}

func scanRecord(row pgx.Row) (history.Record, error) {
	var r history.Record
	if err := row.Scan(&r.ID, &r.Name, &r.Sequence, &r.OwnerType, &r.OwnerID, &r.Scope, &r.CreatedAt); err != nil {
		return history.Record{}, err
	}
	r.CreatedAt = r.CreatedAt.UTC()
	return r, nil
}

func collectRecords(rows pgx.Rows) ([]history.Record, error) {
	defer rows.Close()

	records := []history.Record{}
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan history record: %w", err)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history: %w", err)
	}
	return records, nil
}
