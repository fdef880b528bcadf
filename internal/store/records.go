package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/urbanautomaton/friendly-id-ancient-history/internal/history"
)

const recordColumns = `h.id, h.name, h.sequence, h.owner_type, h.owner_id, h.scope, h.created_at`

// whereCriteria renders c as a WHERE clause over slug_history aliased h.
func whereCriteria(c history.Criteria) (string, []any) {
	var conds []string
	var args []any

	conds = append(conds, "h.name = ?")
	args = append(args, c.Name)
	if c.OwnerType != "" {
		conds = append(conds, "h.owner_type = ?")
		args = append(args, c.OwnerType)
	}
	if c.Scope == nil {
		conds = append(conds, "h.scope IS NULL")
	} else {
		conds = append(conds, "h.scope = ?")
		args = append(args, *c.Scope)
	}
	if c.Sequence > 0 {
		conds = append(conds, "h.sequence = ?")
		args = append(args, c.Sequence)
	}
	if c.ExcludeOwner != nil {
		conds = append(conds, "h.owner_id <> ?")
		args = append(args, *c.ExcludeOwner)
	}
	if c.CurrentOnly {
		conds = append(conds, `h.id = (
			SELECT MAX(c.id) FROM slug_history c
			WHERE c.owner_type = h.owner_type AND c.owner_id = h.owner_id)`)
	}

	return "WHERE " + strings.Join(conds, " AND "), args
}

// FindRecords returns records matching c, highest sequence first.
func (q *queries) FindRecords(ctx context.Context, c history.Criteria) ([]history.Record, error) {
	where, args := whereCriteria(c)
	query := `SELECT ` + recordColumns + ` FROM slug_history h ` + where + `
		ORDER BY h.sequence DESC, h.id DESC`
	if c.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", c.Limit)
	}

	rows, err := q.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	return collectRecords(rows)
}

// LockRecords is FindRecords. Transactions begin with BEGIN IMMEDIATE, so
// the caller already holds the database write lock when it reads.
func (q *queries) LockRecords(ctx context.Context, c history.Criteria) ([]history.Record, error) {
	return q.FindRecords(ctx, c)
}

// LatestForOwner returns the owner's most recently inserted record.
func (q *queries) LatestForOwner(ctx context.Context, ownerType string, ownerID int64) (history.Record, bool, error) {
	row := q.q.QueryRowContext(ctx, `
		SELECT `+recordColumns+`
		FROM slug_history h
		WHERE h.owner_type = ? AND h.owner_id = ?
		ORDER BY h.id DESC
		LIMIT 1
	`, ownerType, ownerID)

	r, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return history.Record{}, false, nil
	}
	if err != nil {
		return history.Record{}, false, fmt.Errorf("latest history record: %w", err)
	}
	return r, true, nil
}

// OwnerRecords returns the owner's records in insertion order.
func (q *queries) OwnerRecords(ctx context.Context, ownerType string, ownerID int64) ([]history.Record, error) {
	rows, err := q.q.QueryContext(ctx, `
		SELECT `+recordColumns+`
		FROM slug_history h
		WHERE h.owner_type = ? AND h.owner_id = ?
		ORDER BY h.id ASC
	`, ownerType, ownerID)
	if err != nil {
		return nil, fmt.Errorf("query owner history: %w", err)
	}
	return collectRecords(rows)
}

// InsertRecord stores r and returns it with its assigned ID.
func (q *queries) InsertRecord(ctx context.Context, r history.Record) (history.Record, error) {
	res, err := q.q.ExecContext(ctx, `
		INSERT INTO slug_history (name, owner_id, sequence, owner_type, scope, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, r.Name, r.OwnerID, r.Sequence, r.OwnerType, nullable(r.Scope), formatTime(r.CreatedAt))
	if err != nil {
		return history.Record{}, classify("insert history record", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return history.Record{}, fmt.Errorf("history record id: %w", err)
	}
	r.ID = id
	return r, nil
}

// DeleteRecord removes one record. Deleting a missing record is not an error.
func (q *queries) DeleteRecord(ctx context.Context, id int64) error {
	if _, err := q.q.ExecContext(ctx, `DELETE FROM slug_history WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete history record: %w", err)
	}
	return nil
}

// DeleteOwnerRecords removes every record of the owner.
func (q *queries) DeleteOwnerRecords(ctx context.Context, ownerType string, ownerID int64) (int64, error) {
	res, err := q.q.ExecContext(ctx,
		`DELETE FROM slug_history WHERE owner_type = ? AND owner_id = ?`, ownerType, ownerID)
	if err != nil {
		return 0, fmt.Errorf("delete owner history: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete owner history: %w", err)
	}
	return n, nil
}

// HistoryOwnerExists reports whether a record matching c exists whose owner
// row is still present.
func (q *queries) HistoryOwnerExists(ctx context.Context, c history.Criteria) (bool, error) {
	where, args := whereCriteria(c)
	var exists bool
	err := q.q.QueryRowContext(ctx, `
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

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (history.Record, error) {
	var (
		r       history.Record
		scope   sql.NullString
		created string
	)
	if err := row.Scan(&r.ID, &r.Name, &r.Sequence, &r.OwnerType, &r.OwnerID, &scope, &created); err != nil {
		return history.Record{}, err
	}
	if scope.Valid {
		s := scope.String
		r.Scope = &s
	}
	t, err := parseTime(created)
	if err != nil {
		return history.Record{}, fmt.Errorf("history record %d: %w", r.ID, err)
	}
	r.CreatedAt = t
	return r, nil
}

func collectRecords(rows *sql.Rows) ([]history.Record, error) {
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

func nullable(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullIfEmpty(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", s, err)
	}
	return t, nil
}
