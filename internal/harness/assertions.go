package harness

import (
	"context"
	"fmt"
	"slices"
	"strings"
)

// AssertionError is returned when an assertion fails.
type AssertionError struct {
	Type     string // Assertion type for categorization
	Expected string // Human-readable expected outcome
	Actual   string // Human-readable actual outcome
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	return fmt.Sprintf("Assertion failed: %s\n  Expected: %s\n  Actual: %s", e.Type, e.Expected, e.Actual)
}

// EvaluateAssertions checks every assertion and returns the failure
// messages, empty when all hold.
func EvaluateAssertions(ctx context.Context, h *Harness, assertions []Assertion) []string {
	var errs []string
	for i, a := range assertions {
		var err error
		switch a.Type {
		case AssertHistory:
			err = assertHistory(ctx, h, a)
		case AssertRecordCount:
			err = assertRecordCount(ctx, h, a)
		case AssertUniqueIdentifiers:
			err = assertUniqueIdentifiers(ctx, h, a)
		default:
			err = fmt.Errorf("unknown assertion type %q", a.Type)
		}
		if err != nil {
			errs = append(errs, fmt.Sprintf("assertions[%d]: %v", i, err))
		}
	}
	return errs
}

// identifiers returns the ref's composed identifiers, oldest first.
func (h *Harness) identifiers(ctx context.Context, ref string) ([]string, error) {
	key, err := h.key(ref)
	if err != nil {
		return nil, err
	}
	recs, err := h.engine.History(ctx, h.store, h.types[ref], key)
	if err != nil {
		return nil, err
	}
	sep := h.engine.Config().Separator
	ids := make([]string, len(recs))
	for i, r := range recs {
		ids[i] = r.Identifier(sep)
	}
	return ids, nil
}

func assertHistory(ctx context.Context, h *Harness, a Assertion) error {
	got, err := h.identifiers(ctx, a.Ref)
	if err != nil {
		return err
	}
	want := a.Identifiers
	if want == nil {
		want = []string{}
	}
	if !slices.Equal(got, want) {
		return &AssertionError{
			Type:     AssertHistory,
			Expected: fmt.Sprintf("%s history [%s]", a.Ref, strings.Join(want, ", ")),
			Actual:   fmt.Sprintf("[%s]", strings.Join(got, ", ")),
		}
	}
	return nil
}

func assertRecordCount(ctx context.Context, h *Harness, a Assertion) error {
	got, err := h.identifiers(ctx, a.Ref)
	if err != nil {
		return err
	}
	if len(got) != a.Count {
		return &AssertionError{
			Type:     AssertRecordCount,
			Expected: fmt.Sprintf("%s has %d records", a.Ref, a.Count),
			Actual:   fmt.Sprintf("%d records [%s]", len(got), strings.Join(got, ", ")),
		}
	}
	return nil
}

// assertUniqueIdentifiers scans slug_history for (name, sequence, scope)
// tuples held more than once under one root type. An empty OwnerType checks
// every root type.
func assertUniqueIdentifiers(ctx context.Context, h *Harness, a Assertion) error {
	query := `
		SELECT owner_type, name, sequence, COALESCE(scope, ''), COUNT(*)
		FROM slug_history`
	var args []any
	if a.OwnerType != "" {
		root, err := h.engine.RootType(a.OwnerType)
		if err != nil {
			return err
		}
		query += ` WHERE owner_type = ?`
		args = append(args, root)
	}
	query += `
		GROUP BY owner_type, name, sequence, COALESCE(scope, '')
		HAVING COUNT(*) > 1
		ORDER BY owner_type, name, sequence`

	rows, err := h.store.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("query duplicates: %w", err)
	}
	defer rows.Close()

	var dups []string
	for rows.Next() {
		var (
			ownerType, name, scope string
			seq, n                 int
		)
		if err := rows.Scan(&ownerType, &name, &seq, &scope, &n); err != nil {
			return fmt.Errorf("scan duplicates: %w", err)
		}
		dups = append(dups, fmt.Sprintf("%s %s/%d scope=%q x%d", ownerType, name, seq, scope, n))
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate duplicates: %w", err)
	}

	if len(dups) > 0 {
		return &AssertionError{
			Type:     AssertUniqueIdentifiers,
			Expected: "every identifier held once",
			Actual:   strings.Join(dups, "; "),
		}
	}
	return nil
}
