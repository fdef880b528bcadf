package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

// NewFindCommand creates the find command.
func NewFindCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &targetOptions{RootOptions: rootOpts}
	var existsOnly bool

	cmd := &cobra.Command{
		Use:   "find <id>",
		Short: "Resolve a key or identifier to its entity",
		Long: `Resolve id to an entity of the given type.

The live identifier is tried first, then every identifier the type's
entities used before (most recent owner wins), then id as a raw key.
Strings that look like keys are tried as keys first.

Exit codes:
  0 - Found
  1 - Not found

Examples:
  slughist find hello-world
  slughist find --type Article hello-world--2
  slughist find --exists 42`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := newFormatter(rootOpts, cmd)
			return withApp(rootOpts, cmd, false, func(ctx context.Context, a *app) error {
				if existsOnly {
					ok, err := a.svc.Exists(ctx, opts.Type, opts.Scope, args[0])
					if err != nil {
						return f.Fail("lookup failed", err)
					}
					if err := f.Success(ExistsResult{ID: args[0], Exists: ok}); err != nil {
						return err
					}
					if !ok {
						return NewExitError(ExitFailure, fmt.Sprintf("%q not found", args[0]))
					}
					return nil
				}

				ent, err := a.svc.Find(ctx, opts.Type, opts.Scope, args[0])
				if err != nil {
					return f.Fail("lookup failed", err)
				}
				return f.Success(entityView(ent))
			})
		},
	}
	opts.bind(cmd)
	cmd.Flags().BoolVar(&existsOnly, "exists", false, "only report whether id resolves")
	return cmd
}

// ExistsResult is the output of find --exists.
type ExistsResult struct {
	ID     string `json:"id"`
	Exists bool   `json:"exists"`
}

func (r ExistsResult) String() string {
	return fmt.Sprintf("%s: %t", r.ID, r.Exists)
}

// HistoryEntry is one identifier an entity has used.
type HistoryEntry struct {
	Identifier string    `json:"identifier"`
	Name       string    `json:"name"`
	Sequence   int       `json:"sequence"`
	Scope      *string   `json:"scope,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// HistoryResult is the output of the history command, oldest entry first.
type HistoryResult struct {
	Key     int64          `json:"key"`
	Entries []HistoryEntry `json:"entries"`
}

func (r HistoryResult) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "#%d", r.Key)
	for i, e := range r.Entries {
		marker := " "
		if i == len(r.Entries)-1 {
			marker = "*"
		}
		fmt.Fprintf(&b, "\n%s %s\t%s", marker, e.Identifier, e.CreatedAt.Format(time.RFC3339))
	}
	return b.String()
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &targetOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "history <id>",
		Short: "List the identifiers an entity has used",
		Long: `List every identifier the entity id names has used, oldest first.
The current identifier is marked with *.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := newFormatter(rootOpts, cmd)
			return withApp(rootOpts, cmd, false, func(ctx context.Context, a *app) error {
				key, err := opts.resolve(ctx, a, args[0])
				if err != nil {
					return f.Fail("entity not found", err)
				}
				recs, err := a.svc.History(ctx, key)
				if err != nil {
					return f.Fail("history failed", err)
				}

				sep := a.engine.Config().Separator
				res := HistoryResult{Key: key, Entries: make([]HistoryEntry, 0, len(recs))}
				for _, r := range recs {
					res.Entries = append(res.Entries, HistoryEntry{
						Identifier: r.Identifier(sep),
						Name:       r.Name,
						Sequence:   r.Sequence,
						Scope:      r.Scope,
						CreatedAt:  r.CreatedAt,
					})
				}
				return f.Success(res)
			})
		},
	}
	opts.bind(cmd)
	return cmd
}
