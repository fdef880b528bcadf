package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/urbanautomaton/friendly-id-ancient-history/internal/catalog"
	"github.com/urbanautomaton/friendly-id-ancient-history/internal/config"
)

// EntityView is the output of commands that return one entity.
type EntityView struct {
	Key       int64   `json:"key"`
	Type      string  `json:"type"`
	Scope     string  `json:"scope,omitempty"`
	Title     string  `json:"title"`
	Slug      string  `json:"slug"`
	History   string  `json:"history,omitempty"`
	Reclaimed []int64 `json:"reclaimed_from,omitempty"`
	SaveID    string  `json:"save_id,omitempty"`
}

func (v EntityView) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s #%d %s", v.Type, v.Key, v.Slug)
	if v.Scope != "" {
		fmt.Fprintf(&b, " scope=%s", v.Scope)
	}
	if v.History != "" {
		fmt.Fprintf(&b, " (%s", v.History)
		for i, k := range v.Reclaimed {
			if i == 0 {
				b.WriteString(" from")
			}
			fmt.Fprintf(&b, " #%d", k)
		}
		b.WriteString(")")
	}
	return b.String()
}

func entityView(e catalog.Entity) EntityView {
	return EntityView{
		Key:   e.Key,
		Type:  e.Type,
		Scope: e.Scope,
		Title: e.Title,
		Slug:  e.Slug,
	}
}

func savedView(res catalog.Result) EntityView {
	v := entityView(res.Entity)
	v.History = string(res.Sync.Outcome)
	v.SaveID = res.SaveID
	for _, r := range res.Sync.Reclaimed {
		v.Reclaimed = append(v.Reclaimed, r.OwnerID)
	}
	return v
}

// targetOptions address an existing entity by key or identifier.
type targetOptions struct {
	*RootOptions
	Type  string
	Scope string
}

func (o *targetOptions) bind(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&o.Type, "type", "t", config.DefaultType, "owner type")
	cmd.Flags().StringVarP(&o.Scope, "scope", "s", "", "scope partition (scoped configurations)")
}

// resolve finds the key of the entity id names: a raw key, its current
// identifier or one it used before.
func (o *targetOptions) resolve(ctx context.Context, a *app, id string) (int64, error) {
	ent, err := a.svc.Find(ctx, o.Type, o.Scope, id)
	if err != nil {
		return 0, err
	}
	return ent.Key, nil
}

// NewCreateCommand creates the create command.
func NewCreateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &targetOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "create <title>",
		Short: "Create an entity with an identifier derived from its title",
		Long: `Create an entity and give it an identifier derived from title.

When the name is taken within the owner's root type (and scope), the
lowest free sequence above the existing ones is appended.

Examples:
  slughist create "Hello World"
  slughist create --type Article "Hello World"
  slughist create --scope blog-1 "Hello World"`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := newFormatter(rootOpts, cmd)
			return withApp(rootOpts, cmd, false, func(ctx context.Context, a *app) error {
				res, err := a.svc.Create(ctx, opts.Type, opts.Scope, args[0])
				if err != nil {
					return f.Fail("create failed", err)
				}
				return f.Success(savedView(res))
			})
		},
	}
	opts.bind(cmd)
	return cmd
}

// NewRenameCommand creates the rename command.
func NewRenameCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &targetOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "rename <id> <title>",
		Short: "Change an entity's title",
		Long: `Change the title of the entity id names (key, current or past identifier).

The identifier is regenerated only when the new title yields a different
name. The previous identifier stays in the history and keeps resolving.

Examples:
  slughist rename hello-world "Goodbye World"
  slughist rename 42 "Goodbye World"`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := newFormatter(rootOpts, cmd)
			return withApp(rootOpts, cmd, false, func(ctx context.Context, a *app) error {
				key, err := opts.resolve(ctx, a, args[0])
				if err != nil {
					return f.Fail("entity not found", err)
				}
				res, err := a.svc.Rename(ctx, key, args[1])
				if err != nil {
					return f.Fail("rename failed", err)
				}
				return f.Success(savedView(res))
			})
		},
	}
	opts.bind(cmd)
	return cmd
}

// NewRegenerateCommand creates the regenerate command.
func NewRegenerateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &targetOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "regenerate <id>",
		Short: "Derive an entity's identifier again from its title",
		Long: `Clear the identifier of the entity id names and derive it again from
the stored title. An identifier the entity used before is taken back
without adding a history record.`,
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
				res, err := a.svc.Regenerate(ctx, key)
				if err != nil {
					return f.Fail("regenerate failed", err)
				}
				return f.Success(savedView(res))
			})
		},
	}
	opts.bind(cmd)
	return cmd
}

// DestroyResult is the output of the destroy command.
type DestroyResult struct {
	Key int64 `json:"key"`
}

func (r DestroyResult) String() string {
	return fmt.Sprintf("Destroyed #%d", r.Key)
}

// NewDestroyCommand creates the destroy command.
func NewDestroyCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &targetOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:           "destroy <id>",
		Short:         "Delete an entity and its identifier history",
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
				if err := a.svc.Destroy(ctx, key); err != nil {
					return f.Fail("destroy failed", err)
				}
				return f.Success(DestroyResult{Key: key})
			})
		},
	}
	opts.bind(cmd)
	return cmd
}
