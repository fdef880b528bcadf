package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

// InitResult is the output of the init command.
type InitResult struct {
	Driver   string `json:"driver"`
	Database string `json:"database"`
}

func (r InitResult) String() string {
	return fmt.Sprintf("Initialized %s database %s", r.Driver, r.Database)
}

// NewInitCommand creates the init command.
func NewInitCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create or migrate the database schema",
		Long: `Create the entity and slug history tables.

SQLite databases are created on first use; PostgreSQL databases are
migrated to the latest schema version.

Examples:
  slughist init --db ./slughist.db
  slughist init --config ./slughist.yaml`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(rootOpts, cmd, true, func(ctx context.Context, a *app) error {
				target := a.cfg.Database.Path
				if a.cfg.Database.Driver == "postgres" {
					target = "(dsn)"
				}
				return newFormatter(rootOpts, cmd).Success(InitResult{
					Driver:   a.cfg.Database.Driver,
					Database: target,
				})
			})
		},
	}
	return cmd
}
