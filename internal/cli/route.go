package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/trailhq/trailsync/internal/dashboard"
	"github.com/trailhq/trailsync/internal/permission"
	"github.com/trailhq/trailsync/internal/store"
)

// RouteOptions holds flags for the route command.
type RouteOptions struct {
	*RootOptions
	Database string
}

// NewRouteCommand creates the route command.
func NewRouteCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RouteOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "route",
		Short: "Show the dashboard the stored permission snapshot routes to",
		Long: `Load the persisted permission snapshot and print the dashboard it selects.

Examples:
  trailsync route --db ./trailsync.db
  trailsync route --db ./trailsync.db --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRoute(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	return cmd
}

func runRoute(opts *RouteOptions, cmd *cobra.Command) error {
	ctx := context.Background()

	st, err := store.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	eval := permission.New(st)
	if err := eval.Load(ctx); err != nil {
		return WrapExitError(ExitCommandError, "failed to load permission snapshot", err)
	}

	tokens := eval.Tokens()
	dest := dashboard.Route(tokens)

	if opts.Format == "json" {
		return writeJSON(cmd.OutOrStdout(), map[string]any{
			"dashboard": string(dest),
			"tokens":    tokens,
		})
	}

	fmt.Fprintf(cmd.OutOrStdout(), "dashboard: %s\n", dest)
	if len(tokens) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "no permission tokens stored")
		return nil
	}
	for _, tok := range tokens {
		fmt.Fprintf(cmd.OutOrStdout(), "  %s\n", tok)
	}
	return nil
}
