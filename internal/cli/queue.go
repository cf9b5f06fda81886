package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/trailhq/trailsync/internal/cache"
	"github.com/trailhq/trailsync/internal/connectivity"
	"github.com/trailhq/trailsync/internal/gateway"
	"github.com/trailhq/trailsync/internal/invalidate"
	"github.com/trailhq/trailsync/internal/queue"
	"github.com/trailhq/trailsync/internal/store"
)

// QueueOptions holds flags for the queue subcommands.
type QueueOptions struct {
	*RootOptions
	Database string
	Failed   bool
	ID       string
	BaseURL  string
}

// mutationView is the JSON shape of one listed mutation.
type mutationView struct {
	Seq        int64  `json:"seq"`
	ID         string `json:"id"`
	Endpoint   string `json:"endpoint"`
	Method     string `json:"method"`
	EntityType string `json:"entity_type"`
	CreatedAt  string `json:"created_at"`
	Attempts   int    `json:"attempts"`
	Status     string `json:"status"`
}

// NewQueueCommand creates the queue command group.
func NewQueueCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and replay the offline mutation queue",
	}
	cmd.AddCommand(newQueueLsCommand(rootOpts))
	cmd.AddCommand(newQueueRetryCommand(rootOpts))
	cmd.AddCommand(newQueueReplayCommand(rootOpts))
	return cmd
}

func newQueueLsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &QueueOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "ls",
		Short: "List queued mutations in replay order",
		Long: `List every queued mutation in the order replay will send them.

Examples:
  trailsync queue ls --db ./trailsync.db
  trailsync queue ls --db ./trailsync.db --failed --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQueueLs(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().BoolVar(&opts.Failed, "failed", false, "show only mutations that exhausted their attempts")
	return cmd
}

func runQueueLs(opts *QueueOptions, cmd *cobra.Command) error {
	ctx := context.Background()

	st, err := store.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	q := queue.New(st)

	var muts []queue.Mutation
	if opts.Failed {
		muts, err = q.ListFailed(ctx)
	} else {
		muts, err = q.ListAll(ctx)
	}
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to list queue", err)
	}

	views := make([]mutationView, 0, len(muts))
	for _, m := range muts {
		views = append(views, mutationView{
			Seq:        m.Seq,
			ID:         m.ID,
			Endpoint:   m.Endpoint,
			Method:     m.Method,
			EntityType: m.EntityType,
			CreatedAt:  m.CreatedAt.UTC().Format(time.RFC3339),
			Attempts:   m.Attempts,
			Status:     string(m.Status),
		})
	}

	if opts.Format == "json" {
		return writeJSON(cmd.OutOrStdout(), views)
	}

	if len(views) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "queue is empty")
		return nil
	}
	for _, v := range views {
		fmt.Fprintf(cmd.OutOrStdout(), "%4d  %-16s  %-6s %-40s  attempts=%d  %s\n",
			v.Seq, v.Status, v.Method, v.Endpoint, v.Attempts, v.ID)
	}
	return nil
}

func newQueueRetryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &QueueOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "retry",
		Short: "Return a failed mutation to the pending queue",
		Long: `Reset a failed-permanent mutation so the next replay cycle picks it up again.

Examples:
  trailsync queue retry --db ./trailsync.db --id 0190f3a2-...`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQueueRetry(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.ID, "id", "", "mutation ID (required)")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}

func runQueueRetry(opts *QueueOptions, cmd *cobra.Command) error {
	ctx := context.Background()

	st, err := store.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	q := queue.New(st)
	if err := q.Retry(ctx, opts.ID); err != nil {
		return WrapExitError(ExitCommandError, "failed to retry mutation", err)
	}

	if opts.Format == "json" {
		return writeJSON(cmd.OutOrStdout(), map[string]string{"retried": opts.ID})
	}
	fmt.Fprintf(cmd.OutOrStdout(), "mutation %s returned to pending\n", opts.ID)
	return nil
}

func newQueueReplayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &QueueOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Replay pending mutations against the backend",
		Long: `Send every pending mutation, oldest first, stopping at the first transient failure.

Examples:
  trailsync queue replay --db ./trailsync.db --base-url https://api.trailhq.example`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQueueReplay(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.BaseURL, "base-url", "", "backend base URL (required)")
	_ = cmd.MarkFlagRequired("base-url")
	return cmd
}

func runQueueReplay(opts *QueueOptions, cmd *cobra.Command) error {
	ctx := context.Background()

	st, err := store.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	q := queue.New(st)
	before, err := q.ListPending(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to list queue", err)
	}

	c := cache.New(st)
	inv := invalidate.New(invalidate.Default(), c)
	mon := connectivity.New()
	// One-shot invocation: no background retry timer.
	gw := gateway.New(opts.BaseURL, mon, c, q, inv, gateway.WithRetryDelay(0))

	if err := gw.Replay(ctx); err != nil {
		return WrapExitError(ExitCommandError, "replay failed", err)
	}

	after, err := q.ListPending(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to list queue", err)
	}
	sent := len(before) - len(after)
	if sent < 0 {
		sent = 0
	}

	if opts.Format == "json" {
		return writeJSON(cmd.OutOrStdout(), map[string]int{"sent": sent, "remaining": len(after)})
	}
	fmt.Fprintf(cmd.OutOrStdout(), "sent %d mutations, %d remaining\n", sent, len(after))
	return nil
}
