package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/trailhq/trailsync/internal/cache"
	"github.com/trailhq/trailsync/internal/store"
)

// CacheOptions holds flags for the cache subcommands.
type CacheOptions struct {
	*RootOptions
	Database    string
	Fingerprint string
	Expired     bool
}

// cacheEntryView is the JSON shape of one listed cache entry.
type cacheEntryView struct {
	Fingerprint string `json:"fingerprint"`
	FetchedAt   string `json:"fetched_at"`
	TTLSeconds  int64  `json:"ttl_seconds"`
	Fresh       bool   `json:"fresh"`
}

// NewCacheCommand creates the cache command group.
func NewCacheCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and prune the response cache",
	}
	cmd.AddCommand(newCacheLsCommand(rootOpts))
	cmd.AddCommand(newCacheRmCommand(rootOpts))
	return cmd
}

func newCacheLsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CacheOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "ls",
		Short: "List cached fingerprints and their freshness",
		Long: `List every cache entry with its fetch time and freshness state.

Examples:
  trailsync cache ls --db ./trailsync.db
  trailsync cache ls --db ./trailsync.db --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCacheLs(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	return cmd
}

func runCacheLs(opts *CacheOptions, cmd *cobra.Command) error {
	ctx := context.Background()

	st, err := store.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	c := cache.New(st)
	fps, err := c.Fingerprints(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to list cache", err)
	}

	views := make([]cacheEntryView, 0, len(fps))
	for _, fp := range fps {
		entry, ok := c.Get(ctx, fp)
		if !ok {
			continue // dropped as corrupt between list and get
		}
		views = append(views, cacheEntryView{
			Fingerprint: entry.Fingerprint,
			FetchedAt:   entry.FetchedAt.UTC().Format(time.RFC3339),
			TTLSeconds:  entry.TTLSeconds,
			Fresh:       c.IsFresh(entry),
		})
	}

	if opts.Format == "json" {
		return writeJSON(cmd.OutOrStdout(), views)
	}

	if len(views) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "cache is empty")
		return nil
	}
	for _, v := range views {
		state := "stale"
		if v.Fresh {
			state = "fresh"
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%-5s  %s  ttl=%ds  %s\n", state, v.FetchedAt, v.TTLSeconds, v.Fingerprint)
	}
	return nil
}

func newCacheRmCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CacheOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "rm",
		Short: "Drop cache entries",
		Long: `Drop a single fingerprint, or every expired entry.

Examples:
  trailsync cache rm --db ./trailsync.db --fingerprint "/participants?org=42"
  trailsync cache rm --db ./trailsync.db --expired`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCacheRm(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.Fingerprint, "fingerprint", "", "fingerprint to drop")
	cmd.Flags().BoolVar(&opts.Expired, "expired", false, "drop every entry past its freshness window")
	return cmd
}

func runCacheRm(opts *CacheOptions, cmd *cobra.Command) error {
	if (opts.Fingerprint == "") == !opts.Expired {
		return WrapExitError(ExitCommandError, "exactly one of --fingerprint or --expired is required", nil)
	}

	ctx := context.Background()

	st, err := store.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	c := cache.New(st)

	if opts.Expired {
		n, err := c.PurgeExpired(ctx)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to purge cache", err)
		}
		if opts.Format == "json" {
			return writeJSON(cmd.OutOrStdout(), map[string]int64{"dropped": n})
		}
		fmt.Fprintf(cmd.OutOrStdout(), "dropped %d expired entries\n", n)
		return nil
	}

	if err := c.Invalidate(ctx, opts.Fingerprint); err != nil {
		return WrapExitError(ExitCommandError, "failed to drop cache entry", err)
	}
	if opts.Format == "json" {
		return writeJSON(cmd.OutOrStdout(), map[string]string{"dropped": opts.Fingerprint})
	}
	fmt.Fprintf(cmd.OutOrStdout(), "dropped %s\n", opts.Fingerprint)
	return nil
}
