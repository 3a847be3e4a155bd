package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/p-blackswan/impactlens/internal/jira"
	"github.com/p-blackswan/impactlens/internal/syncer"
)

// ErrSyncFailed is returned by the sync command when the run ends FAILED.
var ErrSyncFailed = errors.New("sync failed")

func newSyncCmd(deps func() *Deps) *cobra.Command {
	var (
		jql        string
		maxResults int
		recentDays int
	)
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Pull issues matching a JQL query into the ticket store",
		Long: `Run one sync. Without flags the configured default query is used.
--recent-days N syncs issues updated in the last N days and overrides --jql.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			d := deps()
			query := jql
			if query == "" {
				query = d.DefaultJQL
			}
			if recentDays > 0 {
				query = jira.RecentJQL(recentDays)
			}
			if maxResults <= 0 {
				maxResults = d.DefaultMaxResults
			}

			res := d.Syncer.Sync(cmd.Context(), query, maxResults)
			if err := printJSON(cmd.OutOrStdout(), res); err != nil {
				return err
			}
			if res.Status == syncer.StatusFailed {
				return fmt.Errorf("%w: %s", ErrSyncFailed, res.ErrorMessage)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&jql, "jql", "", "JQL query (default from SYNC_DEFAULT_JQL)")
	cmd.Flags().IntVar(&maxResults, "max-results", 0, "maximum issues to fetch (default from SYNC_DEFAULT_MAX_RESULTS)")
	cmd.Flags().IntVar(&recentDays, "recent-days", 0, "sync issues updated in the last N days")
	return cmd
}

func newTicketCmd(deps func() *Deps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ticket",
		Short: "Fetch single tickets from Jira",
	}

	get := &cobra.Command{
		Use:   "get <key>",
		Short: "Fetch a ticket without storing it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := deps().Syncer.FetchTicket(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if t == nil {
				return fmt.Errorf("ticket %s not found", args[0])
			}
			return printJSON(cmd.OutOrStdout(), t)
		},
	}

	refresh := &cobra.Command{
		Use:   "refresh <key>",
		Short: "Fetch a ticket and upsert it into the store",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := deps().Syncer.RefreshTicket(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if t == nil {
				return fmt.Errorf("ticket %s not found", args[0])
			}
			return printJSON(cmd.OutOrStdout(), t)
		},
	}

	cmd.AddCommand(get, refresh)
	return cmd
}

func newSearchCmd(deps func() *Deps) *cobra.Command {
	return &cobra.Command{
		Use:   "search <text>...",
		Short: "Free-text search in Jira (results are not stored)",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tickets, err := deps().Syncer.SearchTickets(cmd.Context(), strings.Join(args, " "))
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(tickets) == 0 {
				fmt.Fprintln(out, "No tickets found.")
				return nil
			}
			for _, t := range tickets {
				fmt.Fprintf(out, "%-12s %-12s %s\n", t.Key, t.Status, t.Summary)
			}
			return nil
		},
	}
}

func newCommentsCmd(deps func() *Deps) *cobra.Command {
	return &cobra.Command{
		Use:   "comments <key>",
		Short: "Print the comment bodies of a ticket",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := deps().Syncer.TicketComments(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			_, err = fmt.Fprint(cmd.OutOrStdout(), text)
			return err
		},
	}
}

func newAnalyzeCmd(deps func() *Deps) *cobra.Command {
	return &cobra.Command{
		Use:   "analyze <key>",
		Short: "Run impact analysis for a ticket",
		Long: `Analyze a stored ticket. A ticket that is not in the store yet is
fetched from Jira and stored first.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d := deps()
			ctx := cmd.Context()
			key := args[0]

			t, err := d.Store.FindByKey(ctx, key)
			if err != nil {
				return err
			}
			if t == nil {
				if t, err = d.Syncer.RefreshTicket(ctx, key); err != nil {
					return err
				}
				if t == nil {
					return fmt.Errorf("ticket %s not found", key)
				}
			}
			return printJSON(cmd.OutOrStdout(), d.Analyzer.Analyze(ctx, *t))
		},
	}
}

func newRunsCmd(deps func() *Deps) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recent sync runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			runs, err := deps().Store.ListSyncRuns(cmd.Context(), limit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(runs) == 0 {
				fmt.Fprintln(out, "No sync runs recorded.")
				return nil
			}
			for _, r := range runs {
				fmt.Fprintf(out, "%s  %-11s fetched=%d new=%d updated=%d failed=%d  %s\n",
					r.StartTime.Format("2006-01-02 15:04:05"), r.Status,
					r.TotalFetched, r.NewAdded, r.ExistingUpdated, r.FailedCount, r.Query)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "number of runs to show")
	return cmd
}

func newPurgeCmd(deps func() *Deps) *cobra.Command {
	return &cobra.Command{
		Use:   "purge",
		Short: "Delete expired tickets and old sync runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			d := deps()
			n, err := d.Store.PurgeExpired(cmd.Context(), d.Now())
			if err != nil {
				return err
			}
			if d.KeepRuns > 0 {
				if err := d.Store.PruneSyncRuns(cmd.Context(), d.KeepRuns); err != nil {
					return err
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Purged %d expired ticket(s).\n", n)
			return nil
		},
	}
}
