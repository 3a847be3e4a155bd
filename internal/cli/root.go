// Package cli is the impactctl command tree.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/p-blackswan/impactlens/internal/analysis"
	"github.com/p-blackswan/impactlens/internal/app"
	"github.com/p-blackswan/impactlens/internal/config"
	"github.com/p-blackswan/impactlens/internal/syncer"
	"github.com/p-blackswan/impactlens/internal/ticket"
)

var (
	appVersion = "dev"
	appCommit  = "none"
)

// SetVersionInfo sets the version information injected via ldflags.
func SetVersionInfo(version, commit string) {
	appVersion = version
	appCommit = commit
}

// Syncer runs tracker operations.
type Syncer interface {
	Sync(ctx context.Context, query string, maxResults int) syncer.Result
	FetchTicket(ctx context.Context, key string) (*ticket.Ticket, error)
	RefreshTicket(ctx context.Context, key string) (*ticket.Ticket, error)
	SearchTickets(ctx context.Context, text string) ([]ticket.Ticket, error)
	TicketComments(ctx context.Context, key string) (string, error)
}

// Store reads and prunes local state.
type Store interface {
	FindByKey(ctx context.Context, key string) (*ticket.Ticket, error)
	ListSyncRuns(ctx context.Context, limit int) ([]syncer.Result, error)
	PurgeExpired(ctx context.Context, now time.Time) (int64, error)
	PruneSyncRuns(ctx context.Context, keep int) error
}

// Analyzer produces impact reports.
type Analyzer interface {
	Analyze(ctx context.Context, t ticket.Ticket) analysis.Result
}

// Deps are the services the commands run against.
type Deps struct {
	Syncer   Syncer
	Store    Store
	Analyzer Analyzer

	DefaultJQL        string
	DefaultMaxResults int
	KeepRuns          int
	Now               func() time.Time
}

// Loader builds Deps for one invocation. The returned func releases them.
type Loader func(ctx context.Context) (*Deps, func() error, error)

// NewRootCmd builds the command tree over load.
func NewRootCmd(load Loader) *cobra.Command {
	var (
		deps    *Deps
		release func() error
	)

	root := &cobra.Command{
		Use:   "impactctl",
		Short: "ImpactLens - Jira sync and impact analysis",
		Long: `impactctl runs ImpactLens operations once against the configured Jira
instance, completion backend and local ticket store.

Configuration comes from the same environment variables as the service.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "version" {
				return nil
			}
			var err error
			deps, release, err = load(cmd.Context())
			if err != nil {
				return fmt.Errorf("initializing: %w", err)
			}
			if deps.Now == nil {
				deps.Now = time.Now
			}
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if release != nil {
				return release()
			}
			return nil
		},
	}

	get := func() *Deps { return deps }
	root.AddCommand(
		newVersionCmd(),
		newSyncCmd(get),
		newTicketCmd(get),
		newSearchCmd(get),
		newCommentsCmd(get),
		newAnalyzeCmd(get),
		newRunsCmd(get),
		newPurgeCmd(get),
	)
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "impactctl %s\ncommit: %s\n", appVersion, appCommit)
		},
	}
}

// DefaultLoader wires Deps from the environment.
func DefaultLoader(ctx context.Context) (*Deps, func() error, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	logger := app.NewLogger(cfg.Environment, cfg.LogLevel, os.Stderr)
	a, err := app.New(cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	return &Deps{
		Syncer:            a.Engine,
		Store:             a.Store,
		Analyzer:          a.Analyzer,
		DefaultJQL:        cfg.SyncDefaultJQL,
		DefaultMaxResults: cfg.SyncDefaultMaxResults,
		KeepRuns:          cfg.SyncRunsKeep,
	}, a.Close, nil
}

// Execute runs the root command with the environment loader.
func Execute() error {
	return NewRootCmd(DefaultLoader).Execute()
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
