// Package app wires the ImpactLens components from one Config. Both the
// service and the CLI build on it.
package app

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"

	"github.com/p-blackswan/impactlens/internal/analysis"
	"github.com/p-blackswan/impactlens/internal/api"
	"github.com/p-blackswan/impactlens/internal/cache"
	"github.com/p-blackswan/impactlens/internal/config"
	"github.com/p-blackswan/impactlens/internal/health"
	"github.com/p-blackswan/impactlens/internal/jira"
	"github.com/p-blackswan/impactlens/internal/llm"
	"github.com/p-blackswan/impactlens/internal/metrics"
	"github.com/p-blackswan/impactlens/internal/notify"
	"github.com/p-blackswan/impactlens/internal/retry"
	"github.com/p-blackswan/impactlens/internal/store"
	"github.com/p-blackswan/impactlens/internal/syncer"
	"github.com/p-blackswan/impactlens/internal/ticket"
)

// App holds every long-lived component.
type App struct {
	Config   config.Config
	Logger   zerolog.Logger
	Metrics  *metrics.Metrics
	Store    *store.Store
	Jira     *jira.Client
	Engine   *syncer.Engine
	LLM      *llm.Client
	Pipeline *analysis.Pipeline
	Analyzer *analysis.Analyzer
	Reports  *cache.Cache[string, analysis.Result] // nil when ANALYSIS_CACHE_SIZE < 1
	Checker  *health.Checker
}

// NewLogger builds the process logger: JSON to w, or a console writer in
// development, at the configured level.
func NewLogger(environment, level string, w io.Writer) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339
	logger := zerolog.New(w).With().Timestamp().Logger()
	if environment == "development" {
		logger = logger.Output(zerolog.ConsoleWriter{Out: w})
	}
	if lvl, err := zerolog.ParseLevel(level); err == nil && level != "" {
		logger = logger.Level(lvl)
	}
	return logger
}

// New opens the store and builds the sync and analysis components. Missing
// upstream credentials are not an error here; each operation checks them.
func New(cfg config.Config, logger zerolog.Logger) (*App, error) {
	st, err := store.New(cfg.DBPath, logger)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}

	a := &App{
		Config:  cfg,
		Logger:  logger,
		Metrics: metrics.New(),
		Store:   st,
		Checker: health.NewChecker(logger),
	}

	a.Jira = jira.NewClient(cfg.Jira(), logger)
	engineOpts := []syncer.Option{
		syncer.WithMetrics(a.Metrics),
		syncer.WithRecorder(st),
	}
	if cfg.SlackEnabled() {
		engineOpts = append(engineOpts, syncer.WithNotifier(notify.NewSlack(cfg.SlackBotToken, cfg.SlackNotifyChannel, logger)))
	}
	a.Engine = syncer.NewEngine(cfg.Jira(), a.Jira, st, ticket.Normalizer{TTL: cfg.TicketTTL}, logger, engineOpts...)

	a.LLM = llm.NewClient(cfg.Completion(), logger, llm.WithMetrics(a.Metrics))
	a.Pipeline = analysis.NewPipeline(a.LLM, logger, analysis.WithMetrics(a.Metrics))
	var analyzerOpts []analysis.AnalyzerOption
	if cfg.AnalysisCacheSize > 0 {
		a.Reports = cache.New[string, analysis.Result](cfg.AnalysisCacheSize, cfg.AnalysisCacheTTL)
		analyzerOpts = append(analyzerOpts, analysis.WithCache(a.Reports))
	}
	a.Analyzer = analysis.NewAnalyzer(a.Pipeline, st, a.LLM.Model(), logger, analyzerOpts...)

	a.Checker.Register("store", health.PingCheck(st.Ping))
	a.Checker.Register("jira_config", health.ConfigCheck(cfg.Jira().Validate))
	a.Checker.Register("completion_config", health.ConfigCheck(cfg.Completion().Validate))

	return a, nil
}

// NewServer builds the HTTP API over the app's components.
func (a *App) NewServer() *api.Server {
	cfg := a.Config
	handlers := api.NewHandlers(a.Engine, a.Store, a.Analyzer, api.SyncDefaults{
		JQL:        cfg.SyncDefaultJQL,
		MaxResults: cfg.SyncDefaultMaxResults,
		RecentDays: cfg.SyncRecentDays,
	}, a.Logger)

	return api.NewServer(api.ServerConfig{
		ListenAddr: cfg.HTTPAddr,
		Auth: api.AuthConfig{
			Mode:      cfg.APIAuthMode,
			APIKey:    cfg.APIKey,
			JWTSecret: cfg.APIJWTSecret,
		},
		RateLimit: api.RateLimitConfig{
			RPS:   cfg.APIRateLimitRPS,
			Burst: cfg.APIRateLimitBurst,
		},
		CORSOrigins: cfg.APICORSOrigins,
	}, handlers, a.Checker, a.Metrics, a.Logger)
}

// ProbeJira runs the startup connectivity check.
func (a *App) ProbeJira(ctx context.Context) error {
	return jira.Probe(ctx, a.Config.Jira(), a.Jira, retry.DefaultConfig(), a.Logger)
}

// Sweep applies store retention and drops expired cached reports.
func (a *App) Sweep(ctx context.Context, now time.Time) error {
	if err := a.Store.RunRetention(ctx, now, a.Config.SyncRunsKeep); err != nil {
		return fmt.Errorf("store retention: %w", err)
	}
	if a.Reports != nil {
		if n := a.Reports.PurgeExpired(); n > 0 {
			a.Logger.Debug().Int("reports", n).Msg("expired cached reports dropped")
		}
	}
	return nil
}

// RunRetention calls Sweep every interval until ctx is cancelled.
func (a *App) RunRetention(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	log := a.Logger.With().Str("component", "retention").Logger()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	log.Info().Dur("interval", interval).Msg("retention loop started")
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("retention loop stopped")
			return
		case t := <-ticker.C:
			if err := a.Sweep(ctx, t); err != nil {
				log.Error().Err(err).Msg("retention sweep failed")
			}
		}
	}
}

// Close releases the store.
func (a *App) Close() error {
	return a.Store.Close()
}
