package jira

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/p-blackswan/impactlens/internal/config"
	perrors "github.com/p-blackswan/impactlens/internal/errors"
	"github.com/p-blackswan/impactlens/internal/retry"
)

// Prober is anything that can check Jira credentials.
type Prober interface {
	Myself(ctx context.Context) (*User, error)
}

// Probe checks configuration and connectivity once at startup, retrying
// transient failures. The outcome is logged and returned; callers are not
// expected to abort on failure.
func Probe(ctx context.Context, cfg config.JiraConfig, p Prober, rc retry.Config, logger zerolog.Logger) error {
	log := logger.With().Str("component", "jira-probe").Logger()

	if err := cfg.Validate(); err != nil {
		log.Error().Err(err).
			Str("base_url", cfg.BaseURL).
			Str("username", cfg.Username).
			Bool("api_token_set", cfg.APIToken != "").
			Msg("jira configuration is invalid")
		return err
	}

	if rc.OnRetry == nil {
		rc.OnRetry = func(attempt int, err error, delay time.Duration) {
			log.Warn().Err(err).Int("attempt", attempt).Dur("backoff", delay).Msg("jira probe failed, retrying")
		}
	}

	var user *User
	err := retry.Do(ctx, rc, func(ctx context.Context) error {
		var err error
		user, err = p.Myself(ctx)
		return err
	})
	if err != nil {
		log.Error().Err(err).Str("hint", probeHint(err)).Msg("jira connection test failed")
		return err
	}

	log.Info().
		Str("base_url", cfg.FormattedBaseURL()).
		Str("username", cfg.Username).
		Str("account", user.DisplayName).
		Msg("jira connection successful")
	return nil
}

func probeHint(err error) string {
	switch {
	case errors.Is(err, perrors.ErrAuthFailure):
		return "authentication failed, check username and API token"
	case errors.Is(err, perrors.ErrNotFound):
		return "jira URL not found, check the base URL"
	case errors.Is(err, perrors.ErrDenied):
		return "access denied, check permissions"
	case errors.Is(err, perrors.ErrUpstreamUnreachable):
		return "cannot connect to jira, check network connectivity"
	case errors.Is(err, perrors.ErrUnexpectedContentType):
		return "jira returned a non-JSON page, likely a login redirect"
	}
	return "unexpected error"
}
