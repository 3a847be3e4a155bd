package jira

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"github.com/p-blackswan/impactlens/internal/config"
	perrors "github.com/p-blackswan/impactlens/internal/errors"
	"github.com/p-blackswan/impactlens/internal/retry"
)

type stubProber struct {
	errs  []error
	calls int
}

func (s *stubProber) Myself(context.Context) (*User, error) {
	s.calls++
	if s.calls <= len(s.errs) {
		return nil, s.errs[s.calls-1]
	}
	return &User{DisplayName: "Bot"}, nil
}

var probeConfig = config.JiraConfig{BaseURL: "https://example.atlassian.net/", Username: "bot", APIToken: "t"}

func fastRetry() retry.Config {
	return retry.Config{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond}
}

func TestProbe_Success(t *testing.T) {
	p := &stubProber{}
	assert.NoError(t, Probe(context.Background(), probeConfig, p, fastRetry(), zerolog.Nop()))
	assert.Equal(t, 1, p.calls)
}

func TestProbe_InvalidConfigMakesNoCall(t *testing.T) {
	p := &stubProber{}
	err := Probe(context.Background(), config.JiraConfig{}, p, fastRetry(), zerolog.Nop())
	assert.ErrorIs(t, err, perrors.ErrConfigurationInvalid)
	assert.Equal(t, 0, p.calls)
}

func TestProbe_RetriesUnreachable(t *testing.T) {
	p := &stubProber{errs: []error{fmt.Errorf("%w: refused", perrors.ErrUpstreamUnreachable)}}
	assert.NoError(t, Probe(context.Background(), probeConfig, p, fastRetry(), zerolog.Nop()))
	assert.Equal(t, 2, p.calls)
}

func TestProbe_AuthFailureNotRetried(t *testing.T) {
	p := &stubProber{errs: []error{perrors.NewAPIError("jira", http.StatusUnauthorized, "")}}
	err := Probe(context.Background(), probeConfig, p, fastRetry(), zerolog.Nop())
	assert.ErrorIs(t, err, perrors.ErrAuthFailure)
	assert.Equal(t, 1, p.calls)
}

func TestProbeHint(t *testing.T) {
	assert.Contains(t, probeHint(perrors.NewAPIError("jira", 401, "")), "authentication")
	assert.Contains(t, probeHint(perrors.NewAPIError("jira", 403, "")), "access denied")
	assert.Contains(t, probeHint(perrors.NewAPIError("jira", 404, "")), "base URL")
	assert.Contains(t, probeHint(fmt.Errorf("%w", perrors.ErrUpstreamUnreachable)), "network")
	assert.Equal(t, "unexpected error", probeHint(errors.New("boom")))
}
