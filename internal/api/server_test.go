package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/p-blackswan/impactlens/internal/analysis"
	perrors "github.com/p-blackswan/impactlens/internal/errors"
	"github.com/p-blackswan/impactlens/internal/health"
	"github.com/p-blackswan/impactlens/internal/metrics"
	"github.com/p-blackswan/impactlens/internal/syncer"
	"github.com/p-blackswan/impactlens/internal/ticket"
)

type fakeSyncer struct {
	remote     map[string]ticket.Ticket
	fetchErr   error
	syncStatus syncer.Status
	lastJQL    string
	lastMax    int
	refreshed  []string
	search     []ticket.Ticket
}

func (f *fakeSyncer) Sync(_ context.Context, q string, n int) syncer.Result {
	f.lastJQL, f.lastMax = q, n
	status := f.syncStatus
	if status == "" {
		status = syncer.StatusCompleted
	}
	r := syncer.Result{RunID: "run-1", Query: q, Status: status, FailedKeys: []string{}}
	if status == syncer.StatusFailed {
		r.ErrorMessage = "search failed"
	}
	return r
}

func (f *fakeSyncer) FetchTicket(_ context.Context, key string) (*ticket.Ticket, error) {
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	t, ok := f.remote[key]
	if !ok {
		return nil, nil
	}
	return &t, nil
}

func (f *fakeSyncer) RefreshTicket(ctx context.Context, key string) (*ticket.Ticket, error) {
	f.refreshed = append(f.refreshed, key)
	return f.FetchTicket(ctx, key)
}

func (f *fakeSyncer) SearchTickets(_ context.Context, _ string) ([]ticket.Ticket, error) {
	return f.search, nil
}

func (f *fakeSyncer) TicketComments(_ context.Context, _ string) (string, error) {
	return "first\nsecond\n", nil
}

type fakeStore struct {
	tickets map[string]ticket.Ticket
	runs    []syncer.Result
	err     error
}

func (f *fakeStore) FindByKey(_ context.Context, key string) (*ticket.Ticket, error) {
	if f.err != nil {
		return nil, f.err
	}
	t, ok := f.tickets[key]
	if !ok {
		return nil, nil
	}
	return &t, nil
}

func (f *fakeStore) ListTickets(_ context.Context, _ int) ([]ticket.Ticket, error) {
	var out []ticket.Ticket
	for _, t := range f.tickets {
		out = append(out, t)
	}
	return out, f.err
}

func (f *fakeStore) ListSyncRuns(_ context.Context, _ int) ([]syncer.Result, error) {
	return f.runs, f.err
}

type fakeAnalyzer struct{ analyzed []string }

func (f *fakeAnalyzer) Analyze(_ context.Context, t ticket.Ticket) analysis.Result {
	f.analyzed = append(f.analyzed, t.Key)
	return analysis.Result{AnalysisID: "a-1", TicketKey: t.Key, Status: analysis.StatusCompleted,
		Report: analysis.Report{Summary: "summary of " + t.Key}}
}

type testEnv struct {
	server   *Server
	syncer   *fakeSyncer
	store    *fakeStore
	analyzer *fakeAnalyzer
	metrics  *metrics.Metrics
}

func newTestEnv(t *testing.T, cfg ServerConfig) *testEnv {
	t.Helper()
	env := &testEnv{
		syncer:   &fakeSyncer{remote: map[string]ticket.Ticket{"X-1": {Key: "X-1", Summary: "remote"}}},
		store:    &fakeStore{tickets: map[string]ticket.Ticket{"S-1": {Key: "S-1", Summary: "stored"}}},
		analyzer: &fakeAnalyzer{},
		metrics:  metrics.New(),
	}
	h := NewHandlers(env.syncer, env.store, env.analyzer, SyncDefaults{}, zerolog.Nop())
	checker := health.NewChecker(zerolog.Nop())
	env.server = NewServer(cfg, h, checker, env.metrics, zerolog.Nop())
	return env
}

func do(t *testing.T, s *Server, method, path string, body string, headers ...string) (*http.Response, string) {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	resp, err := s.App().Test(req, -1)
	require.NoError(t, err)
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	resp.Body.Close()
	return resp, string(data)
}

func TestHealthz_SetsRequestID(t *testing.T) {
	env := newTestEnv(t, ServerConfig{})

	resp, body := do(t, env.server, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "ok")
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))

	resp, _ = do(t, env.server, http.MethodGet, "/healthz", "", "X-Request-ID", "abc-123")
	assert.Equal(t, "abc-123", resp.Header.Get("X-Request-ID"))
}

func TestGetTicket(t *testing.T) {
	env := newTestEnv(t, ServerConfig{})

	resp, body := do(t, env.server, http.MethodGet, "/api/jira/ticket/X-1", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, `"ticketKey":"X-1"`)

	resp, body = do(t, env.server, http.MethodGet, "/api/jira/ticket/NOPE-1", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Contains(t, body, "not_found")
}

func TestGetTicket_UpstreamErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"auth", perrors.NewAPIError("jira", 401, ""), http.StatusBadGateway},
		{"config", fmt.Errorf("%w: missing JIRA_API_TOKEN", perrors.ErrConfigurationInvalid), http.StatusServiceUnavailable},
		{"rate limit", perrors.NewAPIError("jira", 429, ""), http.StatusTooManyRequests},
		{"content type", fmt.Errorf("%w: text/html", perrors.ErrUnexpectedContentType), http.StatusBadGateway},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, ServerConfig{})
			env.syncer.fetchErr = tt.err

			resp, body := do(t, env.server, http.MethodGet, "/api/jira/ticket/X-1", "")
			assert.Equal(t, tt.want, resp.StatusCode)

			var p ProblemDetail
			require.NoError(t, json.Unmarshal([]byte(body), &p))
			assert.Equal(t, tt.want, p.Status)
		})
	}
}

func TestRefreshTicket(t *testing.T) {
	env := newTestEnv(t, ServerConfig{})
	resp, _ := do(t, env.server, http.MethodPut, "/api/jira/ticket/X-1", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []string{"X-1"}, env.syncer.refreshed)
}

func TestSearch_RequiresQuery(t *testing.T) {
	env := newTestEnv(t, ServerConfig{})

	resp, _ := do(t, env.server, http.MethodGet, "/api/jira/search", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, body := do(t, env.server, http.MethodGet, "/api/jira/search?query=login", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "[]", body)
}

func TestComments_PlainText(t *testing.T) {
	env := newTestEnv(t, ServerConfig{})
	resp, body := do(t, env.server, http.MethodGet, "/api/jira/ticket/X-1/comments", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "first\nsecond\n", body)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/plain")
}

func TestSync_Endpoints(t *testing.T) {
	env := newTestEnv(t, ServerConfig{})

	resp, body := do(t, env.server, http.MethodPost, "/api/jira/sync?jql=project%20%3D%20X&maxResults=50", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, `"status":"COMPLETED"`)
	assert.Equal(t, "project = X", env.syncer.lastJQL)
	assert.Equal(t, 50, env.syncer.lastMax)

	do(t, env.server, http.MethodPost, "/api/jira/sync/all", "")
	assert.Equal(t, "ORDER BY updated DESC", env.syncer.lastJQL)
	assert.Equal(t, 100, env.syncer.lastMax)

	do(t, env.server, http.MethodPost, "/api/jira/sync/recent?days=7", "")
	assert.Equal(t, "updated >= -7d ORDER BY updated DESC", env.syncer.lastJQL)

	do(t, env.server, http.MethodPost, "/api/jira/sync/recent", "")
	assert.Equal(t, "updated >= -30d ORDER BY updated DESC", env.syncer.lastJQL)

	resp, _ = do(t, env.server, http.MethodPost, "/api/jira/sync?maxResults=0", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSync_FailedRunIs500WithResult(t *testing.T) {
	env := newTestEnv(t, ServerConfig{})
	env.syncer.syncStatus = syncer.StatusFailed

	resp, body := do(t, env.server, http.MethodPost, "/api/jira/sync/all", "")
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)

	var r syncer.Result
	require.NoError(t, json.Unmarshal([]byte(body), &r))
	assert.Equal(t, syncer.StatusFailed, r.Status)
	assert.Equal(t, "search failed", r.ErrorMessage)
}

func TestListSyncRuns(t *testing.T) {
	env := newTestEnv(t, ServerConfig{})
	resp, body := do(t, env.server, http.MethodGet, "/api/jira/sync/runs", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "[]", body)
}

func TestListTickets_StoreError(t *testing.T) {
	env := newTestEnv(t, ServerConfig{})
	env.store.err = errors.New("database is locked")

	resp, body := do(t, env.server, http.MethodGet, "/api/jira/tickets", "")
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Contains(t, body, "internal_error")
	assert.NotContains(t, body, "database is locked")
}

func TestAnalyze(t *testing.T) {
	env := newTestEnv(t, ServerConfig{})

	resp, body := do(t, env.server, http.MethodPost, "/api/analysis/S-1", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, `"summary":"summary of S-1"`)
	assert.Empty(t, env.syncer.refreshed, "stored tickets are not refetched")

	resp, _ = do(t, env.server, http.MethodPost, "/api/analysis/X-1", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []string{"X-1"}, env.syncer.refreshed)

	resp, _ = do(t, env.server, http.MethodPost, "/api/analysis/NOPE-9", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	assert.Equal(t, []string{"S-1", "X-1"}, env.analyzer.analyzed)
}

func TestAnalyzeBody(t *testing.T) {
	env := newTestEnv(t, ServerConfig{})

	resp, _ := do(t, env.server, http.MethodPost, "/api/analysis/analyze", `{"ticketId":"S-1"}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = do(t, env.server, http.MethodPost, "/api/analysis/analyze", `{}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAuth_APIKey(t *testing.T) {
	env := newTestEnv(t, ServerConfig{Auth: AuthConfig{Mode: AuthAPIKey, APIKey: "secret"}})

	resp, _ := do(t, env.server, http.MethodGet, "/api/jira/tickets", "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, _ = do(t, env.server, http.MethodGet, "/api/jira/tickets", "", "Authorization", "Basic abc")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, _ = do(t, env.server, http.MethodGet, "/api/jira/tickets", "", "Authorization", "Bearer wrong")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, _ = do(t, env.server, http.MethodGet, "/api/jira/tickets", "", "Authorization", "Bearer secret")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = do(t, env.server, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func signHS256(t *testing.T, secret string, exp time.Time) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "dashboard",
		ExpiresAt: jwt.NewNumericDate(exp),
	})
	s, err := tok.SignedString([]byte(secret))
	require.NoError(t, err)
	return s
}

func TestAuth_JWT(t *testing.T) {
	env := newTestEnv(t, ServerConfig{Auth: AuthConfig{Mode: AuthJWT, JWTSecret: "hmac-secret"}})
	path := "/api/jira/tickets"

	valid := signHS256(t, "hmac-secret", time.Now().Add(time.Hour))
	resp, _ := do(t, env.server, http.MethodGet, path, "", "Authorization", "Bearer "+valid)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	expired := signHS256(t, "hmac-secret", time.Now().Add(-time.Hour))
	resp, _ = do(t, env.server, http.MethodGet, path, "", "Authorization", "Bearer "+expired)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	wrongKey := signHS256(t, "other", time.Now().Add(time.Hour))
	resp, _ = do(t, env.server, http.MethodGet, path, "", "Authorization", "Bearer "+wrongKey)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	resp, _ = do(t, env.server, http.MethodGet, path, "", "Authorization", "Bearer "+unsigned)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestRateLimit(t *testing.T) {
	env := newTestEnv(t, ServerConfig{RateLimit: RateLimitConfig{RPS: 1, Burst: 2}})

	for i := 0; i < 2; i++ {
		resp, _ := do(t, env.server, http.MethodGet, "/api/jira/tickets", "")
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	}
	resp, body := do(t, env.server, http.MethodGet, "/api/jira/tickets", "")
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Contains(t, body, "rate_limit_exceeded")

	resp, _ = do(t, env.server, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t, ServerConfig{})
	do(t, env.server, http.MethodGet, "/api/jira/tickets", "")

	resp, body := do(t, env.server, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "impactlens_http_requests_total")
	assert.Contains(t, body, `route="/api/jira/tickets"`)
}

func TestUnknownRoute(t *testing.T) {
	env := newTestEnv(t, ServerConfig{})
	resp, body := do(t, env.server, http.MethodGet, "/api/nope", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Contains(t, body, "http_error")
}
