package jira

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"

	"github.com/p-blackswan/impactlens/internal/config"
	perrors "github.com/p-blackswan/impactlens/internal/errors"
)

const userAgent = "ImpactLens/1.0"

// HTTPClient abstracts HTTP calls for testing.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Authenticator applies authentication to requests.
type Authenticator interface {
	Apply(req *http.Request) error
}

// Client wraps the subset of the Jira REST API impactlens consumes.
type Client struct {
	baseURL    string
	httpClient HTTPClient
	auth       Authenticator
	logger     zerolog.Logger
}

// NewClient creates a Jira API client using Basic auth from cfg.
func NewClient(cfg config.JiraConfig, logger zerolog.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:    cfg.FormattedBaseURL(),
		httpClient: &http.Client{Timeout: timeout},
		auth:       &BasicAuth{Username: cfg.Username, APIToken: cfg.APIToken},
		logger:     logger.With().Str("component", "jira").Logger(),
	}
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (c *Client) SetHTTPClient(hc HTTPClient) {
	c.httpClient = hc
}

// SetAuthenticator replaces the request authenticator.
func (c *Client) SetAuthenticator(a Authenticator) {
	c.auth = a
}

// BaseURL returns the base URL of the Jira instance.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// getJSON executes an authenticated GET and decodes a JSON body into v.
func (c *Client) getJSON(ctx context.Context, path string, query url.Values, v interface{}) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)

	if err := c.auth.Apply(req); err != nil {
		return fmt.Errorf("applying auth: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: jira: %v", perrors.ErrUpstreamUnreachable, err)
	}
	defer resp.Body.Close()

	c.logger.Debug().Str("path", path).Int("status", resp.StatusCode).Msg("jira response")

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &perrors.APIError{Service: "jira", StatusCode: resp.StatusCode, Message: string(body)}
	}

	// An HTML page with a 2xx status is usually a login redirect.
	if !isJSON(resp.Header.Get("Content-Type")) {
		return fmt.Errorf("%w: jira returned %q, check authentication and base URL",
			perrors.ErrUnexpectedContentType, resp.Header.Get("Content-Type"))
	}

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("%w: decoding jira response: %v", perrors.ErrDecodeFailure, err)
	}
	return nil
}

func isJSON(contentType string) bool {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return mt == "application/json"
}
