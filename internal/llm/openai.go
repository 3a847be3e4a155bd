package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/p-blackswan/impactlens/internal/config"
	perrors "github.com/p-blackswan/impactlens/internal/errors"
	"github.com/p-blackswan/impactlens/internal/metrics"
)

const (
	serviceName    = "openai"
	maxErrorBody   = 4096
	defaultTimeout = 60 * time.Second
)

// Client is a single-shot chat completion client. It never retries.
type Client struct {
	cfg     config.CompletionConfig
	client  *http.Client
	logger  zerolog.Logger
	metrics *metrics.Metrics
}

// Option configures the client.
type Option func(*Client)

func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.client = c }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(cl *Client) { cl.metrics = m }
}

// NewClient constructs a completion client from cfg.
func NewClient(cfg config.CompletionConfig, logger zerolog.Logger, opts ...Option) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	c := &Client{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
		logger: logger.With().Str("component", "llm").Logger(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Model returns the configured model identifier.
func (c *Client) Model() string { return c.cfg.Model }

// Complete sends prompt as a single user message and returns the content of
// choice 0.
func (c *Client) Complete(ctx context.Context, prompt string) (string, error) {
	text, err := c.complete(ctx, prompt)
	if err != nil {
		c.metrics.RecordUpstream(serviceName, "error")
		c.logger.Warn().Err(err).Msg("completion failed")
		return "", err
	}
	c.metrics.RecordUpstream(serviceName, "ok")
	return text, nil
}

func (c *Client) complete(ctx context.Context, prompt string) (string, error) {
	if err := c.cfg.Validate(); err != nil {
		return "", err
	}

	body, err := json.Marshal(chatRequest{
		Model:       c.cfg.Model,
		Messages:    []Message{{Role: RoleUser, Content: prompt}},
		Temperature: c.cfg.Temperature,
		MaxTokens:   c.cfg.MaxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", perrors.ErrUpstreamUnreachable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return "", perrors.NewAPIError(serviceName, resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var cr chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&cr); err != nil {
		return "", fmt.Errorf("%w: completion response: %v", perrors.ErrDecodeFailure, err)
	}
	if len(cr.Choices) == 0 {
		return "", fmt.Errorf("%w: completion returned no choices", perrors.ErrUpstreamNonSuccess)
	}

	c.logger.Debug().
		Str("model", cr.Model).
		Int("prompt_tokens", cr.Usage.PromptTokens).
		Int("completion_tokens", cr.Usage.CompletionTokens).
		Msg("completion received")
	return cr.Choices[0].Message.Content, nil
}
