package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"

	perrors "github.com/p-blackswan/impactlens/internal/errors"
)

// Config holds all application configuration loaded from environment variables
// and, optionally, a YAML file named by CONFIG_FILE.
type Config struct {
	// General
	Environment string `envconfig:"ENVIRONMENT" default:"development"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`
	HTTPAddr    string `envconfig:"HTTP_ADDR" default:":8080"`
	DBPath      string `envconfig:"DB_PATH" default:"impactlens.db"`
	ConfigFile  string `envconfig:"CONFIG_FILE"`

	// Jira (Basic auth with username + API token)
	JiraBaseURL  string        `envconfig:"JIRA_BASE_URL"`
	JiraUsername string        `envconfig:"JIRA_USERNAME"`
	JiraAPIToken string        `envconfig:"JIRA_API_TOKEN"`
	JiraTimeout  time.Duration `envconfig:"JIRA_TIMEOUT" default:"30s"`

	// Completion backend (OpenAI-compatible chat completions)
	OpenAIAPIKey      string        `envconfig:"OPENAI_API_KEY"`
	OpenAIBaseURL     string        `envconfig:"OPENAI_BASE_URL" default:"https://api.openai.com/v1"`
	OpenAIModel       string        `envconfig:"OPENAI_MODEL" default:"gpt-4"`
	OpenAIMaxTokens   int           `envconfig:"OPENAI_MAX_TOKENS" default:"2000"`
	OpenAITemperature float64       `envconfig:"OPENAI_TEMPERATURE" default:"0.3"`
	OpenAITimeout     time.Duration `envconfig:"OPENAI_TIMEOUT" default:"60s"`

	// Sync
	SyncDefaultJQL        string        `envconfig:"SYNC_DEFAULT_JQL" default:"ORDER BY updated DESC"`
	SyncDefaultMaxResults int           `envconfig:"SYNC_DEFAULT_MAX_RESULTS" default:"100"`
	SyncRecentDays        int           `envconfig:"SYNC_RECENT_DAYS" default:"30"`
	TicketTTL             time.Duration `envconfig:"TICKET_TTL" default:"0s"` // 0 = tickets never expire
	RetentionInterval     time.Duration `envconfig:"RETENTION_INTERVAL" default:"1h"`
	SyncRunsKeep          int           `envconfig:"SYNC_RUNS_KEEP" default:"100"`

	// Analysis
	AnalysisCacheSize int           `envconfig:"ANALYSIS_CACHE_SIZE" default:"128"`
	AnalysisCacheTTL  time.Duration `envconfig:"ANALYSIS_CACHE_TTL" default:"1h"`

	// HTTP API
	APIAuthMode       string `envconfig:"API_AUTH_MODE" default:"none"` // none | api-key | jwt
	APIKey            string `envconfig:"API_KEY"`
	APIJWTSecret      string `envconfig:"API_JWT_SECRET"`
	APIRateLimitRPS   int    `envconfig:"API_RATE_LIMIT_RPS" default:"50"`
	APIRateLimitBurst int    `envconfig:"API_RATE_LIMIT_BURST" default:"100"`
	APICORSOrigins    string `envconfig:"API_CORS_ORIGINS" default:"*"`

	// Slack notifications (optional)
	SlackBotToken      string `envconfig:"SLACK_BOT_TOKEN"`
	SlackNotifyChannel string `envconfig:"SLACK_NOTIFY_CHANNEL"`
}

// JiraConfig is the subset of configuration the issue-tracker client needs.
type JiraConfig struct {
	BaseURL  string
	Username string
	APIToken string
	Timeout  time.Duration
}

// Validate checks that credentials and base URL are present and well-formed.
// It never touches the network.
func (j JiraConfig) Validate() error {
	var missing []string
	if strings.TrimSpace(j.BaseURL) == "" {
		missing = append(missing, "JIRA_BASE_URL")
	}
	if strings.TrimSpace(j.Username) == "" {
		missing = append(missing, "JIRA_USERNAME")
	}
	if strings.TrimSpace(j.APIToken) == "" {
		missing = append(missing, "JIRA_API_TOKEN")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", perrors.ErrConfigurationInvalid, strings.Join(missing, ", "))
	}

	u, err := url.Parse(strings.TrimSpace(j.BaseURL))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: JIRA_BASE_URL %q is not an http(s) URL", perrors.ErrConfigurationInvalid, j.BaseURL)
	}
	return nil
}

// FormattedBaseURL returns the trimmed base URL without a trailing slash.
func (j JiraConfig) FormattedBaseURL() string {
	return strings.TrimSuffix(strings.TrimSpace(j.BaseURL), "/")
}

// CompletionConfig is the subset of configuration the completion client needs.
type CompletionConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	MaxTokens   int
	Temperature float64
	Timeout     time.Duration
}

// Validate checks the completion backend settings.
func (c CompletionConfig) Validate() error {
	if strings.TrimSpace(c.APIKey) == "" {
		return fmt.Errorf("%w: missing OPENAI_API_KEY", perrors.ErrConfigurationInvalid)
	}
	if strings.TrimSpace(c.BaseURL) == "" {
		return fmt.Errorf("%w: missing OPENAI_BASE_URL", perrors.ErrConfigurationInvalid)
	}
	return nil
}

// Jira returns the issue-tracker configuration.
func (c Config) Jira() JiraConfig {
	return JiraConfig{
		BaseURL:  c.JiraBaseURL,
		Username: c.JiraUsername,
		APIToken: c.JiraAPIToken,
		Timeout:  c.JiraTimeout,
	}
}

// Completion returns the completion backend configuration.
func (c Config) Completion() CompletionConfig {
	return CompletionConfig{
		APIKey:      c.OpenAIAPIKey,
		BaseURL:     c.OpenAIBaseURL,
		Model:       c.OpenAIModel,
		MaxTokens:   c.OpenAIMaxTokens,
		Temperature: c.OpenAITemperature,
		Timeout:     c.OpenAITimeout,
	}
}

// JiraEnabled returns true if a Jira base URL is configured.
func (c Config) JiraEnabled() bool {
	return strings.TrimSpace(c.JiraBaseURL) != ""
}

// SlackEnabled returns true if sync notifications can be posted.
func (c Config) SlackEnabled() bool {
	return c.SlackBotToken != "" && c.SlackNotifyChannel != ""
}

// Load reads configuration from environment variables, then applies the
// YAML overlay named by CONFIG_FILE if one is set.
func Load() (Config, error) {
	return LoadWithPrefix("")
}

// LoadWithPrefix reads configuration with a prefix.
func LoadWithPrefix(prefix string) (Config, error) {
	var cfg Config
	if err := envconfig.Process(prefix, &cfg); err != nil {
		return Config{}, fmt.Errorf("loading config: %w", err)
	}
	if cfg.ConfigFile != "" {
		fc, err := LoadFile(cfg.ConfigFile)
		if err != nil {
			return Config{}, err
		}
		fc.apply(&cfg)
	}
	return cfg, nil
}
