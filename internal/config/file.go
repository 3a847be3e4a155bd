package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// FileConfig is the optional YAML overlay. Values set in the file win over
// the environment; empty values leave the environment value in place.
// String values may be written as ${VAR} so secrets stay out of the file;
// expansion runs after parsing, so variable contents are never read as YAML.
type FileConfig struct {
	Jira struct {
		BaseURL  string        `yaml:"base_url"`
		Username string        `yaml:"username"`
		APIToken string        `yaml:"api_token"`
		Timeout  time.Duration `yaml:"timeout"`
	} `yaml:"jira"`

	OpenAI struct {
		APIKey      string        `yaml:"api_key"`
		BaseURL     string        `yaml:"base_url"`
		Model       string        `yaml:"model"`
		MaxTokens   int           `yaml:"max_tokens"`
		Temperature *float64      `yaml:"temperature"`
		Timeout     time.Duration `yaml:"timeout"`
	} `yaml:"openai"`

	Sync struct {
		DefaultJQL        string        `yaml:"default_jql"`
		DefaultMaxResults int           `yaml:"default_max_results"`
		RecentDays        int           `yaml:"recent_days"`
		TicketTTL         time.Duration `yaml:"ticket_ttl"`
		RunsKeep          int           `yaml:"runs_keep"`
	} `yaml:"sync"`

	Analysis struct {
		CacheSize int           `yaml:"cache_size"`
		CacheTTL  time.Duration `yaml:"cache_ttl"`
	} `yaml:"analysis"`

	API struct {
		AuthMode    string `yaml:"auth_mode"`
		CORSOrigins string `yaml:"cors_origins"`
	} `yaml:"api"`
}

// LoadFile reads and parses a YAML config file, expanding env vars.
func LoadFile(path string) (*FileConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	fc, err := LoadFileBytes(raw)
	if err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return fc, nil
}

// LoadFileBytes parses a YAML overlay from bytes.
func LoadFileBytes(data []byte) (*FileConfig, error) {
	var fc FileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, err
	}
	fc.expandEnv()
	return &fc, nil
}

func (fc *FileConfig) expandEnv() {
	for _, s := range []*string{
		&fc.Jira.BaseURL,
		&fc.Jira.Username,
		&fc.Jira.APIToken,
		&fc.OpenAI.APIKey,
		&fc.OpenAI.BaseURL,
		&fc.OpenAI.Model,
		&fc.Sync.DefaultJQL,
		&fc.API.AuthMode,
		&fc.API.CORSOrigins,
	} {
		*s = expandEnvVars(*s)
	}
}

func (fc *FileConfig) apply(cfg *Config) {
	setString(&cfg.JiraBaseURL, fc.Jira.BaseURL)
	setString(&cfg.JiraUsername, fc.Jira.Username)
	setString(&cfg.JiraAPIToken, fc.Jira.APIToken)
	setDuration(&cfg.JiraTimeout, fc.Jira.Timeout)

	setString(&cfg.OpenAIAPIKey, fc.OpenAI.APIKey)
	setString(&cfg.OpenAIBaseURL, fc.OpenAI.BaseURL)
	setString(&cfg.OpenAIModel, fc.OpenAI.Model)
	if fc.OpenAI.MaxTokens > 0 {
		cfg.OpenAIMaxTokens = fc.OpenAI.MaxTokens
	}
	if fc.OpenAI.Temperature != nil {
		cfg.OpenAITemperature = *fc.OpenAI.Temperature
	}
	setDuration(&cfg.OpenAITimeout, fc.OpenAI.Timeout)

	setString(&cfg.SyncDefaultJQL, fc.Sync.DefaultJQL)
	if fc.Sync.DefaultMaxResults > 0 {
		cfg.SyncDefaultMaxResults = fc.Sync.DefaultMaxResults
	}
	if fc.Sync.RecentDays > 0 {
		cfg.SyncRecentDays = fc.Sync.RecentDays
	}
	setDuration(&cfg.TicketTTL, fc.Sync.TicketTTL)
	if fc.Sync.RunsKeep > 0 {
		cfg.SyncRunsKeep = fc.Sync.RunsKeep
	}

	if fc.Analysis.CacheSize > 0 {
		cfg.AnalysisCacheSize = fc.Analysis.CacheSize
	}
	setDuration(&cfg.AnalysisCacheTTL, fc.Analysis.CacheTTL)

	setString(&cfg.APIAuthMode, fc.API.AuthMode)
	setString(&cfg.APICORSOrigins, fc.API.CORSOrigins)
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setDuration(dst *time.Duration, v time.Duration) {
	if v > 0 {
		*dst = v
	}
}

// envVarPattern matches ${VAR_NAME}. A bare $ is literal.
var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR} with the corresponding environment variable
// value. Missing vars are replaced with an empty string.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		return os.Getenv(strings.TrimSuffix(strings.TrimPrefix(match, "${"), "}"))
	})
}
