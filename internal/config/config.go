package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

const (
	defaultExternalHTTPTimeout        = 30 * time.Second
	defaultExternalHTTPTimeoutSeconds = int(defaultExternalHTTPTimeout / time.Second)
	defaultThreshold                  = 0.25
	defaultBatchWorkers               = 4
	defaultDigestSchedule             = "0 9 * * 1"
)

type Config struct {
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	ClassificationMode  string   `yaml:"classification_mode"`
	ClassifierThreshold *float64 `yaml:"classifier_threshold"`
	BatchWorkers        int      `yaml:"batch_workers"`
	CategoriesPath      string   `yaml:"categories_path"`
	CategoriesMode      string   `yaml:"categories_mode"`

	LLMProvider     string `yaml:"llm_provider"`
	LLMModel        string `yaml:"llm_model"`
	LLMAPIBase      string `yaml:"llm_api_base"`
	LLMAPIVersion   string `yaml:"llm_api_version"`
	AnthropicAPIKey string `yaml:"anthropic_api_key"`
	OpenAIAPIKey    string `yaml:"openai_api_key"`
	AzureAPIKey     string `yaml:"azure_api_key"`

	ExternalHTTPTimeoutSeconds int `yaml:"external_http_timeout_seconds"`

	DBPath string `yaml:"db_path"`

	SlackBotToken   string   `yaml:"slack_bot_token"`
	SlackAppToken   string   `yaml:"slack_app_token"`
	ReportChannelID string   `yaml:"report_channel_id"`
	DigestSchedule  string   `yaml:"digest_schedule"`
	ManagerSlackIDs []string `yaml:"manager_slack_ids"`
	Timezone        string   `yaml:"timezone"`

	MetricsAddr string `yaml:"metrics_addr"`

	Location *time.Location `yaml:"-"` // computed from Timezone, not from YAML
}

// Load reads CONFIG_PATH (default config.yaml) if present, applies
// environment overrides and defaults, and validates the result.
func Load() (Config, error) {
	var cfg Config

	configPath := "config.yaml"
	if envPath := os.Getenv("CONFIG_PATH"); envPath != "" {
		configPath = envPath
	}
	if data, err := os.ReadFile(configPath); err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parsing %s: %w", configPath, err)
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return cfg, fmt.Errorf("reading %s: %w", configPath, err)
	}

	if err := applyEnv(&cfg); err != nil {
		return cfg, err
	}
	applyDefaults(&cfg)
	if err := cfg.validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	envOverride(&cfg.LogLevel, "LOG_LEVEL")
	envOverride(&cfg.LogFormat, "LOG_FORMAT")
	envOverride(&cfg.ClassificationMode, "CLASSIFICATION_MODE")
	envOverride(&cfg.CategoriesPath, "CATEGORIES_PATH")
	envOverride(&cfg.CategoriesMode, "CATEGORIES_MODE")
	envOverride(&cfg.LLMProvider, "LLM_PROVIDER")
	envOverride(&cfg.LLMModel, "LLM_MODEL")
	envOverride(&cfg.LLMAPIBase, "LLM_API_BASE")
	envOverride(&cfg.LLMAPIVersion, "LLM_API_VERSION")
	envOverride(&cfg.AnthropicAPIKey, "ANTHROPIC_API_KEY")
	envOverride(&cfg.OpenAIAPIKey, "OPENAI_API_KEY")
	envOverride(&cfg.AzureAPIKey, "AZURE_API_KEY")
	envOverrideAllowEmpty(&cfg.DBPath, "DB_PATH")
	envOverride(&cfg.SlackBotToken, "SLACK_BOT_TOKEN")
	envOverride(&cfg.SlackAppToken, "SLACK_APP_TOKEN")
	envOverride(&cfg.ReportChannelID, "REPORT_CHANNEL_ID")
	envOverride(&cfg.DigestSchedule, "DIGEST_SCHEDULE")
	envOverride(&cfg.Timezone, "TIMEZONE")
	envOverrideAllowEmpty(&cfg.MetricsAddr, "METRICS_ADDR")

	if ids := os.Getenv("MANAGER_SLACK_IDS"); ids != "" {
		cfg.ManagerSlackIDs = splitList(ids)
	}

	var errs []error
	errs = append(errs,
		envOverrideFloatPtr(&cfg.ClassifierThreshold, "CLASSIFIER_THRESHOLD"),
		envOverrideInt(&cfg.BatchWorkers, "BATCH_WORKERS"),
		envOverrideInt(&cfg.ExternalHTTPTimeoutSeconds, "EXTERNAL_HTTP_TIMEOUT_SECONDS"),
	)
	return errors.Join(errs...)
}

func applyDefaults(cfg *Config) {
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.LogFormat == "" {
		cfg.LogFormat = "json"
	}
	if cfg.ClassificationMode == "" {
		cfg.ClassificationMode = "rules"
	}
	if cfg.ClassifierThreshold == nil {
		th := defaultThreshold
		cfg.ClassifierThreshold = &th
	}
	if cfg.BatchWorkers == 0 {
		cfg.BatchWorkers = defaultBatchWorkers
	}
	if cfg.CategoriesMode == "" {
		cfg.CategoriesMode = "extend"
	}
	if cfg.LLMProvider == "" {
		cfg.LLMProvider = "anthropic"
	}
	if cfg.ExternalHTTPTimeoutSeconds == 0 {
		cfg.ExternalHTTPTimeoutSeconds = defaultExternalHTTPTimeoutSeconds
	}
	if cfg.DigestSchedule == "" {
		cfg.DigestSchedule = defaultDigestSchedule
	}
	if cfg.Timezone == "" {
		cfg.Timezone = "Local"
	}
}

func (c *Config) validate() error {
	switch strings.ToLower(c.LogFormat) {
	case "json", "console":
	default:
		return fmt.Errorf("log_format must be 'json' or 'console', got '%s'", c.LogFormat)
	}

	mode := strings.ToLower(strings.TrimSpace(c.ClassificationMode))
	switch mode {
	case "rules", "llm", "hybrid":
	default:
		return fmt.Errorf("classification_mode must be 'rules', 'llm' or 'hybrid', got '%s'", c.ClassificationMode)
	}

	if th := *c.ClassifierThreshold; math.IsNaN(th) || th < 0 || th > 1 {
		return fmt.Errorf("invalid classifier_threshold '%v': must be between 0 and 1", th)
	}
	if c.BatchWorkers < 1 {
		return fmt.Errorf("invalid batch_workers '%d': must be >= 1", c.BatchWorkers)
	}
	switch strings.ToLower(c.CategoriesMode) {
	case "extend", "replace":
	default:
		return fmt.Errorf("categories_mode must be 'extend' or 'replace', got '%s'", c.CategoriesMode)
	}
	if c.ExternalHTTPTimeoutSeconds < 5 {
		return fmt.Errorf("invalid external_http_timeout_seconds '%d': must be >= 5", c.ExternalHTTPTimeoutSeconds)
	}

	if mode != "rules" {
		if err := c.validateLLM(); err != nil {
			return err
		}
	}

	if strings.EqualFold(c.Timezone, "Local") {
		c.Location = time.Local
	} else {
		loc, err := time.LoadLocation(c.Timezone)
		if err != nil {
			return fmt.Errorf("invalid timezone '%s': %w", c.Timezone, err)
		}
		c.Location = loc
	}

	if _, err := cron.ParseStandard(c.DigestSchedule); err != nil {
		return fmt.Errorf("invalid digest_schedule '%s': %w", c.DigestSchedule, err)
	}
	return nil
}

func (c Config) validateLLM() error {
	switch strings.ToLower(c.LLMProvider) {
	case "anthropic":
		if c.AnthropicAPIKey == "" {
			return errors.New("anthropic_api_key is required when llm_provider=anthropic")
		}
	case "openai":
		if c.OpenAIAPIKey == "" {
			return errors.New("openai_api_key is required when llm_provider=openai")
		}
	case "azure":
		if c.AzureAPIKey == "" {
			return errors.New("azure_api_key is required when llm_provider=azure")
		}
		if c.LLMAPIBase == "" {
			return errors.New("llm_api_base is required when llm_provider=azure")
		}
	case "local":
	default:
		return fmt.Errorf("llm_provider must be 'anthropic', 'openai', 'azure' or 'local', got '%s'", c.LLMProvider)
	}
	return nil
}

// Threshold returns the configured classifier threshold.
func (c Config) Threshold() float64 {
	if c.ClassifierThreshold == nil {
		return defaultThreshold
	}
	return *c.ClassifierThreshold
}

// LLMAPIKey returns the key for the configured provider.
func (c Config) LLMAPIKey() string {
	switch strings.ToLower(c.LLMProvider) {
	case "anthropic":
		return c.AnthropicAPIKey
	case "openai":
		return c.OpenAIAPIKey
	case "azure":
		return c.AzureAPIKey
	default:
		return ""
	}
}

func (c Config) LLMEnabled() bool {
	return !strings.EqualFold(c.ClassificationMode, "rules")
}

func (c Config) SlackConfigured() bool {
	return c.SlackBotToken != "" && c.SlackAppToken != ""
}

func (c Config) HistoryEnabled() bool {
	return c.DBPath != ""
}

func (c Config) IsManagerID(userID string) bool {
	for _, id := range c.ManagerSlackIDs {
		if strings.TrimSpace(id) == userID {
			return true
		}
	}
	return false
}

func envOverride(field *string, envKey string) {
	if val := os.Getenv(envKey); val != "" {
		*field = val
	}
}

func envOverrideAllowEmpty(field *string, envKey string) {
	if val, ok := os.LookupEnv(envKey); ok {
		*field = val
	}
}

func envOverrideInt(field *int, envKey string) error {
	if val := os.Getenv(envKey); val != "" {
		parsed, err := strconv.Atoi(val)
		if err != nil {
			return fmt.Errorf("invalid %s '%s': %w", envKey, val, err)
		}
		*field = parsed
	}
	return nil
}

func envOverrideFloatPtr(field **float64, envKey string) error {
	if val := os.Getenv(envKey); val != "" {
		parsed, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return fmt.Errorf("invalid %s '%s': %w", envKey, val, err)
		}
		*field = &parsed
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
