package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

const defaultExternalHTTPTimeout = 90 * time.Second
const defaultExternalHTTPTimeoutSeconds = int(defaultExternalHTTPTimeout / time.Second)

type Config struct {
	SlackBotToken string `yaml:"slack_bot_token"`
	SlackAppToken string `yaml:"slack_app_token"`

	// CompanyID scopes every event this deployment records.
	CompanyID string `yaml:"company_id"`

	LLMProvider             string `yaml:"llm_provider"`
	LLMModel                string `yaml:"llm_model"`
	AnthropicAPIKey         string `yaml:"anthropic_api_key"`
	OpenAIAPIKey            string `yaml:"openai_api_key"`
	LLMTimeoutSeconds       int    `yaml:"llm_timeout_seconds"`
	LLMBreakerFailures      int    `yaml:"llm_breaker_failures"`
	LLMBreakerCooldownSecs  int    `yaml:"llm_breaker_cooldown_seconds"`
	KeywordRulesPath        string `yaml:"keyword_rules_path"`
	ExternalHTTPTimeoutSecs int    `yaml:"external_http_timeout_seconds"`

	DBPath       string `yaml:"db_path"`
	DirectoryDSN string `yaml:"directory_dsn"`

	PatternScanSchedule string `yaml:"pattern_scan_schedule"`
	PatternWindowHours  int    `yaml:"pattern_window_hours"`
	PatternMinFailures  int    `yaml:"pattern_min_failures"`

	// ChannelDepartments maps a Slack channel ID to a department name.
	ChannelDepartments map[string]string `yaml:"channel_departments"`

	MetricsAddr string `yaml:"metrics_addr"`
	Timezone    string `yaml:"timezone"`

	Location *time.Location `yaml:"-"` // computed from Timezone, not from YAML
}

func LoadConfig() Config {
	var cfg Config

	configPath := "config.yaml"
	if envPath := os.Getenv("CONFIG_PATH"); envPath != "" {
		configPath = envPath
	}
	if data, err := os.ReadFile(configPath); err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			log.Fatalf("Error parsing %s: %v", configPath, err)
		}
		log.Printf("Loaded config from %s", configPath)
	}

	envOverride(&cfg.SlackBotToken, "SLACK_BOT_TOKEN")
	envOverride(&cfg.SlackAppToken, "SLACK_APP_TOKEN")
	envOverride(&cfg.CompanyID, "COMPANY_ID")
	envOverride(&cfg.LLMProvider, "LLM_PROVIDER")
	envOverride(&cfg.LLMModel, "LLM_MODEL")
	envOverride(&cfg.AnthropicAPIKey, "ANTHROPIC_API_KEY")
	envOverride(&cfg.OpenAIAPIKey, "OPENAI_API_KEY")
	envOverrideInt(&cfg.LLMTimeoutSeconds, "LLM_TIMEOUT_SECONDS")
	envOverrideInt(&cfg.LLMBreakerFailures, "LLM_BREAKER_FAILURES")
	envOverrideInt(&cfg.LLMBreakerCooldownSecs, "LLM_BREAKER_COOLDOWN_SECONDS")
	envOverride(&cfg.KeywordRulesPath, "KEYWORD_RULES_PATH")
	envOverrideInt(&cfg.ExternalHTTPTimeoutSecs, "EXTERNAL_HTTP_TIMEOUT_SECONDS")
	envOverride(&cfg.DBPath, "DB_PATH")
	envOverrideAllowEmpty(&cfg.DirectoryDSN, "DIRECTORY_DSN")
	envOverrideAllowEmpty(&cfg.PatternScanSchedule, "PATTERN_SCAN_SCHEDULE")
	envOverrideInt(&cfg.PatternWindowHours, "PATTERN_WINDOW_HOURS")
	envOverrideInt(&cfg.PatternMinFailures, "PATTERN_MIN_FAILURES")
	envOverrideAllowEmpty(&cfg.MetricsAddr, "METRICS_ADDR")
	envOverride(&cfg.Timezone, "TIMEZONE")

	if cfg.LLMProvider == "" {
		cfg.LLMProvider = "anthropic"
	}
	if cfg.LLMTimeoutSeconds == 0 {
		cfg.LLMTimeoutSeconds = 20
	}
	if cfg.LLMBreakerFailures == 0 {
		cfg.LLMBreakerFailures = 5
	}
	if cfg.LLMBreakerCooldownSecs == 0 {
		cfg.LLMBreakerCooldownSecs = 60
	}
	if cfg.ExternalHTTPTimeoutSecs == 0 {
		cfg.ExternalHTTPTimeoutSecs = defaultExternalHTTPTimeoutSeconds
	}
	if cfg.DBPath == "" {
		cfg.DBPath = "./floorbot.db"
	}
	if cfg.PatternWindowHours == 0 {
		cfg.PatternWindowHours = 24
	}
	if cfg.PatternMinFailures == 0 {
		cfg.PatternMinFailures = 3
	}
	if cfg.Timezone == "" {
		cfg.Timezone = "Local"
	}

	required := map[string]string{
		"slack_bot_token": cfg.SlackBotToken,
		"slack_app_token": cfg.SlackAppToken,
		"company_id":      cfg.CompanyID,
	}
	for name, val := range required {
		if val == "" {
			log.Fatalf("Required config '%s' is not set (via config.yaml or env var)", name)
		}
	}

	switch cfg.LLMProvider {
	case "anthropic":
		if cfg.AnthropicAPIKey == "" {
			log.Fatalf("anthropic_api_key is required when llm_provider=anthropic")
		}
	case "openai":
		if cfg.OpenAIAPIKey == "" {
			log.Fatalf("openai_api_key is required when llm_provider=openai")
		}
	default:
		log.Fatalf("llm_provider must be 'anthropic' or 'openai', got '%s'", cfg.LLMProvider)
	}

	if strings.EqualFold(cfg.Timezone, "Local") {
		cfg.Location = time.Local
	} else {
		loc, err := time.LoadLocation(cfg.Timezone)
		if err != nil {
			log.Fatalf("invalid timezone '%s': %v", cfg.Timezone, err)
		}
		cfg.Location = loc
	}

	if cfg.LLMTimeoutSeconds < 1 {
		log.Fatalf("invalid llm_timeout_seconds '%d': must be >= 1", cfg.LLMTimeoutSeconds)
	}
	if cfg.LLMBreakerFailures < 1 {
		log.Fatalf("invalid llm_breaker_failures '%d': must be >= 1", cfg.LLMBreakerFailures)
	}
	if cfg.LLMBreakerCooldownSecs < 1 {
		log.Fatalf("invalid llm_breaker_cooldown_seconds '%d': must be >= 1", cfg.LLMBreakerCooldownSecs)
	}
	if cfg.ExternalHTTPTimeoutSecs < 5 {
		log.Fatalf("invalid external_http_timeout_seconds '%d': must be >= 5", cfg.ExternalHTTPTimeoutSecs)
	}
	if cfg.PatternWindowHours < 1 {
		log.Fatalf("invalid pattern_window_hours '%d': must be >= 1", cfg.PatternWindowHours)
	}
	if cfg.PatternMinFailures < 2 {
		log.Fatalf("invalid pattern_min_failures '%d': must be >= 2", cfg.PatternMinFailures)
	}
	if err := validateSchedule(cfg.PatternScanSchedule); err != nil {
		log.Fatalf("invalid pattern_scan_schedule '%s': %v", cfg.PatternScanSchedule, err)
	}

	return cfg
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

func envOverrideInt(field *int, envKey string) {
	if val := os.Getenv(envKey); val != "" {
		parsed, err := strconv.Atoi(val)
		if err != nil {
			log.Fatalf("invalid %s '%s': %v", envKey, val, err)
		}
		*field = parsed
	}
}

func (c Config) LLMTimeout() time.Duration {
	return time.Duration(c.LLMTimeoutSeconds) * time.Second
}

func (c Config) LLMBreakerCooldown() time.Duration {
	return time.Duration(c.LLMBreakerCooldownSecs) * time.Second
}

func (c Config) DirectoryConfigured() bool {
	return strings.TrimSpace(c.DirectoryDSN) != ""
}

func validateSchedule(schedule string) error {
	schedule = strings.TrimSpace(schedule)
	if schedule == "" {
		return nil
	}
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	if _, err := parser.Parse(schedule); err != nil {
		return fmt.Errorf("parse cron: %w", err)
	}
	return nil
}
