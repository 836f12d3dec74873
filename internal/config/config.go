package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Rule sources.
const (
	SourceFile = "file"
	SourceDB   = "db"
)

// Config is the service configuration, read from the environment.
type Config struct {
	Port        string
	DatabaseURL string

	Rules struct {
		Source string // "file" or "db"
		File   string
	}

	OpenAI struct {
		APIKey  string
		Model   string
		BaseURL string
	}

	Engine struct {
		OracleEnabled   bool
		OracleTimeout   time.Duration
		Concurrency     int
		ExactAttributes []string
	}

	Session struct {
		IdleTTL  time.Duration
		MaxTurns int
	}

	NotifyChannel string

	Log struct {
		Level  string
		Format string
	}
}

// Load reads the configuration.  Unset variables take their defaults;
// malformed numbers and durations are errors.
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.Port = getEnv("PORT", "8080")
	cfg.DatabaseURL = getEnv("DATABASE_URL", "")

	cfg.Rules.Source = strings.ToLower(getEnv("RULES_SOURCE", SourceFile))
	cfg.Rules.File = getEnv("RULES_FILE", "data/rules.yaml")
	if cfg.Rules.Source != SourceFile && cfg.Rules.Source != SourceDB {
		return nil, fmt.Errorf("RULES_SOURCE must be %q or %q, got %q", SourceFile, SourceDB, cfg.Rules.Source)
	}
	if cfg.Rules.Source == SourceDB && cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("RULES_SOURCE=db requires DATABASE_URL")
	}

	cfg.OpenAI.APIKey = getEnv("OPENAI_API_KEY", "")
	cfg.OpenAI.Model = getEnv("OPENAI_MODEL_CHAT", "gpt-4o-mini")
	cfg.OpenAI.BaseURL = getEnv("OPENAI_BASE_URL", "")

	cfg.Engine.OracleEnabled = getEnv("ORACLE_ENABLED", "true") == "true"
	var err error
	if cfg.Engine.OracleTimeout, err = getDuration("ORACLE_TIMEOUT", 5*time.Second); err != nil {
		return nil, err
	}
	if cfg.Engine.Concurrency, err = getInt("EVAL_CONCURRENCY", 4); err != nil {
		return nil, err
	}
	cfg.Engine.ExactAttributes = splitList(getEnv("EXACT_MATCH_ATTRIBUTES", "species"))

	if cfg.Session.IdleTTL, err = getDuration("SESSION_IDLE_TTL", 30*time.Minute); err != nil {
		return nil, err
	}
	if cfg.Session.MaxTurns, err = getInt("SESSION_MAX_TURNS", 20); err != nil {
		return nil, err
	}

	cfg.NotifyChannel = getEnv("NOTIFY_CHANNEL", "triage_outcomes")

	cfg.Log.Level = getEnv("LOG_LEVEL", "info")
	cfg.Log.Format = getEnv("LOG_FORMAT", "json")

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getInt(key string, defaultValue int) (int, error) {
	raw := getEnv(key, "")
	if raw == "" {
		return defaultValue, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		return 0, fmt.Errorf("%s: want a positive integer, got %q", key, raw)
	}
	return v, nil
}

func getDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	raw := getEnv(key, "")
	if raw == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("%s: want a positive duration, got %q", key, raw)
	}
	return d, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
