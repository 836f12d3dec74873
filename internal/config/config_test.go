package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var envKeys = []string{
	"PORT", "DATABASE_URL", "RULES_SOURCE", "RULES_FILE",
	"OPENAI_API_KEY", "OPENAI_MODEL_CHAT", "OPENAI_BASE_URL",
	"ORACLE_ENABLED", "ORACLE_TIMEOUT", "EVAL_CONCURRENCY", "EXACT_MATCH_ATTRIBUTES",
	"SESSION_IDLE_TTL", "SESSION_MAX_TURNS", "NOTIFY_CHANNEL", "LOG_LEVEL", "LOG_FORMAT",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range envKeys {
		t.Setenv(k, "")
	}
}

func TestLoad_DefaultValues(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Empty(t, cfg.DatabaseURL)
	assert.Equal(t, SourceFile, cfg.Rules.Source)
	assert.Equal(t, "data/rules.yaml", cfg.Rules.File)
	assert.Equal(t, "gpt-4o-mini", cfg.OpenAI.Model)
	assert.True(t, cfg.Engine.OracleEnabled)
	assert.Equal(t, 5*time.Second, cfg.Engine.OracleTimeout)
	assert.Equal(t, 4, cfg.Engine.Concurrency)
	assert.Equal(t, []string{"species"}, cfg.Engine.ExactAttributes)
	assert.Equal(t, 30*time.Minute, cfg.Session.IdleTTL)
	assert.Equal(t, 20, cfg.Session.MaxTurns)
	assert.Equal(t, "triage_outcomes", cfg.NotifyChannel)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoad_EnvironmentVariables(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "9090")
	t.Setenv("DATABASE_URL", "postgres://vet@localhost/triage?sslmode=disable")
	t.Setenv("RULES_SOURCE", "DB")
	t.Setenv("ORACLE_ENABLED", "false")
	t.Setenv("ORACLE_TIMEOUT", "750ms")
	t.Setenv("EVAL_CONCURRENCY", "8")
	t.Setenv("EXACT_MATCH_ATTRIBUTES", "species, sex ,")
	t.Setenv("SESSION_IDLE_TTL", "1h")
	t.Setenv("SESSION_MAX_TURNS", "12")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, SourceDB, cfg.Rules.Source)
	assert.False(t, cfg.Engine.OracleEnabled)
	assert.Equal(t, 750*time.Millisecond, cfg.Engine.OracleTimeout)
	assert.Equal(t, 8, cfg.Engine.Concurrency)
	assert.Equal(t, []string{"species", "sex"}, cfg.Engine.ExactAttributes)
	assert.Equal(t, time.Hour, cfg.Session.IdleTTL)
	assert.Equal(t, 12, cfg.Session.MaxTurns)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		key, value string
	}{
		{"RULES_SOURCE", "s3"},
		{"ORACLE_TIMEOUT", "soon"},
		{"EVAL_CONCURRENCY", "0"},
		{"SESSION_IDLE_TTL", "-5m"},
		{"SESSION_MAX_TURNS", "many"},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(tt.key, tt.value)
			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestLoad_DBSourceNeedsURL(t *testing.T) {
	clearEnv(t)
	t.Setenv("RULES_SOURCE", "db")

	_, err := Load()
	assert.ErrorContains(t, err, "DATABASE_URL")
}
