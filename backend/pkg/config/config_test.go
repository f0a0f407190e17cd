package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "bizgraph-bot/backend/pkg/errors"
)

func TestLoad_Defaults(t *testing.T) {
	unsetEnv(t, "TELEGRAM_RUN_MODE", "NEO4J_URI", "MEMORY_MAX_SESSIONS", "MEMORY_RETENTION_DAYS", "MEMORY_CONTEXT_TURNS", "LEDGER_DSN")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "bolt://localhost:7687", cfg.Neo4j.URI)
	assert.Equal(t, RunModeLongpoll, cfg.Telegram.RunMode)
	assert.Equal(t, 100, cfg.Memory.MaxSessions)
	assert.Equal(t, 30, cfg.Memory.RetentionDays)
	assert.Equal(t, 5, cfg.Memory.ContextTurns)
	assert.False(t, cfg.LedgerEnabled())
}

func TestLoad_AllowedUsers(t *testing.T) {
	t.Setenv("TELEGRAM_ALLOWED_USERS", "42,7")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, []int64{42, 7}, cfg.Telegram.AllowedUserIDs)
}

func TestValidate_RunMode(t *testing.T) {
	tests := []struct {
		name    string
		mode    string
		url     string
		want    string
		wantErr bool
	}{
		{name: "alias polling", mode: "polling", want: RunModeLongpoll},
		{name: "uppercase", mode: "LONGPOLL", want: RunModeLongpoll},
		{name: "webhook with url", mode: "webhook", url: "https://example.com/hook", want: RunModeWebhook},
		{name: "webhook without url", mode: "webhook", wantErr: true},
		{name: "unknown", mode: "carrier-pigeon", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			cfg.Telegram.RunMode = tt.mode
			cfg.Telegram.Webhook.URL = tt.url

			err := cfg.Validate()
			if tt.wantErr {
				assert.True(t, apperrors.IsErrorType(err, apperrors.ErrorTypeConfig))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, cfg.Telegram.RunMode)
		})
	}
}

func TestValidate_MissingModel(t *testing.T) {
	cfg := validConfig()
	cfg.LLM.Model = ""

	err := cfg.Validate()
	var missing *apperrors.ErrConfigMissingRequired
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, "LLM_MODEL", missing.Field)
}

func TestLoadProfile(t *testing.T) {
	t.Run("missing file falls back to defaults", func(t *testing.T) {
		p, err := LoadProfile(filepath.Join(t.TempDir(), "nope.yaml"))
		require.NoError(t, err)
		assert.Equal(t, "INR", p.CurrencyCode)
		assert.Equal(t, "₹", p.CurrencySymbol)
	})

	t.Run("aliases are normalized", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "profile.yaml")
		body := "business_name: Smile Dental Supplies\ncurrency_code: INR\ntimezone: Asia/Kolkata\nproduct_aliases:\n  \" OK \": ortho kit\n"
		require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

		p, err := LoadProfile(path)
		require.NoError(t, err)
		assert.Equal(t, "Smile Dental Supplies", p.BusinessName)
		assert.Equal(t, "INR", p.CurrencySymbol)
		assert.Equal(t, "ortho kit", p.ResolveProduct("ok"))
		assert.Equal(t, "bracket", p.ResolveProduct("bracket"))
	})

	t.Run("currency code without symbol", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "profile.yaml")
		require.NoError(t, os.WriteFile(path, []byte("currency_code: usd\n"), 0o600))

		p, err := LoadProfile(path)
		require.NoError(t, err)
		assert.Equal(t, "USD", p.CurrencyCode)
		assert.Equal(t, "USD", p.CurrencySymbol)
		assert.Equal(t, "USD12.50", p.FormatAmount(12.5))
		assert.Equal(t, "My Business", p.BusinessName)
		assert.Equal(t, "Asia/Kolkata", p.Timezone)
	})

	t.Run("empty file keeps default currency", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "profile.yaml")
		require.NoError(t, os.WriteFile(path, []byte("business_name: Shop\n"), 0o600))

		p, err := LoadProfile(path)
		require.NoError(t, err)
		assert.Equal(t, "INR", p.CurrencyCode)
		assert.Equal(t, "₹", p.CurrencySymbol)
		assert.NotNil(t, p.ProductAliases)
	})

	t.Run("bad timezone", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "profile.yaml")
		require.NoError(t, os.WriteFile(path, []byte("timezone: Mars/Olympus\n"), 0o600))

		_, err := LoadProfile(path)
		assert.Error(t, err)
	})
}

func TestFormatAmount(t *testing.T) {
	p := DefaultProfile()
	assert.Equal(t, "₹5000", p.FormatAmount(5000))
	assert.Equal(t, "₹12.50", p.FormatAmount(12.5))
}

func unsetEnv(t *testing.T, keys ...string) {
	t.Helper()
	for _, k := range keys {
		t.Setenv(k, "")
		require.NoError(t, os.Unsetenv(k))
	}
}

func validConfig() *Config {
	return &Config{
		Neo4j:    Neo4jConfig{URI: "bolt://localhost:7687", User: "neo4j"},
		LLM:      LLMConfig{BaseURL: "http://localhost:4000", Model: "test-model"},
		Telegram: TelegramConfig{RunMode: RunModeLongpoll, Workers: 4, Webhook: WebhookConfig{Port: 8443}},
	}
}
