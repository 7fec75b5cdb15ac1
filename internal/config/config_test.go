// Package config tests.
package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	os.Clearenv()
	t.Setenv("JWT_SECRET", "s3cret")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, ":5000", cfg.ListenAddr)
	assert.Equal(t, "builder.db", cfg.DBPath)
	assert.Equal(t, "jwt", cfg.AuthMode)
	assert.Equal(t, "gemini", cfg.LLMProvider)
	assert.Equal(t, "gemini-2.5-flash", cfg.GeminiModel)
	assert.Equal(t, 90*time.Second, cfg.ProviderCallTimeout)
	assert.Equal(t, 3, cfg.ProviderRetries)
	assert.Equal(t, 720*time.Hour, cfg.RunRetention)
	assert.True(t, cfg.RecoverInterrupted)
	assert.True(t, cfg.IsDevelopment())
}

func TestLoad_JWTModeRequiresSecret(t *testing.T) {
	os.Clearenv()
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JWT_SECRET")
}

func TestLoad_NoneModeWithoutSecret(t *testing.T) {
	os.Clearenv()
	t.Setenv("AUTH_MODE", "none")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "none", cfg.AuthMode)
}

func TestLoad_InvalidProvider(t *testing.T) {
	os.Clearenv()
	t.Setenv("AUTH_MODE", "none")
	t.Setenv("LLM_PROVIDER", "parrot")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "LLM_PROVIDER")
}

func TestLoad_Overrides(t *testing.T) {
	os.Clearenv()
	t.Setenv("AUTH_MODE", "none")
	t.Setenv("LLM_PROVIDER", "anthropic")
	t.Setenv("ANTHROPIC_API_KEY", "sk-ant-test")
	t.Setenv("PROVIDER_CALL_TIMEOUT", "5s")
	t.Setenv("RECOVER_INTERRUPTED", "false")
	t.Setenv("ENVIRONMENT", "production")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, cfg.ProviderCallTimeout)
	assert.False(t, cfg.RecoverInterrupted)
	assert.False(t, cfg.IsDevelopment())
	assert.Equal(t, "sk-ant-test", cfg.ProviderAPIKey())
}

func TestLoadWithPrefix(t *testing.T) {
	os.Clearenv()
	t.Setenv("BUILDER_AUTH_MODE", "none")
	t.Setenv("BUILDER_LISTEN_ADDR", ":9999")
	cfg, err := LoadWithPrefix("BUILDER")
	require.NoError(t, err)
	assert.Equal(t, ":9999", cfg.ListenAddr)
}
