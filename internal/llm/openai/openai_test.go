package openai

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/praetorian-inc/ragpref/pkg/registry"
)

func TestConfigFromMap_RequiresModel(t *testing.T) {
	_, err := ConfigFromMap(registry.Config{})
	assert.Error(t, err)
}

func TestConfigFromMap_ParsesRateLimitFields(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "test-key")
	cfg, err := ConfigFromMap(registry.Config{
		"model":      "gpt-4o-mini",
		"rate_limit": 2.5,
	})
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o-mini", cfg.Model)
	assert.Equal(t, 2.5, cfg.RateLimitPerSec)
	assert.Equal(t, 2.5, cfg.RateLimitBurst, "burst defaults to the rate when unset")
}

func TestConfigFromMap_RateLimitBurstOverride(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "test-key")
	cfg, err := ConfigFromMap(registry.Config{
		"model":            "gpt-4o-mini",
		"rate_limit":       1.0,
		"rate_limit_burst": 5.0,
	})
	require.NoError(t, err)
	assert.Equal(t, 5.0, cfg.RateLimitBurst)
}

func TestNewTyped_RequiresModelAndAPIKey(t *testing.T) {
	_, err := NewTyped(Config{})
	assert.Error(t, err)

	_, err = NewTyped(Config{Model: "gpt-4o-mini"})
	assert.Error(t, err)
}

func TestNewTyped_ConstructsLimiterWhenRateConfigured(t *testing.T) {
	c, err := NewTyped(Config{Model: "gpt-4o-mini", APIKey: "test-key", RateLimitPerSec: 1, RateLimitBurst: 1})
	require.NoError(t, err)
	assert.NotNil(t, c.limiter)
}

func TestNewTyped_NoLimiterWhenUnconfigured(t *testing.T) {
	c, err := NewTyped(Config{Model: "gpt-4o-mini", APIKey: "test-key"})
	require.NoError(t, err)
	assert.Nil(t, c.limiter)
}

func TestCompleter_NameAndDescription(t *testing.T) {
	c, err := NewTyped(Config{Model: "gpt-4o-mini", APIKey: "test-key"})
	require.NoError(t, err)
	assert.Equal(t, "openai.Chat", c.Name())
	assert.NotEmpty(t, c.Description())
}
