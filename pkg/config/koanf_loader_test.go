package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultsOnly(t *testing.T) {
	cfg, err := Load("", nil)
	require.NoError(t, err)
	assert.Equal(t, Default().Pipeline.NumCandidates, cfg.Pipeline.NumCandidates)
	assert.Equal(t, "memory", cfg.Bus.Backend)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ragpref.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
pipeline:
  min_chosen_score: 0.9
sink:
  dir: /tmp/ragpref-data
`), 0o644))

	cfg, err := Load(path, nil)
	require.NoError(t, err)
	assert.Equal(t, 0.9, cfg.Pipeline.MinChosenScore)
	assert.Equal(t, "/tmp/ragpref-data", cfg.Sink.Dir)
	// Untouched keys keep their default.
	assert.Equal(t, Default().Pipeline.MinScoreDiff, cfg.Pipeline.MinScoreDiff)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ragpref.yaml")
	require.NoError(t, os.WriteFile(path, []byte("pipeline:\n  min_chosen_score: 0.9\n"), 0o644))

	t.Setenv("RAGPREF_PIPELINE__MIN_CHOSEN_SCORE", "0.5")

	cfg, err := Load(path, nil)
	require.NoError(t, err)
	assert.Equal(t, 0.5, cfg.Pipeline.MinChosenScore)
}

func TestLoad_OverridesWinOverEnv(t *testing.T) {
	t.Setenv("RAGPREF_PIPELINE__MIN_CHOSEN_SCORE", "0.5")

	cfg, err := Load("", map[string]any{"pipeline": map[string]any{"min_chosen_score": 0.85}})
	require.NoError(t, err)
	assert.Equal(t, 0.85, cfg.Pipeline.MinChosenScore)
}

func TestLoad_InvalidConfigFails(t *testing.T) {
	_, err := Load("", map[string]any{"pipeline": map[string]any{"batch_timeout": "not-a-duration"}})
	assert.Error(t, err)
}
