package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, cfg.Pipeline.NumCandidates, len(cfg.Pipeline.SamplingProfiles))
}

func TestValidate_NumCandidatesMismatch(t *testing.T) {
	cfg := Default()
	cfg.Pipeline.NumCandidates = 5
	err := cfg.Validate()
	assert.ErrorContains(t, err, "num_candidates")
}

func TestValidate_BadBatchTimeout(t *testing.T) {
	cfg := Default()
	cfg.Pipeline.BatchTimeout = "not-a-duration"
	err := cfg.Validate()
	assert.ErrorContains(t, err, "batch_timeout")
}

func TestBatchTimeoutDuration(t *testing.T) {
	cfg := Default()
	assert.Equal(t, "30m0s", cfg.BatchTimeoutDuration().String())
}
