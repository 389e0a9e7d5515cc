package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 3, cfg.Sampler.Chains)
	assert.Equal(t, 5000, cfg.Sampler.Iterations)
	assert.Equal(t, "fixed", cfg.Diagnostics.Policy)
	assert.Equal(t, 1000, cfg.Diagnostics.BurnIn)
	assert.InDelta(t, 1.1, cfg.Diagnostics.Threshold, 1e-12)
	assert.False(t, cfg.Model.Rain)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("MODEL_RAIN", "true")
	t.Setenv("MODEL_IMPUTE_RAIN", "true")
	t.Setenv("CHAINS", "4")
	t.Setenv("ITERATIONS", "2000")
	t.Setenv("BURNIN_POLICY", "adaptive")
	t.Setenv("HOLDOUT_AFTER", "2022-06-01")

	cfg, err := Load()
	require.NoError(t, err)
	assert.True(t, cfg.Model.Rain)
	assert.True(t, cfg.Model.ImputeRain)
	assert.Equal(t, 4, cfg.Sampler.Chains)
	assert.Equal(t, 2000, cfg.Sampler.Iterations)
	assert.Equal(t, "adaptive", cfg.Diagnostics.Policy)
	assert.Equal(t, "2022-06-01", cfg.Data.HoldoutAfter)
}

func TestLoadRejections(t *testing.T) {
	t.Setenv("CHAINS", "1")
	_, err := Load()
	assert.Error(t, err)
}

func TestLoadRejectsBurnInBeyondIterations(t *testing.T) {
	t.Setenv("ITERATIONS", "500")
	t.Setenv("BURNIN", "500")
	_, err := Load()
	assert.Error(t, err)
}

func TestLoadRejectsBadPolicy(t *testing.T) {
	t.Setenv("BURNIN_POLICY", "sometimes")
	_, err := Load()
	assert.Error(t, err)
}

func TestLoadRejectsBadCutoff(t *testing.T) {
	t.Setenv("HOLDOUT_AFTER", "June 1st")
	_, err := Load()
	assert.Error(t, err)
}
