package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("STORE_ENABLED", "false")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.False(t, cfg.Debug.Enabled)
	assert.Equal(t, 8080, cfg.Debug.Port)
	assert.Equal(t, "results", cfg.Output.Dir)
	assert.Empty(t, cfg.Study.File)

	assert.Equal(t, 500, cfg.Optimization.MaxIterations)
	assert.Equal(t, 5e-4, cfg.Optimization.ConvergenceTol)
	assert.Equal(t, 5, cfg.Optimization.ConvergenceWindow)
	assert.Equal(t, 1e-6, cfg.Optimization.MinAreaFraction)
	assert.Equal(t, 1, cfg.Optimization.ReinitSkipLimit)
	assert.Equal(t, 0.5, cfg.Optimization.MoveLimit)
	assert.Equal(t, 0.15, cfg.Optimization.TrustRegion)
	assert.Equal(t, 6.0, cfg.Optimization.PNorm)
	assert.Equal(t, 2.0, cfg.Optimization.InterpolationRadius)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("STORE_ENABLED", "false")
	t.Setenv("OPT_MAX_ITERATIONS", "50")
	t.Setenv("OPT_TRUST_REGION", "0.1")
	t.Setenv("OUTPUT_DIR", "out")
	t.Setenv("STUDY_FILE", "studies/short-beam.toml")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 50, cfg.Optimization.MaxIterations)
	assert.Equal(t, 0.1, cfg.Optimization.TrustRegion)
	assert.Equal(t, "out", cfg.Output.Dir)
	assert.Equal(t, "studies/short-beam.toml", cfg.Study.File)
}

func TestGetEnvHelpers(t *testing.T) {
	t.Setenv("SOME_STRING", "value")
	t.Setenv("SOME_INT", "42")
	t.Setenv("SOME_BOOL", "true")

	assert.Equal(t, "value", GetEnv("SOME_STRING", "fallback"))
	assert.Equal(t, "fallback", GetEnv("MISSING_STRING", "fallback"))
	assert.Equal(t, 42, GetEnvAsInt("SOME_INT", 7))
	assert.Equal(t, 7, GetEnvAsInt("MISSING_INT", 7))
	assert.True(t, GetEnvAsBool("SOME_BOOL", false))
	assert.False(t, GetEnvAsBool("MISSING_BOOL", false))
}
