package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_MissingFileYieldsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.Chain.MaxDepth)
	assert.Equal(t, 3, cfg.Guard.MaxDepth)
	assert.Equal(t, 2, cfg.Guard.MaxDuplicates)
	assert.Equal(t, 5, cfg.Guard.LoopWindow)
	assert.Equal(t, 30, cfg.Guard.ExecutionTimeoutSec)
	assert.InDelta(t, 0.7, cfg.Guard.SafetyScoreThreshold, 1e-9)
	assert.Equal(t, 1000, cfg.Limits.MaxMessages)
	assert.Equal(t, 50, cfg.Limits.MaxSteps)
	assert.Equal(t, 7, cfg.Limits.MaxEscalationLevel)
	assert.Equal(t, 3, cfg.Validator.MaxPasses)
	assert.True(t, cfg.Validator.AutoRepairEnabled())
	assert.Equal(t, 10, cfg.Iteration.MaxIterations)
}

func TestLoad_PartialOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
guard:
  max_depth: 4
validator:
  auto_repair: false
iteration:
  max_iterations: 15
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 4, cfg.Guard.MaxDepth)
	assert.Equal(t, 2, cfg.Guard.MaxDuplicates, "untouched fields keep defaults")
	assert.False(t, cfg.Validator.AutoRepairEnabled())
	assert.Equal(t, 15, cfg.Iteration.MaxIterations)
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("guard: [broken"), 0644))

	_, err := Load(path)
	assert.Error(t, err)
}
