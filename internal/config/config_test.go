package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wardenhq/warden/internal/core"
)

func TestLoadConfig_Defaults(t *testing.T) {
	dir := t.TempDir()

	cfg, err := LoadConfig(dir)
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, 1, cfg.Concurrency.SkillConcurrency)
	assert.Equal(t, 5, cfg.Concurrency.FileConcurrency)
	assert.Equal(t, 5, cfg.Concurrency.HunkConcurrency)
	assert.True(t, cfg.Hunks.Enabled)
	assert.Equal(t, 10, cfg.Context.ContextLines)
	assert.Equal(t, core.SeverityThreshold(core.SeverityLow), cfg.Review.CommentOn)
	assert.Equal(t, core.ThresholdOff, cfg.Review.FailOn)
	assert.Equal(t, 86400*time.Second, cfg.RemoteCache.TTL)
	assert.Equal(t, "ollama", cfg.AI.Provider)
	assert.Equal(t, "http://localhost:11434", cfg.AI.OllamaHost)
}

func TestLoadConfig_FileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	yml := `
concurrency:
  skill_concurrency: 4
  file_concurrency: 2
review:
  comment_on: high
  fail_on: critical
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "warden.yml"), []byte(yml), 0o644))

	cfg, err := LoadConfig(dir)
	require.NoError(t, err)

	assert.Equal(t, 4, cfg.Concurrency.SkillConcurrency)
	assert.Equal(t, 2, cfg.Concurrency.FileConcurrency)
	assert.Equal(t, core.SeverityThreshold(core.SeverityHigh), cfg.Review.CommentOn)
	assert.Equal(t, core.SeverityThreshold(core.SeverityCritical), cfg.Review.FailOn)
	// unspecified keys keep their defaults
	assert.Equal(t, 5, cfg.Concurrency.HunkConcurrency)
}

func TestLoadConfig_EnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	yml := "concurrency:\n  skill_concurrency: 4\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "warden.yml"), []byte(yml), 0o644))

	t.Setenv("CONCURRENCY_SKILL_CONCURRENCY", "7")

	cfg, err := LoadConfig(dir)
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.Concurrency.SkillConcurrency)
}

func TestLoadConfig_StateDirEnvOverride(t *testing.T) {
	dir := t.TempDir()
	t.Setenv(envStateDir, "/var/lib/warden")

	cfg, err := LoadConfig(dir)
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/warden", cfg.RemoteCache.StateDir)
}

func TestLoadConfig_SkillCacheTTLEnvOverride(t *testing.T) {
	dir := t.TempDir()
	t.Setenv(envSkillCacheTTL, "3600")

	cfg, err := LoadConfig(dir)
	require.NoError(t, err)
	assert.Equal(t, time.Hour, cfg.RemoteCache.TTL)
}

func TestLoadConfig_SkillCacheTTLEnvOverride_Invalid(t *testing.T) {
	dir := t.TempDir()
	t.Setenv(envSkillCacheTTL, "not-a-number")

	_, err := LoadConfig(dir)
	require.Error(t, err)
	var cfgErr *core.ConfigError
	assert.ErrorAs(t, err, &cfgErr)
}

func TestLoadConfig_NoConfigFilePresent(t *testing.T) {
	dir := t.TempDir()

	cfg, err := LoadConfig(dir)
	require.NoError(t, err)
	assert.NotNil(t, cfg)
}
