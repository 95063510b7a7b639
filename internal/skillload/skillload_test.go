package skillload

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wardenhq/warden/internal/core"
)

func writeSkill(t *testing.T, dir, content string) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "SKILL.md"), []byte(content), 0o644))
	return dir
}

func TestLoad_FullFrontmatter(t *testing.T) {
	dir := writeSkill(t, filepath.Join(t.TempDir(), "security"), `---
name: security
display_name: Security Review
description: Flags injection and auth bugs.
allowed_tools: ["grep", "read"]
fail_on: high
---
You are a security reviewer. Flag anything exploitable.
`)

	def, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "security", def.Name)
	assert.Equal(t, "Security Review", def.DisplayName)
	assert.Equal(t, "Flags injection and auth bugs.", def.Description)
	assert.Equal(t, []string{"grep", "read"}, def.AllowedTools)
	assert.Equal(t, core.SeverityThreshold("high"), def.FailOn)
	assert.Equal(t, "You are a security reviewer. Flag anything exploitable.", def.Prompt)
}

func TestLoad_NoFrontmatterUsesDirName(t *testing.T) {
	dir := writeSkill(t, filepath.Join(t.TempDir(), "style"), "Review the style of this diff.\n")

	def, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "style", def.Name)
	assert.Equal(t, "style", def.DisplayName)
	assert.Equal(t, core.ThresholdOff, def.FailOn)
	assert.Equal(t, "Review the style of this diff.", def.Prompt)
}

func TestLoad_UnterminatedFrontmatterErrors(t *testing.T) {
	dir := writeSkill(t, filepath.Join(t.TempDir(), "broken"), "---\nname: broken\n")

	_, err := Load(dir)
	assert.Error(t, err)
}

func TestLoad_MissingFileErrors(t *testing.T) {
	_, err := Load(t.TempDir())
	assert.Error(t, err)
}
