// Package skillload turns a skill directory (a SKILL.md file plus
// frontmatter) into a core.SkillDefinition. It is the minimal loader the
// scheduler's Task.ResolveSkill calls lazily, for both skills living in a
// repo's own working tree and skills pulled in through the remote skill
// cache.
package skillload

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/wardenhq/warden/internal/core"
)

// frontmatter is the YAML header of a SKILL.md file, delimited by a pair
// of "---" lines.
type frontmatter struct {
	Name         string   `yaml:"name"`
	DisplayName  string   `yaml:"display_name"`
	Description  string   `yaml:"description"`
	AllowedTools []string `yaml:"allowed_tools"`
	DeniedTools  []string `yaml:"denied_tools"`
	FailOn       string   `yaml:"fail_on"`
}

// Load reads dir/SKILL.md and builds a core.SkillDefinition from its
// frontmatter and body. The directory's base name is used as the skill
// name when the frontmatter omits one.
func Load(dir string) (core.SkillDefinition, error) {
	path := filepath.Join(dir, "SKILL.md")
	raw, err := os.ReadFile(path)
	if err != nil {
		return core.SkillDefinition{}, fmt.Errorf("read %s: %w", path, err)
	}

	fm, body, err := splitFrontmatter(string(raw))
	if err != nil {
		return core.SkillDefinition{}, fmt.Errorf("%s: %w", path, err)
	}

	name := fm.Name
	if name == "" {
		name = filepath.Base(dir)
	}
	displayName := fm.DisplayName
	if displayName == "" {
		displayName = name
	}

	failOn := core.SeverityThreshold(fm.FailOn)
	if fm.FailOn == "" {
		failOn = core.ThresholdOff
	}

	return core.SkillDefinition{
		Name:         name,
		DisplayName:  displayName,
		Description:  fm.Description,
		Prompt:       strings.TrimSpace(body),
		AllowedTools: fm.AllowedTools,
		DeniedTools:  fm.DeniedTools,
		FailOn:       failOn,
	}, nil
}

// splitFrontmatter separates a leading "---\n...\n---\n" YAML block from
// the remainder of the document. A document with no frontmatter is
// treated as pure prompt body with zero-value metadata.
func splitFrontmatter(raw string) (frontmatter, string, error) {
	const delim = "---"

	trimmed := strings.TrimLeft(raw, "\n")
	if !strings.HasPrefix(trimmed, delim) {
		return frontmatter{}, raw, nil
	}

	rest := trimmed[len(delim):]
	idx := strings.Index(rest, "\n"+delim)
	if idx == -1 {
		return frontmatter{}, "", fmt.Errorf("unterminated frontmatter block")
	}

	yamlBlock := rest[:idx]
	body := rest[idx+len("\n"+delim):]
	body = strings.TrimPrefix(body, "\n")

	var fm frontmatter
	if err := yaml.Unmarshal([]byte(yamlBlock), &fm); err != nil {
		return frontmatter{}, "", fmt.Errorf("parse frontmatter: %w", err)
	}
	return fm, body, nil
}
