// Package promptbuild renders the system and user prompt pair for one
// analysis unit (one hunk, with its surrounding context), in the shape a
// skill's LLM call expects.
package promptbuild

import (
	"fmt"
	"strings"

	"github.com/wardenhq/warden/internal/core"
)

// largePromptThresholdChars flags prompts north of ~10k estimated tokens
// so callers can surface a warning without blocking the call.
const largePromptThresholdChars = 40_000

const jsonContract = "Respond with a JSON array of objects with keys " +
	"{id, severity, confidence?, title, description, location?, suggestedFix?}; " +
	"severity is one of \"critical\", \"high\", \"medium\", \"low\", \"info\"; " +
	"if there are no findings, return []."

// Prompt is the rendered prompt pair for one analysis unit.
type Prompt struct {
	System          string
	User            string
	CharCount       int
	EstimatedTokens int
	IsLarge         bool
}

// Build renders the prompt pair for one hunk-with-context unit, given the
// skill definition and the surrounding pull request metadata.
func Build(skill core.SkillDefinition, pr *core.PullRequestContext, filenames []string, unit core.HunkWithContext) Prompt {
	system := buildSystem(skill)
	user := buildUser(pr, filenames, unit)

	chars := len(system) + len(user)
	estTokens := chars / 4

	return Prompt{
		System:          system,
		User:            user,
		CharCount:       chars,
		EstimatedTokens: estTokens,
		IsLarge:         chars > largePromptThresholdChars,
	}
}

func buildSystem(skill core.SkillDefinition) string {
	var b strings.Builder
	if skill.Description != "" {
		b.WriteString(skill.Description)
		b.WriteString("\n\n")
	}
	b.WriteString(skill.Prompt)
	b.WriteString("\n\n")
	b.WriteString(jsonContract)
	return b.String()
}

func buildUser(pr *core.PullRequestContext, filenames []string, unit core.HunkWithContext) string {
	var b strings.Builder

	if pr != nil {
		if pr.Title != "" {
			fmt.Fprintf(&b, "## Pull Request: %s\n", pr.Title)
		}
		if pr.Body != "" {
			fmt.Fprintf(&b, "%s\n\n", pr.Body)
		}
	}

	if len(filenames) > 0 {
		b.WriteString("## Changed files\n")
		for _, f := range filenames {
			fmt.Fprintf(&b, "- %s\n", f)
		}
		b.WriteString("\n")
	}

	b.WriteString(renderHunkBlock(unit))
	return b.String()
}

func renderHunkBlock(unit core.HunkWithContext) string {
	var b strings.Builder

	fmt.Fprintf(&b, "## File: %s\n", unit.Filename)
	fmt.Fprintf(&b, "## Language: %s\n", unit.Language)
	fmt.Fprintf(&b, "## Hunk: lines %d-%d\n", unit.Hunk.NewStart, unit.Hunk.NewEnd())
	if unit.Hunk.Header != "" {
		fmt.Fprintf(&b, "## Scope: %s\n", unit.Hunk.Header)
	}
	b.WriteString("\n")

	if len(unit.ContextBefore) > 0 {
		fmt.Fprintf(&b, "### Context Before (lines %d-%d)\n", unit.ContextStartLine, unit.Hunk.NewStart-1)
		fmt.Fprintf(&b, "```%s\n%s\n```\n\n", unit.Language, strings.Join(unit.ContextBefore, "\n"))
	}

	b.WriteString("### Changes\n")
	fmt.Fprintf(&b, "```diff\n%s\n```\n\n", unit.Hunk.Content)

	if len(unit.ContextAfter) > 0 {
		afterStart := unit.Hunk.NewEnd() + 1
		afterEnd := afterStart + len(unit.ContextAfter) - 1
		fmt.Fprintf(&b, "### Context After (lines %d-%d)\n", afterStart, afterEnd)
		fmt.Fprintf(&b, "```%s\n%s\n```\n", unit.Language, strings.Join(unit.ContextAfter, "\n"))
	}

	return b.String()
}
