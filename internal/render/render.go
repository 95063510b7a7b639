// Package render turns a skill's deduplicated findings into GitHub-shaped
// review payloads: inline comments anchored to diff lines, and a single
// grouped summary comment, in a compact emoji-and-blockquote style.
package render

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/wardenhq/warden/internal/core"
	"github.com/wardenhq/warden/internal/dedup"
)

// Severity emojis used in rendered comments.
const (
	emojiCritical = "🔴"
	emojiHigh     = "🟠"
	emojiMedium   = "🟡"
	emojiLow      = "🟢"
	emojiInfo     = "⚪"
)

const (
	iconApprove        = "✅"
	iconRequestChanges = "🚫"
	iconComment        = "💬"
)

// InlineComment is one line-anchored review comment ready for posting via
// the transport's draft-review-comment contract.
type InlineComment struct {
	Path      string
	Line      int
	StartLine int
	StartSide string // "RIGHT" when StartLine != Line, empty otherwise
	Body      string
}

// Review is a batch of inline comments plus the verdict they imply.
type Review struct {
	Verdict  string // "REQUEST_CHANGES" or "COMMENT"
	Comments []InlineComment
}

// Options configures one render pass over a SkillReport.
type Options struct {
	IncludeSuggestions bool
	MaxFindings        int
	GroupByFile        bool
	CommentOn          core.SeverityThreshold
	CheckRunURL        string
	TotalFindings      int
	DurationMs         int64
	Usage              core.UsageStats
}

// Output is what one skill's report renders to: an optional inline review
// (nil when no finding has a location) and a summary comment body.
type Output struct {
	Review         *Review
	SummaryComment string
}

// Render builds the GitHub-shaped payload for report under opts.
func Render(report core.SkillReport, opts Options) Output {
	filtered := filterBySeverity(report.Findings, opts.CommentOn)
	sortBySeverity(filtered)

	rendered := filtered
	truncated := 0
	if opts.MaxFindings > 0 && len(filtered) > opts.MaxFindings {
		rendered = filtered[:opts.MaxFindings]
		truncated = len(filtered) - opts.MaxFindings
	}

	var review *Review
	var comments []InlineComment
	anyHighSeverity := false

	for _, f := range rendered {
		if f.Location == nil {
			continue
		}
		comments = append(comments, buildInlineComment(f, report.Skill, opts.IncludeSuggestions))
		if f.Severity == core.SeverityCritical || f.Severity == core.SeverityHigh {
			anyHighSeverity = true
		}
	}

	if len(comments) > 0 {
		verdict := "COMMENT"
		if anyHighSeverity {
			verdict = "REQUEST_CHANGES"
		}
		review = &Review{Verdict: verdict, Comments: comments}
	}

	summary := buildSummary(report, rendered, truncated, opts)

	return Output{Review: review, SummaryComment: summary}
}

func filterBySeverity(findings []core.Finding, threshold core.SeverityThreshold) []core.Finding {
	if threshold == "" {
		return append([]core.Finding(nil), findings...)
	}
	var out []core.Finding
	for _, f := range findings {
		if threshold.Meets(f.Severity) {
			out = append(out, f)
		}
	}
	return out
}

func sortBySeverity(findings []core.Finding) {
	sort.SliceStable(findings, func(i, j int) bool {
		return findings[i].Severity.Less(findings[j].Severity)
	})
}

func buildInlineComment(f core.Finding, skill string, includeSuggestions bool) InlineComment {
	loc := f.Location
	var sb strings.Builder

	fmt.Fprintf(&sb, "**%s %s**", severityEmoji(f.Severity), capitalize(string(f.Severity)))
	sb.WriteString("\n\n")
	sb.WriteString(strings.TrimSpace(f.Description))

	if includeSuggestions && f.SuggestedFix != nil && f.SuggestedFix.Diff != "" {
		sb.WriteString("\n\n```suggestion\n")
		sb.WriteString(strings.TrimSpace(sanitizeFence(f.SuggestedFix.Diff)))
		sb.WriteString("\n```\n")
	}

	sb.WriteString("\n\n")
	sb.WriteString(attributionLine([]string{skill}))
	sb.WriteString("\n")
	sb.WriteString(marker(loc.Path, loc.End(), contentHashOf(f)))

	line := loc.End()
	startLine := loc.StartLine
	startSide := ""
	if startLine > 0 && startLine != line {
		startSide = "RIGHT"
	} else {
		startLine = 0
	}

	return InlineComment{
		Path:      loc.Path,
		Line:      line,
		StartLine: startLine,
		StartSide: startSide,
		Body:      strings.TrimSpace(sb.String()) + "\n",
	}
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func sanitizeFence(s string) string {
	return strings.ReplaceAll(s, "```", "` ` `")
}

func contentHashOf(f core.Finding) string {
	return dedup.ContentHash(f.Title, f.Description)
}

// attributionLine renders the footer naming every skill that has touched
// this location, in first-seen order.
func attributionLine(skills []string) string {
	return fmt.Sprintf("<sub>warden: %s</sub>", strings.Join(skills, ", "))
}

var attributionPattern = regexp.MustCompile(`(?m)^<sub>warden: (.+)</sub>$`)

// UpdateWardenCommentBody rewrites body's attribution line to the union of
// its existing skill list and newSkill, deduplicated and in first-seen
// order, leaving the rest of the comment untouched. It is idempotent:
// calling it twice with the same newSkill yields the same body as calling
// it once.
func UpdateWardenCommentBody(body, newSkill string) string {
	if m := attributionPattern.FindStringSubmatch(body); m != nil {
		skills := unionSkills(splitSkills(m[1]), newSkill)
		return attributionPattern.ReplaceAllString(body, attributionLine(skills))
	}
	return strings.TrimRight(body, "\n") + "\n\n" + attributionLine([]string{newSkill}) + "\n"
}

func splitSkills(raw string) []string {
	parts := strings.Split(raw, ",")
	skills := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			skills = append(skills, s)
		}
	}
	return skills
}

// unionSkills appends newSkill to existing, deduplicating but preserving
// first-seen order, so a comment's attribution only ever grows.
func unionSkills(existing []string, newSkill string) []string {
	for _, s := range existing {
		if s == newSkill {
			return existing
		}
	}
	return append(existing, newSkill)
}

// markerPattern recognizes the hidden identity comment embedded in every
// rendered inline comment's body.
var markerPattern = regexp.MustCompile(`<!-- warden:v1:(.+):(\d+):([0-9a-f]{8}) -->`)

func marker(path string, line int, hash string) string {
	return fmt.Sprintf("<!-- warden:v1:%s:%d:%s -->", path, line, hash)
}

// ParseMarker extracts the path, line, and content hash embedded in a
// rendered comment body, if present.
func ParseMarker(body string) (path string, line int, hash string, ok bool) {
	m := markerPattern.FindStringSubmatch(body)
	if m == nil {
		return "", 0, "", false
	}
	var n int
	fmt.Sscanf(m[2], "%d", &n)
	return m[1], n, m[3], true
}

func buildSummary(report core.SkillReport, rendered []core.Finding, truncated int, opts Options) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("## %s Verdict: %s\n\n", verdictIcon(report), reportVerdict(report, rendered)))

	if report.Summary != "" {
		sb.WriteString(report.Summary)
		sb.WriteString("\n\n")
	}

	counts := countBySeverity(rendered)
	if line := statsLine(counts); line != "" {
		sb.WriteString(fmt.Sprintf("*Found %d finding(s): %s*\n\n", len(rendered), line))
	}

	if opts.GroupByFile {
		sb.WriteString(groupedByFile(rendered))
	}

	total := opts.TotalFindings
	if total == 0 {
		total = len(rendered) + truncated
	}
	if total > len(rendered) {
		sb.WriteString(fmt.Sprintf("\n_%d additional finding(s) not shown._\n", total-len(rendered)))
	}

	sb.WriteString(fmt.Sprintf(
		"\n---\n_%s • %d input / %d output tokens • $%.4f_\n",
		durationLabel(opts.DurationMs), opts.Usage.InputTokens, opts.Usage.OutputTokens, opts.Usage.CostUSD,
	))

	return sb.String()
}

func reportVerdict(report core.SkillReport, rendered []core.Finding) string {
	for _, f := range rendered {
		if f.Severity == core.SeverityCritical || f.Severity == core.SeverityHigh {
			return "REQUEST_CHANGES"
		}
	}
	if len(rendered) > 0 {
		return "COMMENT"
	}
	return "APPROVE"
}

func verdictIcon(report core.SkillReport) string {
	switch {
	case hasSeverityAtLeast(report.Findings, core.SeverityHigh):
		return iconRequestChanges
	case len(report.Findings) > 0:
		return iconComment
	default:
		return iconApprove
	}
}

func hasSeverityAtLeast(findings []core.Finding, threshold core.Severity) bool {
	for _, f := range findings {
		if f.Severity.Rank() <= threshold.Rank() {
			return true
		}
	}
	return false
}

func countBySeverity(findings []core.Finding) map[core.Severity]int {
	counts := make(map[core.Severity]int)
	for _, f := range findings {
		counts[f.Severity]++
	}
	return counts
}

func statsLine(counts map[core.Severity]int) string {
	var parts []string
	if n := counts[core.SeverityCritical]; n > 0 {
		parts = append(parts, fmt.Sprintf("%s %d Critical", emojiCritical, n))
	}
	if n := counts[core.SeverityHigh]; n > 0 {
		parts = append(parts, fmt.Sprintf("%s %d High", emojiHigh, n))
	}
	if n := counts[core.SeverityMedium]; n > 0 {
		parts = append(parts, fmt.Sprintf("%s %d Medium", emojiMedium, n))
	}
	if n := counts[core.SeverityLow]; n > 0 {
		parts = append(parts, fmt.Sprintf("%s %d Low", emojiLow, n))
	}
	return strings.Join(parts, ", ")
}

func groupedByFile(findings []core.Finding) string {
	order := []string{}
	byFile := map[string][]core.Finding{}
	for _, f := range findings {
		path := "(general)"
		if f.Location != nil {
			path = f.Location.Path
		}
		if _, ok := byFile[path]; !ok {
			order = append(order, path)
		}
		byFile[path] = append(byFile[path], f)
	}

	var sb strings.Builder
	for _, path := range order {
		sb.WriteString(fmt.Sprintf("**%s**\n", path))
		for _, f := range byFile[path] {
			sb.WriteString(fmt.Sprintf("- %s %s\n", severityEmoji(f.Severity), f.Title))
		}
	}
	return sb.String()
}

func severityEmoji(s core.Severity) string {
	switch s {
	case core.SeverityCritical:
		return emojiCritical
	case core.SeverityHigh:
		return emojiHigh
	case core.SeverityMedium:
		return emojiMedium
	case core.SeverityLow:
		return emojiLow
	default:
		return emojiInfo
	}
}

func durationLabel(ms int64) string {
	if ms <= 0 {
		return "completed"
	}
	if ms < 1000 {
		return fmt.Sprintf("%dms", ms)
	}
	return fmt.Sprintf("%.1fs", float64(ms)/1000)
}
