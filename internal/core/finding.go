package core

// Location pinpoints a finding within a file, relative to the repo root.
type Location struct {
	Path      string `json:"path"`
	StartLine int    `json:"startLine"`
	EndLine   int    `json:"endLine,omitempty"`
}

// End returns the finding's end line, defaulting to StartLine when unset.
func (l Location) End() int {
	if l.EndLine <= 0 {
		return l.StartLine
	}
	return l.EndLine
}

// SuggestedFix is a proposed unified-diff patch for a finding.
type SuggestedFix struct {
	Description string `json:"description"`
	Diff        string `json:"diff"`
}

// Finding is a single reviewable issue surfaced by a skill's LLM analysis
// of one analysis unit. Its id is unique within a SkillReport.
type Finding struct {
	ID            string        `json:"id"`
	Severity      Severity      `json:"severity"`
	Confidence    float64       `json:"confidence,omitempty"`
	Title         string        `json:"title"`
	Description   string        `json:"description"`
	Location      *Location     `json:"location,omitempty"`
	SuggestedFix  *SuggestedFix `json:"suggestedFix,omitempty"`
}

// UsageStats aggregates token usage and cost across one or more LLM calls.
type UsageStats struct {
	InputTokens              int     `json:"inputTokens"`
	OutputTokens             int     `json:"outputTokens"`
	CacheReadInputTokens     int     `json:"cacheReadInputTokens,omitempty"`
	CacheCreationInputTokens int     `json:"cacheCreationInputTokens,omitempty"`
	CostUSD                  float64 `json:"costUSD"`
}

// Add accumulates other's counters into u and returns the result. It never
// mutates the receiver in place so callers can fold over a slice safely.
func (u UsageStats) Add(other UsageStats) UsageStats {
	return UsageStats{
		InputTokens:              u.InputTokens + other.InputTokens,
		OutputTokens:             u.OutputTokens + other.OutputTokens,
		CacheReadInputTokens:     u.CacheReadInputTokens + other.CacheReadInputTokens,
		CacheCreationInputTokens: u.CacheCreationInputTokens + other.CacheCreationInputTokens,
		CostUSD:                  u.CostUSD + other.CostUSD,
	}
}

// SkippedFile records a file the preparer declined to analyse.
type SkippedFile struct {
	Filename string `json:"filename"`
	Reason   string `json:"reason"` // "pattern", "builtin", or "empty-patch"
	Pattern  string `json:"pattern,omitempty"`
}

// ClassifyMode is the file classifier's three-way decision for one file:
// analyse it hunk by hunk, analyse it as a single whole-file unit, or skip
// it entirely.
type ClassifyMode string

const (
	ClassifyPerHunk   ClassifyMode = "per-hunk"
	ClassifyWholeFile ClassifyMode = "whole-file"
	ClassifySkip      ClassifyMode = "skip"
)

// SkillReport is the final, deduplicated output of running one skill over
// one event.
type SkillReport struct {
	Skill        string            `json:"skill"`
	Summary      string            `json:"summary"`
	Findings     []Finding         `json:"findings"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	DurationMs   int64             `json:"durationMs,omitempty"`
	Usage        UsageStats        `json:"usage,omitempty"`
	SkippedFiles []SkippedFile     `json:"skippedFiles,omitempty"`
	FailedHunks  int               `json:"failedHunks,omitempty"`
}
