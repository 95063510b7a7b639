package core

// RunLogRecord is one JSONL line recording a single skill's outcome
// within a run, written regardless of whether the skill succeeded,
// failed, or was skipped.
type RunLogRecord struct {
	Skill     string      `json:"skill"`
	Report    *SkillReport `json:"report,omitempty"`
	Error     string      `json:"error,omitempty"`
	Skipped   bool        `json:"skipped,omitempty"`
	Timestamp string      `json:"timestamp"`
}

// RunSummaryRecord is the final JSONL line of a run, aggregating across
// every skill that participated.
type RunSummaryRecord struct {
	EventType     EventType `json:"eventType"`
	Repository    string    `json:"repository"`
	PRNumber      int       `json:"prNumber,omitempty"`
	Skills        []string  `json:"skills"`
	TotalFindings int       `json:"totalFindings"`
	DurationMs    int64     `json:"durationMs"`
	Verdict       string    `json:"verdict"`
	Timestamp     string    `json:"timestamp"`
}
