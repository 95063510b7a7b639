// Package core defines the essential data types that flow through the
// skill execution pipeline: findings, severities, usage statistics, and
// the event and report shapes every other package builds on.
package core

import "strings"

// Severity classifies how serious a finding is. The zero value is not a
// valid severity; always construct one through ParseSeverity or a literal.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
	SeverityInfo     Severity = "info"
)

// severityOrder gives each severity a total order: lower is more severe.
var severityOrder = map[Severity]int{
	SeverityCritical: 0,
	SeverityHigh:     1,
	SeverityMedium:   2,
	SeverityLow:      3,
	SeverityInfo:     4,
}

// Rank returns the severity's position in the total order, critical first.
// Unknown severities rank after info.
func (s Severity) Rank() int {
	if r, ok := severityOrder[s]; ok {
		return r
	}
	return len(severityOrder)
}

// Valid reports whether s is one of the five defined severities.
func (s Severity) Valid() bool {
	_, ok := severityOrder[s]
	return ok
}

// Less reports whether s is strictly more severe than other.
func (s Severity) Less(other Severity) bool {
	return s.Rank() < other.Rank()
}

// ParseSeverity normalizes free-form model output into a Severity.
// Unrecognized input maps to SeverityInfo so a malformed LLM response
// degrades rather than breaking the pipeline.
func ParseSeverity(raw string) Severity {
	s := Severity(strings.ToLower(strings.TrimSpace(raw)))
	if s.Valid() {
		return s
	}
	return SeverityInfo
}

// SeverityThreshold is a Severity plus the sentinel "off" value, used to
// gate which findings a caller wants to see (commentOn, failOn).
type SeverityThreshold string

const ThresholdOff SeverityThreshold = "off"

// Meets reports whether severity s satisfies threshold t, i.e. s is at
// least as severe as t. A threshold of "off" is never met.
func (t SeverityThreshold) Meets(s Severity) bool {
	if t == ThresholdOff {
		return false
	}
	return s.Rank() <= Severity(t).Rank()
}
