// Package extract recovers a findings array from a model's raw text
// response. Models are asked to return a JSON array, but in practice wrap
// it in prose or code fences, or in the worst case emit a sequence of
// JSON objects with no enclosing array at all; this package handles all
// three shapes before giving up.
package extract

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"

	"github.com/wardenhq/warden/internal/core"
)

const previewChars = 400
const repairTailChars = 2000

// Generator is the minimal surface the repair fallback needs from an LLM
// client: ask the model something, get text back. The analyser builds one
// around llmclient.Client.Call.
type Generator func(ctx context.Context, systemPrompt, userPrompt string) (string, error)

// Result is the outcome of one extraction attempt.
type Result struct {
	Success  bool
	Findings []core.Finding
	Error    string
	Preview  string
}

// Extract recovers findings from raw model output.
func Extract(raw string) Result {
	stripped := stripCodeFences(raw)

	if arr, ok := tryArray(stripped); ok {
		return Result{Success: true, Findings: arr}
	}

	if objs, ok := tryObjectScan(stripped); ok {
		return Result{Success: true, Findings: objs}
	}

	return Result{Success: false, Error: "no valid findings JSON found", Preview: preview(stripped)}
}

func stripCodeFences(raw string) string {
	s := strings.TrimSpace(raw)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if idx := strings.IndexByte(s, '\n'); idx != -1 {
		// Drop an optional language tag on the fence's opening line.
		s = s[idx+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// tryArray looks for the first '[' and attempts to parse the remainder as
// a JSON array of finding objects.
func tryArray(s string) ([]core.Finding, bool) {
	idx := strings.IndexByte(s, '[')
	if idx == -1 {
		return nil, false
	}
	candidate := s[idx:]

	result := gjson.Parse(candidate)
	if !result.IsArray() {
		return nil, false
	}

	var findings []core.Finding
	var parseErr bool
	result.ForEach(func(_, value gjson.Result) bool {
		f, ok := findingFromJSON(value)
		if !ok {
			parseErr = true
			return false
		}
		findings = append(findings, f)
		return true
	})
	if parseErr {
		return nil, false
	}
	return findings, true
}

// tryObjectScan recovers a sequence of top-level JSON objects from text
// that never formed a proper array: find the first '{', then scan forward
// tracking string state (honouring escapes) and brace depth; whenever
// depth returns to zero, the substring collected since the opening brace
// is one object.
func tryObjectScan(s string) ([]core.Finding, bool) {
	var findings []core.Finding

	i := strings.IndexByte(s, '{')
	if i == -1 {
		return nil, false
	}

	for i < len(s) {
		start := strings.IndexByte(s[i:], '{')
		if start == -1 {
			break
		}
		start += i

		end, ok := scanObject(s, start)
		if !ok {
			break
		}

		value := gjson.Parse(s[start:end])
		if value.IsObject() {
			if f, ok := findingFromJSON(value); ok {
				findings = append(findings, f)
			}
		}
		i = end
	}

	return findings, len(findings) > 0
}

// scanObject returns the index just past the matching closing brace for
// the object opening at s[start], tracking string/escape state so braces
// inside string literals don't confuse the depth count.
func scanObject(s string, start int) (int, bool) {
	depth := 0
	inString := false
	escaped := false

	for i := start; i < len(s); i++ {
		c := s[i]

		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}

		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i + 1, true
			}
		}
	}
	return 0, false
}

func findingFromJSON(v gjson.Result) (core.Finding, bool) {
	if !v.IsObject() {
		return core.Finding{}, false
	}

	f := core.Finding{
		ID:          v.Get("id").String(),
		Severity:    core.ParseSeverity(v.Get("severity").String()),
		Confidence:  v.Get("confidence").Float(),
		Title:       v.Get("title").String(),
		Description: v.Get("description").String(),
	}

	if loc := v.Get("location"); loc.Exists() && loc.IsObject() {
		f.Location = &core.Location{
			Path:      loc.Get("path").String(),
			StartLine: int(loc.Get("startLine").Int()),
			EndLine:   int(loc.Get("endLine").Int()),
		}
	}

	if fix := v.Get("suggestedFix"); fix.Exists() && fix.IsObject() {
		f.SuggestedFix = &core.SuggestedFix{
			Description: fix.Get("description").String(),
			Diff:        fix.Get("diff").String(),
		}
	}

	if f.Title == "" && f.Description == "" {
		return core.Finding{}, false
	}
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	return f, true
}

const repairSystemPrompt = "You repair malformed JSON. Given a fragment of text that was meant to be " +
	"a JSON array of findings, return ONLY a valid JSON array with keys " +
	"{id, severity, confidence?, title, description, location?, suggestedFix?}. " +
	"If no findings can be recovered, return []."

// Repair invokes generate with a truncated tail of raw (preserving
// whatever JSON-like region survives) and re-runs Extract on its answer.
// It is best-effort: a failure here is never fatal to the caller, which
// should record it and move on rather than treat the hunk as a hard
// error.
func Repair(ctx context.Context, generate Generator, raw string) Result {
	tail := raw
	if len(tail) > repairTailChars {
		tail = tail[len(tail)-repairTailChars:]
	}

	out, err := generate(ctx, repairSystemPrompt, tail)
	if err != nil {
		return Result{Success: false, Error: fmt.Sprintf("repair call failed: %v", err), Preview: preview(tail)}
	}
	return Extract(out)
}

func preview(s string) string {
	if len(s) <= previewChars {
		return s
	}
	return s[:previewChars]
}
