// Package diffparse turns a GitHub-style unified diff patch into the
// core.DiffHunk units the rest of the pipeline analyses, and optionally
// coalesces hunks that sit close together in the same file into a single
// larger unit so a skill sees them as one contiguous change.
package diffparse

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/wardenhq/warden/internal/core"
)

var hunkHeaderRegex = regexp.MustCompile(`^@@ -(\d+)(?:,(\d+))? \+(\d+)(?:,(\d+))? @@(.*)$`)

// ParseHunks splits a single file's unified-diff patch (as returned by the
// GitHub pull-request-files API) into its constituent hunks.
func ParseHunks(patch string) ([]core.DiffHunk, error) {
	if strings.TrimSpace(patch) == "" {
		return nil, nil
	}

	var hunks []core.DiffHunk
	var current *core.DiffHunk

	lines := strings.Split(patch, "\n")
	for _, line := range lines {
		if strings.HasPrefix(line, "@@") {
			if current != nil {
				hunks = append(hunks, finalizeHunk(*current))
			}
			h, err := parseHunkHeader(line)
			if err != nil {
				return nil, fmt.Errorf("diffparse: %w", err)
			}
			current = &h
			continue
		}
		if isMetadataLine(line) {
			// File/hunk metadata (diff headers, index lines, old/new file
			// markers, no-newline markers) can recur mid-patch across hunks
			// or files; never treat it as hunk content.
			continue
		}
		if current == nil {
			// Content before the first "@@" header isn't part of any hunk; skip it.
			continue
		}
		current.Lines = append(current.Lines, line)
	}
	if current != nil {
		hunks = append(hunks, finalizeHunk(*current))
	}

	return hunks, nil
}

// isMetadataLine reports whether line is unified-diff/file-level metadata
// rather than hunk content, wherever in the patch it appears.
func isMetadataLine(line string) bool {
	switch {
	case strings.HasPrefix(line, "diff --git"),
		strings.HasPrefix(line, "index "),
		strings.HasPrefix(line, "--- "),
		strings.HasPrefix(line, "+++ "),
		strings.HasPrefix(line, `\ No newline at end of file`):
		return true
	default:
		return false
	}
}

func finalizeHunk(h core.DiffHunk) core.DiffHunk {
	h.Content = strings.Join(h.Lines, "\n")
	return h
}

func parseHunkHeader(line string) (core.DiffHunk, error) {
	matches := hunkHeaderRegex.FindStringSubmatch(line)
	if matches == nil {
		return core.DiffHunk{}, fmt.Errorf("malformed hunk header %q", line)
	}

	oldStart, err := strconv.Atoi(matches[1])
	if err != nil {
		return core.DiffHunk{}, fmt.Errorf("malformed hunk header %q: %w", line, err)
	}
	oldCount := parseOptionalCount(matches[2])
	newStart, err := strconv.Atoi(matches[3])
	if err != nil {
		return core.DiffHunk{}, fmt.Errorf("malformed hunk header %q: %w", line, err)
	}
	newCount := parseOptionalCount(matches[4])

	return core.DiffHunk{
		OldStart: oldStart,
		OldCount: oldCount,
		NewStart: newStart,
		NewCount: newCount,
		Header:   strings.TrimSpace(matches[5]),
	}, nil
}

func parseOptionalCount(raw string) int {
	if raw == "" {
		return 1
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 1
	}
	return n
}

// CoalesceHunks merges hunks of the same file that sit within maxGapLines
// of each other on the new-file line numbering into a single hunk, up to
// maxChunkSize bytes of combined content. Hunks are assumed to already be
// in file order. A maxGapLines of 0 disables coalescing and returns hunks
// unchanged.
func CoalesceHunks(hunks []core.DiffHunk, maxGapLines, maxChunkSize int) []core.DiffHunk {
	if maxGapLines <= 0 || len(hunks) < 2 {
		return hunks
	}

	merged := make([]core.DiffHunk, 0, len(hunks))
	current := hunks[0]

	for _, next := range hunks[1:] {
		gap := next.NewStart - current.NewEnd() - 1
		combinedSize := len(current.Content) + len(next.Content)
		if gap >= 0 && gap <= maxGapLines && (maxChunkSize <= 0 || combinedSize <= maxChunkSize) {
			current = mergeTwo(current, next, gap)
			continue
		}
		merged = append(merged, current)
		current = next
	}
	merged = append(merged, current)

	return merged
}

func mergeTwo(a, b core.DiffHunk, gap int) core.DiffHunk {
	lines := make([]string, 0, len(a.Lines)+1+len(b.Lines))
	lines = append(lines, a.Lines...)
	if gap > 0 {
		lines = append(lines, "...")
	}
	lines = append(lines, b.Lines...)

	merged := core.DiffHunk{
		OldStart: a.OldStart,
		OldCount: (b.OldEnd() - a.OldStart) + 1,
		NewStart: a.NewStart,
		NewCount: (b.NewEnd() - a.NewStart) + 1,
		Header:   a.Header,
		Lines:    lines,
	}
	return finalizeHunk(merged)
}

// WholeFileHunk builds the single synthetic hunk that represents a whole
// file's content as one diff unit: header "@@ -0,0 +1,N @@" with every
// line prefixed "+", or "@@ -0,0 +0,0 @@" for an empty file. It's built by
// rendering that patch text and running it back through ParseHunks, so the
// synthetic form is guaranteed to round-trip through the same parser real
// patches do.
func WholeFileHunk(lines []string) (core.DiffHunk, error) {
	if len(lines) == 0 {
		hunks, err := ParseHunks("@@ -0,0 +0,0 @@\n")
		if err != nil || len(hunks) == 0 {
			return core.DiffHunk{}, fmt.Errorf("diffparse: build empty whole-file hunk: %w", err)
		}
		return hunks[0], nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "@@ -0,0 +1,%d @@\n", len(lines))
	for i, line := range lines {
		b.WriteString("+")
		b.WriteString(line)
		if i < len(lines)-1 {
			b.WriteString("\n")
		}
	}

	hunks, err := ParseHunks(b.String())
	if err != nil || len(hunks) == 0 {
		return core.DiffHunk{}, fmt.Errorf("diffparse: build whole-file hunk: %w", err)
	}
	return hunks[0], nil
}

// ValidCommentLines returns the set of new-file line numbers a patch makes
// commentable, i.e. every context or added line across all of a file's
// hunks. GitHub rejects an inline comment anchored outside this set.
func ValidCommentLines(patch string) map[int]struct{} {
	valid := make(map[int]struct{})
	hunks, err := ParseHunks(patch)
	if err != nil {
		return valid
	}

	for _, h := range hunks {
		line := h.NewStart
		for _, raw := range h.Lines {
			switch {
			case strings.HasPrefix(raw, "+"), strings.HasPrefix(raw, " "):
				valid[line] = struct{}{}
				line++
			case strings.HasPrefix(raw, "-"):
				// removed line; doesn't exist on the new side
			}
		}
	}
	return valid
}
