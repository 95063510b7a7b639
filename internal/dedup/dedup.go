// Package dedup matches a run's new findings against previously posted
// comments so the transport never double-posts the same issue, and
// identifies comments that no longer correspond to any current finding so
// their threads can be resolved.
package dedup

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/cespare/xxhash/v2"

	"github.com/wardenhq/warden/internal/core"
)

const staleCap = 50
const staleLineTolerance = 5

// ContentHash computes the first 8 hex characters of
// sha256(title + "\n" + description), the stable identity embedded in
// every comment marker.
func ContentHash(title, description string) string {
	sum := sha256.Sum256([]byte(title + "\n" + description))
	return hex.EncodeToString(sum[:])[:8]
}

// SemanticMatcher compares remaining findings against remaining existing
// comments using a lightweight model, returning (findingIndex,
// existingIndex) pairs it believes refer to the same issue. Errors
// downgrade gracefully: callers should treat a SemanticMatcher failure as
// "no semantic matches," never as fatal.
type SemanticMatcher func(ctx context.Context, findings []core.Finding, existing []core.ExistingComment) ([][2]int, error)

// Options configures one deduplication pass.
type Options struct {
	HashOnly     bool
	CurrentSkill string
	Semantic     SemanticMatcher
}

// Result is the outcome of deduplicating one run's findings.
type Result struct {
	NewFindings      []core.Finding
	DuplicateActions []core.DuplicateAction
}

// mirror is the growing in-memory snapshot of existing comments, updated
// by callers (via Add) after each skill's new findings are posted, so
// later skills in the same run see earlier ones' output.
type Mirror struct {
	byKey map[string]core.ExistingComment
}

// NewMirror seeds a Mirror from the comments fetched once at the start of
// a run.
func NewMirror(existing []core.ExistingComment) *Mirror {
	m := &Mirror{byKey: make(map[string]core.ExistingComment, len(existing))}
	for _, c := range existing {
		m.byKey[hashKey(c.Path, c.Line, c.ContentHash)] = c
	}
	return m
}

// Add records a newly posted finding as a comment future dedup passes in
// this run should see.
func (m *Mirror) Add(f core.Finding, contentHash string) {
	if f.Location == nil {
		return
	}
	line := locationLine(f.Location)
	c := core.ExistingComment{
		Path:        f.Location.Path,
		Line:        line,
		Title:       f.Title,
		Description: f.Description,
		ContentHash: contentHash,
		IsWarden:    true,
	}
	m.byKey[hashKey(c.Path, c.Line, c.ContentHash)] = c
}

// Snapshot returns the mirror's comments as a slice, for the stale
// resolver or a semantic pass to consume.
func (m *Mirror) Snapshot() []core.ExistingComment {
	out := make([]core.ExistingComment, 0, len(m.byKey))
	for _, c := range m.byKey {
		out = append(out, c)
	}
	return out
}

// Deduplicate runs the two-pass algorithm over findings against the
// mirror's current snapshot, returning new findings to post and duplicate
// actions for the rest. Every finding treated as new is folded into the
// mirror so later calls in the same run see it.
func Deduplicate(ctx context.Context, m *Mirror, findings []core.Finding, opts Options) Result {
	var result Result

	remainingFindings := make([]core.Finding, 0, len(findings))
	remainingIdx := make([]int, 0, len(findings))

	for i, f := range findings {
		matched, action := matchByHash(m, f)
		if matched {
			action.Finding = f
			result.DuplicateActions = append(result.DuplicateActions, action)
			continue
		}
		remainingFindings = append(remainingFindings, f)
		remainingIdx = append(remainingIdx, i)
	}

	matchedBySemantic := make(map[int]bool)
	if !opts.HashOnly && opts.Semantic != nil && len(remainingFindings) > 0 {
		existing := m.Snapshot()
		pairs, err := opts.Semantic(ctx, remainingFindings, existing)
		if err == nil {
			for _, pair := range pairs {
				fi, ei := pair[0], pair[1]
				if fi < 0 || fi >= len(remainingFindings) || ei < 0 || ei >= len(existing) {
					continue
				}
				matchedBySemantic[fi] = true
				result.DuplicateActions = append(result.DuplicateActions, core.DuplicateAction{
					Type:            actionType(existing[ei]),
					Finding:         remainingFindings[fi],
					ExistingComment: existing[ei],
					MatchType:       core.MatchSemantic,
				})
			}
		}
	}

	for i, f := range remainingFindings {
		if matchedBySemantic[i] {
			continue
		}
		result.NewFindings = append(result.NewFindings, f)
		hash := ContentHash(f.Title, f.Description)
		m.Add(f, hash)
	}

	return result
}

func matchByHash(m *Mirror, f core.Finding) (bool, core.DuplicateAction) {
	if f.Location == nil {
		return false, core.DuplicateAction{}
	}
	line := locationLine(f.Location)
	hash := ContentHash(f.Title, f.Description)

	existing, ok := m.byKey[hashKey(f.Location.Path, line, hash)]
	if !ok {
		return false, core.DuplicateAction{}
	}

	return true, core.DuplicateAction{
		Type:            actionType(existing),
		ExistingComment: existing,
		MatchType:       core.MatchHash,
	}
}

func actionType(c core.ExistingComment) core.DuplicateActionType {
	if c.IsWarden {
		return core.ActionUpdateWarden
	}
	return core.ActionReactExternal
}

func locationLine(loc *core.Location) int {
	if loc.EndLine > 0 {
		return loc.EndLine
	}
	return loc.StartLine
}

// hashKey mirrors the "<path>:<line>:<contentHash>" key the pass-1 lookup
// is built from, accelerated with xxhash since this map is rebuilt and
// probed once per finding across every skill in a run.
func hashKey(path string, line int, contentHash string) string {
	raw := fmt.Sprintf("%s:%d:%s", path, line, contentHash)
	return fmt.Sprintf("%016x", xxhash.Sum64String(raw))
}

// FindStale computes the set of existing comments that no longer
// correspond to any current finding, scoped to the files the preparer
// processed this run. Results are capped at 50 per run.
func FindStale(existing []core.ExistingComment, findings []core.Finding, processedFiles map[string]struct{}) []core.ExistingComment {
	var stale []core.ExistingComment

	for _, c := range existing {
		if c.ThreadID == "" {
			continue
		}
		if _, inScope := processedFiles[c.Path]; !inScope {
			stale = append(stale, c)
		} else if !hasMatch(c, findings) {
			stale = append(stale, c)
		}
		if len(stale) >= staleCap {
			break
		}
	}

	return stale
}

func hasMatch(c core.ExistingComment, findings []core.Finding) bool {
	for _, f := range findings {
		if f.Location == nil || f.Location.Path != c.Path {
			continue
		}
		line := locationLine(f.Location)
		if abs(line-c.Line) > staleLineTolerance {
			continue
		}
		if f.Location.Path == c.Path {
			hash := ContentHash(f.Title, f.Description)
			if hash == c.ContentHash {
				return true
			}
			if strings.EqualFold(strings.TrimSpace(f.Title), strings.TrimSpace(c.Title)) {
				return true
			}
		}
	}
	return false
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
