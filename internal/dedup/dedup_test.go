package dedup

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wardenhq/warden/internal/core"
)

func finding(path string, line int, title, desc string) core.Finding {
	return core.Finding{
		Title:       title,
		Description: desc,
		Location:    &core.Location{Path: path, StartLine: line},
	}
}

func TestContentHash_Stable(t *testing.T) {
	h1 := ContentHash("t", "d")
	h2 := ContentHash("t", "d")
	assert.Equal(t, h1, h2)
	assert.Len(t, h1, 8)
}

func TestDeduplicate_HashMatchUpdatesWarden(t *testing.T) {
	f := finding("a.go", 10, "SQL Injection", "unsanitized input")
	hash := ContentHash(f.Title, f.Description)

	existing := []core.ExistingComment{
		{Path: "a.go", Line: 10, ContentHash: hash, IsWarden: true, ThreadID: "t1"},
	}
	m := NewMirror(existing)

	result := Deduplicate(context.Background(), m, []core.Finding{f}, Options{HashOnly: true})
	require.Len(t, result.DuplicateActions, 1)
	assert.Equal(t, core.ActionUpdateWarden, result.DuplicateActions[0].Type)
	assert.Empty(t, result.NewFindings)
}

func TestDeduplicate_HashMatchExternalReacts(t *testing.T) {
	f := finding("a.go", 10, "SQL Injection", "unsanitized input")
	hash := ContentHash(f.Title, f.Description)

	existing := []core.ExistingComment{
		{Path: "a.go", Line: 10, ContentHash: hash, IsWarden: false},
	}
	m := NewMirror(existing)

	result := Deduplicate(context.Background(), m, []core.Finding{f}, Options{HashOnly: true})
	require.Len(t, result.DuplicateActions, 1)
	assert.Equal(t, core.ActionReactExternal, result.DuplicateActions[0].Type)
}

func TestDeduplicate_NewFindingAddedToMirror(t *testing.T) {
	m := NewMirror(nil)
	f := finding("a.go", 10, "New issue", "desc")

	result := Deduplicate(context.Background(), m, []core.Finding{f}, Options{HashOnly: true})
	require.Len(t, result.NewFindings, 1)

	// Running again against the same finding should now dedup, since Add
	// folded it into the mirror.
	result2 := Deduplicate(context.Background(), m, []core.Finding{f}, Options{HashOnly: true})
	assert.Empty(t, result2.NewFindings)
	assert.Len(t, result2.DuplicateActions, 1)
}

func TestDeduplicate_SemanticPass(t *testing.T) {
	existing := []core.ExistingComment{{Path: "b.go", Line: 5, Title: "Old title", IsWarden: true}}
	m := NewMirror(existing)
	f := finding("b.go", 6, "New phrasing of same bug", "desc")

	semantic := func(ctx context.Context, findings []core.Finding, ex []core.ExistingComment) ([][2]int, error) {
		return [][2]int{{0, 0}}, nil
	}

	result := Deduplicate(context.Background(), m, []core.Finding{f}, Options{Semantic: semantic})
	require.Len(t, result.DuplicateActions, 1)
	assert.Equal(t, core.MatchSemantic, result.DuplicateActions[0].MatchType)
	assert.Empty(t, result.NewFindings)
}

func TestDeduplicate_SemanticFailureDowngradesGracefully(t *testing.T) {
	m := NewMirror(nil)
	f := finding("b.go", 6, "title", "desc")

	semantic := func(ctx context.Context, findings []core.Finding, ex []core.ExistingComment) ([][2]int, error) {
		return nil, errors.New("llm unavailable")
	}

	result := Deduplicate(context.Background(), m, []core.Finding{f}, Options{Semantic: semantic})
	assert.Empty(t, result.DuplicateActions)
	require.Len(t, result.NewFindings, 1)
}

func TestFindStale_OrphanedFile(t *testing.T) {
	existing := []core.ExistingComment{
		{Path: "removed.go", Line: 1, ThreadID: "t1"},
	}
	stale := FindStale(existing, nil, map[string]struct{}{"kept.go": {}})
	require.Len(t, stale, 1)
}

func TestFindStale_NoMatchingFinding(t *testing.T) {
	existing := []core.ExistingComment{
		{Path: "kept.go", Line: 10, Title: "Old bug", ThreadID: "t1"},
	}
	findings := []core.Finding{finding("kept.go", 100, "Unrelated", "desc")}

	stale := FindStale(existing, findings, map[string]struct{}{"kept.go": {}})
	require.Len(t, stale, 1)
}

func TestFindStale_StillMatchedNotStale(t *testing.T) {
	f := finding("kept.go", 12, "Same bug", "desc")
	hash := ContentHash(f.Title, f.Description)
	existing := []core.ExistingComment{
		{Path: "kept.go", Line: 10, ContentHash: hash, ThreadID: "t1"},
	}

	stale := FindStale(existing, []core.Finding{f}, map[string]struct{}{"kept.go": {}})
	assert.Empty(t, stale)
}

func TestFindStale_NoThreadIDSkipped(t *testing.T) {
	existing := []core.ExistingComment{{Path: "x.go", Line: 1}}
	stale := FindStale(existing, nil, map[string]struct{}{})
	assert.Empty(t, stale)
}

func TestFindStale_RespectsCap(t *testing.T) {
	var existing []core.ExistingComment
	for i := 0; i < 60; i++ {
		existing = append(existing, core.ExistingComment{Path: "gone.go", Line: i, ThreadID: "t"})
	}
	stale := FindStale(existing, nil, map[string]struct{}{})
	assert.Len(t, stale, staleCap)
}
