package pipeline

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	gh "github.com/google/go-github/v73/github"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wardenhq/warden/internal/config"
	"github.com/wardenhq/warden/internal/core"
	"github.com/wardenhq/warden/internal/github"
)

type fakeGitHub struct {
	comments  []core.ExistingComment
	reviews   int
	reactions int
}

func (f *fakeGitHub) GetPullRequest(ctx context.Context, owner, repo string, number int) (*core.PullRequestContext, string, error) {
	return &core.PullRequestContext{Number: number}, "", nil
}
func (f *fakeGitHub) GetChangedFiles(ctx context.Context, owner, repo string, number int) ([]core.FileChange, error) {
	return nil, nil
}
func (f *fakeGitHub) GetExistingComments(ctx context.Context, owner, repo string, number int) ([]core.ExistingComment, error) {
	return f.comments, nil
}
func (f *fakeGitHub) CreateComment(ctx context.Context, owner, repo string, number int, body string) error {
	return nil
}
func (f *fakeGitHub) UpdateComment(ctx context.Context, owner, repo string, commentID int64, body string) error {
	return nil
}
func (f *fakeGitHub) CreateReview(ctx context.Context, owner, repo string, number int, sha, body string, comments []github.DraftReviewComment) error {
	f.reviews++
	return nil
}
func (f *fakeGitHub) ReactToComment(ctx context.Context, owner, repo string, commentID int64, content string) error {
	f.reactions++
	return nil
}
func (f *fakeGitHub) ResolveThread(ctx context.Context, owner, repo, threadID string) error {
	return nil
}
func (f *fakeGitHub) CreateCheckRun(ctx context.Context, owner, repo string, opts gh.CreateCheckRunOptions) (*gh.CheckRun, error) {
	return &gh.CheckRun{ID: gh.Ptr(int64(1))}, nil
}
func (f *fakeGitHub) UpdateCheckRun(ctx context.Context, owner, repo string, checkRunID int64, opts gh.UpdateCheckRunOptions) error {
	return nil
}

var _ github.Client = (*fakeGitHub)(nil)

func writeLocalSkill(t *testing.T, repoPath string) {
	t.Helper()
	dir := filepath.Join(repoPath, "skills", "style")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "SKILL.md"), []byte("---\nname: style\n---\nReview style.\n"), 0o644))
}

func TestResolveSkillDirs_LocalOnly(t *testing.T) {
	repoPath := t.TempDir()
	writeLocalSkill(t, repoPath)

	dirs, err := resolveSkillDirs(context.Background(), repoPath, core.DefaultRepoConfig(), Deps{})
	require.NoError(t, err)
	require.Len(t, dirs, 1)
	assert.Equal(t, "style", filepath.Base(dirs[0]))
}

func TestRunOptionsFromConfig_AppliesOverrides(t *testing.T) {
	cfg := &config.Config{}
	cfg.Concurrency.FileConcurrency = 7
	cfg.Concurrency.HunkConcurrency = 3
	cfg.Concurrency.BatchDelayMs = 50
	cfg.Context.ContextLines = 20
	cfg.Hunks.Enabled = true
	cfg.Hunks.MaxGapLines = 4
	cfg.Hunks.MaxChunkSize = 999

	repoCfg := &core.RepoConfig{ExcludePatterns: []string{"vendor/**"}}
	opts := runOptionsFromConfig(cfg, repoCfg)

	assert.Equal(t, 7, opts.Concurrency)
	assert.Equal(t, 3, opts.AnalyseOptions.Concurrency)
	assert.Equal(t, 50, opts.BatchDelayMs)
	assert.Equal(t, 20, opts.PrepareOptions.ContextLines)
	assert.True(t, opts.PrepareOptions.CoalesceEnabled)
	assert.Equal(t, []string{"vendor/**"}, opts.ExcludePatterns)
}

func TestMarshalRunLogLine_SkillRecord(t *testing.T) {
	rec := core.RunLogRecord{Skill: "security", Timestamp: "2026-07-30T00:00:00Z"}
	line, err := marshalRunLogLine(rec)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal([]byte(line), &decoded))
	assert.Equal(t, "security", decoded["skill"])
}

func TestMarshalRunLogLine_SummaryRecord(t *testing.T) {
	rec := core.RunSummaryRecord{
		EventType:     core.EventPullRequest,
		Repository:    "acme/widgets",
		Skills:        []string{"security", "style"},
		TotalFindings: 3,
		Verdict:       "COMMENT",
		Timestamp:     "2026-07-30T00:00:00Z",
	}
	line, err := marshalRunLogLine(rec)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal([]byte(line), &decoded))
	assert.Equal(t, "acme/widgets", decoded["repository"])
	assert.Equal(t, float64(3), decoded["totalFindings"])
}

func TestAppendRunLog_WritesUnderStateDir(t *testing.T) {
	stateDir := t.TempDir()
	event := core.EventContext{RepoPath: "/tmp/acme-widgets"}

	appendRunLog(stateDir, event, core.RunLogRecord{Skill: "style", Timestamp: "2026-07-30T00:00:00Z"})

	entries, err := os.ReadDir(filepath.Join(stateDir, "runs"))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Contains(t, entries[0].Name(), "acme-widgets")
}

func TestSanitizeForFilename_ReplacesColons(t *testing.T) {
	assert.Equal(t, "2026-07-30T00-00-00Z", sanitizeForFilename("2026-07-30T00:00:00Z"))
}
