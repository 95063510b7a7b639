package analyse

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wardenhq/warden/internal/core"
	"github.com/wardenhq/warden/internal/llmclient"
)

type fakeCaller struct {
	text  string
	err   error
	calls int32
}

func (f *fakeCaller) Call(ctx context.Context, systemPrompt, userPrompt, model string) (llmclient.Response, error) {
	atomic.AddInt32(&f.calls, 1)
	if f.err != nil {
		return llmclient.Response{}, f.err
	}
	return llmclient.Response{Text: f.text, Usage: core.UsageStats{InputTokens: 10, OutputTokens: 5}}, nil
}

func fastClient(caller llmclient.Caller) *llmclient.Client {
	opts := llmclient.DefaultOptions("test-model")
	opts.InitialDelayMs = 1
	opts.MaxDelayMs = 2
	return llmclient.New(caller, opts)
}

func TestAnalyser_Analyse_SingleHunk(t *testing.T) {
	caller := &fakeCaller{text: `[{"id":"1","severity":"high","title":"t","description":"d","location":{"path":"a.go","startLine":5}}]`}
	a := New(fastClient(caller), DefaultOptions())

	file := core.PreparedFile{
		Filename: "a.go",
		Hunks: []core.HunkWithContext{
			{Filename: "a.go", Hunk: core.DiffHunk{NewStart: 1, NewCount: 10}, ContextStartLine: 1},
		},
	}

	result, err := a.Analyse(context.Background(), file, core.SkillDefinition{}, nil, []string{"a.go"}, Callbacks{})
	require.NoError(t, err)
	require.Len(t, result.Findings, 1)
	assert.Equal(t, 0, result.FailedHunks)
	assert.Equal(t, 10, result.Usage.InputTokens)
}

func TestAnalyser_Analyse_LocationOutsideHunkDropped(t *testing.T) {
	caller := &fakeCaller{text: `[{"id":"1","severity":"high","title":"t","description":"d","location":{"path":"a.go","startLine":999}}]`}
	a := New(fastClient(caller), DefaultOptions())

	file := core.PreparedFile{
		Filename: "a.go",
		Hunks: []core.HunkWithContext{
			{Filename: "a.go", Hunk: core.DiffHunk{NewStart: 1, NewCount: 5}, ContextStartLine: 1},
		},
	}

	result, err := a.Analyse(context.Background(), file, core.SkillDefinition{}, nil, nil, Callbacks{})
	require.NoError(t, err)
	require.Len(t, result.Findings, 1)
	assert.Nil(t, result.Findings[0].Location)
}

func TestAnalyser_Analyse_ExtractionFailureIncrementsFailedHunks(t *testing.T) {
	caller := &fakeCaller{text: "not json at all and no braces either"}
	opts := DefaultOptions()
	opts.EnableRepair = false
	a := New(fastClient(caller), opts)

	file := core.PreparedFile{
		Filename: "a.go",
		Hunks: []core.HunkWithContext{
			{Filename: "a.go", Hunk: core.DiffHunk{NewStart: 1, NewCount: 1}},
		},
	}

	result, err := a.Analyse(context.Background(), file, core.SkillDefinition{}, nil, nil, Callbacks{})
	require.NoError(t, err)
	assert.Equal(t, 1, result.FailedHunks)
	assert.Empty(t, result.Findings)
}

func TestAnalyser_Analyse_DedupesWithinFile(t *testing.T) {
	caller := &fakeCaller{text: `[{"id":"dup","severity":"low","title":"t","description":"d","location":{"path":"a.go","startLine":2}}]`}
	a := New(fastClient(caller), DefaultOptions())

	file := core.PreparedFile{
		Filename: "a.go",
		Hunks: []core.HunkWithContext{
			{Filename: "a.go", Hunk: core.DiffHunk{NewStart: 1, NewCount: 5}, ContextStartLine: 1},
			{Filename: "a.go", Hunk: core.DiffHunk{NewStart: 1, NewCount: 5}, ContextStartLine: 1},
		},
	}

	result, err := a.Analyse(context.Background(), file, core.SkillDefinition{}, nil, nil, Callbacks{})
	require.NoError(t, err)
	assert.Len(t, result.Findings, 1)
}

func TestAnalyser_Analyse_AuthErrorIsFatal(t *testing.T) {
	caller := &fakeCaller{err: llmclient.NewAuthError(assert.AnError)}
	a := New(fastClient(caller), DefaultOptions())

	file := core.PreparedFile{
		Filename: "a.go",
		Hunks:    []core.HunkWithContext{{Filename: "a.go", Hunk: core.DiffHunk{NewStart: 1, NewCount: 1}}},
	}

	_, err := a.Analyse(context.Background(), file, core.SkillDefinition{}, nil, nil, Callbacks{})
	assert.Error(t, err)
}

func TestAnalyser_Analyse_CancelledContextAbortsRun(t *testing.T) {
	caller := &fakeCaller{text: "irrelevant"}
	a := New(fastClient(caller), DefaultOptions())

	file := core.PreparedFile{
		Filename: "a.go",
		Hunks:    []core.HunkWithContext{{Filename: "a.go", Hunk: core.DiffHunk{NewStart: 1, NewCount: 1}}},
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := a.Analyse(ctx, file, core.SkillDefinition{}, nil, nil, Callbacks{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrAborted))
}
