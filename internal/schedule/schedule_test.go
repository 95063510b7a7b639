package schedule

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wardenhq/warden/internal/core"
)

func resolveOK(skill core.SkillDefinition) func(context.Context) (core.SkillDefinition, error) {
	return func(context.Context) (core.SkillDefinition, error) { return skill, nil }
}

func TestRun_AllSucceed(t *testing.T) {
	tasks := []Task{
		{
			Name:         "a",
			ResolveSkill: resolveOK(core.SkillDefinition{Name: "a"}),
			Run: func(ctx context.Context, skill core.SkillDefinition) (core.SkillReport, error) {
				return core.SkillReport{Skill: "a"}, nil
			},
		},
		{
			Name:         "b",
			ResolveSkill: resolveOK(core.SkillDefinition{Name: "b"}),
			Run: func(ctx context.Context, skill core.SkillDefinition) (core.SkillReport, error) {
				return core.SkillReport{Skill: "b"}, nil
			},
		},
	}

	results := Run(context.Background(), tasks, DefaultOptions(), Callbacks{})
	require.Len(t, results, 2)
	assert.Equal(t, "a", results[0].Name)
	assert.NoError(t, results[0].Error)
	assert.Equal(t, "b", results[1].Name)
	assert.NoError(t, results[1].Error)
}

func TestRun_OneFailureDoesNotCancelOthers(t *testing.T) {
	tasks := []Task{
		{
			Name:         "failing",
			ResolveSkill: resolveOK(core.SkillDefinition{}),
			Run: func(ctx context.Context, skill core.SkillDefinition) (core.SkillReport, error) {
				return core.SkillReport{}, errors.New("boom")
			},
		},
		{
			Name:         "ok",
			ResolveSkill: resolveOK(core.SkillDefinition{}),
			Run: func(ctx context.Context, skill core.SkillDefinition) (core.SkillReport, error) {
				return core.SkillReport{Skill: "ok"}, nil
			},
		},
	}

	results := Run(context.Background(), tasks, Options{SkillConcurrency: 2}, Callbacks{})
	require.Len(t, results, 2)
	assert.Error(t, results[0].Error)
	assert.NoError(t, results[1].Error)
	require.NotNil(t, results[1].Report)
}

func TestRun_Skipped(t *testing.T) {
	tasks := []Task{
		{
			Name:       "skip-me",
			ShouldSkip: func(context.Context) (bool, string) { return true, "trigger not matched" },
			ResolveSkill: func(context.Context) (core.SkillDefinition, error) {
				t.Fatal("ResolveSkill should not be called when ShouldSkip is true")
				return core.SkillDefinition{}, nil
			},
			Run: func(ctx context.Context, skill core.SkillDefinition) (core.SkillReport, error) {
				t.Fatal("Run should not be called when skipped")
				return core.SkillReport{}, nil
			},
		},
	}

	var skippedReason string
	results := Run(context.Background(), tasks, DefaultOptions(), Callbacks{
		OnSkillSkipped: func(name, reason string) { skippedReason = reason },
	})
	require.Len(t, results, 1)
	assert.True(t, results[0].Skipped)
	assert.Equal(t, "trigger not matched", skippedReason)
}

func TestRun_PreservesOrderAndRespectsConcurrencyLimit(t *testing.T) {
	var running int32
	var maxRunning int32
	var mu sync.Mutex

	makeTask := func(name string) Task {
		return Task{
			Name:         name,
			ResolveSkill: resolveOK(core.SkillDefinition{Name: name}),
			Run: func(ctx context.Context, skill core.SkillDefinition) (core.SkillReport, error) {
				cur := atomic.AddInt32(&running, 1)
				mu.Lock()
				if cur > maxRunning {
					maxRunning = cur
				}
				mu.Unlock()
				time.Sleep(10 * time.Millisecond)
				atomic.AddInt32(&running, -1)
				return core.SkillReport{Skill: name}, nil
			},
		}
	}

	tasks := []Task{makeTask("1"), makeTask("2"), makeTask("3"), makeTask("4")}
	results := Run(context.Background(), tasks, Options{SkillConcurrency: 2}, Callbacks{})

	require.Len(t, results, 4)
	for i, r := range results {
		assert.Equal(t, tasks[i].Name, r.Name)
	}
	assert.LessOrEqual(t, maxRunning, int32(2))
}

func TestRun_BatchDelayPacesBatches(t *testing.T) {
	var starts []time.Time
	var mu sync.Mutex

	makeTask := func(name string) Task {
		return Task{
			Name:         name,
			ResolveSkill: resolveOK(core.SkillDefinition{Name: name}),
			Run: func(ctx context.Context, skill core.SkillDefinition) (core.SkillReport, error) {
				mu.Lock()
				starts = append(starts, time.Now())
				mu.Unlock()
				return core.SkillReport{Skill: name}, nil
			},
		}
	}

	tasks := []Task{makeTask("1"), makeTask("2")}
	opts := Options{SkillConcurrency: 1, BatchDelayMs: 30}

	results := Run(context.Background(), tasks, opts, Callbacks{})
	require.Len(t, results, 2)
	require.Len(t, starts, 2)
	assert.GreaterOrEqual(t, starts[1].Sub(starts[0]), 20*time.Millisecond)
}

func TestRun_CancelledContextAbortsRemainingBatches(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	tasks := []Task{
		{
			Name:         "first",
			ResolveSkill: resolveOK(core.SkillDefinition{Name: "first"}),
			Run: func(ctx context.Context, skill core.SkillDefinition) (core.SkillReport, error) {
				cancel()
				return core.SkillReport{Skill: "first"}, nil
			},
		},
		{
			Name: "second",
			ResolveSkill: func(context.Context) (core.SkillDefinition, error) {
				t.Fatal("ResolveSkill should not run once ctx is cancelled")
				return core.SkillDefinition{}, nil
			},
			Run: func(ctx context.Context, skill core.SkillDefinition) (core.SkillReport, error) {
				return core.SkillReport{}, nil
			},
		},
	}

	results := Run(ctx, tasks, Options{SkillConcurrency: 1, BatchDelayMs: 10}, Callbacks{})
	require.Len(t, results, 2)
	assert.NoError(t, results[0].Error)
	require.Error(t, results[1].Error)
	assert.ErrorIs(t, results[1].Error, core.ErrAborted)
}

func TestRun_CallbacksInvoked(t *testing.T) {
	var startCalled, completeCalled bool
	tasks := []Task{
		{
			Name:         "a",
			ResolveSkill: resolveOK(core.SkillDefinition{Name: "a"}),
			Run: func(ctx context.Context, skill core.SkillDefinition) (core.SkillReport, error) {
				return core.SkillReport{Skill: "a"}, nil
			},
		},
	}

	Run(context.Background(), tasks, DefaultOptions(), Callbacks{
		OnSkillStart:    func(name string) { startCalled = true },
		OnSkillComplete: func(name string, report core.SkillReport) { completeCalled = true },
	})

	assert.True(t, startCalled)
	assert.True(t, completeCalled)
}
