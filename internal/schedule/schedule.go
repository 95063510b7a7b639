// Package schedule runs several skills over the same event, bounding how
// many run at once and collecting a terminal outcome for every one of
// them regardless of whether individual skills fail.
package schedule

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/wardenhq/warden/internal/core"
)

// Task describes one skill to run. ResolveSkill is called lazily (not
// eagerly at scheduling time) so a remote skill's fetch only happens once
// its task slot is actually claimed.
type Task struct {
	Name         string
	DisplayName  string
	FailOn       core.SeverityThreshold
	// ShouldSkip, when non-nil, lets the task opt out before any skill
	// resolution happens (e.g. a trigger condition the event doesn't
	// satisfy).
	ShouldSkip   func(ctx context.Context) (skip bool, reason string)
	ResolveSkill func(ctx context.Context) (core.SkillDefinition, error)
	Run          func(ctx context.Context, skill core.SkillDefinition) (core.SkillReport, error)
}

// TaskResult is one task's terminal outcome.
type TaskResult struct {
	Name    string
	Report  *core.SkillReport
	FailOn  core.SeverityThreshold
	Skipped bool
	Error   error
}

// Callbacks are invoked as the scheduler progresses. Any may be nil.
type Callbacks struct {
	OnSkillStart    func(name string)
	OnSkillComplete func(name string, report core.SkillReport)
	OnSkillSkipped  func(name string, reason string)
	OnSkillError    func(name string, err error)
}

// Options bounds scheduler concurrency.
type Options struct {
	SkillConcurrency int
	// BatchDelayMs, when positive, paces launches: a batch of
	// SkillConcurrency tasks runs to completion, then the scheduler waits
	// BatchDelayMs before starting the next batch.
	BatchDelayMs int
}

// DefaultOptions runs one skill at a time, no inter-batch delay.
func DefaultOptions() Options {
	return Options{SkillConcurrency: 1}
}

// Run executes every task in batches of at most opts.SkillConcurrency,
// returning one TaskResult per task in input order. A runner error for
// one skill never cancels the others; it is only recorded in that
// skill's own result. Run returns early, with an aborted result for every
// unstarted task, if ctx is cancelled.
func Run(ctx context.Context, tasks []Task, opts Options, cb Callbacks) []TaskResult {
	if opts.SkillConcurrency <= 0 {
		opts.SkillConcurrency = 1
	}

	results := make([]TaskResult, len(tasks))

	var limiter *rate.Limiter
	if opts.BatchDelayMs > 0 {
		limiter = rate.NewLimiter(rate.Every(time.Duration(opts.BatchDelayMs)*time.Millisecond), 1)
		limiter.Allow() // consume the initial burst token so the first batch starts immediately
	}

	for batchStart := 0; batchStart < len(tasks); batchStart += opts.SkillConcurrency {
		if err := ctx.Err(); err != nil {
			failRemaining(results, tasks, batchStart, err)
			return results
		}

		if limiter != nil && batchStart > 0 {
			if err := limiter.Wait(ctx); err != nil {
				failRemaining(results, tasks, batchStart, err)
				return results
			}
		}

		end := batchStart + opts.SkillConcurrency
		if end > len(tasks) {
			end = len(tasks)
		}

		done := make(chan struct{}, end-batchStart)
		for i := batchStart; i < end; i++ {
			i, task := i, tasks[i]
			go func() {
				defer func() { done <- struct{}{} }()
				results[i] = runOne(ctx, task, cb)
			}()
		}
		for range tasks[batchStart:end] {
			<-done
		}
	}

	return results
}

// failRemaining records an aborted result for every task from index start
// onward, for use when ctx is cancelled between batches.
func failRemaining(results []TaskResult, tasks []Task, start int, err error) {
	for i := start; i < len(tasks); i++ {
		results[i] = TaskResult{Name: tasks[i].Name, FailOn: tasks[i].FailOn, Error: fmt.Errorf("%w: %w", core.ErrAborted, err)}
	}
}

func runOne(ctx context.Context, task Task, cb Callbacks) TaskResult {
	if cb.OnSkillStart != nil {
		cb.OnSkillStart(task.Name)
	}

	if task.ShouldSkip != nil {
		if skip, reason := task.ShouldSkip(ctx); skip {
			if cb.OnSkillSkipped != nil {
				cb.OnSkillSkipped(task.Name, reason)
			}
			return TaskResult{Name: task.Name, FailOn: task.FailOn, Skipped: true}
		}
	}

	skill, err := task.ResolveSkill(ctx)
	if err != nil {
		if cb.OnSkillError != nil {
			cb.OnSkillError(task.Name, err)
		}
		return TaskResult{Name: task.Name, FailOn: task.FailOn, Error: err}
	}

	report, err := task.Run(ctx, skill)
	if err != nil {
		if cb.OnSkillError != nil {
			cb.OnSkillError(task.Name, err)
		}
		return TaskResult{Name: task.Name, FailOn: task.FailOn, Error: err}
	}

	if cb.OnSkillComplete != nil {
		cb.OnSkillComplete(task.Name, report)
	}
	return TaskResult{Name: task.Name, Report: &report, FailOn: task.FailOn}
}
