// Package skillrun runs one skill over one event end to end: prepare the
// event's files, analyse each with bounded concurrency, and aggregate the
// per-file results into a SkillReport.
package skillrun

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/wardenhq/warden/internal/analyse"
	"github.com/wardenhq/warden/internal/core"
	"github.com/wardenhq/warden/internal/prepare"
)

// Options controls the file-level fan-out within one skill's run.
type Options struct {
	Parallel          bool
	Concurrency       int
	BatchDelayMs      int
	PrepareOptions    prepare.Options
	AnalyseOptions    analyse.Options
	ExcludePatterns   []string
	WholeFilePatterns []string
}

// DefaultOptions enables parallel file processing, five files in flight
// at once, with no inter-batch delay.
func DefaultOptions() Options {
	return Options{
		Parallel:       true,
		Concurrency:    5,
		PrepareOptions: prepare.Options{ContextLines: 10},
		AnalyseOptions: analyse.DefaultOptions(),
	}
}

// Callbacks surface progress from inside a single skill run. Any may be
// nil.
type Callbacks struct {
	OnHunkStart   func(filename string, hunk core.DiffHunk)
	OnLargePrompt func(filename string, estimatedTokens int)
	OnRetry       func(filename string, attempt int, delayMs int, errText string)
	OnFileUpdate  func(filename string, result analyse.FileResult)
}

// Runner runs one skill over one event.
type Runner struct {
	analyser *analyse.Analyser
	opts     Options
}

// New builds a Runner backed by analyser.
func New(analyser *analyse.Analyser, opts Options) *Runner {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 5
	}
	return &Runner{analyser: analyser, opts: opts}
}

// Run produces a SkillReport for skill over event.
func (r *Runner) Run(ctx context.Context, event core.EventContext, skill core.SkillDefinition, cb Callbacks) (core.SkillReport, error) {
	start := time.Now()

	var filenames []string
	var files []core.FileChange
	if event.PullRequest != nil {
		files = event.PullRequest.Files
		for _, f := range files {
			filenames = append(filenames, f.Filename)
		}
	}

	preparer := prepare.New(event.RepoPath, r.opts.ExcludePatterns, r.opts.WholeFilePatterns, r.opts.PrepareOptions)
	prepared, err := preparer.Prepare(files)
	if err != nil {
		return core.SkillReport{}, fmt.Errorf("skillrun: %s: %w", skill.Name, err)
	}

	results, err := r.processFiles(ctx, prepared.Files, skill, event.PullRequest, filenames, cb)
	if err != nil {
		return core.SkillReport{}, err
	}

	var findings []core.Finding
	var usage core.UsageStats
	failedHunks := 0
	for _, res := range results {
		findings = append(findings, res.Findings...)
		usage = usage.Add(res.Usage)
		failedHunks += res.FailedHunks
	}

	sort.SliceStable(findings, func(i, j int) bool {
		pi, pj := findingPath(findings[i]), findingPath(findings[j])
		if pi != pj {
			return pi < pj
		}
		return findingStartLine(findings[i]) < findingStartLine(findings[j])
	})

	return core.SkillReport{
		Skill:        skill.Name,
		Summary:      summarize(skill.Name, findings),
		Findings:     findings,
		DurationMs:   time.Since(start).Milliseconds(),
		Usage:        usage,
		SkippedFiles: prepared.SkippedFiles,
		FailedHunks:  failedHunks,
	}, nil
}

// processFiles walks prepared files in batches of r.opts.Concurrency,
// awaiting each batch before sleeping batchDelayMs and continuing to the
// next. Any error returned by a file's analysis (cancellation or an LLM
// authentication failure; per-hunk failures are only counted) aborts the
// skill's run, and the scheduler records it on that skill's result.
func (r *Runner) processFiles(ctx context.Context, files []core.PreparedFile, skill core.SkillDefinition, pr *core.PullRequestContext, filenames []string, cb Callbacks) ([]analyse.FileResult, error) {
	concurrency := r.opts.Concurrency
	if !r.opts.Parallel {
		concurrency = 1
	}

	var results []analyse.FileResult

	for batchStart := 0; batchStart < len(files); batchStart += concurrency {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("%w: %w", core.ErrAborted, err)
		}

		end := batchStart + concurrency
		if end > len(files) {
			end = len(files)
		}
		batch := files[batchStart:end]

		batchResults := make([]analyse.FileResult, len(batch))
		errCh := make(chan error, len(batch))
		for i, f := range batch {
			i, f := i, f
			go func() {
				res, err := r.analyser.Analyse(ctx, f, skill, pr, filenames, analyse.Callbacks{
					OnHunkStart:   cb.OnHunkStart,
					OnLargePrompt: cb.OnLargePrompt,
					OnRetry:       cb.OnRetry,
				})
				if err != nil {
					errCh <- err
					return
				}
				batchResults[i] = res
				if cb.OnFileUpdate != nil {
					cb.OnFileUpdate(f.Filename, res)
				}
				errCh <- nil
			}()
		}
		for range batch {
			if err := <-errCh; err != nil {
				return nil, err
			}
		}

		results = append(results, batchResults...)

		if r.opts.BatchDelayMs > 0 && end < len(files) {
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("%w: %w", core.ErrAborted, ctx.Err())
			case <-time.After(time.Duration(r.opts.BatchDelayMs) * time.Millisecond):
			}
		}
	}

	return results, nil
}

func summarize(skill string, findings []core.Finding) string {
	counts := map[core.Severity]int{}
	filesTouched := map[string]struct{}{}
	for _, f := range findings {
		counts[f.Severity]++
		if f.Location != nil {
			filesTouched[f.Location.Path] = struct{}{}
		}
	}

	return fmt.Sprintf("%s: found %d finding(s) across %d file(s) (%d critical, %d high, %d medium, %d low, %d info)",
		skill, len(findings), len(filesTouched),
		counts[core.SeverityCritical], counts[core.SeverityHigh], counts[core.SeverityMedium],
		counts[core.SeverityLow], counts[core.SeverityInfo])
}

func findingPath(f core.Finding) string {
	if f.Location == nil {
		return ""
	}
	return f.Location.Path
}

func findingStartLine(f core.Finding) int {
	if f.Location == nil {
		return 0
	}
	return f.Location.StartLine
}
