// Package analyse runs one prepared file's hunks through prompt
// construction, the LLM client, and findings extraction, producing a
// single FileResult.
package analyse

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/wardenhq/warden/internal/core"
	"github.com/wardenhq/warden/internal/extract"
	"github.com/wardenhq/warden/internal/llmclient"
	"github.com/wardenhq/warden/internal/promptbuild"
)

// Options controls the analyser's concurrency and repair behaviour. Its
// Concurrency bounds hunks within one file, as the skill runner's
// Concurrency bounds files within one skill.
type Options struct {
	// Concurrency bounds how many hunks of one file are analysed at once.
	// Defaults to 5.
	Concurrency int
	EnableRepair bool
}

// DefaultOptions returns the standard per-file hunk concurrency.
func DefaultOptions() Options {
	return Options{Concurrency: 5, EnableRepair: true}
}

// Callbacks are invoked as file analysis progresses. Any may be nil.
type Callbacks struct {
	OnHunkStart   func(filename string, hunk core.DiffHunk)
	OnLargePrompt func(filename string, estimatedTokens int)
	OnRetry       func(filename string, attempt int, delayMs int, errText string)
}

// FileResult is one file's fully analysed, intra-file-deduplicated
// output.
type FileResult struct {
	Filename    string
	Findings    []core.Finding
	Usage       core.UsageStats
	FailedHunks int
}

// Analyser runs hunks through the LLM client and extractor.
type Analyser struct {
	client *llmclient.Client
	opts   Options
}

// New builds an Analyser that calls client for every hunk.
func New(client *llmclient.Client, opts Options) *Analyser {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 5
	}
	return &Analyser{client: client, opts: opts}
}

// Analyse runs every hunk of file against skill, pr metadata, and the
// full changed-filename list, returning the aggregated, deduplicated
// result for this file.
func (a *Analyser) Analyse(ctx context.Context, file core.PreparedFile, skill core.SkillDefinition, pr *core.PullRequestContext, filenames []string, cb Callbacks) (FileResult, error) {
	type hunkOutcome struct {
		findings []core.Finding
		usage    core.UsageStats
		failed   bool
	}

	outcomes := make([]hunkOutcome, len(file.Hunks))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.opts.Concurrency)

	for i, unit := range file.Hunks {
		i, unit := i, unit
		g.Go(func() error {
			if cb.OnHunkStart != nil {
				cb.OnHunkStart(file.Filename, unit.Hunk)
			}

			prompt := promptbuild.Build(skill, pr, filenames, unit)
			if prompt.IsLarge && cb.OnLargePrompt != nil {
				cb.OnLargePrompt(file.Filename, prompt.EstimatedTokens)
			}

			var onRetry llmclient.OnRetry
			if cb.OnRetry != nil {
				onRetry = func(attempt, delayMs int, errText string) {
					cb.OnRetry(file.Filename, attempt, delayMs, errText)
				}
			}

			resp, err := a.client.Call(gctx, prompt.System, prompt.User, onRetry)
			if err != nil {
				if _, ok := asAuthError(err); ok {
					return err // fatal for the whole run
				}
				if errors.Is(err, core.ErrAborted) {
					return err // cancellation must not yield a partial report
				}
				outcomes[i] = hunkOutcome{failed: true}
				return nil
			}

			result := extract.Extract(resp.Text)
			if !result.Success && a.opts.EnableRepair {
				result = extract.Repair(gctx, a.generator(skill), resp.Text)
			}
			if !result.Success {
				outcomes[i] = hunkOutcome{usage: resp.Usage, failed: true}
				return nil
			}

			findings := clampLocations(result.Findings, unit)
			outcomes[i] = hunkOutcome{findings: findings, usage: resp.Usage}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return FileResult{}, fmt.Errorf("analyse: %s: %w", file.Filename, err)
	}

	var all []core.Finding
	var usage core.UsageStats
	failed := 0
	for _, o := range outcomes {
		all = append(all, o.findings...)
		usage = usage.Add(o.usage)
		if o.failed {
			failed++
		}
	}

	return FileResult{
		Filename:    file.Filename,
		Findings:    dedupeWithinFile(all),
		Usage:       usage,
		FailedHunks: failed,
	}, nil
}

// generator adapts the analyser's client into the repair fallback's
// narrower Generator signature, using the same skill's model.
func (a *Analyser) generator(_ core.SkillDefinition) extract.Generator {
	return func(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
		resp, err := a.client.Call(ctx, systemPrompt, userPrompt, nil)
		if err != nil {
			return "", err
		}
		return resp.Text, nil
	}
}

func asAuthError(err error) (*core.LLMAuthError, bool) {
	authErr, ok := err.(*core.LLMAuthError)
	return authErr, ok
}

// clampLocations drops a finding's location when it falls outside the
// hunk's new-line range (plus its expanded context), rather than trusting
// a model-reported line number that may not exist.
func clampLocations(findings []core.Finding, unit core.HunkWithContext) []core.Finding {
	lo := unit.ContextStartLine
	if lo == 0 {
		lo = unit.Hunk.NewStart
	}
	hi := unit.Hunk.NewEnd() + len(unit.ContextAfter)

	out := make([]core.Finding, len(findings))
	for i, f := range findings {
		out[i] = f
		if f.Location == nil {
			continue
		}
		if f.Location.StartLine < lo || f.Location.StartLine > hi {
			out[i].Location = nil
		}
	}
	return out
}

// dedupeWithinFile collapses findings sharing (id, location.path,
// location.startLine) to one, keeping the first occurrence, then sorts by
// (path, startLine) for stable downstream ordering.
func dedupeWithinFile(findings []core.Finding) []core.Finding {
	seen := make(map[string]struct{}, len(findings))
	var out []core.Finding

	for _, f := range findings {
		key := dedupeKey(f)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, f)
	}

	sort.SliceStable(out, func(i, j int) bool {
		pi, pj := locationPath(out[i]), locationPath(out[j])
		if pi != pj {
			return pi < pj
		}
		return locationStartLine(out[i]) < locationStartLine(out[j])
	})

	return out
}

func dedupeKey(f core.Finding) string {
	path := locationPath(f)
	line := locationStartLine(f)
	return fmt.Sprintf("%s:%s:%d", f.ID, path, line)
}

func locationPath(f core.Finding) string {
	if f.Location == nil {
		return ""
	}
	return f.Location.Path
}

func locationStartLine(f core.Finding) int {
	if f.Location == nil {
		return 0
	}
	return f.Location.StartLine
}
