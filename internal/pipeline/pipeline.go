// Package pipeline wires every stage of a single-event skill run end to
// end: resolve the event's skills, run each under the scheduler, dedup
// and render their findings against GitHub's existing comment state, post
// the result, and append a JSONL record of what happened. It mirrors the
// teacher's ReviewJob in shape (setup, work, status update, persistence)
// but generalizes from one fixed review flow to an arbitrary set of
// skills resolved at run time.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/tidwall/sjson"

	"github.com/wardenhq/warden/internal/analyse"
	"github.com/wardenhq/warden/internal/config"
	"github.com/wardenhq/warden/internal/core"
	"github.com/wardenhq/warden/internal/dedup"
	"github.com/wardenhq/warden/internal/github"
	"github.com/wardenhq/warden/internal/llmclient"
	"github.com/wardenhq/warden/internal/remotecache"
	"github.com/wardenhq/warden/internal/render"
	"github.com/wardenhq/warden/internal/schedule"
	"github.com/wardenhq/warden/internal/skillload"
	"github.com/wardenhq/warden/internal/skillrun"
)

// Deps bundles every injected collaborator one Run call needs.
type Deps struct {
	Config      *config.Config
	Caller      llmclient.Caller
	GitHub      github.Client
	Status      github.StatusUpdater
	RemoteCache *remotecache.Cache
	Logger      *slog.Logger
}

// Result is the terminal outcome of one pipeline run.
type Result struct {
	Skills        []schedule.TaskResult
	TotalFindings int
	Verdict       string
}

// Run executes the pipeline for one event: resolves the repo's skills
// (local plus any remote refs named in warden.yml), runs each through the
// scheduler, deduplicates and posts their findings, passes each stale
// comment that carries a ThreadID to GitHub.ResolveThread, and appends
// run-log records under the remote cache's state directory.
func Run(ctx context.Context, event core.EventContext, deps Deps) (Result, error) {
	start := time.Now()
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	cfg := deps.Config

	repoCfg, err := config.LoadRepoConfig(event.RepoPath)
	if err != nil && !errors.Is(err, config.ErrConfigNotFound) {
		return Result{}, fmt.Errorf("pipeline: load repo config: %w", err)
	}

	skillDirs, err := resolveSkillDirs(ctx, event.RepoPath, repoCfg, deps)
	if err != nil {
		return Result{}, fmt.Errorf("pipeline: resolve skills: %w", err)
	}
	if len(skillDirs) == 0 {
		logger.WarnContext(ctx, "no skills resolved for event", "repo", event.Repository)
	}

	owner, repo, err := github.SplitRepository(event.Repository)
	if err != nil {
		return Result{}, fmt.Errorf("pipeline: %w", err)
	}

	var existing []core.ExistingComment
	prNumber := 0
	var sha string
	if event.PullRequest != nil {
		prNumber = event.PullRequest.Number
		sha = event.PullRequest.HeadSHA
		if deps.GitHub != nil {
			existing, err = deps.GitHub.GetExistingComments(ctx, owner, repo, prNumber)
			if err != nil {
				return Result{}, fmt.Errorf("pipeline: fetch existing comments: %w", err)
			}
		}
	}
	mirror := dedup.NewMirror(existing)

	llmc := llmclient.New(deps.Caller, llmclient.DefaultOptions(""))
	runnerOpts := runOptionsFromConfig(cfg, repoCfg)
	runner := skillrun.New(analyse.New(llmc, runnerOpts.AnalyseOptions), runnerOpts)

	tasks := make([]schedule.Task, 0, len(skillDirs))
	for _, dir := range skillDirs {
		dir := dir
		tasks = append(tasks, schedule.Task{
			Name: filepath.Base(dir),
			ResolveSkill: func(ctx context.Context) (core.SkillDefinition, error) {
				return skillload.Load(dir)
			},
			Run: func(ctx context.Context, skill core.SkillDefinition) (core.SkillReport, error) {
				return runner.Run(ctx, event, skill, skillrun.Callbacks{})
			},
		})
	}

	scheduleOpts := schedule.Options{
		SkillConcurrency: cfg.Concurrency.SkillConcurrency,
		BatchDelayMs:     cfg.Concurrency.SkillBatchDelayMs,
	}
	results := schedule.Run(ctx, tasks, scheduleOpts, schedule.Callbacks{
		OnSkillStart: func(name string) { logger.InfoContext(ctx, "skill started", "skill", name) },
		OnSkillComplete: func(name string, report core.SkillReport) {
			logger.InfoContext(ctx, "skill completed", "skill", name, "findings", len(report.Findings))
		},
		OnSkillError: func(name string, err error) { logger.ErrorContext(ctx, "skill failed", "skill", name, "error", err) },
	})

	totalFindings := 0
	overallVerdict := "COMMENT"
	processedFiles := processedFileSet(event)

	for _, res := range results {
		appendRunLog(cfg.RemoteCache.StateDir, event, runLogRecordFor(res))

		if res.Error != nil || res.Skipped || res.Report == nil {
			continue
		}
		report := *res.Report
		totalFindings += len(report.Findings)

		dres := dedup.Deduplicate(ctx, mirror, report.Findings, dedup.Options{
			HashOnly:     cfg.Review.HashOnlyDedup,
			CurrentSkill: report.Skill,
		})

		for _, action := range dres.DuplicateActions {
			if deps.GitHub == nil {
				continue
			}
			switch action.Type {
			case core.ActionUpdateWarden:
				newBody := render.UpdateWardenCommentBody(action.ExistingComment.Body, report.Skill)
				if err := deps.GitHub.UpdateComment(ctx, owner, repo, action.ExistingComment.ID, newBody); err != nil {
					logger.ErrorContext(ctx, "update existing comment failed", "comment", action.ExistingComment.ID, "error", err)
				}
			case core.ActionReactExternal:
				if err := deps.GitHub.ReactToComment(ctx, owner, repo, action.ExistingComment.ID, "+1"); err != nil {
					logger.ErrorContext(ctx, "react to existing comment failed", "comment", action.ExistingComment.ID, "error", err)
				}
			}
		}

		deduped := report
		deduped.Findings = dres.NewFindings
		out := render.Render(deduped, render.Options{
			IncludeSuggestions: cfg.Review.IncludeSuggestions,
			MaxFindings:        cfg.Review.MaxFindings,
			GroupByFile:        cfg.Review.GroupByFile,
			CommentOn:          cfg.Review.CommentOn,
			TotalFindings:      len(report.Findings),
			DurationMs:         report.DurationMs,
			Usage:              report.Usage,
		})

		for _, f := range dres.NewFindings {
			mirror.Add(f, dedup.ContentHash(f.Title, f.Description))
		}

		if out.Review != nil {
			overallVerdict = out.Review.Verdict
		}

		if deps.Status != nil && event.PullRequest != nil {
			if err := deps.Status.PostReview(ctx, owner, repo, prNumber, sha, out); err != nil {
				logger.ErrorContext(ctx, "post review failed", "skill", report.Skill, "error", err)
			}
		}
	}

	stale := dedup.FindStale(existing, collectAllFindings(results), processedFiles)
	for _, c := range stale {
		if c.ThreadID == "" || deps.GitHub == nil {
			continue
		}
		if err := deps.GitHub.ResolveThread(ctx, owner, repo, c.ThreadID); err != nil {
			logger.ErrorContext(ctx, "resolve stale thread failed", "thread", c.ThreadID, "error", err)
		}
	}

	appendRunLog(cfg.RemoteCache.StateDir, event, core.RunSummaryRecord{
		EventType:     event.EventType,
		Repository:    event.Repository,
		PRNumber:      prNumber,
		Skills:        skillNames(results),
		TotalFindings: totalFindings,
		DurationMs:    time.Since(start).Milliseconds(),
		Verdict:       overallVerdict,
		Timestamp:     stamp(),
	})

	return Result{Skills: results, TotalFindings: totalFindings, Verdict: overallVerdict}, nil
}

func runLogRecordFor(res schedule.TaskResult) core.RunLogRecord {
	rec := core.RunLogRecord{Skill: res.Name, Skipped: res.Skipped, Timestamp: stamp()}
	if res.Error != nil {
		rec.Error = res.Error.Error()
	}
	rec.Report = res.Report
	return rec
}

func resolveSkillDirs(ctx context.Context, repoPath string, repoCfg *core.RepoConfig, deps Deps) ([]string, error) {
	dirs, err := remotecache.DiscoverSkills(repoPath)
	if err != nil {
		return nil, err
	}

	if repoCfg == nil {
		return dirs, nil
	}

	for _, raw := range repoCfg.Skills {
		ref, err := remotecache.ParseRemoteRef(raw)
		if err != nil {
			return nil, fmt.Errorf("skill ref %q: %w", raw, err)
		}
		if deps.RemoteCache == nil {
			return nil, fmt.Errorf("skill ref %q: remote cache not configured", raw)
		}
		local, err := deps.RemoteCache.FetchRemote(ctx, ref, remotecache.Options{})
		if err != nil {
			return nil, fmt.Errorf("fetch skill ref %q: %w", raw, err)
		}
		remoteDirs, err := remotecache.DiscoverSkills(local)
		if err != nil {
			return nil, fmt.Errorf("discover skills in %q: %w", raw, err)
		}
		dirs = append(dirs, remoteDirs...)
	}

	return dirs, nil
}

func processedFileSet(event core.EventContext) map[string]struct{} {
	set := make(map[string]struct{})
	if event.PullRequest == nil {
		return set
	}
	for _, f := range event.PullRequest.Files {
		set[f.Filename] = struct{}{}
	}
	return set
}

func collectAllFindings(results []schedule.TaskResult) []core.Finding {
	var all []core.Finding
	for _, r := range results {
		if r.Report != nil {
			all = append(all, r.Report.Findings...)
		}
	}
	return all
}

func skillNames(results []schedule.TaskResult) []string {
	names := make([]string, 0, len(results))
	for _, r := range results {
		names = append(names, r.Name)
	}
	return names
}

func runOptionsFromConfig(cfg *config.Config, repoCfg *core.RepoConfig) skillrun.Options {
	opts := skillrun.DefaultOptions()
	opts.Concurrency = cfg.Concurrency.FileConcurrency
	opts.BatchDelayMs = cfg.Concurrency.BatchDelayMs
	opts.PrepareOptions.ContextLines = cfg.Context.ContextLines
	opts.PrepareOptions.CoalesceEnabled = cfg.Hunks.Enabled
	opts.PrepareOptions.MaxGapLines = cfg.Hunks.MaxGapLines
	opts.PrepareOptions.MaxChunkSize = cfg.Hunks.MaxChunkSize
	opts.AnalyseOptions.Concurrency = cfg.Concurrency.HunkConcurrency
	if repoCfg != nil {
		opts.ExcludePatterns = repoCfg.ExcludePatterns
		opts.WholeFilePatterns = repoCfg.WholeFilePatterns
	}
	return opts
}

// stamp returns the current time formatted for a run-log record. It is
// the one place pipeline touches wall-clock time, isolated so a fixed
// clock could be substituted in a test.
func stamp() string {
	return time.Now().UTC().Format(time.RFC3339)
}

func appendRunLog(stateDir string, event core.EventContext, record any) {
	if stateDir == "" {
		return
	}
	runsDir := filepath.Join(stateDir, "runs")
	if err := os.MkdirAll(runsDir, 0o755); err != nil {
		return
	}

	base := filepath.Base(event.RepoPath)
	if base == "" || base == "." {
		base = "run"
	}
	name := fmt.Sprintf("%s_%s.jsonl", base, sanitizeForFilename(stamp()))
	path := filepath.Join(runsDir, name)

	line, err := marshalRunLogLine(record)
	if err != nil {
		return
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return
	}
	defer f.Close()
	_, _ = f.WriteString(line + "\n")
}

// marshalRunLogLine builds the JSONL line for record using sjson's
// set-by-path builder, matching the append-only, schema-light style the
// run log favors over a full struct marshal.
func marshalRunLogLine(record any) (string, error) {
	doc := "{}"
	var err error
	switch r := record.(type) {
	case core.RunLogRecord:
		if doc, err = sjson.Set(doc, "skill", r.Skill); err != nil {
			return "", err
		}
		if doc, err = sjson.Set(doc, "timestamp", r.Timestamp); err != nil {
			return "", err
		}
		if r.Report != nil {
			if doc, err = sjson.Set(doc, "findings", len(r.Report.Findings)); err != nil {
				return "", err
			}
			if doc, err = sjson.Set(doc, "durationMs", r.Report.DurationMs); err != nil {
				return "", err
			}
		}
		if r.Error != "" {
			if doc, err = sjson.Set(doc, "error", r.Error); err != nil {
				return "", err
			}
		}
		doc, err = sjson.Set(doc, "skipped", r.Skipped)
	case core.RunSummaryRecord:
		if doc, err = sjson.Set(doc, "eventType", string(r.EventType)); err != nil {
			return "", err
		}
		if doc, err = sjson.Set(doc, "repository", r.Repository); err != nil {
			return "", err
		}
		if doc, err = sjson.Set(doc, "prNumber", r.PRNumber); err != nil {
			return "", err
		}
		if doc, err = sjson.Set(doc, "skills", r.Skills); err != nil {
			return "", err
		}
		if doc, err = sjson.Set(doc, "totalFindings", r.TotalFindings); err != nil {
			return "", err
		}
		if doc, err = sjson.Set(doc, "durationMs", r.DurationMs); err != nil {
			return "", err
		}
		if doc, err = sjson.Set(doc, "verdict", r.Verdict); err != nil {
			return "", err
		}
		doc, err = sjson.Set(doc, "timestamp", r.Timestamp)
	default:
		return "", fmt.Errorf("unsupported run log record type %T", record)
	}
	return doc, err
}

func sanitizeForFilename(s string) string {
	out := make([]rune, 0, len(s))
	for _, r := range s {
		if r == ':' {
			out = append(out, '-')
			continue
		}
		out = append(out, r)
	}
	return string(out)
}
