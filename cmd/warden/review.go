package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/wardenhq/warden/internal/config"
	"github.com/wardenhq/warden/internal/core"
	"github.com/wardenhq/warden/internal/github"
	"github.com/wardenhq/warden/internal/gitutil"
	"github.com/wardenhq/warden/internal/llmprovider"
	"github.com/wardenhq/warden/internal/logger"
	"github.com/wardenhq/warden/internal/pipeline"
	"github.com/wardenhq/warden/internal/progress"
	"github.com/wardenhq/warden/internal/remotecache"
)

var (
	reviewInstallationID int64
	reviewVerbose        bool
)

var reviewCmd = &cobra.Command{
	Use:   "review [pr-url]",
	Short: "Run configured review skills against a GitHub pull request",
	Long: `Fetches a pull request, runs every locally and remotely configured skill
against its diff, and posts findings back as a review.

Example:
  warden review https://github.com/owner/repo/pull/123`,
	Args: cobra.ExactArgs(1),
	RunE: runReview,
}

func init() { //nolint:gochecknoinits // Cobra flag registration
	reviewCmd.Flags().Int64Var(&reviewInstallationID, "installation-id", 0,
		"GitHub App installation ID to authenticate as (falls back to WARDEN_GITHUB_TOKEN/GITHUB_TOKEN for a PAT)")
	reviewCmd.Flags().BoolVarP(&reviewVerbose, "verbose", "v", false, "enable colored progress output")
}

func runReview(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	prURL := args[0]

	owner, repoName, prNumber, err := gitutil.ParsePullRequestURL(prURL)
	if err != nil {
		return fmt.Errorf("invalid PR URL: %w (expected https://github.com/owner/repo/pull/123)", err)
	}
	repoFullName := fmt.Sprintf("%s/%s", owner, repoName)

	cfg, err := config.LoadConfig(".")
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	log := logger.NewLogger(cfg.Logging, nil)
	reporter := progress.New(os.Stdout, reviewVerbose)

	ghClient, gitToken, err := buildGitHubClient(ctx, cfg, log)
	if err != nil {
		return err
	}

	pr, cloneURL, err := ghClient.GetPullRequest(ctx, owner, repoName, prNumber)
	if err != nil {
		return fmt.Errorf("fetch pull request: %w", err)
	}
	files, err := ghClient.GetChangedFiles(ctx, owner, repoName, prNumber)
	if err != nil {
		return fmt.Errorf("fetch changed files: %w", err)
	}
	pr.Files = files

	cloner := gitutil.NewClient(log)
	repoPath, cleanup, err := cloner.CloneAndCheckoutTemp(ctx, cloneURL, pr.HeadSHA, gitToken)
	if err != nil {
		return fmt.Errorf("clone pull request repository: %w", err)
	}
	defer cleanup()

	stateDir := cfg.RemoteCache.StateDir
	if stateDir == "" {
		stateDir = filepath.Join(os.TempDir(), "warden-state")
	}
	fetcher := gitutil.NewSubprocessFetcher("https://github.com", log)
	cache := remotecache.New(stateDir, cfg.RemoteCache.TTL, fetcher, log)

	caller, err := llmprovider.New(ctx, cfg.AI)
	if err != nil {
		return fmt.Errorf("init model provider: %w", err)
	}

	event := core.EventContext{
		EventType:   core.EventPullRequest,
		Action:      "opened",
		Repository:  repoFullName,
		PullRequest: pr,
		RepoPath:    repoPath,
	}

	reporter.Header(repoFullName, event.EventType)
	start := time.Now()

	result, err := pipeline.Run(ctx, event, pipeline.Deps{
		Config:      cfg,
		Caller:      caller,
		GitHub:      ghClient,
		Status:      github.NewStatusUpdater(ghClient, log),
		RemoteCache: cache,
		Logger:      log,
	})
	if err != nil {
		return fmt.Errorf("pipeline run: %w", err)
	}

	for _, res := range result.Skills {
		switch {
		case res.Error != nil:
			reporter.SkillError(res.Name, res.Error)
		case res.Skipped:
			reporter.SkillSkipped(res.Name, "no changed files matched")
		case res.Report != nil:
			reporter.SkillCompleted(res.Name, *res.Report)
		}
	}
	reporter.Summary(result.TotalFindings, result.Verdict)
	log.InfoContext(ctx, "review complete", "repo", repoFullName, "pr", prNumber, "duration", time.Since(start))

	if failing := countFailingFindings(result, cfg.Review.FailOn); failing > 0 {
		return &thresholdError{count: failing}
	}
	return nil
}

func countFailingFindings(result pipeline.Result, failOn core.SeverityThreshold) int {
	count := 0
	for _, res := range result.Skills {
		if res.Report == nil {
			continue
		}
		for _, f := range res.Report.Findings {
			if failOn.Meets(f.Severity) {
				count++
			}
		}
	}
	return count
}

// buildGitHubClient authenticates as a GitHub App installation when
// --installation-id is set, otherwise falls back to a personal access
// token read from WARDEN_GITHUB_TOKEN or GITHUB_TOKEN, returning the raw
// token too so the git clone step can reuse it.
func buildGitHubClient(ctx context.Context, cfg *config.Config, log *slog.Logger) (github.Client, string, error) {
	if reviewInstallationID > 0 {
		client, token, err := github.NewInstallationClient(ctx, cfg.GitHub, reviewInstallationID, log)
		if err != nil {
			return nil, "", fmt.Errorf("authenticate as installation %d: %w", reviewInstallationID, err)
		}
		return client, token, nil
	}

	token := firstNonEmpty(os.Getenv("WARDEN_GITHUB_TOKEN"), os.Getenv("GITHUB_TOKEN"))
	if token == "" {
		return nil, "", fmt.Errorf("no credentials: set --installation-id or WARDEN_GITHUB_TOKEN/GITHUB_TOKEN")
	}
	return github.NewPATClient(ctx, token, log), token, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
