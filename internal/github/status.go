package github

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/go-github/v73/github"

	"github.com/wardenhq/warden/internal/render"
)

// StatusUpdater posts a skill run's rendered output to GitHub: a check
// run tracking progress, and the review/summary comment pair render.Render
// produced.
type StatusUpdater interface {
	InProgress(ctx context.Context, owner, repo, sha, title, summary string) (int64, error)
	Completed(ctx context.Context, owner, repo string, checkRunID int64, conclusion, title, summary string) error
	PostReview(ctx context.Context, owner, repo string, number int, sha string, out render.Output) error
	PostSimpleComment(ctx context.Context, owner, repo string, number int, body string) error
}

type statusUpdater struct {
	client Client
	logger *slog.Logger
}

// NewStatusUpdater builds a StatusUpdater over client.
func NewStatusUpdater(client Client, logger *slog.Logger) StatusUpdater {
	return &statusUpdater{client: client, logger: logger}
}

// PostSimpleComment posts a single, general comment on the pull request.
func (s *statusUpdater) PostSimpleComment(ctx context.Context, owner, repo string, number int, body string) error {
	return s.client.CreateComment(ctx, owner, repo, number, body)
}

// InProgress opens a new check run in the "in_progress" state.
func (s *statusUpdater) InProgress(ctx context.Context, owner, repo, sha, title, summary string) (int64, error) {
	opts := github.CreateCheckRunOptions{
		Name:    "Warden Review",
		HeadSHA: sha,
		Status:  github.Ptr("in_progress"),
		Output: &github.CheckRunOutput{
			Title:   &title,
			Summary: &summary,
		},
	}
	checkRun, err := s.client.CreateCheckRun(ctx, owner, repo, opts)
	if err != nil {
		return 0, err
	}
	return checkRun.GetID(), nil
}

// Completed transitions a check run to "completed".
func (s *statusUpdater) Completed(ctx context.Context, owner, repo string, checkRunID int64, conclusion, title, summary string) error {
	now := time.Now()
	opts := github.UpdateCheckRunOptions{
		Status:      github.Ptr("completed"),
		Conclusion:  &conclusion,
		CompletedAt: &github.Timestamp{Time: now},
		Output: &github.CheckRunOutput{
			Title:   &title,
			Summary: &summary,
		},
	}
	return s.client.UpdateCheckRun(ctx, owner, repo, checkRunID, opts)
}

// PostReview posts out's inline review (if any) and summary comment.
func (s *statusUpdater) PostReview(ctx context.Context, owner, repo string, number int, sha string, out render.Output) error {
	if out.Review != nil && len(out.Review.Comments) > 0 {
		var comments []DraftReviewComment
		for _, c := range out.Review.Comments {
			comments = append(comments, DraftReviewComment{
				Path:      c.Path,
				Line:      c.Line,
				StartLine: c.StartLine,
				StartSide: c.StartSide,
				Body:      c.Body,
			})
		}
		if err := s.client.CreateReview(ctx, owner, repo, number, sha, "", comments); err != nil {
			return err
		}
	}
	return s.client.CreateComment(ctx, owner, repo, number, out.SummaryComment)
}
