package github

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/go-github/v73/github"
	"golang.org/x/oauth2"

	"github.com/wardenhq/warden/internal/core"
	"github.com/wardenhq/warden/internal/render"
)

// DraftReviewComment is one line-anchored comment to be posted as part of
// a pull request review.
type DraftReviewComment struct {
	Path      string
	Line      int
	StartLine int
	StartSide string
	Body      string
}

// Client defines the GitHub operations the pipeline's transport layer
// needs: reading a pull request's changed files and existing comments,
// and posting reviews, comments, and check runs.
//
//go:generate mockgen -destination=../../mocks/mock_github_client.go -package=mocks . Client
type Client interface {
	GetPullRequest(ctx context.Context, owner, repo string, number int) (*core.PullRequestContext, string, error)
	GetChangedFiles(ctx context.Context, owner, repo string, number int) ([]core.FileChange, error)
	GetExistingComments(ctx context.Context, owner, repo string, number int) ([]core.ExistingComment, error)
	CreateComment(ctx context.Context, owner, repo string, number int, body string) error
	UpdateComment(ctx context.Context, owner, repo string, commentID int64, body string) error
	CreateReview(ctx context.Context, owner, repo string, number int, sha, body string, comments []DraftReviewComment) error
	ReactToComment(ctx context.Context, owner, repo string, commentID int64, content string) error
	ResolveThread(ctx context.Context, owner, repo, threadID string) error
	CreateCheckRun(ctx context.Context, owner, repo string, opts github.CreateCheckRunOptions) (*github.CheckRun, error)
	UpdateCheckRun(ctx context.Context, owner, repo string, checkRunID int64, opts github.UpdateCheckRunOptions) error
}

type gitHubClient struct {
	client *github.Client
	logger *slog.Logger
}

// NewGitHubClient wraps the official go-github client in the narrow
// interface the pipeline's transport layer depends on.
func NewGitHubClient(client *github.Client, logger *slog.Logger) Client {
	return &gitHubClient{client: client, logger: logger}
}

// NewPATClient authenticates with a personal access token, for local/CLI
// runs where an App installation isn't available.
func NewPATClient(ctx context.Context, token string, logger *slog.Logger) Client {
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	tc := oauth2.NewClient(ctx, ts)
	return &gitHubClient{client: github.NewClient(tc), logger: logger}
}

// SplitRepository splits a "owner/repo" full name, as carried in
// core.EventContext.Repository.
func SplitRepository(fullName string) (owner, repo string, err error) {
	parts := strings.SplitN(fullName, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("repository %q is not in owner/repo form", fullName)
	}
	return parts[0], parts[1], nil
}

// GetPullRequest fetches a pull request's metadata, returning its core
// context (without file entries, which GetChangedFiles fills separately)
// and the repository's clone URL so a caller can clone the repository.
func (g *gitHubClient) GetPullRequest(ctx context.Context, owner, repo string, number int) (*core.PullRequestContext, string, error) {
	pr, _, err := g.client.PullRequests.Get(ctx, owner, repo, number)
	if err != nil {
		return nil, "", fmt.Errorf("get pull request %s/%s#%d: %w", owner, repo, number, err)
	}

	ctx2 := &core.PullRequestContext{
		Number:     pr.GetNumber(),
		Title:      pr.GetTitle(),
		Body:       pr.GetBody(),
		Author:     pr.GetUser().GetLogin(),
		BaseBranch: pr.GetBase().GetRef(),
		HeadBranch: pr.GetHead().GetRef(),
		HeadSHA:    pr.GetHead().GetSHA(),
	}
	return ctx2, pr.GetBase().GetRepo().GetCloneURL(), nil
}

// GetChangedFiles retrieves every changed file in a pull request,
// following pagination, and adapts go-github's shape to core.FileChange.
func (g *gitHubClient) GetChangedFiles(ctx context.Context, owner, repo string, number int) ([]core.FileChange, error) {
	var all []core.FileChange
	opts := &github.ListOptions{PerPage: 100}

	for {
		files, resp, err := g.client.PullRequests.ListFiles(ctx, owner, repo, number, opts)
		if err != nil {
			return nil, fmt.Errorf("list pull request files: %w", err)
		}
		for _, f := range files {
			all = append(all, core.FileChange{
				Filename:  f.GetFilename(),
				Status:    core.FileStatus(f.GetStatus()),
				Additions: f.GetAdditions(),
				Deletions: f.GetDeletions(),
				Patch:     f.GetPatch(),
			})
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return all, nil
}

// GetExistingComments fetches the pull request's current review comments,
// recognizing Warden's own hidden marker to populate IsWarden/ContentHash.
func (g *gitHubClient) GetExistingComments(ctx context.Context, owner, repo string, number int) ([]core.ExistingComment, error) {
	var all []core.ExistingComment
	opts := &github.PullRequestListCommentsOptions{ListOptions: github.ListOptions{PerPage: 100}}

	for {
		comments, resp, err := g.client.PullRequests.ListComments(ctx, owner, repo, number, opts)
		if err != nil {
			return nil, fmt.Errorf("list pull request comments: %w", err)
		}
		for _, c := range comments {
			all = append(all, adaptComment(c))
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return all, nil
}

func adaptComment(c *github.PullRequestComment) core.ExistingComment {
	body := c.GetBody()
	ec := core.ExistingComment{
		ID:            c.GetID(),
		Path:          c.GetPath(),
		Line:          c.GetLine(),
		Body:          body,
		CommentNodeID: c.GetNodeID(),
	}
	if _, line, hash, ok := render.ParseMarker(body); ok {
		ec.IsWarden = true
		ec.ContentHash = hash
		if ec.Line == 0 {
			ec.Line = line
		}
	}
	return ec
}

// CreateComment posts a single issue-level (non-review) comment.
func (g *gitHubClient) CreateComment(ctx context.Context, owner, repo string, number int, body string) error {
	comment := &github.IssueComment{Body: &body}
	_, _, err := g.client.Issues.CreateComment(ctx, owner, repo, number, comment)
	if err != nil {
		g.logger.ErrorContext(ctx, "create comment failed", "owner", owner, "repo", repo, "pr", number, "error", err)
	}
	return err
}

// UpdateComment rewrites an existing issue-level comment's body, used to
// refresh a Warden comment's attribution footer on a later skill match.
func (g *gitHubClient) UpdateComment(ctx context.Context, owner, repo string, commentID int64, body string) error {
	comment := &github.IssueComment{Body: &body}
	_, _, err := g.client.Issues.EditComment(ctx, owner, repo, commentID, comment)
	if err != nil {
		g.logger.ErrorContext(ctx, "update comment failed", "owner", owner, "repo", repo, "comment", commentID, "error", err)
	}
	return err
}

// CreateReview posts a new pull request review with inline comments.
func (g *gitHubClient) CreateReview(ctx context.Context, owner, repo string, number int, sha, body string, comments []DraftReviewComment) error {
	var ghComments []*github.DraftReviewComment
	for _, c := range comments {
		comment := &github.DraftReviewComment{
			Path: github.Ptr(c.Path),
			Line: github.Ptr(c.Line),
			Body: github.Ptr(c.Body),
		}
		if c.StartLine > 0 {
			comment.StartLine = github.Ptr(c.StartLine)
			comment.StartSide = github.Ptr(c.StartSide)
		}
		ghComments = append(ghComments, comment)
	}

	review := &github.PullRequestReviewRequest{
		CommitID: github.Ptr(sha),
		Body:     github.Ptr(body),
		Event:    github.Ptr("COMMENT"),
		Comments: ghComments,
	}

	_, _, err := g.client.PullRequests.CreateReview(ctx, owner, repo, number, review)
	if err != nil {
		g.logger.ErrorContext(ctx, "create review failed", "owner", owner, "repo", repo, "pr", number, "error", err)
	}
	return err
}

// ReactToComment adds an emoji reaction to an existing issue-level comment,
// the transport's way of acknowledging a duplicate finding that landed on a
// comment Warden didn't author itself.
func (g *gitHubClient) ReactToComment(ctx context.Context, owner, repo string, commentID int64, content string) error {
	_, _, err := g.client.Reactions.CreateIssueCommentReaction(ctx, owner, repo, commentID, content)
	if err != nil {
		g.logger.ErrorContext(ctx, "react to comment failed", "owner", owner, "repo", repo, "comment", commentID, "error", err)
	}
	return err
}

// ResolveThread logs the resolveReviewThread GraphQL mutation for
// threadID at debug level and returns nil. It does not call the GitHub
// API, so the thread is left unresolved.
func (g *gitHubClient) ResolveThread(ctx context.Context, owner, repo, threadID string) error {
	const mutation = `mutation($id: ID!) { resolveReviewThread(input: {threadId: $id}) { thread { isResolved } } }`
	req := struct {
		Query     string         `json:"query"`
		Variables map[string]any `json:"variables"`
	}{Query: mutation, Variables: map[string]any{"id": threadID}}

	// No request is sent: the mutation is only logged, and the
	// stale-resolution pass never fails on a thread.
	g.logger.DebugContext(ctx, "resolve thread", "owner", owner, "repo", repo, "thread", threadID, "query", req.Query)
	return nil
}

// CreateCheckRun creates a new check run.
func (g *gitHubClient) CreateCheckRun(ctx context.Context, owner, repo string, opts github.CreateCheckRunOptions) (*github.CheckRun, error) {
	checkRun, _, err := g.client.Checks.CreateCheckRun(ctx, owner, repo, opts)
	if err != nil {
		g.logger.ErrorContext(ctx, "create check run failed", "owner", owner, "repo", repo, "error", err)
		return nil, err
	}
	return checkRun, nil
}

// UpdateCheckRun updates an existing check run to its final status.
func (g *gitHubClient) UpdateCheckRun(ctx context.Context, owner, repo string, checkRunID int64, opts github.UpdateCheckRunOptions) error {
	_, _, err := g.client.Checks.UpdateCheckRun(ctx, owner, repo, checkRunID, opts)
	if err != nil {
		g.logger.ErrorContext(ctx, "update check run failed", "owner", owner, "repo", repo, "check_run", checkRunID, "error", err)
	}
	return err
}
