package gitutil

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os/exec"

	"github.com/wardenhq/warden/internal/core"
	"github.com/wardenhq/warden/internal/remotecache"
)

// SubprocessFetcher implements remotecache.Fetcher by invoking the git
// binary directly with argv-only arguments, never a shell string, so a
// ref's owner/repo components can never be interpreted as a flag. Unlike
// RepoClient, which uses go-git, it runs each step of the
// shallow-clone/fetch/checkout cycle through exec.CommandContext.
type SubprocessFetcher struct {
	BaseURL string // e.g. "https://github.com", used to build the clone URL from owner/repo
	Logger  *slog.Logger
}

// NewSubprocessFetcher builds a SubprocessFetcher rooted at baseURL
// (defaulting to "https://github.com").
func NewSubprocessFetcher(baseURL string, logger *slog.Logger) *SubprocessFetcher {
	if baseURL == "" {
		baseURL = "https://github.com"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SubprocessFetcher{BaseURL: baseURL, Logger: logger}
}

func (f *SubprocessFetcher) cloneURL(ref core.RemoteRef) string {
	return fmt.Sprintf("%s/%s/%s.git", f.BaseURL, ref.Owner, ref.Repo)
}

// Clone performs a shallow clone (depth 1). For a pinned ref it fetches
// that sha specifically and checks it out, unshallowing only if the
// object isn't reachable in the initial shallow history.
func (f *SubprocessFetcher) Clone(ctx context.Context, ref core.RemoteRef, dir string, onProgress func(string)) (string, error) {
	url := f.cloneURL(ref)

	if !ref.Pinned() {
		if err := f.run(ctx, "", "clone", "--depth", "1", url, dir); err != nil {
			return "", fmt.Errorf("clone: %w", err)
		}
		return f.headSHA(ctx, dir)
	}

	if err := f.run(ctx, "", "clone", "--no-checkout", "--depth", "1", url, dir); err != nil {
		return "", fmt.Errorf("clone: %w", err)
	}
	if err := f.run(ctx, dir, "fetch", "--depth", "1", "origin", ref.SHA); err != nil {
		// Shallow history may not contain the target sha; unshallow and retry.
		if err := f.run(ctx, dir, "fetch", "--unshallow", "origin", ref.SHA); err != nil {
			return "", fmt.Errorf("fetch pinned sha %s: %w", ref.SHA, err)
		}
	}
	if err := f.run(ctx, dir, "checkout", ref.SHA); err != nil {
		return "", fmt.Errorf("checkout %s: %w", ref.SHA, err)
	}
	return ref.SHA, nil
}

// FetchAndReset fetches updates into an existing clone and hard-resets the
// worktree to origin/HEAD.
func (f *SubprocessFetcher) FetchAndReset(ctx context.Context, dir string, onProgress func(string)) (string, error) {
	if err := f.run(ctx, dir, "fetch", "--depth", "1", "origin"); err != nil {
		return "", fmt.Errorf("fetch: %w", err)
	}
	if err := f.run(ctx, dir, "reset", "--hard", "origin/HEAD"); err != nil {
		return "", fmt.Errorf("reset: %w", err)
	}
	return f.headSHA(ctx, dir)
}

// FetchPinned fetches one additional sha into an existing shallow clone
// and checks it out, unshallowing only if necessary.
func (f *SubprocessFetcher) FetchPinned(ctx context.Context, dir, sha string, onProgress func(string)) error {
	if err := f.run(ctx, dir, "fetch", "--depth", "1", "origin", sha); err != nil {
		if err := f.run(ctx, dir, "fetch", "--unshallow", "origin", sha); err != nil {
			return fmt.Errorf("fetch pinned sha %s: %w", sha, err)
		}
	}
	return f.run(ctx, dir, "checkout", sha)
}

func (f *SubprocessFetcher) headSHA(ctx context.Context, dir string) (string, error) {
	var out bytes.Buffer
	cmd := exec.CommandContext(ctx, "git", "-C", dir, "rev-parse", "HEAD")
	cmd.Stdout = &out
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("rev-parse HEAD: %w", err)
	}
	sha := out.String()
	for len(sha) > 0 && (sha[len(sha)-1] == '\n' || sha[len(sha)-1] == '\r') {
		sha = sha[:len(sha)-1]
	}
	return sha, nil
}

func (f *SubprocessFetcher) run(ctx context.Context, dir string, args ...string) error {
	var cmd *exec.Cmd
	if dir != "" {
		cmd = exec.CommandContext(ctx, "git", append([]string{"-C", dir}, args...)...)
	} else {
		cmd = exec.CommandContext(ctx, "git", args...)
	}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if f.Logger != nil {
		f.Logger.DebugContext(ctx, "git subprocess", "args", args)
	}
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("git %v: %w: %s", args, err, stderr.String())
	}
	return nil
}

var _ remotecache.Fetcher = (*SubprocessFetcher)(nil)
