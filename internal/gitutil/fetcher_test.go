package gitutil

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wardenhq/warden/internal/core"
)

// initOrigin creates a local git repository at <base>/<owner>/<repo>.git
// and commits one file, returning the resulting commit sha. Naming the
// directory with a .git suffix lets SubprocessFetcher's cloneURL
// (baseURL/owner/repo.git) resolve it as an ordinary local clone source.
func initOrigin(t *testing.T, base, owner, repo string) string {
	t.Helper()
	dir := filepath.Join(base, owner, repo+".git")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	runGit(t, dir, "init", "-q")
	runGit(t, dir, "config", "user.email", "test@example.com")
	runGit(t, dir, "config", "user.name", "test")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("hello\n"), 0o644))
	runGit(t, dir, "add", "a.txt")
	runGit(t, dir, "commit", "-q", "-m", "init")
	return strings.TrimSpace(runGitOutput(t, dir, "rev-parse", "HEAD"))
}

func commitMore(t *testing.T, dir, content string) string {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte(content), 0o644))
	runGit(t, dir, "add", "a.txt")
	runGit(t, dir, "commit", "-q", "-m", "more")
	return strings.TrimSpace(runGitOutput(t, dir, "rev-parse", "HEAD"))
}

func runGit(t *testing.T, dir string, args ...string) {
	t.Helper()
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	require.NoError(t, err, string(out))
}

func runGitOutput(t *testing.T, dir string, args ...string) string {
	t.Helper()
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	out, err := cmd.Output()
	require.NoError(t, err)
	return string(out)
}

func TestSubprocessFetcher_CloneUnpinned(t *testing.T) {
	base := t.TempDir()
	sha := initOrigin(t, base, "acme", "widgets")

	f := NewSubprocessFetcher(base, nil)
	dest := filepath.Join(t.TempDir(), "dest")

	got, err := f.Clone(context.Background(), core.RemoteRef{Owner: "acme", Repo: "widgets"}, dest, nil)
	require.NoError(t, err)
	require.Equal(t, sha, got)
}

func TestSubprocessFetcher_FetchAndReset(t *testing.T) {
	base := t.TempDir()
	initOrigin(t, base, "acme", "widgets")
	originDir := filepath.Join(base, "acme", "widgets.git")

	f := NewSubprocessFetcher(base, nil)
	dest := filepath.Join(t.TempDir(), "dest")
	_, err := f.Clone(context.Background(), core.RemoteRef{Owner: "acme", Repo: "widgets"}, dest, nil)
	require.NoError(t, err)

	newSHA := commitMore(t, originDir, "world\n")

	got, err := f.FetchAndReset(context.Background(), dest, nil)
	require.NoError(t, err)
	require.Equal(t, newSHA, got)
}

func TestSubprocessFetcher_ClonePinned(t *testing.T) {
	base := t.TempDir()
	sha := initOrigin(t, base, "acme", "widgets")
	originDir := filepath.Join(base, "acme", "widgets.git")
	commitMore(t, originDir, "world\n") // advance origin past the pinned sha

	f := NewSubprocessFetcher(base, nil)
	dest := filepath.Join(t.TempDir(), "dest")

	got, err := f.Clone(context.Background(), core.RemoteRef{Owner: "acme", Repo: "widgets", SHA: sha}, dest, nil)
	require.NoError(t, err)
	require.Equal(t, sha, got)
}

func TestSubprocessFetcher_FetchPinned(t *testing.T) {
	base := t.TempDir()
	initOrigin(t, base, "acme", "widgets")
	originDir := filepath.Join(base, "acme", "widgets.git")

	f := NewSubprocessFetcher(base, nil)
	dest := filepath.Join(t.TempDir(), "dest")
	_, err := f.Clone(context.Background(), core.RemoteRef{Owner: "acme", Repo: "widgets"}, dest, nil)
	require.NoError(t, err)

	newSHA := commitMore(t, originDir, "world\n")

	err = f.FetchPinned(context.Background(), dest, newSHA, nil)
	require.NoError(t, err)

	got := strings.TrimSpace(runGitOutput(t, dest, "rev-parse", "HEAD"))
	require.Equal(t, newSHA, got)
}
