// Package remotecache resolves an owner/repo[@sha] skill ref into a local
// checkout, fetching and caching it under a state directory so repeated
// runs against the same ref don't re-clone on every invocation. It mirrors
// the clone/fetch/diff and per-ref locking shape used elsewhere in the
// pack's repository manager, but persists its ledger as a flat state.json
// file instead of a database row, and drives the VCS entirely through an
// injected subprocess-style fetcher contract rather than a git library.
package remotecache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/wardenhq/warden/internal/core"
)

// Fetcher performs the actual VCS work for one ref. Implementations shell
// out to git (or an equivalent tool) using argv-only invocation, never a
// shell string, so a ref's owner/repo components can never be interpreted
// as flags.
type Fetcher interface {
	// Clone performs a shallow clone (depth 1) of ref into dir, checking
	// out sha if non-empty, and returns the resulting HEAD sha.
	Clone(ctx context.Context, ref core.RemoteRef, dir string, onProgress func(string)) (string, error)
	// FetchAndReset fetches updates into an existing clone at dir and
	// hard-resets the worktree to origin/HEAD, returning the new HEAD sha.
	FetchAndReset(ctx context.Context, dir string, onProgress func(string)) (string, error)
	// FetchPinned fetches one additional sha into an existing shallow
	// clone at dir and checks it out, unshallowing only if the object is
	// missing from the current shallow history.
	FetchPinned(ctx context.Context, dir, sha string, onProgress func(string)) error
}

// Options tunes one fetchRemote call.
type Options struct {
	Force      bool
	Offline    bool
	OnProgress func(string)
}

// Cache resolves refs against a state directory, serializing concurrent
// fetches of the same ref with a per-ref mutex the way the pack's
// repository manager serializes per-repo syncs.
type Cache struct {
	stateDir string
	ttl      time.Duration
	fetcher  Fetcher
	logger   *slog.Logger

	refMux sync.Map // ref string -> *sync.Mutex

	mu    sync.Mutex
	state core.RemoteState
}

// New builds a Cache rooted at <stateDir>/skills. The state file is loaded
// lazily on first use so construction never touches disk.
func New(stateDir string, ttl time.Duration, fetcher Fetcher, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{
		stateDir: filepath.Join(stateDir, "skills"),
		ttl:      ttl,
		fetcher:  fetcher,
		logger:   logger,
		state:    core.RemoteState{Remotes: make(map[string]core.RemoteEntry)},
	}
}

var componentPattern = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)

// ParseRemoteRef parses "owner/repo[@sha]", also accepting HTTPS and SSH
// remote URL forms (https://github.com/owner/repo[.git], git@host:owner/repo.git).
func ParseRemoteRef(raw string) (core.RemoteRef, error) {
	s := strings.TrimSpace(raw)
	s = strings.TrimPrefix(s, "https://")
	s = strings.TrimPrefix(s, "http://")
	if idx := strings.Index(s, "@"); idx != -1 && strings.Contains(s[idx:], ":") && !strings.Contains(s[:idx], "/") {
		// git@host:owner/repo form, rewritten to host-stripped owner/repo.
		s = s[idx+1:]
		s = strings.Replace(s, ":", "/", 1)
	}
	if idx := strings.Index(s, "/"); idx != -1 {
		// Strip a leading host segment (github.com/owner/repo).
		if strings.Contains(s[:idx], ".") {
			s = s[idx+1:]
		}
	}
	s = strings.TrimSuffix(s, ".git")

	var sha string
	if idx := strings.LastIndex(s, "@"); idx != -1 {
		sha = s[idx+1:]
		s = s[:idx]
	}

	parts := strings.SplitN(s, "/", 2)
	if len(parts) != 2 {
		return core.RemoteRef{}, fmt.Errorf("remote ref %q: expected owner/repo[@sha]", raw)
	}
	owner, repo := parts[0], parts[1]

	if owner == "" || repo == "" {
		return core.RemoteRef{}, fmt.Errorf("remote ref %q: owner and repo must be non-empty", raw)
	}
	if strings.Contains(repo, "/") {
		return core.RemoteRef{}, fmt.Errorf("remote ref %q: repo must not contain '/'", raw)
	}
	for _, comp := range []string{owner, repo, sha} {
		if comp == "" {
			continue
		}
		if strings.HasPrefix(comp, "-") {
			return core.RemoteRef{}, fmt.Errorf("remote ref %q: component %q looks like a flag", raw, comp)
		}
		if !componentPattern.MatchString(comp) {
			return core.RemoteRef{}, fmt.Errorf("remote ref %q: component %q has invalid characters", raw, comp)
		}
	}

	return core.RemoteRef{Owner: owner, Repo: repo, SHA: sha}, nil
}

// FormatRemoteRef renders r back to its canonical string form. It is the
// left inverse of ParseRemoteRef for any ref ParseRemoteRef can produce.
func FormatRemoteRef(r core.RemoteRef) string {
	return r.String()
}

// dirFor returns the cache directory for ref, pinned or unpinned.
func (c *Cache) dirFor(ref core.RemoteRef) string {
	if ref.Pinned() {
		return filepath.Join(c.stateDir, ref.Owner, ref.Repo+"@"+ref.SHA)
	}
	return filepath.Join(c.stateDir, ref.Owner, ref.Repo)
}

func (c *Cache) statePath() string {
	return filepath.Join(c.stateDir, "state.json")
}

func (c *Cache) loadState() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	raw, err := os.ReadFile(c.statePath())
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read remote cache state: %w", err)
	}

	var onDisk struct {
		Remotes map[string]core.RemoteEntry `json:"remotes"`
	}
	if err := json.Unmarshal(raw, &onDisk); err != nil {
		return fmt.Errorf("parse remote cache state: %w", err)
	}
	if onDisk.Remotes != nil {
		c.state.Remotes = onDisk.Remotes
	}
	return nil
}

// saveState persists the in-memory ledger via write-temp-then-rename so a
// crash mid-write never corrupts the last known-good state.
func (c *Cache) saveState() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := os.MkdirAll(c.stateDir, 0o755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}

	payload, err := json.MarshalIndent(struct {
		Remotes map[string]core.RemoteEntry `json:"remotes"`
	}{Remotes: c.state.Remotes}, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal remote cache state: %w", err)
	}

	tmp := c.statePath() + ".tmp"
	if err := os.WriteFile(tmp, payload, 0o644); err != nil {
		return fmt.Errorf("write remote cache state temp file: %w", err)
	}
	if err := os.Rename(tmp, c.statePath()); err != nil {
		return fmt.Errorf("rename remote cache state file: %w", err)
	}
	return nil
}

func (c *Cache) entry(refKey string) (core.RemoteEntry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.state.Remotes[refKey]
	return e, ok
}

func (c *Cache) setEntry(refKey string, e core.RemoteEntry) {
	c.mu.Lock()
	c.state.Remotes[refKey] = e
	c.mu.Unlock()
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

// FetchRemote resolves ref to a checked-out sha, fetching or cloning as
// needed. A per-ref mutex serializes concurrent callers fetching the same
// ref within one process; disk state additionally short-circuits work
// across process restarts.
func (c *Cache) FetchRemote(ctx context.Context, ref core.RemoteRef, opts Options) (string, error) {
	if err := c.loadState(); err != nil {
		c.logger.WarnContext(ctx, "remote cache state load failed, proceeding with empty state", "error", err)
	}

	refKey := ref.String()
	muVal, _ := c.refMux.LoadOrStore(refKey, &sync.Mutex{})
	mux := muVal.(*sync.Mutex)
	mux.Lock()
	defer mux.Unlock()

	dir := c.dirFor(ref)

	if ref.Pinned() && dirExists(dir) && !opts.Force {
		return ref.SHA, nil
	}

	if existing, ok := c.entry(refKey); ok && dirExists(dir) {
		if !ref.Pinned() && !opts.Force && time.Since(existing.FetchedAt) <= c.ttl {
			return existing.SHA, nil
		}
		if opts.Offline {
			return existing.SHA, nil
		}
	} else if opts.Offline {
		return "", core.NewRemoteFetchError(refKey, errors.New("offline and no cached entry"))
	}

	sha, err := c.fetch(ctx, ref, dir, opts)
	if err != nil {
		return "", core.NewRemoteFetchError(refKey, err)
	}

	c.setEntry(refKey, core.RemoteEntry{SHA: sha, FetchedAt: time.Now()})
	if err := c.saveState(); err != nil {
		c.logger.WarnContext(ctx, "failed to persist remote cache state", "error", err)
	}
	return sha, nil
}

func (c *Cache) fetch(ctx context.Context, ref core.RemoteRef, dir string, opts Options) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("%w: %w", core.ErrAborted, err)
	}

	if dirExists(dir) {
		if ref.Pinned() {
			// Pinned caches never need network once the sha is present.
			return ref.SHA, nil
		}
		sha, err := c.fetcher.FetchAndReset(ctx, dir, opts.OnProgress)
		if err != nil {
			return "", fmt.Errorf("fetch and reset %s: %w", ref, err)
		}
		return sha, nil
	}

	if err := os.MkdirAll(filepath.Dir(dir), 0o755); err != nil {
		return "", fmt.Errorf("create cache parent dir: %w", err)
	}
	sha, err := c.fetcher.Clone(ctx, ref, dir, opts.OnProgress)
	if err != nil {
		_ = os.RemoveAll(dir)
		return "", fmt.Errorf("clone %s: %w", ref, err)
	}
	return sha, nil
}

// skillDirNames are the traditional-layout directories searched, in order,
// for skill subdirectories, after the marketplace-manifest layout has been
// tried and found nothing.
var skillDirNames = []string{"", "skills", ".warden/skills", ".agents/skills", ".claude/skills"}

// DiscoverSkills walks a fetched remote's checkout at dir and returns the
// skill directories it finds. A skill is any directory containing a
// SKILL.md file. When the `.claude-plugin/marketplace.json` layout is
// present, its declared plugins are searched first, and the traditional
// layout only when they yield no skill. Duplicate skill names keep their
// first occurrence.
func DiscoverSkills(dir string) ([]string, error) {
	marketplace := filepath.Join(dir, ".claude-plugin", "marketplace.json")
	if raw, err := os.ReadFile(marketplace); err == nil {
		found, err := discoverFromMarketplace(dir, raw)
		if err != nil || len(found) > 0 {
			return found, err
		}
	}

	seen := make(map[string]bool)
	var found []string
	for _, sub := range skillDirNames {
		root := dir
		if sub != "" {
			root = filepath.Join(dir, sub)
		}
		entries, err := os.ReadDir(root)
		if err != nil {
			continue
		}
		for _, e := range entries {
			if !e.IsDir() || seen[e.Name()] {
				continue
			}
			if _, err := os.Stat(filepath.Join(root, e.Name(), "SKILL.md")); err == nil {
				seen[e.Name()] = true
				found = append(found, filepath.Join(root, e.Name()))
			}
		}
	}
	return found, nil
}

func discoverFromMarketplace(dir string, raw []byte) ([]string, error) {
	var manifest struct {
		Plugins []struct {
			Name string `json:"name"`
			Path string `json:"path"`
		} `json:"plugins"`
	}
	if err := json.Unmarshal(raw, &manifest); err != nil {
		return nil, fmt.Errorf("parse marketplace manifest: %w", err)
	}

	seen := make(map[string]bool)
	var found []string
	for _, p := range manifest.Plugins {
		pluginPath := p.Path
		if pluginPath == "" {
			pluginPath = p.Name
		}
		skillsDir := filepath.Join(dir, pluginPath, "skills")
		entries, err := os.ReadDir(skillsDir)
		if err != nil {
			continue
		}
		for _, e := range entries {
			if !e.IsDir() || seen[e.Name()] {
				continue
			}
			if _, err := os.Stat(filepath.Join(skillsDir, e.Name(), "SKILL.md")); err == nil {
				seen[e.Name()] = true
				found = append(found, filepath.Join(skillsDir, e.Name()))
			}
		}
	}
	return found, nil
}
