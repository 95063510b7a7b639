// Package contextexpand widens a raw diff hunk with the working-tree
// source lines surrounding it, so a skill's prompt sees a change in its
// natural context rather than a bare patch fragment. File reads are
// memoized for the lifetime of one run, since the same file is frequently
// touched by several hunks and by several skills.
package contextexpand

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/wardenhq/warden/internal/classify"
	"github.com/wardenhq/warden/internal/core"
)

// Expander reads working-tree files rooted at repoPath to build
// core.HunkWithContext values.
type Expander struct {
	repoPath     string
	contextLines int
	fileCache    *gocache.Cache
}

// New builds an Expander rooted at repoPath. contextLines controls how
// many lines of unchanged source are pulled in before and after each hunk.
func New(repoPath string, contextLines int) *Expander {
	return &Expander{
		repoPath:     repoPath,
		contextLines: contextLines,
		fileCache:    gocache.New(gocache.NoExpiration, time.Hour),
	}
}

// Expand widens hunk with working-tree context lines for filename. A
// missing or binary file degrades to empty context rather than failing
// the whole run.
func (e *Expander) Expand(filename string, hunk core.DiffHunk) (core.HunkWithContext, error) {
	lines := e.readLines(filename)

	startLine := hunk.NewStart - e.contextLines
	if startLine < 1 {
		startLine = 1
	}
	endLine := hunk.NewEnd() + e.contextLines

	before := sliceLines(lines, startLine, hunk.NewStart-1)
	after := sliceLines(lines, hunk.NewEnd()+1, endLine)

	return core.HunkWithContext{
		Filename:         filename,
		Hunk:             hunk,
		ContextBefore:    before,
		ContextAfter:     after,
		ContextStartLine: startLine,
		Language:         classify.LanguageForExtension(filepath.Ext(filename)),
	}, nil
}

// ExpandAll expands every hunk of a prepared file in one pass, reusing the
// same cached file read.
func (e *Expander) ExpandAll(filename string, hunks []core.DiffHunk) (core.PreparedFile, error) {
	expanded := make([]core.HunkWithContext, 0, len(hunks))
	for _, h := range hunks {
		hc, err := e.Expand(filename, h)
		if err != nil {
			return core.PreparedFile{}, err
		}
		expanded = append(expanded, hc)
	}
	return core.PreparedFile{Filename: filename, Hunks: expanded}, nil
}

// readLines returns filename's working-tree lines, or nil if the file is
// missing or looks binary - callers treat that the same as an empty file
// rather than an error.
func (e *Expander) readLines(filename string) []string {
	if cached, ok := e.fileCache.Get(filename); ok {
		return cached.([]string)
	}

	full := filepath.Join(e.repoPath, filename)
	data, err := os.ReadFile(full)
	if err != nil || looksBinary(data) {
		e.fileCache.Set(filename, []string(nil), gocache.NoExpiration)
		return nil
	}

	lines := strings.Split(string(data), "\n")
	e.fileCache.Set(filename, lines, gocache.NoExpiration)
	return lines
}

// looksBinary reports whether data contains a NUL byte within its first
// 8000 bytes, the same heuristic git itself uses to flag a file as binary.
func looksBinary(data []byte) bool {
	n := len(data)
	if n > 8000 {
		n = 8000
	}
	for i := 0; i < n; i++ {
		if data[i] == 0 {
			return true
		}
	}
	return false
}

// ReadAll returns filename's full working-tree content as lines, degrading
// to nil the same way Expand does. Used to build a whole-file synthetic
// hunk rather than widening an existing one.
func (e *Expander) ReadAll(filename string) []string {
	return e.readLines(filename)
}

// sliceLines returns lines[from-1:to] (1-indexed, inclusive), clamped to
// the slice bounds. An empty or inverted range yields nil.
func sliceLines(lines []string, from, to int) []string {
	if from < 1 {
		from = 1
	}
	if to > len(lines) {
		to = len(lines)
	}
	if from > to {
		return nil
	}
	return append([]string(nil), lines[from-1:to]...)
}
