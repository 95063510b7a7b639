// Package prepare turns an event's changed files into the per-file,
// per-hunk analysis units a skill run consumes: classify what to skip,
// parse and optionally coalesce each kept file's hunks, then widen every
// hunk with working-tree context.
package prepare

import (
	"fmt"

	"github.com/wardenhq/warden/internal/classify"
	"github.com/wardenhq/warden/internal/contextexpand"
	"github.com/wardenhq/warden/internal/core"
	"github.com/wardenhq/warden/internal/diffparse"
)

// Options controls how hunks are coalesced and widened.
type Options struct {
	CoalesceEnabled bool
	MaxGapLines     int
	MaxChunkSize    int
	ContextLines    int
}

// Result is the full output of preparing one event for analysis.
type Result struct {
	Files        []core.PreparedFile
	SkippedFiles []core.SkippedFile
}

// Preparer builds a Result for one event, using a Classifier scoped to the
// repo's excludes and an Expander rooted at the checked-out working tree.
type Preparer struct {
	classifier *classify.Classifier
	expander   *contextexpand.Expander
	opts       Options
}

// New builds a Preparer. repoPath must point at the working tree the
// event's files were checked out into.
func New(repoPath string, userExcludePatterns, wholeFilePatterns []string, opts Options) *Preparer {
	return &Preparer{
		classifier: classify.New(userExcludePatterns, wholeFilePatterns),
		expander:   contextexpand.New(repoPath, opts.ContextLines),
		opts:       opts,
	}
}

// Prepare classifies and expands every file change in files.
func (p *Preparer) Prepare(files []core.FileChange) (Result, error) {
	perHunk, wholeFile, skipped := p.classifier.Filter(files)

	result := Result{SkippedFiles: skipped}
	for _, f := range perHunk {
		prepared, ok, err := p.prepareFile(f)
		if err != nil {
			return Result{}, fmt.Errorf("prepare: %s: %w", f.Filename, err)
		}
		if !ok {
			result.SkippedFiles = append(result.SkippedFiles, core.SkippedFile{Filename: f.Filename, Reason: "empty-patch"})
			continue
		}
		result.Files = append(result.Files, prepared)
	}
	for _, f := range wholeFile {
		prepared, err := p.prepareWholeFile(f)
		if err != nil {
			return Result{}, fmt.Errorf("prepare: %s: %w", f.Filename, err)
		}
		result.Files = append(result.Files, prepared)
	}
	return result, nil
}

func (p *Preparer) prepareFile(f core.FileChange) (core.PreparedFile, bool, error) {
	hunks, err := diffparse.ParseHunks(f.Patch)
	if err != nil {
		return core.PreparedFile{}, false, err
	}
	if len(hunks) == 0 {
		// No usable patch (e.g. a newly added file GitHub didn't render a
		// diff for): fall back to reviewing it as a whole-file unit instead
		// of silently dropping it from both Files and SkippedFiles.
		if f.Status == core.FileAdded {
			prepared, err := p.prepareWholeFile(f)
			return prepared, err == nil, err
		}
		return core.PreparedFile{}, false, nil
	}

	if p.opts.CoalesceEnabled {
		hunks = diffparse.CoalesceHunks(hunks, p.opts.MaxGapLines, p.opts.MaxChunkSize)
	}

	if f.Status == core.FileRemoved {
		// Nothing to read in the working tree; the removed lines are
		// already fully present in the patch content itself.
		return bareHunks(f.Filename, hunks), true, nil
	}

	prepared, err := p.expander.ExpandAll(f.Filename, hunks)
	if err != nil {
		return core.PreparedFile{}, false, err
	}
	return prepared, true, nil
}

// prepareWholeFile builds a single synthetic hunk spanning a file's entire
// working-tree content, for files classified whole-file or added without a
// usable patch.
func (p *Preparer) prepareWholeFile(f core.FileChange) (core.PreparedFile, error) {
	lines := p.expander.ReadAll(f.Filename)

	hunk, err := diffparse.WholeFileHunk(lines)
	if err != nil {
		return core.PreparedFile{}, err
	}

	return bareHunks(f.Filename, []core.DiffHunk{hunk}), nil
}

func bareHunks(filename string, hunks []core.DiffHunk) core.PreparedFile {
	units := make([]core.HunkWithContext, 0, len(hunks))
	for _, h := range hunks {
		units = append(units, core.HunkWithContext{Filename: filename, Hunk: h})
	}
	return core.PreparedFile{Filename: filename, Hunks: units}
}
