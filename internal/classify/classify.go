// Package classify decides which changed files in an event are worth
// sending to a skill at all, before any diff parsing or LLM work happens.
// A file is skipped either because it matches the built-in skip list
// (docs, lockfiles, binaries, minified/generated assets) or because it
// matches a user-supplied glob exclude pattern.
package classify

import (
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"github.com/wardenhq/warden/internal/core"
)

// builtinSkipExtensions are never reviewable regardless of user config:
// documentation, configuration, lock files, data, and binary assets.
var builtinSkipExtensions = map[string]bool{
	".md": true, ".markdown": true, ".rst": true, ".adoc": true,
	".yml": true, ".yaml": true, ".json": true, ".jsonc": true,
	".toml": true, ".ini": true, ".cfg": true, ".conf": true,
	".env": true, ".editorconfig": true, ".gitignore": true,
	".lock": true, ".sum": true,
	".txt": true, ".csv": true, ".xml": true,
	".svg": true, ".png": true, ".jpg": true, ".jpeg": true,
	".gif": true, ".ico": true, ".webp": true, ".pdf": true,
	".zip": true, ".tar": true, ".gz": true,
	".prompt": true, ".tmpl": true, ".mustache": true,
}

// builtinSkipBasenames are config/build files that carry no extension.
var builtinSkipBasenames = map[string]bool{
	"makefile": true, "dockerfile": true, "rakefile": true,
	"gemfile": true, "procfile": true,
}

// builtinCodeExtensions are always reviewable, overriding any ambiguity a
// compound-extension check below would otherwise introduce.
var builtinCodeExtensions = map[string]bool{
	".go": true, ".js": true, ".ts": true, ".tsx": true, ".jsx": true,
	".py": true, ".java": true, ".c": true, ".cpp": true, ".h": true,
	".hpp": true, ".rs": true, ".rb": true, ".php": true, ".cs": true,
	".swift": true, ".kt": true, ".scala": true, ".lua": true,
	".sh": true, ".bash": true, ".zsh": true, ".ps1": true,
	".sql": true, ".vue": true, ".svelte": true,
}

// Classifier decides, file by file, whether a changed file should be
// analysed hunk by hunk, analysed as a whole, or skipped. It is built once
// per event from the repo's warden.yml pattern lists and reused across
// every skill in the run.
type Classifier struct {
	excludePatterns   []string
	wholeFilePatterns []string
}

// New builds a Classifier from a repo's raw glob patterns (MatchGlob
// syntax, e.g. "vendor/**", "*.generated.go"): excludePatterns declare
// skip, wholeFilePatterns declare whole-file. excludePatterns are checked
// first, matching the precedence a reviewer would expect ("never touch
// this" beats "always review this in full").
func New(excludePatterns, wholeFilePatterns []string) *Classifier {
	return &Classifier{
		excludePatterns:   append([]string(nil), excludePatterns...),
		wholeFilePatterns: append([]string(nil), wholeFilePatterns...),
	}
}

// Decide reports the classification mode for filename, and - when the mode
// is skip - why.
func (c *Classifier) Decide(filename string) (mode core.ClassifyMode, skipped *core.SkippedFile) {
	normalized := strings.TrimPrefix(strings.ToLower(filename), "./")

	if pattern, matched := matchPatterns(c.excludePatterns, filename); matched {
		return core.ClassifySkip, &core.SkippedFile{Filename: filename, Reason: "pattern", Pattern: pattern}
	}

	if !isReviewableBuiltin(normalized) {
		return core.ClassifySkip, &core.SkippedFile{Filename: filename, Reason: "builtin"}
	}

	if _, matched := matchPatterns(c.wholeFilePatterns, filename); matched {
		return core.ClassifyWholeFile, nil
	}

	return core.ClassifyPerHunk, nil
}

// Filter splits changed files into three groups: analyse hunk by hunk,
// analyse whole, and skipped (with the reason each skip happened).
func (c *Classifier) Filter(files []core.FileChange) (perHunk, wholeFile []core.FileChange, skipped []core.SkippedFile) {
	for _, f := range files {
		switch mode, skip := c.Decide(f.Filename); mode {
		case core.ClassifySkip:
			skipped = append(skipped, *skip)
		case core.ClassifyWholeFile:
			wholeFile = append(wholeFile, f)
		default:
			perHunk = append(perHunk, f)
		}
	}
	return perHunk, wholeFile, skipped
}

func matchPatterns(patterns []string, filename string) (string, bool) {
	for _, pattern := range patterns {
		if MatchGlob(pattern, filename) {
			return pattern, true
		}
		// Also match against the base name so a pattern like "*.test.go"
		// works regardless of directory depth.
		if MatchGlob(pattern, filepath.Base(filename)) {
			return pattern, true
		}
	}
	return "", false
}

var globRegexCache sync.Map // pattern string -> *regexp.Regexp

// MatchGlob reports whether name matches pattern, where pattern uses
// shell-glob syntax extended with "**" to match across path separators
// (unlike a single "*", which stops at "/"). Compiled patterns are cached
// since the same user excludePatterns are matched against every changed
// file in a run.
func MatchGlob(pattern, name string) bool {
	re, ok := globRegexCache.Load(pattern)
	if !ok {
		re = regexp.MustCompile(globToRegexp(pattern))
		globRegexCache.Store(pattern, re)
	}
	return re.(*regexp.Regexp).MatchString(name)
}

func globToRegexp(pattern string) string {
	var b strings.Builder
	b.WriteString("^")

	runes := []rune(pattern)
	for i := 0; i < len(runes); i++ {
		switch runes[i] {
		case '*':
			if i+1 < len(runes) && runes[i+1] == '*' {
				b.WriteString(".*")
				i++
				// Swallow an immediately following "/" so "**/*.ts" matches
				// both "a/b/c.ts" and the zero-directory case "c.ts".
				if i+1 < len(runes) && runes[i+1] == '/' {
					i++
					b.WriteString("(/)?")
				}
			} else {
				b.WriteString("[^/]*")
			}
		case '?':
			b.WriteString("[^/]")
		case '.', '+', '(', ')', '|', '^', '$':
			b.WriteString(regexp.QuoteMeta(string(runes[i])))
		default:
			b.WriteString(string(runes[i]))
		}
	}

	b.WriteString("$")
	return b.String()
}

func isReviewableBuiltin(normalized string) bool {
	if strings.HasSuffix(normalized, ".min.js") ||
		strings.HasSuffix(normalized, ".min.css") ||
		strings.HasSuffix(normalized, ".d.ts") {
		return false
	}

	ext := filepath.Ext(normalized)
	if builtinCodeExtensions[ext] {
		return true
	}

	if ext == "" {
		if builtinSkipBasenames[filepath.Base(normalized)] {
			return false
		}
		return true
	}

	return !builtinSkipExtensions[ext]
}

// LanguageForExtension maps a file extension (including the leading dot)
// to the language tag used in prompt construction. Unknown extensions
// return "".
func LanguageForExtension(ext string) string {
	switch strings.ToLower(ext) {
	case ".go":
		return "go"
	case ".js", ".jsx":
		return "javascript"
	case ".ts", ".tsx":
		return "typescript"
	case ".py":
		return "python"
	case ".java":
		return "java"
	case ".c", ".h":
		return "c"
	case ".cpp", ".hpp":
		return "cpp"
	case ".rs":
		return "rust"
	case ".rb":
		return "ruby"
	case ".php":
		return "php"
	case ".cs":
		return "csharp"
	case ".swift":
		return "swift"
	case ".kt":
		return "kotlin"
	case ".scala":
		return "scala"
	case ".lua":
		return "lua"
	case ".sh", ".bash", ".zsh":
		return "shell"
	case ".sql":
		return "sql"
	case ".vue":
		return "vue"
	case ".svelte":
		return "svelte"
	default:
		return ""
	}
}
