package core

import "errors"

// ConfigError wraps a fatal configuration problem discovered at startup,
// before any pipeline component runs.
type ConfigError struct {
	msg string
	err error
}

func NewConfigError(msg string, err error) *ConfigError {
	return &ConfigError{msg: msg, err: err}
}

func (e *ConfigError) Error() string {
	if e.err != nil {
		return e.msg + ": " + e.err.Error()
	}
	return e.msg
}

func (e *ConfigError) Unwrap() error { return e.err }

// SkillLoaderError is fatal for the one skill task it concerns, but never
// cancels the rest of a multi-skill run.
type SkillLoaderError struct {
	Skill string
	err   error
}

func NewSkillLoaderError(skill string, err error) *SkillLoaderError {
	return &SkillLoaderError{Skill: skill, err: err}
}

func (e *SkillLoaderError) Error() string {
	return "skill " + e.Skill + ": " + e.err.Error()
}

func (e *SkillLoaderError) Unwrap() error { return e.err }

// RemoteFetchError wraps a VCS subprocess failure while resolving a remote
// skill ref. It is treated as a SkillLoaderError cause when surfaced via
// skill resolution.
type RemoteFetchError struct {
	Ref string
	err error
}

func NewRemoteFetchError(ref string, err error) *RemoteFetchError {
	return &RemoteFetchError{Ref: ref, err: err}
}

func (e *RemoteFetchError) Error() string {
	return "fetching remote skill " + e.Ref + ": " + e.err.Error()
}

func (e *RemoteFetchError) Unwrap() error { return e.err }

// LLMTransientError is a retryable failure from the LLM client. It is only
// ever exposed after the retry wrapper exhausts maxRetries; the hunk it
// concerns increments failedHunks rather than aborting the file.
type LLMTransientError struct {
	Attempts int
	err      error
}

func NewLLMTransientError(attempts int, err error) *LLMTransientError {
	return &LLMTransientError{Attempts: attempts, err: err}
}

func (e *LLMTransientError) Error() string {
	return "llm call failed after retries: " + e.err.Error()
}

func (e *LLMTransientError) Unwrap() error { return e.err }

// LLMAuthError is non-retryable and fatal for the whole run.
type LLMAuthError struct {
	err error
}

func NewLLMAuthError(err error) *LLMAuthError {
	return &LLMAuthError{err: err}
}

func (e *LLMAuthError) Error() string {
	return "llm authentication failed: " + e.err.Error()
}

func (e *LLMAuthError) Unwrap() error { return e.err }

// ExtractorError records that a model response's findings JSON could not be
// parsed, even after the repair fallback was attempted.
type ExtractorError struct {
	Preview string
	err     error
}

func NewExtractorError(preview string, err error) *ExtractorError {
	return &ExtractorError{Preview: preview, err: err}
}

func (e *ExtractorError) Error() string {
	if e.err != nil {
		return "failed to extract findings: " + e.err.Error()
	}
	return "failed to extract findings"
}

func (e *ExtractorError) Unwrap() error { return e.err }

// ErrAborted is returned (wrapped, where useful) by any layer when the
// caller's abort signal fires. No partial report is emitted on abort.
var ErrAborted = errors.New("warden: run aborted")
