package core

// RepoConfig is the optional per-repository override file (warden.yml at
// the repo root), letting a repo narrow what the classifier and skill
// scheduler do without touching the pipeline's own configuration.
type RepoConfig struct {
	CustomInstructions string   `yaml:"customInstructions,omitempty"`
	ExcludePatterns    []string `yaml:"excludePatterns,omitempty"`
	WholeFilePatterns  []string `yaml:"wholeFilePatterns,omitempty"`
	Skills             []string `yaml:"skills,omitempty"`
}

// DefaultRepoConfig returns the zero-value overrides applied when a repo
// carries no warden.yml.
func DefaultRepoConfig() *RepoConfig {
	return &RepoConfig{}
}
