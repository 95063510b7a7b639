package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/wardenhq/warden/internal/core"
)

var (
	ErrConfigNotFound = errors.New("repo config file not found")
	ErrConfigParsing  = errors.New("repo config parsing failed")
)

// LoadRepoConfig loads and parses the warden.yml file from a repository
// path. A missing file is not an error: callers get the zero-value
// overrides back alongside ErrConfigNotFound so they can choose to ignore
// it.
func LoadRepoConfig(repoPath string) (*core.RepoConfig, error) {
	configPath := filepath.Join(repoPath, "warden.yml")
	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return core.DefaultRepoConfig(), ErrConfigNotFound
		}
		return nil, fmt.Errorf("failed to read warden.yml: %w", err)
	}

	cfg := core.DefaultRepoConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfigParsing, err)
	}
	return cfg, nil
}
