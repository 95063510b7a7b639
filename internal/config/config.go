package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/wardenhq/warden/internal/core"
	"github.com/wardenhq/warden/internal/logger"
)

const (
	defaultSkillCacheTTL = 86400 * time.Second
	envStateDir          = "WARDEN_STATE_DIR"
	envSkillCacheTTL     = "WARDEN_SKILL_CACHE_TTL"
)

// Config is the top-level configuration for one pipeline run.
type Config struct {
	Logging     logger.Config     `mapstructure:"logging"`
	GitHub      GitHubConfig      `mapstructure:"github"`
	Concurrency ConcurrencyConfig `mapstructure:"concurrency"`
	Hunks       HunkConfig        `mapstructure:"hunks"`
	Context     ContextConfig     `mapstructure:"context"`
	Review      ReviewConfig      `mapstructure:"review"`
	RemoteCache RemoteCacheConfig `mapstructure:"remote_cache"`
	AI          AIConfig          `mapstructure:"ai"`
}

// AIConfig selects and configures the model provider backing the LLM
// caller. Only the generator side is carried here; there is no
// retrieval/embedding index in this pipeline.
type AIConfig struct {
	Provider       string `mapstructure:"provider"`
	GeneratorModel string `mapstructure:"generator_model"`
	GeminiAPIKey   string `mapstructure:"gemini_api_key"`
	OllamaHost     string `mapstructure:"ollama_host"`
}

// GitHubConfig configures the GitHub App transport used to authenticate
// as an installation. PAT-based local/CLI runs bypass this entirely.
type GitHubConfig struct {
	AppID          int64  `mapstructure:"app_id"`
	PrivateKeyPath string `mapstructure:"private_key_path"`
	WebhookSecret  string `mapstructure:"webhook_secret"`
}

// ConcurrencyConfig bounds the three nested concurrency layers: one skill
// task runs per slot, each skill fans out across files, each file fans out
// across hunks.
type ConcurrencyConfig struct {
	SkillConcurrency  int `mapstructure:"skill_concurrency"`
	FileConcurrency   int `mapstructure:"file_concurrency"`
	HunkConcurrency   int `mapstructure:"hunk_concurrency"`
	BatchDelayMs      int `mapstructure:"batch_delay_ms"`
	SkillBatchDelayMs int `mapstructure:"skill_batch_delay_ms"`
}

// HunkConfig configures the hunk coalescer.
type HunkConfig struct {
	Enabled      bool `mapstructure:"enabled"`
	MaxGapLines  int  `mapstructure:"max_gap_lines"`
	MaxChunkSize int  `mapstructure:"max_chunk_size"`
}

// ContextConfig configures the context expander.
type ContextConfig struct {
	ContextLines int `mapstructure:"context_lines"`
}

// ReviewConfig configures rendering and dedup thresholds.
type ReviewConfig struct {
	CommentOn          core.SeverityThreshold `mapstructure:"comment_on"`
	FailOn             core.SeverityThreshold `mapstructure:"fail_on"`
	MaxFindings        int                    `mapstructure:"max_findings"`
	GroupByFile        bool                   `mapstructure:"group_by_file"`
	IncludeSuggestions bool                   `mapstructure:"include_suggestions"`
	HashOnlyDedup      bool                   `mapstructure:"hash_only_dedup"`
}

// RemoteCacheConfig configures the remote skill cache.
type RemoteCacheConfig struct {
	StateDir string        `mapstructure:"state_dir"`
	TTL      time.Duration `mapstructure:"ttl"`
}

// LoadConfig loads configuration using the hierarchy: trigger options
// (applied by the caller afterward, since those come from the event
// itself) take precedence over environment variables, which take
// precedence over warden.yml, which takes precedence over built-in
// defaults.
func LoadConfig(repoPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("warden")
	v.SetConfigType("yaml")
	v.AddConfigPath(repoPath)
	v.AddConfigPath(".")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read warden.yml: %w", err)
		}
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if dir := v.GetString(envStateDir); dir != "" {
		cfg.RemoteCache.StateDir = dir
	}
	if ttlRaw := v.GetString(envSkillCacheTTL); ttlRaw != "" {
		secs, err := strconv.Atoi(ttlRaw)
		if err != nil || secs <= 0 {
			return nil, core.NewConfigError(fmt.Sprintf("invalid %s value %q", envSkillCacheTTL, ttlRaw), err)
		}
		cfg.RemoteCache.TTL = time.Duration(secs) * time.Second
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("logging.output", "stdout")

	v.SetDefault("github.app_id", 0)
	v.SetDefault("github.private_key_path", "")
	v.SetDefault("github.webhook_secret", "")

	v.SetDefault("concurrency.skill_concurrency", 1)
	v.SetDefault("concurrency.file_concurrency", 5)
	v.SetDefault("concurrency.hunk_concurrency", 5)
	v.SetDefault("concurrency.batch_delay_ms", 0)
	v.SetDefault("concurrency.skill_batch_delay_ms", 0)

	v.SetDefault("hunks.enabled", true)
	v.SetDefault("hunks.max_gap_lines", 10)
	v.SetDefault("hunks.max_chunk_size", 10000)

	v.SetDefault("context.context_lines", 10)

	v.SetDefault("review.comment_on", string(core.SeverityLow))
	v.SetDefault("review.fail_on", string(core.ThresholdOff))
	v.SetDefault("review.max_findings", 50)
	v.SetDefault("review.group_by_file", true)
	v.SetDefault("review.include_suggestions", true)
	v.SetDefault("review.hash_only_dedup", false)

	v.SetDefault("remote_cache.state_dir", "")
	v.SetDefault("remote_cache.ttl", defaultSkillCacheTTL.String())

	v.SetDefault("ai.provider", "ollama")
	v.SetDefault("ai.generator_model", "")
	v.SetDefault("ai.gemini_api_key", "")
	v.SetDefault("ai.ollama_host", "http://localhost:11434")
}
