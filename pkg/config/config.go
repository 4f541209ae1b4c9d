// Package config defines ragpref's typed configuration, mirroring the
// teacher's pkg/config package structure: a single struct tagged for both
// YAML and koanf unmarshaling plus validator/v10 struct tags, with its own
// Validate() for the cross-field checks struct tags can't express.
package config

import (
	"fmt"
	"time"
)

// Config is the complete ragpref configuration: the §6 pipeline knobs plus
// the ambient logging, backend, bus, and sink settings the teacher would
// carry alongside any domain config.
type Config struct {
	Log       LogConfig      `yaml:"log" koanf:"log"`
	Pipeline  PipelineConfig `yaml:"pipeline" koanf:"pipeline"`
	Retriever BackendConfig  `yaml:"retriever" koanf:"retriever"`
	Generator BackendConfig  `yaml:"generator" koanf:"generator"`
	Judge     JudgeConfig    `yaml:"judge" koanf:"judge"`
	Bus       BusConfig      `yaml:"bus" koanf:"bus"`
	Sink      SinkConfig     `yaml:"sink" koanf:"sink"`
}

// LogConfig controls pkg/logging.Configure.
type LogConfig struct {
	Level  string `yaml:"level" koanf:"level" validate:"omitempty,oneof=debug info warn error"`
	Format string `yaml:"format" koanf:"format" validate:"omitempty,oneof=json text"`
}

// SamplingProfile is one entry of §6's SAMPLING_PROFILES schedule.
type SamplingProfile struct {
	Temperature float64 `yaml:"temperature" koanf:"temperature" validate:"gte=0,lte=2"`
	TopP        float64 `yaml:"top_p,omitempty" koanf:"top_p" validate:"gte=0,lte=1"`
	MaxTokens   int     `yaml:"max_tokens,omitempty" koanf:"max_tokens" validate:"gte=0"`
}

// PipelineConfig holds §6's table of pipeline-wide tunables.
type PipelineConfig struct {
	NumCandidates      int               `yaml:"num_candidates" koanf:"num_candidates" validate:"gte=1"`
	SamplingProfiles   []SamplingProfile `yaml:"sampling_profiles" koanf:"sampling_profiles" validate:"required,min=1,dive"`
	MinScoreDiff       float64           `yaml:"min_score_diff" koanf:"min_score_diff" validate:"gte=0,lte=1"`
	MinChosenScore     float64           `yaml:"min_chosen_score" koanf:"min_chosen_score" validate:"gte=0,lte=1"`
	EnableVerbatimGate bool              `yaml:"enable_verbatim_gate" koanf:"enable_verbatim_gate"`
	BatchTimeout       string            `yaml:"batch_timeout" koanf:"batch_timeout"`
	MaxOpenBatches     int               `yaml:"max_open_batches" koanf:"max_open_batches" validate:"gte=1"`
	JudgeConcurrency   int               `yaml:"judge_concurrency" koanf:"judge_concurrency" validate:"gte=1"`
	RetrievalTopK      int               `yaml:"retrieval_top_k" koanf:"retrieval_top_k" validate:"gte=1"`
}

// BackendConfig names a registry-resolved backend (e.g. "openai.Chat",
// "bedrock.InvokeModel", "memstore.Store") plus whatever settings its
// factory needs, mirroring the teacher's GeneratorConfig-per-backend shape
// generalized to any registry.Config-driven backend.
type BackendConfig struct {
	Backend  string         `yaml:"backend" koanf:"backend" validate:"required"`
	Settings map[string]any `yaml:"settings,omitempty" koanf:"settings"`
}

// JudgeConfig configures the verifier's judge: its scoring backend (empty
// means heuristic-only) plus whether to cache scores by (question,
// contexts, answer).
type JudgeConfig struct {
	Backend      string         `yaml:"backend,omitempty" koanf:"backend"`
	Settings     map[string]any `yaml:"settings,omitempty" koanf:"settings"`
	CacheEnabled bool           `yaml:"cache_enabled" koanf:"cache_enabled"`
}

// BusConfig configures the event bus backend.
type BusConfig struct {
	Backend       string `yaml:"backend" koanf:"backend" validate:"required"`
	MaxDeliveries int    `yaml:"max_deliveries" koanf:"max_deliveries" validate:"gte=1"`
}

// SinkConfig configures the SFT/DPO JSONL sinks' shared directory, file
// prefixes, and fsync policy.
type SinkConfig struct {
	Dir       string `yaml:"dir" koanf:"dir" validate:"required"`
	SFTPrefix string `yaml:"sft_prefix" koanf:"sft_prefix"`
	DPOPrefix string `yaml:"dpo_prefix" koanf:"dpo_prefix"`
	Sync      string `yaml:"sync" koanf:"sync" validate:"omitempty,oneof=every batch off"`
}

// Default returns §6's default configuration.
func Default() *Config {
	return &Config{
		Log: LogConfig{Level: "info", Format: "text"},
		Pipeline: PipelineConfig{
			NumCandidates: 3,
			SamplingProfiles: []SamplingProfile{
				{Temperature: 0.2},
				{Temperature: 0.7},
				{Temperature: 1.0},
			},
			MinScoreDiff:       0.3,
			MinChosenScore:     0.7,
			EnableVerbatimGate: true,
			BatchTimeout:       "30m",
			MaxOpenBatches:     10_000,
			JudgeConcurrency:   4,
			RetrievalTopK:      4,
		},
		Retriever: BackendConfig{Backend: "memstore.Store"},
		Generator: BackendConfig{Backend: "testgen.Echo"},
		Judge:     JudgeConfig{CacheEnabled: true},
		Bus:       BusConfig{Backend: "memory", MaxDeliveries: 5},
		Sink: SinkConfig{
			Dir:       "./data",
			SFTPrefix: "training_data",
			DPOPrefix: "dpo_data",
			Sync:      "every",
		},
	}
}

// Validate checks cross-field invariants struct tags can't express:
// NUM_CANDIDATES must match the sampling schedule's length, and
// BATCH_TIMEOUT must parse as a duration.
func (c *Config) Validate() error {
	if len(c.Pipeline.SamplingProfiles) != c.Pipeline.NumCandidates {
		return fmt.Errorf("pipeline.num_candidates (%d) must equal len(pipeline.sampling_profiles) (%d)",
			c.Pipeline.NumCandidates, len(c.Pipeline.SamplingProfiles))
	}
	if _, err := time.ParseDuration(c.Pipeline.BatchTimeout); err != nil {
		return fmt.Errorf("invalid pipeline.batch_timeout: %w", err)
	}
	return nil
}

// BatchTimeoutDuration parses Pipeline.BatchTimeout, already validated by
// Validate to parse cleanly.
func (c *Config) BatchTimeoutDuration() time.Duration {
	d, _ := time.ParseDuration(c.Pipeline.BatchTimeout)
	return d
}
