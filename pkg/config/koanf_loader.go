package config

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Load builds a Config with CLI-flags > environment > config file >
// defaults precedence, the same layering and koanf/validator stack as the
// teacher's LoadConfigKoanf. overrides (typically parsed CLI flags) takes
// the highest priority when non-nil; pass nil if there are none.
func Load(configPath string, overrides map[string]any) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaultsMap(), "."), nil); err != nil {
		return nil, fmt.Errorf("config: loading defaults: %w", err)
	}

	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("config: loading file %s: %w", configPath, err)
		}
	}

	// RAGPREF_PIPELINE__MIN_SCORE_DIFF -> pipeline.min_score_diff
	// (double underscore becomes a dot, single underscore is preserved).
	err := k.Load(env.Provider("RAGPREF_", ".", func(s string) string {
		s = strings.TrimPrefix(s, "RAGPREF_")
		s = strings.ReplaceAll(s, "__", ".")
		return strings.ToLower(s)
	}), nil)
	if err != nil {
		return nil, fmt.Errorf("config: loading environment: %w", err)
	}

	if len(overrides) > 0 {
		if err := k.Load(confmap.Provider(overrides, "."), nil); err != nil {
			return nil, fmt.Errorf("config: loading overrides: %w", err)
		}
	}

	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("config: unmarshal failed: %w", err)
	}

	v := validator.New()
	if err := v.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("config: struct validation failed: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: validation failed: %w", err)
	}

	return &cfg, nil
}

// defaultsMap flattens Default() into the nested key shape koanf expects,
// keyed exactly like the koanf struct tags in config.go.
func defaultsMap() map[string]any {
	d := Default()
	profiles := make([]map[string]any, len(d.Pipeline.SamplingProfiles))
	for i, p := range d.Pipeline.SamplingProfiles {
		profiles[i] = map[string]any{"temperature": p.Temperature, "top_p": p.TopP, "max_tokens": p.MaxTokens}
	}

	return map[string]any{
		"log": map[string]any{
			"level":  d.Log.Level,
			"format": d.Log.Format,
		},
		"pipeline": map[string]any{
			"num_candidates":       d.Pipeline.NumCandidates,
			"sampling_profiles":    profiles,
			"min_score_diff":       d.Pipeline.MinScoreDiff,
			"min_chosen_score":     d.Pipeline.MinChosenScore,
			"enable_verbatim_gate": d.Pipeline.EnableVerbatimGate,
			"batch_timeout":        d.Pipeline.BatchTimeout,
			"max_open_batches":     d.Pipeline.MaxOpenBatches,
			"judge_concurrency":    d.Pipeline.JudgeConcurrency,
			"retrieval_top_k":      d.Pipeline.RetrievalTopK,
		},
		"retriever": map[string]any{"backend": d.Retriever.Backend},
		"generator": map[string]any{"backend": d.Generator.Backend},
		"judge": map[string]any{
			"cache_enabled": d.Judge.CacheEnabled,
		},
		"bus": map[string]any{"backend": d.Bus.Backend, "max_deliveries": d.Bus.MaxDeliveries},
		"sink": map[string]any{
			"dir":        d.Sink.Dir,
			"sft_prefix": d.Sink.SFTPrefix,
			"dpo_prefix": d.Sink.DPOPrefix,
			"sync":       d.Sink.Sync,
		},
	}
}
