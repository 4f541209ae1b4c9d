package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/praetorian-inc/ragpref/internal/bus/memory"
	"github.com/praetorian-inc/ragpref/internal/retriever/memstore"
	"github.com/praetorian-inc/ragpref/pkg/aggregator"
	"github.com/praetorian-inc/ragpref/pkg/config"
	"github.com/praetorian-inc/ragpref/pkg/generator"
	"github.com/praetorian-inc/ragpref/pkg/judge"
	"github.com/praetorian-inc/ragpref/pkg/llm"
	"github.com/praetorian-inc/ragpref/pkg/logging"
	"github.com/praetorian-inc/ragpref/pkg/metrics"
	"github.com/praetorian-inc/ragpref/pkg/orchestrator"
	"github.com/praetorian-inc/ragpref/pkg/pipeline"
	"github.com/praetorian-inc/ragpref/pkg/registry"
	"github.com/praetorian-inc/ragpref/pkg/retriever"
	"github.com/praetorian-inc/ragpref/pkg/selector"
	"github.com/praetorian-inc/ragpref/pkg/sink"
	"github.com/praetorian-inc/ragpref/pkg/verifier"
)

// AskCmd drives one ask_multi call through the full asynchronous pipeline
// against local, in-process backends, polling the aggregator until the
// resulting batch retires (or PollTimeout elapses).
type AskCmd struct {
	Question string `arg:"" help:"Question to answer." required:""`

	ConfigFile string `help:"YAML config file path." type:"existingfile" name:"config-file"`
	Generator  string `help:"Override the generator backend name (e.g. testgen.Echo, openai.Chat)."`

	PollTimeout time.Duration `help:"How long to wait for the batch to retire." default:"2m"`
}

func (a *AskCmd) Run() error {
	cfg, err := config.Load(a.ConfigFile, a.overrides())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	logging.Configure(logging.ParseLevel(cfg.Log.Level), cfg.Log.Format, os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := &metrics.Metrics{}

	b := memory.New(cfg.Bus.MaxDeliveries)
	defer b.Close()

	retrieverClient, err := buildRetriever(cfg)
	if err != nil {
		return err
	}

	genCompleter, err := llm.Create(cfg.Generator.Backend, registry.Config(cfg.Generator.Settings))
	if err != nil {
		return fmt.Errorf("creating generator backend %q: %w", cfg.Generator.Backend, err)
	}
	gen := generator.New(genCompleter)

	var judgeCompleter llm.Completer
	if cfg.Judge.Backend != "" {
		judgeCompleter, err = llm.Create(cfg.Judge.Backend, registry.Config(cfg.Judge.Settings))
		if err != nil {
			return fmt.Errorf("creating judge backend %q: %w", cfg.Judge.Backend, err)
		}
	}
	j := judge.New(judgeCompleter, judge.WithCache(cfg.Judge.CacheEnabled))

	v := verifier.New(j, b, cfg.Pipeline.JudgeConcurrency)
	if err := v.Start(ctx); err != nil {
		return fmt.Errorf("starting verifier: %w", err)
	}

	sel := selector.New(selector.Gates{
		MinScoreDiff:      cfg.Pipeline.MinScoreDiff,
		MinChosenScore:    cfg.Pipeline.MinChosenScore,
		VerbatimGate:      cfg.Pipeline.EnableVerbatimGate,
		VerbatimThreshold: selector.DefaultGates().VerbatimThreshold,
	})

	sftSink, err := sink.New(cfg.Sink.Dir, cfg.Sink.SFTPrefix, sink.SyncPolicy(cfg.Sink.Sync))
	if err != nil {
		return fmt.Errorf("opening SFT sink: %w", err)
	}
	defer sftSink.Close()

	dpoSink, err := sink.New(cfg.Sink.Dir, cfg.Sink.DPOPrefix, sink.SyncPolicy(cfg.Sink.Sync))
	if err != nil {
		return fmt.Errorf("opening DPO sink: %w", err)
	}
	defer dpoSink.Close()

	agg, err := aggregator.New(aggregator.Config{
		BatchTimeout:   cfg.BatchTimeoutDuration(),
		MaxOpenBatches: cfg.Pipeline.MaxOpenBatches,
	}, b, sel, sftSink, dpoSink, m)
	if err != nil {
		return fmt.Errorf("building aggregator: %w", err)
	}
	if err := agg.Start(ctx); err != nil {
		return fmt.Errorf("starting aggregator: %w", err)
	}

	orch := orchestrator.New(retrieverClient, gen, b, orchestrator.Config{
		SamplingProfiles: samplingProfiles(cfg),
		TopK:             cfg.Pipeline.RetrievalTopK,
	}, m)

	resp, err := orch.AskMulti(ctx, a.Question)
	if err != nil {
		return fmt.Errorf("ask_multi: %w", err)
	}

	fmt.Printf("batch %s: %d candidate(s) generated, awaiting verification...\n", resp.BatchID, len(resp.Candidates))
	waitForRetirement(ctx, m, a.PollTimeout)

	fmt.Printf("done: sft_emitted=%d dpo_emitted=%d batches_retired=%d batches_timed_out=%d\n",
		m.SFTEmitted, m.DPOEmitted, m.BatchesRetired, m.BatchesTimedOut)
	return nil
}

// overrides converts this command's CLI flags into a koanf-style override
// map, taking precedence over both the config file and the environment.
func (a *AskCmd) overrides() map[string]any {
	overrides := map[string]any{}
	if a.Generator != "" {
		overrides["generator"] = map[string]any{"backend": a.Generator}
	}
	return overrides
}

func samplingProfiles(cfg *config.Config) []pipeline.SamplingParams {
	profiles := make([]pipeline.SamplingParams, len(cfg.Pipeline.SamplingProfiles))
	for i, p := range cfg.Pipeline.SamplingProfiles {
		profiles[i] = pipeline.SamplingParams{Temperature: p.Temperature, TopP: p.TopP, MaxTokens: p.MaxTokens}
	}
	return profiles
}

// buildRetriever constructs the configured retriever backend. Only
// memstore.Store is wired today: it needs no external deployment, so it is
// seeded with a small built-in passage set for local exploration.
func buildRetriever(cfg *config.Config) (*retriever.Client, error) {
	if cfg.Retriever.Backend != "memstore.Store" {
		return nil, fmt.Errorf("unknown retriever backend %q (only memstore.Store is registered)", cfg.Retriever.Backend)
	}
	store := memstore.New(sampleDocuments()...)
	return retriever.New(store), nil
}

func sampleDocuments() []memstore.Document {
	return []memstore.Document{
		{SourceID: "doc-1", Text: "The event bus delivers messages at least once and retries up to MAX_DELIVERIES times before dead-lettering."},
		{SourceID: "doc-2", Text: "A batch retires once every expected candidate has both an answer and a score, or once its deadline elapses."},
		{SourceID: "doc-3", Text: "The DPO selector only emits a preference pair when the chosen and rejected candidates' scores differ by at least MIN_SCORE_DIFF."},
	}
}

// waitForRetirement polls m until at least one batch has retired (complete
// or timed out) or timeout elapses. It counts retirements rather than
// checking for zero open batches, since the just-submitted batch may not
// have been opened by the aggregator's consumer goroutine yet when polling
// starts.
func waitForRetirement(ctx context.Context, m *metrics.Metrics, timeout time.Duration) {
	deadline := time.After(timeout)
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()
	for {
		if m.BatchesRetired+m.BatchesTimedOut > 0 {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-deadline:
			fmt.Println("warning: timed out waiting for batch retirement")
			return
		case <-ticker.C:
		}
	}
}
