// Package orchestrator implements §4.H: ask_multi, the single synchronous
// entry point a caller invokes with a question. It mints a batch, retrieves
// context, fans out N candidate generations concurrently (grounded on
// pkg/scanner.Scanner.Run's errgroup.SetLimit fan-out, generalized from
// "run every probe, collect successes and failures" to "run every sampling
// profile, drop failures and keep going"), publishes one answer.generated
// event per surviving candidate, and returns immediately — verification,
// aggregation, and selection all happen asynchronously off the event bus.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/praetorian-inc/ragpref/pkg/bus"
	"github.com/praetorian-inc/ragpref/pkg/generator"
	"github.com/praetorian-inc/ragpref/pkg/llm"
	"github.com/praetorian-inc/ragpref/pkg/logging"
	"github.com/praetorian-inc/ragpref/pkg/metrics"
	"github.com/praetorian-inc/ragpref/pkg/pipeline"
	"github.com/praetorian-inc/ragpref/pkg/retriever"
)

// DefaultCandidateTimeout bounds a single candidate's generation call.
const DefaultCandidateTimeout = 45 * time.Second

// DefaultTopK is how many passages the retriever returns per question.
const DefaultTopK = 4

// ErrAllCandidatesFailed is returned when every sampling profile's
// generation call failed or timed out, leaving nothing to publish.
var ErrAllCandidatesFailed = errors.New("orchestrator: all candidates failed, nothing to publish")

// DefaultSamplingProfiles is §6's NUM_CANDIDATES=3 default schedule.
func DefaultSamplingProfiles() []pipeline.SamplingParams {
	return []pipeline.SamplingParams{
		{Temperature: 0.2},
		{Temperature: 0.7},
		{Temperature: 1.0},
	}
}

// Config holds ask_multi's tunables.
type Config struct {
	SamplingProfiles []pipeline.SamplingParams
	CandidateTimeout time.Duration
	// Concurrency bounds simultaneous candidate generations; <=0 means one
	// goroutine per sampling profile (errgroup's default, unlimited).
	Concurrency int
	TopK        int
}

// DefaultConfig returns §6's defaults.
func DefaultConfig() Config {
	return Config{
		SamplingProfiles: DefaultSamplingProfiles(),
		CandidateTimeout: DefaultCandidateTimeout,
		TopK:             DefaultTopK,
	}
}

// Response is ask_multi's synchronous return value: the batch identity and
// whatever candidates survived generation, before any verification happens.
type Response struct {
	BatchID       string
	CorrelationID string
	Candidates    []pipeline.Candidate
}

// Orchestrator drives one question through retrieval, fan-out generation,
// and answer.generated publication.
type Orchestrator struct {
	retriever *retriever.Client
	generator *generator.Generator
	bus       bus.EventBus
	cfg       Config
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

// New builds an Orchestrator. cfg's zero-valued SamplingProfiles/TopK fall
// back to DefaultConfig's values.
func New(r *retriever.Client, g *generator.Generator, b bus.EventBus, cfg Config, m *metrics.Metrics) *Orchestrator {
	if len(cfg.SamplingProfiles) == 0 {
		cfg.SamplingProfiles = DefaultSamplingProfiles()
	}
	if cfg.CandidateTimeout <= 0 {
		cfg.CandidateTimeout = DefaultCandidateTimeout
	}
	if cfg.TopK <= 0 {
		cfg.TopK = DefaultTopK
	}
	return &Orchestrator{retriever: r, generator: g, bus: b, cfg: cfg, metrics: m, logger: slog.Default()}
}

// AskMulti retrieves context for question, generates one candidate per
// configured sampling profile, and publishes an answer.generated event for
// each candidate that survived. It returns ErrAllCandidatesFailed only when
// every profile failed; a partial batch (N shrunk but > 0) is not an error.
func (o *Orchestrator) AskMulti(ctx context.Context, question string) (*Response, error) {
	batchID := uuid.NewString()
	correlationID := uuid.NewString()
	log := logging.WithRequest(o.logger, correlationID, batchID)

	contexts, err := o.retriever.Retrieve(ctx, question, o.cfg.TopK)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: retrieving context: %w", err)
	}

	candidates := o.generateCandidates(ctx, log, question, contexts)
	if len(candidates) == 0 {
		return nil, ErrAllCandidatesFailed
	}

	expectedCount := len(candidates)
	for _, c := range candidates {
		envelope := pipeline.EventEnvelope{
			EventID:       uuid.NewString(),
			EventType:     pipeline.EventAnswerGenerated,
			CorrelationID: correlationID,
			BatchID:       batchID,
			Timestamp:     c.CreatedAt,
			Payload: pipeline.AnswerGeneratedPayload{
				CorrelationID:  correlationID,
				BatchID:        batchID,
				ExpectedCount:  expectedCount,
				CandidateIndex: c.CandidateIndex,
				AnswerID:       c.AnswerID,
				Question:       question,
				Answer:         c.Text,
				Contexts:       contexts,
				SamplingParams: c.SamplingParams,
			},
		}
		if err := o.bus.Publish(ctx, bus.TopicAnswerGenerated, batchID, envelope); err != nil {
			return nil, fmt.Errorf("orchestrator: publishing answer.generated: %w", err)
		}
	}

	log.Debug("orchestrator: batch published", "requested", len(o.cfg.SamplingProfiles), "surviving", expectedCount)
	return &Response{BatchID: batchID, CorrelationID: correlationID, Candidates: candidates}, nil
}

func (o *Orchestrator) generateCandidates(ctx context.Context, log *slog.Logger, question string, contexts []pipeline.Passage) []pipeline.Candidate {
	var mu sync.Mutex
	candidates := make([]pipeline.Candidate, 0, len(o.cfg.SamplingProfiles))

	g, gctx := errgroup.WithContext(ctx)
	if o.cfg.Concurrency > 0 {
		g.SetLimit(o.cfg.Concurrency)
	}

	for i, params := range o.cfg.SamplingProfiles {
		i, params := i, params
		g.Go(func() error {
			candCtx := gctx
			if o.cfg.CandidateTimeout > 0 {
				var cancel context.CancelFunc
				candCtx, cancel = context.WithTimeout(gctx, o.cfg.CandidateTimeout)
				defer cancel()
			}

			text, err := o.generator.Generate(candCtx, question, contexts, llm.CompletionParams{
				Temperature: params.Temperature,
				TopP:        params.TopP,
				MaxTokens:   params.MaxTokens,
				Seed:        params.Seed,
			})
			if err != nil {
				log.Warn("orchestrator: dropping candidate", "candidate_index", i, "temperature", params.Temperature, "error", err)
				if o.metrics != nil {
					atomic.AddInt64(&o.metrics.CandidatesDropped, 1)
				}
				return nil // a dropped candidate shrinks N, it never fails the batch
			}

			candidate := pipeline.Candidate{
				CandidateIndex: i,
				Text:           text,
				SamplingParams: params,
				AnswerID:       uuid.NewString(),
				CreatedAt:      time.Now(),
			}
			mu.Lock()
			candidates = append(candidates, candidate)
			mu.Unlock()
			if o.metrics != nil {
				atomic.AddInt64(&o.metrics.CandidatesGenerated, 1)
			}
			return nil
		})
	}

	_ = g.Wait() // every g.Go above only ever returns nil; ctx cancellation is observed via gctx, not an error here

	sort.Slice(candidates, func(i, j int) bool { return candidates[i].CandidateIndex < candidates[j].CandidateIndex })
	return candidates
}
