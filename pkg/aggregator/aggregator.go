// Package aggregator implements §4.E, the hardest stage of the pipeline:
// it correlates independently-arriving answer.generated and
// verification.completed events into per-batch state, decides when a
// batch is complete (or has timed out), and on retirement emits one SFT
// record per scored candidate and hands the batch to the DPO selector.
//
// Each open batch is its own small actor — its own mutex, its own
// deadline timer — sharded across N independent maps so unrelated
// batches never contend on a shared lock, in the spirit of the teacher's
// pkg/registry.Registry[T] generalized here to a sharded variant keyed
// by a hash of batch_id instead of a type name.
package aggregator

import (
	"context"
	"hash/fnv"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/praetorian-inc/ragpref/pkg/bus"
	"github.com/praetorian-inc/ragpref/pkg/logging"
	"github.com/praetorian-inc/ragpref/pkg/metrics"
	"github.com/praetorian-inc/ragpref/pkg/pipeline"
	"github.com/praetorian-inc/ragpref/pkg/selector"
)

// DefaultShardCount bounds lock contention across concurrently open batches.
const DefaultShardCount = 16

// DefaultBatchTimeout is §6's BATCH_TIMEOUT default.
const DefaultBatchTimeout = 30 * time.Minute

// DefaultMaxOpenBatches is §6's MAX_OPEN_BATCHES default.
const DefaultMaxOpenBatches = 10_000

// DefaultRetiredLRUSize bounds how many recently-retired batch_ids the
// aggregator remembers, to discard late/duplicate events without
// reopening and double-retiring a batch.
const DefaultRetiredLRUSize = 50_000

// ConsumerGroup is the bus consumer group name the aggregator subscribes
// both topics under.
const ConsumerGroup = "aggregator"

// RecordSink is the narrow interface the aggregator needs from pkg/sink:
// just enough to append one JSON-marshalable record.
type RecordSink interface {
	Append(record any) error
}

// Config holds the tunables of §4.E / §6.
type Config struct {
	ShardCount     int
	BatchTimeout   time.Duration
	MaxOpenBatches int
	RetiredLRUSize int
}

// DefaultConfig returns §6's defaults.
func DefaultConfig() Config {
	return Config{
		ShardCount:     DefaultShardCount,
		BatchTimeout:   DefaultBatchTimeout,
		MaxOpenBatches: DefaultMaxOpenBatches,
		RetiredLRUSize: DefaultRetiredLRUSize,
	}
}

type shard struct {
	mu      sync.Mutex
	batches map[string]*openBatch
}

// Aggregator correlates answer.generated and verification.completed
// events by batch_id and retires completed (or timed-out) batches into
// the SFT and DPO sinks.
type Aggregator struct {
	cfg      Config
	shards   []*shard
	open     atomic.Int64
	retired  *lru.Cache[string, struct{}]
	bus      bus.EventBus
	selector *selector.Selector
	sftSink  RecordSink
	dpoSink  RecordSink
	metrics  *metrics.Metrics
	logger   *slog.Logger

	now func() time.Time
}

// New builds an Aggregator. cfg's zero-valued fields fall back to
// DefaultConfig's values.
func New(cfg Config, b bus.EventBus, sel *selector.Selector, sftSink, dpoSink RecordSink, m *metrics.Metrics) (*Aggregator, error) {
	d := DefaultConfig()
	if cfg.ShardCount <= 0 {
		cfg.ShardCount = d.ShardCount
	}
	if cfg.BatchTimeout <= 0 {
		cfg.BatchTimeout = d.BatchTimeout
	}
	if cfg.MaxOpenBatches <= 0 {
		cfg.MaxOpenBatches = d.MaxOpenBatches
	}
	if cfg.RetiredLRUSize <= 0 {
		cfg.RetiredLRUSize = d.RetiredLRUSize
	}

	retired, err := lru.New[string, struct{}](cfg.RetiredLRUSize)
	if err != nil {
		return nil, err
	}

	shards := make([]*shard, cfg.ShardCount)
	for i := range shards {
		shards[i] = &shard{batches: make(map[string]*openBatch)}
	}

	return &Aggregator{
		cfg:      cfg,
		shards:   shards,
		retired:  retired,
		bus:      b,
		selector: sel,
		sftSink:  sftSink,
		dpoSink:  dpoSink,
		metrics:  m,
		logger:   slog.Default(),
		now:      time.Now,
	}, nil
}

// Start subscribes the aggregator to both topics under ConsumerGroup.
func (a *Aggregator) Start(ctx context.Context) error {
	if err := a.bus.Subscribe(ctx, bus.TopicAnswerGenerated, ConsumerGroup, a.handleAnswerGenerated); err != nil {
		return err
	}
	return a.bus.Subscribe(ctx, bus.TopicVerificationComplete, ConsumerGroup, a.handleVerificationCompleted)
}

func (a *Aggregator) shardFor(batchID string) *shard {
	h := fnv.New32a()
	h.Write([]byte(batchID))
	return a.shards[h.Sum32()%uint32(len(a.shards))]
}

// getOrOpen returns the open batch for batchID, creating and arming it
// (including its deadline timer) if this is the first event seen for it.
// It returns ok=false if batchID was already retired (late event, discard)
// or if MAX_OPEN_BATCHES backpressure rejects a brand-new batch.
func (a *Aggregator) getOrOpen(batchID string) (*openBatch, bool) {
	if _, wasRetired := a.retired.Get(batchID); wasRetired {
		return nil, false
	}

	s := a.shardFor(batchID)
	s.mu.Lock()
	defer s.mu.Unlock()

	if b, ok := s.batches[batchID]; ok {
		return b, true
	}

	if a.open.Load() >= int64(a.cfg.MaxOpenBatches) {
		return nil, false
	}

	b := newOpenBatch(batchID, a.now(), a.cfg.BatchTimeout)
	s.batches[batchID] = b
	a.open.Add(1)
	if a.metrics != nil {
		atomic.AddInt64(&a.metrics.BatchesOpened, 1)
	}
	b.timer = time.AfterFunc(a.cfg.BatchTimeout, func() { a.retire(batchID, true) })
	return b, true
}

func (a *Aggregator) handleAnswerGenerated(ctx context.Context, d bus.Delivery) error {
	payload, ok := d.Envelope.Payload.(pipeline.AnswerGeneratedPayload)
	if !ok {
		a.logger.Error("aggregator: malformed answer.generated payload, dropping",
			"correlation_id", d.Envelope.CorrelationID, "batch_id", d.Envelope.BatchID)
		return nil
	}

	b, ok := a.getOrOpen(payload.BatchID)
	if !ok {
		a.logDiscard(payload.CorrelationID, payload.BatchID, "answer.generated")
		return nil
	}

	b.setMetaFromAnswerEvent(payload.CorrelationID, payload.Question, payload.Contexts, payload.ExpectedCount)
	candidate := pipeline.Candidate{
		CandidateIndex: payload.CandidateIndex,
		Text:           payload.Answer,
		SamplingParams: payload.SamplingParams,
		AnswerID:       payload.AnswerID,
		CreatedAt:      d.Envelope.Timestamp,
	}
	b.upsertAnswer(candidate)

	a.maybeRetireOnCompletion(b)
	return nil
}

func (a *Aggregator) handleVerificationCompleted(ctx context.Context, d bus.Delivery) error {
	payload, ok := d.Envelope.Payload.(pipeline.VerificationCompletedPayload)
	if !ok {
		a.logger.Error("aggregator: malformed verification.completed payload, dropping",
			"correlation_id", d.Envelope.CorrelationID, "batch_id", d.Envelope.BatchID)
		return nil
	}

	b, ok := a.getOrOpen(payload.BatchID)
	if !ok {
		a.logDiscard(payload.CorrelationID, payload.BatchID, "verification.completed")
		return nil
	}

	scored := pipeline.ScoredCandidate{
		AnswerID:     payload.AnswerID,
		BatchID:      payload.BatchID,
		Faithfulness: payload.Faithfulness,
		Relevancy:    payload.Relevancy,
		Overall:      (payload.Faithfulness + payload.Relevancy) / 2,
		Confidence:   payload.Confidence,
		JudgeMode:    payload.JudgeMode,
		ScoredAt:     d.Envelope.Timestamp,
	}
	b.upsertScore(scored)

	a.maybeRetireOnCompletion(b)
	return nil
}

func (a *Aggregator) maybeRetireOnCompletion(b *openBatch) {
	if b.isComplete() {
		a.retire(b.batchID, false)
	}
}

func (a *Aggregator) logDiscard(correlationID, batchID, eventType string) {
	a.logger.Debug("aggregator: discarding event for unknown or retired batch",
		"batch_id", batchID, "correlation_id", correlationID, "event_type", eventType)
}

// retire finalizes a batch exactly once: emits SFT records for every
// candidate with both an answer and a score, invokes the DPO selector
// over that same set, records the batch_id in the retired-LRU so late
// duplicate events are discarded rather than reopening it, and removes it
// from its shard.
func (a *Aggregator) retire(batchID string, timedOut bool) {
	s := a.shardFor(batchID)
	s.mu.Lock()
	b, ok := s.batches[batchID]
	if ok {
		delete(s.batches, batchID)
		a.open.Add(-1)
	}
	s.mu.Unlock()
	if !ok {
		return // already retired by the other path (completion vs. timer race)
	}

	b.retireOnce.Do(func() {
		if b.timer != nil {
			b.timer.Stop()
		}
		a.retired.Add(batchID, struct{}{})
		a.finalize(b, timedOut)
	})
}

func (a *Aggregator) finalize(b *openBatch, timedOut bool) {
	log := logging.WithRequest(a.logger, b.correlationID, b.batchID)
	completed := b.completedCandidates()

	if timedOut {
		answers, scores := b.counts()
		log.Warn("aggregator: batch timed out, retiring with partial results",
			"answers", answers, "scores", scores, "expected_count", b.expectedCount,
			"completed", len(completed))
		if a.metrics != nil {
			atomic.AddInt64(&a.metrics.BatchesTimedOut, 1)
		}
	} else {
		log.Debug("aggregator: batch complete, retiring", "completed", len(completed))
	}

	for _, c := range completed {
		record := pipeline.SFTRecord{
			Question: b.question,
			Answer:   c.Candidate.Text,
			Contexts: b.contexts,
			Verification: pipeline.SFTVerification{
				Faithfulness: c.Score.Faithfulness,
				Relevancy:    c.Score.Relevancy,
				Overall:      c.Score.Overall,
				Confidence:   c.Score.Confidence,
			},
			Metadata: pipeline.SFTMetadata{
				BatchID:        b.batchID,
				CandidateIndex: c.Candidate.CandidateIndex,
				SamplingParams: c.Candidate.SamplingParams,
				JudgeMode:      c.Score.JudgeMode,
			},
			Timestamp: a.now(),
		}
		if err := a.sftSink.Append(record); err != nil {
			log.Error("aggregator: writing SFT record", "answer_id", c.Candidate.AnswerID, "error", err)
			continue
		}
		if a.metrics != nil {
			atomic.AddInt64(&a.metrics.SFTEmitted, 1)
		}
	}

	if a.metrics != nil {
		atomic.AddInt64(&a.metrics.BatchesRetired, 1)
	}

	record, reason, ok := a.selector.Select(b.question, b.contexts, completed)
	if !ok {
		log.Debug("aggregator: no DPO pair emitted", "reason", reason)
		a.bumpGateMetric(reason)
		return
	}
	if err := a.dpoSink.Append(record); err != nil {
		log.Error("aggregator: writing DPO record", "error", err)
		return
	}
	if a.metrics != nil {
		atomic.AddInt64(&a.metrics.DPOEmitted, 1)
	}
}

func (a *Aggregator) bumpGateMetric(reason selector.Reason) {
	if a.metrics == nil {
		return
	}
	switch reason {
	case selector.ReasonScoreDiffTooSmall:
		atomic.AddInt64(&a.metrics.GateRejectionsScoreDiff, 1)
	case selector.ReasonChosenScoreTooLow:
		atomic.AddInt64(&a.metrics.GateRejectionsChosenScore, 1)
	case selector.ReasonChosenIsVerbatim:
		atomic.AddInt64(&a.metrics.GateRejectionsVerbatim, 1)
	case selector.ReasonInsufficientCandidates:
		atomic.AddInt64(&a.metrics.GateRejectionsInsufficient, 1)
	}
}

// OpenBatches reports the current number of in-flight batches, for
// MAX_OPEN_BATCHES backpressure monitoring.
func (a *Aggregator) OpenBatches() int64 {
	return a.open.Load()
}
