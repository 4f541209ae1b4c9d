// Package verifier implements §4.D: one answer.generated event in, one
// verification.completed event out, each handled independently. LLM judge
// calls are bounded by a semaphore (JUDGE_CONCURRENCY) built on
// golang.org/x/sync/semaphore, the same module the teacher depends on for
// errgroup.
package verifier

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/praetorian-inc/ragpref/pkg/bus"
	"github.com/praetorian-inc/ragpref/pkg/judge"
	"github.com/praetorian-inc/ragpref/pkg/logging"
	"github.com/praetorian-inc/ragpref/pkg/pipeline"
)

// DefaultJudgeConcurrency is §6's JUDGE_CONCURRENCY default.
const DefaultJudgeConcurrency = 4

// DefaultJudgeTimeout bounds a single judge call, per §5's suspension-point
// table.
const DefaultJudgeTimeout = 60 * time.Second

// ConsumerGroup is the bus consumer group name verifiers subscribe under.
const ConsumerGroup = "verifier"

// Verifier is one worker instance; many may run concurrently (in one
// process or many) since each event is handled in isolation.
type Verifier struct {
	judge        *judge.Judge
	bus          bus.EventBus
	sem          *semaphore.Weighted
	judgeTimeout time.Duration
	logger       *slog.Logger
}

// New builds a Verifier bounded to concurrency simultaneous judge calls.
// concurrency <= 0 uses DefaultJudgeConcurrency.
func New(j *judge.Judge, b bus.EventBus, concurrency int) *Verifier {
	if concurrency <= 0 {
		concurrency = DefaultJudgeConcurrency
	}
	return &Verifier{
		judge:        j,
		bus:          b,
		sem:          semaphore.NewWeighted(int64(concurrency)),
		judgeTimeout: DefaultJudgeTimeout,
		logger:       slog.Default(),
	}
}

// Start subscribes the verifier to answer.generated under ConsumerGroup.
func (v *Verifier) Start(ctx context.Context) error {
	return v.bus.Subscribe(ctx, bus.TopicAnswerGenerated, ConsumerGroup, v.handle)
}

func (v *Verifier) handle(ctx context.Context, d bus.Delivery) error {
	payload, ok := d.Envelope.Payload.(pipeline.AnswerGeneratedPayload)
	if !ok {
		v.logger.Error("verifier: malformed answer.generated payload, dropping",
			"correlation_id", d.Envelope.CorrelationID, "batch_id", d.Envelope.BatchID)
		return nil // drop, don't redeliver a payload that will never decode
	}

	log := logging.WithRequest(v.logger, payload.CorrelationID, payload.BatchID)

	if err := v.sem.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("verifier: acquiring judge slot: %w", err)
	}
	defer v.sem.Release(1)

	judgeCtx, cancel := context.WithTimeout(ctx, v.judgeTimeout)
	defer cancel()

	faithfulness, relevancy, mode := v.judge.Score(judgeCtx, payload.Question, payload.Contexts, payload.Answer)
	scored := pipeline.NewScoredCandidate(payload.AnswerID, payload.BatchID, faithfulness, relevancy, mode)

	log.Debug("verifier: scored candidate",
		"answer_id", payload.AnswerID, "faithfulness", faithfulness, "relevancy", relevancy,
		"confidence", scored.Confidence, "judge_mode", mode)

	envelope := pipeline.EventEnvelope{
		EventID:       uuid.NewString(),
		EventType:     pipeline.EventVerificationComplete,
		CorrelationID: payload.CorrelationID,
		BatchID:       payload.BatchID,
		Timestamp:     scored.ScoredAt,
		Payload: pipeline.VerificationCompletedPayload{
			CorrelationID: payload.CorrelationID,
			BatchID:       payload.BatchID,
			AnswerID:      payload.AnswerID,
			Faithfulness:  faithfulness,
			Relevancy:     relevancy,
			Confidence:    scored.Confidence,
			JudgeMode:     mode,
		},
	}

	if err := v.bus.Publish(ctx, bus.TopicVerificationComplete, payload.BatchID, envelope); err != nil {
		return fmt.Errorf("verifier: publishing verification.completed: %w", err)
	}
	return nil
}
