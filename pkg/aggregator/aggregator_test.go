package aggregator

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/praetorian-inc/ragpref/pkg/bus"
	memorybus "github.com/praetorian-inc/ragpref/internal/bus/memory"
	"github.com/praetorian-inc/ragpref/pkg/pipeline"
	"github.com/praetorian-inc/ragpref/pkg/selector"
)

type fakeSink struct {
	mu      sync.Mutex
	records []any
}

func (s *fakeSink) Append(record any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, record)
	return nil
}

func (s *fakeSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

func permissiveSelector() *selector.Selector {
	return selector.New(selector.Gates{MinScoreDiff: 0, MinChosenScore: 0, VerbatimGate: false})
}

func publishAnswer(t *testing.T, b bus.EventBus, batchID, correlationID string, index, expected int) {
	t.Helper()
	env := pipeline.EventEnvelope{
		EventID:       "evt-a-" + batchID,
		EventType:     pipeline.EventAnswerGenerated,
		CorrelationID: correlationID,
		BatchID:       batchID,
		Timestamp:     time.Now(),
		Payload: pipeline.AnswerGeneratedPayload{
			CorrelationID:  correlationID,
			BatchID:        batchID,
			ExpectedCount:  expected,
			CandidateIndex: index,
			AnswerID:       answerID(batchID, index),
			Question:       "what is rag?",
			Answer:         "retrieval augmented generation",
			Contexts:       []pipeline.Passage{{Text: "RAG combines retrieval and generation.", SourceID: "doc-1"}},
			SamplingParams: pipeline.SamplingParams{Temperature: 0.2},
		},
	}
	require.NoError(t, b.Publish(context.Background(), bus.TopicAnswerGenerated, batchID, env))
}

func publishScore(t *testing.T, b bus.EventBus, batchID, correlationID string, index int, overall float64) {
	t.Helper()
	env := pipeline.EventEnvelope{
		EventID:       "evt-v-" + batchID,
		EventType:     pipeline.EventVerificationComplete,
		CorrelationID: correlationID,
		BatchID:       batchID,
		Timestamp:     time.Now(),
		Payload: pipeline.VerificationCompletedPayload{
			CorrelationID: correlationID,
			BatchID:       batchID,
			AnswerID:      answerID(batchID, index),
			Faithfulness:  overall,
			Relevancy:     overall,
			Confidence:    pipeline.ConfidenceHigh,
			JudgeMode:     pipeline.JudgeModeHeuristic,
		},
	}
	require.NoError(t, b.Publish(context.Background(), bus.TopicVerificationComplete, batchID, env))
}

func answerID(batchID string, index int) string {
	return batchID + "-ans-" + string(rune('a'+index))
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func TestAggregator_RetiresOnCompletion(t *testing.T) {
	b := memorybus.New(5)
	defer b.Close()

	sft := &fakeSink{}
	dpo := &fakeSink{}
	agg, err := New(Config{BatchTimeout: time.Hour}, b, permissiveSelector(), sft, dpo, nil)
	require.NoError(t, err)
	require.NoError(t, agg.Start(context.Background()))

	publishAnswer(t, b, "batch-1", "corr-1", 0, 2)
	publishAnswer(t, b, "batch-1", "corr-1", 1, 2)
	publishScore(t, b, "batch-1", "corr-1", 0, 0.9)
	publishScore(t, b, "batch-1", "corr-1", 1, 0.3)

	waitFor(t, time.Second, func() bool { return sft.count() == 2 })
	assert.Equal(t, int64(0), agg.OpenBatches())
	assert.Equal(t, 1, dpo.count())
}

func TestAggregator_OutOfOrderEvents(t *testing.T) {
	b := memorybus.New(5)
	defer b.Close()

	sft := &fakeSink{}
	dpo := &fakeSink{}
	agg, err := New(Config{BatchTimeout: time.Hour}, b, permissiveSelector(), sft, dpo, nil)
	require.NoError(t, err)
	require.NoError(t, agg.Start(context.Background()))

	// Scores arrive before the answers that describe them.
	publishScore(t, b, "batch-2", "corr-2", 0, 0.8)
	publishScore(t, b, "batch-2", "corr-2", 1, 0.2)
	publishAnswer(t, b, "batch-2", "corr-2", 0, 2)
	publishAnswer(t, b, "batch-2", "corr-2", 1, 2)

	waitFor(t, time.Second, func() bool { return sft.count() == 2 })
	assert.Equal(t, 1, dpo.count())
}

func TestAggregator_TimesOutWithPartialResults(t *testing.T) {
	b := memorybus.New(5)
	defer b.Close()

	sft := &fakeSink{}
	dpo := &fakeSink{}
	agg, err := New(Config{BatchTimeout: 30 * time.Millisecond}, b, permissiveSelector(), sft, dpo, nil)
	require.NoError(t, err)
	require.NoError(t, agg.Start(context.Background()))

	publishAnswer(t, b, "batch-3", "corr-3", 0, 3)
	publishScore(t, b, "batch-3", "corr-3", 0, 0.9)
	// Candidates 1 and 2 never arrive: batch must retire on its deadline.

	waitFor(t, time.Second, func() bool { return agg.OpenBatches() == 0 })
	assert.Equal(t, 1, sft.count())
}

func TestAggregator_DuplicateScoreIsIdempotent(t *testing.T) {
	b := memorybus.New(5)
	defer b.Close()

	sft := &fakeSink{}
	dpo := &fakeSink{}
	agg, err := New(Config{BatchTimeout: time.Hour}, b, permissiveSelector(), sft, dpo, nil)
	require.NoError(t, err)
	require.NoError(t, agg.Start(context.Background()))

	publishAnswer(t, b, "batch-4", "corr-4", 0, 2)
	publishAnswer(t, b, "batch-4", "corr-4", 1, 2)
	publishScore(t, b, "batch-4", "corr-4", 0, 0.9)
	publishScore(t, b, "batch-4", "corr-4", 0, 0.9) // redelivery of the same event
	publishScore(t, b, "batch-4", "corr-4", 1, 0.3)

	waitFor(t, time.Second, func() bool { return sft.count() == 2 })
	assert.Equal(t, 2, sft.count())
}
