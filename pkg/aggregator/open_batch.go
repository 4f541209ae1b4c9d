package aggregator

import (
	"sync"
	"time"

	"github.com/praetorian-inc/ragpref/pkg/pipeline"
)

// openBatch is a single open batch's state machine: its own entity with
// its own lifecycle and its own mutex, per Design Notes §9's instruction
// to replace the source's ad-hoc module-level dictionaries with a
// per-batch actor.
type openBatch struct {
	mu sync.Mutex

	batchID       string
	correlationID string
	question      string
	contexts      []pipeline.Passage
	expectedCount int

	answers map[string]pipeline.Candidate
	scores  map[string]pipeline.ScoredCandidate

	firstSeenAt time.Time
	deadline    time.Time
	timer       *time.Timer
	retireOnce  sync.Once
}

// newOpenBatch opens a batch shell. Its deadline starts at now regardless
// of which event (answer.generated or verification.completed) arrived
// first — §4.E bases the deadline on first_seen_at, not on ExpectedCount
// being known yet.
func newOpenBatch(batchID string, now time.Time, timeout time.Duration) *openBatch {
	return &openBatch{
		batchID:     batchID,
		answers:     make(map[string]pipeline.Candidate),
		scores:      make(map[string]pipeline.ScoredCandidate),
		firstSeenAt: now,
		deadline:    now.Add(timeout),
	}
}

// setMetaFromAnswerEvent fills in the fields only an answer.generated event
// carries. It is a no-op past the first call (ExpectedCount is the sentinel
// for "meta known"), since answer.generated redeliveries for an already-known
// batch describe the same batch and would otherwise just repeat the write.
func (b *openBatch) setMetaFromAnswerEvent(correlationID, question string, contexts []pipeline.Passage, expectedCount int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.expectedCount != 0 {
		return
	}
	b.correlationID = correlationID
	b.question = question
	b.contexts = contexts
	b.expectedCount = expectedCount
}

// upsertAnswer records a candidate, idempotent on AnswerID. Returns true
// if this was a new entry.
func (b *openBatch) upsertAnswer(c pipeline.Candidate) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, existed := b.answers[c.AnswerID]
	b.answers[c.AnswerID] = c
	return !existed
}

// upsertScore records a scored candidate, idempotent on AnswerID. Returns
// true if this was a new entry (a duplicate delivery of the same AnswerID
// is a no-op per §8 invariant 5 / scenario S5).
func (b *openBatch) upsertScore(s pipeline.ScoredCandidate) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, existed := b.scores[s.AnswerID]
	b.scores[s.AnswerID] = s
	return !existed
}

// isComplete implements §4.E's completion predicate: equal counts and
// equal keysets between answers and scores.
func (b *openBatch) isComplete() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.completeLocked()
}

func (b *openBatch) completeLocked() bool {
	if len(b.answers) != b.expectedCount || len(b.scores) != b.expectedCount {
		return false
	}
	for id := range b.answers {
		if _, ok := b.scores[id]; !ok {
			return false
		}
	}
	return true
}

// counts returns the current answer/score counts under lock, for logging
// at retirement without racing a concurrent upsert.
func (b *openBatch) counts() (answers, scores int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.answers), len(b.scores)
}

// completedCandidates returns every AnswerID present in both answers and
// scores: the set §1 invariant bases SFT emission and DPO selection on.
func (b *openBatch) completedCandidates() []pipeline.CompletedCandidate {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]pipeline.CompletedCandidate, 0, len(b.scores))
	for id, score := range b.scores {
		if cand, ok := b.answers[id]; ok {
			out = append(out, pipeline.CompletedCandidate{Candidate: cand, Score: score})
		}
	}
	return out
}
