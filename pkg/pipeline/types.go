// Package pipeline defines the data model shared by every stage of the
// retrieval-augmented preference pipeline: passages retrieved for a
// question, the candidate answers generated from them, the batch that
// groups candidates for one request, the scores a verifier attaches to
// each candidate, and the SFT/DPO records emitted once a batch retires.
package pipeline

import "time"

// Confidence buckets a scored candidate's reliability.
type Confidence string

const (
	ConfidenceLow    Confidence = "low"
	ConfidenceMedium Confidence = "medium"
	ConfidenceHigh   Confidence = "high"
)

// JudgeMode records which scoring path produced a ScoredCandidate.
type JudgeMode string

const (
	JudgeModeLLM       JudgeMode = "llm"
	JudgeModeHeuristic JudgeMode = "heuristic"
)

// EventType names the two topics the event bus carries.
type EventType string

const (
	EventAnswerGenerated      EventType = "answer.generated"
	EventVerificationComplete EventType = "verification.completed"
)

// Passage is one piece of retrieved context for a question. It is
// per-request and never persisted by the core.
type Passage struct {
	Text     string  `json:"text"`
	SourceID string  `json:"source_id"`
	Score    float64 `json:"score"`
}

// SamplingParams are the generation knobs that induce answer variance
// across a batch's candidates.
type SamplingParams struct {
	Temperature float64 `json:"temperature"`
	TopP        float64 `json:"top_p,omitempty"`
	MaxTokens   int     `json:"max_tokens,omitempty"`
	Seed        *int64  `json:"seed,omitempty"`
}

// Candidate is one of N generated answers for a question.
// CandidateIndex is unique within a batch; AnswerID is globally unique.
type Candidate struct {
	CandidateIndex int            `json:"candidate_index"`
	Text           string         `json:"text"`
	SamplingParams SamplingParams `json:"sampling_params"`
	AnswerID       string         `json:"answer_id"`
	CreatedAt      time.Time      `json:"created_at"`
}

// Batch is the set of candidates generated for one question in one
// ask_multi call. The orchestrator mints it and is the sole authority on
// ExpectedCount; the aggregator owns it from first event to retirement.
type Batch struct {
	BatchID       string      `json:"batch_id"`
	CorrelationID string      `json:"correlation_id"`
	Question      string      `json:"question"`
	Contexts      []Passage   `json:"contexts"`
	ExpectedCount int         `json:"expected_count"`
	Candidates    []Candidate `json:"candidates"`
	CreatedAt     time.Time   `json:"created_at"`
	Deadline      time.Time   `json:"deadline"`
}

// ScoredCandidate is the verifier's judgement of one candidate. Exactly one
// should exist per AnswerID in the happy path; the aggregator collapses
// duplicates idempotently on upsert.
type ScoredCandidate struct {
	AnswerID     string     `json:"answer_id"`
	BatchID      string     `json:"batch_id"`
	Faithfulness float64    `json:"faithfulness"`
	Relevancy    float64    `json:"relevancy"`
	Overall      float64    `json:"overall"`
	Confidence   Confidence `json:"confidence"`
	JudgeMode    JudgeMode  `json:"judge_mode"`
	ScoredAt     time.Time  `json:"scored_at"`
}

// NewScoredCandidate computes Overall and Confidence from the two rubric
// scores and stamps ScoredAt.
func NewScoredCandidate(answerID, batchID string, faithfulness, relevancy float64, mode JudgeMode) ScoredCandidate {
	overall := (faithfulness + relevancy) / 2
	return ScoredCandidate{
		AnswerID:     answerID,
		BatchID:      batchID,
		Faithfulness: faithfulness,
		Relevancy:    relevancy,
		Overall:      overall,
		Confidence:   classifyConfidence(faithfulness, relevancy),
		JudgeMode:    mode,
		ScoredAt:     time.Now(),
	}
}

func classifyConfidence(faithfulness, relevancy float64) Confidence {
	min, max := faithfulness, relevancy
	if relevancy < faithfulness {
		min, max = relevancy, faithfulness
	}
	switch {
	case min >= 0.8:
		return ConfidenceHigh
	case max < 0.6:
		return ConfidenceLow
	default:
		return ConfidenceMedium
	}
}

// AnswerGeneratedPayload is the payload carried by an answer.generated event.
type AnswerGeneratedPayload struct {
	CorrelationID  string         `json:"correlation_id"`
	BatchID        string         `json:"batch_id"`
	ExpectedCount  int            `json:"expected_count"`
	CandidateIndex int            `json:"candidate_index"`
	AnswerID       string         `json:"answer_id"`
	Question       string         `json:"question"`
	Answer         string         `json:"answer"`
	Contexts       []Passage      `json:"contexts"`
	SamplingParams SamplingParams `json:"sampling_params"`
}

// VerificationCompletedPayload is the payload carried by a
// verification.completed event.
type VerificationCompletedPayload struct {
	CorrelationID string    `json:"correlation_id"`
	BatchID       string    `json:"batch_id"`
	AnswerID      string    `json:"answer_id"`
	Faithfulness  float64   `json:"faithfulness"`
	Relevancy     float64   `json:"relevancy"`
	Confidence    Confidence `json:"confidence"`
	JudgeMode     JudgeMode `json:"judge_mode"`
}

// EventEnvelope wraps a payload with routing and tracing metadata. It is
// the only thing that crosses the event bus.
type EventEnvelope struct {
	EventID       string    `json:"event_id"`
	EventType     EventType `json:"event_type"`
	CorrelationID string    `json:"correlation_id"`
	BatchID       string    `json:"batch_id"`
	Timestamp     time.Time `json:"timestamp"`
	Payload       any       `json:"payload"`
}

// SFTVerification is the scoring summary embedded in an SFT record.
type SFTVerification struct {
	Faithfulness float64    `json:"faithfulness"`
	Relevancy    float64    `json:"relevancy"`
	Overall      float64    `json:"overall"`
	Confidence   Confidence `json:"confidence"`
}

// SFTMetadata carries provenance for an SFT record.
type SFTMetadata struct {
	BatchID        string         `json:"batch_id"`
	CandidateIndex int            `json:"candidate_index"`
	SamplingParams SamplingParams `json:"sampling_params"`
	JudgeMode      JudgeMode      `json:"judge_mode"`
}

// SFTRecord is one supervised-fine-tuning training example: one per scored
// candidate.
type SFTRecord struct {
	Question      string          `json:"question"`
	Answer        string          `json:"answer"`
	Contexts      []Passage       `json:"contexts"`
	Verification  SFTVerification `json:"verification"`
	Metadata      SFTMetadata     `json:"metadata"`
	Timestamp     time.Time       `json:"timestamp"`
}

// DPOCandidate is one side of a DPO preference pair.
type DPOCandidate struct {
	Text  string  `json:"text"`
	Score float64 `json:"score"`
}

// DPOMetadata carries provenance for a DPO record.
type DPOMetadata struct {
	BatchID       string    `json:"batch_id"`
	ChosenIndex   int       `json:"chosen_index"`
	RejectedIndex int       `json:"rejected_index"`
	CreatedAt     time.Time `json:"created_at"`
}

// DPORecord is a Direct Preference Optimization training example: at most
// one per batch.
type DPORecord struct {
	Prompt          string       `json:"prompt"`
	Chosen          DPOCandidate `json:"chosen"`
	Rejected        DPOCandidate `json:"rejected"`
	ScoreDifference float64      `json:"score_difference"`
	Metadata        DPOMetadata  `json:"metadata"`
}

// CompletedCandidate pairs a Candidate with its ScoredCandidate: the unit
// the aggregator hands to the DPO selector and the SFT sink once a batch
// retires with both halves present for that AnswerID.
type CompletedCandidate struct {
	Candidate Candidate
	Score     ScoredCandidate
}
