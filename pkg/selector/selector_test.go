package selector

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/praetorian-inc/ragpref/pkg/pipeline"
)

func candidate(idx int, text string, overall, faithfulness float64) pipeline.CompletedCandidate {
	return pipeline.CompletedCandidate{
		Candidate: pipeline.Candidate{CandidateIndex: idx, Text: text},
		Score:     pipeline.ScoredCandidate{BatchID: "batch-1", Overall: overall, Faithfulness: faithfulness},
	}
}

func TestSelector_EmitsRecordWhenGatesPass(t *testing.T) {
	s := New(Gates{MinScoreDiff: 0.2, MinChosenScore: 0.5, VerbatimGate: false})

	candidates := []pipeline.CompletedCandidate{
		candidate(0, "a strong answer", 0.9, 0.9),
		candidate(1, "a weak answer", 0.4, 0.4),
	}
	record, reason, ok := s.Select("q", nil, candidates)
	require.True(t, ok)
	assert.Empty(t, reason)
	assert.Equal(t, "a strong answer", record.Chosen.Text)
	assert.Equal(t, "a weak answer", record.Rejected.Text)
	assert.InDelta(t, 0.5, record.ScoreDifference, 1e-9)
}

func TestSelector_RejectsWhenScoreDiffTooSmall(t *testing.T) {
	s := New(Gates{MinScoreDiff: 0.5, MinChosenScore: 0, VerbatimGate: false})

	candidates := []pipeline.CompletedCandidate{
		candidate(0, "a", 0.6, 0.6),
		candidate(1, "b", 0.5, 0.5),
	}
	_, reason, ok := s.Select("q", nil, candidates)
	assert.False(t, ok)
	assert.Equal(t, ReasonScoreDiffTooSmall, reason)
}

func TestSelector_RejectsWhenChosenScoreTooLow(t *testing.T) {
	s := New(Gates{MinScoreDiff: 0, MinChosenScore: 0.8, VerbatimGate: false})

	candidates := []pipeline.CompletedCandidate{
		candidate(0, "a", 0.7, 0.7),
		candidate(1, "b", 0.1, 0.1),
	}
	_, reason, ok := s.Select("q", nil, candidates)
	assert.False(t, ok)
	assert.Equal(t, ReasonChosenScoreTooLow, reason)
}

func TestSelector_RejectsVerbatimCopy(t *testing.T) {
	s := New(Gates{MinScoreDiff: 0, MinChosenScore: 0, VerbatimGate: true, VerbatimThreshold: 0.9})

	contexts := []pipeline.Passage{{Text: "the quick brown fox jumps over the lazy dog", SourceID: "doc-1"}}
	candidates := []pipeline.CompletedCandidate{
		candidate(0, "the quick brown fox jumps over the lazy dog", 0.9, 0.9),
		candidate(1, "something else entirely", 0.1, 0.1),
	}
	_, reason, ok := s.Select("q", contexts, candidates)
	assert.False(t, ok)
	assert.Equal(t, ReasonChosenIsVerbatim, reason)
}

func TestSelector_RejectsInsufficientCandidates(t *testing.T) {
	s := New(DefaultGates())
	_, reason, ok := s.Select("q", nil, []pipeline.CompletedCandidate{candidate(0, "only one", 0.9, 0.9)})
	assert.False(t, ok)
	assert.Equal(t, ReasonInsufficientCandidates, reason)
}

func TestSelector_TieBreaksOnFaithfulness(t *testing.T) {
	s := New(Gates{MinScoreDiff: 0, MinChosenScore: 0, VerbatimGate: false})

	candidates := []pipeline.CompletedCandidate{
		candidate(0, "first", 0.8, 0.9),
		candidate(1, "second", 0.8, 0.95),
	}
	record, _, ok := s.Select("q", nil, candidates)
	require.True(t, ok)
	assert.Equal(t, "second", record.Chosen.Text, "higher faithfulness should win an Overall tie")
}
