// Package selector implements §4.F: sort retired batch candidates by
// score, pick chosen/rejected, and gate DPO emission on score spread,
// chosen quality, and (optionally) chosen-isn't-verbatim-copy.
package selector

import (
	"sort"
	"time"

	"github.com/praetorian-inc/ragpref/pkg/judge"
	"github.com/praetorian-inc/ragpref/pkg/pipeline"
)

// Reason names why DPO emission was skipped, matching §7's log codes
// exactly so log lines and metrics can key off them.
type Reason string

const (
	ReasonScoreDiffTooSmall      Reason = "score_diff_too_small"
	ReasonChosenScoreTooLow      Reason = "chosen_score_too_low"
	ReasonChosenIsVerbatim       Reason = "chosen_is_verbatim"
	ReasonInsufficientCandidates Reason = "insufficient_candidates"
)

// Gates holds the configurable DPO quality gates of §6.
type Gates struct {
	MinScoreDiff   float64
	MinChosenScore float64
	VerbatimGate   bool
	// VerbatimThreshold is the Jaccard token-overlap fraction at or above
	// which chosen is considered a copy of a context passage.
	VerbatimThreshold float64
}

// DefaultGates returns §6's default gate configuration.
func DefaultGates() Gates {
	return Gates{
		MinScoreDiff:      0.3,
		MinChosenScore:    0.7,
		VerbatimGate:      true,
		VerbatimThreshold: 0.95,
	}
}

// Selector applies §4.F's algorithm to a retired batch's scored candidates.
type Selector struct {
	gates Gates
}

// New builds a Selector with the given gates.
func New(gates Gates) *Selector {
	return &Selector{gates: gates}
}

// Select picks chosen/rejected from candidates (≥2 required) and returns a
// DPORecord if all gates pass, or a Reason explaining why not.
func (s *Selector) Select(question string, contexts []pipeline.Passage, candidates []pipeline.CompletedCandidate) (*pipeline.DPORecord, Reason, bool) {
	if len(candidates) < 2 {
		return nil, ReasonInsufficientCandidates, false
	}

	sorted := make([]pipeline.CompletedCandidate, len(candidates))
	copy(sorted, candidates)
	sort.Slice(sorted, func(i, j int) bool {
		return less(sorted[j], sorted[i]) // descending: sorted[i] before sorted[j] when i "greater"
	})

	chosen := sorted[0]
	rejected := sorted[len(sorted)-1]
	scoreDiff := chosen.Score.Overall - rejected.Score.Overall

	if scoreDiff < s.gates.MinScoreDiff {
		return nil, ReasonScoreDiffTooSmall, false
	}
	if chosen.Score.Overall < s.gates.MinChosenScore {
		return nil, ReasonChosenScoreTooLow, false
	}
	if s.gates.VerbatimGate && isVerbatimCopy(chosen.Candidate.Text, contexts, s.gates.VerbatimThreshold) {
		return nil, ReasonChosenIsVerbatim, false
	}

	record := &pipeline.DPORecord{
		Prompt:          question,
		Chosen:          pipeline.DPOCandidate{Text: chosen.Candidate.Text, Score: chosen.Score.Overall},
		Rejected:        pipeline.DPOCandidate{Text: rejected.Candidate.Text, Score: rejected.Score.Overall},
		ScoreDifference: scoreDiff,
		Metadata: pipeline.DPOMetadata{
			BatchID:       chosen.Score.BatchID,
			ChosenIndex:   chosen.Candidate.CandidateIndex,
			RejectedIndex: rejected.Candidate.CandidateIndex,
			CreatedAt:     time.Now(),
		},
	}
	return record, "", true
}

// less reports whether a ranks below b: lower Overall first, with ties
// broken by lower Faithfulness then higher CandidateIndex — the inverse of
// §4.F's "prefer higher faithfulness, then lower candidate_index" tie-break
// for descending sort.
func less(a, b pipeline.CompletedCandidate) bool {
	if a.Score.Overall != b.Score.Overall {
		return a.Score.Overall < b.Score.Overall
	}
	if a.Score.Faithfulness != b.Score.Faithfulness {
		return a.Score.Faithfulness < b.Score.Faithfulness
	}
	return a.Candidate.CandidateIndex > b.Candidate.CandidateIndex
}

func isVerbatimCopy(text string, contexts []pipeline.Passage, threshold float64) bool {
	for _, p := range contexts {
		if judge.JaccardTokenOverlap(text, p.Text) >= threshold {
			return true
		}
	}
	return false
}
