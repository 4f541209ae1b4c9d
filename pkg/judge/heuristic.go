package judge

import (
	"math"
	"strings"

	"github.com/praetorian-inc/ragpref/pkg/pipeline"
)

// stopwords is a small, fixed stopword list used to filter function words
// out of the token-overlap math so faithfulness/relevancy react to content
// words, not shared grammar.
var stopwords = map[string]bool{
	"a": true, "an": true, "the": true, "is": true, "are": true, "was": true,
	"were": true, "be": true, "been": true, "being": true, "to": true,
	"of": true, "in": true, "on": true, "at": true, "by": true, "for": true,
	"with": true, "about": true, "as": true, "it": true, "its": true,
	"this": true, "that": true, "and": true, "or": true, "but": true,
	"if": true, "then": true, "so": true, "do": true, "does": true, "did": true,
	"can": true, "could": true, "will": true, "would": true, "should": true,
	"i": true, "you": true, "he": true, "she": true, "we": true, "they": true,
}

// tokenize lowercases and splits on whitespace/punctuation, per §4.D's
// "lowercase, stopword filtering" heuristic spec.
func tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !(r >= 'a' && r <= 'z') && !(r >= '0' && r <= '9')
	})
	out := fields[:0]
	for _, f := range fields {
		if f != "" {
			out = append(out, f)
		}
	}
	return out
}

func contentTokens(text string) []string {
	toks := tokenize(text)
	out := make([]string, 0, len(toks))
	for _, t := range toks {
		if !stopwords[t] {
			out = append(out, t)
		}
	}
	return out
}

// heuristicScore computes §4.D's fallback scores. It must produce variance
// across candidates that differ in content — a flat score is a bug, per
// the invariant in §8.7 — because it is driven entirely by each answer's
// actual token overlap with its contexts and question rather than any
// constant blend.
func heuristicScore(question string, contexts []pipeline.Passage, answer string) (faithfulness, relevancy float64) {
	answerTokens := contentTokens(answer)
	contextVocab := make(map[string]bool)
	for _, p := range contexts {
		for _, t := range contentTokens(p.Text) {
			contextVocab[t] = true
		}
	}
	faithfulness = fractionCovered(answerTokens, contextVocab)

	qVec := termFreq(contentTokens(question))
	aVec := termFreq(answerTokens)
	cosine := cosineSimilarity(qVec, aVec)
	lengthFactor := lengthSanity(len(tokenize(answer)))
	relevancy = clamp01(cosine * lengthFactor)

	return clamp01(faithfulness), clamp01(relevancy)
}

func fractionCovered(tokens []string, vocab map[string]bool) float64 {
	if len(tokens) == 0 {
		return 0
	}
	covered := 0
	for _, t := range tokens {
		if vocab[t] {
			covered++
		}
	}
	return float64(covered) / float64(len(tokens))
}

func termFreq(tokens []string) map[string]float64 {
	v := make(map[string]float64, len(tokens))
	for _, t := range tokens {
		v[t]++
	}
	return v
}

func cosineSimilarity(a, b map[string]float64) float64 {
	var dot, na, nb float64
	for term, av := range a {
		dot += av * b[term]
		na += av * av
	}
	for _, bv := range b {
		nb += bv * bv
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// lengthSanity penalizes answers outside the healthy [20, 800]-token
// range: too short to plausibly be relevant, or so long it is padding.
func lengthSanity(tokenCount int) float64 {
	switch {
	case tokenCount < 20:
		return 0.5 + 0.5*float64(tokenCount)/20.0
	case tokenCount > 800:
		over := float64(tokenCount-800) / 800.0
		factor := 1.0 - 0.5*over
		if factor < 0.3 {
			factor = 0.3
		}
		return factor
	default:
		return 1.0
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// JaccardTokenOverlap returns the Jaccard similarity between the token
// sets of a and b: |A∩B| / |A∪B|. Shared by the heuristic scorer's
// variance and pkg/selector's verbatim-copy gate.
func JaccardTokenOverlap(a, b string) float64 {
	setA := toSet(tokenize(a))
	setB := toSet(tokenize(b))
	if len(setA) == 0 && len(setB) == 0 {
		return 1
	}
	inter := 0
	for t := range setA {
		if setB[t] {
			inter++
		}
	}
	union := len(setA) + len(setB) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

func toSet(tokens []string) map[string]bool {
	s := make(map[string]bool, len(tokens))
	for _, t := range tokens {
		s[t] = true
	}
	return s
}
