// Package judge implements §4.D's two scoring modes: an LLM judge with
// defensive output parsing, and a heuristic fallback used whenever the
// judge's output can't be trusted. Adapted from the teacher's
// internal/detectors/judge package (regex rating extraction, conservative
// defaults, a result cache) generalized from a single 1-10 vulnerability
// rating to two independent [0,1] rubric scores.
package judge

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/praetorian-inc/ragpref/pkg/chat"
	"github.com/praetorian-inc/ragpref/pkg/llm"
	"github.com/praetorian-inc/ragpref/pkg/pipeline"
	"github.com/praetorian-inc/ragpref/pkg/retry"
)

var (
	faithfulnessPattern = regexp.MustCompile(`(?i)faithfulness:\s*\[\[\s*([0-9]*\.?[0-9]+)\s*\]\]`)
	relevancyPattern    = regexp.MustCompile(`(?i)relevancy:\s*\[\[\s*([0-9]*\.?[0-9]+)\s*\]\]`)
)

// Judge scores one candidate answer, preferring the LLM judge and falling
// back to the heuristic scorer per §4.D.
type Judge struct {
	completer llm.Completer
	cache     *Cache
	cacheOn   bool
	retryCfg  retry.Config
}

// Option configures a Judge.
type Option func(*Judge)

// WithCache enables or disables the result cache (default: enabled).
func WithCache(enabled bool) Option {
	return func(j *Judge) { j.cacheOn = enabled }
}

// New builds a Judge around an LLM Completer. completer may be nil, in
// which case Score always uses the heuristic scorer (equivalent to §8
// scenario S6, judge backend permanently down).
func New(completer llm.Completer, opts ...Option) *Judge {
	j := &Judge{completer: completer, cache: NewCache(), cacheOn: true, retryCfg: retry.JudgeConfig()}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

// Score returns faithfulness and relevancy in [0,1] plus the mode that
// produced them. It tries the LLM judge (retried per §4.D on transient
// error), and falls back to the heuristic scorer on parse failure,
// out-of-range output, or retry exhaustion.
func (j *Judge) Score(ctx context.Context, question string, contexts []pipeline.Passage, answer string) (faithfulness, relevancy float64, mode pipeline.JudgeMode) {
	contextText := joinContexts(contexts)

	if j.completer == nil {
		f, r := heuristicScore(question, contexts, answer)
		return f, r, pipeline.JudgeModeHeuristic
	}

	if j.cacheOn {
		if f, r, ok := j.cache.Get(question, contextText, answer); ok {
			return f, r, pipeline.JudgeModeLLM
		}
	}

	f, r, err := j.callLLM(ctx, question, contextText, answer)
	if err != nil {
		f, r = heuristicScore(question, contexts, answer)
		return f, r, pipeline.JudgeModeHeuristic
	}

	if j.cacheOn {
		j.cache.Set(question, contextText, answer, f, r)
	}
	return f, r, pipeline.JudgeModeLLM
}

func (j *Judge) callLLM(ctx context.Context, question, contextText, answer string) (float64, float64, error) {
	var faithfulness, relevancy float64
	err := retry.Do(ctx, j.retryCfg, func() error {
		conv := chat.NewConversation(userPrompt(question, contextText, answer)).WithSystem(systemPrompt)
		text, err := j.completer.Complete(ctx, conv, llm.CompletionParams{Temperature: 0})
		if err != nil {
			return err
		}
		f, r, perr := parseScores(text)
		if perr != nil {
			return perr
		}
		faithfulness, relevancy = f, r
		return nil
	})
	return faithfulness, relevancy, err
}

// parseScores defensively extracts the two rubric scores. Any parse
// failure or out-of-range value is surfaced as an error so the caller
// falls back to the heuristic scorer.
func parseScores(output string) (faithfulness, relevancy float64, err error) {
	fm := faithfulnessPattern.FindStringSubmatch(output)
	rm := relevancyPattern.FindStringSubmatch(output)
	if len(fm) < 2 || len(rm) < 2 {
		return 0, 0, fmt.Errorf("judge: could not parse rubric scores from output: %q", truncate(output, 200))
	}

	faithfulness, ferr := strconv.ParseFloat(fm[1], 64)
	relevancy, rerr := strconv.ParseFloat(rm[1], 64)
	if ferr != nil || rerr != nil {
		return 0, 0, fmt.Errorf("judge: non-numeric rubric score in output")
	}
	if faithfulness < 0 || faithfulness > 1 || relevancy < 0 || relevancy > 1 {
		return 0, 0, fmt.Errorf("judge: rubric score out of [0,1] range (faithfulness=%v relevancy=%v)", faithfulness, relevancy)
	}
	return faithfulness, relevancy, nil
}

func joinContexts(contexts []pipeline.Passage) string {
	parts := make([]string, len(contexts))
	for i, p := range contexts {
		parts[i] = p.Text
	}
	return strings.Join(parts, "\n")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
