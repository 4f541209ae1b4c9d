package judge

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/praetorian-inc/ragpref/pkg/chat"
	"github.com/praetorian-inc/ragpref/pkg/llm"
	"github.com/praetorian-inc/ragpref/pkg/pipeline"
)

type scriptedCompleter struct {
	responses []string
	calls     int
}

func (s *scriptedCompleter) Complete(_ context.Context, _ *chat.Conversation, _ llm.CompletionParams) (string, error) {
	r := s.responses[s.calls]
	s.calls++
	return r, nil
}
func (s *scriptedCompleter) Name() string        { return "scripted" }
func (s *scriptedCompleter) Description() string { return "scripted" }

var contexts = []pipeline.Passage{{Text: "The event bus dead-letters after max delivery attempts.", SourceID: "doc-1"}}

func TestJudge_NilCompleterAlwaysUsesHeuristic(t *testing.T) {
	j := New(nil)
	f, r, mode := j.Score(context.Background(), "how does dead-lettering work?", contexts, "dead-lettering parks a message after max delivery attempts")
	assert.Equal(t, pipeline.JudgeModeHeuristic, mode)
	assert.Greater(t, f, 0.0)
	assert.GreaterOrEqual(t, r, 0.0)
}

func TestJudge_ParsesWellFormedLLMOutput(t *testing.T) {
	j := New(&scriptedCompleter{responses: []string{"Faithfulness: [[0.9]]\nRelevancy: [[0.8]]"}})
	f, r, mode := j.Score(context.Background(), "q", contexts, "a")
	assert.Equal(t, pipeline.JudgeModeLLM, mode)
	assert.Equal(t, 0.9, f)
	assert.Equal(t, 0.8, r)
}

func TestJudge_FallsBackToHeuristicOnUnparsableOutput(t *testing.T) {
	j := New(&scriptedCompleter{responses: []string{"I refuse to answer", "I refuse to answer", "I refuse to answer"}})
	_, _, mode := j.Score(context.Background(), "q", contexts, "dead-lettering parks a message")
	assert.Equal(t, pipeline.JudgeModeHeuristic, mode)
}

func TestJudge_FallsBackToHeuristicOnOutOfRangeScore(t *testing.T) {
	j := New(&scriptedCompleter{responses: []string{"Faithfulness: [[1.5]]\nRelevancy: [[0.5]]", "Faithfulness: [[1.5]]\nRelevancy: [[0.5]]", "Faithfulness: [[1.5]]\nRelevancy: [[0.5]]"}})
	_, _, mode := j.Score(context.Background(), "q", contexts, "a")
	assert.Equal(t, pipeline.JudgeModeHeuristic, mode)
}

func TestJudge_CachesIdenticalCalls(t *testing.T) {
	completer := &scriptedCompleter{responses: []string{"Faithfulness: [[0.7]]\nRelevancy: [[0.6]]"}}
	j := New(completer, WithCache(true))

	f1, r1, _ := j.Score(context.Background(), "q", contexts, "a")
	f2, r2, _ := j.Score(context.Background(), "q", contexts, "a")

	assert.Equal(t, f1, f2)
	assert.Equal(t, r1, r2)
	assert.Equal(t, 1, completer.calls, "second identical call should hit the cache, not the backend")
}

func TestJudge_CacheDisabledCallsBackendEveryTime(t *testing.T) {
	completer := &scriptedCompleter{responses: []string{
		"Faithfulness: [[0.7]]\nRelevancy: [[0.6]]",
		"Faithfulness: [[0.7]]\nRelevancy: [[0.6]]",
	}}
	j := New(completer, WithCache(false))

	j.Score(context.Background(), "q", contexts, "a")
	j.Score(context.Background(), "q", contexts, "a")

	assert.Equal(t, 2, completer.calls)
}

func TestHeuristicScore_VariesWithContentOverlap(t *testing.T) {
	grounded, _ := heuristicScore("dead-lettering", contexts, "dead-lettering parks a message after max delivery attempts")
	ungrounded, _ := heuristicScore("dead-lettering", contexts, "bananas are a good source of potassium")
	assert.Greater(t, grounded, ungrounded)
}

func TestJaccardTokenOverlap_IdenticalTextIsOne(t *testing.T) {
	assert.Equal(t, 1.0, JaccardTokenOverlap("the quick brown fox", "the quick brown fox"))
}

func TestJaccardTokenOverlap_DisjointTextIsZero(t *testing.T) {
	assert.Equal(t, 0.0, JaccardTokenOverlap("alpha beta", "gamma delta"))
}
