package generator

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/praetorian-inc/ragpref/pkg/chat"
	"github.com/praetorian-inc/ragpref/pkg/llm"
	"github.com/praetorian-inc/ragpref/pkg/pipeline"
)

type fakeCompleter struct {
	response string
	err      error
}

func (f *fakeCompleter) Complete(_ context.Context, _ *chat.Conversation, _ llm.CompletionParams) (string, error) {
	return f.response, f.err
}
func (f *fakeCompleter) Name() string        { return "fake" }
func (f *fakeCompleter) Description() string { return "fake" }

func TestGenerator_GenerateIncludesContextsAndQuestion(t *testing.T) {
	var captured *chat.Conversation
	g := New(&capturingCompleter{response: "an answer", capture: &captured})

	text, err := g.Generate(context.Background(), "what is rag?",
		[]pipeline.Passage{{Text: "RAG combines retrieval and generation.", SourceID: "doc-1"}},
		llm.CompletionParams{})
	require.NoError(t, err)
	assert.Equal(t, "an answer", text)
	require.NotNil(t, captured)
	assert.Contains(t, captured.Prompt.Content, "what is rag?")
	assert.Contains(t, captured.Prompt.Content, "RAG combines retrieval and generation.")
	assert.NotNil(t, captured.System)
}

type capturingCompleter struct {
	response string
	capture  **chat.Conversation
}

func (c *capturingCompleter) Complete(_ context.Context, conv *chat.Conversation, _ llm.CompletionParams) (string, error) {
	*c.capture = conv
	return c.response, nil
}
func (c *capturingCompleter) Name() string        { return "capturing" }
func (c *capturingCompleter) Description() string { return "capturing" }

func TestGenerator_TimeoutErrorIsClassified(t *testing.T) {
	g := New(&fakeCompleter{err: context.DeadlineExceeded})

	_, err := g.Generate(context.Background(), "q", nil, llm.CompletionParams{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestGenerator_OtherErrorIsRefused(t *testing.T) {
	g := New(&fakeCompleter{err: errors.New("content policy violation")})

	_, err := g.Generate(context.Background(), "q", nil, llm.CompletionParams{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRefused)
}

func TestGenerator_EmptyResponseIsRefused(t *testing.T) {
	g := New(&fakeCompleter{response: "   "})

	_, err := g.Generate(context.Background(), "q", nil, llm.CompletionParams{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRefused)
}
