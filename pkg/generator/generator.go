// Package generator implements §4.B: producing one candidate answer from a
// question, its retrieved contexts, and a sampling profile, on top of the
// pkg/llm.Completer backend interface.
package generator

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/praetorian-inc/ragpref/pkg/chat"
	"github.com/praetorian-inc/ragpref/pkg/llm"
	"github.com/praetorian-inc/ragpref/pkg/pipeline"
)

// ErrTimeout marks a generation call that exceeded its context deadline.
var ErrTimeout = errors.New("generator: generation timed out")

// ErrRefused marks a generation call the backend declined to answer (empty
// response, content-policy refusal surfaced as an API error, etc). Per
// §4.B, the orchestrator drops the candidate slot on either error rather
// than failing the whole batch.
var ErrRefused = errors.New("generator: generation refused")

const systemPrompt = `You are a retrieval-augmented assistant. Answer the user's question using only the information in the provided context passages. If the context does not contain enough information to answer, say so plainly rather than inventing facts.`

// Generator produces one Candidate per call, using a Completer backend.
type Generator struct {
	completer llm.Completer
}

// New builds a Generator around a Completer.
func New(completer llm.Completer) *Generator {
	return &Generator{completer: completer}
}

// Generate builds the RAG prompt from question and contexts, calls the
// backend with params, and returns the generated text. Backend errors are
// classified into ErrTimeout (context deadline exceeded) or ErrRefused
// (anything else, including an empty response), matching §4.B.
func (g *Generator) Generate(ctx context.Context, question string, contexts []pipeline.Passage, params llm.CompletionParams) (string, error) {
	conv := chat.NewConversation(userPrompt(question, contexts)).WithSystem(systemPrompt)

	text, err := g.completer.Complete(ctx, conv, params)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return "", fmt.Errorf("%w: %v", ErrTimeout, err)
		}
		return "", fmt.Errorf("%w: %v", ErrRefused, err)
	}
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("%w: empty response", ErrRefused)
	}
	return text, nil
}

func userPrompt(question string, contexts []pipeline.Passage) string {
	var b strings.Builder
	b.WriteString("Context:\n")
	for i, p := range contexts {
		fmt.Fprintf(&b, "[%d] (%s) %s\n", i+1, p.SourceID, p.Text)
	}
	b.WriteString("\nQuestion: ")
	b.WriteString(question)
	return b.String()
}
