// Package testgen provides deterministic Completer fakes for demos and
// tests, adapted from the teacher's internal/generators/test package
// (test.Repeat, test.Single): no network calls, fixed or templated output.
package testgen

import (
	"context"
	"fmt"

	"github.com/praetorian-inc/ragpref/pkg/chat"
	"github.com/praetorian-inc/ragpref/pkg/llm"
	"github.com/praetorian-inc/ragpref/pkg/registry"
)

func init() {
	llm.Register("testgen.Echo", NewEcho)
	llm.Register("testgen.Canned", NewCanned)
}

// Echo answers with a deterministic transform of the prompt, varied by the
// sampling temperature so that repeated calls at different SamplingParams
// (as the orchestrator issues per candidate) produce visibly different
// text — the variance §4.B requires to make DPO gates meaningful.
type Echo struct{}

// NewEcho creates an Echo completer. It takes no configuration.
func NewEcho(_ registry.Config) (llm.Completer, error) {
	return &Echo{}, nil
}

// Complete synthesizes an answer from the conversation's user prompt: at
// low temperature it echoes the prompt nearly verbatim (simulating a
// conservative answer); at high temperature it paraphrases more loosely by
// appending elaboration, so faithfulness/relevancy scores spread out.
func (e *Echo) Complete(_ context.Context, conv *chat.Conversation, params llm.CompletionParams) (string, error) {
	prompt := conv.Prompt.Content
	switch {
	case params.Temperature <= 0.3:
		return fmt.Sprintf("Based on the provided context: %s", prompt), nil
	case params.Temperature <= 0.8:
		return fmt.Sprintf("Here is an answer, roughly derived from context, regarding: %s", prompt), nil
	default:
		return fmt.Sprintf("Speaking broadly and perhaps tangentially, one could say %s (and more besides)", prompt), nil
	}
}

// Name returns the completer's fully qualified name.
func (e *Echo) Name() string { return "testgen.Echo" }

// Description returns a human-readable description.
func (e *Echo) Description() string { return "Deterministic temperature-varying echo completer for tests and demos" }

// Canned always answers with a fixed string, regardless of input. Useful
// for exercising failure paths (GenerationRefused) around a known-good
// candidate slot.
type Canned struct {
	response string
}

// NewCanned creates a Canned completer from config key "response"
// (default: "I don't have enough information to answer that.").
func NewCanned(cfg registry.Config) (llm.Completer, error) {
	resp := registry.GetString(cfg, "response", "I don't have enough information to answer that.")
	return &Canned{response: resp}, nil
}

// Complete always returns the configured canned response.
func (c *Canned) Complete(_ context.Context, _ *chat.Conversation, _ llm.CompletionParams) (string, error) {
	return c.response, nil
}

// Name returns the completer's fully qualified name.
func (c *Canned) Name() string { return "testgen.Canned" }

// Description returns a human-readable description.
func (c *Canned) Description() string { return "Always answers with a fixed canned response" }
