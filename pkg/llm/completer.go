// Package llm defines the Completer interface shared by every generation
// and judging backend, plus the registry backends self-register into.
package llm

import (
	"context"

	"github.com/praetorian-inc/ragpref/pkg/chat"
	"github.com/praetorian-inc/ragpref/pkg/registry"
)

// CompletionParams carries the sampling knobs a single chat-completion call
// is made with. A zero value means "backend default".
type CompletionParams struct {
	Temperature float64
	TopP        float64
	MaxTokens   int
	Seed        *int64
}

// Completer is a single-shot chat-completion backend: one conversation in,
// one response out. Both candidate generation and LLM-judge scoring are
// single-shot calls, so unlike a full multi-turn chat client this interface
// never carries history.
type Completer interface {
	Complete(ctx context.Context, conv *chat.Conversation, params CompletionParams) (string, error)
	Name() string
	Description() string
}

// Registry holds every registered Completer factory, keyed by fully
// qualified name (e.g. "openai.Chat").
var Registry = registry.New[Completer]("llm")

// Register adds a factory function under name.
func Register(name string, factory func(registry.Config) (Completer, error)) {
	Registry.Register(name, factory)
}

// Create instantiates a Completer by name.
func Create(name string, cfg registry.Config) (Completer, error) {
	return Registry.Create(name, cfg)
}

// List returns all registered Completer names, sorted.
func List() []string {
	return Registry.List()
}
