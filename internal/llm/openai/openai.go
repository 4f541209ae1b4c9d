// Package openai provides an OpenAI chat-completion Completer for ragpref,
// adapted from the teacher's internal/generators/openai generator: same
// client setup and error wrapping, simplified to the single-shot
// single-response call the Completer interface needs (no N-choices fan-out,
// no legacy completion-endpoint branch).
package openai

import (
	"context"
	"fmt"

	"github.com/praetorian-inc/ragpref/pkg/chat"
	"github.com/praetorian-inc/ragpref/pkg/llm"
	"github.com/praetorian-inc/ragpref/pkg/ratelimit"
	"github.com/praetorian-inc/ragpref/pkg/registry"
	goopenai "github.com/sashabaranov/go-openai"
)

func init() {
	llm.Register("openai.Chat", New)
}

// Completer wraps the OpenAI chat-completions API as a single-shot
// llm.Completer.
type Completer struct {
	client  *goopenai.Client
	model   string
	limiter *ratelimit.Limiter
}

// Config holds typed configuration for the OpenAI completer.
type Config struct {
	Model           string
	APIKey          string
	BaseURL         string
	RateLimitPerSec float64
	RateLimitBurst  float64
}

// ConfigFromMap parses a registry.Config map into a typed Config.
func ConfigFromMap(m registry.Config) (Config, error) {
	var cfg Config

	model, err := registry.RequireString(m, "model")
	if err != nil {
		return cfg, fmt.Errorf("openai completer requires 'model' configuration")
	}
	cfg.Model = model

	cfg.APIKey, err = registry.GetAPIKeyWithEnv(m, "OPENAI_API_KEY", "openai")
	if err != nil {
		return cfg, err
	}
	cfg.BaseURL = registry.GetString(m, "base_url", "")
	cfg.RateLimitPerSec = registry.GetFloat64(m, "rate_limit", 0)
	cfg.RateLimitBurst = registry.GetFloat64(m, "rate_limit_burst", cfg.RateLimitPerSec)
	return cfg, nil
}

// New creates an OpenAI Completer from registry.Config.
func New(m registry.Config) (llm.Completer, error) {
	cfg, err := ConfigFromMap(m)
	if err != nil {
		return nil, err
	}
	return NewTyped(cfg)
}

// NewTyped creates an OpenAI Completer from typed configuration.
func NewTyped(cfg Config) (*Completer, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("openai completer requires model")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai completer requires api_key")
	}

	clientCfg := goopenai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	c := &Completer{
		client: goopenai.NewClientWithConfig(clientCfg),
		model:  cfg.Model,
	}
	if cfg.RateLimitPerSec > 0 {
		c.limiter = ratelimit.NewLimiter(cfg.RateLimitBurst, cfg.RateLimitPerSec)
	}
	return c, nil
}

// Complete sends conv as a single chat-completion request and returns the
// first choice's content.
func (c *Completer) Complete(ctx context.Context, conv *chat.Conversation, params llm.CompletionParams) (string, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return "", fmt.Errorf("openai: rate limit wait cancelled: %w", err)
		}
	}

	req := goopenai.ChatCompletionRequest{
		Model:    c.model,
		Messages: toOpenAIMessages(conv),
		N:        1,
	}
	if params.Temperature != 0 {
		req.Temperature = float32(params.Temperature)
	}
	if params.TopP != 0 {
		req.TopP = float32(params.TopP)
	}
	if params.MaxTokens > 0 {
		req.MaxTokens = params.MaxTokens
	}
	if params.Seed != nil {
		seed := int(*params.Seed)
		req.Seed = &seed
	}

	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", wrapError(err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai: empty response")
	}
	return resp.Choices[0].Message.Content, nil
}

// Name returns the completer's fully qualified name.
func (c *Completer) Name() string { return "openai.Chat" }

// Description returns a human-readable description.
func (c *Completer) Description() string {
	return "OpenAI chat-completion backend for generation and LLM-judge calls"
}

func toOpenAIMessages(conv *chat.Conversation) []goopenai.ChatCompletionMessage {
	msgs := make([]goopenai.ChatCompletionMessage, 0, 2)
	if conv.System != nil {
		msgs = append(msgs, goopenai.ChatCompletionMessage{Role: goopenai.ChatMessageRoleSystem, Content: conv.System.Content})
	}
	msgs = append(msgs, goopenai.ChatCompletionMessage{Role: goopenai.ChatMessageRoleUser, Content: conv.Prompt.Content})
	return msgs
}

func wrapError(err error) error {
	return fmt.Errorf("openai: %w", err)
}
