// Package replicate provides a Replicate Completer for ragpref, adapted
// from the teacher's internal/generators/replicate generator: same client
// setup, input shape, and output-extraction logic, simplified to the
// single prediction run the Completer interface needs.
package replicate

import (
	"fmt"
	"strings"

	"context"

	"github.com/praetorian-inc/ragpref/pkg/chat"
	"github.com/praetorian-inc/ragpref/pkg/llm"
	"github.com/praetorian-inc/ragpref/pkg/registry"
	replicatego "github.com/replicate/replicate-go"
)

func init() {
	llm.Register("replicate.Run", New)
}

// Completer wraps the Replicate prediction API.
type Completer struct {
	client *replicatego.Client
	model  string
}

// New creates a Replicate Completer from registry.Config.
func New(cfg registry.Config) (llm.Completer, error) {
	model, err := registry.RequireString(cfg, "model")
	if err != nil {
		return nil, fmt.Errorf("replicate completer: %w", err)
	}
	apiKey, err := registry.GetAPIKeyWithEnv(cfg, "REPLICATE_API_TOKEN", "replicate")
	if err != nil {
		return nil, err
	}

	opts := []replicatego.ClientOption{replicatego.WithToken(apiKey)}
	if baseURL := registry.GetString(cfg, "base_url", ""); baseURL != "" {
		opts = append(opts, replicatego.WithBaseURL(baseURL))
	}

	client, err := replicatego.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("replicate: failed to create client: %w", err)
	}

	return &Completer{client: client, model: model}, nil
}

// Complete runs the configured Replicate model on conv's prompt and
// returns the generated text.
func (c *Completer) Complete(ctx context.Context, conv *chat.Conversation, params llm.CompletionParams) (string, error) {
	prompt := conv.Prompt.Content
	if conv.System != nil {
		prompt = conv.System.Content + "\n\n" + prompt
	}

	input := replicatego.PredictionInput{"prompt": prompt}
	if params.Temperature != 0 {
		input["temperature"] = params.Temperature
	}
	if params.TopP != 0 {
		input["top_p"] = params.TopP
	}
	if params.MaxTokens > 0 {
		input["max_length"] = params.MaxTokens
	}
	if params.Seed != nil {
		input["seed"] = *params.Seed
	}

	output, err := c.client.Run(ctx, c.model, input, nil)
	if err != nil {
		return "", wrapError(err)
	}
	return extractText(output), nil
}

// Name returns the completer's fully qualified name.
func (c *Completer) Name() string { return "replicate.Run" }

// Description returns a human-readable description.
func (c *Completer) Description() string {
	return "Replicate prediction-run backend for open-source hosted models"
}

func extractText(output replicatego.PredictionOutput) string {
	switch v := output.(type) {
	case string:
		return v
	case []string:
		return strings.Join(v, "")
	case []any:
		parts := make([]string, 0, len(v))
		for _, elem := range v {
			if s, ok := elem.(string); ok {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, "")
	default:
		return fmt.Sprintf("%v", output)
	}
}

func wrapError(err error) error {
	if apiErr, ok := err.(*replicatego.APIError); ok {
		return fmt.Errorf("replicate: API error (status %d): %w", apiErr.Status, err)
	}
	return fmt.Errorf("replicate: %w", err)
}
