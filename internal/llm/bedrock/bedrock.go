// Package bedrock provides an AWS Bedrock Completer for ragpref, adapted
// from the teacher's internal/generators/bedrock generator: same
// per-model-family request/response shapes (Claude, Titan, Llama) and
// error classification, simplified to one InvokeModel call per Complete
// (the teacher already loops per-call since Bedrock has no N-choices
// parameter, so the single-shot Completer interface needs no change there).
package bedrock

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/praetorian-inc/ragpref/pkg/chat"
	"github.com/praetorian-inc/ragpref/pkg/llm"
	"github.com/praetorian-inc/ragpref/pkg/registry"
)

func init() {
	llm.Register("bedrock.InvokeModel", New)
}

const defaultMaxTokens = 512

// Completer wraps the AWS Bedrock Runtime InvokeModel API.
type Completer struct {
	client    *bedrockruntime.Client
	modelID   string
	maxTokens int
}

// New creates a Bedrock Completer from registry.Config.
func New(cfg registry.Config) (llm.Completer, error) {
	modelID, err := registry.RequireString(cfg, "model")
	if err != nil {
		return nil, fmt.Errorf("bedrock completer: %w", err)
	}
	region, err := registry.RequireString(cfg, "region")
	if err != nil {
		return nil, fmt.Errorf("bedrock completer: %w", err)
	}
	maxTokens := registry.GetInt(cfg, "max_tokens", defaultMaxTokens)

	ctx := context.Background()
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("bedrock: failed to load AWS config: %w", err)
	}

	var clientOpts []func(*bedrockruntime.Options)
	if endpoint := registry.GetString(cfg, "endpoint", ""); endpoint != "" {
		clientOpts = append(clientOpts, func(o *bedrockruntime.Options) {
			o.BaseEndpoint = aws.String(endpoint)
		})
	}

	return &Completer{
		client:    bedrockruntime.NewFromConfig(awsCfg, clientOpts...),
		modelID:   modelID,
		maxTokens: maxTokens,
	}, nil
}

// Complete invokes the configured Bedrock model with conv and returns the
// generated text.
func (c *Completer) Complete(ctx context.Context, conv *chat.Conversation, params llm.CompletionParams) (string, error) {
	maxTokens := c.maxTokens
	if params.MaxTokens > 0 {
		maxTokens = params.MaxTokens
	}

	var body []byte
	var err error
	switch {
	case strings.HasPrefix(c.modelID, "anthropic.claude"):
		body, err = buildClaudeRequest(conv, params, maxTokens)
	case strings.HasPrefix(c.modelID, "amazon.titan"):
		body, err = buildTitanRequest(conv, params, maxTokens)
	case strings.HasPrefix(c.modelID, "meta.llama"):
		body, err = buildLlamaRequest(conv, params, maxTokens)
	default:
		return "", fmt.Errorf("bedrock: unsupported model family: %s", c.modelID)
	}
	if err != nil {
		return "", fmt.Errorf("bedrock: failed to build request: %w", err)
	}

	out, err := c.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(c.modelID),
		Body:        body,
		ContentType: aws.String("application/json"),
		Accept:      aws.String("application/json"),
	})
	if err != nil {
		return "", classifyError(err)
	}

	switch {
	case strings.HasPrefix(c.modelID, "anthropic.claude"):
		return parseClaudeResponse(out.Body)
	case strings.HasPrefix(c.modelID, "amazon.titan"):
		return parseTitanResponse(out.Body)
	default:
		return parseLlamaResponse(out.Body)
	}
}

// Name returns the completer's fully qualified name.
func (c *Completer) Name() string { return "bedrock.InvokeModel" }

// Description returns a human-readable description.
func (c *Completer) Description() string {
	return "AWS Bedrock InvokeModel backend (Claude, Titan, Llama)"
}

func buildClaudeRequest(conv *chat.Conversation, params llm.CompletionParams, maxTokens int) ([]byte, error) {
	req := map[string]any{
		"anthropic_version": "bedrock-2023-05-31",
		"max_tokens":        maxTokens,
		"messages": []map[string]string{
			{"role": "user", "content": conv.Prompt.Content},
		},
	}
	if params.Temperature != 0 {
		req["temperature"] = params.Temperature
	}
	if conv.System != nil {
		req["system"] = conv.System.Content
	}
	if params.TopP > 0 {
		req["top_p"] = params.TopP
	}
	return json.Marshal(req)
}

func parseClaudeResponse(body []byte) (string, error) {
	var resp struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", err
	}
	var text string
	for _, c := range resp.Content {
		if c.Type == "text" {
			text += c.Text
		}
	}
	return text, nil
}

func buildTitanRequest(conv *chat.Conversation, params llm.CompletionParams, maxTokens int) ([]byte, error) {
	prompt := ""
	if conv.System != nil {
		prompt += conv.System.Content + "\n\n"
	}
	prompt += "User: " + conv.Prompt.Content + "\nAssistant:"

	genCfg := map[string]any{"maxTokenCount": maxTokens}
	if params.Temperature != 0 {
		genCfg["temperature"] = params.Temperature
	}
	if params.TopP > 0 {
		genCfg["topP"] = params.TopP
	}
	return json.Marshal(map[string]any{"inputText": prompt, "textGenerationConfig": genCfg})
}

func parseTitanResponse(body []byte) (string, error) {
	var resp struct {
		Results []struct {
			OutputText string `json:"outputText"`
		} `json:"results"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", err
	}
	if len(resp.Results) == 0 {
		return "", fmt.Errorf("no results in Titan response")
	}
	return resp.Results[0].OutputText, nil
}

func buildLlamaRequest(conv *chat.Conversation, params llm.CompletionParams, maxTokens int) ([]byte, error) {
	var prompt string
	if conv.System != nil {
		prompt = fmt.Sprintf("<s>[INST] <<SYS>>\n%s\n<</SYS>>\n\n%s [/INST]", conv.System.Content, conv.Prompt.Content)
	} else {
		prompt = fmt.Sprintf("<s>[INST] %s [/INST]", conv.Prompt.Content)
	}

	req := map[string]any{"prompt": prompt, "max_gen_len": maxTokens}
	if params.Temperature != 0 {
		req["temperature"] = params.Temperature
	}
	if params.TopP > 0 {
		req["top_p"] = params.TopP
	}
	return json.Marshal(req)
}

func parseLlamaResponse(body []byte) (string, error) {
	var resp struct {
		Generation string `json:"generation"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", err
	}
	return resp.Generation, nil
}

func classifyError(err error) error {
	errStr := err.Error()
	switch {
	case strings.Contains(errStr, "ThrottlingException"), strings.Contains(errStr, "TooManyRequestsException"):
		return fmt.Errorf("bedrock: rate limit exceeded: %w", err)
	case strings.Contains(errStr, "AccessDeniedException"), strings.Contains(errStr, "UnauthorizedException"):
		return fmt.Errorf("bedrock: authentication error: %w", err)
	case strings.Contains(errStr, "ValidationException"):
		return fmt.Errorf("bedrock: invalid request: %w", err)
	default:
		return fmt.Errorf("bedrock: API error: %w", err)
	}
}
