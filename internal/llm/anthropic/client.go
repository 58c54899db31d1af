// Package anthropic adapts the Anthropic SDK to the psychoportal llm.Provider
// contract, trimmed to the complete/stream/vision/embed surface the core
// pipeline
// actually needs: no tool-calling, no extended-thinking stream, since the
// interaction loop never asks the model to call tools.
package anthropic

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"
	"time"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/dswagner/psychoportal/internal/config"
	"github.com/dswagner/psychoportal/internal/llm"
	"github.com/dswagner/psychoportal/internal/observability"
)

const defaultMaxTokens int64 = 1024

type Client struct {
	sdk   anthropicsdk.Client
	model string
}

func New(cfg config.AnthropicConfig, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	opts := []option.RequestOption{
		option.WithAPIKey(strings.TrimSpace(cfg.APIKey)),
		option.WithHTTPClient(httpClient),
	}
	if base := strings.TrimSpace(cfg.BaseURL); base != "" {
		opts = append(opts, option.WithBaseURL(strings.TrimSuffix(base, "/")))
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = string(anthropicsdk.ModelClaude3_7SonnetLatest)
	}
	return &Client{sdk: anthropicsdk.NewClient(opts...), model: model}
}

func (c *Client) Name() string { return "anthropic" }

func (c *Client) Complete(ctx context.Context, messages []llm.Message, system string, maxTokens int, temperature float64) (llm.CompletionResult, error) {
	params := c.buildParams(messages, system, maxTokens, temperature)

	log := observability.LoggerWithTrace(ctx)
	start := time.Now()
	resp, err := c.sdk.Messages.New(ctx, params)
	dur := time.Since(start)
	if err != nil {
		log.Error().Err(err).Str("model", c.model).Dur("duration", dur).Msg("anthropic_complete_error")
		return llm.CompletionResult{}, fmt.Errorf("anthropic complete: %w", err)
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if tb := block.AsAny(); tb != nil {
			if t, ok := tb.(anthropicsdk.TextBlock); ok {
				text.WriteString(t.Text)
			}
		}
	}

	return llm.CompletionResult{
		Content:    text.String(),
		Model:      c.model,
		Usage:      llm.Usage{InputTokens: int(resp.Usage.InputTokens), OutputTokens: int(resp.Usage.OutputTokens)},
		StopReason: string(resp.StopReason),
	}, nil
}

func (c *Client) Stream(ctx context.Context, messages []llm.Message, system string, maxTokens int, temperature float64, h llm.StreamHandler) (llm.CompletionResult, error) {
	params := c.buildParams(messages, system, maxTokens, temperature)

	log := observability.LoggerWithTrace(ctx)
	stream := c.sdk.Messages.NewStreaming(ctx, params)
	defer func() { _ = stream.Close() }()

	var acc anthropicsdk.Message
	var full strings.Builder
	for stream.Next() {
		event := stream.Current()
		if err := acc.Accumulate(event); err != nil {
			log.Debug().Err(err).Msg("anthropic_accumulate_error")
		}
		if delta, ok := event.AsAny().(anthropicsdk.ContentBlockDeltaEvent); ok {
			if td, ok := delta.Delta.AsAny().(anthropicsdk.TextDelta); ok && td.Text != "" {
				if h != nil {
					h.OnDelta(td.Text)
				}
				full.WriteString(td.Text)
			}
		}
	}
	if err := stream.Err(); err != nil {
		return llm.CompletionResult{}, fmt.Errorf("anthropic stream: %w", err)
	}

	return llm.CompletionResult{
		Content:    full.String(),
		Model:      c.model,
		Usage:      llm.Usage{InputTokens: int(acc.Usage.InputTokens), OutputTokens: int(acc.Usage.OutputTokens)},
		StopReason: string(acc.StopReason),
	}, nil
}

func (c *Client) CompleteWithImage(ctx context.Context, imageBytes []byte, mediaType string, prompt string, system string, maxTokens int) (string, error) {
	if maxTokens <= 0 {
		maxTokens = int(defaultMaxTokens)
	}
	imgBlock := anthropicsdk.NewImageBlockBase64(mediaType, base64.StdEncoding.EncodeToString(imageBytes))
	textBlock := anthropicsdk.NewTextBlock(prompt)
	params := anthropicsdk.MessageNewParams{
		Model:     anthropicsdk.Model(c.model),
		MaxTokens: int64(maxTokens),
		Messages: []anthropicsdk.MessageParam{
			anthropicsdk.NewUserMessage(imgBlock, textBlock),
		},
	}
	if system != "" {
		params.System = []anthropicsdk.TextBlockParam{{Text: system}}
	}
	resp, err := c.sdk.Messages.New(ctx, params)
	if err != nil {
		return "", &llm.ErrUnsupported{Provider: "anthropic", Operation: "vision"}
	}
	var text strings.Builder
	for _, block := range resp.Content {
		if t, ok := block.AsAny().(anthropicsdk.TextBlock); ok {
			text.WriteString(t.Text)
		}
	}
	return text.String(), nil
}

// Embed is unsupported: Anthropic has no first-party embeddings endpoint.
// Callers fall back to a local or other-provider encoder.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	return nil, &llm.ErrUnsupported{Provider: "anthropic", Operation: "embed"}
}

func (c *Client) buildParams(messages []llm.Message, system string, maxTokens int, temperature float64) anthropicsdk.MessageNewParams {
	if maxTokens <= 0 {
		maxTokens = int(defaultMaxTokens)
	}
	converted := make([]anthropicsdk.MessageParam, 0, len(messages))
	var sys []anthropicsdk.TextBlockParam
	if system != "" {
		sys = append(sys, anthropicsdk.TextBlockParam{Text: system})
	}
	for _, m := range messages {
		switch m.Role {
		case "system":
			sys = append(sys, anthropicsdk.TextBlockParam{Text: m.Content})
		case "assistant":
			converted = append(converted, anthropicsdk.NewAssistantMessage(anthropicsdk.NewTextBlock(m.Content)))
		default:
			converted = append(converted, anthropicsdk.NewUserMessage(anthropicsdk.NewTextBlock(m.Content)))
		}
	}
	return anthropicsdk.MessageNewParams{
		Model:       anthropicsdk.Model(c.model),
		Messages:    converted,
		System:      sys,
		MaxTokens:   int64(maxTokens),
		Temperature: anthropicsdk.Float(temperature),
	}
}

