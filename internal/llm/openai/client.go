// Package openai adapts the OpenAI SDK to the psychoportal llm.Provider
// contract, trimmed to chat-completions + embeddings only (no tool calling, no Responses API,
// no self-hosted transport shims, since the core pipeline never asks a provider
// to call tools).
package openai

import (
	"context"
	stdBase64 "encoding/base64"
	"fmt"
	"net/http"
	"strings"
	"time"

	sdk "github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"

	"github.com/dswagner/psychoportal/internal/config"
	"github.com/dswagner/psychoportal/internal/llm"
	"github.com/dswagner/psychoportal/internal/observability"
)

type Client struct {
	sdk   sdk.Client
	model string
}

func New(cfg config.OpenAIConfig, httpClient *http.Client) *Client {
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
		model = "gpt-4o-mini"
	}
	return &Client{sdk: sdk.NewClient(opts...), model: model}
}

func (c *Client) Name() string { return "openai" }

func (c *Client) buildParams(messages []llm.Message, system string, maxTokens int, temperature float64) sdk.ChatCompletionNewParams {
	msgs := make([]sdk.ChatCompletionMessageParamUnion, 0, len(messages)+1)
	if system != "" {
		msgs = append(msgs, sdk.SystemMessage(system))
	}
	for _, m := range messages {
		switch m.Role {
		case "system":
			msgs = append(msgs, sdk.SystemMessage(m.Content))
		case "assistant":
			msgs = append(msgs, sdk.AssistantMessage(m.Content))
		default:
			msgs = append(msgs, sdk.UserMessage(m.Content))
		}
	}
	params := sdk.ChatCompletionNewParams{
		Model:    sdk.ChatModel(c.model),
		Messages: msgs,
	}
	if maxTokens > 0 {
		params.MaxTokens = sdk.Int(int64(maxTokens))
	}
	params.Temperature = sdk.Float(temperature)
	return params
}

func (c *Client) Complete(ctx context.Context, messages []llm.Message, system string, maxTokens int, temperature float64) (llm.CompletionResult, error) {
	params := c.buildParams(messages, system, maxTokens, temperature)
	log := observability.LoggerWithTrace(ctx)

	start := time.Now()
	comp, err := c.sdk.Chat.Completions.New(ctx, params)
	dur := time.Since(start)
	if err != nil {
		log.Error().Err(err).Str("model", c.model).Dur("duration", dur).Msg("openai_complete_error")
		return llm.CompletionResult{}, fmt.Errorf("openai complete: %w", err)
	}
	if len(comp.Choices) == 0 {
		return llm.CompletionResult{}, fmt.Errorf("openai complete: no choices returned")
	}
	choice := comp.Choices[0]
	return llm.CompletionResult{
		Content:    choice.Message.Content,
		Model:      c.model,
		Usage:      llm.Usage{InputTokens: int(comp.Usage.PromptTokens), OutputTokens: int(comp.Usage.CompletionTokens)},
		StopReason: string(choice.FinishReason),
	}, nil
}

func (c *Client) Stream(ctx context.Context, messages []llm.Message, system string, maxTokens int, temperature float64, h llm.StreamHandler) (llm.CompletionResult, error) {
	params := c.buildParams(messages, system, maxTokens, temperature)
	stream := c.sdk.Chat.Completions.NewStreaming(ctx, params)
	defer func() { _ = stream.Close() }()

	var full strings.Builder
	for stream.Next() {
		chunk := stream.Current()
		if len(chunk.Choices) == 0 {
			continue
		}
		delta := chunk.Choices[0].Delta.Content
		if delta != "" {
			if h != nil {
				h.OnDelta(delta)
			}
			full.WriteString(delta)
		}
	}
	if err := stream.Err(); err != nil {
		return llm.CompletionResult{}, fmt.Errorf("openai stream: %w", err)
	}
	return llm.CompletionResult{Content: full.String(), Model: c.model}, nil
}

func (c *Client) CompleteWithImage(ctx context.Context, imageBytes []byte, mediaType string, prompt string, system string, maxTokens int) (string, error) {
	dataURL := "data:" + mediaType + ";base64," + base64Encode(imageBytes)
	msgs := []sdk.ChatCompletionMessageParamUnion{}
	if system != "" {
		msgs = append(msgs, sdk.SystemMessage(system))
	}
	msgs = append(msgs, sdk.UserMessage([]sdk.ChatCompletionContentPartUnionParam{
		{OfText: &sdk.ChatCompletionContentPartTextParam{Text: prompt}},
		{OfImageURL: &sdk.ChatCompletionContentPartImageParam{
			ImageURL: sdk.ChatCompletionContentPartImageImageURLParam{URL: dataURL},
		}},
	}))
	params := sdk.ChatCompletionNewParams{Model: sdk.ChatModel(c.model), Messages: msgs}
	if maxTokens > 0 {
		params.MaxTokens = sdk.Int(int64(maxTokens))
	}
	comp, err := c.sdk.Chat.Completions.New(ctx, params)
	if err != nil || len(comp.Choices) == 0 {
		return "", &llm.ErrUnsupported{Provider: "openai", Operation: "vision"}
	}
	return comp.Choices[0].Message.Content, nil
}

func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := c.sdk.Embeddings.New(ctx, sdk.EmbeddingNewParams{
		Model: sdk.EmbeddingModelTextEmbedding3Small,
		Input: sdk.EmbeddingNewParamsInputUnion{OfString: sdk.String(text)},
	})
	if err != nil {
		return nil, fmt.Errorf("openai embed: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("openai embed: no embedding returned")
	}
	vec := make([]float32, len(resp.Data[0].Embedding))
	for i, f := range resp.Data[0].Embedding {
		vec[i] = float32(f)
	}
	return vec, nil
}

func base64Encode(b []byte) string {
	return stdBase64.StdEncoding.EncodeToString(b)
}
