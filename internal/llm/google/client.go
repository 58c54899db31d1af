// Package google adapts the google.golang.org/genai SDK to the
// psychoportal llm.Provider contract, trimmed to text completion,
// streaming, vision, and embedding, the same narrowing internal/llm/openai
// applies, since the core pipeline never asks a provider to call tools.
package google

import (
	"context"
	"fmt"
	"strings"
	"time"

	genai "google.golang.org/genai"

	"github.com/dswagner/psychoportal/internal/config"
	"github.com/dswagner/psychoportal/internal/llm"
	"github.com/dswagner/psychoportal/internal/observability"
)

type Client struct {
	sdk   *genai.Client
	model string
}

// New constructs a Client against the Gemini API. An explicit cfg.BaseURL
// (via genai.HTTPOptions) redirects the SDK at a different endpoint: a
// local proxy, or an httptest server in tests.
func New(cfg config.GoogleConfig) (*Client, error) {
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = "gemini-2.0-flash"
	}
	httpOpts := genai.HTTPOptions{}
	if base := strings.TrimSpace(cfg.BaseURL); base != "" {
		httpOpts.BaseURL = strings.TrimSuffix(base, "/") + "/"
	}
	c, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey:      strings.TrimSpace(cfg.APIKey),
		HTTPOptions: httpOpts,
	})
	if err != nil {
		return nil, fmt.Errorf("init google client: %w", err)
	}
	return &Client{sdk: c, model: model}, nil
}

func (c *Client) Name() string { return "google" }

// toContents renders messages into genai's role/parts shape. The system
// prompt has no first-class role in the content API, so it is sent as a
// leading user turn tagged "[system]", the usual workaround for providers
// with no separate system channel; messages with role "system" are sent
// as plain user turns.
func toContents(messages []llm.Message, system string) []*genai.Content {
	contents := make([]*genai.Content, 0, len(messages)+1)
	if system != "" {
		contents = append(contents, genai.NewContentFromText("[system] "+system, genai.RoleUser))
	}
	for _, m := range messages {
		var role genai.Role = genai.RoleUser
		if m.Role == "assistant" {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(m.Content, role))
	}
	return contents
}

func ptrFloat32(f float64) *float32 {
	v := float32(f)
	return &v
}

func (c *Client) Complete(ctx context.Context, messages []llm.Message, system string, maxTokens int, temperature float64) (llm.CompletionResult, error) {
	log := observability.LoggerWithTrace(ctx)
	start := time.Now()
	cfg := &genai.GenerateContentConfig{Temperature: ptrFloat32(temperature)}
	if maxTokens > 0 {
		cfg.MaxOutputTokens = int32(maxTokens)
	}
	resp, err := c.sdk.Models.GenerateContent(ctx, c.model, toContents(messages, system), cfg)
	dur := time.Since(start)
	if err != nil {
		log.Error().Err(err).Str("model", c.model).Dur("duration", dur).Msg("google_complete_error")
		return llm.CompletionResult{}, fmt.Errorf("google complete: %w", err)
	}
	text, stop := extractText(resp)
	return llm.CompletionResult{Content: text, Model: c.model, StopReason: stop}, nil
}

func (c *Client) Stream(ctx context.Context, messages []llm.Message, system string, maxTokens int, temperature float64, h llm.StreamHandler) (llm.CompletionResult, error) {
	cfg := &genai.GenerateContentConfig{Temperature: ptrFloat32(temperature)}
	if maxTokens > 0 {
		cfg.MaxOutputTokens = int32(maxTokens)
	}
	var full strings.Builder
	for resp, err := range c.sdk.Models.GenerateContentStream(ctx, c.model, toContents(messages, system), cfg) {
		if err != nil {
			return llm.CompletionResult{}, fmt.Errorf("google stream: %w", err)
		}
		text, _ := extractText(resp)
		if text == "" {
			continue
		}
		if h != nil {
			h.OnDelta(text)
		}
		full.WriteString(text)
	}
	return llm.CompletionResult{Content: full.String(), Model: c.model}, nil
}

func (c *Client) CompleteWithImage(ctx context.Context, imageBytes []byte, mediaType string, prompt string, system string, maxTokens int) (string, error) {
	parts := []*genai.Part{
		genai.NewPartFromBytes(imageBytes, mediaType),
		genai.NewPartFromText(prompt),
	}
	content := genai.NewContentFromParts(parts, genai.RoleUser)
	contents := []*genai.Content{content}
	if system != "" {
		contents = append([]*genai.Content{genai.NewContentFromText("[system] "+system, genai.RoleUser)}, contents...)
	}
	cfg := &genai.GenerateContentConfig{}
	if maxTokens > 0 {
		cfg.MaxOutputTokens = int32(maxTokens)
	}
	resp, err := c.sdk.Models.GenerateContent(ctx, c.model, contents, cfg)
	if err != nil {
		return "", fmt.Errorf("google vision: %w", err)
	}
	text, _ := extractText(resp)
	return text, nil
}

func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := c.sdk.Models.EmbedContent(ctx, "text-embedding-004", []*genai.Content{genai.NewContentFromText(text, genai.RoleUser)}, nil)
	if err != nil {
		return nil, fmt.Errorf("google embed: %w", err)
	}
	if len(resp.Embeddings) == 0 {
		return nil, fmt.Errorf("google embed: no embedding returned")
	}
	return resp.Embeddings[0].Values, nil
}

func extractText(resp *genai.GenerateContentResponse) (string, string) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", ""
	}
	candidate := resp.Candidates[0]
	var sb strings.Builder
	for _, part := range candidate.Content.Parts {
		if part != nil && part.Text != "" {
			sb.WriteString(part.Text)
		}
	}
	return sb.String(), string(candidate.FinishReason)
}
