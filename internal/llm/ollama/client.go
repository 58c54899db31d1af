// Package ollama implements llm.Provider against a local Ollama daemon's
// /api/chat endpoint, speaking the newline-delimited-JSON streaming
// protocol directly, since Ollama has no first-party Go SDK worth
// depending on.
package ollama

import (
	"bufio"
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/dswagner/psychoportal/internal/llm"
	"github.com/dswagner/psychoportal/internal/observability"
)

func base64Encode(b []byte) string { return base64.StdEncoding.EncodeToString(b) }

// Client implements llm.Provider against Ollama.
type Client struct {
	endpoint string
	model    string
	http     *http.Client
}

// New constructs a Client. endpoint defaults to http://localhost:11434.
func New(endpoint, model string, timeout time.Duration) *Client {
	if endpoint == "" {
		endpoint = "http://localhost:11434"
	}
	if model == "" {
		model = "llama3.1"
	}
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &Client{
		endpoint: endpoint,
		model:    model,
		http:     observability.NewHTTPClient(&http.Client{Timeout: timeout}),
	}
}

func (c *Client) Name() string { return "ollama" }

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
	Images  []string `json:"images,omitempty"`
}

type chatRequest struct {
	Model    string                 `json:"model"`
	Messages []chatMessage          `json:"messages"`
	Stream   bool                   `json:"stream"`
	Options  map[string]interface{} `json:"options,omitempty"`
}

type chatResponse struct {
	Model           string      `json:"model"`
	Message         chatMessage `json:"message"`
	Done            bool        `json:"done"`
	PromptEvalCount int         `json:"prompt_eval_count"`
	EvalCount       int         `json:"eval_count"`
}

func (c *Client) buildMessages(messages []llm.Message, system string) []chatMessage {
	out := make([]chatMessage, 0, len(messages)+1)
	if system != "" {
		out = append(out, chatMessage{Role: "system", Content: system})
	}
	for _, m := range messages {
		out = append(out, chatMessage{Role: m.Role, Content: m.Content})
	}
	return out
}

// Complete runs a single non-streaming chat completion.
func (c *Client) Complete(ctx context.Context, messages []llm.Message, system string, maxTokens int, temperature float64) (llm.CompletionResult, error) {
	req := chatRequest{
		Model:    c.model,
		Messages: c.buildMessages(messages, system),
		Stream:   false,
		Options:  map[string]interface{}{"temperature": temperature, "num_predict": maxTokens},
	}
	resp, err := c.call(ctx, req)
	if err != nil {
		return llm.CompletionResult{}, fmt.Errorf("ollama: complete: %w", err)
	}
	return llm.CompletionResult{
		Content:    resp.Message.Content,
		Model:      resp.Model,
		Usage:      llm.Usage{InputTokens: resp.PromptEvalCount, OutputTokens: resp.EvalCount},
		StopReason: "stop",
	}, nil
}

// Stream runs a streaming chat completion over Ollama's newline-delimited
// JSON protocol, delivering each token to h as it arrives.
func (c *Client) Stream(ctx context.Context, messages []llm.Message, system string, maxTokens int, temperature float64, h llm.StreamHandler) (llm.CompletionResult, error) {
	req := chatRequest{
		Model:    c.model,
		Messages: c.buildMessages(messages, system),
		Stream:   true,
		Options:  map[string]interface{}{"temperature": temperature, "num_predict": maxTokens},
	}
	body, err := json.Marshal(req)
	if err != nil {
		return llm.CompletionResult{}, fmt.Errorf("ollama: marshal stream request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return llm.CompletionResult{}, fmt.Errorf("ollama: build stream request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return llm.CompletionResult{}, fmt.Errorf("ollama: stream request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		observability.LoggerWithTrace(ctx).Error().Int("status", resp.StatusCode).
			RawJSON("body", observability.RedactJSON(raw)).Msg("ollama_stream_bad_status")
		return llm.CompletionResult{}, fmt.Errorf("ollama: stream status %d", resp.StatusCode)
	}

	var content strings.Builder
	var final chatResponse
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		var chunk chatResponse
		if err := json.Unmarshal(scanner.Bytes(), &chunk); err != nil {
			continue
		}
		if chunk.Message.Content != "" {
			content.WriteString(chunk.Message.Content)
			h.OnDelta(chunk.Message.Content)
		}
		if chunk.Done {
			final = chunk
		}
		select {
		case <-ctx.Done():
			return llm.CompletionResult{Content: content.String()}, ctx.Err()
		default:
		}
	}
	if err := scanner.Err(); err != nil {
		return llm.CompletionResult{Content: content.String()}, fmt.Errorf("ollama: read stream: %w", err)
	}
	return llm.CompletionResult{
		Content:    content.String(),
		Model:      final.Model,
		Usage:      llm.Usage{InputTokens: final.PromptEvalCount, OutputTokens: final.EvalCount},
		StopReason: "stop",
	}, nil
}

// CompleteWithImage sends a single user message with an inline base64
// image; Ollama's vision-capable models (llava etc) read the `images`
// field on a user message.
func (c *Client) CompleteWithImage(ctx context.Context, imageBytes []byte, mediaType string, prompt string, system string, maxTokens int) (string, error) {
	msgs := []chatMessage{}
	if system != "" {
		msgs = append(msgs, chatMessage{Role: "system", Content: system})
	}
	msgs = append(msgs, chatMessage{
		Role:    "user",
		Content: prompt,
		Images:  []string{base64Encode(imageBytes)},
	})
	req := chatRequest{Model: c.model, Messages: msgs, Stream: false, Options: map[string]interface{}{"num_predict": maxTokens}}
	resp, err := c.call(ctx, req)
	if err != nil {
		return "", fmt.Errorf("ollama: complete with image: %w", err)
	}
	return resp.Message.Content, nil
}

// Embed is unsupported: Ollama's embedding endpoint is a separate API this
// client doesn't wire, so callers fall back to a local encoder.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	return nil, &llm.ErrUnsupported{Provider: "ollama", Operation: "embed"}
}

func (c *Client) call(ctx context.Context, req chatRequest) (*chatResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		observability.LoggerWithTrace(ctx).Error().Int("status", resp.StatusCode).
			RawJSON("body", observability.RedactJSON(raw)).Msg("ollama_chat_bad_status")
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}
	var out chatResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}
	return &out, nil
}
