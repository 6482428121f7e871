package openailm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"polymath/pkg/llm"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

// Client is a wrapper around the official OpenAI Go SDK, speaking the Chat
// Completions API so that OpenAI-compatible hosts such as Groq work as well.
type Client struct {
	client       *openai.Client
	provider     string
	model        string
	debugEnabled bool
	options      map[string]any
}

// NewClient creates a new OpenAI client. A non-nil httpClient replaces the
// SDK's default transport.
func NewClient(provider string, apiKey string, model string, baseURL string, options map[string]any, httpClient *http.Client) (*Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai: empty API key")
	}
	if model == "" {
		return nil, fmt.Errorf("openai: empty model name")
	}

	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		// Retries are the FallbackClient's job.
		option.WithMaxRetries(0),
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	if httpClient != nil {
		opts = append(opts, option.WithHTTPClient(httpClient))
	}

	client := openai.NewClient(opts...)

	return &Client{
		client:   &client,
		provider: provider,
		model:    model,
		options:  options,
	}, nil
}

func (c *Client) Provider() string {
	return c.provider + ":" + c.model
}

func (c *Client) SetDebug(enabled bool) {
	c.debugEnabled = enabled
}

func (c *Client) IsTransientError(err error) bool {
	if err == nil {
		return false
	}

	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == http.StatusTooManyRequests || apiErr.StatusCode >= 500
	}

	msg := strings.ToLower(err.Error())

	// Transient: network-level issues
	if strings.Contains(msg, "context deadline exceeded") ||
		strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "timeout") {
		return true
	}

	// Transient: server-side temporary failures
	if strings.Contains(msg, "500 internal") ||
		strings.Contains(msg, "502 bad gateway") ||
		strings.Contains(msg, "503 service unavailable") ||
		strings.Contains(msg, "rate limit") ||
		strings.Contains(msg, "overloaded") {
		return true
	}

	// Everything else (400 Bad Request, 401 Unauthorized, etc.) is non-transient
	return false
}

func (c *Client) StreamChat(ctx context.Context, messages []llm.Message, chatOpts *llm.ChatOptions) (<-chan llm.StreamChunk, error) {
	if len(messages) == 0 {
		return nil, fmt.Errorf("openai: no messages to send")
	}

	chunkCh := make(chan llm.StreamChunk, 100)

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(c.model),
		Messages: convertMessages(messages),
		StreamOptions: openai.ChatCompletionStreamOptionsParam{
			IncludeUsage: openai.Bool(true),
		},
	}

	if t, ok := c.options["temperature"].(float64); ok {
		params.Temperature = openai.Float(t)
	}
	if p, ok := c.options["top_p"].(float64); ok {
		params.TopP = openai.Float(p)
	}
	if maxTok, ok := c.options["max_tokens"].(float64); ok {
		params.MaxCompletionTokens = openai.Int(int64(maxTok))
	}

	if chatOpts != nil {
		if len(chatOpts.Stop) > 0 {
			params.Stop = openai.ChatCompletionNewParamsStopUnion{OfStringArray: chatOpts.Stop}
		}
		if chatOpts.Temperature != nil {
			params.Temperature = openai.Float(*chatOpts.Temperature)
		}
		if chatOpts.MaxTokens > 0 {
			params.MaxCompletionTokens = openai.Int(int64(chatOpts.MaxTokens))
		}
	}

	startResultCh := make(chan error, 1)

	go func() {
		defer close(chunkCh)

		stream := c.client.Chat.Completions.NewStreaming(ctx, params)
		defer stream.Close()

		// StreamDebugger handles file creation and lifecycle
		debugger := llm.NewStreamDebugger(ctx, c.provider, c.model, c.debugEnabled)
		defer debugger.Close()

		started := false
		var lastFinishReason string
		var lastUsage *llm.LLMUsage

		for stream.Next() {
			if !started {
				started = true
				startResultCh <- nil
			}
			chunk := stream.Current()

			if raw := chunk.RawJSON(); raw != "" {
				debugger.WriteString(raw)
			}

			for _, choice := range chunk.Choices {
				if choice.Delta.Content != "" {
					chunkCh <- llm.NewTextChunk(choice.Delta.Content)
				}
				if choice.FinishReason != "" {
					lastFinishReason = choice.FinishReason
				}
			}

			if chunk.Usage.TotalTokens > 0 {
				lastUsage = &llm.LLMUsage{
					PromptTokens:     int(chunk.Usage.PromptTokens),
					CompletionTokens: int(chunk.Usage.CompletionTokens),
					TotalTokens:      int(chunk.Usage.TotalTokens),
					CachedTokens:     int(chunk.Usage.PromptTokensDetails.CachedTokens),
				}
			}
		}

		if err := stream.Err(); err != nil {
			slog.WarnContext(ctx, "OpenAI stream failed", "provider", c.Provider(), "error", err)
			if !started {
				startResultCh <- err
				return
			}
			chunkCh <- llm.NewErrorChunk(fmt.Sprintf("Stream error: %v", err), err, true)
			return
		}

		if !started {
			startResultCh <- nil
		}
		reason := normalizeStopReason(lastFinishReason)
		if lastUsage != nil {
			lastUsage.StopReason = reason
		}
		chunkCh <- llm.NewFinalChunk(reason, lastUsage)
	}()

	// Rate limits and outages show up before the first event; returning them
	// here lets the FallbackClient retry or move on.
	select {
	case err := <-startResultCh:
		if err != nil {
			return nil, err
		}
		return chunkCh, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func convertMessages(messages []llm.Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, m := range messages {
		text := m.GetTextContent()
		switch m.Role {
		case llm.RoleSystem:
			out = append(out, openai.SystemMessage(text))
		case llm.RoleAssistant:
			out = append(out, openai.AssistantMessage(text))
		default:
			out = append(out, openai.UserMessage(text))
		}
	}
	return out
}

// normalizeStopReason converts OpenAI-specific finish_reason to
// a standardized lowercase format.
func normalizeStopReason(reason string) string {
	switch strings.ToLower(reason) {
	case "", "stop":
		return llm.StopReasonStop
	case "length":
		return llm.StopReasonLength
	default:
		return reason
	}
}
