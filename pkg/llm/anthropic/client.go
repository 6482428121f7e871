package anthropic

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"polymath/pkg/llm"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// defaultMaxTokens is required by the Messages API.
const defaultMaxTokens = 1024

// Client wraps the Anthropic Messages API. The response is fetched in one
// request and replayed as a stream of chunks.
type Client struct {
	client       *anthropic.Client
	model        string
	options      map[string]any
	debugEnabled bool
}

// NewClient creates an Anthropic client. baseURL and httpClient are optional.
func NewClient(apiKey, model, baseURL string, options map[string]any, httpClient *http.Client) (*Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("anthropic: empty API key")
	}
	if model == "" {
		return nil, fmt.Errorf("anthropic: empty model name")
	}

	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	if httpClient != nil {
		opts = append(opts, option.WithHTTPClient(httpClient))
	}
	c := anthropic.NewClient(opts...)

	return &Client{
		client:  &c,
		model:   model,
		options: options,
	}, nil
}

func (c *Client) Provider() string {
	return "anthropic:" + c.model
}

func (c *Client) SetDebug(enabled bool) {
	c.debugEnabled = enabled
}

func (c *Client) params(messages []llm.Message, opts *llm.ChatOptions) anthropic.MessageNewParams {
	system, rest := llm.SplitSystem(messages)

	conv := make([]anthropic.MessageParam, 0, len(rest))
	for _, m := range rest {
		text := m.GetTextContent()
		if text == "" {
			continue
		}
		if m.Role == llm.RoleAssistant {
			conv = append(conv, anthropic.NewAssistantMessage(anthropic.NewTextBlock(text)))
		} else {
			conv = append(conv, anthropic.NewUserMessage(anthropic.NewTextBlock(text)))
		}
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: int64(defaultMaxTokens),
		Messages:  conv,
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}
	if t, ok := c.options["temperature"].(float64); ok {
		params.Temperature = anthropic.Float(t)
	}
	if maxTok, ok := c.options["max_tokens"].(float64); ok && maxTok > 0 {
		params.MaxTokens = int64(maxTok)
	}
	if opts != nil {
		if len(opts.Stop) > 0 {
			params.StopSequences = opts.Stop
		}
		if opts.Temperature != nil {
			params.Temperature = anthropic.Float(*opts.Temperature)
		}
		if opts.MaxTokens > 0 {
			params.MaxTokens = int64(opts.MaxTokens)
		}
	}
	return params
}

// StreamChat implements llm.LLMClient. Request errors are returned directly
// so the FallbackClient can retry them.
func (c *Client) StreamChat(ctx context.Context, messages []llm.Message, opts *llm.ChatOptions) (<-chan llm.StreamChunk, error) {
	params := c.params(messages, opts)
	if len(params.Messages) == 0 {
		return nil, fmt.Errorf("anthropic: no messages to send")
	}

	msg, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return nil, err
	}

	debugger := llm.NewStreamDebugger(ctx, "anthropic", c.model, c.debugEnabled)
	if raw := msg.RawJSON(); raw != "" {
		debugger.WriteString(raw)
	}
	debugger.Close()

	chunkCh := make(chan llm.StreamChunk, len(msg.Content)+1)
	for _, b := range msg.Content {
		switch block := b.AsAny().(type) {
		case anthropic.TextBlock:
			if block.Text != "" {
				chunkCh <- llm.NewTextChunk(block.Text)
			}
		case anthropic.ThinkingBlock:
			if block.Thinking != "" {
				chunkCh <- llm.NewThinkingChunk(block.Thinking)
			}
		}
	}

	reason := normalizeStopReason(msg.StopReason)
	usage := &llm.LLMUsage{
		PromptTokens:     int(msg.Usage.InputTokens),
		CompletionTokens: int(msg.Usage.OutputTokens),
		TotalTokens:      int(msg.Usage.InputTokens + msg.Usage.OutputTokens),
		CachedTokens:     int(msg.Usage.CacheReadInputTokens),
		StopReason:       reason,
	}
	chunkCh <- llm.NewFinalChunk(reason, usage)
	close(chunkCh)

	slog.DebugContext(ctx, "Anthropic message received", "model", c.model, "stop_reason", msg.StopReason)
	return chunkCh, nil
}

func normalizeStopReason(reason anthropic.StopReason) string {
	switch reason {
	case anthropic.StopReasonMaxTokens:
		return llm.StopReasonLength
	case anthropic.StopReasonEndTurn, anthropic.StopReasonStopSequence, "":
		return llm.StopReasonStop
	default:
		return strings.ToLower(string(reason))
	}
}

func (c *Client) IsTransientError(err error) bool {
	if err == nil {
		return false
	}
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		// 529 is Anthropic's "overloaded"
		return apiErr.StatusCode == http.StatusTooManyRequests || apiErr.StatusCode >= 500
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "timeout") ||
		strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "overloaded")
}
