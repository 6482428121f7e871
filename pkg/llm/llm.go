package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
)

// json is the package-wide codec, json-iterator in std-compatible mode.
var json = jsoniter.ConfigCompatibleWithStandardLibrary

// LLMUsage is the provider-neutral token accounting of one completion.
type LLMUsage struct {
	PromptTokens     int    `json:"prompt_tokens"`
	CompletionTokens int    `json:"completion_tokens"`
	TotalTokens      int    `json:"total_tokens"`
	ThoughtsTokens   int    `json:"thoughts_tokens,omitempty"`
	CachedTokens     int    `json:"cached_tokens,omitempty"`
	PromptDetail     string `json:"prompt_detail,omitempty"`
	CompletionDetail string `json:"completion_detail,omitempty"`
	StopReason       string `json:"stop_reason,omitempty"`
}

// LogUsage prints the usage statistics of one completion at debug level.
func LogUsage(ctx context.Context, model string, usage *LLMUsage) {
	if usage == nil {
		return
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "\n> ### 📊 Usage (%s)\n", model)
	fmt.Fprintf(&sb, "> | Item | Tokens | Detail |\n")
	fmt.Fprintf(&sb, "> | :--- | :--- | :--- |\n")
	fmt.Fprintf(&sb, "> | **Prompt** | %d | %s |\n", usage.PromptTokens, usage.PromptDetail)
	fmt.Fprintf(&sb, "> | **Response** | %d | %s |\n", usage.CompletionTokens, usage.CompletionDetail)
	fmt.Fprintf(&sb, "> | **Total** | **%d** | - |\n", usage.TotalTokens)
	if usage.ThoughtsTokens > 0 {
		fmt.Fprintf(&sb, "> | **Thoughts** | %d | - |\n", usage.ThoughtsTokens)
	}
	if usage.StopReason != "" {
		fmt.Fprintf(&sb, "> | **Stop reason** | %s | - |\n", usage.StopReason)
	}
	if usage.CachedTokens > 0 {
		fmt.Fprintf(&sb, "> | **Cached** | %d | - |\n", usage.CachedTokens)
	}
	fmt.Fprint(&sb, "> ---")

	slog.DebugContext(ctx, sb.String())
}

// ChatOptions are per-call generation settings. Zero values leave the
// provider's configured defaults in place.
type ChatOptions struct {
	// Stop lists sequences at which generation halts. The sequence itself is
	// not part of the output.
	Stop []string
	// Temperature overrides the configured sampling temperature.
	Temperature *float64
	// MaxTokens caps the completion length.
	MaxTokens int
}

// Float returns a pointer to v, for ChatOptions.Temperature.
func Float(v float64) *float64 { return &v }

// LLMClient is the provider-neutral chat completion interface.
type LLMClient interface {
	// StreamChat sends the conversation and returns a channel of incremental
	// chunks. The channel is closed after the final chunk.
	StreamChat(ctx context.Context, messages []Message, opts *ChatOptions) (<-chan StreamChunk, error)

	// IsTransientError reports whether err is worth retrying (503, rate limit).
	IsTransientError(err error) bool

	// Provider names the backend and model, for logs.
	Provider() string
}

// ErrEmptyCompletion is returned by Complete when the stream ended without text.
var ErrEmptyCompletion = errors.New("llm returned an empty completion")

// Complete drains a stream into one string. Thinking blocks are dropped.
// A final error chunk fails the call.
func Complete(ctx context.Context, client LLMClient, messages []Message, opts *ChatOptions) (string, error) {
	ch, err := client.StreamChat(ctx, messages, opts)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	var streamErr error
	for chunk := range ch {
		if chunk.Error != "" {
			if chunk.RawError != nil {
				streamErr = fmt.Errorf("%s: %w", chunk.Error, chunk.RawError)
			} else {
				streamErr = errors.New(chunk.Error)
			}
			if chunk.IsFinal {
				break
			}
			continue
		}
		for _, block := range chunk.ContentBlocks {
			if block.Type == BlockTypeText {
				sb.WriteString(block.Text)
			}
		}
		if chunk.IsFinal {
			LogUsage(ctx, client.Provider(), chunk.Usage)
		}
	}
	// Let the producer finish if we broke out early.
	go func() {
		for range ch {
		}
	}()

	if streamErr != nil {
		return "", streamErr
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if sb.Len() == 0 {
		return "", ErrEmptyCompletion
	}
	return sb.String(), nil
}

// FallbackClient tries each client in order, retrying transient errors.
type FallbackClient struct {
	Clients    []LLMClient
	MaxRetries int
	RetryDelay time.Duration
}

// StreamChat implements LLMClient. Only errors returned before streaming
// starts trigger a retry or a fallback.
func (f *FallbackClient) StreamChat(ctx context.Context, messages []Message, opts *ChatOptions) (<-chan StreamChunk, error) {
	var lastErr error
	for i, client := range f.Clients {
		if i > 0 {
			slog.WarnContext(ctx, "Previous provider failed, trying fallback", "index", i+1, "provider", client.Provider())
		}

		maxRetries := f.MaxRetries
		if maxRetries <= 0 {
			maxRetries = 1
		}

		for retry := 1; retry <= maxRetries; retry++ {
			if retry > 1 {
				slog.InfoContext(ctx, "Retrying provider", "provider", client.Provider(), "attempt", retry, "max", maxRetries)
				select {
				case <-ctx.Done():
					return nil, ctx.Err()
				case <-time.After(time.Duration(retry-1) * f.RetryDelay):
				}
			}

			ch, err := client.StreamChat(ctx, messages, opts)
			if err == nil {
				return ch, nil
			}
			lastErr = err

			if client.IsTransientError(err) && retry < maxRetries {
				slog.WarnContext(ctx, "Provider failed with transient error", "provider", client.Provider(), "error", err)
				continue
			}

			slog.ErrorContext(ctx, "Provider failed", "provider", client.Provider(), "error", err)
			break
		}
	}
	return nil, fmt.Errorf("all fallback providers failed: %w", lastErr)
}

// IsTransientError implements LLMClient. Exhausting the whole chain is final.
func (f *FallbackClient) IsTransientError(err error) bool {
	return false
}

// Provider implements LLMClient.
func (f *FallbackClient) Provider() string {
	names := make([]string, len(f.Clients))
	for i, c := range f.Clients {
		names[i] = c.Provider()
	}
	return "fallback[" + strings.Join(names, ",") + "]"
}
