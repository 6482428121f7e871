package ollama

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"polymath/pkg/llm"

	jsoniter "github.com/json-iterator/go"
	"github.com/ollama/ollama/api"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// OllamaClient Ollama API client
type OllamaClient struct {
	client       *api.Client
	model        string
	options      map[string]any
	debugEnabled bool
}

// SetDebug implements the llm.LLMClient interface
func (o *OllamaClient) SetDebug(enabled bool) {
	o.debugEnabled = enabled
}

// NewOllamaClient creates an Ollama client. apiKey is sent as a bearer token
// for hosted Ollama endpoints; local servers ignore it.
func NewOllamaClient(model, baseURL, apiKey string, options map[string]any, base http.RoundTripper) (*OllamaClient, error) {
	if base == nil {
		// Custom Transport to ensure no timeouts are imposed by the client
		base = &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout:   30 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			ForceAttemptHTTP2:     true,
			MaxIdleConns:          100,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
		}
	}

	customClient := &http.Client{
		Transport: &bearerRoundTripper{
			token:   apiKey,
			Proxied: &JSONFixingRoundTripper{Proxied: base},
		},
	}

	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}

	slog.Debug("Ollama client initialized", "model", model, "base_url", baseURL)

	return &OllamaClient{
		client:  api.NewClient(u, customClient),
		model:   model,
		options: options,
	}, nil
}

func (o *OllamaClient) Provider() string {
	return "ollama:" + o.model
}

func (o *OllamaClient) requestOptions(opts *llm.ChatOptions) map[string]any {
	merged := make(map[string]any, len(o.options)+3)
	maps.Copy(merged, o.options)
	if maxTok, ok := merged["max_tokens"]; ok {
		delete(merged, "max_tokens")
		merged["num_predict"] = maxTok
	}
	if opts != nil {
		if len(opts.Stop) > 0 {
			merged["stop"] = opts.Stop
		}
		if opts.Temperature != nil {
			merged["temperature"] = *opts.Temperature
		}
		if opts.MaxTokens > 0 {
			merged["num_predict"] = opts.MaxTokens
		}
	}
	return merged
}

func (o *OllamaClient) StreamChat(ctx context.Context, messages []llm.Message, opts *llm.ChatOptions) (<-chan llm.StreamChunk, error) {
	apiMessages := convertMessages(messages)
	if len(apiMessages) == 0 {
		return nil, fmt.Errorf("ollama: no messages to send")
	}

	chunkCh := make(chan llm.StreamChunk, 100)
	startResultCh := make(chan error) // Unbuffered to detect if reader is present

	go func() {
		defer close(chunkCh)

		streamVal := true
		req := &api.ChatRequest{
			Model:    o.model,
			Messages: apiMessages,
			Options:  o.requestOptions(opts),
			Stream:   &streamVal,
		}

		debugger := llm.NewStreamDebugger(ctx, "ollama", o.model, o.debugEnabled)
		defer debugger.Close()

		started := false
		var thoughtsCount int
		chunkIdx := 0

		err := o.client.Chat(ctx, req, func(resp api.ChatResponse) error {
			chunkIdx++
			if data, err := json.Marshal(resp); err == nil {
				debugger.Write(data)
			}
			// First callback indicates success
			if !started {
				started = true
				select {
				case startResultCh <- nil:
				default:
				}
			}

			if resp.Message.Thinking != "" {
				thoughtsCount++
				chunkCh <- llm.NewThinkingChunk(resp.Message.Thinking)
			}

			if resp.Message.Content != "" {
				chunkCh <- llm.NewTextChunk(resp.Message.Content)
			}

			if resp.Done {
				reason := normalizeStopReason(resp.DoneReason)
				usage := &llm.LLMUsage{
					PromptTokens:     resp.PromptEvalCount,
					CompletionTokens: resp.EvalCount,
					TotalTokens:      resp.PromptEvalCount + resp.EvalCount,
					ThoughtsTokens:   thoughtsCount,
					StopReason:       reason,
				}
				if reason == llm.StopReasonLength {
					slog.WarnContext(ctx, "Response truncated due to length", "provider", "ollama")
				}
				chunkCh <- llm.NewFinalChunk(reason, usage)
			}

			return nil
		})

		if err != nil {
			slog.ErrorContext(ctx, "Stream error", "provider", "ollama", "model", o.model, "chunks", chunkIdx, "error", err)
			if !started {
				select {
				case startResultCh <- err:
				default:
					// Waiter is gone, send error message to user instead
					chunkCh <- llm.NewErrorChunk(fmt.Sprintf("Error loading model %s: %v", o.model, err), err, true)
				}
			} else {
				chunkCh <- llm.NewErrorChunk(fmt.Sprintf("Stream interrupted: %v", err), err, true)
			}
		} else if !started {
			select {
			case startResultCh <- nil:
			default:
			}
			chunkCh <- llm.NewFinalChunk(llm.StopReasonStop, nil)
		}
	}()

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

// convertMessages converts messages to Ollama API format
func convertMessages(messages []llm.Message) []api.Message {
	var ollamaMsgs []api.Message
	for _, m := range messages {
		var text, thinking strings.Builder
		for _, block := range m.Content {
			switch block.Type {
			case llm.BlockTypeText:
				text.WriteString(block.Text)
			case llm.BlockTypeThinking:
				thinking.WriteString(block.Text)
			}
		}
		ollamaMsgs = append(ollamaMsgs, api.Message{
			Role:     m.Role,
			Content:  text.String(),
			Thinking: thinking.String(),
		})
	}
	return ollamaMsgs
}

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

// IsTransientError implements the llm.LLMClient interface
func (o *OllamaClient) IsTransientError(err error) bool {
	if err == nil {
		return false
	}

	var statusErr api.StatusError
	if errorsAsStatus(err, &statusErr) {
		return statusErr.StatusCode == http.StatusTooManyRequests || statusErr.StatusCode >= 500
	}

	errMsg := strings.ToLower(err.Error())

	// Connection related errors (Connection refused, reset)
	if strings.Contains(errMsg, "connection refused") || strings.Contains(errMsg, "connection reset") {
		return true
	}

	// High load
	if strings.Contains(errMsg, "overloaded") || strings.Contains(errMsg, "server busy") {
		return true
	}

	return false
}
