package gemini

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"polymath/pkg/llm"

	jsoniter "github.com/json-iterator/go"
	"google.golang.org/genai"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// GeminiClient Google Gemini API client
type GeminiClient struct {
	client       *genai.Client
	model        string
	useThought   bool
	debugEnabled bool
	options      map[string]any
}

// SetDebug implements the llm.LLMClient interface
func (g *GeminiClient) SetDebug(enabled bool) {
	g.debugEnabled = enabled
}

// NewGeminiClient creates a Gemini client with a single model and API key.
// baseURL and httpClient are optional.
func NewGeminiClient(ctx context.Context, apiKey, model, baseURL string, useThought bool, options map[string]any, httpClient *http.Client) (*GeminiClient, error) {
	cc := &genai.ClientConfig{
		APIKey:     apiKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: httpClient,
	}
	if baseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: baseURL}
	}

	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &GeminiClient{
		client:     client,
		model:      model,
		useThought: useThought,
		options:    options,
	}, nil
}

func (g *GeminiClient) Provider() string {
	return "gemini:" + g.model
}

// formatModality formats ModalityTokenCount array for logging
func formatModality(details []*genai.ModalityTokenCount) string {
	if len(details) == 0 {
		return "0"
	}
	var res []string
	for _, d := range details {
		res = append(res, fmt.Sprintf("%v: %d", d.Modality, d.TokenCount))
	}
	return strings.Join(res, " | ")
}

func (g *GeminiClient) generateConfig(systemInstruction *genai.Content, opts *llm.ChatOptions) *genai.GenerateContentConfig {
	cfg := &genai.GenerateContentConfig{
		SystemInstruction: systemInstruction,
	}
	if g.useThought {
		cfg.ThinkingConfig = &genai.ThinkingConfig{IncludeThoughts: true}
	}
	if t, ok := g.options["temperature"].(float64); ok {
		cfg.Temperature = genai.Ptr(float32(t))
	}
	if maxTok, ok := g.options["max_tokens"].(float64); ok {
		cfg.MaxOutputTokens = int32(maxTok)
	}
	if opts != nil {
		if len(opts.Stop) > 0 {
			cfg.StopSequences = opts.Stop
		}
		if opts.Temperature != nil {
			cfg.Temperature = genai.Ptr(float32(*opts.Temperature))
		}
		if opts.MaxTokens > 0 {
			cfg.MaxOutputTokens = int32(opts.MaxTokens)
		}
	}
	return cfg
}

// StreamChat implements llm.LLMClient.StreamChat
func (g *GeminiClient) StreamChat(ctx context.Context, messages []llm.Message, opts *llm.ChatOptions) (<-chan llm.StreamChunk, error) {
	apiMessages, systemInstruction := g.convertMessages(messages)
	if len(apiMessages) == 0 {
		return nil, fmt.Errorf("gemini: no messages to send")
	}

	chunkCh := make(chan llm.StreamChunk, 100)
	startResultCh := make(chan error, 1)

	slog.DebugContext(ctx, "Streaming", "provider", "gemini", "model", g.model)

	go func() {
		defer close(chunkCh)

		iter := g.client.Models.GenerateContentStream(ctx, g.model, apiMessages, g.generateConfig(systemInstruction, opts))

		debugger := llm.NewStreamDebugger(ctx, "gemini", g.model, g.debugEnabled)
		defer debugger.Close()

		started := false
		var lastUsage *llm.LLMUsage
		var stopReason string

		for resp, err := range iter {
			if resp != nil {
				if data, mErr := json.Marshal(resp); mErr == nil {
					debugger.Write(data)
				}
			}
			if err != nil {
				// The iterator may return data along with the error
				if resp == nil {
					slog.WarnContext(ctx, "Gemini stream error", "model", g.model, "error", err)
					if !started {
						startResultCh <- err
					} else {
						chunkCh <- llm.NewErrorChunk(fmt.Sprintf("Stream interrupted: %v", err), err, true)
					}
					return
				}
				slog.WarnContext(ctx, "Gemini stream error (with data)", "model", g.model, "error", err)
			}

			if !started {
				started = true
				startResultCh <- nil
			}

			// Usage metadata usually arrives with the last chunk
			if resp.UsageMetadata != nil {
				u := resp.UsageMetadata
				lastUsage = &llm.LLMUsage{
					PromptTokens:     int(u.PromptTokenCount),
					PromptDetail:     formatModality(u.PromptTokensDetails),
					CompletionTokens: int(u.CandidatesTokenCount),
					CompletionDetail: formatModality(u.CandidatesTokensDetails),
					TotalTokens:      int(u.TotalTokenCount),
					ThoughtsTokens:   int(u.ThoughtsTokenCount),
					CachedTokens:     int(u.CachedContentTokenCount),
				}
			}

			for _, candidate := range resp.Candidates {
				if candidate.FinishReason != "" {
					stopReason = normalizeStopReason(candidate.FinishReason)
				}
				if candidate.Content == nil {
					continue
				}

				var blocks []llm.ContentBlock
				for _, part := range candidate.Content.Parts {
					if part.Text == "" {
						continue
					}
					if part.Thought {
						blocks = append(blocks, llm.NewThinkingBlock(part.Text))
					} else {
						blocks = append(blocks, llm.NewTextBlock(part.Text))
					}
				}
				if len(blocks) > 0 {
					chunkCh <- llm.StreamChunk{ContentBlocks: blocks}
				}
			}
		}

		if !started {
			// Empty stream: report success and close with a bare final chunk
			startResultCh <- nil
		}
		if stopReason == "" {
			stopReason = llm.StopReasonStop
		}
		if lastUsage != nil {
			lastUsage.StopReason = stopReason
		}
		chunkCh <- llm.NewFinalChunk(stopReason, lastUsage)
	}()

	// Wait for the first chunk or an immediate error
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

// convertMessages converts message list to GenAI format
func (g *GeminiClient) convertMessages(messages []llm.Message) ([]*genai.Content, *genai.Content) {
	var genaiContents []*genai.Content

	system, rest := llm.SplitSystem(messages)
	var systemInstruction *genai.Content
	if system != "" {
		systemInstruction = &genai.Content{Parts: []*genai.Part{{Text: system}}}
	}

	for _, msg := range rest {
		role := "user"
		if msg.Role == llm.RoleAssistant {
			role = "model"
		}

		var parts []*genai.Part
		for _, block := range msg.Content {
			if block.Text == "" {
				continue
			}
			switch block.Type {
			case llm.BlockTypeText:
				parts = append(parts, &genai.Part{Text: block.Text})
			case llm.BlockTypeThinking:
				parts = append(parts, &genai.Part{Text: block.Text, Thought: true})
			}
		}

		if len(parts) > 0 {
			genaiContents = append(genaiContents, &genai.Content{
				Role:  role,
				Parts: parts,
			})
		}
	}

	return genaiContents, systemInstruction
}

func normalizeStopReason(reason genai.FinishReason) string {
	switch reason {
	case genai.FinishReasonMaxTokens:
		return llm.StopReasonLength
	case genai.FinishReasonStop, genai.FinishReasonUnspecified:
		return llm.StopReasonStop
	default:
		return strings.ToLower(string(reason))
	}
}

// IsTransientError implements the llm.LLMClient interface
func (g *GeminiClient) IsTransientError(err error) bool {
	if err == nil {
		return false
	}

	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code == http.StatusTooManyRequests || apiErr.Code >= 500
	}

	errMsg := strings.ToLower(err.Error())

	// 503 Service Unavailable / Overloaded
	if strings.Contains(errMsg, "503") || strings.Contains(errMsg, "overloaded") {
		return true
	}

	// 429 Too Many Requests (Rate Limit)
	if strings.Contains(errMsg, "429") || strings.Contains(errMsg, "resource exhausted") {
		return true
	}

	// 500 Internal Error
	if strings.Contains(errMsg, "500") || strings.Contains(errMsg, "internal error") {
		return true
	}

	return false
}
