package llm

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"polymath/pkg/config"
)

type scriptedClient struct {
	name      string
	errs      []error // returned by successive StreamChat calls before succeeding
	chunks    []StreamChunk
	transient bool
	calls     int
	lastOpts  *ChatOptions
}

func (s *scriptedClient) StreamChat(ctx context.Context, messages []Message, opts *ChatOptions) (<-chan StreamChunk, error) {
	s.calls++
	s.lastOpts = opts
	if s.calls <= len(s.errs) {
		return nil, s.errs[s.calls-1]
	}
	ch := make(chan StreamChunk, len(s.chunks))
	for _, c := range s.chunks {
		ch <- c
	}
	close(ch)
	return ch, nil
}

func (s *scriptedClient) IsTransientError(err error) bool { return s.transient }
func (s *scriptedClient) Provider() string                { return s.name }

func TestComplete_ConcatenatesTextAndSkipsThinking(t *testing.T) {
	c := &scriptedClient{name: "fake", chunks: []StreamChunk{
		NewThinkingChunk("hmm"),
		NewTextChunk("Hello, "),
		NewTextChunk("world"),
		NewFinalChunk(StopReasonStop, &LLMUsage{TotalTokens: 3}),
	}}
	stop := []string{"\nObservation:"}
	got, err := Complete(context.Background(), c, []Message{NewUserMessage("hi")}, &ChatOptions{Stop: stop})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if got != "Hello, world" {
		t.Fatalf("got %q", got)
	}
	if c.lastOpts == nil || len(c.lastOpts.Stop) != 1 {
		t.Fatalf("options not forwarded: %+v", c.lastOpts)
	}
}

func TestComplete_ErrorChunkFails(t *testing.T) {
	raw := errors.New("boom")
	c := &scriptedClient{name: "fake", chunks: []StreamChunk{
		NewTextChunk("partial"),
		NewErrorChunk("Stream error", raw, true),
	}}
	_, err := Complete(context.Background(), c, []Message{NewUserMessage("hi")}, nil)
	if !errors.Is(err, raw) {
		t.Fatalf("expected wrapped raw error, got %v", err)
	}
}

func TestComplete_EmptyStream(t *testing.T) {
	c := &scriptedClient{name: "fake", chunks: []StreamChunk{NewFinalChunk(StopReasonStop, nil)}}
	if _, err := Complete(context.Background(), c, []Message{NewUserMessage("hi")}, nil); !errors.Is(err, ErrEmptyCompletion) {
		t.Fatalf("expected ErrEmptyCompletion, got %v", err)
	}
}

func TestFallbackClient_RetriesTransientThenFallsBack(t *testing.T) {
	first := &scriptedClient{name: "a", transient: true, errs: []error{errors.New("503"), errors.New("503")}}
	second := &scriptedClient{name: "b", chunks: []StreamChunk{NewTextChunk("ok"), NewFinalChunk(StopReasonStop, nil)}}

	f := &FallbackClient{Clients: []LLMClient{first, second}, MaxRetries: 2, RetryDelay: time.Millisecond}
	got, err := Complete(context.Background(), f, []Message{NewUserMessage("hi")}, nil)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if got != "ok" {
		t.Fatalf("got %q", got)
	}
	if first.calls != 2 || second.calls != 1 {
		t.Fatalf("calls: first=%d second=%d", first.calls, second.calls)
	}
}

func TestFallbackClient_NonTransientSkipsRetries(t *testing.T) {
	first := &scriptedClient{name: "a", errs: []error{errors.New("401"), errors.New("401")}}
	second := &scriptedClient{name: "b", errs: []error{errors.New("400")}}

	f := &FallbackClient{Clients: []LLMClient{first, second}, MaxRetries: 3}
	_, err := f.StreamChat(context.Background(), []Message{NewUserMessage("hi")}, nil)
	if err == nil || !strings.Contains(err.Error(), "400") {
		t.Fatalf("expected last error, got %v", err)
	}
	if first.calls != 1 || second.calls != 1 {
		t.Fatalf("calls: first=%d second=%d", first.calls, second.calls)
	}
	if f.IsTransientError(err) {
		t.Fatal("exhausted fallback chain must not be transient")
	}
}

type countingFactory struct {
	gotKey string
	n      int
}

func (c *countingFactory) Create(group ProviderGroupConfig, apiKey string, sys *config.SystemConfig) ([]LLMClient, error) {
	c.gotKey = apiKey
	var out []LLMClient
	for _, m := range group.Models {
		out = append(out, &scriptedClient{name: m})
	}
	c.n += len(out)
	return out, nil
}

func TestNewFromConfig(t *testing.T) {
	f := &countingFactory{}
	RegisterProvider("counting-test", f)

	t.Run("single client is returned bare", func(t *testing.T) {
		c, err := NewFromConfig([]byte(`[{"type":"counting-test","models":["m1"]}]`), "key-1", nil)
		if err != nil {
			t.Fatalf("unexpected err: %v", err)
		}
		if c.Provider() != "m1" || f.gotKey != "key-1" {
			t.Fatalf("provider=%s key=%s", c.Provider(), f.gotKey)
		}
	})

	t.Run("several clients are wrapped", func(t *testing.T) {
		c, err := NewFromConfig([]byte(`[{"type":"nope","models":["x"]},{"type":"counting-test","models":["m1","m2"]}]`), "key-2", config.DefaultSystemConfig())
		if err != nil {
			t.Fatalf("unexpected err: %v", err)
		}
		fb, ok := c.(*FallbackClient)
		if !ok || len(fb.Clients) != 2 || fb.MaxRetries != 3 {
			t.Fatalf("unexpected client %#v", c)
		}
	})

	t.Run("missing key", func(t *testing.T) {
		if _, err := NewFromConfig([]byte(`[{"type":"counting-test","models":["m1"]}]`), "  ", nil); err == nil {
			t.Fatal("expected error")
		}
	})

	t.Run("unknown providers only", func(t *testing.T) {
		if _, err := NewFromConfig([]byte(`[{"type":"nope","models":["x"]}]`), "k", nil); err == nil {
			t.Fatal("expected error")
		}
	})
}

func TestSplitSystem(t *testing.T) {
	sys, rest := SplitSystem([]Message{NewSystemMessage("a"), NewUserMessage("q"), NewSystemMessage("b")})
	if sys != "a\n\nb" || len(rest) != 1 || rest[0].Role != RoleUser {
		t.Fatalf("sys=%q rest=%+v", sys, rest)
	}
}
