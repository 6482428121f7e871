package tools

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"polymath/pkg/config"
	"polymath/pkg/llm"

	"github.com/google/go-cmp/cmp"
)

// fakeLLM answers every call with the next scripted reply.
type fakeLLM struct {
	replies []string
	err     error
	prompts []string
	opts    []*llm.ChatOptions
}

func (f *fakeLLM) StreamChat(ctx context.Context, messages []llm.Message, opts *llm.ChatOptions) (<-chan llm.StreamChunk, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.prompts = append(f.prompts, messages[len(messages)-1].GetTextContent())
	f.opts = append(f.opts, opts)
	reply := ""
	if len(f.replies) > 0 {
		reply, f.replies = f.replies[0], f.replies[1:]
	}
	ch := make(chan llm.StreamChunk, 2)
	ch <- llm.NewTextChunk(reply)
	ch <- llm.NewFinalChunk(llm.StopReasonStop, nil)
	close(ch)
	return ch, nil
}

func (f *fakeLLM) IsTransientError(error) bool { return false }
func (f *fakeLLM) Provider() string            { return "fake" }

func TestToolRegistry_KeepsOrder(t *testing.T) {
	c := &fakeLLM{}
	tr := NewDefaultRegistry(c, config.WikipediaConfig{BaseURL: "http://invalid"}, nil, time.Second)

	want := []string{"Wikipedia", "Calculator", "Reasoning Tool"}
	if diff := cmp.Diff(want, tr.Names()); diff != "" {
		t.Fatalf("names mismatch (-want +got):\n%s", diff)
	}

	tr.Unregister("Calculator")
	tr.Register(NewCalculatorTool(c))
	want = []string{"Wikipedia", "Reasoning Tool", "Calculator"}
	if diff := cmp.Diff(want, tr.Names()); diff != "" {
		t.Fatalf("names mismatch after re-register (-want +got):\n%s", diff)
	}

	if _, ok := tr.Get("Reasoning Tool"); !ok {
		t.Fatal("expected Reasoning Tool")
	}
	if got := len(tr.GetAll()); got != 3 {
		t.Fatalf("expected 3 tools, got %d", got)
	}
}

func TestEvaluate(t *testing.T) {
	tests := []struct {
		expr string
		want string
	}{
		{"25 * 13", "325"},
		{"37593 * 67", "2518731"},
		{"2 + 3", "5"},
		{"10 / 4", "2.5"},
		{"10 / 2", "5"},
		{"2 ** 10", "1024"},
		{"2 ^ 3", "8"},
		{"sqrt(16)", "4"},
		{"round(pi * 100) / 100", "3.14"},
		{"37593**(1/5)", "8.222831614237718"},
		{"7 % 3", "1"},
		{"2 + 3 * 4 - 1", "13"},
		{"1.5 + 2", "3.5"},
		{"9223372036854775807 + 1", "9.223372036854776e+18"},
		{"-9223372036854775807 - 2", "-9.223372036854776e+18"},
		{"9999999999 * 9999999999", "9.999999998e+19"},
	}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			got, err := Evaluate(tt.expr)
			if err != nil {
				t.Fatalf("unexpected err: %v", err)
			}
			if got != tt.want {
				t.Fatalf("got %q want %q", got, tt.want)
			}
		})
	}
}

func TestEvaluate_Errors(t *testing.T) {
	for _, in := range []string{"", "25 *", "foo(3)", "1 / 0"} {
		if _, err := Evaluate(in); err == nil {
			t.Errorf("%q: expected error", in)
		}
	}
}

func TestCalculatorTool(t *testing.T) {
	tests := []struct {
		name    string
		reply   string
		want    string
		wantErr string
	}{
		{name: "expression block", reply: "```text\n25 * 13\n```\n...calculate(\"25 * 13\")...\n", want: "Answer: 325"},
		{name: "direct answer", reply: "Answer: 42", want: "Answer: 42"},
		{name: "answer after text", reply: "The result is simple.\nAnswer: 7", want: "Answer: 7"},
		{name: "garbage", reply: "I cannot do that", wantErr: "unknown format from LLM"},
		{name: "bad expression", reply: "```text\n25 * \n```", wantErr: "valid numerical expression"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &fakeLLM{replies: []string{tt.reply}}
			got, err := NewCalculatorTool(c).Call(context.Background(), "What is 25 * 13?")
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected err: %v", err)
			}
			if got != tt.want {
				t.Fatalf("got %q want %q", got, tt.want)
			}
			if !strings.HasSuffix(c.prompts[0], "Question: What is 25 * 13?\n") {
				t.Errorf("prompt missing question: %s", c.prompts[0])
			}
			if !strings.Contains(c.prompts[0], "supports + - * / % ** ^,") || strings.Contains(c.prompts[0], "%!") {
				t.Errorf("prompt mangled: %s", c.prompts[0])
			}
			if c.opts[0] == nil || len(c.opts[0].Stop) != 1 || c.opts[0].Stop[0] != "```output" {
				t.Errorf("expected output fence stop, got %+v", c.opts[0])
			}
		})
	}
}

func TestCalculatorTool_LLMErrorSurfaces(t *testing.T) {
	boom := errors.New("401 Unauthorized")
	_, err := NewCalculatorTool(&fakeLLM{err: boom}).Call(context.Background(), "1+1")
	if !errors.Is(err, boom) {
		t.Fatalf("expected delegate error, got %v", err)
	}
}

func TestReasoningTool_FillsTemplate(t *testing.T) {
	c := &fakeLLM{replies: []string{"1. Add the numbers.\n2. The sum is 5."}}
	got, err := NewReasoningTool(c).Call(context.Background(), "What is the sum of 2 and 3?")
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if got != "1. Add the numbers.\n2. The sum is 5." {
		t.Fatalf("reply must be returned verbatim, got %q", got)
	}
	p := c.prompts[0]
	if !strings.Contains(p, "point-wise") || !strings.Contains(p, "Question: What is the sum of 2 and 3?\nAnswer:") {
		t.Fatalf("unexpected prompt %q", p)
	}
}

func newWikiServer(t *testing.T, search, extracts string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("User-Agent") == "" {
			t.Error("missing User-Agent")
		}
		w.Header().Set("Content-Type", "application/json")
		q := r.URL.Query()
		switch {
		case q.Get("list") == "search":
			if len([]rune(q.Get("srsearch"))) > maxQueryLength {
				t.Errorf("query not truncated: %d", len(q.Get("srsearch")))
			}
			w.Write([]byte(search))
		case q.Get("prop") == "extracts":
			w.Write([]byte(extracts))
		default:
			http.Error(w, "bad request", http.StatusBadRequest)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestWikipediaTool_Summaries(t *testing.T) {
	search := `{"query":{"search":[
		{"title":"Isaac Newton","snippet":"English <span class=\"searchmatch\">physicist</span>"},
		{"title":"Gravity","snippet":"<span class=\"searchmatch\">Gravity</span> is a force"}
	]}}`
	extracts := `{"query":{"pages":{
		"1":{"pageid":1,"title":"Isaac Newton","extract":"Sir Isaac Newton was an English polymath."},
		"2":{"pageid":2,"title":"Gravity","extract":""}
	}}}`
	srv := newWikiServer(t, search, extracts)

	tool := NewWikipediaTool(config.WikipediaConfig{BaseURL: srv.URL, TopKResults: 2, MaxChars: 4000}, srv.Client(), time.Second)
	got, err := tool.Call(context.Background(), "Who discovered gravity?")
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	want := "Page: Isaac Newton\nSummary: Sir Isaac Newton was an English polymath.\n\nPage: Gravity\nSummary: Gravity is a force"
	if got != want {
		t.Fatalf("got:\n%s\nwant:\n%s", got, want)
	}
}

func TestWikipediaTool_FollowsRedirects(t *testing.T) {
	search := `{"query":{"search":[{"title":"Newton","snippet":""}]}}`
	extracts := `{"query":{"redirects":[{"from":"Newton","to":"Isaac Newton"}],"pages":{"1":{"title":"Isaac Newton","extract":"Physicist."}}}}`
	srv := newWikiServer(t, search, extracts)

	tool := NewWikipediaTool(config.WikipediaConfig{BaseURL: srv.URL}, srv.Client(), time.Second)
	got, err := tool.Call(context.Background(), "Newton")
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if got != "Page: Newton\nSummary: Physicist." {
		t.Fatalf("got %q", got)
	}
}

func TestWikipediaTool_NoResultsAndTruncation(t *testing.T) {
	empty := newWikiServer(t, `{"query":{"search":[]}}`, `{}`)
	tool := NewWikipediaTool(config.WikipediaConfig{BaseURL: empty.URL}, empty.Client(), time.Second)
	got, err := tool.Call(context.Background(), strings.Repeat("x", 500))
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if got != NoWikipediaResult {
		t.Fatalf("got %q", got)
	}

	long := newWikiServer(t,
		`{"query":{"search":[{"title":"Pi","snippet":""}]}}`,
		`{"query":{"pages":{"1":{"title":"Pi","extract":"`+strings.Repeat("π", 100)+`"}}}}`)
	tool = NewWikipediaTool(config.WikipediaConfig{BaseURL: long.URL, MaxChars: 30}, long.Client(), time.Second)
	got, err = tool.Call(context.Background(), "pi")
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if n := len([]rune(got)); n != 30 {
		t.Fatalf("expected 30 characters, got %d", n)
	}
}

func TestWikipediaTool_HTTPErrorSurfaces(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	tool := NewWikipediaTool(config.WikipediaConfig{BaseURL: srv.URL}, srv.Client(), time.Second)
	if _, err := tool.Call(context.Background(), "anything"); err == nil {
		t.Fatal("expected error")
	}
}

func TestStripMarkup(t *testing.T) {
	got := stripMarkup(`An <span class="searchmatch">apple</span> &amp; a   pear`)
	if got != "An apple & a pear" {
		t.Fatalf("got %q", got)
	}
}
