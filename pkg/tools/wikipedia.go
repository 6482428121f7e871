package tools

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"polymath/pkg/config"

	"github.com/tidwall/gjson"
	"golang.org/x/net/html"
)

const (
	// WikipediaToolName is the name the agent uses to call the lookup tool.
	WikipediaToolName = "Wikipedia"

	wikipediaDescription = "A tool to search Wikipedia for information."

	// NoWikipediaResult is returned when the search finds nothing usable.
	NoWikipediaResult = "No good Wikipedia Search Result was found"

	// maxQueryLength is the longest query the search API accepts.
	maxQueryLength = 300

	userAgent = "polymath/1.0 (https://github.com/polymath; math and data assistant)"
)

// WikipediaTool searches Wikipedia and returns the intro of the best pages.
type WikipediaTool struct {
	baseURL  string
	topK     int
	maxChars int
	client   *http.Client
}

// NewWikipediaTool builds the lookup tool. A nil client gets a default one
// with the given timeout.
func NewWikipediaTool(cfg config.WikipediaConfig, client *http.Client, timeout time.Duration) *WikipediaTool {
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}
	topK := cfg.TopKResults
	if topK <= 0 {
		topK = 3
	}
	maxChars := cfg.MaxChars
	if maxChars <= 0 {
		maxChars = 4000
	}
	return &WikipediaTool{
		baseURL:  cfg.BaseURL,
		topK:     topK,
		maxChars: maxChars,
		client:   client,
	}
}

func (w *WikipediaTool) Name() string        { return WikipediaToolName }
func (w *WikipediaTool) Description() string { return wikipediaDescription }

type wikiPage struct {
	title   string
	snippet string
}

// Call runs a search and summarizes the top pages as
// "Page: <title>\nSummary: <summary>" blocks.
func (w *WikipediaTool) Call(ctx context.Context, query string) (string, error) {
	query = truncateRunes(strings.TrimSpace(query), maxQueryLength)
	if query == "" {
		return NoWikipediaResult, nil
	}

	pages, err := w.search(ctx, query)
	if err != nil {
		return "", err
	}
	if len(pages) == 0 {
		return NoWikipediaResult, nil
	}

	titles := make([]string, len(pages))
	for i, p := range pages {
		titles[i] = p.title
	}
	extracts, err := w.extracts(ctx, titles)
	if err != nil {
		return "", err
	}

	var summaries []string
	for _, p := range pages {
		summary := strings.TrimSpace(extracts[p.title])
		if summary == "" {
			summary = stripMarkup(p.snippet)
		}
		if summary == "" {
			continue
		}
		summaries = append(summaries, fmt.Sprintf("Page: %s\nSummary: %s", p.title, summary))
	}
	if len(summaries) == 0 {
		return NoWikipediaResult, nil
	}

	out := truncateRunes(strings.Join(summaries, "\n\n"), w.maxChars)
	slog.DebugContext(ctx, "Wikipedia lookup done", "query", query, "pages", len(summaries), "chars", len(out))
	return out, nil
}

func (w *WikipediaTool) search(ctx context.Context, query string) ([]wikiPage, error) {
	params := url.Values{
		"action":   {"query"},
		"list":     {"search"},
		"srsearch": {query},
		"srlimit":  {strconv.Itoa(w.topK)},
		"srprop":   {"snippet"},
		"format":   {"json"},
	}
	body, err := w.get(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("wikipedia search: %w", err)
	}

	var pages []wikiPage
	gjson.GetBytes(body, "query.search").ForEach(func(_, v gjson.Result) bool {
		pages = append(pages, wikiPage{
			title:   v.Get("title").String(),
			snippet: v.Get("snippet").String(),
		})
		return true
	})
	return pages, nil
}

// extracts fetches the plain-text intro of each title in one request. The
// map is keyed by the requested title, following redirects and normalization.
func (w *WikipediaTool) extracts(ctx context.Context, titles []string) (map[string]string, error) {
	params := url.Values{
		"action":      {"query"},
		"prop":        {"extracts"},
		"exintro":     {"1"},
		"explaintext": {"1"},
		"exlimit":     {"max"},
		"redirects":   {"1"},
		"titles":      {strings.Join(titles, "|")},
		"format":      {"json"},
	}
	body, err := w.get(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("wikipedia extracts: %w", err)
	}

	// Map requested titles to the canonical ones the pages are listed under.
	alias := make(map[string]string)
	for _, path := range []string{"query.normalized", "query.redirects"} {
		gjson.GetBytes(body, path).ForEach(func(_, v gjson.Result) bool {
			alias[v.Get("from").String()] = v.Get("to").String()
			return true
		})
	}

	byTitle := make(map[string]string)
	gjson.GetBytes(body, "query.pages").ForEach(func(_, v gjson.Result) bool {
		if v.Get("missing").Exists() {
			return true
		}
		byTitle[v.Get("title").String()] = v.Get("extract").String()
		return true
	})

	out := make(map[string]string, len(titles))
	for _, t := range titles {
		canonical := t
		for i := 0; i < 3; i++ { // normalized -> redirect chain
			next, ok := alias[canonical]
			if !ok {
				break
			}
			canonical = next
		}
		out[t] = byTitle[canonical]
	}
	return out, nil
}

func (w *WikipediaTool) get(ctx context.Context, params url.Values) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, w.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %s", resp.Status)
	}
	if msg := gjson.GetBytes(body, "error.info"); msg.Exists() {
		return nil, fmt.Errorf("api error: %s", msg.String())
	}
	return body, nil
}

// stripMarkup returns the text content of an HTML fragment, such as the
// search snippets with their <span class="searchmatch"> highlights.
func stripMarkup(fragment string) string {
	if fragment == "" {
		return ""
	}
	var sb strings.Builder
	z := html.NewTokenizer(strings.NewReader(fragment))
	for {
		switch z.Next() {
		case html.ErrorToken:
			return strings.Join(strings.Fields(sb.String()), " ")
		case html.TextToken:
			sb.Write(z.Text())
		}
	}
}

// truncateRunes cuts s to at most n characters without splitting a rune.
func truncateRunes(s string, n int) string {
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return s
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
