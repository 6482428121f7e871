package ollama

import (
	"errors"
	"io"
	"net/http"
	"regexp"
	"strings"

	"github.com/ollama/ollama/api"
)

//----------------------------------------------------------------
// bearerRoundTripper - Adds the session's API key
//----------------------------------------------------------------

type bearerRoundTripper struct {
	token   string
	Proxied http.RoundTripper
}

func (b *bearerRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	if b.token == "" || req.Header.Get("Authorization") != "" {
		return b.Proxied.RoundTrip(req)
	}
	clone := req.Clone(req.Context())
	clone.Header.Set("Authorization", "Bearer "+b.token)
	return b.Proxied.RoundTrip(clone)
}

//----------------------------------------------------------------
// JSONFixingRoundTripper - Interceptor that fixes illegal JSON escapes
//----------------------------------------------------------------

// JSONFixingRoundTripper intercepts response and fixes illegal escapes (e.g., \$)
type JSONFixingRoundTripper struct {
	Proxied http.RoundTripper
}

func (j *JSONFixingRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := j.Proxied.RoundTrip(req)
	if err != nil {
		return resp, err
	}

	// Only filter text-type responses (mainly stream JSON)
	if strings.Contains(resp.Header.Get("Content-Type"), "application/json") ||
		strings.Contains(resp.Header.Get("Content-Type"), "application/x-ndjson") {
		resp.Body = &jsonFixingReadCloser{body: resp.Body}
	}
	return resp, nil
}

type jsonFixingReadCloser struct {
	body io.ReadCloser
}

var illegalEscapeRegex = regexp.MustCompile(`\\([^\/\\bfnrtu"])`)

func (j *jsonFixingReadCloser) Read(p []byte) (n int, err error) {
	n, err = j.body.Read(p)
	if n > 0 {
		// e.g., convert \$ to $ to avoid JSON parsing failures
		content := string(p[:n])
		fixed := illegalEscapeRegex.ReplaceAllString(content, "$1")
		if len(fixed) < len(content) {
			// Only backslashes are removed, so the fixed text fits in p
			copy(p, []byte(fixed))
			n = len(fixed)
		}
	}
	return n, err
}

func (j *jsonFixingReadCloser) Close() error {
	return j.body.Close()
}

// errorsAsStatus matches api.StatusError by value or by pointer.
func errorsAsStatus(err error, target *api.StatusError) bool {
	if errors.As(err, target) {
		return true
	}
	var ptr *api.StatusError
	if errors.As(err, &ptr) && ptr != nil {
		*target = *ptr
		return true
	}
	return false
}
