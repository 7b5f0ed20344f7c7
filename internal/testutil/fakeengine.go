package testutil

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/stretchr/testify/require"

	"github.com/roach88/portalql/internal/esclient"
)

// Request is a request received by a FakeEngine.
type Request struct {
	Method string
	Path   string
	Query  url.Values
	Body   []byte
}

// JSON decodes the request body into a generic value.
func (r Request) JSON(t *testing.T) map[string]any {
	t.Helper()
	var v map[string]any
	require.NoError(t, json.Unmarshal(r.Body, &v), "body: %s", r.Body)
	return v
}

// Lines splits an NDJSON body into its lines, dropping the trailing empty
// line.
func (r Request) Lines() []string {
	return strings.Split(strings.TrimSuffix(string(r.Body), "\n"), "\n")
}

// Handler answers a fake engine request with a status and a JSON-encodable
// body. A []byte body is written verbatim.
type Handler func(r Request) (int, any)

type route struct {
	method string
	path   string
	prefix bool
	h      Handler
}

// FakeEngine is an in-process stand-in for the search engine.
//
// Routes match on method and path, in registration order. Every response
// carries the product header the client requires. Unmatched requests get a
// 404 error body.
//
// Thread-safety: FakeEngine is safe for concurrent use via internal mutex.
type FakeEngine struct {
	mu       sync.Mutex
	routes   []route
	requests []Request
	server   *httptest.Server
}

// NewFakeEngine starts a fake engine that is closed when the test ends.
func NewFakeEngine(t *testing.T) *FakeEngine {
	t.Helper()
	f := &FakeEngine{}
	f.server = httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(f.server.Close)
	return f
}

// URL returns the base URL of the fake engine.
func (f *FakeEngine) URL() string {
	return f.server.URL
}

// Client returns a search client talking to the fake engine.
func (f *FakeEngine) Client(t *testing.T) *elasticsearch.Client {
	t.Helper()
	es, err := esclient.New(esclient.Config{Addresses: []string{f.server.URL}})
	require.NoError(t, err)
	return es
}

// Handle registers a handler for an exact method and path.
func (f *FakeEngine) Handle(method, path string, h Handler) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.routes = append(f.routes, route{method: method, path: path, h: h})
}

// HandlePrefix registers a handler for every path starting with prefix.
func (f *FakeEngine) HandlePrefix(method, prefix string, h Handler) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.routes = append(f.routes, route{method: method, path: prefix, prefix: true, h: h})
}

// Requests returns every request received so far, in arrival order.
func (f *FakeEngine) Requests() []Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Request(nil), f.requests...)
}

// RequestsTo returns the received requests matching method and path.
func (f *FakeEngine) RequestsTo(method, path string) []Request {
	var out []Request
	for _, r := range f.Requests() {
		if r.Method == method && r.Path == path {
			out = append(out, r)
		}
	}
	return out
}

func (f *FakeEngine) serve(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	req := Request{Method: r.Method, Path: r.URL.Path, Query: r.URL.Query(), Body: body}

	f.mu.Lock()
	f.requests = append(f.requests, req)
	var h Handler
	for _, rt := range f.routes {
		if rt.method != r.Method {
			continue
		}
		if rt.path == r.URL.Path || (rt.prefix && strings.HasPrefix(r.URL.Path, rt.path)) {
			h = rt.h
			break
		}
	}
	f.mu.Unlock()

	w.Header().Set("X-Elastic-Product", "Elasticsearch")
	w.Header().Set("Content-Type", "application/json")

	status, payload := http.StatusNotFound, any(map[string]any{
		"error":  map[string]any{"type": "resource_not_found_exception", "reason": "no route for " + r.Method + " " + r.URL.Path},
		"status": http.StatusNotFound,
	})
	if h != nil {
		status, payload = h(req)
	}

	w.WriteHeader(status)
	if r.Method == http.MethodHead || payload == nil {
		return
	}
	if raw, ok := payload.([]byte); ok {
		_, _ = w.Write(raw)
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}

// Reply returns a handler that always answers with status and body.
func Reply(status int, body any) Handler {
	return func(Request) (int, any) { return status, body }
}
