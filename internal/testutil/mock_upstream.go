// Package testutil provides test fixtures for the reconciler.
package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"
)

// MockResponse defines a canned response for one path.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// MockUpstream is an in-memory stand-in for the legacy or modern system.
//
// It serves
//
//	GET /ids?after={cursor}&limit={n}  -> {"ids":[...]} ascending, ids > cursor
//	GET /records/{id}                  -> the stored record or 404
type MockUpstream struct {
	server *httptest.Server

	mu            sync.RWMutex
	records       map[int64]map[string]any
	handlers      map[string]http.HandlerFunc
	failIDPages   int
	failRecords   map[int64]int
	requestCount  int
	idRequests    []int64
	lastUserAgent string
}

// NewMockUpstream starts a mock upstream server.
func NewMockUpstream() *MockUpstream {
	m := &MockUpstream{
		records:     make(map[int64]map[string]any),
		handlers:    make(map[string]http.HandlerFunc),
		failRecords: make(map[int64]int),
	}
	m.server = httptest.NewServer(http.HandlerFunc(m.serve))
	return m
}

// URL returns the mock server URL.
func (m *MockUpstream) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockUpstream) Close() {
	m.server.Close()
}

// PutRecord stores a record under id.
func (m *MockUpstream) PutRecord(id int64, record map[string]any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[id] = record
}

// PutRange stores records first..last built by fn.
func (m *MockUpstream) PutRange(first, last int64, fn func(id int64) map[string]any) {
	for id := first; id <= last; id++ {
		m.PutRecord(id, fn(id))
	}
}

// FailIDPages makes the next n id-page requests answer 503.
func (m *MockUpstream) FailIDPages(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failIDPages = n
}

// FailRecord makes the next n requests for id answer 503.
func (m *MockUpstream) FailRecord(id int64, n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failRecords[id] = n
}

// SetHandler overrides the handler for an exact path.
func (m *MockUpstream) SetHandler(path string, handler http.HandlerFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[path] = handler
}

// SetResponse configures a canned response for an exact path.
func (m *MockUpstream) SetResponse(path string, resp MockResponse) {
	m.SetHandler(path, func(w http.ResponseWriter, r *http.Request) {
		if resp.Delay > 0 {
			time.Sleep(resp.Delay)
		}
		for key, value := range resp.Headers {
			w.Header().Set(key, value)
		}
		w.WriteHeader(resp.StatusCode)
		if resp.Body != "" {
			w.Write([]byte(resp.Body))
		}
	})
}

// RequestCount returns the number of requests served.
func (m *MockUpstream) RequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.requestCount
}

// IDRequests returns the cursors of every id-page request, in arrival order.
func (m *MockUpstream) IDRequests() []int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.idRequests)
}

// LastUserAgent returns the User-Agent of the most recent request.
func (m *MockUpstream) LastUserAgent() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastUserAgent
}

func (m *MockUpstream) serve(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	m.requestCount++
	m.lastUserAgent = r.Header.Get("User-Agent")
	handler, custom := m.handlers[r.URL.Path]
	m.mu.Unlock()

	if custom {
		handler(w, r)
		return
	}

	w.Header().Set("X-RateLimit-Remaining", "100")
	w.Header().Set("X-RateLimit-Reset", "60")

	switch {
	case r.URL.Path == "/ids":
		m.serveIDs(w, r)
	case strings.HasPrefix(r.URL.Path, "/records/"):
		m.serveRecord(w, r)
	default:
		http.NotFound(w, r)
	}
}

func (m *MockUpstream) serveIDs(w http.ResponseWriter, r *http.Request) {
	after, err := strconv.ParseInt(r.URL.Query().Get("after"), 10, 64)
	if err != nil {
		http.Error(w, `{"error":"invalid after"}`, http.StatusBadRequest)
		return
	}
	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || limit < 1 {
		http.Error(w, `{"error":"invalid limit"}`, http.StatusBadRequest)
		return
	}

	m.mu.Lock()
	m.idRequests = append(m.idRequests, after)
	if m.failIDPages > 0 {
		m.failIDPages--
		m.mu.Unlock()
		http.Error(w, `{"error":"unavailable"}`, http.StatusServiceUnavailable)
		return
	}
	ids := make([]int64, 0, len(m.records))
	for id := range m.records {
		if id > after {
			ids = append(ids, id)
		}
	}
	m.mu.Unlock()

	slices.Sort(ids)
	if len(ids) > limit {
		ids = ids[:limit]
	}

	writeJSON(w, map[string]any{"ids": ids})
}

func (m *MockUpstream) serveRecord(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(strings.TrimPrefix(r.URL.Path, "/records/"), 10, 64)
	if err != nil {
		http.NotFound(w, r)
		return
	}

	m.mu.Lock()
	if m.failRecords[id] > 0 {
		m.failRecords[id]--
		m.mu.Unlock()
		http.Error(w, `{"error":"unavailable"}`, http.StatusServiceUnavailable)
		return
	}
	record, ok := m.records[id]
	m.mu.Unlock()

	if !ok {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, record)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(v)
}

// NewServerErrorResponse creates a 500 Internal Server Error response.
func NewServerErrorResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusInternalServerError,
		Body:       `{"error": "Internal server error"}`,
		Headers:    map[string]string{"Content-Type": "application/json; charset=utf-8"},
	}
}

// NewRateLimitResponse creates a 429 Too Many Requests response.
func NewRateLimitResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusTooManyRequests,
		Body:       `{"error": "Rate limit exceeded"}`,
		Headers: map[string]string{
			"X-RateLimit-Remaining": "0",
			"X-RateLimit-Reset":     "30",
			"Content-Type":          "application/json; charset=utf-8",
		},
	}
}

// NewJSONResponse creates a 200 OK response with a JSON body.
func NewJSONResponse(body string) MockResponse {
	return MockResponse{
		StatusCode: http.StatusOK,
		Body:       body,
		Headers:    map[string]string{"Content-Type": "application/json; charset=utf-8"},
	}
}
