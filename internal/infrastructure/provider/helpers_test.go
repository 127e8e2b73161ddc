package provider_test

import (
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"price-aggregator/internal/infrastructure/httpx"
)

type rtFunc func(*http.Request) *http.Response

func (f rtFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r), nil }

type reply struct {
	code int
	body string
}

// routes serves canned replies by URL path and records the requests it saw.
type routes struct {
	mu       sync.Mutex
	replies  map[string]reply
	requests []*http.Request
}

func newRoutes(replies map[string]reply) *routes {
	return &routes{replies: replies}
}

func (rs *routes) httpClient() *http.Client {
	return &http.Client{
		Timeout: 2 * time.Second,
		Transport: rtFunc(func(r *http.Request) *http.Response {
			rs.mu.Lock()
			rs.requests = append(rs.requests, r)
			rp, ok := rs.replies[r.URL.Path]
			rs.mu.Unlock()
			if !ok {
				rp = reply{code: http.StatusNotFound, body: `{"error":"not found"}`}
			}
			return &http.Response{
				StatusCode: rp.code,
				Body:       io.NopCloser(strings.NewReader(rp.body)),
				Header:     make(http.Header),
				Request:    r,
			}
		}),
	}
}

func (rs *routes) client() *httpx.Client {
	return &httpx.Client{HTTP: rs.httpClient(), MaxElapsed: 200 * time.Millisecond}
}

func (rs *routes) last(t *testing.T) *http.Request {
	t.Helper()
	rs.mu.Lock()
	defer rs.mu.Unlock()
	if len(rs.requests) == 0 {
		t.Fatal("no requests recorded")
	}
	return rs.requests[len(rs.requests)-1]
}

func (rs *routes) count(path string) int {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	n := 0
	for _, r := range rs.requests {
		if r.URL.Path == path {
			n++
		}
	}
	return n
}
