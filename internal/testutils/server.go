package testutils

import (
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

// Request is a request received by a FakeServer.
type Request struct {
	Method   string
	Path     string
	Query    url.Values
	Header   http.Header
	Body     string
	Username string
	Password string
	HasAuth  bool
}

// FakeServer is an HTTP server recording every request it receives.
//
// It answers like a Solr update handler, and carries the product header expected by Elasticsearch clients.
type FakeServer struct {
	*httptest.Server

	mu       sync.Mutex
	requests []Request
	statuses []int
}

// NewFakeServer starts a FakeServer closed at the end of the test.
// The nth request is answered with statuses[n], or 200 once statuses are exhausted.
func NewFakeServer(t *testing.T, statuses ...int) *FakeServer {
	t.Helper()

	s := &FakeServer{statuses: statuses}
	s.Server = httptest.NewServer(http.HandlerFunc(s.handle))
	t.Cleanup(s.Close)

	return s
}

func (s *FakeServer) handle(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	user, password, ok := r.BasicAuth()

	s.mu.Lock()
	status := http.StatusOK
	if n := len(s.requests); n < len(s.statuses) {
		status = s.statuses[n]
	}
	s.requests = append(s.requests, Request{
		Method:   r.Method,
		Path:     r.URL.Path,
		Query:    r.URL.Query(),
		Header:   r.Header.Clone(),
		Body:     string(body),
		Username: user,
		Password: password,
		HasAuth:  ok,
	})
	s.mu.Unlock()

	w.Header().Set("X-Elastic-Product", "Elasticsearch")
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if status >= 200 && status < 300 {
		_, _ = w.Write([]byte(`{"responseHeader":{"status":0,"QTime":1},"result":"created"}`))
		return
	}
	_, _ = fmt.Fprintf(w, `{"error":{"msg":"fake failure","code":%d}}`, status)
}

// Requests returns a copy of the requests received so far, in order.
func (s *FakeServer) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]Request(nil), s.requests...)
}

// Bodies returns the body of every request received so far, in order.
func (s *FakeServer) Bodies() []string {
	var bodies []string
	for _, r := range s.Requests() {
		bodies = append(bodies, r.Body)
	}
	return bodies
}

// GetFreePort returns a free TCP port on host. Nothing listens on it once returned.
func GetFreePort(t *testing.T, host string) int {
	t.Helper()

	ln, err := net.Listen("tcp", net.JoinHostPort(host, "0"))
	require.NoError(t, err, "Setup: failed to listen on tcp")
	defer ln.Close()
	addr, ok := ln.Addr().(*net.TCPAddr)
	require.True(t, ok, "Setup: expected TCPAddr")
	return addr.Port
}
