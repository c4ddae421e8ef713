// Package galaxytest provides a fake Galaxy Digital API server for
// exercising the sync pipeline without a live upstream.
package galaxytest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
)

// Server is an in-process stand-in for the remote API. Records are
// registered per endpoint; pagination, login, and failure injection
// mimic upstream behavior.
type Server struct {
	httpServer *httptest.Server

	mu        sync.Mutex
	token     string
	records   map[string][]json.RawMessage
	failures  map[string]int
	failCode  int
	requests  map[string]int
	lastSince map[string]string
}

// New starts a fake API server. Callers must Close it.
func New() *Server {
	s := &Server{
		token:     "test-token",
		records:   map[string][]json.RawMessage{},
		failures:  map[string]int{},
		failCode:  http.StatusInternalServerError,
		requests:  map[string]int{},
		lastSince: map[string]string{},
	}
	mux := http.NewServeMux()
	mux.HandleFunc("POST /users/login", s.handleLogin)
	mux.HandleFunc("GET /{endpoint}", s.handleList)
	s.httpServer = httptest.NewServer(mux)
	return s
}

// URL returns the server's base URL.
func (s *Server) URL() string { return s.httpServer.URL }

// Close shuts the server down.
func (s *Server) Close() { s.httpServer.Close() }

// SetRecords replaces the record set for an endpoint.
func (s *Server) SetRecords(endpoint string, records []json.RawMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[endpoint] = records
}

// SeedSequential fills an endpoint with count records with ids 1..count.
func (s *Server) SeedSequential(endpoint string, count int) {
	records := make([]json.RawMessage, count)
	for i := range records {
		records[i] = json.RawMessage(fmt.Sprintf(`{"id": %d}`, i+1))
	}
	s.SetRecords(endpoint, records)
}

// FailNext makes the next n list requests for an endpoint return
// status code.
func (s *Server) FailNext(endpoint string, n, code int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[endpoint] = n
	s.failCode = code
}

// Requests returns how many list requests an endpoint has served,
// including failed ones.
func (s *Server) Requests(endpoint string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests[endpoint]
}

// LastSince returns the since filter value from the most recent list
// request for an endpoint, or "" if none was sent.
func (s *Server) LastSince(endpoint string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSince[endpoint]
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Key      string `json:"key"`
		Email    string `json:"user_email"`
		Password string `json:"user_password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Key == "" {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	token := s.token
	s.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"data": map[string]string{"token": token}})
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	endpoint := r.PathValue("endpoint")

	s.mu.Lock()
	s.requests[endpoint]++
	s.lastSince[endpoint] = r.URL.Query().Get("since_updated")
	token := s.token
	pending := s.failures[endpoint]
	if pending > 0 {
		s.failures[endpoint] = pending - 1
	}
	failCode := s.failCode
	records := s.records[endpoint]
	s.mu.Unlock()

	if auth := r.Header.Get("Authorization"); !strings.HasSuffix(auth, token) {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	if pending > 0 {
		if failCode == http.StatusTooManyRequests {
			w.Header().Set("Retry-After", "1")
		}
		w.WriteHeader(failCode)
		return
	}

	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}
	perPage, _ := strconv.Atoi(r.URL.Query().Get("per_page"))
	if perPage < 1 {
		perPage = 150
	}

	start := (page - 1) * perPage
	if start >= len(records) {
		// Upstream answers 404 past the last page and for empty
		// filter matches.
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error": "no results"}`))
		return
	}
	end := start + perPage
	if end > len(records) {
		end = len(records)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"data": records[start:end]})
}
