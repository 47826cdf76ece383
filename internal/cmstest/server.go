// Package cmstest provides a fake content delivery API for tests.
//
// The server answers the token endpoint, content items by id and any
// number of custom endpoint paths. It counts requests per path, tracks
// peak concurrency and can inject latency or failures per path.
//
//	srv := cmstest.New(t)
//	srv.SetEndpoint("/api/episerver/v2.0/site/", []any{...})
//	srv.SetContent(1, map[string]any{"title": "A"})
package cmstest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
)

// Paths served by the fake API.
const (
	TokenPath   = "/api/episerver/auth/token"
	ContentPath = "/api/episerver/v2.0/content/"
)

// DefaultToken is the access token issued unless changed with SetToken.
const DefaultToken = "test-token"

// Server is a fake content API backed by httptest.
type Server struct {
	*httptest.Server

	mu        sync.Mutex
	token     string
	content   map[int]any
	endpoints map[string]any
	failures  map[string]*failure
	delays    map[string]time.Duration
	counts    map[string]int
	headers   map[string]http.Header
	authForms []url.Values

	inFlight    atomic.Int64
	maxInFlight atomic.Int64
}

type failure struct {
	status    int
	remaining int // <0 fails forever
}

// New starts a server that is closed when the test ends.
func New(t testing.TB) *Server {
	t.Helper()
	s := &Server{
		token:     DefaultToken,
		content:   make(map[int]any),
		endpoints: make(map[string]any),
		failures:  make(map[string]*failure),
		delays:    make(map[string]time.Duration),
		counts:    make(map[string]int),
		headers:   make(map[string]http.Header),
	}

	r := chi.NewRouter()
	r.Use(s.track, s.inject)
	r.Post(TokenPath, s.handleToken)
	r.Group(func(r chi.Router) {
		r.Use(s.requireToken)
		r.Get(ContentPath+"{id}", s.handleContent)
		r.Get("/*", s.handleEndpoint)
	})

	s.Server = httptest.NewServer(r)
	t.Cleanup(s.Close)
	return s
}

// SetToken changes the issued access token. An empty token makes the
// token endpoint answer without an access_token.
func (s *Server) SetToken(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
}

// SetContent registers the item returned for content/{id}?expand=*.
func (s *Server) SetContent(id int, v any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.content[id] = v
}

// SetEndpoint registers the payload returned for a custom endpoint path.
func (s *Server) SetEndpoint(path string, v any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.endpoints[path] = v
}

// Fail makes the next times requests to path answer with status.
// A negative times fails every request.
func (s *Server) Fail(path string, status, times int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[path] = &failure{status: status, remaining: times}
}

// Delay holds every request to path for d before answering.
func (s *Server) Delay(path string, d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delays[path] = d
}

// Count returns how many requests reached path.
func (s *Server) Count(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counts[path]
}

// ContentCount returns how many requests reached content/{id}.
func (s *Server) ContentCount(id int) int {
	return s.Count(ContentPath + strconv.Itoa(id))
}

// Total returns the number of requests of any kind.
func (s *Server) Total() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.counts {
		n += c
	}
	return n
}

// MaxInFlight returns the peak number of concurrently served requests.
func (s *Server) MaxInFlight() int {
	return int(s.maxInFlight.Load())
}

// Header returns the headers of the last request to path.
func (s *Server) Header(path string) http.Header {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.headers[path]
}

// AuthForms returns the decoded bodies posted to the token endpoint.
func (s *Server) AuthForms() []url.Values {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]url.Values(nil), s.authForms...)
}

func (s *Server) track(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := s.inFlight.Add(1)
		defer s.inFlight.Add(-1)
		for {
			peak := s.maxInFlight.Load()
			if n <= peak || s.maxInFlight.CompareAndSwap(peak, n) {
				break
			}
		}

		s.mu.Lock()
		s.counts[r.URL.Path]++
		s.headers[r.URL.Path] = r.Header.Clone()
		s.mu.Unlock()

		next.ServeHTTP(w, r)
	})
}

func (s *Server) inject(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		delay := s.delays[r.URL.Path]
		status := 0
		if f := s.failures[r.URL.Path]; f != nil && f.remaining != 0 {
			status = f.status
			if f.remaining > 0 {
				f.remaining--
			}
		}
		s.mu.Unlock()

		if delay > 0 {
			select {
			case <-time.After(delay):
			case <-r.Context().Done():
				return
			}
		}
		if status != 0 {
			http.Error(w, http.StatusText(status), status)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) requireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		want := "Bearer " + s.token
		s.mu.Unlock()
		if r.Header.Get("Authorization") != want {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	s.authForms = append(s.authForms, r.PostForm)
	token := s.token
	s.mu.Unlock()

	if token == "" {
		writeJSON(w, map[string]any{"error": "invalid_grant"})
		return
	}
	writeJSON(w, map[string]any{
		"access_token":  token,
		"token_type":    "bearer",
		"expires_in":    3600,
		"refresh_token": "refresh-" + token,
	})
}

func (s *Server) handleContent(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "bad id", http.StatusBadRequest)
		return
	}
	s.mu.Lock()
	v, ok := s.content[id]
	s.mu.Unlock()
	if !ok {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, v)
}

func (s *Server) handleEndpoint(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	v, ok := s.endpoints[r.URL.Path]
	s.mu.Unlock()
	if !ok {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, v)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
