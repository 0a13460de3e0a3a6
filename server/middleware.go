package server

import (
	"log"
	"net/http"
	"sync"
	"time"
)

// LoggingMiddleware logs method, path, status and duration. Bodies are never logged.
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(wrapped, r)
		log.Printf("%s %s %d %v", r.Method, r.URL.Path, wrapped.status, time.Since(start))
	})
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func JSONContentType(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

// runGuard allows one pipeline run per session at a time.
type runGuard struct {
	mu      sync.Mutex
	running map[string]struct{}
}

func newRunGuard() *runGuard {
	return &runGuard{running: make(map[string]struct{})}
}

func (g *runGuard) acquire(sessionID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, busy := g.running[sessionID]; busy {
		return false
	}
	g.running[sessionID] = struct{}{}
	return true
}

func (g *runGuard) release(sessionID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.running, sessionID)
}
