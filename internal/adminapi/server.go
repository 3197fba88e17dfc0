package adminapi

import (
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"matchd/internal/cli"
)

// Server combines the HTTP router with the WebSocket hub for real-time
// updates. Grounded directly on the teacher's internal/api/server.go.
type Server struct {
	router      *chi.Mux
	hub         *Hub
	rateLimiter *IPRateLimiter
	snapshotFn  func() interface{}
}

// NewServer builds a Server with production-default rate limiting and CORS.
// The rate limiter's cleanup goroutine starts here (Stop releases it); the
// hub and snapshot loop do not start until Start() is called, so the router
// alone is safe to drive with httptest. snapshot, if non-nil, is broadcast
// to WebSocket clients every few seconds once Start() runs.
func NewServer(d *cli.Dispatcher, allowedOrigins []string, snapshot func() interface{}) *Server {
	rateLimiter := NewIPRateLimiter(DefaultRateLimitConfig)
	hub := NewHub(allowedOrigins, nil)

	s := &Server{
		hub:         hub,
		rateLimiter: rateLimiter,
		snapshotFn:  snapshot,
	}
	s.router = NewRouter(Config{
		Dispatcher:     d,
		RateLimiter:    rateLimiter,
		AllowedOrigins: allowedOrigins,
		Hub:            hub,
	})
	return s
}

// Router returns the HTTP handler, for use with httptest.NewServer.
func (s *Server) Router() http.Handler { return s.router }

// Start begins the HTTP server and the hub's broadcast loop. Call once.
func (s *Server) Start(addr string) error {
	go s.hub.Run()
	if s.snapshotFn != nil {
		s.hub.StartSnapshotLoop(2*time.Second, s.snapshotFn)
	}
	log.Printf("adminapi: listening on %s", addr)
	return http.ListenAndServe(addr, s.router)
}

// Stop releases the rate limiter's cleanup goroutine.
func (s *Server) Stop() {
	s.rateLimiter.Stop()
}
