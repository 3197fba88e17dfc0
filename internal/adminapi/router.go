// Package adminapi is the HTTP/WebSocket transport for the admin command
// surface (§6 "CLI surface"): every command internal/cli.Dispatcher exposes
// gets a route, plus a WebSocket broadcast hub for spectator/console
// consumers.
//
// Grounded directly on the teacher's internal/api/router.go, ratelimit.go
// and websocket.go, trimmed of Kick OAuth/session/admin-panel static file
// serving (out of scope — see DESIGN.md).
package adminapi

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"matchd/internal/cli"
	"matchd/internal/metrics"
)

// Config contains everything needed to construct the router.
type Config struct {
	Dispatcher *cli.Dispatcher

	RateLimiter     *IPRateLimiter
	RateLimitConfig *RateLimitConfig
	AllowedOrigins  []string
	DisableLogging  bool
	Hub             *Hub
}

// NewRouter builds the HTTP router. It opens no listeners and is safe to use
// with httptest.NewServer. When cfg.RateLimiter is nil it builds its own
// IPRateLimiter, which starts that limiter's cleanup goroutine.
func NewRouter(cfg Config) *chi.Mux {
	r := chi.NewRouter()

	if !cfg.DisableLogging {
		r.Use(middleware.Logger)
	}
	r.Use(middleware.Recoverer)

	rateLimiter := cfg.RateLimiter
	if rateLimiter == nil {
		rlCfg := DefaultRateLimitConfig
		if cfg.RateLimitConfig != nil {
			rlCfg = *cfg.RateLimitConfig
		}
		rateLimiter = NewIPRateLimiter(rlCfg)
	}
	r.Use(rateLimiter.Middleware)

	origins := cfg.AllowedOrigins
	if origins == nil {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	}))

	h := &handlers{d: cfg.Dispatcher}

	r.Route("/api", func(r chi.Router) {
		r.Get("/arenas", instrumentedHandler("/api/arenas", h.listArenas))
		r.Post("/arenas", instrumentedHandler("/api/arenas", h.createArena))
		r.Post("/arenas/select", instrumentedHandler("/api/arenas/select", h.selectArena))
		r.Post("/arenas/{name}/rescan-containers", instrumentedHandler("/api/arenas/{name}/rescan-containers", h.rescanContainers))

		r.Get("/matches", instrumentedHandler("/api/matches", h.listMatches))
		r.Post("/matches/start", instrumentedHandler("/api/matches/start", h.startMatch))
		r.Post("/matches/stop", instrumentedHandler("/api/matches/stop", h.stopMatch))
		r.Get("/matches/{arena}", instrumentedHandler("/api/matches/{arena}", h.matchInfo))

		r.Post("/reload", instrumentedHandler("/api/reload", h.reload))
	})

	if cfg.Hub != nil {
		r.Get("/ws", cfg.Hub.HandleWebSocket)
	}

	r.Get("/", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"service":"matchd-admin"}`))
	})

	return r
}

type handlers struct {
	d *cli.Dispatcher
}

func writeResult(w http.ResponseWriter, res cli.Result) {
	w.Header().Set("Content-Type", "application/json")
	if res.Err != nil {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]string{"error": res.Err.Error()})
		return
	}
	json.NewEncoder(w).Encode(map[string]string{"message": res.Message})
}

func decodeJSON(r *http.Request, v interface{}) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}

func (h *handlers) listArenas(w http.ResponseWriter, r *http.Request) {
	writeResult(w, cli.Result{Message: strings.Join(h.d.ArenaNames(), "\n")})
}

func (h *handlers) createArena(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name   string `json:"name"`
		Radius int    `json:"radius"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeResult(w, cli.Result{Err: err})
		return
	}
	writeResult(w, h.d.Create(body.Name, body.Radius))
}

func (h *handlers) selectArena(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name string `json:"name"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeResult(w, cli.Result{Err: err})
		return
	}
	writeResult(w, h.d.SelectArena(body.Name))
}

func (h *handlers) rescanContainers(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	writeResult(w, h.d.RescanContainers(name))
}

func (h *handlers) listMatches(w http.ResponseWriter, r *http.Request) {
	writeResult(w, h.d.List())
}

func (h *handlers) startMatch(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Arena string `json:"arena"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeResult(w, cli.Result{Err: err})
		return
	}
	writeResult(w, h.d.Start(body.Arena))
}

func (h *handlers) stopMatch(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Arena string `json:"arena"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeResult(w, cli.Result{Err: err})
		return
	}
	writeResult(w, h.d.Stop(body.Arena))
}

func (h *handlers) matchInfo(w http.ResponseWriter, r *http.Request) {
	arenaName := chi.URLParam(r, "arena")
	writeResult(w, h.d.Info(arenaName))
}

func (h *handlers) reload(w http.ResponseWriter, r *http.Request) {
	writeResult(w, h.d.Reload())
}

// instrumentedHandler wraps next with request-latency metrics, bounded by
// route pattern rather than full URL (§ observability, no per-request
// cardinality blowup).
func instrumentedHandler(pattern string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next(rec, r)
		metrics.RecordRequest(r.Method, pattern, rec.status, time.Since(start))
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}
