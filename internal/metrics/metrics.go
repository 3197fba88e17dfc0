// Package metrics exposes bounded-cardinality Prometheus metrics for the
// match engine and admin API, plus a localhost-only pprof/metrics debug
// server.
//
// Grounded directly on the teacher's internal/api/observability.go: same
// metric shapes and the same "never expose pprof off localhost" posture,
// recomposed around match/tick/loot/explosive/tracker events instead of
// game-tick/render/stream events.
package metrics

import (
	"log"
	"net/http"
	"net/http/pprof"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	tickDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "matchd_tick_duration_seconds",
		Help:    "Time spent advancing the scheduler by one tick",
		Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05},
	})

	activeMatches = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "matchd_active_matches",
		Help: "Current number of non-terminal matches",
	})

	// matchPhaseCount is labeled by phase name — bounded to the fixed
	// phase enum, never by match or participant id.
	matchPhaseCount = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "matchd_matches_by_phase",
		Help: "Current number of matches in each phase",
	}, []string{"phase"})

	killsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "matchd_kills_total",
		Help: "Total kills recorded across all matches",
	})

	deathsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "matchd_deaths_total",
		Help: "Total deaths recorded across all matches",
	})

	containersFilledTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "matchd_containers_filled_total",
		Help: "Total containers filled by the loot refill cycle",
	})

	explosionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "matchd_explosions_total",
		Help: "Total projectile explosions, by kind",
	}, []string{"kind"}) // bounded: "fire", "poison"

	trackerBindingsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "matchd_tracker_bindings_active",
		Help: "Currently live tracker bindings",
	})

	eventLogTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "matchd_event_log_total",
		Help: "Total telemetry events logged",
	})

	eventLogDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "matchd_event_log_dropped_total",
		Help: "Telemetry events dropped by rate limiting or buffer overflow",
	})

	connectionRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "matchd_connection_rejected_total",
		Help: "Admin API connections rejected, by reason",
	}, []string{"reason"}) // bounded: "rate_limit", "origin", "ws_total_limit", "ws_ip_limit"

	requestLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "matchd_http_request_duration_seconds",
		Help:    "Admin API HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "endpoint"})

	requestTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "matchd_http_requests_total",
		Help: "Total admin API HTTP requests",
	}, []string{"method", "endpoint", "status"})

	wsConnectionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "matchd_websocket_connections_active",
		Help: "Currently active admin API WebSocket connections",
	})

	wsMessagesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "matchd_websocket_messages_total",
		Help: "Total admin API WebSocket messages broadcast",
	})
)

// DebugServerConfig configures the localhost-only observability server.
type DebugServerConfig struct {
	Enabled    bool
	ListenAddr string // must stay "127.0.0.1:<port>" in production
}

// DefaultDebugServerConfig mirrors the teacher's localhost-only default.
func DefaultDebugServerConfig() DebugServerConfig {
	return DebugServerConfig{Enabled: true, ListenAddr: "127.0.0.1:6060"}
}

// StartDebugServer starts the pprof + /metrics server. CRITICAL: must bind
// to localhost to avoid exposing pprof-based DoS surface externally.
func StartDebugServer(cfg DebugServerConfig) error {
	if !cfg.Enabled {
		log.Println("metrics: debug server disabled")
		return nil
	}

	if cfg.ListenAddr != "127.0.0.1:6060" && cfg.ListenAddr != "localhost:6060" {
		if os.Getenv("ALLOW_DEBUG_EXTERNAL") != "true" {
			log.Println("metrics: debug server forced to localhost")
			cfg.ListenAddr = "127.0.0.1:6060"
		}
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	go func() {
		log.Printf("metrics: debug server on %s", cfg.ListenAddr)
		if err := http.ListenAndServe(cfg.ListenAddr, mux); err != nil {
			log.Printf("metrics: debug server error: %v", err)
		}
	}()

	return nil
}

func RecordTick(d time.Duration)            { tickDuration.Observe(d.Seconds()) }
func SetActiveMatches(n int)                { activeMatches.Set(float64(n)) }
func SetMatchesByPhase(phase string, n int) { matchPhaseCount.WithLabelValues(phase).Set(float64(n)) }
func IncKills()                             { killsTotal.Inc() }
func IncDeaths()                            { deathsTotal.Inc() }
func IncContainersFilled()                  { containersFilledTotal.Inc() }
func IncExplosion(kind string)              { explosionsTotal.WithLabelValues(kind).Inc() }
func SetTrackerBindingsActive(n int)        { trackerBindingsActive.Set(float64(n)) }

func RecordEventLogStats(total, dropped uint64) {
	eventLogTotal.Add(float64(total))
	eventLogDropped.Add(float64(dropped))
}

// RecordConnectionRejected increments the rejection counter. reason must be
// one of "rate_limit", "origin", "ws_total_limit", "ws_ip_limit".
func RecordConnectionRejected(reason string) {
	connectionRejected.WithLabelValues(reason).Inc()
}

func RecordRequest(method, endpoint string, status int, d time.Duration) {
	requestLatency.WithLabelValues(method, endpoint).Observe(d.Seconds())
	requestTotal.WithLabelValues(method, endpoint, http.StatusText(status)).Inc()
}

func SetWSConnections(n int)  { wsConnectionsActive.Set(float64(n)) }
func IncWSMessages()          { wsMessagesTotal.Inc() }
