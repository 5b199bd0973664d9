// Package metrics exposes Prometheus counters/histograms for the pattern
// detection core and a small health/metrics HTTP server, adapted from the
// teacher's market-data-engine metrics package to this domain's events:
// spawns, transitions, exits, completions, and per-candle evolve latency.
package metrics

import (
	"context"
	"database/sql"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every Prometheus metric emitted by the detection core and
// its drivers. All fields are safe for concurrent use from the cross-ticker
// worker pool.
type Metrics struct {
	PatternsSpawned   prometheus.Counter
	TransitionsTaken  prometheus.Counter
	BlocksExited      prometheus.Counter
	PatternsCompleted prometheus.Counter

	CandleEvolveDur prometheus.Histogram

	HighlightsFound     prometheus.Counter
	BackwardRelocations prometheus.Counter

	RepositorySaveDur  prometheus.Histogram
	RepositoryFailures *prometheus.CounterVec // labels: op

	ActivePatterns *prometheus.GaugeVec // labels: ticker
}

// NewMetrics constructs and registers every metric against the default
// Prometheus registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		PatternsSpawned: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "patterngraph_patterns_spawned_total",
			Help: "Total pattern instances spawned from a root entry condition",
		}),
		TransitionsTaken: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "patterngraph_transitions_taken_total",
			Help: "Total block-to-block transitions taken across all patterns",
		}),
		BlocksExited: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "patterngraph_blocks_exited_total",
			Help: "Total blocks completed via an exit condition",
		}),
		PatternsCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "patterngraph_patterns_completed_total",
			Help: "Total patterns that reached COMPLETED",
		}),
		CandleEvolveDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "patterngraph_candle_evolve_duration_seconds",
			Help:    "Wall time to evolve all active patterns across one candle",
			Buckets: []float64{0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05},
		}),
		HighlightsFound: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "patterngraph_highlights_found_total",
			Help: "Total root blocks qualifying as highlights",
		}),
		BackwardRelocations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "patterngraph_backward_relocations_total",
			Help: "Total highlight-centric patterns whose root was relocated backward",
		}),
		RepositorySaveDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "patterngraph_repository_save_duration_seconds",
			Help:    "Repository save/save_all latency",
			Buckets: prometheus.DefBuckets,
		}),
		RepositoryFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "patterngraph_repository_failures_total",
			Help: "Repository operation failures by op",
		}, []string{"op"}),
		ActivePatterns: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "patterngraph_active_patterns",
			Help: "Current count of ACTIVE patterns by ticker",
		}, []string{"ticker"}),
	}

	prometheus.MustRegister(
		m.PatternsSpawned,
		m.TransitionsTaken,
		m.BlocksExited,
		m.PatternsCompleted,
		m.CandleEvolveDur,
		m.HighlightsFound,
		m.BackwardRelocations,
		m.RepositorySaveDur,
		m.RepositoryFailures,
		m.ActivePatterns,
	)

	return m
}

// HealthStatus tracks liveness of the detection driver's dependencies —
// here, just the repository's backing SQLite database.
type HealthStatus struct {
	mu sync.RWMutex

	RepositoryOK    bool      `json:"repository_ok"`
	RepositoryMs    float64   `json:"repository_latency_ms"`
	LastCheckAt     time.Time `json:"last_check_at"`
	StartedAt       time.Time `json:"started_at"`
	TickersRunning  []string  `json:"tickers_running"`
	CandlesIngested int64     `json:"candles_ingested"`
}

// NewHealthStatus returns a default health status stamped with the current
// start time.
func NewHealthStatus() *HealthStatus {
	return &HealthStatus{StartedAt: time.Now()}
}

func (h *HealthStatus) SetTickersRunning(tickers []string) {
	h.mu.Lock()
	h.TickersRunning = tickers
	h.mu.Unlock()
}

func (h *HealthStatus) AddCandlesIngested(n int64) {
	h.mu.Lock()
	h.CandlesIngested += n
	h.mu.Unlock()
}

// CheckRepository pings the repository's backing database and records
// latency and connectivity.
func (h *HealthStatus) CheckRepository(ctx context.Context, db *sql.DB) {
	start := time.Now()
	err := db.PingContext(ctx)
	latency := time.Since(start)

	h.mu.Lock()
	h.RepositoryOK = err == nil
	h.RepositoryMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// StartLivenessChecker runs periodic repository health checks until ctx is
// cancelled.
func (h *HealthStatus) StartLivenessChecker(ctx context.Context, db *sql.DB, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
				if db != nil {
					h.CheckRepository(probeCtx, db)
				}
				cancel()
			}
		}
	}()
}

// ServeHTTP handles the /healthz endpoint.
func (h *HealthStatus) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	status := "healthy"
	httpCode := http.StatusOK
	if !h.RepositoryOK {
		status = "degraded"
		httpCode = http.StatusServiceUnavailable
	}

	body := struct {
		Status          string   `json:"status"`
		Uptime          string   `json:"uptime"`
		RepositoryOK    bool     `json:"repository_ok"`
		RepositoryMs    float64  `json:"repository_latency_ms"`
		TickersRunning  []string `json:"tickers_running"`
		CandlesIngested int64    `json:"candles_ingested"`
		LastCheckAt     string   `json:"last_check_at"`
	}{
		Status:          status,
		Uptime:          time.Since(h.StartedAt).Round(time.Second).String(),
		RepositoryOK:    h.RepositoryOK,
		RepositoryMs:    h.RepositoryMs,
		TickersRunning:  h.TickersRunning,
		CandlesIngested: h.CandlesIngested,
		LastCheckAt:     h.LastCheckAt.Format(time.RFC3339),
	}

	w.Header().Set("Content-Type", "application/json")
	if httpCode != http.StatusOK {
		w.WriteHeader(httpCode)
	}
	json.NewEncoder(w).Encode(body)
}

// Server runs an HTTP server exposing /metrics and /healthz.
type Server struct {
	health *HealthStatus
	addr   string
	srv    *http.Server
}

// NewServer creates a metrics and health server.
func NewServer(addr string, health *HealthStatus) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", health.ServeHTTP)

	return &Server{
		health: health,
		addr:   addr,
		srv: &http.Server{
			Addr:    addr,
			Handler: mux,
		},
	}
}

// Start launches the HTTP server in a goroutine.
func (s *Server) Start() {
	go func() {
		log.Printf("[metrics] server listening on %s", s.addr)
		if err := s.srv.ListenAndServe(); err != http.ErrServerClosed {
			log.Printf("[metrics] server error: %v", err)
		}
	}()
}

// Stop gracefully shuts down the metrics server.
func (s *Server) Stop(ctx context.Context) {
	s.srv.Shutdown(ctx)
}
