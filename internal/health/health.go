// Package health exposes a minimal HTTP surface for liveness, readiness,
// and process metrics, in the style of the teacher's internal/server
// system handlers but scoped to the control plane rather than a trading
// dashboard.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/aristath/sentinel/internal/store"
)

// Status captures the shape of the /health response.
type Status struct {
	OK        bool      `json:"ok"`
	Store     string    `json:"store"`
	UptimeSec float64   `json:"uptime_seconds"`
	CheckedAt time.Time `json:"checked_at"`
}

// Stats captures /status, the process-metrics surface gopsutil backs.
type Stats struct {
	CPUPercent    float64 `json:"cpu_percent"`
	MemoryPercent float64 `json:"memory_percent"`
}

// Server is the control plane's own small HTTP surface: liveness,
// readiness, and process stats. It does not serve any trading UI.
type Server struct {
	router    *chi.Mux
	server    *http.Server
	st        store.Store
	log       zerolog.Logger
	startedAt time.Time
}

// New builds a health Server listening on addr. An empty addr makes
// ListenAndServe use net/http's default, ":http".
func New(st store.Store, logger zerolog.Logger, addr string) *Server {
	s := &Server{
		router:    chi.NewRouter(),
		st:        st,
		log:       logger.With().Str("component", "health").Logger(),
		startedAt: time.Now(),
	}

	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET"},
	}))

	s.router.Get("/health", s.handleHealth)
	s.router.Get("/ready", s.handleReady)
	s.router.Get("/status", s.handleStatus)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}
	return s
}

// Router exposes the underlying chi.Mux so callers (e.g. cmd/server) can
// mount additional routes such as the telemetry websocket handler.
func (s *Server) Router() *chi.Mux { return s.router }

func (s *Server) writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Warn().Err(err).Msg("encode health response")
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, Status{OK: true, UptimeSec: time.Since(s.startedAt).Seconds(), CheckedAt: time.Now()})
}

// handleReady reports whether the backing store is reachable. A failing
// store check fails readiness without failing liveness.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := Status{CheckedAt: time.Now(), UptimeSec: time.Since(s.startedAt).Seconds()}
	if err := s.st.HealthCheck(ctx); err != nil {
		status.Store = "unreachable"
		s.writeJSON(w, http.StatusServiceUnavailable, status)
		return
	}
	status.OK = true
	status.Store = "reachable"
	s.writeJSON(w, http.StatusOK, status)
}

// handleStatus reports instantaneous host-wide CPU and memory usage (not
// per-process figures), mirroring the teacher's getSystemStats.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	cpuPercent, err := cpu.Percent(100*time.Millisecond, false)
	if err != nil {
		s.log.Warn().Err(err).Msg("read cpu percent")
		cpuPercent = []float64{0}
	}
	memStat, err := mem.VirtualMemory()
	memPercent := 0.0
	if err != nil {
		s.log.Warn().Err(err).Msg("read memory stats")
	} else {
		memPercent = memStat.UsedPercent
	}

	cpuAvg := 0.0
	if len(cpuPercent) > 0 {
		cpuAvg = cpuPercent[0]
	}

	s.writeJSON(w, http.StatusOK, Stats{CPUPercent: cpuAvg, MemoryPercent: memPercent})
}

// ListenAndServe blocks serving HTTP until the server is shut down.
func (s *Server) ListenAndServe() error {
	s.log.Info().Str("addr", s.server.Addr).Msg("health server listening")
	err := s.server.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
