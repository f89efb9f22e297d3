// Package main is the entry point for the Sentinel control plane: the
// closed-loop substrate that scores execution quality, maintains trust
// scores with decay, allocates risk budget by correlation, monitors
// drawdown with a kill switch, and runs federated governance with a
// two-phase finality lock across participating domains.
package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	sentinelclock "github.com/aristath/sentinel/internal/clock"
	"github.com/aristath/sentinel/internal/config"
	"github.com/aristath/sentinel/internal/correlation"
	"github.com/aristath/sentinel/internal/drawdown"
	"github.com/aristath/sentinel/internal/execlog"
	"github.com/aristath/sentinel/internal/feedback"
	"github.com/aristath/sentinel/internal/governance"
	"github.com/aristath/sentinel/internal/health"
	"github.com/aristath/sentinel/internal/logger"
	"github.com/aristath/sentinel/internal/risk"
	"github.com/aristath/sentinel/internal/store"
	"github.com/aristath/sentinel/internal/supervisor"
	"github.com/aristath/sentinel/internal/telemetry"
	"github.com/aristath/sentinel/internal/trust"
	"github.com/aristath/sentinel/internal/utils"
)

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fallbackLog := logger.New(logger.Config{Level: "info", Pretty: true})
		fallbackLog.Fatal().Err(err).Msg("failed to load configuration")
	}

	log := logger.New(logger.Config{Level: cfg.LogLevel, Pretty: cfg.DevMode})
	log.Info().Msg("starting sentinel control plane")

	clk := sentinelclock.New()

	st, closeStore := newStore(log)
	defer closeStore()

	hub := telemetry.NewHub(st, log)

	localDomain := getEnv("SENTINEL_LOCAL_DOMAIN", "domain-a")
	peerDomains := utils.ParseCSV(getEnv("SENTINEL_FEDERATION_DOMAINS", localDomain))

	trustEngine := trust.New(cfg.Trust, st, hub, clk, log)
	activityTracker := trust.NewActivityTracker(cfg.Trust, clk)
	decayScheduler := trust.NewDecayScheduler(cfg.Trust, trustEngine, activityTracker, nil, clk, log)

	execLog := execlog.New(cfg.EQS, st, clk, log)
	corrEngine := correlation.New(cfg.Correlation, st, clk, log)
	feedbackEngine := feedback.New(cfg.Feedback, execLog, trustEngine, st, clk, log)

	drawdownMonitor := drawdown.New(cfg.Drawdown, st, hub, clk, cfg.DrawdownLogPath, func(agent string) {
		feedbackEngine.SetCooldown(agent)
	}, log)

	riskCalc := risk.New(cfg.Risk, drawdownMonitor, log)

	govManager := governance.New(cfg.Federation, st, hub, trustEngine, clk, localDomain, log)
	govManager.RegisterExecutor(governance.LocalExecutor{})

	healthSrv := health.New(st, log, ":"+strconv.Itoa(cfg.Port))
	healthSrv.Router().Handle("/events", telemetry.NewBroadcastHandler(hub, log))
	healthSrv.Router().Post("/risk/check", riskCheckHandler(riskCalc, log))

	sup := supervisor.New(log, "control-plane")
	decayScheduler.Start()

	period := correlation.Period(cfg.Correlation.DefaultPeriod)
	sup.Every("feedback.run_cycle", time.Duration(cfg.Feedback.CycleIntervalSeconds)*time.Second, func(ctx context.Context) {
		base := currentAllocations(ctx, st, peerDomains)

		allocation, err := corrEngine.RiskWeights(ctx, period, base)
		if err != nil {
			log.Warn().Err(err).Msg("risk weights unavailable, feeding base allocation to feedback cycle unadjusted")
			feedbackEngine.RunCycle(ctx, base)
			return
		}
		feedbackEngine.RunCycle(ctx, allocation.AdjustedWeights)
	})
	sup.Every("governance.execution_check", cfg.Federation.ExecutionCheckInterval, func(ctx context.Context) {
		govManager.RunExecutionCheck(ctx)
	})
	sup.Every("governance.finalization_check", cfg.Federation.FinalizationCheckInterval, func(ctx context.Context) {
		govManager.RunFinalizationCheck(ctx)
	})
	sup.Every("governance.lock_sweep", cfg.Federation.LockCleanupInterval, func(ctx context.Context) {
		govManager.SweepExpiredLocks(ctx)
	})
	sup.Start()

	go func() {
		if err := healthSrv.ListenAndServe(); err != nil {
			log.Fatal().Err(err).Msg("health server failed")
		}
	}()
	log.Info().Int("port", cfg.Port).Msg("health server started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down")
	decayScheduler.Stop()
	sup.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := healthSrv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("health server forced to shutdown")
	}
	log.Info().Msg("stopped")
}

// riskCheckHandler exposes the pre-trade calculator so callers can
// validate a proposed position before submitting it to a venue. It is a
// single endpoint, not a general trading API.
func riskCheckHandler(calc *risk.Calculator, log zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var pos risk.ProposedPosition
		if err := json.NewDecoder(r.Body).Decode(&pos); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}

		result := calc.Check(r.Context(), pos)

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(result); err != nil {
			log.Warn().Err(err).Msg("encode risk check response")
		}
	}
}

// newStore builds the production Store. Set SENTINEL_STORE_BACKEND=memory
// to run against the in-process MemoryStore instead of Redis, e.g. for a
// single-node demo without a Redis instance available.
func newStore(log zerolog.Logger) (store.Store, func()) {
	if getEnv("SENTINEL_STORE_BACKEND", "redis") == "memory" {
		st := store.NewMemoryStore(sentinelclock.New())
		return st, func() {}
	}

	redisCfg := store.DefaultRedisConfig()
	redisCfg.URL = getEnv("SENTINEL_REDIS_URL", redisCfg.URL)
	redisCfg.KeyPrefix = getEnv("SENTINEL_REDIS_PREFIX", "sentinel")

	st, err := store.NewRedisStore(redisCfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to redis")
	}
	return st, func() {
		if err := st.Close(); err != nil {
			log.Warn().Err(err).Msg("closing redis store")
		}
	}
}

// currentAllocations reads each domain's persisted allocation share, if
// any, defaulting to an equal split across peerDomains. The feedback
// loop normalizes whatever it is handed back to sum to 1.0.
func currentAllocations(ctx context.Context, st store.Store, strategies []string) map[string]float64 {
	out := make(map[string]float64, len(strategies))
	if len(strategies) == 0 {
		return out
	}
	equalShare := 1.0 / float64(len(strategies))
	for _, s := range strategies {
		var existing float64
		if err := st.Get(ctx, store.FeedbackAllocationKey(s), &existing); err == nil && existing > 0 {
			out[s] = existing
			continue
		}
		out[s] = equalShare
	}
	return out
}
