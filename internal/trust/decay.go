package trust

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/aristath/sentinel/internal/clock"
	"github.com/aristath/sentinel/internal/config"
	"github.com/aristath/sentinel/internal/store"
)

// ActivityStatus classifies a strategy's trading activity for the decay
// cycle, per spec.md §4.3.
type ActivityStatus int

const (
	StatusActive ActivityStatus = iota
	StatusRecentlyInactive
	StatusInactive
)

// ActivityTracker stamps last-activity times and derives activity status.
type ActivityTracker struct {
	cfg config.TrustConfig
	clk clock.Clock

	mu              sync.RWMutex
	lastActivity    map[string]time.Time
	currentlyTrading map[string]struct{}
}

// NewActivityTracker returns an empty tracker.
func NewActivityTracker(cfg config.TrustConfig, clk clock.Clock) *ActivityTracker {
	return &ActivityTracker{
		cfg:              cfg,
		clk:              clk,
		lastActivity:     make(map[string]time.Time),
		currentlyTrading: make(map[string]struct{}),
	}
}

// RecordActivity stamps strategyID as active now.
func (a *ActivityTracker) RecordActivity(strategyID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.lastActivity[strategyID] = a.clk.Now()
	a.currentlyTrading[strategyID] = struct{}{}
}

// AgeOutInactive drops strategies from the currently-trading set once
// their activity has aged past the inactivity threshold, so the next
// status check correctly reports Inactive instead of Active.
func (a *ActivityTracker) AgeOutInactive() {
	threshold := time.Duration(a.cfg.InactivityThresholdHours) * time.Hour
	now := a.clk.Now()

	a.mu.Lock()
	defer a.mu.Unlock()
	for strategyID := range a.currentlyTrading {
		last, ok := a.lastActivity[strategyID]
		if !ok || now.Sub(last) >= threshold {
			delete(a.currentlyTrading, strategyID)
		}
	}
}

// Status derives strategyID's current activity status.
func (a *ActivityTracker) Status(strategyID string) ActivityStatus {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if _, trading := a.currentlyTrading[strategyID]; trading {
		return StatusActive
	}
	last, ok := a.lastActivity[strategyID]
	if !ok {
		return StatusInactive
	}
	threshold := time.Duration(a.cfg.InactivityThresholdHours) * time.Hour
	if a.clk.Now().Sub(last) < threshold {
		return StatusRecentlyInactive
	}
	return StatusInactive
}

// Strategies returns every strategy the tracker has seen activity for.
func (a *ActivityTracker) Strategies() []string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]string, 0, len(a.lastActivity))
	for s := range a.lastActivity {
		out = append(out, s)
	}
	return out
}

// DecayOverrides supplies per-strategy daily decay factor overrides,
// keyed by strategy id.
type DecayOverrides map[string]float64

// DecayScheduler runs the trust decay cycle on the configured cadence
// using robfig/cron, the same cadence library the teacher reaches for
// periodic jobs.
type DecayScheduler struct {
	cfg       config.TrustConfig
	engine    *Engine
	tracker   *ActivityTracker
	overrides DecayOverrides
	clk       clock.Clock
	log       zerolog.Logger

	cron *cron.Cron
}

// NewDecayScheduler wires a decay cycle against engine and tracker.
func NewDecayScheduler(cfg config.TrustConfig, engine *Engine, tracker *ActivityTracker, overrides DecayOverrides, clk clock.Clock, logger zerolog.Logger) *DecayScheduler {
	return &DecayScheduler{
		cfg:       cfg,
		engine:    engine,
		tracker:   tracker,
		overrides: overrides,
		clk:       clk,
		log:       logger.With().Str("component", "trust.decay").Logger(),
		cron:      cron.New(),
	}
}

// Start schedules the decay cycle to run every DecayIntervalSeconds.
func (d *DecayScheduler) Start() {
	spec := fmt.Sprintf("@every %ds", d.cfg.DecayIntervalSeconds)
	if _, err := d.cron.AddFunc(spec, func() { d.RunCycle(context.Background()) }); err != nil {
		d.log.Error().Err(err).Msg("schedule decay cycle")
		return
	}
	d.cron.Start()
}

// Stop halts the cron scheduler and waits for any in-flight run to finish.
func (d *DecayScheduler) Stop() {
	ctx := d.cron.Stop()
	<-ctx.Done()
}

func excluded(strategyID string, list []string) bool {
	for _, s := range list {
		if s == strategyID {
			return true
		}
	}
	return false
}

// RunCycle applies decay to every eligible inactive strategy once.
// Exported so tests can trigger it directly rather than waiting on the
// cron cadence.
func (d *DecayScheduler) RunCycle(ctx context.Context) {
	if !d.cfg.DecayEnabled {
		return
	}

	d.tracker.AgeOutInactive()

	for _, strategyID := range d.tracker.Strategies() {
		if excluded(strategyID, d.cfg.ExcludedStrategies) {
			continue
		}
		status := d.tracker.Status(strategyID)
		if d.cfg.PauseDuringTrading && status == StatusActive {
			continue
		}
		if status != StatusInactive {
			continue
		}
		d.applyDecay(ctx, strategyID)
	}
}

func (d *DecayScheduler) applyDecay(ctx context.Context, strategyID string) {
	previous, ok := d.engine.GetScore(strategyID)
	if !ok {
		return
	}

	dailyFactor := d.cfg.DefaultDecayFactorPerDay
	if override, ok := d.overrides[strategyID]; ok {
		dailyFactor = override
	}
	hourlyFactor := math.Pow(dailyFactor, 1.0/24.0)

	newScoreVal := clamp01(previous.Score * hourlyFactor)
	if math.Abs(newScoreVal-previous.Score) <= 0.0001 {
		return
	}

	updated := previous
	updated.Score = newScoreVal
	updated.Timestamp = d.clk.Now()
	d.engine.SetScore(updated)

	if err := d.engine.st.Set(ctx, store.TrustScoreKey(strategyID), updated, 0); err != nil {
		d.log.Warn().Err(err).Str("strategy", strategyID).Msg("persist decayed score")
	}

	d.engine.checkThresholdCrossing(ctx, strategyID, previous.Score, newScoreVal, true)
}
