// Package execlog maintains bounded per-strategy execution history and
// the rolling execution quality score (EQS) derived from it, per
// spec.md §4.1. Ring-buffer eviction and per-strategy locking follow the
// reader-writer pattern the teacher uses for its in-memory caches.
package execlog

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/aristath/sentinel/internal/apperr"
	"github.com/aristath/sentinel/internal/clock"
	"github.com/aristath/sentinel/internal/config"
	"github.com/aristath/sentinel/internal/store"
)

// Outcome is the terminal state of an execution attempt.
type Outcome string

const (
	OutcomeFilled      Outcome = "filled"
	OutcomePartialFill Outcome = "partial-fill"
	OutcomeRejected    Outcome = "rejected"
	OutcomeCancelled   Outcome = "cancelled"
	OutcomeFailed      Outcome = "failed"
)

// Record is one immutable execution record.
type Record struct {
	OrderID       string
	StrategyID    string
	VenueID       string
	EntryTime     time.Time
	ExitTime      time.Time // zero if still open
	EntryPrice    float64
	ExitPrice     float64
	FilledQty     float64
	SlippageBps   float64
	LatencyMs     float64
	Outcome       Outcome
}

// EQS is the execution quality score for a strategy at a window end.
type EQS struct {
	StrategyID      string
	WindowEnd       time.Time
	Overall         float64
	SlippageScore   float64
	LatencyScore    float64
	FillRateScore   float64
	CancelRateScore float64
	ExecutionCount  int
	Venue           string
}

// DecayCheck is the result of comparing recent vs trailing success rate.
type DecayCheck struct {
	IsDecaying bool
	Ratio      float64
}

type strategyRing struct {
	mu      sync.RWMutex
	records []Record // oldest first
	cap     int
}

func newStrategyRing(capacity int) *strategyRing {
	return &strategyRing{cap: capacity}
}

func (r *strategyRing) push(rec Record) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, rec)
	if len(r.records) > r.cap {
		r.records = r.records[len(r.records)-r.cap:]
	}
}

func (r *strategyRing) snapshot() []Record {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Record, len(r.records))
	copy(out, r.records)
	return out
}

// Log is the execution log and EQS calculator.
type Log struct {
	cfg config.EQSConfig
	st  store.Store
	clk clock.Clock
	log zerolog.Logger

	mu    sync.RWMutex
	rings map[string]*strategyRing
	eqs   map[string]EQS

	onLogged func(strategyID string) // hook for decay-check / activity tracking callers
}

// New returns an execution log backed by st.
func New(cfg config.EQSConfig, st store.Store, clk clock.Clock, logger zerolog.Logger) *Log {
	return &Log{
		cfg:   cfg,
		st:    st,
		clk:   clk,
		log:   logger.With().Str("component", "execlog").Logger(),
		rings: make(map[string]*strategyRing),
		eqs:   make(map[string]EQS),
	}
}

// OnLogged registers a callback invoked after every successful LogExecution,
// e.g. to stamp trust-decay activity for the strategy. Only one callback is
// kept; cmd/server does not register one.
func (l *Log) OnLogged(fn func(strategyID string)) {
	l.onLogged = fn
}

func (l *Log) ringFor(strategyID string) *strategyRing {
	l.mu.RLock()
	r, ok := l.rings[strategyID]
	l.mu.RUnlock()
	if ok {
		return r
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if r, ok := l.rings[strategyID]; ok {
		return r
	}
	r = newStrategyRing(l.cfg.MaxRecentExecutions)
	l.rings[strategyID] = r
	return r
}

// LogExecution appends rec to its strategy's ring, persists it, and
// triggers an EQS recompute when the ring holds enough data.
func (l *Log) LogExecution(ctx context.Context, rec Record) error {
	if rec.OrderID == "" {
		rec.OrderID = uuid.NewString()
	}

	ring := l.ringFor(rec.StrategyID)
	ring.push(rec)

	if err := l.st.Set(ctx, store.ExecLogKey(rec.StrategyID), rec, 0); err != nil {
		l.log.Warn().Err(err).Str("strategy", rec.StrategyID).Msg("persist execution record")
	}

	if rec.SlippageBps != 0 && rec.VenueID != "" {
		if err := l.st.Set(ctx, store.ExecSlippageKey(rec.StrategyID, rec.VenueID), rec.SlippageBps, 0); err != nil {
			l.log.Warn().Err(err).Str("strategy", rec.StrategyID).Str("venue", rec.VenueID).Msg("persist slippage sample")
		}
	}

	if len(ring.snapshot()) >= l.cfg.MinimumExecutions {
		if _, err := l.ComputeEQS(ctx, rec.StrategyID); err != nil && !apperr.Is(err, apperr.KindInsufficientData) {
			l.log.Warn().Err(err).Str("strategy", rec.StrategyID).Msg("recompute EQS after log")
		}
	}

	if l.onLogged != nil {
		l.onLogged(rec.StrategyID)
	}
	return nil
}

// ComputeEQS recomputes the execution quality score from records within
// the configured window.
func (l *Log) ComputeEQS(ctx context.Context, strategyID string) (EQS, error) {
	ring := l.ringFor(strategyID)
	all := ring.snapshot()

	windowStart := l.clk.Now().Add(-time.Duration(l.cfg.WindowSeconds) * time.Second)
	var windowed []Record
	for _, r := range all {
		if r.EntryTime.After(windowStart) {
			windowed = append(windowed, r)
		}
	}

	if len(windowed) < l.cfg.MinimumExecutions {
		return EQS{}, apperr.Wrap(apperr.KindInsufficientData,
			"not enough executions in EQS window for "+strategyID, nil)
	}

	var absSlippageSum, latencySum float64
	var filled, partial, cancelled int
	for _, r := range windowed {
		absSlippageSum += math.Abs(r.SlippageBps)
		latencySum += r.LatencyMs
		switch r.Outcome {
		case OutcomeFilled:
			filled++
		case OutcomePartialFill:
			partial++
		case OutcomeCancelled:
			cancelled++
		}
	}
	total := float64(len(windowed))

	slippageScore := 1 - math.Min(1, (absSlippageSum/total)/20)
	latencyScore := 1 - math.Min(1, (latencySum/total)/1000)
	fillRateScore := (float64(filled) + 0.5*float64(partial)) / total
	cancelRateScore := 1 - float64(cancelled)/total

	weightSum := l.cfg.WeightSlippage + l.cfg.WeightLatency + l.cfg.WeightFillRate + l.cfg.WeightCancelRate
	if weightSum <= 0 {
		weightSum = 1
	}
	overall := (l.cfg.WeightSlippage*slippageScore +
		l.cfg.WeightLatency*latencyScore +
		l.cfg.WeightFillRate*fillRateScore +
		l.cfg.WeightCancelRate*cancelRateScore) / weightSum

	result := EQS{
		StrategyID:      strategyID,
		WindowEnd:       l.clk.Now(),
		Overall:         clamp01(overall),
		SlippageScore:   clamp01(slippageScore),
		LatencyScore:    clamp01(latencyScore),
		FillRateScore:   clamp01(fillRateScore),
		CancelRateScore: clamp01(cancelRateScore),
		ExecutionCount:  len(windowed),
	}

	l.mu.Lock()
	l.eqs[strategyID] = result
	l.mu.Unlock()

	if err := l.st.Set(ctx, store.ExecEQSKey(strategyID), result, 0); err != nil {
		l.log.Warn().Err(err).Str("strategy", strategyID).Msg("persist EQS")
	}

	return result, nil
}

// GetSlippage returns the mean slippage in basis points across records,
// optionally restricted to a single venue.
func (l *Log) GetSlippage(strategyID string, venue string) (float64, error) {
	ring := l.ringFor(strategyID)
	records := ring.snapshot()
	if len(records) == 0 {
		return 0, apperr.Wrap(apperr.KindInsufficientData, "no execution records for "+strategyID, nil)
	}

	var sum float64
	var count int
	for _, r := range records {
		if venue != "" && r.VenueID != venue {
			continue
		}
		sum += r.SlippageBps
		count++
	}
	if count == 0 {
		return 0, apperr.Wrap(apperr.KindInsufficientData, "no matching execution records for "+strategyID, nil)
	}
	return sum / float64(count), nil
}

// CheckDecay compares recent vs trailing success rate to flag execution
// quality decay.
func (l *Log) CheckDecay(strategyID string) (DecayCheck, error) {
	ring := l.ringFor(strategyID)
	records := ring.snapshot()
	if len(records) == 0 {
		return DecayCheck{}, apperr.Wrap(apperr.KindInsufficientData, "no execution records for "+strategyID, nil)
	}

	now := l.clk.Now()
	recentStart := now.Add(-time.Duration(l.cfg.RecentWindowHours) * time.Hour)
	trailingStart := now.Add(-time.Duration(l.cfg.RecentWindowHours+l.cfg.TrailingWindowHours) * time.Hour)

	var recentSuccess, recentTotal, trailingSuccess, trailingTotal int
	for _, r := range records {
		if r.EntryTime.After(recentStart) {
			recentTotal++
			if isSuccess(r.Outcome) {
				recentSuccess++
			}
			continue
		}
		if r.EntryTime.After(trailingStart) {
			trailingTotal++
			if isSuccess(r.Outcome) {
				trailingSuccess++
			}
		}
	}

	if recentTotal == 0 {
		return DecayCheck{}, apperr.Wrap(apperr.KindInsufficientData, "no recent executions for "+strategyID, nil)
	}

	recentRate := float64(recentSuccess) / float64(recentTotal)
	ratio := 1.0
	if trailingTotal > 0 {
		trailingRate := float64(trailingSuccess) / float64(trailingTotal)
		if trailingRate > 0 {
			ratio = recentRate / trailingRate
		}
	}

	check := DecayCheck{
		IsDecaying: ratio < l.cfg.DecayThreshold,
		Ratio:      ratio,
	}

	if err := l.st.Set(context.Background(), store.StrategyDecayScoreKey(strategyID), check.Ratio, 0); err != nil {
		l.log.Warn().Err(err).Str("strategy", strategyID).Msg("persist EQS decay ratio")
	}

	return check, nil
}

func isSuccess(o Outcome) bool {
	return o == OutcomeFilled || o == OutcomePartialFill
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
