// Package trust computes a normalized trust score per strategy from a
// weighted feature vector, blends it against history with a decay
// factor, and maintains the bounded score history, per spec.md §4.2.
// The engine itself is grounded on the original trust_score_engine.rs;
// the decay scheduler (decay.go) is grounded on §4.3 and runs on a
// robfig/cron schedule.
package trust

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/sentinel/internal/apperr"
	"github.com/aristath/sentinel/internal/clock"
	"github.com/aristath/sentinel/internal/config"
	"github.com/aristath/sentinel/internal/store"
	"github.com/aristath/sentinel/internal/telemetry"
)

// Score is the current trust score for a strategy plus the feature
// vector that produced it.
type Score struct {
	StrategyID  string
	Score       float64
	Features    Features
	Timestamp   time.Time
	UpdateCount uint64
}

// HistoryEntry is one bounded, newest-first history record.
type HistoryEntry struct {
	Score     float64
	Features  Features
	Timestamp time.Time
}

const maxHistoryEntries = 200

// Engine computes and persists trust scores.
type Engine struct {
	cfg config.TrustConfig
	st  store.Store
	hub *telemetry.Hub
	clk clock.Clock
	log zerolog.Logger

	mu      sync.RWMutex
	scores  map[string]Score
	history map[string][]HistoryEntry
}

// New returns a trust engine backed by st and publishing through hub.
func New(cfg config.TrustConfig, st store.Store, hub *telemetry.Hub, clk clock.Clock, logger zerolog.Logger) *Engine {
	return &Engine{
		cfg:     cfg,
		st:      st,
		hub:     hub,
		clk:     clk,
		log:     logger.With().Str("component", "trust.engine").Logger(),
		scores:  make(map[string]Score),
		history: make(map[string][]HistoryEntry),
	}
}

// ExtractFeatures normalizes a PerformanceInput into a Features vector.
// Returns InsufficientData if the strategy hasn't traded enough to score
// reliably.
func (e *Engine) ExtractFeatures(in PerformanceInput) (Features, error) {
	if in.TotalTrades < e.cfg.MinimumTrades {
		return Features{}, apperr.Wrap(apperr.KindInsufficientData,
			"not enough trades for reliable trust scoring", nil)
	}

	entropy := defaultEntropyScore
	if in.EntropyOverride != nil {
		entropy = clamp01(*in.EntropyOverride)
	}

	return Features{
		WinRate:           in.WinRatePct / 100,
		TotalTrades:       in.TotalTrades,
		NormalizedSharpe:  normalizeSharpe(in.SharpeRatio),
		NormalizedSortino: normalizeSortino(in.SortinoRatio),
		DrawdownScore:     drawdownScore(in.MaxDrawdownPct, in.CurDrawdownPct),
		LatencyScore:      latencyScore(in.AvgLatencyMs, in.MaxLatencyMs),
		FailureScore:      failureScore(in.FailRate),
		EntropyScore:      entropy,
		Timestamp:         e.clk.Now(),
	}, nil
}

// ComputeScore extracts features from in, blends them against the
// previous score with the configured decay factor, and persists the
// result.
func (e *Engine) ComputeScore(ctx context.Context, strategyID string, in PerformanceInput) (Score, error) {
	features, err := e.ExtractFeatures(in)
	if err != nil {
		return Score{}, err
	}

	weighted := features.WinRate*e.cfg.WeightWinRate +
		features.NormalizedSharpe*e.cfg.WeightSharpe +
		features.NormalizedSortino*e.cfg.WeightSortino +
		features.DrawdownScore*e.cfg.WeightDrawdown +
		features.LatencyScore*e.cfg.WeightLatency +
		features.FailureScore*e.cfg.WeightFailure +
		features.EntropyScore*e.cfg.WeightEntropy
	weighted = clamp01(weighted)

	previous, hadPrevious := e.GetScore(strategyID)

	finalScore := weighted
	if hadPrevious {
		decay := e.cfg.FeatureDecayFactor
		finalScore = decay*previous.Score + (1-decay)*weighted
	}

	updated := Score{
		StrategyID:  strategyID,
		Score:       finalScore,
		Features:    features,
		Timestamp:   e.clk.Now(),
		UpdateCount: previous.UpdateCount + 1,
	}

	e.mu.Lock()
	e.scores[strategyID] = updated
	entries := append([]HistoryEntry{{Score: finalScore, Features: features, Timestamp: updated.Timestamp}}, e.history[strategyID]...)
	if len(entries) > maxHistoryEntries {
		entries = entries[:maxHistoryEntries]
	}
	e.history[strategyID] = entries
	e.mu.Unlock()

	if err := e.st.Set(ctx, store.TrustScoreKey(strategyID), updated, 0); err != nil {
		e.log.Warn().Err(err).Str("strategy", strategyID).Msg("persist trust score")
	}
	if err := e.st.Set(ctx, store.TrustHistoryKey(strategyID), entries, 0); err != nil {
		e.log.Warn().Err(err).Str("strategy", strategyID).Msg("persist trust history")
	}

	e.checkThresholdCrossing(ctx, strategyID, previous.Score, finalScore, hadPrevious)

	return updated, nil
}

// GetScore returns the in-memory score for strategyID, and whether one
// exists yet.
func (e *Engine) GetScore(strategyID string) (Score, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	s, ok := e.scores[strategyID]
	return s, ok
}

// History returns the bounded, newest-first score history for strategyID.
func (e *Engine) History(strategyID string) []HistoryEntry {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]HistoryEntry, len(e.history[strategyID]))
	copy(out, e.history[strategyID])
	return out
}

// SetScore seeds the in-memory score map directly, used by the decay
// scheduler after it recomputes a decayed score.
func (e *Engine) SetScore(s Score) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.scores[s.StrategyID] = s
}

func (e *Engine) checkThresholdCrossing(ctx context.Context, strategyID string, oldScore, newScore float64, hadPrevious bool) {
	if !hadPrevious {
		return
	}
	if oldScore >= e.cfg.WarningThreshold && newScore < e.cfg.WarningThreshold {
		e.hub.Publish(ctx, &telemetry.TrustWarningData{
			Kind: telemetry.TrustWarning, Strategy: strategyID,
			OldScore: oldScore, NewScore: newScore, Threshold: e.cfg.WarningThreshold,
		})
		e.hub.Publish(ctx, &telemetry.TrustThresholdCrossedData{
			Strategy: strategyID, ThresholdName: "warning", ThresholdValue: e.cfg.WarningThreshold,
			OldScore: oldScore, NewScore: newScore,
		})
	}
	if oldScore >= e.cfg.CriticalThreshold && newScore < e.cfg.CriticalThreshold {
		e.hub.Publish(ctx, &telemetry.TrustWarningData{
			Kind: telemetry.TrustCritical, Strategy: strategyID,
			OldScore: oldScore, NewScore: newScore, Threshold: e.cfg.CriticalThreshold,
		})
		e.hub.Publish(ctx, &telemetry.TrustThresholdCrossedData{
			Strategy: strategyID, ThresholdName: "critical", ThresholdValue: e.cfg.CriticalThreshold,
			OldScore: oldScore, NewScore: newScore,
		})
	}
}
