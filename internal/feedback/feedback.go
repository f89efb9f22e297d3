// Package feedback runs the strategy feedback loop from spec.md §4.7:
// it reads execution quality and decay signals for every strategy with
// non-zero allocation, computes a composite score, and walks a status
// transition table that adjusts (and bounds) each strategy's allocation.
package feedback

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/sentinel/internal/clock"
	"github.com/aristath/sentinel/internal/config"
	"github.com/aristath/sentinel/internal/execlog"
	"github.com/aristath/sentinel/internal/store"
	"github.com/aristath/sentinel/internal/trust"
)

// Status is a strategy's allocation-health state.
type Status string

const (
	StatusActive      Status = "active"
	StatusReduced      Status = "reduced"
	StatusProbation    Status = "probation"
	StatusDeactivated  Status = "deactivated"
	StatusCooldown     Status = "cooldown" // set externally, e.g. by the drawdown monitor
)

// StrategyState is the persisted per-strategy feedback state.
type StrategyState struct {
	StrategyID string  `json:"strategy_id"`
	Status     Status  `json:"status"`
	Allocation float64 `json:"allocation"`
}

// AdaptationEvent records one feedback-loop decision for audit.
type AdaptationEvent struct {
	StrategyID        string    `json:"strategy_id"`
	Timestamp         time.Time `json:"timestamp"`
	PreviousStatus    Status    `json:"previous_status"`
	NewStatus         Status    `json:"new_status"`
	PreviousAllocation float64  `json:"previous_allocation"`
	NewAllocation     float64   `json:"new_allocation"`
	Reason            string    `json:"reason"`
	CompositeScore    float64   `json:"composite_score"`
	EQS               float64   `json:"eqs"`
	DecayRatio        float64   `json:"decay_ratio"`
}

// Engine is the strategy feedback loop.
type Engine struct {
	cfg    config.FeedbackConfig
	exec   *execlog.Log
	trust  *trust.Engine
	st     store.Store
	clk    clock.Clock
	log    zerolog.Logger

	mu     sync.RWMutex
	states map[string]StrategyState
	events []AdaptationEvent
}

// New returns a feedback engine reading execution quality from exec and
// trust history from trustEngine.
func New(cfg config.FeedbackConfig, exec *execlog.Log, trustEngine *trust.Engine, st store.Store, clk clock.Clock, logger zerolog.Logger) *Engine {
	return &Engine{
		cfg:    cfg,
		exec:   exec,
		trust:  trustEngine,
		st:     st,
		clk:    clk,
		log:    logger.With().Str("component", "feedback.engine").Logger(),
		states: make(map[string]StrategyState),
	}
}

// SetCooldown marks strategyID as Cooldown, e.g. when the drawdown
// monitor's kill switch engages. The next RunCycle may move it to
// Probation once metrics are healthy again.
func (e *Engine) SetCooldown(strategyID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	s := e.states[strategyID]
	s.StrategyID = strategyID
	s.Status = StatusCooldown
	e.states[strategyID] = s
}

func (e *Engine) stateFor(strategyID string, currentAllocation float64) StrategyState {
	e.mu.RLock()
	s, ok := e.states[strategyID]
	e.mu.RUnlock()
	if ok {
		return s
	}
	return StrategyState{StrategyID: strategyID, Status: StatusActive, Allocation: currentAllocation}
}

// shortMediumLongPerformance derives three performance components from
// the trust engine's bounded score history: short is the average of the
// newest few entries, medium a wider window, long the full history.
// This composite is this loop's own extension of the history the trust
// engine already keeps; spec.md §4.7 leaves the exact source open.
func (e *Engine) shortMediumLongPerformance(strategyID string) (short, medium, long float64) {
	history := e.trust.History(strategyID)
	if len(history) == 0 {
		return 0, 0, 0
	}
	short = avgScore(history, 5)
	medium = avgScore(history, 20)
	long = avgScore(history, len(history))
	return
}

func avgScore(history []trust.HistoryEntry, window int) float64 {
	if window > len(history) {
		window = len(history)
	}
	if window == 0 {
		return 0
	}
	var sum float64
	for i := 0; i < window; i++ {
		sum += history[i].Score
	}
	return sum / float64(window)
}

// compositeScore computes the weighted composite from spec.md §4.7.
func (e *Engine) compositeScore(strategyID string) (composite, eqsOverall, decayRatio float64) {
	eqs, err := e.exec.ComputeEQS(context.Background(), strategyID)
	if err == nil {
		eqsOverall = eqs.Overall
	}

	decay, err := e.exec.CheckDecay(strategyID)
	if err == nil {
		decayRatio = decay.Ratio
	} else {
		decayRatio = 1.0 // no data to suggest decay
	}
	decayScoreComponent := math.Min(1, decayRatio)

	short, medium, long := e.shortMediumLongPerformance(strategyID)

	composite = e.cfg.WeightEQS*eqsOverall +
		e.cfg.WeightShortPerformance*short +
		e.cfg.WeightMediumPerformance*medium +
		e.cfg.WeightLongPerformance*long +
		e.cfg.WeightDecayScore*decayScoreComponent

	return composite, eqsOverall, decayRatio
}

// boundAdjustment caps the magnitude of change from current to proposed
// at max_allocation_adjustment_pct of current.
func boundAdjustment(current, proposed, maxPct float64) float64 {
	if current <= 0 {
		return proposed
	}
	maxDelta := current * maxPct
	delta := proposed - current
	if delta > maxDelta {
		delta = maxDelta
	}
	if delta < -maxDelta {
		delta = -maxDelta
	}
	return current + delta
}

// RunCycle evaluates every strategy with a non-zero weight in
// currentAllocation (strategy id -> current allocation weight) against
// the composite score and status transition table, returning the
// normalized new allocation. Zero-weight strategies are left out of the
// result.
func (e *Engine) RunCycle(ctx context.Context, currentAllocation map[string]float64) map[string]float64 {
	type pending struct {
		strategyID string
		state      StrategyState
	}

	ids := make([]string, 0, len(currentAllocation))
	for id, alloc := range currentAllocation {
		if alloc != 0 {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)

	results := make(map[string]pending, len(ids))

	for _, id := range ids {
		current := e.stateFor(id, currentAllocation[id])
		composite, eqsOverall, decayRatio := e.compositeScore(id)

		newStatus := current.Status
		var proposedAlloc float64 = current.Allocation
		reason := "no change"

		switch {
		case eqsOverall < e.cfg.ReplacementThreshold:
			newStatus = StatusDeactivated
			proposedAlloc = 0
			reason = "EQS below replacement threshold"
		case current.Status == StatusActive && eqsOverall < e.cfg.MinEQSThreshold:
			newStatus = StatusReduced
			proposedAlloc = current.Allocation * 0.5
			reason = "EQS below minimum threshold"
		case current.Status == StatusActive && decayRatio < e.cfg.DecayRatioThreshold:
			newStatus = StatusReduced
			proposedAlloc = current.Allocation * 0.7
			reason = "decay ratio below threshold"
		case current.Status == StatusReduced && eqsOverall >= e.cfg.MinEQSThreshold && decayRatio >= e.cfg.DecayRatioThreshold:
			newStatus = StatusProbation
			proposedAlloc = math.Min(current.Allocation*1.2, current.Allocation+0.1)
			reason = "metrics recovered from reduced"
		case current.Status == StatusProbation && eqsOverall >= e.cfg.MinEQSThreshold && decayRatio >= e.cfg.DecayRatioThreshold:
			newStatus = StatusActive
			proposedAlloc = math.Min(current.Allocation*1.2, current.Allocation+0.1)
			reason = "metrics confirmed healthy on probation"
		case current.Status == StatusCooldown && eqsOverall >= e.cfg.MinEQSThreshold && decayRatio >= e.cfg.DecayRatioThreshold:
			newStatus = StatusProbation
			proposedAlloc = e.cfg.ProbationAllocation
			reason = "cooldown cleared, metrics healthy"
		}

		bounded := boundAdjustment(current.Allocation, proposedAlloc, e.cfg.MaxAllocationAdjustment)
		if newStatus == StatusDeactivated {
			bounded = 0 // deactivation is immediate, not bound-limited
		}

		newState := StrategyState{StrategyID: id, Status: newStatus, Allocation: bounded}
		results[id] = pending{strategyID: id, state: newState}

		if newStatus != current.Status || bounded != current.Allocation {
			e.recordAdaptation(ctx, AdaptationEvent{
				StrategyID:         id,
				Timestamp:          e.clk.Now(),
				PreviousStatus:     current.Status,
				NewStatus:          newStatus,
				PreviousAllocation: current.Allocation,
				NewAllocation:      bounded,
				Reason:             reason,
				CompositeScore:     composite,
				EQS:                eqsOverall,
				DecayRatio:         decayRatio,
			})
		}
	}

	var total float64
	for _, p := range results {
		total += p.state.Allocation
	}

	out := make(map[string]float64, len(results))
	e.mu.Lock()
	for id, p := range results {
		if total > 0 {
			p.state.Allocation /= total
		}
		e.states[id] = p.state
		out[id] = p.state.Allocation
		if err := e.st.Set(ctx, store.FeedbackStatusKey(id), p.state, 0); err != nil {
			e.log.Warn().Err(err).Str("strategy", id).Msg("persist feedback status")
		}
		if err := e.st.Set(ctx, store.FeedbackAllocationKey(id), p.state.Allocation, 0); err != nil {
			e.log.Warn().Err(err).Str("strategy", id).Msg("persist feedback allocation")
		}
	}
	e.mu.Unlock()

	return out
}

func (e *Engine) recordAdaptation(ctx context.Context, ev AdaptationEvent) {
	e.mu.Lock()
	e.events = append(e.events, ev)
	e.mu.Unlock()
	e.log.Info().
		Str("strategy", ev.StrategyID).
		Str("previous_status", string(ev.PreviousStatus)).
		Str("new_status", string(ev.NewStatus)).
		Float64("previous_allocation", ev.PreviousAllocation).
		Float64("new_allocation", ev.NewAllocation).
		Str("reason", ev.Reason).
		Msg("feedback adaptation")
}

// Events returns every adaptation event recorded so far, oldest first.
func (e *Engine) Events() []AdaptationEvent {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]AdaptationEvent, len(e.events))
	copy(out, e.events)
	return out
}

// State returns strategyID's current feedback state, if any.
func (e *Engine) State(strategyID string) (StrategyState, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	s, ok := e.states[strategyID]
	return s, ok
}
