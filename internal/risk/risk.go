// Package risk implements the pre-trade calculator from spec.md §4.6: a
// constant-time check of a proposed position against static exposure
// limits, with atomic exposure-update commit on acceptance.
package risk

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/aristath/sentinel/internal/config"
)

// Direction is the proposed position's side.
type Direction string

const (
	DirectionLong  Direction = "long"
	DirectionShort Direction = "short"
)

// Severity classifies a violated check. Every check in spec.md §4.6 is
// critical; the field exists so future checks can be advisory without a
// breaking change to the result shape.
type Severity string

const CriticalSeverity Severity = "critical"

// ProposedPosition is the input to a pre-trade check.
type ProposedPosition struct {
	StrategyID     string    `json:"strategy_id"`
	Symbol         string    `json:"symbol"`
	Venue          string    `json:"venue"`
	Size           float64   `json:"size"`
	Value          float64   `json:"value"`
	Leverage       float64   `json:"leverage"`
	TrustScore     float64   `json:"trust_score"`
	Direction      Direction `json:"direction"`
	PortfolioValue float64   `json:"portfolio_value"`
}

// Violation describes one failed check.
type Violation struct {
	Check    string   `json:"check"`
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`
}

// Result is the pre-trade decision.
type Result struct {
	Accepted   bool        `json:"accepted"`
	Exempt     bool        `json:"exempt"`
	Violations []Violation `json:"violations,omitempty"`
}

// KillSwitch reports whether a strategy is currently subject to a
// drawdown cooldown. internal/drawdown.Monitor satisfies this.
type KillSwitch interface {
	IsKillSwitchActive(agent string) bool
}

// Calculator holds the live per-venue and per-symbol exposure state that
// every pre-trade check reads and, on acceptance, updates atomically.
type Calculator struct {
	cfg config.RiskConfig
	ks  KillSwitch
	log zerolog.Logger

	mu             sync.Mutex
	venueExposure  map[string]float64
	symbolExposure map[string]float64
}

// New returns a risk calculator. ks may be nil to disable the drawdown
// kill-switch check.
func New(cfg config.RiskConfig, ks KillSwitch, logger zerolog.Logger) *Calculator {
	return &Calculator{
		cfg:            cfg,
		ks:             ks,
		log:            logger.With().Str("component", "risk.calculator").Logger(),
		venueExposure:  make(map[string]float64),
		symbolExposure: make(map[string]float64),
	}
}

func isExempt(strategyID string, exempt []string) bool {
	for _, s := range exempt {
		if s == strategyID {
			return true
		}
	}
	return false
}

// Check evaluates pos against every static limit and, if it passes,
// commits the resulting venue/symbol exposure update atomically with the
// acceptance decision.
func (c *Calculator) Check(ctx context.Context, pos ProposedPosition) Result {
	if isExempt(pos.StrategyID, c.cfg.ExemptStrategies) {
		return Result{Accepted: true, Exempt: true}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	var violations []Violation

	if pos.PortfolioValue > 0 && pos.Value/pos.PortfolioValue > c.cfg.MaxPositionSizePct {
		violations = append(violations, Violation{
			Check: "position_size", Severity: CriticalSeverity,
			Message: "position value exceeds max position size percentage of portfolio",
		})
	}

	if pos.Leverage > c.cfg.MaxLeverage {
		violations = append(violations, Violation{
			Check: "leverage", Severity: CriticalSeverity,
			Message: "leverage exceeds configured maximum",
		})
	}

	if pos.TrustScore < c.cfg.MinTrustScore {
		violations = append(violations, Violation{
			Check: "trust_score", Severity: CriticalSeverity,
			Message: "strategy trust score below configured floor",
		})
	}

	if c.ks != nil && c.ks.IsKillSwitchActive(pos.StrategyID) {
		violations = append(violations, Violation{
			Check: "kill_switch", Severity: CriticalSeverity,
			Message: "strategy is in drawdown cooldown",
		})
	}

	currentVenue := c.venueExposure[pos.Venue]
	if pos.PortfolioValue > 0 && (currentVenue+pos.Value)/pos.PortfolioValue > c.cfg.MaxVenueExposure {
		violations = append(violations, Violation{
			Check: "venue_exposure", Severity: CriticalSeverity,
			Message: "venue exposure would exceed configured maximum",
		})
	}

	currentSymbol := c.symbolExposure[pos.Symbol]
	if pos.PortfolioValue > 0 && (currentSymbol+pos.Value)/pos.PortfolioValue > c.cfg.MaxSymbolExposure {
		violations = append(violations, Violation{
			Check: "symbol_exposure", Severity: CriticalSeverity,
			Message: "symbol exposure would exceed configured maximum",
		})
	}

	if len(violations) > 0 {
		return Result{Accepted: false, Violations: violations}
	}

	c.venueExposure[pos.Venue] = currentVenue + pos.Value
	c.symbolExposure[pos.Symbol] = currentSymbol + pos.Value

	return Result{Accepted: true}
}

// ReleaseExposure reverses a prior commit, e.g. on position close.
func (c *Calculator) ReleaseExposure(venue, symbol string, value float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.venueExposure[venue] -= value
	c.symbolExposure[symbol] -= value
	if c.venueExposure[venue] < 0 {
		c.venueExposure[venue] = 0
	}
	if c.symbolExposure[symbol] < 0 {
		c.symbolExposure[symbol] = 0
	}
}

// VenueExposure returns the currently committed exposure for venue.
func (c *Calculator) VenueExposure(venue string) float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.venueExposure[venue]
}

// SymbolExposure returns the currently committed exposure for symbol.
func (c *Calculator) SymbolExposure(symbol string) float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.symbolExposure[symbol]
}
