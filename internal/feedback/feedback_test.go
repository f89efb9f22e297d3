package feedback

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/sentinel/internal/clock"
	"github.com/aristath/sentinel/internal/config"
	"github.com/aristath/sentinel/internal/execlog"
	"github.com/aristath/sentinel/internal/store"
	"github.com/aristath/sentinel/internal/telemetry"
	"github.com/aristath/sentinel/internal/trust"
)

func testFeedbackConfig() config.FeedbackConfig {
	return config.FeedbackConfig{
		CycleIntervalSeconds:    3600,
		ReplacementThreshold:    0.3,
		MinEQSThreshold:         0.5,
		DecayRatioThreshold:     0.8,
		MaxAllocationAdjustment: 1.0, // unbounded for most tests
		ProbationAllocation:     0.05,
		WeightEQS:               0.4,
		WeightShortPerformance:  0.2,
		WeightMediumPerformance: 0.2,
		WeightLongPerformance:   0.1,
		WeightDecayScore:        0.1,
	}
}

func testEQSConfig() config.EQSConfig {
	return config.EQSConfig{
		MaxRecentExecutions: 100,
		WindowSeconds:       3600,
		MinimumExecutions:   1,
		DecayThreshold:      0.8,
		RecentWindowHours:   24,
		TrailingWindowHours: 168,
		WeightSlippage:      0.25,
		WeightLatency:       0.25,
		WeightFillRate:      0.25,
		WeightCancelRate:    0.25,
	}
}

func newHarness(t *testing.T) (*Engine, *execlog.Log, *trust.Engine, clock.Clock) {
	t.Helper()
	clk := clock.NewFake(time.Now())
	st := store.NewMemoryStore(clk)
	exec := execlog.New(testEQSConfig(), st, clk, zerolog.Nop())
	trustCfg := config.TrustConfig{MinimumTrades: 1, FeatureDecayFactor: 0.95, WarningThreshold: 0.5, CriticalThreshold: 0.3}
	hub := telemetry.NewHub(st, zerolog.Nop())
	trustEngine := trust.New(trustCfg, st, hub, clk, zerolog.Nop())
	engine := New(testFeedbackConfig(), exec, trustEngine, st, clk, zerolog.Nop())
	return engine, exec, trustEngine, clk
}

func logGoodExecution(t *testing.T, exec *execlog.Log, strategyID string, now time.Time) {
	t.Helper()
	err := exec.LogExecution(context.Background(), execlog.Record{
		StrategyID:  strategyID,
		VenueID:     "binance",
		EntryTime:   now,
		SlippageBps: 1,
		LatencyMs:   50,
		Outcome:     execlog.OutcomeFilled,
	})
	require.NoError(t, err)
}

func logBadExecution(t *testing.T, exec *execlog.Log, strategyID string, now time.Time) {
	t.Helper()
	err := exec.LogExecution(context.Background(), execlog.Record{
		StrategyID:  strategyID,
		VenueID:     "binance",
		EntryTime:   now,
		SlippageBps: 500,
		LatencyMs:   5000,
		Outcome:     execlog.OutcomeCancelled,
	})
	require.NoError(t, err)
}

func TestRunCycleDeactivatesOnPoorEQS(t *testing.T) {
	engine, exec, _, clk := newHarness(t)
	logBadExecution(t, exec, "alpha", clk.Now())

	result := engine.RunCycle(context.Background(), map[string]float64{"alpha": 1.0})
	assert.Equal(t, 0.0, result["alpha"])

	state, ok := engine.State("alpha")
	require.True(t, ok)
	assert.Equal(t, StatusDeactivated, state.Status)
}

func TestRunCycleKeepsActiveOnGoodEQS(t *testing.T) {
	engine, exec, _, clk := newHarness(t)
	logGoodExecution(t, exec, "alpha", clk.Now())

	result := engine.RunCycle(context.Background(), map[string]float64{"alpha": 1.0})
	assert.Greater(t, result["alpha"], 0.0)

	state, ok := engine.State("alpha")
	require.True(t, ok)
	assert.Equal(t, StatusActive, state.Status)
}

func TestRunCycleSkipsZeroAllocationStrategies(t *testing.T) {
	engine, _, _, _ := newHarness(t)
	result := engine.RunCycle(context.Background(), map[string]float64{"alpha": 0})
	assert.Empty(t, result)
}

func TestRunCycleNormalizesAllocationsToOne(t *testing.T) {
	engine, exec, _, clk := newHarness(t)
	logGoodExecution(t, exec, "alpha", clk.Now())
	logGoodExecution(t, exec, "beta", clk.Now())

	result := engine.RunCycle(context.Background(), map[string]float64{"alpha": 0.6, "beta": 0.4})

	var sum float64
	for _, v := range result {
		sum += v
	}
	assert.InDelta(t, 1.0, sum, 0.0001)
}

func TestBoundAdjustmentCapsChange(t *testing.T) {
	bounded := boundAdjustment(1.0, 2.0, 0.10)
	assert.InDelta(t, 1.10, bounded, 0.0001)

	bounded = boundAdjustment(1.0, 0.0, 0.10)
	assert.InDelta(t, 0.90, bounded, 0.0001)
}

func TestSetCooldownTransitionsToProbationWhenHealthy(t *testing.T) {
	engine, exec, _, clk := newHarness(t)
	engine.SetCooldown("alpha")
	logGoodExecution(t, exec, "alpha", clk.Now())

	engine.RunCycle(context.Background(), map[string]float64{"alpha": 1.0})

	state, ok := engine.State("alpha")
	require.True(t, ok)
	assert.Equal(t, StatusProbation, state.Status)
}
