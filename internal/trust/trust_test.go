package trust

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/sentinel/internal/clock"
	"github.com/aristath/sentinel/internal/config"
	"github.com/aristath/sentinel/internal/store"
	"github.com/aristath/sentinel/internal/telemetry"
)

func testTrustConfig() config.TrustConfig {
	return config.TrustConfig{
		DecayEnabled:             true,
		DefaultDecayFactorPerDay: 0.98,
		DecayIntervalSeconds:     3600,
		InactivityThresholdHours: 24,
		WarningThreshold:         0.5,
		CriticalThreshold:        0.3,
		WeightWinRate:            0.25,
		WeightSharpe:             0.15,
		WeightSortino:            0.15,
		WeightDrawdown:           0.15,
		WeightLatency:            0.10,
		WeightFailure:            0.15,
		WeightEntropy:            0.05,
		FeatureDecayFactor:       0.95,
		MinimumTrades:            10,
	}
}

func newTestEngine(clk clock.Clock) (*Engine, *store.MemoryStore) {
	st := store.NewMemoryStore(clk)
	hub := telemetry.NewHub(st, zerolog.Nop())
	return New(testTrustConfig(), st, hub, clk, zerolog.Nop()), st
}

func goodPerformance() PerformanceInput {
	return PerformanceInput{
		TotalTrades:    50,
		WinRatePct:     70,
		SharpeRatio:    1.5,
		SortinoRatio:   2.0,
		MaxDrawdownPct: 5,
		CurDrawdownPct: 2,
		AvgLatencyMs:   100,
		MaxLatencyMs:   500,
		FailRate:       0.02,
	}
}

func TestExtractFeaturesInsufficientData(t *testing.T) {
	engine, _ := newTestEngine(clock.New())
	_, err := engine.ExtractFeatures(PerformanceInput{TotalTrades: 2})
	require.Error(t, err)
}

func TestComputeScoreFirstTimeHasNoBlend(t *testing.T) {
	ctx := context.Background()
	engine, _ := newTestEngine(clock.New())

	score, err := engine.ComputeScore(ctx, "alpha", goodPerformance())
	require.NoError(t, err)
	assert.GreaterOrEqual(t, score.Score, 0.0)
	assert.LessOrEqual(t, score.Score, 1.0)
	assert.EqualValues(t, 1, score.UpdateCount)
}

func TestComputeScoreBlendsWithPrevious(t *testing.T) {
	ctx := context.Background()
	engine, _ := newTestEngine(clock.New())

	first, err := engine.ComputeScore(ctx, "alpha", goodPerformance())
	require.NoError(t, err)

	poor := goodPerformance()
	poor.WinRatePct = 10
	poor.SharpeRatio = -2
	poor.FailRate = 0.5

	second, err := engine.ComputeScore(ctx, "alpha", poor)
	require.NoError(t, err)

	// Blended score should move toward the new weighted value but not
	// jump all the way there, since decay_factor=0.95 weights the
	// previous score heavily.
	assert.NotEqual(t, first.Score, second.Score)
	assert.Less(t, second.Score, first.Score)
	assert.Greater(t, second.Score, first.Score*0.5)
}

func TestComputeScorePublishesWarningOnThresholdCross(t *testing.T) {
	ctx := context.Background()
	engine, st := newTestEngine(clock.New())

	// Seed a score above the warning threshold directly.
	engine.SetScore(Score{StrategyID: "alpha", Score: 0.6, UpdateCount: 1})

	poor := goodPerformance()
	poor.WinRatePct = 0
	poor.SharpeRatio = -3
	poor.SortinoRatio = -3
	poor.FailRate = 0.9
	for i := 0; i < 30; i++ {
		_, err := engine.ComputeScore(ctx, "alpha", poor)
		require.NoError(t, err)
	}

	published := st.PublishedMessages()
	assert.NotEmpty(t, published, "expected a threshold-crossing event to be published")
}

func TestActivityTrackerStatusTransitions(t *testing.T) {
	clk := clock.NewFake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	cfg := testTrustConfig()
	tracker := NewActivityTracker(cfg, clk)

	assert.Equal(t, StatusInactive, tracker.Status("alpha"), "never-seen strategy is inactive")

	tracker.RecordActivity("alpha")
	assert.Equal(t, StatusActive, tracker.Status("alpha"))

	tracker.AgeOutInactive()
	assert.Equal(t, StatusActive, tracker.Status("alpha"), "should stay active before threshold elapses")

	clk.Advance(25 * time.Hour)
	tracker.AgeOutInactive()
	assert.Equal(t, StatusInactive, tracker.Status("alpha"))
}

func TestActivityTrackerRecentlyInactive(t *testing.T) {
	clk := clock.NewFake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	cfg := testTrustConfig()
	tracker := NewActivityTracker(cfg, clk)

	tracker.RecordActivity("alpha")
	tracker.AgeOutInactive() // still within threshold, stays in currentlyTrading... but test aging

	clk.Advance(2 * time.Hour)
	tracker.AgeOutInactive()
	assert.Equal(t, StatusRecentlyInactive, tracker.Status("alpha"))
}

func TestDecayCycleReducesInactiveScoreAndSkipsExcluded(t *testing.T) {
	ctx := context.Background()
	clk := clock.NewFake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	cfg := testTrustConfig()
	cfg.ExcludedStrategies = []string{"beta"}
	st := store.NewMemoryStore(clk)
	hub := telemetry.NewHub(st, zerolog.Nop())
	engine := New(cfg, st, hub, clk, zerolog.Nop())

	engine.SetScore(Score{StrategyID: "alpha", Score: 0.9, UpdateCount: 1})
	engine.SetScore(Score{StrategyID: "beta", Score: 0.9, UpdateCount: 1})

	tracker := NewActivityTracker(cfg, clk)
	tracker.RecordActivity("alpha")
	tracker.RecordActivity("beta")

	// Age both strategies past the inactivity threshold.
	clk.Advance(25 * time.Hour)
	tracker.AgeOutInactive()

	scheduler := NewDecayScheduler(cfg, engine, tracker, nil, clk, zerolog.Nop())
	scheduler.RunCycle(ctx)

	alphaScore, _ := engine.GetScore("alpha")
	betaScore, _ := engine.GetScore("beta")

	assert.Less(t, alphaScore.Score, 0.9, "inactive, non-excluded strategy should decay")
	assert.Equal(t, 0.9, betaScore.Score, "excluded strategy should not decay")
}

func TestDecayCycleSkipsWhenDisabled(t *testing.T) {
	ctx := context.Background()
	clk := clock.NewFake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	cfg := testTrustConfig()
	cfg.DecayEnabled = false
	st := store.NewMemoryStore(clk)
	hub := telemetry.NewHub(st, zerolog.Nop())
	engine := New(cfg, st, hub, clk, zerolog.Nop())
	engine.SetScore(Score{StrategyID: "alpha", Score: 0.9, UpdateCount: 1})

	tracker := NewActivityTracker(cfg, clk)
	tracker.RecordActivity("alpha")
	clk.Advance(25 * time.Hour)

	scheduler := NewDecayScheduler(cfg, engine, tracker, nil, clk, zerolog.Nop())
	scheduler.RunCycle(ctx)

	score, _ := engine.GetScore("alpha")
	assert.Equal(t, 0.9, score.Score)
}
