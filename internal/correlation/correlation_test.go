package correlation

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
)

func testCorrelationConfig() config.CorrelationConfig {
	return config.CorrelationConfig{
		MinimumDataPoints:    5,
		MaxSnapshotsPerStrat: 2000,
		DefaultPeriod:        "daily",
		CacheTTL:             5 * time.Minute,
	}
}

func seedReturns(t *testing.T, e *Engine, strategyID string, base time.Time, values []float64) {
	t.Helper()
	for i, v := range values {
		err := e.RecordReturn(context.Background(), ReturnSnapshot{
			StrategyID: strategyID,
			Timestamp:  base.Add(time.Duration(i) * time.Hour),
			ReturnPct:  v,
		})
		require.NoError(t, err)
	}
}

func TestPairwiseCorrelationSameStrategyIsOne(t *testing.T) {
	clk := clock.NewFake(time.Now())
	st := store.NewMemoryStore(clk)
	e := New(testCorrelationConfig(), st, clk, zerolog.Nop())

	corr, err := e.PairwiseCorrelation(context.Background(), "alpha", "alpha", PeriodDaily)
	require.NoError(t, err)
	assert.Equal(t, 1.0, corr)
}

func TestPairwiseCorrelationInsufficientData(t *testing.T) {
	clk := clock.NewFake(time.Now())
	st := store.NewMemoryStore(clk)
	e := New(testCorrelationConfig(), st, clk, zerolog.Nop())

	base := clk.Now().Add(-2 * time.Hour)
	seedReturns(t, e, "alpha", base, []float64{0.01, 0.02})
	seedReturns(t, e, "beta", base, []float64{0.01, 0.02})

	_, err := e.PairwiseCorrelation(context.Background(), "alpha", "beta", PeriodDaily)
	require.Error(t, err)
}

func TestPairwiseCorrelationOfDuplicatedSeriesIsHigh(t *testing.T) {
	clk := clock.NewFake(time.Now())
	st := store.NewMemoryStore(clk)
	e := New(testCorrelationConfig(), st, clk, zerolog.Nop())

	base := clk.Now().Add(-10 * time.Hour)
	values := []float64{0.01, -0.02, 0.03, 0.015, -0.01, 0.02}
	seedReturns(t, e, "alpha", base, values)
	seedReturns(t, e, "beta", base, values)

	corr, err := e.PairwiseCorrelation(context.Background(), "alpha", "beta", PeriodDaily)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, corr, 0.001)
}

func TestCorrelationMatrixSymmetricWithUnitDiagonal(t *testing.T) {
	clk := clock.NewFake(time.Now())
	st := store.NewMemoryStore(clk)
	e := New(testCorrelationConfig(), st, clk, zerolog.Nop())

	base := clk.Now().Add(-10 * time.Hour)
	seedReturns(t, e, "alpha", base, []float64{0.01, -0.02, 0.03, 0.015, -0.01, 0.02})
	seedReturns(t, e, "beta", base, []float64{0.02, -0.01, 0.025, 0.01, -0.02, 0.015})

	matrix, err := e.CorrelationMatrix(context.Background(), PeriodDaily, []string{"alpha", "beta"})
	require.NoError(t, err)

	for i := range matrix.StrategyIDs {
		assert.Equal(t, 1.0, matrix.Values[i][i])
	}
	assert.Equal(t, matrix.Values[0][1], matrix.Values[1][0])
	for i := range matrix.Values {
		for j := range matrix.Values[i] {
			assert.GreaterOrEqual(t, matrix.Values[i][j], -1.0)
			assert.LessOrEqual(t, matrix.Values[i][j], 1.0)
		}
	}
}

func TestRiskWeightsNormalizeToOne(t *testing.T) {
	clk := clock.NewFake(time.Now())
	st := store.NewMemoryStore(clk)
	e := New(testCorrelationConfig(), st, clk, zerolog.Nop())

	base := clk.Now().Add(-10 * time.Hour)
	seedReturns(t, e, "alpha", base, []float64{0.01, -0.02, 0.03, 0.015, -0.01, 0.02})
	seedReturns(t, e, "beta", base, []float64{0.02, -0.01, 0.025, 0.01, -0.02, 0.015})
	seedReturns(t, e, "gamma", base, []float64{-0.01, 0.03, -0.02, 0.02, 0.01, -0.015})

	alloc, err := e.RiskWeights(context.Background(), PeriodDaily, map[string]float64{
		"alpha": 0.4, "beta": 0.3, "gamma": 0.3,
	})
	require.NoError(t, err)

	var sum float64
	for _, w := range alloc.AdjustedWeights {
		sum += w
	}
	assert.InDelta(t, 1.0, sum, 0.0001)
}

func TestRiskWeightsAllZeroBaseStaysZero(t *testing.T) {
	clk := clock.NewFake(time.Now())
	st := store.NewMemoryStore(clk)
	e := New(testCorrelationConfig(), st, clk, zerolog.Nop())

	alloc, err := e.RiskWeights(context.Background(), PeriodDaily, map[string]float64{
		"alpha": 0, "beta": 0,
	})
	require.NoError(t, err)
	for _, w := range alloc.AdjustedWeights {
		assert.Equal(t, 0.0, w)
	}
}
