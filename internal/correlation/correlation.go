// Package correlation tracks per-strategy return series, computes
// pairwise Pearson correlation and the full correlation matrix, and
// scales risk weights down as correlation rises, per spec.md §4.4. Pearson
// correlation is computed with gonum/stat, the same library the teacher's
// pkg/formulas package uses for return statistics.
package correlation

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/stat"

	"github.com/aristath/sentinel/internal/apperr"
	"github.com/aristath/sentinel/internal/clock"
	"github.com/aristath/sentinel/internal/config"
	"github.com/aristath/sentinel/internal/store"
)

// Period names a return-series granularity, mirroring the original
// TimePeriod enum.
type Period string

const (
	PeriodMinutes15 Period = "minutes15"
	PeriodHourly    Period = "hourly"
	PeriodHours4    Period = "hours4"
	PeriodDaily     Period = "daily"
	PeriodWeekly    Period = "weekly"
)

// Seconds returns the period's duration in seconds, matching the
// original TimePeriod::to_seconds.
func (p Period) Seconds() int64 {
	switch p {
	case PeriodMinutes15:
		return 15 * 60
	case PeriodHourly:
		return 60 * 60
	case PeriodHours4:
		return 4 * 60 * 60
	case PeriodWeekly:
		return 7 * 24 * 60 * 60
	default:
		return 24 * 60 * 60 // Daily
	}
}

// ReturnSnapshot is one (strategy, timestamp) return observation.
type ReturnSnapshot struct {
	StrategyID string
	Timestamp  time.Time
	ReturnPct  float64
}

// Matrix is a cached correlation matrix for a period.
type Matrix struct {
	Period          Period
	ComputedAt      time.Time
	StrategyIDs     []string
	Values          [][]float64 // Values[i][j], square, symmetric, diagonal 1.0
	MinDataPoints   int
}

// Allocation is the risk-weighted allocation result.
type Allocation struct {
	ComputedAt      time.Time
	BaseWeights     map[string]float64
	AdjustedWeights map[string]float64
	AvgCorrelation  map[string]float64
}

type matrixCacheEntry struct {
	matrix    Matrix
	expiresAt time.Time
}

// Engine is the correlation engine and risk allocator.
type Engine struct {
	cfg config.CorrelationConfig
	st  store.Store
	clk clock.Clock
	log zerolog.Logger

	mu    sync.RWMutex
	cache map[Period]matrixCacheEntry
}

// New returns a correlation engine backed by st.
func New(cfg config.CorrelationConfig, st store.Store, clk clock.Clock, logger zerolog.Logger) *Engine {
	return &Engine{
		cfg:   cfg,
		st:    st,
		clk:   clk,
		log:   logger.With().Str("component", "correlation.engine").Logger(),
		cache: make(map[Period]matrixCacheEntry),
	}
}

// RecordReturn appends a return snapshot to the strategy's sorted set
// and trims it to the configured capacity.
func (e *Engine) RecordReturn(ctx context.Context, snap ReturnSnapshot) error {
	key := store.CorrelationReturnsKey(snap.StrategyID)
	score := float64(snap.Timestamp.Unix())

	if err := e.st.SortedSetAdd(ctx, key, strconvFormat(snap.ReturnPct), score); err != nil {
		return apperr.Wrap(apperr.KindStoreError, "record return snapshot", err)
	}
	if err := e.st.SortedSetTrimToRank(ctx, key, e.cfg.MaxSnapshotsPerStrat); err != nil {
		e.log.Warn().Err(err).Str("strategy", snap.StrategyID).Msg("trim return snapshots")
	}
	return nil
}

// returnSeries loads a strategy's return observations within [start, end].
func (e *Engine) returnSeries(ctx context.Context, strategyID string, start, end time.Time) ([]ReturnSnapshot, error) {
	key := store.CorrelationReturnsKey(strategyID)
	members, err := e.st.SortedSetRangeByScore(ctx, key, float64(start.Unix()), float64(end.Unix()))
	if err != nil {
		return nil, apperr.Wrap(apperr.KindStoreError, "load return series", err)
	}
	out := make([]ReturnSnapshot, 0, len(members))
	for _, m := range members {
		ret, err := parseFloat(m.Member)
		if err != nil {
			continue
		}
		out = append(out, ReturnSnapshot{
			StrategyID: strategyID,
			Timestamp:  time.Unix(int64(m.Score), 0).UTC(),
			ReturnPct:  ret,
		})
	}
	return out, nil
}

// PairwiseCorrelation computes the Pearson correlation between two
// strategies' return series within the given period window ending now.
func (e *Engine) PairwiseCorrelation(ctx context.Context, s1, s2 string, period Period) (float64, error) {
	if s1 == s2 {
		return 1.0, nil
	}

	end := e.clk.Now()
	start := end.Add(-time.Duration(period.Seconds()) * time.Second)

	series1, err := e.returnSeries(ctx, s1, start, end)
	if err != nil {
		return 0, err
	}
	series2, err := e.returnSeries(ctx, s2, start, end)
	if err != nil {
		return 0, err
	}

	x, y := intersectByTimestamp(series1, series2)
	if len(x) < e.cfg.MinimumDataPoints {
		return 0, apperr.Wrap(apperr.KindInsufficientData,
			"not enough overlapping return data between strategies", nil)
	}

	sdX := stat.StdDev(x, nil)
	sdY := stat.StdDev(y, nil)
	if sdX <= 0 || sdY <= 0 {
		return 0, nil
	}

	corr := stat.Correlation(x, y, nil)
	return clampCorr(corr), nil
}

// intersectByTimestamp aligns two return series on matching timestamps
// (to the second) and returns parallel slices of their return values.
func intersectByTimestamp(a, b []ReturnSnapshot) ([]float64, []float64) {
	byTime := make(map[int64]float64, len(b))
	for _, s := range b {
		byTime[s.Timestamp.Unix()] = s.ReturnPct
	}

	var x, y []float64
	for _, s := range a {
		if v, ok := byTime[s.Timestamp.Unix()]; ok {
			x = append(x, s.ReturnPct)
			y = append(y, v)
		}
	}
	return x, y
}

// CorrelationMatrix builds (or returns the cached) full correlation
// matrix for period across strategyIDs, sorted. The cache is keyed by
// period alone: until it expires, a cached matrix is returned whatever
// strategyIDs are passed.
func (e *Engine) CorrelationMatrix(ctx context.Context, period Period, strategyIDs []string) (Matrix, error) {
	e.mu.RLock()
	if entry, ok := e.cache[period]; ok && e.clk.Now().Before(entry.expiresAt) {
		e.mu.RUnlock()
		return entry.matrix, nil
	}
	e.mu.RUnlock()

	ids := append([]string(nil), strategyIDs...)
	sort.Strings(ids)

	n := len(ids)
	values := make([][]float64, n)
	for i := range values {
		values[i] = make([]float64, n)
		values[i][i] = 1.0
	}

	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			corr, err := e.PairwiseCorrelation(ctx, ids[i], ids[j], period)
			if err != nil {
				corr = 0.0 // InsufficientData treated as 0.0 per spec
			}
			values[i][j] = corr
			values[j][i] = corr
		}
	}

	matrix := Matrix{
		Period:        period,
		ComputedAt:    e.clk.Now(),
		StrategyIDs:   ids,
		Values:        values,
		MinDataPoints: e.cfg.MinimumDataPoints,
	}

	e.mu.Lock()
	e.cache[period] = matrixCacheEntry{matrix: matrix, expiresAt: e.clk.Now().Add(e.cfg.CacheTTL)}
	e.mu.Unlock()

	if err := e.st.Set(ctx, store.CorrelationMatrixKey(string(period)), matrix, e.cfg.CacheTTL); err != nil {
		e.log.Warn().Err(err).Str("period", string(period)).Msg("persist correlation matrix")
	}

	return matrix, nil
}

// RiskWeights scales base weights down as average absolute correlation
// rises, then renormalizes to sum to 1.0.
func (e *Engine) RiskWeights(ctx context.Context, period Period, base map[string]float64) (Allocation, error) {
	ids := make([]string, 0, len(base))
	for id := range base {
		ids = append(ids, id)
	}

	matrix, err := e.CorrelationMatrix(ctx, period, ids)
	if err != nil {
		return Allocation{}, err
	}

	index := make(map[string]int, len(matrix.StrategyIDs))
	for i, id := range matrix.StrategyIDs {
		index[id] = i
	}

	avgCorr := make(map[string]float64, len(ids))
	adjusted := make(map[string]float64, len(ids))
	var total float64

	for _, id := range ids {
		i, ok := index[id]
		if !ok || len(matrix.StrategyIDs) <= 1 {
			avgCorr[id] = 0
		} else {
			var sum float64
			count := 0
			for j := range matrix.StrategyIDs {
				if j == i {
					continue
				}
				sum += math.Abs(matrix.Values[i][j])
				count++
			}
			if count > 0 {
				avgCorr[id] = sum / float64(count)
			}
		}

		scale := math.Max(0.2, 1-math.Abs(avgCorr[id]))
		adjusted[id] = base[id] * scale
		total += adjusted[id]
	}

	if total > 0 {
		for id := range adjusted {
			adjusted[id] /= total
		}
	}

	result := Allocation{
		ComputedAt:      e.clk.Now(),
		BaseWeights:     base,
		AdjustedWeights: adjusted,
		AvgCorrelation:  avgCorr,
	}

	if err := e.st.Set(ctx, store.CorrelationWeightsKey, result, 0); err != nil {
		e.log.Warn().Err(err).Msg("persist risk weights")
	}

	return result, nil
}

func clampCorr(v float64) float64 {
	if v < -1 {
		return -1
	}
	if v > 1 {
		return 1
	}
	return v
}
