package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	clearSentinelEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8090, cfg.Port)
	assert.Equal(t, 0.98, cfg.Trust.DefaultDecayFactorPerDay)
	assert.Equal(t, 0.5, cfg.Trust.WarningThreshold)
	assert.Equal(t, 0.3, cfg.Trust.CriticalThreshold)
	assert.Equal(t, 10, cfg.Trust.MinimumTrades)
	assert.Equal(t, 5, cfg.EQS.MinimumExecutions)
	assert.Equal(t, 0.10, cfg.Drawdown.MaxDrawdownPct)
	assert.Equal(t, 0.67, cfg.Federation.DefaultQuorum)
	assert.Nil(t, cfg.Risk.ExemptStrategies)
}

func TestLoadOverridesFromEnv(t *testing.T) {
	clearSentinelEnv(t)

	t.Setenv("SENTINEL_PORT", "9100")
	t.Setenv("TRUST_WARNING_THRESHOLD", "0.6")
	t.Setenv("TRUST_CRITICAL_THRESHOLD", "0.4")
	t.Setenv("RISK_EXEMPT_STRATEGIES", " alpha , beta ,,gamma")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9100, cfg.Port)
	assert.Equal(t, 0.6, cfg.Trust.WarningThreshold)
	assert.Equal(t, 0.4, cfg.Trust.CriticalThreshold)
	assert.Equal(t, []string{"alpha", "beta", "gamma"}, cfg.Risk.ExemptStrategies)
}

func TestValidateRejectsInvertedThresholds(t *testing.T) {
	clearSentinelEnv(t)
	t.Setenv("TRUST_WARNING_THRESHOLD", "0.2")
	t.Setenv("TRUST_CRITICAL_THRESHOLD", "0.3")

	_, err := Load()
	require.Error(t, err)
}

func TestValidateRejectsBadQuorum(t *testing.T) {
	clearSentinelEnv(t)
	t.Setenv("FEDERATION_DEFAULT_QUORUM", "1.5")

	_, err := Load()
	require.Error(t, err)
}

// clearSentinelEnv unsets every env var this package reads so table tests
// don't leak state from a developer's shell or a prior t.Setenv.
func clearSentinelEnv(t *testing.T) {
	t.Helper()
	vars := []string{
		"SENTINEL_PORT", "SENTINEL_LOG_LEVEL", "SENTINEL_DEV_MODE", "SENTINEL_DRAWDOWN_LOG_PATH",
		"TRUST_DECAY_ENABLED", "TRUST_DECAY_FACTOR_PER_DAY", "TRUST_DECAY_INTERVAL_SECONDS",
		"TRUST_INACTIVITY_THRESHOLD_HOURS", "TRUST_PAUSE_DURING_TRADING", "TRUST_WARNING_THRESHOLD",
		"TRUST_CRITICAL_THRESHOLD", "TRUST_EXCLUDED_STRATEGIES", "TRUST_WEIGHT_WIN_RATE",
		"TRUST_WEIGHT_SHARPE", "TRUST_WEIGHT_SORTINO", "TRUST_WEIGHT_DRAWDOWN", "TRUST_WEIGHT_LATENCY",
		"TRUST_WEIGHT_FAILURE", "TRUST_WEIGHT_ENTROPY", "TRUST_FEATURE_DECAY_FACTOR", "TRUST_MINIMUM_TRADES",
		"TRUST_EMA_COEFFICIENT", "EQS_MAX_RECENT_EXECUTIONS", "EQS_WINDOW_SECONDS", "EQS_MINIMUM_EXECUTIONS",
		"EQS_DECAY_THRESHOLD", "EQS_RECENT_WINDOW_HOURS", "EQS_TRAILING_WINDOW_HOURS",
		"DRAWDOWN_MAX_PCT", "DRAWDOWN_ALERT_THRESHOLD_PCT", "DRAWDOWN_ROLLING_WINDOW_SIZE",
		"DRAWDOWN_MIN_TRADES", "DRAWDOWN_COOLDOWN_PERIOD_MS", "RISK_MAX_POSITION_SIZE_PCT",
		"RISK_MAX_LEVERAGE", "RISK_MIN_TRUST_SCORE", "RISK_MAX_VENUE_EXPOSURE_PCT",
		"RISK_MAX_SYMBOL_EXPOSURE_PCT", "RISK_EXEMPT_STRATEGIES", "CORRELATION_MINIMUM_DATA_POINTS",
		"CORRELATION_MAX_SNAPSHOTS_PER_STRATEGY", "CORRELATION_DEFAULT_PERIOD",
		"CORRELATION_CACHE_TTL_SECONDS", "FEDERATION_DEFAULT_QUORUM", "FEDERATION_LOCK_TIMEOUT_SECONDS",
		"FEDERATION_EXECUTION_CHECK_INTERVAL_SECONDS", "FEDERATION_FINALIZATION_CHECK_INTERVAL_SECONDS",
		"FEDERATION_LOCK_CLEANUP_INTERVAL_SECONDS", "FEEDBACK_CYCLE_INTERVAL_SECONDS",
		"FEEDBACK_REPLACEMENT_THRESHOLD", "FEEDBACK_MIN_EQS_THRESHOLD", "FEEDBACK_DECAY_RATIO_THRESHOLD",
		"FEEDBACK_MAX_ALLOCATION_ADJUSTMENT_PCT", "FEEDBACK_PROBATION_ALLOCATION", "FEEDBACK_WEIGHT_EQS",
		"FEEDBACK_WEIGHT_SHORT_PERFORMANCE", "FEEDBACK_WEIGHT_MEDIUM_PERFORMANCE",
		"FEEDBACK_WEIGHT_LONG_PERFORMANCE", "FEEDBACK_WEIGHT_DECAY_SCORE",
	}
	for _, v := range vars {
		os.Unsetenv(v)
	}
}
