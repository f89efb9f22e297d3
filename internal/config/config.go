// Package config provides configuration management for the control plane.
//
// Configuration Loading Order:
// 1. Load from .env file (if present)
// 2. Load from environment variables
//
// There is no settings-database override tier: every knob here governs an
// in-memory subsystem, not credentials, so env vars are the single source
// of truth.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/aristath/sentinel/internal/utils"
)

// Config holds every configuration knob for the control plane, grouped by
// the subsystem that consumes it.
type Config struct {
	Port     int    // HTTP port for the health/ops surface (default 8090)
	LogLevel string // zerolog level name (debug, info, warn, error)
	DevMode  bool   // enables pretty console logging instead of JSON

	DrawdownLogPath string // JSON-lines path for the drawdown event log

	Trust       TrustConfig
	EQS         EQSConfig
	Drawdown    DrawdownConfig
	Risk        RiskConfig
	Correlation CorrelationConfig
	Federation  FederationConfig
	Feedback    FeedbackConfig
}

// TrustConfig governs trust scoring and decay.
type TrustConfig struct {
	DecayEnabled             bool
	DefaultDecayFactorPerDay float64
	DecayIntervalSeconds     int
	InactivityThresholdHours int
	PauseDuringTrading       bool
	WarningThreshold         float64
	CriticalThreshold        float64
	ExcludedStrategies       []string

	WeightWinRate      float64
	WeightSharpe       float64
	WeightSortino      float64
	WeightDrawdown     float64
	WeightLatency      float64
	WeightFailure      float64
	WeightEntropy      float64
	FeatureDecayFactor float64
	MinimumTrades      int
	EMACoefficient     float64 // venue-telemetry-style smoothing, see SPEC_FULL.md Open Questions
}

// EQSConfig governs the execution log and execution-quality-score calculator.
type EQSConfig struct {
	MaxRecentExecutions int
	WindowSeconds       int
	MinimumExecutions   int
	DecayThreshold      float64
	RecentWindowHours   int
	TrailingWindowHours int

	WeightSlippage   float64
	WeightLatency    float64
	WeightFillRate   float64
	WeightCancelRate float64
}

// DrawdownConfig governs the drawdown monitor and kill switch.
type DrawdownConfig struct {
	MaxDrawdownPct       float64
	AlertThresholdPct    float64
	RollingWindowSize    int
	MinTradesForDrawdown int
	CooldownPeriod       time.Duration
}

// RiskConfig governs the pre-trade risk calculator.
type RiskConfig struct {
	MaxPositionSizePct float64
	MaxLeverage        float64
	MinTrustScore      float64
	MaxVenueExposure   float64
	MaxSymbolExposure  float64
	ExemptStrategies   []string
}

// CorrelationConfig governs the correlation engine and risk allocator.
type CorrelationConfig struct {
	MinimumDataPoints    int
	MaxSnapshotsPerStrat int
	DefaultPeriod        string
	CacheTTL             time.Duration
}

// FeedbackConfig governs the strategy feedback loop.
type FeedbackConfig struct {
	CycleIntervalSeconds     int
	ReplacementThreshold     float64
	MinEQSThreshold          float64
	DecayRatioThreshold      float64
	MaxAllocationAdjustment  float64
	ProbationAllocation      float64
	WeightEQS                float64
	WeightShortPerformance   float64
	WeightMediumPerformance  float64
	WeightLongPerformance    float64
	WeightDecayScore         float64
}

// FederationConfig governs federated governance and the finality lock.
type FederationConfig struct {
	DefaultQuorum             float64
	LockTimeout               time.Duration
	ExecutionCheckInterval    time.Duration
	FinalizationCheckInterval time.Duration
	LockCleanupInterval       time.Duration
}

// Load reads configuration from environment variables.
//
// It loads .env first (ignoring a missing file, which godotenv.Load
// reports as an error), then reads every knob with a typed default.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port:            getEnvAsInt("SENTINEL_PORT", 8090),
		LogLevel:        getEnv("SENTINEL_LOG_LEVEL", "info"),
		DevMode:         getEnvAsBool("SENTINEL_DEV_MODE", false),
		DrawdownLogPath: getEnv("SENTINEL_DRAWDOWN_LOG_PATH", "./data/drawdown_events.jsonl"),

		Trust: TrustConfig{
			DecayEnabled:             getEnvAsBool("TRUST_DECAY_ENABLED", true),
			DefaultDecayFactorPerDay: getEnvAsFloat("TRUST_DECAY_FACTOR_PER_DAY", 0.98),
			DecayIntervalSeconds:     getEnvAsInt("TRUST_DECAY_INTERVAL_SECONDS", 3600),
			InactivityThresholdHours: getEnvAsInt("TRUST_INACTIVITY_THRESHOLD_HOURS", 24),
			PauseDuringTrading:       getEnvAsBool("TRUST_PAUSE_DURING_TRADING", false),
			WarningThreshold:         getEnvAsFloat("TRUST_WARNING_THRESHOLD", 0.5),
			CriticalThreshold:        getEnvAsFloat("TRUST_CRITICAL_THRESHOLD", 0.3),
			ExcludedStrategies:       getEnvAsList("TRUST_EXCLUDED_STRATEGIES", nil),

			WeightWinRate:      getEnvAsFloat("TRUST_WEIGHT_WIN_RATE", 0.25),
			WeightSharpe:       getEnvAsFloat("TRUST_WEIGHT_SHARPE", 0.15),
			WeightSortino:      getEnvAsFloat("TRUST_WEIGHT_SORTINO", 0.15),
			WeightDrawdown:     getEnvAsFloat("TRUST_WEIGHT_DRAWDOWN", 0.15),
			WeightLatency:      getEnvAsFloat("TRUST_WEIGHT_LATENCY", 0.10),
			WeightFailure:      getEnvAsFloat("TRUST_WEIGHT_FAILURE", 0.15),
			WeightEntropy:      getEnvAsFloat("TRUST_WEIGHT_ENTROPY", 0.05),
			FeatureDecayFactor: getEnvAsFloat("TRUST_FEATURE_DECAY_FACTOR", 0.95),
			MinimumTrades:      getEnvAsInt("TRUST_MINIMUM_TRADES", 10),
			EMACoefficient:     getEnvAsFloat("TRUST_EMA_COEFFICIENT", 0.1),
		},

		EQS: EQSConfig{
			MaxRecentExecutions: getEnvAsInt("EQS_MAX_RECENT_EXECUTIONS", 500),
			WindowSeconds:       getEnvAsInt("EQS_WINDOW_SECONDS", 3600),
			MinimumExecutions:   getEnvAsInt("EQS_MINIMUM_EXECUTIONS", 5),
			DecayThreshold:      getEnvAsFloat("EQS_DECAY_THRESHOLD", 0.6),
			RecentWindowHours:   getEnvAsInt("EQS_RECENT_WINDOW_HOURS", 24),
			TrailingWindowHours: getEnvAsInt("EQS_TRAILING_WINDOW_HOURS", 168),

			WeightSlippage:   getEnvAsFloat("EQS_WEIGHT_SLIPPAGE", 0.25),
			WeightLatency:    getEnvAsFloat("EQS_WEIGHT_LATENCY", 0.25),
			WeightFillRate:   getEnvAsFloat("EQS_WEIGHT_FILL_RATE", 0.25),
			WeightCancelRate: getEnvAsFloat("EQS_WEIGHT_CANCEL_RATE", 0.25),
		},

		Drawdown: DrawdownConfig{
			MaxDrawdownPct:       getEnvAsFloat("DRAWDOWN_MAX_PCT", 0.10),
			AlertThresholdPct:    getEnvAsFloat("DRAWDOWN_ALERT_THRESHOLD_PCT", 0.05),
			RollingWindowSize:    getEnvAsInt("DRAWDOWN_ROLLING_WINDOW_SIZE", 100),
			MinTradesForDrawdown: getEnvAsInt("DRAWDOWN_MIN_TRADES", 5),
			CooldownPeriod:       time.Duration(getEnvAsInt("DRAWDOWN_COOLDOWN_PERIOD_MS", 3_600_000)) * time.Millisecond,
		},

		Risk: RiskConfig{
			MaxPositionSizePct: getEnvAsFloat("RISK_MAX_POSITION_SIZE_PCT", 0.10),
			MaxLeverage:        getEnvAsFloat("RISK_MAX_LEVERAGE", 3.0),
			MinTrustScore:      getEnvAsFloat("RISK_MIN_TRUST_SCORE", 0.7),
			MaxVenueExposure:   getEnvAsFloat("RISK_MAX_VENUE_EXPOSURE_PCT", 0.40),
			MaxSymbolExposure:  getEnvAsFloat("RISK_MAX_SYMBOL_EXPOSURE_PCT", 0.30),
			ExemptStrategies:   getEnvAsList("RISK_EXEMPT_STRATEGIES", nil),
		},

		Correlation: CorrelationConfig{
			MinimumDataPoints:    getEnvAsInt("CORRELATION_MINIMUM_DATA_POINTS", 10),
			MaxSnapshotsPerStrat: getEnvAsInt("CORRELATION_MAX_SNAPSHOTS_PER_STRATEGY", 2000),
			DefaultPeriod:        getEnv("CORRELATION_DEFAULT_PERIOD", "daily"),
			CacheTTL:             time.Duration(getEnvAsInt("CORRELATION_CACHE_TTL_SECONDS", 3600)) * time.Second,
		},

		Federation: FederationConfig{
			DefaultQuorum:             getEnvAsFloat("FEDERATION_DEFAULT_QUORUM", 0.67),
			LockTimeout:               time.Duration(getEnvAsInt("FEDERATION_LOCK_TIMEOUT_SECONDS", 120)) * time.Second,
			ExecutionCheckInterval:    time.Duration(getEnvAsInt("FEDERATION_EXECUTION_CHECK_INTERVAL_SECONDS", 10)) * time.Second,
			FinalizationCheckInterval: time.Duration(getEnvAsInt("FEDERATION_FINALIZATION_CHECK_INTERVAL_SECONDS", 15)) * time.Second,
			LockCleanupInterval:       time.Duration(getEnvAsInt("FEDERATION_LOCK_CLEANUP_INTERVAL_SECONDS", 30)) * time.Second,
		},

		Feedback: FeedbackConfig{
			CycleIntervalSeconds:    getEnvAsInt("FEEDBACK_CYCLE_INTERVAL_SECONDS", 3600),
			ReplacementThreshold:    getEnvAsFloat("FEEDBACK_REPLACEMENT_THRESHOLD", 0.3),
			MinEQSThreshold:         getEnvAsFloat("FEEDBACK_MIN_EQS_THRESHOLD", 0.5),
			DecayRatioThreshold:     getEnvAsFloat("FEEDBACK_DECAY_RATIO_THRESHOLD", 0.8),
			MaxAllocationAdjustment: getEnvAsFloat("FEEDBACK_MAX_ALLOCATION_ADJUSTMENT_PCT", 0.10),
			ProbationAllocation:     getEnvAsFloat("FEEDBACK_PROBATION_ALLOCATION", 0.05),
			WeightEQS:               getEnvAsFloat("FEEDBACK_WEIGHT_EQS", 0.4),
			WeightShortPerformance:  getEnvAsFloat("FEEDBACK_WEIGHT_SHORT_PERFORMANCE", 0.2),
			WeightMediumPerformance: getEnvAsFloat("FEEDBACK_WEIGHT_MEDIUM_PERFORMANCE", 0.2),
			WeightLongPerformance:   getEnvAsFloat("FEEDBACK_WEIGHT_LONG_PERFORMANCE", 0.1),
			WeightDecayScore:        getEnvAsFloat("FEEDBACK_WEIGHT_DECAY_SCORE", 0.1),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks for configuration values that would make the control
// plane behave nonsensically.
func (c *Config) Validate() error {
	if c.Port <= 0 {
		return fmt.Errorf("config: port must be positive, got %d", c.Port)
	}
	if c.Trust.WarningThreshold <= c.Trust.CriticalThreshold {
		return fmt.Errorf("config: trust warning threshold (%.2f) must exceed critical threshold (%.2f)",
			c.Trust.WarningThreshold, c.Trust.CriticalThreshold)
	}
	if c.Federation.DefaultQuorum <= 0 || c.Federation.DefaultQuorum > 1 {
		return fmt.Errorf("config: federation quorum must be in (0, 1], got %.2f", c.Federation.DefaultQuorum)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

// getEnvAsList splits a comma-separated environment variable, trimming
// whitespace and dropping empty entries.
func getEnvAsList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if parsed := utils.ParseCSV(value); parsed != nil {
		return parsed
	}
	return defaultValue
}
