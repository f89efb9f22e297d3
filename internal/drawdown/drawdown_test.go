package drawdown

import (
	"context"
	"os"
	"path/filepath"
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

func testConfig() config.DrawdownConfig {
	return config.DrawdownConfig{
		MaxDrawdownPct:       0.10,
		AlertThresholdPct:    0.05,
		RollingWindowSize:    5,
		MinTradesForDrawdown: 2,
		CooldownPeriod:       time.Hour,
	}
}

func newTestMonitor(t *testing.T, clk clock.Clock, onKill KillSwitchFunc) *Monitor {
	t.Helper()
	st := store.NewMemoryStore(clk)
	hub := telemetry.NewHub(st, zerolog.Nop())
	logPath := filepath.Join(t.TempDir(), "drawdown.jsonl")
	return New(testConfig(), st, hub, clk, logPath, onKill, zerolog.Nop())
}

func TestRecordTradeBelowMinTradesStaysActiveWithZeroDrawdown(t *testing.T) {
	clk := clock.NewFake(time.Now())
	m := newTestMonitor(t, clk, nil)

	state := m.RecordTrade(context.Background(), "agent-1", 1000)
	assert.Equal(t, 0.0, state.CurrentDrawdown)
	assert.Equal(t, StatusActive, state.Status)
}

func TestRecordTradeEntersAlertedZone(t *testing.T) {
	clk := clock.NewFake(time.Now())
	m := newTestMonitor(t, clk, nil)
	ctx := context.Background()

	m.RecordTrade(ctx, "agent-1", 1000)
	m.RecordTrade(ctx, "agent-1", 1000)
	state := m.RecordTrade(ctx, "agent-1", 940) // dd = 6% >= alert 5%, < max 10%

	assert.Equal(t, StatusAlerted, state.Status)
}

func TestRecordTradeBreachTriggersKillSwitchAndCooldown(t *testing.T) {
	clk := clock.NewFake(time.Now())
	var killed []string
	m := newTestMonitor(t, clk, func(agent string) {
		killed = append(killed, agent)
	})
	ctx := context.Background()

	m.RecordTrade(ctx, "agent-1", 1000)
	m.RecordTrade(ctx, "agent-1", 1000)
	state := m.RecordTrade(ctx, "agent-1", 880) // dd = 12% >= max 10%

	assert.Equal(t, StatusInactive, state.Status)
	assert.True(t, m.IsKillSwitchActive("agent-1"))
	assert.Eventually(t, func() bool { return len(killed) == 1 }, time.Second, time.Millisecond)
}

func TestRecoveryAfterCooldownElapses(t *testing.T) {
	clk := clock.NewFake(time.Now())
	m := newTestMonitor(t, clk, nil)
	ctx := context.Background()

	m.RecordTrade(ctx, "agent-1", 1000)
	m.RecordTrade(ctx, "agent-1", 1000)
	m.RecordTrade(ctx, "agent-1", 880) // breach

	require.True(t, m.IsKillSwitchActive("agent-1"))

	// Cooldown has not elapsed yet: still in cooldown regardless of dd.
	state := m.RecordTrade(ctx, "agent-1", 1000)
	assert.Equal(t, StatusInactive, state.Status)

	clk.Advance(2 * time.Hour)
	state = m.RecordTrade(ctx, "agent-1", 1000)
	assert.Equal(t, StatusActive, state.Status)
	assert.False(t, m.IsKillSwitchActive("agent-1"))
}

func TestPeakRecomputedOnEvictionOfPeakHolder(t *testing.T) {
	clk := clock.NewFake(time.Now())
	m := newTestMonitor(t, clk, nil)
	ctx := context.Background()

	// Window capacity is 5. Push a high peak, then 5 more points so the
	// peak-holding point gets evicted.
	m.RecordTrade(ctx, "agent-1", 2000)
	for i := 0; i < 5; i++ {
		m.RecordTrade(ctx, "agent-1", 1000)
	}

	state, ok := m.State("agent-1")
	require.True(t, ok)
	assert.Equal(t, 1000.0, state.PeakEquity, "peak should recompute once the 2000 point is evicted")
}

func TestDrawdownEventsAppendedToLogFile(t *testing.T) {
	clk := clock.NewFake(time.Now())
	st := store.NewMemoryStore(clk)
	hub := telemetry.NewHub(st, zerolog.Nop())
	logPath := filepath.Join(t.TempDir(), "drawdown.jsonl")
	m := New(testConfig(), st, hub, clk, logPath, nil, zerolog.Nop())
	ctx := context.Background()

	m.RecordTrade(ctx, "agent-1", 1000)
	m.RecordTrade(ctx, "agent-1", 1000)
	m.RecordTrade(ctx, "agent-1", 940) // alert event

	data, err := os.ReadFile(logPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "drawdown_alert")
}
