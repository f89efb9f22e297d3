// Package drawdown enforces a per-agent peak-to-trough loss ceiling,
// driving a kill switch that internal/risk consults before accepting new
// positions, per spec.md §4.5. Each agent's window is a fixed-capacity
// circular buffer; the peak is recomputed when the evicted point held it.
package drawdown

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/sentinel/internal/clock"
	"github.com/aristath/sentinel/internal/config"
	"github.com/aristath/sentinel/internal/store"
	"github.com/aristath/sentinel/internal/telemetry"
)

// Status is an agent's drawdown state machine state.
type Status string

const (
	StatusActive   Status = "active"
	StatusAlerted  Status = "alerted"
	StatusInactive Status = "inactive" // cooldown, kill switch engaged
)

// TradePoint is one equity observation fed into the drawdown window.
type TradePoint struct {
	Timestamp time.Time
	Equity    float64
}

// AgentState is the externally visible drawdown state for one agent.
type AgentState struct {
	Agent           string    `json:"agent"`
	Status          Status    `json:"status"`
	PeakEquity      float64   `json:"peak_equity"`
	CurrentEquity   float64   `json:"current_equity"`
	CurrentDrawdown float64   `json:"current_drawdown"`
	TradeCount      int       `json:"trade_count"`
	CooldownEnd     time.Time `json:"cooldown_end,omitempty"`
	WasAlerted      bool      `json:"-"`
}

// logEntry is one JSON-lines record appended to the drawdown event log.
type logEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Event     string    `json:"event"`
	Agent     string    `json:"agent"`
	Drawdown  float64   `json:"drawdown_pct"`
	Peak      float64   `json:"peak_equity"`
	Current   float64   `json:"current_equity"`
}

// KillSwitchFunc is invoked asynchronously when an agent enters cooldown.
// It must not block RecordTrade: the monitor invokes it in its own
// goroutine.
type KillSwitchFunc func(agent string)

type agentWindow struct {
	points   []TradePoint
	capacity int
	head     int
	count    int

	state AgentState
}

func newAgentWindow(agent string, capacity int) *agentWindow {
	return &agentWindow{
		points:   make([]TradePoint, capacity),
		capacity: capacity,
		state:    AgentState{Agent: agent, Status: StatusActive},
	}
}

// push appends a point, evicting the oldest once full, and returns
// whether the evicted point held the window's peak equity.
func (w *agentWindow) push(p TradePoint) (evicted TradePoint, didEvict bool) {
	if w.count < w.capacity {
		idx := (w.head + w.count) % w.capacity
		w.points[idx] = p
		w.count++
		return TradePoint{}, false
	}
	evicted = w.points[w.head]
	w.points[w.head] = p
	w.head = (w.head + 1) % w.capacity
	return evicted, true
}

// all returns the window's points in insertion order.
func (w *agentWindow) all() []TradePoint {
	out := make([]TradePoint, 0, w.count)
	for i := 0; i < w.count; i++ {
		out = append(out, w.points[(w.head+i)%w.capacity])
	}
	return out
}

func (w *agentWindow) recomputePeak() float64 {
	var peak float64
	for i := 0; i < w.count; i++ {
		if e := w.points[(w.head+i)%w.capacity].Equity; e > peak {
			peak = e
		}
	}
	return peak
}

// Monitor tracks drawdown windows per agent and runs the cooldown state
// machine from spec.md §4.5.
type Monitor struct {
	cfg config.DrawdownConfig
	st  store.Store
	hub *telemetry.Hub
	clk clock.Clock
	log zerolog.Logger

	logPath string
	onKill  KillSwitchFunc

	mu      sync.RWMutex
	windows map[string]*agentWindow

	fileMu sync.Mutex
}

// New returns a drawdown monitor. onKill may be nil.
func New(cfg config.DrawdownConfig, st store.Store, hub *telemetry.Hub, clk clock.Clock, logPath string, onKill KillSwitchFunc, logger zerolog.Logger) *Monitor {
	return &Monitor{
		cfg:     cfg,
		st:      st,
		hub:     hub,
		clk:     clk,
		log:     logger.With().Str("component", "drawdown.monitor").Logger(),
		logPath: logPath,
		onKill:  onKill,
		windows: make(map[string]*agentWindow),
	}
}

// RecordTrade pushes an equity point for agent and advances its drawdown
// state machine, returning the updated state.
func (m *Monitor) RecordTrade(ctx context.Context, agent string, equity float64) AgentState {
	m.mu.Lock()
	w, ok := m.windows[agent]
	if !ok {
		capacity := m.cfg.RollingWindowSize
		if capacity <= 0 {
			capacity = 100
		}
		w = newAgentWindow(agent, capacity)
		m.windows[agent] = w
	}

	evicted, didEvict := w.push(TradePoint{Timestamp: m.clk.Now(), Equity: equity})
	if didEvict && evicted.Equity >= w.state.PeakEquity {
		w.state.PeakEquity = w.recomputePeak()
	}
	if equity > w.state.PeakEquity {
		w.state.PeakEquity = equity
	}

	w.state.CurrentEquity = equity
	w.state.TradeCount++

	if w.state.PeakEquity <= 0 || w.count < m.minTrades() {
		w.state.CurrentDrawdown = 0
	} else {
		w.state.CurrentDrawdown = (w.state.PeakEquity - equity) / w.state.PeakEquity
	}

	state := w.state
	tradeCount := w.state.TradeCount
	minTrades := m.minTrades()
	snapshot := state
	m.mu.Unlock()

	if tradeCount < minTrades {
		return snapshot
	}

	return m.applyStateMachine(ctx, agent, snapshot)
}

func (m *Monitor) minTrades() int {
	if m.cfg.MinTradesForDrawdown <= 0 {
		return 1
	}
	return m.cfg.MinTradesForDrawdown
}

// applyStateMachine evaluates the transition table in spec.md §4.5 and
// emits the corresponding event, then persists and returns the new state.
func (m *Monitor) applyStateMachine(ctx context.Context, agent string, state AgentState) AgentState {
	now := m.clk.Now()

	switch state.Status {
	case StatusActive, StatusAlerted:
		switch {
		case state.CurrentDrawdown >= m.cfg.MaxDrawdownPct:
			state.Status = StatusInactive
			state.CooldownEnd = now.Add(m.cfg.CooldownPeriod)
			state.WasAlerted = true
			m.emit(ctx, telemetry.DrawdownBreach, agent, state)
			m.triggerKillSwitch(agent)
		case state.CurrentDrawdown >= m.cfg.AlertThresholdPct:
			state.Status = StatusAlerted
			state.WasAlerted = true
			m.emit(ctx, telemetry.DrawdownAlert, agent, state)
		case state.WasAlerted && state.CurrentDrawdown < m.cfg.AlertThresholdPct:
			state.Status = StatusActive
			state.WasAlerted = false
			m.emit(ctx, telemetry.DrawdownRecovery, agent, state)
		default:
			state.Status = StatusActive
		}
	case StatusInactive:
		if now.Before(state.CooldownEnd) {
			break
		}
		if state.CurrentDrawdown < m.cfg.AlertThresholdPct {
			state.Status = StatusActive
			state.WasAlerted = false
			state.CooldownEnd = time.Time{}
			m.emit(ctx, telemetry.DrawdownRecovery, agent, state)
		}
	}

	m.mu.Lock()
	if w, ok := m.windows[agent]; ok {
		w.state = state
	}
	m.mu.Unlock()

	if err := m.st.Set(ctx, store.DrawdownStateKey(agent), state, 0); err != nil {
		m.log.Warn().Err(err).Str("agent", agent).Msg("persist drawdown state")
	}

	return state
}

// IsKillSwitchActive reports whether agent is currently in cooldown.
func (m *Monitor) IsKillSwitchActive(agent string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	w, ok := m.windows[agent]
	if !ok {
		return false
	}
	return w.state.Status == StatusInactive
}

// State returns agent's last-known drawdown state.
func (m *Monitor) State(agent string) (AgentState, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	w, ok := m.windows[agent]
	if !ok {
		return AgentState{}, false
	}
	return w.state, true
}

func (m *Monitor) triggerKillSwitch(agent string) {
	if m.onKill == nil {
		return
	}
	go m.onKill(agent)
}

func (m *Monitor) emit(ctx context.Context, kind telemetry.EventType, agent string, state AgentState) {
	m.appendLog(kind, agent, state)
	if m.hub == nil {
		return
	}
	m.hub.Publish(ctx, &telemetry.DrawdownEventData{
		Kind:          kind,
		Agent:         agent,
		DrawdownPct:   state.CurrentDrawdown,
		PeakEquity:    state.PeakEquity,
		CurrentEquity: state.CurrentEquity,
	})
}

func (m *Monitor) appendLog(kind telemetry.EventType, agent string, state AgentState) {
	if m.logPath == "" {
		return
	}
	entry := logEntry{
		Timestamp: m.clk.Now(),
		Event:     string(kind),
		Agent:     agent,
		Drawdown:  state.CurrentDrawdown,
		Peak:      state.PeakEquity,
		Current:   state.CurrentEquity,
	}

	m.fileMu.Lock()
	defer m.fileMu.Unlock()

	f, err := os.OpenFile(m.logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		m.log.Warn().Err(err).Str("path", m.logPath).Msg("open drawdown event log")
		return
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	if err := json.NewEncoder(w).Encode(entry); err != nil {
		m.log.Warn().Err(err).Msg("encode drawdown log entry")
		return
	}
	if err := w.Flush(); err != nil {
		m.log.Warn().Err(err).Msg("flush drawdown log")
	}
}
