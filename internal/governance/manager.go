package governance

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/aristath/sentinel/internal/clock"
	"github.com/aristath/sentinel/internal/config"
	"github.com/aristath/sentinel/internal/store"
	"github.com/aristath/sentinel/internal/telemetry"
	"github.com/aristath/sentinel/internal/trust"
)

// TrustMultiplierSource reports an agent's vote-weight multiplier,
// sourced from the trust engine's current score.
type TrustMultiplierSource interface {
	GetScore(strategyID string) (trust.Score, bool)
}

// Manager owns proposal, vote, finality-lock, and execution-plan state
// for one domain participating in federated governance.
type Manager struct {
	cfg         config.FederationConfig
	st          store.Store
	hub         *telemetry.Hub
	trustSrc    TrustMultiplierSource
	clk         clock.Clock
	log         zerolog.Logger
	localDomain string

	mu        sync.RWMutex
	proposals map[string]*Proposal
	votes     map[string][]Vote
	locks     map[string]*FinalityLock
	plans     map[string]*ExecutionPlan
	executors []Executor
}

// New returns a governance manager for localDomain.
func New(cfg config.FederationConfig, st store.Store, hub *telemetry.Hub, trustSrc TrustMultiplierSource, clk clock.Clock, localDomain string, logger zerolog.Logger) *Manager {
	return &Manager{
		cfg:         cfg,
		st:          st,
		hub:         hub,
		trustSrc:    trustSrc,
		clk:         clk,
		log:         logger.With().Str("component", "governance.manager").Str("domain", localDomain).Logger(),
		localDomain: localDomain,
		proposals:   make(map[string]*Proposal),
		votes:       make(map[string][]Vote),
		locks:       make(map[string]*FinalityLock),
		plans:       make(map[string]*ExecutionPlan),
	}
}

// RegisterExecutor adds e to the dispatch list consulted by
// ExecuteWithFinality.
func (m *Manager) RegisterExecutor(e Executor) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.executors = append(m.executors, e)
}

func (m *Manager) getProposal(id string) (*Proposal, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.proposals[id]
	return p, ok
}
