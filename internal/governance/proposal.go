package governance

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/aristath/sentinel/internal/apperr"
	"github.com/aristath/sentinel/internal/store"
	"github.com/aristath/sentinel/internal/telemetry"
)

// CreateProposal creates a Draft proposal for the given domains.
func (m *Manager) CreateProposal(ctx context.Context, originDomain string, payload any, domains []string, quorum map[string]float64, executionTimeout time.Duration) (*Proposal, error) {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "encode proposal payload", err)
	}

	sync := make(map[string]*DomainSyncState, len(domains))
	for _, d := range domains {
		sync[d] = &DomainSyncState{}
	}

	p := &Proposal{
		ID:               uuid.NewString(),
		OriginDomain:     originDomain,
		Payload:          encoded,
		Domains:          domains,
		SyncState:        sync,
		Status:           ProposalDraft,
		QuorumThresholds: quorum,
		ExecutionTimeout: executionTimeout,
		CreatedAt:        m.clk.Now(),
	}

	m.mu.Lock()
	m.proposals[p.ID] = p
	m.mu.Unlock()

	m.persistProposal(ctx, p)
	if _, err := m.st.AddToSet(ctx, store.ProposalIndexKey, p.ID); err != nil {
		m.log.Warn().Err(err).Str("proposal", p.ID).Msg("index proposal")
	}

	return p, nil
}

func (m *Manager) persistProposal(ctx context.Context, p *Proposal) {
	if err := m.st.Set(ctx, store.ProposalKey(p.ID), p, 0); err != nil {
		m.log.Warn().Err(err).Str("proposal", p.ID).Msg("persist proposal")
	}
}

// OpenVoting transitions a Draft proposal to Open.
func (m *Manager) OpenVoting(ctx context.Context, proposalID string) error {
	m.mu.Lock()
	p, ok := m.proposals[proposalID]
	if !ok {
		m.mu.Unlock()
		return apperr.Wrap(apperr.KindNotFound, "proposal not found: "+proposalID, nil)
	}
	if p.Status != ProposalDraft {
		m.mu.Unlock()
		return apperr.Wrap(apperr.KindInvalidState, "proposal must be Draft to open voting", nil)
	}
	p.Status = ProposalOpen
	m.mu.Unlock()

	m.persistProposal(ctx, p)
	return nil
}

// Withdraw marks a pre-Finalized proposal Withdrawn.
func (m *Manager) Withdraw(ctx context.Context, proposalID string) error {
	m.mu.Lock()
	p, ok := m.proposals[proposalID]
	if !ok {
		m.mu.Unlock()
		return apperr.Wrap(apperr.KindNotFound, "proposal not found: "+proposalID, nil)
	}
	if p.Status == ProposalFinalized || p.Status == ProposalWithdrawn {
		m.mu.Unlock()
		return apperr.Wrap(apperr.KindInvalidState, "proposal cannot be withdrawn from its current state", nil)
	}
	p.Status = ProposalWithdrawn
	p.ClosedAt = m.clk.Now()
	m.mu.Unlock()

	m.persistProposal(ctx, p)
	return nil
}

// AcknowledgeDomain marks domain as having acknowledged proposalID, part
// of the stateless proposal-relay surface in spec.md §4.8.3.
func (m *Manager) AcknowledgeDomain(ctx context.Context, proposalID, domain string) error {
	m.mu.Lock()
	p, ok := m.proposals[proposalID]
	if !ok {
		m.mu.Unlock()
		return apperr.Wrap(apperr.KindNotFound, "proposal not found: "+proposalID, nil)
	}
	state, ok := p.SyncState[domain]
	if !ok {
		state = &DomainSyncState{}
		p.SyncState[domain] = state
	}
	state.Acknowledged = true
	state.LastSyncAt = m.clk.Now()
	m.mu.Unlock()

	m.persistProposal(ctx, p)
	return nil
}

// SignalExecutionIntent marks execution_initiated for every participating
// domain and publishes an execution_intent_signaled telemetry event.
func (m *Manager) SignalExecutionIntent(ctx context.Context, proposalID string) error {
	m.mu.Lock()
	p, ok := m.proposals[proposalID]
	if !ok {
		m.mu.Unlock()
		return apperr.Wrap(apperr.KindNotFound, "proposal not found: "+proposalID, nil)
	}
	for _, d := range p.Domains {
		state, ok := p.SyncState[d]
		if !ok {
			state = &DomainSyncState{}
			p.SyncState[d] = state
		}
		state.ExecutionInitiated = true
		state.LastSyncAt = m.clk.Now()
	}
	m.mu.Unlock()

	m.persistProposal(ctx, p)
	if m.hub != nil {
		m.hub.Publish(ctx, &telemetry.ExecutionIntentSignaledData{Proposal: proposalID})
	}
	return nil
}
