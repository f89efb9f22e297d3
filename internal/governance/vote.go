package governance

import (
	"context"

	"github.com/google/uuid"

	"github.com/aristath/sentinel/internal/apperr"
	"github.com/aristath/sentinel/internal/store"
	"github.com/aristath/sentinel/internal/telemetry"
)

// CreateVote casts agent's vote on proposalID. Fails if the proposal is
// not Open, or if agent has already voted. Weight = base * trust
// multiplier * domain modifier, all defaulting to 1.0.
func (m *Manager) CreateVote(ctx context.Context, proposalID, domain, agent string, voteType VoteType, reason string, domainModifier float64) (Vote, error) {
	p, ok := m.getProposal(proposalID)
	if !ok {
		return Vote{}, apperr.Wrap(apperr.KindNotFound, "proposal not found: "+proposalID, nil)
	}
	if p.Status != ProposalOpen {
		return Vote{}, apperr.Wrap(apperr.KindInvalidState, "proposal is not open for voting", nil)
	}

	m.mu.RLock()
	for _, v := range m.votes[proposalID] {
		if v.Agent == agent {
			m.mu.RUnlock()
			return Vote{}, apperr.Wrap(apperr.KindInvalidState, "agent has already voted on this proposal", nil)
		}
	}
	m.mu.RUnlock()

	if domainModifier == 0 {
		domainModifier = 1.0
	}

	trustMultiplier := 1.0
	if m.trustSrc != nil {
		if score, ok := m.trustSrc.GetScore(agent); ok {
			trustMultiplier = score.Score
		}
	}

	vote := Vote{
		ID:         uuid.NewString(),
		ProposalID: proposalID,
		Domain:     domain,
		Agent:      agent,
		Type:       voteType,
		Weight:     1.0 * trustMultiplier * domainModifier,
		Reason:     reason,
		Timestamp:  m.clk.Now(),
	}

	m.mu.Lock()
	m.votes[proposalID] = append(m.votes[proposalID], vote)
	m.mu.Unlock()

	if err := m.st.Set(ctx, store.VoteKey(proposalID, vote.ID), vote, 0); err != nil {
		m.log.Warn().Err(err).Str("proposal", proposalID).Msg("persist vote")
	}
	if _, err := m.st.AddToSet(ctx, store.ProposalVotesKey(proposalID), vote.ID); err != nil {
		m.log.Warn().Err(err).Str("proposal", proposalID).Msg("index vote")
	}

	if m.hub != nil {
		m.hub.Publish(ctx, &telemetry.VoteCreatedData{
			Proposal: proposalID, VoteID: vote.ID, Agent: agent,
			Type: string(voteType), Weight: vote.Weight,
		})
	}

	return vote, nil
}

func quorumThresholdFor(p *Proposal, domain string, defaultQuorum float64) float64 {
	if p.QuorumThresholds != nil {
		if t, ok := p.QuorumThresholds[domain]; ok {
			return t
		}
	}
	return defaultQuorum
}

// Aggregate tallies every vote cast on proposalID, per domain and
// overall, per spec.md §4.8.2.
func (m *Manager) Aggregate(ctx context.Context, proposalID string) (Aggregation, error) {
	p, ok := m.getProposal(proposalID)
	if !ok {
		return Aggregation{}, apperr.Wrap(apperr.KindNotFound, "proposal not found: "+proposalID, nil)
	}

	m.mu.RLock()
	votes := append([]Vote(nil), m.votes[proposalID]...)
	m.mu.RUnlock()

	perDomain := make(map[string]DomainAggregation, len(p.Domains))
	for _, d := range p.Domains {
		perDomain[d] = DomainAggregation{QuorumThreshold: quorumThresholdFor(p, d, m.cfg.DefaultQuorum)}
	}

	for _, v := range votes {
		agg, ok := perDomain[v.Domain]
		if !ok {
			agg = DomainAggregation{QuorumThreshold: quorumThresholdFor(p, v.Domain, m.cfg.DefaultQuorum)}
		}
		agg.TotalWeight += v.Weight
		switch v.Type {
		case VoteYes:
			agg.YesCount++
			agg.YesWeight += v.Weight
		case VoteNo:
			agg.NoCount++
			agg.NoWeight += v.Weight
		case VoteAbstain:
			agg.AbstainCount++
			agg.AbstainWeight += v.Weight
		}
		perDomain[v.Domain] = agg
	}

	var totalYes, totalNo, totalWeight float64
	allComplete := true
	for d, agg := range perDomain {
		agg.QuorumMet = agg.TotalWeight > 0 && (agg.YesWeight+agg.NoWeight) >= agg.TotalWeight*agg.QuorumThreshold
		perDomain[d] = agg
		totalYes += agg.YesWeight
		totalNo += agg.NoWeight
		totalWeight += agg.TotalWeight
		if agg.TotalWeight == 0 || !agg.QuorumMet {
			allComplete = false
		}
	}

	result := ResultInProgress
	if allComplete {
		switch {
		case totalWeight == 0:
			result = ResultInconclusive
		case (totalYes+totalNo) < totalWeight*m.cfg.DefaultQuorum:
			result = ResultInconclusive
		case totalYes > totalNo:
			result = ResultPass
		default:
			result = ResultFail
		}
	}

	aggregation := Aggregation{
		ProposalID:         proposalID,
		PerDomain:          perDomain,
		AllDomainsComplete: allComplete,
		Result:             result,
		TotalYesWeight:     totalYes,
		TotalNoWeight:      totalNo,
		TotalWeight:        totalWeight,
	}

	if err := m.st.Set(ctx, store.ProposalVoteResultKey(proposalID), aggregation, 0); err != nil {
		m.log.Warn().Err(err).Str("proposal", proposalID).Msg("persist vote aggregation")
	}

	return aggregation, nil
}

// CloseVoting aggregates votes and idempotently transitions an Open
// proposal to Executing (Pass) or Rejected (Fail/Inconclusive/forced).
func (m *Manager) CloseVoting(ctx context.Context, proposalID string) (Aggregation, error) {
	p, ok := m.getProposal(proposalID)
	if !ok {
		return Aggregation{}, apperr.Wrap(apperr.KindNotFound, "proposal not found: "+proposalID, nil)
	}

	if p.Status != ProposalOpen {
		agg, err := m.Aggregate(ctx, proposalID)
		return agg, err
	}

	agg, err := m.Aggregate(ctx, proposalID)
	if err != nil {
		return agg, err
	}

	m.mu.Lock()
	switch agg.Result {
	case ResultPass:
		p.Status = ProposalExecuting
	default:
		p.Status = ProposalRejected
	}
	p.ClosedAt = m.clk.Now()
	m.mu.Unlock()

	m.persistProposal(ctx, p)

	if m.hub != nil {
		m.hub.Publish(ctx, &telemetry.VotingClosedData{
			Proposal: proposalID, Result: string(agg.Result), Status: string(p.Status),
			YesWeight: agg.TotalYesWeight, NoWeight: agg.TotalNoWeight,
		})
	}

	return agg, nil
}
