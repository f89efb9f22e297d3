package governance

import (
	"context"

	"github.com/aristath/sentinel/internal/apperr"
	"github.com/aristath/sentinel/internal/store"
	"github.com/aristath/sentinel/internal/telemetry"
)

// LocalExecutor completes every proposal immediately for the local
// domain. It is the default Executor for a single-process deployment
// where execution is just committing the proposal's own state change;
// dispatching to an actual venue or downstream service is an external
// collaborator concern, out of scope per spec.md §9.
type LocalExecutor struct{}

// CanExecute always accepts.
func (LocalExecutor) CanExecute(p *Proposal) bool { return true }

// Execute reports the domain's plan as completed.
func (LocalExecutor) Execute(ctx context.Context, p *Proposal, domain string) ExecutionResult {
	return ExecutionResult{Domain: domain, Status: PlanCompleted}
}

func (m *Manager) planFor(proposalID string, domains []string) *ExecutionPlan {
	m.mu.Lock()
	defer m.mu.Unlock()
	plan, ok := m.plans[proposalID]
	if !ok {
		plan = &ExecutionPlan{ProposalID: proposalID, DomainStatus: make(map[string]PlanStatus)}
		for _, d := range domains {
			plan.DomainStatus[d] = PlanPending
		}
		m.plans[proposalID] = plan
	}
	return plan
}

func (m *Manager) persistPlan(ctx context.Context, plan *ExecutionPlan) {
	if err := m.st.Set(ctx, store.ProposalExecutionPlanKey(plan.ProposalID), plan, 0); err != nil {
		m.log.Warn().Err(err).Str("proposal", plan.ProposalID).Msg("persist execution plan")
	}
}

// ExecuteWithFinality implements execute_with_finality from spec.md
// §4.8.4: acquire the lock, require every domain acknowledged, dispatch
// to the first executor whose CanExecute accepts the proposal, then
// commit or abort based on the result.
func (m *Manager) ExecuteWithFinality(ctx context.Context, proposalID string) error {
	p, ok := m.getProposal(proposalID)
	if !ok {
		return apperr.Wrap(apperr.KindNotFound, "proposal not found: "+proposalID, nil)
	}

	lock, err := m.AcquireLock(ctx, proposalID)
	if err != nil {
		return err
	}

	for _, d := range p.Domains {
		if !lock.AcknowledgedBy[d] {
			return apperr.Wrap(apperr.KindInvalidState, "not all domains have acknowledged the finality lock", nil)
		}
	}

	m.mu.RLock()
	executors := append([]Executor(nil), m.executors...)
	m.mu.RUnlock()

	var executor Executor
	for _, e := range executors {
		if e.CanExecute(p) {
			executor = e
			break
		}
	}
	if executor == nil {
		_ = m.AbortLock(ctx, proposalID, "no executor accepted the proposal")
		return apperr.Wrap(apperr.KindInvalidState, "no registered executor can execute this proposal", nil)
	}

	plan := m.planFor(proposalID, p.Domains)

	result := executor.Execute(ctx, p, m.localDomain)

	m.mu.Lock()
	plan.DomainStatus[m.localDomain] = result.Status
	m.mu.Unlock()
	m.persistPlan(ctx, plan)

	if err := m.st.Set(ctx, store.ProposalExecutionResultKey(proposalID, m.localDomain), result, 0); err != nil {
		m.log.Warn().Err(err).Str("proposal", proposalID).Msg("persist execution result")
	}

	if m.hub != nil {
		m.hub.Publish(ctx, &telemetry.ProposalExecutedData{
			Proposal: proposalID, Status: string(result.Status), Error: result.Error,
		})
	}

	if result.Status == PlanCompleted {
		return m.CommitLock(ctx, proposalID)
	}
	return m.AbortLock(ctx, proposalID, result.Error)
}

// RunExecutionCheck scans Executing proposals and drives them through
// ExecuteWithFinality. Registered with the supervisor on a 10 s cadence
// per spec.md §4.8.5.
func (m *Manager) RunExecutionCheck(ctx context.Context) {
	m.mu.RLock()
	var candidates []string
	for id, p := range m.proposals {
		if p.Status == ProposalExecuting {
			candidates = append(candidates, id)
		}
	}
	m.mu.RUnlock()

	for _, id := range candidates {
		if _, ok := m.LockState(id); ok {
			continue // already has a lock in flight; the finalization checker handles it
		}
		if err := m.ExecuteWithFinality(ctx, id); err != nil {
			m.log.Warn().Err(err).Str("proposal", id).Msg("execution check")
		}
	}
}

// RunFinalizationCheck scans proposals with a Committed lock whose
// execution plan is Completed on every domain, and marks them Finalized.
// Registered with the supervisor on a 15 s cadence.
func (m *Manager) RunFinalizationCheck(ctx context.Context) {
	m.mu.RLock()
	var candidates []*Proposal
	for _, p := range m.proposals {
		if p.Status == ProposalExecuting {
			candidates = append(candidates, p)
		}
	}
	m.mu.RUnlock()

	for _, p := range candidates {
		lock, ok := m.LockState(p.ID)
		if !ok || lock.Status != LockCommitted {
			continue
		}

		m.mu.RLock()
		plan, ok := m.plans[p.ID]
		m.mu.RUnlock()
		if !ok {
			continue
		}

		allCompleted := true
		for _, d := range p.Domains {
			if plan.DomainStatus[d] != PlanCompleted {
				allCompleted = false
				break
			}
		}
		if !allCompleted {
			continue
		}

		m.mu.Lock()
		p.Status = ProposalFinalized
		p.ClosedAt = m.clk.Now()
		m.mu.Unlock()
		m.persistProposal(ctx, p)

		if m.hub != nil {
			m.hub.Publish(ctx, &telemetry.ProposalFinalizedData{Proposal: p.ID})
		}
	}
}
