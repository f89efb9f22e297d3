package governance

import (
	"context"
	"time"

	"github.com/aristath/sentinel/internal/apperr"
	"github.com/aristath/sentinel/internal/store"
	"github.com/aristath/sentinel/internal/telemetry"
)

// AcquireLock implements acquire_lock from spec.md §4.8.4: the proposal
// must be Executing with a Passed vote. A fresh lock is created via
// create-if-absent with TTL only when this manager holds no lock for the
// proposal. If one already exists and is valid, the local domain either
// already holds it (idempotent success) or the call fails
// LockNotAvailable. An existing lock that is not valid is not replaced:
// an expired one fails LockTimeout and an aborted one fails
// LockNotAvailable. A committed lock is returned as is.
func (m *Manager) AcquireLock(ctx context.Context, proposalID string) (*FinalityLock, error) {
	p, ok := m.getProposal(proposalID)
	if !ok {
		return nil, apperr.Wrap(apperr.KindNotFound, "proposal not found: "+proposalID, nil)
	}
	if p.Status != ProposalExecuting {
		return nil, apperr.Wrap(apperr.KindInvalidState, "proposal must be Executing to acquire the finality lock", nil)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.locks[proposalID]; ok {
		if existing.Status == LockAborted {
			return nil, apperr.Wrap(apperr.KindLockNotAvailable, "finality lock was aborted", nil)
		}
		if existing.Status == LockCommitted {
			return existing, nil
		}
		now := m.clk.Now()
		if !existing.TimeoutAt.IsZero() && now.After(existing.TimeoutAt) {
			return nil, apperr.Wrap(apperr.KindLockTimeout, "finality lock expired", nil)
		}
		if existing.AcknowledgedBy[m.localDomain] {
			return existing, nil
		}
		return nil, apperr.Wrap(apperr.KindLockNotAvailable, "finality lock already held by another domain", nil)
	}

	now := m.clk.Now()
	timeout := m.cfg.LockTimeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	lock := newFinalityLock(proposalID, now, now.Add(timeout), m.localDomain)

	created, err := m.st.SetIfAbsent(ctx, store.FinalityLockKey(proposalID), lock, timeout)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindStoreError, "create finality lock", err)
	}
	if !created {
		return nil, apperr.Wrap(apperr.KindLockNotAvailable, "another domain already holds the finality lock", nil)
	}

	m.locks[proposalID] = lock

	if m.hub != nil {
		m.hub.Publish(ctx, &telemetry.FinalityLockEventData{
			Kind: telemetry.FinalityLockAcquired, Proposal: proposalID, Domain: m.localDomain,
		})
	}

	return lock, nil
}

// AcknowledgeLock idempotently adds the local domain to the lock's
// acknowledged set.
func (m *Manager) AcknowledgeLock(ctx context.Context, proposalID string) error {
	m.mu.Lock()
	lock, ok := m.locks[proposalID]
	if !ok {
		m.mu.Unlock()
		return apperr.Wrap(apperr.KindNotFound, "no finality lock for proposal: "+proposalID, nil)
	}
	now := m.clk.Now()
	if !lock.TimeoutAt.IsZero() && now.After(lock.TimeoutAt) && lock.Status == LockLocked {
		m.mu.Unlock()
		return apperr.Wrap(apperr.KindLockTimeout, "finality lock expired", nil)
	}
	lock.AcknowledgedBy[m.localDomain] = true
	lock.UpdatedAt = now
	m.mu.Unlock()

	m.persistLock(ctx, lock)

	if m.hub != nil {
		m.hub.Publish(ctx, &telemetry.FinalityLockEventData{
			Kind: telemetry.FinalityLockAcknowledged, Proposal: proposalID, Domain: m.localDomain,
		})
	}
	return nil
}

// CommitLock implements commit_lock: preconditions are that the lock is
// valid and the local domain has acknowledged. Status flips to Committed
// once acknowledged_by ⊆ committed_by.
func (m *Manager) CommitLock(ctx context.Context, proposalID string) error {
	m.mu.Lock()
	lock, ok := m.locks[proposalID]
	if !ok {
		m.mu.Unlock()
		return apperr.Wrap(apperr.KindNotFound, "no finality lock for proposal: "+proposalID, nil)
	}
	if lock.Status == LockAborted {
		m.mu.Unlock()
		return apperr.Wrap(apperr.KindInvalidState, "finality lock was aborted", nil)
	}
	now := m.clk.Now()
	if lock.Status == LockLocked && !lock.TimeoutAt.IsZero() && now.After(lock.TimeoutAt) {
		m.mu.Unlock()
		return apperr.Wrap(apperr.KindLockTimeout, "finality lock expired", nil)
	}
	if !lock.AcknowledgedBy[m.localDomain] {
		m.mu.Unlock()
		return apperr.Wrap(apperr.KindInvalidState, "local domain must acknowledge before committing", nil)
	}

	lock.CommittedBy[m.localDomain] = true
	lock.UpdatedAt = now

	fullyCommitted := len(lock.CommittedBy) >= len(lock.AcknowledgedBy)
	for domain := range lock.AcknowledgedBy {
		if !lock.CommittedBy[domain] {
			fullyCommitted = false
			break
		}
	}
	if fullyCommitted {
		lock.Status = LockCommitted
	}
	m.mu.Unlock()

	m.persistLock(ctx, lock)

	if m.hub != nil {
		m.hub.Publish(ctx, &telemetry.FinalityLockEventData{
			Kind: telemetry.FinalityLockCommitted, Proposal: proposalID, Domain: m.localDomain,
			FullyCommitted: fullyCommitted,
		})
	}
	return nil
}

// AbortLock implements abort_lock: forbidden once Committed.
func (m *Manager) AbortLock(ctx context.Context, proposalID, reason string) error {
	m.mu.Lock()
	lock, ok := m.locks[proposalID]
	if !ok {
		m.mu.Unlock()
		return apperr.Wrap(apperr.KindNotFound, "no finality lock for proposal: "+proposalID, nil)
	}
	if lock.Status == LockCommitted {
		m.mu.Unlock()
		return apperr.Wrap(apperr.KindInvalidState, "cannot abort a committed finality lock", nil)
	}
	lock.Status = LockAborted
	lock.AbortedBy[m.localDomain] = true
	lock.AbortReason = reason
	lock.UpdatedAt = m.clk.Now()
	m.mu.Unlock()

	m.persistLock(ctx, lock)

	if m.hub != nil {
		m.hub.Publish(ctx, &telemetry.FinalityLockEventData{
			Kind: telemetry.FinalityLockAborted, Proposal: proposalID, Domain: m.localDomain,
		})
	}
	return nil
}

func (m *Manager) persistLock(ctx context.Context, lock *FinalityLock) {
	if err := m.st.Set(ctx, store.FinalityLockKey(lock.ProposalID), lock, 0); err != nil {
		m.log.Warn().Err(err).Str("proposal", lock.ProposalID).Msg("persist finality lock")
	}
}

// LockState returns proposalID's in-memory finality lock, if any.
func (m *Manager) LockState(proposalID string) (*FinalityLock, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	lock, ok := m.locks[proposalID]
	return lock, ok
}

// SweepExpiredLocks rewrites every expired Locked entry as Aborted, per
// the 30 s cleanup task in spec.md §4.8.4. Intended to be registered
// with internal/supervisor.
func (m *Manager) SweepExpiredLocks(ctx context.Context) {
	now := m.clk.Now()

	m.mu.Lock()
	var expired []*FinalityLock
	for _, lock := range m.locks {
		if lock.Status == LockLocked && !lock.TimeoutAt.IsZero() && now.After(lock.TimeoutAt) {
			lock.Status = LockAborted
			lock.AbortReason = "Lock timeout"
			lock.UpdatedAt = now
			expired = append(expired, lock)
		}
	}
	m.mu.Unlock()

	for _, lock := range expired {
		m.persistLock(ctx, lock)
		if m.hub != nil {
			m.hub.Publish(ctx, &telemetry.FinalityLockEventData{
				Kind: telemetry.FinalityLockAborted, Proposal: lock.ProposalID, Domain: m.localDomain,
			})
		}
	}
}
