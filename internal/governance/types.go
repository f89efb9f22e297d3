// Package governance implements federated cross-domain proposal
// lifecycle, vote aggregation, the two-phase finality lock, and the
// execution engine from spec.md §4.8. Every entity persists through
// internal/store like every other subsystem; there is no separate
// ledger database.
package governance

import (
	"context"
	"encoding/json"
	"time"
)

// ProposalStatus is a proposal's lifecycle state.
type ProposalStatus string

const (
	ProposalDraft     ProposalStatus = "draft"
	ProposalOpen      ProposalStatus = "open"
	ProposalExecuting ProposalStatus = "executing"
	ProposalRejected  ProposalStatus = "rejected"
	ProposalFinalized ProposalStatus = "finalized"
	ProposalWithdrawn ProposalStatus = "withdrawn"
)

// DomainSyncState tracks one participating domain's progress through a
// proposal's lifecycle.
type DomainSyncState struct {
	Acknowledged        bool      `json:"acknowledged"`
	VotingComplete      bool      `json:"voting_complete"`
	ExecutionInitiated  bool      `json:"execution_initiated"`
	ExecutionFinalized  bool      `json:"execution_finalized"`
	LastSyncAt          time.Time `json:"last_sync_at"`
	LastError           string    `json:"last_error,omitempty"`
}

// Proposal is a cross-domain governance proposal.
type Proposal struct {
	ID               string                      `json:"id"`
	OriginDomain     string                      `json:"origin_domain"`
	Payload          json.RawMessage             `json:"payload"`
	Domains          []string                    `json:"domains"`
	SyncState        map[string]*DomainSyncState `json:"sync_state"`
	Status           ProposalStatus              `json:"status"`
	QuorumThresholds map[string]float64          `json:"quorum_thresholds,omitempty"`
	ExecutionTimeout time.Duration               `json:"execution_timeout,omitempty"`
	CreatedAt        time.Time                   `json:"created_at"`
	ClosedAt         time.Time                   `json:"closed_at,omitempty"`
}

// VoteType is a vote's disposition.
type VoteType string

const (
	VoteYes     VoteType = "yes"
	VoteNo      VoteType = "no"
	VoteAbstain VoteType = "abstain"
)

// Vote is one agent's vote on a proposal.
type Vote struct {
	ID         string    `json:"id"`
	ProposalID string    `json:"proposal_id"`
	Domain     string    `json:"domain"`
	Agent      string    `json:"agent"`
	Type       VoteType  `json:"type"`
	Weight     float64   `json:"weight"`
	Reason     string    `json:"reason,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// AggregationResult is the overall outcome of vote aggregation.
type AggregationResult string

const (
	ResultInProgress  AggregationResult = "in_progress"
	ResultInconclusive AggregationResult = "inconclusive"
	ResultPass        AggregationResult = "pass"
	ResultFail        AggregationResult = "fail"
)

// DomainAggregation is one domain's vote tally.
type DomainAggregation struct {
	YesCount        int     `json:"yes_count"`
	NoCount         int     `json:"no_count"`
	AbstainCount    int     `json:"abstain_count"`
	YesWeight       float64 `json:"yes_weight"`
	NoWeight        float64 `json:"no_weight"`
	AbstainWeight   float64 `json:"abstain_weight"`
	TotalWeight     float64 `json:"total_weight"`
	QuorumThreshold float64 `json:"quorum_threshold"`
	QuorumMet       bool    `json:"quorum_met"`
}

// Aggregation is the full vote tally across all participating domains.
type Aggregation struct {
	ProposalID         string                       `json:"proposal_id"`
	PerDomain          map[string]DomainAggregation `json:"per_domain"`
	AllDomainsComplete bool                         `json:"all_domains_complete"`
	Result             AggregationResult            `json:"result"`
	TotalYesWeight     float64                      `json:"total_yes_weight"`
	TotalNoWeight      float64                      `json:"total_no_weight"`
	TotalWeight        float64                      `json:"total_weight"`
}

// LockStatus is the finality lock's state.
type LockStatus string

const (
	LockUnlocked  LockStatus = "unlocked"
	LockLocked    LockStatus = "locked"
	LockCommitted LockStatus = "committed"
	LockAborted   LockStatus = "aborted"
)

// FinalityLock is the two-phase commit lock for one proposal.
type FinalityLock struct {
	ProposalID     string          `json:"proposal_id"`
	Status         LockStatus      `json:"status"`
	AcknowledgedBy map[string]bool `json:"acknowledged_by"`
	CommittedBy    map[string]bool `json:"committed_by"`
	AbortedBy      map[string]bool `json:"aborted_by"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
	TimeoutAt      time.Time       `json:"timeout_at,omitempty"`
	AbortReason    string          `json:"abort_reason,omitempty"`
}

func newFinalityLock(proposalID string, now, timeoutAt time.Time, localDomain string) *FinalityLock {
	return &FinalityLock{
		ProposalID:     proposalID,
		Status:         LockLocked,
		AcknowledgedBy: map[string]bool{localDomain: true},
		CommittedBy:    map[string]bool{},
		AbortedBy:      map[string]bool{},
		CreatedAt:      now,
		UpdatedAt:      now,
		TimeoutAt:      timeoutAt,
	}
}

// PlanStatus is one domain's execution status within a proposal's plan.
type PlanStatus string

const (
	PlanPending    PlanStatus = "pending"
	PlanInProgress PlanStatus = "in_progress"
	PlanCompleted  PlanStatus = "completed"
	PlanFailed     PlanStatus = "failed"
	PlanCancelled  PlanStatus = "cancelled"
)

// ExecutionPlan tracks per-domain execution status for one proposal.
type ExecutionPlan struct {
	ProposalID   string                `json:"proposal_id"`
	DomainStatus map[string]PlanStatus `json:"domain_status"`
}

// ExecutionResult is what an Executor reports for one domain.
type ExecutionResult struct {
	Domain string     `json:"domain"`
	Status PlanStatus `json:"status"`
	Error  string     `json:"error,omitempty"`
}

// Executor dispatches a proposal's execution for one domain. Multiple
// executors may be registered; the first whose CanExecute returns true
// handles the proposal.
type Executor interface {
	CanExecute(p *Proposal) bool
	Execute(ctx context.Context, p *Proposal, domain string) ExecutionResult
}
