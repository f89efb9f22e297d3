// Package telemetry carries structured events out of the control plane:
// drawdown alerts, trust threshold crossings, governance lifecycle
// transitions. Event payloads follow the teacher's typed-EventData idiom
// (internal/events/event_data.go) but are published through the record
// store's pub/sub channel (and, optionally, a websocket broadcast) instead
// of an in-process-only bus.
package telemetry

// EventType names one of the telemetry events enumerated in spec.md §6.
type EventType string

const (
	DrawdownAlert      EventType = "drawdown_alert"
	DrawdownBreach     EventType = "drawdown_breach"
	DrawdownRecovery   EventType = "drawdown_recovery"
	TrustWarning       EventType = "trust_warning"
	TrustCritical      EventType = "trust_critical"
	TrustThresholdCrossed EventType = "trust_threshold_crossed"
	VoteCreated        EventType = "vote_created"
	VotingClosed       EventType = "voting_closed"
	ExecutionIntentSignaled EventType = "execution_intent_signaled"
	ProposalExecuted   EventType = "proposal_executed"
	ProposalFinalized  EventType = "proposal_finalized"
	FinalityLockAcquired     EventType = "finality_lock_acquired"
	FinalityLockAcknowledged EventType = "finality_lock_acknowledged"
	FinalityLockCommitted    EventType = "finality_lock_committed"
	FinalityLockAborted      EventType = "finality_lock_aborted"
)

// EventData is implemented by every concrete event payload type, the same
// contract the teacher's events package uses.
type EventData interface {
	EventType() EventType
}

// DrawdownEventData covers drawdown_alert, drawdown_breach, and
// drawdown_recovery, which all share the same fields.
type DrawdownEventData struct {
	Kind          EventType `json:"-"`
	Agent         string    `json:"agent"`
	DrawdownPct   float64   `json:"drawdown_pct"`
	PeakEquity    float64   `json:"peak_equity"`
	CurrentEquity float64   `json:"current_equity"`
}

func (d *DrawdownEventData) EventType() EventType { return d.Kind }

// TrustWarningData covers trust_warning and trust_critical; the strategy
// is carried in the Strategy field, not in the event name.
type TrustWarningData struct {
	Kind      EventType `json:"-"`
	Strategy  string    `json:"strategy"`
	OldScore  float64   `json:"old_score"`
	NewScore  float64   `json:"new_score"`
	Threshold float64   `json:"threshold"`
}

func (d *TrustWarningData) EventType() EventType { return d.Kind }

// TrustThresholdCrossedData covers trust_threshold_crossed.
type TrustThresholdCrossedData struct {
	Strategy      string  `json:"strategy"`
	ThresholdName string  `json:"threshold_name"`
	ThresholdValue float64 `json:"threshold_value"`
	OldScore      float64 `json:"old_score"`
	NewScore      float64 `json:"new_score"`
}

func (d *TrustThresholdCrossedData) EventType() EventType { return TrustThresholdCrossed }

// VoteCreatedData covers vote_created.
type VoteCreatedData struct {
	Proposal string  `json:"proposal"`
	VoteID   string  `json:"vote_id"`
	Agent    string  `json:"agent"`
	Type     string  `json:"type"`
	Weight   float64 `json:"weight"`
}

func (d *VoteCreatedData) EventType() EventType { return VoteCreated }

// VotingClosedData covers voting_closed.
type VotingClosedData struct {
	Proposal  string  `json:"proposal"`
	Result    string  `json:"result"`
	Status    string  `json:"status"`
	YesWeight float64 `json:"yes_weight"`
	NoWeight  float64 `json:"no_weight"`
}

func (d *VotingClosedData) EventType() EventType { return VotingClosed }

// ExecutionIntentSignaledData covers execution_intent_signaled.
type ExecutionIntentSignaledData struct {
	Proposal string `json:"proposal"`
}

func (d *ExecutionIntentSignaledData) EventType() EventType { return ExecutionIntentSignaled }

// ProposalExecutedData covers proposal_executed.
type ProposalExecutedData struct {
	Proposal string `json:"proposal"`
	Status   string `json:"status"`
	Error    string `json:"error,omitempty"`
}

func (d *ProposalExecutedData) EventType() EventType { return ProposalExecuted }

// ProposalFinalizedData covers proposal_finalized.
type ProposalFinalizedData struct {
	Proposal string `json:"proposal"`
}

func (d *ProposalFinalizedData) EventType() EventType { return ProposalFinalized }

// FinalityLockEventData covers the four finality_lock_* events.
type FinalityLockEventData struct {
	Kind           EventType `json:"-"`
	Proposal       string    `json:"proposal"`
	Domain         string    `json:"domain,omitempty"`
	FullyCommitted bool      `json:"fully_committed,omitempty"`
}

func (d *FinalityLockEventData) EventType() EventType { return d.Kind }
