package store

import "fmt"

// Key namespaces, matching spec.md §6 exactly. Every subsystem builds its
// keys through these helpers instead of formatting strings inline.

func ExecLogKey(strategy string) string { return fmt.Sprintf("exec:logs:%s", strategy) }

func ExecSlippageKey(strategy, venue string) string {
	return fmt.Sprintf("exec:slippage:%s:%s", strategy, venue)
}

func ExecEQSKey(strategy string) string { return fmt.Sprintf("exec:eqs:%s", strategy) }

func StrategyStatusKey(strategy string) string { return fmt.Sprintf("strategy:status:%s", strategy) }

func StrategyDecayScoreKey(strategy string) string {
	return fmt.Sprintf("strategy:decay_score:%s", strategy)
}

func CorrelationReturnsKey(strategyID string) string {
	return fmt.Sprintf("noderr:correlation:strategy:%s:returns", strategyID)
}

func CorrelationMatrixKey(period string) string {
	return fmt.Sprintf("noderr:correlation:matrix:%s", period)
}

const CorrelationWeightsKey = "noderr:correlation:weights"

func TrustScoreKey(strategyID string) string {
	return fmt.Sprintf("noderr:trust:strategy:%s:score", strategyID)
}

func TrustHistoryKey(strategyID string) string {
	return fmt.Sprintf("noderr:trust:strategy:%s:history", strategyID)
}

func ProposalKey(id string) string { return fmt.Sprintf("federation:proposals:%s", id) }

func ProposalVotesKey(id string) string { return fmt.Sprintf("federation:proposals:%s:votes", id) }

func VoteKey(proposalID, voteID string) string {
	return fmt.Sprintf("federation:votes:%s:%s", proposalID, voteID)
}

func ProposalVoteResultKey(id string) string {
	return fmt.Sprintf("federation:proposals:%s:vote_result", id)
}

func ProposalExecutionPlanKey(id string) string {
	return fmt.Sprintf("federation:proposals:%s:execution_plan", id)
}

func ProposalExecutionResultKey(id, domain string) string {
	return fmt.Sprintf("federation:proposals:%s:execution_result:%s", id, domain)
}

func FinalityLockKey(proposalID string) string {
	return fmt.Sprintf("federation:locks:%s", proposalID)
}

const ProposalIndexKey = "federation:proposals:index"

func DrawdownStateKey(agent string) string { return fmt.Sprintf("drawdown:state:%s", agent) }

func FeedbackStatusKey(strategy string) string { return fmt.Sprintf("feedback:status:%s", strategy) }

func FeedbackAllocationKey(strategy string) string {
	return fmt.Sprintf("feedback:allocation:%s", strategy)
}
