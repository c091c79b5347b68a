package models

// DecisionKind is the tagged classification of a transfer request. Callers
// must switch over it exhaustively; there is no implicit default path.
type DecisionKind int

const (
	// DecisionExecute releases funds immediately.
	DecisionExecute DecisionKind = iota
	// DecisionQueue holds the transfer for the owner's sign-off.
	DecisionQueue
	// DecisionBlock rejects the request outright with no queued path.
	DecisionBlock
)

// QueueReason is the closed set of soft-block causes. Soft blocks are
// successful operations, not errors: the request survives in the pending
// queue.
type QueueReason string

const (
	QueueEpochTxCountExceeded    QueueReason = "epoch_tx_count_exceeded"
	QueueRecipientNotAllowlisted QueueReason = "recipient_not_allowlisted"
	QueueExceedsAutoApprove      QueueReason = "exceeds_auto_approve"
)

// BlockReason is the closed set of hard-block causes. A hard block aborts
// the whole operation with no state change.
type BlockReason string

const (
	BlockRecipientDenylisted BlockReason = "recipient_denylisted"
	BlockExceedsPerTxLimit   BlockReason = "exceeds_per_tx_limit"
	BlockExceedsDailyLimit   BlockReason = "exceeds_daily_limit"
	BlockInsufficientBalance BlockReason = "insufficient_balance"
)

// Decision carries the classification and the reason for the non-executed
// kinds. Exactly one of QueueReason/BlockReason is set, matching Kind.
type Decision struct {
	Kind        DecisionKind
	QueueReason QueueReason
	BlockReason BlockReason
}

// Execute constructs an immediate-execution decision.
func Execute() Decision { return Decision{Kind: DecisionExecute} }

// Queue constructs a soft-block decision.
func Queue(reason QueueReason) Decision {
	return Decision{Kind: DecisionQueue, QueueReason: reason}
}

// Block constructs a hard-block decision.
func Block(reason BlockReason) Decision {
	return Decision{Kind: DecisionBlock, BlockReason: reason}
}
