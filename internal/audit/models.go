// Package audit mirrors every terminal authorization outcome to a
// best-effort external record. The mirror sits outside the trust boundary:
// writes happen after the authoritative decision is finalized, failures are
// logged and swallowed, and nothing in the decision path ever reads it back.
//
// Its main value is the hard-block case: an aborted operation leaves no
// record in the authoritative store, so the mirror is the only durable trace
// of why a request was refused.
package audit

import (
	"time"

	"github.com/google/uuid"
)

// Result is the terminal outcome recorded for an operation.
type Result string

const (
	ResultExecuted Result = "executed"
	ResultBlocked  Result = "blocked"
	ResultQueued   Result = "queued"
	ResultApproved Result = "approved"
	ResultRejected Result = "rejected"
)

// Actions recorded in entries.
const (
	ActionRequestTransfer = "request_transfer"
	ActionApprovePending  = "approve_pending"
	ActionRejectPending   = "reject_pending"
)

// Entry is the immutable record written to the blob mirror. The JSON field
// names match the original audit wire format byte for byte so existing
// readers keep working.
type Entry struct {
	Timestamp   time.Time `json:"timestamp"`
	VaultID     uuid.UUID `json:"vault_id"`
	Agent       string    `json:"agent"`
	Action      string    `json:"action"`
	To          string    `json:"to"`
	Amount      string    `json:"amount"`
	Result      Result    `json:"result"`
	Reason      string    `json:"reason"`
	TxReference string    `json:"tx_reference"`
}
