package models

import "github.com/google/uuid"

// Event names preserved from the original ledger module so downstream
// consumers (dashboard, audit tooling) keep a stable vocabulary.
const (
	EventVaultCreated     = "VaultCreated"
	EventTransferExecuted = "TransferExecuted"
	EventTransferQueued   = "TransferQueued"
	EventTransferApproved = "TransferApproved"
	EventTransferRejected = "TransferRejected"
)

// Event is the envelope published to the decision event stream. Fields not
// relevant to a given event name are zero.
type Event struct {
	Name      string    `json:"name"`
	VaultID   uuid.UUID `json:"vault_id"`
	To        Address   `json:"to,omitempty"`
	Amount    uint64    `json:"amount,omitempty"`
	Reason    string    `json:"reason,omitempty"`
	PendingID uint64    `json:"pending_id,omitempty"`
	// TxReference identifies the executed transfer; the analog of the
	// original transaction digest.
	TxReference string `json:"tx_reference,omitempty"`
}
