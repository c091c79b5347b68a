package handler

import (
	"time"

	"github.com/google/uuid"

	"agentvault/internal/vault/models"
	"agentvault/internal/vault/service"
)

// VaultResponse is the full vault snapshot returned by GET /vaults/{id} and
// POST /vaults. Amounts are in MIST.
type VaultResponse struct {
	ID               uuid.UUID         `json:"id"`
	Owner            string            `json:"owner"`
	Agent            string            `json:"agent"`
	Balance          uint64            `json:"balance"`
	MaxPerTx         uint64            `json:"max_per_tx"`
	MaxDaily         uint64            `json:"max_daily"`
	AutoApproveLimit uint64            `json:"auto_approve_limit"`
	MaxTxPerEpoch    uint64            `json:"max_tx_per_epoch"`
	SpentThisEpoch   uint64            `json:"spent_this_epoch"`
	TxCountThisEpoch uint64            `json:"tx_count_this_epoch"`
	LastEpoch        uint64            `json:"last_epoch"`
	Denylist         []models.Address  `json:"denylist"`
	Allowlist        []models.Address  `json:"allowlist"`
	Pending          []PendingResponse `json:"pending_approvals"`
	NextPendingID    uint64            `json:"next_pending_id"`
	CreatedAt        time.Time         `json:"created_at"`
}

// PendingResponse is one queued transfer awaiting owner resolution.
type PendingResponse struct {
	ID           uint64 `json:"id"`
	To           string `json:"to"`
	Amount       uint64 `json:"amount"`
	CreatedEpoch uint64 `json:"created_epoch"`
	Reason       string `json:"reason"`
}

// FromVault converts a vault snapshot to an HTTP response.
func FromVault(v *models.Vault) *VaultResponse {
	pending := make([]PendingResponse, 0, len(v.Pending.Items))
	for _, p := range v.Pending.Items {
		pending = append(pending, PendingResponse{
			ID:           p.ID,
			To:           string(p.To),
			Amount:       p.Amount,
			CreatedEpoch: p.CreatedEpoch,
			Reason:       string(p.Reason),
		})
	}

	return &VaultResponse{
		ID:               v.ID,
		Owner:            string(v.Owner),
		Agent:            string(v.Agent),
		Balance:          v.Balance,
		MaxPerTx:         v.Limits.MaxPerTx,
		MaxDaily:         v.Limits.MaxDaily,
		AutoApproveLimit: v.Limits.AutoApproveLimit,
		MaxTxPerEpoch:    v.Limits.MaxTxPerEpoch,
		SpentThisEpoch:   v.Spend.SpentThisEpoch,
		TxCountThisEpoch: v.Spend.TxCountThisEpoch,
		LastEpoch:        v.Spend.LastEpoch,
		Denylist:         v.Denylist.Slice(),
		Allowlist:        v.Allowlist.Slice(),
		Pending:          pending,
		NextPendingID:    v.Pending.NextID,
		CreatedAt:        v.CreatedAt,
	}
}

// TransferResponse is the HTTP response for POST /vaults/{id}/transfers.
type TransferResponse struct {
	Result      string  `json:"result"`
	Reason      string  `json:"reason,omitempty"`
	PendingID   *uint64 `json:"pending_id,omitempty"`
	TxReference string  `json:"tx_reference,omitempty"`
}

// FromTransferReceipt converts a transfer receipt to an HTTP response.
func FromTransferReceipt(receipt service.TransferReceipt) *TransferResponse {
	resp := &TransferResponse{
		Result:      string(receipt.Result),
		Reason:      string(receipt.Reason),
		TxReference: receipt.TxReference,
	}
	if receipt.Reason != "" {
		pid := receipt.PendingID
		resp.PendingID = &pid
	}
	return resp
}

// ResolutionResponse is the HTTP response for approve and reject.
type ResolutionResponse struct {
	Result      string          `json:"result"`
	BlockReason string          `json:"block_reason,omitempty"`
	TxReference string          `json:"tx_reference,omitempty"`
	Entry       PendingResponse `json:"entry"`
}

// FromResolutionReceipt converts a resolution receipt to an HTTP response.
func FromResolutionReceipt(receipt service.ResolutionReceipt) *ResolutionResponse {
	return &ResolutionResponse{
		Result:      string(receipt.Result),
		BlockReason: string(receipt.BlockReason),
		TxReference: receipt.TxReference,
		Entry: PendingResponse{
			ID:           receipt.Entry.ID,
			To:           string(receipt.Entry.To),
			Amount:       receipt.Entry.Amount,
			CreatedEpoch: receipt.Entry.CreatedEpoch,
			Reason:       string(receipt.Entry.Reason),
		},
	}
}
