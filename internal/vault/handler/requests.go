package handler

import (
	"strings"

	"agentvault/internal/vault/models"
	dErrors "agentvault/pkg/domain-errors"
)

const maxAddressLen = 128

func validAddress(field, addr string) error {
	if addr == "" {
		return dErrors.Newf(dErrors.CodeValidation, "%s is required", field)
	}
	if len(addr) > maxAddressLen {
		return dErrors.Newf(dErrors.CodeValidation, "%s must be at most %d characters", field, maxAddressLen)
	}
	return nil
}

// CreateVaultRequest is the HTTP request body for POST /vaults. Amounts are
// in MIST. The owner is the authenticated caller, not a body field.
type CreateVaultRequest struct {
	Agent            string `json:"agent"`
	MaxPerTx         uint64 `json:"max_per_tx"`
	MaxDaily         uint64 `json:"max_daily"`
	AutoApproveLimit uint64 `json:"auto_approve_limit"`
	MaxTxPerEpoch    uint64 `json:"max_tx_per_epoch"`
	InitialDeposit   uint64 `json:"initial_deposit"`
}

// Validate validates and parses the request.
// Implements the Validatable interface for httputil.DecodeAndPrepare.
func (r *CreateVaultRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}

	r.Agent = strings.TrimSpace(r.Agent)
	if r.Agent != "" && len(r.Agent) > maxAddressLen {
		return dErrors.Newf(dErrors.CodeValidation, "agent must be at most %d characters", maxAddressLen)
	}
	return nil
}

// ParsedLimits returns the spending limits carried by the request.
func (r *CreateVaultRequest) ParsedLimits() models.Limits {
	return models.Limits{
		MaxPerTx:         r.MaxPerTx,
		MaxDaily:         r.MaxDaily,
		AutoApproveLimit: r.AutoApproveLimit,
		MaxTxPerEpoch:    r.MaxTxPerEpoch,
	}
}

// AmountRequest is the HTTP request body for deposit and withdraw. The
// amount is in MIST.
type AmountRequest struct {
	Amount uint64 `json:"amount"`
}

// Validate implements the Validatable interface.
func (r *AmountRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	if r.Amount == 0 {
		return dErrors.New(dErrors.CodeInvalidAmount, "amount must be positive")
	}
	return nil
}

// TransferRequest is the HTTP request body for POST /vaults/{id}/transfers.
type TransferRequest struct {
	To     string `json:"to"`
	Amount uint64 `json:"amount"`
}

// Validate implements the Validatable interface.
func (r *TransferRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	r.To = strings.TrimSpace(r.To)
	if err := validAddress("to", r.To); err != nil {
		return err
	}
	if r.Amount == 0 {
		return dErrors.New(dErrors.CodeInvalidAmount, "amount must be positive")
	}
	return nil
}

// LimitsRequest is the HTTP request body for PUT /vaults/{id}/limits. All
// four limits are replaced together; zero values are legal limits, not
// omissions.
type LimitsRequest struct {
	MaxPerTx         uint64 `json:"max_per_tx"`
	MaxDaily         uint64 `json:"max_daily"`
	AutoApproveLimit uint64 `json:"auto_approve_limit"`
	MaxTxPerEpoch    uint64 `json:"max_tx_per_epoch"`
}

// Validate implements the Validatable interface.
func (r *LimitsRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	return nil
}

// ParsedLimits returns the limits carried by the request.
func (r *LimitsRequest) ParsedLimits() models.Limits {
	return models.Limits{
		MaxPerTx:         r.MaxPerTx,
		MaxDaily:         r.MaxDaily,
		AutoApproveLimit: r.AutoApproveLimit,
		MaxTxPerEpoch:    r.MaxTxPerEpoch,
	}
}

// AgentRequest is the HTTP request body for PUT /vaults/{id}/agent.
type AgentRequest struct {
	Agent string `json:"agent"`
}

// Validate implements the Validatable interface.
func (r *AgentRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	r.Agent = strings.TrimSpace(r.Agent)
	return validAddress("agent", r.Agent)
}
