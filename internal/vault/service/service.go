// Package service orchestrates vault operations: it owns the preconditions,
// applies engine decisions to vault state through the store's exclusive
// Update, and fans terminal outcomes out to the audit mirror and the event
// stream after the authoritative state change is committed.
package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"agentvault/internal/audit"
	"agentvault/internal/epoch"
	"agentvault/internal/vault/engine"
	"agentvault/internal/vault/metrics"
	"agentvault/internal/vault/models"
	"agentvault/internal/vault/store"
	dErrors "agentvault/pkg/domain-errors"
	"agentvault/pkg/platform/sentinel"
	"agentvault/pkg/requestcontext"
)

// AuditSink receives terminal outcome records. Emit must not block; the
// service calls it after the authoritative outcome is final.
type AuditSink interface {
	Emit(entry audit.Entry)
}

// Service implements every public vault operation as one atomic state
// transition.
type Service struct {
	store   store.VaultStore
	clock   epoch.Clock
	logger  *slog.Logger
	sink    AuditSink
	stream  audit.EventStream
	metrics *metrics.Metrics
}

// Option configures the Service.
type Option func(*Service)

// WithAuditSink mirrors terminal outcomes to the given sink.
func WithAuditSink(sink AuditSink) Option {
	return func(s *Service) { s.sink = sink }
}

// WithEventStream publishes decision events to the given stream.
func WithEventStream(stream audit.EventStream) Option {
	return func(s *Service) { s.stream = stream }
}

// WithMetrics records outcome counters.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// New constructs the service.
func New(st store.VaultStore, clock epoch.Clock, logger *slog.Logger, opts ...Option) (*Service, error) {
	if st == nil {
		return nil, fmt.Errorf("vault store is required")
	}
	s := &Service{store: st, clock: clock, logger: logger}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// CreateVaultParams carries the initial configuration for a new vault.
type CreateVaultParams struct {
	Owner          models.Address
	Agent          models.Address
	Limits         models.Limits
	InitialDeposit uint64
}

// CreateVault provisions a vault. All limit values are accepted as given,
// including zero and an auto-approve limit above the per-tx cap; the owner
// is trusted to keep limits sane.
func (s *Service) CreateVault(ctx context.Context, p CreateVaultParams) (*models.Vault, error) {
	if p.Owner == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "owner address is required")
	}

	v := models.NewVault(p.Owner, p.Agent, p.Limits, p.InitialDeposit, requestcontext.Now(ctx))
	v.Spend.LastEpoch = s.clock.At(requestcontext.Now(ctx))

	if err := s.store.Create(ctx, v); err != nil {
		return nil, s.storeErr(err)
	}

	s.metrics.ObserveVaultCreated()
	s.publish(ctx, models.Event{Name: models.EventVaultCreated, VaultID: v.ID})
	s.logger.InfoContext(ctx, "vault created",
		"vault_id", v.ID,
		"owner", v.Owner,
		"agent", v.Agent,
	)
	return v, nil
}

// GetVault returns a point-in-time snapshot of the full vault state.
func (s *Service) GetVault(ctx context.Context, id uuid.UUID) (*models.Vault, error) {
	v, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, s.storeErr(err)
	}
	return v, nil
}

// Deposit adds funds. Anyone may deposit; the balance increases
// unconditionally apart from the overflow guard.
func (s *Service) Deposit(ctx context.Context, vaultID uuid.UUID, amount uint64) error {
	if amount == 0 {
		return dErrors.New(dErrors.CodeInvalidAmount, "deposit amount must be nonzero")
	}
	err := s.store.Update(ctx, vaultID, func(v *models.Vault) error {
		if v.Balance > ^uint64(0)-amount {
			return dErrors.New(dErrors.CodeInvalidAmount, "deposit would overflow balance")
		}
		v.Balance += amount
		return nil
	})
	return s.storeErr(err)
}

// Withdraw removes funds; owner only.
func (s *Service) Withdraw(ctx context.Context, vaultID uuid.UUID, caller models.Address, amount uint64) error {
	if amount == 0 {
		return dErrors.New(dErrors.CodeInvalidAmount, "withdraw amount must be nonzero")
	}
	err := s.store.Update(ctx, vaultID, func(v *models.Vault) error {
		if err := ownerOnly(v, caller); err != nil {
			return err
		}
		if amount > v.Balance {
			return dErrors.New(dErrors.CodeInsufficientBalance, "withdraw amount exceeds balance")
		}
		v.Balance -= amount
		return nil
	})
	return s.storeErr(err)
}

// TransferReceipt describes the successful outcomes of RequestTransfer.
// Hard blocks are not receipts: the operation aborts with a coded error and
// no event, and the only durable trace is the audit mirror record.
type TransferReceipt struct {
	Result      audit.Result // executed or queued
	Reason      models.QueueReason
	PendingID   uint64
	TxReference string
}

// RequestTransfer is the agent's entry point: classify, then execute or
// queue within one exclusive store update. The epoch window is rolled over
// before any limit check so the request is always evaluated against the
// current window.
func (s *Service) RequestTransfer(ctx context.Context, vaultID uuid.UUID, caller, to models.Address, amount uint64) (TransferReceipt, error) {
	currentEpoch := s.clock.At(requestcontext.Now(ctx))

	var receipt TransferReceipt
	var agentAddr models.Address

	err := s.store.Update(ctx, vaultID, func(v *models.Vault) error {
		agentAddr = v.Agent
		if !v.HasAgent() || caller != v.Agent {
			return dErrors.New(dErrors.CodeUnauthorized, "caller is not the vault agent")
		}
		if amount == 0 {
			return dErrors.New(dErrors.CodeInvalidAmount, "transfer amount must be nonzero")
		}

		v.Spend.Rollover(currentEpoch)

		decision := engine.Classify(v, to, amount)
		switch decision.Kind {
		case models.DecisionBlock:
			return blockError(decision.BlockReason)
		case models.DecisionQueue:
			entry := v.Pending.Enqueue(to, amount, currentEpoch, decision.QueueReason)
			receipt = TransferReceipt{
				Result:    audit.ResultQueued,
				Reason:    decision.QueueReason,
				PendingID: entry.ID,
			}
			return nil
		default:
			executeTransfer(v, amount)
			receipt = TransferReceipt{
				Result:      audit.ResultExecuted,
				TxReference: uuid.NewString(),
			}
			return nil
		}
	})
	if err != nil {
		err = s.storeErr(err)
		// The abort left no authoritative record; the mirror record is the
		// only durable trace of the refusal.
		if reason, hardBlock := abortReason(err); hardBlock {
			s.audit(ctx, audit.Entry{
				VaultID: vaultID,
				Agent:   string(agentAddr),
				Action:  audit.ActionRequestTransfer,
				To:      string(to),
				Amount:  models.FormatSUI(amount),
				Result:  audit.ResultBlocked,
				Reason:  reason,
			})
			s.metrics.ObserveDecision(string(audit.ResultBlocked), reason)
		}
		return TransferReceipt{}, err
	}

	entry := audit.Entry{
		VaultID:     vaultID,
		Agent:       string(caller),
		Action:      audit.ActionRequestTransfer,
		To:          string(to),
		Amount:      models.FormatSUI(amount),
		Result:      receipt.Result,
		Reason:      string(receipt.Reason),
		TxReference: receipt.TxReference,
	}
	s.audit(ctx, entry)
	s.metrics.ObserveDecision(string(receipt.Result), string(receipt.Reason))
	if receipt.Result == audit.ResultQueued {
		s.metrics.ObservePendingAdded()
	}

	if receipt.Result == audit.ResultExecuted {
		s.publish(ctx, models.Event{
			Name:        models.EventTransferExecuted,
			VaultID:     vaultID,
			To:          to,
			Amount:      amount,
			TxReference: receipt.TxReference,
		})
	} else {
		s.publish(ctx, models.Event{
			Name:      models.EventTransferQueued,
			VaultID:   vaultID,
			To:        to,
			Amount:    amount,
			Reason:    string(receipt.Reason),
			PendingID: receipt.PendingID,
		})
	}
	return receipt, nil
}

// ResolutionReceipt describes how a pending transfer was resolved.
type ResolutionReceipt struct {
	Result      audit.Result // approved, blocked, or rejected
	Entry       models.PendingTransfer
	BlockReason models.BlockReason
	TxReference string
}

// ApprovePending resolves a queued transfer; owner only. Hard checks run
// again against current state - denylist, limits, and balance may all have
// changed since queuing - and use the epoch at approval time. A now-failing
// hard check discards the entry and reports a blocked resolution rather
// than re-queuing.
func (s *Service) ApprovePending(ctx context.Context, vaultID uuid.UUID, caller models.Address, pendingID uint64) (ResolutionReceipt, error) {
	currentEpoch := s.clock.At(requestcontext.Now(ctx))

	var receipt ResolutionReceipt
	var agentAddr models.Address

	err := s.store.Update(ctx, vaultID, func(v *models.Vault) error {
		agentAddr = v.Agent
		if err := ownerOnly(v, caller); err != nil {
			return err
		}
		entry, ok := v.Pending.Take(pendingID)
		if !ok {
			return dErrors.Newf(dErrors.CodePendingNotFound, "pending transfer %d not found", pendingID)
		}

		v.Spend.Rollover(currentEpoch)

		if reason, blocked := engine.HardCheck(v, entry.To, entry.Amount); blocked {
			// Committed: the entry is discarded, only the debit is skipped.
			receipt = ResolutionReceipt{Result: audit.ResultBlocked, Entry: entry, BlockReason: reason}
			return nil
		}

		executeTransfer(v, entry.Amount)
		receipt = ResolutionReceipt{
			Result:      audit.ResultApproved,
			Entry:       entry,
			TxReference: uuid.NewString(),
		}
		return nil
	})
	if err != nil {
		return ResolutionReceipt{}, s.storeErr(err)
	}

	s.audit(ctx, audit.Entry{
		VaultID:     vaultID,
		Agent:       string(agentAddr),
		Action:      audit.ActionApprovePending,
		To:          string(receipt.Entry.To),
		Amount:      models.FormatSUI(receipt.Entry.Amount),
		Result:      receipt.Result,
		Reason:      string(receipt.BlockReason),
		TxReference: receipt.TxReference,
	})
	s.metrics.ObserveResolution(string(receipt.Result))
	s.metrics.ObservePendingRemoved()

	if receipt.Result == audit.ResultApproved {
		s.publish(ctx, models.Event{
			Name:        models.EventTransferApproved,
			VaultID:     vaultID,
			To:          receipt.Entry.To,
			Amount:      receipt.Entry.Amount,
			PendingID:   receipt.Entry.ID,
			TxReference: receipt.TxReference,
		})
	}
	return receipt, nil
}

// RejectPending discards a queued transfer; owner only. No balance effect.
func (s *Service) RejectPending(ctx context.Context, vaultID uuid.UUID, caller models.Address, pendingID uint64) (ResolutionReceipt, error) {
	var receipt ResolutionReceipt
	var agentAddr models.Address

	err := s.store.Update(ctx, vaultID, func(v *models.Vault) error {
		agentAddr = v.Agent
		if err := ownerOnly(v, caller); err != nil {
			return err
		}
		entry, ok := v.Pending.Take(pendingID)
		if !ok {
			return dErrors.Newf(dErrors.CodePendingNotFound, "pending transfer %d not found", pendingID)
		}
		receipt = ResolutionReceipt{Result: audit.ResultRejected, Entry: entry}
		return nil
	})
	if err != nil {
		return ResolutionReceipt{}, s.storeErr(err)
	}

	s.audit(ctx, audit.Entry{
		VaultID: vaultID,
		Agent:   string(agentAddr),
		Action:  audit.ActionRejectPending,
		To:      string(receipt.Entry.To),
		Amount:  models.FormatSUI(receipt.Entry.Amount),
		Result:  audit.ResultRejected,
		Reason:  string(receipt.Entry.Reason),
	})
	s.metrics.ObserveResolution(string(audit.ResultRejected))
	s.metrics.ObservePendingRemoved()
	s.publish(ctx, models.Event{
		Name:      models.EventTransferRejected,
		VaultID:   vaultID,
		To:        receipt.Entry.To,
		Amount:    receipt.Entry.Amount,
		PendingID: receipt.Entry.ID,
	})
	return receipt, nil
}

// UpdateLimits replaces all four limits in place; owner only. No
// cross-field validation by design.
func (s *Service) UpdateLimits(ctx context.Context, vaultID uuid.UUID, caller models.Address, limits models.Limits) error {
	return s.ownerUpdate(ctx, vaultID, caller, func(v *models.Vault) {
		v.Limits = limits
	})
}

// AddToDenylist adds an address to the denylist; idempotent.
func (s *Service) AddToDenylist(ctx context.Context, vaultID uuid.UUID, caller, addr models.Address) error {
	return s.ownerUpdate(ctx, vaultID, caller, func(v *models.Vault) {
		v.Denylist.Add(addr)
	})
}

// RemoveFromDenylist removes an address from the denylist; idempotent.
func (s *Service) RemoveFromDenylist(ctx context.Context, vaultID uuid.UUID, caller, addr models.Address) error {
	return s.ownerUpdate(ctx, vaultID, caller, func(v *models.Vault) {
		v.Denylist.Remove(addr)
	})
}

// AddToAllowlist adds an address to the allowlist; idempotent. The first
// addition switches the vault from unrestricted to allowlist-gated.
func (s *Service) AddToAllowlist(ctx context.Context, vaultID uuid.UUID, caller, addr models.Address) error {
	return s.ownerUpdate(ctx, vaultID, caller, func(v *models.Vault) {
		v.Allowlist.Add(addr)
	})
}

// RemoveFromAllowlist removes an address from the allowlist; idempotent.
func (s *Service) RemoveFromAllowlist(ctx context.Context, vaultID uuid.UUID, caller, addr models.Address) error {
	return s.ownerUpdate(ctx, vaultID, caller, func(v *models.Vault) {
		v.Allowlist.Remove(addr)
	})
}

// SetAgent delegates spending authority to a new agent; owner only.
func (s *Service) SetAgent(ctx context.Context, vaultID uuid.UUID, caller, agent models.Address) error {
	if agent == "" {
		return dErrors.New(dErrors.CodeValidation, "agent address is required")
	}
	return s.ownerUpdate(ctx, vaultID, caller, func(v *models.Vault) {
		v.Agent = agent
	})
}

// RevokeAgent removes spending authority; all future transfer requests fail
// unauthorized until a new agent is set.
func (s *Service) RevokeAgent(ctx context.Context, vaultID uuid.UUID, caller models.Address) error {
	return s.ownerUpdate(ctx, vaultID, caller, func(v *models.Vault) {
		v.Agent = ""
	})
}

// ownerUpdate wraps an owner-gated, infallible mutation in one exclusive
// store update.
func (s *Service) ownerUpdate(ctx context.Context, vaultID uuid.UUID, caller models.Address, mutate func(*models.Vault)) error {
	err := s.store.Update(ctx, vaultID, func(v *models.Vault) error {
		if err := ownerOnly(v, caller); err != nil {
			return err
		}
		mutate(v)
		return nil
	})
	return s.storeErr(err)
}

func ownerOnly(v *models.Vault, caller models.Address) error {
	if caller != v.Owner {
		return dErrors.New(dErrors.CodeUnauthorized, "caller is not the vault owner")
	}
	return nil
}

// executeTransfer applies the Executed side effects: debit plus window
// accounting.
func executeTransfer(v *models.Vault, amount uint64) {
	v.Balance -= amount
	v.Spend.SpentThisEpoch += amount
	v.Spend.TxCountThisEpoch++
}

// blockError maps a hard-block reason onto its domain error so the abort
// reason is classifiable by callers.
func blockError(reason models.BlockReason) error {
	switch reason {
	case models.BlockRecipientDenylisted:
		return dErrors.New(dErrors.CodeRecipientDenylisted, "recipient is denylisted")
	case models.BlockExceedsPerTxLimit:
		return dErrors.New(dErrors.CodeExceedsPerTxLimit, "amount exceeds per-transaction limit")
	case models.BlockExceedsDailyLimit:
		return dErrors.New(dErrors.CodeExceedsDailyLimit, "amount exceeds daily limit")
	default:
		return dErrors.New(dErrors.CodeInsufficientBalance, "amount exceeds vault balance")
	}
}

// abortReason classifies an abort error back into an audit reason. Only
// policy refusals are mirrored; authorization and lookup failures are not
// decision outcomes.
func abortReason(err error) (string, bool) {
	for _, code := range []dErrors.Code{
		dErrors.CodeRecipientDenylisted,
		dErrors.CodeExceedsPerTxLimit,
		dErrors.CodeExceedsDailyLimit,
		dErrors.CodeInsufficientBalance,
		dErrors.CodeInvalidAmount,
	} {
		if dErrors.HasCode(err, code) {
			return string(code), true
		}
	}
	return "", false
}

func (s *Service) storeErr(err error) error {
	switch {
	case err == nil:
		return nil
	case dErrors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, "vault not found")
	case dErrors.Is(err, sentinel.ErrConflict):
		return dErrors.New(dErrors.CodeConflict, "vault already exists")
	default:
		return err
	}
}

func (s *Service) audit(ctx context.Context, entry audit.Entry) {
	if s.sink == nil {
		return
	}
	entry.Timestamp = requestcontext.Now(ctx).UTC()
	s.sink.Emit(entry)
}

func (s *Service) publish(ctx context.Context, event models.Event) {
	if s.stream == nil {
		return
	}
	s.stream.Publish(ctx, event)
}
