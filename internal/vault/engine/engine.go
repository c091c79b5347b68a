// Package engine holds the pure authorization rules for agent transfers.
// This is pure domain logic - no I/O, no side effects. The service applies
// the resulting decision to vault state; the engine only classifies.
package engine

import "agentvault/internal/vault/models"

// HardCheck runs the abort-worthy checks against current vault state and
// returns the first failing reason. These are evaluated both on the initial
// request and again when the owner approves a queued transfer, since
// denylist, limits, and balance may all have changed in the interim.
//
// Order is load-bearing: the denylist outranks every amount check so a
// denylisted recipient is never described in terms of limits, and is checked
// before any soft path so it can never be offered a queue slot.
func HardCheck(v *models.Vault, to models.Address, amount uint64) (models.BlockReason, bool) {
	if v.Denylist.Contains(to) {
		return models.BlockRecipientDenylisted, true
	}
	if amount > v.Limits.MaxPerTx {
		return models.BlockExceedsPerTxLimit, true
	}
	// Overflow-safe form of spent+amount > maxDaily; spent can exceed the
	// cap when the owner lowered it mid-epoch.
	if v.Spend.SpentThisEpoch > v.Limits.MaxDaily || amount > v.Limits.MaxDaily-v.Spend.SpentThisEpoch {
		return models.BlockExceedsDailyLimit, true
	}
	if amount > v.Balance {
		return models.BlockInsufficientBalance, true
	}
	return "", false
}

// Classify maps a transfer request onto execute/queue/block. It assumes the
// spend window has already been rolled over to the current epoch and that
// caller and amount preconditions were checked by the service.
//
// Hard blocks come first (1-4), then the soft checks in their own fixed
// order (5-7):
//  5. Per-epoch rate cap - rate limiting requires sign-off rather than
//     blocking indefinitely.
//  6. Allowlist - an empty allowlist means unrestricted; deny has already
//     won by this point when the lists overlap.
//  7. Auto-approve threshold - unreachable when the owner sets it above
//     MaxPerTx, which is permitted configuration.
func Classify(v *models.Vault, to models.Address, amount uint64) models.Decision {
	if reason, blocked := HardCheck(v, to, amount); blocked {
		return models.Block(reason)
	}

	if v.Spend.TxCountThisEpoch >= v.Limits.MaxTxPerEpoch {
		return models.Queue(models.QueueEpochTxCountExceeded)
	}
	if v.Allowlist.Len() > 0 && !v.Allowlist.Contains(to) {
		return models.Queue(models.QueueRecipientNotAllowlisted)
	}
	if amount > v.Limits.AutoApproveLimit {
		return models.Queue(models.QueueExceedsAutoApprove)
	}

	return models.Execute()
}
