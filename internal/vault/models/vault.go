// Package models holds the vault aggregate and its owned collections. The
// vault is only ever reached through its id via the store, which grants one
// operation exclusive access at a time; nothing here needs internal locking.
package models

import (
	"encoding/json"
	"sort"
	"time"

	"github.com/google/uuid"
)

// Address identifies an owner, agent, or transfer recipient on the ledger.
type Address string

// MISTPerSUI is the fixed-point scale for amounts: 1 SUI = 1e9 MIST. All
// balances and limits are unsigned MIST.
const MISTPerSUI uint64 = 1_000_000_000

// Limits are the owner-mutable guardrails. All fields accept any unsigned
// value including zero; a zero MaxPerTx effectively disables the agent. No
// cross-field validation is performed: AutoApproveLimit above MaxPerTx is
// permitted configuration and simply makes the auto-approve check
// unreachable for that vault.
type Limits struct {
	MaxPerTx         uint64 `json:"max_per_tx"`
	MaxDaily         uint64 `json:"max_daily"`
	AutoApproveLimit uint64 `json:"auto_approve_limit"`
	MaxTxPerEpoch    uint64 `json:"max_tx_per_epoch"`
}

// SpendWindow tracks rolling per-epoch accounting. Counters are lazily reset:
// every operation calls Rollover with the current epoch before reading them.
type SpendWindow struct {
	SpentThisEpoch   uint64 `json:"spent_this_epoch"`
	TxCountThisEpoch uint64 `json:"tx_count_this_epoch"`
	LastEpoch        uint64 `json:"last_epoch"`
}

// Rollover resets the counters when the window has moved on. It is
// idempotent within one epoch and reports whether a reset happened.
func (w *SpendWindow) Rollover(current uint64) bool {
	if w.LastEpoch == current {
		return false
	}
	w.SpentThisEpoch = 0
	w.TxCountThisEpoch = 0
	w.LastEpoch = current
	return true
}

// AddressSet is a membership set with O(1) mutation and lookup. It
// serializes as a sorted JSON array so snapshots are deterministic.
type AddressSet map[Address]struct{}

func (s AddressSet) Contains(addr Address) bool {
	_, ok := s[addr]
	return ok
}

// Add inserts addr; adding a present address is a no-op.
func (s AddressSet) Add(addr Address) { s[addr] = struct{}{} }

// Remove deletes addr; removing an absent address is a no-op.
func (s AddressSet) Remove(addr Address) { delete(s, addr) }

func (s AddressSet) Len() int { return len(s) }

// Slice returns the members sorted lexicographically.
func (s AddressSet) Slice() []Address {
	out := make([]Address, 0, len(s))
	for addr := range s {
		out = append(out, addr)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// MarshalJSON encodes the set as a sorted array.
func (s AddressSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Slice())
}

// UnmarshalJSON decodes an array of addresses.
func (s *AddressSet) UnmarshalJSON(data []byte) error {
	var addrs []Address
	if err := json.Unmarshal(data, &addrs); err != nil {
		return err
	}
	set := make(AddressSet, len(addrs))
	for _, addr := range addrs {
		set[addr] = struct{}{}
	}
	*s = set
	return nil
}

// Clone returns an independent copy.
func (s AddressSet) Clone() AddressSet {
	out := make(AddressSet, len(s))
	for addr := range s {
		out[addr] = struct{}{}
	}
	return out
}

// PendingTransfer is a queued request awaiting the owner's decision. It is
// created on a soft block and destroyed by approve or reject, never mutated.
type PendingTransfer struct {
	ID           uint64      `json:"id"`
	To           Address     `json:"to"`
	Amount       uint64      `json:"amount"`
	CreatedEpoch uint64      `json:"created_epoch"`
	Reason       QueueReason `json:"reason"`
}

// PendingQueue owns the ordered pending transfers and their id allocation.
// Ids are monotone for the vault's lifetime and never reused, even after an
// entry is removed.
type PendingQueue struct {
	Items  []PendingTransfer `json:"items"`
	NextID uint64            `json:"next_id"`
}

// Enqueue allocates the next id and appends a new entry.
func (q *PendingQueue) Enqueue(to Address, amount, createdEpoch uint64, reason QueueReason) PendingTransfer {
	entry := PendingTransfer{
		ID:           q.NextID,
		To:           to,
		Amount:       amount,
		CreatedEpoch: createdEpoch,
		Reason:       reason,
	}
	q.NextID++
	q.Items = append(q.Items, entry)
	return entry
}

// Take removes and returns the entry with the given id, preserving the order
// of the remainder. ok is false when the id is absent (already resolved).
func (q *PendingQueue) Take(id uint64) (PendingTransfer, bool) {
	for i, entry := range q.Items {
		if entry.ID == id {
			q.Items = append(q.Items[:i], q.Items[i+1:]...)
			return entry, true
		}
	}
	return PendingTransfer{}, false
}

func (q *PendingQueue) Len() int { return len(q.Items) }

// Clone returns an independent copy.
func (q PendingQueue) Clone() PendingQueue {
	out := PendingQueue{NextID: q.NextID}
	if len(q.Items) > 0 {
		out.Items = make([]PendingTransfer, len(q.Items))
		copy(out.Items, q.Items)
	}
	return out
}

// Vault is the root entity: one custodied balance per agent-owner pair.
// Pending transfers do NOT reserve balance; hard checks run again at
// approval time against current state.
type Vault struct {
	ID        uuid.UUID    `json:"id"`
	Owner     Address      `json:"owner"`
	Agent     Address      `json:"agent"` // empty when revoked
	Balance   uint64       `json:"balance"`
	Limits    Limits       `json:"limits"`
	Spend     SpendWindow  `json:"spend"`
	Denylist  AddressSet   `json:"denylist"`
	Allowlist AddressSet   `json:"allowlist"` // empty = unrestricted
	Pending   PendingQueue `json:"pending"`
	CreatedAt time.Time    `json:"created_at"`
}

// NewVault constructs a vault with fresh collections.
func NewVault(owner, agent Address, limits Limits, initialDeposit uint64, createdAt time.Time) *Vault {
	return &Vault{
		ID:        uuid.New(),
		Owner:     owner,
		Agent:     agent,
		Balance:   initialDeposit,
		Limits:    limits,
		Denylist:  make(AddressSet),
		Allowlist: make(AddressSet),
		CreatedAt: createdAt,
	}
}

// HasAgent reports whether spending authority is currently delegated.
func (v *Vault) HasAgent() bool { return v.Agent != "" }

// Clone deep-copies the vault so stores can hand out snapshots and run
// mutations on scratch copies.
func (v *Vault) Clone() *Vault {
	out := *v
	out.Denylist = v.Denylist.Clone()
	out.Allowlist = v.Allowlist.Clone()
	out.Pending = v.Pending.Clone()
	return &out
}
