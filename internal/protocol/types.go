package protocol

import (
	"github.com/ethereum/go-ethereum/common"
)

// Amounts travel as base-10 strings so values above 2^53 survive JSON.

// LockRequest asks the ledger to encumber part of a holder's balance
type LockRequest struct {
	Caller      common.Address `json:"caller"`
	Holder      common.Address `json:"holder"`
	Amount      string         `json:"amount"`
	ReleaseTime uint64         `json:"release_time"` // unix seconds
}

// ReleaseRequest releases one lock (Index set) or every expired lock (Index nil)
type ReleaseRequest struct {
	Caller common.Address `json:"caller"`
	Holder common.Address `json:"holder"`
	Index  *int           `json:"index,omitempty"`
}

// TransferRequest moves funds. From is only read by the operator-transfer endpoint;
// plain transfers always debit the caller.
type TransferRequest struct {
	Caller common.Address `json:"caller"`
	From   common.Address `json:"from,omitempty"`
	To     common.Address `json:"to"`
	Amount string         `json:"amount"`
}

// TransferWithLockRequest moves funds and locks them on the recipient
type TransferWithLockRequest struct {
	Caller      common.Address `json:"caller"`
	To          common.Address `json:"to"`
	Amount      string         `json:"amount"`
	ReleaseTime uint64         `json:"release_time"`
}

// MintRequest credits new units to a holder
type MintRequest struct {
	Caller common.Address `json:"caller"`
	To     common.Address `json:"to"`
	Amount string         `json:"amount"`
}

// BurnRequest destroys units from the caller's own unlocked balance
type BurnRequest struct {
	Caller common.Address `json:"caller"`
	Amount string         `json:"amount"`
}

// HolderRequest is the body of every privileged call that targets one holder
// (freeze, register, approve, administrator transfer, ...)
type HolderRequest struct {
	Caller common.Address `json:"caller"`
	Holder common.Address `json:"holder"`
}

// CallerRequest carries only the caller identity (pause, snapshot creation)
type CallerRequest struct {
	Caller common.Address `json:"caller"`
}

// SnapshotHoldersRequest adds holders to an existing snapshot
type SnapshotHoldersRequest struct {
	Caller  common.Address   `json:"caller"`
	Holders []common.Address `json:"holders"`
}

// OpResponse is returned by every mutating endpoint
type OpResponse struct {
	Success bool   `json:"success"`
	OpID    string `json:"op_id,omitempty"`
	Error   string `json:"error,omitempty"`
	Count   *int   `json:"count,omitempty"` // released locks, holders added to a snapshot

	// SnapshotID is set by snapshot creation
	SnapshotID uint64 `json:"snapshot_id,omitempty"`
}

// LocksResponse describes a holder's locks as parallel sequences
type LocksResponse struct {
	Holder       common.Address `json:"holder"`
	Balance      string         `json:"balance"`
	Locked       string         `json:"locked"`
	Available    string         `json:"available"`
	Count        int            `json:"count"`
	ReleaseTimes []uint64       `json:"release_times"`
	Amounts      []string       `json:"amounts"`
	Frozen       bool           `json:"frozen"`
}

// LockSummaryResponse aggregates lock state across all registered holders
type LockSummaryResponse struct {
	Holders     int    `json:"holders"`
	TotalLocked string `json:"total_locked"`
	TotalLocks  int    `json:"total_locks"`
}

// SnapshotResponse describes a snapshot
type SnapshotResponse struct {
	ID          uint64           `json:"id"`
	TotalSupply string           `json:"total_supply"`
	Timestamp   uint64           `json:"timestamp"`
	Count       int              `json:"count"`
	Holders     []common.Address `json:"holders"`
}

// SnapshotBalanceResponse is a holder's recorded balance in a snapshot
type SnapshotBalanceResponse struct {
	ID       uint64         `json:"id"`
	Holder   common.Address `json:"holder"`
	Balance  string         `json:"balance"`
	Included bool           `json:"included"`
}

// AuthResponse lists the privileged callers
type AuthResponse struct {
	Administrator common.Address   `json:"administrator"`
	Approved      []common.Address `json:"approved"`
}
