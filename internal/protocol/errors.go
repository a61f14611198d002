package protocol

import "errors"

// Errors returned by ledger operations. A returned error always means nothing
// changed, in memory or in the store.
var (
	ErrInvalidHolder               = errors.New("invalid holder")
	ErrInvalidAmount               = errors.New("invalid amount")
	ErrInvalidReleaseTime          = errors.New("invalid release time")
	ErrInsufficientUnlockedBalance = errors.New("insufficient unlocked balance")
	ErrLockedBalanceExceeded       = errors.New("locked balance exceeded")
	ErrLockNotExpired              = errors.New("lock not expired")
	ErrIndexOutOfRange             = errors.New("lock index out of range")
	ErrNotAuthorized               = errors.New("not authorized")
	ErrAlreadyApproved             = errors.New("already approved")
	ErrAlreadyRegistered           = errors.New("already registered")
	ErrNotRegistered               = errors.New("not registered")
	ErrAccountFrozen               = errors.New("account frozen")
	ErrSystemPaused                = errors.New("system paused")
	ErrSnapshotNotFound            = errors.New("snapshot not found")
	ErrInsufficientBalance         = errors.New("insufficient balance")
	ErrStorage                     = errors.New("storage failure")
)
