package ledger

import (
	"fmt"
	"log"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/lockledger/lockledger/internal/protocol"
	"github.com/lockledger/lockledger/internal/unordered"
)

// CreateLock encumbers amount of holder's unlocked balance until releaseTime.
// The caller must be capable.
func (l *Ledger) CreateLock(caller, holder common.Address, amount *uint256.Int, releaseTime uint64) error {
	return l.update(func(c *change) error {
		if err := l.auth.Require(caller); err != nil {
			return err
		}
		if err := l.validateLock(holder, amount, releaseTime); err != nil {
			return err
		}
		l.addLock(c, holder, amount, releaseTime, caller)
		return nil
	})
}

// LockOwn lets a holder encumber its own unlocked balance
func (l *Ledger) LockOwn(holder common.Address, amount *uint256.Int, releaseTime uint64) error {
	return l.update(func(c *change) error {
		if err := l.validateLock(holder, amount, releaseTime); err != nil {
			return err
		}
		l.addLock(c, holder, amount, releaseTime, holder)
		return nil
	})
}

// ReleaseOne releases the expired lock at index. Indexes are not stable:
// every release moves the holder's last lock into the freed position.
func (l *Ledger) ReleaseOne(caller, holder common.Address, index int) error {
	return l.update(func(c *change) error {
		if err := l.checkRelease(caller, holder); err != nil {
			return err
		}
		locks := l.locks[holder]
		if index < 0 || index >= len(locks) {
			return fmt.Errorf("index %d of %d locks: %w", index, len(locks), protocol.ErrIndexOutOfRange)
		}
		if now := l.unix(); now < locks[index].ReleaseTime {
			return fmt.Errorf("lock %d releases at %d, now %d: %w", index, locks[index].ReleaseTime, now, protocol.ErrLockNotExpired)
		}
		l.removeLock(c, holder, index, caller)
		c.afterWrite = append(c.afterWrite, locksReleased.WithLabelValues("single").Inc)
		return nil
	})
}

// ReleaseAllExpired releases every lock of holder whose release time has
// passed and returns how many were released.
func (l *Ledger) ReleaseAllExpired(caller, holder common.Address) (int, error) {
	var n int
	err := l.update(func(c *change) error {
		if err := l.checkRelease(caller, holder); err != nil {
			return err
		}
		n = l.releaseExpired(c, holder, caller, "expired")
		return nil
	})
	return n, err
}

// checkRelease allows the holder itself or any capable caller to release
func (l *Ledger) checkRelease(caller, holder common.Address) error {
	if err := requireHolder(holder); err != nil {
		return err
	}
	if caller != holder {
		if err := l.auth.Require(caller); err != nil {
			return err
		}
	}
	if l.frozen[holder] {
		return fmt.Errorf("release for %s: %w", holder.Hex(), protocol.ErrAccountFrozen)
	}
	return nil
}

func (l *Ledger) validateLock(holder common.Address, amount *uint256.Int, releaseTime uint64) error {
	if err := requireHolder(holder); err != nil {
		return err
	}
	if err := requireAmount(amount); err != nil {
		return err
	}
	if err := l.validateReleaseTime(releaseTime); err != nil {
		return err
	}
	if avail := l.available(holder); avail.Lt(amount) {
		return fmt.Errorf("lock %s with %s unlocked: %w", amount.Dec(), avail.Dec(), protocol.ErrInsufficientUnlockedBalance)
	}
	return nil
}

// validateReleaseTime requires a release time strictly in the future and
// within the configured maximum lock duration
func (l *Ledger) validateReleaseTime(releaseTime uint64) error {
	now := l.unix()
	if releaseTime <= now {
		return fmt.Errorf("release time %d is not after %d: %w", releaseTime, now, protocol.ErrInvalidReleaseTime)
	}
	if l.maxDuration > 0 && releaseTime-now > uint64(l.maxDuration/time.Second) {
		return fmt.Errorf("release time %d exceeds maximum lock duration %s: %w", releaseTime, l.maxDuration, protocol.ErrInvalidReleaseTime)
	}
	return nil
}

// addLock appends a lock and grows the cached total in the same step
func (l *Ledger) addLock(c *change, holder common.Address, amount *uint256.Int, releaseTime uint64, operator common.Address) {
	amt := new(uint256.Int).Set(amount)
	l.keepLocks(c, holder)
	l.locks[holder] = append(l.locks[holder], Lock{ReleaseTime: releaseTime, Amount: amt})
	l.locked[holder] = new(uint256.Int).Add(l.lockedOf(holder), amt)

	c.emit(LockEvent{Holder: holder, Amount: new(uint256.Int).Set(amt), ReleaseTime: releaseTime, Operator: operator})
	c.afterWrite = append(c.afterWrite, locksCreated.Inc)
	log.Printf("[Ledger] Locked %s for %s until %d (operator %s)", amt.Dec(), holder.Hex(), releaseTime, operator.Hex())
}

// removeLock drops locks[holder][i] by swap-and-truncate and shrinks the cache
func (l *Ledger) removeLock(c *change, holder common.Address, i int, operator common.Address) {
	l.keepLocks(c, holder)
	lk := l.locks[holder][i]
	l.locks[holder] = unordered.RemoveAt(l.locks[holder], i)
	l.released(c, holder, lk, operator)
	l.tidy(holder)
}

// releaseExpired removes every lock with ReleaseTime <= now in one pass
func (l *Ledger) releaseExpired(c *change, holder, operator common.Address, trigger string) int {
	if _, n := l.expiredAmount(holder); n == 0 {
		return 0
	}
	l.keepLocks(c, holder)
	now := l.unix()
	locks, n := unordered.RemoveWhere(l.locks[holder],
		func(lk Lock) bool { return lk.ReleaseTime <= now },
		func(lk Lock) { l.released(c, holder, lk, operator) },
	)
	l.locks[holder] = locks
	l.tidy(holder)
	c.afterWrite = append(c.afterWrite, func() { locksReleased.WithLabelValues(trigger).Add(float64(n)) })
	return n
}

func (l *Ledger) released(c *change, holder common.Address, lk Lock, operator common.Address) {
	l.locked[holder] = new(uint256.Int).Sub(l.lockedOf(holder), lk.Amount)
	c.emit(UnlockEvent{Holder: holder, Amount: new(uint256.Int).Set(lk.Amount), Operator: operator})
	log.Printf("[Ledger] Unlocked %s for %s (operator %s)", lk.Amount.Dec(), holder.Hex(), operator.Hex())
}

// tidy forgets holders without locks so the maps only hold live entries
func (l *Ledger) tidy(holder common.Address) {
	if len(l.locks[holder]) == 0 {
		delete(l.locks, holder)
		delete(l.locked, holder)
	}
}

// expiredAmount sums the locks of holder that would be released now
func (l *Ledger) expiredAmount(holder common.Address) (*uint256.Int, int) {
	now := l.unix()
	sum, n := new(uint256.Int), 0
	for _, lk := range l.locks[holder] {
		if lk.ReleaseTime <= now {
			sum.Add(sum, lk.Amount)
			n++
		}
	}
	return sum, n
}

// =============================================================================
// Lock queries
// =============================================================================

// LockedAmount returns the cached sum of holder's locks
func (l *Ledger) LockedAmount(holder common.Address) *uint256.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return new(uint256.Int).Set(l.lockedOf(holder))
}

// LockCount returns how many locks holder has
func (l *Ledger) LockCount(holder common.Address) int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.locks[holder])
}

// Locks returns holder's locks as parallel release-time and amount slices,
// in current storage order
func (l *Ledger) Locks(holder common.Address) ([]uint64, []*uint256.Int) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	locks := l.locks[holder]
	times := make([]uint64, len(locks))
	amounts := make([]*uint256.Int, len(locks))
	for i, lk := range locks {
		times[i] = lk.ReleaseTime
		amounts[i] = new(uint256.Int).Set(lk.Amount)
	}
	return times, amounts
}

// HolderView is everything known about one holder, read at a single moment
type HolderView struct {
	Balance      *uint256.Int
	Locked       *uint256.Int
	Available    *uint256.Int
	ReleaseTimes []uint64
	Amounts      []*uint256.Int
	Frozen       bool
	Registered   bool
}

// HolderView reads holder's balance, locks and flags under one read lock, so
// Available is always Balance minus Locked.
func (l *Ledger) HolderView(holder common.Address) HolderView {
	l.mu.RLock()
	defer l.mu.RUnlock()

	locks := l.locks[holder]
	v := HolderView{
		Balance:      l.base.BalanceOf(holder),
		Locked:       new(uint256.Int).Set(l.lockedOf(holder)),
		Available:    l.available(holder),
		ReleaseTimes: make([]uint64, len(locks)),
		Amounts:      make([]*uint256.Int, len(locks)),
		Frozen:       l.frozen[holder],
		Registered:   l.holders.IsRegistered(holder),
	}
	for i, lk := range locks {
		v.ReleaseTimes[i] = lk.ReleaseTime
		v.Amounts[i] = new(uint256.Int).Set(lk.Amount)
	}
	return v
}

// LockSummary aggregates lock state over registered holders
type LockSummary struct {
	Holders     int // registered holders with a non-zero locked amount
	TotalLocked *uint256.Int
	TotalLocks  int
}

// Summary scans every registered holder. It is O(registered holders).
func (l *Ledger) Summary() LockSummary {
	l.mu.RLock()
	defer l.mu.RUnlock()

	s := LockSummary{TotalLocked: new(uint256.Int)}
	l.holders.Each(func(h common.Address) {
		locked := l.lockedOf(h)
		if locked.IsZero() {
			return
		}
		s.Holders++
		s.TotalLocked.Add(s.TotalLocked, locked)
		s.TotalLocks += len(l.locks[h])
	})
	return s
}
