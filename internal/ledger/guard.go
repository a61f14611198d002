package ledger

import (
	"fmt"
	"log"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/lockledger/lockledger/internal/protocol"
)

// debit is one guarded balance reduction moving through the pipeline
type debit struct {
	kind     string // transfer, transfer_from, burn, transfer_with_lock
	operator common.Address
	from     common.Address
	to       common.Address // zero for burns
	amount   *uint256.Int

	// filled by planAutoUnlock
	releasable *uint256.Int
	expired    int
}

func (d *debit) burn() bool { return d.to == (common.Address{}) }

// stage is one step of the guard. Check stages only read; apply stages run
// after every check passed.
type stage func(l *Ledger, d *debit) error

// checks run in order before any state changes. Auto-unlock is planned here
// and applied after the move, so a rejected debit leaves locks untouched.
var checks = []stage{
	planAutoUnlock,
	checkPaused,
	checkFrozen,
	checkCoverage,
}

func planAutoUnlock(l *Ledger, d *debit) error {
	d.releasable = new(uint256.Int)
	if !l.autoUnlock || len(l.locks[d.from]) == 0 {
		return nil
	}
	d.releasable, d.expired = l.expiredAmount(d.from)
	return nil
}

func checkPaused(l *Ledger, d *debit) error {
	if l.pause != nil && l.pause.IsPaused() {
		return protocol.ErrSystemPaused
	}
	return nil
}

func checkFrozen(l *Ledger, d *debit) error {
	if l.frozen[d.from] {
		return fmt.Errorf("%s: %w", d.from.Hex(), protocol.ErrAccountFrozen)
	}
	return nil
}

// checkCoverage requires balance - (locked - releasable) >= amount
func checkCoverage(l *Ledger, d *debit) error {
	bal := l.base.BalanceOf(d.from)
	locked := new(uint256.Int).Sub(l.lockedOf(d.from), d.releasable)
	if bal.Lt(locked) || new(uint256.Int).Sub(bal, locked).Lt(d.amount) {
		return fmt.Errorf("%s of %s with %s locked: %w", d.amount.Dec(), bal.Dec(), locked.Dec(), protocol.ErrLockedBalanceExceeded)
	}
	return nil
}

func moveFunds(l *Ledger, d *debit) error {
	if d.burn() {
		return l.base.Burn(d.from, d.amount)
	}
	return l.base.Move(d.from, d.to, d.amount)
}

func applyAutoUnlock(c *change) stage {
	return func(l *Ledger, d *debit) error {
		if d.expired > 0 {
			l.releaseExpired(c, d.from, d.operator, "auto")
		}
		return nil
	}
}

func registerRecipient(c *change) stage {
	return func(l *Ledger, d *debit) error {
		if !d.burn() {
			l.registerIfNeeded(c, d.to)
		}
		return nil
	}
}

// guard runs the debit pipeline inside an update
func (l *Ledger) guard(c *change, d *debit) error {
	err := l.runGuard(c, d)
	debits.WithLabelValues(d.kind, debitResult(err)).Inc()
	return err
}

func (l *Ledger) runGuard(c *change, d *debit) error {
	if err := requireHolder(d.from); err != nil {
		return err
	}
	if err := requireAmount(d.amount); err != nil {
		return err
	}
	for _, check := range checks {
		if err := check(l, d); err != nil {
			return err
		}
	}
	for _, apply := range []stage{moveFunds, applyAutoUnlock(c), registerRecipient(c)} {
		if err := apply(l, d); err != nil {
			return err
		}
	}
	return nil
}

// Transfer moves amount from caller to to
func (l *Ledger) Transfer(caller, to common.Address, amount *uint256.Int) error {
	return l.update(func(c *change) error {
		if err := requireHolder(to); err != nil {
			return err
		}
		d := &debit{kind: "transfer", operator: caller, from: caller, to: to, amount: amount}
		if err := l.guard(c, d); err != nil {
			return err
		}
		log.Printf("[Ledger] Transfer %s from %s to %s", amount.Dec(), caller.Hex(), to.Hex())
		return nil
	})
}

// TransferFrom lets a capable caller move funds on behalf of from
func (l *Ledger) TransferFrom(caller, from, to common.Address, amount *uint256.Int) error {
	return l.update(func(c *change) error {
		if err := l.auth.Require(caller); err != nil {
			debits.WithLabelValues("transfer_from", debitResult(err)).Inc()
			return err
		}
		if err := requireHolder(to); err != nil {
			return err
		}
		d := &debit{kind: "transfer_from", operator: caller, from: from, to: to, amount: amount}
		if err := l.guard(c, d); err != nil {
			return err
		}
		log.Printf("[Ledger] Transfer %s from %s to %s (operator %s)", amount.Dec(), from.Hex(), to.Hex(), caller.Hex())
		return nil
	})
}

// Burn destroys amount of the caller's unlocked balance. The administrator
// cannot burn.
func (l *Ledger) Burn(caller common.Address, amount *uint256.Int) error {
	return l.update(func(c *change) error {
		if caller == l.auth.Administrator() {
			err := fmt.Errorf("administrator %s cannot burn: %w", caller.Hex(), protocol.ErrNotAuthorized)
			debits.WithLabelValues("burn", debitResult(err)).Inc()
			return err
		}
		d := &debit{kind: "burn", operator: caller, from: caller, amount: amount}
		if err := l.guard(c, d); err != nil {
			return err
		}
		log.Printf("[Ledger] Burned %s from %s", amount.Dec(), caller.Hex())
		return nil
	})
}

// TransferWithLock moves amount from a capable caller to to and locks it on
// to until releaseTime, as one operation.
func (l *Ledger) TransferWithLock(caller, to common.Address, amount *uint256.Int, releaseTime uint64) error {
	return l.update(func(c *change) error {
		if err := l.auth.Require(caller); err != nil {
			return err
		}
		if err := requireHolder(to); err != nil {
			return err
		}
		if err := requireAmount(amount); err != nil {
			return err
		}
		// After the move to's unlocked balance covers amount, so only the
		// release time needs checking up front.
		if err := l.validateReleaseTime(releaseTime); err != nil {
			return err
		}
		d := &debit{kind: "transfer_with_lock", operator: caller, from: caller, to: to, amount: amount}
		if err := l.guard(c, d); err != nil {
			return err
		}
		l.addLock(c, to, amount, releaseTime, caller)
		return nil
	})
}
