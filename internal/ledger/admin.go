package ledger

import (
	"errors"
	"fmt"
	"log"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/lockledger/lockledger/internal/protocol"
	"github.com/lockledger/lockledger/internal/registry"
)

// =============================================================================
// Authorization
// =============================================================================

// IsCapable reports whether caller may run privileged operations
func (l *Ledger) IsCapable(caller common.Address) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.auth.IsCapable(caller)
}

// Administrator returns the current administrator
func (l *Ledger) Administrator() common.Address {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.auth.Administrator()
}

// ListApproved returns the approved callers, administrator excluded
func (l *Ledger) ListApproved() []common.Address {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.auth.ListApproved()
}

// AddApproved grants capability to who. Administrator only.
func (l *Ledger) AddApproved(caller, who common.Address) error {
	return l.update(func(c *change) error {
		l.keepAuth(c)
		if err := l.auth.AddApproved(caller, who); err != nil {
			return err
		}
		c.auth = true
		log.Printf("[Ledger] Approved %s", who.Hex())
		return nil
	})
}

// RemoveApproved revokes capability from who. Revoking a caller that was
// never approved succeeds without changing anything. Administrator only.
func (l *Ledger) RemoveApproved(caller, who common.Address) error {
	return l.update(func(c *change) error {
		l.keepAuth(c)
		removed, err := l.auth.RemoveApproved(caller, who)
		if err != nil {
			return err
		}
		if removed {
			c.auth = true
			log.Printf("[Ledger] Revoked approval of %s", who.Hex())
		}
		return nil
	})
}

// TransferAdministrator hands the administrator role to next
func (l *Ledger) TransferAdministrator(caller, next common.Address) error {
	return l.update(func(c *change) error {
		l.keepAuth(c)
		if err := l.auth.TransferAdministrator(caller, next); err != nil {
			return err
		}
		c.auth = true
		log.Printf("[Ledger] Administrator changed from %s to %s", caller.Hex(), next.Hex())
		return nil
	})
}

// =============================================================================
// Address registry
// =============================================================================

// Register adds holder to the address registry. Capable callers only.
func (l *Ledger) Register(caller, holder common.Address) error {
	return l.update(func(c *change) error {
		if err := l.auth.Require(caller); err != nil {
			return err
		}
		if err := l.holders.Register(holder); err != nil {
			return err
		}
		c.registry = true
		c.undo = append(c.undo, func() { _ = l.holders.Unregister(holder) })
		return nil
	})
}

// Unregister removes holder from the address registry. Capable callers only.
func (l *Ledger) Unregister(caller, holder common.Address) error {
	return l.update(func(c *change) error {
		if err := l.auth.Require(caller); err != nil {
			return err
		}
		list := l.holders.Holders()
		if err := l.holders.Unregister(holder); err != nil {
			return err
		}
		c.registry = true
		c.undo = append(c.undo, func() { l.holders = registry.Restore(list) })
		return nil
	})
}

// IsRegistered reports whether holder is in the address registry
func (l *Ledger) IsRegistered(holder common.Address) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.holders.IsRegistered(holder)
}

// Holders returns the registered holders in registry order
func (l *Ledger) Holders() []common.Address {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.holders.Holders()
}

// =============================================================================
// Freeze, pause, mint
// =============================================================================

// Freeze blocks every balance-reducing and release operation of holder.
// Freezing a frozen holder changes nothing and sends no event.
func (l *Ledger) Freeze(caller, holder common.Address) error {
	return l.setFrozen(caller, holder, true)
}

// Unfreeze lifts a freeze
func (l *Ledger) Unfreeze(caller, holder common.Address) error {
	return l.setFrozen(caller, holder, false)
}

func (l *Ledger) setFrozen(caller, holder common.Address, frozen bool) error {
	return l.update(func(c *change) error {
		if err := l.auth.Require(caller); err != nil {
			return err
		}
		if err := requireHolder(holder); err != nil {
			return err
		}
		if l.frozen[holder] == frozen {
			return nil
		}
		l.keepFrozen(c, holder)
		if frozen {
			l.frozen[holder] = true
			c.emit(FreezeEvent{Holder: holder})
		} else {
			delete(l.frozen, holder)
			c.emit(UnfreezeEvent{Holder: holder})
		}
		log.Printf("[Ledger] %s frozen=%v (operator %s)", holder.Hex(), frozen, caller.Hex())
		return nil
	})
}

// IsFrozen reports whether holder is frozen
func (l *Ledger) IsFrozen(holder common.Address) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.frozen[holder]
}

// Pause halts every guarded balance reduction. Administrator only.
func (l *Ledger) Pause(caller common.Address) error {
	return l.setPaused(caller, true)
}

// Unpause resumes guarded balance reductions. Administrator only.
func (l *Ledger) Unpause(caller common.Address) error {
	return l.setPaused(caller, false)
}

func (l *Ledger) setPaused(caller common.Address, paused bool) error {
	return l.update(func(c *change) error {
		if err := l.auth.RequireAdministrator(caller); err != nil {
			return err
		}
		if l.pause == nil {
			return errors.New("no pause switch configured")
		}
		l.pause.SetPaused(paused)
		log.Printf("[Ledger] Paused=%v", paused)
		return nil
	})
}

// Paused reports the circuit-breaker state
func (l *Ledger) Paused() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.pause != nil && l.pause.IsPaused()
}

// Mint credits amount of new units to to and registers it. Administrator only.
func (l *Ledger) Mint(caller, to common.Address, amount *uint256.Int) error {
	return l.update(func(c *change) error {
		if err := l.auth.RequireAdministrator(caller); err != nil {
			return err
		}
		if err := requireHolder(to); err != nil {
			return err
		}
		if err := requireAmount(amount); err != nil {
			return err
		}
		m, ok := l.base.(Minter)
		if !ok {
			return fmt.Errorf("base ledger cannot mint: %w", protocol.ErrNotAuthorized)
		}
		if err := m.Mint(to, amount); err != nil {
			return err
		}
		l.registerIfNeeded(c, to)
		log.Printf("[Ledger] Minted %s to %s", amount.Dec(), to.Hex())
		return nil
	})
}
