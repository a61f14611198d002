// Package bank is the base fungible ledger the lock engine sits on: it owns
// balances and total supply and knows nothing about locks. It also carries
// the global circuit breaker.
package bank

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/lockledger/lockledger/internal/protocol"
	"github.com/lockledger/lockledger/internal/store"
)

// Bank holds balances in memory and tracks which entries changed since the
// last Commit or Rollback. Callers serialize writes; concurrent reads are safe.
type Bank struct {
	balances    map[common.Address]*uint256.Int
	supply      *uint256.Int
	dirty       map[common.Address]struct{}
	supplyDirty bool

	// prior values of everything changed since the last Commit
	undo       map[common.Address]*uint256.Int
	undoSupply *uint256.Int
}

// New returns an empty bank
func New() *Bank {
	return &Bank{
		balances: make(map[common.Address]*uint256.Int),
		supply:   new(uint256.Int),
		dirty:    make(map[common.Address]struct{}),
		undo:     make(map[common.Address]*uint256.Int),
	}
}

// Load restores balances and supply from st
func Load(st *store.Store) (*Bank, error) {
	b := New()
	err := st.ForEachBalance(func(h common.Address, v *uint256.Int) error {
		b.balances[h] = v
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("load balances: %w", err)
	}
	if b.supply, err = st.Supply(); err != nil {
		return nil, fmt.Errorf("load supply: %w", err)
	}
	return b, nil
}

// BalanceOf returns a copy of h's balance
func (b *Bank) BalanceOf(h common.Address) *uint256.Int {
	if v, ok := b.balances[h]; ok {
		return new(uint256.Int).Set(v)
	}
	return new(uint256.Int)
}

// TotalSupply returns a copy of the total supply
func (b *Bank) TotalSupply() *uint256.Int {
	return new(uint256.Int).Set(b.supply)
}

func (b *Bank) set(h common.Address, v *uint256.Int) {
	if _, ok := b.undo[h]; !ok {
		b.undo[h] = b.BalanceOf(h)
	}
	if v.IsZero() {
		delete(b.balances, h)
	} else {
		b.balances[h] = v
	}
	b.dirty[h] = struct{}{}
}

// Move transfers amount from one holder to another
func (b *Bank) Move(from, to common.Address, amount *uint256.Int) error {
	bal := b.BalanceOf(from)
	if bal.Lt(amount) {
		return fmt.Errorf("move %s from %s: %w", amount.Dec(), from.Hex(), protocol.ErrInsufficientBalance)
	}
	if from == to {
		return nil
	}
	// to's balance cannot overflow: it is bounded by the total supply
	b.set(from, bal.Sub(bal, amount))
	dst := b.BalanceOf(to)
	b.set(to, dst.Add(dst, amount))
	return nil
}

// Burn destroys amount from h
func (b *Bank) Burn(h common.Address, amount *uint256.Int) error {
	bal := b.BalanceOf(h)
	if bal.Lt(amount) {
		return fmt.Errorf("burn %s from %s: %w", amount.Dec(), h.Hex(), protocol.ErrInsufficientBalance)
	}
	b.set(h, bal.Sub(bal, amount))
	b.setSupply(new(uint256.Int).Sub(b.supply, amount))
	return nil
}

// Mint creates amount on h
func (b *Bank) Mint(h common.Address, amount *uint256.Int) error {
	supply, overflow := new(uint256.Int).AddOverflow(b.supply, amount)
	if overflow {
		return fmt.Errorf("mint %s: supply overflow: %w", amount.Dec(), protocol.ErrInvalidAmount)
	}
	bal := b.BalanceOf(h)
	b.set(h, bal.Add(bal, amount))
	b.setSupply(supply)
	return nil
}

func (b *Bank) setSupply(v *uint256.Int) {
	if b.undoSupply == nil {
		b.undoSupply = b.TotalSupply()
	}
	b.supply = v
	b.supplyDirty = true
}

// FlushTo writes every balance changed since the last Commit into batch.
// The changes stay pending until Commit or Rollback.
func (b *Bank) FlushTo(batch *store.Batch) {
	for h := range b.dirty {
		batch.PutBalance(h, b.BalanceOf(h))
	}
	if b.supplyDirty {
		batch.PutSupply(b.supply)
	}
}

// Commit accepts pending changes once their batch was written
func (b *Bank) Commit() {
	b.reset()
}

// Rollback restores every balance and the supply to their values at the
// last Commit
func (b *Bank) Rollback() {
	for h, v := range b.undo {
		if v.IsZero() {
			delete(b.balances, h)
		} else {
			b.balances[h] = v
		}
	}
	if b.undoSupply != nil {
		b.supply = b.undoSupply
	}
	b.reset()
}

func (b *Bank) reset() {
	b.dirty = make(map[common.Address]struct{})
	b.supplyDirty = false
	b.undo = make(map[common.Address]*uint256.Int)
	b.undoSupply = nil
}

// Breaker is the global pause switch
type Breaker struct {
	paused bool
	dirty  bool
	before bool // state at the last Commit
}

// NewBreaker returns a breaker in the given state
func NewBreaker(paused bool) *Breaker {
	return &Breaker{paused: paused, before: paused}
}

// IsPaused reports whether balance-reducing operations are halted
func (p *Breaker) IsPaused() bool {
	return p.paused
}

// SetPaused flips the breaker
func (p *Breaker) SetPaused(paused bool) {
	if p.paused != paused {
		p.paused = paused
		p.dirty = true
	}
}

// FlushTo persists the breaker if it changed
func (p *Breaker) FlushTo(batch *store.Batch) {
	if p.dirty {
		batch.PutPaused(p.paused)
	}
}

// Commit accepts the pending state
func (p *Breaker) Commit() {
	p.before = p.paused
	p.dirty = false
}

// Rollback restores the state at the last Commit
func (p *Breaker) Rollback() {
	p.paused = p.before
	p.dirty = false
}
