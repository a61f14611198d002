// Package ledger implements time-locked holds on fungible balances, the
// transfer guard that keeps locked funds in place, and point-in-time balance
// snapshots, all gated by the authorization registry.
//
// Every mutating operation runs under one writer lock and is written through
// to the store in a single batch; queries share a read lock. An operation that
// fails, in validation or while writing its batch, leaves memory and disk as
// they were.
package ledger

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/lockledger/lockledger/internal/auth"
	"github.com/lockledger/lockledger/internal/protocol"
	"github.com/lockledger/lockledger/internal/registry"
	"github.com/lockledger/lockledger/internal/store"
)

// BaseLedger is the fungible ledger that owns balances. The lock engine only
// reads it and asks it to move or burn funds.
type BaseLedger interface {
	BalanceOf(holder common.Address) *uint256.Int
	TotalSupply() *uint256.Int
	Move(from, to common.Address, amount *uint256.Int) error
	Burn(holder common.Address, amount *uint256.Int) error
}

// Minter is implemented by base ledgers that can create units
type Minter interface {
	Mint(to common.Address, amount *uint256.Int) error
}

// PauseSwitch is the global circuit breaker
type PauseSwitch interface {
	IsPaused() bool
	SetPaused(paused bool)
}

// journal is implemented by collaborators that persist through the ledger's
// write batch (bank.Bank, bank.Breaker). FlushTo stages pending changes,
// Commit accepts them after the batch is written and Rollback undoes them.
type journal interface {
	FlushTo(batch *store.Batch)
	Commit()
	Rollback()
}

// Config holds ledger behaviour switches
type Config struct {
	// Administrator is used only when the store holds no authorization set yet
	Administrator common.Address
	// AutoUnlock releases expired locks before every outgoing transfer
	AutoUnlock bool
	// MaxLockDuration caps how far in the future a release time may be (0 = no cap)
	MaxLockDuration time.Duration
	// Clock defaults to time.Now
	Clock func() time.Time
}

// Lock is an encumbrance of Amount until ReleaseTime (unix seconds)
type Lock struct {
	ReleaseTime uint64
	Amount      *uint256.Int
}

// Ledger is the lock, guard and snapshot engine
type Ledger struct {
	mu     sync.RWMutex
	emitMu sync.Mutex

	store   *store.Store
	base    BaseLedger
	pause   PauseSwitch
	auth    *auth.Registry
	holders *registry.Registry

	locks  map[common.Address][]Lock
	locked map[common.Address]*uint256.Int // always the sum of locks[h] amounts
	frozen map[common.Address]bool
	snaps  []*snapshot // snaps[id-1]

	autoUnlock  bool
	maxDuration time.Duration
	now         func() time.Time

	feeds feeds
}

// New builds a ledger over base and pause, restoring any state held in st
func New(st *store.Store, base BaseLedger, pause PauseSwitch, cfg Config) (*Ledger, error) {
	l := &Ledger{
		store:       st,
		base:        base,
		pause:       pause,
		holders:     registry.New(),
		locks:       make(map[common.Address][]Lock),
		locked:      make(map[common.Address]*uint256.Int),
		frozen:      make(map[common.Address]bool),
		autoUnlock:  cfg.AutoUnlock,
		maxDuration: cfg.MaxLockDuration,
		now:         cfg.Clock,
	}
	if l.now == nil {
		l.now = time.Now
	}
	if err := l.load(cfg.Administrator); err != nil {
		return nil, err
	}
	return l, nil
}

func (l *Ledger) load(admin common.Address) error {
	rec, ok, err := l.store.Auth()
	if err != nil {
		return fmt.Errorf("load auth: %w", err)
	}
	if ok {
		if rec.Administrator != admin {
			log.Printf("[Ledger] Stored administrator %s overrides configured %s", rec.Administrator.Hex(), admin.Hex())
		}
		l.auth = auth.Restore(rec.Administrator, rec.Approved)
	} else {
		if admin == (common.Address{}) {
			return fmt.Errorf("no administrator configured: %w", protocol.ErrInvalidHolder)
		}
		l.auth = auth.New(admin)
		b := l.store.NewBatch()
		b.PutAuth(store.AuthRecord{Administrator: admin})
		if err := b.Write(); err != nil {
			return fmt.Errorf("persist initial auth: %w", err)
		}
	}

	list, err := l.store.Registry()
	if err != nil {
		return fmt.Errorf("load registry: %w", err)
	}
	l.holders = registry.Restore(list)

	err = l.store.ForEachLocks(func(h common.Address, recs []store.LockRecord) error {
		sum := new(uint256.Int)
		locks := make([]Lock, 0, len(recs))
		for _, r := range recs {
			locks = append(locks, Lock{ReleaseTime: r.ReleaseTime, Amount: r.Amount})
			sum.Add(sum, r.Amount)
		}
		l.locks[h] = locks
		l.locked[h] = sum
		return nil
	})
	if err != nil {
		return fmt.Errorf("load locks: %w", err)
	}

	frozen, err := l.store.Frozen()
	if err != nil {
		return fmt.Errorf("load frozen flags: %w", err)
	}
	for _, h := range frozen {
		l.frozen[h] = true
	}

	if err := l.loadSnapshots(); err != nil {
		return err
	}

	log.Printf("[Ledger] Loaded %d holders, %d holders with locks, %d snapshots, administrator %s",
		l.holders.Len(), len(l.locks), len(l.snaps), l.auth.Administrator().Hex())
	return nil
}

// change collects what one operation touched so it can be persisted and
// announced once the operation succeeds, or undone if it fails.
type change struct {
	batch      *store.Batch
	locks      map[common.Address]struct{}
	frozen     map[common.Address]struct{}
	registry   bool
	auth       bool
	undo       []func()
	afterWrite []func()
	events     []interface{}
}

func (c *change) emit(ev interface{}) { c.events = append(c.events, ev) }

// keepLocks must run before the first mutation of holder's locks in c
func (l *Ledger) keepLocks(c *change, holder common.Address) {
	if _, ok := c.locks[holder]; ok {
		return
	}
	c.locks[holder] = struct{}{}
	prev, had := l.locks[holder]
	if !had {
		c.undo = append(c.undo, func() {
			delete(l.locks, holder)
			delete(l.locked, holder)
		})
		return
	}
	saved := append([]Lock(nil), prev...)
	locked := l.locked[holder]
	c.undo = append(c.undo, func() {
		l.locks[holder] = saved
		l.locked[holder] = locked
	})
}

func (l *Ledger) keepFrozen(c *change, holder common.Address) {
	if _, ok := c.frozen[holder]; ok {
		return
	}
	c.frozen[holder] = struct{}{}
	was := l.frozen[holder]
	c.undo = append(c.undo, func() {
		if was {
			l.frozen[holder] = true
		} else {
			delete(l.frozen, holder)
		}
	})
}

func (l *Ledger) keepAuth(c *change) {
	admin, approved := l.auth.Administrator(), l.auth.ListApproved()
	c.undo = append(c.undo, func() { l.auth = auth.Restore(admin, approved) })
}

// registerIfNeeded adds h to the address registry inside c
func (l *Ledger) registerIfNeeded(c *change, h common.Address) {
	if !l.holders.RegisterIfNeeded(h) {
		return
	}
	c.registry = true
	// h went to the tail, so unregistering it restores the previous order
	c.undo = append(c.undo, func() { _ = l.holders.Unregister(h) })
}

func (l *Ledger) journals() []journal {
	var js []journal
	if j, ok := l.base.(journal); ok {
		js = append(js, j)
	}
	if j, ok := l.pause.(journal); ok {
		js = append(js, j)
	}
	return js
}

// update runs fn as one indivisible ledger operation
func (l *Ledger) update(fn func(c *change) error) error {
	l.mu.Lock()
	c := &change{
		batch:  l.store.NewBatch(),
		locks:  make(map[common.Address]struct{}),
		frozen: make(map[common.Address]struct{}),
	}
	err := fn(c)
	if err == nil {
		if err = l.persist(c); err != nil {
			log.Printf("[Ledger] Failed to persist operation: %v", err)
			err = fmt.Errorf("%w: %v", protocol.ErrStorage, err)
		}
	}
	if err != nil {
		l.rollback(c)
		l.mu.Unlock()
		return err
	}
	// emitMu is taken before mu is released so notifications leave in commit order
	l.emitMu.Lock()
	l.mu.Unlock()
	defer l.emitMu.Unlock()
	l.feeds.send(c.events)
	return nil
}

func (l *Ledger) rollback(c *change) {
	for i := len(c.undo) - 1; i >= 0; i-- {
		c.undo[i]()
	}
	for _, j := range l.journals() {
		j.Rollback()
	}
}

func (l *Ledger) persist(c *change) error {
	b := c.batch
	for h := range c.locks {
		recs := make([]store.LockRecord, len(l.locks[h]))
		for i, lk := range l.locks[h] {
			recs[i] = store.LockRecord{ReleaseTime: lk.ReleaseTime, Amount: lk.Amount}
		}
		b.PutLocks(h, recs)
	}
	for h := range c.frozen {
		b.PutFrozen(h, l.frozen[h])
	}
	if c.registry {
		b.PutRegistry(l.holders.Holders())
	}
	if c.auth {
		b.PutAuth(store.AuthRecord{Administrator: l.auth.Administrator(), Approved: l.auth.ListApproved()})
	}
	js := l.journals()
	for _, j := range js {
		j.FlushTo(b)
	}
	if err := b.Write(); err != nil {
		return err
	}
	for _, j := range js {
		j.Commit()
	}
	for _, fn := range c.afterWrite {
		fn()
	}
	return nil
}

// unix is the current time as unix seconds
func (l *Ledger) unix() uint64 {
	return uint64(l.now().Unix())
}

func requireHolder(h common.Address) error {
	if h == (common.Address{}) {
		return protocol.ErrInvalidHolder
	}
	return nil
}

func requireAmount(amount *uint256.Int) error {
	if amount == nil || amount.IsZero() {
		return protocol.ErrInvalidAmount
	}
	return nil
}

// lockedOf returns h's cached locked amount without copying
func (l *Ledger) lockedOf(h common.Address) *uint256.Int {
	if v, ok := l.locked[h]; ok {
		return v
	}
	return new(uint256.Int)
}

// available is balance minus locked, floored at zero
func (l *Ledger) available(h common.Address) *uint256.Int {
	bal := l.base.BalanceOf(h)
	locked := l.lockedOf(h)
	if bal.Lt(locked) {
		return new(uint256.Int)
	}
	return bal.Sub(bal, locked)
}

// =============================================================================
// Balance queries
// =============================================================================

// BalanceOf returns h's total balance, locked funds included
func (l *Ledger) BalanceOf(h common.Address) *uint256.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.base.BalanceOf(h)
}

// Available returns the part of h's balance not held by locks
func (l *Ledger) Available(h common.Address) *uint256.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.available(h)
}

// TotalSupply returns the base ledger's total supply
func (l *Ledger) TotalSupply() *uint256.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.base.TotalSupply()
}
