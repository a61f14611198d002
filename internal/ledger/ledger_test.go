package ledger

import (
	"errors"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/rawdb"
	"github.com/ethereum/go-ethereum/ethdb"
	"github.com/holiman/uint256"
	"github.com/lockledger/lockledger/internal/bank"
	"github.com/lockledger/lockledger/internal/protocol"
	"github.com/lockledger/lockledger/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Test Helpers
// =============================================================================

var (
	admin    = common.HexToAddress("0xad")
	operator = common.HexToAddress("0x0e")
	alice    = common.HexToAddress("0xa1")
	bob      = common.HexToAddress("0xb0")
	carol    = common.HexToAddress("0xc0")
)

const t0 = 1_700_000_000

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time          { return c.now }
func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

type fixture struct {
	l     *Ledger
	bank  *bank.Bank
	pause *bank.Breaker
	st    *store.Store
	clock *fakeClock
}

func newFixture(t *testing.T, mutate ...func(*Config)) *fixture {
	t.Helper()
	f := &fixture{
		bank:  bank.New(),
		pause: bank.NewBreaker(false),
		st:    store.OpenMemory(),
		clock: &fakeClock{now: time.Unix(t0, 0)},
	}
	t.Cleanup(func() { f.st.Close() })

	cfg := Config{Administrator: admin, AutoUnlock: true, Clock: f.clock.Now}
	for _, m := range mutate {
		m(&cfg)
	}
	l, err := New(f.st, f.bank, f.pause, cfg)
	require.NoError(t, err)
	f.l = l
	return f
}

func (f *fixture) fund(t *testing.T, h common.Address, amount uint64) {
	t.Helper()
	require.NoError(t, f.l.Mint(admin, h, u(amount)))
}

func u(v uint64) *uint256.Int { return uint256.NewInt(v) }

const day = 24 * 60 * 60

// assertInvariants checks cache == sum(locks) and balance >= cache for h
func assertInvariants(t *testing.T, l *Ledger, h common.Address) {
	t.Helper()
	_, amounts := l.Locks(h)
	sum := new(uint256.Int)
	for _, a := range amounts {
		sum.Add(sum, a)
	}
	assert.Equal(t, sum.Dec(), l.LockedAmount(h).Dec(), "cached locked amount must equal the sum of locks")
	assert.False(t, l.BalanceOf(h).Lt(l.LockedAmount(h)), "balance must cover locked amount")
}

// =============================================================================
// Lock Ledger
// =============================================================================

func TestScenario_LockBlocksTransfer(t *testing.T) {
	f := newFixture(t)
	f.fund(t, alice, 1000)

	require.NoError(t, f.l.CreateLock(admin, alice, u(400), t0+90*day))
	assert.Equal(t, uint64(600), f.l.Available(alice).Uint64())

	err := f.l.Transfer(alice, bob, u(700))
	assert.ErrorIs(t, err, protocol.ErrLockedBalanceExceeded)
	assert.Equal(t, uint64(1000), f.l.BalanceOf(alice).Uint64())

	require.NoError(t, f.l.Transfer(alice, bob, u(600)))
	assert.Equal(t, uint64(400), f.l.BalanceOf(alice).Uint64())
	assert.Zero(t, f.l.Available(alice).Uint64())
	assertInvariants(t, f.l, alice)
}

func TestScenario_ReleaseAllExpiredReleasesOnlyExpired(t *testing.T) {
	f := newFixture(t)
	f.fund(t, alice, 1000)
	require.NoError(t, f.l.CreateLock(admin, alice, u(100), t0+10))
	require.NoError(t, f.l.CreateLock(admin, alice, u(100), t0+20))

	f.clock.Advance(15 * time.Second)
	n, err := f.l.ReleaseAllExpired(alice, alice)
	require.NoError(t, err)

	assert.Equal(t, 1, n)
	assert.Equal(t, uint64(100), f.l.LockedAmount(alice).Uint64())
	times, _ := f.l.Locks(alice)
	assert.Equal(t, []uint64{t0 + 20}, times)
	assertInvariants(t, f.l, alice)
}

func TestCreateLock_Validation(t *testing.T) {
	tests := []struct {
		name    string
		caller  common.Address
		holder  common.Address
		amount  uint64
		release uint64
		want    error
	}{
		{"null holder", admin, common.Address{}, 1, t0 + 10, protocol.ErrInvalidHolder},
		{"zero amount", admin, alice, 0, t0 + 10, protocol.ErrInvalidAmount},
		{"release now", admin, alice, 1, t0, protocol.ErrInvalidReleaseTime},
		{"release past", admin, alice, 1, t0 - 1, protocol.ErrInvalidReleaseTime},
		{"beyond ceiling", admin, alice, 1, t0 + 400*day, protocol.ErrInvalidReleaseTime},
		{"more than unlocked", admin, alice, 501, t0 + 10, protocol.ErrInsufficientUnlockedBalance},
		{"not approved", bob, alice, 1, t0 + 10, protocol.ErrNotAuthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, func(c *Config) { c.MaxLockDuration = 365 * day * time.Second })
			f.fund(t, alice, 500)

			err := f.l.CreateLock(tt.caller, tt.holder, u(tt.amount), tt.release)
			assert.ErrorIs(t, err, tt.want)
			assert.Zero(t, f.l.LockCount(alice))
			assert.True(t, f.l.LockedAmount(alice).IsZero())
		})
	}
}

func TestCreateLock_StacksAgainstUnlockedBalance(t *testing.T) {
	f := newFixture(t)
	f.fund(t, alice, 500)
	require.NoError(t, f.l.AddApproved(admin, operator))

	require.NoError(t, f.l.CreateLock(operator, alice, u(300), t0+10))
	assert.ErrorIs(t, f.l.CreateLock(operator, alice, u(201), t0+10), protocol.ErrInsufficientUnlockedBalance)
	require.NoError(t, f.l.CreateLock(operator, alice, u(200), t0+20))

	assert.Equal(t, 2, f.l.LockCount(alice))
	assert.Equal(t, uint64(500), f.l.LockedAmount(alice).Uint64())
	assertInvariants(t, f.l, alice)
}

func TestLockOwn(t *testing.T) {
	f := newFixture(t)
	f.fund(t, alice, 100)

	ch := make(chan LockEvent, 1)
	sub := f.l.SubscribeLock(ch)
	defer sub.Unsubscribe()

	require.NoError(t, f.l.LockOwn(alice, u(60), t0+day))
	ev := <-ch
	assert.Equal(t, alice, ev.Operator)
	assert.Equal(t, uint64(60), ev.Amount.Uint64())
	assert.ErrorIs(t, f.l.LockOwn(alice, u(41), t0+day), protocol.ErrInsufficientUnlockedBalance)
}

func TestReleaseOne(t *testing.T) {
	f := newFixture(t)
	f.fund(t, alice, 1000)
	require.NoError(t, f.l.CreateLock(admin, alice, u(10), t0+10))
	require.NoError(t, f.l.CreateLock(admin, alice, u(20), t0+100))
	require.NoError(t, f.l.CreateLock(admin, alice, u(30), t0+5))

	assert.ErrorIs(t, f.l.ReleaseOne(alice, alice, 3), protocol.ErrIndexOutOfRange)
	assert.ErrorIs(t, f.l.ReleaseOne(alice, alice, -1), protocol.ErrIndexOutOfRange)
	assert.ErrorIs(t, f.l.ReleaseOne(alice, common.Address{}, 0), protocol.ErrInvalidHolder)
	assert.ErrorIs(t, f.l.ReleaseOne(alice, alice, 0), protocol.ErrLockNotExpired)

	f.clock.Advance(10 * time.Second)
	// a stranger may not release someone else's locks
	assert.ErrorIs(t, f.l.ReleaseOne(bob, alice, 0), protocol.ErrNotAuthorized)

	require.NoError(t, f.l.ReleaseOne(alice, alice, 0))
	times, amounts := f.l.Locks(alice)
	// the last lock moved into the freed slot
	assert.Equal(t, []uint64{t0 + 5, t0 + 100}, times)
	assert.Equal(t, uint64(30), amounts[0].Uint64())
	assert.Equal(t, uint64(50), f.l.LockedAmount(alice).Uint64())

	// capable callers may release on the holder's behalf
	require.NoError(t, f.l.ReleaseOne(admin, alice, 0))
	assert.Equal(t, uint64(20), f.l.LockedAmount(alice).Uint64())
	assertInvariants(t, f.l, alice)
}

func TestRelease_FrozenHolderBlocked(t *testing.T) {
	f := newFixture(t)
	f.fund(t, alice, 100)
	require.NoError(t, f.l.CreateLock(admin, alice, u(50), t0+1))
	require.NoError(t, f.l.Freeze(admin, alice))
	f.clock.Advance(time.Minute)

	assert.ErrorIs(t, f.l.ReleaseOne(alice, alice, 0), protocol.ErrAccountFrozen)
	_, err := f.l.ReleaseAllExpired(alice, alice)
	assert.ErrorIs(t, err, protocol.ErrAccountFrozen)
	assert.Equal(t, 1, f.l.LockCount(alice))
}

func TestReleaseAllExpired_EveryLockExpired(t *testing.T) {
	f := newFixture(t)
	f.fund(t, alice, 1000)
	for i := uint64(1); i <= 6; i++ {
		require.NoError(t, f.l.CreateLock(admin, alice, u(i), t0+i))
	}
	require.NoError(t, f.l.CreateLock(admin, alice, u(100), t0+day))

	f.clock.Advance(time.Hour)
	n, err := f.l.ReleaseAllExpired(alice, alice)
	require.NoError(t, err)

	assert.Equal(t, 6, n)
	times, _ := f.l.Locks(alice)
	assert.Equal(t, []uint64{t0 + day}, times)
	assert.Equal(t, uint64(100), f.l.LockedAmount(alice).Uint64())
}

func TestReleaseAllExpired_NoRemainingExpired(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	f := newFixture(t)
	f.fund(t, alice, 1_000_000)
	for i := 0; i < 200; i++ {
		release := t0 + 1 + uint64(rng.Intn(1000))
		require.NoError(t, f.l.CreateLock(admin, alice, u(1+uint64(rng.Intn(100))), release))
	}

	f.clock.Advance(500 * time.Second)
	_, err := f.l.ReleaseAllExpired(alice, alice)
	require.NoError(t, err)

	now := uint64(f.clock.Now().Unix())
	times, _ := f.l.Locks(alice)
	for _, rt := range times {
		assert.Greater(t, rt, now)
	}
	assertInvariants(t, f.l, alice)
}

func TestLockInvariant_RandomCreateRelease(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	f := newFixture(t)
	f.fund(t, alice, 10_000)

	live := uint64(0)
	for step := 0; step < 500; step++ {
		switch rng.Intn(3) {
		case 0:
			amt := 1 + uint64(rng.Intn(200))
			release := uint64(f.clock.Now().Unix()) + 1 + uint64(rng.Intn(50))
			if err := f.l.CreateLock(admin, alice, u(amt), release); err == nil {
				live += amt
			} else {
				assert.ErrorIs(t, err, protocol.ErrInsufficientUnlockedBalance)
			}
		case 1:
			if n := f.l.LockCount(alice); n > 0 {
				idx := rng.Intn(n)
				_, amounts := f.l.Locks(alice)
				if err := f.l.ReleaseOne(alice, alice, idx); err == nil {
					live -= amounts[idx].Uint64()
				} else {
					assert.ErrorIs(t, err, protocol.ErrLockNotExpired)
				}
			}
		case 2:
			f.clock.Advance(time.Duration(rng.Intn(20)) * time.Second)
		}
		assertInvariants(t, f.l, alice)
		require.Equal(t, live, f.l.LockedAmount(alice).Uint64())
	}
}

func TestSummary(t *testing.T) {
	f := newFixture(t)
	f.fund(t, alice, 100)
	f.fund(t, bob, 100)
	f.fund(t, carol, 100)
	require.NoError(t, f.l.CreateLock(admin, alice, u(10), t0+10))
	require.NoError(t, f.l.CreateLock(admin, alice, u(15), t0+10))
	require.NoError(t, f.l.CreateLock(admin, bob, u(30), t0+10))

	s := f.l.Summary()
	assert.Equal(t, 2, s.Holders)
	assert.Equal(t, 3, s.TotalLocks)
	assert.Equal(t, uint64(55), s.TotalLocked.Uint64())

	// unregistered holders drop out of the scan
	require.NoError(t, f.l.Unregister(admin, bob))
	s = f.l.Summary()
	assert.Equal(t, 1, s.Holders)
	assert.Equal(t, uint64(25), s.TotalLocked.Uint64())
}

// =============================================================================
// Authorization and registry through the ledger
// =============================================================================

func TestScenario_ApproveThenRevoke(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.l.AddApproved(admin, operator))
	assert.True(t, f.l.IsCapable(operator))
	require.NoError(t, f.l.RemoveApproved(admin, operator))
	assert.False(t, f.l.IsCapable(operator))
	assert.True(t, f.l.IsCapable(admin))

	// revoking an unknown caller succeeds quietly, unlike Unregister
	assert.NoError(t, f.l.RemoveApproved(admin, carol))
	assert.ErrorIs(t, f.l.Unregister(admin, carol), protocol.ErrNotRegistered)
}

func TestRegister_CapableOnly(t *testing.T) {
	f := newFixture(t)
	assert.ErrorIs(t, f.l.Register(alice, alice), protocol.ErrNotAuthorized)
	require.NoError(t, f.l.Register(admin, alice))
	assert.ErrorIs(t, f.l.Register(admin, alice), protocol.ErrAlreadyRegistered)
	assert.Equal(t, []common.Address{alice}, f.l.Holders())
}

func TestNew_RequiresAdministrator(t *testing.T) {
	st := store.OpenMemory()
	defer st.Close()
	_, err := New(st, bank.New(), nil, Config{})
	assert.ErrorIs(t, err, protocol.ErrInvalidHolder)
}

// =============================================================================
// Freeze, pause, mint
// =============================================================================

func TestFreezeEvents(t *testing.T) {
	f := newFixture(t)
	frozen := make(chan FreezeEvent, 2)
	unfrozen := make(chan UnfreezeEvent, 2)
	defer f.l.SubscribeFreeze(frozen).Unsubscribe()
	defer f.l.SubscribeUnfreeze(unfrozen).Unsubscribe()

	require.NoError(t, f.l.Freeze(admin, alice))
	require.NoError(t, f.l.Freeze(admin, alice))
	require.NoError(t, f.l.Unfreeze(admin, alice))

	assert.Equal(t, FreezeEvent{Holder: alice}, <-frozen)
	assert.Equal(t, UnfreezeEvent{Holder: alice}, <-unfrozen)
	assert.Len(t, frozen, 0, "re-freezing a frozen holder sends nothing")
	assert.False(t, f.l.IsFrozen(alice))
	assert.ErrorIs(t, f.l.Freeze(bob, alice), protocol.ErrNotAuthorized)
	assert.ErrorIs(t, f.l.Freeze(admin, common.Address{}), protocol.ErrInvalidHolder)
}

func TestPause(t *testing.T) {
	f := newFixture(t)
	assert.ErrorIs(t, f.l.Pause(alice), protocol.ErrNotAuthorized)
	require.NoError(t, f.l.Pause(admin))
	assert.True(t, f.l.Paused())
	require.NoError(t, f.l.Unpause(admin))
	assert.False(t, f.l.Paused())
}

func TestMint(t *testing.T) {
	f := newFixture(t)
	assert.ErrorIs(t, f.l.Mint(alice, alice, u(1)), protocol.ErrNotAuthorized)
	assert.ErrorIs(t, f.l.Mint(admin, alice, u(0)), protocol.ErrInvalidAmount)
	assert.ErrorIs(t, f.l.Mint(admin, common.Address{}, u(1)), protocol.ErrInvalidHolder)

	require.NoError(t, f.l.Mint(admin, alice, u(5)))
	assert.True(t, f.l.IsRegistered(alice))
	assert.Equal(t, uint64(5), f.l.TotalSupply().Uint64())
}

// =============================================================================
// Durability
// =============================================================================

func TestReload_RestoresState(t *testing.T) {
	f := newFixture(t)
	f.fund(t, alice, 1000)
	f.fund(t, bob, 50)
	require.NoError(t, f.l.AddApproved(admin, operator))
	require.NoError(t, f.l.CreateLock(operator, alice, u(100), t0+10))
	require.NoError(t, f.l.CreateLock(operator, alice, u(200), t0+20))
	require.NoError(t, f.l.Freeze(admin, bob))
	require.NoError(t, f.l.Pause(admin))
	id, err := f.l.CreateSnapshot(admin)
	require.NoError(t, err)

	b, err := bank.Load(f.st)
	require.NoError(t, err)
	paused, err := f.st.Paused()
	require.NoError(t, err)
	l2, err := New(f.st, b, bank.NewBreaker(paused), Config{Administrator: carol, Clock: f.clock.Now})
	require.NoError(t, err)

	assert.Equal(t, admin, l2.Administrator(), "stored administrator wins over configuration")
	assert.Equal(t, []common.Address{operator}, l2.ListApproved())
	assert.Equal(t, []common.Address{alice, bob}, l2.Holders())
	assert.Equal(t, uint64(300), l2.LockedAmount(alice).Uint64())
	assert.Equal(t, 2, l2.LockCount(alice))
	assert.True(t, l2.IsFrozen(bob))
	assert.True(t, l2.Paused())
	assert.Equal(t, uint64(1000), l2.BalanceOf(alice).Uint64())
	assert.Equal(t, id, l2.LatestSnapshotID())
	bal, err := l2.BalanceAt(alice, id)
	require.NoError(t, err)
	assert.Equal(t, uint64(1000), bal.Uint64())
	assertInvariants(t, l2, alice)
}

// flakyDB fails every batch write while fail is set
type flakyDB struct {
	ethdb.Database
	fail bool
}

func (db *flakyDB) NewBatch() ethdb.Batch {
	return &flakyBatch{Batch: db.Database.NewBatch(), db: db}
}

type flakyBatch struct {
	ethdb.Batch
	db *flakyDB
}

func (b *flakyBatch) Write() error {
	if b.db.fail {
		return errors.New("disk full")
	}
	return b.Batch.Write()
}

// ledgerState is every observable piece of state, in comparable form
type ledgerState struct {
	Balances     map[common.Address]string
	Supply       string
	ReleaseTimes []uint64
	Amounts      []string
	Locked       string
	Frozen       bool
	Paused       bool
	Holders      []common.Address
	Admin        common.Address
	Approved     []common.Address
	Snapshots    uint64
}

func stateOf(l *Ledger) ledgerState {
	s := ledgerState{
		Balances:  make(map[common.Address]string),
		Supply:    l.TotalSupply().Dec(),
		Locked:    l.LockedAmount(alice).Dec(),
		Frozen:    l.IsFrozen(alice),
		Paused:    l.Paused(),
		Holders:   l.Holders(),
		Admin:     l.Administrator(),
		Approved:  l.ListApproved(),
		Snapshots: l.LatestSnapshotID(),
	}
	for _, h := range []common.Address{admin, alice, bob, carol} {
		s.Balances[h] = l.BalanceOf(h).Dec()
	}
	var amounts []*uint256.Int
	s.ReleaseTimes, amounts = l.Locks(alice)
	for _, a := range amounts {
		s.Amounts = append(s.Amounts, a.Dec())
	}
	return s
}

func TestFailedWrite_LeavesStateUnchanged(t *testing.T) {
	db := &flakyDB{Database: rawdb.NewMemoryDatabase()}
	st := store.New(db, 0)
	defer st.Close()
	clock := &fakeClock{now: time.Unix(t0, 0)}
	l, err := New(st, bank.New(), bank.NewBreaker(false), Config{Administrator: admin, AutoUnlock: true, Clock: clock.Now})
	require.NoError(t, err)

	require.NoError(t, l.Mint(admin, alice, u(1000)))
	require.NoError(t, l.Mint(admin, admin, u(50)))
	require.NoError(t, l.CreateLock(admin, alice, u(100), t0+10))
	require.NoError(t, l.CreateLock(admin, alice, u(200), t0+day))
	require.NoError(t, l.Register(admin, carol))
	clock.Advance(20 * time.Second)

	before := stateOf(l)
	db.fail = true
	ops := []struct {
		name string
		run  func() error
	}{
		{"create lock", func() error { return l.CreateLock(admin, alice, u(50), t0+2*day) }},
		{"transfer with auto-unlock", func() error { return l.Transfer(alice, bob, u(800)) }},
		{"transfer from", func() error { return l.TransferFrom(admin, alice, carol, u(10)) }},
		{"transfer with lock", func() error { return l.TransferWithLock(admin, bob, u(20), t0+day) }},
		{"burn", func() error { return l.Burn(alice, u(1)) }},
		{"release one", func() error { return l.ReleaseOne(alice, alice, 0) }},
		{"release all", func() error { _, err := l.ReleaseAllExpired(alice, alice); return err }},
		{"mint", func() error { return l.Mint(admin, bob, u(5)) }},
		{"freeze", func() error { return l.Freeze(admin, alice) }},
		{"pause", func() error { return l.Pause(admin) }},
		{"approve", func() error { return l.AddApproved(admin, operator) }},
		{"transfer administrator", func() error { return l.TransferAdministrator(admin, operator) }},
		{"register", func() error { return l.Register(admin, bob) }},
		{"unregister", func() error { return l.Unregister(admin, alice) }},
		{"snapshot", func() error { _, err := l.CreateSnapshot(admin); return err }},
	}
	for _, op := range ops {
		assert.ErrorIs(t, op.run(), protocol.ErrStorage, op.name)
		assert.Equal(t, before, stateOf(l), op.name)
	}

	db.fail = false
	require.NoError(t, l.Transfer(alice, bob, u(800)))
	b, err := bank.Load(st)
	require.NoError(t, err)
	paused, err := st.Paused()
	require.NoError(t, err)
	reloaded, err := New(st, b, bank.NewBreaker(paused), Config{Administrator: admin, Clock: clock.Now})
	require.NoError(t, err)
	assert.Equal(t, stateOf(l), stateOf(reloaded), "disk and memory agree after failed writes")
	assert.Equal(t, "800", reloaded.BalanceOf(bob).Dec())
	assert.Equal(t, "200", reloaded.LockedAmount(alice).Dec())
}

func TestClosedStore_RejectsWithoutChange(t *testing.T) {
	f := newFixture(t)
	f.fund(t, alice, 100)
	require.NoError(t, f.st.Close())

	assert.ErrorIs(t, f.l.CreateLock(admin, alice, u(10), t0+day), protocol.ErrStorage)
	assert.ErrorIs(t, f.l.Transfer(alice, bob, u(10)), protocol.ErrStorage)
	assert.Zero(t, f.l.LockCount(alice))
	assert.Equal(t, uint64(100), f.l.BalanceOf(alice).Uint64())
	assert.True(t, f.l.BalanceOf(bob).IsZero())
	assert.False(t, f.l.IsRegistered(bob))
}

// =============================================================================
// Concurrency
// =============================================================================

func TestConcurrentOperations_KeepInvariants(t *testing.T) {
	f := newFixture(t)
	f.fund(t, alice, 10_000)
	f.fund(t, bob, 10_000)
	holders := []common.Address{alice, bob}
	const rounds = 200

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		from, to := holders[i%2], holders[(i+1)%2]
		wg.Add(1)
		go func() {
			defer wg.Done()
			for r := 0; r < rounds; r++ {
				var err error
				if r%3 == 0 {
					err = f.l.CreateLock(admin, from, u(1), t0+day)
				} else {
					err = f.l.Transfer(from, to, u(7))
				}
				if err != nil && !errors.Is(err, protocol.ErrLockedBalanceExceeded) &&
					!errors.Is(err, protocol.ErrInsufficientUnlockedBalance) {
					t.Errorf("unexpected error: %v", err)
					return
				}
			}
		}()
	}
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for r := 0; r < rounds; r++ {
				for _, h := range holders {
					v := f.l.HolderView(h)
					sum := new(uint256.Int)
					for _, a := range v.Amounts {
						sum.Add(sum, a)
					}
					assert.Equal(t, v.Locked.Dec(), sum.Dec())
					assert.Equal(t, new(uint256.Int).Sub(v.Balance, v.Locked).Dec(), v.Available.Dec())
				}
				s := f.l.Summary()
				assert.False(t, s.TotalLocked.Gt(u(20_000)))
			}
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		for r := 0; r < 20; r++ {
			id, err := f.l.CreateSnapshot(admin)
			if !assert.NoError(t, err) {
				return
			}
			supply, err := f.l.TotalSupplyAt(id)
			assert.NoError(t, err)
			assert.Equal(t, "20000", supply.Dec())
		}
	}()
	wg.Wait()

	for _, h := range holders {
		assertInvariants(t, f.l, h)
	}
	assert.Equal(t, "20000", f.l.TotalSupply().Dec())
	total := new(uint256.Int).Add(f.l.BalanceOf(alice), f.l.BalanceOf(bob))
	assert.Equal(t, "20000", total.Dec())
	assert.Equal(t, uint64(20), f.l.LatestSnapshotID())
}

func TestHolderView(t *testing.T) {
	f := newFixture(t)
	f.fund(t, alice, 100)
	require.NoError(t, f.l.CreateLock(admin, alice, u(30), t0+day))
	require.NoError(t, f.l.CreateLock(admin, alice, u(20), t0+2*day))
	require.NoError(t, f.l.Freeze(admin, alice))

	v := f.l.HolderView(alice)
	assert.Equal(t, uint64(100), v.Balance.Uint64())
	assert.Equal(t, uint64(50), v.Locked.Uint64())
	assert.Equal(t, uint64(50), v.Available.Uint64())
	assert.Equal(t, []uint64{t0 + day, t0 + 2*day}, v.ReleaseTimes)
	require.Len(t, v.Amounts, 2)
	assert.Equal(t, uint64(30), v.Amounts[0].Uint64())
	assert.True(t, v.Frozen)
	assert.True(t, v.Registered)

	empty := f.l.HolderView(bob)
	assert.True(t, empty.Balance.IsZero())
	assert.Empty(t, empty.ReleaseTimes)
	assert.False(t, empty.Registered)
}
