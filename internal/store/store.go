package store

import (
	"encoding/binary"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"

	"github.com/VictoriaMetrics/fastcache"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/rawdb"
	"github.com/ethereum/go-ethereum/ethdb"
	"github.com/ethereum/go-ethereum/ethdb/leveldb"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/holiman/uint256"
)

const (
	// LevelDBCacheMB is the LevelDB block cache size in MB.
	LevelDBCacheMB = 64

	// LevelDBHandles is the maximum number of open file handles for LevelDB.
	LevelDBHandles = 64

	// DefaultRowCacheMB sizes the snapshot row cache when the caller passes 0.
	DefaultRowCacheMB = 32
)

// Key layout. Holder-scoped keys append the 20-byte address; snapshot keys
// append the big-endian id.
var (
	locksPrefix       = []byte("lock:")
	frozenPrefix      = []byte("frozen:")
	balancePrefix     = []byte("bal:")
	snapshotPrefix    = []byte("snap:")
	snapBalancePrefix = []byte("snapbal:")

	registryKey      = []byte("registry")
	authKey          = []byte("auth")
	pausedKey        = []byte("paused")
	supplyKey        = []byte("supply")
	snapshotCountKey = []byte("snapcount")
)

var errClosed = errors.New("store is closed")

// LockRecord is the persisted form of one lock
type LockRecord struct {
	ReleaseTime uint64
	Amount      *uint256.Int
}

// AuthRecord is the persisted authorization set
type AuthRecord struct {
	Administrator common.Address
	Approved      []common.Address
}

// SnapshotRecord is the persisted snapshot header. Per-holder balances are
// stored as separate rows.
type SnapshotRecord struct {
	TotalSupply *uint256.Int
	Timestamp   uint64
	Included    []common.Address
}

// Store persists ledger state in a geth key-value database. Snapshot balance
// rows are cold and only ever added, so reads go through a fastcache in front
// of the database.
type Store struct {
	db     ethdb.Database
	rows   *fastcache.Cache
	mu     sync.RWMutex
	closed bool
}

// Open opens a LevelDB store at path, or an in-memory store if path is empty.
// cacheMB sizes the snapshot row cache.
func Open(path string, cacheMB int) (*Store, error) {
	if cacheMB <= 0 {
		cacheMB = DefaultRowCacheMB
	}

	var db ethdb.Database
	if path == "" {
		db = rawdb.NewMemoryDatabase()
		log.Printf("[Store] Using in-memory storage (no path specified)")
	} else {
		if err := os.MkdirAll(path, 0755); err != nil {
			return nil, fmt.Errorf("create storage dir %s: %w", path, err)
		}
		ldb, err := leveldb.New(path, LevelDBCacheMB, LevelDBHandles, "", false)
		if err != nil {
			return nil, fmt.Errorf("open leveldb at %s: %w", path, err)
		}
		db = rawdb.NewDatabase(ldb)
		log.Printf("[Store] Opened persistent storage at %s", path)
	}
	return New(db, cacheMB), nil
}

// New wraps an already opened database
func New(db ethdb.Database, cacheMB int) *Store {
	if cacheMB <= 0 {
		cacheMB = DefaultRowCacheMB
	}
	return &Store{
		db:   db,
		rows: fastcache.New(cacheMB * 1024 * 1024),
	}
}

// OpenMemory is shorthand for an in-memory store, used by tests and by
// deployments that do not need durability.
func OpenMemory() *Store {
	s, _ := Open("", 0)
	return s
}

// Close releases the database and the row cache
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	s.rows.Reset()
	return s.db.Close()
}

func holderKey(prefix []byte, h common.Address) []byte {
	return append(append([]byte{}, prefix...), h.Bytes()...)
}

func idKey(prefix []byte, id uint64) []byte {
	k := make([]byte, len(prefix)+8)
	copy(k, prefix)
	binary.BigEndian.PutUint64(k[len(prefix):], id)
	return k
}

func snapBalanceKey(id uint64, h common.Address) []byte {
	return append(idKey(snapBalancePrefix, id), h.Bytes()...)
}

func (s *Store) get(key []byte) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, false, errClosed
	}
	ok, err := s.db.Has(key)
	if err != nil || !ok {
		return nil, false, err
	}
	v, err := s.db.Get(key)
	if err != nil {
		return nil, false, err
	}
	return v, true, nil
}

// iterate calls fn for every key under prefix, with the prefix stripped
func (s *Store) iterate(prefix []byte, fn func(suffix, value []byte) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return errClosed
	}
	it := s.db.NewIterator(prefix, nil)
	defer it.Release()
	for it.Next() {
		if err := fn(it.Key()[len(prefix):], it.Value()); err != nil {
			return err
		}
	}
	return it.Error()
}

// ForEachLocks calls fn with every holder that has persisted locks
func (s *Store) ForEachLocks(fn func(common.Address, []LockRecord) error) error {
	return s.iterate(locksPrefix, func(k, v []byte) error {
		var locks []LockRecord
		if err := rlp.DecodeBytes(v, &locks); err != nil {
			return fmt.Errorf("decode locks for %x: %w", k, err)
		}
		return fn(common.BytesToAddress(k), locks)
	})
}

// Frozen returns every frozen holder
func (s *Store) Frozen() ([]common.Address, error) {
	var out []common.Address
	err := s.iterate(frozenPrefix, func(k, _ []byte) error {
		out = append(out, common.BytesToAddress(k))
		return nil
	})
	return out, err
}

// ForEachBalance calls fn with every non-zero persisted balance
func (s *Store) ForEachBalance(fn func(common.Address, *uint256.Int) error) error {
	return s.iterate(balancePrefix, func(k, v []byte) error {
		return fn(common.BytesToAddress(k), new(uint256.Int).SetBytes(v))
	})
}

// Supply returns the persisted total supply (zero if never written)
func (s *Store) Supply() (*uint256.Int, error) {
	v, _, err := s.get(supplyKey)
	if err != nil {
		return nil, err
	}
	return new(uint256.Int).SetBytes(v), nil
}

// Registry returns the persisted holder list in order
func (s *Store) Registry() ([]common.Address, error) {
	v, ok, err := s.get(registryKey)
	if err != nil || !ok {
		return nil, err
	}
	var list []common.Address
	if err := rlp.DecodeBytes(v, &list); err != nil {
		return nil, fmt.Errorf("decode registry: %w", err)
	}
	return list, nil
}

// Auth returns the persisted authorization set; ok is false on a fresh store
func (s *Store) Auth() (rec AuthRecord, ok bool, err error) {
	v, ok, err := s.get(authKey)
	if err != nil || !ok {
		return rec, false, err
	}
	if err := rlp.DecodeBytes(v, &rec); err != nil {
		return rec, false, fmt.Errorf("decode auth: %w", err)
	}
	return rec, true, nil
}

// Paused returns the persisted circuit-breaker flag
func (s *Store) Paused() (bool, error) {
	_, ok, err := s.get(pausedKey)
	return ok, err
}

// SnapshotCount returns the highest issued snapshot id
func (s *Store) SnapshotCount() (uint64, error) {
	v, ok, err := s.get(snapshotCountKey)
	if err != nil || !ok {
		return 0, err
	}
	if len(v) != 8 {
		return 0, fmt.Errorf("corrupt snapshot counter (%d bytes)", len(v))
	}
	return binary.BigEndian.Uint64(v), nil
}

// ForEachSnapshot calls fn with every persisted snapshot header in id order
func (s *Store) ForEachSnapshot(fn func(uint64, SnapshotRecord) error) error {
	return s.iterate(snapshotPrefix, func(k, v []byte) error {
		if len(k) != 8 {
			return fmt.Errorf("corrupt snapshot key %x", k)
		}
		var rec SnapshotRecord
		if err := rlp.DecodeBytes(v, &rec); err != nil {
			return fmt.Errorf("decode snapshot: %w", err)
		}
		return fn(binary.BigEndian.Uint64(k), rec)
	})
}

// SnapshotBalance returns the balance recorded for h in snapshot id, or zero
// if no row was written.
func (s *Store) SnapshotBalance(id uint64, h common.Address) (*uint256.Int, error) {
	key := snapBalanceKey(id, h)
	if v, ok := s.rows.HasGet(nil, key); ok {
		return new(uint256.Int).SetBytes(v), nil
	}
	v, ok, err := s.get(key)
	if err != nil {
		return nil, err
	}
	if !ok {
		return new(uint256.Int), nil
	}
	s.rows.Set(key, v)
	return new(uint256.Int).SetBytes(v), nil
}

// Batch accumulates writes for one logical ledger operation. The first Put
// error sticks and is returned by Write.
type Batch struct {
	s    *Store
	b    ethdb.Batch
	rows map[string][]byte
	err  error
}

// NewBatch starts a write batch
func (s *Store) NewBatch() *Batch {
	return &Batch{s: s, b: s.db.NewBatch(), rows: make(map[string][]byte)}
}

func (b *Batch) put(key, value []byte) {
	if b.err == nil {
		b.err = b.b.Put(key, value)
	}
}

func (b *Batch) del(key []byte) {
	if b.err == nil {
		b.err = b.b.Delete(key)
	}
}

func (b *Batch) putRLP(key []byte, v interface{}) {
	if b.err != nil {
		return
	}
	enc, err := rlp.EncodeToBytes(v)
	if err != nil {
		b.err = err
		return
	}
	b.put(key, enc)
}

// PutLocks writes h's lock list; an empty list deletes the key
func (b *Batch) PutLocks(h common.Address, locks []LockRecord) {
	if len(locks) == 0 {
		b.del(holderKey(locksPrefix, h))
		return
	}
	b.putRLP(holderKey(locksPrefix, h), locks)
}

// PutFrozen sets or clears h's frozen flag
func (b *Batch) PutFrozen(h common.Address, frozen bool) {
	if frozen {
		b.put(holderKey(frozenPrefix, h), []byte{1})
	} else {
		b.del(holderKey(frozenPrefix, h))
	}
}

// PutBalance writes h's base balance; zero deletes the key
func (b *Batch) PutBalance(h common.Address, v *uint256.Int) {
	if v.IsZero() {
		b.del(holderKey(balancePrefix, h))
		return
	}
	b.put(holderKey(balancePrefix, h), v.Bytes())
}

// PutSupply writes the total supply
func (b *Batch) PutSupply(v *uint256.Int) {
	b.put(supplyKey, v.Bytes())
}

// PutRegistry writes the ordered holder list
func (b *Batch) PutRegistry(list []common.Address) {
	b.putRLP(registryKey, list)
}

// PutAuth writes the authorization set
func (b *Batch) PutAuth(rec AuthRecord) {
	b.putRLP(authKey, rec)
}

// PutPaused sets or clears the circuit-breaker flag
func (b *Batch) PutPaused(paused bool) {
	if paused {
		b.put(pausedKey, []byte{1})
	} else {
		b.del(pausedKey)
	}
}

// PutSnapshot writes a snapshot header
func (b *Batch) PutSnapshot(id uint64, rec SnapshotRecord) {
	b.putRLP(idKey(snapshotPrefix, id), rec)
}

// PutSnapshotBalance writes one snapshot balance row
func (b *Batch) PutSnapshotBalance(id uint64, h common.Address, v *uint256.Int) {
	key := snapBalanceKey(id, h)
	val := v.Bytes()
	b.put(key, val)
	b.rows[string(key)] = val
}

// PutSnapshotCount writes the highest issued snapshot id
func (b *Batch) PutSnapshotCount(id uint64) {
	v := make([]byte, 8)
	binary.BigEndian.PutUint64(v, id)
	b.put(snapshotCountKey, v)
}

// Write commits the batch. Snapshot rows become visible to the row cache
// only after the database accepted them.
func (b *Batch) Write() error {
	if b.err != nil {
		return b.err
	}
	b.s.mu.RLock()
	defer b.s.mu.RUnlock()
	if b.s.closed {
		return errClosed
	}
	if err := b.b.Write(); err != nil {
		return err
	}
	for k, v := range b.rows {
		b.s.rows.Set([]byte(k), v)
	}
	return nil
}
