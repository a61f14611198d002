package ledger

import (
	"fmt"
	"log"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/lockledger/lockledger/internal/protocol"
	"github.com/lockledger/lockledger/internal/store"
)

// snapshot is the in-memory header of a snapshot. Balances live in the store
// and are read through its row cache.
type snapshot struct {
	totalSupply *uint256.Int
	timestamp   uint64
	included    []common.Address
	members     map[common.Address]struct{}
}

func (s *snapshot) record() store.SnapshotRecord {
	return store.SnapshotRecord{TotalSupply: s.totalSupply, Timestamp: s.timestamp, Included: s.included}
}

func (l *Ledger) loadSnapshots() error {
	count, err := l.store.SnapshotCount()
	if err != nil {
		return fmt.Errorf("load snapshot count: %w", err)
	}
	l.snaps = make([]*snapshot, count)
	err = l.store.ForEachSnapshot(func(id uint64, rec store.SnapshotRecord) error {
		if id == 0 || id > count {
			return fmt.Errorf("snapshot %d outside issued range 1..%d", id, count)
		}
		s := &snapshot{
			totalSupply: rec.TotalSupply,
			timestamp:   rec.Timestamp,
			included:    rec.Included,
			members:     make(map[common.Address]struct{}, len(rec.Included)),
		}
		for _, h := range rec.Included {
			s.members[h] = struct{}{}
		}
		l.snaps[id-1] = s
		return nil
	})
	if err != nil {
		return fmt.Errorf("load snapshots: %w", err)
	}
	for i, s := range l.snaps {
		if s == nil {
			return fmt.Errorf("snapshot %d missing from store", i+1)
		}
	}
	return nil
}

// CreateSnapshot records total supply and the balance of every registered
// holder with a positive balance. Balances include locked funds. It returns
// the new snapshot id.
func (l *Ledger) CreateSnapshot(caller common.Address) (uint64, error) {
	var id uint64
	err := l.update(func(c *change) error {
		if err := l.auth.RequireAdministrator(caller); err != nil {
			return err
		}
		id = uint64(len(l.snaps)) + 1
		s := &snapshot{
			totalSupply: l.base.TotalSupply(),
			timestamp:   l.unix(),
			members:     make(map[common.Address]struct{}),
		}
		l.holders.Each(func(h common.Address) {
			bal := l.base.BalanceOf(h)
			if bal.IsZero() {
				return
			}
			c.batch.PutSnapshotBalance(id, h, bal)
			s.included = append(s.included, h)
			s.members[h] = struct{}{}
		})
		c.batch.PutSnapshot(id, s.record())
		c.batch.PutSnapshotCount(id)

		c.afterWrite = append(c.afterWrite, func() {
			l.snaps = append(l.snaps, s)
			snapshotsCreated.Inc()
			log.Printf("[Ledger] Snapshot %d created: %d holders, supply %s", id, len(s.included), s.totalSupply.Dec())
		})
		c.emit(SnapshotEvent{ID: id, HolderCount: len(s.included), TotalSupply: new(uint256.Int).Set(s.totalSupply)})
		return nil
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

// AddHolderToSnapshot stamps holder's current balance into snapshot id. The
// snapshot may describe an earlier moment; the value recorded is whatever the
// balance is now. Zero balances are skipped.
func (l *Ledger) AddHolderToSnapshot(caller, holder common.Address, id uint64) error {
	return l.update(func(c *change) error {
		if err := l.auth.RequireAdministrator(caller); err != nil {
			return err
		}
		if err := requireHolder(holder); err != nil {
			return err
		}
		s, err := l.snapshot(id)
		if err != nil {
			return err
		}
		l.include(c, s, id, []common.Address{holder})
		return nil
	})
}

// AddHoldersToSnapshot is AddHolderToSnapshot for many holders. Null and
// zero-balance holders are skipped silently. It returns how many holders were
// recorded.
func (l *Ledger) AddHoldersToSnapshot(caller common.Address, holders []common.Address, id uint64) (int, error) {
	var n int
	err := l.update(func(c *change) error {
		if err := l.auth.RequireAdministrator(caller); err != nil {
			return err
		}
		s, err := l.snapshot(id)
		if err != nil {
			return err
		}
		n = l.include(c, s, id, holders)
		return nil
	})
	return n, err
}

// include writes current balances for holders into snapshot id. New members
// are appended to the included list only once the batch is written.
func (l *Ledger) include(c *change, s *snapshot, id uint64, holders []common.Address) int {
	var added []common.Address
	seen := make(map[common.Address]struct{})
	recorded := 0
	for _, h := range holders {
		if h == (common.Address{}) {
			continue
		}
		bal := l.base.BalanceOf(h)
		if bal.IsZero() {
			continue
		}
		c.batch.PutSnapshotBalance(id, h, bal)
		recorded++
		if _, ok := s.members[h]; ok {
			continue
		}
		if _, ok := seen[h]; ok {
			continue
		}
		seen[h] = struct{}{}
		added = append(added, h)
	}
	if len(added) == 0 {
		return recorded
	}

	rec := s.record()
	rec.Included = append(append([]common.Address{}, s.included...), added...)
	c.batch.PutSnapshot(id, rec)
	c.afterWrite = append(c.afterWrite, func() {
		s.included = rec.Included
		for _, h := range added {
			s.members[h] = struct{}{}
		}
		log.Printf("[Ledger] Snapshot %d: included %d more holders", id, len(added))
	})
	return recorded
}

func (l *Ledger) snapshot(id uint64) (*snapshot, error) {
	if id == 0 || id > uint64(len(l.snaps)) {
		return nil, fmt.Errorf("snapshot %d (latest %d): %w", id, len(l.snaps), protocol.ErrSnapshotNotFound)
	}
	return l.snaps[id-1], nil
}

// =============================================================================
// Snapshot queries
// =============================================================================

// LatestSnapshotID returns the highest issued snapshot id (0 if none)
func (l *Ledger) LatestSnapshotID() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return uint64(len(l.snaps))
}

// BalanceAt returns holder's recorded balance in snapshot id. A holder that
// was never recorded reads as zero.
func (l *Ledger) BalanceAt(holder common.Address, id uint64) (*uint256.Int, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if _, err := l.snapshot(id); err != nil {
		return nil, err
	}
	v, err := l.store.SnapshotBalance(id, holder)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", protocol.ErrStorage, err)
	}
	return v, nil
}

// TotalSupplyAt returns the total supply recorded when snapshot id was created
func (l *Ledger) TotalSupplyAt(id uint64) (*uint256.Int, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	s, err := l.snapshot(id)
	if err != nil {
		return nil, err
	}
	return new(uint256.Int).Set(s.totalSupply), nil
}

// TimestampOf returns snapshot id's creation time (unix seconds)
func (l *Ledger) TimestampOf(id uint64) (uint64, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	s, err := l.snapshot(id)
	if err != nil {
		return 0, err
	}
	return s.timestamp, nil
}

// IncludedHolders returns the holders recorded in snapshot id, in order
func (l *Ledger) IncludedHolders(id uint64) ([]common.Address, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	s, err := l.snapshot(id)
	if err != nil {
		return nil, err
	}
	out := make([]common.Address, len(s.included))
	copy(out, s.included)
	return out, nil
}

// HolderCount returns how many holders snapshot id includes
func (l *Ledger) HolderCount(id uint64) (int, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	s, err := l.snapshot(id)
	if err != nil {
		return 0, err
	}
	return len(s.included), nil
}

// SnapshotInfo is a snapshot header
type SnapshotInfo struct {
	ID          uint64
	TotalSupply *uint256.Int
	Timestamp   uint64
	Holders     []common.Address
}

// SnapshotInfo returns the header of snapshot id, read in one step
func (l *Ledger) SnapshotInfo(id uint64) (SnapshotInfo, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	s, err := l.snapshot(id)
	if err != nil {
		return SnapshotInfo{}, err
	}
	return SnapshotInfo{
		ID:          id,
		TotalSupply: new(uint256.Int).Set(s.totalSupply),
		Timestamp:   s.timestamp,
		Holders:     append([]common.Address{}, s.included...),
	}, nil
}

// SnapshotEntry returns holder's recorded balance in snapshot id together
// with whether holder is in its included list
func (l *Ledger) SnapshotEntry(holder common.Address, id uint64) (*uint256.Int, bool, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	s, err := l.snapshot(id)
	if err != nil {
		return nil, false, err
	}
	v, err := l.store.SnapshotBalance(id, holder)
	if err != nil {
		return nil, false, fmt.Errorf("%w: %v", protocol.ErrStorage, err)
	}
	_, ok := s.members[holder]
	return v, ok, nil
}

// IsIncluded reports whether holder is recorded in snapshot id
func (l *Ledger) IsIncluded(holder common.Address, id uint64) (bool, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	s, err := l.snapshot(id)
	if err != nil {
		return false, err
	}
	_, ok := s.members[holder]
	return ok, nil
}
