// Package registry tracks every holder the ledger has seen. Lock summaries
// and snapshots both iterate it, so a holder missing here is invisible to
// aggregate queries.
package registry

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/lockledger/lockledger/internal/protocol"
	"github.com/lockledger/lockledger/internal/unordered"
)

// Registry is an ordered list of holders plus an index for membership.
// h is registered iff h appears in the list exactly once.
//
// Not safe for concurrent use; the ledger serializes access.
type Registry struct {
	list  []common.Address
	index map[common.Address]int
}

// New returns an empty registry
func New() *Registry {
	return &Registry{index: make(map[common.Address]int)}
}

// Restore rebuilds a registry from a persisted list, dropping duplicates and
// the null address
func Restore(list []common.Address) *Registry {
	r := New()
	for _, h := range list {
		r.RegisterIfNeeded(h)
	}
	return r
}

// Register adds h to the registry
func (r *Registry) Register(h common.Address) error {
	if h == (common.Address{}) {
		return protocol.ErrInvalidHolder
	}
	if r.IsRegistered(h) {
		return fmt.Errorf("%s: %w", h.Hex(), protocol.ErrAlreadyRegistered)
	}
	r.add(h)
	return nil
}

// RegisterIfNeeded adds h unless it is null or already present. It reports
// whether h was added.
func (r *Registry) RegisterIfNeeded(h common.Address) bool {
	if h == (common.Address{}) || r.IsRegistered(h) {
		return false
	}
	r.add(h)
	return true
}

func (r *Registry) add(h common.Address) {
	r.index[h] = len(r.list)
	r.list = append(r.list, h)
}

// Unregister removes h. The last holder in the list takes h's position.
func (r *Registry) Unregister(h common.Address) error {
	i, ok := r.index[h]
	if !ok {
		return fmt.Errorf("%s: %w", h.Hex(), protocol.ErrNotRegistered)
	}
	r.list = unordered.RemoveAt(r.list, i)
	delete(r.index, h)
	if i < len(r.list) {
		r.index[r.list[i]] = i
	}
	return nil
}

// IsRegistered reports whether h is in the registry
func (r *Registry) IsRegistered(h common.Address) bool {
	_, ok := r.index[h]
	return ok
}

// Len returns the number of registered holders
func (r *Registry) Len() int {
	return len(r.list)
}

// Each calls fn for every registered holder in list order
func (r *Registry) Each(fn func(common.Address)) {
	for _, h := range r.list {
		fn(h)
	}
}

// Holders returns a copy of the registered holders in list order
func (r *Registry) Holders() []common.Address {
	out := make([]common.Address, len(r.list))
	copy(out, r.list)
	return out
}
