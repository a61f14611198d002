// Package auth keeps the administrator identity and the set of approved
// callers that may perform privileged ledger operations.
package auth

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/lockledger/lockledger/internal/protocol"
	"github.com/lockledger/lockledger/internal/unordered"
)

// Registry answers capability checks. The administrator is implicitly capable
// and is never listed among the approved callers.
//
// Registry does no locking of its own; the ledger serializes all access.
type Registry struct {
	admin    common.Address
	approved []common.Address
	member   map[common.Address]struct{}
}

// New creates a registry with the given administrator and no approved callers
func New(admin common.Address) *Registry {
	return &Registry{
		admin:  admin,
		member: make(map[common.Address]struct{}),
	}
}

// Restore rebuilds a registry from persisted state, preserving list order
func Restore(admin common.Address, approved []common.Address) *Registry {
	r := New(admin)
	for _, a := range approved {
		if _, ok := r.member[a]; ok || a == (common.Address{}) || a == admin {
			continue
		}
		r.approved = append(r.approved, a)
		r.member[a] = struct{}{}
	}
	return r
}

// Administrator returns the current administrator
func (r *Registry) Administrator() common.Address {
	return r.admin
}

// IsCapable reports whether caller may perform privileged operations
func (r *Registry) IsCapable(caller common.Address) bool {
	if caller == r.admin {
		return true
	}
	_, ok := r.member[caller]
	return ok
}

// Require is the single capability gate used at the start of every
// privileged operation.
func (r *Registry) Require(caller common.Address) error {
	if !r.IsCapable(caller) {
		return fmt.Errorf("%s is not an approved caller: %w", caller.Hex(), protocol.ErrNotAuthorized)
	}
	return nil
}

// RequireAdministrator gates administrator-only operations
func (r *Registry) RequireAdministrator(caller common.Address) error {
	if caller != r.admin {
		return fmt.Errorf("%s is not the administrator: %w", caller.Hex(), protocol.ErrNotAuthorized)
	}
	return nil
}

// AddApproved grants capability to who
func (r *Registry) AddApproved(caller, who common.Address) error {
	if err := r.RequireAdministrator(caller); err != nil {
		return err
	}
	if who == (common.Address{}) {
		return protocol.ErrInvalidHolder
	}
	if r.IsCapable(who) {
		return fmt.Errorf("%s: %w", who.Hex(), protocol.ErrAlreadyApproved)
	}
	r.approved = append(r.approved, who)
	r.member[who] = struct{}{}
	return nil
}

// RemoveApproved revokes capability from who. Removing a caller that was
// never approved is not an error; the returned flag says whether anything
// was removed.
func (r *Registry) RemoveApproved(caller, who common.Address) (bool, error) {
	if err := r.RequireAdministrator(caller); err != nil {
		return false, err
	}
	return r.drop(who), nil
}

func (r *Registry) drop(who common.Address) bool {
	i := unordered.IndexOf(r.approved, who)
	if i < 0 {
		return false
	}
	r.approved = unordered.RemoveAt(r.approved, i)
	delete(r.member, who)
	return true
}

// ListApproved returns a copy of the approved callers, administrator excluded
func (r *Registry) ListApproved() []common.Address {
	out := make([]common.Address, len(r.approved))
	copy(out, r.approved)
	return out
}

// TransferAdministrator hands the administrator role to next. If next was an
// approved caller it leaves the approved list, since the administrator is
// capable implicitly.
func (r *Registry) TransferAdministrator(caller, next common.Address) error {
	if err := r.RequireAdministrator(caller); err != nil {
		return err
	}
	if next == (common.Address{}) {
		return protocol.ErrInvalidHolder
	}
	r.drop(next)
	r.admin = next
	return nil
}
