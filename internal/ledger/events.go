package ledger

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/event"
	"github.com/holiman/uint256"
)

// LockEvent is sent when a lock is created
type LockEvent struct {
	Holder      common.Address
	Amount      *uint256.Int
	ReleaseTime uint64
	Operator    common.Address
}

// UnlockEvent is sent once per released lock
type UnlockEvent struct {
	Holder   common.Address
	Amount   *uint256.Int
	Operator common.Address
}

// FreezeEvent is sent when a holder becomes frozen
type FreezeEvent struct {
	Holder common.Address
}

// UnfreezeEvent is sent when a holder's freeze is lifted
type UnfreezeEvent struct {
	Holder common.Address
}

// SnapshotEvent is sent when a snapshot is created
type SnapshotEvent struct {
	ID          uint64
	HolderCount int
	TotalSupply *uint256.Int
}

type feeds struct {
	lock     event.Feed
	unlock   event.Feed
	freeze   event.Feed
	unfreeze event.Feed
	snapshot event.Feed
}

func (f *feeds) send(events []interface{}) {
	for _, ev := range events {
		switch ev := ev.(type) {
		case LockEvent:
			f.lock.Send(ev)
		case UnlockEvent:
			f.unlock.Send(ev)
		case FreezeEvent:
			f.freeze.Send(ev)
		case UnfreezeEvent:
			f.unfreeze.Send(ev)
		case SnapshotEvent:
			f.snapshot.Send(ev)
		}
	}
}

// Subscriptions deliver events in commit order. Events are sent after the
// writer lock is released, so queries keep running, but the operation that
// produced them returns only once every subscriber has taken them and the
// next mutating operation waits for that. Subscribers should use buffered
// channels and keep up, and must Unsubscribe when they stop reading.

// SubscribeLock delivers LockEvents to ch
func (l *Ledger) SubscribeLock(ch chan<- LockEvent) event.Subscription {
	return l.feeds.lock.Subscribe(ch)
}

// SubscribeUnlock delivers UnlockEvents to ch
func (l *Ledger) SubscribeUnlock(ch chan<- UnlockEvent) event.Subscription {
	return l.feeds.unlock.Subscribe(ch)
}

// SubscribeFreeze delivers FreezeEvents to ch
func (l *Ledger) SubscribeFreeze(ch chan<- FreezeEvent) event.Subscription {
	return l.feeds.freeze.Subscribe(ch)
}

// SubscribeUnfreeze delivers UnfreezeEvents to ch
func (l *Ledger) SubscribeUnfreeze(ch chan<- UnfreezeEvent) event.Subscription {
	return l.feeds.unfreeze.Subscribe(ch)
}

// SubscribeSnapshot delivers SnapshotEvents to ch
func (l *Ledger) SubscribeSnapshot(ch chan<- SnapshotEvent) event.Subscription {
	return l.feeds.snapshot.Subscribe(ch)
}
