package ledger

import (
	"errors"

	"github.com/lockledger/lockledger/internal/protocol"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	locksCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lockledger_locks_created_total",
		Help: "Locks created",
	})

	// locksReleased counts released locks by how the release was triggered
	locksReleased = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lockledger_locks_released_total",
		Help: "Locks released by trigger (single, expired, auto)",
	}, []string{"trigger"})

	// debits counts guarded balance reductions by outcome
	debits = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lockledger_debits_total",
		Help: "Guarded balance reductions by kind and result",
	}, []string{"kind", "result"})

	snapshotsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lockledger_snapshots_created_total",
		Help: "Snapshots created",
	})
)

// debitResult maps a guard error to a metric label
func debitResult(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, protocol.ErrLockedBalanceExceeded):
		return "locked"
	case errors.Is(err, protocol.ErrAccountFrozen):
		return "frozen"
	case errors.Is(err, protocol.ErrSystemPaused):
		return "paused"
	case errors.Is(err, protocol.ErrNotAuthorized):
		return "unauthorized"
	default:
		return "invalid"
	}
}
