package client

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/lockledger/lockledger/internal/bank"
	"github.com/lockledger/lockledger/internal/ledger"
	"github.com/lockledger/lockledger/internal/protocol"
	"github.com/lockledger/lockledger/internal/server"
	"github.com/lockledger/lockledger/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	admin = common.HexToAddress("0xad")
	alice = common.HexToAddress("0xa1")
	bob   = common.HexToAddress("0xb0")
)

func setupClient(t *testing.T, clock func() time.Time) *Client {
	t.Helper()
	st := store.OpenMemory()
	t.Cleanup(func() { st.Close() })
	l, err := ledger.New(st, bank.New(), bank.NewBreaker(false), ledger.Config{Administrator: admin, AutoUnlock: true, Clock: clock})
	require.NoError(t, err)

	ts := httptest.NewServer(server.NewServerForTest(l).Router())
	t.Cleanup(ts.Close)
	return New(ts.URL+"/", NewHTTPClient(5*time.Second))
}

func TestClient_LockLifecycle(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	c := setupClient(t, func() time.Time { return now })
	ctx := context.Background()

	require.NoError(t, c.Mint(ctx, admin, alice, uint256.NewInt(1000)))
	require.NoError(t, c.CreateLock(ctx, admin, alice, uint256.NewInt(400), uint64(now.Unix())+60))

	locks, err := c.Locks(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, "600", locks.Available)
	assert.Equal(t, 1, locks.Count)

	err = c.Transfer(ctx, alice, bob, uint256.NewInt(700))
	assert.ErrorIs(t, err, protocol.ErrLockedBalanceExceeded)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 409, apiErr.Status)

	assert.ErrorIs(t, c.ReleaseOne(ctx, alice, alice, 0), protocol.ErrLockNotExpired)
	now = now.Add(time.Minute)
	n, err := c.ReleaseAllExpired(ctx, alice, alice)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	require.NoError(t, c.Transfer(ctx, alice, bob, uint256.NewInt(700)))
}

func TestClient_Snapshots(t *testing.T) {
	c := setupClient(t, nil)
	ctx := context.Background()

	require.NoError(t, c.Mint(ctx, admin, alice, uint256.NewInt(5)))
	id, err := c.CreateSnapshot(ctx, admin)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), id)

	bal, err := c.SnapshotBalance(ctx, id, alice)
	require.NoError(t, err)
	assert.Equal(t, uint64(5), bal.Uint64())

	_, err = c.SnapshotBalance(ctx, 9, alice)
	assert.ErrorIs(t, err, protocol.ErrSnapshotNotFound)
	_, err = c.CreateSnapshot(ctx, alice)
	assert.ErrorIs(t, err, protocol.ErrNotAuthorized)
}

func TestAPIError_UnknownMessage(t *testing.T) {
	err := newAPIError(502, "bad gateway")
	assert.Nil(t, err.Unwrap())
	assert.Contains(t, err.Error(), "502")
}
