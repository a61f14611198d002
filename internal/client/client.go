// Package client is a typed Go client for the lock ledger HTTP API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/lockledger/lockledger/internal/protocol"
)

// sentinels are matched against server error messages so callers can use
// errors.Is across the wire
var sentinels = []error{
	protocol.ErrInvalidHolder,
	protocol.ErrInvalidAmount,
	protocol.ErrInvalidReleaseTime,
	protocol.ErrInsufficientUnlockedBalance,
	protocol.ErrLockedBalanceExceeded,
	protocol.ErrLockNotExpired,
	protocol.ErrIndexOutOfRange,
	protocol.ErrNotAuthorized,
	protocol.ErrAlreadyApproved,
	protocol.ErrAlreadyRegistered,
	protocol.ErrNotRegistered,
	protocol.ErrAccountFrozen,
	protocol.ErrSystemPaused,
	protocol.ErrSnapshotNotFound,
	protocol.ErrInsufficientBalance,
	protocol.ErrStorage,
}

// APIError is a non-2xx answer from the server
type APIError struct {
	Status  int
	Message string
	kind    error
}

func (e *APIError) Error() string {
	return fmt.Sprintf("ledger api %d: %s", e.Status, e.Message)
}

// Unwrap returns the ledger sentinel named in the message, if any
func (e *APIError) Unwrap() error { return e.kind }

func newAPIError(status int, msg string) *APIError {
	e := &APIError{Status: status, Message: msg}
	for _, s := range sentinels {
		if strings.Contains(msg, s.Error()) {
			e.kind = s
			break
		}
	}
	return e
}

// NewHTTPClient creates the HTTP client used to reach a ledger
func NewHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Transport: http.DefaultTransport,
		Timeout:   timeout,
	}
}

// Client talks to one ledger daemon
type Client struct {
	baseURL string
	http    *http.Client
}

// New creates a client for the ledger at baseURL (e.g. http://localhost:8080)
func New(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = NewHTTPClient(10 * time.Second)
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), http: httpClient}
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var op protocol.OpResponse
		raw, _ := io.ReadAll(resp.Body)
		if json.Unmarshal(raw, &op) == nil && op.Error != "" {
			return newAPIError(resp.StatusCode, op.Error)
		}
		return newAPIError(resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *Client) op(ctx context.Context, path string, body interface{}) (protocol.OpResponse, error) {
	var resp protocol.OpResponse
	err := c.do(ctx, http.MethodPost, path, body, &resp)
	return resp, err
}

// CreateLock locks amount of holder's funds until releaseTime
func (c *Client) CreateLock(ctx context.Context, caller, holder common.Address, amount *uint256.Int, releaseTime uint64) error {
	_, err := c.op(ctx, "/locks/create", protocol.LockRequest{
		Caller: caller, Holder: holder, Amount: amount.Dec(), ReleaseTime: releaseTime,
	})
	return err
}

// ReleaseOne releases the expired lock at index
func (c *Client) ReleaseOne(ctx context.Context, caller, holder common.Address, index int) error {
	_, err := c.op(ctx, "/locks/release", protocol.ReleaseRequest{Caller: caller, Holder: holder, Index: &index})
	return err
}

// ReleaseAllExpired releases every expired lock of holder
func (c *Client) ReleaseAllExpired(ctx context.Context, caller, holder common.Address) (int, error) {
	resp, err := c.op(ctx, "/locks/release", protocol.ReleaseRequest{Caller: caller, Holder: holder})
	if err != nil || resp.Count == nil {
		return 0, err
	}
	return *resp.Count, nil
}

// Locks returns holder's balance and locks
func (c *Client) Locks(ctx context.Context, holder common.Address) (*protocol.LocksResponse, error) {
	var resp protocol.LocksResponse
	if err := c.do(ctx, http.MethodGet, "/locks/"+holder.Hex(), nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Transfer moves amount from caller to to
func (c *Client) Transfer(ctx context.Context, caller, to common.Address, amount *uint256.Int) error {
	_, err := c.op(ctx, "/transfer", protocol.TransferRequest{Caller: caller, To: to, Amount: amount.Dec()})
	return err
}

// Mint credits new units. Administrator only.
func (c *Client) Mint(ctx context.Context, caller, to common.Address, amount *uint256.Int) error {
	_, err := c.op(ctx, "/mint", protocol.MintRequest{Caller: caller, To: to, Amount: amount.Dec()})
	return err
}

// CreateSnapshot takes a snapshot and returns its id
func (c *Client) CreateSnapshot(ctx context.Context, caller common.Address) (uint64, error) {
	resp, err := c.op(ctx, "/snapshots", protocol.CallerRequest{Caller: caller})
	return resp.SnapshotID, err
}

// SnapshotBalance returns holder's recorded balance in snapshot id
func (c *Client) SnapshotBalance(ctx context.Context, id uint64, holder common.Address) (*uint256.Int, error) {
	var resp protocol.SnapshotBalanceResponse
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/snapshots/%d/balance/%s", id, holder.Hex()), nil, &resp); err != nil {
		return nil, err
	}
	v, err := uint256.FromDecimal(resp.Balance)
	if err != nil {
		return nil, errors.New("malformed balance in response")
	}
	return v, nil
}
