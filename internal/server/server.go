// Package server exposes the lock ledger over HTTP and takes periodic
// snapshots in the background.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/holiman/uint256"
	"github.com/lockledger/lockledger/internal/ledger"
	"github.com/lockledger/lockledger/internal/protocol"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server handles HTTP requests for one ledger
type Server struct {
	ledger           *ledger.Ledger
	router           *mux.Router
	httpMu           sync.Mutex
	httpServer       *http.Server
	stopped          bool
	snapshotInterval time.Duration
	done             chan struct{} // closed by Close to stop the snapshot producer
	closeOnce        sync.Once
}

// NewServer builds a server and starts the snapshot producer when
// snapshotInterval is positive.
func NewServer(l *ledger.Ledger, snapshotInterval time.Duration) *Server {
	s := newServer(l, snapshotInterval)
	s.done = make(chan struct{})
	if snapshotInterval > 0 {
		go s.snapshotProducer()
	}
	return s
}

// NewServerForTest creates a server without the snapshot producer
func NewServerForTest(l *ledger.Ledger) *Server {
	return newServer(l, 0)
}

func newServer(l *ledger.Ledger, snapshotInterval time.Duration) *Server {
	s := &Server{
		ledger:           l,
		router:           mux.NewRouter(),
		snapshotInterval: snapshotInterval,
	}
	s.setupRoutes()
	return s
}

// Router returns the HTTP router for testing
func (s *Server) Router() *mux.Router {
	return s.router
}

// snapshotProducer snapshots the ledger on every tick, acting as the
// administrator
func (s *Server) snapshotProducer() {
	ticker := time.NewTicker(s.snapshotInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			log.Printf("[Server] Snapshot producer stopping")
			return
		case <-ticker.C:
			if _, err := s.ledger.CreateSnapshot(s.ledger.Administrator()); err != nil {
				log.Printf("[Server] Periodic snapshot failed: %v", err)
			}
		}
	}
}

// Close stops the snapshot producer. It is idempotent and safe on servers
// created with NewServerForTest.
func (s *Server) Close() {
	s.closeOnce.Do(func() {
		if s.done != nil {
			close(s.done)
		}
	})
}

func (s *Server) setupRoutes() {
	// Balances and locks
	s.router.HandleFunc("/balance/{address}", s.handleGetBalance).Methods("GET")
	s.router.HandleFunc("/locks", s.handleLockSummary).Methods("GET")
	s.router.HandleFunc("/locks/{address}", s.handleGetLocks).Methods("GET")
	s.router.HandleFunc("/locks/create", s.handleCreateLock).Methods("POST")
	s.router.HandleFunc("/locks/own", s.handleLockOwn).Methods("POST")
	s.router.HandleFunc("/locks/release", s.handleRelease).Methods("POST")

	// Guarded balance reductions
	s.router.HandleFunc("/transfer", s.handleTransfer).Methods("POST")
	s.router.HandleFunc("/transfer/from", s.handleTransferFrom).Methods("POST")
	s.router.HandleFunc("/transfer/locked", s.handleTransferWithLock).Methods("POST")
	s.router.HandleFunc("/burn", s.handleBurn).Methods("POST")
	s.router.HandleFunc("/mint", s.handleMint).Methods("POST")

	// Freeze and circuit breaker
	s.router.HandleFunc("/freeze", s.holderOp(s.ledger.Freeze)).Methods("POST")
	s.router.HandleFunc("/unfreeze", s.holderOp(s.ledger.Unfreeze)).Methods("POST")
	s.router.HandleFunc("/pause", s.callerOp(s.ledger.Pause)).Methods("POST")
	s.router.HandleFunc("/unpause", s.callerOp(s.ledger.Unpause)).Methods("POST")

	// Address registry
	s.router.HandleFunc("/registry", s.handleListHolders).Methods("GET")
	s.router.HandleFunc("/registry/register", s.holderOp(s.ledger.Register)).Methods("POST")
	s.router.HandleFunc("/registry/unregister", s.holderOp(s.ledger.Unregister)).Methods("POST")
	s.router.HandleFunc("/registry/{address}", s.handleIsRegistered).Methods("GET")

	// Authorization registry
	s.router.HandleFunc("/auth", s.handleGetAuth).Methods("GET")
	s.router.HandleFunc("/auth/approve", s.holderOp(s.ledger.AddApproved)).Methods("POST")
	s.router.HandleFunc("/auth/revoke", s.holderOp(s.ledger.RemoveApproved)).Methods("POST")
	s.router.HandleFunc("/auth/administrator", s.holderOp(s.ledger.TransferAdministrator)).Methods("POST")
	s.router.HandleFunc("/auth/{address}", s.handleIsCapable).Methods("GET")

	// Snapshots
	s.router.HandleFunc("/snapshots", s.handleCreateSnapshot).Methods("POST")
	s.router.HandleFunc("/snapshots/latest", s.handleLatestSnapshot).Methods("GET")
	s.router.HandleFunc("/snapshots/{id:[0-9]+}", s.handleGetSnapshot).Methods("GET")
	s.router.HandleFunc("/snapshots/{id:[0-9]+}/holders", s.handleAddSnapshotHolders).Methods("POST")
	s.router.HandleFunc("/snapshots/{id:[0-9]+}/balance/{address}", s.handleSnapshotBalance).Methods("GET")

	// Health and metrics
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
	s.router.HandleFunc("/info", s.handleInfo).Methods("GET")
	s.router.Handle("/metrics", promhttp.Handler()).Methods("GET")
}

// Start serves HTTP on port until Shutdown is called
func (s *Server) Start(port int) error {
	addr := fmt.Sprintf(":%d", port)
	s.httpMu.Lock()
	if s.stopped {
		s.httpMu.Unlock()
		return nil
	}
	srv := &http.Server{Addr: addr, Handler: s.router, ReadHeaderTimeout: 10 * time.Second}
	s.httpServer = srv
	s.httpMu.Unlock()

	log.Printf("[Server] Lock ledger starting on %s", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops the snapshot producer and drains in-flight requests
func (s *Server) Shutdown(ctx context.Context) error {
	s.Close()
	s.httpMu.Lock()
	s.stopped = true
	srv := s.httpServer
	s.httpMu.Unlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

// =============================================================================
// Response helpers
// =============================================================================

// statusFor maps ledger errors to HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, protocol.ErrNotAuthorized), errors.Is(err, protocol.ErrAccountFrozen):
		return http.StatusForbidden
	case errors.Is(err, protocol.ErrSnapshotNotFound), errors.Is(err, protocol.ErrNotRegistered):
		return http.StatusNotFound
	case errors.Is(err, protocol.ErrAlreadyApproved),
		errors.Is(err, protocol.ErrAlreadyRegistered),
		errors.Is(err, protocol.ErrLockedBalanceExceeded),
		errors.Is(err, protocol.ErrInsufficientUnlockedBalance),
		errors.Is(err, protocol.ErrInsufficientBalance),
		errors.Is(err, protocol.ErrLockNotExpired):
		return http.StatusConflict
	case errors.Is(err, protocol.ErrSystemPaused):
		return http.StatusServiceUnavailable
	case errors.Is(err, protocol.ErrStorage):
		return http.StatusInternalServerError
	default:
		return http.StatusBadRequest
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, statusFor(err), protocol.OpResponse{Success: false, Error: err.Error()})
}

// writeOp answers a mutating request; resp may carry extra result fields
func writeOp(w http.ResponseWriter, err error, resp protocol.OpResponse) {
	if err != nil {
		writeError(w, err)
		return
	}
	resp.Success = true
	resp.OpID = uuid.New().String()
	writeJSON(w, http.StatusOK, resp)
}

func decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, protocol.OpResponse{Error: err.Error()})
		return false
	}
	return true
}

func parseAmount(s string) (*uint256.Int, error) {
	v, err := uint256.FromDecimal(s)
	if err != nil {
		return nil, fmt.Errorf("amount %q: %w", s, protocol.ErrInvalidAmount)
	}
	return v, nil
}

func pathAddress(r *http.Request) (common.Address, error) {
	raw := mux.Vars(r)["address"]
	if !common.IsHexAddress(raw) {
		return common.Address{}, fmt.Errorf("address %q: %w", raw, protocol.ErrInvalidHolder)
	}
	return common.HexToAddress(raw), nil
}

func pathSnapshotID(r *http.Request) (uint64, error) {
	id, err := strconv.ParseUint(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("snapshot id: %w", protocol.ErrSnapshotNotFound)
	}
	return id, nil
}

func count(n int) *int { return &n }

// holderOp adapts a privileged (caller, holder) ledger operation
func (s *Server) holderOp(op func(caller, holder common.Address) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req protocol.HolderRequest
		if !decode(w, r, &req) {
			return
		}
		writeOp(w, op(req.Caller, req.Holder), protocol.OpResponse{})
	}
}

// callerOp adapts a privileged ledger operation that takes only the caller
func (s *Server) callerOp(op func(caller common.Address) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req protocol.CallerRequest
		if !decode(w, r, &req) {
			return
		}
		writeOp(w, op(req.Caller), protocol.OpResponse{})
	}
}
