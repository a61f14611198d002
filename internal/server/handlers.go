package server

import (
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/lockledger/lockledger/internal/protocol"
)

// =============================================================================
// Balances and locks
// =============================================================================

func (s *Server) handleGetBalance(w http.ResponseWriter, r *http.Request) {
	addr, err := pathAddress(r)
	if err != nil {
		writeError(w, err)
		return
	}
	v := s.ledger.HolderView(addr)
	writeJSON(w, http.StatusOK, map[string]string{
		"address":   addr.Hex(),
		"balance":   v.Balance.Dec(),
		"available": v.Available.Dec(),
	})
}

func (s *Server) handleGetLocks(w http.ResponseWriter, r *http.Request) {
	addr, err := pathAddress(r)
	if err != nil {
		writeError(w, err)
		return
	}
	v := s.ledger.HolderView(addr)
	resp := protocol.LocksResponse{
		Holder:       addr,
		Balance:      v.Balance.Dec(),
		Locked:       v.Locked.Dec(),
		Available:    v.Available.Dec(),
		Count:        len(v.ReleaseTimes),
		ReleaseTimes: v.ReleaseTimes,
		Amounts:      make([]string, len(v.Amounts)),
		Frozen:       v.Frozen,
	}
	for i, a := range v.Amounts {
		resp.Amounts[i] = a.Dec()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleLockSummary(w http.ResponseWriter, r *http.Request) {
	sum := s.ledger.Summary()
	writeJSON(w, http.StatusOK, protocol.LockSummaryResponse{
		Holders:     sum.Holders,
		TotalLocked: sum.TotalLocked.Dec(),
		TotalLocks:  sum.TotalLocks,
	})
}

func (s *Server) handleCreateLock(w http.ResponseWriter, r *http.Request) {
	var req protocol.LockRequest
	if !decode(w, r, &req) {
		return
	}
	amount, err := parseAmount(req.Amount)
	if err == nil {
		err = s.ledger.CreateLock(req.Caller, req.Holder, amount, req.ReleaseTime)
	}
	writeOp(w, err, protocol.OpResponse{})
}

// handleLockOwn locks the caller's own funds; Holder is ignored
func (s *Server) handleLockOwn(w http.ResponseWriter, r *http.Request) {
	var req protocol.LockRequest
	if !decode(w, r, &req) {
		return
	}
	amount, err := parseAmount(req.Amount)
	if err == nil {
		err = s.ledger.LockOwn(req.Caller, amount, req.ReleaseTime)
	}
	writeOp(w, err, protocol.OpResponse{})
}

// handleRelease releases one lock when an index is given, otherwise every
// expired lock of the holder
func (s *Server) handleRelease(w http.ResponseWriter, r *http.Request) {
	var req protocol.ReleaseRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Index != nil {
		err := s.ledger.ReleaseOne(req.Caller, req.Holder, *req.Index)
		writeOp(w, err, protocol.OpResponse{Count: count(1)})
		return
	}
	n, err := s.ledger.ReleaseAllExpired(req.Caller, req.Holder)
	writeOp(w, err, protocol.OpResponse{Count: count(n)})
}

// =============================================================================
// Guarded balance reductions
// =============================================================================

func (s *Server) handleTransfer(w http.ResponseWriter, r *http.Request) {
	var req protocol.TransferRequest
	if !decode(w, r, &req) {
		return
	}
	amount, err := parseAmount(req.Amount)
	if err == nil {
		err = s.ledger.Transfer(req.Caller, req.To, amount)
	}
	writeOp(w, err, protocol.OpResponse{})
}

func (s *Server) handleTransferFrom(w http.ResponseWriter, r *http.Request) {
	var req protocol.TransferRequest
	if !decode(w, r, &req) {
		return
	}
	amount, err := parseAmount(req.Amount)
	if err == nil {
		err = s.ledger.TransferFrom(req.Caller, req.From, req.To, amount)
	}
	writeOp(w, err, protocol.OpResponse{})
}

func (s *Server) handleTransferWithLock(w http.ResponseWriter, r *http.Request) {
	var req protocol.TransferWithLockRequest
	if !decode(w, r, &req) {
		return
	}
	amount, err := parseAmount(req.Amount)
	if err == nil {
		err = s.ledger.TransferWithLock(req.Caller, req.To, amount, req.ReleaseTime)
	}
	writeOp(w, err, protocol.OpResponse{})
}

func (s *Server) handleBurn(w http.ResponseWriter, r *http.Request) {
	var req protocol.BurnRequest
	if !decode(w, r, &req) {
		return
	}
	amount, err := parseAmount(req.Amount)
	if err == nil {
		err = s.ledger.Burn(req.Caller, amount)
	}
	writeOp(w, err, protocol.OpResponse{})
}

func (s *Server) handleMint(w http.ResponseWriter, r *http.Request) {
	var req protocol.MintRequest
	if !decode(w, r, &req) {
		return
	}
	amount, err := parseAmount(req.Amount)
	if err == nil {
		err = s.ledger.Mint(req.Caller, req.To, amount)
	}
	writeOp(w, err, protocol.OpResponse{})
}

// =============================================================================
// Registries
// =============================================================================

func (s *Server) handleListHolders(w http.ResponseWriter, r *http.Request) {
	holders := s.ledger.Holders()
	if holders == nil {
		holders = []common.Address{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"count":   len(holders),
		"holders": holders,
	})
}

func (s *Server) handleIsRegistered(w http.ResponseWriter, r *http.Request) {
	addr, err := pathAddress(r)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"address":    addr,
		"registered": s.ledger.IsRegistered(addr),
	})
}

func (s *Server) handleGetAuth(w http.ResponseWriter, r *http.Request) {
	approved := s.ledger.ListApproved()
	if approved == nil {
		approved = []common.Address{}
	}
	writeJSON(w, http.StatusOK, protocol.AuthResponse{
		Administrator: s.ledger.Administrator(),
		Approved:      approved,
	})
}

func (s *Server) handleIsCapable(w http.ResponseWriter, r *http.Request) {
	addr, err := pathAddress(r)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"address": addr,
		"capable": s.ledger.IsCapable(addr),
	})
}

// =============================================================================
// Snapshots
// =============================================================================

func (s *Server) handleCreateSnapshot(w http.ResponseWriter, r *http.Request) {
	var req protocol.CallerRequest
	if !decode(w, r, &req) {
		return
	}
	id, err := s.ledger.CreateSnapshot(req.Caller)
	writeOp(w, err, protocol.OpResponse{SnapshotID: id})
}

func (s *Server) handleLatestSnapshot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]uint64{"id": s.ledger.LatestSnapshotID()})
}

func (s *Server) handleGetSnapshot(w http.ResponseWriter, r *http.Request) {
	id, err := pathSnapshotID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	info, err := s.ledger.SnapshotInfo(id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, protocol.SnapshotResponse{
		ID:          info.ID,
		TotalSupply: info.TotalSupply.Dec(),
		Timestamp:   info.Timestamp,
		Count:       len(info.Holders),
		Holders:     info.Holders,
	})
}

// handleAddSnapshotHolders records current balances of the listed holders in
// an existing snapshot. A single holder is validated strictly; in a batch,
// null and zero-balance entries are skipped.
func (s *Server) handleAddSnapshotHolders(w http.ResponseWriter, r *http.Request) {
	id, err := pathSnapshotID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req protocol.SnapshotHoldersRequest
	if !decode(w, r, &req) {
		return
	}
	if len(req.Holders) == 1 {
		writeOp(w, s.ledger.AddHolderToSnapshot(req.Caller, req.Holders[0], id), protocol.OpResponse{})
		return
	}
	n, err := s.ledger.AddHoldersToSnapshot(req.Caller, req.Holders, id)
	writeOp(w, err, protocol.OpResponse{Count: count(n)})
}

func (s *Server) handleSnapshotBalance(w http.ResponseWriter, r *http.Request) {
	id, err := pathSnapshotID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	addr, err := pathAddress(r)
	if err != nil {
		writeError(w, err)
		return
	}
	bal, included, err := s.ledger.SnapshotEntry(addr, id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, protocol.SnapshotBalanceResponse{
		ID:       id,
		Holder:   addr,
		Balance:  bal.Dec(),
		Included: included,
	})
}

// =============================================================================
// Health
// =============================================================================

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"administrator":   s.ledger.Administrator(),
		"total_supply":    s.ledger.TotalSupply().Dec(),
		"paused":          s.ledger.Paused(),
		"holders":         len(s.ledger.Holders()),
		"latest_snapshot": s.ledger.LatestSnapshotID(),
	})
}
