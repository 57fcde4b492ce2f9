package rpc

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"daosplit/crypto"
	"daosplit/native/split"
)

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	var out statusJSON
	err := s.read(func() error {
		status, err := s.engine.Status()
		if err != nil {
			return err
		}
		out = formatStatus(status, s.engine.Params(), s.engine.Account())
		return nil
	})
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleDepositInfo(w http.ResponseWriter, r *http.Request) {
	tokenID, err := parseTokenID(chi.URLParam(r, "token"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	var out depositJSON
	err = s.read(func() error {
		record, err := s.engine.DepositInfo(tokenID)
		if err != nil {
			return err
		}
		status, err := s.engine.Status()
		if err != nil {
			return err
		}
		moved, err := s.engine.IsMoved(tokenID)
		if err != nil {
			return err
		}
		out = depositJSON{
			TokenID:     record.TokenID,
			Depositor:   crypto.FormatAccount(record.Depositor),
			Note:        record.Note,
			DepositedAt: record.DepositedAt,
			Eligible:    status.Phase == split.PhaseSplitTriggered && record.Seq <= status.SplitSeq,
			Moved:       moved,
		}
		return nil
	})
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleAccount(w http.ResponseWriter, r *http.Request) {
	account, err := crypto.ParseAccount(chi.URLParam(r, "account"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	out := accountJSON{Account: crypto.FormatAccount(account)}
	err = s.read(func() error {
		deposits, err := s.engine.DepositsOf(account)
		if err != nil {
			return err
		}
		out.Deposits = deposits
		if out.Deposits == nil {
			out.Deposits = []uint64{}
		}
		if out.EligibleShares, err = s.engine.EligibleShares(account); err != nil {
			return err
		}
		redemption, ok, err := s.engine.Redemption(account)
		if err != nil {
			return err
		}
		out.Redeemed = ok
		if ok {
			out.Redemption = formatRedemption(redemption)
		}
		return nil
	})
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleTreasury(w http.ResponseWriter, r *http.Request) {
	var out treasuryJSON
	err := s.read(func() error {
		snapshot, err := s.engine.Treasury()
		if err != nil {
			return err
		}
		out = formatTreasury(snapshot)
		return nil
	})
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handlePending(w http.ResponseWriter, r *http.Request) {
	limit := defaultPendingCap
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			writeError(w, http.StatusBadRequest, "invalid_request", "limit must be a non-negative integer")
			return
		}
		limit = parsed
	}
	var pending []uint64
	err := s.read(func() error {
		var err error
		pending, err = s.engine.PendingMoves(limit)
		return err
	})
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	if pending == nil {
		pending = []uint64{}
	}
	writeJSON(w, http.StatusOK, map[string][]uint64{"tokenIds": pending})
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	eventType := r.URL.Query().Get("type")
	out := []eventJSON{}
	if s.feed != nil {
		recorded := s.feed.Events()
		if eventType != "" {
			recorded = s.feed.Filter(eventType)
		}
		for _, evt := range recorded {
			out = append(out, formatEvent(evt))
		}
	}
	writeJSON(w, http.StatusOK, map[string][]eventJSON{"events": out})
}

func (s *Server) handleDeposit(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}
	var params depositParams
	if !decodeBody(w, r, &params) {
		return
	}
	if err := s.exec("deposit", func() error {
		return s.engine.Deposit(caller, params.TokenIDs, params.Note)
	}); err != nil {
		s.writeEngineError(w, err)
		return
	}
	s.respondStatus(w)
}

func (s *Server) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}
	var params withdrawParams
	if !decodeBody(w, r, &params) {
		return
	}
	if params.TokenID == nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "tokenId required")
		return
	}
	if err := s.exec("withdraw", func() error {
		return s.engine.Withdraw(caller, *params.TokenID)
	}); err != nil {
		s.writeEngineError(w, err)
		return
	}
	s.respondStatus(w)
}

// handleMove is permissionless; any authenticated account may push escrowed
// tokens to the treasury custody account.
func (s *Server) handleMove(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireCaller(w, r); !ok {
		return
	}
	var params moveParams
	if !decodeBody(w, r, &params) {
		return
	}
	var result moveResult
	err := s.exec("move", func() error {
		ids := params.TokenIDs
		if len(ids) == 0 {
			pending, err := s.engine.PendingMoves(defaultPendingCap)
			if err != nil {
				return err
			}
			if len(pending) == 0 {
				return split.ErrEmptyBatch
			}
			ids = pending
		}
		moved, err := s.engine.MoveTokens(ids)
		if err != nil {
			return err
		}
		result.Moved = moved
		if remaining, err := s.engine.PendingMoves(0); err == nil {
			result.Pending = len(remaining)
		}
		return nil
	})
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	if result.Moved == nil {
		result.Moved = []uint64{}
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleTrigger(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireCaller(w, r); !ok {
		return
	}
	var snapshot *split.Treasury
	err := s.exec("trigger", func() error {
		var err error
		snapshot, err = s.engine.TriggerSplit()
		return err
	})
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	if s.metrics != nil {
		s.metrics.ObserveTreasury(snapshot)
	}
	writeJSON(w, http.StatusOK, formatTreasury(snapshot))
}

func (s *Server) handleRedeem(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}
	var redemption *split.Redemption
	err := s.exec("redeem", func() error {
		var err error
		redemption, err = s.engine.Redeem(caller)
		if err != nil {
			return err
		}
		if snapshot, err := s.engine.Treasury(); err == nil && s.metrics != nil {
			s.metrics.ObserveTreasury(snapshot)
		}
		return nil
	})
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, formatRedemption(redemption))
}

func (s *Server) respondStatus(w http.ResponseWriter) {
	var out statusJSON
	err := s.read(func() error {
		status, err := s.engine.Status()
		if err != nil {
			return err
		}
		out = formatStatus(status, s.engine.Params(), s.engine.Account())
		return nil
	})
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}
