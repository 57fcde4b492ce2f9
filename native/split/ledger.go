package split

import (
	"fmt"
	"sort"
)

// Deposit escrows every token of the batch on behalf of caller. The caller must
// own or be approved for each token and the engine must be able to pull it;
// otherwise the whole batch fails with ErrNotAuthorized and nothing moves.
func (e *Engine) Deposit(caller [20]byte, tokenIDs []uint64, note string) error {
	if len(tokenIDs) == 0 {
		return ErrEmptyBatch
	}
	note = NormalizeNote(note)
	if len(note) > MaxNoteLength {
		return ErrNoteTooLong
	}
	batch, err := uniqueIDs(tokenIDs)
	if err != nil {
		return err
	}
	return e.mutate(func() error {
		if e.custodian == nil {
			return errNilCustodian
		}
		if caller == ([20]byte{}) || caller == e.account {
			return ErrNotAuthorized
		}
		owners := make([][20]byte, len(batch))
		for i, id := range batch {
			if _, exists, err := e.state.SplitDepositGet(id); err != nil {
				return err
			} else if exists {
				return fmt.Errorf("%w: token %d", ErrAlreadyDeposited, id)
			}
			owner, err := e.custodian.OwnerOf(id)
			if err != nil {
				return fmt.Errorf("%w: token %d: %v", ErrNotAuthorized, id, err)
			}
			if owner == e.account {
				return fmt.Errorf("%w: token %d", ErrAlreadyDeposited, id)
			}
			if err := e.requireApproved(id, caller); err != nil {
				return err
			}
			if err := e.requireApproved(id, e.account); err != nil {
				return err
			}
			owners[i] = owner
		}

		status, err := e.loadStatus()
		if err != nil {
			return err
		}
		now := e.now()
		for i, id := range batch {
			if err := e.custodian.TransferFrom(e.account, owners[i], e.account, id); err != nil {
				return fmt.Errorf("split: pull token %d: %w", id, err)
			}
			status.NextSeq++
			record := &Deposit{
				TokenID:     id,
				Depositor:   caller,
				Note:        note,
				DepositedAt: now,
				Seq:         status.NextSeq,
			}
			if err := e.state.SplitDepositPut(record); err != nil {
				return err
			}
			status.TotalEscrowed++
		}
		flipped := e.evaluatePhase(status, now)
		if err := e.state.SplitStatusPut(status); err != nil {
			return err
		}
		e.emit(NewDepositedEvent(caller, batch, status.TotalEscrowed))
		if flipped {
			e.emit(NewPhaseChangedEvent(status))
		}
		return nil
	})
}

func (e *Engine) requireApproved(tokenID uint64, spender [20]byte) error {
	ok, err := e.custodian.IsApprovedOrOwner(tokenID, spender)
	if err != nil {
		return fmt.Errorf("%w: token %d: %v", ErrNotAuthorized, tokenID, err)
	}
	if !ok {
		return fmt.Errorf("%w: token %d", ErrNotAuthorized, tokenID)
	}
	return nil
}

// Withdraw returns an escrowed token to its depositor. Only possible while the
// split is still collecting.
func (e *Engine) Withdraw(caller [20]byte, tokenID uint64) error {
	return e.mutate(func() error {
		if e.custodian == nil {
			return errNilCustodian
		}
		status, err := e.loadStatus()
		if err != nil {
			return err
		}
		if status.Phase != PhaseCollecting {
			return ErrWithdrawalsClosed
		}
		record, ok, err := e.state.SplitDepositGet(tokenID)
		if err != nil {
			return err
		}
		if !ok || record.Depositor != caller {
			return ErrNotDepositor
		}
		if err := e.state.SplitDepositDelete(tokenID); err != nil {
			return err
		}
		if status.TotalEscrowed == 0 {
			return fmt.Errorf("split: escrow counter underflow")
		}
		status.TotalEscrowed--
		if err := e.state.SplitStatusPut(status); err != nil {
			return err
		}
		if err := e.custodian.TransferFrom(e.account, e.account, caller, tokenID); err != nil {
			return fmt.Errorf("split: return token %d: %w", tokenID, err)
		}
		e.emit(NewWithdrawnEvent(caller, tokenID, status.TotalEscrowed))
		return nil
	})
}

// DepositInfo returns the live deposit record for tokenID.
func (e *Engine) DepositInfo(tokenID uint64) (*Deposit, error) {
	var out *Deposit
	err := e.view(func() error {
		record, ok, err := e.state.SplitDepositGet(tokenID)
		if err != nil {
			return err
		}
		if !ok {
			return ErrNotFound
		}
		out = record.Clone()
		return nil
	})
	return out, err
}

// Count returns the number of live deposit records.
func (e *Engine) Count() (uint64, error) {
	status, err := e.Status()
	if err != nil {
		return 0, err
	}
	return status.TotalEscrowed, nil
}

// DepositsOf lists the tokens account currently holds in escrow, ascending.
func (e *Engine) DepositsOf(account [20]byte) ([]uint64, error) {
	var out []uint64
	err := e.view(func() error {
		ids, err := e.state.SplitDepositsOf(account)
		if err != nil {
			return err
		}
		out = sortedCopy(ids)
		return nil
	})
	return out, err
}

func uniqueIDs(ids []uint64) ([]uint64, error) {
	seen := make(map[uint64]struct{}, len(ids))
	out := make([]uint64, 0, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			return nil, fmt.Errorf("%w: token %d", ErrDuplicateToken, id)
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out, nil
}

func sortedCopy(ids []uint64) []uint64 {
	out := append([]uint64(nil), ids...)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
