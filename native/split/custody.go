package split

import "fmt"

// MoveTokens hands escrowed tokens to the treasury holder's custody account.
// Tokens already moved are skipped, so a batch can be retried or split across
// several calls. It returns the tokens moved by this call.
func (e *Engine) MoveTokens(tokenIDs []uint64) ([]uint64, error) {
	if len(tokenIDs) == 0 {
		return nil, ErrEmptyBatch
	}
	var moved []uint64
	err := e.mutate(func() error {
		moved = nil
		if e.custodian == nil {
			return errNilCustodian
		}
		if e.treasury == nil {
			return errNilTreasury
		}
		status, err := e.loadStatus()
		if err != nil {
			return err
		}
		if status.Phase != PhaseSplitTriggered {
			return ErrSplitNotReached
		}
		recipient := e.treasury.CustodyAccount()
		if recipient == ([20]byte{}) || recipient == e.account {
			return fmt.Errorf("split: invalid custody recipient")
		}
		seen := make(map[uint64]struct{}, len(tokenIDs))
		for _, id := range tokenIDs {
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			if _, ok, err := e.state.SplitDepositGet(id); err != nil {
				return err
			} else if !ok {
				return fmt.Errorf("%w: token %d", ErrNotFound, id)
			}
			done, err := e.state.SplitMoved(id)
			if err != nil {
				return err
			}
			if done {
				continue
			}
			if err := e.state.SplitMarkMoved(id); err != nil {
				return err
			}
			status.Moved++
			if err := e.custodian.TransferFrom(e.account, e.account, recipient, id); err != nil {
				return fmt.Errorf("split: move token %d: %w", id, err)
			}
			moved = append(moved, id)
		}
		if len(moved) == 0 {
			return nil
		}
		if err := e.state.SplitStatusPut(status); err != nil {
			return err
		}
		e.emit(NewTokensMovedEvent(recipient, moved, status.Moved))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return moved, nil
}

// PendingMoves lists escrowed tokens not yet handed to the treasury holder,
// ascending, at most limit entries (0 means no limit).
func (e *Engine) PendingMoves(limit int) ([]uint64, error) {
	var out []uint64
	err := e.view(func() error {
		ids, err := e.state.SplitEscrowedTokens()
		if err != nil {
			return err
		}
		for _, id := range sortedCopy(ids) {
			done, err := e.state.SplitMoved(id)
			if err != nil {
				return err
			}
			if done {
				continue
			}
			out = append(out, id)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
		return nil
	})
	return out, err
}

// IsMoved reports whether tokenID has been handed to the treasury holder.
func (e *Engine) IsMoved(tokenID uint64) (bool, error) {
	var out bool
	err := e.view(func() error {
		done, err := e.state.SplitMoved(tokenID)
		out = done
		return err
	})
	return out, err
}
