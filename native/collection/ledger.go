package collection

import (
	"errors"
	"fmt"

	"daosplit/core/events"
)

var (
	ErrTokenNotFound   = errors.New("collection: token not found")
	ErrTokenExists     = errors.New("collection: token already minted")
	ErrNotOwner        = errors.New("collection: from is not the owner")
	ErrNotApproved     = errors.New("collection: caller is not owner nor approved")
	ErrInvalidReceiver = errors.New("collection: invalid receiver")
	ErrSelfApproval    = errors.New("collection: approval to current owner")

	errNilState = errors.New("collection: state not configured")
)

type ledgerState interface {
	CollectionOwner(tokenID uint64) ([20]byte, bool, error)
	CollectionSetOwner(tokenID uint64, owner [20]byte) error
	CollectionBalance(account [20]byte) (uint64, error)
	CollectionSupply() (uint64, error)
	CollectionApproval(tokenID uint64) ([20]byte, bool, error)
	CollectionSetApproval(tokenID uint64, spender [20]byte) error
	CollectionOperator(owner, operator [20]byte) (bool, error)
	CollectionSetOperator(owner, operator [20]byte, approved bool) error
}

// Ledger tracks ownership and approvals of a non-fungible token collection.
// Writes go through the shared state journal; the caller decides when to
// commit them.
type Ledger struct {
	state   ledgerState
	emitter events.Emitter
}

// NewLedger creates a collection ledger on top of the supplied state.
func NewLedger(state ledgerState) *Ledger {
	return &Ledger{state: state, emitter: events.NoopEmitter{}}
}

// SetEmitter configures the event emitter. Passing nil resets it to a no-op.
func (l *Ledger) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		l.emitter = events.NoopEmitter{}
		return
	}
	l.emitter = emitter
}

func (l *Ledger) ready() error {
	if l == nil || l.state == nil {
		return errNilState
	}
	return nil
}

// Mint creates tokenID owned by to.
func (l *Ledger) Mint(to [20]byte, tokenID uint64) error {
	if err := l.ready(); err != nil {
		return err
	}
	if to == ([20]byte{}) {
		return ErrInvalidReceiver
	}
	if _, exists, err := l.state.CollectionOwner(tokenID); err != nil {
		return err
	} else if exists {
		return ErrTokenExists
	}
	if err := l.state.CollectionSetOwner(tokenID, to); err != nil {
		return err
	}
	l.emitter.Emit(events.TokenTransfer{TokenID: tokenID, To: to})
	return nil
}

// OwnerOf returns the current owner of tokenID.
func (l *Ledger) OwnerOf(tokenID uint64) ([20]byte, error) {
	if err := l.ready(); err != nil {
		return [20]byte{}, err
	}
	owner, ok, err := l.state.CollectionOwner(tokenID)
	if err != nil {
		return [20]byte{}, err
	}
	if !ok {
		return [20]byte{}, ErrTokenNotFound
	}
	return owner, nil
}

// BalanceOf returns how many tokens account holds.
func (l *Ledger) BalanceOf(account [20]byte) (uint64, error) {
	if err := l.ready(); err != nil {
		return 0, err
	}
	return l.state.CollectionBalance(account)
}

// TotalSupply returns the number of minted tokens.
func (l *Ledger) TotalSupply() (uint64, error) {
	if err := l.ready(); err != nil {
		return 0, err
	}
	return l.state.CollectionSupply()
}

// Approve lets spender move tokenID on behalf of its owner. The caller must be
// the owner or one of its operators. A zero spender clears the approval.
func (l *Ledger) Approve(caller, spender [20]byte, tokenID uint64) error {
	owner, err := l.OwnerOf(tokenID)
	if err != nil {
		return err
	}
	if spender == owner {
		return ErrSelfApproval
	}
	if caller != owner {
		operator, err := l.state.CollectionOperator(owner, caller)
		if err != nil {
			return err
		}
		if !operator {
			return ErrNotApproved
		}
	}
	if err := l.state.CollectionSetApproval(tokenID, spender); err != nil {
		return err
	}
	l.emitter.Emit(events.TokenApproval{TokenID: tokenID, Owner: owner, Spender: spender, Approved: spender != ([20]byte{})})
	return nil
}

// GetApproved returns the account approved for tokenID, or the zero account.
func (l *Ledger) GetApproved(tokenID uint64) ([20]byte, error) {
	if _, err := l.OwnerOf(tokenID); err != nil {
		return [20]byte{}, err
	}
	spender, _, err := l.state.CollectionApproval(tokenID)
	return spender, err
}

// SetApprovalForAll grants or revokes operator rights over every token of
// owner.
func (l *Ledger) SetApprovalForAll(owner, operator [20]byte, approved bool) error {
	if err := l.ready(); err != nil {
		return err
	}
	if owner == operator {
		return ErrSelfApproval
	}
	if operator == ([20]byte{}) {
		return ErrInvalidReceiver
	}
	if err := l.state.CollectionSetOperator(owner, operator, approved); err != nil {
		return err
	}
	l.emitter.Emit(events.TokenApproval{Owner: owner, Spender: operator, All: true, Approved: approved})
	return nil
}

// IsApprovedForAll reports whether operator manages every token of owner.
func (l *Ledger) IsApprovedForAll(owner, operator [20]byte) (bool, error) {
	if err := l.ready(); err != nil {
		return false, err
	}
	return l.state.CollectionOperator(owner, operator)
}

// IsApprovedOrOwner reports whether spender may move tokenID.
func (l *Ledger) IsApprovedOrOwner(tokenID uint64, spender [20]byte) (bool, error) {
	owner, err := l.OwnerOf(tokenID)
	if err != nil {
		return false, err
	}
	if spender == owner {
		return true, nil
	}
	approved, ok, err := l.state.CollectionApproval(tokenID)
	if err != nil {
		return false, err
	}
	if ok && approved == spender {
		return true, nil
	}
	return l.state.CollectionOperator(owner, spender)
}

// TransferFrom moves tokenID from its owner to to. The operator must be the
// owner, the approved account or an operator of the owner.
func (l *Ledger) TransferFrom(operator, from, to [20]byte, tokenID uint64) error {
	owner, err := l.OwnerOf(tokenID)
	if err != nil {
		return err
	}
	if owner != from {
		return ErrNotOwner
	}
	if to == ([20]byte{}) {
		return ErrInvalidReceiver
	}
	allowed, err := l.IsApprovedOrOwner(tokenID, operator)
	if err != nil {
		return err
	}
	if !allowed {
		return ErrNotApproved
	}
	if err := l.state.CollectionSetOwner(tokenID, to); err != nil {
		return fmt.Errorf("collection: transfer %d: %w", tokenID, err)
	}
	l.emitter.Emit(events.TokenTransfer{TokenID: tokenID, Operator: operator, From: from, To: to})
	return nil
}
