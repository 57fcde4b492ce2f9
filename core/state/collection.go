package state

import (
	"encoding/binary"
	"fmt"
)

var (
	collectionOwnerPrefix    = []byte("collection/owner/")
	collectionApprovalPrefix = []byte("collection/approval/")
	collectionOperatorPrefix = []byte("collection/operator/")
	collectionBalancePrefix  = []byte("collection/balance/")
	collectionSupplyKey      = []byte("collection/supply")
)

func collectionOperatorKey(owner, operator [20]byte) []byte {
	buf := make([]byte, len(collectionOperatorPrefix)+40)
	copy(buf, collectionOperatorPrefix)
	copy(buf[len(collectionOperatorPrefix):], owner[:])
	copy(buf[len(collectionOperatorPrefix)+20:], operator[:])
	return buf
}

func collectionTokenKey(prefix []byte, tokenID uint64) []byte {
	buf := make([]byte, len(prefix)+8)
	copy(buf, prefix)
	binary.BigEndian.PutUint64(buf[len(prefix):], tokenID)
	return buf
}

// CollectionOwner returns the owner of tokenID. The boolean is false when the
// token has not been minted.
func (m *Manager) CollectionOwner(tokenID uint64) ([20]byte, bool, error) {
	var owner [20]byte
	ok, err := m.KVGet(collectionTokenKey(collectionOwnerPrefix, tokenID), &owner)
	return owner, ok, err
}

// CollectionSetOwner assigns tokenID to owner, keeping per-account balances
// and total supply in step. Any single-token approval is cleared.
func (m *Manager) CollectionSetOwner(tokenID uint64, owner [20]byte) error {
	if owner == ([20]byte{}) {
		return fmt.Errorf("collection: owner required")
	}
	previous, minted, err := m.CollectionOwner(tokenID)
	if err != nil {
		return err
	}
	if minted {
		if err := m.adjustCollectionBalance(previous, -1); err != nil {
			return err
		}
	} else {
		supply, err := m.CollectionSupply()
		if err != nil {
			return err
		}
		if err := m.KVPut(collectionSupplyKey, supply+1); err != nil {
			return err
		}
	}
	if err := m.adjustCollectionBalance(owner, 1); err != nil {
		return err
	}
	if err := m.KVDelete(collectionTokenKey(collectionApprovalPrefix, tokenID)); err != nil {
		return err
	}
	return m.KVPut(collectionTokenKey(collectionOwnerPrefix, tokenID), owner)
}

func (m *Manager) adjustCollectionBalance(account [20]byte, delta int) error {
	balance, err := m.CollectionBalance(account)
	if err != nil {
		return err
	}
	switch {
	case delta < 0 && balance == 0:
		return fmt.Errorf("collection: balance underflow")
	case delta < 0:
		balance--
	default:
		balance++
	}
	key := splitAccountKey(collectionBalancePrefix, account)
	if balance == 0 {
		return m.KVDelete(key)
	}
	return m.KVPut(key, balance)
}

// CollectionBalance returns the number of tokens held by account.
func (m *Manager) CollectionBalance(account [20]byte) (uint64, error) {
	var balance uint64
	if _, err := m.KVGet(splitAccountKey(collectionBalancePrefix, account), &balance); err != nil {
		return 0, err
	}
	return balance, nil
}

// CollectionSupply returns the number of minted tokens.
func (m *Manager) CollectionSupply() (uint64, error) {
	var supply uint64
	if _, err := m.KVGet(collectionSupplyKey, &supply); err != nil {
		return 0, err
	}
	return supply, nil
}

// CollectionApproval returns the account approved to move tokenID, if any.
func (m *Manager) CollectionApproval(tokenID uint64) ([20]byte, bool, error) {
	var spender [20]byte
	ok, err := m.KVGet(collectionTokenKey(collectionApprovalPrefix, tokenID), &spender)
	return spender, ok, err
}

// CollectionSetApproval approves spender for tokenID. A zero spender clears
// the approval.
func (m *Manager) CollectionSetApproval(tokenID uint64, spender [20]byte) error {
	key := collectionTokenKey(collectionApprovalPrefix, tokenID)
	if spender == ([20]byte{}) {
		return m.KVDelete(key)
	}
	return m.KVPut(key, spender)
}

// CollectionOperator reports whether operator may move every token of owner.
func (m *Manager) CollectionOperator(owner, operator [20]byte) (bool, error) {
	return m.KVGet(collectionOperatorKey(owner, operator), nil)
}

// CollectionSetOperator grants or revokes operator rights over owner's tokens.
func (m *Manager) CollectionSetOperator(owner, operator [20]byte, approved bool) error {
	key := collectionOperatorKey(owner, operator)
	if !approved {
		return m.KVDelete(key)
	}
	return m.KVPut(key, true)
}
