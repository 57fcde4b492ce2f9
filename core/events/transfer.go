package events

import (
	"math/big"
	"strconv"

	"daosplit/core/types"
	"daosplit/crypto"
)

const (
	// TypeTransfer is emitted for fungible balance movements.
	TypeTransfer = "transfer.asset"
	// TypeTokenTransfer is emitted when a collection token changes owner.
	TypeTokenTransfer = "transfer.token"
	// TypeTokenApproval is emitted when a collection approval changes.
	TypeTokenApproval = "approval.token"
)

type Transfer struct {
	Asset  string
	From   [20]byte
	To     [20]byte
	Amount *big.Int
}

func (Transfer) EventType() string { return TypeTransfer }

func (e Transfer) Event() *types.Event {
	attrs := map[string]string{}
	if asset := normalizeAsset(e.Asset); asset != "" {
		attrs["asset"] = asset
	}
	attrs["from"] = formatAccount(e.From)
	attrs["to"] = formatAccount(e.To)
	attrs["amount"] = formatAmount(e.Amount)
	return &types.Event{Type: TypeTransfer, Attributes: attrs}
}

type TokenTransfer struct {
	TokenID  uint64
	Operator [20]byte
	From     [20]byte
	To       [20]byte
}

func (TokenTransfer) EventType() string { return TypeTokenTransfer }

func (e TokenTransfer) Event() *types.Event {
	attrs := map[string]string{
		"tokenId": strconv.FormatUint(e.TokenID, 10),
		"to":      formatAccount(e.To),
	}
	if e.From != ([20]byte{}) {
		attrs["from"] = formatAccount(e.From)
	}
	if e.Operator != ([20]byte{}) {
		attrs["operator"] = formatAccount(e.Operator)
	}
	return &types.Event{Type: TypeTokenTransfer, Attributes: attrs}
}

type TokenApproval struct {
	TokenID uint64
	Owner   [20]byte
	Spender [20]byte
	// All is set when the approval covers every token of Owner.
	All      bool
	Approved bool
}

func (TokenApproval) EventType() string { return TypeTokenApproval }

func (e TokenApproval) Event() *types.Event {
	attrs := map[string]string{
		"owner":    formatAccount(e.Owner),
		"spender":  formatAccount(e.Spender),
		"approved": strconv.FormatBool(e.Approved),
	}
	if e.All {
		attrs["scope"] = "all"
	} else {
		attrs["tokenId"] = strconv.FormatUint(e.TokenID, 10)
	}
	return &types.Event{Type: TypeTokenApproval, Attributes: attrs}
}

func formatAccount(addr [20]byte) string {
	return crypto.FormatAccount(addr)
}
