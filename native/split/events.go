package split

import (
	"strconv"
	"strings"

	"daosplit/core/types"
	"daosplit/crypto"
)

const (
	EventTypeDeposited    = "split.deposited"
	EventTypeWithdrawn    = "split.withdrawn"
	EventTypePhaseChanged = "split.phase_changed"
	EventTypeTokensMoved  = "split.tokens_moved"
	EventTypeTriggered    = "split.triggered"
	EventTypeRedeemed     = "split.redeemed"
)

type splitEvent struct {
	evt *types.Event
}

func (e splitEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e splitEvent) Event() *types.Event { return e.evt }

// NewDepositedEvent returns the canonical payload for a batch deposit.
func NewDepositedEvent(depositor [20]byte, tokenIDs []uint64, total uint64) *types.Event {
	return &types.Event{Type: EventTypeDeposited, Attributes: map[string]string{
		"depositor": crypto.FormatAccount(depositor),
		"tokens":    joinIDs(tokenIDs),
		"total":     strconv.FormatUint(total, 10),
	}}
}

// NewWithdrawnEvent returns the canonical payload for a withdrawal.
func NewWithdrawnEvent(depositor [20]byte, tokenID uint64, total uint64) *types.Event {
	return &types.Event{Type: EventTypeWithdrawn, Attributes: map[string]string{
		"depositor": crypto.FormatAccount(depositor),
		"token":     strconv.FormatUint(tokenID, 10),
		"total":     strconv.FormatUint(total, 10),
	}}
}

// NewPhaseChangedEvent returns the payload emitted when the threshold is met.
func NewPhaseChangedEvent(s *Status) *types.Event {
	attrs := map[string]string{}
	if s != nil {
		attrs["phase"] = s.Phase.String()
		attrs["escrowedAtSplit"] = strconv.FormatUint(s.TotalEscrowedAtSplit, 10)
		attrs["splitTriggeredAt"] = strconv.FormatInt(s.SplitTriggeredAt, 10)
	}
	return &types.Event{Type: EventTypePhaseChanged, Attributes: attrs}
}

// NewTokensMovedEvent returns the payload for a custody move batch.
func NewTokensMovedEvent(recipient [20]byte, moved []uint64, totalMoved uint64) *types.Event {
	return &types.Event{Type: EventTypeTokensMoved, Attributes: map[string]string{
		"recipient":  crypto.FormatAccount(recipient),
		"tokens":     joinIDs(moved),
		"totalMoved": strconv.FormatUint(totalMoved, 10),
	}}
}

// NewTriggeredEvent returns the payload for the one-time treasury pull.
func NewTriggeredEvent(t *Treasury) *types.Event {
	attrs := map[string]string{}
	if t != nil {
		attrs[strings.ToLower(NativeAsset)] = t.Native.Captured.String()
		for _, asset := range t.Assets {
			attrs["asset."+asset.Asset] = asset.Captured.String()
		}
	}
	return &types.Event{Type: EventTypeTriggered, Attributes: attrs}
}

// NewRedeemedEvent returns the payload for a depositor redemption.
func NewRedeemedEvent(r *Redemption) *types.Event {
	attrs := map[string]string{}
	if r != nil {
		attrs["account"] = crypto.FormatAccount(r.Account)
		attrs["tokens"] = strconv.FormatUint(r.Tokens, 10)
		for _, p := range r.Payouts {
			attrs["payout."+p.Asset] = cloneBigInt(p.Amount).String()
		}
	}
	return &types.Event{Type: EventTypeRedeemed, Attributes: attrs}
}

func joinIDs(ids []uint64) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatUint(id, 10)
	}
	return strings.Join(parts, ",")
}
