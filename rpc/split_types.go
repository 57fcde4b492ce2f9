package rpc

import (
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"daosplit/core/types"
	"daosplit/crypto"
	"daosplit/native/split"
)

type depositParams struct {
	TokenIDs []uint64 `json:"tokenIds"`
	Note     string   `json:"note,omitempty"`
}

type withdrawParams struct {
	TokenID *uint64 `json:"tokenId"`
}

type moveParams struct {
	TokenIDs []uint64 `json:"tokenIds"`
}

type statusJSON struct {
	Phase                string `json:"phase"`
	Threshold            uint64 `json:"threshold"`
	WaitingWindowSeconds int64  `json:"waitingWindowSeconds"`
	TotalEscrowed        uint64 `json:"totalEscrowed"`
	TotalEscrowedAtSplit uint64 `json:"totalEscrowedAtSplit"`
	SplitTriggeredAt     *int64 `json:"splitTriggeredAt,omitempty"`
	WindowEndsAt         *int64 `json:"windowEndsAt,omitempty"`
	Triggered            bool   `json:"triggered"`
	TriggeredAt          *int64 `json:"triggeredAt,omitempty"`
	Moved                uint64 `json:"moved"`
	RemainingShares      uint64 `json:"remainingShares"`
	Redeemed             uint64 `json:"redeemed"`
	EngineAccount        string `json:"engineAccount"`
}

type depositJSON struct {
	TokenID     uint64 `json:"tokenId"`
	Depositor   string `json:"depositor"`
	Note        string `json:"note,omitempty"`
	DepositedAt int64  `json:"depositedAt"`
	Eligible    bool   `json:"eligible"`
	Moved       bool   `json:"moved"`
}

type balanceJSON struct {
	Asset     string `json:"asset"`
	Captured  string `json:"captured"`
	Remaining string `json:"remaining"`
}

type treasuryJSON struct {
	Native balanceJSON   `json:"native"`
	Assets []balanceJSON `json:"assets"`
}

type payoutJSON struct {
	Asset  string `json:"asset"`
	Amount string `json:"amount"`
}

type redemptionJSON struct {
	Account    string       `json:"account"`
	Tokens     uint64       `json:"tokens"`
	RedeemedAt int64        `json:"redeemedAt"`
	Payouts    []payoutJSON `json:"payouts"`
}

type accountJSON struct {
	Account        string          `json:"account"`
	Deposits       []uint64        `json:"deposits"`
	EligibleShares uint64          `json:"eligibleShares"`
	Redeemed       bool            `json:"redeemed"`
	Redemption     *redemptionJSON `json:"redemption,omitempty"`
}

type moveResult struct {
	Moved   []uint64 `json:"moved"`
	Pending int      `json:"pending"`
}

type eventJSON struct {
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
}

func formatStatus(s *split.Status, params split.Params, engine [20]byte) statusJSON {
	out := statusJSON{
		Phase:                s.Phase.String(),
		Threshold:            params.Threshold,
		WaitingWindowSeconds: int64(params.WaitingWindow.Seconds()),
		TotalEscrowed:        s.TotalEscrowed,
		TotalEscrowedAtSplit: s.TotalEscrowedAtSplit,
		Triggered:            s.Triggered,
		Moved:                s.Moved,
		RemainingShares:      s.RemainingShares,
		Redeemed:             s.Redeemed,
		EngineAccount:        crypto.FormatAccount(engine),
	}
	if s.Phase == split.PhaseSplitTriggered {
		flipped := s.SplitTriggeredAt
		ends := flipped + out.WaitingWindowSeconds
		out.SplitTriggeredAt = &flipped
		out.WindowEndsAt = &ends
	}
	if s.Triggered {
		at := s.TriggeredAt
		out.TriggeredAt = &at
	}
	return out
}

func formatBalance(b split.AssetBalance) balanceJSON {
	return balanceJSON{Asset: b.Asset, Captured: amountString(b.Captured), Remaining: amountString(b.Remaining)}
}

func formatTreasury(t *split.Treasury) treasuryJSON {
	out := treasuryJSON{Native: formatBalance(t.Native), Assets: make([]balanceJSON, 0, len(t.Assets))}
	for _, entry := range t.Assets {
		out.Assets = append(out.Assets, formatBalance(entry))
	}
	return out
}

func formatRedemption(r *split.Redemption) *redemptionJSON {
	if r == nil {
		return nil
	}
	out := &redemptionJSON{
		Account:    crypto.FormatAccount(r.Account),
		Tokens:     r.Tokens,
		RedeemedAt: r.RedeemedAt,
		Payouts:    make([]payoutJSON, 0, len(r.Payouts)),
	}
	for _, p := range r.Payouts {
		out.Payouts = append(out.Payouts, payoutJSON{Asset: p.Asset, Amount: amountString(p.Amount)})
	}
	return out
}

func formatEvent(evt *types.Event) eventJSON {
	attrs := evt.Attributes
	if attrs == nil {
		attrs = map[string]string{}
	}
	return eventJSON{Type: evt.Type, Attributes: attrs}
}

func amountString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func parseTokenID(raw string) (uint64, error) {
	id, err := strconv.ParseUint(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid token id %q", raw)
	}
	return id, nil
}
