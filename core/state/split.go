package state

import (
	"encoding/binary"
	"fmt"
	"math/big"

	"daosplit/native/split"
)

var (
	splitStatusKey        = []byte("split/status")
	splitTreasuryKey      = []byte("split/treasury")
	splitTokenIndexKey    = []byte("split/index/tokens")
	splitDepositPrefix    = []byte("split/deposit/")
	splitOwnerIndexPrefix = []byte("split/index/owner/")
	splitMovedPrefix      = []byte("split/moved/")
	splitRedemptionPrefix = []byte("split/redemption/")
)

func splitTokenKey(prefix []byte, tokenID uint64) []byte {
	buf := make([]byte, len(prefix)+8)
	copy(buf, prefix)
	binary.BigEndian.PutUint64(buf[len(prefix):], tokenID)
	return buf
}

func splitAccountKey(prefix []byte, account [20]byte) []byte {
	buf := make([]byte, len(prefix)+len(account))
	copy(buf, prefix)
	copy(buf[len(prefix):], account[:])
	return buf
}

type storedSplitStatus struct {
	Phase                uint8
	TotalEscrowed        uint64
	TotalEscrowedAtSplit uint64
	SplitTriggeredAt     *big.Int
	SplitSeq             uint64
	NextSeq              uint64
	Triggered            bool
	TriggeredAt          *big.Int
	RemainingShares      uint64
	Moved                uint64
	Redeemed             uint64
}

type storedSplitDeposit struct {
	TokenID     uint64
	Depositor   [20]byte
	Note        string
	DepositedAt *big.Int
	Seq         uint64
}

type storedAssetBalance struct {
	Asset     string
	Captured  *big.Int
	Remaining *big.Int
}

type storedSplitTreasury struct {
	Native storedAssetBalance
	Assets []storedAssetBalance
}

type storedPayout struct {
	Asset  string
	Amount *big.Int
}

type storedSplitRedemption struct {
	Account    [20]byte
	Tokens     uint64
	RedeemedAt *big.Int
	Payouts    []storedPayout
}

// SplitStatusGet loads the aggregate split status. A missing record yields
// the zero status.
func (m *Manager) SplitStatusGet() (*split.Status, error) {
	var stored storedSplitStatus
	ok, err := m.KVGet(splitStatusKey, &stored)
	if err != nil {
		return nil, err
	}
	if !ok {
		return &split.Status{}, nil
	}
	status := &split.Status{
		Phase:                split.Phase(stored.Phase),
		TotalEscrowed:        stored.TotalEscrowed,
		TotalEscrowedAtSplit: stored.TotalEscrowedAtSplit,
		SplitSeq:             stored.SplitSeq,
		NextSeq:              stored.NextSeq,
		Triggered:            stored.Triggered,
		RemainingShares:      stored.RemainingShares,
		Moved:                stored.Moved,
		Redeemed:             stored.Redeemed,
	}
	if stored.SplitTriggeredAt != nil {
		status.SplitTriggeredAt = stored.SplitTriggeredAt.Int64()
	}
	if stored.TriggeredAt != nil {
		status.TriggeredAt = stored.TriggeredAt.Int64()
	}
	if !status.Phase.Valid() {
		return nil, fmt.Errorf("split: invalid stored phase %d", stored.Phase)
	}
	return status, nil
}

// SplitStatusPut persists the aggregate split status.
func (m *Manager) SplitStatusPut(status *split.Status) error {
	if status == nil {
		return fmt.Errorf("split: nil status")
	}
	if !status.Phase.Valid() {
		return fmt.Errorf("split: invalid phase %d", status.Phase)
	}
	return m.KVPut(splitStatusKey, &storedSplitStatus{
		Phase:                uint8(status.Phase),
		TotalEscrowed:        status.TotalEscrowed,
		TotalEscrowedAtSplit: status.TotalEscrowedAtSplit,
		SplitTriggeredAt:     big.NewInt(status.SplitTriggeredAt),
		SplitSeq:             status.SplitSeq,
		NextSeq:              status.NextSeq,
		Triggered:            status.Triggered,
		TriggeredAt:          big.NewInt(status.TriggeredAt),
		RemainingShares:      status.RemainingShares,
		Moved:                status.Moved,
		Redeemed:             status.Redeemed,
	})
}

// SplitDepositGet loads the live deposit record for tokenID.
func (m *Manager) SplitDepositGet(tokenID uint64) (*split.Deposit, bool, error) {
	var stored storedSplitDeposit
	ok, err := m.KVGet(splitTokenKey(splitDepositPrefix, tokenID), &stored)
	if err != nil || !ok {
		return nil, false, err
	}
	record := &split.Deposit{
		TokenID:   stored.TokenID,
		Depositor: stored.Depositor,
		Note:      stored.Note,
		Seq:       stored.Seq,
	}
	if stored.DepositedAt != nil {
		record.DepositedAt = stored.DepositedAt.Int64()
	}
	return record, true, nil
}

// SplitDepositPut stores a deposit record and indexes it under its depositor.
func (m *Manager) SplitDepositPut(d *split.Deposit) error {
	sanitized, err := split.SanitizeDeposit(d)
	if err != nil {
		return err
	}
	key := splitTokenKey(splitDepositPrefix, sanitized.TokenID)
	var previous storedSplitDeposit
	existed, err := m.KVGet(key, &previous)
	if err != nil {
		return err
	}
	if existed && previous.Depositor != sanitized.Depositor {
		if err := m.removeID(splitAccountKey(splitOwnerIndexPrefix, previous.Depositor), sanitized.TokenID); err != nil {
			return err
		}
	}
	if err := m.KVPut(key, &storedSplitDeposit{
		TokenID:     sanitized.TokenID,
		Depositor:   sanitized.Depositor,
		Note:        sanitized.Note,
		DepositedAt: big.NewInt(sanitized.DepositedAt),
		Seq:         sanitized.Seq,
	}); err != nil {
		return err
	}
	if err := m.addID(splitAccountKey(splitOwnerIndexPrefix, sanitized.Depositor), sanitized.TokenID); err != nil {
		return err
	}
	return m.addID(splitTokenIndexKey, sanitized.TokenID)
}

// SplitDepositDelete removes a deposit record and its index entries.
func (m *Manager) SplitDepositDelete(tokenID uint64) error {
	record, ok, err := m.SplitDepositGet(tokenID)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	if err := m.removeID(splitAccountKey(splitOwnerIndexPrefix, record.Depositor), tokenID); err != nil {
		return err
	}
	if err := m.removeID(splitTokenIndexKey, tokenID); err != nil {
		return err
	}
	return m.KVDelete(splitTokenKey(splitDepositPrefix, tokenID))
}

// SplitDepositsOf lists the live tokens deposited by account.
func (m *Manager) SplitDepositsOf(account [20]byte) ([]uint64, error) {
	return m.loadIDs(splitAccountKey(splitOwnerIndexPrefix, account))
}

// SplitEscrowedTokens lists every live deposited token.
func (m *Manager) SplitEscrowedTokens() ([]uint64, error) {
	return m.loadIDs(splitTokenIndexKey)
}

// SplitMoved reports whether tokenID was handed to the treasury holder.
func (m *Manager) SplitMoved(tokenID uint64) (bool, error) {
	return m.KVGet(splitTokenKey(splitMovedPrefix, tokenID), nil)
}

// SplitMarkMoved records tokenID as handed to the treasury holder.
func (m *Manager) SplitMarkMoved(tokenID uint64) error {
	return m.KVPut(splitTokenKey(splitMovedPrefix, tokenID), true)
}

// SplitTreasuryGet loads the treasury snapshot.
func (m *Manager) SplitTreasuryGet() (*split.Treasury, bool, error) {
	var stored storedSplitTreasury
	ok, err := m.KVGet(splitTreasuryKey, &stored)
	if err != nil || !ok {
		return nil, false, err
	}
	out := &split.Treasury{Native: stored.Native.toBalance()}
	for _, asset := range stored.Assets {
		out.Assets = append(out.Assets, asset.toBalance())
	}
	return out, true, nil
}

// SplitTreasuryPut persists the treasury snapshot.
func (m *Manager) SplitTreasuryPut(t *split.Treasury) error {
	sanitized, err := split.SanitizeTreasury(t)
	if err != nil {
		return err
	}
	stored := &storedSplitTreasury{Native: newStoredAssetBalance(sanitized.Native)}
	for _, asset := range sanitized.Assets {
		stored.Assets = append(stored.Assets, newStoredAssetBalance(asset))
	}
	return m.KVPut(splitTreasuryKey, stored)
}

// SplitRedemptionGet loads the redemption recorded for account.
func (m *Manager) SplitRedemptionGet(account [20]byte) (*split.Redemption, bool, error) {
	var stored storedSplitRedemption
	ok, err := m.KVGet(splitAccountKey(splitRedemptionPrefix, account), &stored)
	if err != nil || !ok {
		return nil, false, err
	}
	out := &split.Redemption{Account: stored.Account, Tokens: stored.Tokens}
	if stored.RedeemedAt != nil {
		out.RedeemedAt = stored.RedeemedAt.Int64()
	}
	for _, p := range stored.Payouts {
		out.Payouts = append(out.Payouts, split.Payout{Asset: p.Asset, Amount: nonNil(p.Amount)})
	}
	return out, true, nil
}

// SplitRedemptionPut records the redemption of an account. An account can
// only be recorded once.
func (m *Manager) SplitRedemptionPut(r *split.Redemption) error {
	if r == nil {
		return fmt.Errorf("split: nil redemption")
	}
	key := splitAccountKey(splitRedemptionPrefix, r.Account)
	if exists, err := m.KVGet(key, nil); err != nil {
		return err
	} else if exists {
		return split.ErrAlreadyRedeemed
	}
	stored := &storedSplitRedemption{
		Account:    r.Account,
		Tokens:     r.Tokens,
		RedeemedAt: big.NewInt(r.RedeemedAt),
	}
	for _, p := range r.Payouts {
		stored.Payouts = append(stored.Payouts, storedPayout{Asset: p.Asset, Amount: nonNil(p.Amount)})
	}
	return m.KVPut(key, stored)
}

func newStoredAssetBalance(b split.AssetBalance) storedAssetBalance {
	return storedAssetBalance{Asset: b.Asset, Captured: nonNil(b.Captured), Remaining: nonNil(b.Remaining)}
}

func (s storedAssetBalance) toBalance() split.AssetBalance {
	return split.AssetBalance{Asset: s.Asset, Captured: nonNil(s.Captured), Remaining: nonNil(s.Remaining)}
}

func nonNil(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}
