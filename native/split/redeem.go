package split

import (
	"fmt"
	"math/big"
)

// TriggerSplit pulls the treasury holder's share into the engine account. It
// may run once, after the waiting window following the phase flip. The
// snapshot records what the engine actually received, measured as the balance
// delta of every released asset.
func (e *Engine) TriggerSplit() (*Treasury, error) {
	var out *Treasury
	err := e.mutate(func() error {
		if e.treasury == nil {
			return errNilTreasury
		}
		if e.bank == nil {
			return errNilBank
		}
		status, err := e.loadStatus()
		if err != nil {
			return err
		}
		if status.Phase != PhaseSplitTriggered {
			return ErrNotInPostSplitPeriod
		}
		now := e.now()
		if now < windowEnd(status.SplitTriggeredAt, e.params.WaitingWindow) {
			return ErrNotInPostSplitPeriod
		}
		if status.Triggered {
			return ErrAlreadyTriggered
		}
		if _, exists, err := e.state.SplitTreasuryGet(); err != nil {
			return err
		} else if exists {
			return ErrAlreadyTriggered
		}

		assets, err := e.releasedAssets()
		if err != nil {
			return err
		}
		before := make([]*big.Int, len(assets))
		for i, asset := range assets {
			bal, err := e.bank.Balance(e.account, asset)
			if err != nil {
				return fmt.Errorf("split: read %s balance: %w", asset, err)
			}
			before[i] = cloneBigInt(bal)
		}

		// Mark the pull before calling out so a nested trigger cannot observe
		// an untriggered state.
		status.Triggered = true
		status.TriggeredAt = now
		if err := e.state.SplitStatusPut(status); err != nil {
			return err
		}
		if err := e.treasury.Release(e.account); err != nil {
			return fmt.Errorf("split: treasury release: %w", err)
		}

		snapshot := &Treasury{}
		for i, asset := range assets {
			after, err := e.bank.Balance(e.account, asset)
			if err != nil {
				return fmt.Errorf("split: read %s balance: %w", asset, err)
			}
			received := new(big.Int).Sub(cloneBigInt(after), before[i])
			if received.Sign() < 0 {
				return fmt.Errorf("split: %s balance decreased during release", asset)
			}
			entry := AssetBalance{Asset: asset, Captured: received, Remaining: new(big.Int).Set(received)}
			if asset == NativeAsset {
				snapshot.Native = entry
				continue
			}
			snapshot.Assets = append(snapshot.Assets, entry)
		}
		if err := e.state.SplitTreasuryPut(snapshot); err != nil {
			return err
		}
		e.emit(NewTriggeredEvent(snapshot))
		out = snapshot.Clone()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// releasedAssets returns NativeAsset followed by the holder's registered
// assets, normalised and de-duplicated in registration order.
func (e *Engine) releasedAssets() ([]string, error) {
	registered, err := e.treasury.Assets()
	if err != nil {
		return nil, fmt.Errorf("split: list treasury assets: %w", err)
	}
	out := []string{NativeAsset}
	seen := map[string]struct{}{NativeAsset: {}}
	for _, asset := range registered {
		normalized := NormalizeAsset(asset)
		if normalized == "" {
			return nil, fmt.Errorf("split: empty treasury asset id")
		}
		if _, dup := seen[normalized]; dup {
			continue
		}
		seen[normalized] = struct{}{}
		out = append(out, normalized)
	}
	return out, nil
}

// Redeem pays caller their proportional cut of every pulled balance. Each
// account may redeem once. The share is computed against what is still
// unclaimed so rounding remainders flow to later redeemers.
func (e *Engine) Redeem(caller [20]byte) (*Redemption, error) {
	var out *Redemption
	err := e.mutate(func() error {
		if e.bank == nil {
			return errNilBank
		}
		status, err := e.loadStatus()
		if err != nil {
			return err
		}
		if !status.Triggered {
			return ErrSplitNotTriggered
		}
		if _, redeemed, err := e.state.SplitRedemptionGet(caller); err != nil {
			return err
		} else if redeemed {
			return ErrAlreadyRedeemed
		}
		shares, err := e.eligibleShares(status, caller)
		if err != nil {
			return err
		}
		if shares == 0 {
			return ErrNoEligibleDeposits
		}
		treasury, ok, err := e.state.SplitTreasuryGet()
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("split: treasury snapshot missing")
		}

		redemption := &Redemption{Account: caller, Tokens: shares, RedeemedAt: e.now()}
		pay := func(entry *AssetBalance) error {
			amount, err := proRataShare(entry.Remaining, shares, status.RemainingShares)
			if err != nil {
				return err
			}
			entry.Remaining = new(big.Int).Sub(entry.Remaining, amount)
			redemption.Payouts = append(redemption.Payouts, Payout{Asset: entry.Asset, Amount: amount})
			return nil
		}
		if err := pay(&treasury.Native); err != nil {
			return err
		}
		for i := range treasury.Assets {
			if err := pay(&treasury.Assets[i]); err != nil {
				return err
			}
		}
		status.RemainingShares -= shares
		status.Redeemed++

		if err := e.state.SplitTreasuryPut(treasury); err != nil {
			return err
		}
		if err := e.state.SplitRedemptionPut(redemption); err != nil {
			return err
		}
		if err := e.state.SplitStatusPut(status); err != nil {
			return err
		}
		for _, p := range redemption.Payouts {
			if p.Amount.Sign() == 0 {
				continue
			}
			if err := e.bank.Transfer(e.account, caller, p.Asset, p.Amount); err != nil {
				return fmt.Errorf("split: pay %s: %w", p.Asset, err)
			}
		}
		e.emit(NewRedeemedEvent(redemption))
		out = redemption.Clone()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// eligibleShares counts the caller's live deposits escrowed when the phase
// flipped.
func (e *Engine) eligibleShares(status *Status, account [20]byte) (uint64, error) {
	ids, err := e.state.SplitDepositsOf(account)
	if err != nil {
		return 0, err
	}
	var shares uint64
	for _, id := range ids {
		record, ok, err := e.state.SplitDepositGet(id)
		if err != nil {
			return 0, err
		}
		if !ok || record.Depositor != account {
			continue
		}
		if record.Seq <= status.SplitSeq {
			shares++
		}
	}
	return shares, nil
}

// EligibleShares reports how many of account's tokens count towards
// redemption.
func (e *Engine) EligibleShares(account [20]byte) (uint64, error) {
	var out uint64
	err := e.view(func() error {
		status, err := e.loadStatus()
		if err != nil {
			return err
		}
		if status.Phase != PhaseSplitTriggered {
			return nil
		}
		out, err = e.eligibleShares(status, account)
		return err
	})
	return out, err
}

// Treasury returns the snapshot recorded by TriggerSplit.
func (e *Engine) Treasury() (*Treasury, error) {
	var out *Treasury
	err := e.view(func() error {
		snapshot, ok, err := e.state.SplitTreasuryGet()
		if err != nil {
			return err
		}
		if !ok {
			return ErrSplitNotTriggered
		}
		out = snapshot.Clone()
		return nil
	})
	return out, err
}

// Redemption returns the recorded claim of account, if any.
func (e *Engine) Redemption(account [20]byte) (*Redemption, bool, error) {
	var (
		out *Redemption
		ok  bool
	)
	err := e.view(func() error {
		r, found, err := e.state.SplitRedemptionGet(account)
		if err != nil {
			return err
		}
		out, ok = r.Clone(), found
		return nil
	})
	return out, ok, err
}

// HasRedeemed reports whether account already claimed its share.
func (e *Engine) HasRedeemed(account [20]byte) (bool, error) {
	_, ok, err := e.Redemption(account)
	return ok, err
}
