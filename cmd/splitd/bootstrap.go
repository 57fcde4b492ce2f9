package main

import (
	"fmt"
	"log/slog"

	"daosplit/config"
	"daosplit/core/state"
	"daosplit/native/bank"
	"daosplit/native/collection"
	"daosplit/native/split"
	"daosplit/native/treasury"
)

// ledgers bundles the collaborators sharing one state manager.
type ledgers struct {
	manager    *state.Manager
	collection *collection.Ledger
	bank       *bank.Ledger
	holder     *treasury.Holder
}

func newLedgers(cfg *config.Config, manager *state.Manager) (*ledgers, error) {
	account, custody, err := cfg.TreasuryAccounts()
	if err != nil {
		return nil, err
	}
	l := &ledgers{
		manager:    manager,
		collection: collection.NewLedger(manager),
		bank:       bank.NewLedger(manager),
	}
	holder, err := treasury.NewHolder(manager, l.bank, account, custody)
	if err != nil {
		return nil, err
	}
	l.holder = holder
	return l, nil
}

// registerAssets adds configured assets missing from state.
func registerAssets(manager *state.Manager, assets []config.Asset) (int, error) {
	added := 0
	for _, asset := range assets {
		symbol := split.NormalizeAsset(asset.Symbol)
		ok, err := manager.AssetRegistered(symbol)
		if err != nil {
			return added, err
		}
		if ok {
			continue
		}
		if err := manager.RegisterAsset(symbol, asset.Name, asset.Decimals); err != nil {
			return added, fmt.Errorf("register asset %s: %w", symbol, err)
		}
		added++
	}
	return added, nil
}

// prepareState checks the schema version, registers configured assets and,
// on a freshly created database, applies the genesis allocations. The version
// stamp of a fresh database is committed together with the allocations.
func prepareState(cfg *config.Config, l *ledgers, engineAccount [20]byte, allowMigrate bool, logger *slog.Logger) error {
	_, existed, err := l.manager.StateVersion()
	if err != nil {
		return err
	}
	if existed {
		if err := l.manager.EnsureStateVersion(allowMigrate); err != nil {
			return err
		}
	} else if err := l.manager.SetStateVersion(state.StateVersion); err != nil {
		return err
	}
	added, err := registerAssets(l.manager, cfg.Assets)
	if err != nil {
		l.manager.Discard()
		return err
	}
	if added > 0 {
		logger.Info("assets registered", slog.Int("count", added))
	}
	if !existed {
		if err := seedGenesis(cfg, l, engineAccount, logger); err != nil {
			l.manager.Discard()
			return err
		}
	}
	return l.manager.Commit()
}

// seedGenesis mints the configured tokens and credits balances.
func seedGenesis(cfg *config.Config, l *ledgers, engineAccount [20]byte, logger *slog.Logger) error {
	alloc, err := cfg.GenesisAllocations()
	if err != nil {
		return err
	}
	if len(alloc.Tokens) == 0 && len(alloc.Balances) == 0 {
		return nil
	}
	for _, entry := range alloc.Tokens {
		for _, id := range entry.IDs {
			if err := l.collection.Mint(entry.Owner, id); err != nil {
				return fmt.Errorf("genesis mint %d: %w", id, err)
			}
		}
		if entry.ApproveEngine {
			if err := l.collection.SetApprovalForAll(entry.Owner, engineAccount, true); err != nil {
				return fmt.Errorf("genesis approve engine: %w", err)
			}
		}
	}
	for _, entry := range alloc.Balances {
		if err := l.bank.Credit(entry.Account, entry.Asset, entry.Amount); err != nil {
			return fmt.Errorf("genesis credit %s: %w", entry.Asset, err)
		}
	}
	logger.Info("genesis allocations applied",
		slog.Int("tokenAllocations", len(alloc.Tokens)),
		slog.Int("balanceAllocations", len(alloc.Balances)))
	return nil
}

// shareFunc builds the treasury release share for the configured mode.
// The supply mode pays escrowed/(supply - custody tokens not moved by the
// split) of every balance.
func shareFunc(mode string, engine *split.Engine, l *ledgers) treasury.ShareFunc {
	if mode == config.ShareModeFull {
		return treasury.FullShare
	}
	escrowed := func() (uint64, error) {
		status, err := engine.Status()
		if err != nil {
			return 0, err
		}
		return status.TotalEscrowedAtSplit, nil
	}
	excluded := func() (uint64, error) {
		held, err := l.collection.BalanceOf(l.holder.CustodyAccount())
		if err != nil {
			return 0, err
		}
		status, err := engine.Status()
		if err != nil {
			return 0, err
		}
		if held < status.Moved {
			return 0, nil
		}
		return held - status.Moved, nil
	}
	return treasury.SupplyShare(escrowed, l.collection.TotalSupply, excluded)
}
