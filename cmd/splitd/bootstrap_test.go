package main

import (
	"io"
	"log/slog"
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"daosplit/config"
	"daosplit/core/state"
	"daosplit/crypto"
	"daosplit/native/split"
	"daosplit/storage"
)

var (
	testEngine   = [20]byte{0xEE}
	testTreasury = [20]byte{0xDA}
	testOwner    = [20]byte{0x01}
)

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Treasury.Account = crypto.FormatAccount(testTreasury)
	cfg.Assets = []config.Asset{{Symbol: "usdc", Name: "USD Coin", Decimals: 6}}
	cfg.Genesis = config.Genesis{
		Tokens: []config.GenesisTokens{{
			Owner:         crypto.FormatAccount(testOwner),
			IDs:           []uint64{1, 2, 3},
			ApproveEngine: true,
		}},
		Balances: []config.GenesisBalance{
			{Account: crypto.FormatAccount(testTreasury), Asset: "NATIVE", Amount: "900"},
			{Account: crypto.FormatAccount(testTreasury), Asset: "USDC", Amount: "300"},
		},
	}
	return cfg
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestPrepareStateSeedsFreshDatabaseOnce(t *testing.T) {
	cfg := testConfig()
	db := storage.NewMemDB()

	l, err := newLedgers(cfg, state.NewManager(db))
	require.NoError(t, err)
	require.NoError(t, prepareState(cfg, l, testEngine, false, discardLogger()))

	supply, err := l.collection.TotalSupply()
	require.NoError(t, err)
	require.EqualValues(t, 3, supply)
	approved, err := l.collection.IsApprovedForAll(testOwner, testEngine)
	require.NoError(t, err)
	require.True(t, approved)
	balance, err := l.bank.Balance(testTreasury, "USDC")
	require.NoError(t, err)
	require.Equal(t, big.NewInt(300), balance)

	restarted, err := newLedgers(cfg, state.NewManager(db))
	require.NoError(t, err)
	require.NoError(t, prepareState(cfg, restarted, testEngine, false, discardLogger()))
	balance, err = restarted.bank.Balance(testTreasury, split.NativeAsset)
	require.NoError(t, err)
	require.Equal(t, big.NewInt(900), balance)

	version, ok, err := restarted.manager.StateVersion()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, state.StateVersion, version)
}

func TestPrepareStateRejectsUnknownGenesisAsset(t *testing.T) {
	cfg := testConfig()
	cfg.Assets = nil
	l, err := newLedgers(cfg, state.NewManager(storage.NewMemDB()))
	require.NoError(t, err)
	require.Error(t, prepareState(cfg, l, testEngine, false, discardLogger()))

	_, ok, err := l.manager.StateVersion()
	require.NoError(t, err)
	require.False(t, ok)
}

func TestSupplyShareExcludesCustodyHoldings(t *testing.T) {
	cfg := testConfig()
	cfg.Split.Threshold = 2
	cfg.Genesis.Tokens = append(cfg.Genesis.Tokens, config.GenesisTokens{
		Owner: crypto.FormatAccount(testTreasury),
		IDs:   []uint64{10},
	})
	l, err := newLedgers(cfg, state.NewManager(storage.NewMemDB()))
	require.NoError(t, err)
	require.NoError(t, prepareState(cfg, l, testEngine, false, discardLogger()))

	engine, _, _, err := newEngine(cfg, l, testEngine, discardLogger())
	require.NoError(t, err)
	require.NoError(t, engine.Deposit(testOwner, []uint64{1, 2}, ""))

	num, den, err := shareFunc(config.ShareModeSupply, engine, l)()
	require.NoError(t, err)
	require.EqualValues(t, 2, num)
	require.EqualValues(t, 3, den)

	num, den, err = shareFunc(config.ShareModeFull, engine, l)()
	require.NoError(t, err)
	require.Equal(t, num, den)
}
