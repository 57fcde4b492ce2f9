package bank

import (
	"bytes"
	"errors"
	"math/big"
	"testing"

	"daosplit/core/events"
	"daosplit/core/state"
	"daosplit/storage"
)

func newTestAddress(fill byte) [20]byte {
	var addr [20]byte
	copy(addr[:], bytes.Repeat([]byte{fill}, 20))
	return addr
}

func newTestLedger(t *testing.T) (*Ledger, *state.Manager) {
	t.Helper()
	manager := state.NewManager(storage.NewMemDB())
	if err := manager.RegisterAsset("usdc", "USD Coin", 6); err != nil {
		t.Fatalf("register asset: %v", err)
	}
	return NewLedger(manager), manager
}

func TestTransferMovesBalances(t *testing.T) {
	ledger, _ := newTestLedger(t)
	alice, bob := newTestAddress(0x01), newTestAddress(0x02)
	if err := ledger.Credit(alice, NativeAsset, big.NewInt(100)); err != nil {
		t.Fatalf("credit: %v", err)
	}
	if err := ledger.Transfer(alice, bob, "native", big.NewInt(40)); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	aliceBal, _ := ledger.Balance(alice, NativeAsset)
	bobBal, _ := ledger.Balance(bob, NativeAsset)
	if aliceBal.Int64() != 60 || bobBal.Int64() != 40 {
		t.Fatalf("unexpected balances alice=%s bob=%s", aliceBal, bobBal)
	}
}

func TestTransferRejectsInvalidInput(t *testing.T) {
	ledger, _ := newTestLedger(t)
	alice, bob := newTestAddress(0x01), newTestAddress(0x02)
	if err := ledger.Credit(alice, "USDC", big.NewInt(5)); err != nil {
		t.Fatalf("credit: %v", err)
	}
	if err := ledger.Transfer(alice, bob, "USDC", big.NewInt(6)); !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
	if err := ledger.Transfer(alice, bob, "USDC", big.NewInt(0)); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
	if err := ledger.Transfer(alice, bob, "DAI", big.NewInt(1)); !errors.Is(err, ErrUnknownAsset) {
		t.Fatalf("expected ErrUnknownAsset, got %v", err)
	}
	if err := ledger.Transfer(alice, [20]byte{}, "USDC", big.NewInt(1)); !errors.Is(err, ErrInvalidAccount) {
		t.Fatalf("expected ErrInvalidAccount, got %v", err)
	}
}

func TestBalancesPersistAfterCommit(t *testing.T) {
	db := storage.NewMemDB()
	manager := state.NewManager(db)
	ledger := NewLedger(manager)
	alice := newTestAddress(0x01)
	if err := ledger.Credit(alice, NativeAsset, big.NewInt(9)); err != nil {
		t.Fatalf("credit: %v", err)
	}
	if err := manager.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
	reopened := NewLedger(state.NewManager(db))
	bal, err := reopened.Balance(alice, NativeAsset)
	if err != nil || bal.Int64() != 9 {
		t.Fatalf("expected persisted balance 9, got %v %v", bal, err)
	}
}

func TestTransferEmitsEvent(t *testing.T) {
	ledger, _ := newTestLedger(t)
	recorder := events.NewRecorder(0)
	ledger.SetEmitter(recorder)
	alice, bob := newTestAddress(0x01), newTestAddress(0x02)
	if err := ledger.Credit(alice, "USDC", big.NewInt(3)); err != nil {
		t.Fatalf("credit: %v", err)
	}
	if err := ledger.Transfer(alice, bob, "USDC", big.NewInt(2)); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	transfers := recorder.Filter(events.TypeTransfer)
	if len(transfers) != 2 {
		t.Fatalf("expected 2 transfer events, got %d", len(transfers))
	}
	if got := transfers[1].Attributes["amount"]; got != "2" {
		t.Fatalf("unexpected amount %q", got)
	}
	if got := transfers[1].Attributes["asset"]; got != "USDC" {
		t.Fatalf("unexpected asset %q", got)
	}
}
