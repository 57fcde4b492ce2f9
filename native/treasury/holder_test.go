package treasury

import (
	"bytes"
	"errors"
	"math/big"
	"testing"

	"daosplit/core/events"
	"daosplit/core/state"
	"daosplit/native/bank"
	"daosplit/storage"
)

func newTestAddress(fill byte) [20]byte {
	var addr [20]byte
	copy(addr[:], bytes.Repeat([]byte{fill}, 20))
	return addr
}

type fixture struct {
	manager *state.Manager
	bank    *bank.Ledger
	holder  *Holder
	account [20]byte
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	manager := state.NewManager(storage.NewMemDB())
	if err := manager.RegisterAsset("USDC", "USD Coin", 6); err != nil {
		t.Fatalf("register: %v", err)
	}
	ledger := bank.NewLedger(manager)
	account := newTestAddress(0xDA)
	if err := ledger.Credit(account, NativeAsset, big.NewInt(1000)); err != nil {
		t.Fatalf("credit native: %v", err)
	}
	if err := ledger.Credit(account, "USDC", big.NewInt(999)); err != nil {
		t.Fatalf("credit usdc: %v", err)
	}
	holder, err := NewHolder(manager, ledger, account, [20]byte{})
	if err != nil {
		t.Fatalf("new holder: %v", err)
	}
	return &fixture{manager: manager, bank: ledger, holder: holder, account: account}
}

func TestReleaseFullShare(t *testing.T) {
	f := newFixture(t)
	if f.holder.CustodyAccount() != f.account {
		t.Fatalf("custody should default to treasury account")
	}
	to := newTestAddress(0x55)
	if err := f.holder.Release(to); err != nil {
		t.Fatalf("release: %v", err)
	}
	native, _ := f.bank.Balance(to, NativeAsset)
	usdc, _ := f.bank.Balance(to, "USDC")
	if native.Int64() != 1000 || usdc.Int64() != 999 {
		t.Fatalf("unexpected release native=%s usdc=%s", native, usdc)
	}
	if err := f.holder.Release(to); !errors.Is(err, ErrAlreadyReleased) {
		t.Fatalf("expected ErrAlreadyReleased, got %v", err)
	}
}

func TestReleaseProportionalShare(t *testing.T) {
	f := newFixture(t)
	recorder := events.NewRecorder(0)
	f.holder.SetEmitter(recorder)
	escrowed := func() (uint64, error) { return 3, nil }
	supply := func() (uint64, error) { return 12, nil }
	excluded := func() (uint64, error) { return 2, nil }
	f.holder.SetShare(SupplyShare(escrowed, supply, excluded))
	to := newTestAddress(0x55)
	if err := f.holder.Release(to); err != nil {
		t.Fatalf("release: %v", err)
	}
	native, _ := f.bank.Balance(to, NativeAsset)
	usdc, _ := f.bank.Balance(to, "USDC")
	if native.Int64() != 300 || usdc.Int64() != 299 {
		t.Fatalf("unexpected release native=%s usdc=%s", native, usdc)
	}
	released := recorder.Filter(EventTypeReleased)
	if len(released) != 1 || released[0].Attributes["denominator"] != "10" {
		t.Fatalf("unexpected events %+v", released)
	}
}

func TestReleaseRejectsInvalidShare(t *testing.T) {
	f := newFixture(t)
	f.holder.SetShare(func() (uint64, uint64, error) { return 2, 1, nil })
	if err := f.holder.Release(newTestAddress(0x55)); !errors.Is(err, ErrInvalidShare) {
		t.Fatalf("expected ErrInvalidShare, got %v", err)
	}
	f.holder.SetShare(SupplyShare(
		func() (uint64, error) { return 1, nil },
		func() (uint64, error) { return 1, nil },
		func() (uint64, error) { return 2, nil },
	))
	if err := f.holder.Release(newTestAddress(0x56)); !errors.Is(err, ErrInvalidShare) {
		t.Fatalf("expected ErrInvalidShare, got %v", err)
	}
}
