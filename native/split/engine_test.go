package split_test

import (
	"bytes"
	"errors"
	"math/big"
	"testing"
	"time"

	"daosplit/core/events"
	"daosplit/core/state"
	"daosplit/native/bank"
	"daosplit/native/collection"
	"daosplit/native/split"
	"daosplit/native/treasury"
	"daosplit/storage"
)

const testAsset = "USDC"

func newTestAddress(fill byte) [20]byte {
	var addr [20]byte
	copy(addr[:], bytes.Repeat([]byte{fill}, 20))
	return addr
}

var (
	engineAccount   = newTestAddress(0xEE)
	treasuryAccount = newTestAddress(0xDA)
	custodyAccount  = newTestAddress(0xDC)
	alice           = newTestAddress(0x01)
	bob             = newTestAddress(0x02)
	carol           = newTestAddress(0x03)
)

// hookedCustodian wraps the collection ledger so tests can observe or fail
// individual transfers.
type hookedCustodian struct {
	*collection.Ledger
	calls      int
	onTransfer func(call int, tokenID uint64) error
}

func (c *hookedCustodian) TransferFrom(operator, from, to [20]byte, tokenID uint64) error {
	c.calls++
	if c.onTransfer != nil {
		if err := c.onTransfer(c.calls, tokenID); err != nil {
			return err
		}
	}
	return c.Ledger.TransferFrom(operator, from, to, tokenID)
}

type harness struct {
	t          *testing.T
	db         *storage.MemDB
	manager    *state.Manager
	collection *collection.Ledger
	custodian  *hookedCustodian
	bank       *bank.Ledger
	holder     *treasury.Holder
	engine     *split.Engine
	recorder   *events.Recorder
	now        int64
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{t: t, db: storage.NewMemDB(), now: 1_700_000_000}
	h.manager = state.NewManager(h.db)
	if err := h.manager.RegisterAsset(testAsset, "USD Coin", 6); err != nil {
		t.Fatalf("register asset: %v", err)
	}
	h.collection = collection.NewLedger(h.manager)
	h.custodian = &hookedCustodian{Ledger: h.collection}
	h.bank = bank.NewLedger(h.manager)
	holder, err := treasury.NewHolder(h.manager, h.bank, treasuryAccount, custodyAccount)
	if err != nil {
		t.Fatalf("new holder: %v", err)
	}
	h.holder = holder
	engine, err := split.NewEngine(split.DefaultParams())
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	h.recorder = events.NewRecorder(0)
	engine.SetState(h.manager)
	engine.SetAccount(engineAccount)
	engine.SetCustodian(h.custodian)
	engine.SetTreasury(h.holder)
	engine.SetBank(h.bank)
	engine.SetEmitter(h.recorder)
	engine.SetNowFunc(func() int64 { return h.now })
	h.engine = engine
	h.commit()
	return h
}

func (h *harness) commit() {
	h.t.Helper()
	if err := h.manager.Commit(); err != nil {
		h.t.Fatalf("commit: %v", err)
	}
}

// mint creates ids for owner and approves the engine to pull them.
func (h *harness) mint(owner [20]byte, ids ...uint64) {
	h.t.Helper()
	for _, id := range ids {
		if err := h.collection.Mint(owner, id); err != nil {
			h.t.Fatalf("mint %d: %v", id, err)
		}
		if err := h.collection.Approve(owner, engineAccount, id); err != nil {
			h.t.Fatalf("approve %d: %v", id, err)
		}
	}
	h.commit()
}

func (h *harness) fund(native, asset int64) {
	h.t.Helper()
	if native > 0 {
		if err := h.bank.Credit(treasuryAccount, split.NativeAsset, big.NewInt(native)); err != nil {
			h.t.Fatalf("credit native: %v", err)
		}
	}
	if asset > 0 {
		if err := h.bank.Credit(treasuryAccount, testAsset, big.NewInt(asset)); err != nil {
			h.t.Fatalf("credit asset: %v", err)
		}
	}
	h.commit()
}

func (h *harness) deposit(owner [20]byte, ids ...uint64) {
	h.t.Helper()
	if err := h.engine.Deposit(owner, ids, ""); err != nil {
		h.t.Fatalf("deposit %v: %v", ids, err)
	}
}

func (h *harness) owner(id uint64) [20]byte {
	h.t.Helper()
	owner, err := h.collection.OwnerOf(id)
	if err != nil {
		h.t.Fatalf("owner of %d: %v", id, err)
	}
	return owner
}

func (h *harness) balance(account [20]byte, asset string) int64 {
	h.t.Helper()
	bal, err := h.bank.Balance(account, asset)
	if err != nil {
		h.t.Fatalf("balance: %v", err)
	}
	return bal.Int64()
}

func (h *harness) status() *split.Status {
	h.t.Helper()
	status, err := h.engine.Status()
	if err != nil {
		h.t.Fatalf("status: %v", err)
	}
	return status
}

func (h *harness) pastWindow() {
	h.now += int64(split.DefaultWaitingWindow/time.Second) + 1
}

func ids(from, to uint64) []uint64 {
	out := make([]uint64, 0, to-from+1)
	for id := from; id <= to; id++ {
		out = append(out, id)
	}
	return out
}

func TestDepositAndWithdrawTrackLiveRecords(t *testing.T) {
	h := newHarness(t)
	h.mint(alice, 1, 2, 3)
	h.deposit(alice, 1, 2, 3)
	if got := h.status().TotalEscrowed; got != 3 {
		t.Fatalf("expected 3 escrowed, got %d", got)
	}
	for _, id := range []uint64{1, 2, 3} {
		if h.owner(id) != engineAccount {
			t.Fatalf("token %d should be held by the engine", id)
		}
	}
	if err := h.engine.Withdraw(bob, 2); !errors.Is(err, split.ErrNotDepositor) {
		t.Fatalf("expected ErrNotDepositor, got %v", err)
	}
	if err := h.engine.Withdraw(alice, 99); !errors.Is(err, split.ErrNotDepositor) {
		t.Fatalf("expected ErrNotDepositor for unknown token, got %v", err)
	}
	if err := h.engine.Withdraw(alice, 2); err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if h.owner(2) != alice {
		t.Fatalf("withdrawn token should return to depositor")
	}
	if got := h.status().TotalEscrowed; got != 2 {
		t.Fatalf("expected 2 escrowed, got %d", got)
	}
	if _, err := h.engine.DepositInfo(2); !errors.Is(err, split.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	held, err := h.engine.DepositsOf(alice)
	if err != nil {
		t.Fatalf("deposits of: %v", err)
	}
	if len(held) != 2 || held[0] != 1 || held[1] != 3 {
		t.Fatalf("unexpected deposits %v", held)
	}
	if got := len(h.recorder.Filter(split.EventTypeWithdrawn)); got != 1 {
		t.Fatalf("expected 1 withdrawn event, got %d", got)
	}
}

func TestDepositRejectsUnauthorizedCaller(t *testing.T) {
	h := newHarness(t)
	h.mint(alice, 1, 2)
	if err := h.engine.Deposit(bob, []uint64{1}, ""); !errors.Is(err, split.ErrNotAuthorized) {
		t.Fatalf("expected ErrNotAuthorized, got %v", err)
	}
	if err := h.engine.Deposit(alice, []uint64{1, 404}, ""); !errors.Is(err, split.ErrNotAuthorized) {
		t.Fatalf("expected ErrNotAuthorized for unknown token, got %v", err)
	}
	if h.owner(1) != alice {
		t.Fatalf("failed batch must not move tokens")
	}
	if err := h.engine.Deposit(alice, nil, ""); !errors.Is(err, split.ErrEmptyBatch) {
		t.Fatalf("expected ErrEmptyBatch, got %v", err)
	}
	if err := h.engine.Deposit(alice, []uint64{1, 1}, ""); !errors.Is(err, split.ErrDuplicateToken) {
		t.Fatalf("expected ErrDuplicateToken, got %v", err)
	}
	long := string(bytes.Repeat([]byte{'x'}, split.MaxNoteLength+1))
	if err := h.engine.Deposit(alice, []uint64{1}, long); !errors.Is(err, split.ErrNoteTooLong) {
		t.Fatalf("expected ErrNoteTooLong, got %v", err)
	}

	// An operator of the owner may deposit on the owner's behalf.
	if err := h.collection.SetApprovalForAll(alice, carol, true); err != nil {
		t.Fatalf("set operator: %v", err)
	}
	h.commit()
	if err := h.engine.Deposit(carol, []uint64{2}, "delegated"); err != nil {
		t.Fatalf("operator deposit: %v", err)
	}
	record, err := h.engine.DepositInfo(2)
	if err != nil {
		t.Fatalf("deposit info: %v", err)
	}
	if record.Depositor != carol || record.Note != "delegated" {
		t.Fatalf("unexpected record %+v", record)
	}
	if err := h.engine.Deposit(carol, []uint64{2}, ""); !errors.Is(err, split.ErrAlreadyDeposited) {
		t.Fatalf("expected ErrAlreadyDeposited, got %v", err)
	}
}

func TestPhaseFlipsOnceAtThreshold(t *testing.T) {
	h := newHarness(t)
	h.mint(alice, ids(1, 7)...)
	h.mint(bob, 8)

	if _, err := h.engine.TriggerSplit(); !errors.Is(err, split.ErrNotInPostSplitPeriod) {
		t.Fatalf("expected ErrNotInPostSplitPeriod before the split, got %v", err)
	}
	h.deposit(alice, ids(1, 6)...)
	if h.status().Phase != split.PhaseCollecting {
		t.Fatalf("phase should still be collecting")
	}
	h.deposit(alice, 7)
	status := h.status()
	if status.Phase != split.PhaseSplitTriggered || status.TotalEscrowed != 7 {
		t.Fatalf("expected split at 7, got %+v", status)
	}
	if status.TotalEscrowedAtSplit != 7 || status.SplitTriggeredAt != h.now {
		t.Fatalf("unexpected split snapshot %+v", status)
	}

	h.now += 60
	h.deposit(bob, 8)
	status = h.status()
	if status.Phase != split.PhaseSplitTriggered || status.TotalEscrowed != 8 {
		t.Fatalf("expected count 8 after post-split deposit, got %+v", status)
	}
	if status.TotalEscrowedAtSplit != 7 {
		t.Fatalf("split snapshot must not change, got %d", status.TotalEscrowedAtSplit)
	}
	if err := h.engine.Withdraw(bob, 8); !errors.Is(err, split.ErrWithdrawalsClosed) {
		t.Fatalf("expected ErrWithdrawalsClosed, got %v", err)
	}
	if err := h.engine.Withdraw(alice, 1); !errors.Is(err, split.ErrWithdrawalsClosed) {
		t.Fatalf("expected ErrWithdrawalsClosed, got %v", err)
	}
	if got := len(h.recorder.Filter(split.EventTypePhaseChanged)); got != 1 {
		t.Fatalf("expected a single phase change event, got %d", got)
	}
	end, ok, err := h.engine.SplitWindowEndsAt()
	if err != nil || !ok {
		t.Fatalf("window end: %v %v", ok, err)
	}
	if end != status.SplitTriggeredAt+int64(split.DefaultWaitingWindow/time.Second) {
		t.Fatalf("unexpected window end %d", end)
	}
}

func TestWithdrawBelowThresholdKeepsCollecting(t *testing.T) {
	h := newHarness(t)
	h.mint(alice, ids(1, 7)...)
	h.deposit(alice, ids(1, 6)...)
	if err := h.engine.Withdraw(alice, 6); err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if h.owner(6) != alice {
		t.Fatalf("withdrawn token must return to its depositor")
	}
	h.deposit(alice, 7)
	if h.status().Phase != split.PhaseCollecting {
		t.Fatalf("6 live deposits must not flip the phase")
	}
	// the transfer back cleared the per-token approval
	if err := h.collection.Approve(alice, engineAccount, 6); err != nil {
		t.Fatalf("approve: %v", err)
	}
	h.commit()
	h.deposit(alice, 6)
	if h.status().Phase != split.PhaseSplitTriggered {
		t.Fatalf("7 live deposits must flip the phase")
	}
}

func TestTriggerRequiresWaitingWindow(t *testing.T) {
	h := newHarness(t)
	h.mint(alice, ids(1, 7)...)
	h.fund(10, 10_000)
	if _, err := h.engine.TriggerSplit(); !errors.Is(err, split.ErrNotInPostSplitPeriod) {
		t.Fatalf("expected ErrNotInPostSplitPeriod before threshold, got %v", err)
	}
	h.deposit(alice, ids(1, 7)...)
	if _, err := h.engine.TriggerSplit(); !errors.Is(err, split.ErrNotInPostSplitPeriod) {
		t.Fatalf("expected ErrNotInPostSplitPeriod inside window, got %v", err)
	}
	if _, err := h.engine.Redeem(alice); !errors.Is(err, split.ErrSplitNotTriggered) {
		t.Fatalf("expected ErrSplitNotTriggered, got %v", err)
	}
	h.pastWindow()
	snapshot, err := h.engine.TriggerSplit()
	if err != nil {
		t.Fatalf("trigger: %v", err)
	}
	if snapshot.Native.Captured.Int64() != 10 {
		t.Fatalf("expected 10 native captured, got %s", snapshot.Native.Captured)
	}
	captured, ok := snapshot.Balance(testAsset)
	if !ok || captured.Captured.Int64() != 10_000 {
		t.Fatalf("expected 10000 asset captured, got %+v", captured)
	}
	if _, err := h.engine.TriggerSplit(); !errors.Is(err, split.ErrAlreadyTriggered) {
		t.Fatalf("expected ErrAlreadyTriggered, got %v", err)
	}
	if h.balance(engineAccount, split.NativeAsset) != 10 {
		t.Fatalf("engine should hold the pulled native balance")
	}
}

func TestMoveTokensIsIdempotent(t *testing.T) {
	h := newHarness(t)
	h.mint(alice, ids(1, 7)...)
	h.mint(bob, 8)
	if _, err := h.engine.MoveTokens([]uint64{1}); !errors.Is(err, split.ErrSplitNotReached) {
		t.Fatalf("expected ErrSplitNotReached, got %v", err)
	}
	h.deposit(alice, ids(1, 7)...)
	h.deposit(bob, 8)

	moved, err := h.engine.MoveTokens([]uint64{1, 2, 3, 3})
	if err != nil {
		t.Fatalf("move: %v", err)
	}
	if len(moved) != 3 {
		t.Fatalf("expected 3 moved, got %v", moved)
	}
	moved, err = h.engine.MoveTokens([]uint64{2, 3, 4, 5})
	if err != nil {
		t.Fatalf("second move: %v", err)
	}
	if len(moved) != 2 || moved[0] != 4 || moved[1] != 5 {
		t.Fatalf("expected only 4 and 5 to move, got %v", moved)
	}
	if _, err := h.engine.MoveTokens([]uint64{6, 404}); !errors.Is(err, split.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if h.owner(6) != engineAccount {
		t.Fatalf("failed move batch must leave token 6 with the engine")
	}
	pending, err := h.engine.PendingMoves(0)
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if len(pending) != 3 {
		t.Fatalf("expected 3 pending moves, got %v", pending)
	}
	if _, err := h.engine.MoveTokens(pending); err != nil {
		t.Fatalf("final move: %v", err)
	}
	for _, id := range ids(1, 8) {
		if h.owner(id) != custodyAccount {
			t.Fatalf("token %d should be in treasury custody", id)
		}
	}
	held, err := h.collection.BalanceOf(engineAccount)
	if err != nil || held != 0 {
		t.Fatalf("engine should hold no tokens, got %d %v", held, err)
	}
	if got := h.status().Moved; got != 8 {
		t.Fatalf("expected 8 moved, got %d", got)
	}
	if moved, err := h.engine.MoveTokens(ids(1, 8)); err != nil || len(moved) != 0 {
		t.Fatalf("repeated move should be a no-op, got %v %v", moved, err)
	}
}

func TestDepositBatchRollsBackOnTransferFailure(t *testing.T) {
	h := newHarness(t)
	h.mint(alice, 1, 2, 3, 4)
	failure := errors.New("custodian offline")
	h.custodian.onTransfer = func(call int, _ uint64) error {
		if call == 3 {
			return failure
		}
		return nil
	}
	if err := h.engine.Deposit(alice, []uint64{1, 2, 3, 4}, ""); !errors.Is(err, failure) {
		t.Fatalf("expected custodian failure, got %v", err)
	}
	for _, id := range []uint64{1, 2, 3, 4} {
		if h.owner(id) != alice {
			t.Fatalf("token %d must remain with its owner", id)
		}
		if _, err := h.engine.DepositInfo(id); !errors.Is(err, split.ErrNotFound) {
			t.Fatalf("token %d must have no deposit record", id)
		}
	}
	if got := h.status().TotalEscrowed; got != 0 {
		t.Fatalf("expected no escrowed tokens, got %d", got)
	}
	if got := len(h.recorder.Filter(split.EventTypeDeposited)); got != 0 {
		t.Fatalf("failed deposit must not emit events, got %d", got)
	}

	h.custodian.onTransfer = nil
	h.deposit(alice, 1, 2, 3, 4)
	if got := h.status().TotalEscrowed; got != 4 {
		t.Fatalf("retry should escrow all 4, got %d", got)
	}
}

func TestReentrantCallsAreRejected(t *testing.T) {
	h := newHarness(t)
	h.mint(alice, 1, 2)
	h.deposit(alice, 1)

	var nested error
	h.custodian.onTransfer = func(_ int, _ uint64) error {
		nested = h.engine.Withdraw(alice, 1)
		return nil
	}
	h.deposit(alice, 2)
	if !errors.Is(nested, split.ErrReentrantCall) {
		t.Fatalf("expected ErrReentrantCall, got %v", nested)
	}
	if h.owner(1) != engineAccount {
		t.Fatalf("nested withdraw must not release token 1")
	}

	// A failing nested call must not poison later operations.
	h.custodian.onTransfer = nil
	if err := h.engine.Withdraw(alice, 1); err != nil {
		t.Fatalf("withdraw after reentrancy: %v", err)
	}
}

func TestEngineRequiresWiring(t *testing.T) {
	engine, err := split.NewEngine(split.DefaultParams())
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	if err := engine.Deposit(alice, []uint64{1}, ""); err == nil {
		t.Fatalf("expected error without state")
	}
	if _, err := split.NewEngine(split.Params{Threshold: 0, WaitingWindow: time.Hour}); err == nil {
		t.Fatalf("expected invalid params error")
	}
}

func TestStatePersistsAcrossManagers(t *testing.T) {
	h := newHarness(t)
	h.mint(alice, 1, 2)
	h.deposit(alice, 1, 2)

	reopened := state.NewManager(h.db)
	status, err := reopened.SplitStatusGet()
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if status.TotalEscrowed != 2 || status.NextSeq != 2 {
		t.Fatalf("unexpected persisted status %+v", status)
	}
	record, ok, err := reopened.SplitDepositGet(2)
	if err != nil || !ok {
		t.Fatalf("deposit: %v %v", ok, err)
	}
	if record.Depositor != alice || record.Seq != 2 || record.DepositedAt != h.now {
		t.Fatalf("unexpected persisted record %+v", record)
	}
}
