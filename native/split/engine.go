package split

import (
	"fmt"
	"math/big"
	"time"

	"daosplit/core/events"
	"daosplit/core/types"
)

type engineState interface {
	SplitStatusGet() (*Status, error)
	SplitStatusPut(*Status) error
	SplitDepositGet(tokenID uint64) (*Deposit, bool, error)
	SplitDepositPut(*Deposit) error
	SplitDepositDelete(tokenID uint64) error
	SplitDepositsOf(account [20]byte) ([]uint64, error)
	SplitEscrowedTokens() ([]uint64, error)
	SplitMoved(tokenID uint64) (bool, error)
	SplitMarkMoved(tokenID uint64) error
	SplitTreasuryGet() (*Treasury, bool, error)
	SplitTreasuryPut(*Treasury) error
	SplitRedemptionGet(account [20]byte) (*Redemption, bool, error)
	SplitRedemptionPut(*Redemption) error

	Snapshot() int
	RevertToSnapshot(id int)
	Commit() error
}

// Custodian is the ownership ledger of the escrowed token collection.
type Custodian interface {
	OwnerOf(tokenID uint64) ([20]byte, error)
	// IsApprovedOrOwner reports whether spender may move the token.
	IsApprovedOrOwner(tokenID uint64, spender [20]byte) (bool, error)
	TransferFrom(operator, from, to [20]byte, tokenID uint64) error
}

// TreasuryHolder is the parent collective releasing its treasury share.
type TreasuryHolder interface {
	// CustodyAccount receives the escrowed tokens once the split is decided.
	CustodyAccount() [20]byte
	// Assets lists the fungible assets released alongside native currency.
	Assets() ([]string, error)
	// Release transfers the holder's share of native currency and of every
	// registered asset to the supplied account.
	Release(to [20]byte) error
}

// Bank holds the fungible balances paid out by redemptions.
type Bank interface {
	Balance(account [20]byte, asset string) (*big.Int, error)
	Transfer(from, to [20]byte, asset string, amount *big.Int) error
}

// Engine drives the escrow, split and redemption lifecycle. Every state
// mutating operation runs inside a state journal snapshot so a failure at any
// point leaves no partial effect.
//
// Engine is not safe for concurrent use; callers serialise operations.
type Engine struct {
	entered   bool
	params    Params
	account   [20]byte
	state     engineState
	custodian Custodian
	treasury  TreasuryHolder
	bank      Bank
	emitter   events.Emitter
	nowFn     func() int64
	pending   []*types.Event
}

// NewEngine creates a split engine with a no-op emitter. Callers wire the
// collaborators through the setters.
func NewEngine(params Params) (*Engine, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	return &Engine{
		params:  params,
		emitter: events.NoopEmitter{},
		nowFn:   func() int64 { return time.Now().Unix() },
	}, nil
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetAccount configures the account that holds escrowed tokens and pulled
// treasury balances.
func (e *Engine) SetAccount(addr [20]byte) { e.account = addr }

// SetCustodian configures the token ownership ledger.
func (e *Engine) SetCustodian(c Custodian) { e.custodian = c }

// SetTreasury configures the parent treasury holder.
func (e *Engine) SetTreasury(t TreasuryHolder) { e.treasury = t }

// SetBank configures the fungible balance ledger.
func (e *Engine) SetBank(b Bank) { e.bank = b }

// SetNowFunc overrides the time source used by the engine. Primarily intended
// for tests to provide deterministic timestamps.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

// SetEmitter configures the event emitter used by the engine. Passing nil resets
// the emitter to a no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// Params returns the engine configuration.
func (e *Engine) Params() Params { return e.params }

// Account returns the engine's custody account.
func (e *Engine) Account() [20]byte { return e.account }

func (e *Engine) now() int64 {
	if e == nil || e.nowFn == nil {
		return time.Now().Unix()
	}
	return e.nowFn()
}

// emit queues an event; queued events are only delivered when the operation
// commits.
func (e *Engine) emit(evt *types.Event) {
	if evt == nil {
		return
	}
	e.pending = append(e.pending, evt)
}

func (e *Engine) flushEvents() {
	queued := e.pending
	e.pending = nil
	if e.emitter == nil {
		return
	}
	for _, evt := range queued {
		e.emitter.Emit(splitEvent{evt: evt})
	}
}

func (e *Engine) ready() error {
	switch {
	case e == nil || e.state == nil:
		return errNilState
	case e.account == ([20]byte{}):
		return errNilAccount
	}
	return nil
}

// mutate runs fn as one atomic operation. Reentrant calls made by a
// collaborator while fn is running fail with ErrReentrantCall.
func (e *Engine) mutate(fn func() error) error {
	if e == nil {
		return errNilState
	}
	if e.entered {
		return ErrReentrantCall
	}
	if err := e.ready(); err != nil {
		return err
	}
	e.entered = true
	defer func() { e.entered = false }()

	snapshot := e.state.Snapshot()
	e.pending = nil
	if err := fn(); err != nil {
		e.state.RevertToSnapshot(snapshot)
		e.pending = nil
		return err
	}
	if err := e.state.Commit(); err != nil {
		e.state.RevertToSnapshot(snapshot)
		e.pending = nil
		return fmt.Errorf("split: commit state: %w", err)
	}
	e.flushEvents()
	return nil
}

func (e *Engine) view(fn func() error) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	return fn()
}

func (e *Engine) loadStatus() (*Status, error) {
	status, err := e.state.SplitStatusGet()
	if err != nil {
		return nil, err
	}
	if status == nil {
		return &Status{}, nil
	}
	return status, nil
}

// Status returns a copy of the aggregate counters and phase flags.
func (e *Engine) Status() (*Status, error) {
	var out *Status
	err := e.view(func() error {
		status, err := e.loadStatus()
		if err != nil {
			return err
		}
		out = status.Clone()
		return nil
	})
	return out, err
}
