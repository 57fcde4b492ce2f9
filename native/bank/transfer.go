package bank

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"daosplit/core/events"
)

var (
	ErrInvalidAmount       = errors.New("bank: amount must be positive")
	ErrInsufficientBalance = errors.New("bank: insufficient balance")
	ErrInvalidAccount      = errors.New("bank: account required")
	ErrUnknownAsset        = errors.New("bank: asset not registered")

	errNilState = errors.New("bank: state not configured")
)

// NativeAsset identifies the native currency. It never needs registration.
const NativeAsset = "NATIVE"

type ledgerState interface {
	BankBalance(account [20]byte, asset string) (*big.Int, error)
	BankSetBalance(account [20]byte, asset string, amount *big.Int) error
	AssetRegistered(symbol string) (bool, error)
}

// Ledger moves fungible balances between accounts. Writes go through the
// shared state journal; the caller decides when to commit them.
type Ledger struct {
	state   ledgerState
	emitter events.Emitter
}

// NewLedger creates a balance ledger on top of the supplied state.
func NewLedger(state ledgerState) *Ledger {
	return &Ledger{state: state, emitter: events.NoopEmitter{}}
}

// SetEmitter configures the event emitter. Passing nil resets it to a no-op.
func (l *Ledger) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		l.emitter = events.NoopEmitter{}
		return
	}
	l.emitter = emitter
}

func (l *Ledger) asset(asset string) (string, error) {
	if l == nil || l.state == nil {
		return "", errNilState
	}
	normalized := strings.ToUpper(strings.TrimSpace(asset))
	if normalized == NativeAsset {
		return normalized, nil
	}
	if normalized == "" {
		return "", ErrUnknownAsset
	}
	if ok, err := l.state.AssetRegistered(normalized); err != nil {
		return "", err
	} else if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownAsset, normalized)
	}
	return normalized, nil
}

// Balance returns the balance of asset held by account.
func (l *Ledger) Balance(account [20]byte, asset string) (*big.Int, error) {
	normalized, err := l.asset(asset)
	if err != nil {
		return nil, err
	}
	balance, err := l.state.BankBalance(account, normalized)
	if err != nil {
		return nil, err
	}
	return new(big.Int).Set(balance), nil
}

// Transfer moves amount of asset from one account to another.
func (l *Ledger) Transfer(from, to [20]byte, asset string, amount *big.Int) error {
	normalized, err := l.asset(asset)
	if err != nil {
		return err
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	if from == ([20]byte{}) || to == ([20]byte{}) {
		return ErrInvalidAccount
	}
	fromBalance, err := l.state.BankBalance(from, normalized)
	if err != nil {
		return err
	}
	if fromBalance.Cmp(amount) < 0 {
		return fmt.Errorf("%w: %s has %s, needs %s", ErrInsufficientBalance, normalized, fromBalance, amount)
	}
	if from != to {
		if err := l.state.BankSetBalance(from, normalized, new(big.Int).Sub(fromBalance, amount)); err != nil {
			return err
		}
		toBalance, err := l.state.BankBalance(to, normalized)
		if err != nil {
			return err
		}
		if err := l.state.BankSetBalance(to, normalized, new(big.Int).Add(toBalance, amount)); err != nil {
			return err
		}
	}
	l.emitter.Emit(events.Transfer{Asset: normalized, From: from, To: to, Amount: new(big.Int).Set(amount)})
	return nil
}

// Credit mints amount of asset into account. It backs genesis allocation and
// test fixtures.
func (l *Ledger) Credit(account [20]byte, asset string, amount *big.Int) error {
	normalized, err := l.asset(asset)
	if err != nil {
		return err
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	if account == ([20]byte{}) {
		return ErrInvalidAccount
	}
	balance, err := l.state.BankBalance(account, normalized)
	if err != nil {
		return err
	}
	if err := l.state.BankSetBalance(account, normalized, new(big.Int).Add(balance, amount)); err != nil {
		return err
	}
	l.emitter.Emit(events.Transfer{Asset: normalized, To: account, Amount: new(big.Int).Set(amount)})
	return nil
}
