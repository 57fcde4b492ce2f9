package treasury

import (
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"github.com/holiman/uint256"

	"daosplit/core/events"
	"daosplit/core/types"
	"daosplit/crypto"
)

const (
	// NativeAsset identifies the native currency.
	NativeAsset = "NATIVE"

	EventTypeReleased = "treasury.released"
)

var (
	ErrAlreadyReleased = errors.New("treasury: share already released to recipient")
	ErrInvalidShare    = errors.New("treasury: invalid share")
	ErrInvalidAccount  = errors.New("treasury: account required")

	errNilState = errors.New("treasury: state not configured")
	errNilBank  = errors.New("treasury: bank not configured")
)

type holderState interface {
	Assets() ([]string, error)
	TreasuryReleased(recipient [20]byte) (bool, error)
	TreasuryMarkReleased(recipient [20]byte) error
}

// Bank is the balance ledger holding the treasury funds.
type Bank interface {
	Balance(account [20]byte, asset string) (*big.Int, error)
	Transfer(from, to [20]byte, asset string, amount *big.Int) error
}

// ShareFunc reports the fraction of the treasury to release as a
// numerator/denominator pair.
type ShareFunc func() (numerator, denominator uint64, err error)

// FullShare releases the whole treasury.
func FullShare() (uint64, uint64, error) { return 1, 1, nil }

// Holder is the parent collective's treasury. It releases a share of its
// native and registered asset balances once per recipient.
type Holder struct {
	state   holderState
	bank    Bank
	account [20]byte
	custody [20]byte
	share   ShareFunc
	emitter events.Emitter
}

// NewHolder creates a treasury holder paying from account. Tokens handed over
// by a split land in custody; a zero custody account defaults to account.
func NewHolder(state holderState, bank Bank, account, custody [20]byte) (*Holder, error) {
	if account == ([20]byte{}) {
		return nil, ErrInvalidAccount
	}
	if custody == ([20]byte{}) {
		custody = account
	}
	return &Holder{
		state:   state,
		bank:    bank,
		account: account,
		custody: custody,
		share:   FullShare,
		emitter: events.NoopEmitter{},
	}, nil
}

// SetShare configures how much of the treasury Release pays out. Passing nil
// restores FullShare.
func (h *Holder) SetShare(fn ShareFunc) {
	if fn == nil {
		fn = FullShare
	}
	h.share = fn
}

// SetEmitter configures the event emitter. Passing nil resets it to a no-op.
func (h *Holder) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		h.emitter = events.NoopEmitter{}
		return
	}
	h.emitter = emitter
}

// Account returns the account holding the treasury funds.
func (h *Holder) Account() [20]byte { return h.account }

// CustodyAccount returns the account that receives escrowed tokens.
func (h *Holder) CustodyAccount() [20]byte { return h.custody }

// Assets lists the registered fungible assets released alongside native
// currency.
func (h *Holder) Assets() ([]string, error) {
	if h == nil || h.state == nil {
		return nil, errNilState
	}
	return h.state.Assets()
}

// Release transfers the configured share of every balance to to.
func (h *Holder) Release(to [20]byte) error {
	if h == nil || h.state == nil {
		return errNilState
	}
	if h.bank == nil {
		return errNilBank
	}
	if to == ([20]byte{}) {
		return ErrInvalidAccount
	}
	if released, err := h.state.TreasuryReleased(to); err != nil {
		return err
	} else if released {
		return ErrAlreadyReleased
	}
	num, den, err := h.share()
	if err != nil {
		return fmt.Errorf("treasury: compute share: %w", err)
	}
	if den == 0 || num > den {
		return fmt.Errorf("%w: %d/%d", ErrInvalidShare, num, den)
	}
	if err := h.state.TreasuryMarkReleased(to); err != nil {
		return err
	}
	assets, err := h.state.Assets()
	if err != nil {
		return err
	}
	attrs := map[string]string{
		"recipient":   crypto.FormatAccount(to),
		"numerator":   strconv.FormatUint(num, 10),
		"denominator": strconv.FormatUint(den, 10),
	}
	for _, asset := range append([]string{NativeAsset}, assets...) {
		balance, err := h.bank.Balance(h.account, asset)
		if err != nil {
			return err
		}
		amount, err := shareOf(balance, num, den)
		if err != nil {
			return fmt.Errorf("treasury: %s share: %w", asset, err)
		}
		attrs[strings.ToLower(asset)] = amount.String()
		if amount.Sign() == 0 {
			continue
		}
		if err := h.bank.Transfer(h.account, to, asset, amount); err != nil {
			return fmt.Errorf("treasury: release %s: %w", asset, err)
		}
	}
	h.emitter.Emit(releasedEvent{evt: &types.Event{Type: EventTypeReleased, Attributes: attrs}})
	return nil
}

func shareOf(balance *big.Int, num, den uint64) (*big.Int, error) {
	if balance == nil || balance.Sign() == 0 || num == 0 {
		return big.NewInt(0), nil
	}
	if num == den {
		return new(big.Int).Set(balance), nil
	}
	amount, overflow := uint256.FromBig(balance)
	if overflow {
		return nil, fmt.Errorf("balance exceeds 256 bits")
	}
	result, overflow := new(uint256.Int).MulDivOverflow(amount, uint256.NewInt(num), uint256.NewInt(den))
	if overflow {
		return nil, fmt.Errorf("share overflow")
	}
	return result.ToBig(), nil
}

type releasedEvent struct {
	evt *types.Event
}

func (releasedEvent) EventType() string { return EventTypeReleased }

func (e releasedEvent) Event() *types.Event { return e.evt }
