package split

import (
	"fmt"
	"math/big"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"
)

// NativeAsset identifies the native currency in treasury snapshots and bank
// transfers.
const NativeAsset = "NATIVE"

// MaxNoteLength bounds the free-text note attached to a deposit.
const MaxNoteLength = 1024

const (
	DefaultThreshold     = 7
	DefaultWaitingWindow = 7 * 24 * time.Hour
)

// Phase represents the lifecycle stage of the split.
type Phase uint8

const (
	PhaseCollecting Phase = iota
	PhaseSplitTriggered
)

func (p Phase) String() string {
	switch p {
	case PhaseCollecting:
		return "collecting"
	case PhaseSplitTriggered:
		return "split_triggered"
	default:
		return fmt.Sprintf("phase(%d)", uint8(p))
	}
}

// Valid reports whether the phase value is within the supported range.
func (p Phase) Valid() bool {
	return p == PhaseCollecting || p == PhaseSplitTriggered
}

// Params configures the split thresholds.
type Params struct {
	Threshold     uint64
	WaitingWindow time.Duration
}

// DefaultParams returns a threshold of seven tokens and a seven day window.
func DefaultParams() Params {
	return Params{Threshold: DefaultThreshold, WaitingWindow: DefaultWaitingWindow}
}

// Validate checks the parameters are usable.
func (p Params) Validate() error {
	if p.Threshold == 0 {
		return fmt.Errorf("split: threshold must be positive")
	}
	if p.WaitingWindow < 0 {
		return fmt.Errorf("split: waiting window must not be negative")
	}
	return nil
}

// Deposit records a single escrowed token.
type Deposit struct {
	TokenID     uint64
	Depositor   [20]byte
	Note        string
	DepositedAt int64
	// Seq orders deposits; records with Seq <= Status.SplitSeq were escrowed
	// when the phase flipped and are redemption eligible.
	Seq uint64
}

// Clone returns a copy of the deposit record.
func (d *Deposit) Clone() *Deposit {
	if d == nil {
		return nil
	}
	clone := *d
	return &clone
}

// Status aggregates the counters and phase flags of the split.
type Status struct {
	Phase                Phase
	TotalEscrowed        uint64
	TotalEscrowedAtSplit uint64
	SplitTriggeredAt     int64
	SplitSeq             uint64
	NextSeq              uint64
	Triggered            bool
	TriggeredAt          int64
	RemainingShares      uint64
	Moved                uint64
	Redeemed             uint64
}

// Clone returns a copy of the status.
func (s *Status) Clone() *Status {
	if s == nil {
		return &Status{}
	}
	clone := *s
	return &clone
}

// AssetBalance tracks one asset captured by the treasury pull.
type AssetBalance struct {
	Asset     string
	Captured  *big.Int
	Remaining *big.Int
}

// Treasury is the snapshot recorded by TriggerSplit. Native currency is kept
// in the Native entry; Assets holds the registered fungible assets.
type Treasury struct {
	Native AssetBalance
	Assets []AssetBalance
}

// Clone returns a deep copy of the treasury snapshot.
func (t *Treasury) Clone() *Treasury {
	if t == nil {
		return nil
	}
	clone := &Treasury{Native: cloneBalance(t.Native)}
	if len(t.Assets) > 0 {
		clone.Assets = make([]AssetBalance, len(t.Assets))
		for i, asset := range t.Assets {
			clone.Assets[i] = cloneBalance(asset)
		}
	}
	return clone
}

// Balance looks up the entry for asset. NativeAsset returns the native entry.
func (t *Treasury) Balance(asset string) (AssetBalance, bool) {
	if t == nil {
		return AssetBalance{}, false
	}
	normalized := NormalizeAsset(asset)
	if normalized == NativeAsset {
		return cloneBalance(t.Native), true
	}
	for _, entry := range t.Assets {
		if entry.Asset == normalized {
			return cloneBalance(entry), true
		}
	}
	return AssetBalance{}, false
}

func cloneBalance(b AssetBalance) AssetBalance {
	return AssetBalance{
		Asset:     b.Asset,
		Captured:  cloneBigInt(b.Captured),
		Remaining: cloneBigInt(b.Remaining),
	}
}

// Payout is a single asset line of a redemption.
type Payout struct {
	Asset  string
	Amount *big.Int
}

// Redemption records the one-time claim of an account.
type Redemption struct {
	Account    [20]byte
	Tokens     uint64
	RedeemedAt int64
	Payouts    []Payout
}

// Clone returns a deep copy of the redemption.
func (r *Redemption) Clone() *Redemption {
	if r == nil {
		return nil
	}
	clone := *r
	clone.Payouts = make([]Payout, len(r.Payouts))
	for i, p := range r.Payouts {
		clone.Payouts[i] = Payout{Asset: p.Asset, Amount: cloneBigInt(p.Amount)}
	}
	return &clone
}

// NormalizeAsset trims and upper-cases an asset identifier.
func NormalizeAsset(asset string) string {
	return strings.ToUpper(strings.TrimSpace(asset))
}

// NormalizeNote trims a deposit note and converts it to NFC so equivalent
// text is stored with the same bytes.
func NormalizeNote(note string) string {
	return norm.NFC.String(strings.TrimSpace(note))
}

// SanitizeDeposit validates and normalises a deposit record, returning a clone.
func SanitizeDeposit(d *Deposit) (*Deposit, error) {
	if d == nil {
		return nil, fmt.Errorf("nil deposit")
	}
	clone := d.Clone()
	clone.Note = NormalizeNote(clone.Note)
	if clone.Depositor == ([20]byte{}) {
		return nil, fmt.Errorf("deposit depositor required")
	}
	if len(clone.Note) > MaxNoteLength {
		return nil, ErrNoteTooLong
	}
	if clone.DepositedAt < 0 {
		return nil, fmt.Errorf("deposit timestamp must not be negative")
	}
	return clone, nil
}

// SanitizeTreasury validates a treasury snapshot and returns a normalised
// clone. Remaining balances may never exceed what was captured.
func SanitizeTreasury(t *Treasury) (*Treasury, error) {
	if t == nil {
		return nil, fmt.Errorf("nil treasury")
	}
	clone := t.Clone()
	clone.Native.Asset = NativeAsset
	if err := validateBalance(clone.Native); err != nil {
		return nil, err
	}
	seen := make(map[string]struct{}, len(clone.Assets))
	for i := range clone.Assets {
		clone.Assets[i].Asset = NormalizeAsset(clone.Assets[i].Asset)
		asset := clone.Assets[i].Asset
		if asset == "" || asset == NativeAsset {
			return nil, fmt.Errorf("treasury asset %q invalid", asset)
		}
		if _, dup := seen[asset]; dup {
			return nil, fmt.Errorf("treasury asset %s duplicated", asset)
		}
		seen[asset] = struct{}{}
		if err := validateBalance(clone.Assets[i]); err != nil {
			return nil, err
		}
	}
	return clone, nil
}

func validateBalance(b AssetBalance) error {
	if b.Captured.Sign() < 0 || b.Remaining.Sign() < 0 {
		return fmt.Errorf("treasury %s balance must not be negative", b.Asset)
	}
	if b.Remaining.Cmp(b.Captured) > 0 {
		return fmt.Errorf("treasury %s remaining exceeds captured", b.Asset)
	}
	return nil
}

func cloneBigInt(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}
