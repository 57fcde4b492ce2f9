package split

import (
	"errors"
	"math/big"
	"testing"
)

func TestProRataShare(t *testing.T) {
	cases := []struct {
		name      string
		remaining int64
		shares    uint64
		total     uint64
		want      int64
	}{
		{name: "exact", remaining: 10_000, shares: 6, total: 10, want: 6000},
		{name: "floors", remaining: 1_000, shares: 1, total: 7, want: 142},
		{name: "last redeemer takes remainder", remaining: 859, shares: 3, total: 3, want: 859},
		{name: "empty pool", remaining: 0, shares: 2, total: 5, want: 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := proRataShare(big.NewInt(tc.remaining), tc.shares, tc.total)
			if err != nil {
				t.Fatalf("proRataShare: %v", err)
			}
			if got.Int64() != tc.want {
				t.Fatalf("expected %d, got %s", tc.want, got)
			}
		})
	}
}

func TestProRataShareRejectsInvalidInput(t *testing.T) {
	if _, err := proRataShare(big.NewInt(1), 1, 0); err == nil {
		t.Fatalf("expected error for exhausted denominator")
	}
	if _, err := proRataShare(big.NewInt(1), 3, 2); err == nil {
		t.Fatalf("expected error for shares above total")
	}
	if _, err := proRataShare(big.NewInt(-1), 1, 2); err == nil {
		t.Fatalf("expected error for negative balance")
	}
	huge := new(big.Int).Lsh(big.NewInt(1), 300)
	if _, err := proRataShare(huge, 1, 2); err == nil {
		t.Fatalf("expected error for oversized balance")
	}
}

func TestProRataShareHandlesLargeBalances(t *testing.T) {
	// 2^200 * 3 / 4 must not lose precision.
	remaining := new(big.Int).Lsh(big.NewInt(1), 200)
	got, err := proRataShare(remaining, 3, 4)
	if err != nil {
		t.Fatalf("proRataShare: %v", err)
	}
	want := new(big.Int).Mul(new(big.Int).Lsh(big.NewInt(1), 198), big.NewInt(3))
	if got.Cmp(want) != 0 {
		t.Fatalf("expected %s, got %s", want, got)
	}
}

func TestReasonCodes(t *testing.T) {
	if got := Reason(ErrWithdrawalsClosed); got != "withdrawals_closed" {
		t.Fatalf("unexpected reason %q", got)
	}
	wrapped := errors.Join(errors.New("context"), ErrAlreadyRedeemed)
	if got := Reason(wrapped); got != "already_redeemed" {
		t.Fatalf("unexpected wrapped reason %q", got)
	}
	if got := Reason(errors.New("boom")); got != "internal" {
		t.Fatalf("unexpected fallback %q", got)
	}
	if got := Reason(nil); got != "" {
		t.Fatalf("nil error should have no reason, got %q", got)
	}
}
