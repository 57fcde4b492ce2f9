package split

import (
	"fmt"
	"math/big"

	"github.com/holiman/uint256"
)

// proRataShare returns floor(remaining * shares / totalShares). When shares
// equals totalShares the caller is the last eligible redeemer and receives
// everything left, which is how earlier rounding remainders are absorbed.
func proRataShare(remaining *big.Int, shares, totalShares uint64) (*big.Int, error) {
	if totalShares == 0 {
		return nil, fmt.Errorf("split: redemption denominator exhausted")
	}
	if shares == 0 || shares > totalShares {
		return nil, fmt.Errorf("split: invalid share count %d of %d", shares, totalShares)
	}
	if remaining == nil || remaining.Sign() == 0 {
		return big.NewInt(0), nil
	}
	if remaining.Sign() < 0 {
		return nil, fmt.Errorf("split: negative remaining balance")
	}
	if shares == totalShares {
		return new(big.Int).Set(remaining), nil
	}
	amount, overflow := uint256.FromBig(remaining)
	if overflow {
		return nil, fmt.Errorf("split: balance exceeds 256 bits")
	}
	share, overflow := new(uint256.Int).MulDivOverflow(amount, uint256.NewInt(shares), uint256.NewInt(totalShares))
	if overflow {
		return nil, fmt.Errorf("split: pro-rata share overflow")
	}
	return share.ToBig(), nil
}
