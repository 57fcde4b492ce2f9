package treasury

import "fmt"

// Counter returns a token count.
type Counter func() (uint64, error)

// SupplyShare releases escrowed/(supply-excluded) of the treasury, where
// excluded counts tokens that carry no claim on it (for example those the
// treasury holds itself before the split).
func SupplyShare(escrowed, supply, excluded Counter) ShareFunc {
	return func() (uint64, uint64, error) {
		num, err := escrowed()
		if err != nil {
			return 0, 0, err
		}
		total, err := supply()
		if err != nil {
			return 0, 0, err
		}
		var skip uint64
		if excluded != nil {
			if skip, err = excluded(); err != nil {
				return 0, 0, err
			}
		}
		if skip > total {
			return 0, 0, fmt.Errorf("%w: excluded %d exceeds supply %d", ErrInvalidShare, skip, total)
		}
		den := total - skip
		if num > den {
			return 0, 0, fmt.Errorf("%w: escrowed %d exceeds adjusted supply %d", ErrInvalidShare, num, den)
		}
		return num, den, nil
	}
}
