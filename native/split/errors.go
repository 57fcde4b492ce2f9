package split

import "errors"

var (
	ErrNotAuthorized        = errors.New("split: caller not authorized for token")
	ErrNotDepositor         = errors.New("split: only the depositor can withdraw")
	ErrWithdrawalsClosed    = errors.New("split: withdrawals only allowed in pre split period")
	ErrNotInPostSplitPeriod = errors.New("split: not in post split period")
	ErrAlreadyTriggered     = errors.New("split: split already triggered")
	ErrAlreadyRedeemed      = errors.New("split: account already redeemed")
	ErrSplitNotTriggered    = errors.New("split: split has not been triggered yet")
	ErrNoEligibleDeposits   = errors.New("split: no deposits eligible for redemption")
	ErrNotFound             = errors.New("split: deposit not found")
	ErrAlreadyDeposited     = errors.New("split: token already deposited")
	ErrSplitNotReached      = errors.New("split: split threshold not reached")
	ErrEmptyBatch           = errors.New("split: token batch must not be empty")
	ErrDuplicateToken       = errors.New("split: duplicate token in batch")
	ErrNoteTooLong          = errors.New("split: note too long")
	ErrReentrantCall        = errors.New("split: reentrant call")
)

var (
	errNilState     = errors.New("split engine: state not configured")
	errNilCustodian = errors.New("split engine: custodian not configured")
	errNilTreasury  = errors.New("split engine: treasury holder not configured")
	errNilBank      = errors.New("split engine: bank not configured")
	errNilAccount   = errors.New("split engine: engine account not configured")
)

var reasons = []struct {
	err    error
	reason string
}{
	{ErrNotAuthorized, "not_authorized"},
	{ErrNotDepositor, "not_depositor"},
	{ErrWithdrawalsClosed, "withdrawals_closed"},
	{ErrNotInPostSplitPeriod, "not_in_post_split_period"},
	{ErrAlreadyTriggered, "already_triggered"},
	{ErrAlreadyRedeemed, "already_redeemed"},
	{ErrSplitNotTriggered, "split_not_triggered"},
	{ErrNoEligibleDeposits, "no_eligible_deposits"},
	{ErrNotFound, "not_found"},
	{ErrAlreadyDeposited, "already_deposited"},
	{ErrSplitNotReached, "split_not_reached"},
	{ErrEmptyBatch, "empty_batch"},
	{ErrDuplicateToken, "duplicate_token"},
	{ErrNoteTooLong, "note_too_long"},
	{ErrReentrantCall, "reentrant_call"},
}

// Reason returns the stable machine-readable code for err. Errors outside the
// split taxonomy map to "internal".
func Reason(err error) string {
	if err == nil {
		return ""
	}
	for _, entry := range reasons {
		if errors.Is(err, entry.err) {
			return entry.reason
		}
	}
	return "internal"
}
