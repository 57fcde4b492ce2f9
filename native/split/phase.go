package split

import "time"

// evaluatePhase flips the phase once the live escrow count reaches the
// threshold. It reports whether the flip happened on this call. The split
// snapshot is taken exactly once and never revisited.
func (e *Engine) evaluatePhase(status *Status, now int64) bool {
	if status.Phase != PhaseCollecting {
		return false
	}
	if status.TotalEscrowed < e.params.Threshold {
		return false
	}
	status.Phase = PhaseSplitTriggered
	status.SplitTriggeredAt = now
	status.TotalEscrowedAtSplit = status.TotalEscrowed
	status.RemainingShares = status.TotalEscrowed
	status.SplitSeq = status.NextSeq
	return true
}

// CurrentPhase returns the lifecycle phase.
func (e *Engine) CurrentPhase() (Phase, error) {
	status, err := e.Status()
	if err != nil {
		return PhaseCollecting, err
	}
	return status.Phase, nil
}

// SplitWindowEndsAt returns the unix time after which TriggerSplit may run.
// The boolean is false while the split is still collecting.
func (e *Engine) SplitWindowEndsAt() (int64, bool, error) {
	status, err := e.Status()
	if err != nil {
		return 0, false, err
	}
	if status.Phase != PhaseSplitTriggered {
		return 0, false, nil
	}
	return windowEnd(status.SplitTriggeredAt, e.params.WaitingWindow), true, nil
}

func windowEnd(start int64, window time.Duration) int64 {
	return start + int64(window/time.Second)
}
