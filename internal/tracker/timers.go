package tracker

import "swaptrack/internal/model"

// Countdown is the rendered form of a deadline at one display tick.
// Deadlines are anchored to ledger block timestamps; wall-clock only
// decides how often this is recomputed, never what it evaluates to.
type Countdown struct {
	Armed     bool
	ExpiresAt uint64
	Remaining uint64
	Ready     bool
}

func countdown(d *model.Deadline, now uint64) Countdown {
	if d == nil {
		return Countdown{}
	}
	return Countdown{
		Armed:     true,
		ExpiresAt: d.ExpiresAt(),
		Remaining: d.Remaining(now),
		Ready:     d.Expired(now),
	}
}

// armDeadline builds a deadline from a block timestamp anchor and a
// duration in seconds.
func armDeadline(anchor, duration uint64) *model.Deadline {
	return &model.Deadline{Anchor: anchor, Duration: duration}
}
