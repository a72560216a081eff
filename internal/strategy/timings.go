package strategy

import (
	"fmt"
	"time"
)

// Timings holds the phase thresholds and the fixed waits of the bidding
// cadence. DefaultTimings matches the live game; Scale shrinks every value for
// simulations.
type Timings struct {
	MidThreshold  time.Duration // FAR above, MID at or below
	LateThreshold time.Duration // MID above, LATE at or below
	MidPoll       time.Duration
	LateConfirm   time.Duration
	Settle        time.Duration

	// FAR wait: (remaining - MidThreshold) * FarFactor, clamped to
	// [FarMin, FarMax].
	FarFactor float64
	FarMin    time.Duration
	FarMax    time.Duration

	// ResetSlack is how far the time remaining may jump up between cycles
	// before the tracked auction is considered replaced.
	ResetSlack time.Duration
}

func DefaultTimings() Timings {
	return Timings{
		MidThreshold:  15 * time.Minute,
		LateThreshold: 3 * time.Minute,
		MidPoll:       3 * time.Minute,
		LateConfirm:   150 * time.Second,
		Settle:        5 * time.Minute,
		FarFactor:     0.5,
		FarMin:        30 * time.Second,
		FarMax:        30 * time.Minute,
		ResetSlack:    time.Minute,
	}
}

// WithDefaults fills zero fields from DefaultTimings.
func (t Timings) WithDefaults() Timings {
	d := DefaultTimings()
	if t.MidThreshold == 0 {
		t.MidThreshold = d.MidThreshold
	}
	if t.LateThreshold == 0 {
		t.LateThreshold = d.LateThreshold
	}
	if t.MidPoll == 0 {
		t.MidPoll = d.MidPoll
	}
	if t.LateConfirm == 0 {
		t.LateConfirm = d.LateConfirm
	}
	if t.Settle == 0 {
		t.Settle = d.Settle
	}
	if t.FarFactor == 0 {
		t.FarFactor = d.FarFactor
	}
	if t.FarMin == 0 {
		t.FarMin = d.FarMin
	}
	if t.FarMax == 0 {
		t.FarMax = d.FarMax
	}
	if t.ResetSlack == 0 {
		t.ResetSlack = d.ResetSlack
	}
	return t
}

// Scale divides every duration by factor. A factor of 60 turns the fifteen
// minute MID band into fifteen seconds.
func (t Timings) Scale(factor float64) Timings {
	if factor <= 0 || factor == 1 {
		return t
	}
	div := func(d time.Duration) time.Duration {
		return time.Duration(float64(d) / factor)
	}
	return Timings{
		MidThreshold:  div(t.MidThreshold),
		LateThreshold: div(t.LateThreshold),
		MidPoll:       div(t.MidPoll),
		LateConfirm:   div(t.LateConfirm),
		Settle:        div(t.Settle),
		FarFactor:     t.FarFactor,
		FarMin:        div(t.FarMin),
		FarMax:        div(t.FarMax),
		ResetSlack:    div(t.ResetSlack),
	}
}

func (t Timings) Validate() error {
	if t.LateThreshold <= 0 || t.MidThreshold <= t.LateThreshold {
		return fmt.Errorf("phase thresholds must satisfy 0 < late (%s) < mid (%s)", t.LateThreshold, t.MidThreshold)
	}
	if t.MidPoll <= 0 || t.LateConfirm <= 0 || t.Settle <= 0 {
		return fmt.Errorf("poll delays must be positive")
	}
	if t.FarFactor <= 0 {
		return fmt.Errorf("far wait factor must be positive, got %v", t.FarFactor)
	}
	if t.FarMin <= 0 || t.FarMax < t.FarMin {
		return fmt.Errorf("far wait bounds must satisfy 0 < min (%s) <= max (%s)", t.FarMin, t.FarMax)
	}
	return nil
}

// Phase routes a time remaining to its band. The thresholds are inclusive on
// the closer side: exactly MidThreshold is MID, exactly LateThreshold is LATE.
func (t Timings) Phase(remaining time.Duration) Phase {
	switch {
	case remaining > t.MidThreshold:
		return PhaseFar
	case remaining > t.LateThreshold:
		return PhaseMid
	default:
		return PhaseLate
	}
}

// FarWait is the adaptive delay used while the auction is in the FAR band. It
// is monotonic non-decreasing in remaining.
func (t Timings) FarWait(remaining time.Duration) time.Duration {
	excess := remaining - t.MidThreshold
	if excess < 0 {
		excess = 0
	}
	wait := time.Duration(float64(excess) * t.FarFactor)
	if wait < t.FarMin {
		wait = t.FarMin
	}
	if wait > t.FarMax {
		wait = t.FarMax
	}
	return wait
}
