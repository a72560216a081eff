package strategy

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Phase is the auction band selected from the time remaining.
type Phase int

const (
	PhaseNone Phase = iota // no cycle evaluated yet
	PhaseFar
	PhaseMid
	PhaseLate
)

func (p Phase) String() string {
	switch p {
	case PhaseFar:
		return "far"
	case PhaseMid:
		return "mid"
	case PhaseLate:
		return "late"
	default:
		return "none"
	}
}

// Progress records whether the agent already committed a bid in the current
// phase entry.
type Progress int

const (
	Fresh Progress = iota
	Escalating
)

func (p Progress) String() string {
	if p == Escalating {
		return "escalating"
	}
	return "fresh"
}

// ParseProgress is the inverse of Progress.String.
func ParseProgress(s string) (Progress, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "fresh":
		return Fresh, nil
	case "escalating":
		return Escalating, nil
	default:
		return Fresh, fmt.Errorf("unknown progress %q", s)
	}
}

// ProgressPolicy decides what a MID commitment means once the auction enters
// the LATE band.
type ProgressPolicy int

const (
	// PolicyCarry keeps the MID progress: a bid placed in MID counts as an
	// escalation in LATE.
	PolicyCarry ProgressPolicy = iota
	// PolicyReset starts LATE from Fresh regardless of MID activity.
	PolicyReset
)

func (p ProgressPolicy) String() string {
	if p == PolicyReset {
		return "reset"
	}
	return "carry"
}

// ParseProgressPolicy parses "carry" or "reset". Empty means carry.
func ParseProgressPolicy(s string) (ProgressPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "carry":
		return PolicyCarry, nil
	case "reset":
		return PolicyReset, nil
	default:
		return PolicyCarry, fmt.Errorf("unknown progress policy %q (want carry or reset)", s)
	}
}

// Stage tracks the two-poll LATE sequence across scheduler cycles.
type Stage int

const (
	StageNone    Stage = iota
	StageConfirm       // entry poll passed, waiting for the confirming poll
	StageSettle        // closing bid decided, waiting to compare wealth
)

func (s Stage) String() string {
	switch s {
	case StageConfirm:
		return "confirm"
	case StageSettle:
		return "settle"
	default:
		return "none"
	}
}

// Outcome is the terminal determination of a run.
type Outcome int

const (
	OutcomeNone    Outcome = iota
	OutcomeEnd             // price feed unusable
	OutcomeLoss            // no room left under the ceiling
	OutcomeSuccess         // wealth dropped after the closing bid
	OutcomeFailure         // wealth did not drop after the closing bid
)

func (o Outcome) String() string {
	switch o {
	case OutcomeEnd:
		return "end"
	case OutcomeLoss:
		return "loss"
	case OutcomeSuccess:
		return "success"
	case OutcomeFailure:
		return "failure"
	default:
		return "none"
	}
}

// Won reports whether the outcome is a purchase.
func (o Outcome) Won() bool { return o == OutcomeSuccess }

// ActionKind enumerates what the scheduler must do with a decision.
type ActionKind int

const (
	ActionNoOp ActionKind = iota
	ActionBid
	ActionTerminate
)

func (k ActionKind) String() string {
	switch k {
	case ActionBid:
		return "bid"
	case ActionTerminate:
		return "terminate"
	default:
		return "noop"
	}
}

// Action is the engine's instruction for a single cycle. Amount is the raise
// submitted on top of the current price.
type Action struct {
	Kind    ActionKind
	Amount  int64
	Outcome Outcome
}

func NoOp() Action               { return Action{Kind: ActionNoOp} }
func Bid(amount int64) Action    { return Action{Kind: ActionBid, Amount: amount} }
func Terminate(o Outcome) Action { return Action{Kind: ActionTerminate, Outcome: o} }

// IsTerminal reports whether the run stops after this action.
func (a Action) IsTerminal() bool { return a.Kind == ActionTerminate }

func (a Action) String() string {
	switch a.Kind {
	case ActionBid:
		return fmt.Sprintf("bid(%d)", a.Amount)
	case ActionTerminate:
		return fmt.Sprintf("terminate(%s)", a.Outcome)
	default:
		return "noop"
	}
}

// Snapshot is a point-in-time read of the auction. The engine never mutates it.
type Snapshot struct {
	Product       string
	Price         int64
	MaxBidder     string
	TimeRemaining time.Duration
	Wealth        int64
	PriceReadable bool
}

// Unreadable is the snapshot used when the feed could not be read at all.
func Unreadable() Snapshot { return Snapshot{} }

// Memory is the agent's own state carried across cycles of a single run.
type Memory struct {
	MyLastPrice int64
	Progress    Progress
	Phase       Phase
	Stage       Stage

	// Baseline is the wealth recorded right after the closing bid.
	Baseline int64

	// Product and Remaining are the last observed values, used to detect a
	// fresh auction instance replacing the tracked one.
	Product   string
	Remaining time.Duration

	// Rebids counts bids placed after the first commitment.
	Rebids int
	// OpeningPrice is the first readable price of the tracked auction.
	OpeningPrice int64
}

// Resume restores memory from an active bid found before the first cycle.
func Resume(amount int64) Memory {
	return Memory{MyLastPrice: amount, Progress: Escalating}
}

// Decision is the result of one engine evaluation.
type Decision struct {
	Phase  Phase
	Action Action
	// Delay is how long the scheduler waits before the next cycle. It is zero
	// for terminal decisions.
	Delay  time.Duration
	Memory Memory
	// Reason is a short human readable explanation for logs.
	Reason string
}

// Config is the immutable per-run bidding configuration.
type Config struct {
	// Self is the player identity compared against Snapshot.MaxBidder.
	Self string
	// Product, when set, is the only item the engine bids on. Matching
	// ignores case and surrounding space.
	Product       string
	MaxBid        int64
	Step          int64
	InstantMaxBid bool
	Policy        ProgressPolicy
	// ReserveCredits, when positive, is the wealth a bid must leave untouched.
	ReserveCredits int64
	// MaxRebids caps the bids placed after the first one. Zero is unlimited.
	MaxRebids int
	// MaxPriceIncreasePercent stops bidding once the price exceeds this
	// percentage of the opening price. Zero is unlimited.
	MaxPriceIncreasePercent int
	Timings                 Timings
}

var (
	ErrInvalidStep   = errors.New("step must be positive")
	ErrInvalidMaxBid = errors.New("max bid must be at least one step")
)

// Validate checks the numeric invariants the formulas rely on.
func (c Config) Validate() error {
	if c.Step <= 0 {
		return ErrInvalidStep
	}
	if c.MaxBid < c.Step {
		return ErrInvalidMaxBid
	}
	if c.ReserveCredits < 0 {
		return fmt.Errorf("reserve credits must not be negative, got %d", c.ReserveCredits)
	}
	if c.MaxRebids < 0 {
		return fmt.Errorf("max rebids must not be negative, got %d", c.MaxRebids)
	}
	if c.MaxPriceIncreasePercent < 0 {
		return fmt.Errorf("max price increase must not be negative, got %d%%", c.MaxPriceIncreasePercent)
	}
	return c.Timings.Validate()
}
