// Package strategy implements the bid decision state machine: phase selection
// from the auction clock, the MID and LATE bid sizing rules, and the wealth
// comparison that settles a run.
//
// The engine is a pure function of its configuration, the snapshot, the
// memory passed in and the injected random source. Submitting bids and
// waiting between cycles is the scheduler's job (see package agent).
package strategy

import (
	"fmt"
	"math"
	"strings"
)

// Rand is the random source used for randomized raises. *rand.Rand from
// math/rand/v2 satisfies it.
type Rand interface {
	Int64N(n int64) int64
}

// Engine decides the next action for one auction.
type Engine struct {
	cfg Config
	rng Rand
}

// NewEngine creates an engine. Zero timings are replaced by DefaultTimings.
func NewEngine(cfg Config, rng Rand) *Engine {
	cfg.Timings = cfg.Timings.WithDefaults()
	return &Engine{cfg: cfg, rng: rng}
}

// Config returns the effective configuration.
func (e *Engine) Config() Config { return e.cfg }

// Unlimited is the allowance of a run without a spending cap.
const Unlimited int64 = math.MaxInt64

// Decide evaluates one cycle. An unreadable snapshot always ends the run;
// settlement after the closing bid goes through Settle with a fresh wealth
// read instead.
func (e *Engine) Decide(snap Snapshot, mem Memory) Decision {
	return e.DecideWithin(snap, mem, Unlimited)
}

// DecideWithin is Decide with a cap on the raise this cycle may submit. A
// raise above allowance is treated like one that would break the credit
// reserve.
func (e *Engine) DecideWithin(snap Snapshot, mem Memory, allowance int64) Decision {
	if !snap.PriceReadable {
		mem.Stage = StageNone
		return Decision{
			Phase:  e.cfg.Timings.Phase(snap.TimeRemaining),
			Action: Terminate(OutcomeEnd),
			Memory: mem,
			Reason: "price not readable",
		}
	}

	if mem.Stage == StageSettle {
		return e.Settle(mem, snap.Wealth)
	}

	mem, replaced := e.observe(snap, mem)
	if !e.target(snap) {
		return e.skip(snap, mem)
	}
	if mem.Stage == StageConfirm {
		return e.lateConfirm(snap, mem, allowance)
	}

	phase := e.cfg.Timings.Phase(snap.TimeRemaining)
	mem = e.enter(phase, mem)

	var d Decision
	switch phase {
	case PhaseFar:
		d = e.far(snap, mem)
	case PhaseMid:
		d = e.mid(snap, mem, allowance)
	default:
		d = e.lateEntry(snap, mem)
	}
	if replaced {
		d.Reason = "auction replaced; " + d.Reason
	}
	return d
}

// Settle compares the wealth read after the settlement wait with the
// baseline recorded after the closing bid.
func (e *Engine) Settle(mem Memory, wealth int64) Decision {
	outcome := SettlementOutcome(mem.Baseline, wealth)
	mem.Stage = StageNone
	return Decision{
		Phase:  PhaseLate,
		Action: Terminate(outcome),
		Memory: mem,
		Reason: fmt.Sprintf("wealth %d -> %d", mem.Baseline, wealth),
	}
}

// SettlementOutcome is SUCCESS when wealth strictly dropped, FAILURE otherwise.
func SettlementOutcome(baseline, wealth int64) Outcome {
	if wealth < baseline {
		return OutcomeSuccess
	}
	return OutcomeFailure
}

// observe resets memory when the snapshot belongs to a different auction
// instance than the one being tracked.
func (e *Engine) observe(snap Snapshot, mem Memory) (Memory, bool) {
	replaced := false
	if mem.Product != "" && snap.Product != "" && snap.Product != mem.Product {
		replaced = true
	}
	if mem.Remaining > 0 && snap.TimeRemaining > mem.Remaining+e.cfg.Timings.ResetSlack {
		replaced = true
	}
	if replaced {
		mem = Memory{}
	}
	if snap.Product != "" {
		mem.Product = snap.Product
	}
	if mem.OpeningPrice == 0 && snap.Price > 0 {
		mem.OpeningPrice = snap.Price
	}
	mem.Remaining = snap.TimeRemaining
	return mem, replaced
}

// target reports whether the snapshot is for the configured product. An
// empty product on either side matches.
func (e *Engine) target(snap Snapshot) bool {
	if e.cfg.Product == "" || snap.Product == "" {
		return true
	}
	return strings.EqualFold(strings.TrimSpace(e.cfg.Product), strings.TrimSpace(snap.Product))
}

// skip waits out an auction selling something else.
func (e *Engine) skip(snap Snapshot, mem Memory) Decision {
	phase := e.cfg.Timings.Phase(snap.TimeRemaining)
	delay := e.cfg.Timings.MidPoll
	if phase == PhaseFar {
		delay = e.cfg.Timings.FarWait(snap.TimeRemaining)
	}
	mem.Stage = StageNone
	mem.Phase = phase
	return Decision{
		Phase:  phase,
		Action: NoOp(),
		Delay:  delay,
		Memory: mem,
		Reason: fmt.Sprintf("%q is not %q, not bidding", snap.Product, e.cfg.Product),
	}
}

func (e *Engine) enter(phase Phase, mem Memory) Memory {
	if phase == PhaseLate && mem.Phase == PhaseMid && e.cfg.Policy == PolicyReset {
		mem.Progress = Fresh
	}
	mem.Phase = phase
	return mem
}

func (e *Engine) far(snap Snapshot, mem Memory) Decision {
	wait := e.cfg.Timings.FarWait(snap.TimeRemaining)
	return Decision{
		Phase:  PhaseFar,
		Action: NoOp(),
		Delay:  wait,
		Memory: mem,
		Reason: fmt.Sprintf("%s left, waiting %s", snap.TimeRemaining, wait),
	}
}

func (e *Engine) mid(snap Snapshot, mem Memory, allowance int64) Decision {
	hold := func(reason string) Decision {
		return Decision{Phase: PhaseMid, Action: NoOp(), Delay: e.cfg.Timings.MidPoll, Memory: mem, Reason: reason}
	}

	if e.leading(snap) {
		return hold("leading")
	}

	step := e.cfg.Step
	margin := e.margin(snap)
	if margin <= 0 {
		return hold("price at or above max bid")
	}
	if why := e.limit(snap, mem); why != "" {
		return hold(why)
	}

	var amount, last int64
	reason := "first bid"
	switch {
	case mem.Progress == Fresh && e.cfg.InstantMaxBid:
		amount, last = margin, e.cfg.MaxBid
	case mem.Progress == Fresh:
		if margin < step {
			return hold("no room under max bid")
		}
		amount, last = step, snap.Price+step
	default:
		reason = "outbid, escalating"
		amount = (snap.Price - mem.MyLastPrice) + step
		if amount < step {
			amount = step
		}
		last = snap.Price + amount
		if last > e.cfg.MaxBid {
			return hold("re-bid would exceed max bid")
		}
	}

	if why := e.funds(snap, amount, allowance); why != "" {
		return hold(why)
	}

	if mem.Progress == Escalating {
		mem.Rebids++
	}
	mem.MyLastPrice = last
	mem.Progress = Escalating
	return Decision{Phase: PhaseMid, Action: Bid(amount), Delay: e.cfg.Timings.MidPoll, Memory: mem, Reason: reason}
}

func (e *Engine) lateEntry(_ Snapshot, mem Memory) Decision {
	mem.Stage = StageConfirm
	return Decision{
		Phase:  PhaseLate,
		Action: NoOp(),
		Delay:  e.cfg.Timings.LateConfirm,
		Memory: mem,
		Reason: "closing window, confirming feed",
	}
}

func (e *Engine) lateConfirm(snap Snapshot, mem Memory, allowance int64) Decision {
	step := e.cfg.Step
	margin := e.margin(snap)
	leading := e.leading(snap)

	loss := func(reason string) Decision {
		mem.Stage = StageNone
		return Decision{Phase: PhaseLate, Action: Terminate(OutcomeLoss), Memory: mem, Reason: reason}
	}
	settle := func(action Action, reason string) Decision {
		mem.Stage = StageSettle
		mem.Baseline = snap.Wealth
		return Decision{Phase: PhaseLate, Action: action, Delay: e.cfg.Timings.Settle, Memory: mem, Reason: reason}
	}

	if !leading {
		if mem.Progress == Escalating && margin < step+1 {
			return loss("margin exhausted")
		}
		if margin < step {
			return loss("no room under max bid")
		}
	} else if margin < step {
		return settle(NoOp(), "leading at ceiling, holding")
	}
	if why := e.limit(snap, mem); why != "" {
		if leading {
			return settle(NoOp(), "leading, "+why)
		}
		return loss(why)
	}

	amount, last := e.escalate(snap, margin, leading)
	if why := e.funds(snap, amount, allowance); why != "" {
		if leading {
			return settle(NoOp(), "leading, "+why)
		}
		return loss(why)
	}

	if mem.Progress == Escalating {
		mem.Rebids++
	}
	mem.MyLastPrice = last
	mem.Progress = Escalating
	return settle(Bid(amount), "closing bid")
}

// escalate sizes the closing bid on margin.
func (e *Engine) escalate(snap Snapshot, margin int64, leading bool) (amount, last int64) {
	step := e.cfg.Step
	half := margin / 2
	switch {
	case half > step:
		if e.cfg.InstantMaxBid {
			return margin, e.cfg.MaxBid
		}
		amount = step + e.rng.Int64N(half)
	case !leading && margin > 2*step:
		amount = step + e.rng.Int64N(step+1)
	default:
		amount = step
	}
	return amount, snap.Price + amount
}

// limit reports why no further raise is allowed, or "" when one is.
func (e *Engine) limit(snap Snapshot, mem Memory) string {
	if n := e.cfg.MaxRebids; n > 0 && mem.Progress == Escalating && mem.Rebids >= n {
		return fmt.Sprintf("rebid limit %d reached", n)
	}
	if p := e.cfg.MaxPriceIncreasePercent; p > 0 && mem.OpeningPrice > 0 && snap.Price*100 > mem.OpeningPrice*int64(p) {
		return fmt.Sprintf("price above %d%% of opening %d", p, mem.OpeningPrice)
	}
	return ""
}

func (e *Engine) leading(snap Snapshot) bool {
	return snap.MaxBidder != "" && snap.MaxBidder == e.cfg.Self
}

func (e *Engine) margin(snap Snapshot) int64 {
	return e.cfg.MaxBid - snap.Price
}

// funds reports why a raise of amount cannot be paid for, or "".
func (e *Engine) funds(snap Snapshot, amount, allowance int64) string {
	if e.cfg.ReserveCredits > 0 && snap.Wealth-amount < e.cfg.ReserveCredits {
		return "bid would break credit reserve"
	}
	if amount > allowance {
		return fmt.Sprintf("spend limit leaves %d", max(allowance, 0))
	}
	return ""
}
