// Package agent drives a strategy engine against a live auction: it reads
// snapshots on the cadence the engine asks for, submits bids, commits memory
// and reports the final outcome.
package agent

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"
	"github.com/google/uuid"
	"github.com/lox/autobid/internal/state"
	"github.com/lox/autobid/internal/strategy"
)

var (
	// ErrBidNotConfirmed is returned when the game keeps rejecting a bid after
	// every retry. Memory is not advanced past the rejected bid.
	ErrBidNotConfirmed = errors.New("bid not confirmed")
	// ErrSettlementUnknown is returned when wealth cannot be read to settle
	// the closing bid.
	ErrSettlementUnknown = errors.New("settlement unknown")
	ErrAlreadyStarted    = errors.New("runner already started")
)

const (
	DefaultBidRetries    = 2
	DefaultBidRetryDelay = 5 * time.Second
)

// State is the lifecycle of a Runner.
type State int

const (
	StateIdle State = iota
	StateRunning
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateTerminated:
		return "terminated"
	default:
		return "idle"
	}
}

// Result summarizes a finished run.
type Result struct {
	RunID     string
	Auction   string
	Product   string
	Outcome   strategy.Outcome
	Bids      int
	Raised    int64 // sum of accepted raises
	LastPrice int64 // MyLastPrice when the run ended
	StartedAt time.Time
	EndedAt   time.Time
}

// Runner owns one engine and its memory for a single auction.
type Runner struct {
	name   string
	client GameClient
	engine *strategy.Engine

	clock         quartz.Clock
	logger        *log.Logger
	store         Store
	journal       Journal
	budget        *Budget
	notify        Notifications
	bidRetries    int
	bidRetryDelay time.Duration
	runID         string

	mu      sync.Mutex
	state   State
	outcome strategy.Outcome
	mem     strategy.Memory
}

// Option configures a Runner.
type Option func(*Runner)

func WithClock(clock quartz.Clock) Option {
	return func(r *Runner) { r.clock = clock }
}

func WithLogger(logger *log.Logger) Option {
	return func(r *Runner) { r.logger = logger }
}

// WithStore enables the local active-bid record used as a resume fallback.
func WithStore(store Store) Option {
	return func(r *Runner) { r.store = store }
}

func WithJournal(journal Journal) Option {
	return func(r *Runner) { r.journal = journal }
}

// WithBudget shares an hourly spending cap with other runners.
func WithBudget(b *Budget) Option {
	return func(r *Runner) { r.budget = b }
}

func WithNotifications(n Notifications) Option {
	return func(r *Runner) { r.notify = n }
}

// WithBidRetries sets how many times a rejected bid is resubmitted and the
// wait between attempts.
func WithBidRetries(retries int, delay time.Duration) Option {
	return func(r *Runner) {
		r.bidRetries = max(retries, 0)
		r.bidRetryDelay = delay
	}
}

// WithRunID overrides the generated run id.
func WithRunID(id string) Option {
	return func(r *Runner) { r.runID = id }
}

// NewRunner creates a runner for the named auction.
func NewRunner(name string, client GameClient, engine *strategy.Engine, opts ...Option) *Runner {
	r := &Runner{
		name:          name,
		client:        client,
		engine:        engine,
		clock:         quartz.NewReal(),
		logger:        log.Default(),
		notify:        AllNotifications(),
		bidRetries:    DefaultBidRetries,
		bidRetryDelay: DefaultBidRetryDelay,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.runID == "" {
		r.runID = uuid.NewString()
	}
	r.logger = r.logger.WithPrefix("runner").With("auction", name)
	return r
}

func (r *Runner) Name() string  { return r.name }
func (r *Runner) RunID() string { return r.runID }

func (r *Runner) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Outcome is OutcomeNone until the run terminated on a decision.
func (r *Runner) Outcome() strategy.Outcome {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.outcome
}

// Memory returns the last committed memory.
func (r *Runner) Memory() strategy.Memory {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.mem
}

// Run evaluates the auction until the engine terminates it or ctx is done. A
// terminal outcome is not an error; errors are reserved for cancellation,
// bids the game would not confirm and an unknown settlement.
func (r *Runner) Run(ctx context.Context) (Result, error) {
	r.mu.Lock()
	if r.state != StateIdle {
		r.mu.Unlock()
		return Result{}, ErrAlreadyStarted
	}
	r.state = StateRunning
	r.mu.Unlock()

	res := Result{RunID: r.runID, Auction: r.name, StartedAt: r.clock.Now()}
	r.logger.Info("Starting run", "run", r.runID, "max_bid", r.engine.Config().MaxBid, "step", r.engine.Config().Step)

	mem := r.resume(ctx)
	r.commit(mem)
	leading := false

	for {
		var d strategy.Decision
		if mem.Stage == strategy.StageSettle {
			wealth, err := r.readWealth(ctx)
			if err != nil {
				return r.finish(ctx, res, strategy.OutcomeNone, err)
			}
			d = r.engine.Settle(mem, wealth)
		} else {
			snap, err := r.client.Snapshot(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return r.finish(ctx, res, strategy.OutcomeNone, ctx.Err())
				}
				r.logger.Warn("Snapshot read failed, treating price as unreadable", "error", err)
				snap = strategy.Unreadable()
			}
			if snap.Product != "" {
				res.Product = snap.Product
			}
			leading = r.trackLeader(snap, leading)
			d = r.decide(snap, mem)

			if d.Action.Kind == strategy.ActionBid {
				if err := r.placeBid(ctx, d.Action.Amount); err != nil {
					if r.budget != nil {
						r.budget.Release(d.Action.Amount)
					}
					return r.finish(ctx, res, strategy.OutcomeNone, err)
				}
				res.Bids++
				res.Raised += d.Action.Amount
				leading = true
				r.recordBid(ctx, snap, d)
			}
		}

		r.logger.Debug("Cycle",
			"phase", d.Phase,
			"action", d.Action,
			"progress", d.Memory.Progress,
			"my_last_price", d.Memory.MyLastPrice,
			"delay", d.Delay,
			"reason", d.Reason)

		mem = d.Memory
		r.commit(mem)
		res.LastPrice = mem.MyLastPrice

		if d.Action.IsTerminal() {
			return r.finish(ctx, res, d.Action.Outcome, nil)
		}
		if err := r.sleep(ctx, d.Delay, "sleep"); err != nil {
			return r.finish(ctx, res, strategy.OutcomeNone, err)
		}
	}
}

// decide runs the engine within what the shared budget still allows and
// books the raise of a bid decision. Another runner may book between the
// two steps, so a refused booking decides again on the smaller allowance.
func (r *Runner) decide(snap strategy.Snapshot, mem strategy.Memory) strategy.Decision {
	if r.budget == nil {
		return r.engine.Decide(snap, mem)
	}
	for {
		d := r.engine.DecideWithin(snap, mem, r.budget.Remaining())
		if d.Action.Kind != strategy.ActionBid || r.budget.Reserve(d.Action.Amount) {
			return d
		}
	}
}

// resume builds the starting memory from the game's active bid, falling back
// to the local record only when the game could not be asked.
func (r *Runner) resume(ctx context.Context) strategy.Memory {
	amount, ok, err := r.client.ActiveBid(ctx)
	if err == nil {
		if ok {
			r.logger.Info("Resuming from active bid", "amount", amount)
			return strategy.Resume(amount)
		}
		if r.store != nil {
			if err := r.store.Clear(r.name); err != nil {
				r.logger.Warn("Failed to clear stale bid record", "error", err)
			}
		}
		return strategy.Memory{}
	}

	r.logger.Warn("Active bid lookup failed", "error", err)
	if r.store == nil {
		return strategy.Memory{}
	}
	rec, err := r.store.Load(r.name)
	if err != nil {
		r.logger.Warn("Failed to load bid record", "error", err)
		return strategy.Memory{}
	}
	if rec == nil || rec.MyLastPrice <= 0 {
		return strategy.Memory{}
	}
	r.logger.Info("Resuming from local bid record", "amount", rec.MyLastPrice, "product", rec.Product)
	mem := strategy.Resume(rec.MyLastPrice)
	mem.Product = rec.Product
	return mem
}

func (r *Runner) placeBid(ctx context.Context, amount int64) error {
	var err error
	for attempt := 0; attempt <= r.bidRetries; attempt++ {
		if attempt > 0 {
			if serr := r.sleep(ctx, r.bidRetryDelay, "retry"); serr != nil {
				return serr
			}
		}
		if err = r.client.PlaceBid(ctx, amount); err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		r.logger.Warn("Bid submission failed", "amount", amount, "attempt", attempt+1, "error", err)
	}
	return fmt.Errorf("%w: raise %d after %d attempts: %w", ErrBidNotConfirmed, amount, r.bidRetries+1, err)
}

func (r *Runner) readWealth(ctx context.Context) (int64, error) {
	var err error
	for attempt := 0; attempt <= r.bidRetries; attempt++ {
		if attempt > 0 {
			if serr := r.sleep(ctx, r.bidRetryDelay, "retry"); serr != nil {
				return 0, serr
			}
		}
		var w int64
		if w, err = r.client.Wealth(ctx); err == nil {
			return w, nil
		}
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		r.logger.Warn("Wealth read failed", "attempt", attempt+1, "error", err)
	}
	return 0, fmt.Errorf("%w: %w", ErrSettlementUnknown, err)
}

func (r *Runner) sleep(ctx context.Context, d time.Duration, tag string) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := r.clock.NewTimer(d, "runner", tag)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// trackLeader logs when the player lost the lead since the previous read.
func (r *Runner) trackLeader(snap strategy.Snapshot, wasLeading bool) bool {
	if !snap.PriceReadable {
		return wasLeading
	}
	self := r.engine.Config().Self
	leading := self != "" && snap.MaxBidder == self
	if wasLeading && !leading {
		r.event(r.notify.Outbid, "Outbid", "price", snap.Price, "leader", snap.MaxBidder)
	}
	return leading
}

func (r *Runner) commit(mem strategy.Memory) {
	r.mu.Lock()
	r.mem = mem
	r.mu.Unlock()
}

func (r *Runner) recordBid(ctx context.Context, snap strategy.Snapshot, d strategy.Decision) {
	r.event(r.notify.Bids, "Placed bid",
		"phase", d.Phase, "raise", d.Action.Amount, "price", snap.Price, "my_last_price", d.Memory.MyLastPrice)

	if r.store != nil {
		rec := state.Record{
			Product:     d.Memory.Product,
			MyLastPrice: d.Memory.MyLastPrice,
			UpdatedAt:   r.clock.Now(),
		}
		if err := r.store.Save(r.name, rec); err != nil {
			r.logger.Warn("Failed to save bid record", "error", err)
		}
	}
	if r.journal != nil {
		ev := BidEvent{
			RunID:       r.runID,
			Auction:     r.name,
			Product:     snap.Product,
			Phase:       d.Phase,
			Price:       snap.Price,
			Amount:      d.Action.Amount,
			MyLastPrice: d.Memory.MyLastPrice,
			Reason:      d.Reason,
			At:          r.clock.Now(),
		}
		if err := r.journal.RecordBid(context.WithoutCancel(ctx), ev); err != nil {
			r.logger.Warn("Failed to journal bid", "error", err)
		}
	}
}

func (r *Runner) finish(ctx context.Context, res Result, outcome strategy.Outcome, runErr error) (Result, error) {
	res.Outcome = outcome
	res.EndedAt = r.clock.Now()

	r.mu.Lock()
	r.state = StateTerminated
	r.outcome = outcome
	r.mu.Unlock()

	switch {
	case runErr != nil:
		r.logger.Error("Run stopped", "error", runErr, "bids", res.Bids)
	case outcome.Won():
		r.event(r.notify.Wins, "Won auction", "product", res.Product, "price", res.LastPrice, "bids", res.Bids)
	default:
		r.logger.Info("Run finished", "outcome", outcome, "bids", res.Bids)
	}

	// A decided outcome closes the auction; an interrupted run keeps its
	// record for the next start.
	if runErr == nil && r.store != nil {
		if err := r.store.Clear(r.name); err != nil {
			r.logger.Warn("Failed to clear bid record", "error", err)
		}
	}
	if r.journal != nil {
		if err := r.journal.RecordRun(context.WithoutCancel(ctx), res, runErr); err != nil {
			r.logger.Warn("Failed to journal run", "error", err)
		}
	}
	return res, runErr
}

func (r *Runner) event(enabled bool, msg string, keyvals ...any) {
	if enabled {
		r.logger.Info(msg, keyvals...)
		return
	}
	r.logger.Debug(msg, keyvals...)
}
