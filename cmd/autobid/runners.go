package main

import (
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"
	"github.com/lox/autobid/internal/agent"
	"github.com/lox/autobid/internal/config"
	"github.com/lox/autobid/internal/house"
	"github.com/lox/autobid/internal/randutil"
	"github.com/lox/autobid/internal/strategy"
)

// fleet holds what every runner of one invocation shares.
type fleet struct {
	cfg     *config.Config
	logger  *log.Logger
	clock   quartz.Clock
	store   agent.Store
	journal agent.Journal
	budget  *agent.Budget
	seed    int64
	scale   float64
	client  func(a config.AuctionConfig) agent.GameClient
}

// selectAuctions returns the named auction blocks, or all of them when names
// is empty.
func selectAuctions(cfg *config.Config, names []string) ([]config.AuctionConfig, error) {
	if len(names) == 0 {
		return cfg.Auctions, nil
	}
	out := make([]config.AuctionConfig, 0, len(names))
	for _, name := range names {
		a, ok := cfg.Auction(name)
		if !ok {
			return nil, fmt.Errorf("auction %q is not configured", name)
		}
		out = append(out, *a)
	}
	return out, nil
}

// spendBudget is the process-wide hourly cap, or nil when none is set.
func spendBudget(cfg *config.Config, clock quartz.Clock) *agent.Budget {
	if cfg.Safety.MaxSpendPerHour <= 0 {
		return nil
	}
	return agent.NewBudget(cfg.Safety.MaxSpendPerHour, clock)
}

func (f fleet) runners(auctions []config.AuctionConfig) ([]*agent.Runner, error) {
	n := agent.Notifications{
		Bids:   *f.cfg.Notifications.LogBids,
		Outbid: *f.cfg.Notifications.LogOutbid,
		Wins:   *f.cfg.Notifications.LogWins,
	}

	runners := make([]*agent.Runner, 0, len(auctions))
	for i, a := range auctions {
		sc, err := a.Strategy(f.cfg.Client.Player)
		if err != nil {
			return nil, fmt.Errorf("auction %s: %w", a.Name, err)
		}
		sc.Timings = sc.Timings.Scale(f.scale)
		delay, err := a.RetryDelay()
		if err != nil {
			return nil, fmt.Errorf("auction %s: %w", a.Name, err)
		}

		engine := strategy.NewEngine(sc, randutil.New(randutil.Derive(f.seed, i)))
		opts := []agent.Option{
			agent.WithClock(f.clock),
			agent.WithLogger(f.logger),
			agent.WithNotifications(n),
			agent.WithBidRetries(*a.BidRetries, scaled(delay, f.scale)),
		}
		if f.store != nil {
			opts = append(opts, agent.WithStore(f.store))
		}
		if f.journal != nil {
			opts = append(opts, agent.WithJournal(f.journal))
		}
		if f.budget != nil {
			opts = append(opts, agent.WithBudget(f.budget))
		}
		runners = append(runners, agent.NewRunner(a.Name, f.client(a), engine, opts...))
	}
	return runners, nil
}

// houseConfig turns the house block and the auction blocks into a simulated
// house whose clock runs scale times faster than the game's.
func houseConfig(cfg *config.Config, auctions []config.AuctionConfig, scale float64, seed int64) (house.Config, error) {
	interval, err := cfg.House.Interval()
	if err != nil {
		return house.Config{}, err
	}

	hc := house.Config{Wallet: cfg.House.Wallet, Seed: seed}
	for _, a := range auctions {
		d, err := a.Duration()
		if err != nil {
			return house.Config{}, fmt.Errorf("auction %s: %w", a.Name, err)
		}
		hc.Auctions = append(hc.Auctions, house.AuctionConfig{
			Name:          a.Name,
			Product:       a.HouseProduct(),
			Duration:      scaled(d, scale),
			StartPrice:    cfg.House.StartPrice,
			Step:          a.Step,
			Rivals:        *cfg.House.Rivals,
			RivalCeiling:  cfg.House.RivalCeiling,
			RivalInterval: scaled(interval, scale),
			RivalActivity: cfg.House.RivalActivity,
		})
	}
	return hc, nil
}

func scaled(d time.Duration, factor float64) time.Duration {
	if factor <= 0 || factor == 1 {
		return d
	}
	return time.Duration(float64(d) / factor)
}
