package main

import (
	"fmt"
	"os"

	"github.com/coder/quartz"
	"github.com/lox/autobid/internal/agent"
	"github.com/lox/autobid/internal/config"
	"github.com/lox/autobid/internal/house"
	"github.com/lox/autobid/internal/ledger"
	"github.com/lox/autobid/internal/randutil"
)

type SimulateCmd struct {
	Auctions []string `arg:"" optional:"" help:"Auction blocks to simulate (default: all)"`
	Scale    float64  `default:"60" help:"Time compression factor (60 plays an hour auction in a minute)"`
	Seed     int64    `help:"Seed for the house and the agents (0 = house seed, then random)"`
	Ledger   bool     `help:"Journal simulated runs in the ledger"`
}

func (c *SimulateCmd) Run(cli *CLI) error {
	cfg, logger, closeLog, err := cli.setup()
	if err != nil {
		return err
	}
	defer closeLog()

	if c.Scale <= 0 {
		return fmt.Errorf("scale must be positive, got %v", c.Scale)
	}
	auctions, err := selectAuctions(cfg, c.Auctions)
	if err != nil {
		return err
	}
	seed := c.Seed
	if seed == 0 {
		seed = cfg.House.Seed
	}
	seed = randutil.Seed(seed)

	hc, err := houseConfig(cfg, auctions, c.Scale, seed)
	if err != nil {
		return err
	}
	clock := quartz.NewReal()
	h, err := house.New(hc, house.WithClock(clock), house.WithLogger(logger))
	if err != nil {
		return err
	}

	f := fleet{
		cfg:    cfg,
		logger: logger,
		clock:  clock,
		budget: spendBudget(cfg, clock),
		seed:   seed,
		scale:  c.Scale,
		client: func(a config.AuctionConfig) agent.GameClient { return h.Client(a.Name, cfg.Client.Player) },
	}
	if c.Ledger {
		led, err := ledger.Open(cfg.Ledger.Path)
		if err != nil {
			return err
		}
		defer led.Close()
		f.journal = led
	}

	runners, err := f.runners(auctions)
	if err != nil {
		return err
	}

	ctx, stop := signalContext()
	defer stop()

	logger.Info("Starting simulation", "seed", seed, "scale", c.Scale, "auctions", len(runners))
	results, runErr := agent.RunAll(ctx, runners, *cfg.Safety.MaxConcurrentBids)

	fmt.Fprintln(os.Stdout, renderResults(results))
	fmt.Fprintln(os.Stdout, renderHouse(h.Outcomes(), cfg.Client.Player, h.Wealth(cfg.Client.Player), cfg.House.Wallet))
	return runErr
}
