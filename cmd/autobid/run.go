package main

import (
	"fmt"
	"os"

	"github.com/coder/quartz"
	"github.com/lox/autobid/internal/agent"
	"github.com/lox/autobid/internal/bridge"
	"github.com/lox/autobid/internal/config"
	"github.com/lox/autobid/internal/ledger"
	"github.com/lox/autobid/internal/randutil"
	"github.com/lox/autobid/internal/state"
)

type RunCmd struct {
	Auctions []string `arg:"" optional:"" help:"Auction blocks to run (default: all)"`
	URL      string   `help:"Override the game bridge URL"`
	Player   string   `help:"Override the player name"`
	Seed     int64    `help:"Seed for bid sizing draws (0 = random)"`
	NoLedger bool     `help:"Do not journal bids and outcomes"`
}

func (c *RunCmd) Run(cli *CLI) error {
	cfg, logger, closeLog, err := cli.setup()
	if err != nil {
		return err
	}
	defer closeLog()

	if c.URL != "" {
		cfg.Client.URL = c.URL
	}
	if c.Player != "" {
		cfg.Client.Player = c.Player
	}
	auctions, err := selectAuctions(cfg, c.Auctions)
	if err != nil {
		return err
	}

	ctx, stop := signalContext()
	defer stop()

	conn, err := bridge.Dial(ctx, cfg.Client.URL, cfg.Client.Player,
		bridge.WithLogger(logger),
		bridge.WithRequestTimeout(cfg.RequestTimeout()),
	)
	if err != nil {
		return err
	}
	defer conn.Close()

	clock := quartz.NewReal()
	f := fleet{
		cfg:    cfg,
		logger: logger,
		clock:  clock,
		budget: spendBudget(cfg, clock),
		store:  state.NewFileStore(cfg.StateDir),
		seed:   randutil.Seed(c.Seed),
		scale:  1,
		client: func(a config.AuctionConfig) agent.GameClient { return conn.Auction(a.Name) },
	}
	if !c.NoLedger {
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
	logger.Info("Starting agent", "player", cfg.Client.Player, "auctions", len(runners))

	results, runErr := agent.RunAll(ctx, runners, *cfg.Safety.MaxConcurrentBids)
	fmt.Fprintln(os.Stdout, renderResults(results))
	return runErr
}
