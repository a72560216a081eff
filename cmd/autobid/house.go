package main

import (
	"github.com/coder/quartz"
	"github.com/lox/autobid/internal/house"
	"github.com/lox/autobid/internal/randutil"
)

type HouseCmd struct {
	Listen   string   `short:"l" default:":8080" help:"Address to listen on"`
	Auctions []string `arg:"" optional:"" help:"Auction blocks to host (default: all)"`
	Scale    float64  `default:"1" help:"Time compression factor"`
	Seed     int64    `help:"Seed for rival bidders (0 = house seed, then random)"`
}

func (c *HouseCmd) Run(cli *CLI) error {
	cfg, logger, closeLog, err := cli.setup()
	if err != nil {
		return err
	}
	defer closeLog()

	auctions, err := selectAuctions(cfg, c.Auctions)
	if err != nil {
		return err
	}
	seed := c.Seed
	if seed == 0 {
		seed = cfg.House.Seed
	}
	hc, err := houseConfig(cfg, auctions, c.Scale, randutil.Seed(seed))
	if err != nil {
		return err
	}
	h, err := house.New(hc, house.WithClock(quartz.NewReal()), house.WithLogger(logger))
	if err != nil {
		return err
	}

	ctx, stop := signalContext()
	defer stop()

	srv := house.NewServer(h, logger)
	logger.Info("Auction house ready", "addr", c.Listen, "auctions", h.Auctions(), "seed", hc.Seed)
	return srv.ListenAndServe(ctx, c.Listen)
}
