package main

import (
	"context"
	"fmt"
	"os"

	"github.com/lox/autobid/internal/ledger"
)

type HistoryCmd struct {
	Auction string `short:"a" help:"Only list runs of this auction"`
	Limit   int    `short:"n" default:"20" help:"Maximum number of runs (0 = all)"`
	Bids    bool   `help:"List the bids of every run"`
}

func (c *HistoryCmd) Run(cli *CLI) error {
	cfg, _, closeLog, err := cli.setup()
	if err != nil {
		return err
	}
	defer closeLog()

	led, err := ledger.Open(cfg.Ledger.Path)
	if err != nil {
		return err
	}
	defer led.Close()

	ctx := context.Background()
	runs, err := led.Runs(ctx, c.Auction, c.Limit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Fprintln(os.Stdout, dimStyle.Render("No runs recorded yet."))
		return nil
	}
	fmt.Fprintln(os.Stdout, renderRuns(runs))

	if !c.Bids {
		return nil
	}
	for _, run := range runs {
		bids, err := led.Bids(ctx, run.RunID)
		if err != nil {
			return err
		}
		fmt.Fprintln(os.Stdout, renderBids(run, bids))
	}
	return nil
}
