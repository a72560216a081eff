package main

import (
	"fmt"

	"github.com/alecthomas/kong"
)

// version is set by ldflags during build
var version = "dev"

type CLI struct {
	Version kong.VersionFlag `short:"v" help:"Show version"`
	Config  string           `short:"c" default:"autobid.hcl" type:"path" help:"Path to the HCL configuration file"`
	Debug   bool             `help:"Enable debug logging"`

	Run      RunCmd      `cmd:"" help:"Bid on the configured auctions through the game bridge"`
	Simulate SimulateCmd `cmd:"" help:"Run the agent against an in-process simulated auction house"`
	House    HouseCmd    `cmd:"" help:"Serve a simulated auction house over websocket"`
	History  HistoryCmd  `cmd:"" help:"Show past runs from the ledger"`
	Ver      VersionCmd  `cmd:"version" help:"Print the version"`
}

type VersionCmd struct{}

func (VersionCmd) Run() error {
	fmt.Println(version)
	return nil
}

func main() {
	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("autobid"),
		kong.Description("Unattended bidding agent for timed in-game auctions"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
		}),
		kong.Vars{
			"version": version,
		},
	)
	err := ctx.Run(&cli)
	ctx.FatalIfErrorf(err)
}
