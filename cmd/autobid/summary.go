package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/lox/autobid/internal/agent"
	"github.com/lox/autobid/internal/house"
	"github.com/lox/autobid/internal/ledger"
	"github.com/lox/autobid/internal/protocol"
	"github.com/lox/autobid/internal/strategy"
)

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15"))

	auctionStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("14"))

	winStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("10"))

	lossStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("9"))

	endStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("11"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("8"))
)

func outcomeStyle(outcome string) lipgloss.Style {
	switch outcome {
	case strategy.OutcomeSuccess.String():
		return winStyle
	case strategy.OutcomeFailure.String(), strategy.OutcomeLoss.String():
		return lossStyle
	default:
		return endStyle
	}
}

func renderResults(results []agent.Result) string {
	var b strings.Builder
	b.WriteString(headerStyle.Render(fmt.Sprintf("%-12s %-12s %-9s %5s %12s %12s %10s", "AUCTION", "PRODUCT", "OUTCOME", "BIDS", "RAISED", "MY PRICE", "DURATION")))
	b.WriteByte('\n')
	for _, res := range results {
		outcome := res.Outcome.String()
		elapsed := res.EndedAt.Sub(res.StartedAt).Round(time.Second)
		if res.StartedAt.IsZero() {
			elapsed = 0
		}
		fmt.Fprintf(&b, "%s %-12s %s %5d %12s %12s %10s\n",
			auctionStyle.Render(fmt.Sprintf("%-12s", res.Auction)),
			res.Product,
			outcomeStyle(outcome).Render(fmt.Sprintf("%-9s", outcome)),
			res.Bids,
			protocol.FormatAmount(res.Raised),
			protocol.FormatAmount(res.LastPrice),
			elapsed,
		)
	}
	return strings.TrimRight(b.String(), "\n")
}

// renderHouse prints what the simulated house settled, from the point of
// view of player.
func renderHouse(outcomes []house.Outcome, player string, wealth, wallet int64) string {
	var b strings.Builder
	b.WriteString(headerStyle.Render("House"))
	b.WriteByte('\n')
	for _, o := range outcomes {
		status := dimStyle.Render("open")
		if o.Closed {
			winner := o.Winner
			if winner == "" {
				winner = "nobody"
			}
			style := lossStyle
			if winner == player {
				style = winStyle
			}
			status = style.Render(fmt.Sprintf("won by %s at %s", winner, protocol.FormatAmount(o.Price)))
		}
		fmt.Fprintf(&b, "  %s %s %s\n", auctionStyle.Render(o.Auction), o.Product, status)
	}
	fmt.Fprintf(&b, "  wealth %s (spent %s)", protocol.FormatAmount(wealth), protocol.FormatAmount(wallet-wealth))
	return b.String()
}

func renderRuns(runs []ledger.RunEntry) string {
	var b strings.Builder
	b.WriteString(headerStyle.Render(fmt.Sprintf("%-19s %-12s %-12s %-9s %5s %12s  %s", "STARTED", "AUCTION", "PRODUCT", "OUTCOME", "BIDS", "MY PRICE", "RUN")))
	b.WriteByte('\n')
	for _, run := range runs {
		fmt.Fprintf(&b, "%-19s %s %-12s %s %5d %12s  %s\n",
			run.StartedAt.Local().Format(time.DateTime),
			auctionStyle.Render(fmt.Sprintf("%-12s", run.Auction)),
			run.Product,
			outcomeStyle(run.Outcome).Render(fmt.Sprintf("%-9s", run.Outcome)),
			run.Bids,
			protocol.FormatAmount(run.LastPrice),
			dimStyle.Render(run.RunID),
		)
		if run.Error != "" {
			fmt.Fprintf(&b, "  %s\n", lossStyle.Render(run.Error))
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func renderBids(run ledger.RunEntry, bids []ledger.BidEntry) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s", auctionStyle.Render(run.Auction), dimStyle.Render(run.RunID))
	if len(bids) == 0 {
		b.WriteString("\n  " + dimStyle.Render("no bids"))
		return b.String()
	}
	for _, bid := range bids {
		fmt.Fprintf(&b, "\n  %s %-4s +%s at %s -> %s  %s",
			bid.At.Local().Format(time.TimeOnly),
			bid.Phase,
			protocol.FormatAmount(bid.Amount),
			protocol.FormatAmount(bid.Price),
			protocol.FormatAmount(bid.MyLastPrice),
			dimStyle.Render(bid.Reason),
		)
	}
	return b.String()
}
