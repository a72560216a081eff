package bridge

import (
	"context"

	"github.com/lox/autobid/internal/protocol"
	"github.com/lox/autobid/internal/strategy"
)

// AuctionClient is the game client for one auction over a shared Conn.
type AuctionClient struct {
	conn    *Conn
	auction string
}

func (c *Conn) Auction(name string) *AuctionClient {
	return &AuctionClient{conn: c, auction: name}
}

func (a *AuctionClient) ActiveBid(ctx context.Context) (int64, bool, error) {
	var data protocol.ActiveBidData
	if err := a.conn.request(ctx, protocol.TypeActiveBid, protocol.AuctionRequest{Auction: a.auction}, protocol.TypeActiveBidResult, &data); err != nil {
		return 0, false, err
	}
	if !data.Active {
		return 0, false, nil
	}
	amount, err := protocol.ParseAmount(data.Amount)
	if err != nil {
		return 0, false, err
	}
	return amount, amount > 0, nil
}

// Snapshot reads the auction. A price or countdown the agent cannot parse
// makes the snapshot unreadable rather than failing the read.
func (a *AuctionClient) Snapshot(ctx context.Context) (strategy.Snapshot, error) {
	var data protocol.SnapshotData
	if err := a.conn.request(ctx, protocol.TypeSnapshot, protocol.AuctionRequest{Auction: a.auction}, protocol.TypeSnapshotResult, &data); err != nil {
		return strategy.Snapshot{}, err
	}

	snap := strategy.Snapshot{
		Product:       data.Product,
		MaxBidder:     data.MaxBidder,
		PriceReadable: data.PriceReadable,
	}
	wealth, err := protocol.ParseAmount(data.Wealth)
	if err != nil {
		return strategy.Snapshot{}, err
	}
	snap.Wealth = wealth

	remaining, err := protocol.ParseDuration(data.TimeRemaining)
	if err != nil {
		a.conn.logger.Warn("Unreadable countdown", "auction", a.auction, "value", data.TimeRemaining)
		snap.PriceReadable = false
	}
	snap.TimeRemaining = remaining

	if snap.PriceReadable {
		price, err := protocol.ParseAmount(data.Price)
		if err != nil {
			a.conn.logger.Warn("Unreadable price", "auction", a.auction, "value", data.Price)
			snap.PriceReadable = false
		}
		snap.Price = price
	}
	return snap, nil
}

func (a *AuctionClient) Wealth(ctx context.Context) (int64, error) {
	var data protocol.WealthData
	if err := a.conn.request(ctx, protocol.TypeWealth, protocol.AuctionRequest{Auction: a.auction}, protocol.TypeWealthResult, &data); err != nil {
		return 0, err
	}
	return protocol.ParseAmount(data.Wealth)
}

func (a *AuctionClient) PlaceBid(ctx context.Context, amount int64) error {
	var data protocol.BidAcceptedData
	return a.conn.request(ctx, protocol.TypePlaceBid, protocol.PlaceBidData{Auction: a.auction, Amount: amount}, protocol.TypeBidAccepted, &data)
}
