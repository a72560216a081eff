package house

import (
	"context"

	"github.com/lox/autobid/internal/strategy"
)

// Client is an in-process game client for one auction and player.
type Client struct {
	house   *House
	auction string
	player  string
}

func (h *House) Client(auction, player string) *Client {
	return &Client{house: h, auction: auction, player: player}
}

func (c *Client) ActiveBid(ctx context.Context) (int64, bool, error) {
	if err := ctx.Err(); err != nil {
		return 0, false, err
	}
	return c.house.ActiveBid(c.auction, c.player)
}

func (c *Client) Snapshot(ctx context.Context) (strategy.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return strategy.Snapshot{}, err
	}
	v, err := c.house.View(c.auction, c.player)
	if err != nil {
		return strategy.Snapshot{}, err
	}
	return strategy.Snapshot{
		Product:       v.Product,
		Price:         v.Price,
		MaxBidder:     v.Leader,
		TimeRemaining: v.Remaining,
		Wealth:        v.Wealth,
		PriceReadable: v.Open,
	}, nil
}

func (c *Client) Wealth(ctx context.Context) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return c.house.Wealth(c.player), nil
}

func (c *Client) PlaceBid(ctx context.Context, amount int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := c.house.PlaceBid(c.auction, c.player, amount)
	return err
}
