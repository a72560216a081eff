package agent

import (
	"context"
	"time"

	"github.com/lox/autobid/internal/state"
	"github.com/lox/autobid/internal/strategy"
)

// GameClient is the game side of a single auction: price feed, wallet and
// bid submission.
type GameClient interface {
	// ActiveBid reports the amount of a bid the player already holds on the
	// auction. ok is false when there is none.
	ActiveBid(ctx context.Context) (amount int64, ok bool, err error)
	Snapshot(ctx context.Context) (strategy.Snapshot, error)
	Wealth(ctx context.Context) (int64, error)
	PlaceBid(ctx context.Context, amount int64) error
}

// Store persists the committed bid of an auction so a restarted agent can
// resume when the game cannot report the active bid itself. Load returns
// (nil, nil) when nothing is stored.
type Store interface {
	Load(auction string) (*state.Record, error)
	Save(auction string, rec state.Record) error
	Clear(auction string) error
}

// Journal receives every committed bid and the final result of each run.
type Journal interface {
	RecordBid(ctx context.Context, bid BidEvent) error
	RecordRun(ctx context.Context, res Result, runErr error) error
}

// BidEvent describes a bid the game accepted.
type BidEvent struct {
	RunID       string
	Auction     string
	Product     string
	Phase       strategy.Phase
	Price       int64 // price observed before the bid
	Amount      int64
	MyLastPrice int64
	Reason      string
	At          time.Time
}

// Notifications selects which run events are logged at info level. Disabled
// events are still logged at debug level.
type Notifications struct {
	Bids   bool
	Outbid bool
	Wins   bool
}

// AllNotifications enables every event.
func AllNotifications() Notifications {
	return Notifications{Bids: true, Outbid: true, Wins: true}
}
