package house

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"
	"github.com/lox/autobid/internal/agent"
	"github.com/lox/autobid/internal/strategy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *log.Logger {
	return log.NewWithOptions(io.Discard, log.Options{})
}

func quietAuction(name string, d time.Duration) AuctionConfig {
	return AuctionConfig{
		Name:       name,
		Product:    "Ore",
		Duration:   d,
		StartPrice: 50_000,
		Step:       10_000,
	}
}

func newTestHouse(t *testing.T, clock quartz.Clock, auctions ...AuctionConfig) *House {
	t.Helper()
	h, err := New(Config{Auctions: auctions, Wallet: 1_000_000, Seed: 7}, WithClock(clock), WithLogger(testLogger()))
	require.NoError(t, err)
	return h
}

func TestHouseBidAndSettle(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	mClock := quartz.NewMock(t)
	h := newTestHouse(t, mClock, quietAuction("hour", 10*time.Minute))

	v, err := h.View("hour", "alice")
	require.NoError(t, err)
	assert.True(t, v.Open)
	assert.Equal(t, int64(50_000), v.Price)
	assert.Equal(t, 10*time.Minute, v.Remaining)
	assert.Equal(t, int64(1_000_000), v.Wealth)

	_, ok, err := h.ActiveBid("hour", "alice")
	require.NoError(t, err)
	assert.False(t, ok)

	price, err := h.PlaceBid("hour", "alice", 10_000)
	require.NoError(t, err)
	assert.Equal(t, int64(60_000), price)

	price, err = h.PlaceBid("hour", "bob", 25_000)
	require.NoError(t, err)
	assert.Equal(t, int64(85_000), price)

	amount, ok, err := h.ActiveBid("hour", "bob")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(85_000), amount)

	// Outbid players have no active bid to resume from.
	_, ok, err = h.ActiveBid("hour", "alice")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = h.PlaceBid("hour", "alice", 0)
	assert.ErrorIs(t, err, ErrInvalidRaise)

	mClock.Advance(10 * time.Minute).MustWait(ctx)

	v, err = h.View("hour", "bob")
	require.NoError(t, err)
	assert.False(t, v.Open)
	assert.Zero(t, v.Price)
	assert.Equal(t, int64(1_000_000-85_000), v.Wealth)
	assert.Equal(t, int64(1_000_000), h.Wealth("alice"))

	_, err = h.PlaceBid("hour", "alice", 10_000)
	assert.ErrorIs(t, err, ErrAuctionClosed)

	_, ok, err = h.ActiveBid("hour", "bob")
	require.NoError(t, err)
	assert.False(t, ok)

	out := h.Outcomes()
	require.Len(t, out, 1)
	assert.Equal(t, Outcome{Auction: "hour", Product: "Ore", Winner: "bob", Price: 85_000, Closed: true}, out[0])
}

func TestHouseRejects(t *testing.T) {
	t.Parallel()
	mClock := quartz.NewMock(t)
	h := newTestHouse(t, mClock, quietAuction("hour", time.Hour))

	_, err := h.View("day", "alice")
	assert.ErrorIs(t, err, ErrUnknownAuction)

	_, err = h.PlaceBid("hour", "alice", 2_000_000)
	assert.ErrorIs(t, err, ErrInsufficientFunds)

	_, err = New(Config{})
	assert.Error(t, err)

	_, err = New(Config{Auctions: []AuctionConfig{quietAuction("a", time.Hour), quietAuction("a", time.Hour)}}, WithLogger(testLogger()))
	assert.Error(t, err)

	bad := quietAuction("a", time.Hour)
	bad.Rivals = 2
	_, err = New(Config{Auctions: []AuctionConfig{bad}}, WithLogger(testLogger()))
	assert.Error(t, err)
}

func TestRivalsAreDeterministic(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	play := func() []int64 {
		mClock := quartz.NewMock(t)
		h := newTestHouse(t, mClock, DefaultAuction("hour"))
		var prices []int64
		for range 25 {
			mClock.Advance(2 * time.Minute).MustWait(ctx)
			v, err := h.View("hour", "alice")
			require.NoError(t, err)
			prices = append(prices, v.Price)
		}
		return prices
	}

	a, b := play(), play()
	assert.Equal(t, a, b)
	assert.Greater(t, a[len(a)-1], int64(50_000), "rivals never raised")
	for i := 1; i < len(a); i++ {
		assert.GreaterOrEqual(t, a[i], a[i-1])
	}
	// Rival ceilings top out at 120% of the configured level.
	assert.LessOrEqual(t, a[len(a)-1], int64(300_000))
}

func TestAgentWinsQuietAuction(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	mClock := quartz.NewMock(t)
	h := newTestHouse(t, mClock, quietAuction("hour", 20*time.Minute))

	engine := strategy.NewEngine(strategy.Config{Self: "alice", MaxBid: 200_000, Step: 10_000}, zeroRand{})
	r := agent.NewRunner("hour", h.Client("hour", "alice"), engine, agent.WithClock(mClock), agent.WithLogger(testLogger()))

	done := make(chan struct{})
	var res agent.Result
	var runErr error
	go func() {
		defer close(done)
		res, runErr = r.Run(ctx)
	}()

	deadline := time.After(10 * time.Second)
	for running := true; running; {
		select {
		case <-done:
			running = false
			continue
		case <-deadline:
			t.Fatal("agent did not finish")
		default:
		}
		if d, ok := mClock.Peek(); ok {
			mClock.Advance(d).MustWait(ctx)
			continue
		}
		time.Sleep(time.Millisecond)
	}

	require.NoError(t, runErr)
	assert.Equal(t, strategy.OutcomeSuccess, res.Outcome)
	assert.Equal(t, 2, res.Bids)

	out := h.Outcomes()
	assert.Equal(t, "alice", out[0].Winner)
	assert.Equal(t, int64(1_000_000)-out[0].Price, h.Wealth("alice"))
}

type zeroRand struct{}

func (zeroRand) Int64N(int64) int64 { return 0 }
