package main

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"
	"github.com/lox/autobid/internal/agent"
	"github.com/lox/autobid/internal/config"
	"github.com/lox/autobid/internal/house"
	"github.com/lox/autobid/internal/strategy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const twoAuctions = `
client {
  player = "kopo"
}

house {
  rivals         = 2
  rival_interval = "1m"
}

auction "hour" {
  product = "Ore"
  max_bid = 200000
}

auction "daily" {
  kind    = "day"
  product = "Gem"
  max_bid = 900000
  step    = 20000
}
`

func loadTestConfig(t *testing.T, src string) *config.Config {
	t.Helper()
	cfg, err := config.Parse([]byte(src), "autobid.hcl")
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())
	return cfg
}

func TestSelectAuctions(t *testing.T) {
	t.Parallel()
	cfg := loadTestConfig(t, twoAuctions)

	all, err := selectAuctions(cfg, nil)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	some, err := selectAuctions(cfg, []string{"daily"})
	require.NoError(t, err)
	require.Len(t, some, 1)
	assert.Equal(t, "Gem", some[0].Product)

	_, err = selectAuctions(cfg, []string{"weekly"})
	assert.Error(t, err)
}

func TestHouseConfigScales(t *testing.T) {
	t.Parallel()
	cfg := loadTestConfig(t, twoAuctions)

	hc, err := houseConfig(cfg, cfg.Auctions, 60, 9)
	require.NoError(t, err)
	assert.Equal(t, int64(9), hc.Seed)
	assert.Equal(t, cfg.House.Wallet, hc.Wallet)
	require.Len(t, hc.Auctions, 2)

	hour := hc.Auctions[0]
	assert.Equal(t, time.Minute, hour.Duration)
	assert.Equal(t, time.Second, hour.RivalInterval)
	assert.Equal(t, 2, hour.Rivals)
	assert.Equal(t, int64(10_000), hour.Step)

	day := hc.Auctions[1]
	assert.Equal(t, 24*time.Minute, day.Duration)
	assert.Equal(t, int64(20_000), day.Step)

	_, err = house.New(hc, house.WithLogger(log.NewWithOptions(io.Discard, log.Options{})))
	assert.NoError(t, err)
}

func TestScaled(t *testing.T) {
	t.Parallel()
	assert.Equal(t, time.Hour, scaled(time.Hour, 1))
	assert.Equal(t, time.Hour, scaled(time.Hour, 0))
	assert.Equal(t, 30*time.Minute, scaled(time.Hour, 2))
}

func TestFleetWinsQuietSimulation(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	cfg := loadTestConfig(t, twoAuctions)
	*cfg.House.Rivals = 0

	auctions, err := selectAuctions(cfg, []string{"hour"})
	require.NoError(t, err)
	hc, err := houseConfig(cfg, auctions, 1, 3)
	require.NoError(t, err)

	logger := log.NewWithOptions(io.Discard, log.Options{})
	mClock := quartz.NewMock(t)
	h, err := house.New(hc, house.WithClock(mClock), house.WithLogger(logger))
	require.NoError(t, err)

	f := fleet{
		cfg:    cfg,
		logger: logger,
		clock:  mClock,
		seed:   3,
		scale:  1,
		client: func(a config.AuctionConfig) agent.GameClient { return h.Client(a.Name, "kopo") },
	}
	runners, err := f.runners(auctions)
	require.NoError(t, err)
	require.Len(t, runners, 1)

	done := make(chan struct{})
	var results []agent.Result
	var runErr error
	go func() {
		defer close(done)
		results, runErr = agent.RunAll(ctx, runners, *cfg.Safety.MaxConcurrentBids)
	}()

	deadline := time.After(10 * time.Second)
	for running := true; running; {
		select {
		case <-done:
			running = false
			continue
		case <-deadline:
			t.Fatal("simulation did not finish")
		default:
		}
		if d, ok := mClock.Peek(); ok {
			mClock.Advance(d).MustWait(ctx)
			continue
		}
		time.Sleep(time.Millisecond)
	}

	require.NoError(t, runErr)
	require.Len(t, results, 1)
	assert.Equal(t, strategy.OutcomeSuccess, results[0].Outcome)

	out := h.Outcomes()
	require.Len(t, out, 1)
	assert.Equal(t, "kopo", out[0].Winner)
	assert.Equal(t, results[0].LastPrice, out[0].Price)
	assert.Equal(t, cfg.House.Wallet-out[0].Price, h.Wealth("kopo"))
}
