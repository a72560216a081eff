package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/lox/autobid/internal/strategy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fullConfig = `
state_dir = "/var/lib/autobid"

client {
  url             = "ws://game.local:9000/ws"
  player          = "kopo"
  request_timeout = "3s"
}

log {
  level = "debug"
  json  = true
  file  = "/var/log/autobid.log"
}

ledger {
  path = "/var/lib/autobid/ledger.db"
}

notifications {
  log_outbid = false
}

safety {
  max_spend_per_hour  = 750000
  max_concurrent_bids = 0
}

house {
  wallet = 2000000
  seed   = 42
  rivals = 0
}

auction "hour" {
  product         = "Ore"
  max_bid         = 250000
  step            = 10000
  instant_max_bid = true
  progress_policy = "reset"
  reserve_credits = 50000
  bid_retries     = 4
  bid_retry_delay = "2s"
  max_rebids      = 0

  max_price_increase_percent = 150

  far_wait {
    factor = 0.25
    min    = "1m"
    max    = "10m"
  }
}

auction "daily" {
  kind    = "day"
  max_bid = 900000

  timings {
    mid_poll = "90s"
  }
}
`

func TestParseFullConfig(t *testing.T) {
	t.Parallel()

	cfg, err := Parse([]byte(fullConfig), "autobid.hcl")
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "/var/lib/autobid", cfg.StateDir)
	assert.Equal(t, "kopo", cfg.Client.Player)
	assert.Equal(t, 3*time.Second, cfg.RequestTimeout())
	assert.True(t, cfg.Log.JSON)
	assert.True(t, *cfg.Notifications.LogBids)
	assert.False(t, *cfg.Notifications.LogOutbid)
	assert.True(t, *cfg.Notifications.LogWins)
	assert.Equal(t, int64(2_000_000), cfg.House.Wallet)
	assert.Equal(t, 0, *cfg.House.Rivals, "explicit zero rivals kept")
	assert.Equal(t, int64(750_000), cfg.Safety.MaxSpendPerHour)
	assert.Equal(t, 0, *cfg.Safety.MaxConcurrentBids, "explicit zero keeps auctions unbounded")
	require.Len(t, cfg.Auctions, 2)

	hour, ok := cfg.Auction("hour")
	require.True(t, ok)
	sc, err := hour.Strategy(cfg.Client.Player)
	require.NoError(t, err)
	assert.Equal(t, "kopo", sc.Self)
	assert.Equal(t, int64(250_000), sc.MaxBid)
	assert.True(t, sc.InstantMaxBid)
	assert.Equal(t, strategy.PolicyReset, sc.Policy)
	assert.Equal(t, int64(50_000), sc.ReserveCredits)
	assert.Equal(t, "Ore", sc.Product)
	assert.Zero(t, sc.MaxRebids)
	assert.Equal(t, 150, sc.MaxPriceIncreasePercent)
	assert.Equal(t, 0.25, sc.Timings.FarFactor)
	assert.Equal(t, time.Minute, sc.Timings.FarMin)
	assert.Equal(t, 10*time.Minute, sc.Timings.FarMax)
	assert.Equal(t, 4, *hour.BidRetries)
	delay, err := hour.RetryDelay()
	require.NoError(t, err)
	assert.Equal(t, 2*time.Second, delay)

	daily, ok := cfg.Auction("daily")
	require.True(t, ok)
	assert.Empty(t, daily.Product)
	assert.Equal(t, "daily", daily.HouseProduct())
	assert.Equal(t, int64(DefaultStep), daily.Step)
	d, err := daily.Duration()
	require.NoError(t, err)
	assert.Equal(t, 24*time.Hour, d)
	sc, err = daily.Strategy("kopo")
	require.NoError(t, err)
	assert.Equal(t, strategy.PolicyCarry, sc.Policy)
	assert.Empty(t, sc.Product, "no product filter")
	assert.Equal(t, DefaultMaxRebids, sc.MaxRebids)
	assert.Equal(t, DefaultMaxPriceIncreasePercent, sc.MaxPriceIncreasePercent)
	assert.Equal(t, 90*time.Second, sc.Timings.MidPoll)
	assert.Equal(t, 15*time.Minute, sc.Timings.MidThreshold)

	_, ok = cfg.Auction("weekly")
	assert.False(t, ok)
}

func TestValidateRejects(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"week kind": `auction "w" {
  kind    = "week"
  max_bid = 100000
}`,
		"unknown kind": `auction "w" {
  kind    = "month"
  max_bid = 100000
}`,
		"max below step": `auction "w" {
  max_bid = 5000
}`,
		"bad policy": `auction "w" {
  max_bid         = 100000
  progress_policy = "sometimes"
}`,
		"bad delay": `auction "w" {
  max_bid         = 100000
  bid_retry_delay = "soon"
}`,
		"bad far wait": `auction "w" {
  max_bid = 100000
  far_wait {
    min = "10m"
    max = "1m"
  }
}`,
		"bad thresholds": `auction "w" {
  max_bid = 100000
  timings {
    late_threshold = "20m"
  }
}`,
		"duplicate": `auction "w" {
  max_bid = 100000
}
auction "w" {
  max_bid = 100000
}`,
		"bad log level": `log {
  level = "loud"
}
auction "w" {
  max_bid = 100000
}`,
		"negative rebids": `auction "w" {
  max_bid    = 100000
  max_rebids = -1
}`,
		"negative spend cap": `safety {
  max_spend_per_hour = -5
}
auction "w" {
  max_bid = 100000
}`,
		"no auctions": `state_dir = "x"`,
	}
	for name, src := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			cfg, err := Parse([]byte(src), "test.hcl")
			require.NoError(t, err)
			assert.Error(t, cfg.Validate())
		})
	}

	_, err := Parse([]byte(`auction "w" { step = 10 }`), "test.hcl")
	assert.Error(t, err, "max_bid is required")
}

func TestLoad(t *testing.T) {
	t.Parallel()

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.hcl"))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())
	assert.Len(t, cfg.Auctions, 1)

	path := filepath.Join(t.TempDir(), "autobid.hcl")
	require.NoError(t, os.WriteFile(path, []byte(fullConfig), 0o644))
	cfg, err = Load(path)
	require.NoError(t, err)
	assert.Len(t, cfg.Auctions, 2)

	require.NoError(t, os.WriteFile(path, []byte(`auction "x" {`), 0o644))
	_, err = Load(path)
	assert.Error(t, err)
}
