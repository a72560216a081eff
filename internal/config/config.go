// Package config loads the agent configuration from HCL.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/lox/autobid/internal/strategy"
)

// Config is the complete agent configuration.
type Config struct {
	StateDir      string               `hcl:"state_dir,optional"`
	Client        *ClientConfig        `hcl:"client,block"`
	Log           *LogConfig           `hcl:"log,block"`
	Ledger        *LedgerConfig        `hcl:"ledger,block"`
	Notifications *NotificationsConfig `hcl:"notifications,block"`
	Safety        *SafetyConfig        `hcl:"safety,block"`
	House         *HouseConfig         `hcl:"house,block"`
	Auctions      []AuctionConfig      `hcl:"auction,block"`
}

// ClientConfig points the agent at the game bridge.
type ClientConfig struct {
	URL            string `hcl:"url,optional"`
	Player         string `hcl:"player,optional"`
	RequestTimeout string `hcl:"request_timeout,optional"`
}

type LogConfig struct {
	Level string `hcl:"level,optional"`
	JSON  bool   `hcl:"json,optional"`
	File  string `hcl:"file,optional"`
}

type LedgerConfig struct {
	Path string `hcl:"path,optional"`
}

// NotificationsConfig selects the run events logged at info level.
type NotificationsConfig struct {
	LogBids   *bool `hcl:"log_bids,optional"`
	LogOutbid *bool `hcl:"log_outbid,optional"`
	LogWins   *bool `hcl:"log_wins,optional"`
}

// SafetyConfig limits what all auctions of one process may do together.
type SafetyConfig struct {
	// MaxSpendPerHour caps the raises submitted in any trailing hour. Zero is
	// unlimited.
	MaxSpendPerHour int64 `hcl:"max_spend_per_hour,optional"`
	// MaxConcurrentBids caps the auctions run at once. Zero is unlimited.
	MaxConcurrentBids *int `hcl:"max_concurrent_bids,optional"`
}

// AuctionConfig is one auction the agent bids on.
type AuctionConfig struct {
	Name string `hcl:"name,label"`
	// Product is the item to bid on. Empty bids on whatever the auction sells.
	Product                 string         `hcl:"product,optional"`
	Kind                    string         `hcl:"kind,optional"`
	MaxBid                  int64          `hcl:"max_bid"`
	Step                    int64          `hcl:"step,optional"`
	InstantMaxBid           bool           `hcl:"instant_max_bid,optional"`
	ProgressPolicy          string         `hcl:"progress_policy,optional"`
	ReserveCredits          int64          `hcl:"reserve_credits,optional"`
	MaxRebids               *int           `hcl:"max_rebids,optional"`
	MaxPriceIncreasePercent *int           `hcl:"max_price_increase_percent,optional"`
	BidRetries              *int           `hcl:"bid_retries,optional"`
	BidRetryDelay           string         `hcl:"bid_retry_delay,optional"`
	FarWait                 *FarWaitConfig `hcl:"far_wait,block"`
	Timings                 *TimingsConfig `hcl:"timings,block"`
}

// FarWaitConfig tunes the adaptive wait above the MID threshold.
type FarWaitConfig struct {
	Factor float64 `hcl:"factor,optional"`
	Min    string  `hcl:"min,optional"`
	Max    string  `hcl:"max,optional"`
}

// TimingsConfig overrides the phase thresholds and fixed waits. Unset values
// keep the game defaults.
type TimingsConfig struct {
	MidThreshold  string `hcl:"mid_threshold,optional"`
	LateThreshold string `hcl:"late_threshold,optional"`
	MidPoll       string `hcl:"mid_poll,optional"`
	LateConfirm   string `hcl:"late_confirm,optional"`
	Settle        string `hcl:"settle,optional"`
}

// HouseConfig parameterizes the simulated auction house used by the
// simulate and house commands.
type HouseConfig struct {
	Wallet        int64   `hcl:"wallet,optional"`
	Seed          int64   `hcl:"seed,optional"`
	StartPrice    int64   `hcl:"start_price,optional"`
	Rivals        *int    `hcl:"rivals,optional"`
	RivalCeiling  int64   `hcl:"rival_ceiling,optional"`
	RivalInterval string  `hcl:"rival_interval,optional"`
	RivalActivity float64 `hcl:"rival_activity,optional"`
}

// Auction kinds.
const (
	KindHour = "hour"
	KindDay  = "day"
	KindWeek = "week"
)

const (
	DefaultStep                    = 10_000
	DefaultMaxRebids               = 5
	DefaultMaxPriceIncreasePercent = 200
	DefaultMaxConcurrentBids       = 3
	DefaultBidRetries              = 2
	DefaultBidRetryDelay           = "5s"
	DefaultRequestTimeout          = "10s"
)

var ErrNoAuctions = errors.New("at least one auction must be configured")

// DefaultConfig returns the configuration used when no file exists.
func DefaultConfig() *Config {
	cfg := &Config{
		Auctions: []AuctionConfig{{
			Name:    KindHour,
			Product: "Ore",
			Kind:    KindHour,
			MaxBid:  100_000,
		}},
	}
	cfg.applyDefaults()
	return cfg
}

// Load reads filename, returning DefaultConfig when it does not exist.
func Load(filename string) (*Config, error) {
	if _, err := os.Stat(filename); os.IsNotExist(err) {
		return DefaultConfig(), nil
	}

	parser := hclparse.NewParser()
	file, diags := parser.ParseHCLFile(filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse HCL file: %s", diags.Error())
	}
	return decode(file)
}

// Parse decodes HCL source. filename is used in diagnostics only.
func Parse(src []byte, filename string) (*Config, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(src, filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse HCL: %s", diags.Error())
	}
	return decode(file)
}

func decode(file *hcl.File) (*Config, error) {
	var cfg Config
	if diags := gohcl.DecodeBody(file.Body, nil, &cfg); diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode HCL: %s", diags.Error())
	}
	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.StateDir == "" {
		c.StateDir = ".autobid/state"
	}
	if c.Client == nil {
		c.Client = &ClientConfig{}
	}
	if c.Client.URL == "" {
		c.Client.URL = "ws://localhost:8080/ws"
	}
	if c.Client.Player == "" {
		c.Client.Player = "autobid"
	}
	if c.Client.RequestTimeout == "" {
		c.Client.RequestTimeout = DefaultRequestTimeout
	}
	if c.Log == nil {
		c.Log = &LogConfig{}
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Ledger == nil {
		c.Ledger = &LedgerConfig{}
	}
	if c.Ledger.Path == "" {
		c.Ledger.Path = ".autobid/ledger.db"
	}
	if c.Notifications == nil {
		c.Notifications = &NotificationsConfig{}
	}
	for _, toggle := range []**bool{&c.Notifications.LogBids, &c.Notifications.LogOutbid, &c.Notifications.LogWins} {
		if *toggle == nil {
			*toggle = ptr(true)
		}
	}
	if c.Safety == nil {
		c.Safety = &SafetyConfig{}
	}
	if c.Safety.MaxConcurrentBids == nil {
		c.Safety.MaxConcurrentBids = ptr(DefaultMaxConcurrentBids)
	}
	if c.House == nil {
		c.House = &HouseConfig{}
	}
	if c.House.Wallet == 0 {
		c.House.Wallet = 5_000_000
	}
	if c.House.StartPrice == 0 {
		c.House.StartPrice = 50_000
	}
	if c.House.Rivals == nil {
		c.House.Rivals = ptr(3)
	}
	if c.House.RivalCeiling == 0 {
		c.House.RivalCeiling = 250_000
	}
	if c.House.RivalInterval == "" {
		c.House.RivalInterval = "2m"
	}
	if c.House.RivalActivity == 0 {
		c.House.RivalActivity = 0.4
	}

	for i := range c.Auctions {
		a := &c.Auctions[i]
		if a.Kind == "" {
			a.Kind = KindHour
		}
		if a.Step == 0 {
			a.Step = DefaultStep
		}
		if a.ProgressPolicy == "" {
			a.ProgressPolicy = strategy.PolicyCarry.String()
		}
		if a.MaxRebids == nil {
			a.MaxRebids = ptr(DefaultMaxRebids)
		}
		if a.MaxPriceIncreasePercent == nil {
			a.MaxPriceIncreasePercent = ptr(DefaultMaxPriceIncreasePercent)
		}
		if a.BidRetries == nil {
			a.BidRetries = ptr(DefaultBidRetries)
		}
		if a.BidRetryDelay == "" {
			a.BidRetryDelay = DefaultBidRetryDelay
		}
	}
}

// Validate checks the configuration after defaults were applied.
func (c *Config) Validate() error {
	if len(c.Auctions) == 0 {
		return ErrNoAuctions
	}
	if _, err := time.ParseDuration(c.Client.RequestTimeout); err != nil {
		return fmt.Errorf("client: invalid request_timeout %q", c.Client.RequestTimeout)
	}
	if _, err := log.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log: %w", err)
	}
	if _, err := c.House.Interval(); err != nil {
		return fmt.Errorf("house: %w", err)
	}
	if c.Safety.MaxSpendPerHour < 0 {
		return errors.New("safety: max_spend_per_hour must not be negative")
	}
	if *c.Safety.MaxConcurrentBids < 0 {
		return errors.New("safety: max_concurrent_bids must not be negative")
	}
	if c.House.RivalActivity < 0 || c.House.RivalActivity > 1 {
		return fmt.Errorf("house: rival_activity must be between 0 and 1")
	}

	seen := make(map[string]bool, len(c.Auctions))
	for _, a := range c.Auctions {
		if seen[a.Name] {
			return fmt.Errorf("auction %s: defined more than once", a.Name)
		}
		seen[a.Name] = true
		if _, err := a.Strategy(c.Client.Player); err != nil {
			return fmt.Errorf("auction %s: %w", a.Name, err)
		}
	}
	return nil
}

// Auction returns the named auction block.
func (c *Config) Auction(name string) (*AuctionConfig, bool) {
	for i := range c.Auctions {
		if c.Auctions[i].Name == name {
			return &c.Auctions[i], true
		}
	}
	return nil, false
}

// HouseProduct is the item the simulated house sells in this auction.
func (a AuctionConfig) HouseProduct() string {
	if a.Product != "" {
		return a.Product
	}
	return a.Name
}

// RequestTimeout is the parsed client request timeout.
func (c *Config) RequestTimeout() time.Duration {
	d, _ := time.ParseDuration(c.Client.RequestTimeout)
	return d
}

// Duration is the countdown an auction of this kind starts with.
func (a AuctionConfig) Duration() (time.Duration, error) {
	switch strings.ToLower(a.Kind) {
	case KindHour:
		return time.Hour, nil
	case KindDay:
		return 24 * time.Hour, nil
	case KindWeek:
		return 0, errors.New("week auctions are not supported")
	default:
		return 0, fmt.Errorf("unknown auction kind %q (want hour or day)", a.Kind)
	}
}

// RetryDelay is the parsed bid_retry_delay.
func (a AuctionConfig) RetryDelay() (time.Duration, error) {
	d, err := time.ParseDuration(a.BidRetryDelay)
	if err != nil || d < 0 {
		return 0, fmt.Errorf("invalid bid_retry_delay %q", a.BidRetryDelay)
	}
	return d, nil
}

// Strategy builds the engine configuration for player self.
func (a AuctionConfig) Strategy(self string) (strategy.Config, error) {
	if _, err := a.Duration(); err != nil {
		return strategy.Config{}, err
	}
	if _, err := a.RetryDelay(); err != nil {
		return strategy.Config{}, err
	}
	if a.BidRetries != nil && *a.BidRetries < 0 {
		return strategy.Config{}, errors.New("bid_retries must not be negative")
	}
	policy, err := strategy.ParseProgressPolicy(a.ProgressPolicy)
	if err != nil {
		return strategy.Config{}, err
	}

	timings := strategy.DefaultTimings()
	if t := a.Timings; t != nil {
		for _, f := range []struct {
			name string
			raw  string
			dst  *time.Duration
		}{
			{"mid_threshold", t.MidThreshold, &timings.MidThreshold},
			{"late_threshold", t.LateThreshold, &timings.LateThreshold},
			{"mid_poll", t.MidPoll, &timings.MidPoll},
			{"late_confirm", t.LateConfirm, &timings.LateConfirm},
			{"settle", t.Settle, &timings.Settle},
		} {
			if err := parseInto(f.name, f.raw, f.dst); err != nil {
				return strategy.Config{}, err
			}
		}
	}
	if fw := a.FarWait; fw != nil {
		if fw.Factor != 0 {
			timings.FarFactor = fw.Factor
		}
		if err := parseInto("far_wait.min", fw.Min, &timings.FarMin); err != nil {
			return strategy.Config{}, err
		}
		if err := parseInto("far_wait.max", fw.Max, &timings.FarMax); err != nil {
			return strategy.Config{}, err
		}
	}

	cfg := strategy.Config{
		Self:           self,
		Product:        a.Product,
		MaxBid:         a.MaxBid,
		Step:           a.Step,
		InstantMaxBid:  a.InstantMaxBid,
		Policy:         policy,
		ReserveCredits: a.ReserveCredits,
		Timings:        timings,
	}
	if a.MaxRebids != nil {
		cfg.MaxRebids = *a.MaxRebids
	}
	if a.MaxPriceIncreasePercent != nil {
		cfg.MaxPriceIncreasePercent = *a.MaxPriceIncreasePercent
	}
	if err := cfg.Validate(); err != nil {
		return strategy.Config{}, err
	}
	return cfg, nil
}

// Interval is the parsed rival_interval.
func (h HouseConfig) Interval() (time.Duration, error) {
	d, err := time.ParseDuration(h.RivalInterval)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid rival_interval %q", h.RivalInterval)
	}
	return d, nil
}

func parseInto(name, raw string, dst *time.Duration) error {
	if raw == "" {
		return nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid %s %q", name, raw)
	}
	*dst = d
	return nil
}

func ptr[T any](v T) *T { return &v }
