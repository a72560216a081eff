// Package house simulates a timed auction house: auctions counting down on a
// clock, rival bidders raising the price, and player wallets charged when an
// auction closes with them in the lead.
//
// Rival activity is computed lazily on every read, so the house advances only
// as far as its clock says and runs deterministically on a mock clock.
package house

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"slices"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"
	"github.com/lox/autobid/internal/randutil"
)

var (
	ErrUnknownAuction    = errors.New("unknown auction")
	ErrAuctionClosed     = errors.New("auction closed")
	ErrInvalidRaise      = errors.New("raise must be positive")
	ErrInsufficientFunds = errors.New("insufficient funds")
)

// AuctionConfig describes one auction of the house.
type AuctionConfig struct {
	Name       string
	Product    string
	Duration   time.Duration
	StartPrice int64
	Step       int64

	// Rivals raise every RivalInterval with probability RivalActivity until
	// their private ceiling, drawn around RivalCeiling.
	Rivals        int
	RivalCeiling  int64
	RivalInterval time.Duration
	RivalActivity float64
}

// Config is the whole simulated house.
type Config struct {
	Auctions []AuctionConfig
	Wallet   int64 // starting wealth of every player
	Seed     int64
}

// DefaultAuction returns an hour auction with a handful of rivals.
func DefaultAuction(name string) AuctionConfig {
	return AuctionConfig{
		Name:          name,
		Product:       "Ore",
		Duration:      time.Hour,
		StartPrice:    50_000,
		Step:          10_000,
		Rivals:        3,
		RivalCeiling:  250_000,
		RivalInterval: 2 * time.Minute,
		RivalActivity: 0.4,
	}
}

func (c AuctionConfig) Validate() error {
	if c.Name == "" {
		return errors.New("auction name is required")
	}
	if c.Duration <= 0 {
		return fmt.Errorf("auction %s: duration must be positive", c.Name)
	}
	if c.Step <= 0 {
		return fmt.Errorf("auction %s: step must be positive", c.Name)
	}
	if c.StartPrice < 0 {
		return fmt.Errorf("auction %s: start price must not be negative", c.Name)
	}
	if c.Rivals > 0 && c.RivalInterval <= 0 {
		return fmt.Errorf("auction %s: rival interval must be positive", c.Name)
	}
	return nil
}

// View is what a player sees of an auction.
type View struct {
	Auction   string
	Product   string
	Price     int64
	Leader    string
	Remaining time.Duration
	Wealth    int64
	Open      bool
}

// Outcome is the final state of a closed auction.
type Outcome struct {
	Auction string
	Product string
	Winner  string
	Price   int64
	Closed  bool
}

type rival struct {
	name    string
	ceiling int64
}

type auction struct {
	cfg       AuctionConfig
	closeAt   time.Time
	price     int64
	leader    string
	bids      map[string]int64 // player -> price reached by their last bid
	rivals    []rival
	nextRival time.Time
	settled   bool
}

// House is safe for concurrent use.
type House struct {
	clock  quartz.Clock
	logger *log.Logger

	mu       sync.Mutex
	rng      *rand.Rand
	wallet   int64
	wallets  map[string]int64
	auctions map[string]*auction
	order    []string
}

type Option func(*House)

func WithClock(clock quartz.Clock) Option {
	return func(h *House) { h.clock = clock }
}

func WithLogger(logger *log.Logger) Option {
	return func(h *House) { h.logger = logger }
}

// New opens every configured auction at the current clock time.
func New(cfg Config, opts ...Option) (*House, error) {
	if len(cfg.Auctions) == 0 {
		return nil, errors.New("house needs at least one auction")
	}
	h := &House{
		clock:    quartz.NewReal(),
		logger:   log.Default(),
		rng:      randutil.New(cfg.Seed),
		wallet:   cfg.Wallet,
		wallets:  make(map[string]int64),
		auctions: make(map[string]*auction),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.logger = h.logger.WithPrefix("house")

	now := h.clock.Now()
	for _, ac := range cfg.Auctions {
		if err := ac.Validate(); err != nil {
			return nil, err
		}
		if _, dup := h.auctions[ac.Name]; dup {
			return nil, fmt.Errorf("duplicate auction %s", ac.Name)
		}
		a := &auction{
			cfg:       ac,
			closeAt:   now.Add(ac.Duration),
			price:     ac.StartPrice,
			bids:      make(map[string]int64),
			nextRival: now.Add(ac.RivalInterval),
		}
		for i := range ac.Rivals {
			// Ceilings spread between 60% and 120% of the configured level.
			ceiling := int64(float64(ac.RivalCeiling) * (0.6 + 0.6*h.rng.Float64()))
			a.rivals = append(a.rivals, rival{name: fmt.Sprintf("rival-%d", i+1), ceiling: ceiling})
		}
		h.auctions[ac.Name] = a
		h.order = append(h.order, ac.Name)
		h.logger.Info("Auction opened", "auction", ac.Name, "product", ac.Product, "closes_in", ac.Duration, "start_price", ac.StartPrice)
	}
	return h, nil
}

// Auctions lists auction names in configuration order.
func (h *House) Auctions() []string {
	return slices.Clone(h.order)
}

// View returns the auction as player sees it.
func (h *House) View(name, player string) (View, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	a, err := h.advanceLocked(name)
	if err != nil {
		return View{}, err
	}
	now := h.clock.Now()
	v := View{
		Auction: name,
		Product: a.cfg.Product,
		Wealth:  h.walletLocked(player),
		Open:    now.Before(a.closeAt),
	}
	if v.Open {
		v.Price = a.price
		v.Leader = a.leader
		v.Remaining = a.closeAt.Sub(now)
	}
	return v, nil
}

// ActiveBid reports the price the player's last bid reached while the
// auction is still open and the player holds the lead.
func (h *House) ActiveBid(name, player string) (int64, bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	a, err := h.advanceLocked(name)
	if err != nil {
		return 0, false, err
	}
	if !h.clock.Now().Before(a.closeAt) || a.leader != player {
		return 0, false, nil
	}
	amount, ok := a.bids[player]
	return amount, ok, nil
}

// Wealth returns the player's wallet after settling every closed auction.
func (h *House) Wealth(player string) int64 {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, name := range h.order {
		_, _ = h.advanceLocked(name)
	}
	return h.walletLocked(player)
}

// PlaceBid raises the price by raise on behalf of player and returns the new
// price. The player must be able to pay the new price.
func (h *House) PlaceBid(name, player string, raise int64) (int64, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	a, err := h.advanceLocked(name)
	if err != nil {
		return 0, err
	}
	if !h.clock.Now().Before(a.closeAt) {
		return 0, ErrAuctionClosed
	}
	if raise <= 0 {
		return 0, ErrInvalidRaise
	}
	price := a.price + raise
	if price > h.walletLocked(player) {
		return 0, fmt.Errorf("%w: price %d", ErrInsufficientFunds, price)
	}
	a.price = price
	a.leader = player
	a.bids[player] = price
	h.logger.Debug("Bid placed", "auction", name, "player", player, "raise", raise, "price", price)
	return price, nil
}

// Outcomes reports every auction, settling the closed ones.
func (h *House) Outcomes() []Outcome {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]Outcome, 0, len(h.order))
	for _, name := range h.order {
		a, _ := h.advanceLocked(name)
		out = append(out, Outcome{
			Auction: name,
			Product: a.cfg.Product,
			Winner:  a.leader,
			Price:   a.price,
			Closed:  a.settled,
		})
	}
	return out
}

// advanceLocked plays rival raises up to now and settles the auction once it
// closed.
func (h *House) advanceLocked(name string) (*auction, error) {
	a, ok := h.auctions[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAuction, name)
	}
	now := h.clock.Now()

	for len(a.rivals) > 0 && !a.nextRival.After(now) && a.nextRival.Before(a.closeAt) {
		h.rivalTurnLocked(a)
		a.nextRival = a.nextRival.Add(a.cfg.RivalInterval)
	}

	if !a.settled && !now.Before(a.closeAt) {
		a.settled = true
		if _, isPlayer := a.bids[a.leader]; isPlayer {
			h.wallets[a.leader] = h.walletLocked(a.leader) - a.price
		}
		h.logger.Info("Auction closed", "auction", name, "winner", a.leader, "price", a.price)
	}
	return a, nil
}

func (h *House) rivalTurnLocked(a *auction) {
	if h.rng.Float64() >= a.cfg.RivalActivity {
		return
	}
	r := a.rivals[h.rng.IntN(len(a.rivals))]
	if r.name == a.leader {
		return
	}
	raise := a.cfg.Step * int64(1+h.rng.IntN(3))
	if a.price+raise > r.ceiling {
		raise = a.cfg.Step
	}
	if a.price+raise > r.ceiling {
		return
	}
	a.price += raise
	a.leader = r.name
}

func (h *House) walletLocked(player string) int64 {
	w, ok := h.wallets[player]
	if !ok {
		w = h.wallet
		h.wallets[player] = w
	}
	return w
}
