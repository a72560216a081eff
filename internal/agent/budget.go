package agent

import (
	"sync"
	"time"

	"github.com/coder/quartz"
	"github.com/lox/autobid/internal/strategy"
)

// SpendWindow is the trailing period a Budget limits spending over.
const SpendWindow = time.Hour

// Budget caps the raises submitted by every runner sharing it within a
// trailing hour.
type Budget struct {
	limit int64
	clock quartz.Clock

	mu     sync.Mutex
	spends []spend
}

type spend struct {
	at     time.Time
	amount int64
}

// NewBudget returns a budget of limit credits per hour. A limit of zero or
// less never refuses.
func NewBudget(limit int64, clock quartz.Clock) *Budget {
	if clock == nil {
		clock = quartz.NewReal()
	}
	return &Budget{limit: limit, clock: clock}
}

// Reserve books amount if it fits in the current window.
func (b *Budget) Reserve(amount int64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	now := b.clock.Now()
	b.expireLocked(now)
	if b.limit > 0 && b.spentLocked()+amount > b.limit {
		return false
	}
	b.spends = append(b.spends, spend{at: now, amount: amount})
	return true
}

// Release returns a reservation whose bid was never accepted.
func (b *Budget) Release(amount int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := len(b.spends) - 1; i >= 0; i-- {
		if b.spends[i].amount == amount {
			b.spends = append(b.spends[:i], b.spends[i+1:]...)
			return
		}
	}
}

// Remaining is what can still be booked in the current window.
func (b *Budget) Remaining() int64 {
	if b.limit <= 0 {
		return strategy.Unlimited
	}
	return max(b.limit-b.Spent(), 0)
}

// Spent is the amount booked in the current window.
func (b *Budget) Spent() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.expireLocked(b.clock.Now())
	return b.spentLocked()
}

func (b *Budget) expireLocked(now time.Time) {
	cutoff := now.Add(-SpendWindow)
	i := 0
	for i < len(b.spends) && !b.spends[i].at.After(cutoff) {
		i++
	}
	b.spends = b.spends[i:]
}

func (b *Budget) spentLocked() int64 {
	var total int64
	for _, s := range b.spends {
		total += s.amount
	}
	return total
}
