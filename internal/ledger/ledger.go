// Package ledger journals accepted bids and run outcomes in SQLite.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/lox/autobid/internal/agent"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// BidEntry is one accepted bid.
type BidEntry struct {
	ID          uint   `gorm:"primaryKey"`
	RunID       string `gorm:"index"`
	Auction     string `gorm:"index"`
	Product     string
	Phase       string
	Price       int64
	Amount      int64
	MyLastPrice int64
	Reason      string
	At          time.Time
}

// RunEntry is the result of one run.
type RunEntry struct {
	RunID     string `gorm:"primaryKey"`
	Auction   string `gorm:"index"`
	Product   string
	Outcome   string
	Bids      int
	Raised    int64
	LastPrice int64
	StartedAt time.Time `gorm:"index"`
	EndedAt   time.Time
	Error     string
}

// Ledger implements agent.Journal.
type Ledger struct {
	db *gorm.DB
}

var _ agent.Journal = (*Ledger)(nil)

// Open creates or opens the database at path.
func Open(path string) (*Ledger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create ledger directory: %w", err)
	}

	dsn := path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger: %w", err)
	}
	// Every runner journals through this handle; SQLite takes one writer.
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := db.AutoMigrate(&BidEntry{}, &RunEntry{}); err != nil {
		return nil, fmt.Errorf("failed to migrate ledger: %w", err)
	}
	return &Ledger{db: db}, nil
}

func (l *Ledger) Close() error {
	sqlDB, err := l.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (l *Ledger) RecordBid(ctx context.Context, bid agent.BidEvent) error {
	entry := BidEntry{
		RunID:       bid.RunID,
		Auction:     bid.Auction,
		Product:     bid.Product,
		Phase:       bid.Phase.String(),
		Price:       bid.Price,
		Amount:      bid.Amount,
		MyLastPrice: bid.MyLastPrice,
		Reason:      bid.Reason,
		At:          bid.At,
	}
	return l.db.WithContext(ctx).Create(&entry).Error
}

// RecordRun upserts the run row.
func (l *Ledger) RecordRun(ctx context.Context, res agent.Result, runErr error) error {
	entry := RunEntry{
		RunID:     res.RunID,
		Auction:   res.Auction,
		Product:   res.Product,
		Outcome:   res.Outcome.String(),
		Bids:      res.Bids,
		Raised:    res.Raised,
		LastPrice: res.LastPrice,
		StartedAt: res.StartedAt,
		EndedAt:   res.EndedAt,
	}
	if runErr != nil {
		entry.Error = runErr.Error()
	}
	return l.db.WithContext(ctx).Save(&entry).Error
}

// Runs lists the most recent runs first. An empty auction lists all of them;
// limit <= 0 means no limit.
func (l *Ledger) Runs(ctx context.Context, auction string, limit int) ([]RunEntry, error) {
	q := l.db.WithContext(ctx).Order("started_at desc")
	if auction != "" {
		q = q.Where("auction = ?", auction)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	var runs []RunEntry
	err := q.Find(&runs).Error
	return runs, err
}

// Run returns a run by id, or nil when it does not exist.
func (l *Ledger) Run(ctx context.Context, runID string) (*RunEntry, error) {
	var run RunEntry
	err := l.db.WithContext(ctx).First(&run, "run_id = ?", runID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &run, nil
}

// Bids lists the bids of a run in submission order.
func (l *Ledger) Bids(ctx context.Context, runID string) ([]BidEntry, error) {
	var bids []BidEntry
	err := l.db.WithContext(ctx).Where("run_id = ?", runID).Order("id").Find(&bids).Error
	return bids, err
}
