package ledger

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/lox/autobid/internal/agent"
	"github.com/lox/autobid/internal/strategy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func openTestLedger(t *testing.T) *Ledger {
	t.Helper()
	l, err := Open(filepath.Join(t.TempDir(), "data", "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })
	return l
}

func TestRecordAndList(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	l := openTestLedger(t)
	start := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	for i, outcome := range []strategy.Outcome{strategy.OutcomeSuccess, strategy.OutcomeLoss, strategy.OutcomeFailure} {
		runID := fmt.Sprintf("run-%d", i)
		auction := "hour"
		if i == 1 {
			auction = "day"
		}
		require.NoError(t, l.RecordBid(ctx, agent.BidEvent{
			RunID: runID, Auction: auction, Product: "Ore", Phase: strategy.PhaseMid,
			Price: 100_000, Amount: 10_000, MyLastPrice: 110_000, At: start,
		}))
		require.NoError(t, l.RecordBid(ctx, agent.BidEvent{
			RunID: runID, Auction: auction, Product: "Ore", Phase: strategy.PhaseLate,
			Price: 120_000, Amount: 25_000, MyLastPrice: 145_000, At: start.Add(time.Minute),
		}))
		require.NoError(t, l.RecordRun(ctx, agent.Result{
			RunID: runID, Auction: auction, Product: "Ore", Outcome: outcome,
			Bids: 2, Raised: 35_000, LastPrice: 145_000,
			StartedAt: start.Add(time.Duration(i) * time.Hour), EndedAt: start.Add(time.Duration(i)*time.Hour + 30*time.Minute),
		}, nil))
	}

	runs, err := l.Runs(ctx, "", 0)
	require.NoError(t, err)
	require.Len(t, runs, 3)
	assert.Equal(t, "run-2", runs[0].RunID, "newest first")
	assert.Equal(t, "failure", runs[0].Outcome)

	runs, err = l.Runs(ctx, "hour", 1)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "run-2", runs[0].RunID)

	bids, err := l.Bids(ctx, "run-0")
	require.NoError(t, err)
	require.Len(t, bids, 2)
	assert.Equal(t, "mid", bids[0].Phase)
	assert.Equal(t, "late", bids[1].Phase)
	assert.Equal(t, int64(25_000), bids[1].Amount)
}

func TestRecordRunUpserts(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	l := openTestLedger(t)

	res := agent.Result{RunID: "run-x", Auction: "hour", Outcome: strategy.OutcomeNone}
	require.NoError(t, l.RecordRun(ctx, res, errors.New("bid not confirmed")))

	run, err := l.Run(ctx, "run-x")
	require.NoError(t, err)
	require.NotNil(t, run)
	assert.Equal(t, "bid not confirmed", run.Error)

	res.Outcome = strategy.OutcomeSuccess
	require.NoError(t, l.RecordRun(ctx, res, nil))
	run, err = l.Run(ctx, "run-x")
	require.NoError(t, err)
	assert.Equal(t, "success", run.Outcome)
	assert.Empty(t, run.Error)

	missing, err := l.Run(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestConcurrentRunsShareLedger(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	l := openTestLedger(t)
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	const runs, bidsPerRun = 8, 10
	var g errgroup.Group
	for i := range runs {
		g.Go(func() error {
			runID := fmt.Sprintf("run-%d", i)
			for j := range bidsPerRun {
				err := l.RecordBid(ctx, agent.BidEvent{
					RunID: runID, Auction: runID, Phase: strategy.PhaseMid,
					Price: int64(j) * 10_000, Amount: 10_000, At: at,
				})
				if err != nil {
					return err
				}
			}
			return l.RecordRun(ctx, agent.Result{
				RunID: runID, Auction: runID, Outcome: strategy.OutcomeSuccess,
				Bids: bidsPerRun, StartedAt: at, EndedAt: at,
			}, nil)
		})
	}
	require.NoError(t, g.Wait())

	all, err := l.Runs(ctx, "", 0)
	require.NoError(t, err)
	assert.Len(t, all, runs)
	for _, run := range all {
		bids, err := l.Bids(ctx, run.RunID)
		require.NoError(t, err)
		assert.Len(t, bids, bidsPerRun, run.RunID)
	}
}
