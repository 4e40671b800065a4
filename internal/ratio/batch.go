package ratio

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/reachlab/reach-data/internal/model"
)

// Store is the persistence surface ratio recomputation needs.
type Store interface {
	ListStatements(ctx context.Context, ticker string) ([]model.FinancialStatement, error)
	SnapshotNear(ctx context.Context, ticker string, end time.Time, window time.Duration) (*model.MarketSnapshot, error)
	UpsertRatios(ctx context.Context, ratios []model.FinancialRatio) (int, error)
}

// Batch recomputes stored ratios from stored inputs. Missing inputs on one
// ticker never abort the batch; that ticker simply yields fewer rows.
type Batch struct {
	store  Store
	logger *slog.Logger
}

// NewBatch creates a recompute batch over the store.
func NewBatch(store Store, logger *slog.Logger) *Batch {
	if logger == nil {
		logger = slog.Default()
	}
	return &Batch{store: store, logger: logger}
}

// Recompute rebuilds ratio rows for the given tickers and returns the number
// written.
func (b *Batch) Recompute(ctx context.Context, tickers []string) (int, error) {
	start := time.Now()
	written := 0

	for _, ticker := range tickers {
		if ctx.Err() != nil {
			return written, ctx.Err()
		}

		n, err := b.recomputeTicker(ctx, ticker)
		if err != nil {
			b.logger.Warn("ratio recompute skipped ticker",
				"ticker", ticker,
				"err", err,
			)
			continue
		}
		written += n
	}

	b.logger.Info("ratio recompute complete",
		"tickers", len(tickers),
		"written", written,
		"duration", time.Since(start),
	)
	return written, nil
}

func (b *Batch) recomputeTicker(ctx context.Context, ticker string) (int, error) {
	statements, err := b.store.ListStatements(ctx, ticker)
	if err != nil {
		return 0, fmt.Errorf("list statements: %w", err)
	}
	if len(statements) == 0 {
		return 0, nil
	}

	ratios := make([]model.FinancialRatio, 0, len(statements))
	for i := range statements {
		st := &statements[i]

		var marketCap *float64
		snap, err := b.store.SnapshotNear(ctx, ticker, st.Period.EndDate(), SnapshotWindow)
		if err != nil {
			return 0, fmt.Errorf("snapshot near %s: %w", st.Period, err)
		}
		if snap != nil {
			marketCap = snap.MarketCap
		}

		ratios = append(ratios, Compute(st, marketCap))
	}

	return b.store.UpsertRatios(ctx, ratios)
}
