package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/reachlab/reach-data/internal/model"
)

// UpsertSnapshots appends market-wide valuation rows. Like prices, snapshots
// are immutable once the day has closed. Returns rows actually inserted.
func (s *Store) UpsertSnapshots(ctx context.Context, snapshots []model.MarketSnapshot) (int, error) {
	if len(snapshots) == 0 {
		return 0, nil
	}

	start := time.Now()

	batch := &pgx.Batch{}
	for _, snap := range snapshots {
		batch.Queue(`
			INSERT INTO market_snapshots (security_id, trade_date, market_cap, shares_outstanding, traded_value)
			SELECT s.id, $2, $3, $4, $5
			FROM securities s WHERE s.ticker = $1
			ON CONFLICT (security_id, trade_date) DO NOTHING
		`, snap.Ticker, snap.TradeDate, snap.MarketCap, snap.SharesOutstanding, snap.TradedValue)
	}

	results := s.db.SendBatch(ctx, batch)
	defer results.Close()

	conflicts := 0
	for range snapshots {
		ct, err := results.Exec()
		if err != nil {
			return 0, fmt.Errorf("upsert snapshots: %w", err)
		}
		if ct.RowsAffected() == 0 {
			conflicts++
		}
	}

	inserted := len(snapshots) - conflicts
	s.logger.Debug("upserted snapshots",
		"count", len(snapshots),
		"conflicts", conflicts,
		"duration", time.Since(start),
	)
	return inserted, nil
}

// LastSnapshotDate returns the most recent snapshot date across a market, or
// nil when none exist. Snapshots are collected market-wide per date, so one
// date covers every listed ticker.
func (s *Store) LastSnapshotDate(ctx context.Context, market string) (*time.Time, error) {
	var last time.Time
	err := s.db.QueryRow(ctx, `
		SELECT ms.trade_date
		FROM market_snapshots ms
		JOIN securities s ON s.id = ms.security_id
		WHERE s.market = $1
		ORDER BY ms.trade_date DESC
		LIMIT 1
	`, market).Scan(&last)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("last snapshot date %s: %w", market, err)
	}
	return &last, nil
}

// SnapshotNear returns the latest snapshot for a ticker dated within
// [end-window, end], or nil when none qualifies. Pairs a fiscal period with
// the market cap in effect around its close.
func (s *Store) SnapshotNear(ctx context.Context, ticker string, end time.Time, window time.Duration) (*model.MarketSnapshot, error) {
	var snap model.MarketSnapshot
	err := s.db.QueryRow(ctx, `
		SELECT s.ticker, ms.trade_date, ms.market_cap, ms.shares_outstanding, ms.traded_value
		FROM market_snapshots ms
		JOIN securities s ON s.id = ms.security_id
		WHERE s.ticker = $1 AND ms.trade_date <= $2 AND ms.trade_date >= $3
		ORDER BY ms.trade_date DESC
		LIMIT 1
	`, ticker, end, end.Add(-window)).Scan(&snap.Ticker, &snap.TradeDate, &snap.MarketCap, &snap.SharesOutstanding, &snap.TradedValue)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("snapshot near %s %s: %w", ticker, end.Format("2006-01-02"), err)
	}
	return &snap, nil
}
