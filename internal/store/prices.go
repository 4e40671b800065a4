package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/reachlab/reach-data/internal/model"
)

// UpsertPricePoints appends daily OHLCV rows. Closed trading days never
// change, so conflicts are skipped rather than updated. Returns the number
// of rows actually inserted; re-collected days and rows for unknown tickers
// insert nothing.
func (s *Store) UpsertPricePoints(ctx context.Context, points []model.PricePoint) (int, error) {
	if len(points) == 0 {
		return 0, nil
	}

	start := time.Now()

	batch := &pgx.Batch{}
	for _, p := range points {
		batch.Queue(`
			INSERT INTO price_points (security_id, trade_date, open, high, low, close, volume)
			SELECT s.id, $2, $3, $4, $5, $6, $7
			FROM securities s WHERE s.ticker = $1
			ON CONFLICT (security_id, trade_date) DO NOTHING
		`, p.Ticker, p.TradeDate, p.Open, p.High, p.Low, p.Close, p.Volume)
	}

	results := s.db.SendBatch(ctx, batch)
	defer results.Close()

	conflicts := 0
	for range points {
		ct, err := results.Exec()
		if err != nil {
			return 0, fmt.Errorf("upsert price points: %w", err)
		}
		if ct.RowsAffected() == 0 {
			conflicts++
		}
	}

	inserted := len(points) - conflicts
	s.logger.Debug("upserted price points",
		"count", len(points),
		"conflicts", conflicts,
		"duration", time.Since(start),
	)
	return inserted, nil
}

// LastTradeDate returns the most recent stored trading day for a ticker, or
// nil when no prices exist yet.
func (s *Store) LastTradeDate(ctx context.Context, ticker string) (*time.Time, error) {
	var last time.Time
	err := s.db.QueryRow(ctx, `
		SELECT p.trade_date
		FROM price_points p
		JOIN securities s ON s.id = p.security_id
		WHERE s.ticker = $1
		ORDER BY p.trade_date DESC
		LIMIT 1
	`, ticker).Scan(&last)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("last trade date %s: %w", ticker, err)
	}
	return &last, nil
}

// ListPricesSince returns all price points on or after the given date,
// ordered by ticker then trade date. Feeds the outlier scan.
func (s *Store) ListPricesSince(ctx context.Context, since time.Time) ([]model.PricePoint, error) {
	rows, err := s.db.Query(ctx, `
		SELECT s.ticker, p.trade_date, p.open, p.high, p.low, p.close, p.volume
		FROM price_points p
		JOIN securities s ON s.id = p.security_id
		WHERE p.trade_date >= $1
		ORDER BY s.ticker, p.trade_date
	`, since)
	if err != nil {
		return nil, fmt.Errorf("list prices since %s: %w", since.Format("2006-01-02"), err)
	}
	defer rows.Close()

	var points []model.PricePoint
	for rows.Next() {
		var p model.PricePoint
		if err := rows.Scan(&p.Ticker, &p.TradeDate, &p.Open, &p.High, &p.Low, &p.Close, &p.Volume); err != nil {
			return nil, fmt.Errorf("scan price point: %w", err)
		}
		points = append(points, p)
	}

	return points, rows.Err()
}
