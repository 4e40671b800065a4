package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/reachlab/reach-data/internal/model"
)

// UpsertSecurities writes a symbol list. Identity rows are never deleted;
// metadata and the active flag are refreshed in place.
func (s *Store) UpsertSecurities(ctx context.Context, securities []model.Security) (int, error) {
	if len(securities) == 0 {
		return 0, nil
	}

	start := time.Now()

	batch := &pgx.Batch{}
	for _, sec := range securities {
		batch.Queue(`
			INSERT INTO securities (ticker, name, market, sector, industry, country, active)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (ticker) DO UPDATE SET
				name = EXCLUDED.name,
				market = EXCLUDED.market,
				sector = EXCLUDED.sector,
				industry = EXCLUDED.industry,
				country = EXCLUDED.country,
				active = EXCLUDED.active,
				updated_at = now()
		`, sec.Ticker, sec.Name, sec.Market, sec.Sector, sec.Industry, sec.Country, sec.Active)
	}

	results := s.db.SendBatch(ctx, batch)
	defer results.Close()

	for range securities {
		if _, err := results.Exec(); err != nil {
			return 0, fmt.Errorf("upsert securities: %w", err)
		}
	}

	s.logger.Debug("upserted securities",
		"count", len(securities),
		"duration", time.Since(start),
	)
	return len(securities), nil
}

// MarkInactive flags tickers absent from the latest symbol list for a market.
// Rows are never deleted; history stays queryable for delisted names.
func (s *Store) MarkInactive(ctx context.Context, market string, listed []string) (int, error) {
	ct, err := s.db.Exec(ctx, `
		UPDATE securities
		SET active = false, updated_at = now()
		WHERE market = $1 AND active AND NOT (ticker = ANY($2))
	`, market, listed)
	if err != nil {
		return 0, fmt.Errorf("mark inactive %s: %w", market, err)
	}
	return int(ct.RowsAffected()), nil
}

// ListUniverse returns the active securities for the given markets, ordered
// by ticker so truncation by limit is deterministic. limit <= 0 means all.
func (s *Store) ListUniverse(ctx context.Context, markets []string, limit int) ([]model.Security, error) {
	query := `
		SELECT ticker, name, market, sector, industry, country, active
		FROM securities
		WHERE active AND market = ANY($1)
		ORDER BY ticker
	`
	args := []any{markets}
	if limit > 0 {
		query += " LIMIT $2"
		args = append(args, limit)
	}

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list universe: %w", err)
	}
	defer rows.Close()

	var securities []model.Security
	for rows.Next() {
		var sec model.Security
		if err := rows.Scan(&sec.Ticker, &sec.Name, &sec.Market, &sec.Sector, &sec.Industry, &sec.Country, &sec.Active); err != nil {
			return nil, fmt.Errorf("scan security: %w", err)
		}
		securities = append(securities, sec)
	}

	return securities, rows.Err()
}
