package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/reachlab/reach-data/internal/model"
)

// UpsertRatios writes derived ratios. Ratios are fully recomputable, so
// conflicts overwrite every metric column.
func (s *Store) UpsertRatios(ctx context.Context, ratios []model.FinancialRatio) (int, error) {
	if len(ratios) == 0 {
		return 0, nil
	}

	start := time.Now()

	batch := &pgx.Batch{}
	for _, r := range ratios {
		batch.Queue(`
			INSERT INTO financial_ratios (
				security_id, fiscal_date, report_type,
				roe, roa, operating_margin, net_margin, debt_ratio,
				per, pbr, psr
			)
			SELECT s.id, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11
			FROM securities s WHERE s.ticker = $1
			ON CONFLICT (security_id, fiscal_date, report_type) DO UPDATE SET
				roe = EXCLUDED.roe,
				roa = EXCLUDED.roa,
				operating_margin = EXCLUDED.operating_margin,
				net_margin = EXCLUDED.net_margin,
				debt_ratio = EXCLUDED.debt_ratio,
				per = EXCLUDED.per,
				pbr = EXCLUDED.pbr,
				psr = EXCLUDED.psr,
				updated_at = now()
		`, r.Ticker, r.FiscalDate, r.ReportType,
			r.ROE, r.ROA, r.OperatingMargin, r.NetMargin, r.DebtRatio,
			r.PER, r.PBR, r.PSR)
	}

	results := s.db.SendBatch(ctx, batch)
	defer results.Close()

	for range ratios {
		if _, err := results.Exec(); err != nil {
			return 0, fmt.Errorf("upsert ratios: %w", err)
		}
	}

	s.logger.Debug("upserted ratios",
		"count", len(ratios),
		"duration", time.Since(start),
	)
	return len(ratios), nil
}

// ListRatios returns every stored ratio row. Feeds the anomaly scan.
func (s *Store) ListRatios(ctx context.Context) ([]model.FinancialRatio, error) {
	rows, err := s.db.Query(ctx, `
		SELECT s.ticker, fr.fiscal_date, fr.report_type,
		       fr.roe, fr.roa, fr.operating_margin, fr.net_margin, fr.debt_ratio,
		       fr.per, fr.pbr, fr.psr
		FROM financial_ratios fr
		JOIN securities s ON s.id = fr.security_id
		ORDER BY s.ticker, fr.fiscal_date
	`)
	if err != nil {
		return nil, fmt.Errorf("list ratios: %w", err)
	}
	defer rows.Close()

	var ratios []model.FinancialRatio
	for rows.Next() {
		var r model.FinancialRatio
		if err := rows.Scan(&r.Ticker, &r.FiscalDate, &r.ReportType,
			&r.ROE, &r.ROA, &r.OperatingMargin, &r.NetMargin, &r.DebtRatio,
			&r.PER, &r.PBR, &r.PSR); err != nil {
			return nil, fmt.Errorf("scan ratio: %w", err)
		}
		ratios = append(ratios, r)
	}

	return ratios, rows.Err()
}
