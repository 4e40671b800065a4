package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/reachlab/reach-data/internal/model"
)

// fiscalQuarter maps the period's quarter onto the nullable column; annual
// reports store NULL.
func fiscalQuarter(p model.FiscalPeriod) *int {
	if p.Quarter == 0 {
		return nil
	}
	q := p.Quarter
	return &q
}

// UpsertStatements writes statement line items. Restated filings replace the
// stored row, so conflicts update rather than skip.
func (s *Store) UpsertStatements(ctx context.Context, statements []model.FinancialStatement) (int, error) {
	if len(statements) == 0 {
		return 0, nil
	}

	start := time.Now()

	batch := &pgx.Batch{}
	for _, st := range statements {
		batch.Queue(`
			INSERT INTO financial_statements (
				security_id, fiscal_year, fiscal_quarter, report_type,
				revenue, operating_income, net_income,
				total_assets, total_liabilities, total_equity,
				operating_cash_flow, currency
			)
			SELECT s.id, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12
			FROM securities s WHERE s.ticker = $1
			ON CONFLICT (security_id, fiscal_year, report_type) DO UPDATE SET
				revenue = EXCLUDED.revenue,
				operating_income = EXCLUDED.operating_income,
				net_income = EXCLUDED.net_income,
				total_assets = EXCLUDED.total_assets,
				total_liabilities = EXCLUDED.total_liabilities,
				total_equity = EXCLUDED.total_equity,
				operating_cash_flow = EXCLUDED.operating_cash_flow,
				currency = EXCLUDED.currency,
				updated_at = now()
		`, st.Ticker, st.Period.Year, fiscalQuarter(st.Period), st.Period.ReportType(),
			st.Revenue, st.OperatingIncome, st.NetIncome,
			st.TotalAssets, st.TotalLiabilities, st.TotalEquity,
			st.OperatingCashFlow, st.Currency)
	}

	results := s.db.SendBatch(ctx, batch)
	defer results.Close()

	for range statements {
		if _, err := results.Exec(); err != nil {
			return 0, fmt.Errorf("upsert statements: %w", err)
		}
	}

	s.logger.Debug("upserted statements",
		"count", len(statements),
		"duration", time.Since(start),
	)
	return len(statements), nil
}

// LatestFiscalYear returns the newest stored fiscal year for a ticker, or 0
// when no statements exist. Drives incremental statement collection.
func (s *Store) LatestFiscalYear(ctx context.Context, ticker string) (int, error) {
	var year int
	err := s.db.QueryRow(ctx, `
		SELECT fs.fiscal_year
		FROM financial_statements fs
		JOIN securities s ON s.id = fs.security_id
		WHERE s.ticker = $1
		ORDER BY fs.fiscal_year DESC
		LIMIT 1
	`, ticker).Scan(&year)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("latest fiscal year %s: %w", ticker, err)
	}
	return year, nil
}

// ListStatements returns all stored statements for a ticker, oldest first.
func (s *Store) ListStatements(ctx context.Context, ticker string) ([]model.FinancialStatement, error) {
	rows, err := s.db.Query(ctx, `
		SELECT s.ticker, fs.fiscal_year, fs.fiscal_quarter,
		       fs.revenue, fs.operating_income, fs.net_income,
		       fs.total_assets, fs.total_liabilities, fs.total_equity,
		       fs.operating_cash_flow, fs.currency
		FROM financial_statements fs
		JOIN securities s ON s.id = fs.security_id
		WHERE s.ticker = $1
		ORDER BY fs.fiscal_year, COALESCE(fs.fiscal_quarter, 0)
	`, ticker)
	if err != nil {
		return nil, fmt.Errorf("list statements %s: %w", ticker, err)
	}
	defer rows.Close()

	return scanStatements(rows)
}

func scanStatements(rows pgx.Rows) ([]model.FinancialStatement, error) {
	var statements []model.FinancialStatement
	for rows.Next() {
		var st model.FinancialStatement
		var quarter *int
		if err := rows.Scan(&st.Ticker, &st.Period.Year, &quarter,
			&st.Revenue, &st.OperatingIncome, &st.NetIncome,
			&st.TotalAssets, &st.TotalLiabilities, &st.TotalEquity,
			&st.OperatingCashFlow, &st.Currency); err != nil {
			return nil, fmt.Errorf("scan statement: %w", err)
		}
		if quarter != nil {
			st.Period.Quarter = *quarter
		}
		statements = append(statements, st)
	}
	return statements, rows.Err()
}
