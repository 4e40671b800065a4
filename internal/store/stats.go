package store

import (
	"context"
	"fmt"
)

// CoverageCounts summarizes how much of the universe each entity covers.
type CoverageCounts struct {
	ActiveSecurities int `json:"active_securities"`
	WithStatements   int `json:"with_statements"`
	WithSnapshots    int `json:"with_snapshots"`
	WithRatios       int `json:"with_ratios"`
	WithBoth         int `json:"with_statements_and_snapshots"`

	// Statement periods that have no matching ratio row yet.
	PendingRatios int `json:"pending_ratios"`
}

// Coverage computes entity coverage over the active universe in one round
// trip.
func (s *Store) Coverage(ctx context.Context) (*CoverageCounts, error) {
	var c CoverageCounts
	err := s.db.QueryRow(ctx, `
		SELECT
			(SELECT count(*) FROM securities WHERE active),
			(SELECT count(DISTINCT security_id) FROM financial_statements),
			(SELECT count(DISTINCT security_id) FROM market_snapshots),
			(SELECT count(DISTINCT security_id) FROM financial_ratios),
			(SELECT count(*) FROM (
				SELECT security_id FROM financial_statements
				INTERSECT
				SELECT security_id FROM market_snapshots
			) both_sources),
			(SELECT count(*) FROM financial_statements fs
			 WHERE NOT EXISTS (
				SELECT 1 FROM financial_ratios fr
				WHERE fr.security_id = fs.security_id
				  AND fr.report_type = fs.report_type
				  AND date_part('year', fr.fiscal_date) = fs.fiscal_year
			))
	`).Scan(&c.ActiveSecurities, &c.WithStatements, &c.WithSnapshots,
		&c.WithRatios, &c.WithBoth, &c.PendingRatios)
	if err != nil {
		return nil, fmt.Errorf("coverage counts: %w", err)
	}
	return &c, nil
}
