package quality

import (
	"context"
	"log/slog"
	"time"

	"github.com/reachlab/reach-data/internal/model"
	"github.com/reachlab/reach-data/internal/store"
)

// Store is the read surface the checker audits.
type Store interface {
	Coverage(ctx context.Context) (*store.CoverageCounts, error)
	ListRatios(ctx context.Context) ([]model.FinancialRatio, error)
	ListPricesSince(ctx context.Context, since time.Time) ([]model.PricePoint, error)
}

// Config tunes the price outlier scan.
type Config struct {
	OutlierMultiple float64 // flagged when |move| exceeds multiple * volatility
	OutlierLookback int     // trailing days used for volatility
}

// Report is one full quality audit.
type Report struct {
	GeneratedAt time.Time            `json:"generated_at"`
	Coverage    store.CoverageCounts `json:"coverage"`

	RatioRows    int       `json:"ratio_rows"`
	Anomalies    []Anomaly `json:"anomalies,omitempty"`
	HighNullRows int       `json:"high_null_rows"`
	Outliers     []Outlier `json:"price_outliers,omitempty"`

	Score float64 `json:"score"`
	Grade string  `json:"grade"`
}

// Checker runs read-only audits over stored data.
type Checker struct {
	store  Store
	cfg    Config
	logger *slog.Logger
}

// New creates a quality checker.
func New(st Store, cfg Config, logger *slog.Logger) *Checker {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.OutlierMultiple <= 0 {
		cfg.OutlierMultiple = 6
	}
	if cfg.OutlierLookback < 2 {
		cfg.OutlierLookback = 20
	}
	return &Checker{store: st, cfg: cfg, logger: logger}
}

// Run produces a full quality report. The price scan covers roughly one
// quarter of trading history so repeated reports stay cheap.
func (c *Checker) Run(ctx context.Context) (*Report, error) {
	start := time.Now()

	coverage, err := c.store.Coverage(ctx)
	if err != nil {
		return nil, err
	}

	ratios, err := c.store.ListRatios(ctx)
	if err != nil {
		return nil, err
	}
	anomalies, highNull := ScanRatios(ratios)

	since := time.Now().UTC().AddDate(0, -3, 0)
	prices, err := c.store.ListPricesSince(ctx, since)
	if err != nil {
		return nil, err
	}
	outliers := ScanPrices(prices, c.cfg.OutlierMultiple, c.cfg.OutlierLookback)

	report := &Report{
		GeneratedAt:  time.Now().UTC(),
		Coverage:     *coverage,
		RatioRows:    len(ratios),
		Anomalies:    anomalies,
		HighNullRows: highNull,
		Outliers:     outliers,
	}
	report.Score = Score(coverage, len(ratios), len(anomalies), highNull)
	report.Grade = Grade(report.Score)

	c.logger.Info("quality report generated",
		"score", report.Score,
		"grade", report.Grade,
		"anomalies", len(anomalies),
		"high_null_rows", highNull,
		"price_outliers", len(outliers),
		"duration", time.Since(start),
	)

	return report, nil
}

// Score weighs coverage at 50%, anomaly cleanliness at 30%, and null
// sparsity at 20%, on a 0-100 scale.
func Score(coverage *store.CoverageCounts, ratioRows, anomalies, highNullRows int) float64 {
	completeness := 0.0
	if coverage.ActiveSecurities > 0 {
		completeness = float64(coverage.WithRatios) / float64(coverage.ActiveSecurities)
	}

	cleanliness := 1.0
	sparsity := 1.0
	if ratioRows > 0 {
		cleanliness = 1 - minf(float64(anomalies)/float64(ratioRows), 1)
		sparsity = 1 - minf(float64(highNullRows)/float64(ratioRows), 1)
	}

	return 100 * (0.5*completeness + 0.3*cleanliness + 0.2*sparsity)
}

// Grade maps a score to the usual letter bands.
func Grade(score float64) string {
	switch {
	case score >= 90:
		return "A"
	case score >= 80:
		return "B"
	case score >= 70:
		return "C"
	case score >= 60:
		return "D"
	default:
		return "F"
	}
}

func minf(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
