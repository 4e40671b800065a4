// Package quality audits stored data without mutating it: entity coverage
// over the universe, ratio plausibility scanning, and price outlier
// detection, folded into a weighted score and letter grade.
package quality

import (
	"fmt"
	"math"
	"time"

	"github.com/reachlab/reach-data/internal/model"
)

// bound is the plausible range for one ratio field; values at or beyond
// either edge are flagged.
type bound struct {
	min, max float64
}

// ratioBounds holds per-field plausibility ranges. Percent metrics live in
// percent space, multiples in multiple space.
var ratioBounds = map[string]bound{
	"roe":              {-100, 100},
	"roa":              {-100, 100},
	"operating_margin": {-100, 100},
	"net_margin":       {-100, 100},
	"debt_ratio":       {0, 1000},
	"per":              {-100, 1000},
	"pbr":              {-10, 100},
	"psr":              {-10, 100},
}

// highNullThreshold flags a ratio row when at least this many of its six
// headline fields are null.
const highNullThreshold = 4

// Anomaly is one implausible ratio value.
type Anomaly struct {
	Ticker     string    `json:"ticker"`
	FiscalDate time.Time `json:"fiscal_date"`
	Field      string    `json:"field"`
	Value      float64   `json:"value"`
	Reason     string    `json:"reason"`
}

// Outlier is one suspicious daily price move.
type Outlier struct {
	Ticker    string    `json:"ticker"`
	TradeDate time.Time `json:"trade_date"`
	Move      float64   `json:"move"`      // day-over-day return
	Threshold float64   `json:"threshold"` // multiple * trailing volatility
}

// ratioFields lists each headline field with its accessor, in report order.
var ratioFields = []struct {
	name string
	get  func(*model.FinancialRatio) *float64
}{
	{"roe", func(r *model.FinancialRatio) *float64 { return r.ROE }},
	{"roa", func(r *model.FinancialRatio) *float64 { return r.ROA }},
	{"operating_margin", func(r *model.FinancialRatio) *float64 { return r.OperatingMargin }},
	{"net_margin", func(r *model.FinancialRatio) *float64 { return r.NetMargin }},
	{"debt_ratio", func(r *model.FinancialRatio) *float64 { return r.DebtRatio }},
	{"per", func(r *model.FinancialRatio) *float64 { return r.PER }},
	{"pbr", func(r *model.FinancialRatio) *float64 { return r.PBR }},
	{"psr", func(r *model.FinancialRatio) *float64 { return r.PSR }},
}

// nullCountFields are the six fields the high-null rule counts.
var nullCountFields = []string{"roe", "roa", "per", "pbr", "psr", "debt_ratio"}

// ScanRatios flags implausible values and rows with too many nulls.
func ScanRatios(ratios []model.FinancialRatio) (anomalies []Anomaly, highNullRows int) {
	for i := range ratios {
		r := &ratios[i]
		nulls := 0

		for _, field := range ratioFields {
			v := field.get(r)
			if v == nil {
				continue
			}

			b := ratioBounds[field.name]
			switch {
			case *v < b.min || *v > b.max:
				anomalies = append(anomalies, Anomaly{
					Ticker:     r.Ticker,
					FiscalDate: r.FiscalDate,
					Field:      field.name,
					Value:      *v,
					Reason:     fmt.Sprintf("outside [%g, %g]", b.min, b.max),
				})
			case *v < 0 && isMultiple(field.name):
				anomalies = append(anomalies, Anomaly{
					Ticker:     r.Ticker,
					FiscalDate: r.FiscalDate,
					Field:      field.name,
					Value:      *v,
					Reason:     "negative valuation multiple",
				})
			}
		}

		for _, name := range nullCountFields {
			if fieldByName(r, name) == nil {
				nulls++
			}
		}
		if nulls >= highNullThreshold {
			highNullRows++
		}
	}
	return anomalies, highNullRows
}

func isMultiple(name string) bool {
	return name == "per" || name == "pbr" || name == "psr"
}

func fieldByName(r *model.FinancialRatio, name string) *float64 {
	for _, field := range ratioFields {
		if field.name == name {
			return field.get(r)
		}
	}
	return nil
}

// ScanPrices flags daily moves beyond multiple times the trailing
// volatility. points must be ordered by ticker then trade date, the order
// the store returns.
func ScanPrices(points []model.PricePoint, outlierMultiple float64, lookback int) []Outlier {
	if lookback < 2 {
		return nil
	}

	var outliers []Outlier
	start := 0
	for i := 1; i <= len(points); i++ {
		if i == len(points) || points[i].Ticker != points[start].Ticker {
			outliers = append(outliers, scanTicker(points[start:i], outlierMultiple, lookback)...)
			start = i
		}
	}
	return outliers
}

// scanTicker checks one ticker's chronological series.
func scanTicker(series []model.PricePoint, outlierMultiple float64, lookback int) []Outlier {
	if len(series) < lookback+2 {
		return nil
	}

	returns := make([]float64, len(series))
	for i := 1; i < len(series); i++ {
		prev := series[i-1].Close
		if prev == 0 {
			returns[i] = 0
			continue
		}
		returns[i] = series[i].Close/prev - 1
	}

	var outliers []Outlier
	for i := lookback + 1; i < len(series); i++ {
		vol := stddev(returns[i-lookback : i])
		if vol == 0 {
			continue
		}
		threshold := outlierMultiple * vol
		if math.Abs(returns[i]) > threshold {
			outliers = append(outliers, Outlier{
				Ticker:    series[i].Ticker,
				TradeDate: series[i].TradeDate,
				Move:      returns[i],
				Threshold: threshold,
			})
		}
	}
	return outliers
}

func stddev(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	mean := 0.0
	for _, v := range values {
		mean += v
	}
	mean /= float64(len(values))

	variance := 0.0
	for _, v := range values {
		d := v - mean
		variance += d * d
	}
	variance /= float64(len(values))
	return math.Sqrt(variance)
}
