// Package ratio derives financial ratios from statement line items and
// market-cap snapshots. Every metric returns nil rather than a garbage value
// when its inputs are missing, zero, or outside plausibility bounds; derived
// rows are always recomputable from stored inputs.
package ratio

import (
	"time"

	"github.com/reachlab/reach-data/internal/model"
)

// SnapshotWindow is how far back from a fiscal period end a market-cap
// snapshot may be and still price that period's valuation multiples.
const SnapshotWindow = 90 * 24 * time.Hour

// Plausibility bounds. Values outside are treated as data errors (penny
// stocks mid-restructuring, near-zero denominators) and dropped.
const (
	perMin = -1000.0
	perMax = 10000.0

	multipleMin = -100.0
	multipleMax = 1000.0
)

// percent returns num/den*100, nil when the denominator is zero or negative.
func percent(num, den *float64) *float64 {
	if num == nil || den == nil || *den <= 0 {
		return nil
	}
	v := *num / *den * 100
	return &v
}

// multiple returns mcap/den bounded to (min, max), nil when the denominator
// is zero or the result is implausible.
func multiple(mcap, den *float64, min, max float64) *float64 {
	if mcap == nil || den == nil || *den == 0 {
		return nil
	}
	v := *mcap / *den
	if v <= min || v >= max {
		return nil
	}
	return &v
}

// ROE is net income over total equity, percent.
func ROE(st *model.FinancialStatement) *float64 {
	return percent(st.NetIncome, st.TotalEquity)
}

// ROA is net income over total assets, percent.
func ROA(st *model.FinancialStatement) *float64 {
	return percent(st.NetIncome, st.TotalAssets)
}

// OperatingMargin is operating income over revenue, percent.
func OperatingMargin(st *model.FinancialStatement) *float64 {
	return percent(st.OperatingIncome, st.Revenue)
}

// NetMargin is net income over revenue, percent.
func NetMargin(st *model.FinancialStatement) *float64 {
	return percent(st.NetIncome, st.Revenue)
}

// DebtRatio is total liabilities over total equity, percent.
func DebtRatio(st *model.FinancialStatement) *float64 {
	return percent(st.TotalLiabilities, st.TotalEquity)
}

// PER is market cap over net income.
func PER(st *model.FinancialStatement, marketCap *float64) *float64 {
	return multiple(marketCap, st.NetIncome, perMin, perMax)
}

// PBR is market cap over total equity.
func PBR(st *model.FinancialStatement, marketCap *float64) *float64 {
	return multiple(marketCap, st.TotalEquity, multipleMin, multipleMax)
}

// PSR is market cap over revenue.
func PSR(st *model.FinancialStatement, marketCap *float64) *float64 {
	return multiple(marketCap, st.Revenue, multipleMin, multipleMax)
}

// Compute assembles the full ratio row for one statement. marketCap is the
// snapshot value near the fiscal period end, nil when none qualifies; the
// valuation multiples stay nil in that case.
func Compute(st *model.FinancialStatement, marketCap *float64) model.FinancialRatio {
	return model.FinancialRatio{
		Ticker:          st.Ticker,
		FiscalDate:      st.Period.EndDate(),
		ReportType:      st.Period.ReportType(),
		ROE:             ROE(st),
		ROA:             ROA(st),
		OperatingMargin: OperatingMargin(st),
		NetMargin:       NetMargin(st),
		DebtRatio:       DebtRatio(st),
		PER:             PER(st, marketCap),
		PBR:             PBR(st, marketCap),
		PSR:             PSR(st, marketCap),
	}
}
