package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// -----------------------------------------------------------------------------
// Reference Types
// -----------------------------------------------------------------------------

// Security represents a listed equity. Identity (ticker) is immutable;
// metadata is refreshed on every symbol-list ingestion.
type Security struct {
	Ticker   string // Primary key (e.g., "005930", "AAPL")
	Name     string // Display name
	Market   string // Exchange/market (e.g., "KOSPI", "NASDAQ")
	Sector   string // Sector classification, may be empty
	Industry string // Industry classification, may be empty
	Country  string // ISO-ish country code ("KR", "US")
	Active   bool   // false once delisted; rows are never deleted
}

// -----------------------------------------------------------------------------
// Time-Series Types
// -----------------------------------------------------------------------------

// PricePoint is one day of OHLCV data for a security.
// Unique per (ticker, trade date); append-only once a trading day has closed.
type PricePoint struct {
	Ticker    string    // Security ticker
	TradeDate time.Time // Trading day (UTC midnight)
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    int64
}

// MarketSnapshot is one day of market-wide valuation data for a security.
// Sourced independently from prices and may lag them by a day or more.
type MarketSnapshot struct {
	Ticker            string
	TradeDate         time.Time
	MarketCap         *float64 // Total market capitalization
	SharesOutstanding *int64   // Listed shares
	TradedValue       *float64 // Value traded on the day
}

// -----------------------------------------------------------------------------
// Fundamentals Types
// -----------------------------------------------------------------------------

// FiscalPeriod identifies one reporting period. Quarter 0 means annual.
type FiscalPeriod struct {
	Year    int
	Quarter int // 0 = annual, otherwise 1-3 (Q4 is folded into the annual report)
}

// ReportType returns the persisted report type discriminator
// ("annual", "Q1", "Q2", "Q3").
func (p FiscalPeriod) ReportType() string {
	switch p.Quarter {
	case 1:
		return "Q1"
	case 2:
		return "Q2"
	case 3:
		return "Q3"
	default:
		return "annual"
	}
}

// EndDate returns the calendar end of the fiscal period, used to pair a
// statement with the nearest market snapshot.
func (p FiscalPeriod) EndDate() time.Time {
	switch p.Quarter {
	case 1:
		return time.Date(p.Year, time.March, 31, 0, 0, 0, 0, time.UTC)
	case 2:
		return time.Date(p.Year, time.June, 30, 0, 0, 0, 0, time.UTC)
	case 3:
		return time.Date(p.Year, time.September, 30, 0, 0, 0, 0, time.UTC)
	default:
		return time.Date(p.Year, time.December, 31, 0, 0, 0, 0, time.UTC)
	}
}

func (p FiscalPeriod) String() string {
	return fmt.Sprintf("%d/%s", p.Year, p.ReportType())
}

// FinancialStatement holds the line items of one filed report.
// Unique per (ticker, fiscal period, report type); quarterly and annual
// periods are distinct rows, never merged.
type FinancialStatement struct {
	Ticker string
	Period FiscalPeriod

	// Income statement
	Revenue         *float64
	OperatingIncome *float64
	NetIncome       *float64

	// Balance sheet
	TotalAssets      *float64
	TotalLiabilities *float64
	TotalEquity      *float64

	// Cash flow
	OperatingCashFlow *float64

	Currency string // "KRW", "USD"
}

// FinancialRatio holds derived ratios for one fiscal period. Fully derived:
// recomputed and overwritten whenever its inputs change.
type FinancialRatio struct {
	Ticker     string
	FiscalDate time.Time // FiscalPeriod.EndDate of the source statement
	ReportType string    // "annual", "Q1", "Q2", "Q3"

	// Profitability (percent)
	ROE             *float64
	ROA             *float64
	OperatingMargin *float64
	NetMargin       *float64

	// Leverage (percent)
	DebtRatio *float64

	// Valuation multiples (require a market-cap snapshot)
	PER *float64
	PBR *float64
	PSR *float64
}

// -----------------------------------------------------------------------------
// Collection Run Types
// -----------------------------------------------------------------------------

// DateRange is an inclusive calendar range still needing collection.
type DateRange struct {
	Start time.Time
	End   time.Time
}

// Days returns the number of calendar days covered by the range.
func (r DateRange) Days() int {
	return int(r.End.Sub(r.Start).Hours()/24) + 1
}

// FailureClass categorizes a per-ticker failure for the run summary.
type FailureClass string

const (
	FailureTransient   FailureClass = "transient"   // retries exhausted
	FailurePermanent   FailureClass = "permanent"   // bad symbol, no data for period
	FailureSystemic    FailureClass = "systemic"    // auth/quota failure, short-circuits the run
	FailurePersistence FailureClass = "persistence" // store rejected the write
)

// TickerFailure records why one ticker's unit of work failed.
type TickerFailure struct {
	Ticker string       `json:"ticker"`
	Class  FailureClass `json:"class"`
	Reason string       `json:"reason"`
}

// RunSummary aggregates the outcome of one orchestrator run over a scope.
// Transient: resumability derives from stored data, not from this record.
type RunSummary struct {
	RunID       uuid.UUID       `json:"run_id"`
	Scope       string          `json:"scope"`
	Incremental bool            `json:"incremental"`
	StartedAt   time.Time       `json:"started_at"`
	FinishedAt  time.Time       `json:"finished_at"`
	Considered  int             `json:"considered"`
	Succeeded   int             `json:"succeeded"`
	Skipped     int             `json:"skipped"` // already current, no network call
	Failed      int             `json:"failed"`
	Failures    []TickerFailure `json:"failures,omitempty"`

	// Rows written, broken out by entity.
	PricesWritten     int `json:"prices_written"`
	SnapshotsWritten  int `json:"snapshots_written"`
	StatementsWritten int `json:"statements_written"`

	// SystemicError is set when a provider-wide failure cut the run short.
	SystemicError string `json:"systemic_error,omitempty"`
}

// Duration returns the wall-clock duration of the run.
func (s *RunSummary) Duration() time.Duration {
	return s.FinishedAt.Sub(s.StartedAt)
}
