package provider

import (
	"context"
	"time"

	"github.com/reachlab/reach-data/internal/model"
)

// Info exposes a provider's static metadata.
type Info interface {
	// Name identifies the provider in logs and run summaries.
	Name() string

	// Quota returns the provider's request budget per interval.
	Quota() (requests int, interval time.Duration)

	// EarliestDate is the oldest trading date the provider can serve.
	EarliestDate() time.Time
}

// SymbolLister enumerates the securities listed on a market.
type SymbolLister interface {
	Info
	ListSymbols(ctx context.Context, market string) ([]model.Security, error)
}

// CandleFetcher fetches daily OHLCV rows for one security over a date range.
type CandleFetcher interface {
	Info
	FetchCandles(ctx context.Context, ticker string, r model.DateRange) ([]model.PricePoint, error)
}

// SnapshotFetcher fetches market-wide valuation snapshots for one date.
// KRX publishes market cap as a whole-market table per day, so the unit of
// fetch is (market, date) rather than (ticker, range).
type SnapshotFetcher interface {
	Info
	FetchSnapshots(ctx context.Context, market string, date time.Time) ([]model.MarketSnapshot, error)
}

// StatementFetcher fetches one filed financial statement.
type StatementFetcher interface {
	Info
	FetchStatement(ctx context.Context, ticker string, period model.FiscalPeriod) (*model.FinancialStatement, error)
}

// ProfileFetcher refreshes a single security's metadata. Optional capability
// used by markets without a bulk symbol list (e.g. the explicit US universe).
type ProfileFetcher interface {
	Info
	FetchProfile(ctx context.Context, ticker string) (*model.Security, error)
}
