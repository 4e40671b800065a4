// Package krx implements the Korea Exchange data gateway adapter. It serves
// the symbol-list, OHLCV, and market-cap snapshot capabilities for the KOSPI
// and KOSDAQ markets.
package krx

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/reachlab/reach-data/internal/config"
	"github.com/reachlab/reach-data/internal/model"
	"github.com/reachlab/reach-data/internal/provider"
)

// KRX serves daily data back to 1995 through the gateway.
var defaultEarliest = time.Date(1995, 5, 2, 0, 0, 0, 0, time.UTC)

const dateLayout = "2006-01-02"

// Client is the KRX gateway adapter.
type Client struct {
	rest   *provider.RESTClient
	apiKey string
	logger *slog.Logger
}

// New creates a KRX adapter from provider config.
func New(cfg config.ProviderConfig, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		rest:   provider.NewRESTClient("krx", cfg, defaultEarliest, logger),
		apiKey: cfg.APIKey,
		logger: logger,
	}
}

// Name identifies the provider.
func (c *Client) Name() string { return c.rest.Name() }

// Quota returns the configured request budget.
func (c *Client) Quota() (int, time.Duration) { return c.rest.Quota() }

// EarliestDate is the oldest trading date served.
func (c *Client) EarliestDate() time.Time { return c.rest.EarliestDate() }

type symbolRow struct {
	Ticker string `json:"ticker"`
	Name   string `json:"name"`
	Sector string `json:"sector"`
	Listed bool   `json:"listed"`
}

type symbolsResponse struct {
	Market  string      `json:"market"`
	Symbols []symbolRow `json:"symbols"`
}

// ListSymbols fetches the full listing for a market with sector metadata.
func (c *Client) ListSymbols(ctx context.Context, market string) ([]model.Security, error) {
	query := c.baseQuery()
	query.Set("market", market)

	var resp symbolsResponse
	if err := c.rest.Get(ctx, "/symbols", query, &resp); err != nil {
		return nil, fmt.Errorf("krx list symbols %s: %w", market, err)
	}

	securities := make([]model.Security, 0, len(resp.Symbols))
	for _, s := range resp.Symbols {
		securities = append(securities, model.Security{
			Ticker:  s.Ticker,
			Name:    s.Name,
			Market:  market,
			Sector:  s.Sector,
			Country: "KR",
			Active:  s.Listed,
		})
	}

	return securities, nil
}

type candleRow struct {
	Date   string  `json:"date"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume int64   `json:"volume"`
}

type candlesResponse struct {
	Ticker  string      `json:"ticker"`
	Candles []candleRow `json:"candles"`
}

// FetchCandles fetches daily OHLCV rows for one security. Non-trading days
// are simply absent from the response.
func (c *Client) FetchCandles(ctx context.Context, ticker string, r model.DateRange) ([]model.PricePoint, error) {
	query := c.baseQuery()
	query.Set("ticker", ticker)
	query.Set("from", r.Start.Format(dateLayout))
	query.Set("to", r.End.Format(dateLayout))

	var resp candlesResponse
	if err := c.rest.Get(ctx, "/ohlcv", query, &resp); err != nil {
		return nil, fmt.Errorf("krx candles %s: %w", ticker, err)
	}

	points := make([]model.PricePoint, 0, len(resp.Candles))
	for _, row := range resp.Candles {
		date, err := time.Parse(dateLayout, row.Date)
		if err != nil {
			c.logger.Warn("skipping candle with bad date",
				"ticker", ticker,
				"date", row.Date,
			)
			continue
		}
		points = append(points, model.PricePoint{
			Ticker:    ticker,
			TradeDate: date,
			Open:      row.Open,
			High:      row.High,
			Low:       row.Low,
			Close:     row.Close,
			Volume:    row.Volume,
		})
	}

	return points, nil
}

type marketCapRow struct {
	Ticker            string   `json:"ticker"`
	MarketCap         *float64 `json:"market_cap"`
	SharesOutstanding *int64   `json:"shares_outstanding"`
	TradedValue       *float64 `json:"traded_value"`
}

type marketCapResponse struct {
	Market string         `json:"market"`
	Date   string         `json:"date"`
	Rows   []marketCapRow `json:"rows"`
}

// FetchSnapshots fetches the whole-market valuation table for one date.
func (c *Client) FetchSnapshots(ctx context.Context, market string, date time.Time) ([]model.MarketSnapshot, error) {
	query := c.baseQuery()
	query.Set("market", market)
	query.Set("date", date.Format(dateLayout))

	var resp marketCapResponse
	if err := c.rest.Get(ctx, "/marketcap", query, &resp); err != nil {
		return nil, fmt.Errorf("krx marketcap %s %s: %w", market, date.Format(dateLayout), err)
	}

	snapshots := make([]model.MarketSnapshot, 0, len(resp.Rows))
	for _, row := range resp.Rows {
		snapshots = append(snapshots, model.MarketSnapshot{
			Ticker:            row.Ticker,
			TradeDate:         date,
			MarketCap:         row.MarketCap,
			SharesOutstanding: row.SharesOutstanding,
			TradedValue:       row.TradedValue,
		})
	}

	return snapshots, nil
}

func (c *Client) baseQuery() url.Values {
	query := url.Values{}
	if c.apiKey != "" {
		query.Set("auth_key", c.apiKey)
	}
	return query
}
