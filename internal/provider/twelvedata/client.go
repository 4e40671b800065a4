// Package twelvedata implements the Twelve Data adapter serving daily OHLCV
// time series for the US market. Symbol metadata comes from Finnhub; this
// adapter covers the candle capability only.
package twelvedata

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"time"

	"github.com/reachlab/reach-data/internal/config"
	"github.com/reachlab/reach-data/internal/model"
	"github.com/reachlab/reach-data/internal/provider"
)

// Twelve Data serves daily bars back to roughly 1990 for US listings.
var defaultEarliest = time.Date(1990, 1, 2, 0, 0, 0, 0, time.UTC)

const dateLayout = "2006-01-02"

// Client is the Twelve Data adapter.
type Client struct {
	rest   *provider.RESTClient
	apiKey string
	logger *slog.Logger
}

// New creates a Twelve Data adapter from provider config.
func New(cfg config.ProviderConfig, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		rest:   provider.NewRESTClient("twelvedata", cfg, defaultEarliest, logger),
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

// timeSeriesResponse is the /time_series envelope. Application errors arrive
// with HTTP 200 and status "error"; all numeric fields are strings.
type timeSeriesResponse struct {
	Status  string      `json:"status"`
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Values  []seriesRow `json:"values"`
}

type seriesRow struct {
	Datetime string `json:"datetime"`
	Open     string `json:"open"`
	High     string `json:"high"`
	Low      string `json:"low"`
	Close    string `json:"close"`
	Volume   string `json:"volume"`
}

// FetchCandles fetches daily OHLCV rows for one security. Rows arrive newest
// first and are returned in ascending date order.
func (c *Client) FetchCandles(ctx context.Context, ticker string, r model.DateRange) ([]model.PricePoint, error) {
	query := url.Values{}
	if c.apiKey != "" {
		query.Set("apikey", c.apiKey)
	}
	query.Set("symbol", ticker)
	query.Set("interval", "1day")
	query.Set("outputsize", "5000")
	query.Set("start_date", r.Start.Format(dateLayout))
	query.Set("end_date", r.End.Format(dateLayout))

	var resp timeSeriesResponse
	if err := c.rest.Get(ctx, "/time_series", query, &resp); err != nil {
		return nil, fmt.Errorf("twelvedata candles %s: %w", ticker, err)
	}

	if resp.Status == "error" {
		return nil, fmt.Errorf("twelvedata candles %s: %w", ticker, c.apiError(resp.Code, resp.Message))
	}
	if len(resp.Values) == 0 {
		return nil, nil
	}

	points := make([]model.PricePoint, 0, len(resp.Values))
	for i := len(resp.Values) - 1; i >= 0; i-- {
		row := resp.Values[i]
		point, err := parseRow(ticker, row)
		if err != nil {
			c.logger.Warn("skipping malformed bar",
				"ticker", ticker,
				"date", row.Datetime,
				"err", err,
			)
			continue
		}
		points = append(points, point)
	}

	return points, nil
}

// parseRow converts one string-typed bar into a price point. Volume may be
// absent for thinly traded listings.
func parseRow(ticker string, row seriesRow) (model.PricePoint, error) {
	date, err := time.Parse(dateLayout, row.Datetime)
	if err != nil {
		return model.PricePoint{}, fmt.Errorf("parse datetime: %w", err)
	}

	open, err := strconv.ParseFloat(row.Open, 64)
	if err != nil {
		return model.PricePoint{}, fmt.Errorf("parse open: %w", err)
	}
	high, err := strconv.ParseFloat(row.High, 64)
	if err != nil {
		return model.PricePoint{}, fmt.Errorf("parse high: %w", err)
	}
	low, err := strconv.ParseFloat(row.Low, 64)
	if err != nil {
		return model.PricePoint{}, fmt.Errorf("parse low: %w", err)
	}
	closep, err := strconv.ParseFloat(row.Close, 64)
	if err != nil {
		return model.PricePoint{}, fmt.Errorf("parse close: %w", err)
	}

	var volume int64
	if row.Volume != "" {
		volume, err = strconv.ParseInt(row.Volume, 10, 64)
		if err != nil {
			return model.PricePoint{}, fmt.Errorf("parse volume: %w", err)
		}
	}

	return model.PricePoint{
		Ticker:    ticker,
		TradeDate: date,
		Open:      open,
		High:      high,
		Low:       low,
		Close:     closep,
		Volume:    volume,
	}, nil
}

// apiError maps Twelve Data body error codes to the error taxonomy. The API
// reuses HTTP status numbers inside the body: 429 is the per-minute plan
// limit, 401 a bad key, 404 an unknown symbol.
func (c *Client) apiError(code int, message string) error {
	class := provider.ClassPermanent
	switch code {
	case 429, 500, 502, 503:
		class = provider.ClassTransient
	case 401, 403:
		class = provider.ClassSystemic
	}
	return &provider.Error{
		Provider:   c.Name(),
		Class:      class,
		StatusCode: code,
		Message:    message,
	}
}
