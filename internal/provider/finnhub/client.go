// Package finnhub implements the Finnhub adapter serving the US market:
// exchange symbol lists, company profiles, and daily candles.
package finnhub

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/reachlab/reach-data/internal/config"
	"github.com/reachlab/reach-data/internal/model"
	"github.com/reachlab/reach-data/internal/provider"
)

// Finnhub serves daily candles back to roughly 1990 on the free tier.
var defaultEarliest = time.Date(1990, 1, 2, 0, 0, 0, 0, time.UTC)

// Client is the Finnhub adapter.
type Client struct {
	rest   *provider.RESTClient
	apiKey string
	logger *slog.Logger
}

// New creates a Finnhub adapter from provider config.
func New(cfg config.ProviderConfig, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		rest:   provider.NewRESTClient("finnhub", cfg, defaultEarliest, logger),
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

type apiSymbol struct {
	Symbol      string `json:"symbol"`
	Description string `json:"description"`
	Type        string `json:"type"`
	MIC         string `json:"mic"`
}

// ListSymbols fetches the symbol list for an exchange ("US").
func (c *Client) ListSymbols(ctx context.Context, market string) ([]model.Security, error) {
	query := c.baseQuery()
	query.Set("exchange", market)

	var symbols []apiSymbol
	if err := c.rest.Get(ctx, "/stock/symbol", query, &symbols); err != nil {
		return nil, fmt.Errorf("finnhub list symbols %s: %w", market, err)
	}

	securities := make([]model.Security, 0, len(symbols))
	for _, s := range symbols {
		if s.Type != "Common Stock" {
			continue
		}
		securities = append(securities, model.Security{
			Ticker:  s.Symbol,
			Name:    s.Description,
			Market:  micToMarket(s.MIC),
			Country: "US",
			Active:  true,
		})
	}

	return securities, nil
}

type apiProfile struct {
	Name     string `json:"name"`
	Exchange string `json:"exchange"`
	Industry string `json:"finnhubIndustry"`
	Country  string `json:"country"`
}

// FetchProfile refreshes one security's metadata. An empty profile body is
// how Finnhub reports an unknown symbol; that is a permanent failure.
func (c *Client) FetchProfile(ctx context.Context, ticker string) (*model.Security, error) {
	query := c.baseQuery()
	query.Set("symbol", ticker)

	var profile apiProfile
	if err := c.rest.Get(ctx, "/stock/profile2", query, &profile); err != nil {
		return nil, fmt.Errorf("finnhub profile %s: %w", ticker, err)
	}

	if profile.Name == "" {
		return nil, &provider.Error{
			Provider: c.Name(),
			Class:    provider.ClassPermanent,
			Message:  fmt.Sprintf("no profile for symbol %s", ticker),
		}
	}

	return &model.Security{
		Ticker:   ticker,
		Name:     profile.Name,
		Market:   normalizeExchange(profile.Exchange),
		Industry: profile.Industry,
		Country:  "US",
		Active:   true,
	}, nil
}

type apiCandles struct {
	Status string    `json:"s"` // "ok" or "no_data"
	T      []int64   `json:"t"` // unix seconds
	O      []float64 `json:"o"`
	H      []float64 `json:"h"`
	L      []float64 `json:"l"`
	C      []float64 `json:"c"`
	V      []float64 `json:"v"`
}

// FetchCandles fetches daily OHLCV rows for one security.
func (c *Client) FetchCandles(ctx context.Context, ticker string, r model.DateRange) ([]model.PricePoint, error) {
	query := c.baseQuery()
	query.Set("symbol", ticker)
	query.Set("resolution", "D")
	query.Set("from", strconv.FormatInt(r.Start.Unix(), 10))
	// End of the last requested day.
	query.Set("to", strconv.FormatInt(r.End.Add(24*time.Hour-time.Second).Unix(), 10))

	var candles apiCandles
	if err := c.rest.Get(ctx, "/stock/candle", query, &candles); err != nil {
		return nil, fmt.Errorf("finnhub candles %s: %w", ticker, err)
	}

	if candles.Status == "no_data" {
		return nil, nil
	}
	if candles.Status != "ok" {
		return nil, &provider.Error{
			Provider: c.Name(),
			Class:    provider.ClassPermanent,
			Message:  fmt.Sprintf("candle status %q for %s", candles.Status, ticker),
		}
	}

	points := make([]model.PricePoint, 0, len(candles.T))
	for i, ts := range candles.T {
		if i >= len(candles.O) || i >= len(candles.H) || i >= len(candles.L) || i >= len(candles.C) {
			break
		}
		day := time.Unix(ts, 0).UTC().Truncate(24 * time.Hour)
		var volume int64
		if i < len(candles.V) {
			volume = int64(candles.V[i])
		}
		points = append(points, model.PricePoint{
			Ticker:    ticker,
			TradeDate: day,
			Open:      candles.O[i],
			High:      candles.H[i],
			Low:       candles.L[i],
			Close:     candles.C[i],
			Volume:    volume,
		})
	}

	return points, nil
}

func (c *Client) baseQuery() url.Values {
	query := url.Values{}
	if c.apiKey != "" {
		query.Set("token", c.apiKey)
	}
	return query
}

// micToMarket maps MIC codes to the short market names stored on securities.
func micToMarket(mic string) string {
	switch mic {
	case "XNAS":
		return "NASDAQ"
	case "XNYS":
		return "NYSE"
	case "ARCX":
		return "NYSE ARCA"
	default:
		return "US"
	}
}

// normalizeExchange shortens Finnhub's verbose exchange names.
func normalizeExchange(exchange string) string {
	upper := strings.ToUpper(exchange)
	switch {
	case strings.Contains(upper, "NASDAQ"):
		return "NASDAQ"
	case strings.Contains(upper, "NEW YORK"), strings.Contains(upper, "NYSE"):
		return "NYSE"
	case exchange == "":
		return "US"
	default:
		if len(exchange) > 10 {
			return exchange[:10]
		}
		return exchange
	}
}
