package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultKRXBaseURL        = "https://data.krx.co.kr/comm/bldAttendant"
	DefaultFinnhubBaseURL    = "https://finnhub.io/api/v1"
	DefaultTwelveDataBaseURL = "https://api.twelvedata.com"
	DefaultDartBaseURL       = "https://opendart.fss.or.kr"

	DefaultProviderTimeout = 30 * time.Second
	DefaultMaxRetries      = 3
	DefaultRetryBackoff    = 1 * time.Second
	DefaultQuotaInterval   = 1 * time.Minute

	// Per-provider request quotas (requests per DefaultQuotaInterval).
	DefaultKRXQuota        = 300
	DefaultFinnhubQuota    = 60
	DefaultTwelveDataQuota = 8 // free-tier credits per minute
	DefaultDartQuota       = 100

	DefaultDBPort   = 5432
	DefaultDBSSL    = "prefer"
	DefaultMaxConns = 10
	DefaultMinConns = 2

	DefaultConcurrency       = 4
	DefaultWindowDays        = 365
	DefaultStatementFromYear = 2020

	DefaultKoreaCron      = "0 18 * * MON-FRI" // after KRX close, KST
	DefaultUSCron         = "0 10 * * MON-FRI" // US previous-day data, KST morning
	DefaultStatementsCron = "0 2 * * SAT"      // weekly fundamentals pass

	DefaultPriceOutlierMultiple = 6.0
	DefaultPriceOutlierLookback = 20

	DefaultServerPort = 8001
)

// defaultUSTickers is the S&P 500 sample universe collected when no explicit
// ticker list is configured.
var defaultUSTickers = []string{
	"AAPL", "MSFT", "GOOGL", "AMZN", "NVDA",
	"META", "TSLA", "JPM", "V", "JNJ",
}

func (c *ServiceConfig) applyDefaults() {
	applyProviderDefaults(&c.Providers.KRX, DefaultKRXBaseURL, DefaultKRXQuota)
	applyProviderDefaults(&c.Providers.Finnhub, DefaultFinnhubBaseURL, DefaultFinnhubQuota)
	applyProviderDefaults(&c.Providers.TwelveData, DefaultTwelveDataBaseURL, DefaultTwelveDataQuota)
	applyProviderDefaults(&c.Providers.Dart, DefaultDartBaseURL, DefaultDartQuota)

	applyDBDefaults(&c.Database)

	// Collector defaults
	if c.Collector.Concurrency == 0 {
		c.Collector.Concurrency = DefaultConcurrency
	}
	if c.Collector.DefaultWindowDays == 0 {
		c.Collector.DefaultWindowDays = DefaultWindowDays
	}
	if len(c.Collector.KoreaMarkets) == 0 {
		c.Collector.KoreaMarkets = []string{"KOSPI", "KOSDAQ"}
	}
	if len(c.Collector.USTickers) == 0 {
		c.Collector.USTickers = append([]string(nil), defaultUSTickers...)
	}
	if c.Collector.StatementStartYear == 0 {
		c.Collector.StatementStartYear = DefaultStatementFromYear
	}

	// Scheduler defaults
	if c.Scheduler.KoreaCron == "" {
		c.Scheduler.KoreaCron = DefaultKoreaCron
	}
	if c.Scheduler.USCron == "" {
		c.Scheduler.USCron = DefaultUSCron
	}
	if c.Scheduler.StatementsCron == "" {
		c.Scheduler.StatementsCron = DefaultStatementsCron
	}

	// Quality defaults
	if c.Quality.PriceOutlierMultiple == 0 {
		c.Quality.PriceOutlierMultiple = DefaultPriceOutlierMultiple
	}
	if c.Quality.PriceOutlierLookback == 0 {
		c.Quality.PriceOutlierLookback = DefaultPriceOutlierLookback
	}

	// Server defaults
	if c.Server.Port == 0 {
		c.Server.Port = DefaultServerPort
	}
}

func applyProviderDefaults(p *ProviderConfig, baseURL string, quota int) {
	if p.BaseURL == "" {
		p.BaseURL = baseURL
	}
	if p.Quota == 0 {
		p.Quota = quota
	}
	if p.QuotaInterval == 0 {
		p.QuotaInterval = DefaultQuotaInterval
	}
	if p.Timeout == 0 {
		p.Timeout = DefaultProviderTimeout
	}
	if p.MaxRetries == 0 {
		p.MaxRetries = DefaultMaxRetries
	}
	if p.RetryBackoff == 0 {
		p.RetryBackoff = DefaultRetryBackoff
	}
}

func applyDBDefaults(db *DBConfig) {
	if db.Port == 0 {
		db.Port = DefaultDBPort
	}
	if db.SSLMode == "" {
		db.SSLMode = DefaultDBSSL
	}
	if db.MaxConns == 0 {
		db.MaxConns = DefaultMaxConns
	}
	if db.MinConns == 0 {
		db.MinConns = DefaultMinConns
	}
}
