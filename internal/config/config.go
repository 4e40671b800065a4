package config

import "time"

// ServiceConfig is the root configuration for a collectord instance.
type ServiceConfig struct {
	Instance  InstanceConfig  `yaml:"instance"`
	Database  DBConfig        `yaml:"database"`
	Providers ProvidersConfig `yaml:"providers"`
	Collector CollectorConfig `yaml:"collector"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Quality   QualityConfig   `yaml:"quality"`
	Server    ServerConfig    `yaml:"server"`
}

// InstanceConfig identifies this collector instance.
type InstanceConfig struct {
	ID string `yaml:"id"`
}

// DBConfig holds the Postgres connection.
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// ProvidersConfig holds one entry per external data source.
type ProvidersConfig struct {
	KRX        ProviderConfig `yaml:"krx"`
	Finnhub    ProviderConfig `yaml:"finnhub"`
	TwelveData ProviderConfig `yaml:"twelvedata"`
	Dart       ProviderConfig `yaml:"dart"`
}

// ProviderConfig holds one provider's endpoint, credentials, and quota.
// Quota is requests per QuotaInterval; calls block until a permit frees up.
type ProviderConfig struct {
	BaseURL       string        `yaml:"base_url"`
	APIKey        string        `yaml:"api_key"`
	Quota         int           `yaml:"quota"`
	QuotaInterval time.Duration `yaml:"quota_interval"`
	Timeout       time.Duration `yaml:"timeout"`
	MaxRetries    int           `yaml:"max_retries"`
	RetryBackoff  time.Duration `yaml:"retry_backoff"`
	EarliestDate  string        `yaml:"earliest_date"` // YYYY-MM-DD, earliest data the source serves
}

// CollectorConfig holds orchestrator settings.
type CollectorConfig struct {
	Concurrency        int           `yaml:"concurrency"`          // worker pool size per run
	DefaultWindowDays  int           `yaml:"default_window_days"`  // history fetched on first collection
	RunTimeout         time.Duration `yaml:"run_timeout"`          // wall-clock cap per run, 0 = unlimited
	KoreaMarkets       []string      `yaml:"korea_markets"`        // e.g. [KOSPI, KOSDAQ]
	USTickers          []string      `yaml:"us_tickers"`           // explicit US universe
	StatementStartYear int           `yaml:"statement_start_year"` // first fiscal year for full statement backfill
	StatementQuarters  bool          `yaml:"statement_quarters"`   // also collect Q1-Q3 reports
}

// SchedulerConfig holds cron expressions per scope.
type SchedulerConfig struct {
	Enabled        bool   `yaml:"enabled"`
	KoreaCron      string `yaml:"korea_cron"`
	USCron         string `yaml:"us_cron"`
	StatementsCron string `yaml:"statements_cron"`
}

// QualityConfig holds data-quality scan thresholds.
type QualityConfig struct {
	PriceOutlierMultiple float64 `yaml:"price_outlier_multiple"` // day-over-day move vs trailing volatility
	PriceOutlierLookback int     `yaml:"price_outlier_lookback"` // trading days of volatility history
}

// ServerConfig holds the admin/status HTTP server settings.
type ServerConfig struct {
	Port int `yaml:"port"`
}
