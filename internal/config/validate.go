package config

import (
	"errors"
	"fmt"
)

// Validate checks that all required fields are set and values are valid.
func (c *ServiceConfig) Validate() error {
	if c.Instance.ID == "" {
		return errors.New("instance.id is required")
	}

	if err := c.Database.validate("database"); err != nil {
		return err
	}

	if err := c.Providers.KRX.validate("providers.krx"); err != nil {
		return err
	}
	if err := c.Providers.Finnhub.validate("providers.finnhub"); err != nil {
		return err
	}
	if err := c.Providers.TwelveData.validate("providers.twelvedata"); err != nil {
		return err
	}
	if err := c.Providers.Dart.validate("providers.dart"); err != nil {
		return err
	}

	if c.Collector.Concurrency < 1 {
		return errors.New("collector.concurrency must be >= 1")
	}
	if c.Collector.DefaultWindowDays < 1 {
		return errors.New("collector.default_window_days must be >= 1")
	}
	if c.Collector.RunTimeout < 0 {
		return errors.New("collector.run_timeout must not be negative")
	}

	if c.Quality.PriceOutlierMultiple <= 0 {
		return errors.New("quality.price_outlier_multiple must be positive")
	}
	if c.Quality.PriceOutlierLookback < 2 {
		return errors.New("quality.price_outlier_lookback must be >= 2")
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return errors.New("server.port must be in 1-65535")
	}

	return nil
}

func (db *DBConfig) validate(prefix string) error {
	if db.Host == "" {
		return fmt.Errorf("%s.host is required", prefix)
	}
	if db.Name == "" {
		return fmt.Errorf("%s.name is required", prefix)
	}
	if db.User == "" {
		return fmt.Errorf("%s.user is required", prefix)
	}
	if db.Password == "" {
		return fmt.Errorf("%s.password is required", prefix)
	}
	if db.MinConns > db.MaxConns {
		return fmt.Errorf("%s.min_conns must not exceed max_conns", prefix)
	}
	return nil
}

func (p *ProviderConfig) validate(prefix string) error {
	if p.BaseURL == "" {
		return fmt.Errorf("%s.base_url is required", prefix)
	}
	if p.Quota < 1 {
		return fmt.Errorf("%s.quota must be >= 1", prefix)
	}
	if p.QuotaInterval <= 0 {
		return fmt.Errorf("%s.quota_interval must be positive", prefix)
	}
	if p.MaxRetries < 0 {
		return fmt.Errorf("%s.max_retries must not be negative", prefix)
	}
	return nil
}
