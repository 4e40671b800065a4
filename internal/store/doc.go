// Package store persists collected market data to Postgres. All writes are
// batched upserts keyed on natural keys: time-series tables (price points,
// market snapshots) are append-only with ON CONFLICT DO NOTHING, while
// reference and fundamentals tables (securities, statements, ratios) take
// DO UPDATE so restated filings and metadata refreshes replace prior rows.
package store
