// Package model defines shared data types used across the Reach data service.
//
// Conventions:
//   - Trading dates: time.Time truncated to a calendar day in UTC
//   - Monetary line items: *float64, nil when the provider did not report a value
//   - IDs: string tickers for securities, uuid.UUID for collection runs
package model
