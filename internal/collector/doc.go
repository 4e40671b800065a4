// Package collector runs batch collection over a market scope: it resolves
// the date range each security still needs, fans fetch work out over a
// bounded worker pool, persists the results, and aggregates a run summary.
// Per-ticker failures are isolated; a systemic provider failure (bad key,
// exhausted quota) cancels the remaining work for the run.
package collector
