// Package database provides the PostgreSQL connection pool for the Reach
// data service. One database holds both reference data (securities) and
// daily time-series rows (prices, snapshots, statements, ratios).
package database
