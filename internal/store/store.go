package store

import (
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Store wraps the connection pool with the collection engine's persistence
// operations. Safe for concurrent use by orchestrator workers.
type Store struct {
	db     *pgxpool.Pool
	logger *slog.Logger
}

// New creates a Store over an established pool.
func New(db *pgxpool.Pool, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{db: db, logger: logger}
}
