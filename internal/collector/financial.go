package collector

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/reachlab/reach-data/internal/model"
	"github.com/reachlab/reach-data/internal/provider"
)

// StatementStore is the persistence surface of the statement batch.
type StatementStore interface {
	ListUniverse(ctx context.Context, markets []string, limit int) ([]model.Security, error)
	LatestFiscalYear(ctx context.Context, ticker string) (int, error)
	UpsertStatements(ctx context.Context, statements []model.FinancialStatement) (int, error)
}

// Recomputer rebuilds derived ratios for the given tickers after new
// statements land.
type Recomputer interface {
	Recompute(ctx context.Context, tickers []string) (int, error)
}

// StatementConfig holds statement batch settings.
type StatementConfig struct {
	Concurrency int
	StartYear   int  // first fiscal year collected when a ticker has none
	Quarters    bool // also collect Q1-Q3 reports
	RunTimeout  time.Duration
}

// StatementBatch collects fundamentals for one scope's universe. Collection
// is incremental by fiscal year: a ticker's latest stored year is re-fetched
// so restated filings replace the stored line items.
type StatementBatch struct {
	scope      string
	markets    []string
	cfg        StatementConfig
	store      StatementStore
	statements provider.StatementFetcher
	recompute  Recomputer
	logger     *slog.Logger
}

// NewStatementBatch creates a statement batch runner. recompute may be nil.
func NewStatementBatch(scope string, markets []string, cfg StatementConfig, st StatementStore, statements provider.StatementFetcher, recompute Recomputer, logger *slog.Logger) *StatementBatch {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	if cfg.StartYear == 0 {
		cfg.StartYear = time.Now().UTC().Year() - 5
	}
	return &StatementBatch{
		scope:      scope,
		markets:    markets,
		cfg:        cfg,
		store:      st,
		statements: statements,
		recompute:  recompute,
		logger:     logger,
	}
}

// Scope names the market scope this batch covers.
func (b *StatementBatch) Scope() string { return b.scope }

// Run executes one statement collection pass.
func (b *StatementBatch) Run(ctx context.Context, opts Options) (*model.RunSummary, error) {
	if b.cfg.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.cfg.RunTimeout)
		defer cancel()
	}

	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()

	state := &runState{
		summary: &model.RunSummary{
			RunID:       uuid.New(),
			Scope:       b.scope,
			Incremental: !opts.Full,
			StartedAt:   time.Now().UTC(),
		},
		cancel: cancelRun,
	}

	universe, err := b.store.ListUniverse(ctx, b.markets, opts.MaxTickers)
	if err != nil {
		return nil, err
	}
	state.summary.Considered = len(universe)

	b.logger.Info("statement run started",
		"scope", b.scope,
		"run_id", state.summary.RunID,
		"universe", len(universe),
	)

	sem := semaphore.NewWeighted(int64(b.cfg.Concurrency))
	var updated []string
	currentYear := time.Now().UTC().Year()

	for _, sec := range universe {
		if err := sem.Acquire(runCtx, 1); err != nil {
			break
		}
		go func(ticker string) {
			defer sem.Release(1)
			if b.collectStatements(runCtx, state, ticker, currentYear, opts) {
				state.mu.Lock()
				updated = append(updated, ticker)
				state.mu.Unlock()
			}
		}(sec.Ticker)
	}

	// Draining the semaphore waits for in-flight workers.
	if err := sem.Acquire(context.Background(), int64(b.cfg.Concurrency)); err == nil {
		sem.Release(int64(b.cfg.Concurrency))
	}

	if b.recompute != nil && len(updated) > 0 {
		if _, err := b.recompute.Recompute(ctx, updated); err != nil {
			b.logger.Error("ratio recompute failed", "scope", b.scope, "err", err)
		}
	}

	state.summary.Succeeded = int(state.succeeded.Load())
	state.summary.Skipped = int(state.skipped.Load())
	state.summary.Failed = int(state.failed.Load())
	state.summary.StatementsWritten = int(state.statements.Load())
	state.summary.FinishedAt = time.Now().UTC()

	b.logger.Info("statement run complete",
		"scope", b.scope,
		"run_id", state.summary.RunID,
		"succeeded", state.summary.Succeeded,
		"skipped", state.summary.Skipped,
		"failed", state.summary.Failed,
		"statements_written", state.summary.StatementsWritten,
		"duration", state.summary.Duration(),
	)

	return state.summary, nil
}

// collectStatements fetches one ticker's missing fiscal periods. Reports
// whether any statements were written.
func (b *StatementBatch) collectStatements(ctx context.Context, state *runState, ticker string, currentYear int, opts Options) bool {
	fromYear := b.cfg.StartYear
	if !opts.Full {
		latest, err := b.store.LatestFiscalYear(ctx, ticker)
		if err != nil {
			state.fail(ticker, model.FailurePersistence, err)
			return false
		}
		// Re-fetch the latest stored year; restatements land there.
		if latest > fromYear {
			fromYear = latest
		}
	}

	var collected []model.FinancialStatement
	var permErr error
	today := time.Now().UTC()

	for year := fromYear; year <= currentYear; year++ {
		for _, period := range b.periods(year) {
			// A period still in progress has no filing yet.
			if period.EndDate().After(today) {
				continue
			}
			if ctx.Err() != nil {
				return false
			}

			stmt, err := b.statements.FetchStatement(ctx, ticker, period)
			if err != nil {
				if ctx.Err() != nil {
					return false
				}
				class := provider.ClassOf(err)
				if class == provider.ClassSystemic {
					state.systemic(err)
					state.fail(ticker, class.FailureClass(), err)
					return false
				}
				// Missing filings are routine (not yet filed, pre-listing
				// years); keep walking the remaining periods. Other permanent
				// errors (no corp code, malformed symbol) are remembered so
				// the ticker is not reported as already current.
				if class == provider.ClassPermanent {
					if permErr == nil && !provider.IsNoData(err) {
						permErr = err
					}
					continue
				}
				state.fail(ticker, class.FailureClass(), err)
				return false
			}
			collected = append(collected, *stmt)
		}
	}

	if len(collected) == 0 {
		if permErr != nil {
			state.fail(ticker, model.FailurePermanent, permErr)
			return false
		}
		state.skipped.Add(1)
		return false
	}

	written, err := b.store.UpsertStatements(ctx, collected)
	if err != nil {
		state.fail(ticker, model.FailurePersistence, err)
		return false
	}

	state.statements.Add(int64(written))
	state.succeeded.Add(1)
	return true
}

// periods lists the fiscal periods collected for one year, annual first.
func (b *StatementBatch) periods(year int) []model.FiscalPeriod {
	periods := []model.FiscalPeriod{{Year: year}}
	if b.cfg.Quarters {
		for q := 1; q <= 3; q++ {
			periods = append(periods, model.FiscalPeriod{Year: year, Quarter: q})
		}
	}
	return periods
}
