package collector

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/reachlab/reach-data/internal/model"
	"github.com/reachlab/reach-data/internal/provider"
)

// Store is the persistence surface a collection run needs.
type Store interface {
	UpsertSecurities(ctx context.Context, securities []model.Security) (int, error)
	MarkInactive(ctx context.Context, market string, listed []string) (int, error)
	ListUniverse(ctx context.Context, markets []string, limit int) ([]model.Security, error)
	LastTradeDate(ctx context.Context, ticker string) (*time.Time, error)
	UpsertPricePoints(ctx context.Context, points []model.PricePoint) (int, error)
	LastSnapshotDate(ctx context.Context, market string) (*time.Time, error)
	UpsertSnapshots(ctx context.Context, snapshots []model.MarketSnapshot) (int, error)
}

// PriceProvider combines the capabilities a price-collection scope requires.
type PriceProvider interface {
	provider.Info
	provider.SymbolLister
	provider.CandleFetcher
}

// Config holds per-scope collection settings.
type Config struct {
	Concurrency int           // worker pool size
	Window      time.Duration // trailing window for first-time collection
	RunTimeout  time.Duration // optional wall-clock cap, 0 = none
}

// Options tune a single run.
type Options struct {
	// MaxTickers truncates the universe (ordered by ticker) for smoke runs.
	// 0 means the whole universe.
	MaxTickers int

	// Full disables the incremental skip and re-resolves every ticker from
	// the trailing window. Stored days are still never overwritten.
	Full bool
}

// Orchestrator runs batch collection for one scope ("korea", "us").
type Orchestrator struct {
	scope     string
	markets   []string
	cfg       Config
	store     Store
	prices    PriceProvider
	snapshots provider.SnapshotFetcher // nil when the scope has no snapshot source
	logger    *slog.Logger
}

// New creates an orchestrator for a scope. snapshots may be nil.
func New(scope string, markets []string, cfg Config, st Store, prices PriceProvider, snapshots provider.SnapshotFetcher, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	return &Orchestrator{
		scope:     scope,
		markets:   markets,
		cfg:       cfg,
		store:     st,
		prices:    prices,
		snapshots: snapshots,
		logger:    logger,
	}
}

// Scope names the market scope this orchestrator covers.
func (o *Orchestrator) Scope() string { return o.scope }

// runState carries the mutable pieces shared by workers during one run.
type runState struct {
	summary *model.RunSummary
	mu      sync.Mutex // guards summary.Failures and SystemicError

	succeeded  atomic.Int64
	skipped    atomic.Int64
	failed     atomic.Int64
	prices     atomic.Int64
	snapshots  atomic.Int64
	statements atomic.Int64

	cancel context.CancelFunc // cancels remaining work on systemic failure
}

// fail records one ticker failure.
func (st *runState) fail(ticker string, class model.FailureClass, err error) {
	st.failed.Add(1)
	st.mu.Lock()
	st.summary.Failures = append(st.summary.Failures, model.TickerFailure{
		Ticker: ticker,
		Class:  class,
		Reason: err.Error(),
	})
	st.mu.Unlock()
}

// systemic records a provider-wide failure once and cancels remaining work.
func (st *runState) systemic(err error) {
	st.mu.Lock()
	if st.summary.SystemicError == "" {
		st.summary.SystemicError = err.Error()
	}
	st.mu.Unlock()
	st.cancel()
}

// Run executes one collection pass and always returns a summary; the error
// is non-nil only when the run could not start at all.
func (o *Orchestrator) Run(ctx context.Context, opts Options) (*model.RunSummary, error) {
	if o.cfg.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.cfg.RunTimeout)
		defer cancel()
	}

	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()

	state := &runState{
		summary: &model.RunSummary{
			RunID:       uuid.New(),
			Scope:       o.scope,
			Incremental: !opts.Full,
			StartedAt:   time.Now().UTC(),
		},
		cancel: cancelRun,
	}

	o.logger.Info("collection run started",
		"scope", o.scope,
		"run_id", state.summary.RunID,
		"incremental", state.summary.Incremental,
		"max_tickers", opts.MaxTickers,
	)

	o.ingestSymbols(runCtx, state)

	universe, err := o.store.ListUniverse(ctx, o.markets, opts.MaxTickers)
	if err != nil {
		return nil, err
	}
	state.summary.Considered = len(universe)

	o.collectPrices(runCtx, state, universe, opts)

	if o.snapshots != nil && state.summary.SystemicError == "" {
		o.collectSnapshots(runCtx, state)
	}

	state.summary.Succeeded = int(state.succeeded.Load())
	state.summary.Skipped = int(state.skipped.Load())
	state.summary.Failed = int(state.failed.Load())
	state.summary.PricesWritten = int(state.prices.Load())
	state.summary.SnapshotsWritten = int(state.snapshots.Load())
	state.summary.FinishedAt = time.Now().UTC()

	o.logger.Info("collection run complete",
		"scope", o.scope,
		"run_id", state.summary.RunID,
		"considered", state.summary.Considered,
		"succeeded", state.summary.Succeeded,
		"skipped", state.summary.Skipped,
		"failed", state.summary.Failed,
		"prices_written", state.summary.PricesWritten,
		"snapshots_written", state.summary.SnapshotsWritten,
		"duration", state.summary.Duration(),
	)

	return state.summary, nil
}

// ingestSymbols refreshes the universe from the provider's symbol list. A
// listing failure is logged and the run proceeds on the stored universe.
func (o *Orchestrator) ingestSymbols(ctx context.Context, state *runState) {
	for _, market := range o.markets {
		securities, err := o.prices.ListSymbols(ctx, market)
		if err != nil {
			if provider.IsSystemic(err) {
				state.systemic(err)
				return
			}
			o.logger.Warn("symbol list failed, using stored universe",
				"scope", o.scope,
				"market", market,
				"err", err,
			)
			continue
		}

		if _, err := o.store.UpsertSecurities(ctx, securities); err != nil {
			o.logger.Error("symbol upsert failed",
				"market", market,
				"err", err,
			)
			continue
		}

		listed := make([]string, len(securities))
		for i, sec := range securities {
			listed[i] = sec.Ticker
		}
		delisted, err := o.store.MarkInactive(ctx, market, listed)
		if err != nil {
			o.logger.Error("delisting pass failed", "market", market, "err", err)
		} else if delisted > 0 {
			o.logger.Info("marked securities inactive", "market", market, "count", delisted)
		}
	}
}

// collectPrices fans per-ticker candle collection out over the worker pool.
func (o *Orchestrator) collectPrices(ctx context.Context, state *runState, universe []model.Security, opts Options) {
	today := time.Now().UTC()
	sem := make(chan struct{}, o.cfg.Concurrency)
	var wg sync.WaitGroup

	for _, sec := range universe {
		wg.Add(1)
		go func(ticker string) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				return
			}

			o.collectTicker(ctx, state, ticker, today, opts)
		}(sec.Ticker)
	}

	wg.Wait()
}

// collectTicker resolves and fetches one security's missing days.
func (o *Orchestrator) collectTicker(ctx context.Context, state *runState, ticker string, today time.Time, opts Options) {
	var last *time.Time
	if !opts.Full {
		stored, err := o.store.LastTradeDate(ctx, ticker)
		if err != nil {
			state.fail(ticker, model.FailurePersistence, err)
			return
		}
		last = stored
	}

	r, ok := Resolve(last, o.prices.EarliestDate(), today, o.cfg.Window)
	if !ok {
		state.skipped.Add(1)
		return
	}

	points, err := o.prices.FetchCandles(ctx, ticker, r)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		class := provider.ClassOf(err)
		if class == provider.ClassSystemic {
			state.systemic(err)
		}
		state.fail(ticker, class.FailureClass(), err)
		return
	}

	inserted, err := o.store.UpsertPricePoints(ctx, points)
	if err != nil {
		state.fail(ticker, model.FailurePersistence, err)
		return
	}

	state.prices.Add(int64(inserted))
	state.succeeded.Add(1)
}

// collectSnapshots fills snapshot dates missing since the last stored one.
// Snapshots arrive as whole-market tables, so this walks dates, not tickers.
func (o *Orchestrator) collectSnapshots(ctx context.Context, state *runState) {
	today := time.Now().UTC()

	for _, market := range o.markets {
		last, err := o.store.LastSnapshotDate(ctx, market)
		if err != nil {
			o.logger.Error("last snapshot date failed", "market", market, "err", err)
			continue
		}

		r, ok := Resolve(last, o.prices.EarliestDate(), today, o.cfg.Window)
		if !ok {
			continue
		}

		for day := r.Start; !day.After(r.End); day = day.AddDate(0, 0, 1) {
			if day.Weekday() == time.Saturday || day.Weekday() == time.Sunday {
				continue
			}
			if ctx.Err() != nil {
				return
			}

			snapshots, err := o.snapshots.FetchSnapshots(ctx, market, day)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				if provider.IsSystemic(err) {
					state.systemic(err)
					return
				}
				// Holidays and other non-trading days come back empty or
				// as permanent no-data errors; skip either way.
				if provider.ClassOf(err) == provider.ClassPermanent {
					continue
				}
				o.logger.Warn("snapshot fetch failed",
					"market", market,
					"date", day.Format("2006-01-02"),
					"err", err,
				)
				continue
			}
			if len(snapshots) == 0 {
				continue
			}

			inserted, err := o.store.UpsertSnapshots(ctx, snapshots)
			if err != nil {
				o.logger.Error("snapshot upsert failed",
					"market", market,
					"date", day.Format("2006-01-02"),
					"err", err,
				)
				continue
			}
			state.snapshots.Add(int64(inserted))
		}
	}
}
