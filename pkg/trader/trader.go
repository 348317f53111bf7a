package trader

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gregtusar/updown/pkg/metrics"
	"github.com/gregtusar/updown/pkg/models"
	"github.com/gregtusar/updown/pkg/oracle"
	"github.com/gregtusar/updown/pkg/tracker"
	"github.com/sirupsen/logrus"
)

const feedBufferSize = 256

type CandleStream interface {
	Subscribe(handler func(models.CandleTick))
	Run(ctx context.Context)
	Stop()
	Connected() bool
}

type BookStream interface {
	Subscribe(handler func([]byte))
	SetAssets(assetIDs []string)
	Run(ctx context.Context)
	Stop()
	Connected() bool
}

type MarketFinder interface {
	FindMarket(ctx context.Context, now time.Time) (*models.Market, error)
}

type Config struct {
	Threshold       float64
	Cooldown        time.Duration
	PollInterval    time.Duration
	BalanceInterval time.Duration
	Executor        ExecutorConfig
}

// Deps are the collaborators the trader drives.
type Deps struct {
	Oracle   *oracle.Oracle
	Tracker  *tracker.Tracker
	Placer   OrderPlacer
	Balances *BalanceMonitor
	Finder   MarketFinder
	Candles  CandleStream
	Books    BookStream
	Metrics  *metrics.Recorder
}

// Status is the trader state reported by the health endpoint.
type Status struct {
	Running           bool                        `json:"running"`
	Market            string                      `json:"market"`
	ReferenceFeed     bool                        `json:"reference_feed_connected"`
	VenueFeed         bool                        `json:"venue_feed_connected"`
	OracleReady       bool                        `json:"oracle_ready"`
	BalanceSufficient bool                        `json:"balance_sufficient"`
	Balances          models.Balances             `json:"balances"`
	Candle            models.Candle               `json:"candle"`
	Prices            map[string]float64          `json:"prices"`
	LastTrade         time.Time                   `json:"last_trade"`
	Positions         int                         `json:"positions"`
	Snapshot          *models.ProbabilitySnapshot `json:"snapshot,omitempty"`
}

// Trader wires the feeds to the oracle and tracker and runs the decision loop.
// All oracle and tracker writes happen on the loop goroutine.
type Trader struct {
	cfg      Config
	oracle   *oracle.Oracle
	tracker  *tracker.Tracker
	cooldown *Cooldown
	detector *Detector
	executor *Executor
	balances *BalanceMonitor
	finder   MarketFinder
	candles  CandleStream
	books    BookStream
	metrics  *metrics.Recorder
	logger   *logrus.Logger

	market   *models.Market
	mu       sync.RWMutex
	now      func() time.Time
	running  atomic.Bool
	rolling  atomic.Bool
	candleCh chan models.CandleTick
	bookCh   chan []byte
	marketCh chan *models.Market
	stopCh   chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

func New(deps Deps, cfg Config, logger *logrus.Logger) *Trader {
	cooldown := NewCooldown(cfg.Cooldown)
	t := &Trader{
		cfg:      cfg,
		oracle:   deps.Oracle,
		tracker:  deps.Tracker,
		cooldown: cooldown,
		detector: NewDetector(deps.Oracle, deps.Tracker, deps.Balances, cooldown, cfg.Threshold, deps.Metrics, logger),
		executor: NewExecutor(deps.Placer, cooldown, cfg.Executor, deps.Metrics, logger),
		balances: deps.Balances,
		finder:   deps.Finder,
		candles:  deps.Candles,
		books:    deps.Books,
		metrics:  deps.Metrics,
		logger:   logger,
		now:      time.Now,
		candleCh: make(chan models.CandleTick, feedBufferSize),
		bookCh:   make(chan []byte, feedBufferSize),
		marketCh: make(chan *models.Market, 1),
		stopCh:   make(chan struct{}),
		done:     make(chan struct{}),
	}
	t.oracle.OnSnapshot(t.observeSnapshot)
	t.tracker.OnPrice(t.observePrice)
	return t
}

// Start resolves the market, checks balances and starts the feeds and the
// loop. Any error here is a startup failure.
func (t *Trader) Start(ctx context.Context) error {
	t.logger.Info("Starting up/down trader")

	market, err := t.finder.FindMarket(ctx, t.now())
	if err != nil {
		return fmt.Errorf("failed to find market: %w", err)
	}
	if err := t.balances.Refresh(ctx); err != nil {
		return err
	}

	t.setMarket(market)

	t.candles.Subscribe(func(tick models.CandleTick) {
		select {
		case t.candleCh <- tick:
		case <-t.stopCh:
		}
	})
	t.books.Subscribe(func(message []byte) {
		select {
		case t.bookCh <- message:
		case <-t.stopCh:
		}
	})

	t.running.Store(true)
	go t.candles.Run(ctx)
	go t.books.Run(ctx)
	go t.loop(ctx)

	return nil
}

// Stop halts the loop and both feeds. Orders already being placed finish.
func (t *Trader) Stop() {
	t.stopOnce.Do(func() {
		t.logger.Info("Stopping up/down trader")
		t.running.Store(false)
		close(t.stopCh)
		t.candles.Stop()
		t.books.Stop()
	})
}

// Done is closed when the loop exits.
func (t *Trader) Done() <-chan struct{} {
	return t.done
}

// Wait blocks until in-flight order placements complete.
func (t *Trader) Wait() {
	t.executor.Wait()
}

func (t *Trader) loop(ctx context.Context) {
	defer close(t.done)
	defer t.running.Store(false)

	poll := time.NewTicker(t.cfg.PollInterval)
	defer poll.Stop()
	balance := time.NewTicker(t.cfg.BalanceInterval)
	defer balance.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.stopCh:
			return
		case tick := <-t.candleCh:
			t.oracle.Ingest(tick)
		case msg := <-t.bookCh:
			t.tracker.Ingest(msg)
		case market := <-t.marketCh:
			t.switchMarket(market)
		case <-poll.C:
			t.poll(ctx)
		case <-balance.C:
			t.balances.RefreshAsync(ctx)
		}
	}
}

func (t *Trader) poll(ctx context.Context) {
	now := t.now()
	market := t.Market()
	if !market.EndDate.IsZero() && !now.Before(market.EndDate) {
		t.rollover(ctx, now)
		return
	}

	opp := t.detector.Evaluate(now, market)
	if opp == nil {
		return
	}
	t.executor.Dispatch(context.WithoutCancel(ctx), *opp)
}

func (t *Trader) observeSnapshot(snapshot models.ProbabilitySnapshot) {
	t.metrics.SetProbability(string(models.SideUp), snapshot.ProbUp)
	t.metrics.SetProbability(string(models.SideDown), snapshot.ProbDown)
	t.metrics.SetVolatility(snapshot.Volatility)
}

func (t *Trader) observePrice(assetID string, mid float64) {
	market := t.Market()
	if market == nil {
		return
	}
	for _, side := range scanOrder {
		if market.TokenID(side) == assetID {
			t.metrics.SetMarketPrice(string(side), mid)
		}
	}
}

// rollover looks up the next hour's market off the loop. Failures are retried
// on the next poll.
func (t *Trader) rollover(ctx context.Context, now time.Time) {
	if !t.rolling.CompareAndSwap(false, true) {
		return
	}
	go func() {
		defer t.rolling.Store(false)

		market, err := t.finder.FindMarket(ctx, now)
		if err != nil {
			t.logger.WithError(err).Warn("Market rollover failed, retrying")
			return
		}
		if !market.EndDate.IsZero() && !now.Before(market.EndDate) {
			t.logger.WithField("slug", market.Slug).Debug("Discovered market already ended, retrying")
			return
		}
		select {
		case t.marketCh <- market:
		case <-t.stopCh:
		case <-ctx.Done():
		}
	}()
}

func (t *Trader) switchMarket(market *models.Market) {
	t.setMarket(market)
	t.logger.WithFields(logrus.Fields{
		"slug":     market.Slug,
		"end_date": market.EndDate,
	}).Info("Rolled over to new market")
}

func (t *Trader) setMarket(market *models.Market) {
	t.mu.Lock()
	t.market = market
	t.mu.Unlock()
	t.tracker.Retain(market.TokenIDs()...)
	t.books.SetAssets(market.TokenIDs())
}

// Market returns the market currently traded.
func (t *Trader) Market() *models.Market {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.market
}

// Positions returns a copy of the positions ledger.
func (t *Trader) Positions() []models.Position {
	return t.executor.Positions()
}

func (t *Trader) Status() Status {
	status := Status{
		Running:           t.running.Load(),
		ReferenceFeed:     t.candles.Connected(),
		VenueFeed:         t.books.Connected(),
		OracleReady:       t.oracle.HasData(),
		BalanceSufficient: t.balances.Sufficient(),
		Balances:          t.balances.Balances(),
		Candle:            t.oracle.Candle(),
		Prices:            t.tracker.Snapshot(),
		LastTrade:         t.cooldown.LastTrade(),
		Positions:         len(t.executor.Positions()),
	}
	if market := t.Market(); market != nil {
		status.Market = market.Slug
	}
	if status.OracleReady {
		snapshot := t.oracle.Snapshot()
		status.Snapshot = &snapshot
	}
	return status
}
