package trader

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gregtusar/updown/pkg/metrics"
	"github.com/gregtusar/updown/pkg/models"
	"github.com/prometheus/client_golang/prometheus"
)

var errVenue = errors.New("venue unavailable")

var testNow = time.Date(2026, 10, 18, 15, 30, 0, 0, time.UTC)

func newRecorder() *metrics.Recorder {
	return metrics.New(prometheus.NewRegistry())
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock(t time.Time) *clock {
	return &clock{now: t}
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

// fakePlacer fails the order at position failAt (1-based) when set.
type fakePlacer struct {
	mu     sync.Mutex
	orders []models.OrderRequest
	failAt int
}

func (p *fakePlacer) PlaceOrder(_ context.Context, req models.OrderRequest) (*models.Order, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.orders = append(p.orders, req)
	if p.failAt == len(p.orders) {
		return nil, errVenue
	}
	return &models.Order{
		OrderID: fmt.Sprintf("order-%d", len(p.orders)),
		TokenID: req.TokenID,
		Side:    req.Side,
		Price:   req.Price,
		Size:    req.Size,
		Status:  models.OrderStatusLive,
	}, nil
}

func (p *fakePlacer) placed() []models.OrderRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]models.OrderRequest, len(p.orders))
	copy(out, p.orders)
	return out
}

type fakeChecker struct {
	mu       sync.Mutex
	balances models.Balances
	err      error
}

func (c *fakeChecker) CheckBalances(_ context.Context, address string) (models.Balances, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	b := c.balances
	b.Address = address
	return b, c.err
}

type fakeOracle struct {
	hasData  bool
	snapshot models.ProbabilitySnapshot
}

func (o *fakeOracle) HasData() bool                        { return o.hasData }
func (o *fakeOracle) Snapshot() models.ProbabilitySnapshot { return o.snapshot }

type fakePrices map[string]float64

func (p fakePrices) PriceOf(id string) (float64, bool) {
	price, ok := p[id]
	return price, ok
}

type fakeGate bool

func (g fakeGate) Sufficient() bool { return bool(g) }

type fakeFinder struct {
	mu      sync.Mutex
	markets []*models.Market
	calls   int
	err     error
}

func (f *fakeFinder) FindMarket(context.Context, time.Time) (*models.Market, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	i := f.calls
	if i >= len(f.markets) {
		i = len(f.markets) - 1
	}
	f.calls++
	return f.markets[i], nil
}

type streamState struct {
	mu        sync.Mutex
	stopCh    chan struct{}
	stopOnce  sync.Once
	connected bool
}

func (s *streamState) Run(ctx context.Context) {
	s.mu.Lock()
	s.connected = true
	s.mu.Unlock()
	select {
	case <-ctx.Done():
	case <-s.stopCh:
	}
	s.mu.Lock()
	s.connected = false
	s.mu.Unlock()
}

func (s *streamState) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
}

func (s *streamState) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

type fakeCandles struct {
	streamState
	handler func(models.CandleTick)
}

func newFakeCandles() *fakeCandles {
	return &fakeCandles{streamState: streamState{stopCh: make(chan struct{})}}
}

func (f *fakeCandles) Subscribe(handler func(models.CandleTick)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handler = handler
}

func (f *fakeCandles) push(tick models.CandleTick) {
	f.mu.Lock()
	h := f.handler
	f.mu.Unlock()
	h(tick)
}

type fakeBooks struct {
	streamState
	handler func([]byte)
	assets  []string
}

func newFakeBooks() *fakeBooks {
	return &fakeBooks{streamState: streamState{stopCh: make(chan struct{})}}
}

func (f *fakeBooks) Subscribe(handler func([]byte)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handler = handler
}

func (f *fakeBooks) SetAssets(ids []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.assets = ids
}

func (f *fakeBooks) currentAssets() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.assets
}

func (f *fakeBooks) push(msg string) {
	f.mu.Lock()
	h := f.handler
	f.mu.Unlock()
	h([]byte(msg))
}
