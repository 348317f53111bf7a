package oracle

import (
	"math"
	"sync"
	"time"

	"github.com/gregtusar/updown/pkg/models"
	"github.com/sirupsen/logrus"
)

const (
	MinProbability = 0.01
	MaxProbability = 0.99

	DefaultHistorySize = 300

	// Above this fraction of time remaining the candle has only just opened.
	freshCandleFraction = 0.98
	minExpectedStdDev   = 0.01
	// Percent move at which price-based confidence saturates.
	confidenceMovePercent = 0.5
)

// SnapshotHandler receives a fresh snapshot after every ingested tick.
type SnapshotHandler func(models.ProbabilitySnapshot)

// Oracle turns candle updates from the reference feed into up/down probabilities
// for the current candle.
type Oracle struct {
	candle      models.Candle
	history     []models.PriceSample
	historySize int
	handlers    []SnapshotHandler
	now         func() time.Time
	logger      *logrus.Logger
	mu          sync.RWMutex
}

func New(historySize int, logger *logrus.Logger) *Oracle {
	if historySize <= 0 {
		historySize = DefaultHistorySize
	}
	return &Oracle{
		history:     make([]models.PriceSample, 0, historySize),
		historySize: historySize,
		now:         time.Now,
		logger:      logger,
	}
}

// SetClock replaces the wall clock used for history stamps and snapshots.
func (o *Oracle) SetClock(now func() time.Time) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.now = now
}

// OnSnapshot registers a handler invoked after each ingested tick.
func (o *Oracle) OnSnapshot(handler SnapshotHandler) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.handlers = append(o.handlers, handler)
}

// Ingest replaces the live candle with the tick and records its close price.
func (o *Oracle) Ingest(tick models.CandleTick) {
	o.mu.Lock()
	now := o.now()
	o.candle = models.Candle{
		OpenPrice:    tick.Open,
		CurrentPrice: tick.Close,
		HighPrice:    tick.High,
		LowPrice:     tick.Low,
		StartTime:    tick.StartTime,
		CloseTime:    tick.CloseTime,
	}
	o.history = append(o.history, models.PriceSample{Price: tick.Close, Time: now})
	if len(o.history) > o.historySize {
		n := copy(o.history, o.history[len(o.history)-o.historySize:])
		o.history = o.history[:n]
	}
	handlers := o.handlers
	samples := len(o.history)
	o.mu.Unlock()

	o.logger.WithFields(logrus.Fields{
		"open":    tick.Open,
		"close":   tick.Close,
		"samples": samples,
	}).Debug("Candle updated")

	if len(handlers) == 0 {
		return
	}
	snapshot := o.Snapshot()
	for _, h := range handlers {
		h(snapshot)
	}
}

// HasData reports whether the candle has both an open and a current price.
func (o *Oracle) HasData() bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.candle.Initialized()
}

// Candle returns the live candle.
func (o *Oracle) Candle() models.Candle {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.candle
}

// History returns a copy of the price history, oldest first.
func (o *Oracle) History() []models.PriceSample {
	o.mu.RLock()
	defer o.mu.RUnlock()
	out := make([]models.PriceSample, len(o.history))
	copy(out, o.history)
	return out
}

// Snapshot computes the probability estimate for the current instant.
func (o *Oracle) Snapshot() models.ProbabilitySnapshot {
	o.mu.RLock()
	candle := o.candle
	volatility := RealizedVolatility(o.history)
	now := o.now()
	o.mu.RUnlock()

	return computeSnapshot(candle, volatility, now)
}

func computeSnapshot(candle models.Candle, volatility float64, now time.Time) models.ProbabilitySnapshot {
	duration := candle.CloseTime.Sub(candle.StartTime)
	remaining := candle.CloseTime.Sub(now)
	if remaining < 0 {
		remaining = 0
	}
	var timeFraction float64
	if duration > 0 {
		timeFraction = float64(remaining) / float64(duration)
	}

	open, current := candle.OpenPrice, candle.CurrentPrice
	priceChange := current - open
	var priceChangePercent float64
	if open != 0 {
		priceChangePercent = priceChange / open * 100
	}

	var probUp float64
	switch {
	case open == 0 || current == 0:
		probUp = 0.5
	case remaining <= 0:
		// The candle has closed, so the outcome is settled and left unclamped.
		probUp = 0
		if priceChange > 0 {
			probUp = 1
		}
	case timeFraction > freshCandleFraction:
		probUp = 0.5
	default:
		expectedStdDev := volatility * open * math.Sqrt(timeFraction)
		if expectedStdDev < minExpectedStdDev {
			probUp = MinProbability
			if priceChange > 0 {
				probUp = MaxProbability
			}
		} else {
			probUp = NormalCDF(priceChange / expectedStdDev)
		}
	}
	if remaining > 0 || !candle.Initialized() {
		probUp = clamp(probUp, MinProbability, MaxProbability)
	}

	confidence := math.Max(1-timeFraction, math.Min(math.Abs(priceChangePercent)/confidenceMovePercent, 1))

	return models.ProbabilitySnapshot{
		ProbUp:               probUp,
		ProbDown:             1 - probUp,
		CurrentPrice:         current,
		OpenPrice:            open,
		PriceChange:          priceChange,
		PriceChangePercent:   priceChangePercent,
		TimeRemainingMs:      remaining.Milliseconds(),
		TimeRemainingPercent: timeFraction * 100,
		Confidence:           confidence,
		Volatility:           volatility,
		Timestamp:            now,
	}
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
