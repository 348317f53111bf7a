package trader

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/gregtusar/updown/pkg/metrics"
	"github.com/gregtusar/updown/pkg/models"
	"github.com/sirupsen/logrus"
)

// entryMarkup is the premium paid over the mid to get the entry filled.
const entryMarkup = 1.01

type OrderPlacer interface {
	PlaceOrder(ctx context.Context, order models.OrderRequest) (*models.Order, error)
}

type ExecutorConfig struct {
	TradeAmount      float64
	TakeProfitAmount float64
	StopLossAmount   float64
}

// Bracket is the priced entry with its exits.
type Bracket struct {
	Entry      float64
	TakeProfit float64
	StopLoss   float64
	Quantity   float64
}

// PriceBracket sizes a trade for the budget. Quantity is zero when the
// budget does not cover a single share.
func PriceBracket(marketPrice float64, cfg ExecutorConfig) Bracket {
	entry := models.RoundToTick(marketPrice * entryMarkup)
	b := Bracket{
		Entry:      entry,
		TakeProfit: models.RoundToTick(math.Min(marketPrice+cfg.TakeProfitAmount, models.MaxPrice)),
		StopLoss:   models.RoundToTick(math.Max(marketPrice-cfg.StopLossAmount, models.MinPrice)),
	}
	if entry > 0 {
		b.Quantity = math.Floor(cfg.TradeAmount / entry)
	}
	return b
}

// Executor places the entry, take-profit and stop-loss orders for an
// opportunity and keeps the positions ledger.
type Executor struct {
	placer    OrderPlacer
	cooldown  *Cooldown
	cfg       ExecutorConfig
	positions []models.Position
	mu        sync.RWMutex
	inflight  sync.WaitGroup
	now       func() time.Time
	metrics   *metrics.Recorder
	logger    *logrus.Logger
}

func NewExecutor(placer OrderPlacer, cooldown *Cooldown, cfg ExecutorConfig, recorder *metrics.Recorder, logger *logrus.Logger) *Executor {
	return &Executor{
		placer:   placer,
		cooldown: cooldown,
		cfg:      cfg,
		now:      time.Now,
		metrics:  recorder,
		logger:   logger,
	}
}

// Execute starts the cooldown and places the three orders. A nil position
// with a nil error means the trade was too small to place.
func (e *Executor) Execute(ctx context.Context, opp models.Opportunity) (*models.Position, error) {
	e.cooldown.Mark(e.now())
	return e.place(ctx, opp)
}

// Dispatch starts the cooldown synchronously and places the orders in the
// background. Placement errors are logged.
func (e *Executor) Dispatch(ctx context.Context, opp models.Opportunity) {
	e.cooldown.Mark(e.now())
	e.inflight.Add(1)
	go func() {
		defer e.inflight.Done()
		e.place(ctx, opp)
	}()
}

// Wait blocks until dispatched placements finish.
func (e *Executor) Wait() {
	e.inflight.Wait()
}

func (e *Executor) place(ctx context.Context, opp models.Opportunity) (*models.Position, error) {
	bracket := PriceBracket(opp.MarketPrice, e.cfg)
	log := e.logger.WithFields(logrus.Fields{
		"side":         opp.Side,
		"token_id":     opp.TokenID,
		"market_price": opp.MarketPrice,
		"entry_price":  bracket.Entry,
	})

	if bracket.Quantity < 1 {
		log.WithField("trade_amount", e.cfg.TradeAmount).Warn("Trade amount too small for one share, skipping")
		return nil, nil
	}

	entry, err := e.submit(ctx, "entry", models.OrderRequest{
		TokenID: opp.TokenID,
		Side:    models.OrderSideBuy,
		Type:    models.OrderTypeGTC,
		Price:   bracket.Entry,
		Size:    bracket.Quantity,
	})
	if err != nil {
		log.WithError(err).Error("Failed to place entry order")
		return nil, fmt.Errorf("entry order: %w", err)
	}
	log = log.WithField("entry_order_id", entry.OrderID)

	exitSide := models.OrderSideBuy.Opposite()
	takeProfit, err := e.submit(ctx, "take_profit", models.OrderRequest{
		TokenID: opp.TokenID,
		Side:    exitSide,
		Type:    models.OrderTypeGTC,
		Price:   bracket.TakeProfit,
		Size:    bracket.Quantity,
	})
	if err != nil {
		log.WithError(err).Error("Failed to place take-profit order, position is unprotected")
		return nil, fmt.Errorf("take-profit order: %w", err)
	}
	log = log.WithField("take_profit_order_id", takeProfit.OrderID)

	stopLoss, err := e.submit(ctx, "stop_loss", models.OrderRequest{
		TokenID: opp.TokenID,
		Side:    exitSide,
		Type:    models.OrderTypeGTC,
		Price:   bracket.StopLoss,
		Size:    bracket.Quantity,
	})
	if err != nil {
		log.WithError(err).Error("Failed to place stop-loss order, position is unprotected")
		return nil, fmt.Errorf("stop-loss order: %w", err)
	}

	position := models.Position{
		Side:              opp.Side,
		TokenID:           opp.TokenID,
		EntryOrderID:      entry.OrderID,
		TakeProfitOrderID: takeProfit.OrderID,
		StopLossOrderID:   stopLoss.OrderID,
		EntryPrice:        bracket.Entry,
		TargetPrice:       bracket.TakeProfit,
		StopPrice:         bracket.StopLoss,
		Size:              bracket.Quantity,
		Status:            models.PositionStatusActive,
		CreatedAt:         e.now(),
	}

	e.mu.Lock()
	e.positions = append(e.positions, position)
	e.mu.Unlock()

	log.WithFields(logrus.Fields{
		"stop_loss_order_id": stopLoss.OrderID,
		"size":               bracket.Quantity,
		"target_price":       bracket.TakeProfit,
		"stop_price":         bracket.StopLoss,
	}).Info("Position opened")

	return &position, nil
}

func (e *Executor) submit(ctx context.Context, kind string, req models.OrderRequest) (*models.Order, error) {
	order, err := e.placer.PlaceOrder(ctx, req)
	e.metrics.RecordOrder(kind, err == nil)
	return order, err
}

// Positions returns a copy of the ledger, oldest first.
func (e *Executor) Positions() []models.Position {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]models.Position, len(e.positions))
	copy(out, e.positions)
	return out
}
