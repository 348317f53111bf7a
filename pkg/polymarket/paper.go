package polymarket

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gregtusar/updown/pkg/models"
	"github.com/sirupsen/logrus"
)

// PaperPlacer accepts orders without sending them anywhere.
type PaperPlacer struct {
	orders []models.Order
	mu     sync.Mutex
	logger *logrus.Logger
}

func NewPaperPlacer(logger *logrus.Logger) *PaperPlacer {
	return &PaperPlacer{logger: logger}
}

func (p *PaperPlacer) PlaceOrder(_ context.Context, order models.OrderRequest) (*models.Order, error) {
	orderType := order.Type
	if orderType == "" {
		orderType = models.OrderTypeGTC
	}
	placed := models.Order{
		OrderID:   "paper-" + uuid.NewString(),
		TokenID:   order.TokenID,
		Side:      order.Side,
		Type:      orderType,
		Price:     order.Price,
		Size:      order.Size,
		Status:    models.OrderStatusLive,
		CreatedAt: time.Now(),
	}

	p.mu.Lock()
	p.orders = append(p.orders, placed)
	p.mu.Unlock()

	p.logger.WithFields(logrus.Fields{
		"order_id": placed.OrderID,
		"token_id": placed.TokenID,
		"side":     placed.Side,
		"price":    placed.Price,
		"size":     placed.Size,
	}).Info("Paper order placed")

	return &placed, nil
}

func (p *PaperPlacer) Orders() []models.Order {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]models.Order, len(p.orders))
	copy(out, p.orders)
	return out
}

// PaperWallet reports fixed balances for dry runs.
type PaperWallet struct {
	Balances models.Balances
}

func (w *PaperWallet) CheckBalances(_ context.Context, address string) (models.Balances, error) {
	b := w.Balances
	b.Address = address
	return b, nil
}
