package trader

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/gregtusar/updown/pkg/models"
	"github.com/gregtusar/updown/pkg/polymarket"
	"github.com/sirupsen/logrus"
)

var ErrInsufficientBalance = errors.New("insufficient balance")

type BalanceChecker interface {
	CheckBalances(ctx context.Context, address string) (models.Balances, error)
}

// BalanceMonitor caches the latest balance verdict for the detector gate.
type BalanceMonitor struct {
	checker    BalanceChecker
	address    string
	minimum    float64
	buffer     float64
	sufficient atomic.Bool
	refreshing atomic.Bool
	balances   models.Balances
	mu         sync.RWMutex
	logger     *logrus.Logger
}

func NewBalanceMonitor(checker BalanceChecker, address string, minimum, buffer float64, logger *logrus.Logger) *BalanceMonitor {
	return &BalanceMonitor{
		checker: checker,
		address: address,
		minimum: minimum,
		buffer:  buffer,
		logger:  logger,
	}
}

// Refresh reloads balances. A failed lookup keeps the previous verdict.
func (m *BalanceMonitor) Refresh(ctx context.Context) error {
	balances, err := m.checker.CheckBalances(ctx, m.address)
	if err != nil {
		return fmt.Errorf("failed to check balances: %w", err)
	}

	check := polymarket.CheckSufficientBalance(balances, m.minimum, m.buffer)
	for _, w := range check.Warnings {
		m.logger.WithField("address", m.address).Warn(w)
	}

	m.mu.Lock()
	m.balances = balances
	m.mu.Unlock()
	m.sufficient.Store(check.Sufficient)

	m.logger.WithFields(logrus.Fields{
		"usdc":       balances.USDC,
		"gas":        balances.Gas,
		"sufficient": check.Sufficient,
	}).Debug("Balances refreshed")

	if !check.Sufficient {
		return fmt.Errorf("%w: %.2f USDC, need %.2f", ErrInsufficientBalance, balances.USDC, m.minimum)
	}
	return nil
}

// RefreshAsync runs Refresh in the background unless one is already running.
func (m *BalanceMonitor) RefreshAsync(ctx context.Context) {
	if !m.refreshing.CompareAndSwap(false, true) {
		return
	}
	go func() {
		defer m.refreshing.Store(false)
		if err := m.Refresh(ctx); err != nil {
			m.logger.WithError(err).Warn("Balance check failed")
		}
	}()
}

func (m *BalanceMonitor) Sufficient() bool {
	return m.sufficient.Load()
}

func (m *BalanceMonitor) Balances() models.Balances {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.balances
}
