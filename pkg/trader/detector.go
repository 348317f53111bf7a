package trader

import (
	"time"

	"github.com/gregtusar/updown/pkg/metrics"
	"github.com/gregtusar/updown/pkg/models"
	"github.com/sirupsen/logrus"
)

// scanOrder is the fixed tie-break between sides.
var scanOrder = []models.Side{models.SideUp, models.SideDown}

type ProbabilitySource interface {
	HasData() bool
	Snapshot() models.ProbabilitySnapshot
}

type PriceSource interface {
	PriceOf(assetID string) (float64, bool)
}

type BalanceGate interface {
	Sufficient() bool
}

// Detector compares oracle probabilities with venue prices.
type Detector struct {
	oracle    ProbabilitySource
	prices    PriceSource
	balance   BalanceGate
	cooldown  *Cooldown
	threshold float64
	metrics   *metrics.Recorder
	logger    *logrus.Logger
}

func NewDetector(oracle ProbabilitySource, prices PriceSource, balance BalanceGate, cooldown *Cooldown, threshold float64, recorder *metrics.Recorder, logger *logrus.Logger) *Detector {
	return &Detector{
		oracle:    oracle,
		prices:    prices,
		balance:   balance,
		cooldown:  cooldown,
		threshold: threshold,
		metrics:   recorder,
		logger:    logger,
	}
}

// Evaluate returns the first side whose oracle probability exceeds the market
// price by at least the threshold, or nil.
func (d *Detector) Evaluate(now time.Time, market *models.Market) *models.Opportunity {
	if d.cooldown.Active(now) {
		return nil
	}
	if !d.oracle.HasData() {
		return nil
	}
	if !d.balance.Sufficient() {
		return nil
	}
	if market == nil {
		return nil
	}

	snapshot := d.oracle.Snapshot()
	for _, side := range scanOrder {
		tokenID := market.TokenID(side)
		price, ok := d.prices.PriceOf(tokenID)
		if !ok {
			continue
		}
		prob := snapshot.Probability(side)
		diff := prob - price
		if diff < d.threshold || prob <= 0 || price <= 0 {
			continue
		}

		d.metrics.RecordOpportunity(string(side))
		d.logger.WithFields(logrus.Fields{
			"side":         side,
			"token_id":     tokenID,
			"probability":  prob,
			"market_price": price,
			"diff":         diff,
		}).Info("Opportunity detected")

		return &models.Opportunity{
			Side:        side,
			TokenID:     tokenID,
			Probability: prob,
			MarketPrice: price,
			Diff:        diff,
		}
	}
	return nil
}
