package oracle

import (
	"math"

	"github.com/gregtusar/updown/pkg/models"
)

const (
	// BaseVolatility is the hourly volatility floor (~0.3%).
	BaseVolatility = 0.003

	minVolatilitySamples = 10
	minVolatilityReturns = 5
	msPerHour            = 3600000.0
)

// RealizedVolatility estimates hourly volatility from the price history.
// It never returns less than BaseVolatility.
func RealizedVolatility(history []models.PriceSample) float64 {
	if len(history) < minVolatilitySamples {
		return BaseVolatility
	}

	returns := make([]float64, 0, len(history)-1)
	for i := 1; i < len(history); i++ {
		prev, cur := history[i-1].Price, history[i].Price
		if prev <= 0 || cur <= 0 {
			continue
		}
		returns = append(returns, math.Log(cur/prev))
	}
	if len(returns) < minVolatilityReturns {
		return BaseVolatility
	}

	var mean float64
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))

	var variance float64
	for _, r := range returns {
		variance += (r - mean) * (r - mean)
	}
	variance /= float64(len(returns))
	stdDev := math.Sqrt(variance)

	timespanMs := float64(history[len(history)-1].Time.Sub(history[0].Time).Milliseconds())
	if timespanMs <= 0 {
		return BaseVolatility
	}

	updatesPerHour := (msPerHour / timespanMs) * float64(len(history))
	hourlyVol := stdDev * math.Sqrt(updatesPerHour)

	return math.Max(hourlyVol, BaseVolatility)
}
