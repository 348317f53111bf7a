package models

import (
	"time"
)

// CandleTick is one update of the reference candle from the price feed.
type CandleTick struct {
	Open      float64
	Close     float64
	High      float64
	Low       float64
	StartTime time.Time
	CloseTime time.Time
}

// Candle is the live candle owned by the oracle. Zero prices mean unknown.
type Candle struct {
	OpenPrice    float64
	CurrentPrice float64
	HighPrice    float64
	LowPrice     float64
	StartTime    time.Time
	CloseTime    time.Time
}

// Initialized reports whether both open and current prices are known.
func (c Candle) Initialized() bool {
	return c.OpenPrice > 0 && c.CurrentPrice > 0
}

// PriceSample is one entry of the oracle's price history.
type PriceSample struct {
	Price float64
	Time  time.Time
}

// ProbabilitySnapshot is the oracle's estimate at a single instant.
type ProbabilitySnapshot struct {
	ProbUp               float64   `json:"prob_up"`
	ProbDown             float64   `json:"prob_down"`
	CurrentPrice         float64   `json:"current_price"`
	OpenPrice            float64   `json:"open_price"`
	PriceChange          float64   `json:"price_change"`
	PriceChangePercent   float64   `json:"price_change_percent"`
	TimeRemainingMs      int64     `json:"time_remaining_ms"`
	TimeRemainingPercent float64   `json:"time_remaining_percent"`
	Confidence           float64   `json:"confidence"`
	Volatility           float64   `json:"volatility"`
	Timestamp            time.Time `json:"timestamp"`
}

// Probability returns the probability for the given side.
func (s ProbabilitySnapshot) Probability(side Side) float64 {
	if side == SideUp {
		return s.ProbUp
	}
	return s.ProbDown
}
