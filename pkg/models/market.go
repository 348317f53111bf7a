package models

import (
	"time"
)

// Side identifies one leg of the binary up/down outcome.
type Side string

const (
	SideUp   Side = "UP"
	SideDown Side = "DOWN"
)

// Market is the hourly BTC up/down market the agent trades.
type Market struct {
	Slug        string
	Question    string
	ConditionID string
	UpTokenID   string
	DownTokenID string
	EndDate     time.Time
}

// TokenID returns the instrument identifier for a side.
func (m *Market) TokenID(side Side) string {
	if side == SideUp {
		return m.UpTokenID
	}
	return m.DownTokenID
}

// TokenIDs lists the instruments in scan order: up first, then down.
func (m *Market) TokenIDs() []string {
	return []string{m.UpTokenID, m.DownTokenID}
}

// Opportunity is a detected edge between the oracle and the venue for one side.
type Opportunity struct {
	Side        Side
	TokenID     string
	Probability float64
	MarketPrice float64
	Diff        float64
}

type PositionStatus string

const (
	PositionStatusActive PositionStatus = "active"
)

type Position struct {
	Side              Side           `json:"side"`
	TokenID           string         `json:"token_id"`
	EntryOrderID      string         `json:"entry_order_id"`
	TakeProfitOrderID string         `json:"take_profit_order_id"`
	StopLossOrderID   string         `json:"stop_loss_order_id"`
	EntryPrice        float64        `json:"entry_price"`
	TargetPrice       float64        `json:"target_price"`
	StopPrice         float64        `json:"stop_price"`
	Size              float64        `json:"size"`
	Status            PositionStatus `json:"status"`
	CreatedAt         time.Time      `json:"created_at"`
}

// Balances holds the wallet's collateral and gas balances.
type Balances struct {
	Address string  `json:"address"`
	USDC    float64 `json:"usdc"`
	Gas     float64 `json:"gas"`
}
