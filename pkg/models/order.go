package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// TickSize is the venue's minimum price increment, in decimal places.
const TickSize int32 = 2

const (
	MinPrice = 0.01
	MaxPrice = 0.99
)

type Order struct {
	OrderID   string
	TokenID   string
	Side      OrderSide
	Type      OrderType
	Price     float64
	Size      float64
	Status    OrderStatus
	CreatedAt time.Time
}

type OrderSide string

const (
	OrderSideBuy  OrderSide = "BUY"
	OrderSideSell OrderSide = "SELL"
)

// Opposite returns the side that closes a position opened on s.
func (s OrderSide) Opposite() OrderSide {
	if s == OrderSideBuy {
		return OrderSideSell
	}
	return OrderSideBuy
}

type OrderType string

const OrderTypeGTC OrderType = "GTC"

type OrderStatus string

const OrderStatusLive OrderStatus = "live"

type OrderRequest struct {
	TokenID string
	Side    OrderSide
	Type    OrderType
	Price   float64
	Size    float64
}

// RoundToTick rounds a price half away from zero to the venue tick size.
func RoundToTick(price float64) float64 {
	return decimal.NewFromFloat(price).Round(TickSize).InexactFloat64()
}
