// Package models provides domain models for the simulator.
package models

import (
	"time"
)

// OrderSide represents the side of a manual trade.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "BUY"
	OrderSideSell OrderSide = "SELL"
)

// CloseReason is the order type that closed a position automatically.
type CloseReason string

const (
	CloseStopLoss   CloseReason = "stop_loss"
	CloseTakeProfit CloseReason = "take_profit"
)

// Quote is one daily closing price.
type Quote struct {
	Date  time.Time `json:"date"`
	Close float64   `json:"close"`
}

// HistoryPoint is one recorded portfolio valuation.
type HistoryPoint struct {
	Date  time.Time `json:"date"`
	Value float64   `json:"value"`
}

// Transaction is a manual buy or sell booked against the portfolio.
type Transaction struct {
	Instrument string    `json:"instrument"`
	Side       OrderSide `json:"side"`
	Shares     int       `json:"shares"`
	Price      float64   `json:"price"`
	Date       time.Time `json:"date"`
}

// ClosureEvent describes a position removed by a stop-loss or take-profit.
// No proceeds are booked; the event is the only record of the exit.
type ClosureEvent struct {
	Instrument  string      `json:"instrument"`
	Date        time.Time   `json:"date"`
	Reason      CloseReason `json:"reason"`
	Price       float64     `json:"price"`
	Shares      int         `json:"shares"`
	AverageCost float64     `json:"average_cost"`
}

// RealizedPnL is what the closure would have realized at the trigger price.
func (e ClosureEvent) RealizedPnL() float64 {
	return float64(e.Shares) * (e.Price - e.AverageCost)
}

// PositionView is a point-in-time view of one holding for presentation.
type PositionView struct {
	Instrument  string   `json:"instrument"`
	Shares      int      `json:"shares"`
	AverageCost float64  `json:"average_cost"`
	StopLoss    *float64 `json:"stop_loss,omitempty"`
	TakeProfit  *float64 `json:"take_profit,omitempty"`
	// Priced is false while the current date precedes the instrument's data.
	Priced bool    `json:"priced"`
	Price  float64 `json:"price"`
	Value  float64 `json:"value"`
	PnL    float64 `json:"pnl"`
}

// Snapshot is the simulator state published after each step.
type Snapshot struct {
	Step      int            `json:"step"`
	State     string         `json:"state"`
	Date      time.Time      `json:"date"`
	Value     float64        `json:"value"`
	Positions []PositionView `json:"positions"`
	Closures  []ClosureEvent `json:"closures,omitempty"`
}
