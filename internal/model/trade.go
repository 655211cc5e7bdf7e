package model

import (
	"math"
	"time"
)

// ExitReason tags why shares left a position.
// Keep these values stable; they are intended for CSV and JSON output.
type ExitReason string

const (
	ExitStopLoss     ExitReason = "stop-loss"
	ExitTP1          ExitReason = "tp1"
	ExitTP2          ExitReason = "tp2"
	ExitTP3          ExitReason = "tp3"
	ExitTime         ExitReason = "time-exit"
	ExitTrailingStop ExitReason = "trailing-stop"
	ExitSignal       ExitReason = "signal-exit"
	ExitManual       ExitReason = "manual"
)

// TradeStatus is the lifecycle state of a trade.
type TradeStatus string

const (
	StatusOpen   TradeStatus = "OPEN"
	StatusClosed TradeStatus = "CLOSED"
)

// PartialExit records one partial fill against an open position.
type PartialExit struct {
	Date   time.Time  `json:"date"`
	Price  float64    `json:"price"`
	Shares int        `json:"shares"`
	Reason ExitReason `json:"reason"`
	PnL    float64    `json:"pnl"`
}

// Trade is the full lifecycle record of one position.
//
// Invariants:
//   - Shares <= InitialShares at all times
//   - sum of partial-exit shares + Shares == InitialShares
//   - a trade transitions to CLOSED exactly once, when Shares reaches zero
//
// Created on entry by the simulator, mutated only by applying exit
// decisions, immutable once CLOSED.
type Trade struct {
	ID     string `json:"id"`
	Ticker string `json:"ticker"`

	SignalDate time.Time `json:"signal_date"`
	EntryDate  time.Time `json:"entry_date"`
	// EntryPrice is the fill price after slippage.
	EntryPrice       float64 `json:"entry_price"`
	EntryProbability float64 `json:"entry_probability"`

	// Shares is the current remaining share count; InitialShares is the
	// original position size and never changes. Tranche sizing always uses
	// InitialShares so the configured fractions stay proportional to the
	// original position no matter how many shares have already been sold.
	Shares        int     `json:"shares"`
	InitialShares int     `json:"initial_shares"`
	PositionValue float64 `json:"position_value"`

	StopLoss float64 `json:"stop_loss"`
	TP1      float64 `json:"tp1"`
	TP2      float64 `json:"tp2"`
	TP3      float64 `json:"tp3"`

	Partials []PartialExit `json:"partials,omitempty"`

	ExitDate   time.Time  `json:"exit_date,omitempty"`
	ExitPrice  float64    `json:"exit_price,omitempty"`
	ExitReason ExitReason `json:"exit_reason,omitempty"`

	RealizedR   float64 `json:"realized_r"`
	RealizedPnL float64 `json:"realized_pnl"`

	// Max favorable/adverse excursion over the life of the trade,
	// as price and as an R-multiple of entry-to-stop risk.
	MFEPrice float64 `json:"mfe_price"`
	MAEPrice float64 `json:"mae_price"`
	MFER     float64 `json:"mfe_r"`
	MAER     float64 `json:"mae_r"`

	HoldingDays int         `json:"holding_days"`
	Status      TradeStatus `json:"status"`

	Regime Regime `json:"regime,omitempty"`
	Sector string `json:"sector,omitempty"`

	// EntryCommission is the commission paid on the opening fill,
	// charged against realized P&L when the trade closes.
	EntryCommission float64 `json:"entry_commission"`
}

// RiskPerShare is the entry-to-stop risk in dollars (1R).
func (t *Trade) RiskPerShare() float64 {
	return t.EntryPrice - t.StopLoss
}

// TookTranche reports whether a partial with the given reason was already
// recorded. Tranches are tracked by reason, not by date, so one tranche can
// never fire on two different days.
func (t *Trade) TookTranche(reason ExitReason) bool {
	for _, p := range t.Partials {
		if p.Reason == reason {
			return true
		}
	}
	return false
}

// HoldingDaysAt returns the ceiling of elapsed calendar days since entry.
func (t *Trade) HoldingDaysAt(date time.Time) int {
	h := date.Sub(t.EntryDate).Hours()
	if h <= 0 {
		return 0
	}
	return int(math.Ceil(h / 24))
}

// UpdateExcursion folds one day's high/low into the recorded MFE/MAE.
func (t *Trade) UpdateExcursion(high, low float64) {
	if high > t.MFEPrice {
		t.MFEPrice = high
	}
	if t.MAEPrice == 0 || low < t.MAEPrice {
		t.MAEPrice = low
	}
	if r := t.RiskPerShare(); r > 0 {
		t.MFER = (t.MFEPrice - t.EntryPrice) / r
		t.MAER = (t.MAEPrice - t.EntryPrice) / r
	}
}

// ApplyPartial reduces the position by one partial fill.
// pnl is the realized P&L for the fill, net of exit commission.
func (t *Trade) ApplyPartial(date time.Time, price float64, shares int, reason ExitReason, pnl float64) {
	t.Partials = append(t.Partials, PartialExit{
		Date:   date,
		Price:  price,
		Shares: shares,
		Reason: reason,
		PnL:    pnl,
	})
	t.Shares -= shares
}

// Close finalizes the trade with its last fill.
//
// Realized R is a shares-weighted average of every fill price (partials
// included) versus entry, divided by entry-to-stop risk: one blended R for
// the whole position, not the final fill's R.
func (t *Trade) Close(date time.Time, price float64, reason ExitReason, finalPnL float64) {
	t.ExitDate = date
	t.ExitPrice = price
	t.ExitReason = reason
	t.Shares = 0
	t.HoldingDays = t.HoldingDaysAt(date)
	t.Status = StatusClosed

	t.RealizedPnL = finalPnL - t.EntryCommission

	sold := 0
	sum := 0.0
	for _, p := range t.Partials {
		sum += p.Price * float64(p.Shares)
		sold += p.Shares
		t.RealizedPnL += p.PnL
	}
	final := t.InitialShares - sold
	sum += price * float64(final)
	if r := t.RiskPerShare(); r > 0 && t.InitialShares > 0 {
		avg := sum / float64(t.InitialShares)
		t.RealizedR = (avg - t.EntryPrice) / r
	}
}
