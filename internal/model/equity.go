package model

import "time"

// EquityPoint is one day's portfolio snapshot. The simulator appends exactly
// one point per trading day, ordered by date; the final day's point is
// recorded after forced liquidation.
type EquityPoint struct {
	Date time.Time `json:"date"`

	// Equity is cash plus mark-to-market value of open positions.
	Equity float64 `json:"equity"`

	// Drawdown is the decline from the running equity peak, in dollars
	// and as a percent of the peak.
	Drawdown    float64 `json:"drawdown"`
	DrawdownPct float64 `json:"drawdown_pct"`

	OpenPositions int `json:"open_positions"`

	// RealizedPnL is the P&L realized by fills on this day.
	RealizedPnL float64 `json:"realized_pnl"`
	DailyReturn float64 `json:"daily_return"`
}
