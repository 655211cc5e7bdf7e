// Package exit decides whether and how an open position leaves the market on
// a given day. The engine is a pure function of the trade's recorded state
// and the day's bar; it performs no I/O and is safe to call once per open
// trade per day.
package exit

import (
	"math"
	"time"

	"swing-backtest/internal/config"
	"swing-backtest/internal/model"
)

// Decision is the outcome of one evaluation. Exactly one of NoAction,
// PartialExit or FullExit is returned; "no decision" is a value of its own
// and can never be mistaken for a real exit.
type Decision interface {
	decision()
}

// NoAction means the position stays untouched today.
type NoAction struct{}

// PartialExit sells part of the position.
type PartialExit struct {
	Price  float64
	Shares int
	Reason model.ExitReason
}

// FullExit closes the remaining position.
type FullExit struct {
	Price  float64
	Reason model.ExitReason
}

func (NoAction) decision()    {}
func (PartialExit) decision() {}
func (FullExit) decision()    {}

// skipGapPct is how far beyond the stop a gap must reach, as a fraction of
// the stop price, before SKIP mode defers the exit to a later bar.
const skipGapPct = 0.03

// Engine evaluates exit rules in priority order: stop-loss, time exit,
// take-profit tranches (highest target first), trailing stop.
type Engine struct {
	cfg *config.Config
}

func New(cfg *config.Config) *Engine {
	return &Engine{cfg: cfg}
}

// Decide evaluates one open trade against one day's bar.
// The trade's MFE/MAE must already reflect this day's high/low; the trailing
// stop reads the recorded max-favorable excursion.
func (e *Engine) Decide(t *model.Trade, high, low, closePx float64, date time.Time) Decision {
	if d, ok := e.stopLoss(t, low); ok {
		return d
	}
	if e.cfg.MaxHoldingDays > 0 && t.HoldingDaysAt(date) >= e.cfg.MaxHoldingDays {
		// Checked before take-profit so a max-age trade cannot also
		// partially fill the same day.
		return FullExit{Price: closePx, Reason: model.ExitTime}
	}
	if d, ok := e.takeProfit(t, high); ok {
		return d
	}
	if d, ok := e.trailingStop(t, low); ok {
		return d
	}
	return NoAction{}
}

// stopLoss handles the day's low touching or gapping through the stop.
// A stop hit is always a full exit.
func (e *Engine) stopLoss(t *model.Trade, low float64) (Decision, bool) {
	stop := t.StopLoss
	if low > stop {
		return nil, false
	}
	r := t.RiskPerShare()
	if r <= 0 {
		// Degenerate economics; get out at the stop unconditionally.
		return FullExit{Price: stop, Reason: model.ExitStopLoss}, true
	}
	if low >= stop {
		return FullExit{Price: stop, Reason: model.ExitStopLoss}, true
	}

	// Gap-through: the open (or the whole bar) printed below the stop.
	switch e.cfg.GapMode {
	case config.GapModeLimit:
		return FullExit{Price: stop, Reason: model.ExitStopLoss}, true
	case config.GapModeSkip:
		if (stop-low)/stop > skipGapPct {
			// Defer, hoping for a less severe print on a later bar.
			return nil, false
		}
		return FullExit{Price: low, Reason: model.ExitStopLoss}, true
	default: // MARKET
		fill := low
		floor := t.EntryPrice - r*e.cfg.MaxSlippageR
		if fill < floor {
			fill = floor
		}
		return FullExit{Price: fill, Reason: model.ExitStopLoss}, true
	}
}

// takeProfit evaluates tranches TP3 -> TP2 -> TP1 against the day's high.
// Each tranche fires at most once per trade, tracked via the recorded
// partial-exit reasons.
func (e *Engine) takeProfit(t *model.Trade, high float64) (Decision, bool) {
	if high >= t.TP3 && !t.TookTranche(model.ExitTP3) {
		return FullExit{Price: t.TP3, Reason: model.ExitTP3}, true
	}
	if high >= t.TP2 && !t.TookTranche(model.ExitTP2) {
		if shares := e.trancheShares(t, e.cfg.TPSizes[1]); shares > 0 {
			return PartialExit{Price: t.TP2, Shares: shares, Reason: model.ExitTP2}, true
		}
	}
	if high >= t.TP1 && !t.TookTranche(model.ExitTP1) {
		if shares := e.trancheShares(t, e.cfg.TPSizes[0]); shares > 0 {
			return PartialExit{Price: t.TP1, Shares: shares, Reason: model.ExitTP1}, true
		}
	}
	return nil, false
}

// trancheShares sizes a tranche from the trade's initial share count, capped
// at the shares still held.
func (e *Engine) trancheShares(t *model.Trade, fraction float64) int {
	shares := int(math.Floor(float64(t.InitialShares) * fraction))
	if shares > t.Shares {
		shares = t.Shares
	}
	return shares
}

func (e *Engine) trailingStop(t *model.Trade, low float64) (Decision, bool) {
	if !e.cfg.TrailingStopEnabled || t.MFER < e.cfg.TrailingActivationR {
		return nil, false
	}
	level := t.MFEPrice * (1 - e.cfg.TrailingDistance)
	if low > level {
		return nil, false
	}
	fill := math.Max(level, low)
	return FullExit{Price: fill, Reason: model.ExitTrailingStop}, true
}
