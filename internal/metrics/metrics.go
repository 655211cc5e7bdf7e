// Package metrics turns closed trades and an equity history into a
// performance report. Everything here is a pure function recomputed from
// scratch; nothing is updated incrementally.
package metrics

import (
	"math"
	"sort"
	"time"

	"swing-backtest/internal/model"
)

// tradingDaysPerYear is the annualization base for Sharpe/Sortino/Calmar.
const tradingDaysPerYear = 252

// RBuckets are the fixed bands of the realized-R histogram, in order.
var RBuckets = []string{"<-2R", "-2R..-1R", "-1R..0R", "0R..1R", "1R..2R", "2R..3R", "3R..4R", ">4R"}

// Report is the performance summary for a set of closed trades.
type Report struct {
	TotalTrades int     `json:"total_trades"`
	Winners     int     `json:"winners"`
	Losers      int     `json:"losers"`
	WinRate     float64 `json:"win_rate"`

	TotalPnL    float64 `json:"total_pnl"`
	GrossProfit float64 `json:"gross_profit"`
	GrossLoss   float64 `json:"gross_loss"`
	AvgWin      float64 `json:"avg_win"`
	AvgLoss     float64 `json:"avg_loss"`

	TotalR float64 `json:"total_r"`
	AvgR   float64 `json:"avg_r"`

	// Expectancy is winRate*avgWin - lossRate*avgLoss, in dollars per trade.
	Expectancy float64 `json:"expectancy"`
	// ProfitFactor is gross profit / gross loss; +Inf when there are gains
	// and no losses, 0 otherwise.
	ProfitFactor float64 `json:"profit_factor"`

	MaxDrawdown     float64 `json:"max_drawdown"`
	MaxDrawdownPct  float64 `json:"max_drawdown_pct"`
	MaxDrawdownDays int     `json:"max_drawdown_days"`

	Sharpe  float64 `json:"sharpe"`
	Sortino float64 `json:"sortino"`
	Calmar  float64 `json:"calmar"`

	AvgHoldingDays float64 `json:"avg_holding_days"`

	RDistribution map[string]int `json:"r_distribution"`
}

// Compute builds a report from closed trades. equity may be nil; daily
// returns then fall back to per-trade P&L grouped by exit date. An empty
// trade list yields an explicit zeroed report, not an error.
func Compute(trades []*model.Trade, initialCapital float64, equity []model.EquityPoint) Report {
	rep := Report{RDistribution: emptyRDistribution()}

	closed := make([]*model.Trade, 0, len(trades))
	for _, t := range trades {
		if t.Status == model.StatusClosed {
			closed = append(closed, t)
		}
	}
	if len(closed) == 0 {
		return rep
	}

	holdSum := 0.0
	for _, t := range closed {
		rep.TotalTrades++
		rep.TotalPnL += t.RealizedPnL
		rep.TotalR += t.RealizedR
		holdSum += float64(t.HoldingDays)
		if t.RealizedPnL > 0 {
			rep.Winners++
			rep.GrossProfit += t.RealizedPnL
		} else {
			rep.Losers++
			rep.GrossLoss += -t.RealizedPnL
		}
		rep.RDistribution[rBucket(t.RealizedR)]++
	}

	n := float64(rep.TotalTrades)
	rep.WinRate = float64(rep.Winners) / n
	rep.AvgR = rep.TotalR / n
	rep.AvgHoldingDays = holdSum / n
	if rep.Winners > 0 {
		rep.AvgWin = rep.GrossProfit / float64(rep.Winners)
	}
	if rep.Losers > 0 {
		rep.AvgLoss = rep.GrossLoss / float64(rep.Losers)
	}
	lossRate := float64(rep.Losers) / n
	rep.Expectancy = rep.WinRate*rep.AvgWin - lossRate*rep.AvgLoss

	switch {
	case rep.GrossLoss == 0 && rep.GrossProfit > 0:
		rep.ProfitFactor = math.Inf(1)
	case rep.GrossLoss == 0:
		rep.ProfitFactor = 0
	default:
		rep.ProfitFactor = rep.GrossProfit / rep.GrossLoss
	}

	curve := equity
	if len(curve) == 0 {
		curve = syntheticEquity(closed, initialCapital)
	}
	rep.MaxDrawdown, rep.MaxDrawdownPct, rep.MaxDrawdownDays = maxDrawdown(curve)

	returns := dailyReturns(curve)
	rep.Sharpe = sharpe(returns)
	rep.Sortino = sortino(returns)
	rep.Calmar = calmar(returns, rep.MaxDrawdownPct)

	return rep
}

func emptyRDistribution() map[string]int {
	m := make(map[string]int, len(RBuckets))
	for _, b := range RBuckets {
		m[b] = 0
	}
	return m
}

func rBucket(r float64) string {
	switch {
	case r < -2:
		return RBuckets[0]
	case r < -1:
		return RBuckets[1]
	case r < 0:
		return RBuckets[2]
	case r < 1:
		return RBuckets[3]
	case r < 2:
		return RBuckets[4]
	case r < 3:
		return RBuckets[5]
	case r <= 4:
		return RBuckets[6]
	default:
		return RBuckets[7]
	}
}

// syntheticEquity builds a daily equity series from trade P&L grouped by
// exit date, for callers that have no equity curve (e.g. per-sector slices).
func syntheticEquity(closed []*model.Trade, initialCapital float64) []model.EquityPoint {
	byDay := map[time.Time]float64{}
	for _, t := range closed {
		d := t.ExitDate.Truncate(24 * time.Hour)
		byDay[d] += t.RealizedPnL
	}
	days := make([]time.Time, 0, len(byDay))
	for d := range byDay {
		days = append(days, d)
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })

	curve := make([]model.EquityPoint, 0, len(days))
	eq := initialCapital
	for _, d := range days {
		eq += byDay[d]
		curve = append(curve, model.EquityPoint{Date: d, Equity: eq, RealizedPnL: byDay[d]})
	}
	return curve
}

// maxDrawdown scans the date-sorted equity series tracking the running peak.
// Duration is the longest stretch in days from a peak to recovery (or to the
// end of the series if underwater at the end).
func maxDrawdown(curve []model.EquityPoint) (dd, ddPct float64, ddDays int) {
	if len(curve) == 0 {
		return 0, 0, 0
	}
	sorted := append([]model.EquityPoint(nil), curve...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Date.Before(sorted[j].Date) })

	peak := sorted[0].Equity
	peakDate := sorted[0].Date
	for _, p := range sorted {
		if p.Equity >= peak {
			peak = p.Equity
			peakDate = p.Date
			continue
		}
		d := peak - p.Equity
		if d > dd {
			dd = d
			if peak > 0 {
				ddPct = d / peak * 100
			}
		}
		if days := int(p.Date.Sub(peakDate).Hours() / 24); days > ddDays {
			ddDays = days
		}
	}
	return dd, ddPct, ddDays
}

func dailyReturns(curve []model.EquityPoint) []float64 {
	if len(curve) < 2 {
		return nil
	}
	sorted := append([]model.EquityPoint(nil), curve...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Date.Before(sorted[j].Date) })

	out := make([]float64, 0, len(sorted)-1)
	for i := 1; i < len(sorted); i++ {
		prev := sorted[i-1].Equity
		if prev == 0 {
			out = append(out, 0)
			continue
		}
		out = append(out, (sorted[i].Equity-prev)/prev)
	}
	return out
}

func meanStd(xs []float64) (mean, std float64) {
	if len(xs) == 0 {
		return 0, 0
	}
	for _, x := range xs {
		mean += x
	}
	mean /= float64(len(xs))
	for _, x := range xs {
		std += (x - mean) * (x - mean)
	}
	std = math.Sqrt(std / float64(len(xs)))
	return mean, std
}

func sharpe(returns []float64) float64 {
	mean, std := meanStd(returns)
	if std == 0 {
		return 0
	}
	return mean / std * math.Sqrt(tradingDaysPerYear)
}

// sortino uses downside deviation over negative-return days only; +Inf when
// every day was flat or positive and the mean is positive.
func sortino(returns []float64) float64 {
	if len(returns) == 0 {
		return 0
	}
	mean, _ := meanStd(returns)
	var down []float64
	for _, r := range returns {
		if r < 0 {
			down = append(down, r)
		}
	}
	if len(down) == 0 {
		if mean > 0 {
			return math.Inf(1)
		}
		return 0
	}
	var dd float64
	for _, r := range down {
		dd += r * r
	}
	dd = math.Sqrt(dd / float64(len(down)))
	if dd == 0 {
		return 0
	}
	return mean / dd * math.Sqrt(tradingDaysPerYear)
}

func calmar(returns []float64, maxDDPct float64) float64 {
	if maxDDPct == 0 || len(returns) == 0 {
		return 0
	}
	mean, _ := meanStd(returns)
	annualized := mean * tradingDaysPerYear * 100
	return annualized / maxDDPct
}
