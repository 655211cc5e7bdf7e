// Package walkforward drives repeated simulator runs across train, validate
// and test windows to estimate out-of-sample strategy performance.
package walkforward

import (
	"context"
	"fmt"
	"math"

	"go.uber.org/zap"

	"swing-backtest/internal/backtest"
	"swing-backtest/internal/config"
	"swing-backtest/internal/data"
)

// PeriodResult captures one period's run under the parameters in force.
type PeriodResult struct {
	Period config.Period    `json:"period"`
	Params config.ParamSet  `json:"params"`
	Result *backtest.Result `json:"result"`
	Score  float64          `json:"score,omitempty"`
}

// OutOfSample aggregates every non-TRAIN period. Trades and P&L are pooled;
// Sharpe and Sortino are trade-count-weighted averages; drawdown is the
// worst across periods, never an average, so a single bad out-of-sample
// window cannot be diluted.
type OutOfSample struct {
	Periods     int     `json:"periods"`
	TotalTrades int     `json:"total_trades"`
	TotalPnL    float64 `json:"total_pnl"`
	WinRate     float64 `json:"win_rate"`

	AvgSharpe  float64 `json:"avg_sharpe"`
	AvgSortino float64 `json:"avg_sortino"`

	WorstDrawdownPct float64 `json:"worst_drawdown_pct"`
}

// Result is the walk-forward run output.
type Result struct {
	Periods     []PeriodResult        `json:"periods"`
	BestParams  config.ParamSet       `json:"best_params"`
	OutOfSample OutOfSample           `json:"out_of_sample"`
	Metric      config.OptimizeMetric `json:"metric"`
}

// Optimizer runs grid search over a base configuration. Each combination is
// a full, independent simulator run; combinations share no mutable state and
// execute sequentially.
type Optimizer struct {
	base    *config.Config
	prices  data.PriceProvider
	signals data.SignalProvider
	log     *zap.Logger
}

func New(base *config.Config, prices data.PriceProvider, signals data.SignalProvider, log *zap.Logger) (*Optimizer, error) {
	if err := base.Validate(); err != nil {
		return nil, fmt.Errorf("walkforward base config: %w", err)
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Optimizer{base: base, prices: prices, signals: signals, log: log}, nil
}

// Run processes periods in the order given. TRAIN periods grid-search the
// parameter ranges and keep the best-scoring set; VALIDATE and TEST periods
// run once with the most recently selected parameters.
func (o *Optimizer) Run(ctx context.Context, wf *config.WalkForward) (*Result, error) {
	if err := wf.Validate(); err != nil {
		return nil, err
	}

	res := &Result{Metric: wf.Metric}
	best := config.ParamSet{}
	selected := false

	for i := range wf.Periods {
		period := wf.Periods[i]
		switch period.Role {
		case config.RoleTrain:
			chosen, pr, err := o.gridSearch(ctx, &period, wf)
			if err != nil {
				return nil, err
			}
			best = chosen
			selected = true
			res.Periods = append(res.Periods, pr)
		default:
			if !selected {
				// No TRAIN period has run yet; fall back to the
				// base configuration's own values.
				o.log.Warn("out-of-sample period before any training period; using base parameters",
					zap.String("period", period.Name))
			}
			simRes, err := o.runOnce(ctx, &period, best)
			if err != nil {
				return nil, fmt.Errorf("walkforward: period %q: %w", period.Name, err)
			}
			res.Periods = append(res.Periods, PeriodResult{
				Period: period,
				Params: best,
				Result: simRes,
			})
		}
	}

	res.BestParams = best
	res.OutOfSample = aggregateOOS(res.Periods)
	return res, nil
}

// gridSearch runs every parameter combination over one TRAIN period and
// returns the best-scoring set. A failing combination is dropped from
// scoring; if every combination fails the search is fatal, because there are
// no valid parameters to carry forward.
func (o *Optimizer) gridSearch(ctx context.Context, period *config.Period, wf *config.WalkForward) (config.ParamSet, PeriodResult, error) {
	combos := wf.Ranges.Combinations()
	o.log.Info("grid search",
		zap.String("period", period.Name),
		zap.Int("combinations", len(combos)),
		zap.String("metric", string(wf.Metric)))

	var (
		best      config.ParamSet
		bestRes   *backtest.Result
		bestScore = math.Inf(-1)
	)
	for i, combo := range combos {
		simRes, err := o.runOnce(ctx, period, combo)
		if err != nil {
			if ctx.Err() != nil {
				return config.ParamSet{}, PeriodResult{}, ctx.Err()
			}
			o.log.Error("grid combination failed, skipping",
				zap.String("period", period.Name),
				zap.Int("combination", i),
				zap.Error(err))
			continue
		}
		score := Score(simRes, wf.Metric)
		if score > bestScore {
			bestScore = score
			best = combo
			bestRes = simRes
		}
	}
	if bestRes == nil {
		return config.ParamSet{}, PeriodResult{}, fmt.Errorf(
			"walkforward: all %d combinations failed for period %q", len(combos), period.Name)
	}
	return best, PeriodResult{
		Period: *period,
		Params: best,
		Result: bestRes,
		Score:  bestScore,
	}, nil
}

func (o *Optimizer) runOnce(ctx context.Context, period *config.Period, params config.ParamSet) (*backtest.Result, error) {
	cfg := params.Apply(o.base)
	cfg.SetWindow(period.Start(), period.End())
	sim, err := backtest.New(cfg, o.prices, o.signals, o.log)
	if err != nil {
		return nil, err
	}
	return sim.Run(ctx)
}

// Score extracts the optimization metric from a run. Infinite values (e.g. a
// profit factor with no losses) are squashed to a large finite score so they
// rank above everything real without poisoning comparisons.
func Score(res *backtest.Result, metric config.OptimizeMetric) float64 {
	var v float64
	switch metric {
	case config.OptimizeSortino:
		v = res.Metrics.Sortino
	case config.OptimizeProfitFactor:
		v = res.Metrics.ProfitFactor
	case config.OptimizeExpectancy:
		v = res.Metrics.Expectancy
	default:
		v = res.Metrics.Sharpe
	}
	if math.IsInf(v, 1) {
		return math.MaxFloat64
	}
	if math.IsInf(v, -1) || math.IsNaN(v) {
		return -math.MaxFloat64
	}
	return v
}

// aggregateOOS pools all non-TRAIN period results.
func aggregateOOS(periods []PeriodResult) OutOfSample {
	var (
		oos      OutOfSample
		winners  int
		wSharpe  float64
		wSortino float64
	)
	for _, pr := range periods {
		if pr.Period.Role == config.RoleTrain || pr.Result == nil {
			continue
		}
		m := pr.Result.Metrics
		oos.Periods++
		oos.TotalTrades += m.TotalTrades
		oos.TotalPnL += m.TotalPnL
		winners += m.Winners
		if !math.IsInf(m.Sharpe, 0) {
			wSharpe += m.Sharpe * float64(m.TotalTrades)
		}
		if !math.IsInf(m.Sortino, 0) {
			wSortino += m.Sortino * float64(m.TotalTrades)
		}
		if m.MaxDrawdownPct > oos.WorstDrawdownPct {
			oos.WorstDrawdownPct = m.MaxDrawdownPct
		}
	}
	if oos.TotalTrades > 0 {
		oos.WinRate = float64(winners) / float64(oos.TotalTrades)
		oos.AvgSharpe = wSharpe / float64(oos.TotalTrades)
		oos.AvgSortino = wSortino / float64(oos.TotalTrades)
	}
	return oos
}
