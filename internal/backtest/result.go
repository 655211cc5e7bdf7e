package backtest

import (
	"fmt"

	"github.com/google/uuid"

	"swing-backtest/internal/config"
	"swing-backtest/internal/metrics"
	"swing-backtest/internal/model"
)

// calibrationWinR is the realized-R threshold at which a trade counts as a
// win for probability calibration.
const calibrationWinR = 1.0

// CalibrationBucket compares an entry-probability decile against the
// realized win rate inside it.
type CalibrationBucket struct {
	ProbLow  float64 `json:"prob_low"`
	ProbHigh float64 `json:"prob_high"`
	Trades   int     `json:"trades"`
	Wins     int     `json:"wins"`
	WinRate  float64 `json:"win_rate"`
}

// Result is the sole output artifact of a simulator run.
type Result struct {
	RunID  string         `json:"run_id"`
	Config *config.Config `json:"config"`

	Trades []*model.Trade      `json:"trades"`
	Equity []model.EquityPoint `json:"equity"`

	Metrics metrics.Report `json:"metrics"`

	ByRegime map[model.Regime]metrics.Report `json:"by_regime"`
	BySector map[string]metrics.Report       `json:"by_sector"`
	ByMonth  map[string]metrics.Report       `json:"by_month"` // "2024-01"
	ByYear   map[int]metrics.Report          `json:"by_year"`

	Calibration []CalibrationBucket `json:"calibration"`
}

// buildResult computes metrics over the full trade list plus the sliced
// breakdowns and calibration buckets.
func (s *Simulator) buildResult() *Result {
	res := &Result{
		RunID:    uuid.NewString(),
		Config:   s.cfg,
		Trades:   s.closed,
		Equity:   s.equity,
		Metrics:  metrics.Compute(s.closed, s.cfg.InitialCapital, s.equity),
		ByRegime: make(map[model.Regime]metrics.Report),
		BySector: make(map[string]metrics.Report),
		ByMonth:  make(map[string]metrics.Report),
		ByYear:   make(map[int]metrics.Report),
	}

	byRegime := map[model.Regime][]*model.Trade{}
	bySector := map[string][]*model.Trade{}
	byMonth := map[string][]*model.Trade{}
	byYear := map[int][]*model.Trade{}
	for _, t := range s.closed {
		if t.Regime != "" {
			byRegime[t.Regime] = append(byRegime[t.Regime], t)
		}
		if t.Sector != "" {
			bySector[t.Sector] = append(bySector[t.Sector], t)
		}
		month := fmt.Sprintf("%04d-%02d", t.ExitDate.Year(), t.ExitDate.Month())
		byMonth[month] = append(byMonth[month], t)
		byYear[t.ExitDate.Year()] = append(byYear[t.ExitDate.Year()], t)
	}
	// Slices have no equity curve of their own; metrics falls back to
	// per-exit-date P&L grouping for the ratio figures.
	for k, v := range byRegime {
		res.ByRegime[k] = metrics.Compute(v, s.cfg.InitialCapital, nil)
	}
	for k, v := range bySector {
		res.BySector[k] = metrics.Compute(v, s.cfg.InitialCapital, nil)
	}
	for k, v := range byMonth {
		res.ByMonth[k] = metrics.Compute(v, s.cfg.InitialCapital, nil)
	}
	for k, v := range byYear {
		res.ByYear[k] = metrics.Compute(v, s.cfg.InitialCapital, nil)
	}

	res.Calibration = calibrate(s.closed)
	return res
}

// calibrate buckets entry probability into deciles and measures the share of
// trades in each that realized at least calibrationWinR.
func calibrate(trades []*model.Trade) []CalibrationBucket {
	buckets := make([]CalibrationBucket, 10)
	for i := range buckets {
		buckets[i].ProbLow = float64(i * 10)
		buckets[i].ProbHigh = float64((i + 1) * 10)
	}
	for _, t := range trades {
		i := int(t.EntryProbability / 10)
		if i < 0 {
			i = 0
		}
		if i > 9 {
			i = 9
		}
		buckets[i].Trades++
		if t.RealizedR >= calibrationWinR {
			buckets[i].Wins++
		}
	}
	for i := range buckets {
		if buckets[i].Trades > 0 {
			buckets[i].WinRate = float64(buckets[i].Wins) / float64(buckets[i].Trades)
		}
	}
	return buckets
}
