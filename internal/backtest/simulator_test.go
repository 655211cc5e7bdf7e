package backtest

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"swing-backtest/internal/config"
	"swing-backtest/internal/data"
	"swing-backtest/internal/model"
)

func testConfig() *config.Config {
	cfg := &config.Config{
		StartDate:           "2024-01-01", // a Monday
		EndDate:             "2024-01-12",
		Universe:            []string{"AAA"},
		InitialCapital:      100000,
		RiskPerTrade:        0.01,
		MaxPositions:        3,
		MaxPositionValuePct: 0.25,
		MinProbability:      60,
		MinRiskReward:       2,
		TPMultiples:         [3]float64{1.5, 2.5, 4.0},
		TPSizes:             [3]float64{0.33, 0.33, 0.34},
		GapMode:             config.GapModeMarket,
		MaxSlippageR:        2.0,
		CooldownDays:        5,
		BatchSize:           10,
	}
	return cfg
}

func d(y, m, day int) time.Time {
	return time.Date(y, time.Month(m), day, 0, 0, 0, 0, time.UTC)
}

func flatBar(date time.Time, px float64) model.Bar {
	return model.Bar{Date: date, Open: px, High: px, Low: px, Close: px, Volume: 1_000_000}
}

func longSignal(ticker string, asOf time.Time) *model.EntrySignal {
	return &model.EntrySignal{
		Ticker:          ticker,
		AsOf:            asOf,
		Probability:     80,
		RiskReward:      3,
		TradeType:       model.TradeTypeLongSwing,
		Price:           100,
		StopLoss:        95,
		VolumeConfirmed: true,
		MTFConfirmed:    true,
		Regime:          model.RegimeBull,
		VIX:             15,
		SectorRS:        1.05,
		Sector:          "Technology",
		RSI:             45,
		Divergence:      model.DivergenceNone,
	}
}

// tpLadderProvider: AAA enters at $100 on Jan 1, rides the full tranche
// ladder: TP1 on Jan 2, TP2 on Jan 3, TP3 on Jan 4.
func tpLadderProvider() *data.MemoryProvider {
	m := data.NewMemoryProvider()
	m.SetBars("AAA", []model.Bar{
		flatBar(d(2024, 1, 1), 100),
		{Date: d(2024, 1, 2), Open: 101, High: 108, Low: 99, Close: 107, Volume: 1_000_000},
		{Date: d(2024, 1, 3), Open: 108, High: 113, Low: 107, Close: 112, Volume: 1_000_000},
		{Date: d(2024, 1, 4), Open: 113, High: 121, Low: 112, Close: 120, Volume: 1_000_000},
		flatBar(d(2024, 1, 5), 120),
		flatBar(d(2024, 1, 8), 120),
		flatBar(d(2024, 1, 9), 120),
		flatBar(d(2024, 1, 10), 120),
		flatBar(d(2024, 1, 11), 120),
		flatBar(d(2024, 1, 12), 120),
	})
	m.SetSignal("AAA", d(2024, 1, 1), longSignal("AAA", d(2024, 1, 1)))
	return m
}

func TestSimulatorTPLadder(t *testing.T) {
	prov := tpLadderProvider()
	sim, err := New(testConfig(), prov, prov, zap.NewNop())
	require.NoError(t, err)

	res, err := sim.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, res.Trades, 1)

	tr := res.Trades[0]
	assert.Equal(t, model.StatusClosed, tr.Status)
	assert.Equal(t, 200, tr.InitialShares) // 1% of 100k risk / $5 per share
	assert.Equal(t, 0, tr.Shares)
	require.Len(t, tr.Partials, 2)

	assert.Equal(t, model.ExitTP1, tr.Partials[0].Reason)
	assert.Equal(t, 66, tr.Partials[0].Shares)
	assert.InDelta(t, 107.5, tr.Partials[0].Price, 1e-9)

	assert.Equal(t, model.ExitTP2, tr.Partials[1].Reason)
	assert.Equal(t, 66, tr.Partials[1].Shares)

	assert.Equal(t, model.ExitTP3, tr.ExitReason)
	assert.InDelta(t, 120.0, tr.ExitPrice, 1e-9)

	// Shares-weighted blended R across every fill:
	// (107.5*66 + 112.5*66 + 120*68)/200 = 113.4 -> (113.4-100)/5
	assert.InDelta(t, 2.68, tr.RealizedR, 1e-9)
	assert.InDelta(t, 2680, tr.RealizedPnL, 1e-9)

	// One equity point per weekday Jan 1..12, final equity reflects the win.
	assert.Len(t, res.Equity, 10)
	assert.InDelta(t, 102680, res.Equity[len(res.Equity)-1].Equity, 1e-6)

	// Partial shares plus the final fill cover the whole position.
	sold := 0
	for _, p := range tr.Partials {
		sold += p.Shares
	}
	assert.Equal(t, tr.InitialShares-sold, 68)
}

func TestSimulatorDeterministicRoundTrip(t *testing.T) {
	run := func() *Result {
		prov := tpLadderProvider()
		sim, err := New(testConfig(), prov, prov, zap.NewNop())
		require.NoError(t, err)
		res, err := sim.Run(context.Background())
		require.NoError(t, err)
		return res
	}

	a, b := run(), run()

	tradesA, err := json.Marshal(a.Trades)
	require.NoError(t, err)
	tradesB, err := json.Marshal(b.Trades)
	require.NoError(t, err)
	assert.Equal(t, string(tradesA), string(tradesB))

	eqA, err := json.Marshal(a.Equity)
	require.NoError(t, err)
	eqB, err := json.Marshal(b.Equity)
	require.NoError(t, err)
	assert.Equal(t, string(eqA), string(eqB))
}

func TestSimulatorCooldownBlocksReentry(t *testing.T) {
	m := data.NewMemoryProvider()
	// Entry Jan 1 at 100, stopped out Jan 2 at 95; flat afterwards.
	bars := []model.Bar{
		flatBar(d(2024, 1, 1), 100),
		{Date: d(2024, 1, 2), Open: 98, High: 99, Low: 95, Close: 96, Volume: 1_000_000},
	}
	for day := 3; day <= 12; day++ {
		dt := d(2024, 1, day)
		if model.IsTradingDay(dt) {
			bars = append(bars, flatBar(dt, 100))
		}
	}
	m.SetBars("AAA", bars)
	// A fresh signal every trading day tempts the simulator to re-enter.
	for day := 1; day <= 12; day++ {
		dt := d(2024, 1, day)
		if model.IsTradingDay(dt) {
			m.SetSignal("AAA", dt, longSignal("AAA", dt))
		}
	}

	sim, err := New(testConfig(), m, m, zap.NewNop())
	require.NoError(t, err)
	res, err := sim.Run(context.Background())
	require.NoError(t, err)

	require.NotEmpty(t, res.Trades)
	first := res.Trades[0]
	assert.Equal(t, model.ExitStopLoss, first.ExitReason)
	assert.Equal(t, d(2024, 1, 2), first.ExitDate)

	// No re-entry inside the 5-day cooldown after the Jan 2 exit.
	for _, tr := range res.Trades[1:] {
		days := int(tr.EntryDate.Sub(first.ExitDate).Hours() / 24)
		assert.GreaterOrEqual(t, days, 5, "re-entered %s only %d days after exit", tr.Ticker, days)
	}
}

func TestSimulatorForcedLiquidation(t *testing.T) {
	m := data.NewMemoryProvider()
	// Price drifts but never reaches a stop or target.
	var bars []model.Bar
	for day := 1; day <= 12; day++ {
		dt := d(2024, 1, day)
		if model.IsTradingDay(dt) {
			bars = append(bars, flatBar(dt, 100+float64(day)*0.1))
		}
	}
	m.SetBars("AAA", bars)
	m.SetSignal("AAA", d(2024, 1, 1), longSignal("AAA", d(2024, 1, 1)))

	sim, err := New(testConfig(), m, m, zap.NewNop())
	require.NoError(t, err)
	res, err := sim.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, res.Trades, 1)
	tr := res.Trades[0]
	assert.Equal(t, model.StatusClosed, tr.Status)
	assert.Equal(t, model.ExitTime, tr.ExitReason)
	assert.Equal(t, d(2024, 1, 12), tr.ExitDate)
}

func TestSimulatorRejectsInadmissibleSignals(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(sig *model.EntrySignal)
	}{
		{"low probability", func(s *model.EntrySignal) { s.Probability = 40 }},
		{"low risk reward", func(s *model.EntrySignal) { s.RiskReward = 1.0 }},
		{"wrong trade type", func(s *model.EntrySignal) { s.TradeType = model.TradeTypeShort }},
		{"weak sector", func(s *model.EntrySignal) { s.SectorRS = 0.8 }},
		{"hot rsi in bull without divergence", func(s *model.EntrySignal) { s.RSI = 70 }},
		{"choppy without divergence", func(s *model.EntrySignal) {
			s.Regime = model.RegimeChoppy
			s.RSI = 30
			s.Divergence = model.DivergenceNone
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			m := data.NewMemoryProvider()
			var bars []model.Bar
			for day := 1; day <= 12; day++ {
				dt := d(2024, 1, day)
				if model.IsTradingDay(dt) {
					bars = append(bars, flatBar(dt, 100))
				}
			}
			m.SetBars("AAA", bars)
			sig := longSignal("AAA", d(2024, 1, 1))
			tc.mutate(sig)
			m.SetSignal("AAA", d(2024, 1, 1), sig)

			sim, err := New(testConfig(), m, m, zap.NewNop())
			require.NoError(t, err)
			res, err := sim.Run(context.Background())
			require.NoError(t, err)
			assert.Empty(t, res.Trades, "signal should have been rejected")
		})
	}
}

func TestSimulatorSurvivesMissingBars(t *testing.T) {
	// AAA has data; BBB is unknown to the provider the whole run.
	prov := tpLadderProvider()

	cfg := testConfig()
	cfg.Universe = []string{"AAA", "BBB"}

	sim, err := New(cfg, prov, prov, zap.NewNop())
	require.NoError(t, err)
	res, err := sim.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, res.Trades, 1)
	assert.Equal(t, "AAA", res.Trades[0].Ticker)
}

func TestSimulatorBreakdownsAndCalibration(t *testing.T) {
	prov := tpLadderProvider()
	sim, err := New(testConfig(), prov, prov, zap.NewNop())
	require.NoError(t, err)
	res, err := sim.Run(context.Background())
	require.NoError(t, err)

	require.Contains(t, res.ByRegime, model.RegimeBull)
	assert.Equal(t, 1, res.ByRegime[model.RegimeBull].TotalTrades)
	require.Contains(t, res.BySector, "Technology")
	require.Contains(t, res.ByMonth, "2024-01")
	require.Contains(t, res.ByYear, 2024)

	require.Len(t, res.Calibration, 10)
	// Probability 80 lands in the 80..90 decile and the trade made 2.68R.
	b := res.Calibration[8]
	assert.Equal(t, 1, b.Trades)
	assert.Equal(t, 1, b.Wins)
	assert.Equal(t, 1.0, b.WinRate)
}

func TestSimulatorPositionValueCap(t *testing.T) {
	cfg := testConfig()
	cfg.RiskPerTrade = 0.10 // would be 2000 shares on risk alone
	prov := tpLadderProvider()

	sim, err := New(cfg, prov, prov, zap.NewNop())
	require.NoError(t, err)
	res, err := sim.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, res.Trades, 1)
	// Capped at 25% of initial capital: 25000 / 100 = 250 shares.
	assert.Equal(t, 250, res.Trades[0].InitialShares)
}
