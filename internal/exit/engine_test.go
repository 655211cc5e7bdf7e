package exit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"swing-backtest/internal/config"
	"swing-backtest/internal/model"
)

func testConfig() *config.Config {
	return &config.Config{
		TPMultiples:  [3]float64{1.5, 2.5, 4.0},
		TPSizes:      [3]float64{0.33, 0.33, 0.34},
		GapMode:      config.GapModeMarket,
		MaxSlippageR: 2.0,
	}
}

// testTrade is 100 shares entered at $100 with a $95 stop (R=5), giving
// TP1=$107.5, TP2=$112.5, TP3=$120.
func testTrade() *model.Trade {
	entry := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	return &model.Trade{
		Ticker:        "AAA",
		EntryDate:     entry,
		EntryPrice:    100,
		Shares:        100,
		InitialShares: 100,
		StopLoss:      95,
		TP1:           107.5,
		TP2:           112.5,
		TP3:           120,
		MFEPrice:      100,
		MAEPrice:      100,
		Status:        model.StatusOpen,
	}
}

func day(n int) time.Time {
	return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, n)
}

func TestTP1PartialExit(t *testing.T) {
	e := New(testConfig())
	tr := testTrade()

	d := e.Decide(tr, 108, 99, 107, day(1))
	p, ok := d.(PartialExit)
	require.True(t, ok, "expected a partial exit, got %T", d)
	assert.Equal(t, 107.5, p.Price)
	assert.Equal(t, 33, p.Shares)
	assert.Equal(t, model.ExitTP1, p.Reason)
}

func TestStopPriorityOverTakeProfit(t *testing.T) {
	e := New(testConfig())
	tr := testTrade()
	tr.Partials = []model.PartialExit{{Date: day(1), Price: 107.5, Shares: 33, Reason: model.ExitTP1}}
	tr.Shares = 67

	// Low touches the stop exactly (no gap); a higher high the same day
	// must not rescue the position.
	d := e.Decide(tr, 113, 95, 96, day(2))
	f, ok := d.(FullExit)
	require.True(t, ok, "expected a full exit, got %T", d)
	assert.Equal(t, 95.0, f.Price)
	assert.Equal(t, model.ExitStopLoss, f.Reason)
}

func TestGapThroughMarketClampsLoss(t *testing.T) {
	e := New(testConfig())
	tr := testTrade()

	// Gap far below the stop: fill is clamped at entry - R*maxSlippageR.
	d := e.Decide(tr, 85, 80, 82, day(1))
	f, ok := d.(FullExit)
	require.True(t, ok)
	assert.Equal(t, 90.0, f.Price) // 100 - 5*2.0
	assert.Equal(t, model.ExitStopLoss, f.Reason)

	// Mild gap inside the cap fills at the low.
	tr = testTrade()
	d = e.Decide(tr, 94, 92, 93, day(1))
	f, ok = d.(FullExit)
	require.True(t, ok)
	assert.Equal(t, 92.0, f.Price)
}

func TestGapThroughSkipDefers(t *testing.T) {
	cfg := testConfig()
	cfg.GapMode = config.GapModeSkip
	e := New(cfg)

	// 95 -> 91 is a 4.2% gap beyond the stop: defer.
	d := e.Decide(testTrade(), 94, 91, 92, day(1))
	_, ok := d.(NoAction)
	assert.True(t, ok, "expected no action, got %T", d)

	// 95 -> 93 is only 2.1%: exit at the low.
	d = e.Decide(testTrade(), 94, 93, 93.5, day(1))
	f, ok := d.(FullExit)
	require.True(t, ok)
	assert.Equal(t, 93.0, f.Price)
}

func TestGapThroughLimitFillsAtStop(t *testing.T) {
	cfg := testConfig()
	cfg.GapMode = config.GapModeLimit
	e := New(cfg)

	d := e.Decide(testTrade(), 94, 80, 85, day(1))
	f, ok := d.(FullExit)
	require.True(t, ok)
	assert.Equal(t, 95.0, f.Price)
}

func TestDegenerateRiskExitsAtStop(t *testing.T) {
	e := New(testConfig())
	tr := testTrade()
	tr.StopLoss = 105 // stop above entry

	d := e.Decide(tr, 106, 101, 103, day(1))
	f, ok := d.(FullExit)
	require.True(t, ok)
	assert.Equal(t, 105.0, f.Price)
	assert.Equal(t, model.ExitStopLoss, f.Reason)
}

func TestTimeExitAtBoundary(t *testing.T) {
	cfg := testConfig()
	cfg.MaxHoldingDays = 10
	e := New(cfg)
	tr := testTrade()

	// Exactly at the boundary, flat price, nothing else triggered.
	d := e.Decide(tr, 101, 99, 100, day(10))
	f, ok := d.(FullExit)
	require.True(t, ok, "expected a full exit, got %T", d)
	assert.Equal(t, 100.0, f.Price)
	assert.Equal(t, model.ExitTime, f.Reason)

	// One day short: no action.
	d = e.Decide(tr, 101, 99, 100, day(9))
	_, ok = d.(NoAction)
	assert.True(t, ok)
}

func TestTimeExitBeatsTakeProfit(t *testing.T) {
	cfg := testConfig()
	cfg.MaxHoldingDays = 10
	e := New(cfg)

	// A max-age trade cannot also partially fill the same day.
	d := e.Decide(testTrade(), 110, 105, 109, day(10))
	f, ok := d.(FullExit)
	require.True(t, ok)
	assert.Equal(t, model.ExitTime, f.Reason)
	assert.Equal(t, 109.0, f.Price)
}

func TestTP3FullExit(t *testing.T) {
	e := New(testConfig())
	tr := testTrade()
	tr.Partials = []model.PartialExit{
		{Reason: model.ExitTP1, Shares: 33},
		{Reason: model.ExitTP2, Shares: 33},
	}
	tr.Shares = 34

	d := e.Decide(tr, 121, 114, 120, day(3))
	f, ok := d.(FullExit)
	require.True(t, ok)
	assert.Equal(t, 120.0, f.Price)
	assert.Equal(t, model.ExitTP3, f.Reason)
}

func TestTranchesFireOnce(t *testing.T) {
	e := New(testConfig())
	tr := testTrade()
	tr.Partials = []model.PartialExit{{Reason: model.ExitTP1, Shares: 33}}
	tr.Shares = 67

	// High revisits TP1 territory only; tranche already taken, no action.
	d := e.Decide(tr, 108, 104, 107, day(2))
	_, ok := d.(NoAction)
	assert.True(t, ok, "expected no action, got %T", d)

	// High reaches TP2: the next tranche fires, sized from initial shares.
	d = e.Decide(tr, 113, 104, 112, day(3))
	p, ok := d.(PartialExit)
	require.True(t, ok)
	assert.Equal(t, 112.5, p.Price)
	assert.Equal(t, 33, p.Shares)
	assert.Equal(t, model.ExitTP2, p.Reason)
}

func TestTrancheCappedAtRemaining(t *testing.T) {
	e := New(testConfig())
	tr := testTrade()
	tr.Partials = []model.PartialExit{{Reason: model.ExitTP1, Shares: 80, Date: day(1)}}
	tr.Shares = 20

	d := e.Decide(tr, 113, 104, 112, day(2))
	p, ok := d.(PartialExit)
	require.True(t, ok)
	assert.Equal(t, 20, p.Shares)
}

func TestTrailingStop(t *testing.T) {
	cfg := testConfig()
	cfg.TrailingStopEnabled = true
	cfg.TrailingActivationR = 2.0
	cfg.TrailingDistance = 0.05
	e := New(cfg)

	tr := testTrade()
	tr.Partials = []model.PartialExit{
		{Reason: model.ExitTP1, Shares: 33},
		{Reason: model.ExitTP2, Shares: 33},
	}
	tr.Shares = 34
	tr.MFEPrice = 115
	tr.MFER = 3.0

	// Trail level = 115 * 0.95 = 109.25; the low breaches it.
	d := e.Decide(tr, 112, 109, 110, day(5))
	f, ok := d.(FullExit)
	require.True(t, ok, "expected a full exit, got %T", d)
	assert.InDelta(t, 109.25, f.Price, 1e-9)
	assert.Equal(t, model.ExitTrailingStop, f.Reason)

	// Below the activation threshold the trail is inert.
	tr.MFER = 1.5
	d = e.Decide(tr, 112, 109, 110, day(5))
	_, ok = d.(NoAction)
	assert.True(t, ok)
}
