package model

import "time"

// Regime is a coarse market-condition label supplied by the signal provider.
// Keep these values stable; they appear in result JSON and breakdown keys.
type Regime string

const (
	RegimeBull   Regime = "BULL"
	RegimeChoppy Regime = "CHOPPY"
	RegimeCrash  Regime = "CRASH"
)

// TradeType classifies the setup a signal describes. The simulator only
// enters long swing setups; anything else is rejected at the entry gate.
type TradeType string

const (
	TradeTypeLongSwing TradeType = "LONG_SWING"
	TradeTypeDay       TradeType = "DAY"
	TradeTypeShort     TradeType = "SHORT"
)

// Divergence is the divergence classification attached to a signal.
type Divergence string

const (
	DivergenceBullish Divergence = "BULLISH"
	DivergenceBearish Divergence = "BEARISH"
	DivergenceNone    Divergence = "NONE"
)

// EntrySignal is the opaque output of the external scoring engine for one
// ticker as of one date. The provider is responsible for point-in-time
// correctness (no data beyond AsOf); the simulator only passes AsOf through.
type EntrySignal struct {
	Ticker string    `json:"ticker"`
	AsOf   time.Time `json:"as_of"`

	// Probability is the entry probability in percent (0..100).
	Probability float64 `json:"probability"`
	// RiskReward is the projected reward-to-risk ratio for the setup.
	RiskReward float64 `json:"risk_reward"`

	TradeType TradeType `json:"trade_type"`

	// Price is the last close as of AsOf; StopLoss is the suggested stop.
	Price    float64 `json:"price"`
	StopLoss float64 `json:"stop_loss"`

	VolumeConfirmed bool `json:"volume_confirmed"`
	MTFConfirmed    bool `json:"mtf_confirmed"`

	Regime     Regime     `json:"regime"`
	VIX        float64    `json:"vix"`
	SectorRS   float64    `json:"sector_rs"`
	Sector     string     `json:"sector"`
	RSI        float64    `json:"rsi"`
	Divergence Divergence `json:"divergence"`
}
