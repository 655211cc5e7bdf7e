package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"time"

	"swing-backtest/internal/model"

	"gopkg.in/yaml.v3"
)

// GapMode selects how a stop-loss fill is simulated when price gaps through
// the stop overnight.
type GapMode string

const (
	// GapModeMarket fills at the day's low, clamped so the simulated loss
	// never exceeds MaxSlippageR times the entry-to-stop risk.
	GapModeMarket GapMode = "MARKET"
	// GapModeSkip defers the exit when the gap exceeds 3% beyond the stop,
	// hoping for a less severe print on a later bar. The deferred position
	// can sit below the stop with a floating loss beyond the configured cap
	// for the extra day; this is a deliberate approximation.
	GapModeSkip GapMode = "SKIP"
	// GapModeLimit always fills exactly at the stop price, assuming a
	// resting order executes before further slippage.
	GapModeLimit GapMode = "LIMIT"
)

const dateLayout = "2006-01-02"

// Config is the immutable per-run backtest configuration (YAML/JSON shape).
// Validated once at construction; never mutated during a run.
type Config struct {
	StartDate string `yaml:"start_date" json:"start_date"`
	EndDate   string `yaml:"end_date" json:"end_date"`

	Universe []string `yaml:"universe" json:"universe"`

	// InitialCapital is in dollars. RiskPerTrade is the fraction of sizing
	// capital put at risk per position (e.g. 0.01 = 1%).
	InitialCapital float64 `yaml:"initial_capital" json:"initial_capital"`
	RiskPerTrade   float64 `yaml:"risk_per_trade" json:"risk_per_trade"`

	MaxPositions int `yaml:"max_positions" json:"max_positions"`
	// MaxPositionValuePct caps any one position's value at this fraction of
	// initial capital.
	MaxPositionValuePct float64 `yaml:"max_position_value_pct" json:"max_position_value_pct"`

	// SizeFromEquity sizes positions off current equity instead of initial
	// capital. Off by default so position sizes cannot compound runaway
	// after a winning streak.
	SizeFromEquity bool `yaml:"size_from_equity" json:"size_from_equity"`

	// Entry gates.
	MinProbability      float64 `yaml:"min_probability" json:"min_probability"` // percent, 0..100
	MinRiskReward       float64 `yaml:"min_risk_reward" json:"min_risk_reward"`
	MaxVIX              float64 `yaml:"max_vix" json:"max_vix"`
	RequireConfirmation bool    `yaml:"require_confirmation" json:"require_confirmation"`
	RegimeAdjust        bool    `yaml:"regime_adjust" json:"regime_adjust"`

	// Take-profit tranches: R-multiples and size fractions of the initial
	// position. Fractions must sum to 1.0; multiples must be increasing.
	TPMultiples [3]float64 `yaml:"tp_multiples" json:"tp_multiples"`
	TPSizes     [3]float64 `yaml:"tp_sizes" json:"tp_sizes"`

	MaxHoldingDays int `yaml:"max_holding_days" json:"max_holding_days"`

	TrailingStopEnabled bool    `yaml:"trailing_stop_enabled" json:"trailing_stop_enabled"`
	TrailingActivationR float64 `yaml:"trailing_activation_r" json:"trailing_activation_r"`
	// TrailingDistance is the trail as a fraction of the max favorable
	// price (e.g. 0.05 = trail 5% below the high-water mark).
	TrailingDistance float64 `yaml:"trailing_distance" json:"trailing_distance"`

	// Fill model.
	SlippagePct        float64 `yaml:"slippage_pct" json:"slippage_pct"` // percent per fill, against the trade
	CommissionPerShare float64 `yaml:"commission_per_share" json:"commission_per_share"`
	GapMode            GapMode `yaml:"gap_mode" json:"gap_mode"`
	// MaxSlippageR caps the simulated loss on a gap-through stop, in R.
	MaxSlippageR float64 `yaml:"max_slippage_r" json:"max_slippage_r"`

	// CooldownDays is the minimum number of days after exiting a ticker
	// before it may be re-entered.
	CooldownDays int `yaml:"cooldown_days" json:"cooldown_days"`

	// Data-access pacing. Operational only: the simulator's outcome never
	// depends on batch size or delay.
	BatchSize  int           `yaml:"batch_size" json:"batch_size"`
	BatchDelay time.Duration `yaml:"batch_delay" json:"batch_delay"`

	start time.Time
	end   time.Time
}

// Load reads, defaults and validates a backtest config from a YAML file.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var c Config
	if err := yaml.Unmarshal(raw, &c); err != nil {
		return nil, err
	}
	c.ApplyDefaults()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// ApplyDefaults fills unset optional fields. Safe to call more than once.
func (c *Config) ApplyDefaults() {
	if c.MaxSlippageR == 0 {
		c.MaxSlippageR = 2.0
	}
	if c.CooldownDays == 0 {
		c.CooldownDays = 5
	}
	if c.GapMode == "" {
		c.GapMode = GapModeMarket
	}
	if c.BatchSize == 0 {
		c.BatchSize = 10
	}
	if c.TPMultiples == ([3]float64{}) {
		c.TPMultiples = [3]float64{1.5, 2.5, 4.0}
	}
	if c.TPSizes == ([3]float64{}) {
		c.TPSizes = [3]float64{0.33, 0.33, 0.34}
	}
	if c.MaxPositionValuePct == 0 {
		c.MaxPositionValuePct = 0.25
	}
}

// Validate checks the config and parses its date window.
// Configuration errors are fatal at construction.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}
	var err error
	if c.start, err = time.Parse(dateLayout, c.StartDate); err != nil {
		return fmt.Errorf("start_date: %w", err)
	}
	if c.end, err = time.Parse(dateLayout, c.EndDate); err != nil {
		return fmt.Errorf("end_date: %w", err)
	}
	if !c.end.After(c.start) {
		return errors.New("end_date must be after start_date")
	}
	if len(c.Universe) == 0 {
		return errors.New("universe is empty")
	}
	if c.InitialCapital <= 0 {
		return errors.New("initial_capital must be > 0")
	}
	if c.RiskPerTrade <= 0 || c.RiskPerTrade > 1 {
		return errors.New("risk_per_trade must be in (0, 1]")
	}
	if c.MaxPositions <= 0 {
		return errors.New("max_positions must be > 0")
	}
	if c.MaxPositionValuePct <= 0 || c.MaxPositionValuePct > 1 {
		return errors.New("max_position_value_pct must be in (0, 1]")
	}
	sum := c.TPSizes[0] + c.TPSizes[1] + c.TPSizes[2]
	if math.Abs(sum-1.0) > 1e-6 {
		return fmt.Errorf("tp_sizes must sum to 1.0, got %.4f", sum)
	}
	if !(c.TPMultiples[0] > 0 && c.TPMultiples[0] < c.TPMultiples[1] && c.TPMultiples[1] < c.TPMultiples[2]) {
		return errors.New("tp_multiples must be positive and strictly increasing")
	}
	switch c.GapMode {
	case GapModeMarket, GapModeSkip, GapModeLimit:
	default:
		return fmt.Errorf("unknown gap_mode %q", c.GapMode)
	}
	if c.MaxSlippageR <= 0 {
		return errors.New("max_slippage_r must be > 0")
	}
	if c.SlippagePct < 0 {
		return errors.New("slippage_pct must be >= 0")
	}
	if c.CommissionPerShare < 0 {
		return errors.New("commission_per_share must be >= 0")
	}
	if c.CooldownDays < 0 {
		return errors.New("cooldown_days must be >= 0")
	}
	if c.BatchSize <= 0 {
		return errors.New("batch_size must be > 0")
	}
	return nil
}

// Start returns the parsed start date. Valid only after Validate.
func (c *Config) Start() time.Time { return c.start }

// End returns the parsed end date. Valid only after Validate.
func (c *Config) End() time.Time { return c.end }

// SetWindow overrides the simulated date range. Used by the walk-forward
// optimizer when running the same parameters over different periods.
func (c *Config) SetWindow(start, end time.Time) {
	c.start = start
	c.end = end
	c.StartDate = start.Format(dateLayout)
	c.EndDate = end.Format(dateLayout)
}

// Clone returns an independent copy of the config.
func (c *Config) Clone() *Config {
	out := *c
	out.Universe = append([]string(nil), c.Universe...)
	return &out
}

// EffectiveThresholds returns the probability and risk/reward gates after
// regime adjustment. Choppy and crash regimes demand stronger setups.
func (c *Config) EffectiveThresholds(regime model.Regime) (minProb, minRR float64) {
	minProb, minRR = c.MinProbability, c.MinRiskReward
	if !c.RegimeAdjust {
		return minProb, minRR
	}
	switch regime {
	case model.RegimeChoppy:
		minProb += 5
		minRR += 0.5
	case model.RegimeCrash:
		minProb += 10
		minRR += 1.0
	}
	return minProb, minRR
}
