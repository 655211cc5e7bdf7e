package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Role marks how a walk-forward period is used.
type Role string

const (
	RoleTrain    Role = "TRAIN"
	RoleValidate Role = "VALIDATE"
	RoleTest     Role = "TEST"
)

// OptimizeMetric selects the score used to rank parameter sets during grid
// search on TRAIN periods.
type OptimizeMetric string

const (
	OptimizeSharpe       OptimizeMetric = "sharpe"
	OptimizeSortino      OptimizeMetric = "sortino"
	OptimizeProfitFactor OptimizeMetric = "profit-factor"
	OptimizeExpectancy   OptimizeMetric = "expectancy"
)

// Period is one walk-forward window.
type Period struct {
	Name      string `yaml:"name" json:"name"`
	Role      Role   `yaml:"role" json:"role"`
	StartDate string `yaml:"start_date" json:"start_date"`
	EndDate   string `yaml:"end_date" json:"end_date"`

	start time.Time
	end   time.Time
}

// Start returns the parsed period start. Valid only after Validate.
func (p *Period) Start() time.Time { return p.start }

// End returns the parsed period end. Valid only after Validate.
func (p *Period) End() time.Time { return p.end }

// ParamRanges maps tunable fields to candidate-value lists. Empty lists mean
// the base config's value is kept for that field.
type ParamRanges struct {
	MinProbability      []float64 `yaml:"min_probability" json:"min_probability"`
	MinRiskReward       []float64 `yaml:"min_risk_reward" json:"min_risk_reward"`
	RiskPerTrade        []float64 `yaml:"risk_per_trade" json:"risk_per_trade"`
	MaxHoldingDays      []int     `yaml:"max_holding_days" json:"max_holding_days"`
	TrailingActivationR []float64 `yaml:"trailing_activation_r" json:"trailing_activation_r"`
}

// ParamSet is one point of the grid: the tunable fields applied on top of a
// base config. Nil pointers leave the base value untouched.
type ParamSet struct {
	MinProbability      *float64 `json:"min_probability,omitempty"`
	MinRiskReward       *float64 `json:"min_risk_reward,omitempty"`
	RiskPerTrade        *float64 `json:"risk_per_trade,omitempty"`
	MaxHoldingDays      *int     `json:"max_holding_days,omitempty"`
	TrailingActivationR *float64 `json:"trailing_activation_r,omitempty"`
}

// Apply overlays the set's values onto a clone of base and returns it.
func (p ParamSet) Apply(base *Config) *Config {
	c := base.Clone()
	if p.MinProbability != nil {
		c.MinProbability = *p.MinProbability
	}
	if p.MinRiskReward != nil {
		c.MinRiskReward = *p.MinRiskReward
	}
	if p.RiskPerTrade != nil {
		c.RiskPerTrade = *p.RiskPerTrade
	}
	if p.MaxHoldingDays != nil {
		c.MaxHoldingDays = *p.MaxHoldingDays
	}
	if p.TrailingActivationR != nil {
		c.TrailingActivationR = *p.TrailingActivationR
	}
	return c
}

// Combinations expands the ranges into the Cartesian product of all
// candidate values. An empty range contributes a single "keep base" choice,
// so the product is never empty.
func (r ParamRanges) Combinations() []ParamSet {
	sets := []ParamSet{{}}

	sets = expandFloat(sets, r.MinProbability, func(s *ParamSet, v float64) { s.MinProbability = &v })
	sets = expandFloat(sets, r.MinRiskReward, func(s *ParamSet, v float64) { s.MinRiskReward = &v })
	sets = expandFloat(sets, r.RiskPerTrade, func(s *ParamSet, v float64) { s.RiskPerTrade = &v })
	sets = expandInt(sets, r.MaxHoldingDays, func(s *ParamSet, v int) { s.MaxHoldingDays = &v })
	sets = expandFloat(sets, r.TrailingActivationR, func(s *ParamSet, v float64) { s.TrailingActivationR = &v })

	return sets
}

func expandFloat(in []ParamSet, vals []float64, set func(*ParamSet, float64)) []ParamSet {
	if len(vals) == 0 {
		return in
	}
	out := make([]ParamSet, 0, len(in)*len(vals))
	for _, s := range in {
		for _, v := range vals {
			ns := s
			v := v
			set(&ns, v)
			out = append(out, ns)
		}
	}
	return out
}

func expandInt(in []ParamSet, vals []int, set func(*ParamSet, int)) []ParamSet {
	if len(vals) == 0 {
		return in
	}
	out := make([]ParamSet, 0, len(in)*len(vals))
	for _, s := range in {
		for _, v := range vals {
			ns := s
			v := v
			set(&ns, v)
			out = append(out, ns)
		}
	}
	return out
}

// WalkForward is the walk-forward optimization configuration.
type WalkForward struct {
	Periods []Period       `yaml:"periods" json:"periods"`
	Ranges  ParamRanges    `yaml:"ranges" json:"ranges"`
	Metric  OptimizeMetric `yaml:"metric" json:"metric"`
}

// LoadWalkForward reads and validates a walk-forward config from YAML.
func LoadWalkForward(path string) (*WalkForward, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var wf WalkForward
	if err := yaml.Unmarshal(raw, &wf); err != nil {
		return nil, err
	}
	if err := wf.Validate(); err != nil {
		return nil, err
	}
	return &wf, nil
}

// Validate checks period roles and date ranges and parses dates.
func (w *WalkForward) Validate() error {
	if len(w.Periods) == 0 {
		return errors.New("walkforward: no periods")
	}
	if w.Metric == "" {
		w.Metric = OptimizeSharpe
	}
	switch w.Metric {
	case OptimizeSharpe, OptimizeSortino, OptimizeProfitFactor, OptimizeExpectancy:
	default:
		return fmt.Errorf("walkforward: unknown metric %q", w.Metric)
	}
	for i := range w.Periods {
		p := &w.Periods[i]
		switch p.Role {
		case RoleTrain, RoleValidate, RoleTest:
		default:
			return fmt.Errorf("walkforward: period %q has unknown role %q", p.Name, p.Role)
		}
		var err error
		if p.start, err = time.Parse(dateLayout, p.StartDate); err != nil {
			return fmt.Errorf("walkforward: period %q start_date: %w", p.Name, err)
		}
		if p.end, err = time.Parse(dateLayout, p.EndDate); err != nil {
			return fmt.Errorf("walkforward: period %q end_date: %w", p.Name, err)
		}
		if !p.end.After(p.start) {
			return fmt.Errorf("walkforward: period %q end_date must be after start_date", p.Name)
		}
	}
	return nil
}
