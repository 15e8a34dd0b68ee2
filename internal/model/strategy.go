package model

import (
	"time"
)

// StrategyStatus is the lifecycle state of a running strategy instance.
type StrategyStatus string

const (
	StrategyLoaded  StrategyStatus = "loaded"
	StrategyActive  StrategyStatus = "active"
	StrategyPaused  StrategyStatus = "paused"
	StrategyStopped StrategyStatus = "stopped"
	StrategyError   StrategyStatus = "error"
)

// LogicalOp combines a list of condition outcomes into one verdict.
type LogicalOp string

const (
	AND LogicalOp = "AND"
	OR  LogicalOp = "OR"
	NOT LogicalOp = "NOT"
)

// Apply combines the condition outcomes under the operator.
// An empty list never triggers.
func (op LogicalOp) Apply(met []bool) bool {
	if len(met) == 0 {
		return false
	}
	switch op {
	case AND:
		for _, m := range met {
			if !m {
				return false
			}
		}
		return true
	case OR:
		for _, m := range met {
			if m {
				return true
			}
		}
		return false
	case NOT:
		return !met[0]
	}
	return false
}

// ConditionSpec is one declarative rule condition as handed over by the
// strategy definition parser.
type ConditionSpec struct {
	Indicator string    `json:"indicator"`
	Operator  string    `json:"operator"`
	Value     []float64 `json:"value"`
	Timeframe string    `json:"timeframe,omitempty"`
	Weight    float64   `json:"weight"`
}

// ConditionList is one side (buy or sell) of a rule spec.
type ConditionList struct {
	Operator   LogicalOp       `json:"operator"`
	Conditions []ConditionSpec `json:"conditions"`
}

// RuleSpec is the declarative rule set of a strategy.
type RuleSpec struct {
	Buy  ConditionList `json:"buy_conditions"`
	Sell ConditionList `json:"sell_conditions"`
}

// SizingMethod selects how the allocator turns a signal into an amount.
type SizingMethod string

const (
	SizeEqualWeight      SizingMethod = "equal-weight"
	SizeRiskParity       SizingMethod = "risk-parity"
	SizeVolatilityTarget SizingMethod = "volatility-target"
	SizeKelly            SizingMethod = "kelly"
	SizeFixedFraction    SizingMethod = "fixed-fraction"
)

// RiskConfig is the per-strategy risk management configuration.
type RiskConfig struct {
	Sizing        SizingMethod `json:"position_sizing"`
	SizingValue   float64      `json:"sizing_value"`
	StopLossPct   float64      `json:"stop_loss_pct"`
	TakeProfitPct float64      `json:"take_profit_pct"`
	MaxDrawdown   float64      `json:"max_drawdown"`
	MinConfidence float64      `json:"min_confidence"`
}

// Strategy is a resolved strategy definition. Parsing and structural
// validation of the declarative document happen outside the core.
type Strategy struct {
	ID       string        `json:"id"`
	Name     string        `json:"name"`
	Type     string        `json:"type,omitempty"`
	Version  string        `json:"version,omitempty"`
	Symbol   string        `json:"symbol"`
	Sector   string        `json:"sector,omitempty"`
	Interval time.Duration `json:"interval"`
	Rules    RuleSpec      `json:"rules"`
	Risk     RiskConfig    `json:"risk_management"`
}
