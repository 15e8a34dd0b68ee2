package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Type is the kind of action a trading signal asks for.
type Type string

const (
	Buy        Type = "buy"
	Sell       Type = "sell"
	Hold       Type = "hold"
	StopLoss   Type = "stop-loss"
	TakeProfit Type = "take-profit"
	Rebalance  Type = "rebalance"
)

// Tier buckets a confidence value.
type Tier string

const (
	TierLow      Tier = "low"
	TierMedium   Tier = "medium"
	TierHigh     Tier = "high"
	TierVeryHigh Tier = "very-high"
)

// TierFor derives the confidence tier from the raw confidence value.
func TierFor(confidence float64) Tier {
	switch {
	case confidence >= 0.85:
		return TierVeryHigh
	case confidence >= 0.7:
		return TierHigh
	case confidence >= 0.5:
		return TierMedium
	default:
		return TierLow
	}
}

// Priority orders signals for routing and execution.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// PriorityFor derives the routing priority from the signal type and its
// confidence. Protective signals always outrank confidence.
func PriorityFor(t Type, confidence float64) Priority {
	switch t {
	case StopLoss:
		return PriorityCritical
	case TakeProfit:
		return PriorityHigh
	}
	switch TierFor(confidence) {
	case TierVeryHigh:
		return PriorityHigh
	case TierHigh:
		return PriorityMedium
	default:
		return PriorityLow
	}
}

// TradingSignal is a concrete, prioritised call to action produced by the
// signal generator. Monetary fields use fixed point decimals.
// A zero decimal means the field was not set.
type TradingSignal struct {
	ID          string             `json:"id"`
	StrategyID  string             `json:"strategy_id"`
	Symbol      string             `json:"symbol"`
	Type        Type               `json:"type"`
	Timestamp   time.Time          `json:"timestamp"`
	Confidence  float64            `json:"confidence"`
	Tier        Tier               `json:"tier"`
	Priority    Priority           `json:"priority"`
	PriceTarget decimal.Decimal    `json:"price_target"`
	Quantity    decimal.Decimal    `json:"quantity"`
	StopLoss    decimal.Decimal    `json:"stop_loss"`
	TakeProfit  decimal.Decimal    `json:"take_profit"`
	Conditions  []string           `json:"conditions,omitempty"`
	Reasoning   string             `json:"reasoning,omitempty"`
	Validity    time.Duration      `json:"validity"`
	Market      Conditions         `json:"market,omitempty"`
	RiskMetrics map[string]float64 `json:"risk_metrics,omitempty"`
	Meta        map[string]string  `json:"meta,omitempty"`
}

// Expiry returns the instant at which the signal goes stale.
func (s TradingSignal) Expiry() time.Time {
	return s.Timestamp.Add(s.Validity)
}

// IsValid reports whether the signal is still actionable at the given time.
// The signal is valid up to, but not at, its expiry instant.
func (s TradingSignal) IsValid(now time.Time) bool {
	return now.Before(s.Expiry())
}

// Exposure returns the monetary exposure the signal asks for.
func (s TradingSignal) Exposure() decimal.Decimal {
	return s.Quantity.Mul(s.PriceTarget)
}
