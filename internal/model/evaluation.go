package model

import (
	"time"
)

// EvaluationStatus describes the outcome class of a rule evaluation.
type EvaluationStatus string

const (
	EvaluationSuccess          EvaluationStatus = "success"
	EvaluationPartial          EvaluationStatus = "partial"
	EvaluationFailed           EvaluationStatus = "failed"
	EvaluationTimeout          EvaluationStatus = "timeout"
	EvaluationInsufficientData EvaluationStatus = "insufficient-data"
)

// EvaluationContext carries everything a single rule evaluation needs.
// It is created per call and not retained afterwards.
type EvaluationContext struct {
	StrategyID string
	Symbol     string
	Timestamp  time.Time
	Market     Snapshot
	Portfolio  PortfolioState
	// Indicators optionally carries pre-computed indicator values,
	// e.g. from an external indicator service or a warm cache.
	Indicators map[string]float64
}

// ConditionDetail is the trace of a single condition evaluation.
type ConditionDetail struct {
	ConditionID string        `json:"condition_id"`
	Indicator   string        `json:"indicator"`
	Operator    string        `json:"operator"`
	Threshold   []float64     `json:"threshold"`
	Observed    float64       `json:"observed"`
	Met         bool          `json:"met"`
	Confidence  float64       `json:"confidence"`
	Latency     time.Duration `json:"latency"`
	Error       string        `json:"error,omitempty"`
}

// EvaluationResult is the immutable outcome of evaluating a compiled rule
// against an EvaluationContext.
type EvaluationResult struct {
	StrategyID     string            `json:"strategy_id"`
	Symbol         string            `json:"symbol"`
	Timestamp      time.Time         `json:"timestamp"`
	BuyTriggered   bool              `json:"buy_triggered"`
	SellTriggered  bool              `json:"sell_triggered"`
	BuyConfidence  float64           `json:"buy_confidence"`
	SellConfidence float64           `json:"sell_confidence"`
	BuyDetails     []ConditionDetail `json:"buy_details"`
	SellDetails    []ConditionDetail `json:"sell_details"`
	Status         EvaluationStatus  `json:"status"`
	Latency        time.Duration     `json:"latency"`
	DataQuality    float64           `json:"data_quality"`
	Errors         []string          `json:"errors,omitempty"`
}

// Ok reports whether the evaluation produced usable results.
func (r EvaluationResult) Ok() bool {
	return r.Status == EvaluationSuccess || r.Status == EvaluationPartial
}
