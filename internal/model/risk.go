package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// RiskLevel is a 6 point ordinal scale of riskiness.
type RiskLevel int

const (
	RiskVeryLow RiskLevel = iota
	RiskLow
	RiskModerate
	RiskHigh
	RiskVeryHigh
	RiskCritical
)

func (l RiskLevel) String() string {
	switch l {
	case RiskVeryLow:
		return "very-low"
	case RiskLow:
		return "low"
	case RiskModerate:
		return "moderate"
	case RiskHigh:
		return "high"
	case RiskVeryHigh:
		return "very-high"
	case RiskCritical:
		return "critical"
	}
	return "unknown"
}

// RiskMetric is one named risk measurement against its configured limit.
type RiskMetric struct {
	Name    string  `json:"name"`
	Current float64 `json:"current"`
	Limit   float64 `json:"limit"`
	Breach  bool    `json:"breach"`
	// Severity is max(0,(current-limit)/limit).
	Severity float64 `json:"severity"`
}

// RiskAssessment is the risk manager's verdict on a signal or strategy.
type RiskAssessment struct {
	ID              string       `json:"id"`
	Timestamp       time.Time    `json:"timestamp"`
	Level           RiskLevel    `json:"level"`
	Acceptable      bool         `json:"acceptable"`
	Metrics         []RiskMetric `json:"metrics"`
	Reason          string       `json:"reason,omitempty"`
	Recommendations []string     `json:"recommendations,omitempty"`
	// ConfidenceAdjustment multiplies the signal confidence downstream.
	ConfidenceAdjustment float64 `json:"confidence_adjustment"`
	// BudgetUsage is the average current/limit across metrics, in [0,1].
	BudgetUsage float64 `json:"budget_usage"`
}

// PortfolioRisk aggregates portfolio level risk estimates.
type PortfolioRisk struct {
	VaR1d             decimal.Decimal `json:"var_1d"`
	VaR7d             decimal.Decimal `json:"var_7d"`
	VaR30d            decimal.Decimal `json:"var_30d"`
	ExpectedShortfall decimal.Decimal `json:"expected_shortfall"`
	AvgVolatility     float64         `json:"avg_volatility"`
	Diversification   float64         `json:"diversification"`
	// Concentration is a normalised Herfindahl-Hirschman index in [0,1].
	Concentration float64 `json:"concentration"`
}
