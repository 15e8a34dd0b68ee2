package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// PortfolioState is a read-only snapshot of the portfolio. The pipeline
// components never mutate it, they return intents.
type PortfolioState struct {
	TotalValue      decimal.Decimal            `json:"total_value"`
	Cash            decimal.Decimal            `json:"cash"`
	Invested        decimal.Decimal            `json:"invested"`
	Positions       map[string]decimal.Decimal `json:"positions"`
	Weights         map[string]decimal.Decimal `json:"weights"`
	SectorWeights   map[string]decimal.Decimal `json:"sector_weights"`
	StrategyWeights map[string]decimal.Decimal `json:"strategy_weights"`
	LastUpdate      time.Time                  `json:"last_update"`
}

// CashPct returns the cash fraction of the total portfolio value.
func (p PortfolioState) CashPct() decimal.Decimal {
	if p.TotalValue.IsZero() {
		return decimal.Zero
	}
	return p.Cash.Div(p.TotalValue)
}

// Weight returns the current weight of the symbol, zero if not held.
func (p PortfolioState) Weight(symbol string) decimal.Decimal {
	return p.Weights[symbol]
}

// Position returns the current value held in the symbol, zero if not held.
func (p PortfolioState) Position(symbol string) decimal.Decimal {
	return p.Positions[symbol]
}

// AllocationStatus is the outcome class of an allocation attempt.
type AllocationStatus string

const (
	AllocationApproved AllocationStatus = "approved"
	AllocationRejected AllocationStatus = "rejected"
	AllocationPending  AllocationStatus = "pending"
	AllocationPartial  AllocationStatus = "partial"
)

// PositionAllocation is a signed value adjustment intent for one symbol.
type PositionAllocation struct {
	Symbol        string          `json:"symbol"`
	Value         decimal.Decimal `json:"value"`
	CurrentWeight decimal.Decimal `json:"current_weight"`
	TargetWeight  decimal.Decimal `json:"target_weight"`
	// Priority ranks the adjustment into 5 buckets, 1 being most urgent.
	Priority int `json:"priority"`
}

// AllocationResult is the allocator's verdict for one signal.
type AllocationResult struct {
	SignalID   string               `json:"signal_id"`
	StrategyID string               `json:"strategy_id"`
	Status     AllocationStatus     `json:"status"`
	Amount     decimal.Decimal      `json:"amount"`
	Pct        decimal.Decimal      `json:"pct"`
	Positions  []PositionAllocation `json:"positions,omitempty"`
	Respected  []string             `json:"respected,omitempty"`
	Violated   []string             `json:"violated,omitempty"`
	Reason     string               `json:"reason,omitempty"`
	// ConfidenceImpact multiplies the signal confidence downstream.
	ConfidenceImpact float64 `json:"confidence_impact"`
}

// Approved reports whether any capital was allocated.
func (a AllocationResult) Approved() bool {
	return a.Status == AllocationApproved || a.Status == AllocationPartial
}
