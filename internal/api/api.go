// Package api defines the narrow interfaces the decision pipeline consumes
// from its collaborators. Implementations live outside the core.
package api

import (
	"context"

	"github.com/shopspring/decimal"
	"github.com/vrachnos/steer/internal/model"
)

// MarketData exposes the low level interface for reading market state.
type MarketData interface {
	// CurrentPrice returns the latest traded price for the symbol.
	CurrentPrice(ctx context.Context, symbol string) (decimal.Decimal, error)
	// MarketConditions returns the current market conditions for the symbol.
	MarketConditions(ctx context.Context, symbol string) (model.Conditions, error)
	// Snapshot returns the market data snapshot for the symbol and timeframe.
	Snapshot(ctx context.Context, symbol string, timeframe string) (model.Snapshot, error)
}

// ExecutionReport is the broker's answer to an executed signal.
type ExecutionReport struct {
	Success   bool            `json:"success"`
	OrderID   string          `json:"order_id,omitempty"`
	FillPrice decimal.Decimal `json:"fill_price"`
	Fees      decimal.Decimal `json:"fees"`
	Error     string          `json:"error,omitempty"`
}

// Execution routes approved signals to the external broker.
type Execution interface {
	ExecuteSignal(ctx context.Context, signal model.TradingSignal) (ExecutionReport, error)
}

// IndicatorService optionally pre-computes derived indicators for a symbol.
// A nil service means the evaluator computes indicators itself.
type IndicatorService interface {
	CalculateIndicators(ctx context.Context, symbol string, snapshot model.Snapshot) (map[string]float64, error)
}

// Portfolio exposes the current portfolio state snapshot.
type Portfolio interface {
	State(ctx context.Context) (model.PortfolioState, error)
}
