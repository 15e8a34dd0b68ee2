// Package allocate sizes and constrains capital for trading signals.
// The allocator never mutates the portfolio state, it returns intents.
package allocate

import (
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"github.com/vrachnos/steer/internal/buffer"
	"github.com/vrachnos/steer/internal/metrics"
	"github.com/vrachnos/steer/internal/model"
)

// Kelly sizing placeholder statistics. Real deployments should replace
// these with measured win/loss averages.
const (
	kellyAvgWin  = 1.5
	kellyAvgLoss = 1.0
)

// defaultVolatility is assumed when no return history is available.
const defaultVolatility = 0.25

// constraint names quoted in allocation results
const (
	constraintPositionWeight = "max_position_weight"
	constraintSectorWeight   = "max_sector_weight"
	constraintMinCash        = "min_cash"
	constraintStrategyWeight = "max_strategy_weight"
)

// Config bounds the allocator.
type Config struct {
	Method            model.SizingMethod `json:"method"`
	MinCashPct        decimal.Decimal    `json:"min_cash_pct"`
	MaxPositionWeight decimal.Decimal    `json:"max_position_weight"`
	MaxSectorWeight   decimal.Decimal    `json:"max_sector_weight"`
	MaxStrategyWeight decimal.Decimal    `json:"max_strategy_weight"`
	MinConfidence     float64            `json:"min_confidence"`
	TargetVolatility  float64            `json:"target_volatility"`
	// RebalanceThreshold is the weight drift above which a rebalance
	// adjustment is proposed.
	RebalanceThreshold decimal.Decimal   `json:"rebalance_threshold"`
	Sectors            map[string]string `json:"sectors,omitempty"`
}

// NewConfig returns conservative allocation defaults.
func NewConfig() Config {
	return Config{
		Method:             model.SizeEqualWeight,
		MinCashPct:         decimal.NewFromFloat(0.05),
		MaxPositionWeight:  decimal.NewFromFloat(0.15),
		MaxSectorWeight:    decimal.NewFromFloat(0.3),
		MaxStrategyWeight:  decimal.NewFromFloat(0.25),
		MinConfidence:      0.3,
		TargetVolatility:   0.15,
		RebalanceThreshold: decimal.NewFromFloat(0.02),
	}
}

// Allocator decides how much capital a signal receives.
type Allocator struct {
	cfg     Config
	history *buffer.History
	now     func() time.Time
}

// New creates a new allocator. The history feeds volatility based sizing
// and may be shared with the risk manager.
func New(cfg Config, history *buffer.History) *Allocator {
	if history == nil {
		history = buffer.NewHistory(64)
	}
	return &Allocator{
		cfg:     cfg,
		history: history,
		now:     time.Now,
	}
}

// WithClock overrides the allocator clock, for tests.
func (a *Allocator) WithClock(now func() time.Time) *Allocator {
	a.now = now
	return a
}

// Allocate runs the allocation state machine for one signal:
// preliminary checks, amount calculation, constraint checks, and a single
// shrink-and-recheck pass before approval or rejection.
func (a *Allocator) Allocate(signal model.TradingSignal, state model.PortfolioState) model.AllocationResult {
	result := model.AllocationResult{
		SignalID:         signal.ID,
		StrategyID:       signal.StrategyID,
		Status:           model.AllocationRejected,
		ConfidenceImpact: 1,
	}

	defer func() {
		metrics.Observer.IncrementAllocations(signal.StrategyID, string(result.Status))
		if result.Status == model.AllocationRejected {
			log.Debug().
				Str("signal", signal.ID).
				Str("strategy", signal.StrategyID).
				Str("reason", result.Reason).
				Msg("allocation rejected")
		}
	}()

	// preliminary checks run before any amount calculation
	if reason, ok := a.preliminary(signal, state); !ok {
		result.Reason = reason
		return result
	}

	if signal.Type == model.Sell || signal.Type == model.StopLoss || signal.Type == model.TakeProfit {
		return a.release(signal, state, result)
	}

	amount := a.amount(signal, state)
	if amount.LessThanOrEqual(decimal.Zero) {
		result.Reason = "computed amount is not positive"
		return result
	}
	if amount.GreaterThan(state.Cash) {
		amount = state.Cash
	}

	checks := a.constraints(signal, state, amount)
	violated := violations(checks)

	status := model.AllocationApproved
	if len(violated) > 0 {
		// shrink to the tightest remaining headroom instead of rejecting
		headroom := tightest(checks)
		if headroom.LessThanOrEqual(decimal.Zero) {
			result.Violated = violated
			result.Reason = fmt.Sprintf("no headroom left under %v", violated)
			return result
		}
		amount = headroom
		status = model.AllocationPartial
		checks = a.constraints(signal, state, amount)
		if rest := violations(checks); len(rest) > 0 {
			result.Violated = rest
			result.Reason = fmt.Sprintf("constraints still violated after adjustment: %v", rest)
			return result
		}
	}

	pct := decimal.Zero
	if !state.TotalValue.IsZero() {
		pct = amount.Div(state.TotalValue)
	}

	result.Status = status
	result.Amount = amount
	result.Pct = pct
	result.Respected = respected(checks)
	result.ConfidenceImpact = impact(pct)
	result.Positions = []model.PositionAllocation{{
		Symbol:        signal.Symbol,
		Value:         amount,
		CurrentWeight: state.Weight(signal.Symbol),
		TargetWeight:  state.Weight(signal.Symbol).Add(pct),
		Priority:      1,
	}}
	return result
}

func (a *Allocator) preliminary(signal model.TradingSignal, state model.PortfolioState) (string, bool) {
	if !signal.IsValid(a.now()) {
		return "signal expired", false
	}
	// releases of existing positions skip the cash and confidence gates
	if signal.Type == model.Sell || signal.Type == model.StopLoss || signal.Type == model.TakeProfit {
		return "", true
	}
	if state.CashPct().LessThan(a.cfg.MinCashPct) {
		return fmt.Sprintf("insufficient cash: %s%% of portfolio, minimum %s%%",
			state.CashPct().Mul(decimal.NewFromInt(100)).StringFixed(2),
			a.cfg.MinCashPct.Mul(decimal.NewFromInt(100)).StringFixed(2)), false
	}
	if signal.Confidence < a.cfg.MinConfidence {
		return fmt.Sprintf("confidence %.2f below floor %.2f", signal.Confidence, a.cfg.MinConfidence), false
	}
	return "", true
}

// release approves freeing an existing position, capped at the held value.
func (a *Allocator) release(signal model.TradingSignal, state model.PortfolioState, result model.AllocationResult) model.AllocationResult {
	held := state.Position(signal.Symbol)
	if held.IsZero() {
		result.Reason = fmt.Sprintf("no position held in %s", signal.Symbol)
		return result
	}
	amount := signal.Exposure()
	if amount.IsZero() || amount.GreaterThan(held) {
		amount = held
	}
	pct := decimal.Zero
	if !state.TotalValue.IsZero() {
		pct = amount.Div(state.TotalValue)
	}
	result.Status = model.AllocationApproved
	result.Amount = amount
	result.Pct = pct
	result.Positions = []model.PositionAllocation{{
		Symbol:        signal.Symbol,
		Value:         amount.Neg(),
		CurrentWeight: state.Weight(signal.Symbol),
		TargetWeight:  state.Weight(signal.Symbol).Sub(pct),
		Priority:      1,
	}}
	return result
}

// amount computes the raw allocation amount per the configured method.
func (a *Allocator) amount(signal model.TradingSignal, state model.PortfolioState) decimal.Decimal {
	total := state.TotalValue
	switch a.cfg.Method {
	case model.SizeRiskParity:
		return a.volSized(signal.Symbol, total, 0.01, 0.10)
	case model.SizeVolatilityTarget:
		return a.volSized(signal.Symbol, total, 0.02, 0.15)
	case model.SizeKelly:
		return kelly(signal.Confidence, total)
	case model.SizeFixedFraction:
		return total.Mul(decimal.NewFromFloat(0.05))
	default: // equal weight over current positions plus the new one
		n := len(state.Positions)
		if _, held := state.Positions[signal.Symbol]; !held {
			n++
		}
		if n == 0 {
			n = 1
		}
		return total.Div(decimal.NewFromInt(int64(n)))
	}
}

// volSized scales the target volatility by the symbol volatility, with the
// resulting portfolio fraction clamped to [min,max].
func (a *Allocator) volSized(symbol string, total decimal.Decimal, min, max float64) decimal.Decimal {
	vol, ok := a.history.Volatility(symbol)
	if !ok || vol <= 0 {
		vol = defaultVolatility
	}
	fraction := a.cfg.TargetVolatility / vol
	if fraction < min {
		fraction = min
	}
	if fraction > max {
		fraction = max
	}
	return total.Mul(decimal.NewFromFloat(fraction))
}

// kelly sizes by the Kelly criterion f = (b*p - q)/b with placeholder
// win/loss statistics. Negative or sub-50% confidence inputs collapse to
// a minimal 1% allocation.
func kelly(confidence float64, total decimal.Decimal) decimal.Decimal {
	minimal := total.Mul(decimal.NewFromFloat(0.01))
	if confidence < 0.5 {
		return minimal
	}
	b := kellyAvgWin / kellyAvgLoss
	p := confidence
	q := 1 - p
	f := (b*p - q) / b
	if f <= 0 {
		return minimal
	}
	return total.Mul(decimal.NewFromFloat(f))
}

type check struct {
	name     string
	violated bool
	headroom decimal.Decimal
}

// constraints evaluates every limit independently for the given amount.
func (a *Allocator) constraints(signal model.TradingSignal, state model.PortfolioState, amount decimal.Decimal) []check {
	total := state.TotalValue
	if total.IsZero() {
		return []check{{name: constraintMinCash, violated: true, headroom: decimal.Zero}}
	}

	checks := make([]check, 0, 4)

	position := state.Position(signal.Symbol)
	positionLimit := total.Mul(a.cfg.MaxPositionWeight)
	checks = append(checks, check{
		name:     constraintPositionWeight,
		violated: position.Add(amount).GreaterThan(positionLimit),
		headroom: positionLimit.Sub(position),
	})

	if sector, ok := a.cfg.Sectors[signal.Symbol]; ok {
		sectorValue := total.Mul(state.SectorWeights[sector])
		sectorLimit := total.Mul(a.cfg.MaxSectorWeight)
		checks = append(checks, check{
			name:     constraintSectorWeight,
			violated: sectorValue.Add(amount).GreaterThan(sectorLimit),
			headroom: sectorLimit.Sub(sectorValue),
		})
	}

	cashFloor := total.Mul(a.cfg.MinCashPct)
	checks = append(checks, check{
		name:     constraintMinCash,
		violated: state.Cash.Sub(amount).LessThan(cashFloor),
		headroom: state.Cash.Sub(cashFloor),
	})

	strategyValue := total.Mul(state.StrategyWeights[signal.StrategyID])
	strategyLimit := total.Mul(a.cfg.MaxStrategyWeight)
	checks = append(checks, check{
		name:     constraintStrategyWeight,
		violated: strategyValue.Add(amount).GreaterThan(strategyLimit),
		headroom: strategyLimit.Sub(strategyValue),
	})

	return checks
}

func violations(checks []check) []string {
	out := make([]string, 0, len(checks))
	for _, c := range checks {
		if c.violated {
			out = append(out, c.name)
		}
	}
	return out
}

func respected(checks []check) []string {
	out := make([]string, 0, len(checks))
	for _, c := range checks {
		if !c.violated {
			out = append(out, c.name)
		}
	}
	return out
}

// tightest returns the smallest headroom across the violated constraints.
func tightest(checks []check) decimal.Decimal {
	headroom := decimal.Zero
	first := true
	for _, c := range checks {
		if !c.violated {
			continue
		}
		if first || c.headroom.LessThan(headroom) {
			headroom = c.headroom
			first = false
		}
	}
	return headroom
}

// impact penalises allocations that are too small or unusually large.
func impact(pct decimal.Decimal) float64 {
	switch {
	case pct.LessThan(decimal.NewFromFloat(0.01)):
		return 0.8
	case pct.GreaterThan(decimal.NewFromFloat(0.10)):
		return 0.9
	}
	return 1
}
