package allocate

import (
	"sort"

	"github.com/shopspring/decimal"
	"github.com/vrachnos/steer/internal/model"
)

// ComputeRebalance is a read-only pass over the portfolio that proposes a
// signed value adjustment for every symbol whose weight drifted beyond the
// configured threshold. Adjustments are sorted by drift magnitude and
// ranked into 5 priority buckets.
func (a *Allocator) ComputeRebalance(state model.PortfolioState) []model.PositionAllocation {
	if state.TotalValue.IsZero() || len(state.Positions) == 0 {
		return nil
	}

	targets := a.targets(state)

	out := make([]model.PositionAllocation, 0, len(state.Positions))
	for symbol := range state.Positions {
		current := state.Weight(symbol)
		target := targets[symbol]
		drift := current.Sub(target)
		if drift.Abs().LessThanOrEqual(a.cfg.RebalanceThreshold) {
			continue
		}
		out = append(out, model.PositionAllocation{
			Symbol:        symbol,
			Value:         drift.Neg().Mul(state.TotalValue),
			CurrentWeight: current,
			TargetWeight:  target,
		})
	}
	if len(out) == 0 {
		return nil
	}

	sort.Slice(out, func(i, j int) bool {
		di := out[i].CurrentWeight.Sub(out[i].TargetWeight).Abs()
		dj := out[j].CurrentWeight.Sub(out[j].TargetWeight).Abs()
		return di.GreaterThan(dj)
	})

	// bucket by drift relative to the largest one: bucket 1 is most urgent
	max := out[0].CurrentWeight.Sub(out[0].TargetWeight).Abs()
	for i := range out {
		d := out[i].CurrentWeight.Sub(out[i].TargetWeight).Abs()
		ratio, _ := d.Div(max).Float64()
		bucket := 5 - int(ratio*4)
		if bucket < 1 {
			bucket = 1
		}
		if bucket > 5 {
			bucket = 5
		}
		out[i].Priority = bucket
	}
	return out
}

// targets computes the target weight per held symbol for the configured
// sizing method, reserving the minimum cash fraction.
func (a *Allocator) targets(state model.PortfolioState) map[string]decimal.Decimal {
	investable := decimal.NewFromInt(1).Sub(a.cfg.MinCashPct)
	targets := make(map[string]decimal.Decimal, len(state.Positions))

	switch a.cfg.Method {
	case model.SizeRiskParity, model.SizeVolatilityTarget:
		// inverse volatility weights, normalised
		inverse := make(map[string]decimal.Decimal, len(state.Positions))
		sum := decimal.Zero
		for symbol := range state.Positions {
			vol, ok := a.history.Volatility(symbol)
			if !ok || vol <= 0 {
				vol = defaultVolatility
			}
			inv := decimal.NewFromFloat(1 / vol)
			inverse[symbol] = inv
			sum = sum.Add(inv)
		}
		for symbol, inv := range inverse {
			targets[symbol] = inv.Div(sum).Mul(investable)
		}
	default: // equal weight
		n := decimal.NewFromInt(int64(len(state.Positions)))
		for symbol := range state.Positions {
			targets[symbol] = investable.Div(n)
		}
	}
	return targets
}
