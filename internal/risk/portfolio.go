package risk

import (
	"github.com/shopspring/decimal"
	coinmath "github.com/vrachnos/steer/internal/math"
	"github.com/vrachnos/steer/internal/model"
)

// varConfidence is the 95% one-tailed normal quantile.
const varConfidence = 1.65

// expectedShortfallFactor scales the 1 day VaR to its tail expectation.
// Placeholder constant, see the package estimates note.
const expectedShortfallFactor = 1.3

// CalculatePortfolioRisk derives VaR style estimates and a concentration
// score for the portfolio snapshot.
func (m *Manager) CalculatePortfolioRisk(state model.PortfolioState) model.PortfolioRisk {
	avgVol := m.avgVolatility(state)
	diversification := diversificationFactor(len(state.Positions))

	varAt := func(days float64) decimal.Decimal {
		factor := avgVol * diversification * coinmath.SqrtRatio(days, 252) * varConfidence
		return state.TotalValue.Mul(decimal.NewFromFloat(factor))
	}

	var1d := varAt(1)
	return model.PortfolioRisk{
		VaR1d:             var1d,
		VaR7d:             varAt(7),
		VaR30d:            varAt(30),
		ExpectedShortfall: var1d.Mul(decimal.NewFromFloat(expectedShortfallFactor)),
		AvgVolatility:     avgVol,
		Diversification:   diversification,
		Concentration:     concentration(state),
	}
}

// avgVolatility averages the per-position volatility estimates, falling
// back to the placeholder when no history is available.
func (m *Manager) avgVolatility(state model.PortfolioState) float64 {
	if len(state.Positions) == 0 {
		return defaultVolatility
	}
	sum := 0.0
	for symbol := range state.Positions {
		vol, ok := m.history.Volatility(symbol)
		if !ok || vol <= 0 {
			vol = defaultVolatility
		}
		sum += vol
	}
	return sum / float64(len(state.Positions))
}

// diversificationFactor discounts portfolio variance by position count.
// Placeholder table, not a data-derived estimate.
func diversificationFactor(positions int) float64 {
	switch {
	case positions <= 1:
		return 1
	case positions <= 3:
		return 0.9
	case positions <= 10:
		return 0.8
	}
	return 0.7
}

// concentration is the Herfindahl-Hirschman index of position weights,
// normalised to [0,1] where 1 is a single-position portfolio.
func concentration(state model.PortfolioState) float64 {
	n := len(state.Weights)
	if n == 0 {
		return 0
	}
	if n == 1 {
		return 1
	}
	hhi := 0.0
	total := 0.0
	for _, w := range state.Weights {
		weight, _ := w.Float64()
		total += weight
	}
	if total == 0 {
		return 0
	}
	for _, w := range state.Weights {
		weight, _ := w.Float64()
		weight /= total
		hhi += weight * weight
	}
	inverse := 1 / float64(n)
	return coinmath.Clamp01((hhi - inverse) / (1 - inverse))
}
