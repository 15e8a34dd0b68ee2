package risk

import (
	"math"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/vrachnos/steer/internal/model"
)

var frozen = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

func newTestManager() *Manager {
	return New(NewLimits(), nil).WithClock(func() time.Time { return frozen })
}

func portfolio(total float64, positions map[string]float64) model.PortfolioState {
	t := decimal.NewFromFloat(total)
	pp := make(map[string]decimal.Decimal, len(positions))
	ww := make(map[string]decimal.Decimal, len(positions))
	for k, v := range positions {
		pp[k] = decimal.NewFromFloat(v)
		ww[k] = decimal.NewFromFloat(v).Div(t)
	}
	return model.PortfolioState{
		TotalValue: t,
		Positions:  pp,
		Weights:    ww,
		LastUpdate: frozen,
	}
}

func signalWith(quantity, price float64) model.TradingSignal {
	return model.TradingSignal{
		ID:          "sig-1",
		StrategyID:  "s1",
		Symbol:      "BTC",
		Type:        model.Buy,
		Timestamp:   frozen,
		Quantity:    decimal.NewFromFloat(quantity),
		PriceTarget: decimal.NewFromFloat(price),
		Validity:    time.Hour,
		Market:      model.Conditions{"volume_ratio": 2},
	}
}

// 200 shares at $150 in a $10k portfolio is a 300% exposure
func TestManager_OversizedSignalIsCritical(t *testing.T) {

	m := newTestManager()

	assessment := m.AssessSignal(signalWith(200, 150), portfolio(10000, nil))

	assert.Equal(t, model.RiskCritical, assessment.Level)
	assert.False(t, assessment.Acceptable)

	position := assessment.Metrics[0]
	assert.Equal(t, "position_risk", position.Name)
	assert.InDelta(t, 3.0, position.Current, 1e-9)
	assert.True(t, position.Breach)
	assert.True(t, position.Severity > 1)
	assert.Contains(t, assessment.Reason, "position_risk")
}

// acceptability flips at exactly 0.5 breach severity
func TestManager_SeverityBoundary(t *testing.T) {

	limits := NewLimits()

	type test struct {
		exposure   float64
		acceptable bool
		severity   float64
	}

	// severity = (exposure/total - 0.2) / 0.2
	tests := map[string]test{
		"severity-0.5": {
			exposure:   0.3 * 10000,
			acceptable: false,
			severity:   0.5,
		},
		"severity-0.499": {
			exposure:   0.2998 * 10000,
			acceptable: true,
			severity:   0.499,
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			m := New(limits, nil).WithClock(func() time.Time { return frozen })
			assessment := m.AssessSignal(signalWith(tt.exposure/100, 100), portfolio(10000, nil))
			assert.Equal(t, tt.acceptable, assessment.Acceptable)
			assert.Equal(t, tt.severity, assessment.Metrics[0].Severity)
		})
	}
}

func TestManager_ConfidenceAdjustment(t *testing.T) {

	m := newTestManager()

	// no breaches: full confidence
	clean := m.AssessSignal(signalWith(10, 100), portfolio(10000, nil))
	assert.True(t, clean.Acceptable)
	assert.Equal(t, 1.0, clean.ConfidenceAdjustment)

	// a heavy breach cuts up to 30% per metric, floored at 0.1
	heavy := m.AssessSignal(signalWith(200, 150), portfolio(10000, nil))
	assert.True(t, heavy.ConfidenceAdjustment <= 0.7)
	assert.True(t, heavy.ConfidenceAdjustment >= 0.1)
}

func TestManager_BudgetUsage(t *testing.T) {

	m := newTestManager()

	assessment := m.AssessSignal(signalWith(10, 100), portfolio(10000, nil))
	assert.True(t, assessment.BudgetUsage > 0)
	assert.True(t, assessment.BudgetUsage <= 1)
}

func TestManager_AssessStrategy(t *testing.T) {

	m := newTestManager()
	strategy := model.Strategy{ID: "s1", Symbol: "BTC"}

	// a single position portfolio is fully concentrated
	assessment := m.AssessStrategy(strategy, portfolio(10000, map[string]float64{"ETH": 10000}))

	var names []string
	for _, metric := range assessment.Metrics {
		names = append(names, metric.Name)
	}
	assert.Equal(t, []string{"concentration", "volatility", "drawdown_risk"}, names)

	concentrationMetric := assessment.Metrics[0]
	assert.Equal(t, 1.0, concentrationMetric.Current)
	assert.True(t, concentrationMetric.Breach)
	assert.False(t, assessment.Acceptable)
}

func TestManager_CalculatePortfolioRisk(t *testing.T) {

	m := newTestManager()
	state := portfolio(10000, map[string]float64{"BTC": 5000, "ETH": 5000})

	risk := m.CalculatePortfolioRisk(state)

	// no history: the placeholder volatility and the 2 position factor apply
	assert.Equal(t, defaultVolatility, risk.AvgVolatility)
	assert.Equal(t, 0.9, risk.Diversification)

	expected1d := 10000 * defaultVolatility * 0.9 * math.Sqrt(1.0/252) * varConfidence
	got1d, _ := risk.VaR1d.Float64()
	assert.InDelta(t, expected1d, got1d, 1e-6)

	got7d, _ := risk.VaR7d.Float64()
	assert.InDelta(t, expected1d*math.Sqrt(7), got7d, 1e-6)

	gotES, _ := risk.ExpectedShortfall.Float64()
	assert.InDelta(t, expected1d*1.3, gotES, 1e-6)

	// two equal positions: fully diversified, zero normalised HHI
	assert.InDelta(t, 0.0, risk.Concentration, 1e-9)
}

func TestManager_CorrelationRisk(t *testing.T) {

	m := newTestManager()
	for _, p := range []float64{100, 102, 101, 105, 103, 108} {
		m.History().Push("BTC", p)
		m.History().Push("ETH", p*3)
	}

	state := portfolio(10000, map[string]float64{"ETH": 5000})
	risk := m.correlationRisk("BTC", state)

	// lockstep series correlate perfectly
	assert.InDelta(t, 1.0, risk, 1e-9)

	// no held positions: nothing to correlate against
	assert.Equal(t, 0.0, m.correlationRisk("BTC", portfolio(10000, nil)))
}
