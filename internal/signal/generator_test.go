package signal

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/vrachnos/steer/internal/model"
)

var frozen = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

type stubMarket struct {
	price      decimal.Decimal
	priceErr   error
	conditions model.Conditions
}

func (m *stubMarket) CurrentPrice(_ context.Context, _ string) (decimal.Decimal, error) {
	return m.price, m.priceErr
}

func (m *stubMarket) MarketConditions(_ context.Context, _ string) (model.Conditions, error) {
	if m.conditions == nil {
		return nil, fmt.Errorf("no conditions")
	}
	return m.conditions, nil
}

func (m *stubMarket) Snapshot(_ context.Context, _ string, _ string) (model.Snapshot, error) {
	return model.Snapshot{}, fmt.Errorf("not implemented")
}

func newTestGenerator(market *stubMarket) *Generator {
	return New(NewConfig(), market).WithClock(func() time.Time { return frozen })
}

func buyResult(confidence, quality float64) model.EvaluationResult {
	return model.EvaluationResult{
		StrategyID:    "s1",
		Symbol:        "BTC",
		Timestamp:     frozen,
		Status:        model.EvaluationSuccess,
		BuyTriggered:  true,
		BuyConfidence: confidence,
		DataQuality:   quality,
		BuyDetails: []model.ConditionDetail{
			{ConditionID: "buy-0", Indicator: "rsi", Operator: "<", Threshold: []float64{30}, Observed: 25, Met: true, Confidence: confidence},
		},
	}
}

func portfolio(cash float64, positions map[string]float64) model.PortfolioState {
	pp := make(map[string]decimal.Decimal, len(positions))
	for k, v := range positions {
		pp[k] = decimal.NewFromFloat(v)
	}
	return model.PortfolioState{
		TotalValue: decimal.NewFromFloat(cash),
		Cash:       decimal.NewFromFloat(cash),
		Positions:  pp,
	}
}

func TestGenerator_Buy(t *testing.T) {

	market := &stubMarket{
		price:      decimal.NewFromInt(100),
		conditions: model.Conditions{"volume_ratio": 2},
	}
	g := newTestGenerator(market)

	riskCfg := model.RiskConfig{
		SizingValue:   0.1,
		StopLossPct:   0.05,
		TakeProfitPct: 0.1,
	}

	signals, err := g.Generate(context.Background(), buyResult(0.8, 1), riskCfg, portfolio(10000, nil))
	assert.NoError(t, err)
	assert.Len(t, signals, 1)

	s := signals[0]
	assert.Equal(t, model.Buy, s.Type)
	assert.Equal(t, "s1", s.StrategyID)
	assert.True(t, decimal.NewFromInt(10).Equal(s.Quantity), "quantity = %s", s.Quantity)
	assert.True(t, decimal.NewFromInt(95).Equal(s.StopLoss), "stop loss = %s", s.StopLoss)
	assert.True(t, decimal.NewFromInt(110).Equal(s.TakeProfit), "take profit = %s", s.TakeProfit)
	assert.Equal(t, model.TierHigh, s.Tier)
	assert.Equal(t, []string{"buy-0"}, s.Conditions)
	assert.Contains(t, s.Reasoning, "rsi < [30]")
	assert.True(t, s.IsValid(frozen))
	assert.NotEmpty(t, s.ID)
}

func TestGenerator_Preconditions(t *testing.T) {

	type test struct {
		result model.EvaluationResult
	}

	failed := buyResult(0.8, 1)
	failed.Status = model.EvaluationFailed

	tests := map[string]test{
		"failed-evaluation": {result: failed},
		"low-data-quality":  {result: buyResult(0.8, 0.2)},
		"low-confidence":    {result: buyResult(0.4, 1)},
		"nothing-triggered": {result: model.EvaluationResult{Status: model.EvaluationSuccess, DataQuality: 1}},
	}

	market := &stubMarket{price: decimal.NewFromInt(100), conditions: model.Conditions{}}
	g := newTestGenerator(market)

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			signals, err := g.Generate(context.Background(), tt.result, model.RiskConfig{MinConfidence: 0.6}, portfolio(10000, nil))
			assert.NoError(t, err)
			assert.Empty(t, signals)
		})
	}
}

func TestGenerator_PriceFailureAborts(t *testing.T) {

	market := &stubMarket{priceErr: fmt.Errorf("feed down"), conditions: model.Conditions{}}
	g := newTestGenerator(market)

	signals, err := g.Generate(context.Background(), buyResult(0.8, 1), model.RiskConfig{}, portfolio(10000, nil))
	assert.Error(t, err)
	assert.Empty(t, signals)
}

func TestGenerator_SellNeedsHoldings(t *testing.T) {

	result := model.EvaluationResult{
		StrategyID:     "s1",
		Symbol:         "BTC",
		Status:         model.EvaluationSuccess,
		SellTriggered:  true,
		SellConfidence: 0.8,
		DataQuality:    1,
	}

	market := &stubMarket{price: decimal.NewFromInt(100), conditions: model.Conditions{}}
	g := newTestGenerator(market)

	// no position held: no sell signal
	signals, err := g.Generate(context.Background(), result, model.RiskConfig{}, portfolio(10000, nil))
	assert.NoError(t, err)
	assert.Empty(t, signals)

	// held position: sell the whole of it
	signals, err = g.Generate(context.Background(), result, model.RiskConfig{}, portfolio(10000, map[string]float64{"BTC": 2000}))
	assert.NoError(t, err)
	assert.Len(t, signals, 1)
	assert.Equal(t, model.Sell, signals[0].Type)
	assert.True(t, decimal.NewFromInt(20).Equal(signals[0].Quantity), "quantity = %s", signals[0].Quantity)
}

func TestGenerator_ProtectiveSignals(t *testing.T) {

	result := model.EvaluationResult{
		StrategyID:  "s1",
		Symbol:      "BTC",
		Status:      model.EvaluationSuccess,
		DataQuality: 1,
		// sell side not triggered overall, only the protective conditions
		SellTriggered: false,
		SellDetails: []model.ConditionDetail{
			{ConditionID: "sell-0", Indicator: "rsi", Operator: ">", Threshold: []float64{70}, Met: false},
			{ConditionID: "sell-1", Indicator: "stop_loss", Operator: "<", Threshold: []float64{95}, Observed: 94, Met: true, Confidence: 0.4},
			{ConditionID: "sell-2", Indicator: "take_profit", Operator: ">", Threshold: []float64{120}, Observed: 121, Met: true, Confidence: 0.4},
		},
	}

	market := &stubMarket{price: decimal.NewFromInt(94), conditions: model.Conditions{}}
	g := newTestGenerator(market)

	signals, err := g.Generate(context.Background(), result, model.RiskConfig{}, portfolio(10000, map[string]float64{"BTC": 940}))
	assert.NoError(t, err)
	assert.Len(t, signals, 2)

	stop := signals[0]
	assert.Equal(t, model.StopLoss, stop.Type)
	assert.Equal(t, model.PriorityCritical, stop.Priority)
	assert.Equal(t, 5*time.Minute, stop.Validity)
	assert.Equal(t, []string{"sell-1"}, stop.Conditions)

	take := signals[1]
	assert.Equal(t, model.TakeProfit, take.Type)
	assert.Equal(t, model.PriorityHigh, take.Priority)

	// short validity: stale within minutes
	assert.False(t, stop.IsValid(frozen.Add(5*time.Minute)))
}

func TestGenerator_FilterDropsWeakSignals(t *testing.T) {

	cfg := NewConfig()
	cfg.MinConfidence = 0.3
	cfg.Filter = FilterConfig{
		MinConfidence:  0.5,
		MinVolumeRatio: 1.5,
	}

	market := &stubMarket{price: decimal.NewFromInt(100), conditions: model.Conditions{"volume_ratio": 2}}
	g := New(cfg, market).WithClock(func() time.Time { return frozen })

	// confidence passes the trigger floor but not the quality filter
	signals, err := g.Generate(context.Background(), buyResult(0.4, 1), model.RiskConfig{}, portfolio(10000, nil))
	assert.NoError(t, err)
	assert.Empty(t, signals)

	// thin volume drops the signal even at high confidence
	market.conditions = model.Conditions{"volume_ratio": 1.0}
	signals, err = g.Generate(context.Background(), buyResult(0.8, 1), model.RiskConfig{}, portfolio(10000, nil))
	assert.NoError(t, err)
	assert.Empty(t, signals)
}
