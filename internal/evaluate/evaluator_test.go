package evaluate

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/vrachnos/steer/internal/model"
	"github.com/vrachnos/steer/internal/rule"
)

var frozen = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

func freshSnapshot(n int) model.Snapshot {
	pp := make([]float64, n)
	for i := range pp {
		pp[i] = 100 + float64(i)
	}
	return model.Snapshot{
		Symbol:    "BTC",
		Timestamp: frozen,
		Prices:    pp,
	}
}

func compile(t *testing.T, spec model.RuleSpec) *rule.CompiledRule {
	r, err := rule.Compile(spec, "test-rule")
	assert.NoError(t, err)
	return r
}

func oversoldRule(t *testing.T) *rule.CompiledRule {
	return compile(t, model.RuleSpec{
		Buy: model.ConditionList{
			Operator: model.AND,
			Conditions: []model.ConditionSpec{
				{Indicator: "rsi", Operator: "<", Value: []float64{30}, Weight: 1},
				{Indicator: "volume_ratio", Operator: ">", Value: []float64{1}, Weight: 1},
			},
		},
	})
}

func newTestEvaluator() *Evaluator {
	return New(NewConfig(), nil).WithClock(func() time.Time { return frozen })
}

// oversold market with strong volume triggers the buy side with high confidence
func TestEvaluator_OversoldBuy(t *testing.T) {

	e := newTestEvaluator()
	result := e.Evaluate(context.Background(), oversoldRule(t), model.EvaluationContext{
		StrategyID: "s1",
		Symbol:     "BTC",
		Timestamp:  frozen,
		Market:     freshSnapshot(30),
		Indicators: map[string]float64{"rsi": 25, "volume_ratio": 2},
	})

	assert.Equal(t, model.EvaluationSuccess, result.Status)
	assert.Equal(t, 1.0, result.DataQuality)
	assert.True(t, result.BuyTriggered)
	assert.True(t, result.BuyConfidence > 0.5)
	assert.False(t, result.SellTriggered)
	assert.Len(t, result.BuyDetails, 2)

	// rsi at 25 against a threshold of 30: 1 * (0.5 + 0.5*(5/30)) * 1.0
	assert.InDelta(t, 0.5+0.5*(5.0/30.0), result.BuyDetails[0].Confidence, 1e-9)
}

func TestEvaluator_ConfidenceBounds(t *testing.T) {

	type test struct {
		indicators map[string]float64
		weights    []float64
		triggered  bool
		zero       bool
	}

	tests := map[string]test{
		"all-met": {
			indicators: map[string]float64{"rsi": 5, "volume_ratio": 100},
			weights:    []float64{1, 1},
			triggered:  true,
		},
		"none-met": {
			indicators: map[string]float64{"rsi": 80, "volume_ratio": 0.1},
			weights:    []float64{1, 1},
			zero:       true,
		},
		"zero-weights": {
			indicators: map[string]float64{"rsi": 5, "volume_ratio": 100},
			weights:    []float64{0, 0},
			triggered:  true,
			zero:       true,
		},
		"uneven-weights": {
			indicators: map[string]float64{"rsi": 25, "volume_ratio": 2},
			weights:    []float64{0.9, 0.1},
			triggered:  true,
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			r := compile(t, model.RuleSpec{
				Buy: model.ConditionList{
					Operator: model.AND,
					Conditions: []model.ConditionSpec{
						{Indicator: "rsi", Operator: "<", Value: []float64{30}, Weight: tt.weights[0]},
						{Indicator: "volume_ratio", Operator: ">", Value: []float64{1}, Weight: tt.weights[1]},
					},
				},
			})
			e := newTestEvaluator()
			result := e.Evaluate(context.Background(), r, model.EvaluationContext{
				StrategyID: "s1",
				Symbol:     "BTC",
				Timestamp:  frozen,
				Market:     freshSnapshot(30),
				Indicators: tt.indicators,
			})
			assert.Equal(t, tt.triggered, result.BuyTriggered)
			assert.True(t, result.BuyConfidence >= 0 && result.BuyConfidence <= 1)
			if tt.zero {
				assert.Equal(t, 0.0, result.BuyConfidence)
			}
		})
	}
}

func TestEvaluator_Idempotent(t *testing.T) {

	e := newTestEvaluator()
	ectx := model.EvaluationContext{
		StrategyID: "s1",
		Symbol:     "BTC",
		Timestamp:  frozen,
		Market:     freshSnapshot(30),
		Indicators: map[string]float64{"rsi": 25, "volume_ratio": 2},
	}

	first := e.Evaluate(context.Background(), oversoldRule(t), ectx)
	second := e.Evaluate(context.Background(), oversoldRule(t), ectx)

	assert.Equal(t, first, second)
}

// one failing indicator must not abort the evaluation
func TestEvaluator_PartialFailure(t *testing.T) {

	r := compile(t, model.RuleSpec{
		Buy: model.ConditionList{
			Operator: model.OR,
			Conditions: []model.ConditionSpec{
				{Indicator: "pe_ratio", Operator: "<", Value: []float64{15}, Weight: 1},
				{Indicator: "rsi", Operator: "<", Value: []float64{30}, Weight: 1},
			},
		},
	})

	e := newTestEvaluator()
	// no fundamentals in the snapshot, pe_ratio errors and scores zero
	result := e.Evaluate(context.Background(), r, model.EvaluationContext{
		StrategyID: "s1",
		Symbol:     "BTC",
		Timestamp:  frozen,
		Market:     freshSnapshot(30),
		Indicators: map[string]float64{"rsi": 25},
	})

	assert.Equal(t, model.EvaluationPartial, result.Status)
	assert.True(t, result.BuyTriggered)
	assert.Len(t, result.Errors, 1)
	assert.False(t, result.BuyDetails[0].Met)
	assert.Equal(t, 0.0, result.BuyDetails[0].Confidence)
}

func TestEvaluator_AllConditionsFail(t *testing.T) {

	r := compile(t, model.RuleSpec{
		Buy: model.ConditionList{
			Operator: model.AND,
			Conditions: []model.ConditionSpec{
				{Indicator: "pe_ratio", Operator: "<", Value: []float64{15}, Weight: 1},
				{Indicator: "eps", Operator: ">", Value: []float64{1}, Weight: 1},
			},
		},
	})

	e := newTestEvaluator()
	result := e.Evaluate(context.Background(), r, model.EvaluationContext{
		StrategyID: "s1",
		Symbol:     "BTC",
		Timestamp:  frozen,
		Market:     freshSnapshot(30),
	})

	assert.Equal(t, model.EvaluationFailed, result.Status)
	assert.False(t, result.BuyTriggered)
	assert.Equal(t, 0.0, result.BuyConfidence)
}

func TestEvaluator_InsufficientData(t *testing.T) {

	r := compile(t, model.RuleSpec{})

	e := newTestEvaluator()
	result := e.Evaluate(context.Background(), r, model.EvaluationContext{
		StrategyID: "s1",
		Symbol:     "BTC",
		Timestamp:  frozen,
		Market:     freshSnapshot(30),
	})

	assert.Equal(t, model.EvaluationInsufficientData, result.Status)
	assert.False(t, result.BuyTriggered)
	assert.False(t, result.SellTriggered)
}

func TestEvaluator_Timeout(t *testing.T) {

	var lock sync.Mutex
	now := frozen
	// every clock read advances time beyond the evaluation budget
	clock := func() time.Time {
		lock.Lock()
		defer lock.Unlock()
		now = now.Add(6 * time.Second)
		return now
	}

	cfg := NewConfig()
	cfg.MaxEvalTime = 10 * time.Second
	e := New(cfg, nil).WithClock(clock)

	result := e.Evaluate(context.Background(), oversoldRule(t), model.EvaluationContext{
		StrategyID: "s1",
		Symbol:     "BTC",
		Timestamp:  frozen,
		Market:     freshSnapshot(30),
		Indicators: map[string]float64{"rsi": 25, "volume_ratio": 2},
	})

	assert.Equal(t, model.EvaluationTimeout, result.Status)
}

type countingIndicators struct {
	lock  sync.Mutex
	calls int
}

func (c *countingIndicators) CalculateIndicators(_ context.Context, _ string, _ model.Snapshot) (map[string]float64, error) {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.calls++
	return map[string]float64{"rsi": 25, "volume_ratio": 2}, nil
}

// repeated evaluations within the same time bucket hit the indicator cache
func TestEvaluator_IndicatorCache(t *testing.T) {

	service := &countingIndicators{}
	e := New(NewConfig(), service).WithClock(func() time.Time { return frozen })

	ectx := model.EvaluationContext{
		StrategyID: "s1",
		Symbol:     "BTC",
		Timestamp:  frozen,
		Market:     freshSnapshot(30),
	}

	first := e.Evaluate(context.Background(), oversoldRule(t), ectx)
	second := e.Evaluate(context.Background(), oversoldRule(t), ectx)

	assert.True(t, first.BuyTriggered)
	assert.True(t, second.BuyTriggered)
	assert.Equal(t, 1, service.calls)
}

// crossovers derive from the snapshot series even when a flat
// pre-computed value for the same indicator is available
func TestEvaluator_CrossoverUsesSeries(t *testing.T) {

	type test struct {
		operator  string
		triggered bool
	}

	// prices rise through 128.5 on the last bar
	tests := map[string]test{
		"crossover-up": {
			operator:  "crossover-up",
			triggered: true,
		},
		"crossover-down": {
			operator:  "crossover-down",
			triggered: false,
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			r := compile(t, model.RuleSpec{
				Buy: model.ConditionList{
					Operator: model.AND,
					Conditions: []model.ConditionSpec{
						{Indicator: "price", Operator: tt.operator, Value: []float64{128.5}, Weight: 1},
						{Indicator: "price", Operator: ">", Value: []float64{100}, Weight: 1},
					},
				},
			})
			e := newTestEvaluator()
			// a flat pre-computed price carries no previous observation
			// and must not mask the series crossing
			result := e.Evaluate(context.Background(), r, model.EvaluationContext{
				StrategyID: "s1",
				Symbol:     "BTC",
				Timestamp:  frozen,
				Market:     freshSnapshot(30),
				Indicators: map[string]float64{"price": 129},
			})
			assert.Equal(t, model.EvaluationSuccess, result.Status)
			assert.Equal(t, tt.triggered, result.BuyTriggered)
		})
	}
}
